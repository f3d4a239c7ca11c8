package script

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// LoadFile reads a YAML script from path. Missing fields fall back to Seed.
func LoadFile(path string) (Script, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Script{}, fmt.Errorf("reading script %s: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes a YAML script document.
func Parse(data []byte) (Script, error) {
	var s Script
	if err := yaml.Unmarshal(data, &s); err != nil {
		return Script{}, fmt.Errorf("parsing script: %w", err)
	}

	s = s.withDefaults(Seed())
	if err := s.Validate(); err != nil {
		return Script{}, fmt.Errorf("invalid script: %w", err)
	}
	return s, nil
}
