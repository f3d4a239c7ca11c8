package config

import (
	"reflect"
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("AI_PROVIDER", "")
	t.Setenv("GEMINI_MODELS", "")
	t.Setenv("STORE_DRIVER", "")
	t.Setenv("TYPING_DELAY", "")
	t.Setenv("GENERATION_TIMEOUT", "")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load err: %v", err)
	}

	if cfg.Server.Addr != ":10000" {
		t.Fatalf("unexpected addr: %s", cfg.Server.Addr)
	}
	if cfg.AI.Provider != ProviderGemini {
		t.Fatalf("unexpected provider: %s", cfg.AI.Provider)
	}
	if !reflect.DeepEqual(cfg.AI.Candidates(), DefaultGeminiModels) {
		t.Fatalf("unexpected candidates: %v", cfg.AI.Candidates())
	}
	if cfg.AI.Timeout != 25*time.Second {
		t.Fatalf("unexpected timeout: %s", cfg.AI.Timeout)
	}
	if cfg.Triage.TypingDelay != time.Second {
		t.Fatalf("unexpected typing delay: %s", cfg.Triage.TypingDelay)
	}
	if cfg.Store.Driver != DriverSQLite {
		t.Fatalf("unexpected store driver: %s", cfg.Store.Driver)
	}
}

func TestLoadServerConfigAcceptsHostPort(t *testing.T) {
	t.Setenv("PORT", "127.0.0.1:9000")

	cfg, err := loadServerConfig()
	if err != nil {
		t.Fatalf("loadServerConfig err: %v", err)
	}
	if cfg.Addr != "127.0.0.1:9000" {
		t.Fatalf("unexpected addr: %s", cfg.Addr)
	}
}

func TestLoadServerConfigRejectsSpaces(t *testing.T) {
	t.Setenv("PORT", "80 80")

	if _, err := loadServerConfig(); err == nil {
		t.Fatal("expected error for invalid PORT")
	}
}

func TestGeminiModelsOverride(t *testing.T) {
	t.Setenv("GEMINI_MODELS", " gemini-2.0-flash , ,gemini-pro ")

	cfg, err := loadAIConfig()
	if err != nil {
		t.Fatalf("loadAIConfig err: %v", err)
	}
	want := []string{"gemini-2.0-flash", "gemini-pro"}
	if !reflect.DeepEqual(cfg.GeminiModels, want) {
		t.Fatalf("unexpected models: %v", cfg.GeminiModels)
	}
}

func TestAIConfigEnabled(t *testing.T) {
	gemini := AIConfig{Provider: ProviderGemini, GeminiModels: DefaultGeminiModels}
	if gemini.Enabled() {
		t.Fatal("gemini without key should be disabled")
	}
	gemini.GoogleAPIKey = "key"
	if !gemini.Enabled() {
		t.Fatal("gemini with key should be enabled")
	}

	ark := AIConfig{Provider: ProviderArk, APIKey: "key"}
	if ark.Enabled() {
		t.Fatal("ark without models should be disabled")
	}
	ark.ArkModels = []string{"doubao"}
	if !ark.Enabled() {
		t.Fatal("ark with key and model should be enabled")
	}
}

func TestInvalidValuesAreErrors(t *testing.T) {
	cases := map[string]string{
		"AI_PROVIDER":        "openai",
		"GENERATION_TIMEOUT": "soon",
		"STORE_DRIVER":       "postgres",
		"TYPING_DELAY":       "-1s",
		"RATE_LIMIT_BURST":   "many",
	}

	for key, value := range cases {
		t.Run(key, func(t *testing.T) {
			t.Setenv(key, value)
			if _, err := Load(); err == nil {
				t.Fatalf("expected error for %s=%s", key, value)
			}
		})
	}
}

func TestRedisDriverRequiresAddr(t *testing.T) {
	t.Setenv("STORE_DRIVER", "redis")
	t.Setenv("REDIS_ADDR", "")

	if _, err := loadStoreConfig(); err == nil {
		t.Fatal("expected error when REDIS_ADDR missing")
	}
}
