package triage

import (
	"regexp"
	"slices"
	"strings"
)

// Parsed is the outcome of inspecting one raw model reply.
type Parsed struct {
	// Display is the user-visible text with every marker removed.
	Display string
	// Ready is true when the reply carried the sentinel.
	Ready bool
	// Category is the resolved label when Ready and an annotation was found.
	// Unknown labels resolve to the fallback.
	Category string
	// Annotated reports whether a category annotation was present at all.
	// A plain "Category:" line only counts next to the sentinel; without it
	// the line is ordinary prose.
	Annotated bool
}

var (
	bracketCategory = regexp.MustCompile(`(?i)\[\s*category\s*[:=]\s*([^\]\n]*)\]`)
	lineCategory    = regexp.MustCompile(`(?im)^[ \t]*[*_]*category[*_]*[ \t]*[:=][ \t]*([^\n]*?)[ \t]*$`)
	extraNewlines   = regexp.MustCompile(`\n{3,}`)
)

// ParseReply inspects a raw reply for the sentinel and a trailing category
// annotation. It does no I/O, so every rule here can be tested in isolation.
// The sentinel match is exact and case-sensitive.
func ParseReply(raw, sentinel string, categories []string, fallback string) Parsed {
	var parsed Parsed
	if sentinel != "" && strings.Contains(raw, sentinel) {
		parsed.Ready = true
	}

	text := raw
	var label string
	for {
		before := text
		if sentinel != "" {
			text = strings.ReplaceAll(text, sentinel, "")
		}
		if l, ok := lastCategory(text, parsed.Ready); ok {
			label = l
			parsed.Annotated = true
		}
		text = bracketCategory.ReplaceAllString(text, "")
		if parsed.Ready {
			text = lineCategory.ReplaceAllString(text, "")
		}
		if text == before {
			break
		}
	}

	parsed.Display = tidy(text)
	if parsed.Ready && parsed.Annotated {
		parsed.Category = ResolveCategory(label, categories, fallback)
	}
	return parsed
}

// ResolveCategory maps a free-text label onto the closed category set.
func ResolveCategory(label string, categories []string, fallback string) string {
	normalized := strings.ToLower(strings.Trim(strings.TrimSpace(label), "*_`'\".,;:!<>()"))
	if normalized == "" {
		return fallback
	}
	if slices.Contains(categories, normalized) {
		return normalized
	}
	// "tech support" or "legal / contracts" still name a known category first.
	first := strings.FieldsFunc(normalized, func(r rune) bool {
		return r == ' ' || r == '/' || r == '-' || r == ',' || r == '&'
	})
	if len(first) > 0 && slices.Contains(categories, first[0]) {
		return first[0]
	}
	return fallback
}

func lastCategory(text string, lines bool) (string, bool) {
	bracket := bracketCategory.FindAllStringSubmatchIndex(text, -1)
	var line [][]int
	if lines {
		line = lineCategory.FindAllStringSubmatchIndex(text, -1)
	}

	pos, label, found := -1, "", false
	for _, m := range bracket {
		if m[0] > pos {
			pos, label, found = m[0], text[m[2]:m[3]], true
		}
	}
	for _, m := range line {
		if m[0] > pos {
			pos, label, found = m[0], text[m[2]:m[3]], true
		}
	}
	return label, found
}

func tidy(text string) string {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t\r")
	}
	text = strings.Join(lines, "\n")
	text = extraNewlines.ReplaceAllString(text, "\n\n")
	return strings.TrimSpace(text)
}
