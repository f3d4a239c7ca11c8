package category

import "testing"

var categories = []string{"tech", "legal", "medical", "finance", "home", "auto", "pets", "other"}

func TestAnalyzeLaptopIsTech(t *testing.T) {
	decision := Analyze([]string{"My laptop won't turn on", "The battery light blinks"}, categories, "other")
	if decision.Category != "tech" {
		t.Fatalf("expected tech category, got %s", decision.Category)
	}
	if decision.Score <= 0 {
		t.Fatalf("expected positive score, got %d", decision.Score)
	}
}

func TestAnalyzePhraseMatch(t *testing.T) {
	decision := Analyze([]string{"the CHECK ENGINE light came on"}, categories, "other")
	if decision.Category != "auto" {
		t.Fatalf("expected auto category, got %s", decision.Category)
	}
}

func TestAnalyzeNoSignalFallsBack(t *testing.T) {
	decision := Analyze([]string{"hello", "   "}, categories, "other")
	if decision.Category != "other" || decision.Score != 0 {
		t.Fatalf("expected fallback, got %+v", decision)
	}
}

func TestAnalyzeRespectsClosedSet(t *testing.T) {
	decision := Analyze([]string{"my dog keeps barking"}, []string{"tech", "general"}, "general")
	if decision.Category != "general" {
		t.Fatalf("expected fallback outside the configured set, got %s", decision.Category)
	}
}

func TestAnalyzeWholeWordsOnly(t *testing.T) {
	// "scar" must not count as "car"
	decision := Analyze([]string{"a scar on my arm"}, categories, "other")
	if decision.Category == "auto" {
		t.Fatalf("substring matched a single keyword: %+v", decision)
	}
}
