package category

import (
	"slices"
	"strings"
)

// Decision 是基于关键词的会话分类结果。
type Decision struct {
	Category string
	Score    int
}

var keywordBuckets = map[string][]string{
	"tech": {
		"laptop", "computer", "pc", "mac", "windows", "phone", "iphone", "android", "wifi", "wi-fi",
		"router", "internet", "printer", "software", "app", "email", "password", "screen", "battery",
		"charger", "boot", "crash", "virus", "keyboard", "bluetooth", "update",
	},
	"legal": {
		"lawyer", "attorney", "contract", "lease", "landlord", "tenant", "court", "sue", "lawsuit",
		"custody", "divorce", "will", "visa", "immigration", "copyright", "fine", "ticket", "eviction",
	},
	"medical": {
		"doctor", "pain", "fever", "symptom", "rash", "medication", "prescription", "headache",
		"cough", "injury", "pregnant", "blood", "dizzy", "allergy", "infection", "hospital",
	},
	"finance": {
		"tax", "taxes", "irs", "loan", "mortgage", "credit", "debt", "bank", "invest", "stock",
		"budget", "retirement", "401k", "insurance claim", "refund", "invoice",
	},
	"home": {
		"plumbing", "leak", "pipe", "toilet", "sink", "roof", "furnace", "boiler", "hvac",
		"air conditioner", "heater", "electrical", "outlet", "mold", "drywall", "appliance", "fridge",
		"washer", "dryer", "dishwasher",
	},
	"auto": {
		"car", "truck", "engine", "brake", "tire", "transmission", "check engine", "oil", "mechanic",
		"vehicle", "motorcycle", "mileage", "dashboard", "alternator", "starter",
	},
	"pets": {
		"dog", "cat", "puppy", "kitten", "vet", "pet", "bird", "rabbit", "hamster", "fish tank",
		"litter", "leash", "chewing", "barking",
	},
}

// Analyze 按关键词为文本打分，只在 categories 范围内选择。
// 同分取靠前的类别，没有命中时返回 fallback。
func Analyze(texts []string, categories []string, fallback string) Decision {
	tokens := make(map[string]int)
	var joined strings.Builder
	for _, text := range texts {
		normalized := strings.ToLower(strings.TrimSpace(text))
		if normalized == "" {
			continue
		}
		joined.WriteString(" ")
		joined.WriteString(normalized)
		for _, word := range strings.FieldsFunc(normalized, isSeparator) {
			tokens[word]++
		}
	}
	corpus := joined.String()

	best, bestScore := fallback, 0
	for _, label := range categories {
		keywords, ok := keywordBuckets[label]
		if !ok {
			continue
		}
		score := 0
		for _, word := range keywords {
			if strings.Contains(word, " ") {
				// 短语按子串匹配，单词按完整词匹配
				if strings.Contains(corpus, word) {
					score += 3
				}
				continue
			}
			score += 3 * tokens[word]
		}
		if score > bestScore {
			best, bestScore = label, score
		}
	}

	if bestScore == 0 || !slices.Contains(categories, best) {
		return Decision{Category: fallback}
	}
	return Decision{Category: best, Score: bestScore}
}

func isSeparator(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-':
		return false
	default:
		return true
	}
}
