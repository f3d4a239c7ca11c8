package script

import (
	"errors"
	"fmt"
	"slices"
	"strings"
)

// DefaultID names the built-in triage script.
const DefaultID = "ava"

// DefaultSentinel is the marker a reply must contain to signal hand-off readiness.
const DefaultSentinel = "[PAYMENT_REQUIRED]"

// FallbackCategory is used whenever a label falls outside the closed set.
const FallbackCategory = "other"

// DefaultCategories is the closed set of case categories.
var DefaultCategories = []string{"tech", "legal", "medical", "finance", "home", "auto", "pets", FallbackCategory}

// Script 是分诊助手遵循的外部对话脚本。
type Script struct {
	ID               string   `json:"id" yaml:"id"`
	AssistantName    string   `json:"assistantName" yaml:"assistant_name"`
	Brand            string   `json:"brand" yaml:"brand"`
	Greeting         string   `json:"greeting" yaml:"greeting"`
	Directive        string   `json:"-" yaml:"directive"`
	Sentinel         string   `json:"-" yaml:"sentinel"`
	QuestionLimit    int      `json:"questionLimit" yaml:"question_limit"`
	Categories       []string `json:"categories" yaml:"categories"`
	FallbackCategory string   `json:"fallbackCategory" yaml:"fallback_category"`
	RepromptText     string   `json:"-" yaml:"reprompt_text"`
	ApologyText      string   `json:"-" yaml:"apology_text"`
	OfflineText      string   `json:"-" yaml:"offline_text"`
}

// Validate 校验分诊管理器依赖的约束。
func (s Script) Validate() error {
	var errs []error
	if strings.TrimSpace(s.ID) == "" {
		errs = append(errs, errors.New("script id is required"))
	}
	if strings.TrimSpace(s.Directive) == "" {
		errs = append(errs, errors.New("directive is required"))
	}
	if strings.TrimSpace(s.Sentinel) == "" {
		errs = append(errs, errors.New("sentinel is required"))
	}
	if s.QuestionLimit < 1 {
		errs = append(errs, fmt.Errorf("question limit must be positive, got %d", s.QuestionLimit))
	}
	if len(s.Categories) == 0 {
		errs = append(errs, errors.New("at least one category is required"))
	} else if !slices.Contains(s.Categories, s.FallbackCategory) {
		errs = append(errs, fmt.Errorf("fallback category %q is not in the category set", s.FallbackCategory))
	}
	return errors.Join(errs...)
}

// HasCategory reports whether label belongs to the closed set.
func (s Script) HasCategory(label string) bool {
	return slices.Contains(s.Categories, label)
}

// withDefaults 用 base 填充未设置的字段。
func (s Script) withDefaults(base Script) Script {
	if s.ID == "" {
		s.ID = base.ID
	}
	if s.AssistantName == "" {
		s.AssistantName = base.AssistantName
	}
	if s.Brand == "" {
		s.Brand = base.Brand
	}
	if s.Greeting == "" {
		s.Greeting = base.Greeting
	}
	if s.Directive == "" {
		s.Directive = base.Directive
	}
	if s.Sentinel == "" {
		s.Sentinel = base.Sentinel
	}
	if s.QuestionLimit == 0 {
		s.QuestionLimit = base.QuestionLimit
	}
	if len(s.Categories) == 0 {
		s.Categories = append([]string(nil), base.Categories...)
	}
	if s.FallbackCategory == "" {
		s.FallbackCategory = base.FallbackCategory
	}
	if s.RepromptText == "" {
		s.RepromptText = base.RepromptText
	}
	if s.ApologyText == "" {
		s.ApologyText = base.ApologyText
	}
	if s.OfflineText == "" {
		s.OfflineText = base.OfflineText
	}
	return s
}

// Seed 返回内置的分诊脚本。
func Seed() Script {
	return Script{
		ID:               DefaultID,
		AssistantName:    "Ava",
		Brand:            "HelpByExperts",
		Greeting:         "Hi! I'm Ava. I can connect you with a verified expert. What problem are you facing today?",
		Directive:        defaultDirective,
		Sentinel:         DefaultSentinel,
		QuestionLimit:    5,
		Categories:       append([]string(nil), DefaultCategories...),
		FallbackCategory: FallbackCategory,
		RepromptText:     "Could you describe your problem in a few words?",
		ApologyText:      "I'm having a slight connection issue with the AI. Could you repeat that?",
		OfflineText:      "System Error: AI Brain Offline. (Check API Key and Model status)",
	}
}

const defaultDirective = `You are {{assistant}}, the senior triage assistant for '{{brand}}'.
Your goal is to gather a COMPLETE case history before finding an expert.

RULES:
1. You MUST ask exactly {{questions}} relevant clarifying questions, ONE BY ONE.
2. Do not connect the user until you have asked all {{questions}} questions.
3. KEEP QUESTIONS SHORT (max 1 sentence).
4. Be professional and empathetic.
5. After the last answer, ask: "Is there anything else I should know before I connect you?"
6. Once they answer that final check, end your message with: {{sentinel}}
7. PAYMENT RULE: You must explicitly state that the $5 fee is refundable ONLY if the customer is not satisfied with the answer. Do not imply it is automatically refundable.`
