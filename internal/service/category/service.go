package category

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	analysis "github.com/helpbyexperts/ava/backend/internal/analysis/category"
	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/service/ai"
)

// Generator 是分类器需要的生成服务接口。
type Generator interface {
	Generate(ctx context.Context, directive string, turns []chat.Turn) (ai.Reply, error)
}

// Config 控制分类器行为。
type Config struct {
	Enabled      bool
	HistoryLimit int
	Categories   []string
	Fallback     string
}

// Decision 是分类结果。
type Decision struct {
	Category   string
	Confidence float32
	Reason     string
	// Source 为 "llm" 或 "heuristic"。
	Source string
}

// Service 优先请求模型分类，失败时回退到关键词启发式。
type Service struct {
	enabled      bool
	generator    Generator
	categories   []string
	fallback     string
	historyLimit int
	log          *logging.Logger
}

// NewService 创建分类服务。generator 可以为 nil，此时只使用启发式。
func NewService(generator Generator, cfg Config, log *logging.Logger) (*Service, error) {
	if len(cfg.Categories) == 0 {
		return nil, errors.New("category set is empty")
	}
	if cfg.Fallback == "" {
		return nil, errors.New("fallback category is required")
	}
	if log == nil {
		log = logging.Nop()
	}

	historyLimit := cfg.HistoryLimit
	if historyLimit <= 0 {
		historyLimit = 12
	}

	return &Service{
		enabled:      cfg.Enabled && generator != nil,
		generator:    generator,
		categories:   append([]string(nil), cfg.Categories...),
		fallback:     cfg.Fallback,
		historyLimit: historyLimit,
		log:          log.Sub("category"),
	}, nil
}

// Enabled 表示是否启用了模型分类。
func (s *Service) Enabled() bool {
	return s != nil && s.enabled
}

// Classify 为会话选择类别，不会返回错误，
// 模型分类出现任何问题都会降级为启发式。
func (s *Service) Classify(ctx context.Context, turns []chat.Turn) Decision {
	if !s.Enabled() {
		return s.heuristic(turns)
	}

	history := formatHistory(turns, s.historyLimit)
	if history == "" {
		return s.heuristic(turns)
	}

	directive := fmt.Sprintf(classifierPrompt, strings.Join(s.categories, ", "))
	reply, err := s.generator.Generate(ctx, directive, []chat.Turn{{Sender: chat.SenderUser, Text: history}})
	if err != nil {
		s.log.Warn().Err(err).Msg("classifier invoke failed, use fallback")
		return s.heuristic(turns)
	}

	payload, err := parseClassifierOutput(reply.Text)
	if err != nil {
		s.log.Warn().Err(err).Msg("classifier output parse failed, use fallback")
		return s.heuristic(turns)
	}

	label := strings.ToLower(strings.TrimSpace(payload.Category))
	if !s.known(label) {
		return s.heuristic(turns)
	}

	confidence := payload.Confidence
	if confidence <= 0 {
		confidence = 0.6
	}
	if confidence > 1 {
		confidence = 1
	}

	return Decision{
		Category:   label,
		Confidence: confidence,
		Reason:     strings.TrimSpace(payload.Reason),
		Source:     "llm",
	}
}

func (s *Service) heuristic(turns []chat.Turn) Decision {
	var texts []string
	for _, turn := range turns {
		if turn.Sender == chat.SenderUser {
			texts = append(texts, turn.Text)
		}
	}

	decision := analysis.Analyze(texts, s.categories, s.fallback)
	confidence := float32(0.3)
	if decision.Score > 0 {
		confidence = 0.55
	}
	return Decision{
		Category:   decision.Category,
		Confidence: confidence,
		Reason:     "fallback",
		Source:     "heuristic",
	}
}

func (s *Service) known(label string) bool {
	for _, c := range s.categories {
		if c == label {
			return true
		}
	}
	return false
}

// parseClassifierOutput 从模型回复中提取 JSON 对象。
func parseClassifierOutput(content string) (*classifierPayload, error) {
	trimmed := strings.TrimSpace(content)
	start := strings.Index(trimmed, "{")
	end := strings.LastIndex(trimmed, "}")
	if start == -1 || end == -1 || end <= start {
		return nil, fmt.Errorf("missing json object")
	}

	payload := &classifierPayload{}
	if err := json.Unmarshal([]byte(trimmed[start:end+1]), payload); err != nil {
		return nil, err
	}
	return payload, nil
}

func formatHistory(turns []chat.Turn, limit int) string {
	start := len(turns) - limit
	if start < 0 {
		start = 0
	}

	var builder strings.Builder
	for _, turn := range turns[start:] {
		text := strings.TrimSpace(turn.Text)
		if text == "" {
			continue
		}
		role := "Customer"
		switch turn.Sender {
		case chat.SenderAssistant:
			role = "Assistant"
		case chat.SenderAgent:
			continue
		}
		if builder.Len() > 0 {
			builder.WriteString("\n")
		}
		builder.WriteString(role)
		builder.WriteString(": ")
		builder.WriteString(text)
	}
	return builder.String()
}

type classifierPayload struct {
	Category   string  `json:"category"`
	Confidence float32 `json:"confidence"`
	Reason     string  `json:"reason"`
}

const classifierPrompt = "You route customer problems to the right team of human experts. Read the conversation and decide which category it belongs to.\n" +
	"Allowed categories: %s.\n" +
	"Return only one JSON object with the fields category (one of the allowed categories), confidence (a number between 0 and 1) and reason (one short sentence). Do not output anything else."
