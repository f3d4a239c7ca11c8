package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"

	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

// GeminiBackend generates text through the Google Gen AI SDK.
type GeminiBackend struct {
	client *genai.Client
}

// NewGeminiBackend creates a Gemini API client authenticated with apiKey.
func NewGeminiBackend(ctx context.Context, apiKey string) (*GeminiBackend, error) {
	if apiKey == "" {
		return nil, errors.New("GOOGLE_API_KEY is required")
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create gemini client: %w", err)
	}
	return &GeminiBackend{client: client}, nil
}

func (b *GeminiBackend) Name() string { return "gemini" }

// Generate sends the transcript with the directive as system instruction.
func (b *GeminiBackend) Generate(ctx context.Context, model string, req Request) (string, error) {
	contents := geminiContents(req.Turns)
	if len(contents) == 0 {
		return "", errors.New("no user or assistant turns to send")
	}

	config := &genai.GenerateContentConfig{}
	if strings.TrimSpace(req.Directive) != "" {
		config.SystemInstruction = &genai.Content{
			Parts: []*genai.Part{{Text: req.Directive}},
		}
	}

	resp, err := b.client.Models.GenerateContent(ctx, model, contents, config)
	if err != nil {
		return "", fmt.Errorf("gemini %s: %w", model, err)
	}
	return geminiText(resp), nil
}

// geminiContents maps the transcript onto Gemini roles. Agent turns never
// reach the model, and consecutive turns of one role are merged because a
// failed generation leaves two user turns back to back.
func geminiContents(turns []chat.Turn) []*genai.Content {
	contents := make([]*genai.Content, 0, len(turns))
	for _, turn := range turns {
		var role string
		switch turn.Sender {
		case chat.SenderUser:
			role = genai.RoleUser
		case chat.SenderAssistant:
			role = genai.RoleModel
		default:
			continue
		}

		part := &genai.Part{Text: turn.Text}
		if n := len(contents); n > 0 && contents[n-1].Role == role {
			contents[n-1].Parts = append(contents[n-1].Parts, part)
			continue
		}
		contents = append(contents, &genai.Content{Role: role, Parts: []*genai.Part{part}})
	}
	return contents
}

func geminiText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 {
		return ""
	}
	candidate := resp.Candidates[0]
	if candidate.Content == nil {
		return ""
	}

	var builder strings.Builder
	for _, part := range candidate.Content.Parts {
		if part != nil && part.Text != "" && !part.Thought {
			builder.WriteString(part.Text)
		}
	}
	return builder.String()
}
