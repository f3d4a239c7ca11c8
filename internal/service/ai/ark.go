package ai

import (
	"context"
	"fmt"
	"sync"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

// ChatModelFactory builds an eino chat model for one model identifier.
type ChatModelFactory func(ctx context.Context, modelName string) (model.ChatModel, error)

// ArkBackend runs a prompt chain per candidate model on Volcengine Ark.
type ArkBackend struct {
	factory ChatModelFactory

	mu     sync.Mutex
	chains map[string]compose.Runnable[map[string]any, *schema.Message]
}

// NewArkBackend creates a backend that compiles chains lazily.
func NewArkBackend(factory ChatModelFactory) *ArkBackend {
	return &ArkBackend{
		factory: factory,
		chains:  make(map[string]compose.Runnable[map[string]any, *schema.Message]),
	}
}

func (b *ArkBackend) Name() string { return "ark" }

// Generate invokes the compiled chain of modelName.
func (b *ArkBackend) Generate(ctx context.Context, modelName string, req Request) (string, error) {
	chain, err := b.chain(ctx, modelName)
	if err != nil {
		return "", err
	}

	resp, err := chain.Invoke(ctx, map[string]any{
		"system":  req.Directive,
		"history": arkHistory(req.Turns),
	})
	if err != nil {
		return "", fmt.Errorf("ark %s: %w", modelName, err)
	}
	if resp == nil {
		return "", nil
	}
	return resp.Content, nil
}

func (b *ArkBackend) chain(ctx context.Context, modelName string) (compose.Runnable[map[string]any, *schema.Message], error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if runnable, ok := b.chains[modelName]; ok {
		return runnable, nil
	}

	chatModel, err := b.factory(ctx, modelName)
	if err != nil {
		return nil, fmt.Errorf("failed to create chat model %s: %w", modelName, err)
	}

	promptTemplate := prompt.FromMessages(
		schema.FString,
		schema.SystemMessage("{system}"),
		schema.MessagesPlaceholder("history", false),
	)

	chain := compose.NewChain[map[string]any, *schema.Message]()
	chain.AppendChatTemplate(promptTemplate)
	chain.AppendChatModel(chatModel)

	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to compile chat chain for %s: %w", modelName, err)
	}

	b.chains[modelName] = runnable
	return runnable, nil
}

func arkHistory(turns []chat.Turn) []*schema.Message {
	history := make([]*schema.Message, 0, len(turns))
	for _, turn := range turns {
		switch turn.Sender {
		case chat.SenderUser:
			history = append(history, schema.UserMessage(turn.Text))
		case chat.SenderAssistant:
			history = append(history, schema.AssistantMessage(turn.Text, nil))
		}
	}
	return history
}
