package ai

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/genai"

	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

type scriptedBackend struct {
	mu      sync.Mutex
	calls   []string
	results map[string]func(ctx context.Context) (string, error)
}

func (b *scriptedBackend) Name() string { return "scripted" }

func (b *scriptedBackend) Generate(ctx context.Context, model string, _ Request) (string, error) {
	b.mu.Lock()
	b.calls = append(b.calls, model)
	fn := b.results[model]
	b.mu.Unlock()
	if fn == nil {
		return "", errors.New("model not found")
	}
	return fn(ctx)
}

func reply(text string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return text, nil }
}

func fail(msg string) func(context.Context) (string, error) {
	return func(context.Context) (string, error) { return "", errors.New(msg) }
}

var userTurn = []chat.Turn{{Sender: chat.SenderUser, Text: "My laptop won't turn on"}}

func TestGenerateUsesFirstWorkingCandidate(t *testing.T) {
	backend := &scriptedBackend{results: map[string]func(context.Context) (string, error){
		"a": fail("404 model not found"),
		"b": reply("What model is it?"),
		"c": reply("unused"),
	}}
	svc, err := NewService(backend, []string{"a", "b", "c"}, time.Second, nil)
	require.NoError(t, err)

	got, err := svc.Generate(context.Background(), "directive", userTurn)
	require.NoError(t, err)
	assert.Equal(t, Reply{Text: "What model is it?", Model: "b"}, got)
	assert.Equal(t, []string{"a", "b"}, backend.calls)
	assert.Equal(t, "b", svc.ActiveModel())

	backend.calls = nil
	_, err = svc.Generate(context.Background(), "directive", userTurn)
	require.NoError(t, err)
	assert.Equal(t, []string{"b"}, backend.calls, "working candidate should be tried first")
}

func TestGenerateAllCandidatesFail(t *testing.T) {
	backend := &scriptedBackend{results: map[string]func(context.Context) (string, error){
		"a": fail("quota exceeded"),
		"b": reply("   "),
	}}
	svc, err := NewService(backend, []string{"a", "b"}, time.Second, nil)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "", userTurn)
	require.Error(t, err)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.Len(t, genErr.Attempts, 2)
	assert.ErrorIs(t, err, ErrEmptyReply)
	assert.False(t, genErr.Timeout())
}

func TestGenerateTimesOut(t *testing.T) {
	slow := func(ctx context.Context) (string, error) {
		<-ctx.Done()
		return "", ctx.Err()
	}
	backend := &scriptedBackend{results: map[string]func(context.Context) (string, error){
		"a": slow,
		"b": reply("never reached"),
	}}
	svc, err := NewService(backend, []string{"a", "b"}, 20*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = svc.Generate(context.Background(), "", userTurn)
	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	var genErr *GenerationError
	require.ErrorAs(t, err, &genErr)
	assert.True(t, genErr.Timeout())
	assert.Equal(t, []string{"a"}, backend.calls)
}

func TestNewServiceValidates(t *testing.T) {
	_, err := NewService(nil, []string{"a"}, 0, nil)
	assert.Error(t, err)

	_, err = NewService(&scriptedBackend{}, []string{" ", ""}, 0, nil)
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestWarmupPicksReachableModel(t *testing.T) {
	backend := &scriptedBackend{results: map[string]func(context.Context) (string, error){
		"b": reply("ok"),
	}}
	svc, err := NewService(backend, []string{"a", "b"}, time.Second, nil)
	require.NoError(t, err)

	model, err := svc.Warmup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "b", model)
}

func TestGeminiContentsMergesAndSkipsAgent(t *testing.T) {
	turns := []chat.Turn{
		{Sender: chat.SenderUser, Text: "hello"},
		{Sender: chat.SenderUser, Text: "anyone?"},
		{Sender: chat.SenderAssistant, Text: "Hi, what happened?"},
		{Sender: chat.SenderAgent, Text: "expert note"},
		{Sender: chat.SenderUser, Text: "it broke"},
	}

	contents := geminiContents(turns)
	require.Len(t, contents, 3)
	assert.Equal(t, genai.RoleUser, contents[0].Role)
	assert.Len(t, contents[0].Parts, 2)
	assert.Equal(t, genai.RoleModel, contents[1].Role)
	assert.Equal(t, "it broke", contents[2].Parts[0].Text)
}

func TestGeminiText(t *testing.T) {
	assert.Empty(t, geminiText(nil))

	resp := &genai.GenerateContentResponse{Candidates: []*genai.Candidate{{
		Content: &genai.Content{Parts: []*genai.Part{{Text: "Hello "}, {Text: "there"}}},
	}}}
	assert.Equal(t, "Hello there", geminiText(resp))
}

func TestArkHistorySkipsAgentTurns(t *testing.T) {
	history := arkHistory([]chat.Turn{
		{Sender: chat.SenderUser, Text: "q"},
		{Sender: chat.SenderAgent, Text: "expert"},
		{Sender: chat.SenderAssistant, Text: "a"},
	})
	require.Len(t, history, 2)
	assert.Equal(t, "q", history[0].Content)
	assert.Equal(t, "a", history[1].Content)
}
