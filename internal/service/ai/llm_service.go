package ai

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/observability"
)

const defaultTimeout = 25 * time.Second

var (
	ErrNoCandidates = errors.New("no generation candidates configured")
	ErrEmptyReply   = errors.New("generation backend returned an empty reply")
)

// Request is what a backend receives for one generation call.
type Request struct {
	Directive string
	Turns     []chat.Turn
}

// Backend talks to one text generation provider.
type Backend interface {
	Name() string
	Generate(ctx context.Context, model string, req Request) (string, error)
}

// Reply is a successful generation outcome.
type Reply struct {
	Text  string
	Model string
}

// Attempt records one failed candidate.
type Attempt struct {
	Model string
	Err   error
}

// GenerationError is returned when no candidate produced a reply.
type GenerationError struct {
	Attempts []Attempt
	Err      error
}

func (e *GenerationError) Error() string {
	if len(e.Attempts) == 0 {
		return fmt.Sprintf("generation failed: %v", e.Err)
	}
	models := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		models = append(models, a.Model)
	}
	return fmt.Sprintf("generation failed after trying %s: %v", strings.Join(models, ", "), e.Err)
}

func (e *GenerationError) Unwrap() error { return e.Err }

// Timeout reports whether the call ran out of time.
func (e *GenerationError) Timeout() bool {
	return errors.Is(e.Err, context.DeadlineExceeded)
}

// Service generates replies with failover across a prioritized list of model
// identifiers. The last candidate that worked is tried first on the next call.
type Service struct {
	backend    Backend
	candidates []string
	timeout    time.Duration
	preferred  atomic.Int32
	log        *logging.Logger
}

// NewService wires a backend with its candidate models.
func NewService(backend Backend, candidates []string, timeout time.Duration, log *logging.Logger) (*Service, error) {
	if backend == nil {
		return nil, errors.New("generation backend is required")
	}
	cleaned := make([]string, 0, len(candidates))
	for _, c := range candidates {
		if c = strings.TrimSpace(c); c != "" {
			cleaned = append(cleaned, c)
		}
	}
	if len(cleaned) == 0 {
		return nil, ErrNoCandidates
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	if log == nil {
		log = logging.Nop()
	}

	return &Service{
		backend:    backend,
		candidates: cleaned,
		timeout:    timeout,
		log:        log.Sub("ai"),
	}, nil
}

// ActiveModel returns the candidate that will be tried first.
func (s *Service) ActiveModel() string {
	return s.candidates[int(s.preferred.Load())%len(s.candidates)]
}

// Generate runs one generation call under the service timeout.
func (s *Service) Generate(ctx context.Context, directive string, turns []chat.Turn) (Reply, error) {
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := Request{Directive: directive, Turns: turns}
	start := int(s.preferred.Load())
	var attempts []Attempt

	for i := 0; i < len(s.candidates); i++ {
		idx := (start + i) % len(s.candidates)
		model := s.candidates[idx]

		began := time.Now()
		text, err := s.backend.Generate(ctx, model, req)
		if err == nil && strings.TrimSpace(text) == "" {
			err = ErrEmptyReply
		}
		if err == nil {
			observability.RecordGeneration(model, "ok", time.Since(began))
			if idx != start {
				s.preferred.Store(int32(idx))
				s.log.Info().Str("model", model).Msg("switched active generation model")
			}
			return Reply{Text: text, Model: model}, nil
		}

		attempts = append(attempts, Attempt{Model: model, Err: err})

		if ctxErr := ctx.Err(); ctxErr != nil {
			observability.RecordGeneration(model, "timeout", time.Since(began))
			s.log.Warn().Str("model", model).Err(err).Msg("generation aborted by context")
			return Reply{}, &GenerationError{Attempts: attempts, Err: ctxErr}
		}

		observability.RecordGeneration(model, "error", time.Since(began))
		s.log.Warn().Str("model", model).Err(err).Msg("generation failed, trying next candidate")
	}

	return Reply{}, &GenerationError{Attempts: attempts, Err: attempts[len(attempts)-1].Err}
}

// Warmup sends a tiny prompt through the candidates so the first user does not
// pay for discovering which model is reachable.
func (s *Service) Warmup(ctx context.Context) (string, error) {
	turns := []chat.Turn{{Sender: chat.SenderUser, Text: "Test"}}
	reply, err := s.Generate(ctx, "", turns)
	if err != nil {
		s.log.Error().Err(err).Msg("all generation candidates failed, AI is offline")
		return "", err
	}
	s.log.Info().Str("model", reply.Model).Msg("generation backend reachable")
	return reply.Model, nil
}
