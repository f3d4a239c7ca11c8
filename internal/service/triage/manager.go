// Package triage drives the pre-payment dialogue: it relays each customer
// message to the model, watches replies for the hand-off sentinel, and routes
// the conversation to human experts once the session is paid.
package triage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/model/script"
	"github.com/helpbyexperts/ava/backend/internal/observability"
	"github.com/helpbyexperts/ava/backend/internal/service/ai"
	"github.com/helpbyexperts/ava/backend/internal/service/category"
	chatservice "github.com/helpbyexperts/ava/backend/internal/service/chat"
	"github.com/helpbyexperts/ava/backend/internal/service/notify"
	"github.com/helpbyexperts/ava/backend/internal/store"
)

const (
	// DefaultAmount is the hand-off fee in major currency units.
	DefaultAmount = 5.00
	// DefaultCurrency is the ISO currency of the fee.
	DefaultCurrency = "usd"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrNotPaid         = errors.New("session has not been paid")
	ErrEmptyMessage    = errors.New("message is empty")
)

// Generator produces the assistant reply for a transcript.
type Generator interface {
	Generate(ctx context.Context, directive string, turns []chat.Turn) (ai.Reply, error)
}

// Notifier is the expert-facing broadcast channel.
type Notifier interface {
	Publish(notify.Event)
}

// Archiver persists snapshots without blocking the caller.
type Archiver interface {
	Submit(session chat.Session) bool
}

// Flusher is implemented by archivers that can also write synchronously.
// Disconnect uses it so an unpaid session is durable before it leaves memory.
type Flusher interface {
	Flush(ctx context.Context, session chat.Session) error
}

// Classifier picks a category when the model did not annotate one.
type Classifier interface {
	Classify(ctx context.Context, turns []chat.Turn) category.Decision
}

// Restorer loads archived sessions.
type Restorer interface {
	LoadSession(ctx context.Context, sessionID string) (chat.Session, error)
}

// Deps are the collaborators of the manager. Only Sessions is required.
type Deps struct {
	Sessions   *chatservice.Service
	Generator  Generator
	Notifier   Notifier
	Archiver   Archiver
	Classifier Classifier
	Restorer   Restorer
	Logger     *logging.Logger
}

// Options configure the dialogue.
type Options struct {
	Script        script.Script
	TypingDelay   time.Duration
	PaymentAmount float64
	Currency      string
}

// Manager owns the triage state machine for every session.
type Manager struct {
	sessions   *chatservice.Service
	generator  Generator
	notifier   Notifier
	archiver   Archiver
	classifier Classifier
	restorer   Restorer
	log        *logging.Logger

	script      script.Script
	directive   string
	typingDelay time.Duration
	amount      float64
	currency    string

	locks *keyedMutex

	clientsMu sync.RWMutex
	clients   map[string]Client
}

// NewManager validates the script and wires the collaborators.
func NewManager(deps Deps, opts Options) (*Manager, error) {
	if deps.Sessions == nil {
		return nil, errors.New("session service is required")
	}
	if err := opts.Script.Validate(); err != nil {
		return nil, fmt.Errorf("invalid triage script: %w", err)
	}
	if opts.TypingDelay < 0 {
		return nil, fmt.Errorf("typing delay must not be negative, got %s", opts.TypingDelay)
	}

	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}

	m := &Manager{
		sessions:    deps.Sessions,
		generator:   deps.Generator,
		notifier:    deps.Notifier,
		archiver:    deps.Archiver,
		classifier:  deps.Classifier,
		restorer:    deps.Restorer,
		log:         log.Sub("triage"),
		script:      opts.Script,
		directive:   ai.BuildDirective(opts.Script),
		typingDelay: opts.TypingDelay,
		amount:      opts.PaymentAmount,
		currency:    strings.ToLower(strings.TrimSpace(opts.Currency)),
		locks:       newKeyedMutex(),
		clients:     make(map[string]Client),
	}
	if m.amount <= 0 {
		m.amount = DefaultAmount
	}
	if m.currency == "" {
		m.currency = DefaultCurrency
	}
	return m, nil
}

// Script returns the dialogue script in use.
func (m *Manager) Script() script.Script {
	return m.script
}

// Online reports whether a generation backend is configured.
func (m *Manager) Online() bool {
	return m.generator != nil
}

// Connect attaches client to the session, creating it when needed. A new
// session is greeted; a resumed one gets its transcript replayed.
func (m *Manager) Connect(ctx context.Context, sessionID string, client Client) (chat.Session, bool, error) {
	if sessionID == "" {
		return chat.Session{}, false, chatservice.ErrSessionIDRequired
	}

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	session, created, err := m.ensureSession(ctx, sessionID)
	if err != nil {
		return chat.Session{}, false, err
	}

	m.clientsMu.Lock()
	m.clients[sessionID] = client
	m.clientsMu.Unlock()

	if created {
		m.log.Info().Str("session_id", sessionID).Msg("session started")
		if greeting := strings.TrimSpace(m.script.Greeting); greeting != "" {
			m.send(sessionID, Event{Type: EventBotMessage, Text: greeting})
		}
		return session, false, nil
	}

	m.log.Info().Str("session_id", sessionID).Int("turns", len(session.Turns)).Bool("paid", session.Paid).Msg("session resumed")
	m.send(sessionID, Event{Type: EventHistory, Turns: session.Turns, Category: session.Category})
	if session.Paid {
		m.send(sessionID, Event{Type: EventPaid, Category: session.Category})
	}
	return session, true, nil
}

// Disconnect detaches client. Unpaid sessions end with their connection;
// paid ones stay live so experts can keep replying. An unpaid transcript is
// written through to the archive before it is dropped, so a reconnect can
// resume it.
func (m *Manager) Disconnect(ctx context.Context, sessionID string, client Client) {
	m.clientsMu.Lock()
	current, ok := m.clients[sessionID]
	if !ok || current != client {
		// a newer connection took the session over
		m.clientsMu.Unlock()
		return
	}
	delete(m.clients, sessionID)
	m.clientsMu.Unlock()

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return
	}
	if session.Paid {
		m.archive(session)
		return
	}
	m.flush(ctx, session)

	m.clientsMu.Lock()
	defer m.clientsMu.Unlock()
	if _, back := m.clients[sessionID]; back {
		// reconnected while the transcript was being written
		return
	}
	if m.sessions.DeleteUnpaid(ctx, sessionID) {
		m.log.Info().Str("session_id", sessionID).Msg("unpaid session closed")
	}
}

// HandleInbound processes one customer message. Generation problems never
// surface as errors; they produce a fallback result instead.
func (m *Manager) HandleInbound(ctx context.Context, sessionID, text string) (Result, error) {
	if sessionID == "" {
		return Result{}, chatservice.ErrSessionIDRequired
	}

	text = strings.TrimSpace(text)
	if text == "" {
		observability.RecordInbound("reprompt")
		m.send(sessionID, Event{Type: EventBotMessage, Text: m.script.RepromptText})
		return Result{Kind: KindReprompt, DisplayText: m.script.RepromptText}, nil
	}

	unlock := m.locks.Lock(sessionID)
	defer unlock()

	if _, _, err := m.ensureSession(ctx, sessionID); err != nil {
		return Result{}, err
	}
	if _, err := m.sessions.AppendTurn(ctx, sessionID, chat.SenderUser, text); err != nil {
		return Result{}, err
	}

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return Result{}, err
	}
	m.archive(session)

	if session.Paid {
		observability.RecordInbound("forwarded")
		m.publish(notify.Event{
			Type:      notify.EventUserMessage,
			SessionID: sessionID,
			Text:      text,
			Category:  session.Category,
		})
		return Result{Kind: KindForwarded, Category: session.Category}, nil
	}

	if m.generator == nil {
		observability.RecordInbound("offline")
		m.send(sessionID, Event{Type: EventBotMessage, Text: m.script.OfflineText})
		return Result{Kind: KindFallback, DisplayText: m.script.OfflineText}, nil
	}

	m.send(sessionID, Event{Type: EventBotTyping, Typing: true})
	if err := m.wait(ctx); err != nil {
		return m.fallback(sessionID, err), nil
	}

	reply, err := m.generator.Generate(ctx, m.directive, session.Turns)
	if err != nil {
		return m.fallback(sessionID, err), nil
	}

	parsed := ParseReply(reply.Text, m.script.Sentinel, m.script.Categories, m.script.FallbackCategory)
	if parsed.Display == "" && !parsed.Ready {
		return m.fallback(sessionID, ai.ErrEmptyReply), nil
	}

	// payment may have landed while the model was generating; once paid the
	// assistant stays silent
	err = m.sessions.CommitReply(ctx, sessionID, parsed.Display, parsed.Ready)
	if errors.Is(err, chatservice.ErrSessionPaid) || errors.Is(err, chatservice.ErrSessionNotFound) {
		observability.RecordInbound("discarded")
		m.log.Info().Str("session_id", sessionID).Bool("ready", parsed.Ready).Msg("reply discarded, session paid or closed meanwhile")
		return Result{Kind: KindDiscarded}, nil
	}
	if err != nil {
		return Result{}, err
	}

	result := Result{Kind: KindReply, DisplayText: parsed.Display}
	if parsed.Ready {
		result.ReadyForPayment = true
		result.Category = m.resolveCategory(ctx, sessionID, parsed)
	}

	if session, err := m.sessions.Get(ctx, sessionID); err == nil {
		m.archive(session)
		if parsed.Ready {
			m.publish(notify.Event{
				Type:       notify.EventReady,
				SessionID:  sessionID,
				Category:   session.Category,
				Transcript: session.Turns,
			})
		}
	}

	observability.RecordInbound("reply")
	if parsed.Display != "" {
		m.send(sessionID, Event{Type: EventBotMessage, Text: parsed.Display})
	}
	if parsed.Ready {
		observability.RecordPaymentTrigger()
		m.log.Info().Str("session_id", sessionID).Str("category", result.Category).Str("model", reply.Model).Msg("payment requested")
		m.send(sessionID, Event{Type: EventPaymentTrigger, Amount: m.amount, Currency: m.currency, Category: result.Category})
	}
	return result, nil
}

// MarkPaid records a payment confirmation and hands the session to the
// experts. It reports whether this call made the transition; repeated calls
// and unknown ids are no-ops.
func (m *Manager) MarkPaid(ctx context.Context, sessionID string) bool {
	if sessionID == "" {
		return false
	}

	changed, err := m.sessions.MarkPaid(ctx, sessionID)
	if errors.Is(err, chatservice.ErrSessionNotFound) {
		if _, restoreErr := m.restore(ctx, sessionID); restoreErr != nil {
			m.log.Warn().Str("session_id", sessionID).Msg("payment confirmed for unknown session, ignoring")
			return false
		}
		changed, err = m.sessions.MarkPaid(ctx, sessionID)
	}
	if err != nil {
		m.log.Error().Err(err).Str("session_id", sessionID).Msg("mark paid failed")
		return false
	}
	if !changed {
		return false
	}

	session, err := m.sessions.Get(ctx, sessionID)
	if err != nil {
		return true
	}

	observability.RecordPaid()
	m.log.Info().Str("session_id", sessionID).Str("category", session.Category).Msg("session paid, handing off")

	m.publish(notify.Event{
		Type:       notify.EventHandoff,
		SessionID:  sessionID,
		Category:   session.Category,
		Transcript: session.Turns,
	})
	m.send(sessionID, Event{Type: EventPaid, Category: session.Category})
	m.archive(session)
	return true
}

// AgentReply delivers an expert's message to the customer. Only paid
// sessions accept expert replies.
func (m *Manager) AgentReply(ctx context.Context, sessionID, text string) (chat.Turn, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return chat.Turn{}, ErrEmptyMessage
	}

	session, err := m.sessions.Get(ctx, sessionID)
	if errors.Is(err, chatservice.ErrSessionNotFound) {
		session, err = m.restore(ctx, sessionID)
	}
	if err != nil {
		return chat.Turn{}, ErrSessionNotFound
	}
	if !session.Paid {
		return chat.Turn{}, ErrNotPaid
	}

	turn, err := m.sessions.AppendTurn(ctx, sessionID, chat.SenderAgent, text)
	if err != nil {
		return chat.Turn{}, err
	}

	m.send(sessionID, Event{Type: EventAgentMessage, Text: text})
	m.publish(notify.Event{Type: notify.EventAgentMessage, SessionID: sessionID, Text: text})
	if snapshot, err := m.sessions.Get(ctx, sessionID); err == nil {
		m.archive(snapshot)
	}
	return turn, nil
}

// Session returns a live session, or its archived record.
func (m *Manager) Session(ctx context.Context, sessionID string) (chat.Session, error) {
	session, err := m.sessions.Get(ctx, sessionID)
	if err == nil {
		return session, nil
	}
	if m.restorer != nil {
		if archived, loadErr := m.restorer.LoadSession(ctx, sessionID); loadErr == nil {
			return archived, nil
		}
	}
	return chat.Session{}, ErrSessionNotFound
}

// List summarizes live sessions.
func (m *Manager) List(ctx context.Context) []chat.Summary {
	return m.sessions.List(ctx)
}

// Connected reports whether a client is attached to the session.
func (m *Manager) Connected(sessionID string) bool {
	m.clientsMu.RLock()
	defer m.clientsMu.RUnlock()
	_, ok := m.clients[sessionID]
	return ok
}

func (m *Manager) ensureSession(ctx context.Context, sessionID string) (chat.Session, bool, error) {
	if session, err := m.sessions.Get(ctx, sessionID); err == nil {
		return session, false, nil
	}
	if session, err := m.restore(ctx, sessionID); err == nil {
		return session, false, nil
	}
	return m.sessions.GetOrCreate(ctx, sessionID)
}

func (m *Manager) restore(ctx context.Context, sessionID string) (chat.Session, error) {
	if m.restorer == nil {
		return chat.Session{}, ErrSessionNotFound
	}
	archived, err := m.restorer.LoadSession(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, store.ErrNotFound) {
			m.log.Warn().Err(err).Str("session_id", sessionID).Msg("session restore failed")
		}
		return chat.Session{}, ErrSessionNotFound
	}
	return m.sessions.Restore(ctx, archived)
}

func (m *Manager) resolveCategory(ctx context.Context, sessionID string, parsed Parsed) string {
	label := parsed.Category
	if label == "" {
		session, err := m.sessions.Get(ctx, sessionID)
		if err == nil && session.Category != "" {
			return session.Category
		}
		if m.classifier != nil && err == nil {
			label = m.classifier.Classify(ctx, session.Turns).Category
		}
	}
	if !m.script.HasCategory(label) {
		label = m.script.FallbackCategory
	}

	if _, err := m.sessions.SetCategory(ctx, sessionID, label); err != nil {
		return label
	}
	if session, err := m.sessions.Get(ctx, sessionID); err == nil {
		return session.Category
	}
	return label
}

func (m *Manager) fallback(sessionID string, cause error) Result {
	observability.RecordInbound("fallback")
	m.log.Warn().Err(cause).Str("session_id", sessionID).Msg("generation failed, sending apology")
	m.send(sessionID, Event{Type: EventBotMessage, Text: m.script.ApologyText})
	return Result{Kind: KindFallback, DisplayText: m.script.ApologyText}
}

func (m *Manager) wait(ctx context.Context) error {
	if m.typingDelay <= 0 {
		return nil
	}
	timer := time.NewTimer(m.typingDelay)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (m *Manager) send(sessionID string, ev Event) {
	m.clientsMu.RLock()
	client, ok := m.clients[sessionID]
	m.clientsMu.RUnlock()
	if !ok {
		return
	}
	if err := client.Send(ev); err != nil {
		m.log.Debug().Err(err).Str("session_id", sessionID).Str("event", ev.Type).Msg("client send failed")
	}
}

func (m *Manager) publish(ev notify.Event) {
	if m.notifier == nil {
		return
	}
	if ev.Timestamp.IsZero() {
		ev.Timestamp = time.Now().UTC()
	}
	m.notifier.Publish(ev)
}

func (m *Manager) archive(session chat.Session) {
	if m.archiver == nil {
		return
	}
	m.archiver.Submit(session)
}

func (m *Manager) flush(ctx context.Context, session chat.Session) {
	if m.archiver == nil {
		return
	}
	f, ok := m.archiver.(Flusher)
	if !ok {
		m.archiver.Submit(session)
		return
	}
	if err := f.Flush(ctx, session); err != nil {
		m.log.Warn().Err(err).Str("session_id", session.ID).Msg("final archive write failed")
	}
}
