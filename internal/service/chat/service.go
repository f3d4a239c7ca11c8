package chat

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
)

var (
	ErrSessionIDRequired = errors.New("session id is required")
	ErrSessionNotFound   = errors.New("session not found")
	ErrInvalidSender     = errors.New("invalid sender")
	ErrEmptyText         = errors.New("turn text is empty")
	ErrSessionPaid       = errors.New("session already paid")
)

// Service holds the live sessions of connected clients.
type Service struct {
	mu       sync.RWMutex
	sessions map[string]*chat.Session
	now      func() time.Time
}

// NewService bootstraps an empty in-memory session store.
func NewService() *Service {
	return &Service{
		sessions: make(map[string]*chat.Session),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// GetOrCreate returns the live session for id, creating an empty one when absent.
func (s *Service) GetOrCreate(_ context.Context, sessionID string) (chat.Session, bool, error) {
	if sessionID == "" {
		return chat.Session{}, false, ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[sessionID]; ok {
		return existing.Clone(), false, nil
	}

	now := s.now()
	session := &chat.Session{
		ID:        sessionID,
		Turns:     make([]chat.Turn, 0, 16),
		CreatedAt: now,
		UpdatedAt: now,
	}
	s.sessions[sessionID] = session
	return session.Clone(), true, nil
}

// Restore installs a previously persisted session unless a live one already exists.
func (s *Service) Restore(_ context.Context, session chat.Session) (chat.Session, error) {
	if session.ID == "" {
		return chat.Session{}, ErrSessionIDRequired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.sessions[session.ID]; ok {
		return existing.Clone(), nil
	}

	restored := session.Clone()
	s.sessions[session.ID] = &restored
	return restored.Clone(), nil
}

// Get retrieves a live session by identifier.
func (s *Service) Get(_ context.Context, sessionID string) (chat.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Session{}, ErrSessionNotFound
	}
	return session.Clone(), nil
}

// AppendTurn adds a turn to the end of the transcript.
func (s *Service) AppendTurn(_ context.Context, sessionID string, sender chat.Sender, text string) (chat.Turn, error) {
	if !sender.Valid() {
		return chat.Turn{}, ErrInvalidSender
	}
	if strings.TrimSpace(text) == "" {
		return chat.Turn{}, ErrEmptyText
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return chat.Turn{}, ErrSessionNotFound
	}
	turn := chat.Turn{
		ID:        uuid.NewString(),
		Sender:    sender,
		Text:      text,
		CreatedAt: s.now(),
	}
	session.Turns = append(session.Turns, turn)
	session.UpdatedAt = turn.CreatedAt
	return turn, nil
}

// MarkPaid flips the paid flag. It reports false when the session was already paid.
func (s *Service) MarkPaid(_ context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if session.Paid {
		return false, nil
	}

	now := s.now()
	session.Paid = true
	session.PaidAt = &now
	session.UpdatedAt = now
	return true, nil
}

// CommitReply stores an assistant reply and, when ready is set, flags the
// session as awaiting payment. Both happen under one lock and only while the
// session is unpaid; otherwise ErrSessionPaid is returned and nothing changes.
// An empty text records the ready flag alone.
func (s *Service) CommitReply(_ context.Context, sessionID, text string, ready bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return ErrSessionNotFound
	}
	if session.Paid {
		return ErrSessionPaid
	}

	now := s.now()
	if strings.TrimSpace(text) != "" {
		session.Turns = append(session.Turns, chat.Turn{
			ID:        uuid.NewString(),
			Sender:    chat.SenderAssistant,
			Text:      text,
			CreatedAt: now,
		})
	}
	if ready {
		session.ReadyForPayment = true
	}
	session.UpdatedAt = now
	return nil
}

// SetCategory assigns the category once. Later calls keep the first value
// and report false.
func (s *Service) SetCategory(_ context.Context, sessionID, category string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok {
		return false, ErrSessionNotFound
	}
	if session.Category != "" || category == "" {
		return false, nil
	}
	session.Category = category
	session.UpdatedAt = s.now()
	return true, nil
}

// Delete drops a live session. Unknown ids are ignored.
func (s *Service) Delete(_ context.Context, sessionID string) {
	s.mu.Lock()
	delete(s.sessions, sessionID)
	s.mu.Unlock()
}

// DeleteUnpaid drops the session only when it has not been paid. Paid
// sessions stay live for the expert hand-off. It reports whether a session was removed.
func (s *Service) DeleteUnpaid(_ context.Context, sessionID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	session, ok := s.sessions[sessionID]
	if !ok || session.Paid {
		return false
	}
	delete(s.sessions, sessionID)
	return true
}

// List returns summaries of live sessions, most recently updated first.
func (s *Service) List(_ context.Context) []chat.Summary {
	s.mu.RLock()
	out := make([]chat.Summary, 0, len(s.sessions))
	for _, session := range s.sessions {
		out = append(out, session.Summary())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		return out[i].UpdatedAt.After(out[j].UpdatedAt)
	})
	return out
}
