package agent

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/middleware"
	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/service/notify"
	"github.com/helpbyexperts/ava/backend/internal/service/triage"
	"github.com/helpbyexperts/ava/backend/pkg/utils"
)

const defaultKeepAlive = 20 * time.Second

// Manager is the slice of the triage manager the expert console uses.
type Manager interface {
	List(ctx context.Context) []chat.Summary
	Session(ctx context.Context, sessionID string) (chat.Session, error)
	MarkPaid(ctx context.Context, sessionID string) bool
	AgentReply(ctx context.Context, sessionID, text string) (chat.Turn, error)
	Connected(sessionID string) bool
}

// Subscriber yields the agent notification stream.
type Subscriber interface {
	Subscribe() (<-chan notify.Event, func())
}

// Handler serves the expert-facing API.
type Handler struct {
	manager   Manager
	events    Subscriber
	token     string
	keepAlive time.Duration
	log       *logging.Logger
}

// New creates the agent handler. An empty token refuses every request.
func New(manager Manager, events Subscriber, token string, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		manager:   manager,
		events:    events,
		token:     token,
		keepAlive: defaultKeepAlive,
		log:       log.Sub("agent"),
	}
}

// RegisterRoutes mounts the agent endpoints under /api/agent.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/agent", func(r chi.Router) {
		r.Use(middleware.BearerToken(h.token))
		r.Get("/events", h.handleEvents)
		r.Get("/sessions", h.handleListSessions)
		r.Get("/sessions/{sessionID}", h.handleGetSession)
		r.Post("/sessions/{sessionID}/paid", h.handleMarkPaid)
		r.Post("/sessions/{sessionID}/reply", h.handleReply)
	})
}

type sessionView struct {
	chat.Session
	Connected bool `json:"connected"`
}

func (h *Handler) handleListSessions(w http.ResponseWriter, r *http.Request) {
	sessions := h.manager.List(r.Context())
	if sessions == nil {
		sessions = []chat.Summary{}
	}
	utils.RespondJSON(w, http.StatusOK, sessions)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	session, err := h.manager.Session(r.Context(), sessionID)
	if err != nil {
		utils.RespondError(w, http.StatusNotFound, "session not found")
		return
	}
	utils.RespondJSON(w, http.StatusOK, sessionView{Session: session, Connected: h.manager.Connected(sessionID)})
}

func (h *Handler) handleMarkPaid(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	changed := h.manager.MarkPaid(r.Context(), sessionID)
	if !changed {
		if _, err := h.manager.Session(r.Context(), sessionID); err != nil {
			utils.RespondError(w, http.StatusNotFound, "session not found")
			return
		}
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"sessionId": sessionID, "changed": changed})
}

type replyRequest struct {
	Message string `json:"message"`
}

func (h *Handler) handleReply(w http.ResponseWriter, r *http.Request) {
	var payload replyRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	sessionID := chi.URLParam(r, "sessionID")
	turn, err := h.manager.AgentReply(r.Context(), sessionID, payload.Message)
	switch {
	case errors.Is(err, triage.ErrEmptyMessage):
		utils.RespondError(w, http.StatusBadRequest, "message is required")
	case errors.Is(err, triage.ErrNotPaid):
		utils.RespondError(w, http.StatusConflict, "session has not been paid")
	case errors.Is(err, triage.ErrSessionNotFound):
		utils.RespondError(w, http.StatusNotFound, "session not found")
	case err != nil:
		h.log.Error().Err(err).Str("session_id", sessionID).Msg("agent reply failed")
		utils.RespondError(w, http.StatusInternalServerError, "failed to deliver reply")
	default:
		utils.RespondJSON(w, http.StatusCreated, turn)
	}
}

// handleEvents streams hub notifications as named SSE events until the
// client goes away or the hub shuts down.
func (h *Handler) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		utils.RespondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}

	events, cancel := h.events.Subscribe()
	defer cancel()

	utils.SetupSSEHeaders(w)
	w.WriteHeader(http.StatusOK)
	utils.SendSSEComment(w, flusher, "connected")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-events:
			if !open {
				return
			}
			utils.SendSSEEvent(w, flusher, ev.Type, ev)
		case <-ticker.C:
			utils.SendSSEComment(w, flusher, "keep-alive")
		}
	}
}
