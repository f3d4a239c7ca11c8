package payment

import (
	"context"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/helpbyexperts/ava/backend/internal/logging"
	"github.com/helpbyexperts/ava/backend/internal/service/payment"
	"github.com/helpbyexperts/ava/backend/pkg/utils"
)

const maxWebhookBytes = 64 << 10

// PaidMarker flips a session to paid.
type PaidMarker interface {
	MarkPaid(ctx context.Context, sessionID string) bool
}

// Handler exposes the payment endpoints used by the widget and by Stripe.
type Handler struct {
	provider   payment.Provider
	sessions   PaidMarker
	successURL string
	cancelURL  string
	log        *logging.Logger
}

// New creates the payment handler.
func New(provider payment.Provider, sessions PaidMarker, successURL, cancelURL string, log *logging.Logger) *Handler {
	if log == nil {
		log = logging.Nop()
	}
	return &Handler{
		provider:   provider,
		sessions:   sessions,
		successURL: successURL,
		cancelURL:  cancelURL,
		log:        log.Sub("payment"),
	}
}

// RegisterRoutes mounts the payment endpoints. limit wraps the endpoints
// that create processor objects.
func (h *Handler) RegisterRoutes(r chi.Router, limit func(http.Handler) http.Handler) {
	r.Group(func(r chi.Router) {
		if limit != nil {
			r.Use(limit)
		}
		r.Post("/create-payment-intent", h.handleCreatePaymentIntent)
		r.Post("/create-checkout-session", h.handleCreateCheckoutSession)
	})
	r.Post("/webhooks/stripe", h.handleWebhook)
}

type createRequest struct {
	SessionID  string `json:"sessionId"`
	SuccessURL string `json:"successUrl"`
	CancelURL  string `json:"cancelUrl"`
}

func (h *Handler) handleCreatePaymentIntent(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	intent, err := h.provider.CreatePaymentIntent(r.Context(), strings.TrimSpace(payload.SessionID))
	if err != nil {
		h.respondProviderError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, intent)
}

func (h *Handler) handleCreateCheckoutSession(w http.ResponseWriter, r *http.Request) {
	var payload createRequest
	if err := utils.DecodeJSON(r, &payload); err != nil {
		utils.RespondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	successURL := firstNonEmpty(payload.SuccessURL, h.successURL)
	cancelURL := firstNonEmpty(payload.CancelURL, h.cancelURL)

	checkout, err := h.provider.CreateCheckoutSession(r.Context(), strings.TrimSpace(payload.SessionID), successURL, cancelURL)
	if err != nil {
		h.respondProviderError(w, err)
		return
	}
	utils.RespondJSON(w, http.StatusOK, checkout)
}

func (h *Handler) handleWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		utils.RespondError(w, http.StatusRequestEntityTooLarge, "payload too large")
		return
	}

	conf, err := h.provider.ParseWebhook(body, r.Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		utils.RespondError(w, http.StatusServiceUnavailable, "webhooks are not configured")
		return
	case err != nil:
		h.log.Warn().Err(err).Msg("webhook rejected")
		utils.RespondError(w, http.StatusBadRequest, "invalid webhook")
		return
	}

	marked := false
	if conf.Paid && conf.SessionID != "" {
		marked = h.sessions.MarkPaid(r.Context(), conf.SessionID)
		h.log.Info().Str("session_id", conf.SessionID).Str("reference", conf.Reference).Bool("transitioned", marked).Msg("payment confirmed by webhook")
	}
	utils.RespondJSON(w, http.StatusOK, map[string]any{"received": true, "marked": marked})
}

// respondProviderError maps payment failures onto HTTP: a missing key is a
// server problem, anything the processor refused is 403.
func (h *Handler) respondProviderError(w http.ResponseWriter, err error) {
	var rejected *payment.RejectedError
	switch {
	case errors.Is(err, payment.ErrNotConfigured):
		utils.RespondError(w, http.StatusInternalServerError, "Stripe Key missing")
	case errors.Is(err, payment.ErrSessionRequired):
		utils.RespondError(w, http.StatusBadRequest, "sessionId is required")
	case errors.As(err, &rejected):
		utils.RespondError(w, http.StatusForbidden, rejected.Err.Error())
	default:
		h.log.Error().Err(err).Msg("payment request failed")
		utils.RespondError(w, http.StatusForbidden, err.Error())
	}
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}
