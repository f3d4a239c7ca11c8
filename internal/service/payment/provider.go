// Package payment wraps the card processor that collects the hand-off fee.
package payment

import (
	"context"
	"errors"
	"fmt"
)

const (
	// AmountCents is the fixed hand-off fee in minor units ($5.00).
	AmountCents int64 = 500
	// Currency of the fee.
	Currency = "usd"
	// MetadataSessionKey links a processor object back to the chat session.
	MetadataSessionKey = "session_id"
)

var (
	ErrNotConfigured    = errors.New("payment provider is not configured")
	ErrSessionRequired  = errors.New("session id is required")
	ErrInvalidSignature = errors.New("invalid webhook signature")
)

// Intent is a created payment intent the widget confirms client side.
type Intent struct {
	ID           string `json:"paymentIntentId"`
	ClientSecret string `json:"clientSecret"`
}

// Checkout is a hosted checkout page.
type Checkout struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

// Confirmation is what the processor says about a payment.
type Confirmation struct {
	SessionID string
	Reference string
	Paid      bool
}

// Provider is the payment boundary.
type Provider interface {
	CreatePaymentIntent(ctx context.Context, sessionID string) (Intent, error)
	CreateCheckoutSession(ctx context.Context, sessionID, successURL, cancelURL string) (Checkout, error)
	ConfirmPaymentIntent(ctx context.Context, intentID string) (Confirmation, error)
	ParseWebhook(payload []byte, signature string) (Confirmation, error)
}

// RejectedError means the processor refused or failed the request.
type RejectedError struct {
	Op  string
	Err error
}

func (e *RejectedError) Error() string {
	return fmt.Sprintf("payment %s rejected: %v", e.Op, e.Err)
}

func (e *RejectedError) Unwrap() error { return e.Err }
