package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
	"github.com/stripe/stripe-go/v76/webhook"

	"github.com/helpbyexperts/ava/backend/internal/config"
	"github.com/helpbyexperts/ava/backend/internal/logging"
)

const productName = "Expert hand-off"

// StripeProvider implements Provider on the Stripe API.
type StripeProvider struct {
	api           *client.API
	webhookSecret string
	log           *logging.Logger
}

// NewStripeProvider builds the provider. Without a secret key every API call
// fails with ErrNotConfigured; webhooks only need the webhook secret.
func NewStripeProvider(cfg config.PaymentConfig, log *logging.Logger) *StripeProvider {
	if log == nil {
		log = logging.Nop()
	}
	p := &StripeProvider{
		webhookSecret: cfg.WebhookSecret,
		log:           log.Sub("payment"),
	}
	if cfg.Enabled() {
		p.api = client.New(cfg.SecretKey, nil)
	}
	return p
}

// Configured reports whether API calls can be made.
func (p *StripeProvider) Configured() bool {
	return p.api != nil
}

func (p *StripeProvider) CreatePaymentIntent(ctx context.Context, sessionID string) (Intent, error) {
	if p.api == nil {
		return Intent{}, ErrNotConfigured
	}
	if strings.TrimSpace(sessionID) == "" {
		return Intent{}, ErrSessionRequired
	}

	params := &stripe.PaymentIntentParams{
		Amount:   stripe.Int64(AmountCents),
		Currency: stripe.String(Currency),
		AutomaticPaymentMethods: &stripe.PaymentIntentAutomaticPaymentMethodsParams{
			Enabled: stripe.Bool(true),
		},
		Description: stripe.String(productName),
	}
	params.Context = ctx
	params.AddMetadata(MetadataSessionKey, sessionID)

	pi, err := p.api.PaymentIntents.New(params)
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("create payment intent failed")
		return Intent{}, &RejectedError{Op: "intent", Err: err}
	}

	p.log.Info().Str("session_id", sessionID).Str("intent", pi.ID).Msg("payment intent created")
	return Intent{ID: pi.ID, ClientSecret: pi.ClientSecret}, nil
}

func (p *StripeProvider) CreateCheckoutSession(ctx context.Context, sessionID, successURL, cancelURL string) (Checkout, error) {
	if p.api == nil {
		return Checkout{}, ErrNotConfigured
	}
	if strings.TrimSpace(sessionID) == "" {
		return Checkout{}, ErrSessionRequired
	}

	params := &stripe.CheckoutSessionParams{
		Mode:              stripe.String(string(stripe.CheckoutSessionModePayment)),
		SuccessURL:        stripe.String(successURL),
		CancelURL:         stripe.String(cancelURL),
		ClientReferenceID: stripe.String(sessionID),
		LineItems: []*stripe.CheckoutSessionLineItemParams{{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(Currency),
				UnitAmount: stripe.Int64(AmountCents),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripe.String(productName),
				},
			},
			Quantity: stripe.Int64(1),
		}},
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			Metadata: map[string]string{MetadataSessionKey: sessionID},
		},
	}
	params.Context = ctx
	params.AddMetadata(MetadataSessionKey, sessionID)

	cs, err := p.api.CheckoutSessions.New(params)
	if err != nil {
		p.log.Warn().Err(err).Str("session_id", sessionID).Msg("create checkout session failed")
		return Checkout{}, &RejectedError{Op: "checkout", Err: err}
	}
	return Checkout{ID: cs.ID, URL: cs.URL}, nil
}

// ConfirmPaymentIntent asks Stripe for the intent status rather than trusting the client.
func (p *StripeProvider) ConfirmPaymentIntent(ctx context.Context, intentID string) (Confirmation, error) {
	if p.api == nil {
		return Confirmation{}, ErrNotConfigured
	}
	if strings.TrimSpace(intentID) == "" {
		return Confirmation{}, fmt.Errorf("payment intent id is required")
	}

	params := &stripe.PaymentIntentParams{}
	params.Context = ctx
	pi, err := p.api.PaymentIntents.Get(intentID, params)
	if err != nil {
		return Confirmation{}, &RejectedError{Op: "confirm", Err: err}
	}
	return intentConfirmation(pi), nil
}

// ParseWebhook verifies the signature and extracts the paid session, if any.
// Events other than completed payments yield a zero Confirmation.
func (p *StripeProvider) ParseWebhook(payload []byte, signature string) (Confirmation, error) {
	if p.webhookSecret == "" {
		return Confirmation{}, ErrNotConfigured
	}

	event, err := webhook.ConstructEventWithOptions(payload, signature, p.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return Confirmation{}, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	switch event.Type {
	case "payment_intent.succeeded":
		var pi stripe.PaymentIntent
		if err := json.Unmarshal(event.Data.Raw, &pi); err != nil {
			return Confirmation{}, fmt.Errorf("decoding payment intent: %w", err)
		}
		return intentConfirmation(&pi), nil

	case "checkout.session.completed":
		var cs stripe.CheckoutSession
		if err := json.Unmarshal(event.Data.Raw, &cs); err != nil {
			return Confirmation{}, fmt.Errorf("decoding checkout session: %w", err)
		}
		sessionID := cs.ClientReferenceID
		if sessionID == "" {
			sessionID = cs.Metadata[MetadataSessionKey]
		}
		return Confirmation{
			SessionID: sessionID,
			Reference: cs.ID,
			Paid:      cs.PaymentStatus == stripe.CheckoutSessionPaymentStatusPaid && chargedFee(cs.AmountTotal, cs.Currency),
		}, nil

	default:
		p.log.Debug().Str("type", string(event.Type)).Msg("ignoring webhook event")
		return Confirmation{}, nil
	}
}

func intentConfirmation(pi *stripe.PaymentIntent) Confirmation {
	return Confirmation{
		SessionID: pi.Metadata[MetadataSessionKey],
		Reference: pi.ID,
		Paid:      pi.Status == stripe.PaymentIntentStatusSucceeded && chargedFee(pi.Amount, pi.Currency),
	}
}

// chargedFee reports whether a settled amount is exactly the hand-off fee.
func chargedFee(amount int64, currency stripe.Currency) bool {
	return amount == AmountCents && strings.EqualFold(string(currency), Currency)
}
