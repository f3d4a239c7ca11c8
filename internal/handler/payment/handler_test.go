package payment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/helpbyexperts/ava/backend/internal/service/payment"
)

type fakeProvider struct {
	intentErr   error
	lastSuccess string
	conf        payment.Confirmation
	webhookErr  error
}

func (f *fakeProvider) CreatePaymentIntent(_ context.Context, sessionID string) (payment.Intent, error) {
	if f.intentErr != nil {
		return payment.Intent{}, f.intentErr
	}
	if sessionID == "" {
		return payment.Intent{}, payment.ErrSessionRequired
	}
	return payment.Intent{ID: "pi_1", ClientSecret: "pi_1_secret"}, nil
}

func (f *fakeProvider) CreateCheckoutSession(_ context.Context, sessionID, successURL, _ string) (payment.Checkout, error) {
	f.lastSuccess = successURL
	return payment.Checkout{ID: "cs_1", URL: "https://checkout.example/cs_1"}, nil
}

func (f *fakeProvider) ConfirmPaymentIntent(context.Context, string) (payment.Confirmation, error) {
	return f.conf, nil
}

func (f *fakeProvider) ParseWebhook([]byte, string) (payment.Confirmation, error) {
	return f.conf, f.webhookErr
}

type fakeMarker struct {
	calls []string
}

func (f *fakeMarker) MarkPaid(_ context.Context, sessionID string) bool {
	f.calls = append(f.calls, sessionID)
	return len(f.calls) == 1
}

func setupRouter(provider *fakeProvider, marker *fakeMarker) *chi.Mux {
	r := chi.NewRouter()
	New(provider, marker, "https://ava.example/success", "https://ava.example/cancel", nil).RegisterRoutes(r, nil)
	return r
}

func post(r http.Handler, path string, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader([]byte(body)))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestCreatePaymentIntent(t *testing.T) {
	r := setupRouter(&fakeProvider{}, &fakeMarker{})

	resp := post(r, "/create-payment-intent", `{"sessionId":"abc"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["clientSecret"] != "pi_1_secret" || body["paymentIntentId"] != "pi_1" {
		t.Fatalf("unexpected body %v", body)
	}
}

func TestCreatePaymentIntentErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		body string
		want int
	}{
		{"missing key", payment.ErrNotConfigured, `{"sessionId":"abc"}`, http.StatusInternalServerError},
		{"rejected", &payment.RejectedError{Op: "intent", Err: errors.New("invalid api key")}, `{"sessionId":"abc"}`, http.StatusForbidden},
		{"missing session", nil, `{}`, http.StatusBadRequest},
		{"bad body", nil, `{nope`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		r := setupRouter(&fakeProvider{intentErr: tc.err}, &fakeMarker{})
		resp := post(r, "/create-payment-intent", tc.body)
		if resp.Code != tc.want {
			t.Fatalf("%s: expected %d, got %d", tc.name, tc.want, resp.Code)
		}
	}
}

func TestCreateCheckoutSessionDefaultsURLs(t *testing.T) {
	provider := &fakeProvider{}
	r := setupRouter(provider, &fakeMarker{})

	resp := post(r, "/create-checkout-session", `{"sessionId":"abc"}`)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if provider.lastSuccess != "https://ava.example/success" {
		t.Fatalf("expected default success url, got %q", provider.lastSuccess)
	}
}

func TestWebhookMarksPaid(t *testing.T) {
	marker := &fakeMarker{}
	r := setupRouter(&fakeProvider{conf: payment.Confirmation{SessionID: "abc", Paid: true}}, marker)

	if resp := post(r, "/webhooks/stripe", `{}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := post(r, "/webhooks/stripe", `{}`); resp.Code != http.StatusOK {
		t.Fatalf("redelivery must still be acknowledged, got %d", resp.Code)
	}
	if len(marker.calls) != 2 || marker.calls[0] != "abc" {
		t.Fatalf("unexpected mark paid calls %v", marker.calls)
	}
}

func TestWebhookIgnoresUnpaidEvents(t *testing.T) {
	marker := &fakeMarker{}
	r := setupRouter(&fakeProvider{conf: payment.Confirmation{}}, marker)

	if resp := post(r, "/webhooks/stripe", `{}`); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if len(marker.calls) != 0 {
		t.Fatalf("unexpected mark paid calls %v", marker.calls)
	}
}

func TestWebhookRejections(t *testing.T) {
	r := setupRouter(&fakeProvider{webhookErr: payment.ErrInvalidSignature}, &fakeMarker{})
	if resp := post(r, "/webhooks/stripe", `{}`); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}

	r = setupRouter(&fakeProvider{webhookErr: payment.ErrNotConfigured}, &fakeMarker{})
	if resp := post(r, "/webhooks/stripe", `{}`); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", resp.Code)
	}
}
