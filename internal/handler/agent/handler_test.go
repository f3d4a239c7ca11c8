package agent

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/helpbyexperts/ava/backend/internal/model/chat"
	"github.com/helpbyexperts/ava/backend/internal/service/notify"
	"github.com/helpbyexperts/ava/backend/internal/service/triage"
)

type fakeManager struct {
	sessions map[string]chat.Session
	replies  []string
}

func newFakeManager() *fakeManager {
	return &fakeManager{sessions: map[string]chat.Session{
		"paid":   {ID: "paid", Paid: true, Category: "tech"},
		"unpaid": {ID: "unpaid"},
	}}
}

func (f *fakeManager) List(context.Context) []chat.Summary {
	return []chat.Summary{{ID: "paid", Paid: true}}
}

func (f *fakeManager) Session(_ context.Context, id string) (chat.Session, error) {
	s, ok := f.sessions[id]
	if !ok {
		return chat.Session{}, triage.ErrSessionNotFound
	}
	return s, nil
}

func (f *fakeManager) MarkPaid(_ context.Context, id string) bool {
	s, ok := f.sessions[id]
	if !ok || s.Paid {
		return false
	}
	s.Paid = true
	f.sessions[id] = s
	return true
}

func (f *fakeManager) AgentReply(_ context.Context, id, text string) (chat.Turn, error) {
	if strings.TrimSpace(text) == "" {
		return chat.Turn{}, triage.ErrEmptyMessage
	}
	s, ok := f.sessions[id]
	if !ok {
		return chat.Turn{}, triage.ErrSessionNotFound
	}
	if !s.Paid {
		return chat.Turn{}, triage.ErrNotPaid
	}
	f.replies = append(f.replies, text)
	return chat.Turn{ID: "t1", Sender: chat.SenderAgent, Text: text}, nil
}

func (f *fakeManager) Connected(id string) bool { return id == "paid" }

const testToken = "agent-s3cret"

func setupRouter(manager Manager, hub *notify.Hub, token string) *chi.Mux {
	r := chi.NewRouter()
	New(manager, hub, token, nil).RegisterRoutes(r)
	return r
}

func do(r http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewReader([]byte(body)))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestAgentRequiresToken(t *testing.T) {
	r := setupRouter(newFakeManager(), notify.NewHub(0, nil), "s3cret")

	if resp := do(r, http.MethodGet, "/api/agent/sessions", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, "/api/agent/sessions", "", "wrong"); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong token, got %d", resp.Code)
	}
	if resp := do(r, http.MethodGet, "/api/agent/sessions", "", "s3cret"); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
}

func TestAgentWithoutTokenRefusesEverything(t *testing.T) {
	manager := newFakeManager()
	r := setupRouter(manager, notify.NewHub(0, nil), "")

	if resp := do(r, http.MethodPost, "/api/agent/sessions/unpaid/paid", "", ""); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", resp.Code)
	}
	if manager.sessions["unpaid"].Paid {
		t.Fatal("session must not be marked paid without credentials")
	}
}

func TestAgentGetSession(t *testing.T) {
	r := setupRouter(newFakeManager(), notify.NewHub(0, nil), testToken)

	resp := do(r, http.MethodGet, "/api/agent/sessions/paid", "", testToken)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["connected"] != true || body["category"] != "tech" {
		t.Fatalf("unexpected session body %v", body)
	}

	if resp := do(r, http.MethodGet, "/api/agent/sessions/ghost", "", testToken); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAgentMarkPaid(t *testing.T) {
	r := setupRouter(newFakeManager(), notify.NewHub(0, nil), testToken)

	resp := do(r, http.MethodPost, "/api/agent/sessions/unpaid/paid", "", testToken)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"changed":true`) {
		t.Fatalf("expected transition, got %d %s", resp.Code, resp.Body.String())
	}
	resp = do(r, http.MethodPost, "/api/agent/sessions/unpaid/paid", "", testToken)
	if resp.Code != http.StatusOK || !strings.Contains(resp.Body.String(), `"changed":false`) {
		t.Fatalf("expected idempotent no-op, got %d %s", resp.Code, resp.Body.String())
	}
	if resp := do(r, http.MethodPost, "/api/agent/sessions/ghost/paid", "", testToken); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}

func TestAgentReply(t *testing.T) {
	manager := newFakeManager()
	r := setupRouter(manager, notify.NewHub(0, nil), testToken)

	cases := []struct {
		path string
		body string
		want int
	}{
		{"/api/agent/sessions/paid/reply", `{"message":"Hi, I'm your expert"}`, http.StatusCreated},
		{"/api/agent/sessions/paid/reply", `{"message":"  "}`, http.StatusBadRequest},
		{"/api/agent/sessions/unpaid/reply", `{"message":"hello"}`, http.StatusConflict},
		{"/api/agent/sessions/ghost/reply", `{"message":"hello"}`, http.StatusNotFound},
		{"/api/agent/sessions/paid/reply", `{oops`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		if resp := do(r, http.MethodPost, tc.path, tc.body, testToken); resp.Code != tc.want {
			t.Fatalf("%s %s: expected %d, got %d", tc.path, tc.body, tc.want, resp.Code)
		}
	}
	if len(manager.replies) != 1 || manager.replies[0] != "Hi, I'm your expert" {
		t.Fatalf("unexpected replies %v", manager.replies)
	}
}

func TestAgentEventsStream(t *testing.T) {
	hub := notify.NewHub(0, nil)
	defer hub.Close()
	server := httptest.NewServer(setupRouter(newFakeManager(), hub, testToken))
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, server.URL+"/api/agent/events", nil)
	req.Header.Set("Authorization", "Bearer "+testToken)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("events request: %v", err)
	}
	defer resp.Body.Close()

	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for hub.Subscribers() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(notify.Event{Type: notify.EventHandoff, SessionID: "abc", Category: "tech"})

	reader := bufio.NewReader(resp.Body)
	var sawEvent bool
	for {
		line, err := reader.ReadString('\n')
		if err != nil {
			t.Fatalf("read stream: %v", err)
		}
		line = strings.TrimSpace(line)
		if line == "event: handoff" {
			sawEvent = true
			continue
		}
		if sawEvent && strings.HasPrefix(line, "data: ") {
			var ev notify.Event
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev); err != nil {
				t.Fatalf("decode event: %v", err)
			}
			if ev.SessionID != "abc" || ev.Category != "tech" {
				t.Fatalf("unexpected event %+v", ev)
			}
			return
		}
	}
}
