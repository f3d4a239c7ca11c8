package script

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/helpbyexperts/ava/backend/internal/model/script"
)

func setupRouter() *chi.Mux {
	custom := script.Seed()
	custom.ID = "plumbing"

	r := chi.NewRouter()
	New(script.NewMemoryStore(custom, script.Seed())).RegisterRoutes(r)
	return r
}

func get(r http.Handler, path string) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestActiveScript(t *testing.T) {
	resp := get(setupRouter(), "/api/script")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if body["id"] != "plumbing" {
		t.Fatalf("expected active script, got %v", body["id"])
	}
	if _, leaked := body["directive"]; leaked {
		t.Fatal("directive must not be exposed")
	}
}

func TestListScripts(t *testing.T) {
	resp := get(setupRouter(), "/api/scripts")
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var body []map[string]any
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode err: %v", err)
	}
	if len(body) != 2 {
		t.Fatalf("expected 2 scripts, got %d", len(body))
	}
}

func TestGetScriptByID(t *testing.T) {
	r := setupRouter()

	if resp := get(r, "/api/scripts/"+script.DefaultID); resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	if resp := get(r, "/api/scripts/nope"); resp.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Code)
	}
}
