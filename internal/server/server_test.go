package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"scopeline/internal/config"
	"scopeline/internal/db"
	"scopeline/internal/engine"
	"scopeline/internal/migrate"
	"scopeline/internal/server"
	"scopeline/internal/template"
)

func newTestServer(t *testing.T) http.Handler {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	store, err := template.NewStore(zerolog.Nop())
	if err != nil {
		t.Fatalf("store: %v", err)
	}
	eng := engine.New(conn, store, config.Default())
	eng.Now = func() time.Time { return time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC) }
	handler, err := server.New(server.Config{
		Engine: eng,
		Auth: server.AuthConfig{
			JWTSecret:              "test-secret",
			AllowLegacyActorHeader: true,
			Logger:                 zerolog.Nop(),
		},
		Log: zerolog.Nop(),
	})
	if err != nil {
		t.Fatalf("server: %v", err)
	}
	return handler
}

type errorEnvelope struct {
	Error struct {
		Code    string         `json:"code"`
		Message string         `json:"message"`
		Details map[string]any `json:"details"`
	} `json:"error"`
}

func doJSON(t *testing.T, h http.Handler, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder, out any) {
	t.Helper()
	if err := json.Unmarshal(rec.Body.Bytes(), out); err != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), err)
	}
}

var actorHeader = map[string]string{"X-Actor-Id": "tester"}

func createEngagement(t *testing.T, h http.Handler) string {
	t.Helper()
	rec := doJSON(t, h, http.MethodPost, "/v0/engagements", map[string]string{"client_name": "Acme GmbH"}, actorHeader)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		ID    string `json:"id"`
		Phase string `json:"phase"`
	}
	decode(t, rec, &out)
	if out.Phase != "discovery" {
		t.Fatalf("phase = %s, want discovery", out.Phase)
	}
	return out.ID
}

func TestRequiresAuthentication(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/v0/engagements", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var env errorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != "unauthorized" {
		t.Fatalf("code = %s, want unauthorized", env.Error.Code)
	}
}

func TestHealthIsOpen(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/v0/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestDevLoginMintsUsableToken(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodPost, "/v0/auth/dev/login", map[string]string{"actor_id": "dev-1"}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dev login = %d: %s", rec.Code, rec.Body.String())
	}
	var out struct {
		Token string `json:"token"`
	}
	decode(t, rec, &out)
	if out.Token == "" {
		t.Fatal("empty token")
	}

	rec = doJSON(t, h, http.MethodPost, "/v0/engagements", map[string]string{"client_name": "Tokenized"}, map[string]string{
		"Authorization": "Bearer " + out.Token,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("authed create = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v0/me", nil, map[string]string{"Authorization": "Bearer " + out.Token})
	if rec.Code != http.StatusOK {
		t.Fatalf("me = %d: %s", rec.Code, rec.Body.String())
	}
	var me struct {
		ActorID string `json:"actor_id"`
	}
	decode(t, rec, &me)
	if me.ActorID != "dev-1" {
		t.Fatalf("actor = %s, want dev-1", me.ActorID)
	}
}

func TestBadBearerTokenRejected(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/v0/engagements", nil, map[string]string{"Authorization": "Bearer not-a-jwt"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
	var env errorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != "invalid_credentials" {
		t.Fatalf("code = %s, want invalid_credentials", env.Error.Code)
	}
}

func TestEngagementRoundTrip(t *testing.T) {
	h := newTestServer(t)
	id := createEngagement(t, h)

	rec := doJSON(t, h, http.MethodPut, "/v0/engagements/"+id+"/services", map[string]any{
		"services": []string{"data-migration"},
	}, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("set services = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodPatch, "/v0/engagements/"+id+"/services/data-migration/answers", map[string]any{
		"values": map[string]any{"existing_data": "no", "cutover_date": "2026-09-01"},
	}, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("record answers = %d: %s", rec.Code, rec.Body.String())
	}
	var set struct {
		Complete bool     `json:"complete"`
		Missing  []string `json:"missing_required"`
	}
	decode(t, rec, &set)
	if !set.Complete || len(set.Missing) != 0 {
		t.Fatalf("answer set = %+v, want complete", set)
	}

	rec = doJSON(t, h, http.MethodGet, "/v0/engagements/"+id+"/status", nil, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var status struct {
		Phase             string  `json:"phase"`
		CompletionPercent float64 `json:"completion_percent"`
	}
	decode(t, rec, &status)
	if status.Phase != "discovery" || status.CompletionPercent != 100 {
		t.Fatalf("status = %+v", status)
	}
}

func TestBlockedTransitionReturns422(t *testing.T) {
	h := newTestServer(t)
	id := createEngagement(t, h)

	rec := doJSON(t, h, http.MethodPost, "/v0/engagements/"+id+"/phase", map[string]string{
		"target": "awaiting_client_decision",
	}, actorHeader)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var env errorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != "transition_blocked" {
		t.Fatalf("code = %s, want transition_blocked", env.Error.Code)
	}
}

func TestUnknownServiceIsBadRequest(t *testing.T) {
	h := newTestServer(t)
	id := createEngagement(t, h)

	rec := doJSON(t, h, http.MethodPut, "/v0/engagements/"+id+"/services", map[string]any{
		"services": []string{"nope"},
	}, actorHeader)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var env errorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != "bad_request" {
		t.Fatalf("code = %s, want bad_request", env.Error.Code)
	}
}

func TestMissingEngagementEnvelope(t *testing.T) {
	h := newTestServer(t)
	rec := doJSON(t, h, http.MethodGet, "/v0/engagements/00000000-0000-0000-0000-000000000000", nil, actorHeader)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d: %s", rec.Code, rec.Body.String())
	}
	var env errorEnvelope
	decode(t, rec, &env)
	if env.Error.Code != "not_found" {
		t.Fatalf("code = %s, want not_found", env.Error.Code)
	}
}

func TestTemplateEndpoints(t *testing.T) {
	h := newTestServer(t)

	rec := doJSON(t, h, http.MethodGet, "/v0/templates", nil, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("templates = %d: %s", rec.Code, rec.Body.String())
	}
	var list []struct {
		ServiceID string `json:"service_id"`
	}
	decode(t, rec, &list)
	if len(list) != 5 {
		t.Fatalf("templates = %d, want 5", len(list))
	}

	rec = doJSON(t, h, http.MethodGet, "/v0/templates/lint", nil, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("lint = %d: %s", rec.Code, rec.Body.String())
	}
}

func TestExportDocument(t *testing.T) {
	h := newTestServer(t)
	id := createEngagement(t, h)
	rec := doJSON(t, h, http.MethodPut, fmt.Sprintf("/v0/engagements/%s/services", id), map[string]any{
		"services": []string{"impl-crm"},
	}, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("set services = %d: %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, h, http.MethodGet, "/v0/engagements/"+id+"/export/document", nil, actorHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("export = %d: %s", rec.Code, rec.Body.String())
	}
	if !bytes.Contains(rec.Body.Bytes(), []byte("Acme GmbH")) {
		t.Fatalf("document missing client name: %s", rec.Body.String())
	}
}
