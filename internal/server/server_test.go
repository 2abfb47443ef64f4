package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/auth"
	"github.com/daoyou-zhang/daoyoucode/internal/config"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/server/handlers"
)

type staticProvider struct{}

func (staticProvider) Chat(_ context.Context, req core.ChatRequest) (core.Response, error) {
	return core.Response{Content: `{"explanation": "adds one", "complexity": "low"}`, Model: req.Model, TokensUsed: 7}, nil
}

type failingChecker struct{}

func (failingChecker) CheckHealth(context.Context) error { return errors.New("down") }

func newTestApp(t *testing.T) *app.App {
	t.Helper()
	a, err := app.Build(context.Background(), &config.Config{}, app.Options{SkipStore: true, Provider: staticProvider{}})
	require.NoError(t, err)
	t.Cleanup(func() { _ = a.Close() })
	return a
}

func TestServerUsesStandardErrorHandlers(t *testing.T) {
	srv := New(Options{Host: "127.0.0.1"})

	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rec.Code)
	}

	var body apperrors.HTTPErrorResponse
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode error response: %v", err)
	}

	if body.Error.Code != "NOT_FOUND" {
		t.Fatalf("expected error code NOT_FOUND, got %s", body.Error.Code)
	}
}

func TestServerExecutesSkillEndToEnd(t *testing.T) {
	srv := New(Options{Runtime: newTestApp(t)})

	req := httptest.NewRequest(http.MethodPost, "/v1/skills/explain-code/execute", strings.NewReader(`{"input": {"code": "x + 1"}}`))
	req.Header.Set("X-User-ID", "alice")
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "low", body["complexity"])

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/explain-code", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"executions":1`)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/skills/explain-code/execute", strings.NewReader(`{"input": {}}`)))
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/skills/nope/execute", strings.NewReader(`{"input": {}}`)))
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestServerRequiresBearerTokenWhenAuthEnabled(t *testing.T) {
	settings := auth.Settings{Secret: "s3cret"}
	srv := New(Options{Runtime: newTestApp(t), Auth: &settings})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/skills", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	token, err := auth.Sign(settings, "alice", time.Hour, time.Now())
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodGet, "/v1/skills", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "code-review")
}

func TestServerHealthUsesInjectedManager(t *testing.T) {
	hm := handlers.NewHealthManager("test")
	hm.RegisterChecker("store", failingChecker{})
	srv := New(Options{Health: hm})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/ready", nil))
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestServerOptionalEndpoints(t *testing.T) {
	srv := New(Options{DisableHealth: true, Pprof: true})

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/live", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/debug/pprof/cmdline", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
