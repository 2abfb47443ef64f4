package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	"github.com/daoyou-zhang/daoyoucode/internal/server/middleware"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

type fakeRuntime struct {
	err      error
	lastName string
	lastOpts engine.ExecuteOptions
	summary  string
}

func (f *fakeRuntime) Execute(_ context.Context, name string, input map[string]any, opts engine.ExecuteOptions) (*core.ExecutionResult, error) {
	f.lastName, f.lastOpts = name, opts
	if f.err != nil {
		return nil, f.err
	}
	return &core.ExecutionResult{
		Output:   map[string]any{"echo": input["code"]},
		Metadata: core.Metadata{Skill: name, Model: "gpt-4o", Mode: core.ModeFull},
	}, nil
}

func (f *fakeRuntime) Followup(ctx context.Context, name string, input map[string]any, summary string, opts engine.ExecuteOptions) (*core.ExecutionResult, error) {
	f.summary = summary
	return f.Execute(ctx, name, input, opts)
}

func (f *fakeRuntime) Stats() engine.Stats {
	return engine.Stats{TotalExecutions: 3}
}

func (f *fakeRuntime) SkillStats(name string) (engine.SkillStats, bool) {
	if name == "code-review" {
		return engine.SkillStats{Executions: 2}, true
	}
	return engine.SkillStats{}, false
}

func (f *fakeRuntime) ListSkills() []*skill.Skill {
	return []*skill.Skill{{
		Name:    "code-review",
		LLM:     skill.LLMConfig{Model: "claude-3-5-sonnet"},
		Inputs:  []skill.Input{{Name: "code", Required: true}},
		Outputs: []skill.Output{{Name: "verdict"}},
	}}
}

func (f *fakeRuntime) Resilience() app.Resilience {
	return app.Resilience{}
}

func newTestRouter(rt Runtime) http.Handler {
	h := SkillHandlers{Runtime: rt}
	r := chi.NewRouter()
	r.Use(middleware.TrustUserHeader)
	r.Post("/v1/skills/{name}/execute", h.Execute)
	r.Post("/v1/skills/{name}/followup", h.Followup)
	r.Get("/v1/skills", h.Skills)
	r.Get("/v1/stats", h.Stats)
	r.Get("/v1/stats/{name}", h.SkillStats)
	r.Get("/v1/resilience", h.Resilience)
	return r
}

func TestExecuteEndpoint(t *testing.T) {
	rt := &fakeRuntime{}
	router := newTestRouter(rt)

	req := httptest.NewRequest(http.MethodPost, "/v1/skills/code-review/execute",
		strings.NewReader(`{"input": {"code": "x := 1"}, "timeout": "5s"}`))
	req.Header.Set(middleware.UserIDHeader, "alice")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "code-review", rt.lastName)
	require.Equal(t, "alice", rt.lastOpts.UserID)
	require.Equal(t, 5*time.Second, rt.lastOpts.Timeout)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Equal(t, "x := 1", body["echo"])
	metadata, ok := body[core.MetadataKey].(map[string]any)
	require.True(t, ok)
	require.Equal(t, "gpt-4o", metadata["model"])
}

func TestFollowupEndpointPassesSummary(t *testing.T) {
	rt := &fakeRuntime{}
	req := httptest.NewRequest(http.MethodPost, "/v1/skills/code-review/followup",
		strings.NewReader(`{"input": {"message": "why?"}, "summary": "looked fine"}`))
	rec := httptest.NewRecorder()
	newTestRouter(rt).ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "looked fine", rt.summary)
	require.Empty(t, rt.lastOpts.UserID)
}

func TestExecuteEndpointMapsErrors(t *testing.T) {
	cases := []struct {
		err    error
		status int
	}{
		{&core.SkillExecutionError{Skill: "s", Err: &core.ValidationError{Skill: "s", Missing: []string{"code"}}}, http.StatusBadRequest},
		{&core.SkillExecutionError{Skill: "s", Err: &core.RateLimitError{Gate: "global"}}, http.StatusTooManyRequests},
		{&core.SkillExecutionError{Skill: "s", Err: core.ErrTimeout}, http.StatusGatewayTimeout},
		{&core.SkillExecutionError{Skill: "s", Err: &core.FallbackExhaustedError{Chain: []string{"a"}}}, http.StatusBadGateway},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPost, "/v1/skills/s/execute", strings.NewReader(`{"input": {}}`))
		newTestRouter(&fakeRuntime{err: tc.err}).ServeHTTP(rec, req)
		require.Equal(t, tc.status, rec.Code, tc.err.Error())
	}
}

func TestExecuteEndpointRejectsBadBodies(t *testing.T) {
	router := newTestRouter(&fakeRuntime{})
	for _, body := range []string{`{"input": `, `{"unknown": 1}`, `{"timeout": "soon"}`, `{"timeout": "-1s"}`} {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/v1/skills/s/execute", strings.NewReader(body)))
		require.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestStatsAndSkillsEndpoints(t *testing.T) {
	router := newTestRouter(&fakeRuntime{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), `"total_executions":3`)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/code-review", nil))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/stats/unknown", nil))
	require.Equal(t, http.StatusNotFound, rec.Code)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/skills", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var listing struct {
		Skills []SkillSummary `json:"skills"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &listing))
	require.Len(t, listing.Skills, 1)
	require.Equal(t, []string{"code"}, listing.Skills[0].Required)
	require.Equal(t, []string{"verdict"}, listing.Skills[0].Outputs)

	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/resilience", nil))
	require.Equal(t, http.StatusOK, rec.Code)
}
