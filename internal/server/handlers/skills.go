package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/daoyou-zhang/daoyoucode/internal/app"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	apperrors "github.com/daoyou-zhang/daoyoucode/internal/errors"
	"github.com/daoyou-zhang/daoyoucode/internal/server/middleware"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

const maxRequestBody = 1 << 20

// Runtime is the slice of the application the skill endpoints drive.
// *app.App satisfies it.
type Runtime interface {
	Execute(ctx context.Context, name string, input map[string]any, opts engine.ExecuteOptions) (*core.ExecutionResult, error)
	Followup(ctx context.Context, name string, input map[string]any, summary string, opts engine.ExecuteOptions) (*core.ExecutionResult, error)
	Stats() engine.Stats
	SkillStats(name string) (engine.SkillStats, bool)
	ListSkills() []*skill.Skill
	Resilience() app.Resilience
}

// ExecuteRequest is the body of the execute and followup endpoints.
type ExecuteRequest struct {
	Input map[string]any `json:"input"`
	// Summary is the prior result a followup builds on.
	Summary string `json:"summary,omitempty"`
	// Timeout is a Go duration string bounding the whole execution.
	Timeout string `json:"timeout,omitempty"`
}

// SkillSummary describes one registered skill.
type SkillSummary struct {
	Name        string   `json:"name"`
	Description string   `json:"description,omitempty"`
	Version     string   `json:"version,omitempty"`
	Model       string   `json:"model"`
	Required    []string `json:"required_inputs"`
	Outputs     []string `json:"outputs,omitempty"`
}

// SkillHandlers serves the /v1 API.
type SkillHandlers struct {
	Runtime Runtime
}

// Execute runs a skill in full mode.
func (h SkillHandlers) Execute(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, core.ModeFull)
}

// Followup runs a skill in followup mode.
func (h SkillHandlers) Followup(w http.ResponseWriter, r *http.Request) {
	h.run(w, r, core.ModeFollowup)
}

func (h SkillHandlers) run(w http.ResponseWriter, r *http.Request, mode core.Mode) {
	name := chi.URLParam(r, "name")
	body, err := decodeExecuteRequest(r)
	if err != nil {
		respondWithError(w, r, apperrors.Wrap(r.Context(), apperrors.CodeInvalidInput, err, "invalid request body"))
		return
	}

	opts := engine.ExecuteOptions{UserID: middleware.GetUserID(r.Context())}
	if body.Timeout != "" {
		timeout, err := time.ParseDuration(body.Timeout)
		if err != nil || timeout <= 0 {
			respondWithError(w, r, apperrors.NewInvalidInputError(fmt.Sprintf("invalid timeout %q", body.Timeout)))
			return
		}
		opts.Timeout = timeout
	}

	var result *core.ExecutionResult
	if mode == core.ModeFollowup {
		result, err = h.Runtime.Followup(r.Context(), name, body.Input, body.Summary, opts)
	} else {
		result, err = h.Runtime.Execute(r.Context(), name, body.Input, opts)
	}
	if err != nil {
		respondWithError(w, r, apperrors.FromExecutionError(r.Context(), err))
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func decodeExecuteRequest(r *http.Request) (ExecuteRequest, error) {
	var body ExecuteRequest
	if r.Body == nil {
		return body, nil
	}
	decoder := json.NewDecoder(io.LimitReader(r.Body, maxRequestBody))
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		return body, err
	}
	return body, nil
}

// Stats reports executor totals.
func (h SkillHandlers) Stats(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runtime.Stats())
}

// SkillStats reports totals for one skill.
func (h SkillHandlers) SkillStats(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	stats, ok := h.Runtime.SkillStats(name)
	if !ok {
		respondWithError(w, r, apperrors.NewNotFoundError(fmt.Sprintf("no executions recorded for skill %q", name)))
		return
	}
	writeJSON(w, http.StatusOK, stats)
}

// Resilience reports limiter, breaker and fallback state.
func (h SkillHandlers) Resilience(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Runtime.Resilience())
}

// Skills lists registered skills.
func (h SkillHandlers) Skills(w http.ResponseWriter, r *http.Request) {
	skills := h.Runtime.ListSkills()
	out := make([]SkillSummary, 0, len(skills))
	for _, sk := range skills {
		summary := SkillSummary{
			Name:        sk.Name,
			Description: strings.TrimSpace(sk.Description),
			Version:     sk.Version,
			Model:       sk.LLM.Model,
			Required:    sk.RequiredInputs(),
		}
		if summary.Required == nil {
			summary.Required = []string{}
		}
		for _, output := range sk.Outputs {
			summary.Outputs = append(summary.Outputs, output.Name)
		}
		out = append(out, summary)
	}
	writeJSON(w, http.StatusOK, map[string]any{"skills": out})
}
