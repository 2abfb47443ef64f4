// Package engine runs skills against LLM providers behind admission control,
// fallback chains and circuit breakers.
package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/fulmenhq/gofulmen/logging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/core/breaker"
	"github.com/daoyou-zhang/daoyoucode/internal/metrics"
	"github.com/daoyou-zhang/daoyoucode/internal/observability"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

// DefaultTimeout bounds an execution when neither the call nor the executor sets one.
const DefaultTimeout = 60 * time.Second

// ExecuteOptions carries per-call settings.
type ExecuteOptions struct {
	UserID  string
	Timeout time.Duration
}

// Executor runs skills in full or followup mode.
type Executor struct {
	Provider ProviderClient
	Limiter  Admitter
	Fallback Fallback
	Breaker  breaker.Breaker
	Renderer Renderer
	Recorder Recorder

	// Tiers overrides DefaultTiers for followup step-down.
	Tiers          map[string]string
	DefaultTimeout time.Duration
	Logger         *logging.Logger
	Clock          func() time.Time
	NewID          func() string

	stats statsBook
}

// Execute validates the context, renders the skill prompt and runs it.
func (e *Executor) Execute(ctx context.Context, sk *skill.Skill, input map[string]any, opts ExecuteOptions) (*core.ExecutionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sk == nil {
		return nil, &core.SkillExecutionError{Mode: core.ModeFull, Message: "skill is required"}
	}

	start := e.now()
	rec := e.newRecord(sk, core.ModeFull, sk.LLM.Model, opts, start)

	if missing := missingInputs(sk, input); len(missing) > 0 {
		err := &core.SkillExecutionError{
			Skill:   sk.Name,
			Mode:    core.ModeFull,
			Message: "validation failed",
			Err:     &core.ValidationError{Skill: sk.Name, Missing: missing},
		}
		e.finish(ctx, rec, start, err)
		return nil, err
	}

	vars := mergeDefaults(sk, input)
	req := core.ChatRequest{
		System:      e.render(sk, "system", sk.System, vars),
		Prompt:      e.render(sk, "prompt", sk.Prompt, vars),
		Model:       sk.LLM.Model,
		Temperature: sk.LLM.Temperature,
		MaxTokens:   sk.LLM.MaxTokens,
		Skill:       sk.Name,
		UserID:      opts.UserID,
		JSONMode:    len(sk.Outputs) > 0,
	}
	return e.run(ctx, sk, core.ModeFull, req, opts, rec, start)
}

// ExecuteFollowup sends only summary and the new user message, on a cheaper
// model with half the token budget and a lower temperature.
func (e *Executor) ExecuteFollowup(ctx context.Context, sk *skill.Skill, input map[string]any, summary string, opts ExecuteOptions) (*core.ExecutionResult, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if sk == nil {
		return nil, &core.SkillExecutionError{Mode: core.ModeFollowup, Message: "skill is required"}
	}

	start := e.now()
	req := FollowupRequest(sk, input, summary, e.Tiers)
	req.UserID = opts.UserID
	rec := e.newRecord(sk, core.ModeFollowup, req.Model, opts, start)

	if strings.TrimSpace(req.Prompt) == "" {
		err := &core.SkillExecutionError{
			Skill:   sk.Name,
			Mode:    core.ModeFollowup,
			Message: "followup needs a message or summary",
			Err:     &core.ValidationError{Skill: sk.Name, Missing: []string{"message"}},
		}
		e.finish(ctx, rec, start, err)
		return nil, err
	}
	return e.run(ctx, sk, core.ModeFollowup, req, opts, rec, start)
}

// FollowupRequest builds the reduced request used by ExecuteFollowup.
func FollowupRequest(sk *skill.Skill, input map[string]any, summary string, tiers map[string]string) core.ChatRequest {
	return core.ChatRequest{
		Prompt:      followupPrompt(summary, followupMessage(input)),
		Model:       StepDown(tiers, sk.LLM.Model),
		Temperature: FollowupTemperature(sk.LLM.Temperature),
		MaxTokens:   FollowupMaxTokens(sk.LLM.MaxTokens),
		Skill:       sk.Name,
		JSONMode:    len(sk.Outputs) > 0,
	}
}

// Stats returns a snapshot of all counters.
func (e *Executor) Stats() Stats {
	return e.stats.snapshot()
}

// SkillStats returns the counters for one skill.
func (e *Executor) SkillStats(name string) (SkillStats, bool) {
	return e.stats.skill(name)
}

// ResetStats clears all counters.
func (e *Executor) ResetStats() {
	e.stats.reset()
}

func (e *Executor) run(ctx context.Context, sk *skill.Skill, mode core.Mode, req core.ChatRequest, opts ExecuteOptions, rec core.ExecutionRecord, start time.Time) (*core.ExecutionResult, error) {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = e.DefaultTimeout
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if e.Limiter != nil {
		if err := e.Limiter.Acquire(runCtx, opts.UserID, req.Model, timeout); err != nil {
			var limitErr *core.RateLimitError
			if errors.As(err, &limitErr) {
				metrics.RecordAdmissionDenied(limitErr.Gate)
			}
			wrapped := e.wrapRunError(ctx, runCtx, sk, mode, "rate limit exceeded", timeout, err)
			e.finish(ctx, rec, start, wrapped)
			return nil, wrapped
		}
	}

	resp, used, err := e.callWithFallback(runCtx, req)
	if err != nil {
		wrapped := e.wrapRunError(ctx, runCtx, sk, mode, "provider call failed", timeout, err)
		e.finish(ctx, rec, start, wrapped)
		return nil, wrapped
	}

	output := ParseOutput(resp.Content)
	e.postprocess(sk, output)

	latency := e.now().Sub(start)
	rec.Model = used
	rec.TokensUsed = resp.TokensUsed
	rec.Cost = resp.Cost
	rec.Cached = resp.Cached

	result := &core.ExecutionResult{
		Output: output,
		Metadata: core.Metadata{
			ExecutionID:    rec.ID,
			Skill:          sk.Name,
			Model:          used,
			RequestedModel: req.Model,
			TokensUsed:     resp.TokensUsed,
			Cost:           resp.Cost,
			Latency:        latency.Seconds(),
			Mode:           mode,
			Cached:         resp.Cached,
		},
	}
	e.finish(ctx, rec, start, nil)
	return result, nil
}

func (e *Executor) callWithFallback(ctx context.Context, req core.ChatRequest) (core.Response, string, error) {
	if e.Provider == nil {
		return core.Response{}, "", fmt.Errorf("provider client not configured")
	}
	guard := e.Breaker
	if guard == nil {
		guard = breaker.Passthrough{}
	}

	call := func(ctx context.Context, model string) (core.Response, error) {
		return guard.Call(ctx, model, func(ctx context.Context, model string) (core.Response, error) {
			candidate := req
			candidate.Model = model
			return e.Provider.Chat(ctx, candidate)
		})
	}

	if e.Fallback == nil {
		resp, err := call(ctx, req.Model)
		return resp, req.Model, err
	}
	return e.Fallback.ExecuteWithFallback(ctx, req.Model, call)
}

// wrapRunError converts a pipeline failure into the executor's error type.
// Deadline expiry of the execution itself is reported as a timeout.
func (e *Executor) wrapRunError(parent, runCtx context.Context, sk *skill.Skill, mode core.Mode, message string, timeout time.Duration, err error) error {
	if parent.Err() == nil && errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		return &core.SkillExecutionError{
			Skill:   sk.Name,
			Mode:    mode,
			Message: "timed out",
			Err:     fmt.Errorf("%w after %s: %w", core.ErrTimeout, timeout, err),
		}
	}
	if parentErr := parent.Err(); parentErr != nil && !errors.Is(err, parentErr) {
		err = fmt.Errorf("%w: %w", parentErr, err)
	}
	return &core.SkillExecutionError{Skill: sk.Name, Mode: mode, Message: message, Err: err}
}

func (e *Executor) postprocess(sk *skill.Skill, output map[string]any) {
	for _, step := range sk.Postprocess {
		switch strings.ToLower(strings.TrimSpace(step)) {
		case skill.PostprocessValidateOutput:
			for _, c := range ValidateOutput(sk, output) {
				e.logDebug("Coerced enum output to first declared value",
					zap.String("skill", sk.Name),
					zap.String("output", c.Output),
					zap.Any("from", c.From),
					zap.String("to", c.To))
			}
		default:
			e.logDebug("Skipping unknown postprocess step",
				zap.String("skill", sk.Name),
				zap.String("step", step))
		}
	}
}

func (e *Executor) render(sk *skill.Skill, part, template string, vars map[string]any) string {
	if strings.TrimSpace(template) == "" || e.Renderer == nil {
		return template
	}
	rendered, err := e.Renderer.Render(template, vars)
	if err != nil {
		e.logWarn("Template render failed, using raw template",
			zap.String("skill", sk.Name),
			zap.String("part", part),
			zap.Error(err))
		return template
	}
	return rendered
}

func (e *Executor) newRecord(sk *skill.Skill, mode core.Mode, model string, opts ExecuteOptions, start time.Time) core.ExecutionRecord {
	return core.ExecutionRecord{
		ID:             e.newID(),
		Skill:          sk.Name,
		Mode:           mode,
		UserID:         opts.UserID,
		RequestedModel: model,
		StartedAt:      start,
	}
}

// finish updates stats, metrics and the recorder for every outcome.
func (e *Executor) finish(ctx context.Context, rec core.ExecutionRecord, start time.Time, err error) {
	elapsed := e.now().Sub(start)
	rec.Duration = elapsed.Seconds()
	rec.Success = err == nil
	if err != nil {
		rec.Error = err.Error()
	}

	e.stats.record(rec)
	metrics.RecordExecution(rec.Skill, string(rec.Mode), rec.Success, elapsed)

	fields := observability.ExecutionFields(rec.ID, rec.Skill, string(rec.Mode), rec.UserID)
	if err != nil {
		e.logWarn("Skill execution failed", append(fields, zap.Error(err))...)
	} else {
		e.logDebug("Skill execution completed", append(fields,
			zap.String("model", rec.Model),
			zap.Int("tokens", rec.TokensUsed),
			zap.Duration("duration", elapsed))...)
	}

	if e.Recorder != nil {
		if recErr := e.Recorder.RecordExecution(context.WithoutCancel(ctx), rec); recErr != nil {
			e.logWarn("Failed to record execution",
				zap.String("execution_id", rec.ID),
				zap.Error(recErr))
		}
	}
}

func missingInputs(sk *skill.Skill, input map[string]any) []string {
	var missing []string
	for _, name := range sk.RequiredInputs() {
		value, ok := input[name]
		if !ok || value == nil {
			missing = append(missing, name)
			continue
		}
		if text, isText := value.(string); isText && strings.TrimSpace(text) == "" {
			missing = append(missing, name)
		}
	}
	return missing
}

func mergeDefaults(sk *skill.Skill, input map[string]any) map[string]any {
	vars := make(map[string]any, len(input)+len(sk.Inputs))
	for _, declared := range sk.Inputs {
		if declared.Default != nil {
			vars[declared.Name] = declared.Default
		}
	}
	for key, value := range input {
		vars[key] = value
	}
	return vars
}

var followupMessageKeys = []string{"message", "input", "query"}

func followupMessage(input map[string]any) string {
	for _, key := range followupMessageKeys {
		if value, ok := input[key]; ok && value != nil {
			text := strings.TrimSpace(fmt.Sprint(value))
			if text != "" {
				return text
			}
		}
	}
	return ""
}

func followupPrompt(summary, message string) string {
	summary = strings.TrimSpace(summary)
	switch {
	case summary == "":
		return message
	case message == "":
		return "Context summary:\n" + summary
	default:
		return "Context summary:\n" + summary + "\n\nUser: " + message
	}
}

func (e *Executor) now() time.Time {
	if e != nil && e.Clock != nil {
		return e.Clock()
	}
	return time.Now().UTC()
}

func (e *Executor) newID() string {
	if e.NewID != nil {
		return e.NewID()
	}
	return uuid.NewString()
}

func (e *Executor) logger() *logging.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return observability.Default()
}

func (e *Executor) logWarn(msg string, fields ...zap.Field) {
	if logger := e.logger(); logger != nil {
		logger.Warn(msg, fields...)
	}
}

func (e *Executor) logDebug(msg string, fields ...zap.Field) {
	if logger := e.logger(); logger != nil {
		logger.Debug(msg, fields...)
	}
}
