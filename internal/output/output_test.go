package output

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
	"github.com/daoyou-zhang/daoyoucode/internal/core/breaker"
	"github.com/daoyou-zhang/daoyoucode/internal/core/engine"
	"github.com/daoyou-zhang/daoyoucode/internal/core/fallback"
	"github.com/daoyou-zhang/daoyoucode/internal/core/ratelimit"
	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

func TestParseFormat(t *testing.T) {
	format, err := ParseFormat("table")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	format, err = ParseFormat("JSON")
	require.NoError(t, err)
	require.Equal(t, FormatJSON, format)

	format, err = ParseFormat("md")
	require.NoError(t, err)
	require.Equal(t, FormatMarkdown, format)

	format, err = ParseFormat("")
	require.NoError(t, err)
	require.Equal(t, FormatTable, format)

	_, err = ParseFormat("csv")
	require.Error(t, err)
}

func sampleStats() engine.Stats {
	return engine.Stats{
		TotalExecutions:      3,
		SuccessfulExecutions: 2,
		FailedExecutions:     1,
		TotalTokens:          420,
		TotalCost:            0.0125,
		AverageTime:          1.5,
		Skills: map[string]engine.SkillStats{
			"explain-code": {Executions: 2, Successes: 2, TotalTokens: 300, AverageTokens: 150},
			"review-diff":  {Executions: 1, Failures: 1},
		},
		Models: map[string]engine.ModelStats{
			"claude-3-5-sonnet": {Executions: 3, Failures: 1, TotalTokens: 420},
		},
	}
}

func TestStatsReport(t *testing.T) {
	report := StatsReport(sampleStats())
	require.Len(t, report.Tables, 3)

	rendered, err := Render(FormatTable, report)
	require.NoError(t, err)
	require.Contains(t, rendered, "explain-code")
	require.Contains(t, rendered, "claude-3-5-sonnet")
	require.Contains(t, rendered, "$0.0125")
	require.Less(t, strings.Index(rendered, "explain-code"), strings.Index(rendered, "review-diff"))

	rendered, err = Render(FormatJSON, report)
	require.NoError(t, err)
	var decoded map[string]any
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.EqualValues(t, 3, decoded["total_executions"])

	rendered, err = Render(FormatMarkdown, report)
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(rendered, "## Execution statistics"))
	require.Contains(t, rendered, "| explain-code |")
}

func TestStatsReportWithoutBreakdowns(t *testing.T) {
	report := StatsReport(engine.Stats{})
	require.Len(t, report.Tables, 1)
}

func TestResultReport(t *testing.T) {
	result := &core.ExecutionResult{
		Output: map[string]any{
			"summary": "adds two numbers",
			"tags":    []any{"math", "pure"},
		},
		Metadata: core.Metadata{
			Skill:          "explain-code",
			Model:          "gpt-4o",
			RequestedModel: "claude-3-5-sonnet",
			TokensUsed:     42,
			Mode:           core.ModeFull,
		},
	}
	rendered, err := Render(FormatTable, ResultReport(result))
	require.NoError(t, err)
	require.Contains(t, rendered, "adds two numbers")
	require.Contains(t, rendered, "math, pure")
	require.Contains(t, rendered, "gpt-4o (requested claude-3-5-sonnet)")

	rendered, err = Render(FormatJSON, ResultReport(result))
	require.NoError(t, err)
	require.Contains(t, rendered, `"_metadata"`)

	rendered, err = Render(FormatTable, ResultReport(nil))
	require.NoError(t, err)
	require.Equal(t, "(no result)", rendered)
}

func TestHistoryReport(t *testing.T) {
	records := []core.ExecutionRecord{
		{
			ID: "a", Skill: "explain-code", Mode: core.ModeFull, UserID: "alice",
			RequestedModel: "claude-3-5-sonnet", Model: "gpt-4o", Success: true,
			TokensUsed: 10, StartedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
		},
		{
			ID: "b", Skill: "review-diff", Mode: core.ModeFollowup,
			RequestedModel: "gpt-4o", Error: "rate limit exceeded",
			StartedAt: time.Date(2026, 1, 2, 3, 5, 0, 0, time.UTC),
		},
	}
	rendered, err := Render(FormatTable, HistoryReport(records))
	require.NoError(t, err)
	require.Contains(t, rendered, "2026-01-02T03:04:05Z")
	require.Contains(t, rendered, "gpt-4o <- claude-3-5-sonnet")
	require.Contains(t, rendered, "failed: rate limit exceeded")
	require.Contains(t, strings.ToLower(rendered), "2 records")

	rendered, err = Render(FormatTable, HistoryReport(nil))
	require.NoError(t, err)
	require.Equal(t, "(no executions recorded)", rendered)
}

func TestSkillsReport(t *testing.T) {
	skills := []*skill.Skill{{
		Name:    "explain-code",
		LLM:     skill.LLMConfig{Model: "claude-3-5-sonnet"},
		Inputs:  []skill.Input{{Name: "code", Required: true}, {Name: "language"}},
		Outputs: []skill.Output{{Name: "summary"}},
	}}
	rendered, err := Render(FormatTable, SkillsReport(skills))
	require.NoError(t, err)
	require.Contains(t, rendered, "code*, language")
}

func TestResilienceReports(t *testing.T) {
	limits := ratelimit.Stats{
		Global: &ratelimit.BucketStats{Capacity: 100, RefillRate: 10, AvailableTokens: 99},
		Users:  map[string]ratelimit.BucketStats{"alice": {Capacity: 10, RefillRate: 1, AvailableTokens: 9}},
		Models: map[string]ratelimit.WindowStats{"gpt-4o": {WindowSize: time.Minute, MaxRequests: 60, Count: 1}},
	}
	chains := []fallback.Info{{Model: "claude-3-opus", HasFallback: true, ChainLength: 2, Chain: []string{"claude-3-5-sonnet", "gpt-4o"}}}
	breakers := []breaker.Snapshot{{Model: "gpt-4o", State: breaker.StateOpen, ConsecutiveFailures: 5, LastError: "boom"}}

	merged := Merge("Resilience", map[string]Report{
		"rate_limits": RateLimitReport(limits),
		"fallbacks":   FallbackReport(chains, fallback.Stats{TotalCalls: 4, FallbackUsed: 1}),
		"breakers":    BreakerReport(breakers, breaker.DefaultConfig()),
	}, "rate_limits", "fallbacks", "breakers")

	rendered, err := Render(FormatTable, merged)
	require.NoError(t, err)
	require.Contains(t, rendered, "alice")
	require.Contains(t, rendered, "1m0s")
	require.Contains(t, rendered, "claude-3-5-sonnet -> gpt-4o")
	require.Contains(t, rendered, "open")

	rendered, err = Render(FormatJSON, merged)
	require.NoError(t, err)
	var decoded map[string]json.RawMessage
	require.NoError(t, json.Unmarshal([]byte(rendered), &decoded))
	require.Contains(t, decoded, "rate_limits")
	require.Contains(t, decoded, "fallbacks")
	require.Contains(t, decoded, "breakers")
}

func TestRateLimitReportEmpty(t *testing.T) {
	rendered, err := Render(FormatMarkdown, RateLimitReport(ratelimit.Stats{}))
	require.NoError(t, err)
	require.Contains(t, rendered, "(no rate limits configured)")
}

func TestTruncate(t *testing.T) {
	require.Equal(t, "short", truncate("short", 10))
	require.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	require.Equal(t, "a b", truncate("a\nb", 10))
}
