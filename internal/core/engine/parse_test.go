package engine

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/skill"
)

func TestParseOutput(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    map[string]any
	}{
		{"object", `{"a": 1, "b": "x"}`, map[string]any{"a": float64(1), "b": "x"}},
		{"fenced json", "Here you go:\n```json\n{\"ok\": true}\n```\nThanks", map[string]any{"ok": true}},
		{"bare fence", "```\n{\"ok\": true}\n```", map[string]any{"ok": true}},
		{"array", `[1, 2]`, map[string]any{"response": `[1, 2]`}},
		{"prose", "not json", map[string]any{"response": "not json"}},
		{"other fence", "```go\nfunc x() {}\n```", map[string]any{"response": "```go\nfunc x() {}\n```"}},
		{"empty", "", map[string]any{"response": ""}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			require.Equal(t, tc.want, ParseOutput(tc.content))
		})
	}
}

func TestValidateOutput(t *testing.T) {
	sk := &skill.Skill{Outputs: []skill.Output{
		{Name: "level", Enum: []string{"low", "medium", "high"}},
		{Name: "score", Enum: []string{"1", "2"}},
		{Name: "free"},
	}}
	output := map[string]any{"level": "extreme", "score": float64(2), "free": "anything"}

	coerced := ValidateOutput(sk, output)
	require.Len(t, coerced, 1)
	require.Equal(t, "level", coerced[0].Output)
	require.Equal(t, "low", output["level"])
	require.Equal(t, float64(2), output["score"])
	require.Equal(t, "anything", output["free"])

	missing := map[string]any{}
	require.Empty(t, ValidateOutput(sk, missing))
	require.Empty(t, missing)
}

func TestStepDown(t *testing.T) {
	require.Equal(t, "claude-3-5-sonnet", StepDown(nil, "claude-3-opus"))
	require.Equal(t, "claude-3-5-haiku", StepDown(nil, "claude-3-5-sonnet"))
	require.Equal(t, "qwen-turbo", StepDown(nil, "qwen-plus"))
	require.Equal(t, "mystery", StepDown(nil, "mystery"))
	require.Equal(t, "cheap", StepDown(map[string]string{"gpt-4o": "cheap"}, "gpt-4o"))
	require.Equal(t, 1, FollowupMaxTokens(1))
	require.Equal(t, 0.3, FollowupTemperature(0.1))
}
