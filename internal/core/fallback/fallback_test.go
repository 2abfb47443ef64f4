package fallback

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

// scripted fails for every model listed in failures and records call order.
type scripted struct {
	failures map[string]error
	calls    []string
}

func (s *scripted) call(_ context.Context, model string) (core.Response, error) {
	s.calls = append(s.calls, model)
	if err, ok := s.failures[model]; ok {
		return core.Response{}, err
	}
	return core.Response{Content: "answer from " + model, Model: model}, nil
}

func TestFallbackChainStartsWithRequestedModel(t *testing.T) {
	strategy := New(nil)

	properties := gopter.NewProperties(nil)
	properties.Property("chain head is the requested model", prop.ForAll(
		func(model string) bool {
			chain := strategy.FallbackChain(model)
			return len(chain) >= 1 && chain[0] == model
		},
		gen.OneGenOf(gen.AnyString(), gen.OneConstOf("claude-3-opus", "gpt-4o", "qwen-max", "unknown")),
	))
	properties.TestingRun(t)
}

func TestPrimarySuccessDoesNotCountAsFallback(t *testing.T) {
	strategy := New(map[string][]string{"A": {"B"}})
	script := &scripted{}

	resp, used, err := strategy.ExecuteWithFallback(context.Background(), "A", script.call)
	require.NoError(t, err)
	require.Equal(t, "A", used)
	require.Equal(t, "answer from A", resp.Content)
	require.Equal(t, []string{"A"}, script.calls)

	stats := strategy.Stats()
	require.EqualValues(t, 1, stats.TotalCalls)
	require.Zero(t, stats.FallbackUsed)
	require.Zero(t, stats.FallbackSuccess)
}

func TestFallbackWalksChainInOrder(t *testing.T) {
	strategy := New(map[string][]string{"A": {"B", "C"}})
	script := &scripted{failures: map[string]error{
		"A": errors.New("A down"),
		"B": &core.CircuitOpenError{Model: "B"},
	}}

	var observed []string
	strategy.OnFallback = func(requested, served string) {
		observed = append(observed, requested+"->"+served)
	}

	resp, used, err := strategy.ExecuteWithFallback(context.Background(), "A", script.call)
	require.NoError(t, err)
	require.Equal(t, "C", used)
	require.Equal(t, "answer from C", resp.Content)
	require.Equal(t, []string{"A", "B", "C"}, script.calls)
	require.Equal(t, []string{"A->C"}, observed)

	stats := strategy.Stats()
	require.EqualValues(t, 1, stats.FallbackUsed)
	require.EqualValues(t, 1, stats.FallbackSuccess)
	require.Zero(t, stats.FallbackFailed)
	require.EqualValues(t, 1, stats.Models["C"].Served)
	require.EqualValues(t, 1, stats.Models["B"].Failed)
}

func TestFallbackExhaustion(t *testing.T) {
	strategy := New(map[string][]string{"A": {"B"}})
	lastErr := errors.New("B exploded")
	script := &scripted{failures: map[string]error{
		"A": errors.New("A down"),
		"B": lastErr,
	}}

	_, used, err := strategy.ExecuteWithFallback(context.Background(), "A", script.call)
	require.Empty(t, used)

	var exhausted *core.FallbackExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, []string{"A", "B"}, exhausted.Chain)
	require.ErrorIs(t, err, lastErr)
	require.Contains(t, err.Error(), "A -> B")
	require.Contains(t, err.Error(), "B exploded")

	stats := strategy.Stats()
	require.EqualValues(t, 1, stats.FallbackFailed)
	require.Zero(t, stats.FallbackUsed)
}

func TestUnknownModelHasSingleElementChain(t *testing.T) {
	strategy := New(map[string][]string{})
	script := &scripted{failures: map[string]error{"solo": errors.New("nope")}}

	_, _, err := strategy.ExecuteWithFallback(context.Background(), "solo", script.call)
	var exhausted *core.FallbackExhaustedError
	require.ErrorAs(t, err, &exhausted)
	require.Equal(t, []string{"solo"}, exhausted.Chain)

	info := strategy.FallbackInfo("solo")
	require.False(t, info.HasFallback)
	require.Equal(t, 1, info.ChainLength)
}

func TestFallbackStopsOnCancellation(t *testing.T) {
	strategy := New(map[string][]string{"A": {"B", "C"}})
	ctx, cancel := context.WithCancel(context.Background())

	var calls []string
	call := func(ctx context.Context, model string) (core.Response, error) {
		calls = append(calls, model)
		cancel()
		return core.Response{}, fmt.Errorf("request aborted: %w", ctx.Err())
	}

	_, _, err := strategy.ExecuteWithFallback(ctx, "A", call)
	require.ErrorIs(t, err, context.Canceled)
	require.Equal(t, []string{"A"}, calls)
}

func TestConfigureCleansChains(t *testing.T) {
	strategy := New(map[string][]string{})
	strategy.Configure("A", []string{" B ", "", "A", "B", "C"})
	require.Equal(t, []string{"A", "B", "C"}, strategy.FallbackChain("A"))

	info := strategy.FallbackInfo("A")
	require.True(t, info.HasFallback)
	require.Equal(t, 3, info.ChainLength)

	strategy.Configure("A", nil)
	require.Equal(t, []string{"A"}, strategy.FallbackChain("A"))
	require.Empty(t, strategy.Chains())
}

func TestReplaceDropsMissingChainsAndKeepsStats(t *testing.T) {
	strategy := New(map[string][]string{"A": {"B"}, "X": {"Y"}})
	script := &scripted{failures: map[string]error{"A": errors.New("down")}}
	_, _, err := strategy.ExecuteWithFallback(context.Background(), "A", script.call)
	require.NoError(t, err)

	strategy.Replace(map[string][]string{"A": {"C", "A"}, "": {"Z"}, "Q": nil})
	require.Equal(t, []string{"A", "C"}, strategy.FallbackChain("A"))
	require.Equal(t, []string{"X"}, strategy.FallbackChain("X"))
	require.Len(t, strategy.Chains(), 1)
	require.Equal(t, int64(1), strategy.Stats().FallbackSuccess)
}

func TestResetStats(t *testing.T) {
	strategy := New(map[string][]string{"A": {"B"}})
	script := &scripted{failures: map[string]error{"A": errors.New("down")}}
	_, _, err := strategy.ExecuteWithFallback(context.Background(), "A", script.call)
	require.NoError(t, err)

	strategy.ResetStats()
	stats := strategy.Stats()
	require.Zero(t, stats.TotalCalls)
	require.Zero(t, stats.FallbackUsed)
	require.Empty(t, stats.Models)
}

func TestDefaultChains(t *testing.T) {
	strategy := New(nil)
	require.Equal(t, []string{"qwen-max", "qwen-plus", "qwen-turbo"}, strategy.FallbackChain("qwen-max"))
	require.Len(t, strategy.Chains(), len(DefaultChains()))
}
