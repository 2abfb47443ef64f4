package breaker

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

type testClock struct{ now time.Time }

func (c *testClock) Now() time.Time          { return c.now }
func (c *testClock) Advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestRegistry(cfg Config) (*Registry, *testClock) {
	clock := &testClock{now: time.Unix(1_700_000_000, 0)}
	registry := NewRegistry(cfg)
	registry.Now = clock.Now
	return registry, clock
}

var errUpstream = errors.New("upstream 503")

func failing(calls *int) core.ProviderCall {
	return func(context.Context, string) (core.Response, error) {
		*calls++
		return core.Response{}, errUpstream
	}
}

func succeeding(calls *int) core.ProviderCall {
	return func(_ context.Context, model string) (core.Response, error) {
		*calls++
		return core.Response{Content: "ok", Model: model}, nil
	}
}

func TestRegistryOpensAfterConsecutiveFailures(t *testing.T) {
	registry, _ := newTestRegistry(Config{FailureThreshold: 3, Cooldown: time.Minute})
	ctx := context.Background()
	calls := 0

	for i := 0; i < 3; i++ {
		_, err := registry.Call(ctx, "gpt-4o", failing(&calls))
		require.ErrorIs(t, err, errUpstream)
	}
	require.Equal(t, StateOpen, registry.State("gpt-4o"))

	_, err := registry.Call(ctx, "gpt-4o", failing(&calls))
	var openErr *core.CircuitOpenError
	require.ErrorAs(t, err, &openErr)
	require.Equal(t, "gpt-4o", openErr.Model)
	require.Equal(t, 3, calls, "open breaker must not invoke the call")

	// Other models are unaffected.
	_, err = registry.Call(ctx, "gpt-4o-mini", succeeding(&calls))
	require.NoError(t, err)
}

func TestRegistrySuccessResetsFailureCount(t *testing.T) {
	registry, _ := newTestRegistry(Config{FailureThreshold: 2})
	ctx := context.Background()
	calls := 0

	_, _ = registry.Call(ctx, "m", failing(&calls))
	_, err := registry.Call(ctx, "m", succeeding(&calls))
	require.NoError(t, err)
	_, _ = registry.Call(ctx, "m", failing(&calls))
	require.Equal(t, StateClosed, registry.State("m"))
}

func TestRegistryHalfOpenRecovery(t *testing.T) {
	registry, clock := newTestRegistry(Config{FailureThreshold: 1, Cooldown: 10 * time.Second, SuccessThreshold: 2})
	ctx := context.Background()
	calls := 0

	var transitions []string
	registry.OnStateChange = func(model string, from, to State) {
		transitions = append(transitions, from.String()+"->"+to.String())
	}

	_, _ = registry.Call(ctx, "m", failing(&calls))
	require.Equal(t, StateOpen, registry.State("m"))

	clock.Advance(10 * time.Second)
	require.Equal(t, StateHalfOpen, registry.State("m"))

	_, err := registry.Call(ctx, "m", succeeding(&calls))
	require.NoError(t, err)
	require.Equal(t, StateHalfOpen, registry.State("m"))

	_, err = registry.Call(ctx, "m", succeeding(&calls))
	require.NoError(t, err)
	require.Equal(t, StateClosed, registry.State("m"))
	require.Equal(t, []string{"closed->open", "half_open->closed"}, transitions)
}

func TestRegistryHalfOpenFailureReopens(t *testing.T) {
	registry, clock := newTestRegistry(Config{FailureThreshold: 1, Cooldown: time.Second})
	ctx := context.Background()
	calls := 0

	_, _ = registry.Call(ctx, "m", failing(&calls))
	clock.Advance(time.Second)

	_, err := registry.Call(ctx, "m", failing(&calls))
	require.ErrorIs(t, err, errUpstream)
	require.Equal(t, StateOpen, registry.State("m"))
	require.Equal(t, 2, calls)
}

func TestRegistryIgnoresCallerCancellation(t *testing.T) {
	registry, _ := newTestRegistry(Config{FailureThreshold: 1})
	canceled := func(context.Context, string) (core.Response, error) {
		return core.Response{}, context.DeadlineExceeded
	}

	_, err := registry.Call(context.Background(), "m", canceled)
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.Equal(t, StateClosed, registry.State("m"))
}

func TestRegistryStatesAndReset(t *testing.T) {
	registry, _ := newTestRegistry(Config{FailureThreshold: 1})
	ctx := context.Background()
	calls := 0

	_, _ = registry.Call(ctx, "b", failing(&calls))
	_, _ = registry.Call(ctx, "a", succeeding(&calls))
	_, _ = registry.Call(ctx, "b", failing(&calls))

	states := registry.States()
	require.Len(t, states, 2)
	require.Equal(t, "a", states[0].Model)
	require.Equal(t, StateClosed, states[0].State)
	require.Equal(t, "b", states[1].Model)
	require.Equal(t, StateOpen, states[1].State)
	require.EqualValues(t, 1, states[1].Rejected)
	require.Equal(t, errUpstream.Error(), states[1].LastError)

	registry.Reset("b")
	require.Equal(t, StateClosed, registry.State("b"))
	_, err := registry.Call(ctx, "b", succeeding(&calls))
	require.NoError(t, err)
}

func TestPassthroughAlwaysCalls(t *testing.T) {
	calls := 0
	var breaker Breaker = Passthrough{}
	for i := 0; i < 10; i++ {
		_, _ = breaker.Call(context.Background(), "m", failing(&calls))
	}
	require.Equal(t, 10, calls)
}

func TestConfigDefaults(t *testing.T) {
	registry := NewRegistry(Config{})
	require.Equal(t, DefaultConfig(), registry.Config())
}
