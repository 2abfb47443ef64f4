//go:build cgo

package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/daoyou-zhang/daoyoucode/internal/config"
	"github.com/daoyou-zhang/daoyoucode/internal/core"
)

func openMigrated(t *testing.T) *Store {
	t.Helper()
	ctx := context.Background()
	store, err := Open(ctx, config.StoreConfig{Driver: "libsql", Path: "file:" + t.TempDir() + "/daoyoucode.db"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Migrate(ctx))
	// Migrations are idempotent.
	require.NoError(t, store.Migrate(ctx))
	return store
}

func TestExecutionHistoryRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	records := []core.ExecutionRecord{
		{ID: "a", Skill: "code-review", Mode: core.ModeFull, UserID: "alice", RequestedModel: "claude-3-opus", Model: "claude-3-5-sonnet", Success: true, TokensUsed: 120, Cost: 0.01, Duration: 1.5, StartedAt: base},
		{ID: "b", Skill: "code-review", Mode: core.ModeFollowup, RequestedModel: "claude-3-5-sonnet", Success: false, Error: "timed out", StartedAt: base.Add(time.Minute)},
		{ID: "c", Skill: "explain-code", Mode: core.ModeFull, UserID: "bob", RequestedModel: "gpt-4o", Model: "gpt-4o", Success: true, Cached: true, StartedAt: base.Add(2 * time.Minute)},
	}
	for _, rec := range records {
		require.NoError(t, store.RecordExecution(ctx, rec))
	}
	// Duplicate ids are ignored.
	require.NoError(t, store.RecordExecution(ctx, records[0]))

	all, err := store.ListExecutions(ctx, ExecutionQuery{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	require.Equal(t, "c", all[0].ID)
	require.True(t, all[0].Cached)
	require.Equal(t, base, all[2].StartedAt)
	require.Equal(t, "claude-3-5-sonnet", all[2].Model)

	reviews, err := store.ListExecutions(ctx, ExecutionQuery{Skill: "code-review", Limit: 1})
	require.NoError(t, err)
	require.Len(t, reviews, 1)
	require.Equal(t, "b", reviews[0].ID)
	require.Equal(t, "timed out", reviews[0].Error)
	require.Empty(t, reviews[0].UserID)

	count, err := store.CountExecutions(ctx, ExecutionQuery{UserID: "alice"})
	require.NoError(t, err)
	require.Equal(t, 1, count)

	_, err = store.PruneExecutions(ctx, ExecutionQuery{})
	require.Error(t, err)

	removed, err := store.PruneExecutions(ctx, ExecutionQuery{Before: base.Add(90 * time.Second)})
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)

	count, err = store.CountExecutions(ctx, ExecutionQuery{All: true})
	require.NoError(t, err)
	require.Equal(t, 1, count)
}

func TestResponseCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	store := openMigrated(t)

	_, ok, err := store.GetResponseCache(ctx, "k")
	require.NoError(t, err)
	require.False(t, ok)

	require.NoError(t, store.SetResponseCache(ctx, "k", "gpt-4o", `{"content":"hi"}`, time.Hour))
	payload, ok, err := store.GetResponseCache(ctx, "k")
	require.NoError(t, err)
	require.True(t, ok)
	require.JSONEq(t, `{"content":"hi"}`, payload)

	require.NoError(t, store.SetResponseCache(ctx, "gone", "gpt-4o", `{}`, time.Nanosecond))
	time.Sleep(1100 * time.Millisecond)
	_, ok, err = store.GetResponseCache(ctx, "gone")
	require.NoError(t, err)
	require.False(t, ok)

	purged, err := store.PurgeExpiredResponses(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(1), purged)
}
