package snapshot

import (
	"context"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/storage"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)

func intp(v int) *int { return &v }

func ok(id string, players int) domain.FetchResult {
	return domain.FetchResult{ID: id, OK: true, Players: intp(players), FetchedAt: now.UnixMilli(), Source: domain.SourceLobby}
}

func failed(id, msg string) domain.FetchResult {
	return domain.FetchResult{ID: id, Error: msg, FetchedAt: now.UnixMilli(), Source: domain.SourceDirected}
}

func newAggregator(t *testing.T) (*miniredis.Miniredis, *Aggregator) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rdb.Close() })
	a := NewAggregator(storage.NewRedisBackend(rdb), zerolog.Nop()).WithClock(func() time.Time { return now })
	return mr, a
}

func TestBuild_Rollup(t *testing.T) {
	_, a := newAggregator(t)

	snap := a.Build([]domain.FetchResult{
		ok("crazy-time", 15342),
		ok("monopoly-live", 8000),
		failed("boom-city", "timeout"),
	}, domain.SnapshotMeta{RunID: "r1"})

	assert.Equal(t, now.UnixMilli(), snap.UpdatedAt)
	assert.Equal(t, domain.Rollup{TrackedTotal: 23342, TrackedCount: 2}, snap.Rollup)
	require.Contains(t, snap.Items, "boom-city")
	assert.Nil(t, snap.Items["boom-city"].Players)
	assert.Nil(t, snap.Items["boom-city"].FetchedAt)
	assert.Equal(t, "timeout", *snap.Items["boom-city"].Error)
	assert.Nil(t, snap.Items["crazy-time"].Error)
	assert.Equal(t, "r1", snap.Meta.RunID)
}

func TestMerge_FailureRetainsPreviousValue(t *testing.T) {
	_, a := newAggregator(t)
	prev := a.Build([]domain.FetchResult{ok("crazy-time", 100), ok("mega-ball", 50)}, domain.SnapshotMeta{})

	next := a.Merge(&prev, []domain.FetchResult{failed("crazy-time", "element not found"), ok("funky-time", 10)}, domain.SnapshotMeta{})

	ct := next.Items["crazy-time"]
	require.NotNil(t, ct.Players)
	assert.Equal(t, 100, *ct.Players, "previous good value is kept")
	require.NotNil(t, ct.Error)
	assert.Equal(t, "element not found", *ct.Error)
	assert.Equal(t, 50, *next.Items["mega-ball"].Players)
	assert.Equal(t, domain.Rollup{TrackedTotal: 160, TrackedCount: 3}, next.Rollup)

	// prev is not mutated
	assert.Nil(t, prev.Items["crazy-time"].Error)

	recovered := a.Merge(&next, []domain.FetchResult{ok("crazy-time", 120)}, domain.SnapshotMeta{})
	assert.Nil(t, recovered.Items["crazy-time"].Error)
	assert.Equal(t, 120, *recovered.Items["crazy-time"].Players)
}

func TestStoreLoad_RoundTrip(t *testing.T) {
	mr, a := newAggregator(t)
	ctx := context.Background()

	snap := a.Build([]domain.FetchResult{ok("crazy-time", 15342), failed("boom-city", "timeout")}, domain.SnapshotMeta{RunID: "r1", Engine: "static", Source: "cron"})
	require.NoError(t, a.Store(ctx, snap))

	got, found := a.Load(ctx)
	require.True(t, found)
	assert.Equal(t, snap, *got)
	assert.Equal(t, constants.SnapshotTTL, mr.TTL(constants.SnapshotKey))
}

func TestLoad_MissingOrCorrupt(t *testing.T) {
	mr, a := newAggregator(t)
	ctx := context.Background()

	_, found := a.Load(ctx)
	assert.False(t, found)

	require.NoError(t, mr.Set(constants.SnapshotKey, "{not json"))
	_, found = a.Load(ctx)
	assert.False(t, found)

	mr.Close()
	_, found = a.Load(ctx)
	assert.False(t, found, "backend errors are not surfaced")
}

func TestLoad_Expired(t *testing.T) {
	mr, a := newAggregator(t)
	ctx := context.Background()

	require.NoError(t, a.Store(ctx, a.Build(nil, domain.SnapshotMeta{})))
	mr.FastForward(constants.SnapshotTTL + time.Second)
	_, found := a.Load(ctx)
	assert.False(t, found)
}

func TestIsStale(t *testing.T) {
	snap := &domain.Snapshot{UpdatedAt: now.UnixMilli()}
	assert.True(t, IsStale(nil, time.Minute, now))
	assert.False(t, IsStale(snap, time.Minute, now.Add(time.Minute)))
	assert.True(t, IsStale(snap, time.Minute, now.Add(time.Minute+time.Millisecond)))
}
