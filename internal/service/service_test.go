package service

import (
	"context"
	"errors"
	"fmt"
	"livegame-tracker/internal/api"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/fetcher"
	"livegame-tracker/internal/freshness"
	"livegame-tracker/internal/lock"
	"livegame-tracker/internal/registry"
	"livegame-tracker/internal/scheduler"
	"livegame-tracker/internal/snapshot"
	"livegame-tracker/internal/storage"
	"livegame-tracker/internal/store"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeLobby struct {
	body  string
	err   error
	at    func() time.Time
	calls int
}

func (f *fakeLobby) Lookup(context.Context) (*api.LobbyPayload, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return api.NewLobbyPayload([]byte(f.body), f.at())
}

type fakeEngine struct {
	mu      sync.Mutex
	values  map[string]int
	fetched []string
}

func (e *fakeEngine) Name() string { return "static" }

func (e *fakeEngine) Open(context.Context) (fetcher.Session, error) { return e, nil }

func (e *fakeEngine) Players(_ context.Context, id domain.Identifier) (int, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.fetched = append(e.fetched, id.ID)
	v, ok := e.values[id.ID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", fetcher.ErrCounterNotFound, id.ID)
	}
	return v, nil
}

func (e *fakeEngine) Close() error { return nil }

type memRuns struct {
	mu   sync.Mutex
	runs []domain.IngestRun
}

func (m *memRuns) Record(_ context.Context, run domain.IngestRun) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs = append([]domain.IngestRun{run}, m.runs...)
	return nil
}

func (m *memRuns) Recent(_ context.Context, limit int) ([]domain.IngestRun, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.runs[:min(limit, len(m.runs))], nil
}

type harness struct {
	now     time.Time
	backend *storage.MemoryBackend
	samples *store.SampleStore
	oracle  *freshness.Oracle
	lobby   *fakeLobby
	engine  *fakeEngine
	locker  *lock.Locker
	snaps   *snapshot.Aggregator
	runs    *memRuns
	ingest  *IngestService
	read    *ReadService
}

func (h *harness) clock() time.Time { return h.now }

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{now: time.Date(2025, 1, 10, 20, 0, 0, 0, time.UTC)}
	log := zerolog.Nop()

	reg, err := registry.New([]domain.Identifier{
		{ID: "crazy-time", Slug: "crazy-time", Name: "Crazy Time", Lobby: domain.DefaultLobbyKey("crazyTime")},
		{ID: "crazy-time:a", Slug: "crazy-time", Variant: "a", Name: "Crazy Time A", Lobby: domain.VariantLobbyKey("crazyTime", "a")},
		{ID: "boom-city", Slug: "boom-city", Name: "Boom City", Lobby: domain.NoLobbyKey()},
		{ID: "mega-wheel", Slug: "mega-wheel", Name: "Mega Wheel", Lobby: domain.NoLobbyKey()},
	})
	require.NoError(t, err)

	h.backend = storage.NewMemoryBackend(h.clock)
	h.samples = store.NewSampleStore(h.backend, log)
	h.oracle = freshness.NewOracle(h.samples, log)
	h.lobby = &fakeLobby{body: `{"crazyTime": {"players": 15342}}`, at: h.clock}
	h.engine = &fakeEngine{values: map[string]int{"boom-city": 700, "mega-wheel": 400, "crazy-time:a": 1200}}
	engines, err := fetcher.NewEngines("static", h.engine)
	require.NoError(t, err)
	sched := scheduler.New(h.samples, log).WithClock(h.clock)
	h.locker = lock.NewLocker(h.backend, log)
	h.snaps = snapshot.NewAggregator(h.backend, log).WithClock(h.clock)
	h.runs = &memRuns{}

	h.ingest = NewIngestService(reg, h.samples, h.oracle, h.lobby, engines, sched, h.locker, h.snaps, h.runs, log).WithClock(h.clock)
	cfg := &config.Config{TimeZone: time.UTC}
	lobbyClient := api.NewLobbyClient(&config.Config{}, api.NewLobbyCache(constants.LobbyCacheTTL, h.clock), log)
	h.read = NewReadService(cfg, reg, h.samples, h.snaps, h.backend, lobbyClient, h.runs, log).WithClock(h.clock)
	return h
}

func TestRefresh_EndToEnd(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	assert.False(t, h.oracle.IsFresh(ctx, "crazy-time", h.now))

	report, err := h.ingest.Refresh(ctx, RefreshRequest{Trigger: "cron"})
	require.NoError(t, err)
	assert.True(t, report.OK)
	assert.Equal(t, 4, report.Checked)
	assert.Equal(t, 4, report.NoSample)
	assert.Equal(t, 1, report.LobbyHits)
	assert.ElementsMatch(t, []string{"crazy-time:a", "boom-city", "mega-wheel"}, h.engine.fetched)

	latest, ok, err := h.samples.Latest(ctx, "crazy-time")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 15342, latest.Value)

	h.now = h.now.Add(constants.SampleTTL - time.Second)
	assert.True(t, h.oracle.IsFresh(ctx, "crazy-time", h.now))

	snap, found := h.snaps.Load(ctx)
	require.True(t, found)
	assert.Equal(t, domain.Rollup{TrackedTotal: 15342 + 1200 + 700 + 400, TrackedCount: 4}, snap.Rollup)
	assert.Equal(t, report.RunID, snap.Meta.RunID)

	require.Len(t, h.runs.runs, 1)
	assert.Equal(t, "cron", h.runs.runs[0].Trigger)
	assert.Equal(t, 4, h.runs.runs[0].Succeeded)
}

func TestRefresh_FreshIdentifiersAreSkipped(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)
	h.engine.fetched = nil
	h.lobby.calls = 0

	h.now = h.now.Add(time.Minute)
	report, err := h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Fresh)
	assert.Zero(t, report.Stale)
	assert.Empty(t, h.engine.fetched)
	assert.Zero(t, h.lobby.calls)

	report, err = h.ingest.Refresh(ctx, RefreshRequest{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 4, report.Stale)
	assert.Len(t, h.engine.fetched, 3)
}

func TestRefresh_LobbyUnavailableFallsBackToDirected(t *testing.T) {
	h := newHarness(t)
	h.lobby.err = domain.ErrLobbyUnavailable
	h.engine.values["crazy-time"] = 15000

	report, err := h.ingest.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)
	assert.Zero(t, report.LobbyHits)
	assert.NotEmpty(t, report.LobbyError)
	assert.Len(t, h.engine.fetched, 4)
	assert.True(t, report.OK)
}

func TestRefresh_LockContention(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	held, err := h.locker.Acquire(ctx, constants.RefreshJobName, time.Minute)
	require.NoError(t, err)
	require.NotNil(t, held)

	report, err := h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)
	assert.Equal(t, "locked", report.Skipped)
	assert.Empty(t, h.engine.fetched)
	require.Len(t, h.runs.runs, 1)
	assert.True(t, h.runs.runs[0].LockSkipped)

	h.locker.Release(ctx, held)
	report, err = h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)
	assert.Empty(t, report.Skipped)
}

func TestRefresh_FailureKeepsPreviousSnapshotValue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)

	delete(h.engine.values, "boom-city")
	h.now = h.now.Add(constants.SampleTTL + time.Second)
	report, err := h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)
	assert.False(t, report.OK)

	snap, found := h.snaps.Load(ctx)
	require.True(t, found)
	boom := snap.Items["boom-city"]
	require.NotNil(t, boom.Players)
	assert.Equal(t, 700, *boom.Players)
	require.NotNil(t, boom.Error)
	assert.Contains(t, *boom.Error, "element")
}

func TestRefresh_ExpiredSnapshotKeepsSeriesValue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)

	delete(h.engine.values, "boom-city")
	h.now = h.now.Add(constants.SnapshotTTL + time.Second)
	_, found := h.snaps.Load(ctx)
	require.False(t, found)

	_, err = h.ingest.Refresh(ctx, RefreshRequest{})
	require.NoError(t, err)

	snap, found := h.snaps.Load(ctx)
	require.True(t, found)
	boom := snap.Items["boom-city"]
	require.NotNil(t, boom.Players)
	assert.Equal(t, 700, *boom.Players)
	require.NotNil(t, boom.Error)
	assert.Equal(t, domain.Rollup{TrackedTotal: 15342 + 1200 + 700 + 400, TrackedCount: 4}, snap.Rollup)

	view := h.read.Snapshot(ctx)
	assert.Equal(t, "stored", view.Source)
	require.NotNil(t, view.Snapshot.Items["boom-city"].Players)
	assert.Equal(t, 700, *view.Snapshot.Items["boom-city"].Players)
}

func TestRefresh_CachedLobbyPayloadStoredOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	observed := h.now
	h.lobby.at = func() time.Time { return observed }

	_, err := h.ingest.Refresh(ctx, RefreshRequest{Force: true})
	require.NoError(t, err)
	h.now = h.now.Add(10 * time.Second)
	report, err := h.ingest.Refresh(ctx, RefreshRequest{Force: true})
	require.NoError(t, err)
	assert.Equal(t, 1, report.LobbyHits)

	samples, err := h.samples.Recent(ctx, "crazy-time", 0)
	require.NoError(t, err)
	require.Len(t, samples, 1)
	assert.Equal(t, observed.UnixMilli(), samples[0].Timestamp)

	h.now = h.now.Add(time.Minute)
	h.lobby.at = h.clock
	_, err = h.ingest.Refresh(ctx, RefreshRequest{Force: true})
	require.NoError(t, err)
	samples, err = h.samples.Recent(ctx, "crazy-time", 0)
	require.NoError(t, err)
	assert.Len(t, samples, 2)
}

func TestRefresh_Limit(t *testing.T) {
	h := newHarness(t)

	report, err := h.ingest.Refresh(context.Background(), RefreshRequest{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, h.engine.fetched, 1)
	assert.Len(t, report.Deferred, 2)
}

func TestRefresh_UnknownEngine(t *testing.T) {
	h := newHarness(t)
	_, err := h.ingest.Refresh(context.Background(), RefreshRequest{Engine: "chrome"})
	assert.True(t, errors.Is(err, domain.ErrUnknownEngine))
	assert.Empty(t, h.runs.runs)
}

func TestSeries_ExcludesToday(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	for _, s := range []struct {
		at    time.Time
		value float64
	}{
		{time.Date(2025, 1, 9, 10, 0, 0, 0, time.UTC), 50},
		{time.Date(2025, 1, 10, 8, 0, 0, 0, time.UTC), 100},
		{time.Date(2025, 1, 10, 20, 0, 0, 0, time.UTC), 200},
	} {
		_, err := h.samples.Append(ctx, "boom-city", s.at, s.value)
		require.NoError(t, err)
	}

	view, err := h.read.Series(ctx, "boom-city", 7)
	require.NoError(t, err)
	assert.False(t, view.NoData)
	assert.Len(t, view.Samples, 3)
	assert.Equal(t, []domain.DailyAverage{{Date: "2025-01-09", Avg: 50}}, view.Daily)
	require.NotNil(t, view.Latest)
	assert.Equal(t, 200, view.Latest.Value)

	h.now = time.Date(2025, 1, 11, 1, 0, 0, 0, time.UTC)
	view, err = h.read.Series(ctx, "boom-city", 7)
	require.NoError(t, err)
	assert.Equal(t, []domain.DailyAverage{{Date: "2025-01-09", Avg: 50}, {Date: "2025-01-10", Avg: 150}}, view.Daily)
}

func TestSeries_NoDataAndUnknown(t *testing.T) {
	h := newHarness(t)

	view, err := h.read.Series(context.Background(), "mega-wheel", 0)
	require.NoError(t, err)
	assert.True(t, view.NoData)
	assert.Equal(t, constants.DefaultSeriesDay, view.Days)
	assert.NotNil(t, view.Samples)
	assert.Nil(t, view.Latest)

	_, err = h.read.Series(context.Background(), "nope", 7)
	assert.ErrorIs(t, err, domain.ErrUnknownIdentifier)
}

func TestSnapshot_StoredAndAssembled(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.samples.Append(ctx, "boom-city", h.now, 42)
	require.NoError(t, err)

	view := h.read.Snapshot(ctx)
	assert.Equal(t, "assembled", view.Source)
	assert.Equal(t, domain.Rollup{TrackedTotal: 42, TrackedCount: 1}, view.Snapshot.Rollup)
	assert.Len(t, view.Snapshot.Items, 4)
	assert.Equal(t, "no data", *view.Snapshot.Items["mega-wheel"].Error)

	_, err = h.ingest.Refresh(ctx, RefreshRequest{Force: true})
	require.NoError(t, err)
	view = h.read.Snapshot(ctx)
	assert.Equal(t, "stored", view.Source)

	h.now = h.now.Add(constants.SnapshotMaxAge + time.Second)
	view = h.read.Snapshot(ctx)
	assert.Equal(t, "assembled", view.Source)
}

func TestStatus(t *testing.T) {
	h := newHarness(t)
	_, err := h.ingest.Refresh(context.Background(), RefreshRequest{})
	require.NoError(t, err)

	st, err := h.read.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "memory", st.Backend)
	assert.Equal(t, 4, st.Tracked)
	assert.Len(t, st.Runs, 1)
}

func TestSnapshot_AssembledIsStableAcrossRequests(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	sampledAt := h.now.Add(-time.Minute)
	_, err := h.samples.Append(ctx, "boom-city", sampledAt, 42)
	require.NoError(t, err)

	first := h.read.Snapshot(ctx)
	h.now = h.now.Add(30 * time.Second)
	second := h.read.Snapshot(ctx)

	assert.Equal(t, "assembled", second.Source)
	assert.Equal(t, sampledAt.UnixMilli(), first.Snapshot.UpdatedAt)
	assert.Equal(t, first, second)
}
