package service

import (
	"context"
	"fmt"
	"livegame-tracker/internal/api"
	"livegame-tracker/internal/config"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/registry"
	"livegame-tracker/internal/series"
	"livegame-tracker/internal/snapshot"
	"livegame-tracker/internal/storage"
	"livegame-tracker/internal/store"
	"time"

	"github.com/rs/zerolog"
)

type RunLister interface {
	Recent(ctx context.Context, limit int) ([]domain.IngestRun, error)
}

type SeriesView struct {
	ID      string                `json:"id"`
	Name    string                `json:"name"`
	Days    int                   `json:"days"`
	NoData  bool                  `json:"noData"`
	Latest  *domain.Sample        `json:"latest"`
	Samples []domain.Sample       `json:"samples"`
	Daily   []domain.DailyAverage `json:"daily"`
}

type SnapshotView struct {
	Source   string          `json:"source"` // "stored" or "assembled"
	Snapshot domain.Snapshot `json:"snapshot"`
}

type StatusView struct {
	Backend   string             `json:"backend"`
	Tracked   int                `json:"tracked"`
	RateLimit api.RateLimitInfo  `json:"rateLimit"`
	Runs      []domain.IngestRun `json:"runs"`
}

type ReadService struct {
	registry  *registry.Registry
	samples   *store.SampleStore
	snapshots *snapshot.Aggregator
	backend   storage.Backend
	lobby     *api.LobbyClient
	runs      RunLister
	loc       *time.Location
	now       func() time.Time
	logger    zerolog.Logger
}

func NewReadService(
	cfg *config.Config,
	reg *registry.Registry,
	samples *store.SampleStore,
	snapshots *snapshot.Aggregator,
	backend storage.Backend,
	lobby *api.LobbyClient,
	runs RunLister,
	logger zerolog.Logger,
) *ReadService {
	return &ReadService{
		registry:  reg,
		samples:   samples,
		snapshots: snapshots,
		backend:   backend,
		lobby:     lobby,
		runs:      runs,
		loc:       cfg.TimeZone,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *ReadService) WithClock(now func() time.Time) *ReadService {
	c := *s
	c.now = now
	return &c
}

// Series returns the last days of samples plus completed-day averages.
func (s *ReadService) Series(ctx context.Context, id string, days int) (*SeriesView, error) {
	ident, ok := s.registry.Get(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownIdentifier, id)
	}
	if days <= 0 {
		days = constants.DefaultSeriesDay
	}
	days = min(days, constants.MaxSeriesDays)

	now := s.now()
	samples, err := s.samples.Recent(ctx, id, series.Since(now, days))
	if err != nil {
		s.logger.Warn().Err(err).Str("id", id).Msg("series read failed, returning empty series")
		samples = nil
	}

	view := &SeriesView{
		ID:      ident.ID,
		Name:    ident.Name,
		Days:    days,
		Samples: samples,
		Daily:   series.CompletedDays(series.DailyAverages(samples, s.loc), now, s.loc),
	}
	if view.Samples == nil {
		view.Samples = []domain.Sample{}
	}
	if view.Daily == nil {
		view.Daily = []domain.DailyAverage{}
	}
	if len(samples) == 0 {
		view.NoData = true
		return view, nil
	}
	latest := samples[len(samples)-1]
	view.Latest = &latest
	return view, nil
}

// Snapshot serves the stored snapshot while it is within max age and
// assembles one from each series' latest sample otherwise.
func (s *ReadService) Snapshot(ctx context.Context) *SnapshotView {
	now := s.now()
	if snap, ok := s.snapshots.Load(ctx); ok && !snapshot.IsStale(snap, constants.SnapshotMaxAge, now) {
		return &SnapshotView{Source: "stored", Snapshot: *snap}
	}

	results, newest := latestResults(ctx, s.samples, s.registry.IDs())
	snap := s.snapshots.Build(results, domain.SnapshotMeta{Source: "series"})
	// stable across requests while the series are unchanged
	snap.UpdatedAt = newest
	s.logger.Debug().Int("tracked", snap.Rollup.TrackedCount).Msg("assembled snapshot from series")
	return &SnapshotView{Source: "assembled", Snapshot: snap}
}

func (s *ReadService) Status(ctx context.Context) (*StatusView, error) {
	ctx, cancel := context.WithTimeout(ctx, constants.DatabaseTimeout)
	defer cancel()

	runs, err := s.runs.Recent(ctx, constants.RecentRunsLimit)
	if err != nil {
		return nil, err
	}
	return &StatusView{
		Backend:   s.backend.Name(),
		Tracked:   s.registry.Len(),
		RateLimit: s.lobby.GetRateLimitInfo(),
		Runs:      runs,
	}, nil
}
