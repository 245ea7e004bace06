package service

import (
	"context"
	"errors"
	"fmt"
	"livegame-tracker/internal/api"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/fetcher"
	"livegame-tracker/internal/freshness"
	"livegame-tracker/internal/lock"
	"livegame-tracker/internal/registry"
	"livegame-tracker/internal/scheduler"
	"livegame-tracker/internal/snapshot"
	"livegame-tracker/internal/store"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog"
)

const skippedByDeadline = "skipped: batch deadline reached"

type LobbyLookup interface {
	Lookup(ctx context.Context) (*api.LobbyPayload, error)
}

type RunRecorder interface {
	Record(ctx context.Context, run domain.IngestRun) error
}

type RefreshRequest struct {
	Limit       int
	Concurrency int
	Force       bool
	Engine      string
	Trigger     string
}

type RefreshReport struct {
	RunID      string               `json:"runId"`
	Skipped    string               `json:"skipped,omitempty"`
	Engine     string               `json:"engine"`
	Force      bool                 `json:"force"`
	Checked    int                  `json:"checked"`
	Fresh      int                  `json:"fresh"`
	Stale      int                  `json:"stale"`
	NoSample   int                  `json:"noSample"`
	LobbyHits  int                  `json:"lobbyHits"`
	LobbyError string               `json:"lobbyError,omitempty"`
	Deferred   []string             `json:"deferred"`
	Results    []domain.FetchResult `json:"results"`
	Unattended []string             `json:"deadlineSkipped"`
	OK         bool                 `json:"ok"`
	DurationMs int64                `json:"durationMs"`
}

type IngestService struct {
	registry  *registry.Registry
	samples   *store.SampleStore
	oracle    *freshness.Oracle
	lobby     LobbyLookup
	engines   *fetcher.Engines
	scheduler *scheduler.Scheduler
	locker    *lock.Locker
	snapshots *snapshot.Aggregator
	runs      RunRecorder
	now       func() time.Time
	logger    zerolog.Logger
}

func NewIngestService(
	reg *registry.Registry,
	samples *store.SampleStore,
	oracle *freshness.Oracle,
	lobby LobbyLookup,
	engines *fetcher.Engines,
	sched *scheduler.Scheduler,
	locker *lock.Locker,
	snapshots *snapshot.Aggregator,
	runs RunRecorder,
	logger zerolog.Logger,
) *IngestService {
	return &IngestService{
		registry:  reg,
		samples:   samples,
		oracle:    oracle,
		lobby:     lobby,
		engines:   engines,
		scheduler: sched,
		locker:    locker,
		snapshots: snapshots,
		runs:      runs,
		now:       time.Now,
		logger:    logger,
	}
}

func (s *IngestService) WithClock(now func() time.Time) *IngestService {
	c := *s
	c.now = now
	return &c
}

// Refresh runs one ingestion cycle under the job lock. Per-identifier
// failures end up in the report; only an unknown engine or a lock backend
// failure is returned as an error.
func (s *IngestService) Refresh(ctx context.Context, req RefreshRequest) (*RefreshReport, error) {
	engine, err := s.engines.Select(req.Engine)
	if err != nil {
		return nil, err
	}

	runID, err := gonanoid.New()
	if err != nil {
		return nil, fmt.Errorf("failed to generate run id: %w", err)
	}
	if req.Trigger == "" {
		req.Trigger = "manual"
	}

	start := s.now()
	log := s.logger.With().Str("run_id", runID).Str("trigger", req.Trigger).Str("engine", engine.Name()).Logger()
	report := &RefreshReport{
		RunID:      runID,
		Engine:     engine.Name(),
		Force:      req.Force,
		Deferred:   []string{},
		Results:    []domain.FetchResult{},
		Unattended: []string{},
	}

	ran, err := s.locker.WithLock(ctx, constants.RefreshJobName, constants.RefreshLockTTL, func(ctx context.Context) error {
		s.cycle(ctx, req, engine, report, log)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if !ran {
		report.Skipped = "locked"
		report.OK = true
		log.Info().Msg("refresh skipped, another runner holds the lock")
	}
	report.DurationMs = s.now().Sub(start).Milliseconds()

	s.record(ctx, req, report, start)
	return report, nil
}

func (s *IngestService) cycle(ctx context.Context, req RefreshRequest, engine fetcher.Engine, report *RefreshReport, log zerolog.Logger) {
	now := s.now()
	all := s.registry.All()
	report.Checked = len(all)

	stale := make([]domain.Identifier, 0, len(all))
	for _, id := range all {
		if req.Force {
			stale = append(stale, id)
			continue
		}
		v := s.oracle.Check(ctx, id.ID, now)
		switch v.Status {
		case freshness.StatusFresh:
			report.Fresh++
			continue
		case freshness.StatusNoSample:
			report.NoSample++
		}
		stale = append(stale, id)
	}
	report.Stale = len(stale)

	if len(stale) == 0 {
		report.OK = true
		log.Info().Int("fresh", report.Fresh).Msg("all identifiers fresh")
		return
	}

	remaining := s.applyLobby(ctx, stale, report, log)

	if req.Limit > 0 && len(remaining) > req.Limit {
		for _, id := range remaining[req.Limit:] {
			report.Deferred = append(report.Deferred, id.ID)
		}
		remaining = remaining[:req.Limit]
	}

	batch := scheduler.Report{OK: true}
	if len(remaining) > 0 {
		opts := scheduler.DefaultOptions()
		if req.Concurrency > 0 {
			opts.Concurrency = req.Concurrency
		}
		batch = s.scheduler.Run(ctx, engine, remaining, opts)
		report.Results = append(report.Results, batch.Results...)
		report.Unattended = append(report.Unattended, batch.Skipped...)
	}

	report.OK = batch.OK

	s.publishSnapshot(ctx, report, req, log)

	log.Info().
		Int("stale", len(stale)).
		Int("lobby_hits", report.LobbyHits).
		Int("directed", len(remaining)).
		Int("deadline_skipped", len(report.Unattended)).
		Int("deferred", len(report.Deferred)).
		Bool("ok", report.OK).
		Msg("refresh cycle finished")
}

// applyLobby resolves what it can from the batched lobby endpoint and
// returns the identifiers that still need a directed fetch.
func (s *IngestService) applyLobby(ctx context.Context, stale []domain.Identifier, report *RefreshReport, log zerolog.Logger) []domain.Identifier {
	covered := false
	for _, id := range stale {
		if id.Lobby.Covered() {
			covered = true
			break
		}
	}
	if !covered {
		return stale
	}

	payload, err := s.lobby.Lookup(ctx)
	if err != nil {
		report.LobbyError = err.Error()
		log.Warn().Err(err).Msg("lobby unavailable, falling back to directed fetches")
		return stale
	}

	remaining := make([]domain.Identifier, 0, len(stale))
	for _, id := range stale {
		players, ok := payload.Players(id.Lobby)
		if !ok {
			remaining = append(remaining, id)
			continue
		}
		if s.alreadyStored(ctx, id.ID, payload.FetchedAt) {
			log.Debug().Str("id", id.ID).Time("fetched_at", payload.FetchedAt).Msg("lobby observation already stored")
		} else if _, err := s.samples.Append(ctx, id.ID, payload.FetchedAt, float64(players)); err != nil {
			log.Warn().Err(err).Str("id", id.ID).Msg("lobby sample not stored, falling back to directed fetch")
			remaining = append(remaining, id)
			continue
		}
		p := players
		report.Results = append(report.Results, domain.FetchResult{
			ID:        id.ID,
			OK:        true,
			Players:   &p,
			Source:    domain.SourceLobby,
			FetchedAt: payload.FetchedAt.UnixMilli(),
		})
		report.LobbyHits++
	}
	return remaining
}

// alreadyStored reports whether the series already holds an observation at
// or after fetchedAt, as happens when a cached lobby payload is served twice.
func (s *IngestService) alreadyStored(ctx context.Context, id string, fetchedAt time.Time) bool {
	latest, ok, err := s.samples.Latest(ctx, id)
	return err == nil && ok && latest.Timestamp >= fetchedAt.UnixMilli()
}

func (s *IngestService) publishSnapshot(ctx context.Context, report *RefreshReport, req RefreshRequest, log zerolog.Logger) {
	results := make([]domain.FetchResult, 0, len(report.Results)+len(report.Unattended))
	results = append(results, report.Results...)
	for _, id := range report.Unattended {
		results = append(results, domain.FetchResult{ID: id, Error: skippedByDeadline})
	}
	if len(results) == 0 {
		return
	}

	prev, ok := s.snapshots.Load(ctx)
	if !ok {
		seed, _ := latestResults(ctx, s.samples, s.registry.IDs())
		base := s.snapshots.Build(seed, domain.SnapshotMeta{Source: "series"})
		prev = &base
		log.Debug().Int("tracked", base.Rollup.TrackedCount).Msg("no stored snapshot, seeding from series")
	}
	snap := s.snapshots.Merge(prev, results, domain.SnapshotMeta{RunID: report.RunID, Engine: report.Engine, Source: req.Trigger})
	if err := s.snapshots.Store(ctx, snap); err != nil {
		log.Warn().Err(err).Msg("snapshot not stored, readers will assemble from series")
	}
}

func (s *IngestService) record(ctx context.Context, req RefreshRequest, report *RefreshReport, start time.Time) {
	succeeded := 0
	for _, r := range report.Results {
		if r.OK {
			succeeded++
		}
	}
	run := domain.IngestRun{
		ID:          report.RunID,
		Trigger:     req.Trigger,
		Engine:      report.Engine,
		StartedAt:   start,
		FinishedAt:  start.Add(time.Duration(report.DurationMs) * time.Millisecond),
		Checked:     report.Checked,
		Stale:       report.Stale,
		LobbyHits:   report.LobbyHits,
		Attempted:   len(report.Results),
		Succeeded:   succeeded,
		Skipped:     len(report.Unattended) + len(report.Deferred),
		OK:          report.OK,
		LockSkipped: report.Skipped != "",
	}

	dbCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.DatabaseTimeout)
	defer cancel()
	if err := s.runs.Record(dbCtx, run); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn().Err(err).Str("run_id", run.ID).Msg("ingest run not journaled")
	}
}

// Poll runs a scheduled refresh every interval until ctx is done. The job
// lock keeps it from overlapping with HTTP triggers on any instance.
func (s *IngestService) Poll(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info().Dur("interval", interval).Msg("scheduled refresh loop started")
	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("scheduled refresh loop stopped")
			return
		case <-ticker.C:
			report, err := s.Refresh(ctx, RefreshRequest{Trigger: "scheduled"})
			if err != nil {
				s.logger.Error().Err(err).Msg("scheduled refresh failed")
				continue
			}
			s.logger.Debug().Str("run_id", report.RunID).Bool("ok", report.OK).Msg("scheduled refresh done")
		}
	}
}
