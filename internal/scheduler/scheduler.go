package scheduler

import (
	"context"
	"errors"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/fetcher"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

type Appender interface {
	Append(ctx context.Context, id string, ts time.Time, value float64) (domain.Sample, error)
}

type Options struct {
	Concurrency int
	Deadline    time.Duration
	ItemTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		Concurrency: constants.DefaultConcurrency,
		Deadline:    constants.BatchDeadline,
		ItemTimeout: constants.ItemTimeout,
	}
}

func (o Options) normalized() Options {
	d := DefaultOptions()
	if o.Concurrency <= 0 {
		o.Concurrency = d.Concurrency
	}
	if o.Concurrency > constants.MaxConcurrency {
		o.Concurrency = constants.MaxConcurrency
	}
	if o.Deadline <= 0 {
		o.Deadline = d.Deadline
	}
	if o.ItemTimeout <= 0 {
		o.ItemTimeout = d.ItemTimeout
	}
	return o
}

type Report struct {
	Results     []domain.FetchResult `json:"results"`
	Skipped     []string             `json:"skipped"`
	Attempted   int                  `json:"attempted"`
	Succeeded   int                  `json:"succeeded"`
	DeadlineHit bool                 `json:"deadlineHit"`
	// OK is true only when every attempted identifier succeeded.
	OK bool `json:"ok"`
}

type Scheduler struct {
	store  Appender
	now    func() time.Time
	logger zerolog.Logger
}

func New(store Appender, logger zerolog.Logger) *Scheduler {
	return &Scheduler{store: store, now: time.Now, logger: logger}
}

func (s *Scheduler) WithClock(now func() time.Time) *Scheduler {
	return &Scheduler{store: s.store, now: now, logger: s.logger}
}

// Run processes ids in sequential chunks of opts.Concurrency. The deadline
// is checked before each chunk only: an admitted chunk always runs to
// completion, bounded by the per-item timeout.
func (s *Scheduler) Run(ctx context.Context, engine fetcher.Engine, ids []domain.Identifier, opts Options) Report {
	opts = opts.normalized()
	start := s.now()
	deadline := start.Add(opts.Deadline)
	report := Report{Results: make([]domain.FetchResult, 0, len(ids)), Skipped: []string{}}

	for i := 0; i < len(ids); i += opts.Concurrency {
		end := min(i+opts.Concurrency, len(ids))

		if s.now().After(deadline) || ctx.Err() != nil {
			for _, id := range ids[i:] {
				report.Skipped = append(report.Skipped, id.ID)
			}
			report.DeadlineHit = true
			s.logger.Warn().
				Err(domain.ErrDeadlineExceeded).
				Int("attempted", report.Attempted).
				Int("skipped", len(report.Skipped)).
				Dur("elapsed", s.now().Sub(start)).
				Msg("batch deadline reached, not starting further chunks")
			break
		}

		chunk := s.runChunk(ctx, engine, ids[i:end], opts)
		report.Results = append(report.Results, chunk...)
		report.Attempted += len(chunk)
	}

	for _, r := range report.Results {
		if r.OK {
			report.Succeeded++
		}
	}
	report.OK = report.Succeeded == report.Attempted

	s.logger.Info().
		Str("engine", engine.Name()).
		Int("requested", len(ids)).
		Int("attempted", report.Attempted).
		Int("succeeded", report.Succeeded).
		Int("skipped", len(report.Skipped)).
		Dur("duration", s.now().Sub(start)).
		Msg("batch finished")
	return report
}

func (s *Scheduler) runChunk(ctx context.Context, engine fetcher.Engine, chunk []domain.Identifier, opts Options) []domain.FetchResult {
	results := make([]domain.FetchResult, len(chunk))

	sess, err := engine.Open(ctx)
	if err != nil {
		s.logger.Error().Err(err).Str("engine", engine.Name()).Msg("failed to open fetch session")
		now := s.now().UnixMilli()
		for i, id := range chunk {
			results[i] = domain.FetchResult{
				ID:        id.ID,
				Source:    domain.SourceDirected,
				FetchedAt: now,
				Error:     (&domain.AcquisitionError{ID: id.ID, Stage: "session", Err: err}).Error(),
			}
		}
		return results
	}
	defer func() {
		if err := sess.Close(); err != nil {
			s.logger.Warn().Err(err).Str("engine", engine.Name()).Msg("failed to close fetch session")
		}
	}()

	var g errgroup.Group
	for i, id := range chunk {
		g.Go(func() error {
			res := fetcher.Directed(ctx, sess, id, opts.ItemTimeout, s.now)
			if res.OK {
				res = s.persist(ctx, res)
			} else {
				s.logger.Warn().Str("id", id.ID).Str("error", res.Error).Int64("duration_ms", res.DurationMs).Msg("directed fetch failed")
			}
			results[i] = res
			return nil
		})
	}
	_ = g.Wait()
	return results
}

func (s *Scheduler) persist(ctx context.Context, res domain.FetchResult) domain.FetchResult {
	_, err := s.store.Append(ctx, res.ID, time.UnixMilli(res.FetchedAt), float64(*res.Players))
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrValidation):
		res.OK = false
		res.Players = nil
		res.Error = err.Error()
	default:
		s.logger.Error().Err(err).Str("id", res.ID).Msg("failed to persist directed sample")
	}
	return res
}
