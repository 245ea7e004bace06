package freshness

import (
	"context"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"time"

	"github.com/rs/zerolog"
)

type Status string

const (
	StatusFresh    Status = "fresh"
	StatusStale    Status = "stale"
	StatusNoSample Status = "no-sample"
)

type LatestReader interface {
	Latest(ctx context.Context, id string) (domain.Sample, bool, error)
}

type Verdict struct {
	ID     string
	Status Status
	Latest *domain.Sample
	Age    time.Duration
}

func (v Verdict) Fresh() bool { return v.Status == StatusFresh }

type Oracle struct {
	store  LatestReader
	ttl    time.Duration
	logger zerolog.Logger
}

func NewOracle(store LatestReader, logger zerolog.Logger) *Oracle {
	return &Oracle{store: store, ttl: constants.SampleTTL, logger: logger}
}

func (o *Oracle) WithTTL(ttl time.Duration) *Oracle {
	return &Oracle{store: o.store, ttl: ttl, logger: o.logger}
}

func (o *Oracle) TTL() time.Duration { return o.ttl }

// Check is fresh only when now - latest.ts < ttl. A read failure is reported
// as no-sample so the caller refetches.
func (o *Oracle) Check(ctx context.Context, id string, now time.Time) Verdict {
	latest, ok, err := o.store.Latest(ctx, id)
	if err != nil {
		o.logger.Warn().Err(err).Str("id", id).Msg("failed to read latest sample, treating as missing")
		return Verdict{ID: id, Status: StatusNoSample}
	}
	if !ok {
		return Verdict{ID: id, Status: StatusNoSample}
	}

	age := now.Sub(latest.Time())
	v := Verdict{ID: id, Latest: &latest, Age: age, Status: StatusStale}
	if age < o.ttl {
		v.Status = StatusFresh
	}
	return v
}

func (o *Oracle) IsFresh(ctx context.Context, id string, now time.Time) bool {
	return o.Check(ctx, id, now).Fresh()
}
