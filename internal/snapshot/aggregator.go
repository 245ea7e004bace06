package snapshot

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"livegame-tracker/internal/constants"
	"livegame-tracker/internal/domain"
	"livegame-tracker/internal/storage"
	"time"

	"github.com/rs/zerolog"
)

type Aggregator struct {
	backend storage.Backend
	ttl     time.Duration
	now     func() time.Time
	logger  zerolog.Logger
}

func NewAggregator(backend storage.Backend, logger zerolog.Logger) *Aggregator {
	return &Aggregator{backend: backend, ttl: constants.SnapshotTTL, now: time.Now, logger: logger}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	return &Aggregator{backend: a.backend, ttl: a.ttl, now: now, logger: a.logger}
}

// Build folds one cycle's results into a fresh snapshot.
func (a *Aggregator) Build(results []domain.FetchResult, meta domain.SnapshotMeta) domain.Snapshot {
	return a.Merge(nil, results, meta)
}

// Merge applies results on top of prev. A failed result keeps the previous
// value for its identifier and only records the new error.
func (a *Aggregator) Merge(prev *domain.Snapshot, results []domain.FetchResult, meta domain.SnapshotMeta) domain.Snapshot {
	snap := domain.Snapshot{
		UpdatedAt: a.now().UnixMilli(),
		Items:     make(map[string]domain.SnapshotItem),
		Meta:      meta,
	}
	if prev != nil {
		for id, item := range prev.Items {
			snap.Items[id] = item
		}
	}

	for _, r := range results {
		if r.OK && r.Players != nil {
			players := *r.Players
			fetchedAt := r.FetchedAt
			snap.Items[r.ID] = domain.SnapshotItem{Players: &players, FetchedAt: &fetchedAt}
			continue
		}
		errMsg := r.Error
		if errMsg == "" {
			errMsg = "no value"
		}
		item := snap.Items[r.ID]
		item.Error = &errMsg
		snap.Items[r.ID] = item
	}

	snap.Rollup = rollup(snap.Items)
	return snap
}

func rollup(items map[string]domain.SnapshotItem) domain.Rollup {
	var r domain.Rollup
	for _, item := range items {
		if item.Players == nil {
			continue
		}
		r.TrackedTotal += *item.Players
		r.TrackedCount++
	}
	return r
}

func (a *Aggregator) Store(ctx context.Context, snap domain.Snapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	if err := a.backend.Set(ctx, constants.SnapshotKey, raw, a.ttl); err != nil {
		a.logger.Error().Err(err).Msg("failed to store snapshot")
		return fmt.Errorf("failed to store snapshot: %w", err)
	}
	a.logger.Debug().Int("items", len(snap.Items)).Int("tracked_total", snap.Rollup.TrackedTotal).Msg("snapshot stored")
	return nil
}

// Load returns false for a missing, corrupt or unreadable snapshot.
func (a *Aggregator) Load(ctx context.Context) (*domain.Snapshot, bool) {
	raw, err := a.backend.Get(ctx, constants.SnapshotKey)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			a.logger.Warn().Err(err).Msg("failed to load snapshot")
		}
		return nil, false
	}
	var snap domain.Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		a.logger.Warn().Err(err).Msg("discarding corrupt snapshot")
		return nil, false
	}
	if snap.Items == nil {
		snap.Items = make(map[string]domain.SnapshotItem)
	}
	return &snap, true
}

func IsStale(snap *domain.Snapshot, maxAge time.Duration, now time.Time) bool {
	if snap == nil {
		return true
	}
	return now.Sub(time.UnixMilli(snap.UpdatedAt)) > maxAge
}
