package repository

import (
	"context"
	"database/sql"
	"fmt"
	"livegame-tracker/internal/domain"

	"github.com/rs/zerolog"
)

type RunRepository struct {
	db     *sql.DB
	logger zerolog.Logger
}

func NewRunRepository(sqlDB *sql.DB, logger zerolog.Logger) *RunRepository {
	return &RunRepository{db: sqlDB, logger: logger}
}

const insertRun = `
INSERT INTO ingest_runs (
    id, trigger, engine, started_at, finished_at,
    checked, stale, lobby_hits, attempted, succeeded, skipped, ok, lock_skipped
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

func (r *RunRepository) Record(ctx context.Context, run domain.IngestRun) error {
	_, err := r.db.ExecContext(ctx, insertRun,
		run.ID, run.Trigger, run.Engine, run.StartedAt.UTC(), run.FinishedAt.UTC(),
		run.Checked, run.Stale, run.LobbyHits, run.Attempted, run.Succeeded, run.Skipped,
		run.OK, run.LockSkipped,
	)
	if err != nil {
		r.logger.Error().Err(err).Str("run_id", run.ID).Msg("failed to record ingest run")
		return fmt.Errorf("failed to record ingest run %s: %w", run.ID, err)
	}
	return nil
}

const recentRuns = `
SELECT id, trigger, engine, started_at, finished_at,
       checked, stale, lobby_hits, attempted, succeeded, skipped, ok, lock_skipped
FROM ingest_runs
ORDER BY started_at DESC
LIMIT ?`

func (r *RunRepository) Recent(ctx context.Context, limit int) ([]domain.IngestRun, error) {
	rows, err := r.db.QueryContext(ctx, recentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query ingest runs: %w", err)
	}
	defer rows.Close()

	runs := []domain.IngestRun{}
	for rows.Next() {
		var run domain.IngestRun
		if err := rows.Scan(
			&run.ID, &run.Trigger, &run.Engine, &run.StartedAt, &run.FinishedAt,
			&run.Checked, &run.Stale, &run.LobbyHits, &run.Attempted, &run.Succeeded, &run.Skipped,
			&run.OK, &run.LockSkipped,
		); err != nil {
			return nil, fmt.Errorf("failed to scan ingest run: %w", err)
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
