package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/staylens/staylens/internal/repository/models"
)

type RunRepository struct {
	db *sql.DB
}

func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Migrate creates the run-history table if it does not exist yet.
func (r *RunRepository) Migrate(ctx context.Context) error {
	const ddl = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		created_at TEXT NOT NULL,
		years TEXT NOT NULL,
		config_json TEXT NOT NULL,
		table_json TEXT NOT NULL,
		counters_json TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created_at ON runs(created_at);
	`
	if _, err := r.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("migrate runs table: %w", err)
	}
	return nil
}

// InsertRun stores one completed pipeline run.
func (r *RunRepository) InsertRun(ctx context.Context, run models.Run) error {
	const query = `
		INSERT INTO runs (id, created_at, years, config_json, table_json, counters_json)
		VALUES (?, ?, ?, ?, ?, ?)
	`
	_, err := r.db.ExecContext(ctx, query,
		run.ID,
		run.CreatedAt.UTC().Format(time.RFC3339),
		run.Years,
		run.ConfigJSON,
		run.TableJSON,
		run.CountersJSON,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", run.ID, err)
	}
	return nil
}

// GetRun fetches one run by id.
func (r *RunRepository) GetRun(ctx context.Context, id string) (models.Run, error) {
	const query = `
		SELECT id, created_at, years, config_json, table_json, counters_json
		FROM runs
		WHERE id = ?
	`
	var run models.Run
	var created string
	err := r.db.QueryRowContext(ctx, query, id).Scan(
		&run.ID, &created, &run.Years, &run.ConfigJSON, &run.TableJSON, &run.CountersJSON)
	if err != nil {
		return models.Run{}, fmt.Errorf("query GetRun: %w", err)
	}
	run.CreatedAt, err = time.Parse(time.RFC3339, created)
	if err != nil {
		return models.Run{}, fmt.Errorf("parse run %s created_at: %w", id, err)
	}
	return run, nil
}

// ListRuns returns the most recent runs, newest first.
func (r *RunRepository) ListRuns(ctx context.Context, limit int) ([]models.Run, error) {
	if limit <= 0 {
		limit = 20
	}
	const query = `
		SELECT id, created_at, years, config_json, table_json, counters_json
		FROM runs
		ORDER BY created_at DESC
		LIMIT ?
	`
	rows, err := r.db.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("query ListRuns: %w", err)
	}
	defer rows.Close()

	var runs []models.Run
	for rows.Next() {
		var run models.Run
		var created string
		if err := rows.Scan(&run.ID, &created, &run.Years, &run.ConfigJSON, &run.TableJSON, &run.CountersJSON); err != nil {
			return nil, fmt.Errorf("scan ListRuns row: %w", err)
		}
		run.CreatedAt, err = time.Parse(time.RFC3339, created)
		if err != nil {
			return nil, fmt.Errorf("parse run %s created_at: %w", run.ID, err)
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ListRuns rows: %w", err)
	}
	return runs, nil
}
