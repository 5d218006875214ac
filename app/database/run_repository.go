package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Fixed width so that timestamps sort as text.
const timeLayout = "2006-01-02T15:04:05.000000Z07:00"

var _ RunStore = (*RunRepository)(nil)

// RunRepository records pipeline executions.
type RunRepository struct {
	db  *DB
	now func() time.Time
}

func NewRunRepository(db *DB) *RunRepository {
	return &RunRepository{db: db, now: time.Now}
}

// Start inserts a new run and returns its ID.
func (r *RunRepository) Start(ctx context.Context) (string, error) {
	id := uuid.New().String()

	_, err := r.db.ExecContext(ctx,
		"INSERT INTO runs (id, started_at) VALUES (?, ?)",
		id, r.now().UTC().Format(timeLayout))
	if err != nil {
		return "", fmt.Errorf("failed to start run: %w", err)
	}

	return id, nil
}

func (r *RunRepository) Finish(ctx context.Context, id, reportPath string, counts map[string]int) error {
	encoded, err := json.Marshal(counts)
	if err != nil {
		return fmt.Errorf("failed to encode run counts: %w", err)
	}

	res, err := r.db.ExecContext(ctx, `
		UPDATE runs
		SET finished_at = ?, report_path = ?, counts = ?
		WHERE id = ?
	`, r.now().UTC().Format(timeLayout), reportPath, string(encoded), id)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}

	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("run %s not found", id)
	}
	return nil
}

// Latest returns the most recently started run, or nil when there is none.
func (r *RunRepository) Latest(ctx context.Context) (*Run, error) {
	var run Run
	var startedAt string
	var finishedAt, reportPath, counts sql.NullString

	err := r.db.QueryRowContext(ctx, `
		SELECT id, started_at, finished_at, report_path, counts
		FROM runs
		ORDER BY started_at DESC
		LIMIT 1
	`).Scan(&run.ID, &startedAt, &finishedAt, &reportPath, &counts)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest run: %w", err)
	}

	run.StartedAt, _ = time.Parse(timeLayout, startedAt)
	if finishedAt.Valid {
		t, err := time.Parse(timeLayout, finishedAt.String)
		if err == nil {
			run.FinishedAt = &t
		}
	}
	run.ReportPath = reportPath.String
	if counts.Valid && counts.String != "" {
		if err := json.Unmarshal([]byte(counts.String), &run.Counts); err != nil {
			return nil, fmt.Errorf("failed to decode run counts: %w", err)
		}
	}

	return &run, nil
}
