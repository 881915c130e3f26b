package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"
)

// PostgresRunRepository implements RunRepository for PostgreSQL.
type PostgresRunRepository struct {
	db *sql.DB
}

// NewPostgresRunRepository creates a new PostgresRunRepository.
func NewPostgresRunRepository(db *sql.DB) *PostgresRunRepository {
	return &PostgresRunRepository{db: db}
}

// CreateRun inserts a new pending training run.
func (r *PostgresRunRepository) CreateRun(ctx context.Context, run *RunRecord) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal run params: %w", err)
	}

	query := `
		INSERT INTO training_run (tid, objective, depth, rounds, status, status_info, bucket, params, create_time)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id
	`

	now := time.Now()
	err = r.db.QueryRowContext(ctx, query, run.TID, run.Objective, run.Depth, run.Rounds,
		RunStatusPending, run.StatusInfo, run.Bucket, paramsJSON, now).Scan(&run.ID)
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}

	run.Status = RunStatusPending
	run.CreateTime = now
	return nil
}

// GetRunByTID retrieves a training run by its ID.
func (r *PostgresRunRepository) GetRunByTID(ctx context.Context, tid string) (*RunRecord, error) {
	query := `
		SELECT id, tid, objective, depth, rounds, status, COALESCE(status_info, ''),
			   COALESCE(checkpoint_key, ''), COALESCE(bucket, ''), params,
			   create_time, begin_time, end_time
		FROM training_run
		WHERE tid = $1
	`

	rec, err := scanRunRecord(r.db.QueryRowContext(ctx, query, tid))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("training run not found: %s", tid)
		}
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}
	return rec, nil
}

// GetPendingRuns retrieves runs awaiting a worker.
func (r *PostgresRunRepository) GetPendingRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `
		SELECT id, tid, objective, depth, rounds, status, COALESCE(status_info, ''),
			   COALESCE(checkpoint_key, ''), COALESCE(bucket, ''), params,
			   create_time, begin_time, end_time
		FROM training_run
		WHERE status = $1
		ORDER BY id ASC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, RunStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec, err := scanRunRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan training run: %w", err)
		}
		runs = append(runs, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return runs, nil
}

// UpdateStatus updates the lifecycle status of a run.
func (r *PostgresRunRepository) UpdateStatus(ctx context.Context, tid string, status RunStatus) error {
	query := `UPDATE training_run SET status = $1 WHERE tid = $2`
	return r.execAffectingOne(ctx, query, tid, status, tid)
}

// UpdateStatusWithInfo updates status together with a human-readable note.
func (r *PostgresRunRepository) UpdateStatusWithInfo(ctx context.Context, tid string, status RunStatus, info string) error {
	query := `UPDATE training_run SET status = $1, status_info = $2 WHERE tid = $3`
	return r.execAffectingOne(ctx, query, tid, status, info, tid)
}

// CompleteRun records the checkpoint location and marks a run completed.
func (r *PostgresRunRepository) CompleteRun(ctx context.Context, tid string, bucket, checkpointKey string) error {
	query := `UPDATE training_run SET status = $1, bucket = $2, checkpoint_key = $3, end_time = $4 WHERE tid = $5`
	return r.execAffectingOne(ctx, query, tid, RunStatusCompleted, bucket, checkpointKey, time.Now(), tid)
}

// LockRunForTraining attempts to claim a pending run for the calling worker.
func (r *PostgresRunRepository) LockRunForTraining(ctx context.Context, tid string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status RunStatus
	query := `SELECT status FROM training_run WHERE tid = $1 AND status = $2 FOR UPDATE NOWAIT`
	err = tx.QueryRowContext(ctx, query, tid, RunStatusPending).Scan(&status)
	if err != nil {
		return false, nil
	}

	updateQuery := `UPDATE training_run SET status = $1, begin_time = $2 WHERE tid = $3`
	if _, err := tx.ExecContext(ctx, updateQuery, RunStatusRunning, time.Now(), tid); err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (r *PostgresRunRepository) execAffectingOne(ctx context.Context, query string, tid string, args ...interface{}) error {
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update training run: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("training run not found: %s", tid)
	}
	return nil
}

// PostgresMetricRepository implements MetricRepository for PostgreSQL.
type PostgresMetricRepository struct {
	db *sql.DB
}

// NewPostgresMetricRepository creates a new PostgresMetricRepository.
func NewPostgresMetricRepository(db *sql.DB) *PostgresMetricRepository {
	return &PostgresMetricRepository{db: db}
}

// RecordRound appends a completed round's training loss.
func (r *PostgresMetricRepository) RecordRound(ctx context.Context, metric MetricRecord) error {
	query := `INSERT INTO training_run_metric (tid, round, loss, trees) VALUES ($1, $2, $3, $4)`
	_, err := r.db.ExecContext(ctx, query, metric.TID, metric.Round, metric.Loss, metric.Trees)
	if err != nil {
		return fmt.Errorf("failed to record round metric: %w", err)
	}
	return nil
}

// GetMetrics retrieves every recorded round for a run, in round order.
func (r *PostgresMetricRepository) GetMetrics(ctx context.Context, tid string) ([]MetricRecord, error) {
	query := `SELECT tid, round, loss, trees FROM training_run_metric WHERE tid = $1 ORDER BY round ASC`

	rows, err := r.db.QueryContext(ctx, query, tid)
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}
	defer rows.Close()

	var metrics []MetricRecord
	for rows.Next() {
		var m MetricRecord
		if err := rows.Scan(&m.TID, &m.Round, &m.Loss, &m.Trees); err != nil {
			return nil, fmt.Errorf("failed to scan metric: %w", err)
		}
		metrics = append(metrics, m)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating rows: %w", err)
	}
	return metrics, nil
}
