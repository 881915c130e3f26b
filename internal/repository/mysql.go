package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// MySQLRunRepository implements RunRepository for MySQL.
type MySQLRunRepository struct {
	db *sql.DB
}

// NewMySQLRunRepository creates a new MySQLRunRepository.
func NewMySQLRunRepository(db *sql.DB) *MySQLRunRepository {
	return &MySQLRunRepository{db: db}
}

// CreateRun inserts a new pending training run.
func (r *MySQLRunRepository) CreateRun(ctx context.Context, run *RunRecord) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal run params: %w", err)
	}

	query := `
		INSERT INTO training_run (tid, objective, depth, rounds, status, status_info, bucket, params, create_time)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	now := time.Now()
	result, err := r.db.ExecContext(ctx, query, run.TID, run.Objective, run.Depth, run.Rounds,
		RunStatusPending, run.StatusInfo, run.Bucket, paramsJSON, now)
	if err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read inserted id: %w", err)
	}

	run.ID = id
	run.Status = RunStatusPending
	run.CreateTime = now
	return nil
}

// GetRunByTID retrieves a training run by its ID.
func (r *MySQLRunRepository) GetRunByTID(ctx context.Context, tid string) (*RunRecord, error) {
	query := `
		SELECT id, tid, objective, depth, rounds, status, COALESCE(status_info, ''),
			   COALESCE(checkpoint_key, ''), COALESCE(bucket, ''), params,
			   create_time, begin_time, end_time
		FROM training_run
		WHERE tid = ?
	`

	rec, err := r.scanRun(r.db.QueryRowContext(ctx, query, tid))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, fmt.Errorf("training run not found: %s", tid)
		}
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}
	return rec, nil
}

// GetPendingRuns retrieves runs awaiting a worker.
func (r *MySQLRunRepository) GetPendingRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	query := `
		SELECT id, tid, objective, depth, rounds, status, COALESCE(status_info, ''),
			   COALESCE(checkpoint_key, ''), COALESCE(bucket, ''), params,
			   create_time, begin_time, end_time
		FROM training_run
		WHERE status = ?
		ORDER BY id ASC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, query, RunStatusPending, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query pending runs: %w", err)
	}
	defer rows.Close()

	var runs []*RunRecord
	for rows.Next() {
		rec, err := r.scanRunRow(rows)
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
func (r *MySQLRunRepository) UpdateStatus(ctx context.Context, tid string, status RunStatus) error {
	query := `UPDATE training_run SET status = ? WHERE tid = ?`
	return r.execAffectingOne(ctx, query, tid, status, tid)
}

// UpdateStatusWithInfo updates status together with a human-readable note.
func (r *MySQLRunRepository) UpdateStatusWithInfo(ctx context.Context, tid string, status RunStatus, info string) error {
	query := `UPDATE training_run SET status = ?, status_info = ? WHERE tid = ?`
	return r.execAffectingOne(ctx, query, tid, status, info, tid)
}

// CompleteRun records the checkpoint location and marks a run completed.
func (r *MySQLRunRepository) CompleteRun(ctx context.Context, tid string, bucket, checkpointKey string) error {
	query := `UPDATE training_run SET status = ?, bucket = ?, checkpoint_key = ?, end_time = ? WHERE tid = ?`
	return r.execAffectingOne(ctx, query, tid, RunStatusCompleted, bucket, checkpointKey, time.Now(), tid)
}

// LockRunForTraining attempts to claim a pending run for the calling worker.
func (r *MySQLRunRepository) LockRunForTraining(ctx context.Context, tid string) (bool, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var status RunStatus
	query := `SELECT status FROM training_run WHERE tid = ? AND status = ? FOR UPDATE`
	err = tx.QueryRowContext(ctx, query, tid, RunStatusPending).Scan(&status)
	if err != nil {
		if err == sql.ErrNoRows || strings.Contains(err.Error(), "lock wait timeout") {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock run: %w", err)
	}

	updateQuery := `UPDATE training_run SET status = ?, begin_time = ? WHERE tid = ?`
	if _, err := tx.ExecContext(ctx, updateQuery, RunStatusRunning, time.Now(), tid); err != nil {
		return false, fmt.Errorf("failed to update status: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}

func (r *MySQLRunRepository) execAffectingOne(ctx context.Context, query string, tid string, args ...interface{}) error {
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

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func (r *MySQLRunRepository) scanRun(row rowScanner) (*RunRecord, error) {
	return scanRunRecord(row)
}

func (r *MySQLRunRepository) scanRunRow(row *sql.Rows) (*RunRecord, error) {
	return scanRunRecord(row)
}

func scanRunRecord(row rowScanner) (*RunRecord, error) {
	rec := &RunRecord{}
	var status int
	var paramsJSON []byte
	var beginTime, endTime sql.NullTime

	err := row.Scan(
		&rec.ID, &rec.TID, &rec.Objective, &rec.Depth, &rec.Rounds, &status,
		&rec.StatusInfo, &rec.CheckpointKey, &rec.Bucket, &paramsJSON,
		&rec.CreateTime, &beginTime, &endTime,
	)
	if err != nil {
		return nil, err
	}

	rec.Status = RunStatus(status)
	if beginTime.Valid {
		rec.BeginTime = &beginTime.Time
	}
	if endTime.Valid {
		rec.EndTime = &endTime.Time
	}
	if paramsJSON != nil {
		if err := json.Unmarshal(paramsJSON, &rec.Params); err != nil {
			return nil, fmt.Errorf("failed to parse run params: %w", err)
		}
	}
	return rec, nil
}

// MySQLMetricRepository implements MetricRepository for MySQL.
type MySQLMetricRepository struct {
	db *sql.DB
}

// NewMySQLMetricRepository creates a new MySQLMetricRepository.
func NewMySQLMetricRepository(db *sql.DB) *MySQLMetricRepository {
	return &MySQLMetricRepository{db: db}
}

// RecordRound appends a completed round's training loss.
func (r *MySQLMetricRepository) RecordRound(ctx context.Context, metric MetricRecord) error {
	query := `INSERT INTO training_run_metric (tid, round, loss, trees) VALUES (?, ?, ?, ?)`
	_, err := r.db.ExecContext(ctx, query, metric.TID, metric.Round, metric.Loss, metric.Trees)
	if err != nil {
		return fmt.Errorf("failed to record round metric: %w", err)
	}
	return nil
}

// GetMetrics retrieves every recorded round for a run, in round order.
func (r *MySQLMetricRepository) GetMetrics(ctx context.Context, tid string) ([]MetricRecord, error) {
	query := `SELECT tid, round, loss, trees FROM training_run_metric WHERE tid = ? ORDER BY round ASC`

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
