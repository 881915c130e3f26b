package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// GormRunRepository implements RunRepository using GORM.
type GormRunRepository struct {
	db *gorm.DB
}

// NewGormRunRepository creates a new GormRunRepository.
func NewGormRunRepository(db *gorm.DB) *GormRunRepository {
	return &GormRunRepository{db: db}
}

// CreateRun inserts a new pending training run.
func (r *GormRunRepository) CreateRun(ctx context.Context, run *RunRecord) error {
	paramsJSON, err := json.Marshal(run.Params)
	if err != nil {
		return fmt.Errorf("failed to marshal run params: %w", err)
	}

	record := &TrainingRun{
		TID:        run.TID,
		Objective:  run.Objective,
		Depth:      run.Depth,
		Rounds:     run.Rounds,
		Status:     RunStatusPending,
		StatusInfo: run.StatusInfo,
		Bucket:     run.Bucket,
		Params:     JSONField(paramsJSON),
	}

	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to create training run: %w", err)
	}

	run.ID = record.ID
	run.Status = record.Status
	run.CreateTime = record.CreateTime
	return nil
}

// GetRunByTID retrieves a training run by its ID.
func (r *GormRunRepository) GetRunByTID(ctx context.Context, tid string) (*RunRecord, error) {
	var record TrainingRun

	err := r.db.WithContext(ctx).Where("tid = ?", tid).First(&record).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("training run not found: %s", tid)
		}
		return nil, fmt.Errorf("failed to get training run: %w", err)
	}

	return record.ToModel(), nil
}

// GetPendingRuns retrieves runs awaiting a worker.
func (r *GormRunRepository) GetPendingRuns(ctx context.Context, limit int) ([]*RunRecord, error) {
	var records []TrainingRun

	err := r.db.WithContext(ctx).
		Where("status = ?", RunStatusPending).
		Order("id ASC").
		Limit(limit).
		Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query pending runs: %w", err)
	}

	result := make([]*RunRecord, len(records))
	for i := range records {
		result[i] = records[i].ToModel()
	}
	return result, nil
}

// UpdateStatus updates the lifecycle status of a run.
func (r *GormRunRepository) UpdateStatus(ctx context.Context, tid string, status RunStatus) error {
	result := r.db.WithContext(ctx).
		Model(&TrainingRun{}).
		Where("tid = ?", tid).
		Update("status", status)

	if result.Error != nil {
		return fmt.Errorf("failed to update run status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("training run not found: %s", tid)
	}
	return nil
}

// UpdateStatusWithInfo updates status together with a human-readable note.
func (r *GormRunRepository) UpdateStatusWithInfo(ctx context.Context, tid string, status RunStatus, info string) error {
	result := r.db.WithContext(ctx).
		Model(&TrainingRun{}).
		Where("tid = ?", tid).
		Updates(map[string]interface{}{
			"status":      status,
			"status_info": info,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to update run status: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("training run not found: %s", tid)
	}
	return nil
}

// CompleteRun records the checkpoint location and marks a run completed.
func (r *GormRunRepository) CompleteRun(ctx context.Context, tid string, bucket, checkpointKey string) error {
	now := time.Now()
	result := r.db.WithContext(ctx).
		Model(&TrainingRun{}).
		Where("tid = ?", tid).
		Updates(map[string]interface{}{
			"status":         RunStatusCompleted,
			"bucket":         bucket,
			"checkpoint_key": checkpointKey,
			"end_time":       &now,
		})

	if result.Error != nil {
		return fmt.Errorf("failed to complete run: %w", result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("training run not found: %s", tid)
	}
	return nil
}

// LockRunForTraining atomically claims a pending run for the calling worker.
func (r *GormRunRepository) LockRunForTraining(ctx context.Context, tid string) (bool, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var record TrainingRun

		err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("tid = ? AND status = ?", tid, RunStatusPending).
			First(&record).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return gorm.ErrRecordNotFound
			}
			return err
		}

		now := time.Now()
		return tx.Model(&TrainingRun{}).
			Where("tid = ?", tid).
			Updates(map[string]interface{}{
				"status":     RunStatusRunning,
				"begin_time": &now,
			}).Error
	})

	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return false, nil
		}
		return false, fmt.Errorf("failed to lock run: %w", err)
	}
	return true, nil
}

// GormMetricRepository implements MetricRepository using GORM.
type GormMetricRepository struct {
	db *gorm.DB
}

// NewGormMetricRepository creates a new GormMetricRepository.
func NewGormMetricRepository(db *gorm.DB) *GormMetricRepository {
	return &GormMetricRepository{db: db}
}

// RecordRound appends a completed round's training loss.
func (r *GormMetricRepository) RecordRound(ctx context.Context, metric MetricRecord) error {
	record := &RunMetric{
		TID:   metric.TID,
		Round: metric.Round,
		Loss:  metric.Loss,
		Trees: metric.Trees,
	}
	if err := r.db.WithContext(ctx).Create(record).Error; err != nil {
		return fmt.Errorf("failed to record round metric: %w", err)
	}
	return nil
}

// GetMetrics retrieves every recorded round for a run, in round order.
func (r *GormMetricRepository) GetMetrics(ctx context.Context, tid string) ([]MetricRecord, error) {
	var records []RunMetric

	err := r.db.WithContext(ctx).Where("tid = ?", tid).Order("round ASC").Find(&records).Error
	if err != nil {
		return nil, fmt.Errorf("failed to query metrics: %w", err)
	}

	out := make([]MetricRecord, len(records))
	for i := range records {
		out[i] = records[i].ToModel()
	}
	return out, nil
}
