// Package repository provides database abstraction for the training service.
package repository

import (
	"context"
	"time"
)

// RunRecord is the domain-level view of a TrainingRun row, decoupled from
// the GORM/SQL tagging on the storage model.
type RunRecord struct {
	ID            int64
	TID           string
	Objective     string
	Depth         int
	Rounds        int
	Status        RunStatus
	StatusInfo    string
	CheckpointKey string
	Bucket        string
	Params        map[string]interface{}
	CreateTime    time.Time
	BeginTime     *time.Time
	EndTime       *time.Time
}

// MetricRecord is the domain-level view of a RunMetric row.
type MetricRecord struct {
	TID   string
	Round int
	Loss  float64
	Trees int
}

// RunRepository defines the interface for training-run lifecycle operations.
type RunRepository interface {
	// CreateRun inserts a new pending training run.
	CreateRun(ctx context.Context, run *RunRecord) error

	// GetRunByTID retrieves a training run by its ID.
	GetRunByTID(ctx context.Context, tid string) (*RunRecord, error)

	// GetPendingRuns retrieves runs awaiting a worker.
	GetPendingRuns(ctx context.Context, limit int) ([]*RunRecord, error)

	// UpdateStatus updates the lifecycle status of a run.
	UpdateStatus(ctx context.Context, tid string, status RunStatus) error

	// UpdateStatusWithInfo updates status together with a human-readable note.
	UpdateStatusWithInfo(ctx context.Context, tid string, status RunStatus, info string) error

	// CompleteRun records the checkpoint location and marks a run completed.
	CompleteRun(ctx context.Context, tid string, bucket, checkpointKey string) error

	// LockRunForTraining atomically claims a pending run for the calling worker,
	// transitioning it to running. Returns false if another worker already
	// holds the lock or the run is not pending.
	LockRunForTraining(ctx context.Context, tid string) (bool, error)
}

// MetricRepository defines the interface for per-round metric operations.
type MetricRepository interface {
	// RecordRound appends a completed round's training loss.
	RecordRound(ctx context.Context, metric MetricRecord) error

	// GetMetrics retrieves every recorded round for a run, in round order.
	GetMetrics(ctx context.Context, tid string) ([]MetricRecord, error)
}
