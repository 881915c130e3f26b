// Package repository persists the training-run ledger: one row per
// boosting run, tracking its configuration, lifecycle status, and the
// storage key of its checkpointed ensemble, plus one row per completed
// round recording that round's training loss.
package repository

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// RunStatus is a training run's lifecycle state.
type RunStatus int

const (
	RunStatusPending RunStatus = iota
	RunStatusRunning
	RunStatusCompleted
	RunStatusFailed
)

// TrainingRun represents the training_run table: one row per invocation of
// the boosting loop.
type TrainingRun struct {
	ID            int64     `gorm:"column:id;primaryKey;autoIncrement"`
	TID           string    `gorm:"column:tid;type:varchar(64);uniqueIndex"`
	Objective     string    `gorm:"column:objective;type:varchar(64)"`
	Depth         int       `gorm:"column:depth"`
	Rounds        int       `gorm:"column:rounds"`
	Status        RunStatus `gorm:"column:status"`
	StatusInfo    string    `gorm:"column:status_info;type:text"`
	CheckpointKey string    `gorm:"column:checkpoint_key;type:varchar(512)"`
	Bucket        string    `gorm:"column:bucket;type:varchar(128)"`
	Params        JSONField `gorm:"column:params;type:json"`
	CreateTime    time.Time `gorm:"column:create_time;autoCreateTime"`
	BeginTime     *time.Time `gorm:"column:begin_time"`
	EndTime       *time.Time `gorm:"column:end_time"`
}

// TableName returns the table name for TrainingRun.
func (TrainingRun) TableName() string { return "training_run" }

// ToModel converts TrainingRun to the RunRecord domain type.
func (t *TrainingRun) ToModel() *RunRecord {
	rec := &RunRecord{
		ID:            t.ID,
		TID:           t.TID,
		Objective:     t.Objective,
		Depth:         t.Depth,
		Rounds:        t.Rounds,
		Status:        t.Status,
		StatusInfo:    t.StatusInfo,
		CheckpointKey: t.CheckpointKey,
		Bucket:        t.Bucket,
		CreateTime:    t.CreateTime,
		BeginTime:     t.BeginTime,
		EndTime:       t.EndTime,
	}
	if t.Params != nil {
		_ = json.Unmarshal(t.Params, &rec.Params)
	}
	return rec
}

// RunMetric represents the training_run_metric table: one row per
// completed round, recording the round's training loss.
type RunMetric struct {
	ID     int64   `gorm:"column:id;primaryKey;autoIncrement"`
	TID    string  `gorm:"column:tid;type:varchar(64);index"`
	Round  int     `gorm:"column:round"`
	Loss   float64 `gorm:"column:loss"`
	Trees  int     `gorm:"column:trees"`
}

// TableName returns the table name for RunMetric.
func (RunMetric) TableName() string { return "training_run_metric" }

// ToModel converts RunMetric to the domain type.
func (m *RunMetric) ToModel() MetricRecord {
	return MetricRecord{TID: m.TID, Round: m.Round, Loss: m.Loss, Trees: m.Trees}
}

// JSONField is a custom type for handling JSON columns across GORM and raw
// database/sql backends.
type JSONField []byte

// Value implements driver.Valuer.
func (j JSONField) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return []byte(j), nil
}

// Scan implements sql.Scanner.
func (j *JSONField) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}
	switch v := value.(type) {
	case []byte:
		*j = append((*j)[0:0], v...)
		return nil
	case string:
		*j = []byte(v)
		return nil
	default:
		return errors.New("unsupported type for JSONField")
	}
}

// MarshalJSON implements json.Marshaler.
func (j JSONField) MarshalJSON() ([]byte, error) {
	if j == nil {
		return []byte("null"), nil
	}
	return j, nil
}

// UnmarshalJSON implements json.Unmarshaler.
func (j *JSONField) UnmarshalJSON(data []byte) error {
	if data == nil || string(data) == "null" {
		*j = nil
		return nil
	}
	*j = append((*j)[0:0], data...)
	return nil
}
