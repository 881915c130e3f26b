package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func setupTestDB(t *testing.T) *gorm.DB {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	err = db.AutoMigrate(&TrainingRun{}, &RunMetric{})
	require.NoError(t, err)

	return db
}

func TestGormRunRepository_CreateAndGet(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	t.Run("GetRunByTID_NotFound", func(t *testing.T) {
		run, err := repo.GetRunByTID(ctx, "nonexistent")
		assert.Error(t, err)
		assert.Nil(t, run)
		assert.Contains(t, err.Error(), "training run not found")
	})

	t.Run("CreateRun_Success", func(t *testing.T) {
		run := &RunRecord{
			TID:       "run-1",
			Objective: "logistic_regression",
			Depth:     6,
			Rounds:    100,
			Params:    map[string]interface{}{"eta": 0.3},
		}
		require.NoError(t, repo.CreateRun(ctx, run))
		assert.NotZero(t, run.ID)
		assert.Equal(t, RunStatusPending, run.Status)

		fetched, err := repo.GetRunByTID(ctx, "run-1")
		require.NoError(t, err)
		assert.Equal(t, "logistic_regression", fetched.Objective)
		assert.Equal(t, 6, fetched.Depth)
		assert.Equal(t, 0.3, fetched.Params["eta"])
	})
}

func TestGormRunRepository_GetPendingRuns(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateRun(ctx, &RunRecord{TID: "p-1", Objective: "linear_regression"}))
	require.NoError(t, repo.CreateRun(ctx, &RunRecord{TID: "p-2", Objective: "linear_regression"}))
	require.NoError(t, repo.UpdateStatus(ctx, "p-2", RunStatusRunning))

	runs, err := repo.GetPendingRuns(ctx, 10)
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "p-1", runs[0].TID)
}

func TestGormRunRepository_UpdateStatus(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	t.Run("UpdateStatus_NotFound", func(t *testing.T) {
		err := repo.UpdateStatus(ctx, "missing", RunStatusRunning)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "training run not found")
	})

	t.Run("UpdateStatusWithInfo_Success", func(t *testing.T) {
		require.NoError(t, repo.CreateRun(ctx, &RunRecord{TID: "run-2", Objective: "linear_regression"}))
		require.NoError(t, repo.UpdateStatusWithInfo(ctx, "run-2", RunStatusFailed, "diverged"))

		fetched, err := repo.GetRunByTID(ctx, "run-2")
		require.NoError(t, err)
		assert.Equal(t, RunStatusFailed, fetched.Status)
		assert.Equal(t, "diverged", fetched.StatusInfo)
	})
}

func TestGormRunRepository_CompleteRun(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.CreateRun(ctx, &RunRecord{TID: "run-3", Objective: "linear_regression"}))
	require.NoError(t, repo.CompleteRun(ctx, "run-3", "bucket-a", "runs/run-3/ensemble.bin"))

	fetched, err := repo.GetRunByTID(ctx, "run-3")
	require.NoError(t, err)
	assert.Equal(t, RunStatusCompleted, fetched.Status)
	assert.Equal(t, "bucket-a", fetched.Bucket)
	assert.Equal(t, "runs/run-3/ensemble.bin", fetched.CheckpointKey)
	assert.NotNil(t, fetched.EndTime)
}

func TestGormRunRepository_LockRunForTraining(t *testing.T) {
	db := setupTestDB(t)
	repo := NewGormRunRepository(db)
	ctx := context.Background()

	t.Run("Lock_NotFound", func(t *testing.T) {
		locked, err := repo.LockRunForTraining(ctx, "missing")
		require.NoError(t, err)
		assert.False(t, locked)
	})

	t.Run("Lock_Success", func(t *testing.T) {
		require.NoError(t, repo.CreateRun(ctx, &RunRecord{TID: "run-4", Objective: "linear_regression"}))

		locked, err := repo.LockRunForTraining(ctx, "run-4")
		require.NoError(t, err)
		assert.True(t, locked)

		fetched, err := repo.GetRunByTID(ctx, "run-4")
		require.NoError(t, err)
		assert.Equal(t, RunStatusRunning, fetched.Status)
		assert.NotNil(t, fetched.BeginTime)
	})

	t.Run("Lock_AlreadyRunning", func(t *testing.T) {
		locked, err := repo.LockRunForTraining(ctx, "run-4")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestGormMetricRepository(t *testing.T) {
	db := setupTestDB(t)
	runs := NewGormRunRepository(db)
	repo := NewGormMetricRepository(db)
	ctx := context.Background()

	require.NoError(t, runs.CreateRun(ctx, &RunRecord{TID: "metric-run", Objective: "linear_regression"}))

	t.Run("RecordRound_Success", func(t *testing.T) {
		require.NoError(t, repo.RecordRound(ctx, MetricRecord{TID: "metric-run", Round: 0, Loss: 1.5, Trees: 1}))
		require.NoError(t, repo.RecordRound(ctx, MetricRecord{TID: "metric-run", Round: 1, Loss: 1.1, Trees: 2}))
	})

	t.Run("GetMetrics_OrderedByRound", func(t *testing.T) {
		metrics, err := repo.GetMetrics(ctx, "metric-run")
		require.NoError(t, err)
		require.Len(t, metrics, 2)
		assert.Equal(t, 0, metrics[0].Round)
		assert.Equal(t, 1, metrics[1].Round)
		assert.Greater(t, metrics[0].Loss, metrics[1].Loss)
	})

	t.Run("GetMetrics_Empty", func(t *testing.T) {
		metrics, err := repo.GetMetrics(ctx, "no-such-run")
		require.NoError(t, err)
		assert.Empty(t, metrics)
	})
}
