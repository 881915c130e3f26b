package repository

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMySQLRunRepository_CreateRun(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRunRepository(db)

	mock.ExpectExec("INSERT INTO training_run").
		WithArgs("run-1", "logistic_regression", 6, 100, RunStatusPending, "", "", sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(42, 1))

	run := &RunRecord{TID: "run-1", Objective: "logistic_regression", Depth: 6, Rounds: 100}
	require.NoError(t, repo.CreateRun(context.Background(), run))
	assert.Equal(t, int64(42), run.ID)
}

func TestMySQLRunRepository_GetRunByTID(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRunRepository(db)

	t.Run("Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{
			"id", "tid", "objective", "depth", "rounds", "status", "status_info",
			"checkpoint_key", "bucket", "params", "create_time", "begin_time", "end_time",
		}).AddRow(int64(1), "run-1", "linear_regression", 4, 50, int(RunStatusRunning), "",
			"", "", []byte(`{}`), time.Now(), nil, nil)

		mock.ExpectQuery("SELECT id, tid, objective").WithArgs("run-1").WillReturnRows(rows)

		run, err := repo.GetRunByTID(context.Background(), "run-1")
		require.NoError(t, err)
		assert.Equal(t, "linear_regression", run.Objective)
		assert.Equal(t, RunStatusRunning, run.Status)
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectQuery("SELECT id, tid, objective").WithArgs("missing").WillReturnError(sql.ErrNoRows)

		run, err := repo.GetRunByTID(context.Background(), "missing")
		assert.Error(t, err)
		assert.Nil(t, run)
		assert.Contains(t, err.Error(), "training run not found")
	})
}

func TestMySQLRunRepository_UpdateStatus(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRunRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectExec("UPDATE training_run SET status").
			WithArgs(RunStatusCompleted, "run-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		require.NoError(t, repo.UpdateStatus(context.Background(), "run-1", RunStatusCompleted))
	})

	t.Run("NotFound", func(t *testing.T) {
		mock.ExpectExec("UPDATE training_run SET status").
			WithArgs(RunStatusCompleted, "missing").
			WillReturnResult(sqlmock.NewResult(0, 0))

		err := repo.UpdateStatus(context.Background(), "missing", RunStatusCompleted)
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "training run not found")
	})
}

func TestMySQLRunRepository_LockRunForTraining(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLRunRepository(db)

	t.Run("Success", func(t *testing.T) {
		mock.ExpectBegin()

		rows := sqlmock.NewRows([]string{"status"}).AddRow(int(RunStatusPending))
		mock.ExpectQuery("SELECT status FROM training_run").
			WithArgs("run-1", RunStatusPending).
			WillReturnRows(rows)

		mock.ExpectExec("UPDATE training_run SET status").
			WithArgs(RunStatusRunning, sqlmock.AnyArg(), "run-1").
			WillReturnResult(sqlmock.NewResult(0, 1))

		mock.ExpectCommit()

		locked, err := repo.LockRunForTraining(context.Background(), "run-1")
		require.NoError(t, err)
		assert.True(t, locked)
	})

	t.Run("AlreadyLocked", func(t *testing.T) {
		mock.ExpectBegin()
		mock.ExpectQuery("SELECT status FROM training_run").
			WithArgs("run-1", RunStatusPending).
			WillReturnError(sql.ErrNoRows)
		mock.ExpectRollback()

		locked, err := repo.LockRunForTraining(context.Background(), "run-1")
		require.NoError(t, err)
		assert.False(t, locked)
	})
}

func TestMySQLMetricRepository(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	repo := NewMySQLMetricRepository(db)

	t.Run("RecordRound_Success", func(t *testing.T) {
		mock.ExpectExec("INSERT INTO training_run_metric").
			WithArgs("run-1", 0, 1.5, 1).
			WillReturnResult(sqlmock.NewResult(1, 1))

		require.NoError(t, repo.RecordRound(context.Background(), MetricRecord{TID: "run-1", Round: 0, Loss: 1.5, Trees: 1}))
	})

	t.Run("GetMetrics_Success", func(t *testing.T) {
		rows := sqlmock.NewRows([]string{"tid", "round", "loss", "trees"}).
			AddRow("run-1", 0, 1.5, 1).
			AddRow("run-1", 1, 1.1, 2)

		mock.ExpectQuery("SELECT tid, round, loss").WithArgs("run-1").WillReturnRows(rows)

		metrics, err := repo.GetMetrics(context.Background(), "run-1")
		require.NoError(t, err)
		require.Len(t, metrics, 2)
		assert.Equal(t, 1.1, metrics[1].Loss)
	})
}
