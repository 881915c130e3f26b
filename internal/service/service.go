// Package service wires the training-run ledger, checkpoint storage, and
// the boosting engine into a worker that polls for pending runs and trains
// them to completion.
package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/gogbdt/gbdt/internal/boost"
	"github.com/gogbdt/gbdt/internal/dataset"
	"github.com/gogbdt/gbdt/internal/repository"
	"github.com/gogbdt/gbdt/internal/storage"
	"github.com/gogbdt/gbdt/pkg/config"
	apperrors "github.com/gogbdt/gbdt/pkg/errors"
	"github.com/gogbdt/gbdt/pkg/utils"
)

// trainingDatasetFile is the fixed filename a run's working directory must
// contain; SubmitRun's caller is responsible for placing the LIBSVM file
// there before the run becomes eligible for a worker.
const trainingDatasetFile = "train.libsvm"

// Service is the main application service: it owns the training-run ledger,
// the ensemble checkpoint store, and the worker pool that trains pending
// runs.
type Service struct {
	config  *config.Config
	logger  utils.Logger
	clock   utils.Clock
	db      *repository.Repositories
	storage storage.Storage

	running bool
	stopCh  chan struct{}
	wg      sync.WaitGroup
	mu      sync.Mutex
}

// New creates a new Service instance.
func New(cfg *config.Config, logger utils.Logger) (*Service, error) {
	if logger == nil {
		logger = utils.NewDefaultLogger(utils.LevelInfo, nil)
	}

	return &Service{
		config: cfg,
		logger: logger,
		clock:  utils.NewRealClock(),
		stopCh: make(chan struct{}),
	}, nil
}

// SetClock overrides the clock behind the poll loop's ticker and each run's
// phase Timer.
func (s *Service) SetClock(clock utils.Clock) {
	s.clock = clock
}

// Initialize initializes all service components.
func (s *Service) Initialize(ctx context.Context) error {
	s.logger.Info("Initializing service components...")

	if err := s.initDatabase(); err != nil {
		return fmt.Errorf("failed to initialize database: %w", err)
	}

	if err := s.initStorage(); err != nil {
		return fmt.Errorf("failed to initialize storage: %w", err)
	}

	if err := s.config.EnsureDataDir(); err != nil {
		return fmt.Errorf("failed to ensure data directory: %w", err)
	}

	s.logger.Info("Service components initialized successfully")
	return nil
}

// initDatabase initializes the database connection and repositories.
func (s *Service) initDatabase() error {
	s.logger.Info("Connecting to database (%s)...", s.config.Database.Type)

	dbConfig := &repository.DBConfig{
		Type:     s.config.Database.Type,
		Host:     s.config.Database.Host,
		Port:     s.config.Database.Port,
		Database: s.config.Database.Database,
		User:     s.config.Database.User,
		Password: s.config.Database.Password,
		MaxConns: s.config.Database.MaxConns,
	}

	gormDB, err := repository.NewGormDB(dbConfig)
	if err != nil {
		return err
	}

	s.db = repository.NewRepositories(gormDB, s.config.Database.Type)
	s.logger.Info("Database connection established")

	return nil
}

// initStorage initializes the object store backing ensemble checkpoints.
func (s *Service) initStorage() error {
	s.logger.Info("Initializing checkpoint storage (%s)...", s.config.Storage.Type)

	store, err := storage.NewStorage(&s.config.Storage)
	if err != nil {
		return err
	}

	s.storage = store
	s.logger.Info("Checkpoint storage initialized")

	return nil
}

// Start launches the worker pool that polls the ledger for pending runs.
func (s *Service) Start(ctx context.Context) error {
	s.logger.Info("Starting service...")

	s.mu.Lock()
	s.running = true
	s.mu.Unlock()

	s.wg.Add(1)
	go s.pollLoop(ctx)

	s.logger.Info("Service started successfully")
	return nil
}

// pollLoop periodically claims and trains pending runs until stopped.
func (s *Service) pollLoop(ctx context.Context) {
	defer s.wg.Done()

	interval := time.Duration(s.config.Scheduler.PollInterval) * time.Second
	if interval <= 0 {
		interval = 2 * time.Second
	}
	ticker := s.clock.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.processPendingRuns(ctx)
		}
	}
}

// processPendingRuns fetches up to TaskBatchSize pending runs and trains
// them concurrently, bounded by WorkerCount simultaneous workers.
func (s *Service) processPendingRuns(ctx context.Context) {
	batchSize := s.config.Scheduler.TaskBatchSize
	if batchSize <= 0 {
		batchSize = 10
	}
	workers := s.config.Scheduler.WorkerCount
	if workers <= 0 {
		workers = 1
	}

	runs, err := s.db.Run.GetPendingRuns(ctx, batchSize)
	if err != nil {
		s.logger.Error("Failed to query pending runs: %v", err)
		return
	}

	sem := make(chan struct{}, workers)
	var wg sync.WaitGroup
	for _, run := range runs {
		run := run
		sem <- struct{}{}
		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-sem }()
			s.trainRun(ctx, run)
		}()
	}
	wg.Wait()
}

// trainRun claims a single pending run, trains it, and persists the result.
func (s *Service) trainRun(ctx context.Context, run *repository.RunRecord) {
	log := s.logger.WithField("tid", run.TID)

	locked, err := s.db.Run.LockRunForTraining(ctx, run.TID)
	if err != nil {
		log.Error("Failed to lock run: %v", err)
		return
	}
	if !locked {
		return
	}

	log.Info("Training run started (objective=%s depth=%d rounds=%d)", run.Objective, run.Depth, run.Rounds)

	if err := s.runTraining(ctx, run); err != nil {
		log.Error("Training run failed: %v", err)
		if uerr := s.db.Run.UpdateStatusWithInfo(ctx, run.TID, repository.RunStatusFailed, err.Error()); uerr != nil {
			log.Error("Failed to record failure: %v", uerr)
		}
		s.notifyCompletion(run.TID, false, err.Error())
		return
	}

	log.Info("Training run completed")
	s.notifyCompletion(run.TID, true, "")
}

// runTraining loads the run's dataset, grows the ensemble, records
// per-round metrics, and uploads the resulting checkpoint.
func (s *Service) runTraining(ctx context.Context, run *repository.RunRecord) error {
	timer := utils.NewTimer("run "+run.TID, utils.WithLogger(s.logger), utils.WithClock(s.clock))

	loadPhase := timer.Start("load_dataset")
	runDir := s.config.GetRunDir(run.TID)
	datasetPath := filepath.Join(runDir, trainingDatasetFile)

	data, y, err := dataset.LoadLIBSVMFile(datasetPath, dataset.DefaultLoadOptions())
	loadPhase.Stop()
	if err != nil {
		return fmt.Errorf("load dataset: %w", err)
	}

	param, cfg := buildTreeParam(s.config.Training, run)
	if err := boost.Validate(param, cfg, data.Columns()); err != nil {
		return fmt.Errorf("invalid training configuration: %w", err)
	}

	obj, err := boost.NewObjective(param)
	if err != nil {
		return fmt.Errorf("invalid objective: %w", err)
	}

	ensemble := boost.NewEnsemble(param, cfg, obj)

	onRound := func(round, treesSoFar int, meanAbsGrad float64) {
		metric := repository.MetricRecord{TID: run.TID, Round: round, Loss: meanAbsGrad, Trees: treesSoFar}
		if err := s.db.Metric.RecordRound(ctx, metric); err != nil {
			s.logger.Error("Failed to record round %d for run %s: %v", round, run.TID, err)
		}
	}

	fitPhase := timer.Start("fit")
	err = ensemble.Fit(ctx, data, y, run.Rounds, onRound)
	fitPhase.Stop()
	if err != nil {
		return apperrors.Wrap(apperrors.CodeTrainingError, "fit", err)
	}

	encodePhase := timer.Start("encode_checkpoint")
	blob, err := boost.EncodeEnsemble(ensemble)
	encodePhase.Stop()
	if err != nil {
		return fmt.Errorf("encode checkpoint: %w", err)
	}

	uploadPhase := timer.Start("upload_checkpoint")
	checkpointKey := storage.CheckpointKey(run.TID)
	err = s.storage.Upload(ctx, checkpointKey, bytes.NewReader(blob))
	uploadPhase.Stop()
	if err != nil {
		return fmt.Errorf("upload checkpoint: %w", err)
	}

	if err := s.db.Run.CompleteRun(ctx, run.TID, s.config.Storage.Bucket, checkpointKey); err != nil {
		return fmt.Errorf("complete run: %w", err)
	}

	timer.PrintSummary()
	return nil
}

// buildTreeParam merges a run's stored hyperparameter overrides onto the
// service's configured training defaults.
func buildTreeParam(defaults config.TrainingConfig, run *repository.RunRecord) (boost.TreeParam, boost.InternalConfiguration) {
	p := run.Params

	param := boost.TreeParam{
		Depth:            intOr(p, "depth", run.Depth, defaults.Depth),
		MinLeafSize:      int64(floatOr(p, "min_leaf_size", float64(defaults.MinLeafSize))),
		MinChildWeight:   floatOr(p, "min_child_weight", defaults.MinChildWeight),
		Gamma:            floatOr(p, "gamma", defaults.Gamma),
		Lambda:           floatOr(p, "lambda", defaults.Lambda),
		Alpha:            floatOr(p, "alpha", defaults.Alpha),
		Eta:              floatOr(p, "eta", defaults.Eta),
		ColsampleByTree:  floatOr(p, "colsample_by_tree", defaults.ColsampleByTree),
		ColsampleByLevel: floatOr(p, "colsample_by_level", defaults.ColsampleByLevel),
		LabelsCount:      intOr(p, "labels_count", 0, defaults.LabelsCount),
		Objective:        boost.Objective(stringOr(run.Objective, defaults.Objective)),
	}
	cfg := boost.InternalConfiguration{
		Seed:            uint64(floatOr(p, "seed", float64(defaults.Seed))),
		Overlap:         intOr(p, "overlap", 0, defaults.OverlapDepth),
		DoublePrecision: defaults.DoublePrecision,
	}
	return param, cfg
}

func stringOr(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func intOr(p map[string]interface{}, key string, override, def int) int {
	if override > 0 {
		return override
	}
	if v, ok := p[key]; ok {
		if f, ok := v.(float64); ok {
			return int(f)
		}
	}
	return def
}

func floatOr(p map[string]interface{}, key string, def float64) float64 {
	if v, ok := p[key]; ok {
		if f, ok := v.(float64); ok {
			return f
		}
	}
	return def
}

// notifyCompletion fires the configured completion webhook, if enabled.
// Failures are logged, not returned: a notification is best-effort and must
// never roll back a run's already-persisted lifecycle state.
func (s *Service) notifyCompletion(tid string, success bool, errMsg string) {
	if !s.config.Notify.Enabled || s.config.Notify.URL == "" {
		return
	}

	payload, err := json.Marshal(map[string]interface{}{
		"tid":     tid,
		"success": success,
		"error":   errMsg,
	})
	if err != nil {
		s.logger.Error("Failed to marshal completion notification: %v", err)
		return
	}

	resp, err := http.Post(s.config.Notify.URL, "application/json", bytes.NewReader(payload))
	if err != nil {
		s.logger.Error("Failed to send completion notification: %v", err)
		return
	}
	resp.Body.Close()
}

// SubmitRun inserts a new pending training run. The caller is responsible
// for placing a LIBSVM dataset file at config.GetRunDir(tid)/train.libsvm
// before a worker picks the run up.
func (s *Service) SubmitRun(ctx context.Context, tid string, objective string, depth, rounds int, params map[string]interface{}) error {
	run := &repository.RunRecord{
		TID:       tid,
		Objective: objective,
		Depth:     depth,
		Rounds:    rounds,
		Bucket:    s.config.Storage.Bucket,
		Params:    params,
	}
	return s.db.Run.CreateRun(ctx, run)
}

// Stop stops the service gracefully.
func (s *Service) Stop() error {
	s.logger.Info("Stopping service...")

	s.mu.Lock()
	if s.running {
		close(s.stopCh)
	}
	s.running = false
	s.mu.Unlock()

	s.wg.Wait()

	if s.db != nil {
		if err := s.db.Close(); err != nil {
			s.logger.Error("Failed to close database connection: %v", err)
		}
	}

	s.logger.Info("Service stopped")
	return nil
}

// IsRunning returns whether the service is running.
func (s *Service) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// Stats returns service statistics.
func (s *Service) Stats() ServiceStats {
	return ServiceStats{Running: s.IsRunning()}
}

// HealthCheck performs a health check on the service.
func (s *Service) HealthCheck(ctx context.Context) error {
	if s.db != nil {
		if err := s.db.HealthCheck(ctx); err != nil {
			return fmt.Errorf("database health check failed: %w", err)
		}
	}
	return nil
}

// ServiceStats holds service statistics.
type ServiceStats struct {
	Running bool `json:"running"`
}
