package scheduler

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/logger"
	"sap-sales-sync/internal/metrics"
	"sap-sales-sync/internal/service"

	"github.com/robfig/cron/v3"
)

// ErrAlreadyRunning is returned by RunNow while a sync sequence is in flight
var ErrAlreadyRunning = errors.New("sync sequence already running")

// retentionSpec runs the run log cleanup daily at 03:00
const retentionSpec = "0 0 3 * * *"

// Runner executes the entity sequence. *service.SyncService satisfies it.
type Runner interface {
	RunAll(ctx context.Context, trigger string, pause time.Duration) []service.EntityOutcome
	DeleteOldRuns(ctx context.Context, olderThan time.Duration) (int64, error)
}

type Scheduler struct {
	cron    *cron.Cron
	runner  Runner
	cfg     config.SchedulerConfig
	metrics *metrics.Metrics

	running atomic.Bool
	ctx     context.Context
	cancel  context.CancelFunc
}

func NewScheduler(runner Runner, cfg config.SchedulerConfig, m *metrics.Metrics) *Scheduler {
	// Create cron with second precision, logging through zerolog
	c := cron.New(
		cron.WithSeconds(),
		cron.WithLogger(cronLogger{}),
		cron.WithChain(cron.Recover(cronLogger{})),
	)

	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		cron:    c,
		runner:  runner,
		cfg:     cfg,
		metrics: m,
		ctx:     ctx,
		cancel:  cancel,
	}
}

func (s *Scheduler) Start() error {
	logger.Info().Str("spec", s.cfg.Spec).Dur("pause", s.cfg.Pause).Msg("starting scheduler")

	// a firing that lands on a still running sequence is dropped
	syncJob := cron.NewChain(cron.SkipIfStillRunning(cronLogger{})).Then(cron.FuncJob(s.runScheduled))
	if _, err := s.cron.AddJob(s.cfg.Spec, syncJob); err != nil {
		return err
	}

	if s.cfg.RunRetention > 0 {
		if _, err := s.cron.AddFunc(retentionSpec, s.cleanupRuns); err != nil {
			return err
		}
	}

	s.cron.Start()
	logger.Info().Int("jobs", len(s.cron.Entries())).Msg("scheduler started")
	return nil
}

// Stop cancels an in-flight sequence at its next pause and waits for running jobs.
func (s *Scheduler) Stop() {
	logger.Info().Msg("stopping scheduler")
	s.cancel()
	<-s.cron.Stop().Done()
	logger.Info().Msg("scheduler stopped")
}

// RunNow runs the entity sequence immediately on the caller's goroutine.
// It shares the overlap guard with scheduled firings.
func (s *Scheduler) RunNow(ctx context.Context, trigger string) ([]service.EntityOutcome, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, ErrAlreadyRunning
	}
	defer s.running.Store(false)

	return s.runner.RunAll(ctx, trigger, s.cfg.Pause), nil
}

// Running reports whether a sequence is in flight
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

func (s *Scheduler) runScheduled() {
	start := time.Now()
	outcomes, err := s.RunNow(s.ctx, service.TriggerScheduler)
	if errors.Is(err, ErrAlreadyRunning) {
		s.metrics.ObserveFiring(metrics.FiringSkipped)
		logger.Warn().Msg("previous sync sequence still running, skipping firing")
		return
	}
	s.metrics.ObserveFiring(metrics.FiringRan)

	failed := 0
	for _, o := range outcomes {
		if o.Err != nil {
			failed++
		}
	}
	logger.Info().
		Int("entities", len(outcomes)).
		Int("failed", failed).
		Dur("duration", time.Since(start)).
		Msg("scheduled sync sequence finished")
}

func (s *Scheduler) cleanupRuns() {
	n, err := s.runner.DeleteOldRuns(s.ctx, s.cfg.RunRetention)
	if err != nil {
		logger.Error().Err(err).Msg("failed to prune sync run log")
		return
	}
	logger.Info().Int64("deleted", n).Dur("retention", s.cfg.RunRetention).Msg("pruned sync run log")
}

// GetScheduledJobs returns information about scheduled jobs
func (s *Scheduler) GetScheduledJobs() []cron.Entry {
	return s.cron.Entries()
}

// cronLogger routes cron's own logging into zerolog
type cronLogger struct{}

func (cronLogger) Info(msg string, keysAndValues ...interface{}) {
	logger.Debug().Str("component", "cron").Fields(keysAndValues).Msg(msg)
}

func (cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	logger.Error().Str("component", "cron").Err(err).Fields(keysAndValues).Msg(msg)
}
