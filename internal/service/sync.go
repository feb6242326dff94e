package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"sap-sales-sync/internal/logger"
	"sap-sales-sync/internal/metrics"
	"sap-sales-sync/internal/odata"
	"sap-sales-sync/internal/records"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Triggers recorded in the run log
const (
	TriggerHTTP      = "http"
	TriggerScheduler = "scheduler"
)

// Fetcher pulls one snapshot of remote records. *odata.Client satisfies it.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]map[string]any, error)
}

// Upserter reconciles rows against a table. *repository.UpsertExecutor satisfies it.
type Upserter interface {
	Upsert(ctx context.Context, table repository.TableSpec, rows []records.Record, opts repository.UpsertOptions) (*repository.UpsertResult, error)
}

// RunLog persists the run audit log. *repository.SyncRunRepository satisfies it.
type RunLog interface {
	CreateRun(ctx context.Context, entity, triggeredBy string) (*repository.SyncRun, error)
	CompleteRun(ctx context.Context, id uuid.UUID, result repository.CompleteRunResult) (*repository.SyncRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*repository.SyncRun, error)
	ListRuns(ctx context.Context, filter repository.ListRunsFilter) ([]repository.SyncRun, error)
	DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error)
}

// RunResult reports one orchestrator run
type RunResult struct {
	Entity      string                  `json:"entity"`
	RunID       *uuid.UUID              `json:"run_id,omitempty"`
	Fetched     int                     `json:"fetched"`
	Excluded    []repository.RowFailure `json:"excluded,omitempty"`
	Inserted    int                     `json:"inserted"`
	Updated     int                     `json:"updated"`
	Processed   []string                `json:"processed,omitempty"`
	Failed      []repository.RowFailure `json:"failed,omitempty"`
	NothingToDo bool                    `json:"nothing_to_do"`
	Duration    time.Duration           `json:"duration"`
	Status      repository.RunStatus    `json:"status"`
}

// Outcome is the summary handed to non-HTTP callers. ProcessedRows holds the
// natural keys written; FailedRows holds excluded records and rejected rows.
type Outcome struct {
	Success       bool                    `json:"success"`
	ProcessedRows []string                `json:"processedRows"`
	FailedRows    []repository.RowFailure `json:"failedRows"`
	Error         string                  `json:"error,omitempty"`
}

// Outcome summarizes the run. Row failures do not make a run unsuccessful.
func (r *RunResult) Outcome() Outcome {
	processed := make([]string, 0, len(r.Processed))
	processed = append(processed, r.Processed...)

	failed := make([]repository.RowFailure, 0, len(r.Excluded)+len(r.Failed))
	failed = append(failed, r.Excluded...)
	failed = append(failed, r.Failed...)

	return Outcome{
		Success:       true,
		ProcessedRows: processed,
		FailedRows:    failed,
	}
}

// FailedOutcome is the summary of a run that returned err
func FailedOutcome(err error) Outcome {
	return Outcome{
		ProcessedRows: []string{},
		FailedRows:    []repository.RowFailure{},
		Error:         err.Error(),
	}
}

// SyncService runs the per-entity orchestrators
type SyncService struct {
	registry *sync.Registry
	fetcher  Fetcher
	upserter Upserter
	runs     RunLog
	metrics  *metrics.Metrics
}

// NewSyncService creates a new sync service. runs and m may be nil.
func NewSyncService(
	registry *sync.Registry,
	fetcher Fetcher,
	upserter Upserter,
	runs RunLog,
	m *metrics.Metrics,
) *SyncService {
	return &SyncService{
		registry: registry,
		fetcher:  fetcher,
		upserter: upserter,
		runs:     runs,
		metrics:  m,
	}
}

// EntitySync syncs one entity from its remote source into its table
type EntitySync struct {
	spec sync.EntitySpec
	svc  *SyncService
	log  zerolog.Logger
}

// Entity returns the orchestrator for name
func (s *SyncService) Entity(name string) (*EntitySync, error) {
	spec, ok := s.registry.Get(name)
	if !ok {
		return nil, fmt.Errorf("%w: %s", sync.ErrUnknownEntity, name)
	}
	return &EntitySync{spec: spec, svc: s, log: logger.ForEntity(name)}, nil
}

// SyncEntity runs the orchestrator for name once
func (s *SyncService) SyncEntity(ctx context.Context, name, trigger string) (*RunResult, error) {
	es, err := s.Entity(name)
	if err != nil {
		return nil, err
	}
	return es.Sync(ctx, trigger)
}

// Entities lists the registered entities in run order
func (s *SyncService) Entities() []sync.EntitySpec {
	return s.registry.List()
}

// Spec returns the entity this orchestrator syncs
func (e *EntitySync) Spec() sync.EntitySpec {
	return e.spec
}

// Sync fetches a snapshot, decodes it and upserts it in one transaction.
// Records that fail to decode are excluded and counted. Rows that fail to
// write are reported in the result; only fetch, format and transaction
// failures are returned as errors.
func (e *EntitySync) Sync(ctx context.Context, trigger string) (*RunResult, error) {
	start := time.Now()
	result := &RunResult{Entity: e.spec.Name}

	e.log.Info().Str("trigger", trigger).Msg("sync started")
	runID := e.svc.startRun(ctx, e.spec.Name, trigger, e.log)
	result.RunID = runID

	err := e.run(ctx, result)
	result.Duration = time.Since(start)
	result.Status = statusOf(result, err)

	e.svc.finishRun(ctx, runID, result, err, e.log)
	e.svc.metrics.ObserveRun(metrics.RunObservation{
		Entity:    e.spec.Name,
		Status:    string(result.Status),
		Duration:  result.Duration,
		Fetched:   result.Fetched,
		Excluded:  len(result.Excluded),
		Processed: len(result.Processed),
		Failed:    len(result.Failed),
	})

	if err != nil {
		e.log.Error().Err(err).Dur("duration", result.Duration).Msg("sync failed")
		return nil, err
	}

	e.log.Info().
		Int("fetched", result.Fetched).
		Int("excluded", len(result.Excluded)).
		Int("inserted", result.Inserted).
		Int("updated", result.Updated).
		Int("failed", len(result.Failed)).
		Dur("duration", result.Duration).
		Msg("sync completed")
	return result, nil
}

// Fetch pulls the remote snapshot and decodes it without writing anything.
// Records that fail to decode are returned as exclusions. An empty snapshot
// is a format error.
func (e *EntitySync) Fetch(ctx context.Context) ([]records.Record, []repository.RowFailure, int, error) {
	raw, err := e.svc.fetcher.Fetch(ctx, e.spec.SourceURL)
	if err != nil {
		if errors.Is(err, odata.ErrFormat) {
			return nil, nil, 0, fmt.Errorf("%w: %v", sync.ErrFormat, err)
		}
		return nil, nil, 0, fmt.Errorf("%w: %v", sync.ErrFetch, err)
	}
	if len(raw) == 0 {
		return nil, nil, 0, fmt.Errorf("%w: no %s found in remote snapshot", sync.ErrFormat, e.spec.DisplayName)
	}

	var excluded []repository.RowFailure
	rows := make([]records.Record, 0, len(raw))
	for i, r := range raw {
		row, err := e.spec.Decode(r)
		if err != nil {
			e.log.Warn().Err(err).Int("index", i).Msg("record excluded")
			excluded = append(excluded, repository.RowFailure{
				Key:    fmt.Sprintf("#%d", i),
				Reason: err.Error(),
			})
			continue
		}
		rows = append(rows, row)
	}
	return rows, excluded, len(raw), nil
}

func (e *EntitySync) run(ctx context.Context, result *RunResult) error {
	rows, excluded, fetched, err := e.Fetch(ctx)
	if err != nil {
		return err
	}
	result.Fetched = fetched
	result.Excluded = excluded

	upserted, err := e.svc.upserter.Upsert(ctx, e.spec.Table, rows, repository.UpsertOptions{ContinueOnError: true})
	if err != nil {
		if errors.Is(err, repository.ErrTransaction) {
			return fmt.Errorf("%w: %v", sync.ErrTransaction, err)
		}
		return err
	}

	for _, f := range upserted.Failed {
		e.log.Warn().Str("key", f.Key).Str("reason", f.Reason).Msg("row failed")
	}

	result.Inserted = upserted.Inserted
	result.Updated = upserted.Updated
	result.Processed = upserted.Processed
	result.Failed = upserted.Failed
	result.NothingToDo = upserted.NothingToDo
	return nil
}

func statusOf(result *RunResult, err error) repository.RunStatus {
	switch {
	case err != nil:
		return repository.RunStatusFailed
	case len(result.Failed) > 0 || len(result.Excluded) > 0:
		return repository.RunStatusPartial
	default:
		return repository.RunStatusCompleted
	}
}

// startRun opens a run log entry. Audit log failures never fail the sync.
func (s *SyncService) startRun(ctx context.Context, entity, trigger string, log zerolog.Logger) *uuid.UUID {
	if s.runs == nil {
		return nil
	}
	run, err := s.runs.CreateRun(ctx, entity, trigger)
	if err != nil {
		log.Warn().Err(err).Msg("failed to create run log entry")
		return nil
	}
	return &run.ID
}

func (s *SyncService) finishRun(ctx context.Context, id *uuid.UUID, result *RunResult, runErr error, log zerolog.Logger) {
	if s.runs == nil || id == nil {
		return
	}

	complete := repository.CompleteRunResult{
		Status:   result.Status,
		Fetched:  int32(result.Fetched),
		Excluded: int32(len(result.Excluded)),
		Inserted: int32(result.Inserted),
		Updated:  int32(result.Updated),
		Failures: result.Failed,
	}
	switch {
	case runErr != nil:
		complete.ErrorMessage = ptrString(runErr.Error())
	case len(result.Failed) > 0 || len(result.Excluded) > 0:
		complete.ErrorMessage = ptrString(fmt.Sprintf("%d rows failed, %d records excluded", len(result.Failed), len(result.Excluded)))
	}

	// the request context may already be cancelled; the log entry should still close
	ctx = context.WithoutCancel(ctx)
	if _, err := s.runs.CompleteRun(ctx, *id, complete); err != nil {
		log.Warn().Err(err).Msg("failed to complete run log entry")
	}
}

// Customers fetches the current customer snapshot straight from the remote
func (s *SyncService) Customers(ctx context.Context) ([]records.Customer, error) {
	es, err := s.Entity(sync.EntityCustomers)
	if err != nil {
		return nil, err
	}
	rows, _, _, err := es.Fetch(ctx)
	if err != nil {
		return nil, err
	}

	out := make([]records.Customer, 0, len(rows))
	for _, r := range rows {
		if c, ok := r.(records.Customer); ok {
			out = append(out, c)
		}
	}
	return out, nil
}

// EntityOutcome is one step of RunAll
type EntityOutcome struct {
	Entity  string     `json:"entity"`
	Result  *RunResult `json:"result,omitempty"`
	Outcome Outcome    `json:"outcome"`
	Err     error      `json:"-"`
}

// RunAll syncs every registered entity in order, waiting pause between them.
// A failing entity is logged and the next one still runs. Cancelling ctx stops
// the sequence before the next entity.
func (s *SyncService) RunAll(ctx context.Context, trigger string, pause time.Duration) []EntityOutcome {
	specs := s.registry.List()
	outcomes := make([]EntityOutcome, 0, len(specs))

	for i, spec := range specs {
		if i > 0 && !sleepCtx(ctx, pause) {
			logger.Warn().Str("next", spec.Name).Msg("sync sequence cancelled")
			break
		}

		result, err := s.SyncEntity(ctx, spec.Name, trigger)
		out := EntityOutcome{Entity: spec.Name, Result: result, Err: err}
		if err != nil {
			out.Outcome = FailedOutcome(err)
		} else {
			out.Outcome = result.Outcome()
		}
		outcomes = append(outcomes, out)
	}

	return outcomes
}

// sleepCtx waits d and reports false if ctx ended first
func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

// ListRuns returns run log entries, newest first
func (s *SyncService) ListRuns(ctx context.Context, filter repository.ListRunsFilter) ([]repository.SyncRun, error) {
	if s.runs == nil {
		return []repository.SyncRun{}, nil
	}
	return s.runs.ListRuns(ctx, filter)
}

// GetRun returns a single run log entry
func (s *SyncService) GetRun(ctx context.Context, id uuid.UUID) (*repository.SyncRun, error) {
	if s.runs == nil {
		return nil, fmt.Errorf("run log disabled")
	}
	return s.runs.GetRun(ctx, id)
}

// DeleteOldRuns removes run log entries older than olderThan
func (s *SyncService) DeleteOldRuns(ctx context.Context, olderThan time.Duration) (int64, error) {
	if s.runs == nil {
		return 0, nil
	}
	return s.runs.DeleteRunsBefore(ctx, time.Now().Add(-olderThan))
}

func ptrString(s string) *string {
	return &s
}
