package service

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	gosync "sync"
	"testing"
	"time"

	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/metrics"
	"sap-sales-sync/internal/odata"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubFetcher answers by URL
type stubFetcher struct {
	mu      gosync.Mutex
	data    map[string][]map[string]any
	errs    map[string]error
	fetched []string
}

func newStubFetcher() *stubFetcher {
	return &stubFetcher{data: map[string][]map[string]any{}, errs: map[string]error{}}
}

func (f *stubFetcher) Fetch(ctx context.Context, url string) ([]map[string]any, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fetched = append(f.fetched, url)
	if err := f.errs[url]; err != nil {
		return nil, err
	}
	return f.data[url], nil
}

// memRunLog keeps run log entries in memory
type memRunLog struct {
	runs      map[uuid.UUID]*repository.SyncRun
	completed []repository.CompleteRunResult
	createErr error
}

func newMemRunLog() *memRunLog {
	return &memRunLog{runs: map[uuid.UUID]*repository.SyncRun{}}
}

func (m *memRunLog) CreateRun(ctx context.Context, entity, triggeredBy string) (*repository.SyncRun, error) {
	if m.createErr != nil {
		return nil, m.createErr
	}
	run := &repository.SyncRun{ID: uuid.New(), Entity: entity, TriggeredBy: triggeredBy, Status: repository.RunStatusRunning}
	m.runs[run.ID] = run
	return run, nil
}

func (m *memRunLog) CompleteRun(ctx context.Context, id uuid.UUID, result repository.CompleteRunResult) (*repository.SyncRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	m.completed = append(m.completed, result)
	run.Status = result.Status
	run.Failures = result.Failures
	return run, nil
}

func (m *memRunLog) GetRun(ctx context.Context, id uuid.UUID) (*repository.SyncRun, error) {
	run, ok := m.runs[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return run, nil
}

func (m *memRunLog) ListRuns(ctx context.Context, filter repository.ListRunsFilter) ([]repository.SyncRun, error) {
	out := []repository.SyncRun{}
	for _, r := range m.runs {
		if filter.Entity == "" || r.Entity == filter.Entity {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (m *memRunLog) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	return 0, nil
}

const (
	customersURL = "http://sap/customers"
	targetsURL   = "http://sap/targets"
)

func newTestService(t *testing.T, specs ...sync.EntitySpec) (*SyncService, *stubFetcher, *memStore, *memRunLog) {
	t.Helper()
	store := newMemStore()
	for _, s := range specs {
		store.tables[s.Table.Name] = &memTable{rows: map[string]map[string]any{}}
	}
	fetcher := newStubFetcher()
	runs := newMemRunLog()
	svc := NewSyncService(sync.NewRegistry(specs...), fetcher, store, runs, nil)
	return svc, fetcher, store, runs
}

func customerPayload() []map[string]any {
	return []map[string]any{
		{"Kunnr": "100", "Vkorg": "1000", "Bzirk": "N01", "Name1": "Alpha"},
		{"Kunnr": "200", "Vkorg": "1000", "Bzirk": "N01", "Name1": "Beta"},
		{"Vkorg": "1000", "Name1": "No key"},
	}
}

func targetPayload(matkl ...string) []map[string]any {
	out := make([]map[string]any, 0, len(matkl))
	for _, m := range matkl {
		out = append(out, map[string]any{
			"Gjahr": "2025", "MonthD": "01", "Bzirk": "N01", "Matkl": m,
			"PlannedOrder": "1,5", "TotalInvoice": "2.25",
		})
	}
	return out
}

func TestSyncEntity_ExcludesRecordsAndIsIdempotent(t *testing.T) {
	svc, fetcher, store, _ := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.data[customersURL] = customerPayload()
	ctx := context.Background()

	first, err := svc.SyncEntity(ctx, sync.EntityCustomers, TriggerHTTP)
	require.NoError(t, err)
	assert.Equal(t, 3, first.Fetched)
	assert.Len(t, first.Excluded, 1)
	assert.Equal(t, 2, first.Inserted)
	assert.Equal(t, 0, first.Updated)
	// an excluded record makes the run partial even though every row was written
	assert.Equal(t, repository.RunStatusPartial, first.Status)

	second, err := svc.SyncEntity(ctx, sync.EntityCustomers, TriggerHTTP)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Inserted)
	assert.Equal(t, 2, second.Updated)
	assert.Equal(t, 2, store.count("customer_info"))
}

func TestSyncEntity_MalformedPayloadWritesNothing(t *testing.T) {
	svc, fetcher, store, runs := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.errs[customersURL] = fmt.Errorf("%w: missing d.results", odata.ErrFormat)

	res, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, sync.ErrFormat)
	assert.Equal(t, http.StatusBadRequest, sync.StatusCode(err))

	assert.Zero(t, store.count("customer_info"))
	assert.Zero(t, store.upserts)

	require.Len(t, runs.completed, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.completed[0].Status)
	require.NotNil(t, runs.completed[0].ErrorMessage)
}

func TestSyncEntity_FetchFailure(t *testing.T) {
	svc, fetcher, _, _ := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.errs[customersURL] = &odata.StatusError{Code: http.StatusUnauthorized}

	_, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrFetch)
	assert.Equal(t, http.StatusInternalServerError, sync.StatusCode(err))
}

func TestSyncEntity_PartialFailure(t *testing.T) {
	svc, fetcher, store, runs := newTestService(t, sync.TargetValueSpec(targetsURL))
	fetcher.data[targetsURL] = targetPayload("A", "B", "C", "D", "E")
	store.failRow = func(table string, row map[string]any) error {
		if row["matkl"] == "C" {
			return errors.New("value too long")
		}
		return nil
	}

	res, err := svc.SyncEntity(context.Background(), sync.EntityTargetValues, TriggerScheduler)
	require.NoError(t, err)

	assert.Len(t, res.Processed, 4)
	require.Len(t, res.Failed, 1)
	assert.Equal(t, "2025/01/N01/C", res.Failed[0].Key)
	assert.Equal(t, 4, store.count("target_values"))
	assert.Equal(t, repository.RunStatusPartial, res.Status)

	out := res.Outcome()
	assert.True(t, out.Success)
	assert.Equal(t, []string{"2025/01/N01/A", "2025/01/N01/B", "2025/01/N01/D", "2025/01/N01/E"}, out.ProcessedRows)
	assert.Equal(t, []repository.RowFailure{{Key: "2025/01/N01/C", Reason: "value too long"}}, out.FailedRows)

	require.Len(t, runs.completed, 1)
	assert.Equal(t, repository.RunStatusPartial, runs.completed[0].Status)
	assert.Equal(t, int32(4), runs.completed[0].Inserted)
	assert.Len(t, runs.completed[0].Failures, 1)
}

func TestSyncEntity_TransactionFailure(t *testing.T) {
	svc, fetcher, store, _ := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.data[customersURL] = customerPayload()
	store.beginErr = errors.New("connection reset")

	_, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.Error(t, err)
	assert.ErrorIs(t, err, sync.ErrTransaction)
	assert.Equal(t, http.StatusInternalServerError, sync.StatusCode(err))
}

func TestSyncEntity_EmptySnapshot(t *testing.T) {
	svc, fetcher, store, runs := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.data[customersURL] = []map[string]any{}

	res, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.Error(t, err)
	assert.Nil(t, res)
	assert.ErrorIs(t, err, sync.ErrFormat)
	assert.Equal(t, http.StatusBadRequest, sync.StatusCode(err))
	assert.Contains(t, err.Error(), "no Customer Info Data found")
	assert.Zero(t, store.upserts)

	require.Len(t, runs.completed, 1)
	assert.Equal(t, repository.RunStatusFailed, runs.completed[0].Status)
}

func TestSyncEntity_AllRecordsExcluded(t *testing.T) {
	svc, fetcher, store, runs := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.data[customersURL] = []map[string]any{
		{"Vkorg": "1000", "Name1": "No key"},
		{"Kunnr": "100", "Name1": "No sales org"},
	}

	res, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.NoError(t, err)
	assert.True(t, res.NothingToDo)
	assert.Len(t, res.Excluded, 2)
	assert.Equal(t, repository.RunStatusPartial, res.Status)
	assert.Zero(t, store.count("customer_info"))

	out := res.Outcome()
	assert.Empty(t, out.ProcessedRows)
	require.Len(t, out.FailedRows, 2)
	assert.Equal(t, "#0", out.FailedRows[0].Key)
	assert.Equal(t, "#1", out.FailedRows[1].Key)

	require.Len(t, runs.completed, 1)
	assert.Equal(t, int32(2), runs.completed[0].Excluded)
	require.NotNil(t, runs.completed[0].ErrorMessage)
	assert.Equal(t, "0 rows failed, 2 records excluded", *runs.completed[0].ErrorMessage)
}

func TestRunResult_OutcomeListsExcludedBeforeFailed(t *testing.T) {
	res := &RunResult{
		Processed: []string{"100/1000/N01"},
		Excluded:  []repository.RowFailure{{Key: "#2", Reason: "natural key field missing: Kunnr"}},
		Failed:    []repository.RowFailure{{Key: "200/1000/N01", Reason: "value too long"}},
	}

	out := res.Outcome()
	assert.True(t, out.Success)
	assert.Equal(t, []string{"100/1000/N01"}, out.ProcessedRows)
	assert.Equal(t, []repository.RowFailure{
		{Key: "#2", Reason: "natural key field missing: Kunnr"},
		{Key: "200/1000/N01", Reason: "value too long"},
	}, out.FailedRows)

	// the summary owns its slices
	out.ProcessedRows[0] = "changed"
	assert.Equal(t, "100/1000/N01", res.Processed[0])
}

func TestSyncEntity_UnknownEntity(t *testing.T) {
	svc, _, _, _ := newTestService(t, sync.CustomerSpec(customersURL))

	_, err := svc.SyncEntity(context.Background(), "nope", TriggerHTTP)
	assert.ErrorIs(t, err, sync.ErrUnknownEntity)
	assert.Equal(t, http.StatusNotFound, sync.StatusCode(err))
}

func TestSyncEntity_RunLogFailureDoesNotFailSync(t *testing.T) {
	svc, fetcher, store, runs := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.data[customersURL] = customerPayload()
	runs.createErr = errors.New("sync_runs missing")

	res, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.NoError(t, err)
	assert.Nil(t, res.RunID)
	assert.Equal(t, 2, store.count("customer_info"))
	assert.Empty(t, runs.completed)
}

func TestSyncEntity_RecordsMetrics(t *testing.T) {
	spec := sync.CustomerSpec(customersURL)
	store := newMemStore(spec.Table.Name)
	fetcher := newStubFetcher()
	fetcher.data[customersURL] = customerPayload()
	m := metrics.New()

	svc := NewSyncService(sync.NewRegistry(spec), fetcher, store, nil, m)
	_, err := svc.SyncEntity(context.Background(), sync.EntityCustomers, TriggerHTTP)
	require.NoError(t, err)

	assert.Equal(t, 3.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues(sync.EntityCustomers, metrics.OutcomeFetched)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues(sync.EntityCustomers, metrics.OutcomeExcluded)))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.RowsTotal.WithLabelValues(sync.EntityCustomers, metrics.OutcomeProcessed)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RunsTotal.WithLabelValues(sync.EntityCustomers, "partial")))
}

func TestRunAll_FailureDoesNotStopSequence(t *testing.T) {
	specs := sync.DefaultSpecs(config.RemoteConfig{
		SalesTargetURL:  "http://sap/sales",
		CustomerURL:     customersURL,
		SalesOrderURL:   "http://sap/orders",
		SalesInvoiceURL: "http://sap/invoices",
		TargetValuesURL: targetsURL,
	})
	svc, fetcher, store, _ := newTestService(t, specs...)
	fetcher.errs[customersURL] = errors.New("dial tcp: connection refused")
	fetcher.data[targetsURL] = targetPayload("A", "B")

	outcomes := svc.RunAll(context.Background(), TriggerScheduler, 0)

	require.Len(t, outcomes, 5)
	assert.Equal(t, []string{
		"http://sap/sales", customersURL, "http://sap/orders", "http://sap/invoices", targetsURL,
	}, fetcher.fetched)

	assert.Equal(t, sync.EntityCustomers, outcomes[1].Entity)
	assert.ErrorIs(t, outcomes[1].Err, sync.ErrFetch)
	assert.False(t, outcomes[1].Outcome.Success)
	assert.NotEmpty(t, outcomes[1].Outcome.Error)

	last := outcomes[4]
	require.NoError(t, last.Err)
	assert.True(t, last.Outcome.Success)
	assert.Len(t, last.Outcome.ProcessedRows, 2)
	assert.Equal(t, 2, store.count("target_values"))
}

func TestRunAll_StopsWhenCancelled(t *testing.T) {
	svc, _, _, _ := newTestService(t, sync.CustomerSpec(customersURL), sync.TargetValueSpec(targetsURL))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	outcomes := svc.RunAll(ctx, TriggerScheduler, time.Second)
	assert.Len(t, outcomes, 1)
}

func TestRunAll_PausesBetweenEntities(t *testing.T) {
	svc, _, _, _ := newTestService(t, sync.CustomerSpec(customersURL), sync.TargetValueSpec(targetsURL))

	start := time.Now()
	outcomes := svc.RunAll(context.Background(), TriggerScheduler, 50*time.Millisecond)
	assert.Len(t, outcomes, 2)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
}

func TestListRuns_WithoutRunLog(t *testing.T) {
	svc := NewSyncService(sync.NewRegistry(), newStubFetcher(), nil, nil, nil)

	runs, err := svc.ListRuns(context.Background(), repository.ListRunsFilter{})
	require.NoError(t, err)
	assert.Empty(t, runs)

	n, err := svc.DeleteOldRuns(context.Background(), time.Hour)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFailedOutcome(t *testing.T) {
	out := FailedOutcome(sync.ErrTransaction)
	assert.False(t, out.Success)
	assert.Equal(t, sync.ErrTransaction.Error(), out.Error)
	assert.NotNil(t, out.ProcessedRows)
	assert.NotNil(t, out.FailedRows)
}

func TestCustomers_FetchesWithoutWriting(t *testing.T) {
	svc, fetcher, store, runs := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.data[customersURL] = customerPayload()

	customers, err := svc.Customers(context.Background())
	require.NoError(t, err)
	require.Len(t, customers, 2)
	assert.Equal(t, "Alpha", customers[0].Name1)
	assert.Zero(t, store.count("customer_info"))
	assert.Empty(t, runs.runs)
}

func TestCustomers_FormatError(t *testing.T) {
	svc, fetcher, _, _ := newTestService(t, sync.CustomerSpec(customersURL))
	fetcher.errs[customersURL] = odata.ErrFormat

	_, err := svc.Customers(context.Background())
	assert.ErrorIs(t, err, sync.ErrFormat)
}
