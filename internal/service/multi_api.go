package service

import (
	"context"
	"fmt"
	"time"

	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/logger"
	"sap-sales-sync/internal/metrics"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/schema"

	"github.com/goccy/go-json"
)

// metadataKey is the OData bookkeeping field dropped before provisioning
const metadataKey = "__metadata"

// TableProvisioner creates tables for runtime-discovered sources.
// *repository.Provisioner satisfies it.
type TableProvisioner interface {
	EnsureTable(ctx context.Context, name string, first map[string]any, primaryKey string) ([]schema.Column, error)
}

// SourceResult reports one dynamic source of a SyncAll pass
type SourceResult struct {
	Source   string `json:"source"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Updated  int    `json:"updated"`
	Skipped  bool   `json:"skipped"`
	Error    string `json:"error,omitempty"`
}

// MultiAPISync mirrors ad-hoc OData sources into tables named after them
type MultiAPISync struct {
	sources     []config.DynamicSource
	fetcher     Fetcher
	provisioner TableProvisioner
	upserter    Upserter
	metrics     *metrics.Metrics
}

// NewMultiAPISync creates the dynamic source orchestrator
func NewMultiAPISync(
	sources []config.DynamicSource,
	fetcher Fetcher,
	provisioner TableProvisioner,
	upserter Upserter,
	m *metrics.Metrics,
) *MultiAPISync {
	return &MultiAPISync{
		sources:     sources,
		fetcher:     fetcher,
		provisioner: provisioner,
		upserter:    upserter,
		metrics:     m,
	}
}

// Sources returns the configured dynamic sources
func (m *MultiAPISync) Sources() []config.DynamicSource {
	return m.sources
}

// SyncAll processes every configured source in order. A source that fails is
// logged, reported and skipped; the remaining sources still run.
func (m *MultiAPISync) SyncAll(ctx context.Context) []SourceResult {
	results := make([]SourceResult, 0, len(m.sources))
	for _, src := range m.sources {
		if ctx.Err() != nil {
			break
		}
		results = append(results, m.syncSource(ctx, src))
	}
	return results
}

func (m *MultiAPISync) syncSource(ctx context.Context, src config.DynamicSource) SourceResult {
	log := logger.ForSource(src.Name)
	start := time.Now()
	res := SourceResult{Source: src.Name}

	status := repository.RunStatusCompleted
	defer func() {
		m.metrics.ObserveRun(metrics.RunObservation{
			Entity:    src.Name,
			Status:    string(status),
			Duration:  time.Since(start),
			Fetched:   res.Fetched,
			Processed: res.Inserted + res.Updated,
		})
	}()

	fail := func(err error, msg string) SourceResult {
		status = repository.RunStatusFailed
		log.Error().Err(err).Msg(msg)
		res.Error = err.Error()
		return res
	}

	raw, err := m.fetcher.Fetch(ctx, src.URL)
	if err != nil {
		return fail(err, "failed to fetch source")
	}
	res.Fetched = len(raw)

	if len(raw) == 0 {
		log.Info().Msg("no records, skipping")
		res.Skipped = true
		return res
	}

	cleaned, err := CleanRecords(raw)
	if err != nil {
		return fail(err, "failed to flatten records")
	}

	if _, ok := cleaned[0][src.PrimaryKey]; !ok {
		return fail(fmt.Errorf("primary key %q not found in first record", src.PrimaryKey), "invalid source")
	}

	columns, err := m.provisioner.EnsureTable(ctx, src.Name, cleaned[0], src.PrimaryKey)
	if err != nil {
		return fail(err, "failed to provision table")
	}

	table := repository.TableSpec{Name: src.Name, KeyColumns: []string{src.PrimaryKey}}
	rows := repository.ProjectRecords(cleaned, columns, src.PrimaryKey)

	upserted, err := m.upserter.Upsert(ctx, table, rows, repository.UpsertOptions{})
	if err != nil {
		return fail(err, "failed to upsert source")
	}

	res.Inserted = upserted.Inserted
	res.Updated = upserted.Updated
	log.Info().
		Int("fetched", res.Fetched).
		Int("inserted", res.Inserted).
		Int("updated", res.Updated).
		Int("columns", len(columns)).
		Msg("source synced")
	return res
}

// CleanRecords drops the __metadata field and stores nested objects and
// arrays as their JSON text.
func CleanRecords(raw []map[string]any) ([]map[string]any, error) {
	out := make([]map[string]any, 0, len(raw))
	for _, r := range raw {
		c := make(map[string]any, len(r))
		for k, v := range r {
			if k == metadataKey {
				continue
			}
			switch v.(type) {
			case map[string]any, []any:
				b, err := json.Marshal(v)
				if err != nil {
					return nil, fmt.Errorf("encode field %s: %w", k, err)
				}
				c[k] = string(b)
			default:
				c[k] = v
			}
		}
		out = append(out, c)
	}
	return out, nil
}
