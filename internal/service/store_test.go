package service

import (
	"context"
	"fmt"
	"strings"
	gosync "sync"

	"sap-sales-sync/internal/records"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/schema"
)

// memTable holds committed rows by natural key, in insertion order
type memTable struct {
	ddl   string
	order []string
	rows  map[string]map[string]any
}

func (t *memTable) clone() *memTable {
	out := &memTable{ddl: t.ddl, order: append([]string(nil), t.order...), rows: make(map[string]map[string]any, len(t.rows))}
	for k, r := range t.rows {
		out.rows[k] = r
	}
	return out
}

// memStore keeps tables in memory and follows the executor's contract: one
// all-or-nothing batch, per-row failures isolated, key match then update or
// insert.
type memStore struct {
	mu      gosync.Mutex
	tables  map[string]*memTable
	upserts int

	beginErr error
	failRow  func(table string, row map[string]any) error
}

func newMemStore(tables ...string) *memStore {
	s := &memStore{tables: map[string]*memTable{}}
	for _, name := range tables {
		s.tables[name] = &memTable{rows: map[string]map[string]any{}}
	}
	return s
}

func (s *memStore) Upsert(ctx context.Context, table repository.TableSpec, rows []records.Record, opts repository.UpsertOptions) (*repository.UpsertResult, error) {
	if len(rows) == 0 {
		return &repository.UpsertResult{NothingToDo: true}, nil
	}
	if len(table.KeyColumns) == 0 {
		return nil, fmt.Errorf("table %s has no key columns", table.Name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.upserts++

	if s.beginErr != nil {
		return nil, fmt.Errorf("%w: begin: %v", repository.ErrTransaction, s.beginErr)
	}

	committed, ok := s.tables[table.Name]
	staged := &memTable{rows: map[string]map[string]any{}}
	if ok {
		staged = committed.clone()
	}

	result := &repository.UpsertResult{Processed: make([]string, 0, len(rows))}
	for _, rec := range rows {
		row := make(map[string]any, len(rec.Params()))
		for _, p := range rec.Params() {
			row[p.Column] = p.Value
		}

		var rowErr error
		switch {
		case !ok:
			rowErr = fmt.Errorf("relation %q does not exist", table.Name)
		case s.failRow != nil:
			rowErr = s.failRow(table.Name, row)
		}
		if rowErr != nil {
			if !opts.ContinueOnError {
				return nil, &repository.RowError{Table: table.Name, Key: rec.Key(), Err: rowErr}
			}
			result.Failed = append(result.Failed, repository.RowFailure{Key: rec.Key(), Reason: rowErr.Error()})
			continue
		}

		key := naturalKey(table.KeyColumns, row)
		if _, exists := staged.rows[key]; exists {
			result.Updated++
		} else {
			staged.order = append(staged.order, key)
			result.Inserted++
		}
		staged.rows[key] = row
		result.Processed = append(result.Processed, rec.Key())
	}

	if ok {
		s.tables[table.Name] = staged
	}
	return result, nil
}

// EnsureTable records the DDL the provisioner would run for a new table
func (s *memStore) EnsureTable(ctx context.Context, name string, first map[string]any, primaryKey string) ([]schema.Column, error) {
	columns := schema.InferColumns(first)
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns found in sample for %s", name)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tables[name]; !ok {
		s.tables[name] = &memTable{
			ddl:  repository.CreateTableSQL(name, columns, primaryKey),
			rows: map[string]map[string]any{},
		}
	}
	return columns, nil
}

func naturalKey(columns []string, row map[string]any) string {
	parts := make([]string, 0, len(columns))
	for _, c := range columns {
		parts = append(parts, fmt.Sprint(row[c]))
	}
	return strings.Join(parts, "\x00")
}

func (s *memStore) hasTable(name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.tables[name]
	return ok
}

func (s *memStore) ddl(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return t.ddl
	}
	return ""
}

func (s *memStore) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if t, ok := s.tables[name]; ok {
		return len(t.rows)
	}
	return 0
}

// rows returns committed rows in insertion order
func (s *memStore) rows(name string) []map[string]any {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tables[name]
	if !ok {
		return nil
	}
	out := make([]map[string]any, 0, len(t.order))
	for _, k := range t.order {
		out = append(out, t.rows[k])
	}
	return out
}
