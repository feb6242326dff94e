package repository

import (
	"context"
	"fmt"
	"strings"

	"sap-sales-sync/internal/records"
	"sap-sales-sync/internal/schema"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier runs statements outside an explicit transaction. *pgxpool.Pool satisfies it.
type Querier interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const tableExistsSQL = `SELECT EXISTS (
	SELECT 1 FROM information_schema.tables
	WHERE table_schema = current_schema() AND table_name = $1
)`

// Provisioner creates tables for sources whose shape is discovered at runtime.
type Provisioner struct {
	db Querier
}

// NewProvisioner creates a provisioner over the given pool.
func NewProvisioner(db Querier) *Provisioner {
	return &Provisioner{db: db}
}

// TableExists reports whether name exists in the current schema.
func (p *Provisioner) TableExists(ctx context.Context, name string) (bool, error) {
	var exists bool
	if err := p.db.QueryRow(ctx, tableExistsSQL, name).Scan(&exists); err != nil {
		return false, fmt.Errorf("check table %s: %w", name, err)
	}
	return exists, nil
}

// EnsureTable makes sure a table named name exists with one column per key of
// first, typed from first's values. An existing table is left untouched. The
// primary key is placed on primaryKey when first carries it. The returned
// columns describe first's shape either way.
func (p *Provisioner) EnsureTable(ctx context.Context, name string, first map[string]any, primaryKey string) ([]schema.Column, error) {
	columns := schema.InferColumns(first)
	if len(columns) == 0 {
		return nil, fmt.Errorf("no columns found in sample for %s", name)
	}

	exists, err := p.TableExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return columns, nil
	}

	if _, err := p.db.Exec(ctx, CreateTableSQL(name, columns, primaryKey)); err != nil {
		return nil, fmt.Errorf("create table %s: %w", name, err)
	}
	return columns, nil
}

// CreateTableSQL renders the DDL used by EnsureTable.
func CreateTableSQL(name string, columns []schema.Column, primaryKey string) string {
	defs := make([]string, 0, len(columns)+1)
	hasKey := false
	for _, col := range columns {
		defs = append(defs, fmt.Sprintf("%s %s", quoteIdent(col.Name), col.Type.SQL()))
		if col.Name == primaryKey {
			hasKey = true
		}
	}
	if hasKey {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteIdent(primaryKey)))
	}
	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)", quoteIdent(name), strings.Join(defs, ", "))
}

// ProjectRecords shapes raw records onto columns. Keys that are not columns
// are dropped.
func ProjectRecords(raw []map[string]any, columns []schema.Column, primaryKey string) []records.Record {
	out := make([]records.Record, 0, len(raw))
	for _, r := range raw {
		out = append(out, records.NewDynamicRecord(r, columns, primaryKey))
	}
	return out
}
