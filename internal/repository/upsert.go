package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"sap-sales-sync/internal/db"
	"sap-sales-sync/internal/records"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// ErrTransaction marks failures of the batch transaction itself (begin,
// savepoint bookkeeping, commit). The whole batch is rolled back.
var ErrTransaction = errors.New("transaction failed")

// TxBeginner opens transactions. *pgxpool.Pool satisfies it.
type TxBeginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// TableSpec identifies a target table and its natural key.
type TableSpec struct {
	Name       string
	KeyColumns []string
}

// UpsertOptions tunes failure handling of one batch.
type UpsertOptions struct {
	// ContinueOnError records a failing row and moves on. Without it the first
	// failing row rolls back the whole batch.
	ContinueOnError bool
}

// RowFailure is a row that could not be reconciled.
type RowFailure struct {
	Key    string `json:"key"`
	Reason string `json:"reason"`
}

// UpsertResult partitions a batch into processed and failed rows.
type UpsertResult struct {
	Inserted    int
	Updated     int
	Processed   []string
	Failed      []RowFailure
	NothingToDo bool
}

// RowError is returned when a row fails and ContinueOnError is off.
type RowError struct {
	Table string
	Key   string
	Err   error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("upsert %s row %q: %v", e.Table, e.Key, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// UpsertExecutor reconciles records against a table with match-then-insert-or-update.
type UpsertExecutor struct {
	db TxBeginner
}

// NewUpsertExecutor creates an executor over the given pool.
func NewUpsertExecutor(db TxBeginner) *UpsertExecutor {
	return &UpsertExecutor{db: db}
}

// Upsert writes all rows inside a single transaction. Each row runs in its own
// savepoint so a failing row leaves the transaction usable for the rest.
func (e *UpsertExecutor) Upsert(ctx context.Context, table TableSpec, rows []records.Record, opts UpsertOptions) (*UpsertResult, error) {
	if len(rows) == 0 {
		return &UpsertResult{NothingToDo: true}, nil
	}
	if len(table.KeyColumns) == 0 {
		return nil, fmt.Errorf("table %s has no key columns", table.Name)
	}

	tx, err := e.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("%w: begin: %v", ErrTransaction, err)
	}
	defer func() {
		// no-op once committed
		_ = tx.Rollback(ctx)
	}()

	result := &UpsertResult{
		Processed: make([]string, 0, len(rows)),
	}

	for _, row := range rows {
		inserted, rowErr, err := upsertRow(ctx, tx, table, row)
		if err != nil {
			return nil, err
		}
		if rowErr != nil {
			if !opts.ContinueOnError {
				return nil, &RowError{Table: table.Name, Key: row.Key(), Err: rowErr}
			}
			result.Failed = append(result.Failed, RowFailure{Key: row.Key(), Reason: failureReason(rowErr)})
			continue
		}

		result.Processed = append(result.Processed, row.Key())
		if inserted {
			result.Inserted++
		} else {
			result.Updated++
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("%w: commit: %v", ErrTransaction, err)
	}

	return result, nil
}

// upsertRow returns a row-level error for failures isolated by the savepoint
// and a fatal error when the transaction itself is no longer usable.
func upsertRow(ctx context.Context, tx pgx.Tx, table TableSpec, row records.Record) (inserted bool, rowErr error, fatal error) {
	stmt, err := buildUpsert(table, row.Params())
	if err != nil {
		return false, err, nil
	}

	sp, err := tx.Begin(ctx)
	if err != nil {
		return false, nil, fmt.Errorf("%w: savepoint: %v", ErrTransaction, err)
	}

	inserted, rowErr = stmt.exec(ctx, sp)
	if rowErr != nil {
		if err := sp.Rollback(ctx); err != nil {
			return false, nil, fmt.Errorf("%w: rollback savepoint: %v", ErrTransaction, err)
		}
		return false, rowErr, nil
	}

	if err := sp.Commit(ctx); err != nil {
		return false, nil, fmt.Errorf("%w: release savepoint: %v", ErrTransaction, err)
	}
	return inserted, nil, nil
}

// failureReason labels integrity violations so they read apart from type or
// connection errors in run reports.
func failureReason(err error) string {
	if db.IsConstraintViolation(err) {
		return "constraint violation: " + err.Error()
	}
	return err.Error()
}

type upsertStatement struct {
	updateSQL  string
	updateArgs []any
	insertSQL  string
	insertArgs []any
}

type execer interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
}

func (s upsertStatement) exec(ctx context.Context, db execer) (bool, error) {
	tag, err := db.Exec(ctx, s.updateSQL, s.updateArgs...)
	if err != nil {
		return false, err
	}
	if tag.RowsAffected() > 0 {
		return false, nil
	}

	if _, err := db.Exec(ctx, s.insertSQL, s.insertArgs...); err != nil {
		return false, err
	}
	return true, nil
}

// buildUpsert renders the UPDATE matched on the key columns and the INSERT
// used when nothing matched.
func buildUpsert(table TableSpec, params []records.Param) (upsertStatement, error) {
	isKey := make(map[string]bool, len(table.KeyColumns))
	for _, k := range table.KeyColumns {
		isKey[k] = true
	}

	byColumn := make(map[string]any, len(params))
	for _, p := range params {
		byColumn[p.Column] = p.Value
	}
	for _, k := range table.KeyColumns {
		if _, ok := byColumn[k]; !ok {
			return upsertStatement{}, fmt.Errorf("key column %s missing from row", k)
		}
	}

	tableIdent := quoteIdent(table.Name)

	var (
		sets  []string
		where []string
		args  []any
	)
	for _, p := range params {
		if isKey[p.Column] {
			continue
		}
		args = append(args, encodeParam(p.Value))
		sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(p.Column), len(args)))
	}
	if len(sets) == 0 {
		// key-only rows still need a statement that reports a match
		for _, k := range table.KeyColumns {
			args = append(args, encodeParam(byColumn[k]))
			sets = append(sets, fmt.Sprintf("%s = $%d", quoteIdent(k), len(args)))
		}
	}
	for _, k := range table.KeyColumns {
		args = append(args, encodeParam(byColumn[k]))
		where = append(where, fmt.Sprintf("%s = $%d", quoteIdent(k), len(args)))
	}

	updateSQL := fmt.Sprintf("UPDATE %s SET %s WHERE %s",
		tableIdent, strings.Join(sets, ", "), strings.Join(where, " AND "))

	cols := make([]string, 0, len(params))
	placeholders := make([]string, 0, len(params))
	insertArgs := make([]any, 0, len(params))
	for i, p := range params {
		cols = append(cols, quoteIdent(p.Column))
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+1))
		insertArgs = append(insertArgs, encodeParam(p.Value))
	}
	insertSQL := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		tableIdent, strings.Join(cols, ", "), strings.Join(placeholders, ", "))

	return upsertStatement{
		updateSQL:  updateSQL,
		updateArgs: args,
		insertSQL:  insertSQL,
		insertArgs: insertArgs,
	}, nil
}

func quoteIdent(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
