package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"sap-sales-sync/internal/db"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

// RunStatus is the outcome of one sync run
type RunStatus string

const (
	RunStatusRunning   RunStatus = "running"
	RunStatusCompleted RunStatus = "completed"
	RunStatusPartial   RunStatus = "partial"
	RunStatusFailed    RunStatus = "failed"
)

// SyncRun is an audit log entry for one orchestrator run
type SyncRun struct {
	ID           uuid.UUID    `json:"id"`
	Entity       string       `json:"entity"`
	TriggeredBy  string       `json:"triggered_by"`
	Status       RunStatus    `json:"status"`
	StartedAt    time.Time    `json:"started_at"`
	CompletedAt  *time.Time   `json:"completed_at,omitempty"`
	Fetched      int32        `json:"fetched"`
	Excluded     int32        `json:"excluded"`
	Inserted     int32        `json:"inserted"`
	Updated      int32        `json:"updated"`
	Failed       int32        `json:"failed"`
	ErrorMessage *string      `json:"error_message,omitempty"`
	Failures     []RowFailure `json:"failures,omitempty"`
}

// CompleteRunResult contains the result data for completing a run
type CompleteRunResult struct {
	Status       RunStatus
	Fetched      int32
	Excluded     int32
	Inserted     int32
	Updated      int32
	Failures     []RowFailure
	ErrorMessage *string
}

// ListRunsFilter narrows ListRuns. Empty fields match everything.
type ListRunsFilter struct {
	Entity string
	Status RunStatus
	Limit  int32
	Offset int32
}

// SyncRunRepository persists the sync run audit log
type SyncRunRepository struct {
	db Querier
}

// NewSyncRunRepository creates a new sync run repository
func NewSyncRunRepository(db Querier) *SyncRunRepository {
	return &SyncRunRepository{db: db}
}

const syncRunColumns = `id, entity, triggered_by, status, started_at, completed_at,
	fetched, excluded, inserted, updated, failed, error_message, failures`

// dbSyncRun mirrors a sync_runs row as scanned from the driver
type dbSyncRun struct {
	ID           pgtype.UUID
	Entity       string
	TriggeredBy  string
	Status       string
	StartedAt    pgtype.Timestamptz
	CompletedAt  pgtype.Timestamptz
	Fetched      int32
	Excluded     int32
	Inserted     int32
	Updated      int32
	Failed       int32
	ErrorMessage pgtype.Text
	Failures     []byte
}

func scanSyncRun(row pgx.Row) (*dbSyncRun, error) {
	var r dbSyncRun
	err := row.Scan(
		&r.ID, &r.Entity, &r.TriggeredBy, &r.Status, &r.StartedAt, &r.CompletedAt,
		&r.Fetched, &r.Excluded, &r.Inserted, &r.Updated, &r.Failed, &r.ErrorMessage, &r.Failures,
	)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// convertDbSyncRun converts a scanned row to a repository sync run
func convertDbSyncRun(dbRun *dbSyncRun) SyncRun {
	run := SyncRun{
		Entity:      dbRun.Entity,
		TriggeredBy: dbRun.TriggeredBy,
		Status:      RunStatus(dbRun.Status),
		Fetched:     dbRun.Fetched,
		Excluded:    dbRun.Excluded,
		Inserted:    dbRun.Inserted,
		Updated:     dbRun.Updated,
		Failed:      dbRun.Failed,
	}

	if dbRun.ID.Valid {
		run.ID = uuid.UUID(dbRun.ID.Bytes)
	}
	if dbRun.StartedAt.Valid {
		run.StartedAt = dbRun.StartedAt.Time
	}
	if dbRun.CompletedAt.Valid {
		run.CompletedAt = &dbRun.CompletedAt.Time
	}
	if dbRun.ErrorMessage.Valid {
		run.ErrorMessage = &dbRun.ErrorMessage.String
	}

	if len(dbRun.Failures) > 0 {
		var failures []RowFailure
		if err := json.Unmarshal(dbRun.Failures, &failures); err == nil {
			run.Failures = failures
		}
	}

	return run
}

// CreateRun opens a run in the running state
func (r *SyncRunRepository) CreateRun(ctx context.Context, entity, triggeredBy string) (*SyncRun, error) {
	id := uuid.New()
	dbRun, err := scanSyncRun(r.db.QueryRow(ctx,
		`INSERT INTO sync_runs (id, entity, triggered_by, status)
		VALUES ($1, $2, $3, $4)
		RETURNING `+syncRunColumns,
		uuidToPgUUID(id), entity, triggeredBy, string(RunStatusRunning),
	))
	if err != nil {
		return nil, fmt.Errorf("create sync run: %w", err)
	}

	run := convertDbSyncRun(dbRun)
	return &run, nil
}

// CompleteRun records the outcome of a run
func (r *SyncRunRepository) CompleteRun(ctx context.Context, id uuid.UUID, result CompleteRunResult) (*SyncRun, error) {
	var failures []byte
	if len(result.Failures) > 0 {
		var err error
		failures, err = json.Marshal(result.Failures)
		if err != nil {
			return nil, err
		}
	}

	now := time.Now()
	dbRun, err := scanSyncRun(r.db.QueryRow(ctx,
		`UPDATE sync_runs
		SET status = $2, completed_at = $3, fetched = $4, excluded = $5,
			inserted = $6, updated = $7, failed = $8, error_message = $9, failures = $10
		WHERE id = $1
		RETURNING `+syncRunColumns,
		uuidToPgUUID(id), string(result.Status), timeToPgTimestamptz(&now),
		result.Fetched, result.Excluded, result.Inserted, result.Updated,
		int32(len(result.Failures)), stringToPgText(result.ErrorMessage), failures,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, fmt.Errorf("complete sync run: %w", err)
	}

	run := convertDbSyncRun(dbRun)
	return &run, nil
}

// GetRun retrieves a run by ID
func (r *SyncRunRepository) GetRun(ctx context.Context, id uuid.UUID) (*SyncRun, error) {
	dbRun, err := scanSyncRun(r.db.QueryRow(ctx,
		`SELECT `+syncRunColumns+` FROM sync_runs WHERE id = $1`,
		uuidToPgUUID(id),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, db.ErrNotFound
		}
		return nil, err
	}

	run := convertDbSyncRun(dbRun)
	return &run, nil
}

// ListRuns retrieves runs newest first
func (r *SyncRunRepository) ListRuns(ctx context.Context, filter ListRunsFilter) ([]SyncRun, error) {
	var (
		conds []string
		args  []any
	)
	if filter.Entity != "" {
		args = append(args, filter.Entity)
		conds = append(conds, fmt.Sprintf("entity = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT ` + syncRunColumns + ` FROM sync_runs`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	args = append(args, limit, filter.Offset)
	query += fmt.Sprintf(" ORDER BY started_at DESC LIMIT $%d OFFSET $%d", len(args)-1, len(args))

	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []SyncRun{}
	for rows.Next() {
		dbRun, err := scanSyncRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, convertDbSyncRun(dbRun))
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

// DeleteRunsBefore deletes runs started before the given time
func (r *SyncRunRepository) DeleteRunsBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM sync_runs WHERE started_at < $1`, timeToPgTimestamptz(&before))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
