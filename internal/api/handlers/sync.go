package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"sap-sales-sync/internal/api"
	"sap-sales-sync/internal/db"
	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/scheduler"
	"sap-sales-sync/internal/service"
	"sap-sales-sync/internal/sync"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

// EntitySyncer is the slice of *service.SyncService the sync routes use
type EntitySyncer interface {
	SyncEntity(ctx context.Context, name, trigger string) (*service.RunResult, error)
	Entities() []sync.EntitySpec
	ListRuns(ctx context.Context, filter repository.ListRunsFilter) ([]repository.SyncRun, error)
	GetRun(ctx context.Context, id uuid.UUID) (*repository.SyncRun, error)
}

// SequenceRunner runs every entity in order. *scheduler.Scheduler satisfies it.
type SequenceRunner interface {
	RunNow(ctx context.Context, trigger string) ([]service.EntityOutcome, error)
}

// SourceSyncer syncs the schema-less sources. *service.MultiAPISync satisfies it.
type SourceSyncer interface {
	SyncAll(ctx context.Context) []service.SourceResult
}

// SyncHandler handles sync-related HTTP requests
type SyncHandler struct {
	syncService EntitySyncer
	sequence    SequenceRunner
	sources     SourceSyncer
	validator   *validator.Validate
}

// NewSyncHandler creates a new sync handler
func NewSyncHandler(syncService EntitySyncer, sequence SequenceRunner, sources SourceSyncer) *SyncHandler {
	return &SyncHandler{
		syncService: syncService,
		sequence:    sequence,
		sources:     sources,
		validator:   validator.New(),
	}
}

// ListRunsQuery are the filters accepted by GET /api/sync/runs
type ListRunsQuery struct {
	Entity string `form:"entity" validate:"omitempty,max=100"`
	Status string `form:"status" validate:"omitempty,oneof=running completed partial failed"`
	Limit  int32  `form:"limit" validate:"omitempty,min=1,max=500"`
	Offset int32  `form:"offset" validate:"omitempty,min=0"`
}

// SourcesResponse is the body of POST /api/syncAllAPIs
type SourcesResponse struct {
	Message string                 `json:"message"`
	Results []service.SourceResult `json:"results"`
}

// TriggerEntity returns a handler that syncs one entity and reports the
// inserted, updated and failed rows.
func (h *SyncHandler) TriggerEntity(name string) gin.HandlerFunc {
	displayName := name
	for _, spec := range h.syncService.Entities() {
		if spec.Name == name {
			displayName = spec.DisplayName
		}
	}

	return func(c *gin.Context) {
		result, err := h.syncService.SyncEntity(c.Request.Context(), name, service.TriggerHTTP)
		if err != nil {
			api.SendSyncError(c, err)
			return
		}

		message := fmt.Sprintf("%s inserted/updated successfully", displayName)
		if result.NothingToDo {
			message = fmt.Sprintf("No %s to process", displayName)
		}
		api.SendSyncResult(c, message, result.Inserted, result.Updated, result.Excluded, result.Failed)
	}
}

// RunAll runs every entity in scheduler order on the request goroutine
func (h *SyncHandler) RunAll(c *gin.Context) {
	outcomes, err := h.sequence.RunNow(c.Request.Context(), service.TriggerHTTP)
	if err != nil {
		if errors.Is(err, scheduler.ErrAlreadyRunning) {
			api.SendConflict(c, err.Error())
			return
		}
		api.SendInternalError(c, err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, outcomes, nil)
}

// SyncAllAPIs provisions and syncs every configured schema-less source
func (h *SyncHandler) SyncAllAPIs(c *gin.Context) {
	results := h.sources.SyncAll(c.Request.Context())

	message := "Data synced successfully for all APIs"
	for _, r := range results {
		if r.Error != "" {
			message = "Data sync finished with errors"
			break
		}
	}

	c.JSON(http.StatusOK, SourcesResponse{Message: message, Results: results})
}

// ListEntities returns the registered entities in run order
func (h *SyncHandler) ListEntities(c *gin.Context) {
	api.SendSuccess(c, http.StatusOK, h.syncService.Entities(), nil)
}

// ListRuns returns the run log, newest first
func (h *SyncHandler) ListRuns(c *gin.Context) {
	var query ListRunsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		api.SendValidationError(c, "Invalid query parameters", err.Error())
		return
	}

	if err := h.validator.Struct(query); err != nil {
		api.SendValidationError(c, "Validation failed", err.Error())
		return
	}

	if query.Limit == 0 {
		query.Limit = 50
	}

	runs, err := h.syncService.ListRuns(c.Request.Context(), repository.ListRunsFilter{
		Entity: query.Entity,
		Status: repository.RunStatus(query.Status),
		Limit:  query.Limit,
		Offset: query.Offset,
	})
	if err != nil {
		api.SendError(c, http.StatusInternalServerError, api.ErrCodeInternal, "Failed to list sync runs", err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, runs, &api.Meta{
		Limit:  query.Limit,
		Offset: query.Offset,
		Count:  len(runs),
	})
}

// GetRun returns one run log entry
func (h *SyncHandler) GetRun(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		api.SendValidationError(c, "Invalid run ID", err.Error())
		return
	}

	run, err := h.syncService.GetRun(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, db.ErrNotFound) {
			api.SendNotFound(c, "Sync run")
			return
		}
		api.SendError(c, http.StatusInternalServerError, api.ErrCodeInternal, "Failed to get sync run", err.Error())
		return
	}

	api.SendSuccess(c, http.StatusOK, run, nil)
}
