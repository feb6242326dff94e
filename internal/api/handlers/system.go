package handlers

import (
	"bytes"
	"context"
	"net/http"
	"time"

	"sap-sales-sync/internal/api"
	"sap-sales-sync/internal/config"
	"sap-sales-sync/internal/export"
	"sap-sales-sync/internal/logger"
	"sap-sales-sync/internal/records"

	"github.com/gin-gonic/gin"
	"github.com/robfig/cron/v3"
)

// CustomerSource fetches the live customer snapshot. *service.SyncService satisfies it.
type CustomerSource interface {
	Customers(ctx context.Context) ([]records.Customer, error)
}

// JobLister exposes scheduler state. *scheduler.Scheduler satisfies it.
type JobLister interface {
	GetScheduledJobs() []cron.Entry
	Running() bool
}

type SystemHandler struct {
	customers CustomerSource
	jobs      JobLister
	cfg       config.SchedulerConfig
	env       string
}

func NewSystemHandler(customers CustomerSource, jobs JobLister, cfg config.SchedulerConfig, env string) *SystemHandler {
	return &SystemHandler{
		customers: customers,
		jobs:      jobs,
		cfg:       cfg,
		env:       env,
	}
}

type ScheduledJob struct {
	ID   int        `json:"id"`
	Next *time.Time `json:"next,omitempty"`
	Prev *time.Time `json:"prev,omitempty"`
}

type SchedulerStatus struct {
	Enabled     bool           `json:"enabled"`
	Spec        string         `json:"spec"`
	Pause       string         `json:"pause"`
	Running     bool           `json:"running"`
	Jobs        []ScheduledJob `json:"jobs"`
	CurrentTime time.Time      `json:"current_time"`
	Environment string         `json:"environment"`
}

// GetSchedulerStatus reports the cron entries and whether a sequence is in flight
func (h *SystemHandler) GetSchedulerStatus(c *gin.Context) {
	status := SchedulerStatus{
		Enabled:     h.cfg.Enabled,
		Spec:        h.cfg.Spec,
		Pause:       h.cfg.Pause.String(),
		Jobs:        []ScheduledJob{},
		CurrentTime: time.Now().UTC(),
		Environment: h.env,
	}

	if h.jobs != nil {
		status.Running = h.jobs.Running()
		for _, e := range h.jobs.GetScheduledJobs() {
			job := ScheduledJob{ID: int(e.ID)}
			if !e.Next.IsZero() {
				next := e.Next
				job.Next = &next
			}
			if !e.Prev.IsZero() {
				prev := e.Prev
				job.Prev = &prev
			}
			status.Jobs = append(status.Jobs, job)
		}
	}

	api.SendSuccess(c, http.StatusOK, status, nil)
}

// ExportCustomers streams the live SAP customer list as an xlsx download
func (h *SystemHandler) ExportCustomers(c *gin.Context) {
	customers, err := h.customers.Customers(c.Request.Context())
	if err != nil {
		api.SendSyncError(c, err)
		return
	}

	// render fully before writing headers so a failure can still answer 500
	var buf bytes.Buffer
	if err := export.WriteCustomers(&buf, customers); err != nil {
		api.SendError(c, http.StatusInternalServerError, api.ErrCodeInternal, "Failed to generate Excel file", err.Error())
		return
	}

	logger.Info().Int("customers", len(customers)).Msg("customer export generated")
	c.Header("Content-Disposition", "attachment; filename=customer_info.xlsx")
	c.Data(http.StatusOK, export.ContentTypeXLSX, buf.Bytes())
}
