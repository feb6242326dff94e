package api

import (
	"errors"
	"net/http"

	"sap-sales-sync/internal/repository"
	"sap-sales-sync/internal/sync"

	"github.com/gin-gonic/gin"
)

// APIResponse represents a standard API response
type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    *Meta       `json:"meta,omitempty"`
}

// APIError represents an error response
type APIError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// Meta represents metadata for responses
type Meta struct {
	Limit  int32 `json:"limit"`
	Offset int32 `json:"offset"`
	Count  int   `json:"count"`
}

// Standard error codes
const (
	ErrCodeValidation = "VALIDATION_ERROR"
	ErrCodeNotFound   = "NOT_FOUND"
	ErrCodeInternal   = "INTERNAL_ERROR"
	ErrCodeConflict   = "CONFLICT"
	ErrCodeFormat     = "INVALID_REMOTE_FORMAT"
	ErrCodeFetch      = "REMOTE_FETCH_FAILED"
	ErrCodeTx         = "TRANSACTION_FAILED"
)

// SyncResponse is the body returned by the per-entity trigger routes.
// FailedRows and Errors cover records dropped before the write as well as
// rows the database rejected; ExcludedRows counts the former.
type SyncResponse struct {
	Message      string                  `json:"message"`
	InsertedRows int                     `json:"insertedRows"`
	UpdatedRows  int                     `json:"updatedRows"`
	ExcludedRows int                     `json:"excludedRows"`
	FailedRows   int                     `json:"failedRows"`
	Errors       []repository.RowFailure `json:"errors"`
}

// SyncErrorResponse is the body of a trigger route whose run failed
type SyncErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Error   string `json:"error,omitempty"`
}

// SendSuccess sends a successful response
func SendSuccess(c *gin.Context, statusCode int, data interface{}, meta *Meta) {
	c.JSON(statusCode, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

// SendError sends an error response
func SendError(c *gin.Context, statusCode int, code, message, details string) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// SendSyncResult renders a finished run in the trigger route shape. Excluded
// records are listed ahead of the rows that failed to write.
func SendSyncResult(c *gin.Context, message string, inserted, updated int, excluded, failed []repository.RowFailure) {
	errs := make([]repository.RowFailure, 0, len(excluded)+len(failed))
	errs = append(errs, excluded...)
	errs = append(errs, failed...)

	c.JSON(http.StatusOK, SyncResponse{
		Message:      message,
		InsertedRows: inserted,
		UpdatedRows:  updated,
		ExcludedRows: len(excluded),
		FailedRows:   len(errs),
		Errors:       errs,
	})
}

// SendSyncError renders a run level failure with the status sync.StatusCode picks
func SendSyncError(c *gin.Context, err error) {
	_ = c.Error(err)

	code, message := ErrCodeInternal, "Internal Server Error"
	switch {
	case errors.Is(err, sync.ErrFormat):
		code, message = ErrCodeFormat, sync.ErrFormat.Error()
	case errors.Is(err, sync.ErrUnknownEntity):
		code, message = ErrCodeNotFound, sync.ErrUnknownEntity.Error()
	case errors.Is(err, sync.ErrTransaction):
		code, message = ErrCodeTx, sync.ErrTransaction.Error()
	case errors.Is(err, sync.ErrFetch):
		code, message = ErrCodeFetch, sync.ErrFetch.Error()
	}

	c.JSON(sync.StatusCode(err), SyncErrorResponse{Code: code, Message: message, Error: err.Error()})
}

func SendValidationError(c *gin.Context, message, details string) {
	SendError(c, http.StatusBadRequest, ErrCodeValidation, message, details)
}

func SendNotFound(c *gin.Context, resource string) {
	SendError(c, http.StatusNotFound, ErrCodeNotFound, resource+" not found", "")
}

func SendInternalError(c *gin.Context, message string) {
	SendError(c, http.StatusInternalServerError, ErrCodeInternal, "Internal server error", message)
}

func SendConflict(c *gin.Context, message string) {
	SendError(c, http.StatusConflict, ErrCodeConflict, message, "")
}
