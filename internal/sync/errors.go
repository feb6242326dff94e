package sync

import (
	"errors"
	"net/http"
)

// Run-level failures. Row-level failures never surface as errors; they are
// aggregated into the run result.
var (
	// ErrFetch covers network, auth and non-2xx failures talking to SAP.
	ErrFetch = errors.New("failed to fetch data from remote")
	// ErrFormat means the payload did not carry a record list.
	ErrFormat = errors.New("invalid data format received from remote")
	// ErrTransaction means the batch transaction could not begin or commit.
	ErrTransaction = errors.New("error inserting/updating data")
	// ErrUnknownEntity is returned for names missing from the registry.
	ErrUnknownEntity = errors.New("unknown entity")
)

// StatusCode maps a run error onto the HTTP status reported to callers.
func StatusCode(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrFormat):
		return http.StatusBadRequest
	case errors.Is(err, ErrUnknownEntity):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
