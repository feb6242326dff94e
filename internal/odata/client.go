// Package odata fetches record snapshots from the SAP OData gateway.
package odata

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/goccy/go-json"
)

var (
	// ErrStatus is returned when the gateway answers with a non-2xx status.
	ErrStatus = errors.New("unexpected status from remote")
	// ErrFormat is returned when the body is not a record list.
	ErrFormat = errors.New("invalid data format received from remote")
)

// maxErrorBody caps how much of a failed response is kept in the error.
const maxErrorBody = 512

// StatusError carries the status and a prefix of the body of a rejected request.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %d", ErrStatus, e.Code)
	}
	return fmt.Sprintf("%s: %d: %s", ErrStatus, e.Code, e.Body)
}

func (e *StatusError) Unwrap() error { return ErrStatus }

// Client performs authenticated GETs against OData entity sets.
type Client struct {
	http     *http.Client
	username string
	password string
}

// NewClient builds a client using basic auth. A zero timeout means no timeout.
func NewClient(username, password string, timeout time.Duration) *Client {
	return &Client{
		http:     &http.Client{Timeout: timeout},
		username: username,
		password: password,
	}
}

// WithHTTPClient swaps the underlying transport client.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.http = hc
	return c
}

// Fetch returns the records of one snapshot. Both the {"d":{"results":[...]}}
// envelope and a bare JSON array are accepted. Numbers are kept as json.Number.
func (c *Client) Fetch(ctx context.Context, url string) ([]map[string]any, error) {
	if strings.TrimSpace(url) == "" {
		return nil, errors.New("remote url is not configured")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if c.username != "" || c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request %s: %w", req.URL.Redacted(), err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet := strings.TrimSpace(string(body))
		if len(snippet) > maxErrorBody {
			snippet = snippet[:maxErrorBody]
		}
		return nil, &StatusError{Code: resp.StatusCode, Body: snippet}
	}

	return Decode(body)
}

// Decode extracts the record list from a response body.
func Decode(body []byte) ([]map[string]any, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()

	var payload any
	if err := dec.Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrFormat, err)
	}

	var items []any
	switch v := payload.(type) {
	case []any:
		items = v
	case map[string]any:
		d, ok := v["d"].(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: missing d envelope", ErrFormat)
		}
		results, ok := d["results"].([]any)
		if !ok {
			return nil, fmt.Errorf("%w: missing d.results array", ErrFormat)
		}
		items = results
	default:
		return nil, fmt.Errorf("%w: expected object or array, got %T", ErrFormat, payload)
	}

	out := make([]map[string]any, 0, len(items))
	for i, item := range items {
		rec, ok := item.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("%w: record %d is %T, not an object", ErrFormat, i, item)
		}
		out = append(out, rec)
	}
	return out, nil
}
