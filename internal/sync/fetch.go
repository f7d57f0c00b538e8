package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ErrBadShape marks an upstream body that parsed but is not the JSON object
// the source contract promises. Callers treat it as "no data" for the rest of
// that source's run, not as a hard failure.
var ErrBadShape = errors.New("upstream payload is not a JSON object of the expected shape")

// Client wraps the outbound HTTP client shared by all source fetchers.
// Every request carries the caller's context plus the client's own timeout,
// so no fetch can block a sync run indefinitely.
type Client struct {
	http *http.Client
}

// NewClient builds a fetch client with a per-request timeout.
func NewClient(timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{http: &http.Client{Timeout: timeout}}
}

// GetJSON fetches url and decodes the body into a generic JSON object.
// A non-2xx status is a transport-level error; a body that is valid JSON but
// not an object returns ErrBadShape.
func (c *Client) GetJSON(ctx context.Context, url string) (map[string]any, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("GET %s: status %d", url, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 8<<20))
	if err != nil {
		return nil, err
	}
	var v any
	if err := json.Unmarshal(body, &v); err != nil {
		return nil, ErrBadShape
	}
	obj, ok := v.(map[string]any)
	if !ok {
		return nil, ErrBadShape
	}
	return obj, nil
}
