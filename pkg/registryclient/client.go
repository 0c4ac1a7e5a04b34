// Package registryclient is the worker-side HTTP client for the registry's
// claim and lease surface. Transient failures (5xx, timeouts) are retried
// with exponential backoff inside a bounded window; they never escape as
// anything a caller would treat as fatal.
package registryclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/replyfleet/replyfleet/pkg/models"
	"github.com/replyfleet/replyfleet/pkg/version"
)

// Client talks to the registry on behalf of one worker process.
type Client struct {
	baseURL  string
	workerID string
	http     *http.Client
}

// New creates a registry client. Every request carries the X-Worker-ID
// header and an explicit deadline.
func New(baseURL, workerID string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:  baseURL,
		workerID: workerID,
		http:     &http.Client{Timeout: timeout},
	}
}

// WorkerID returns the worker identity this client authenticates as.
func (c *Client) WorkerID() string {
	return c.workerID
}

// StatusError is a non-2xx response. 4xx responses are permanent: retrying
// them would only repeat the same rejection.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("registry returned %d: %s", e.Code, e.Body)
}

// IsStatus reports whether err carries the given HTTP status code.
func IsStatus(err error, code int) bool {
	var se *StatusError
	return errors.As(err, &se) && se.Code == code
}

// do performs one HTTP request with retries on transient failures.
func (c *Client) do(ctx context.Context, method, path string, out any) error {
	operation := func() ([]byte, error) {
		req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(nil))
		if err != nil {
			return nil, backoff.Permanent(err)
		}
		req.Header.Set("X-Worker-ID", c.workerID)
		req.Header.Set("User-Agent", version.Full())

		resp, err := c.http.Do(req)
		if err != nil {
			return nil, err // network errors are retryable
		}
		defer func() { _ = resp.Body.Close() }()

		body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
		if err != nil {
			return nil, err
		}
		if resp.StatusCode >= 500 {
			return nil, &StatusError{Code: resp.StatusCode, Body: string(body)}
		}
		if resp.StatusCode >= 400 {
			return nil, backoff.Permanent(&StatusError{Code: resp.StatusCode, Body: string(body)})
		}
		return body, nil
	}

	body, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(backoff.NewExponentialBackOff()),
		backoff.WithMaxTries(3),
		backoff.WithMaxElapsedTime(8*time.Second),
	)
	if err != nil {
		return err
	}
	if out != nil {
		if err := json.Unmarshal(body, out); err != nil {
			return fmt.Errorf("failed to decode registry response: %w", err)
		}
	}
	return nil
}

// Claim acquires up to limit leases for this worker. An empty batch is a
// normal outcome, not an error.
func (c *Client) Claim(ctx context.Context, limit int) ([]models.ClaimedUser, error) {
	var claimed []models.ClaimedUser
	path := fmt.Sprintf("/api/users/claim?limit=%d", limit)
	if err := c.do(ctx, http.MethodPost, path, &claimed); err != nil {
		return nil, fmt.Errorf("claim failed: %w", err)
	}
	return claimed, nil
}

// Heartbeat extends the lease for one owned user.
func (c *Client) Heartbeat(ctx context.Context, telegramID int64) error {
	path := fmt.Sprintf("/api/users/heartbeat/%d", telegramID)
	return c.do(ctx, http.MethodPost, path, nil)
}

// SessionRevoked reports a confirmed server-side revocation; the registry
// deletes the stored token.
func (c *Client) SessionRevoked(ctx context.Context, telegramID int64) error {
	path := fmt.Sprintf("/api/users/session-revoked/%d", telegramID)
	return c.do(ctx, http.MethodPost, path, nil)
}

// WorkerDisconnected releases the lease cleanly, keeping the token.
func (c *Client) WorkerDisconnected(ctx context.Context, telegramID int64) error {
	path := fmt.Sprintf("/api/users/worker-disconnected/%d", telegramID)
	return c.do(ctx, http.MethodPost, path, nil)
}

// Triggers fetches the user's trigger list in insertion order.
func (c *Client) Triggers(ctx context.Context, telegramID int64) ([]models.Trigger, error) {
	var triggers []models.Trigger
	path := fmt.Sprintf("/api/triggers/?user_telegram_id=%d", telegramID)
	if err := c.do(ctx, http.MethodGet, path, &triggers); err != nil {
		return nil, fmt.Errorf("trigger fetch failed: %w", err)
	}
	return triggers, nil
}
