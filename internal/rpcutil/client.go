// Package rpcutil provides the HTTP/JSON RPC client used for every outbound
// call in this system: coordinator to participant (2PC), coordinator to
// chat node (placement), chat node to coordinator (logChatMessage retries).
// Every client is wrapped in a sony/gobreaker circuit breaker the way the
// teacher's pkg/sfu/client.go wraps its gRPC calls to the Rust SFU — an open
// breaker is just another transport failure for the purposes of the error
// taxonomy (vote NO / skip fan-out / retry loop).
package rpcutil

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chatmesh/server/internal/logging"
	"github.com/chatmesh/server/internal/metrics"
	"github.com/sony/gobreaker"
	"go.uber.org/zap"
)

// ErrUnreachable is returned when the breaker is open or the underlying
// transport call failed; callers treat this identically to any other
// transport failure (canCommit votes NO, doCommit/doAbort fan-out skips it).
var ErrUnreachable = fmt.Errorf("rpcutil: remote surface unreachable")

// Client is a breaker-wrapped HTTP/JSON client bound to one remote node's
// base URL (e.g. "http://host:port").
type Client struct {
	name    string
	baseURL string
	http    *http.Client
	cb      *gobreaker.CircuitBreaker
}

// NewClient constructs a Client for a single remote surface. name is used
// both as the gobreaker circuit name and as the "service" label on the
// circuit_breaker_state/failures_total metrics.
func NewClient(name, baseURL string, timeout time.Duration) *Client {
	st := gobreaker.Settings{
		Name:        name,
		MaxRequests: 3,
		Interval:    1 * time.Minute,
		Timeout:     30 * time.Second,
		OnStateChange: func(_ string, _ gobreaker.State, to gobreaker.State) {
			var stateVal float64
			switch to {
			case gobreaker.StateClosed:
				stateVal = 0
			case gobreaker.StateOpen:
				stateVal = 1
			case gobreaker.StateHalfOpen:
				stateVal = 2
			}
			metrics.CircuitBreakerState.WithLabelValues(name).Set(stateVal)
		},
	}

	return &Client{
		name:    name,
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		cb:      gobreaker.NewCircuitBreaker(st),
	}
}

// PostJSON POSTs reqBody as JSON to path and decodes the response into
// respBody (if non-nil). Every failure — transport, non-2xx status, open
// breaker — is reported as ErrUnreachable-wrapping error.
func (c *Client) PostJSON(ctx context.Context, path string, reqBody, respBody interface{}) error {
	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.doPost(ctx, path, reqBody)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.CircuitBreakerFailures.WithLabelValues(c.name).Inc()
			return fmt.Errorf("%w: %s: circuit open", ErrUnreachable, c.name)
		}
		logging.Warn(ctx, "rpc call failed", zap.Error(err))
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, c.name, err)
	}

	if respBody == nil {
		return nil
	}
	body := raw.([]byte)
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response from %s: %w", c.name, err)
	}
	return nil
}

func (c *Client) doPost(ctx context.Context, path string, reqBody interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if reqBody != nil {
		if err := json.NewEncoder(&buf).Encode(reqBody); err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, &buf)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}

// GetJSON GETs path and decodes the response into respBody.
func (c *Client) GetJSON(ctx context.Context, path string, respBody interface{}) error {
	raw, err := c.cb.Execute(func() (interface{}, error) {
		return c.doGet(ctx, path)
	})
	if err != nil {
		if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
			metrics.CircuitBreakerFailures.WithLabelValues(c.name).Inc()
			return fmt.Errorf("%w: %s: circuit open", ErrUnreachable, c.name)
		}
		return fmt.Errorf("%w: %s: %v", ErrUnreachable, c.name, err)
	}

	if respBody == nil {
		return nil
	}
	body := raw.([]byte)
	if len(body) == 0 {
		return nil
	}
	if err := json.Unmarshal(body, respBody); err != nil {
		return fmt.Errorf("decode response from %s: %w", c.name, err)
	}
	return nil
}

func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, body)
	}

	return body, nil
}
