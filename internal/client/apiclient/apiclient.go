// Package apiclient is the client's HTTP connector to the server's
// connect/* surface, built on the same http.Client-plus-base-URL shape
// used elsewhere in this codebase for outbound HTTP store clients.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avalactf/avala/pkg/wire"
)

// Client talks to one avala server over HTTP, authenticating with HTTP
// Basic Auth using the shared game password.
type Client struct {
	client   http.Client
	baseURL  string
	username string
	password string
}

// New builds a Client against baseURL (e.g. "http://ctf.example:8080").
func New(baseURL, username, password string) *Client {
	return &Client{
		baseURL:  baseURL,
		username: username,
		password: password,
		client:   http.Client{Timeout: 15 * time.Second},
	}
}

func (c *Client) do(ctx context.Context, method, path string, body, out interface{}, timeout time.Duration) error {
	var reader io.Reader
	if body != nil {
		buf := &bytes.Buffer{}
		if err := json.NewEncoder(buf).Encode(body); err != nil {
			return fmt.Errorf("apiclient: encode %s: %w", path, err)
		}
		reader = buf
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("apiclient: build request %s: %w", path, err)
	}
	if c.password != "" {
		req.SetBasicAuth(c.username, c.password)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := c.client
	if timeout > 0 {
		client.Timeout = timeout
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("apiclient: %s %s: status %d: %s", method, path, resp.StatusCode, string(payload))
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("apiclient: decode %s: %w", path, err)
	}
	return nil
}

// Health checks server reachability and credential validity.
func (c *Client) Health(ctx context.Context) error {
	return c.do(ctx, http.MethodGet, "/connect/health", nil, nil, 0)
}

// Game fetches static game parameters.
func (c *Client) Game(ctx context.Context) (wire.GameInfo, error) {
	var out wire.GameInfo
	err := c.do(ctx, http.MethodGet, "/connect/game", nil, &out, 0)
	return out, err
}

// Schedule fetches the server's computed schedule for the current tick.
func (c *Client) Schedule(ctx context.Context) (wire.Schedule, error) {
	var out wire.Schedule
	err := c.do(ctx, http.MethodGet, "/connect/schedule", nil, &out, 0)
	return out, err
}

// Enqueue submits a batch of discovered flag ids for one exploit/target pair.
func (c *Client) Enqueue(ctx context.Context, exploitAlias, target string, flagIDs []string) (wire.EnqueueResponse, error) {
	var out wire.EnqueueResponse
	req := wire.EnqueueRequest{Values: flagIDs, Exploit: exploitAlias, Target: target}
	err := c.do(ctx, http.MethodPost, "/flags/queue", req, &out, 0)
	return out, err
}

// AttackDataCurrent fetches whatever attack-data payload the server currently holds.
func (c *Client) AttackDataCurrent(ctx context.Context) (wire.AttackData, error) {
	var out wire.AttackData
	err := c.do(ctx, http.MethodGet, "/attack-data/current", nil, &out, 0)
	return out, err
}

// AttackDataSubscribe long-polls for the next attack-data refresh, blocking
// up to timeout. Callers should fall back to a cached copy (see
// internal/client/localstore.ObjectStore) on error, exactly as the
// original's client did when a poll timed out or the connection dropped.
func (c *Client) AttackDataSubscribe(ctx context.Context, timeout time.Duration) (wire.AttackData, error) {
	var out wire.AttackData
	err := c.do(ctx, http.MethodGet, "/attack-data/subscribe", nil, &out, timeout+5*time.Second)
	return out, err
}
