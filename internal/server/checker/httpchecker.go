// Package checker provides a generic HTTP-based BatchChecker/StreamChecker
// adapter, the "reference" flag-checking collaborator operators can swap
// for a game-specific one without touching the submitter package itself.
// Most competitions run a custom checker protocol; this adapter speaks the
// simplest reasonable JSON shape and is meant to be replaced, not relied
// on, for any game with a bespoke checker system.
package checker

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

// HTTPChecker submits flags to a checker service over plain HTTP JSON,
// one POST per batch (for per_tick/interval/batch_size) or one POST per
// flag (for streams, where Prepare/Cleanup are no-ops since HTTP carries
// no connection state worth pooling beyond what http.Client already does).
type HTTPChecker struct {
	client http.Client
	url    string
}

// New builds an HTTPChecker that POSTs to url.
func New(url string, timeout time.Duration) *HTTPChecker {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPChecker{url: url, client: http.Client{Timeout: timeout}}
}

type batchRequest struct {
	Flags []string `json:"flags"`
}

// Submit implements submitter.BatchChecker.
func (c *HTTPChecker) Submit(ctx context.Context, flags []string) ([]wire.FlagSubmissionResponse, error) {
	body, err := json.Marshal(batchRequest{Flags: flags})
	if err != nil {
		return nil, fmt.Errorf("checker: encode batch: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("checker: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("checker: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("checker: status %d: %s", resp.StatusCode, string(payload))
	}

	var out []wire.FlagSubmissionResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("checker: decode response: %w", err)
	}
	return out, nil
}

// StreamHTTPChecker adapts an HTTPChecker to submitter.StreamChecker's
// one-flag-per-call shape, for the streams strategy. Prepare/Cleanup are
// no-ops: HTTPChecker holds no per-worker connection state beyond what
// http.Client already pools.
type StreamHTTPChecker struct {
	*HTTPChecker
}

// NewStream wraps an HTTPChecker for use as a streams-strategy worker.
func NewStream(url string, timeout time.Duration) *StreamHTTPChecker {
	return &StreamHTTPChecker{HTTPChecker: New(url, timeout)}
}

// Submit implements submitter.StreamChecker.
func (c *StreamHTTPChecker) Submit(ctx context.Context, flag string) (wire.FlagSubmissionResponse, error) {
	responses, err := c.HTTPChecker.Submit(ctx, []string{flag})
	if err != nil {
		return wire.FlagSubmissionResponse{}, err
	}
	for _, r := range responses {
		if r.Flag == flag {
			return r, nil
		}
	}
	return wire.FlagSubmissionResponse{}, fmt.Errorf("checker: no response for %q", flag)
}

// Prepare is a no-op.
func (c *StreamHTTPChecker) Prepare(ctx context.Context) error { return nil }

// Cleanup is a no-op, matching Prepare.
func (c *StreamHTTPChecker) Cleanup(ctx context.Context) error { return nil }
