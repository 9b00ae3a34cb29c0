package attackdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/avalactf/avala/pkg/wire"
)

// HTTPFetcher is the reference Fetcher: it GETs a URL expected to return
// wire.AttackData-shaped JSON directly. Most competitions expose attack
// data in a game-specific shape instead, in which case the operator
// supplies their own Fetcher (and, if needed, a Processor to reshape it)
// rather than using this one.
type HTTPFetcher struct {
	client http.Client
	url    string
}

// NewHTTPFetcher builds an HTTPFetcher against url.
func NewHTTPFetcher(url string, timeout time.Duration) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &HTTPFetcher{url: url, client: http.Client{Timeout: timeout}}
}

// Fetch implements Fetcher.
func (f *HTTPFetcher) Fetch(ctx context.Context) (wire.AttackData, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, f.url, nil)
	if err != nil {
		return wire.AttackData{}, fmt.Errorf("attackdata: build request: %w", err)
	}

	resp, err := f.client.Do(req)
	if err != nil {
		return wire.AttackData{}, fmt.Errorf("attackdata: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return wire.AttackData{}, fmt.Errorf("attackdata: status %d: %s", resp.StatusCode, string(payload))
	}

	var data wire.AttackData
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return wire.AttackData{}, fmt.Errorf("attackdata: decode: %w", err)
	}
	return data, nil
}
