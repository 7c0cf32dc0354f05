package source

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"time"

	"cambio_go/internal/domain"
	"cambio_go/internal/infra"
)

const defaultTimeout = 5 * time.Second

// Fetcher performs one bounded retrieval against a rate source. It holds
// a shared tuned client; every call carries its own timeout context, so
// one slow source never delays or cancels its siblings.
type Fetcher struct {
	client  *http.Client
	timeout time.Duration
}

// NewFetcher creates a Fetcher with a per-source timeout. Non-positive
// timeouts fall back to the 5 second default.
func NewFetcher(timeout time.Duration) *Fetcher {
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	// Optimize HTTP Transport to prevent connection leaks
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 100
	transport.MaxConnsPerHost = 10
	transport.IdleConnTimeout = 30 * time.Second

	return &Fetcher{
		client:  &http.Client{Transport: transport},
		timeout: timeout,
	}
}

// Fetch attempts one retrieval from src and maps the body to a partial
// rate table. Any failure (non-2xx, timeout, unreadable body, bad
// mapping) comes back as a SourceError naming the source; the caller
// discards the source for this cycle and moves on.
func (f *Fetcher) Fetch(ctx context.Context, src Source) (domain.RateTable, error) {
	ctx, cancel := context.WithTimeout(ctx, f.timeout)
	defer cancel()

	table, err := f.doFetch(ctx, src)
	if err != nil {
		return nil, domain.NewSourceError(src.ID, err)
	}
	return table, nil
}

func (f *Fetcher) doFetch(ctx context.Context, src Source) (domain.RateTable, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src.Endpoint, nil)
	if err != nil {
		return nil, err
	}

	// Add browser-like User-Agent to avoid bot detection
	req.Header.Set("User-Agent", infra.DefaultUserAgent)
	req.Header.Set("Accept", "application/json")

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	table, err := src.Decode(body)
	if err != nil {
		return nil, err
	}
	return table, nil
}
