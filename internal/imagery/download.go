package imagery

import (
	"context"
	"fmt"
	"io"
	"net/http"
)

// Fetch downloads the raster bytes behind a time-limited URL. The chip is an
// opaque blob; bytes are returned exactly as received. A non-2xx status is
// an error carrying the status and a bounded slice of the body.
func (c *HTTPClient) Fetch(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &StatusError{StatusCode: resp.StatusCode, Body: string(body)}
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}

// Fetcher is the download side of the remote contract.
type Fetcher interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}
