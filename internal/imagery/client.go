// Package imagery talks to the remote imagery/compute service. The service
// composites, filters and renders the imagery; this package only describes
// what to render and receives time-limited download URLs back.
package imagery

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// ReducerMedian is the per-pixel temporal aggregate applied over the
// filtered collection.
const ReducerMedian = "median"

// Default output parameters for rendered chips.
const (
	FormatGeoTIFF = "GEO_TIFF"
	DefaultCRS    = "EPSG:3857"
)

// CloudFilter limits scenes by a cloud-cover metadata property.
type CloudFilter struct {
	Property   string  `json:"property"`
	MaxPercent float64 `json:"max_percent"`
}

// ImageQuery describes a composited image: which collection, clipped to
// which region, over which dates, with which filters and reducer.
type ImageQuery struct {
	Collection string       `json:"collection"`
	Region     Region       `json:"region"`
	StartDate  string       `json:"start_date"`
	EndDate    string       `json:"end_date"`
	Cloud      *CloudFilter `json:"cloud,omitempty"`
	Reducer    string       `json:"reducer"`
}

// Region is a lat/lon rectangle in degrees.
type Region struct {
	XMin float64 `json:"x_min"`
	XMax float64 `json:"x_max"`
	YMin float64 `json:"y_min"`
	YMax float64 `json:"y_max"`
}

// RenderSpec describes how to turn a composited image into a raster file.
type RenderSpec struct {
	// Name is the export description and file name prefix.
	Name string `json:"name"`

	// Bands selects the band identifiers to render, in order.
	Bands []string `json:"bands,omitempty"`

	// Visualize applies a min/max stretch over the selected bands. When
	// false the image is exported raw (single-band classification data).
	Visualize bool    `json:"visualize"`
	Min       float64 `json:"min,omitempty"`
	Max       float64 `json:"max,omitempty"`

	// PanBand, when set, asks the service to pan-sharpen: convert the band
	// selection to HSV, swap the value channel for this band, convert back.
	PanBand string `json:"pan_band,omitempty"`

	Format string `json:"format"`
	CRS    string `json:"crs"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

// Client is the consumed contract of the remote imagery service.
type Client interface {
	// BandNames returns the band identifiers present in the filtered,
	// composited image described by the query.
	BandNames(ctx context.Context, q ImageQuery) ([]string, error)

	// DownloadURL renders the image per spec and returns a time-limited
	// URL from which the raster bytes can be fetched.
	DownloadURL(ctx context.Context, q ImageQuery, spec RenderSpec) (string, error)
}

// StatusError is a non-2xx response from the service.
type StatusError struct {
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("imagery service: http %d: %s", e.StatusCode, e.Body)
}

// HTTPClient reaches the imagery service over JSON/HTTP.
type HTTPClient struct {
	endpoint string
	client   *http.Client
}

// NewHTTPClient creates a client for the service at endpoint.
func NewHTTPClient(endpoint string) *HTTPClient {
	return &HTTPClient{
		endpoint: endpoint,
		client: &http.Client{
			Timeout: 60 * time.Second,
		},
	}
}

// BandNames implements Client.
func (c *HTTPClient) BandNames(ctx context.Context, q ImageQuery) ([]string, error) {
	var out struct {
		Bands []string `json:"bands"`
	}
	if err := c.post(ctx, "/v1/bands", q, &out); err != nil {
		return nil, fmt.Errorf("band names: %w", err)
	}
	return out.Bands, nil
}

// exportRequest is the wire shape of an export call.
type exportRequest struct {
	Query  ImageQuery `json:"query"`
	Render RenderSpec `json:"render"`
}

// DownloadURL implements Client.
func (c *HTTPClient) DownloadURL(ctx context.Context, q ImageQuery, spec RenderSpec) (string, error) {
	var out struct {
		URL string `json:"url"`
	}
	if err := c.post(ctx, "/v1/export", exportRequest{Query: q, Render: spec}, &out); err != nil {
		return "", fmt.Errorf("download url: %w", err)
	}
	if out.URL == "" {
		return "", fmt.Errorf("download url: service returned empty url")
	}
	return out.URL, nil
}

// post sends a JSON request and decodes a JSON response.
func (c *HTTPClient) post(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return &StatusError{StatusCode: resp.StatusCode, Body: string(respBody)}
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
