// Package geocode resolves coordinates to street addresses through a
// Nominatim-compatible reverse geocoding endpoint. Enrichment is optional
// and feature-flagged; a nil geocoder disables it entirely.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/observability"
)

// Client implements domain.Geocoder against a Nominatim-style /reverse API.
type Client struct {
	baseURL    string
	httpClient *http.Client
	logger     *slog.Logger
	metrics    *observability.Metrics
}

// NewClient creates a reverse geocoding client.
func NewClient(baseURL string, timeout time.Duration, logger *slog.Logger, metrics *observability.Metrics) *Client {
	return &Client{
		baseURL: baseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger:  logger,
		metrics: metrics,
	}
}

// ReverseGeocode converts a coordinate to an address. An empty result with a
// nil error means the provider found nothing there.
func (c *Client) ReverseGeocode(ctx context.Context, coord domain.LatLng) (domain.Address, error) {
	params := url.Values{
		"lat":    {fmt.Sprintf("%.6f", coord.Lat)},
		"lon":    {fmt.Sprintf("%.6f", coord.Lng)},
		"format": {"jsonv2"},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/reverse?"+params.Encode(), nil)
	if err != nil {
		return domain.Address{}, fmt.Errorf("create request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Address{}, fmt.Errorf("reverse geocode request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		body, _ := io.ReadAll(resp.Body)
		return domain.Address{}, fmt.Errorf("geocode API error: status %d: %s", resp.StatusCode, body)
	}

	var decoded response
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		c.metrics.GeocodeRequests.WithLabelValues("error").Inc()
		return domain.Address{}, fmt.Errorf("decode response: %w", err)
	}

	if decoded.DisplayName == "" {
		c.metrics.GeocodeRequests.WithLabelValues("empty").Inc()
		return domain.Address{}, nil
	}

	c.metrics.GeocodeRequests.WithLabelValues("success").Inc()
	return domain.Address{
		Formatted: decoded.DisplayName,
		Street:    decoded.Address.Road,
	}, nil
}

// Nominatim /reverse response, reduced to the fields used.

type response struct {
	DisplayName string `json:"display_name"`
	Address     struct {
		Road string `json:"road"`
	} `json:"address"`
}
