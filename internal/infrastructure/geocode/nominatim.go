package geocode

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/atopofconscience/mehfil/internal/domain"
)

// ErrNoMatch reports that the geocoding service answered but found no
// coordinates for the query.
var ErrNoMatch = errors.New("no geocoding match")

// NominatimClient queries a Nominatim-compatible search endpoint.
type NominatimClient struct {
	client *resty.Client
}

// NewNominatimClient creates a client for the given base URL. The userAgent
// is mandatory for the public Nominatim instance.
func NewNominatimClient(baseURL, userAgent string, timeout time.Duration) *NominatimClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	client := resty.New().
		SetBaseURL(baseURL).
		SetHeader("User-Agent", userAgent).
		SetTimeout(timeout).
		SetRetryCount(2).
		SetRetryWaitTime(2 * time.Second)
	return &NominatimClient{client: client}
}

type nominatimResult struct {
	Lat string `json:"lat"`
	Lon string `json:"lon"`
}

// Lookup resolves a free-form query to coordinates. It returns ErrNoMatch
// when the service has no result for the query.
func (c *NominatimClient) Lookup(ctx context.Context, query string) (domain.Coordinates, error) {
	var results []nominatimResult
	resp, err := c.client.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"q":      query,
			"format": "json",
			"limit":  "1",
		}).
		SetResult(&results).
		Get("/search")
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("geocode request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return domain.Coordinates{}, fmt.Errorf("geocode request: unexpected status %d", resp.StatusCode())
	}
	if len(results) == 0 {
		return domain.Coordinates{}, ErrNoMatch
	}

	lat, err := strconv.ParseFloat(results[0].Lat, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("parse latitude %q: %w", results[0].Lat, err)
	}
	lon, err := strconv.ParseFloat(results[0].Lon, 64)
	if err != nil {
		return domain.Coordinates{}, fmt.Errorf("parse longitude %q: %w", results[0].Lon, err)
	}
	return domain.Coordinates{Lat: lat, Lon: lon}, nil
}
