package render

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/atopofconscience/mehfil/internal/config"
	"github.com/atopofconscience/mehfil/internal/ports"
)

// ErrNotConfigured reports that no render endpoint is set.
var ErrNotConfigured = errors.New("render endpoint is not configured")

// Client asks a headless-browser service to fetch a page and return the
// DOM after scripts have run. Script-driven sites are unreadable without it.
type Client struct {
	endpoint string
	client   *resty.Client
}

var _ ports.Renderer = (*Client)(nil)

// NewClient builds a render client from configuration.
func NewClient(cfg config.RenderConfig) *Client {
	timeout := cfg.Timeout.Std()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	client := resty.New().
		SetTimeout(timeout).
		SetRetryCount(1).
		SetRetryWaitTime(3 * time.Second)
	return &Client{endpoint: cfg.Endpoint, client: client}
}

type renderRequest struct {
	URL string `json:"url"`
}

// Render returns the rendered HTML for pageURL.
func (c *Client) Render(ctx context.Context, pageURL string) ([]byte, error) {
	if c.endpoint == "" {
		return nil, ErrNotConfigured
	}
	resp, err := c.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(renderRequest{URL: pageURL}).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("render %s: %w", pageURL, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("render %s: unexpected status %d", pageURL, resp.StatusCode())
	}
	return resp.Body(), nil
}
