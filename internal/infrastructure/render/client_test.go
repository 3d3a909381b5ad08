package render

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/atopofconscience/mehfil/internal/config"
)

func TestRender(t *testing.T) {
	t.Parallel()

	var body renderRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(raw, &body)
		_, _ = w.Write([]byte("<html><body>rendered</body></html>"))
	}))
	defer server.Close()

	client := NewClient(config.RenderConfig{Endpoint: server.URL, Timeout: config.Duration(time.Second)})
	html, err := client.Render(context.Background(), "https://groups.example.com/find/?keywords=desi")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if body.URL != "https://groups.example.com/find/?keywords=desi" {
		t.Errorf("unexpected request body url: %q", body.URL)
	}
	if !strings.Contains(string(html), "rendered") {
		t.Errorf("unexpected response body: %s", html)
	}
}

func TestRenderWithoutEndpoint(t *testing.T) {
	t.Parallel()

	client := NewClient(config.RenderConfig{})
	if _, err := client.Render(context.Background(), "https://example.com"); !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
}

func TestRenderServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewClient(config.RenderConfig{Endpoint: server.URL, Timeout: config.Duration(time.Second)})
	_, err := client.Render(context.Background(), "https://example.com")
	if err == nil || !strings.Contains(err.Error(), "unexpected status 502") {
		t.Fatalf("expected a status error, got %v", err)
	}
}
