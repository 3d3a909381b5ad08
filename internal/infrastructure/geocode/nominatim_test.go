package geocode

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestNominatimLookup(t *testing.T) {
	t.Parallel()

	var query, agent string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		agent = r.Header.Get("User-Agent")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"42.3601","lon":"-71.0589"}]`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "mehfil-test/1.0", time.Second)
	coords, err := client.Lookup(context.Background(), "Faneuil Hall, Boston, MA")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if coords.Lat != 42.3601 || coords.Lon != -71.0589 {
		t.Errorf("unexpected coordinates: %+v", coords)
	}
	for _, part := range []string{"format=json", "limit=1", "q=Faneuil+Hall"} {
		if !strings.Contains(query, part) {
			t.Errorf("expected query to contain %s, got %s", part, query)
		}
	}
	if agent != "mehfil-test/1.0" {
		t.Errorf("expected the configured user agent, got %q", agent)
	}
}

func TestNominatimLookupNoMatch(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[]`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "mehfil-test/1.0", time.Second)
	_, err := client.Lookup(context.Background(), "nowhere at all")
	if !errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected ErrNoMatch, got %v", err)
	}
}

func TestNominatimLookupServerError(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "mehfil-test/1.0", time.Second)
	_, err := client.Lookup(context.Background(), "somewhere")
	if err == nil || errors.Is(err, ErrNoMatch) {
		t.Fatalf("expected a status error, got %v", err)
	}
	if !strings.Contains(err.Error(), "unexpected status 502") {
		t.Errorf("unexpected error text: %v", err)
	}
}

func TestNominatimLookupBadPayload(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"lat":"not-a-number","lon":"0"}]`))
	}))
	defer server.Close()

	client := NewNominatimClient(server.URL, "mehfil-test/1.0", time.Second)
	_, err := client.Lookup(context.Background(), "somewhere")
	if err == nil || !strings.Contains(err.Error(), "parse latitude") {
		t.Fatalf("expected a parse error, got %v", err)
	}
}
