package scraper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/atopofconscience/mehfil/internal/scanner"
)

const aggregatorLDPage = `<html><head>
<script type="application/ld+json">
[
	{"@type": "Event", "name": "Bollywood Dance Party", "startDate": "2026-09-05T21:00:00-04:00", "url": "https://agg.example.com/e/bolly", "location": {"@type": "Place", "name": "Royale"}},
	{"@type": "Event", "name": "Desi Comedy Night", "startDate": "2026-09-12T20:00:00-04:00", "url": "https://agg.example.com/e/desi-comedy"}
]
</script>
</head><body></body></html>`

const aggregatorCardPage = `<html><body>
<div class="event-card">
  <h3>Persian Calligraphy Workshop</h3>
  <a href="/e/calligraphy"></a>
  <time datetime="2026-10-04T14:00:00-04:00"></time>
  <p class="subtitle">ICA Studio</p>
  <span class="price">$35</span>
</div>
<div class="event-card">
  <h3>Nowruz Bazaar</h3>
  <a href="/e/nowruz"></a>
  <p class="date">Mar 21, 2026</p>
</div>
<div class="event-card"><p>card without a title</p></div>
</body></html>`

func TestAggregatorFetchPrefersJSONLD(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/persian" {
			_, _ = w.Write([]byte(aggregatorCardPage))
			return
		}
		_, _ = w.Write([]byte(aggregatorLDPage))
	}))
	defer server.Close()

	sc := NewAggregatorScanner(server.Client())
	records, err := sc.Fetch(context.Background(), scanner.Request{
		Source:      "aggregator",
		BaseURL:     server.URL + "/",
		SearchTerms: []string{"bollywood", "persian"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 4 {
		t.Fatalf("expected 4 records across both pages, got %d", len(records))
	}

	if records[0]["title"] != "Bollywood Dance Party" || records[0]["venue"] != "Royale" {
		t.Errorf("unexpected ld+json record: %v", records[0])
	}
	if records[0]["start"] != "2026-09-05T21:00:00-04:00" {
		t.Errorf("unexpected start: %v", records[0]["start"])
	}

	workshop := records[2]
	if workshop["title"] != "Persian Calligraphy Workshop" {
		t.Errorf("unexpected card record: %v", workshop)
	}
	if workshop["url"] != server.URL+"/e/calligraphy" {
		t.Errorf("expected a resolved absolute url, got %v", workshop["url"])
	}
	if workshop["start"] != "2026-10-04T14:00:00-04:00" {
		t.Errorf("expected the datetime attribute, got %v", workshop["start"])
	}
	if workshop["venue"] != "ICA Studio" || workshop["price"] != "$35" {
		t.Errorf("unexpected card fields: %v", workshop)
	}

	bazaar := records[3]
	if bazaar["date"] != "Mar 21, 2026" {
		t.Errorf("expected visible date text fallback, got %v", bazaar["date"])
	}
	if _, ok := bazaar["start"]; ok {
		t.Error("card without a datetime attribute should not set start")
	}
}

func TestAggregatorFetchDeduplicatesAcrossTerms(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(aggregatorLDPage))
	}))
	defer server.Close()

	sc := NewAggregatorScanner(server.Client())
	records, err := sc.Fetch(context.Background(), scanner.Request{
		Source:      "aggregator",
		BaseURL:     server.URL,
		SearchTerms: []string{"bollywood", "desi"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(records) != 2 {
		t.Fatalf("expected records shared between terms to collapse, got %d", len(records))
	}
}
