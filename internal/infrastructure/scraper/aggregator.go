package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/scanner"
)

// AggregatorScanner scrapes an event aggregator site that publishes one
// keyword page per topic. Pages embed schema.org Event metadata; the HTML
// cards are only a fallback when that is missing.
type AggregatorScanner struct {
	client *http.Client
}

// NewAggregatorScanner wires an HTTP client.
func NewAggregatorScanner(client *http.Client) *AggregatorScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &AggregatorScanner{client: client}
}

// Name identifies the adapter inside the registry.
func (a *AggregatorScanner) Name() string {
	return "aggregator"
}

// Fetch visits one topic page per search term.
func (a *AggregatorScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.BaseURL == "" {
		return nil, fmt.Errorf("no base url configured for source %s", req.Source)
	}

	records := make([]domain.RawRecord, 0)
	seen := map[string]struct{}{}

	for _, term := range req.SearchTerms {
		pageURL := strings.TrimSuffix(req.BaseURL, "/") + "/" + term
		doc, err := fetchDocument(ctx, a.client, pageURL)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}

		found := extractJSONLD(doc)
		if len(found) == 0 {
			found = a.extractCards(doc, req.BaseURL)
		}
		for _, rec := range found {
			key, _ := rec["url"].(string)
			if key == "" {
				key, _ = rec["title"].(string)
			}
			if key == "" {
				continue
			}
			if _, ok := seen[key]; ok {
				continue
			}
			seen[key] = struct{}{}
			records = append(records, rec)
		}
	}

	return records, nil
}

func (a *AggregatorScanner) extractCards(doc *goquery.Document, base string) []domain.RawRecord {
	var records []domain.RawRecord
	doc.Find("li.event-card, div.event-card, div.event-item").Each(func(_ int, card *goquery.Selection) {
		title := firstText(card, "h3", "h2", ".title")
		if title == "" {
			return
		}
		rec := domain.RawRecord{"title": title}
		if href, ok := card.Find("a").First().Attr("href"); ok {
			setIfNotEmpty(rec, "url", resolveURL(base, href))
		}
		if datetime, ok := card.Find("time").First().Attr("datetime"); ok {
			setIfNotEmpty(rec, "start", datetime)
		} else {
			setIfNotEmpty(rec, "date", firstText(card, ".date", ".meta-date", "time"))
		}
		setIfNotEmpty(rec, "venue", firstText(card, ".subtitle", ".location", ".venue"))
		setIfNotEmpty(rec, "price", firstText(card, ".price", ".ticket-price"))
		records = append(records, rec)
	})
	return records
}
