package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/scanner"
)

// Calendar platforms differ per school; the first selector that yields
// cards wins.
var institutionCardSelectors = []string{
	`div[class*="em-card"]`,
	".event-card",
	"article.event",
	"li.event",
	".vevent",
	"article",
}

const maxInstitutionCards = 50

// InstitutionScanner scrapes university calendar sites. Venue name and
// coordinates come from configuration because campus events rarely carry a
// usable street address.
type InstitutionScanner struct {
	client *http.Client
}

// NewInstitutionScanner wires an HTTP client.
func NewInstitutionScanner(client *http.Client) *InstitutionScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &InstitutionScanner{client: client}
}

// Name identifies the adapter inside the registry.
func (i *InstitutionScanner) Name() string {
	return "institution"
}

// Fetch searches the calendar once per term.
func (i *InstitutionScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.BaseURL == "" {
		return nil, fmt.Errorf("no base url configured for source %s", req.Source)
	}

	records := make([]domain.RawRecord, 0)
	seen := map[string]struct{}{}

	for _, term := range req.SearchTerms {
		pageURL, err := institutionSearchURL(req.BaseURL, term)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		doc, err := fetchDocument(ctx, i.client, pageURL)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}

		for _, rec := range i.extractCards(doc, req) {
			key, _ := rec["url"].(string)
			if key == "" {
				key, _ = rec["title"].(string)
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

func (i *InstitutionScanner) extractCards(doc *goquery.Document, req scanner.Request) []domain.RawRecord {
	var cards *goquery.Selection
	for _, selector := range institutionCardSelectors {
		cards = doc.Find(selector)
		if cards.Length() > 0 {
			break
		}
	}
	if cards == nil || cards.Length() == 0 {
		return nil
	}

	var records []domain.RawRecord
	cards.EachWithBreak(func(n int, card *goquery.Selection) bool {
		if n >= maxInstitutionCards {
			return false
		}
		title := firstText(card, "h3 a", "h2 a", ".em-card_title a", "h3", "h2", ".summary")
		if title == "" {
			return true
		}

		rec := domain.RawRecord{"title": title}
		if href, ok := card.Find("a").First().Attr("href"); ok {
			setIfNotEmpty(rec, "url", resolveURL(req.BaseURL, href))
		}
		if datetime, ok := card.Find("time").First().Attr("datetime"); ok {
			setIfNotEmpty(rec, "date", datetime)
		} else {
			setIfNotEmpty(rec, "date", firstText(card, ".em-card_event-text", "time", ".date", ".dtstart"))
		}
		setIfNotEmpty(rec, "description", firstText(card, ".description", "p"))

		if req.Venue.Name != "" {
			rec["venue"] = req.Venue.Name
			rec["address"] = req.Venue.Name
		}
		if req.Venue.Lat != 0 || req.Venue.Lon != 0 {
			rec["lat"] = req.Venue.Lat
			rec["lon"] = req.Venue.Lon
		}
		records = append(records, rec)
		return true
	})
	return records
}

func institutionSearchURL(base, term string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}
	query := parsed.Query()
	query.Set("search", term)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}
