package scraper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/scanner"
)

var (
	meridiemExpr = regexp.MustCompile(`(?i)(\d{1,2}:\d{2})\s*([ap])m?\b`)
	priceExpr    = regexp.MustCompile(`(?i)\b(free|\$\d+(?:\.\d{2})?(?:\s*-\s*\$?\d+(?:\.\d{2})?)?)`)
)

// Titles matching these are listicles, not events.
var guideTitleHints = []string{
	"things to do", "guide to", "best of", "this weekend", "this week", "top ",
}

// CityCalendarScanner scrapes a municipal calendar site. Each search term
// is one result page of li.event cards; detail pages fill in description
// and price.
type CityCalendarScanner struct {
	client *http.Client
}

// NewCityCalendarScanner wires an HTTP client.
func NewCityCalendarScanner(client *http.Client) *CityCalendarScanner {
	if client == nil {
		client = &http.Client{Timeout: 20 * time.Second}
	}
	return &CityCalendarScanner{client: client}
}

// Name identifies the adapter inside the registry.
func (c *CityCalendarScanner) Name() string {
	return "citycalendar"
}

// Fetch runs every configured search and collects unique event cards.
func (c *CityCalendarScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.BaseURL == "" {
		return nil, fmt.Errorf("no base url configured for source %s", req.Source)
	}

	records := make([]domain.RawRecord, 0)
	seen := map[string]struct{}{}

	for _, term := range req.SearchTerms {
		pageURL, err := searchURL(req.BaseURL, term)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		doc, err := fetchDocument(ctx, c.client, pageURL)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}

		doc.Find("li.event").Each(func(_ int, card *goquery.Selection) {
			// Pinned cards are promos repeated on every result page.
			if card.Find("span.fa-thumbtack").Length() > 0 {
				return
			}
			link := card.Find("h3 a").First()
			title := cleanText(link.Text())
			if title == "" || isGuideTitle(title) {
				return
			}
			href, _ := link.Attr("href")
			eventURL := resolveURL(req.BaseURL, href)
			if eventURL == "" {
				return
			}
			if _, ok := seen[eventURL]; ok {
				return
			}
			seen[eventURL] = struct{}{}

			rec := domain.RawRecord{"title": title, "url": eventURL}
			setIfNotEmpty(rec, "date", cleanDateText(card.Find("p.time").First().Text()))
			setIfNotEmpty(rec, "venue", cleanText(card.Find("p.location").First().Text()))
			c.enrich(ctx, rec, eventURL)
			records = append(records, rec)
		})
	}

	return records, nil
}

// enrich pulls description, price, and address from the detail page. A
// failed detail fetch leaves the card-level record as is.
func (c *CityCalendarScanner) enrich(ctx context.Context, rec domain.RawRecord, eventURL string) {
	doc, err := fetchDocument(ctx, c.client, eventURL)
	if err != nil {
		return
	}

	description := firstText(doc.Selection, "#event_description", ".event_description")
	if description == "" {
		content, _ := doc.Find(`meta[property="og:description"]`).Attr("content")
		description = cleanText(content)
	}
	setIfNotEmpty(rec, "description", description)

	price := firstText(doc.Selection, ".cost", "#event_cost")
	if price == "" {
		price = priceExpr.FindString(description)
	}
	setIfNotEmpty(rec, "price", price)
	setIfNotEmpty(rec, "address", firstText(doc.Selection, ".location .address", "address"))
}

func searchURL(base, term string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}
	query := parsed.Query()
	query.Set("search", "true")
	query.Set("query", term)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func isGuideTitle(title string) bool {
	lower := strings.ToLower(title)
	for _, hint := range guideTitleHints {
		if strings.Contains(lower, hint) {
			return true
		}
	}
	return false
}

// cleanDateText keeps the start of a displayed time range and uppercases
// meridiem suffixes so the text parses with standard layouts.
func cleanDateText(s string) string {
	s = cleanText(s)
	for _, sep := range []string{" - ", " to ", " – "} {
		if i := strings.Index(s, sep); i > 0 {
			s = s[:i]
		}
	}
	return meridiemExpr.ReplaceAllStringFunc(s, func(m string) string {
		parts := meridiemExpr.FindStringSubmatch(m)
		suffix := "PM"
		if strings.HasPrefix(strings.ToLower(parts[2]), "a") {
			suffix = "AM"
		}
		return parts[1] + suffix
	})
}
