package scraper

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
	"github.com/atopofconscience/mehfil/internal/scanner"
)

const defaultGroupsLocation = "us--ma--boston"

// GroupsScanner reads a script-rendered group platform. The raw HTML is
// empty, so every page goes through the render service before parsing.
type GroupsScanner struct {
	renderer ports.Renderer
}

// NewGroupsScanner wires the render service client.
func NewGroupsScanner(renderer ports.Renderer) *GroupsScanner {
	return &GroupsScanner{renderer: renderer}
}

// Name identifies the adapter inside the registry.
func (g *GroupsScanner) Name() string {
	return "groups"
}

// Fetch renders one search page per term and walks the event anchors.
func (g *GroupsScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if g.renderer == nil {
		return nil, fmt.Errorf("source %s: renderer is not configured", req.Source)
	}
	if req.BaseURL == "" {
		return nil, fmt.Errorf("no base url configured for source %s", req.Source)
	}

	location := req.Options["location"]
	if location == "" {
		location = defaultGroupsLocation
	}

	records := make([]domain.RawRecord, 0)
	seen := map[string]struct{}{}

	for _, term := range req.SearchTerms {
		pageURL, err := groupsSearchURL(req.BaseURL, term, location)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		html, err := g.renderer.Render(ctx, pageURL)
		if err != nil {
			return nil, fmt.Errorf("term %q: %w", term, err)
		}
		doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
		if err != nil {
			return nil, fmt.Errorf("term %q: parse rendered page: %w", term, err)
		}

		doc.Find(`a[href*="/events/"]`).Each(func(_ int, card *goquery.Selection) {
			title := firstText(card, "h2", "h3", `span[class*="title"]`)
			if title == "" {
				return
			}
			href, _ := card.Attr("href")
			eventURL := canonicalEventURL(resolveURL(req.BaseURL, href))
			if eventURL == "" {
				return
			}
			if _, ok := seen[eventURL]; ok {
				return
			}
			seen[eventURL] = struct{}{}

			rec := domain.RawRecord{"title": title, "url": eventURL}
			if datetime, ok := card.Find("time").First().Attr("datetime"); ok {
				setIfNotEmpty(rec, "start", datetime)
			} else {
				setIfNotEmpty(rec, "date", firstText(card, "time", `[class*="date"]`))
			}
			setIfNotEmpty(rec, "venue", firstText(card, `[data-testid="venue-name"]`, `[class*="venue"]`))
			setIfNotEmpty(rec, "description", firstText(card, "p"))
			records = append(records, rec)
		})
	}

	return records, nil
}

func groupsSearchURL(base, term, location string) (string, error) {
	parsed, err := url.Parse(base)
	if err != nil {
		return "", fmt.Errorf("invalid base url %s: %w", base, err)
	}
	query := parsed.Query()
	query.Set("keywords", term)
	query.Set("location", location)
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

// canonicalEventURL strips query noise so the same event links match
// across search terms.
func canonicalEventURL(raw string) string {
	if raw == "" {
		return ""
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	parsed.RawQuery = ""
	parsed.Fragment = ""
	return strings.TrimSuffix(parsed.String(), "/")
}
