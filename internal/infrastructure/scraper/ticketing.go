package scraper

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/scanner"
)

// TicketingScanner pulls events from a Discovery-style ticketing API. The
// API is keyword-searched once per configured term; results are paginated
// JSON and deduplicated by event ID.
type TicketingScanner struct {
	client   *resty.Client
	pageSize int
	maxPages int
}

// NewTicketingScanner wires a retrying JSON client. Rate-limit and
// maintenance responses are retried with backoff.
func NewTicketingScanner() *TicketingScanner {
	client := resty.New().
		SetTimeout(20 * time.Second).
		SetRetryCount(3).
		SetRetryWaitTime(2 * time.Second).
		SetRetryMaxWaitTime(15 * time.Second).
		AddRetryCondition(func(resp *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			code := resp.StatusCode()
			return code == http.StatusTooManyRequests || code == http.StatusServiceUnavailable
		})
	return &TicketingScanner{client: client, pageSize: 100, maxPages: 5}
}

// Name identifies the adapter inside the registry.
func (t *TicketingScanner) Name() string {
	return "ticketing"
}

type discoveryResponse struct {
	Embedded struct {
		Events []discoveryEvent `json:"events"`
	} `json:"_embedded"`
	Page struct {
		TotalPages int `json:"totalPages"`
		Number     int `json:"number"`
	} `json:"page"`
}

type discoveryEvent struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	URL         string `json:"url"`
	Info        string `json:"info"`
	PleaseNote  string `json:"pleaseNote"`
	Description string `json:"description"`
	Dates       struct {
		Start struct {
			DateTime  string `json:"dateTime"`
			LocalDate string `json:"localDate"`
			LocalTime string `json:"localTime"`
		} `json:"start"`
		End struct {
			DateTime string `json:"dateTime"`
		} `json:"end"`
	} `json:"dates"`
	PriceRanges []struct {
		Min float64 `json:"min"`
		Max float64 `json:"max"`
	} `json:"priceRanges"`
	Embedded struct {
		Venues []discoveryVenue `json:"venues"`
	} `json:"_embedded"`
}

type discoveryVenue struct {
	Name    string `json:"name"`
	Address struct {
		Line1 string `json:"line1"`
	} `json:"address"`
	City struct {
		Name string `json:"name"`
	} `json:"city"`
	State struct {
		StateCode string `json:"stateCode"`
	} `json:"state"`
	Location struct {
		Latitude  string `json:"latitude"`
		Longitude string `json:"longitude"`
	} `json:"location"`
}

// Fetch searches the API once per term and flattens the embedded events
// into raw records.
func (t *TicketingScanner) Fetch(ctx context.Context, req scanner.Request) ([]domain.RawRecord, error) {
	if req.BaseURL == "" {
		return nil, fmt.Errorf("no base url configured for source %s", req.Source)
	}
	apiKey := req.Options["apiKey"]
	if apiKey == "" {
		return nil, fmt.Errorf("source %s: missing api key", req.Source)
	}

	records := make([]domain.RawRecord, 0)
	seen := map[string]struct{}{}

	for _, term := range req.SearchTerms {
		for page := 0; page < t.maxPages; page++ {
			resp, err := t.fetchPage(ctx, req, apiKey, term, page)
			if err != nil {
				return nil, fmt.Errorf("term %q: %w", term, err)
			}
			for _, ev := range resp.Embedded.Events {
				if ev.ID == "" {
					continue
				}
				if _, ok := seen[ev.ID]; ok {
					continue
				}
				seen[ev.ID] = struct{}{}
				records = append(records, eventRecord(ev))
			}
			if page+1 >= resp.Page.TotalPages {
				break
			}
		}
	}

	return records, nil
}

func (t *TicketingScanner) fetchPage(ctx context.Context, req scanner.Request, apiKey, term string, page int) (*discoveryResponse, error) {
	params := map[string]string{
		"apikey":  apiKey,
		"keyword": term,
		"size":    strconv.Itoa(t.pageSize),
		"page":    strconv.Itoa(page),
		"sort":    "date,asc",
	}
	if latlong := req.Options["latlong"]; latlong != "" {
		params["latlong"] = latlong
	}
	if radius := req.Options["radius"]; radius != "" {
		params["radius"] = radius
		params["unit"] = "miles"
	}

	var result discoveryResponse
	resp, err := t.client.R().
		SetContext(ctx).
		SetQueryParams(params).
		SetResult(&result).
		Get(req.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("search request: %w", err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("search request: unexpected status %d", resp.StatusCode())
	}
	return &result, nil
}

func eventRecord(ev discoveryEvent) domain.RawRecord {
	rec := domain.RawRecord{"id": ev.ID}
	setIfNotEmpty(rec, "name", ev.Name)
	setIfNotEmpty(rec, "url", ev.URL)

	description := ev.Info
	if description == "" {
		description = ev.PleaseNote
	}
	if description == "" {
		description = ev.Description
	}
	setIfNotEmpty(rec, "description", description)

	start := ev.Dates.Start.DateTime
	if start == "" && ev.Dates.Start.LocalDate != "" {
		start = ev.Dates.Start.LocalDate
		if ev.Dates.Start.LocalTime != "" {
			start += "T" + ev.Dates.Start.LocalTime
		}
	}
	setIfNotEmpty(rec, "startDate", start)
	setIfNotEmpty(rec, "endDate", ev.Dates.End.DateTime)

	if len(ev.Embedded.Venues) > 0 {
		venue := ev.Embedded.Venues[0]
		setIfNotEmpty(rec, "venue", venue.Name)
		parts := make([]string, 0, 3)
		for _, part := range []string{venue.Address.Line1, venue.City.Name, venue.State.StateCode} {
			if part = strings.TrimSpace(part); part != "" {
				parts = append(parts, part)
			}
		}
		setIfNotEmpty(rec, "address", strings.Join(parts, ", "))
		if lat, err := strconv.ParseFloat(venue.Location.Latitude, 64); err == nil {
			if lon, err := strconv.ParseFloat(venue.Location.Longitude, 64); err == nil {
				rec["lat"] = lat
				rec["lon"] = lon
			}
		}
	}

	if len(ev.PriceRanges) > 0 {
		setIfNotEmpty(rec, "price", priceRangeText(ev.PriceRanges[0].Min, ev.PriceRanges[0].Max))
	}

	return rec
}

func priceRangeText(min, max float64) string {
	switch {
	case min == 0 && max == 0:
		return "Free"
	case min == 0 && max > 0:
		return "Free - $" + formatAmount(max)
	case max > min:
		return fmt.Sprintf("$%s - $%s", formatAmount(min), formatAmount(max))
	default:
		return "$" + formatAmount(min)
	}
}
