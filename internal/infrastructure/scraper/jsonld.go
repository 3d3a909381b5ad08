package scraper

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/atopofconscience/mehfil/internal/domain"
)

// extractJSONLD pulls schema.org Event objects out of ld+json script blocks.
// It understands bare events, arrays, @graph wrappers, and ItemList pages.
func extractJSONLD(doc *goquery.Document) []domain.RawRecord {
	var records []domain.RawRecord
	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, sel *goquery.Selection) {
		var payload any
		if err := json.Unmarshal([]byte(sel.Text()), &payload); err != nil {
			return
		}
		records = append(records, collectLDEvents(payload)...)
	})
	return records
}

func collectLDEvents(payload any) []domain.RawRecord {
	var records []domain.RawRecord
	switch v := payload.(type) {
	case []any:
		for _, item := range v {
			records = append(records, collectLDEvents(item)...)
		}
	case map[string]any:
		if isLDEvent(v) {
			if rec, ok := ldEventRecord(v); ok {
				records = append(records, rec)
			}
			return records
		}
		for _, key := range []string{"@graph", "itemListElement"} {
			items, ok := v[key].([]any)
			if !ok {
				continue
			}
			for _, item := range items {
				entry, ok := item.(map[string]any)
				if !ok {
					continue
				}
				if nested, ok := entry["item"].(map[string]any); ok {
					entry = nested
				}
				records = append(records, collectLDEvents(entry)...)
			}
		}
	}
	return records
}

func isLDEvent(obj map[string]any) bool {
	switch t := obj["@type"].(type) {
	case string:
		return isEventType(t)
	case []any:
		for _, item := range t {
			if s, ok := item.(string); ok && isEventType(s) {
				return true
			}
		}
	}
	return false
}

func isEventType(t string) bool {
	return t == "Event" || t == "Festival" || strings.HasSuffix(t, "Event")
}

func ldEventRecord(obj map[string]any) (domain.RawRecord, bool) {
	title := ldString(obj["name"])
	if title == "" {
		return nil, false
	}
	rec := domain.RawRecord{"title": title}
	setIfNotEmpty(rec, "start", ldString(obj["startDate"]))
	setIfNotEmpty(rec, "end", ldString(obj["endDate"]))
	setIfNotEmpty(rec, "description", ldString(obj["description"]))
	setIfNotEmpty(rec, "url", ldString(obj["url"]))
	applyLDLocation(rec, obj["location"])
	setIfNotEmpty(rec, "price", offerPrice(obj["offers"]))
	return rec, true
}

func applyLDLocation(rec domain.RawRecord, loc any) {
	switch v := loc.(type) {
	case string:
		setIfNotEmpty(rec, "venue", cleanText(v))
	case []any:
		if len(v) > 0 {
			applyLDLocation(rec, v[0])
		}
	case map[string]any:
		setIfNotEmpty(rec, "venue", ldString(v["name"]))
		applyLDAddress(rec, v["address"])
		if geo, ok := v["geo"].(map[string]any); ok {
			if lat, ok := ldFloat(geo["latitude"]); ok {
				rec["lat"] = lat
			}
			if lon, ok := ldFloat(geo["longitude"]); ok {
				rec["lon"] = lon
			}
		}
	}
}

func applyLDAddress(rec domain.RawRecord, addr any) {
	switch v := addr.(type) {
	case string:
		setIfNotEmpty(rec, "address", cleanText(v))
	case map[string]any:
		parts := make([]string, 0, 3)
		for _, key := range []string{"streetAddress", "addressLocality", "addressRegion"} {
			if part := ldString(v[key]); part != "" {
				parts = append(parts, part)
			}
		}
		setIfNotEmpty(rec, "address", strings.Join(parts, ", "))
	}
}

// offerPrice renders schema.org offers as display text: "Free", "$25",
// "$25 - $40", or "Free - $40" when the low end is zero.
func offerPrice(offers any) string {
	switch v := offers.(type) {
	case map[string]any:
		return singleOfferPrice(v)
	case []any:
		for _, item := range v {
			if m, ok := item.(map[string]any); ok {
				if price := singleOfferPrice(m); price != "" {
					return price
				}
			}
		}
	}
	return ""
}

func singleOfferPrice(offer map[string]any) string {
	low, hasLow := ldFloat(offer["lowPrice"])
	high, hasHigh := ldFloat(offer["highPrice"])
	if hasLow && hasHigh && low != high {
		if low == 0 {
			return "Free - $" + formatAmount(high)
		}
		return fmt.Sprintf("$%s - $%s", formatAmount(low), formatAmount(high))
	}
	if price, ok := ldFloat(offer["price"]); ok {
		if price == 0 {
			return "Free"
		}
		return "$" + formatAmount(price)
	}
	if hasLow {
		if low == 0 {
			return "Free"
		}
		return "$" + formatAmount(low)
	}
	return ""
}

func formatAmount(v float64) string {
	if v == math.Trunc(v) {
		return strconv.FormatFloat(v, 'f', 0, 64)
	}
	return strconv.FormatFloat(v, 'f', 2, 64)
}

func ldString(v any) string {
	s, _ := v.(string)
	return cleanText(s)
}

func ldFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case string:
		s := strings.TrimSpace(strings.TrimPrefix(n, "$"))
		if s == "" {
			return 0, false
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, false
		}
		return f, true
	}
	return 0, false
}
