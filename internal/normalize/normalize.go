package normalize

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

// ErrMalformedRecord marks records missing required fields or carrying
// unparsable values. Callers drop and count these, they never abort a run.
var ErrMalformedRecord = errors.New("malformed record")

// Canonical field names a Mapping may bind raw keys to.
const (
	FieldID          = "id"
	FieldTitle       = "title"
	FieldDescription = "description"
	FieldStart       = "start"
	FieldEnd         = "end"
	FieldVenue       = "venue"
	FieldAddress     = "address"
	FieldURL         = "url"
	FieldPrice       = "price"
	FieldLat         = "lat"
	FieldLon         = "lon"
)

const maxDescriptionRunes = 500

// Mapping binds canonical Event fields to raw record keys, in preference
// order. Sources stay pluggable because only their mapping changes.
type Mapping map[string][]string

// Normalizer converts source-shaped records into canonical Events.
type Normalizer struct {
	mappings map[domain.Source]Mapping
	loc      *time.Location
}

var _ ports.Normalizer = (*Normalizer)(nil)

// New builds a Normalizer from per-source mappings. Zoneless timestamps are
// interpreted in loc.
func New(mappings map[domain.Source]Mapping, loc *time.Location) *Normalizer {
	if loc == nil {
		loc = time.UTC
	}
	return &Normalizer{mappings: mappings, loc: loc}
}

// Normalize maps one raw record into an Event or fails with ErrMalformedRecord.
func (n *Normalizer) Normalize(src domain.Source, rec domain.RawRecord) (domain.Event, error) {
	mapping := n.mappings[src]

	title := collapseSpaces(pickString(rec, candidates(mapping, FieldTitle)...))
	if title == "" {
		return domain.Event{}, fmt.Errorf("%w: missing title", ErrMalformedRecord)
	}

	rawStart := pickValue(rec, candidates(mapping, FieldStart)...)
	start, err := n.parseTime(rawStart)
	if err != nil {
		return domain.Event{}, fmt.Errorf("%w: start time: %v", ErrMalformedRecord, err)
	}

	ev := domain.Event{
		Title:       title,
		Description: truncate(pickString(rec, candidates(mapping, FieldDescription)...), maxDescriptionRunes),
		StartTime:   start,
		VenueName:   collapseSpaces(pickString(rec, candidates(mapping, FieldVenue)...)),
		Address:     cleanAddress(pickString(rec, candidates(mapping, FieldAddress)...)),
		Source:      src,
		SourceURL:   pickString(rec, candidates(mapping, FieldURL)...),
		Price:       parsePrice(pickString(rec, candidates(mapping, FieldPrice)...)),
	}

	if rawEnd := pickValue(rec, candidates(mapping, FieldEnd)...); rawEnd != nil {
		if end, endErr := n.parseTime(rawEnd); endErr == nil && !end.Before(start) {
			ev.EndTime = &end
		}
	}

	if lat, lon, ok := pickCoordinates(rec, mapping); ok {
		ev.Coordinates = &domain.Coordinates{Lat: lat, Lon: lon}
	}

	ev.ID = deriveID(src, pickString(rec, candidates(mapping, FieldID)...), ev)

	return ev, nil
}

func candidates(m Mapping, field string) []string {
	if keys, ok := m[field]; ok && len(keys) > 0 {
		return keys
	}
	return []string{field}
}

// pickValue returns the first non-nil value among the candidate keys.
func pickValue(rec domain.RawRecord, keys ...string) any {
	for _, k := range keys {
		if v, ok := rec[k]; ok && v != nil {
			return v
		}
	}
	return nil
}

// pickString returns the first non-empty string among the candidate keys,
// stringifying numeric values the way JSON decoding produces them.
func pickString(rec domain.RawRecord, keys ...string) string {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case string:
			if s := strings.TrimSpace(val); s != "" {
				return s
			}
		case float64:
			return strconv.FormatFloat(val, 'f', -1, 64)
		case int:
			return strconv.Itoa(val)
		case int64:
			return strconv.FormatInt(val, 10)
		}
	}
	return ""
}

func pickFloat(rec domain.RawRecord, keys ...string) (float64, bool) {
	for _, k := range keys {
		v, ok := rec[k]
		if !ok || v == nil {
			continue
		}
		switch val := v.(type) {
		case float64:
			return val, true
		case int:
			return float64(val), true
		case string:
			if f, err := strconv.ParseFloat(strings.TrimSpace(val), 64); err == nil {
				return f, true
			}
		}
	}
	return 0, false
}

func pickCoordinates(rec domain.RawRecord, m Mapping) (lat, lon float64, ok bool) {
	lat, latOK := pickFloat(rec, candidates(m, FieldLat)...)
	lon, lonOK := pickFloat(rec, candidates(m, FieldLon)...)
	if !latOK || !lonOK || (lat == 0 && lon == 0) {
		return 0, 0, false
	}
	return lat, lon, true
}

// parseTime accepts the timestamp shapes the sources actually produce:
// RFC3339, a handful of common layouts, and epoch seconds or milliseconds.
func (n *Normalizer) parseTime(v any) (time.Time, error) {
	switch val := v.(type) {
	case nil:
		return time.Time{}, fmt.Errorf("missing value")
	case time.Time:
		return val, nil
	case float64:
		return epochToTime(int64(val)), nil
	case int64:
		return epochToTime(val), nil
	case string:
		return n.parseTimeString(val)
	default:
		return time.Time{}, fmt.Errorf("unsupported type %T", v)
	}
}

func (n *Normalizer) parseTimeString(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, fmt.Errorf("missing value")
	}

	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	zoneless := []string{
		"2006-01-02T15:04:05",
		"2006-01-02 15:04:05",
		"2006-01-02T15:04",
		"2006-01-02 15:04",
		"2006-01-02",
		"Jan 2, 2006 3:04 PM",
		"Jan 2, 2006 3:04PM",
		"Jan 2, 2006",
		"January 2, 2006 3:04 PM",
		"January 2, 2006",
		"Monday, Jan 2, 2006 3:04 PM",
		"Monday, Jan 2, 2006 3:04PM",
		"Monday, Jan 2, 2006",
		"Monday, January 2, 2006",
		"01/02/2006",
	}
	for _, layout := range zoneless {
		if t, err := time.ParseInLocation(layout, s, n.loc); err == nil {
			return t, nil
		}
	}

	if allDigits(s) {
		if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
			return epochToTime(sec), nil
		}
	}

	return time.Time{}, fmt.Errorf("unsupported time %q", s)
}

func epochToTime(v int64) time.Time {
	// 13-digit values are epoch milliseconds.
	if v > 1_000_000_000_000 {
		return time.UnixMilli(v).UTC()
	}
	return time.Unix(v, 0).UTC()
}

func allDigits(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

// deriveID keeps IDs stable across runs: source-native identifiers win, and
// records without one hash to the same value as long as title, start, and
// venue do not change.
func deriveID(src domain.Source, nativeID string, ev domain.Event) string {
	if nativeID != "" {
		return fmt.Sprintf("%s:%s", src, nativeID)
	}

	seed := strings.ToLower(ev.Title) + "|" + ev.StartTime.UTC().Format(time.RFC3339) + "|" + strings.ToLower(ev.VenueName)
	sum := sha1.Sum([]byte(seed))
	return fmt.Sprintf("%s:%s", src, hex.EncodeToString(sum[:])[:16])
}

func parsePrice(text string) domain.PriceInfo {
	text = strings.TrimSpace(text)
	if text == "" {
		return domain.PriceInfo{}
	}
	lower := strings.ToLower(text)
	free := strings.HasPrefix(lower, "free") || lower == "0" || lower == "$0"
	return domain.PriceInfo{Free: free, Amount: text}
}

func cleanAddress(s string) string {
	s = collapseSpaces(s)
	s = strings.Trim(s, " ,;")
	return strings.ReplaceAll(s, " ,", ",")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, limit int) string {
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}
