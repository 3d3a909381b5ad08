package export

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/atopofconscience/mehfil/internal/config"
	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

// Writer serializes the published event set to the JSON document the
// dashboard reads. Past events are pruned, with a configurable number of
// grace days kept for late viewing.
type Writer struct {
	path      string
	graceDays int
	loc       *time.Location
}

var _ ports.SnapshotWriter = (*Writer)(nil)

// NewWriter builds a Writer from export configuration. loc fixes the
// calendar day used to decide whether an event is past.
func NewWriter(cfg config.ExportConfig, loc *time.Location) *Writer {
	if loc == nil {
		loc = time.UTC
	}
	return &Writer{path: cfg.Path, graceDays: cfg.GraceDays, loc: loc}
}

type snapshotDocument struct {
	Events  []snapshotEvent `json:"events"`
	Updated string          `json:"updated"`
}

type snapshotEvent struct {
	ID            string        `json:"id"`
	Title         string        `json:"title"`
	Description   string        `json:"description,omitempty"`
	StartTime     string        `json:"start_time"`
	EndTime       string        `json:"end_time,omitempty"`
	VenueName     string        `json:"venue_name,omitempty"`
	Address       string        `json:"address,omitempty"`
	Coordinates   []float64     `json:"coordinates,omitempty"`
	Source        string        `json:"source"`
	SourceURL     string        `json:"source_url,omitempty"`
	PriceInfo     snapshotPrice `json:"price_info"`
	Categories    []string      `json:"categories"`
	RelevanceTags []string      `json:"relevance_tags"`
	MergedFrom    []string      `json:"merged_from,omitempty"`
}

type snapshotPrice struct {
	Free   bool   `json:"free"`
	Amount string `json:"amount,omitempty"`
}

// WriteSnapshot renders events that are still upcoming relative to updated
// and replaces the snapshot file atomically.
func (w *Writer) WriteSnapshot(ctx context.Context, events []domain.Event, updated time.Time) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if w.path == "" {
		return fmt.Errorf("export path is not configured")
	}

	local := updated.In(w.loc)
	cutoff := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, w.loc)
	cutoff = cutoff.AddDate(0, 0, -w.graceDays)

	doc := snapshotDocument{
		Events:  make([]snapshotEvent, 0, len(events)),
		Updated: updated.Format(time.RFC3339),
	}
	for _, ev := range events {
		last := ev.StartTime
		if ev.EndTime != nil {
			last = *ev.EndTime
		}
		if last.In(w.loc).Before(cutoff) {
			continue
		}
		doc.Events = append(doc.Events, toSnapshotEvent(ev))
	}

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}

	if dir := filepath.Dir(w.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create export dir: %w", err)
		}
	}
	tmp := w.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write snapshot: %w", err)
	}
	if err := os.Rename(tmp, w.path); err != nil {
		return fmt.Errorf("replace snapshot: %w", err)
	}
	return nil
}

func toSnapshotEvent(ev domain.Event) snapshotEvent {
	out := snapshotEvent{
		ID:            ev.ID,
		Title:         ev.Title,
		Description:   ev.Description,
		StartTime:     ev.StartTime.Format(time.RFC3339),
		VenueName:     ev.VenueName,
		Address:       ev.Address,
		Source:        string(ev.Source),
		SourceURL:     ev.SourceURL,
		PriceInfo:     snapshotPrice{Free: ev.Price.Free, Amount: ev.Price.Amount},
		Categories:    append([]string{}, ev.Categories...),
		RelevanceTags: append([]string{}, ev.RelevanceTags...),
	}
	if ev.EndTime != nil {
		out.EndTime = ev.EndTime.Format(time.RFC3339)
	}
	if ev.Coordinates != nil {
		out.Coordinates = []float64{ev.Coordinates.Lat, ev.Coordinates.Lon}
	}
	for _, src := range ev.MergedFrom {
		out.MergedFrom = append(out.MergedFrom, string(src))
	}
	return out
}
