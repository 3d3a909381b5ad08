package usecase

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
	"github.com/atopofconscience/mehfil/pkg/metrics"
)

// State names the phase a pipeline run is in.
type State string

// Pipeline states, in run order.
const (
	StateIdle          State = "idle"
	StateFetchingAll   State = "fetching_all"
	StateNormalizing   State = "normalizing"
	StateClassifying   State = "classifying"
	StateDeduplicating State = "deduplicating"
	StateGeocoding     State = "geocoding"
	StateDone          State = "done"
)

// PipelineDeps wires all driven adapters into the orchestration pipeline.
type PipelineDeps struct {
	Source     ports.EventSource
	Normalizer ports.Normalizer
	Classifier ports.Classifier
	Deduper    ports.Deduplicator
	Geocoder   ports.Geocoder
	Repository ports.EventRepository
	Exporter   ports.SnapshotWriter
	Notifier   ports.Notifier
	Logger     *slog.Logger

	KeepUnclassified bool
	RunTimeout       time.Duration
}

// Pipeline implements the event aggregation workflow. Failures below the
// pipeline boundary (one source, one record, one address) are counted and
// logged; only a failure to publish the final set is returned as an error.
type Pipeline struct {
	source     ports.EventSource
	normalizer ports.Normalizer
	classifier ports.Classifier
	deduper    ports.Deduplicator
	geocoder   ports.Geocoder
	repository ports.EventRepository
	exporter   ports.SnapshotWriter
	notifier   ports.Notifier
	logger     *slog.Logger

	keepUnclassified bool
	runTimeout       time.Duration

	mu    sync.Mutex
	state State
}

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	return &Pipeline{
		source:           deps.Source,
		normalizer:       deps.Normalizer,
		classifier:       deps.Classifier,
		deduper:          deps.Deduper,
		geocoder:         deps.Geocoder,
		repository:       deps.Repository,
		exporter:         deps.Exporter,
		notifier:         deps.Notifier,
		logger:           deps.Logger,
		keepUnclassified: deps.KeepUnclassified,
		runTimeout:       deps.RunTimeout,
		state:            StateIdle,
	}
}

// State reports the phase of the current or most recent run.
func (p *Pipeline) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Run executes one full pipeline pass and returns its summary. A zero-result
// run is a successful run; the returned error is non-nil only when the final
// event set could not be published.
func (p *Pipeline) Run(ctx context.Context, at time.Time) (domain.RunSummary, error) {
	started := time.Now()
	summary := domain.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: at,
		Fetched:   map[domain.Source]int{},
		Failed:    map[domain.Source]string{},
	}

	if p.runTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.runTimeout)
		defer cancel()
	}

	p.setState(StateFetchingAll)
	var results []domain.FetchResult
	if p.source != nil {
		results = p.source.FetchAll(ctx)
	}
	for _, result := range results {
		if result.Err != nil {
			summary.Failed[result.Source] = result.Err.Error()
			metrics.RecordAdapterFailure(string(result.Source))
			p.warn("source failed", "source", string(result.Source), "error", result.Err)
			continue
		}
		summary.Fetched[result.Source] = len(result.Records)
		metrics.RecordFetched(string(result.Source), len(result.Records))
	}

	p.setState(StateNormalizing)
	events := make([]domain.Event, 0)
	if p.normalizer != nil {
		for _, result := range results {
			if result.Err != nil {
				continue
			}
			for _, rec := range result.Records {
				ev, err := p.normalizer.Normalize(result.Source, rec)
				if err != nil {
					summary.Malformed++
					metrics.RecordMalformed(string(result.Source))
					p.debug("record dropped", "source", string(result.Source), "error", err)
					continue
				}
				events = append(events, ev)
			}
		}
	}

	p.setState(StateClassifying)
	if p.classifier != nil {
		for i := range events {
			events[i] = p.classifier.Classify(events[i])
		}
	}
	kept := events[:0]
	for _, ev := range events {
		if ev.Unclassified() {
			summary.Unclassified++
			if !p.keepUnclassified {
				continue
			}
		}
		kept = append(kept, ev)
	}
	events = kept

	p.setState(StateDeduplicating)
	if p.deduper != nil {
		var merged int
		events, merged = p.deduper.Merge(events)
		summary.Merged = merged
		metrics.RecordMerged(merged)
	}

	p.setState(StateGeocoding)
	summary.GeocodeMisses = p.geocode(ctx, events)

	sort.Slice(events, func(i, j int) bool {
		if !events[i].StartTime.Equal(events[j].StartTime) {
			return events[i].StartTime.Before(events[j].StartTime)
		}
		return events[i].ID < events[j].ID
	})

	p.setState(StateDone)
	summary.Published = len(events)
	summary.Duration = time.Since(started)

	if p.repository != nil {
		if err := p.repository.UpsertEvents(ctx, events); err != nil {
			return summary, fmt.Errorf("store events: %w", err)
		}
	}
	if p.exporter != nil {
		if err := p.exporter.WriteSnapshot(ctx, events, at); err != nil {
			return summary, fmt.Errorf("write snapshot: %w", err)
		}
	}

	metrics.RecordRun(summary.Duration, summary.Published)
	p.info("run complete",
		"run_id", summary.RunID,
		"published", summary.Published,
		"merged", summary.Merged,
		"malformed", summary.Malformed,
		"unclassified", summary.Unclassified,
		"geocode_misses", summary.GeocodeMisses,
		"failed_sources", len(summary.Failed),
		"duration", summary.Duration.Round(time.Millisecond))

	if p.notifier != nil {
		if err := p.notifier.PublishSummary(ctx, summary); err != nil {
			p.warn("publish summary failed", "error", err)
		}
	}

	return summary, nil
}

// geocode fills missing coordinates sequentially and returns the number of
// addresses left unresolved. Resolution failures never abort the run.
func (p *Pipeline) geocode(ctx context.Context, events []domain.Event) int {
	if p.geocoder == nil {
		return 0
	}

	if err := p.geocoder.Warm(ctx); err != nil {
		p.warn("geocode cache load failed", "error", err)
	}

	misses := 0
	for i := range events {
		if events[i].Coordinates != nil {
			continue
		}
		if ctx.Err() != nil {
			misses += remainingWithoutCoords(events[i:])
			break
		}
		query := geocodeQuery(events[i])
		if query == "" {
			misses++
			continue
		}
		coords, err := p.geocoder.Resolve(ctx, query)
		if err != nil {
			misses++
			p.warn("geocode failed", "query", query, "error", err)
			continue
		}
		if coords == nil {
			misses++
			continue
		}
		events[i].Coordinates = coords
	}

	if err := p.geocoder.Flush(ctx); err != nil {
		p.warn("geocode cache save failed", "error", err)
	}
	return misses
}

func remainingWithoutCoords(events []domain.Event) int {
	n := 0
	for _, ev := range events {
		if ev.Coordinates == nil {
			n++
		}
	}
	return n
}

func geocodeQuery(ev domain.Event) string {
	parts := make([]string, 0, 2)
	if ev.VenueName != "" {
		parts = append(parts, ev.VenueName)
	}
	if ev.Address != "" && !strings.EqualFold(ev.Address, ev.VenueName) {
		parts = append(parts, ev.Address)
	}
	return strings.Join(parts, ", ")
}

func (p *Pipeline) setState(s State) {
	p.mu.Lock()
	p.state = s
	p.mu.Unlock()
	p.debug("pipeline state", "state", string(s))
}

func (p *Pipeline) info(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Info(msg, args...)
	}
}

func (p *Pipeline) warn(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Warn(msg, args...)
	}
}

func (p *Pipeline) debug(msg string, args ...interface{}) {
	if p.logger != nil {
		p.logger.Debug(msg, args...)
	}
}
