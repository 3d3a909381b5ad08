package ports

import (
	"context"
	"time"

	"github.com/atopofconscience/mehfil/internal/domain"
)

// EventSource fans out across every configured adapter and reports each
// adapter's outcome. A failed adapter contributes an error, never aborts.
type EventSource interface {
	FetchAll(ctx context.Context) []domain.FetchResult
}

// Normalizer converts a raw record into the canonical Event shape. An error
// means the record is malformed and must be dropped and counted.
type Normalizer interface {
	Normalize(src domain.Source, rec domain.RawRecord) (domain.Event, error)
}

// Classifier annotates an Event with relevance tags and categories.
type Classifier interface {
	Classify(ev domain.Event) domain.Event
}

// Deduplicator folds events that describe the same occurrence across sources.
// It returns the surviving set and the number of events absorbed into others.
type Deduplicator interface {
	Merge(events []domain.Event) ([]domain.Event, int)
}

// Geocoder resolves free-text locations into coordinates. A nil result with a
// nil error means no match; an error means the service was unavailable. Warm
// loads the persistent cache before a run, Flush writes it back afterwards.
type Geocoder interface {
	Warm(ctx context.Context) error
	Resolve(ctx context.Context, address string) (*domain.Coordinates, error)
	Flush(ctx context.Context) error
}

// CacheStore persists resolved coordinates across runs, keyed by normalized
// address text.
type CacheStore interface {
	Load(ctx context.Context) (map[string]domain.Coordinates, error)
	Save(ctx context.Context, entries map[string]domain.Coordinates) error
}

// EventRepository persists the final event set, upserting by event ID and
// tolerating partial or empty batches.
type EventRepository interface {
	UpsertEvents(ctx context.Context, events []domain.Event) error
}

// SnapshotWriter publishes the dashboard export artifact.
type SnapshotWriter interface {
	WriteSnapshot(ctx context.Context, events []domain.Event, updated time.Time) error
}

// Renderer executes page scripts remotely and returns the settled HTML, for
// sources that serve nothing useful in the static document.
type Renderer interface {
	Render(ctx context.Context, pageURL string) ([]byte, error)
}

// Notifier delivers run summaries to an operator channel.
type Notifier interface {
	PublishSummary(ctx context.Context, summary domain.RunSummary) error
}

// Scheduler controls when pipeline runs execute.
type Scheduler interface {
	Start(ctx context.Context, job func(time.Time)) error
	Stop(ctx context.Context) error
}
