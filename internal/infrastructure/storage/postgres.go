package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

const upsertChunkSize = 100

const schemaDDL = `CREATE TABLE IF NOT EXISTS events (
	id             TEXT PRIMARY KEY,
	title          TEXT NOT NULL,
	description    TEXT NOT NULL DEFAULT '',
	start_time     TIMESTAMPTZ NOT NULL,
	end_time       TIMESTAMPTZ,
	venue_name     TEXT NOT NULL DEFAULT '',
	address        TEXT NOT NULL DEFAULT '',
	lat            DOUBLE PRECISION,
	lon            DOUBLE PRECISION,
	source         TEXT NOT NULL,
	source_url     TEXT NOT NULL DEFAULT '',
	price_free     BOOLEAN NOT NULL DEFAULT FALSE,
	price_amount   TEXT NOT NULL DEFAULT '',
	categories     TEXT[] NOT NULL DEFAULT '{}',
	relevance_tags TEXT[] NOT NULL DEFAULT '{}',
	merged_from    TEXT[] NOT NULL DEFAULT '{}',
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
)`

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

// PostgresStore persists published events into Postgres.
type PostgresStore struct {
	db *sql.DB
}

var _ ports.EventRepository = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// EnsureSchema creates the events table when it does not exist yet.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schemaDDL); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// UpsertEvents writes events keyed by ID, updating rows that already exist.
func (s *PostgresStore) UpsertEvents(ctx context.Context, events []domain.Event) error {
	if s.db == nil || len(events) == 0 {
		return nil
	}
	for start := 0; start < len(events); start += upsertChunkSize {
		end := start + upsertChunkSize
		if end > len(events) {
			end = len(events)
		}
		if err := s.upsertChunk(ctx, events[start:end]); err != nil {
			return err
		}
	}
	return nil
}

func (s *PostgresStore) upsertChunk(ctx context.Context, events []domain.Event) error {
	builder := sq.Insert("events").
		Columns(
			"id", "title", "description", "start_time", "end_time",
			"venue_name", "address", "lat", "lon",
			"source", "source_url", "price_free", "price_amount",
			"categories", "relevance_tags", "merged_from",
		).
		PlaceholderFormat(sq.Dollar).
		Suffix(`ON CONFLICT (id) DO UPDATE SET
			title = EXCLUDED.title,
			description = EXCLUDED.description,
			start_time = EXCLUDED.start_time,
			end_time = EXCLUDED.end_time,
			venue_name = EXCLUDED.venue_name,
			address = EXCLUDED.address,
			lat = EXCLUDED.lat,
			lon = EXCLUDED.lon,
			source = EXCLUDED.source,
			source_url = EXCLUDED.source_url,
			price_free = EXCLUDED.price_free,
			price_amount = EXCLUDED.price_amount,
			categories = EXCLUDED.categories,
			relevance_tags = EXCLUDED.relevance_tags,
			merged_from = EXCLUDED.merged_from,
			updated_at = NOW()`)

	for _, ev := range events {
		var lat, lon any
		if ev.Coordinates != nil {
			lat, lon = ev.Coordinates.Lat, ev.Coordinates.Lon
		}
		builder = builder.Values(
			ev.ID, ev.Title, ev.Description, ev.StartTime, ev.EndTime,
			ev.VenueName, ev.Address, lat, lon,
			string(ev.Source), ev.SourceURL, ev.Price.Free, ev.Price.Amount,
			pq.Array(ev.Categories), pq.Array(ev.RelevanceTags), pq.Array(sourceStrings(ev.MergedFrom)),
		)
	}

	query, args, err := builder.ToSql()
	if err != nil {
		return fmt.Errorf("build upsert: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert events: %w", err)
	}
	return nil
}

func sourceStrings(sources []domain.Source) []string {
	out := make([]string, 0, len(sources))
	for _, src := range sources {
		out = append(out, string(src))
	}
	return out
}
