package geocode

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/atopofconscience/mehfil/internal/config"
	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
	"github.com/atopofconscience/mehfil/pkg/metrics"
)

// LookupClient resolves a free-form query against a remote geocoder.
type LookupClient interface {
	Lookup(ctx context.Context, query string) (domain.Coordinates, error)
}

type knownVenue struct {
	match  string
	coords domain.Coordinates
}

// Resolver answers coordinate lookups from three layers: a fixed table of
// known venues, a persistent positive cache, and the remote geocoder.
// Remote calls are paced by a minimum interval and addresses that failed
// once are not retried until the next Warm.
type Resolver struct {
	client   LookupClient
	store    ports.CacheStore
	known    []knownVenue
	suffix   string
	interval time.Duration
	log      *slog.Logger

	mu       sync.Mutex
	cache    map[string]domain.Coordinates
	misses   map[string]struct{}
	dirty    bool
	lastCall time.Time
}

var _ ports.Geocoder = (*Resolver)(nil)

// NewResolver wires a Resolver from configuration. The known-venue table
// keeps configuration order, so more specific matches must come first.
func NewResolver(cfg config.GeocoderConfig, client LookupClient, store ports.CacheStore, log *slog.Logger) *Resolver {
	known := make([]knownVenue, 0, len(cfg.KnownVenues))
	for _, kv := range cfg.KnownVenues {
		match := strings.ToLower(strings.TrimSpace(kv.Match))
		if match == "" {
			continue
		}
		known = append(known, knownVenue{
			match:  match,
			coords: domain.Coordinates{Lat: kv.Lat, Lon: kv.Lon},
		})
	}
	return &Resolver{
		client:   client,
		store:    store,
		known:    known,
		suffix:   strings.TrimSpace(cfg.RegionSuffix),
		interval: cfg.RequestInterval.Std(),
		log:      log,
		cache:    map[string]domain.Coordinates{},
		misses:   map[string]struct{}{},
	}
}

// Warm loads the persisted cache and clears the per-run miss set. A missing
// or unreadable cache is not fatal; resolution starts cold instead.
func (r *Resolver) Warm(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.misses = map[string]struct{}{}
	if r.store == nil {
		return nil
	}
	entries, err := r.store.Load(ctx)
	if err != nil {
		r.cache = map[string]domain.Coordinates{}
		return err
	}
	if entries == nil {
		entries = map[string]domain.Coordinates{}
	}
	r.cache = entries
	return nil
}

// Resolve maps a venue or address string to coordinates. It returns
// (nil, nil) when the query is empty or the geocoder has no match, and an
// error only when the remote service failed.
func (r *Resolver) Resolve(ctx context.Context, address string) (*domain.Coordinates, error) {
	key := normalizeKey(address)
	if key == "" {
		return nil, nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	for _, kv := range r.known {
		if strings.Contains(key, kv.match) {
			metrics.RecordGeocodeCacheHit()
			coords := kv.coords
			return &coords, nil
		}
	}
	if coords, ok := r.cache[key]; ok {
		metrics.RecordGeocodeCacheHit()
		return &coords, nil
	}
	if _, missed := r.misses[key]; missed {
		return nil, nil
	}
	if r.client == nil {
		return nil, nil
	}

	if err := r.pace(ctx); err != nil {
		return nil, err
	}

	metrics.RecordGeocodeLookup()
	coords, err := r.client.Lookup(ctx, r.query(address))
	r.lastCall = time.Now()
	if err != nil {
		r.misses[key] = struct{}{}
		metrics.RecordGeocodeFailure()
		if errors.Is(err, ErrNoMatch) {
			return nil, nil
		}
		return nil, err
	}

	r.cache[key] = coords
	r.dirty = true
	return &coords, nil
}

// Flush persists newly cached coordinates. Only positive results are saved.
func (r *Resolver) Flush(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.dirty || r.store == nil {
		return nil
	}
	if err := r.store.Save(ctx, r.cache); err != nil {
		return err
	}
	r.dirty = false
	return nil
}

// pace blocks until the minimum interval since the last remote call has
// passed, or the context is done.
func (r *Resolver) pace(ctx context.Context) error {
	if r.interval <= 0 || r.lastCall.IsZero() {
		return nil
	}
	wait := r.interval - time.Since(r.lastCall)
	if wait <= 0 {
		return nil
	}
	timer := time.NewTimer(wait)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func (r *Resolver) query(address string) string {
	address = strings.TrimSpace(address)
	if r.suffix == "" || strings.Contains(strings.ToLower(address), strings.ToLower(r.suffix)) {
		return address
	}
	return address + ", " + r.suffix
}

func normalizeKey(address string) string {
	return strings.Join(strings.Fields(strings.ToLower(address)), " ")
}
