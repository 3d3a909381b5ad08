package geocache

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
)

var bucketCoords = []byte("coords")

// Store persists geocoding results in a bbolt file, keyed by normalized
// address. Entries are written as small JSON documents.
type Store struct {
	db *bolt.DB
}

var _ ports.CacheStore = (*Store)(nil)

// Open opens or creates the cache file, creating parent directories as
// needed.
func Open(path string) (*Store, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create cache dir: %w", err)
		}
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open cache %s: %w", path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketCoords)
		return err
	}); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure cache bucket: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying file.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

type cacheEntry struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Load reads every cached coordinate. Corrupt entries are skipped rather
// than failing the whole load.
func (s *Store) Load(ctx context.Context) (map[string]domain.Coordinates, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries := map[string]domain.Coordinates{}
	err := s.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCoords)
		if bucket == nil {
			return nil
		}
		return bucket.ForEach(func(k, v []byte) error {
			var entry cacheEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return nil
			}
			entries[string(k)] = domain.Coordinates{Lat: entry.Lat, Lon: entry.Lon}
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load cache: %w", err)
	}
	return entries, nil
}

// Save writes the given entries, overwriting existing keys.
func (s *Store) Save(ctx context.Context, entries map[string]domain.Coordinates) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketCoords)
		if bucket == nil {
			return fmt.Errorf("bucket %s missing", bucketCoords)
		}
		for key, coords := range entries {
			raw, err := json.Marshal(cacheEntry{Lat: coords.Lat, Lon: coords.Lon})
			if err != nil {
				return err
			}
			if err := bucket.Put([]byte(key), raw); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("save cache: %w", err)
	}
	return nil
}
