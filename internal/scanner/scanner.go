package scanner

import (
	"context"
	"fmt"

	"github.com/atopofconscience/mehfil/internal/domain"
)

// Venue pins a fixed venue for sources whose listings share one location
// (institution calendars), including pre-resolved coordinates.
type Venue struct {
	Name string
	Lat  float64
	Lon  float64
}

// Request carries all parameters required to execute one source fetch.
type Request struct {
	Source      domain.Source
	BaseURL     string
	SearchTerms []string
	Venue       Venue
	Options     map[string]string
}

// Adapter captures a single source strategy (ticketing API, HTML calendar,
// script-rendered platform, etc.).
type Adapter interface {
	Name() string
	Fetch(ctx context.Context, req Request) ([]domain.RawRecord, error)
}

// Registry keeps a mapping from adapter names to their implementations.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry builds an empty registry.
func NewRegistry() *Registry {
	return &Registry{adapters: map[string]Adapter{}}
}

// Register adds or replaces an adapter implementation.
func (r *Registry) Register(adapter Adapter) {
	if r.adapters == nil {
		r.adapters = map[string]Adapter{}
	}
	r.adapters[adapter.Name()] = adapter
}

// Resolve returns an adapter by name or an error if it is absent.
func (r *Registry) Resolve(name string) (Adapter, error) {
	if adapter, ok := r.adapters[name]; ok {
		return adapter, nil
	}
	return nil, fmt.Errorf("adapter %s is not registered", name)
}
