package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/atopofconscience/mehfil/internal/config"
	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/ports"
	"github.com/atopofconscience/mehfil/internal/scanner"
)

// StrategySource implements EventSource via registered scanner adapters.
// Sources are fetched concurrently under a semaphore; one failing source
// never hides the results of another.
type StrategySource struct {
	registry *scanner.Registry
	sources  []config.SourceConfig
	limit    int
	timeout  time.Duration
	logger   *slog.Logger
}

var _ ports.EventSource = (*StrategySource)(nil)

// NewStrategySource wires the scanner registry with config-defined sources.
func NewStrategySource(reg *scanner.Registry, sources []config.SourceConfig, limit int, timeout time.Duration, log *slog.Logger) *StrategySource {
	if limit <= 0 {
		limit = 3
	}
	if timeout <= 0 {
		timeout = 45 * time.Second
	}
	return &StrategySource{
		registry: reg,
		sources:  sources,
		limit:    limit,
		timeout:  timeout,
		logger:   log,
	}
}

// FetchAll executes every configured source and returns one result per
// source, in configuration order.
func (s *StrategySource) FetchAll(ctx context.Context) []domain.FetchResult {
	if s.registry == nil || len(s.sources) == 0 {
		return nil
	}

	s.debug("fetch all", "sources", len(s.sources), "limit", s.limit)

	results := make([]domain.FetchResult, len(s.sources))
	sem := make(chan struct{}, s.limit)
	var wg sync.WaitGroup
	for i, src := range s.sources {
		wg.Add(1)
		go func(slot int, src config.SourceConfig) {
			defer wg.Done()
			sem <- struct{}{}
			defer func() { <-sem }()
			results[slot] = s.fetchOne(ctx, src)
		}(i, src)
	}
	wg.Wait()

	return results
}

func (s *StrategySource) fetchOne(ctx context.Context, src config.SourceConfig) domain.FetchResult {
	result := domain.FetchResult{Source: domain.Source(src.Name)}

	strategy, err := s.registry.Resolve(src.Adapter)
	if err != nil {
		result.Err = fmt.Errorf("source %s: %w", src.Name, err)
		return result
	}

	fetchCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	req := scanner.Request{
		Source:      domain.Source(src.Name),
		BaseURL:     src.BaseURL,
		SearchTerms: src.SearchTerms,
		Venue:       scanner.Venue{Name: src.Venue.Name, Lat: src.Venue.Lat, Lon: src.Venue.Lon},
		Options:     src.Options,
	}

	records, err := strategy.Fetch(fetchCtx, req)
	if err != nil {
		result.Err = fmt.Errorf("fetch source %s: %w", src.Name, err)
		return result
	}

	s.debug("source produced records", "source", src.Name, "count", len(records))
	result.Records = records
	return result
}

func (s *StrategySource) debug(msg string, args ...interface{}) {
	if s.logger != nil {
		s.logger.Debug(msg, args...)
	}
}
