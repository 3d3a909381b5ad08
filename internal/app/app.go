package app

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/atopofconscience/mehfil/internal/classify"
	"github.com/atopofconscience/mehfil/internal/config"
	"github.com/atopofconscience/mehfil/internal/dedupe"
	"github.com/atopofconscience/mehfil/internal/domain"
	"github.com/atopofconscience/mehfil/internal/infrastructure/export"
	"github.com/atopofconscience/mehfil/internal/infrastructure/geocache"
	"github.com/atopofconscience/mehfil/internal/infrastructure/geocode"
	"github.com/atopofconscience/mehfil/internal/infrastructure/render"
	"github.com/atopofconscience/mehfil/internal/infrastructure/scheduler"
	"github.com/atopofconscience/mehfil/internal/infrastructure/scraper"
	"github.com/atopofconscience/mehfil/internal/infrastructure/storage"
	"github.com/atopofconscience/mehfil/internal/infrastructure/telegram"
	"github.com/atopofconscience/mehfil/internal/logging"
	"github.com/atopofconscience/mehfil/internal/normalize"
	"github.com/atopofconscience/mehfil/internal/ports"
	"github.com/atopofconscience/mehfil/internal/scanner"
	"github.com/atopofconscience/mehfil/internal/usecase"
)

// Application wires configs to use cases and lifecycle orchestration.
type Application struct {
	cfg        config.Config
	logger     *slog.Logger
	pipeline   *usecase.Pipeline
	scheduler  *usecase.Scheduler
	db         *sql.DB
	cacheStore *geocache.Store
}

// New builds a runnable application instance. The geocode cache must open;
// database and notifier are optional collaborators.
func New(ctx context.Context, cfg config.Config, baseLogger *slog.Logger) (*Application, error) {
	if baseLogger == nil {
		baseLogger = logging.New(cfg.Logging.Level)
	}

	var renderer ports.Renderer
	if cfg.Render.Endpoint != "" {
		renderer = render.NewClient(cfg.Render)
	} else {
		baseLogger.Warn("render endpoint is not set, script-rendered sources will fail")
	}

	registry := scanner.NewRegistry()
	registry.Register(scraper.NewTicketingScanner())
	registry.Register(scraper.NewCityCalendarScanner(nil))
	registry.Register(scraper.NewAggregatorScanner(nil))
	registry.Register(scraper.NewGroupsScanner(renderer))
	registry.Register(scraper.NewInstitutionScanner(nil))

	source := scraper.NewStrategySource(
		registry,
		cfg.Sources,
		cfg.Pipeline.Concurrency,
		cfg.Pipeline.AdapterTimeout.Std(),
		baseLogger.With("component", "source"),
	)

	mappings := make(map[domain.Source]normalize.Mapping, len(cfg.Sources))
	for _, src := range cfg.Sources {
		mappings[domain.Source(src.Name)] = normalize.Mapping(src.FieldMap)
	}
	normalizer := normalize.New(mappings, cfg.Scheduler.Location())

	classifier := classify.New(classify.Keywords{
		Relevance: map[string][]string{
			domain.TagSouthAsian:    cfg.Classifier.SouthAsian,
			domain.TagMiddleEastern: cfg.Classifier.MiddleEastern,
		},
		Categories: cfg.Classifier.Categories,
	})

	deduper := dedupe.New(dedupe.Options{
		TitleSimilarity: cfg.Dedupe.TitleSimilarity,
		Priority:        toSources(cfg.Pipeline.SourcePriority),
		Location:        cfg.Scheduler.Location(),
	})

	cacheStore, err := geocache.Open(cfg.Geocoder.CachePath)
	if err != nil {
		return nil, fmt.Errorf("open geocode cache: %w", err)
	}

	lookup := geocode.NewNominatimClient(cfg.Geocoder.BaseURL, cfg.Geocoder.UserAgent, 10*time.Second)
	resolver := geocode.NewResolver(cfg.Geocoder, lookup, cacheStore, baseLogger.With("component", "geocoder"))

	var repository ports.EventRepository
	var db *sql.DB
	if cfg.Database.DSN != "" {
		db, err = storage.Open(ctx, cfg.Database.DSN)
		if err != nil {
			_ = cacheStore.Close()
			return nil, fmt.Errorf("connect database: %w", err)
		}
		store := storage.NewPostgresStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			_ = cacheStore.Close()
			return nil, err
		}
		repository = store
	} else {
		baseLogger.Warn("database dsn is not set, events will not be persisted")
	}

	var notifier ports.Notifier
	if cfg.Notifications.Telegram.BotToken != "" && cfg.Notifications.Telegram.ChatID != "" {
		notifier = telegram.NewNotifier(cfg.Notifications.Telegram.BotToken, cfg.Notifications.Telegram.ChatID)
	}

	pipeline := usecase.NewPipeline(usecase.PipelineDeps{
		Source:           source,
		Normalizer:       normalizer,
		Classifier:       classifier,
		Deduper:          deduper,
		Geocoder:         resolver,
		Repository:       repository,
		Exporter:         export.NewWriter(cfg.Export, cfg.Scheduler.Location()),
		Notifier:         notifier,
		Logger:           baseLogger.With("component", "pipeline"),
		KeepUnclassified: cfg.Pipeline.KeepUnclassified,
		RunTimeout:       cfg.Pipeline.RunTimeout.Std(),
	})

	driver := scheduler.NewIntervalScheduler(cfg.Scheduler.Interval.Std())

	return &Application{
		cfg:        cfg,
		logger:     baseLogger,
		pipeline:   pipeline,
		scheduler:  usecase.NewScheduler(driver, pipeline),
		db:         db,
		cacheStore: cacheStore,
	}, nil
}

// RunOnce performs a single pipeline execution.
func (a *Application) RunOnce(ctx context.Context) (domain.RunSummary, error) {
	if a.pipeline == nil {
		return domain.RunSummary{}, nil
	}

	now := time.Now().In(a.cfg.Scheduler.Location())
	return a.pipeline.Run(ctx, now)
}

// Start begins scheduled execution.
func (a *Application) Start(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.Start(ctx)
}

// Stop halts scheduled execution.
func (a *Application) Stop(ctx context.Context) error {
	if a.scheduler == nil {
		return nil
	}
	return a.scheduler.Stop(ctx)
}

// Close releases the database and cache handles.
func (a *Application) Close() error {
	var firstErr error
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			firstErr = err
		}
	}
	if err := a.cacheStore.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}

func toSources(names []string) []domain.Source {
	out := make([]domain.Source, 0, len(names))
	for _, name := range names {
		out = append(out, domain.Source(name))
	}
	return out
}
