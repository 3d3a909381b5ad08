package main

import (
	"context"
	"flag"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/atopofconscience/mehfil/internal/app"
	"github.com/atopofconscience/mehfil/internal/config"
	"github.com/atopofconscience/mehfil/internal/logging"
	"github.com/atopofconscience/mehfil/pkg/metrics"
)

func main() {
	configPath := flag.String("config", "", "path to config file")
	once := flag.Bool("once", false, "run the pipeline once and exit")
	keepUnclassified := flag.Bool("keep-unclassified", false, "publish events without tags or categories")
	flag.Parse()

	if err := godotenv.Load(); err != nil {
		log.Println("no .env file found")
	}

	cfg := config.Load(*configPath)
	if *keepUnclassified {
		cfg.Pipeline.KeepUnclassified = true
	}
	logger := logging.New(cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger, *once); err != nil {
		logger.Error("application stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, logger *slog.Logger, once bool) error {
	application, err := app.New(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer application.Close()

	if cfg.Metrics.Addr != "" {
		go serveMetrics(cfg.Metrics.Addr, logger)
	}

	if once {
		_, err := application.RunOnce(ctx)
		return err
	}

	if err := application.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	return application.Stop(context.Background())
}

func serveMetrics(addr string, logger *slog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	if err := http.ListenAndServe(addr, mux); err != nil {
		logger.Error("metrics listener stopped", "error", err)
	}
}
