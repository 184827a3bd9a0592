// Command pipeline runs one full batch: crawl every registered source,
// ingest the unprocessed documents, match and notify. Exits 0 only when
// every stage succeeded.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/vbuch/oboapp-sub005/internal/adapter/geocode"
	"github.com/vbuch/oboapp-sub005/internal/adapter/httpadapter"
	kafkaadapter "github.com/vbuch/oboapp-sub005/internal/adapter/kafka"
	mongoadapter "github.com/vbuch/oboapp-sub005/internal/adapter/mongo"
	"github.com/vbuch/oboapp-sub005/internal/config"
	"github.com/vbuch/oboapp-sub005/internal/crawler"
	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/ingest"
	"github.com/vbuch/oboapp-sub005/internal/notify"
	"github.com/vbuch/oboapp-sub005/internal/observability"
	"github.com/vbuch/oboapp-sub005/internal/pipeline"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var sourcesFlag string
	flag.StringVar(&sourcesFlag, "sources", "", "comma-separated subset of sources to run (default: all)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)
	metrics := observability.NewMetrics()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := mongoadapter.Open(openCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer closeStore(store, cfg.ShutdownTimeout, logger)

	var geocoder domain.Geocoder
	if cfg.GeocodeEnabled {
		client := geocode.NewClient(cfg.GeocodeURL, cfg.GeocodeTimeout, logger, metrics)
		geocoder = geocode.NewCachedGeocoder(client, cfg.GeocodeCacheSize, metrics)
		logger.Info("address enrichment enabled", "cache_size", cfg.GeocodeCacheSize)
	}

	delivery := kafkaadapter.NewDelivery(cfg.KafkaBrokers, cfg.KafkaNotificationTopic, logger)
	defer func() {
		if err := delivery.Close(); err != nil {
			logger.Error("kafka delivery close error", "error", err)
		}
	}()

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Error("failed to build crawler registry", "error", err)
		return 1
	}

	ingestor := ingest.New(store.Sources(), store.Messages(), domain.DefaultClassifier(), geocoder, cfg.DefaultLocality, logger, metrics)
	matcher := notify.New(store.Interests(), store.Matches(), store.Devices(), delivery, logger, metrics)
	orch := pipeline.New(registry, store.Sources(), store.Messages(), ingestor, matcher, cfg.IngestBatchSize, logger, metrics)

	// Serve /metrics for the duration of the batch.
	srv := httpadapter.NewServer(cfg.HTTPAddr, logger)
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()
	defer shutdownServer(srv, cfg.ShutdownTimeout, logger)

	result, err := orch.Run(ctx, splitSources(sourcesFlag))
	if err != nil {
		logger.Error("batch aborted", "error", err)
		return 1
	}
	return result.ExitCode()
}

func buildRegistry(cfg *config.Config) (*crawler.Registry, error) {
	registry, err := crawler.NewRegistry()
	if err != nil {
		return nil, err
	}
	for name, path := range cfg.CrawlerSources {
		c, err := crawler.NewFileCrawler(name, path)
		if err != nil {
			return nil, err
		}
		if err := registry.Register(c); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

func splitSources(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func closeStore(store *mongoadapter.Store, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := store.Close(ctx); err != nil {
		logger.Error("store close error", "error", err)
	}
}

func shutdownServer(srv *httpadapter.Server, timeout time.Duration, logger *slog.Logger) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("http server shutdown error", "error", err)
	}
}
