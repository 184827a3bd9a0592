// Command crawl runs a single named crawler and persists its documents
// without ingesting them, useful for debugging one source.
package main

import (
	"context"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	mongoadapter "github.com/vbuch/oboapp-sub005/internal/adapter/mongo"
	"github.com/vbuch/oboapp-sub005/internal/config"
	"github.com/vbuch/oboapp-sub005/internal/crawler"
	"github.com/vbuch/oboapp-sub005/internal/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var source string
	flag.StringVar(&source, "source", "", "source identifier to crawl (required)")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Error("failed to build crawler registry", "error", err)
		return 1
	}

	if source == "" {
		logger.Error("missing required -source flag", "registered", registry.Names())
		return 1
	}

	c, err := registry.Get(source)
	if err != nil {
		logger.Error("unknown source", "error", err)
		return 1
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	openCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	store, err := mongoadapter.Open(openCtx, cfg.MongoURI, cfg.MongoDatabase, logger)
	cancel()
	if err != nil {
		logger.Error("failed to open store", "error", err)
		return 1
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := store.Close(closeCtx); err != nil {
			logger.Error("store close error", "error", err)
		}
	}()

	docs, err := c.Crawl(ctx)
	if err != nil {
		logger.Error("crawl failed", "source", source, "error", err)
		return 1
	}

	if err := store.Sources().SaveBatch(ctx, docs); err != nil {
		logger.Error("save documents failed", "source", source, "error", err)
		return 1
	}

	logger.Info("crawl finished", "source", source, "documents", len(docs))
	return 0
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
