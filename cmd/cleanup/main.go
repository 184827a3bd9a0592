// Command cleanup deletes unprocessed (never-ingested) source documents for
// every source except one retained, reclaiming space after a source is
// decommissioned. -dry-run only reports what would be removed.
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
	"github.com/vbuch/oboapp-sub005/internal/observability"
)

func main() {
	os.Exit(run())
}

func run() int {
	_ = godotenv.Load()

	var keep string
	var dryRun bool
	flag.StringVar(&keep, "keep", "", "source identifier whose unprocessed documents are retained (required)")
	flag.BoolVar(&dryRun, "dry-run", false, "report what would be deleted without deleting")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		return 1
	}

	logger := observability.NewLogger(cfg.LogLevel, cfg.LogFormat)

	if keep == "" {
		logger.Error("missing required -keep flag")
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

	counts, err := store.Sources().CountUnprocessed(ctx)
	if err != nil {
		logger.Error("count unprocessed failed", "error", err)
		return 1
	}

	total := 0
	for source, n := range counts {
		if source == keep {
			continue
		}
		total += n
		logger.Info("unprocessed documents", "source", source, "count", n)
	}

	if dryRun {
		logger.Info("dry run, nothing deleted", "would_delete", total, "keep", keep)
		return 0
	}

	deleted, err := store.Sources().DeleteUnprocessed(ctx, keep)
	if err != nil {
		logger.Error("delete unprocessed failed", "error", err)
		return 1
	}

	logger.Info("cleanup finished", "deleted", deleted, "keep", keep)
	return 0
}
