// Package pipeline runs one scheduled batch: crawl every registered source,
// ingest the unprocessed documents, match and notify. Crawler failures are
// recorded and tolerated; ingest and notify always run on whatever partial
// crawl data exists.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/vbuch/oboapp-sub005/internal/crawler"
	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/ingest"
	"github.com/vbuch/oboapp-sub005/internal/notify"
	"github.com/vbuch/oboapp-sub005/internal/observability"
	"github.com/vbuch/oboapp-sub005/internal/storage"
)

// Status is the terminal state of one batch run.
type Status string

const (
	// StatusDone means every crawler and both downstream stages succeeded.
	StatusDone Status = "done"

	// StatusFailedPartial means at least one crawler failed but ingest and
	// notify completed on the remaining data.
	StatusFailedPartial Status = "failed-partial"

	// StatusFailedFatal means the ingest or notify stage itself failed.
	StatusFailedFatal Status = "failed-fatal"
)

// CrawlerFailure records one source that could not be crawled.
type CrawlerFailure struct {
	Source string
	Reason string
}

// BatchResult summarizes one batch run for logging and alerting.
type BatchResult struct {
	RunID           string
	Status          Status
	CrawlerFailures []CrawlerFailure
	CrawledDocs     int
	Ingest          ingest.Result
	Notify          notify.Result
	Duration        time.Duration
}

// ExitCode maps the batch status to a process exit code: 0 for a clean run,
// 1 for any failure. Partial and fatal failures share the code; the status
// string in the summary log line distinguishes them for alerting.
func (r BatchResult) ExitCode() int {
	if r.Status == StatusDone {
		return 0
	}
	return 1
}

// Orchestrator wires the batch stages together.
type Orchestrator struct {
	registry *crawler.Registry
	sources  storage.SourceStore
	messages storage.MessageStore
	ingestor *ingest.Ingestor
	matcher  *notify.Matcher
	logger   *slog.Logger
	metrics  *observability.Metrics

	ingestBatchSize int
}

// New creates an Orchestrator.
func New(
	registry *crawler.Registry,
	sources storage.SourceStore,
	messages storage.MessageStore,
	ingestor *ingest.Ingestor,
	matcher *notify.Matcher,
	ingestBatchSize int,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Orchestrator {
	return &Orchestrator{
		registry:        registry,
		sources:         sources,
		messages:        messages,
		ingestor:        ingestor,
		matcher:         matcher,
		ingestBatchSize: ingestBatchSize,
		logger:          logger,
		metrics:         metrics,
	}
}

// Run executes one batch over the named sources, or every registered source
// when names is empty. The returned error is non-nil only for startup
// problems (unknown source name) or context cancellation; stage failures are
// reported through the BatchResult.
func (o *Orchestrator) Run(ctx context.Context, names []string) (BatchResult, error) {
	result := BatchResult{RunID: uuid.NewString()}
	start := time.Now()

	o.metrics.BatchRunning.Set(1)
	defer o.metrics.BatchRunning.Set(0)

	crawlers, err := o.registry.Resolve(names)
	if err != nil {
		return result, err
	}

	o.logger.Info("batch started", "run_id", result.RunID, "sources", len(crawlers))

	o.runCrawlers(ctx, crawlers, &result)

	// Ingest and notify run even when crawlers failed: partial crawl data
	// must still be processed.
	fatal := o.runIngestAndNotify(ctx, &result)

	result.Duration = time.Since(start)
	switch {
	case fatal != nil && ctx.Err() != nil:
		return result, fatal
	case fatal != nil:
		result.Status = StatusFailedFatal
	case len(result.CrawlerFailures) > 0:
		result.Status = StatusFailedPartial
	default:
		result.Status = StatusDone
	}

	o.logger.Info("batch finished",
		"run_id", result.RunID,
		"status", string(result.Status),
		"crawler_failures", len(result.CrawlerFailures),
		"crawled_docs", result.CrawledDocs,
		"created", result.Ingest.Created,
		"skipped", result.Ingest.Skipped,
		"failed", len(result.Ingest.Failed),
		"matched", result.Notify.Matched,
		"already_matched", result.Notify.AlreadyMatched,
		"delivered", result.Notify.Delivered,
		"delivery_failures", result.Notify.DeliveryFailures,
		"duration", result.Duration,
	)
	return result, nil
}

// runCrawlers invokes each crawler strictly sequentially, bounding load on
// upstream sites and keeping failure attribution simple.
func (o *Orchestrator) runCrawlers(ctx context.Context, crawlers []crawler.Crawler, result *BatchResult) {
	stageStart := time.Now()
	defer func() {
		o.metrics.StageDuration.WithLabelValues("crawl").Observe(time.Since(stageStart).Seconds())
	}()

	for _, c := range crawlers {
		if ctx.Err() != nil {
			return
		}

		docs, err := c.Crawl(ctx)
		if err != nil {
			o.recordCrawlerFailure(result, c.Name(), fmt.Errorf("crawl: %w", err))
			continue
		}

		if err := o.sources.SaveBatch(ctx, docs); err != nil {
			o.recordCrawlerFailure(result, c.Name(), fmt.Errorf("save documents: %w", err))
			continue
		}

		result.CrawledDocs += len(docs)
		o.metrics.CrawledDocuments.Add(float64(len(docs)))
		o.logger.Info("crawler finished", "source", c.Name(), "documents", len(docs))
	}
}

func (o *Orchestrator) recordCrawlerFailure(result *BatchResult, source string, err error) {
	result.CrawlerFailures = append(result.CrawlerFailures, CrawlerFailure{
		Source: source,
		Reason: err.Error(),
	})
	o.metrics.CrawlerFailures.WithLabelValues(source).Inc()
	o.logger.Error("crawler failed", "stage", "crawl", "source", source, "error", err)
}

func (o *Orchestrator) runIngestAndNotify(ctx context.Context, result *BatchResult) error {
	ingestStart := time.Now()

	docs, err := o.sources.ListUnprocessed(ctx, o.ingestBatchSize)
	if err != nil {
		o.logger.Error("stage failed", "stage", "ingest", "error", err)
		return fmt.Errorf("list unprocessed documents: %w", err)
	}

	ingestResult, err := o.ingestor.Ingest(ctx, docs)
	result.Ingest = ingestResult
	o.metrics.StageDuration.WithLabelValues("ingest").Observe(time.Since(ingestStart).Seconds())
	if err != nil {
		o.logger.Error("stage failed", "stage", "ingest", "error", err)
		return fmt.Errorf("ingest: %w", err)
	}

	notifyStart := time.Now()
	notifyResult, err := o.matcher.MatchAndNotify(ctx, ingestResult.CreatedMessages)
	result.Notify = notifyResult
	o.metrics.StageDuration.WithLabelValues("notify").Observe(time.Since(notifyStart).Seconds())
	if err != nil {
		o.logger.Error("stage failed", "stage", "notify", "error", err)
		return fmt.Errorf("notify: %w", err)
	}

	o.finalize(ctx, ingestResult.CreatedMessages)
	return nil
}

// finalize stamps finalizedAt on every message created this run, closing its
// ingest-and-match lifecycle. A failed stamp is logged and left for the next
// operator look; the message itself is already fully processed.
func (o *Orchestrator) finalize(ctx context.Context, msgs []domain.Message) {
	now := domain.Now()
	for _, msg := range msgs {
		if err := o.messages.Update(ctx, msg.ID, map[string]any{"finalizedAt": now}); err != nil {
			o.logger.Warn("finalize message failed", "message_id", msg.ID, "error", err)
		}
	}
}
