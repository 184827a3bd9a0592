// Package ingest turns raw source documents into canonical messages:
// validate, deduplicate, normalize geometry, classify, persist. Each
// document is processed independently; one bad document never aborts the
// batch, and re-running an already-processed batch is a no-op.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/observability"
	"github.com/vbuch/oboapp-sub005/internal/storage"
)

const (
	// maxSlugAttempts bounds identifier draws per message. Running out of
	// attempts in a 62^8 space signals an invariant violation, not a
	// transient condition, so the document fails loudly.
	maxSlugAttempts = 5

	// Transient storage errors are retried with doubling backoff before the
	// document is recorded as failed.
	maxStoreAttempts = 3
	initialBackoff   = 200 * time.Millisecond

	// maxGeocodedAddresses caps reverse-geocode lookups per message.
	maxGeocodedAddresses = 5
)

// FailedDocument records one document the ingestor could not process.
type FailedDocument struct {
	Ref    domain.SourceDocumentRef
	Reason string
}

// Result is the structured outcome of one ingestion run.
type Result struct {
	Created int
	Skipped int
	Failed  []FailedDocument

	// CreatedMessages feeds the notification matcher.
	CreatedMessages []domain.Message
}

// Ingestor consumes unprocessed source documents and persists messages.
type Ingestor struct {
	sources    storage.SourceStore
	messages   storage.MessageStore
	classifier *domain.Classifier
	geocoder   domain.Geocoder
	logger     *slog.Logger
	metrics    *observability.Metrics

	defaultLocality string
}

// New creates an Ingestor. geocoder may be nil to disable address
// enrichment.
func New(
	sources storage.SourceStore,
	messages storage.MessageStore,
	classifier *domain.Classifier,
	geocoder domain.Geocoder,
	defaultLocality string,
	logger *slog.Logger,
	metrics *observability.Metrics,
) *Ingestor {
	return &Ingestor{
		sources:         sources,
		messages:        messages,
		classifier:      classifier,
		geocoder:        geocoder,
		defaultLocality: defaultLocality,
		logger:          logger,
		metrics:         metrics,
	}
}

// Ingest processes the given documents. The returned error is non-nil only
// when the context is cancelled; per-document problems land in the Result.
func (in *Ingestor) Ingest(ctx context.Context, docs []domain.SourceDocument) (Result, error) {
	var result Result

	for _, doc := range docs {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		outcome, msg, err := in.ingestOne(ctx, doc)
		switch {
		case err != nil:
			result.Failed = append(result.Failed, FailedDocument{Ref: doc.Ref(), Reason: err.Error()})
			in.metrics.DocumentsFailed.Inc()
			in.logger.Warn("document failed",
				"source", doc.SourceType, "url", doc.URL, "error", err)
		case outcome == outcomeSkipped:
			result.Skipped++
			in.metrics.DocumentsSkipped.Inc()
		default:
			result.Created++
			result.CreatedMessages = append(result.CreatedMessages, msg)
			in.metrics.MessagesCreated.Inc()
			in.logger.Info("message created",
				"message_id", msg.ID, "source", doc.SourceType, "city_wide", msg.CityWide)
		}
	}

	return result, nil
}

type outcome int

const (
	outcomeSkipped outcome = iota
	outcomeCreated
)

func (in *Ingestor) ingestOne(ctx context.Context, doc domain.SourceDocument) (outcome, domain.Message, error) {
	if doc.Ingested || !doc.IsRelevant {
		return outcomeSkipped, domain.Message{}, nil
	}

	if err := validate(doc); err != nil {
		return 0, domain.Message{}, err
	}

	exists, err := in.alreadyIngested(ctx, doc)
	if err != nil {
		return 0, domain.Message{}, err
	}
	if exists {
		// The message exists but the document was never flagged (e.g. a
		// crash between the two writes). Re-flag so the next run's listing
		// no longer returns it.
		if err := in.sources.MarkIngested(ctx, doc.ID, ""); err != nil {
			in.logger.Warn("mark ingested failed", "doc_id", doc.ID, "error", err)
		}
		return outcomeSkipped, domain.Message{}, nil
	}

	msg := in.buildMessage(ctx, doc)

	if err := in.persistWithFreshSlug(ctx, &msg); err != nil {
		return 0, domain.Message{}, err
	}

	if err := in.withRetry(ctx, func() error {
		return in.sources.MarkIngested(ctx, doc.ID, msg.ID)
	}); err != nil {
		// The message is in; dedup will catch the unflagged document next
		// run, so this is not a document failure.
		in.logger.Warn("mark ingested failed", "doc_id", doc.ID, "message_id", msg.ID, "error", err)
	}

	return outcomeCreated, msg, nil
}

func validate(doc domain.SourceDocument) error {
	if doc.Title == "" {
		return errors.New("validation: empty title")
	}
	if doc.Text() == "" {
		return errors.New("validation: empty message body")
	}
	return nil
}

func (in *Ingestor) alreadyIngested(ctx context.Context, doc domain.SourceDocument) (bool, error) {
	var exists bool
	err := in.withRetry(ctx, func() error {
		var lookupErr error
		if doc.HasNaturalKey() {
			exists, lookupErr = in.messages.ExistsForSource(ctx, doc.SourceType, doc.URL, doc.DatePublished)
		} else {
			exists, lookupErr = in.messages.ExistsForContentHash(ctx, doc.ContentHash())
		}
		return lookupErr
	})
	if err != nil {
		return false, fmt.Errorf("dedup check: %w", err)
	}
	return exists, nil
}

// buildMessage normalizes and classifies one document into a message. The
// slug is assigned later, at persist time.
func (in *Ingestor) buildMessage(ctx context.Context, doc domain.SourceDocument) domain.Message {
	geo := domain.NormalizeFeatureCollection(doc.GeoJSON)
	classification := in.classifier.Classify(doc.Title, doc.Text(), doc.Categories)

	locality := doc.Locality
	if locality == "" {
		locality = in.defaultLocality
	}

	msg := domain.Message{
		Text:              doc.Message,
		MarkdownText:      doc.MarkdownText,
		GeoJSON:           geo,
		Pins:              doc.Pins,
		Streets:           doc.Streets,
		Categories:        classification.Categories,
		ResponsibleEntity: doc.SourceType,
		Source:            doc.SourceType,
		SourceURL:         doc.URL,
		Locality:          locality,
		CreatedAt:         domain.Now(),
		CrawledAt:         doc.CrawledAt,
		DatePublished:     doc.DatePublished,
		TimespanStart:     doc.TimespanStart,
		TimespanEnd:       doc.TimespanEnd,
	}

	// A notice without any geometry applies to the whole locality.
	msg.CityWide = geo == nil || len(geo.Features) == 0

	if !doc.HasNaturalKey() {
		msg.ContentHash = doc.ContentHash()
	}

	msg.Addresses = in.resolveAddresses(ctx, msg)
	return msg
}

// resolveAddresses denormalizes the address list: pin addresses when the
// crawler supplied them, otherwise reverse-geocoded feature centroids.
func (in *Ingestor) resolveAddresses(ctx context.Context, msg domain.Message) []string {
	if len(msg.Pins) > 0 {
		seen := make(map[string]struct{}, len(msg.Pins))
		var out []string
		for _, pin := range msg.Pins {
			if _, dup := seen[pin.Address]; dup || pin.Address == "" {
				continue
			}
			seen[pin.Address] = struct{}{}
			out = append(out, pin.Address)
		}
		return out
	}

	if in.geocoder == nil || msg.GeoJSON == nil {
		return nil
	}

	seen := make(map[string]struct{})
	var out []string
	for _, f := range msg.GeoJSON.Features {
		if len(out) >= maxGeocodedAddresses {
			break
		}
		center, ok := domain.Centroid(f.Geometry)
		if !ok {
			continue
		}
		addr, err := in.geocoder.ReverseGeocode(ctx, center)
		if err != nil || addr.Formatted == "" {
			continue
		}
		if _, dup := seen[addr.Formatted]; dup {
			continue
		}
		seen[addr.Formatted] = struct{}{}
		out = append(out, addr.Formatted)
	}
	return out
}

// persistWithFreshSlug draws slugs until the create-if-absent write lands.
// Collisions get a fresh slug; transient store errors get backoff within
// withRetry. Exhausting the attempts is a hard document failure.
func (in *Ingestor) persistWithFreshSlug(ctx context.Context, msg *domain.Message) error {
	for attempt := 0; attempt < maxSlugAttempts; attempt++ {
		slug, err := domain.NewSlug()
		if err != nil {
			return err
		}
		msg.ID = slug

		err = in.withRetry(ctx, func() error {
			createErr := in.messages.CreateIfAbsent(ctx, *msg)
			if errors.Is(createErr, storage.ErrAlreadyExists) {
				// Collisions are not transient; surface immediately.
				return backoffAbort{createErr}
			}
			return createErr
		})
		if err == nil {
			return nil
		}
		if errors.Is(err, storage.ErrAlreadyExists) {
			in.metrics.SlugRetries.Inc()
			in.logger.Warn("slug collision, retrying", "slug", slug, "attempt", attempt+1)
			continue
		}
		return fmt.Errorf("persist message: %w", err)
	}
	return fmt.Errorf("slug space exhausted after %d attempts", maxSlugAttempts)
}

// backoffAbort wraps an error that must not be retried.
type backoffAbort struct{ err error }

func (b backoffAbort) Error() string { return b.err.Error() }
func (b backoffAbort) Unwrap() error { return b.err }

// withRetry runs fn up to maxStoreAttempts times with doubling backoff.
// Context cancellation and backoffAbort errors stop retrying immediately.
func (in *Ingestor) withRetry(ctx context.Context, fn func() error) error {
	backoff := initialBackoff
	var err error
	for attempt := 0; attempt < maxStoreAttempts; attempt++ {
		err = fn()
		if err == nil {
			return nil
		}
		var abort backoffAbort
		if errors.As(err, &abort) {
			return abort.err
		}
		if ctx.Err() != nil {
			return err
		}
		if attempt < maxStoreAttempts-1 {
			if !sleepWithContext(ctx, backoff) {
				return err
			}
			backoff *= 2
		}
	}
	return err
}

func sleepWithContext(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}
