// Package storage defines the document-store contract the pipeline depends
// on. Adapters own encoding; the pipeline only sees structured domain types.
package storage

import (
	"context"
	"errors"
	"time"

	"github.com/vbuch/oboapp-sub005/internal/domain"
)

var (
	// ErrNotFound is returned when a keyed lookup matches nothing.
	ErrNotFound = errors.New("storage: not found")

	// ErrAlreadyExists is returned by create-if-absent writes when the key
	// is taken. The ingestor treats it as a slug collision; the matcher as
	// an already-recorded (interest, message) pair.
	ErrAlreadyExists = errors.New("storage: already exists")
)

// SourceStore persists raw crawl output.
type SourceStore interface {
	// SaveBatch upserts crawled documents keyed by their dedup identity, in
	// bounded write batches. Re-crawling the same documents is a no-op.
	SaveBatch(ctx context.Context, docs []domain.SourceDocument) error

	// ListUnprocessed returns documents not yet consumed by the ingestor,
	// oldest first, up to limit.
	ListUnprocessed(ctx context.Context, limit int) ([]domain.SourceDocument, error)

	// MarkIngested flags a document as consumed and links the message
	// created from it.
	MarkIngested(ctx context.Context, docID, messageID string) error

	// CountUnprocessed counts non-ingested documents per sourceType.
	CountUnprocessed(ctx context.Context) (map[string]int, error)

	// DeleteUnprocessed removes non-ingested documents for every sourceType
	// except keepSource. Returns the number of documents removed.
	DeleteUnprocessed(ctx context.Context, keepSource string) (int, error)
}

// MessageStore persists canonical messages keyed by slug.
type MessageStore interface {
	// CreateIfAbsent writes the message iff its ID is unused, returning
	// ErrAlreadyExists otherwise. Atomic per key.
	CreateIfAbsent(ctx context.Context, msg domain.Message) error

	// Update applies a partial field set to an existing message.
	Update(ctx context.Context, id string, fields map[string]any) error

	// ExistsForSource reports whether a message was already created for the
	// (sourceType, url, datePublished) natural key.
	ExistsForSource(ctx context.Context, sourceType, url string, datePublished time.Time) (bool, error)

	// ExistsForContentHash is the dedup fallback for documents without a
	// stable natural key.
	ExistsForContentHash(ctx context.Context, hash string) (bool, error)
}

// InterestStore reads user zones. Interests are owned by the user-facing
// app; the pipeline never writes them.
type InterestStore interface {
	// ListByLocality returns every interest within a locality in creation
	// order, so match processing order is deterministic within one run.
	ListByLocality(ctx context.Context, locality string) ([]domain.Interest, error)
}

// DeviceStore reads a user's registered push targets.
type DeviceStore interface {
	ListByUser(ctx context.Context, userID string) ([]domain.Device, error)
}

// MatchStore persists notification matches.
type MatchStore interface {
	// CreateIfAbsent records a match iff none exists for the same
	// (interestId, messageId) pair, returning ErrAlreadyExists otherwise.
	// Atomic per pair.
	CreateIfAbsent(ctx context.Context, match domain.NotificationMatch) error

	// RecordDelivery appends per-device outcomes and sets the notified flag.
	// Never clears notifiedAt on an existing match.
	RecordDelivery(ctx context.Context, matchID string, outcomes []domain.DeviceNotification, notified bool) error
}
