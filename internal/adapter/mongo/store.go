// Package mongo adapts the document store contract onto MongoDB. Writes that
// must be atomic per key (message slugs, match pairs) use inserts against
// unique indexes; bulk writes are batched to stay within store limits.
package mongo

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	mongodb "go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/storage"
)

const (
	collSources   = "sources"
	collMessages  = "messages"
	collInterests = "interests"
	collDevices   = "devices"
	collMatches   = "notificationMatches"

	// writeBatchSize bounds one bulk commit, mirroring the store's native
	// batch limits and keeping memory flat on large crawls.
	writeBatchSize = 500
)

// Store holds the single per-process database handle. Created once at
// startup, closed by the orchestrating command on shutdown, never
// re-initialized mid-batch. Collection-scoped accessors expose the
// storage interfaces.
type Store struct {
	client *mongodb.Client
	db     *mongodb.Database
	logger *slog.Logger
}

// Open connects, pings, and ensures indexes.
func Open(ctx context.Context, uri, database string, logger *slog.Logger) (*Store, error) {
	client, err := mongodb.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	s := &Store{client: client, db: client.Database(database), logger: logger}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

// Close releases the client connection.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// Sources returns the source-document collection adapter.
func (s *Store) Sources() *SourceStore { return &SourceStore{s} }

// Messages returns the message collection adapter.
func (s *Store) Messages() *MessageStore { return &MessageStore{s} }

// Interests returns the interest collection adapter.
func (s *Store) Interests() *InterestStore { return &InterestStore{s} }

// Devices returns the device collection adapter.
func (s *Store) Devices() *DeviceStore { return &DeviceStore{s} }

// Matches returns the notification-match collection adapter.
func (s *Store) Matches() *MatchStore { return &MatchStore{s} }

func (s *Store) ensureIndexes(ctx context.Context) error {
	// The unique pair index is what makes match creation idempotent.
	matchIdx := mongodb.IndexModel{
		Keys:    bson.D{{Key: "interestId", Value: 1}, {Key: "messageId", Value: 1}},
		Options: options.Index().SetUnique(true),
	}
	if _, err := s.db.Collection(collMatches).Indexes().CreateOne(ctx, matchIdx); err != nil {
		return fmt.Errorf("create match index: %w", err)
	}

	messageIdx := []mongodb.IndexModel{
		{Keys: bson.D{{Key: "source", Value: 1}, {Key: "sourceUrl", Value: 1}, {Key: "datePublished", Value: 1}}},
		{Keys: bson.D{{Key: "contentHash", Value: 1}}},
	}
	if _, err := s.db.Collection(collMessages).Indexes().CreateMany(ctx, messageIdx); err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}

	sourceIdx := mongodb.IndexModel{
		Keys: bson.D{{Key: "ingested", Value: 1}, {Key: "crawledAt", Value: 1}},
	}
	if _, err := s.db.Collection(collSources).Indexes().CreateOne(ctx, sourceIdx); err != nil {
		return fmt.Errorf("create source index: %w", err)
	}

	interestIdx := mongodb.IndexModel{
		Keys: bson.D{{Key: "locality", Value: 1}, {Key: "createdAt", Value: 1}},
	}
	if _, err := s.db.Collection(collInterests).Indexes().CreateOne(ctx, interestIdx); err != nil {
		return fmt.Errorf("create interest index: %w", err)
	}
	return nil
}

func (s *Store) exists(ctx context.Context, coll string, filter bson.M) (bool, error) {
	n, err := s.db.Collection(coll).CountDocuments(ctx, filter, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("count %s: %w", coll, err)
	}
	return n > 0, nil
}

// SourceStore persists raw crawl output.
type SourceStore struct{ s *Store }

var _ storage.SourceStore = (*SourceStore)(nil)

// SaveBatch upserts crawled documents keyed by their dedup identity using
// $setOnInsert, so re-crawling the same document never clears its ingested
// flag. Writes go out in bounded bulk batches.
func (c *SourceStore) SaveBatch(ctx context.Context, docs []domain.SourceDocument) error {
	if len(docs) == 0 {
		return nil
	}

	models := make([]mongodb.WriteModel, 0, len(docs))
	for _, d := range docs {
		if d.ID == "" {
			d.ID = sourceDocID(d)
		}
		encoded, err := encodeSourceDocument(d)
		if err != nil {
			return err
		}
		models = append(models, mongodb.NewUpdateOneModel().
			SetFilter(bson.M{"_id": encoded.ID}).
			SetUpdate(bson.M{"$setOnInsert": encoded}).
			SetUpsert(true))
	}

	for start := 0; start < len(models); start += writeBatchSize {
		end := min(start+writeBatchSize, len(models))
		if _, err := c.s.db.Collection(collSources).BulkWrite(ctx, models[start:end]); err != nil {
			return fmt.Errorf("bulk write sources: %w", err)
		}
	}
	return nil
}

func (c *SourceStore) ListUnprocessed(ctx context.Context, limit int) ([]domain.SourceDocument, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "crawledAt", Value: 1}}).
		SetLimit(int64(limit))

	cursor, err := c.s.db.Collection(collSources).Find(ctx, bson.M{"ingested": false}, opts)
	if err != nil {
		return nil, fmt.Errorf("find unprocessed sources: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.SourceDocument
	for cursor.Next(ctx) {
		var doc sourceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode source: %w", err)
		}
		decoded, err := decodeSourceDocument(doc)
		if err != nil {
			// A document the adapter cannot decode must not wedge the batch.
			c.s.logger.Warn("skipping undecodable source document", "doc_id", doc.ID, "error", err)
			continue
		}
		out = append(out, decoded)
	}
	return out, cursor.Err()
}

func (c *SourceStore) MarkIngested(ctx context.Context, docID, messageID string) error {
	update := bson.M{"$set": bson.M{"ingested": true}}
	if messageID != "" {
		update = bson.M{"$set": bson.M{"ingested": true, "messageId": messageID}}
	}
	res, err := c.s.db.Collection(collSources).UpdateByID(ctx, docID, update)
	if err != nil {
		return fmt.Errorf("mark ingested: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *SourceStore) CountUnprocessed(ctx context.Context) (map[string]int, error) {
	pipeline := mongodb.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "ingested", Value: false}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$sourceType"},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
	}
	cursor, err := c.s.db.Collection(collSources).Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("count unprocessed: %w", err)
	}
	defer cursor.Close(ctx)

	out := make(map[string]int)
	for cursor.Next(ctx) {
		var row struct {
			SourceType string `bson:"_id"`
			Count      int    `bson:"count"`
		}
		if err := cursor.Decode(&row); err != nil {
			return nil, fmt.Errorf("decode count row: %w", err)
		}
		out[row.SourceType] = row.Count
	}
	return out, cursor.Err()
}

func (c *SourceStore) DeleteUnprocessed(ctx context.Context, keepSource string) (int, error) {
	filter := bson.M{
		"ingested":   false,
		"sourceType": bson.M{"$ne": keepSource},
	}
	res, err := c.s.db.Collection(collSources).DeleteMany(ctx, filter)
	if err != nil {
		return 0, fmt.Errorf("delete unprocessed: %w", err)
	}
	return int(res.DeletedCount), nil
}

// MessageStore persists canonical messages keyed by slug.
type MessageStore struct{ s *Store }

var _ storage.MessageStore = (*MessageStore)(nil)

func (c *MessageStore) CreateIfAbsent(ctx context.Context, msg domain.Message) error {
	encoded, err := encodeMessage(msg)
	if err != nil {
		return err
	}
	if _, err := c.s.db.Collection(collMessages).InsertOne(ctx, encoded); err != nil {
		if mongodb.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (c *MessageStore) Update(ctx context.Context, id string, fields map[string]any) error {
	res, err := c.s.db.Collection(collMessages).UpdateByID(ctx, id, bson.M{"$set": fields})
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

func (c *MessageStore) ExistsForSource(ctx context.Context, sourceType, url string, datePublished time.Time) (bool, error) {
	filter := bson.M{"source": sourceType, "sourceUrl": url, "datePublished": datePublished}
	return c.s.exists(ctx, collMessages, filter)
}

func (c *MessageStore) ExistsForContentHash(ctx context.Context, hash string) (bool, error) {
	return c.s.exists(ctx, collMessages, bson.M{"contentHash": hash})
}

// InterestStore reads user zones.
type InterestStore struct{ s *Store }

var _ storage.InterestStore = (*InterestStore)(nil)

func (c *InterestStore) ListByLocality(ctx context.Context, locality string) ([]domain.Interest, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := c.s.db.Collection(collInterests).Find(ctx, bson.M{"locality": locality}, opts)
	if err != nil {
		return nil, fmt.Errorf("find interests: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Interest
	for cursor.Next(ctx) {
		var doc interestDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode interest: %w", err)
		}
		out = append(out, decodeInterest(doc))
	}
	return out, cursor.Err()
}

// DeviceStore reads a user's registered push targets.
type DeviceStore struct{ s *Store }

var _ storage.DeviceStore = (*DeviceStore)(nil)

func (c *DeviceStore) ListByUser(ctx context.Context, userID string) ([]domain.Device, error) {
	cursor, err := c.s.db.Collection(collDevices).Find(ctx, bson.M{"userId": userID})
	if err != nil {
		return nil, fmt.Errorf("find devices: %w", err)
	}
	defer cursor.Close(ctx)

	var out []domain.Device
	for cursor.Next(ctx) {
		var doc deviceDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode device: %w", err)
		}
		out = append(out, domain.Device{ID: doc.ID, UserID: doc.UserID, Token: doc.Token})
	}
	return out, cursor.Err()
}

// MatchStore persists notification matches.
type MatchStore struct{ s *Store }

var _ storage.MatchStore = (*MatchStore)(nil)

// CreateIfAbsent relies on the unique (interestId, messageId) index: a
// duplicate insert maps to ErrAlreadyExists and the caller skips the pair.
func (c *MatchStore) CreateIfAbsent(ctx context.Context, match domain.NotificationMatch) error {
	encoded, err := encodeMatch(match)
	if err != nil {
		return err
	}
	if _, err := c.s.db.Collection(collMatches).InsertOne(ctx, encoded); err != nil {
		if mongodb.IsDuplicateKeyError(err) {
			return storage.ErrAlreadyExists
		}
		return fmt.Errorf("insert match: %w", err)
	}
	return nil
}

func (c *MatchStore) RecordDelivery(ctx context.Context, matchID string, outcomes []domain.DeviceNotification, notified bool) error {
	encoded, err := encodeJSONSlice(outcomes)
	if err != nil {
		return fmt.Errorf("encode deviceNotifications: %w", err)
	}
	update := bson.M{"$set": bson.M{
		"deviceNotifications": encoded,
		"notified":            notified,
	}}
	res, err := c.s.db.Collection(collMatches).UpdateByID(ctx, matchID, update)
	if err != nil {
		return fmt.Errorf("record delivery: %w", err)
	}
	if res.MatchedCount == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// sourceDocID derives a stable document key for crawlers that do not assign
// their own: the natural key when present, the content hash otherwise.
func sourceDocID(d domain.SourceDocument) string {
	if d.HasNaturalKey() {
		h := sha256.Sum256([]byte(d.SourceType + "|" + d.URL + "|" + d.DatePublished.UTC().Format(time.RFC3339)))
		return hex.EncodeToString(h[:12])
	}
	return d.ContentHash()[:24]
}
