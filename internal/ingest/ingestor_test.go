package ingest_test

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/ingest"
	"github.com/vbuch/oboapp-sub005/internal/observability"
	"github.com/vbuch/oboapp-sub005/internal/storage"
)

// --- fakes ---

type fakeSourceStore struct {
	marked  map[string]string // docID -> messageID
	markErr error
}

func newFakeSourceStore() *fakeSourceStore {
	return &fakeSourceStore{marked: map[string]string{}}
}

func (f *fakeSourceStore) SaveBatch(_ context.Context, _ []domain.SourceDocument) error {
	return nil
}

func (f *fakeSourceStore) ListUnprocessed(_ context.Context, _ int) ([]domain.SourceDocument, error) {
	return nil, nil
}

func (f *fakeSourceStore) MarkIngested(_ context.Context, docID, messageID string) error {
	if f.markErr != nil {
		return f.markErr
	}
	f.marked[docID] = messageID
	return nil
}

func (f *fakeSourceStore) CountUnprocessed(_ context.Context) (map[string]int, error) {
	return nil, nil
}

func (f *fakeSourceStore) DeleteUnprocessed(_ context.Context, _ string) (int, error) {
	return 0, nil
}

type naturalKey struct {
	source string
	url    string
	date   time.Time
}

type fakeMessageStore struct {
	messages map[string]domain.Message
	byKey    map[naturalKey]string
	byHash   map[string]string

	// collisions makes the first N CreateIfAbsent calls fail as duplicates.
	collisions int
	// transientFailures makes the first N CreateIfAbsent calls fail with a
	// generic storage error.
	transientFailures int
	createCalls       int
}

func newFakeMessageStore() *fakeMessageStore {
	return &fakeMessageStore{
		messages: map[string]domain.Message{},
		byKey:    map[naturalKey]string{},
		byHash:   map[string]string{},
	}
}

func (f *fakeMessageStore) CreateIfAbsent(_ context.Context, msg domain.Message) error {
	f.createCalls++
	if f.transientFailures > 0 {
		f.transientFailures--
		return errors.New("store unavailable")
	}
	if f.collisions > 0 {
		f.collisions--
		return storage.ErrAlreadyExists
	}
	if _, exists := f.messages[msg.ID]; exists {
		return storage.ErrAlreadyExists
	}
	f.messages[msg.ID] = msg
	if msg.ContentHash != "" {
		f.byHash[msg.ContentHash] = msg.ID
	} else {
		f.byKey[naturalKey{msg.Source, msg.SourceURL, msg.DatePublished}] = msg.ID
	}
	return nil
}

func (f *fakeMessageStore) Update(_ context.Context, id string, _ map[string]any) error {
	if _, ok := f.messages[id]; !ok {
		return storage.ErrNotFound
	}
	return nil
}

func (f *fakeMessageStore) ExistsForSource(_ context.Context, sourceType, url string, datePublished time.Time) (bool, error) {
	_, ok := f.byKey[naturalKey{sourceType, url, datePublished}]
	return ok, nil
}

func (f *fakeMessageStore) ExistsForContentHash(_ context.Context, hash string) (bool, error) {
	_, ok := f.byHash[hash]
	return ok, nil
}

type fakeGeocoder struct {
	addresses map[domain.LatLng]string
}

func (f *fakeGeocoder) ReverseGeocode(_ context.Context, c domain.LatLng) (domain.Address, error) {
	return domain.Address{Formatted: f.addresses[c]}, nil
}

// --- helpers ---

func newIngestor(sources storage.SourceStore, messages storage.MessageStore, geocoder domain.Geocoder) *ingest.Ingestor {
	return ingest.New(
		sources,
		messages,
		domain.DefaultClassifier(),
		geocoder,
		"sofia",
		slog.Default(),
		observability.NewMetricsForTesting(),
	)
}

func validDoc(id string) domain.SourceDocument {
	return domain.SourceDocument{
		ID:            id,
		URL:           "https://example.org/notices/" + id,
		DatePublished: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Title:         "Спиране на водата в кв. Лозенец",
		Message:       "Поради авария на водопровода се преустановява водоподаването.",
		SourceType:    "sofiyska-voda",
		CrawledAt:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Locality:      "sofia",
		IsRelevant:    true,
		GeoJSON: domain.NewFeatureCollection(domain.Feature{
			Type:     "Feature",
			Geometry: domain.PointGeometry(domain.LatLng{Lat: 42.7013091, Lng: 23.3219104}),
		}),
	}
}

// --- tests ---

func TestIngest_CreatesMessage(t *testing.T) {
	fakeClock := clockwork.NewFakeClockAt(time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC))
	domain.SetClock(fakeClock)
	defer domain.SetClock(nil)

	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{validDoc("doc-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 0, result.Skipped)
	assert.Empty(t, result.Failed)
	require.Len(t, result.CreatedMessages, 1)

	msg := result.CreatedMessages[0]
	assert.True(t, domain.IsValidSlug(msg.ID))
	assert.Contains(t, msg.Categories, domain.CategoryWater)
	assert.False(t, msg.CityWide)
	assert.Equal(t, "sofiyska-voda", msg.Source)
	assert.Equal(t, "sofia", msg.Locality)
	assert.Equal(t, fakeClock.Now(), msg.CreatedAt)

	// Coordinates were normalized before persistence.
	pos, err := msg.GeoJSON.Features[0].Geometry.Positions()
	require.NoError(t, err)
	assert.Equal(t, domain.LatLng{Lat: 42.701309, Lng: 23.32191}, pos[0])

	assert.Equal(t, msg.ID, sources.marked["doc-1"])
}

func TestIngest_ValidationFailure(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	doc := validDoc("doc-1")
	doc.Title = ""

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Failed, 1)
	assert.Equal(t, doc.Ref(), result.Failed[0].Ref)
	assert.Contains(t, result.Failed[0].Reason, "validation")
	assert.Empty(t, sources.marked)
}

func TestIngest_ReRunIsIdempotent(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	batch := []domain.SourceDocument{validDoc("doc-1"), validDoc("doc-2")}
	batch[1].URL = "https://example.org/notices/doc-2"

	first, err := in.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 2, first.Created)

	// Same batch again, e.g. after a crash before the ingested flags stuck.
	second, err := in.Ingest(context.Background(), batch)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 2, second.Skipped)
	assert.Len(t, messages.messages, 2)
}

func TestIngest_SkipsFlaggedAndIrrelevant(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	flagged := validDoc("doc-1")
	flagged.Ingested = true
	irrelevant := validDoc("doc-2")
	irrelevant.IsRelevant = false

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{flagged, irrelevant})
	require.NoError(t, err)
	assert.Equal(t, 0, result.Created)
	assert.Equal(t, 2, result.Skipped)
	assert.Empty(t, messages.messages)
}

func TestIngest_ContentHashDedup(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	doc := validDoc("doc-1")
	doc.URL = "" // no stable natural key

	first, err := in.Ingest(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)
	assert.Equal(t, doc.ContentHash(), first.CreatedMessages[0].ContentHash)

	second, err := in.Ingest(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 1, second.Skipped)
}

func TestIngest_SlugCollisionRetries(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	messages.collisions = 2
	in := newIngestor(sources, messages, nil)

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{validDoc("doc-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 3, messages.createCalls)
}

func TestIngest_SlugSpaceExhaustedFailsLoudly(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	messages.collisions = 100 // every draw collides
	in := newIngestor(sources, messages, nil)

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{validDoc("doc-1")})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Reason, "slug space exhausted")
}

func TestIngest_TransientStorageErrorIsRetried(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	messages.transientFailures = 1
	in := newIngestor(sources, messages, nil)

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{validDoc("doc-1")})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Equal(t, 2, messages.createCalls)
}

func TestIngest_TransientStorageErrorExhaustsRetries(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	messages.transientFailures = 100
	in := newIngestor(sources, messages, nil)

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{validDoc("doc-1")})
	require.NoError(t, err)

	assert.Equal(t, 0, result.Created)
	require.Len(t, result.Failed, 1)
	assert.Contains(t, result.Failed[0].Reason, "store unavailable")
}

func TestIngest_CityWideWithoutGeometry(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	doc := validDoc("doc-1")
	doc.GeoJSON = nil

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)
	require.Len(t, result.CreatedMessages, 1)
	assert.True(t, result.CreatedMessages[0].CityWide)
}

func TestIngest_GeocoderFillsAddresses(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	geocoder := &fakeGeocoder{addresses: map[domain.LatLng]string{
		{Lat: 42.701309, Lng: 23.32191}: "ул. Цар Иван Асен II 12, София",
	}}
	in := newIngestor(sources, messages, geocoder)

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{validDoc("doc-1")})
	require.NoError(t, err)
	require.Len(t, result.CreatedMessages, 1)
	assert.Equal(t, []string{"ул. Цар Иван Асен II 12, София"}, result.CreatedMessages[0].Addresses)
}

func TestIngest_PinAddressesWinOverGeocoder(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	geocoder := &fakeGeocoder{addresses: map[domain.LatLng]string{}}
	in := newIngestor(sources, messages, geocoder)

	doc := validDoc("doc-1")
	doc.Pins = []domain.Pin{
		{Address: "бул. Витоша 1"},
		{Address: "бул. Витоша 1"}, // duplicate collapses
		{Address: "ул. Граф Игнатиев 5"},
	}

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{doc})
	require.NoError(t, err)
	require.Len(t, result.CreatedMessages, 1)
	assert.Equal(t, []string{"бул. Витоша 1", "ул. Граф Игнатиев 5"}, result.CreatedMessages[0].Addresses)
}

func TestIngest_FailureDoesNotAbortBatch(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	bad := validDoc("doc-1")
	bad.Message = ""
	good := validDoc("doc-2")
	good.URL = "https://example.org/notices/doc-2"

	result, err := in.Ingest(context.Background(), []domain.SourceDocument{bad, good})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Created)
	assert.Len(t, result.Failed, 1)
}

func TestIngest_ContextCancellation(t *testing.T) {
	sources := newFakeSourceStore()
	messages := newFakeMessageStore()
	in := newIngestor(sources, messages, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := in.Ingest(ctx, []domain.SourceDocument{validDoc("doc-1")})
	assert.ErrorIs(t, err, context.Canceled)
}
