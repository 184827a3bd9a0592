package domain

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"
)

// TimeSpan is a validity window attached to a pin or street closure.
// End may be zero for open-ended spans.
type TimeSpan struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end,omitempty"`
}

// Pin is a denormalized point of interest within a message: one address plus
// the time spans during which the notice applies there.
type Pin struct {
	Address string     `json:"address"`
	Spans   []TimeSpan `json:"spans,omitempty"`
}

// Street is a denormalized street segment affected by a notice.
type Street struct {
	Name  string     `json:"name"`
	From  string     `json:"from,omitempty"`
	To    string     `json:"to,omitempty"`
	Spans []TimeSpan `json:"spans,omitempty"`
}

// SourceDocument is one crawl result, immutable once written. It is consumed
// exactly once by the ingestor; re-runs are deduplicated downstream.
type SourceDocument struct {
	ID            string             `json:"id"`
	URL           string             `json:"url"`
	DeepLinkURL   string             `json:"deepLinkUrl,omitempty"`
	DatePublished time.Time          `json:"datePublished"`
	Title         string             `json:"title"`
	Message       string             `json:"message"`
	MarkdownText  string             `json:"markdownText,omitempty"`
	SourceType    string             `json:"sourceType"`
	CrawledAt     time.Time          `json:"crawledAt"`
	Locality      string             `json:"locality"`
	TimespanStart time.Time          `json:"timespanStart,omitempty"`
	TimespanEnd   time.Time          `json:"timespanEnd,omitempty"`
	GeoJSON       *FeatureCollection `json:"geoJson,omitempty"`
	Pins          []Pin              `json:"pins,omitempty"`
	Streets       []Street           `json:"streets,omitempty"`
	Categories    []Category         `json:"categories,omitempty"`
	IsRelevant    bool               `json:"isRelevant"`

	// Ingested marks the document as consumed; set by the ingestor after the
	// corresponding Message is persisted.
	Ingested  bool   `json:"ingested"`
	MessageID string `json:"messageId,omitempty"`
}

// SourceDocumentRef identifies a source document in batch outcomes.
type SourceDocumentRef struct {
	SourceType string `json:"sourceType"`
	URL        string `json:"url"`
	ID         string `json:"id,omitempty"`
}

// Ref returns a reference suitable for failure reporting.
func (d SourceDocument) Ref() SourceDocumentRef {
	return SourceDocumentRef{SourceType: d.SourceType, URL: d.URL, ID: d.ID}
}

// Text returns the document body, preferring pre-rendered markdown.
func (d SourceDocument) Text() string {
	if d.MarkdownText != "" {
		return d.MarkdownText
	}
	return d.Message
}

// HasNaturalKey reports whether the document carries a stable
// (sourceType, url, datePublished) identity for dedup purposes.
func (d SourceDocument) HasNaturalKey() bool {
	return d.SourceType != "" && d.URL != "" && !d.DatePublished.IsZero()
}

// ContentHash is the dedup fallback for documents without a natural key:
// a SHA-256 over normalized title, body, and locality. Reprocessing the same
// crawl output yields the same hash.
func (d SourceDocument) ContentHash() string {
	normalize := func(s string) string {
		return strings.Join(strings.Fields(strings.ToLower(s)), " ")
	}
	h := sha256.New()
	h.Write([]byte(d.SourceType))
	h.Write([]byte{0})
	h.Write([]byte(normalize(d.Title)))
	h.Write([]byte{0})
	h.Write([]byte(normalize(d.Text())))
	h.Write([]byte{0})
	h.Write([]byte(normalize(d.Locality)))
	return hex.EncodeToString(h.Sum(nil))
}

// Message is the canonical, persisted civic notice. Its ID is an 8-character
// base62 slug that doubles as storage key and URL path segment.
type Message struct {
	ID                string             `json:"id"`
	Text              string             `json:"text"`
	MarkdownText      string             `json:"markdownText,omitempty"`
	GeoJSON           *FeatureCollection `json:"geoJson,omitempty"`
	Addresses         []string           `json:"addresses,omitempty"`
	Pins              []Pin              `json:"pins,omitempty"`
	Streets           []Street           `json:"streets,omitempty"`
	Categories        []Category         `json:"categories"`
	ResponsibleEntity string             `json:"responsibleEntity,omitempty"`
	Source            string             `json:"source"`
	SourceURL         string             `json:"sourceUrl,omitempty"`
	ContentHash       string             `json:"contentHash,omitempty"`
	Locality          string             `json:"locality"`
	CityWide          bool               `json:"cityWide"`
	CreatedAt         time.Time          `json:"createdAt"`
	CrawledAt         time.Time          `json:"crawledAt"`
	DatePublished     time.Time          `json:"datePublished,omitempty"`
	FinalizedAt       time.Time          `json:"finalizedAt,omitempty"`
	TimespanStart     time.Time          `json:"timespanStart,omitempty"`
	TimespanEnd       time.Time          `json:"timespanEnd,omitempty"`
}

// Interest is a user's watched zone: a center point and a radius in meters.
// Read-only to the pipeline; created and deleted by the user-facing app.
type Interest struct {
	ID          string    `json:"id"`
	UserID      string    `json:"userId"`
	Coordinates LatLng    `json:"coordinates"`
	RadiusM     float64   `json:"radius"`
	Label       string    `json:"label,omitempty"`
	Color       string    `json:"color,omitempty"`
	Locality    string    `json:"locality"`
	CreatedAt   time.Time `json:"createdAt"`
}

// Device is one push-notification target registered by a user.
type Device struct {
	ID     string `json:"id"`
	UserID string `json:"userId"`
	Token  string `json:"token"`
}

// DeviceNotification is the delivery outcome for one device.
type DeviceNotification struct {
	DeviceID    string    `json:"deviceId"`
	Delivered   bool      `json:"delivered"`
	Error       string    `json:"error,omitempty"`
	AttemptedAt time.Time `json:"attemptedAt"`
}

// NotificationMatch records that one Interest must be (or was) told about one
// Message. At most one exists per (interestId, messageId) pair; the matcher
// treats a second match attempt for the same pair as a no-op.
type NotificationMatch struct {
	ID                  string               `json:"id"`
	UserID              string               `json:"userId"`
	InterestID          string               `json:"interestId"`
	MessageID           string               `json:"messageId"`
	DistanceM           float64              `json:"distance"`
	NotifiedAt          time.Time            `json:"notifiedAt"`
	DeviceNotifications []DeviceNotification `json:"deviceNotifications,omitempty"`
	Notified            bool                 `json:"notified"`
}
