package mongo

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/vbuch/oboapp-sub005/internal/domain"
)

// The adapter owns encoding: geometry and the nested pin/street structures
// are serialized as JSON text fields so the store never needs to understand
// them, and they round-trip without loss. The pipeline only ever sees the
// structured domain types.

type sourceDoc struct {
	ID            string    `bson:"_id"`
	URL           string    `bson:"url"`
	DeepLinkURL   string    `bson:"deepLinkUrl,omitempty"`
	DatePublished time.Time `bson:"datePublished"`
	Title         string    `bson:"title"`
	Message       string    `bson:"message"`
	MarkdownText  string    `bson:"markdownText,omitempty"`
	SourceType    string    `bson:"sourceType"`
	CrawledAt     time.Time `bson:"crawledAt"`
	Locality      string    `bson:"locality"`
	TimespanStart time.Time `bson:"timespanStart,omitempty"`
	TimespanEnd   time.Time `bson:"timespanEnd,omitempty"`
	GeoJSON       string    `bson:"geoJson,omitempty"`
	Pins          string    `bson:"pins,omitempty"`
	Streets       string    `bson:"streets,omitempty"`
	Categories    []string  `bson:"categories,omitempty"`
	IsRelevant    bool      `bson:"isRelevant"`
	Ingested      bool      `bson:"ingested"`
	MessageID     string    `bson:"messageId,omitempty"`
}

type messageDoc struct {
	ID                string    `bson:"_id"`
	Text              string    `bson:"text"`
	MarkdownText      string    `bson:"markdownText,omitempty"`
	GeoJSON           string    `bson:"geoJson,omitempty"`
	Addresses         []string  `bson:"addresses,omitempty"`
	Pins              string    `bson:"pins,omitempty"`
	Streets           string    `bson:"streets,omitempty"`
	Categories        []string  `bson:"categories"`
	ResponsibleEntity string    `bson:"responsibleEntity,omitempty"`
	Source            string    `bson:"source"`
	SourceURL         string    `bson:"sourceUrl,omitempty"`
	ContentHash       string    `bson:"contentHash,omitempty"`
	Locality          string    `bson:"locality"`
	CityWide          bool      `bson:"cityWide"`
	CreatedAt         time.Time `bson:"createdAt"`
	CrawledAt         time.Time `bson:"crawledAt"`
	DatePublished     time.Time `bson:"datePublished,omitempty"`
	FinalizedAt       time.Time `bson:"finalizedAt,omitempty"`
	TimespanStart     time.Time `bson:"timespanStart,omitempty"`
	TimespanEnd       time.Time `bson:"timespanEnd,omitempty"`
}

type interestDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Lat       float64   `bson:"lat"`
	Lng       float64   `bson:"lng"`
	RadiusM   float64   `bson:"radius"`
	Label     string    `bson:"label,omitempty"`
	Color     string    `bson:"color,omitempty"`
	Locality  string    `bson:"locality"`
	CreatedAt time.Time `bson:"createdAt"`
}

type deviceDoc struct {
	ID     string `bson:"_id"`
	UserID string `bson:"userId"`
	Token  string `bson:"token"`
}

type matchDoc struct {
	ID                  string    `bson:"_id"`
	UserID              string    `bson:"userId"`
	InterestID          string    `bson:"interestId"`
	MessageID           string    `bson:"messageId"`
	DistanceM           float64   `bson:"distance"`
	NotifiedAt          time.Time `bson:"notifiedAt"`
	DeviceNotifications string    `bson:"deviceNotifications,omitempty"`
	Notified            bool      `bson:"notified"`
}

func encodeSourceDocument(d domain.SourceDocument) (sourceDoc, error) {
	geo, err := encodeJSONField(d.GeoJSON)
	if err != nil {
		return sourceDoc{}, fmt.Errorf("encode geoJson: %w", err)
	}
	pins, err := encodeJSONSlice(d.Pins)
	if err != nil {
		return sourceDoc{}, fmt.Errorf("encode pins: %w", err)
	}
	streets, err := encodeJSONSlice(d.Streets)
	if err != nil {
		return sourceDoc{}, fmt.Errorf("encode streets: %w", err)
	}

	return sourceDoc{
		ID:            d.ID,
		URL:           d.URL,
		DeepLinkURL:   d.DeepLinkURL,
		DatePublished: d.DatePublished,
		Title:         d.Title,
		Message:       d.Message,
		MarkdownText:  d.MarkdownText,
		SourceType:    d.SourceType,
		CrawledAt:     d.CrawledAt,
		Locality:      d.Locality,
		TimespanStart: d.TimespanStart,
		TimespanEnd:   d.TimespanEnd,
		GeoJSON:       geo,
		Pins:          pins,
		Streets:       streets,
		Categories:    categoriesToStrings(d.Categories),
		IsRelevant:    d.IsRelevant,
		Ingested:      d.Ingested,
		MessageID:     d.MessageID,
	}, nil
}

func decodeSourceDocument(doc sourceDoc) (domain.SourceDocument, error) {
	out := domain.SourceDocument{
		ID:            doc.ID,
		URL:           doc.URL,
		DeepLinkURL:   doc.DeepLinkURL,
		DatePublished: doc.DatePublished,
		Title:         doc.Title,
		Message:       doc.Message,
		MarkdownText:  doc.MarkdownText,
		SourceType:    doc.SourceType,
		CrawledAt:     doc.CrawledAt,
		Locality:      doc.Locality,
		TimespanStart: doc.TimespanStart,
		TimespanEnd:   doc.TimespanEnd,
		Categories:    stringsToCategories(doc.Categories),
		IsRelevant:    doc.IsRelevant,
		Ingested:      doc.Ingested,
		MessageID:     doc.MessageID,
	}

	if err := decodeJSONField(doc.GeoJSON, &out.GeoJSON); err != nil {
		return domain.SourceDocument{}, fmt.Errorf("decode geoJson: %w", err)
	}
	if err := decodeJSONField(doc.Pins, &out.Pins); err != nil {
		return domain.SourceDocument{}, fmt.Errorf("decode pins: %w", err)
	}
	if err := decodeJSONField(doc.Streets, &out.Streets); err != nil {
		return domain.SourceDocument{}, fmt.Errorf("decode streets: %w", err)
	}
	return out, nil
}

func encodeMessage(m domain.Message) (messageDoc, error) {
	geo, err := encodeJSONField(m.GeoJSON)
	if err != nil {
		return messageDoc{}, fmt.Errorf("encode geoJson: %w", err)
	}
	pins, err := encodeJSONSlice(m.Pins)
	if err != nil {
		return messageDoc{}, fmt.Errorf("encode pins: %w", err)
	}
	streets, err := encodeJSONSlice(m.Streets)
	if err != nil {
		return messageDoc{}, fmt.Errorf("encode streets: %w", err)
	}

	return messageDoc{
		ID:                m.ID,
		Text:              m.Text,
		MarkdownText:      m.MarkdownText,
		GeoJSON:           geo,
		Addresses:         m.Addresses,
		Pins:              pins,
		Streets:           streets,
		Categories:        categoriesToStrings(m.Categories),
		ResponsibleEntity: m.ResponsibleEntity,
		Source:            m.Source,
		SourceURL:         m.SourceURL,
		ContentHash:       m.ContentHash,
		Locality:          m.Locality,
		CityWide:          m.CityWide,
		CreatedAt:         m.CreatedAt,
		CrawledAt:         m.CrawledAt,
		DatePublished:     m.DatePublished,
		FinalizedAt:       m.FinalizedAt,
		TimespanStart:     m.TimespanStart,
		TimespanEnd:       m.TimespanEnd,
	}, nil
}

func decodeMessage(doc messageDoc) (domain.Message, error) {
	out := domain.Message{
		ID:                doc.ID,
		Text:              doc.Text,
		MarkdownText:      doc.MarkdownText,
		Addresses:         doc.Addresses,
		Categories:        stringsToCategories(doc.Categories),
		ResponsibleEntity: doc.ResponsibleEntity,
		Source:            doc.Source,
		SourceURL:         doc.SourceURL,
		ContentHash:       doc.ContentHash,
		Locality:          doc.Locality,
		CityWide:          doc.CityWide,
		CreatedAt:         doc.CreatedAt,
		CrawledAt:         doc.CrawledAt,
		DatePublished:     doc.DatePublished,
		FinalizedAt:       doc.FinalizedAt,
		TimespanStart:     doc.TimespanStart,
		TimespanEnd:       doc.TimespanEnd,
	}

	if err := decodeJSONField(doc.GeoJSON, &out.GeoJSON); err != nil {
		return domain.Message{}, fmt.Errorf("decode geoJson: %w", err)
	}
	if err := decodeJSONField(doc.Pins, &out.Pins); err != nil {
		return domain.Message{}, fmt.Errorf("decode pins: %w", err)
	}
	if err := decodeJSONField(doc.Streets, &out.Streets); err != nil {
		return domain.Message{}, fmt.Errorf("decode streets: %w", err)
	}
	return out, nil
}

func decodeInterest(doc interestDoc) domain.Interest {
	return domain.Interest{
		ID:          doc.ID,
		UserID:      doc.UserID,
		Coordinates: domain.LatLng{Lat: doc.Lat, Lng: doc.Lng},
		RadiusM:     doc.RadiusM,
		Label:       doc.Label,
		Color:       doc.Color,
		Locality:    doc.Locality,
		CreatedAt:   doc.CreatedAt,
	}
}

func encodeMatch(m domain.NotificationMatch) (matchDoc, error) {
	outcomes, err := encodeJSONSlice(m.DeviceNotifications)
	if err != nil {
		return matchDoc{}, fmt.Errorf("encode deviceNotifications: %w", err)
	}
	return matchDoc{
		ID:                  m.ID,
		UserID:              m.UserID,
		InterestID:          m.InterestID,
		MessageID:           m.MessageID,
		DistanceM:           m.DistanceM,
		NotifiedAt:          m.NotifiedAt,
		DeviceNotifications: outcomes,
		Notified:            m.Notified,
	}, nil
}

// encodeJSONField serializes a pointer value to JSON text, empty for nil.
func encodeJSONField(v any) (string, error) {
	if isNil(v) {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// encodeJSONSlice serializes a slice to JSON text, empty for an empty slice.
func encodeJSONSlice[T any](v []T) (string, error) {
	if len(v) == 0 {
		return "", nil
	}
	data, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func decodeJSONField(s string, target any) error {
	if s == "" {
		return nil
	}
	return json.Unmarshal([]byte(s), target)
}

func isNil(v any) bool {
	switch t := v.(type) {
	case *domain.FeatureCollection:
		return t == nil
	default:
		return v == nil
	}
}

func categoriesToStrings(cats []domain.Category) []string {
	if len(cats) == 0 {
		return nil
	}
	out := make([]string, len(cats))
	for i, c := range cats {
		out[i] = string(c)
	}
	return out
}

func stringsToCategories(ss []string) []domain.Category {
	if len(ss) == 0 {
		return nil
	}
	out := make([]domain.Category, len(ss))
	for i, s := range ss {
		out[i] = domain.Category(s)
	}
	return out
}
