package mongo

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbuch/oboapp-sub005/internal/domain"
)

func TestSourceDocumentCodec(t *testing.T) {
	src := domain.SourceDocument{
		ID:            "doc-1",
		URL:           "https://example.org/notices/1",
		DatePublished: time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
		Title:         "Спиране на водата",
		Message:       "Прекъсва се водоподаването в кв. Лозенец.",
		SourceType:    "sofiyska-voda",
		CrawledAt:     time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Locality:      "sofia",
		GeoJSON: domain.NewFeatureCollection(domain.Feature{
			Type:     "Feature",
			Geometry: domain.PointGeometry(domain.LatLng{Lat: 42.684569, Lng: 23.318562}),
		}),
		Pins: []domain.Pin{{Address: "бул. Витоша 1", Spans: []domain.TimeSpan{
			{Start: time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC), End: time.Date(2026, 3, 14, 17, 0, 0, 0, time.UTC)},
		}}},
		Streets:    []domain.Street{{Name: "бул. Витоша", From: "пл. Св. Неделя", To: "бул. Патриарх Евтимий"}},
		Categories: []domain.Category{domain.CategoryWater},
		IsRelevant: true,
	}

	encoded, err := encodeSourceDocument(src)
	require.NoError(t, err)

	// Nested structures travel as JSON text so the store stays schema-blind.
	assert.NotEmpty(t, encoded.GeoJSON)
	assert.NotEmpty(t, encoded.Pins)
	assert.Equal(t, []string{"water"}, encoded.Categories)

	decoded, err := decodeSourceDocument(encoded)
	require.NoError(t, err)

	if diff := cmp.Diff(src, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestSourceDocumentCodec_EmptyOptionalFields(t *testing.T) {
	src := domain.SourceDocument{
		ID:         "doc-1",
		Title:      "t",
		Message:    "m",
		SourceType: "src",
		IsRelevant: true,
	}

	encoded, err := encodeSourceDocument(src)
	require.NoError(t, err)
	assert.Empty(t, encoded.GeoJSON)
	assert.Empty(t, encoded.Pins)
	assert.Empty(t, encoded.Streets)
	assert.Nil(t, encoded.Categories)

	decoded, err := decodeSourceDocument(encoded)
	require.NoError(t, err)
	assert.Nil(t, decoded.GeoJSON)
	assert.Nil(t, decoded.Pins)
}

func TestMessageCodec(t *testing.T) {
	msg := domain.Message{
		ID:   "a1B2c3D4",
		Text: "Прекъсва се водоподаването.",
		GeoJSON: domain.NewFeatureCollection(domain.Feature{
			Type:     "Feature",
			Geometry: domain.PointGeometry(domain.LatLng{Lat: 42.7, Lng: 23.32}),
		}),
		Addresses:         []string{"бул. Витоша 1"},
		Pins:              []domain.Pin{{Address: "бул. Витоша 1"}},
		Streets:           []domain.Street{{Name: "бул. Витоша"}},
		Categories:        []domain.Category{domain.CategoryWater, domain.CategoryRoadBlock},
		ResponsibleEntity: "sofiyska-voda",
		Source:            "sofiyska-voda",
		SourceURL:         "https://example.org/notices/1",
		Locality:          "sofia",
		CreatedAt:         time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		CrawledAt:         time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		DatePublished:     time.Date(2026, 3, 14, 8, 0, 0, 0, time.UTC),
	}

	encoded, err := encodeMessage(msg)
	require.NoError(t, err)
	assert.Equal(t, "a1B2c3D4", encoded.ID)
	assert.Equal(t, []string{"water", "road-block"}, encoded.Categories)

	decoded, err := decodeMessage(encoded)
	require.NoError(t, err)

	if diff := cmp.Diff(msg, decoded); diff != "" {
		t.Errorf("round trip mismatch (-want +got):\n%s", diff)
	}
}

func TestMessageCodec_CityWideWithoutGeometry(t *testing.T) {
	msg := domain.Message{
		ID:         "a1B2c3D4",
		Text:       "Централна дезинфекция на водопроводната мрежа.",
		Categories: []domain.Category{domain.CategoryWater},
		Source:     "sofiyska-voda",
		Locality:   "sofia",
		CityWide:   true,
	}

	encoded, err := encodeMessage(msg)
	require.NoError(t, err)
	assert.True(t, encoded.CityWide)
	assert.Empty(t, encoded.GeoJSON)

	decoded, err := decodeMessage(encoded)
	require.NoError(t, err)
	assert.True(t, decoded.CityWide)
	assert.Nil(t, decoded.GeoJSON)
}

func TestInterestDecode(t *testing.T) {
	decoded := decodeInterest(interestDoc{
		ID:        "int-1",
		UserID:    "user-1",
		Lat:       42.684569,
		Lng:       23.318562,
		RadiusM:   500,
		Locality:  "sofia",
		CreatedAt: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	})

	assert.Equal(t, domain.LatLng{Lat: 42.684569, Lng: 23.318562}, decoded.Coordinates)
	assert.Equal(t, 500.0, decoded.RadiusM)
	assert.Equal(t, "sofia", decoded.Locality)
}

func TestMatchEncode(t *testing.T) {
	match := domain.NotificationMatch{
		ID:         "6f1e9a7e-0000-0000-0000-000000000001",
		UserID:     "user-1",
		InterestID: "int-1",
		MessageID:  "a1B2c3D4",
		DistanceM:  134,
		NotifiedAt: time.Date(2026, 3, 14, 10, 0, 0, 0, time.UTC),
		DeviceNotifications: []domain.DeviceNotification{
			{DeviceID: "dev-1", Delivered: true, AttemptedAt: time.Date(2026, 3, 14, 10, 0, 1, 0, time.UTC)},
		},
		Notified: true,
	}

	encoded, err := encodeMatch(match)
	require.NoError(t, err)

	assert.Equal(t, "int-1", encoded.InterestID)
	assert.Equal(t, "a1B2c3D4", encoded.MessageID)
	assert.Contains(t, encoded.DeviceNotifications, "dev-1")
	assert.True(t, encoded.Notified)
}
