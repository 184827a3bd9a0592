package geocode

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vbuch/oboapp-sub005/internal/domain"
	"github.com/vbuch/oboapp-sub005/internal/observability"
)

type countingGeocoder struct {
	addresses map[domain.LatLng]string
	err       error
	calls     int
}

func (g *countingGeocoder) ReverseGeocode(_ context.Context, c domain.LatLng) (domain.Address, error) {
	g.calls++
	if g.err != nil {
		return domain.Address{}, g.err
	}
	return domain.Address{Formatted: g.addresses[c]}, nil
}

func TestCachedGeocoder_HitAvoidsSecondLookup(t *testing.T) {
	coord := domain.LatLng{Lat: 42.684569, Lng: 23.318562}
	inner := &countingGeocoder{addresses: map[domain.LatLng]string{coord: "бул. България 1"}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	first, err := cached.ReverseGeocode(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, "бул. България 1", first.Formatted)

	second, err := cached.ReverseGeocode(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)
}

func TestCachedGeocoder_EmptyResultNotCached(t *testing.T) {
	coord := domain.LatLng{Lat: 42.684569, Lng: 23.318562}
	inner := &countingGeocoder{addresses: map[domain.LatLng]string{}}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ReverseGeocode(context.Background(), coord)
	require.NoError(t, err)
	_, err = cached.ReverseGeocode(context.Background(), coord)
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestCachedGeocoder_ErrorPassesThrough(t *testing.T) {
	inner := &countingGeocoder{err: errors.New("upstream down")}
	cached := NewCachedGeocoder(inner, 10, observability.NewMetricsForTesting())

	_, err := cached.ReverseGeocode(context.Background(), domain.LatLng{Lat: 1, Lng: 2})
	require.Error(t, err)
}

func TestLRUCache_EvictsLeastRecentlyUsed(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", domain.Address{Formatted: "A"})
	cache.put("b", domain.Address{Formatted: "B"})

	// Touch "a" so "b" becomes the eviction candidate.
	_, ok := cache.get("a")
	require.True(t, ok)

	cache.put("c", domain.Address{Formatted: "C"})

	_, ok = cache.get("b")
	assert.False(t, ok)
	_, ok = cache.get("a")
	assert.True(t, ok)
	_, ok = cache.get("c")
	assert.True(t, ok)
}

func TestLRUCache_PutUpdatesExistingKey(t *testing.T) {
	cache := newLRUCache(2)
	cache.put("a", domain.Address{Formatted: "old"})
	cache.put("a", domain.Address{Formatted: "new"})

	got, ok := cache.get("a")
	require.True(t, ok)
	assert.Equal(t, "new", got.Formatted)
}
