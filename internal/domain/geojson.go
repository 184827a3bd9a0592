package domain

import (
	"encoding/json"
	"fmt"
)

// LatLng is a WGS-84 coordinate pair, latitude first.
type LatLng struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// FeatureCollection is a minimal GeoJSON feature collection. Only the
// geometry shapes sources actually emit are supported: Point, MultiPoint,
// LineString, MultiLineString, Polygon, MultiPolygon, GeometryCollection.
type FeatureCollection struct {
	Type     string    `json:"type"`
	Features []Feature `json:"features"`
}

// Feature is one GeoJSON feature. Properties are carried opaquely so a
// crawler can attach display hints without the pipeline knowing about them.
type Feature struct {
	Type       string          `json:"type"`
	Geometry   *Geometry       `json:"geometry"`
	Properties json.RawMessage `json:"properties,omitempty"`
}

// Geometry holds the type tag plus raw coordinates. Coordinates stay raw
// JSON because their nesting depth depends on the type; Positions decodes
// them on demand.
type Geometry struct {
	Type        string          `json:"type"`
	Coordinates json.RawMessage `json:"coordinates,omitempty"`
	Geometries  []Geometry      `json:"geometries,omitempty"`
}

// NewFeatureCollection wraps features in a collection envelope.
func NewFeatureCollection(features ...Feature) *FeatureCollection {
	return &FeatureCollection{Type: "FeatureCollection", Features: features}
}

// PointGeometry builds a Point geometry from a coordinate.
// GeoJSON positions are [lng, lat].
func PointGeometry(c LatLng) *Geometry {
	coords, _ := json.Marshal([]float64{c.Lng, c.Lat})
	return &Geometry{Type: "Point", Coordinates: coords}
}

// Positions returns every vertex of the geometry in document order.
// Malformed or empty geometry yields an error; callers skip the feature
// rather than failing the batch.
func (g *Geometry) Positions() ([]LatLng, error) {
	if g == nil || g.Type == "" {
		return nil, fmt.Errorf("empty geometry")
	}

	switch g.Type {
	case "Point":
		var p []float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return nil, fmt.Errorf("decode point: %w", err)
		}
		return positionsFromPairs([][]float64{p})
	case "MultiPoint", "LineString":
		var pairs [][]float64
		if err := json.Unmarshal(g.Coordinates, &pairs); err != nil {
			return nil, fmt.Errorf("decode %s: %w", g.Type, err)
		}
		return positionsFromPairs(pairs)
	case "MultiLineString", "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return nil, fmt.Errorf("decode %s: %w", g.Type, err)
		}
		var pairs [][]float64
		for _, ring := range rings {
			pairs = append(pairs, ring...)
		}
		return positionsFromPairs(pairs)
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return nil, fmt.Errorf("decode MultiPolygon: %w", err)
		}
		var pairs [][]float64
		for _, poly := range polys {
			for _, ring := range poly {
				pairs = append(pairs, ring...)
			}
		}
		return positionsFromPairs(pairs)
	case "GeometryCollection":
		var all []LatLng
		for i := range g.Geometries {
			pos, err := g.Geometries[i].Positions()
			if err != nil {
				return nil, err
			}
			all = append(all, pos...)
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("empty geometry collection")
		}
		return all, nil
	default:
		return nil, fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func positionsFromPairs(pairs [][]float64) ([]LatLng, error) {
	if len(pairs) == 0 {
		return nil, fmt.Errorf("geometry has no positions")
	}
	out := make([]LatLng, 0, len(pairs))
	for _, p := range pairs {
		if len(p) < 2 {
			return nil, fmt.Errorf("position has %d components", len(p))
		}
		out = append(out, LatLng{Lat: p[1], Lng: p[0]})
	}
	return out, nil
}
