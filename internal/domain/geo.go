package domain

import (
	"encoding/json"
	"fmt"
	"math"
)

// CoordPrecision is the number of decimal places kept on every persisted
// coordinate: six decimals is roughly 11 cm at Sofia's latitude, tight enough
// for map pins and coarse enough to collapse near-duplicate points a source
// lists for the same address.
const CoordPrecision = 6

const earthRadiusM = 6371000.0

// Round rounds v half away from zero at the given number of decimal digits.
// Deterministic and symmetric for negative inputs.
func Round(v float64, precision int) float64 {
	pow := math.Pow(10, float64(precision))
	return math.Round(v*pow) / pow
}

// RoundCoord rounds a coordinate component at the standard precision.
func RoundCoord(v float64) float64 {
	return Round(v, CoordPrecision)
}

// Centroid returns the arithmetic mean of a geometry's vertices: a point's
// own coordinate, or the vertex mean for lines and polygons. Returns false
// for malformed or empty geometry; the caller skips the feature.
func Centroid(g *Geometry) (LatLng, bool) {
	positions, err := g.Positions()
	if err != nil || len(positions) == 0 {
		return LatLng{}, false
	}
	var sumLat, sumLng float64
	for _, p := range positions {
		sumLat += p.Lat
		sumLng += p.Lng
	}
	n := float64(len(positions))
	return LatLng{
		Lat: RoundCoord(sumLat / n),
		Lng: RoundCoord(sumLng / n),
	}, true
}

// FeatureKey is a stable identity for one geometry feature within one
// message. A pure function of its inputs, so callers can correlate
// clustering decisions across re-renders of the same dataset.
func FeatureKey(messageID string, featureIndex int) string {
	return fmt.Sprintf("%s:%d", messageID, featureIndex)
}

// DistanceMeters returns the great-circle distance between two coordinates
// on a spherical Earth (haversine). Accurate to well under a meter at city
// scale, which is all radius matching needs.
func DistanceMeters(a, b LatLng) float64 {
	lat1 := a.Lat * math.Pi / 180
	lat2 := b.Lat * math.Pi / 180
	dLat := (b.Lat - a.Lat) * math.Pi / 180
	dLng := (b.Lng - a.Lng) * math.Pi / 180

	sinLat := math.Sin(dLat / 2)
	sinLng := math.Sin(dLng / 2)
	h := sinLat*sinLat + math.Cos(lat1)*math.Cos(lat2)*sinLng*sinLng
	return 2 * earthRadiusM * math.Asin(math.Min(1, math.Sqrt(h)))
}

// NormalizeFeatureCollection rounds every coordinate in place and collapses
// point features that round to the same coordinate into one. Features whose
// geometry cannot be decoded are dropped rather than failing the document.
func NormalizeFeatureCollection(fc *FeatureCollection) *FeatureCollection {
	if fc == nil {
		return nil
	}
	seen := make(map[LatLng]struct{})
	kept := make([]Feature, 0, len(fc.Features))
	for _, f := range fc.Features {
		if f.Geometry == nil {
			continue
		}
		if err := roundGeometry(f.Geometry); err != nil {
			continue
		}
		if f.Geometry.Type == "Point" {
			pos, err := f.Geometry.Positions()
			if err != nil {
				continue
			}
			if _, dup := seen[pos[0]]; dup {
				continue
			}
			seen[pos[0]] = struct{}{}
		}
		kept = append(kept, f)
	}
	return &FeatureCollection{Type: "FeatureCollection", Features: kept}
}

// roundGeometry rewrites the geometry's coordinates with every component
// rounded at the standard precision.
func roundGeometry(g *Geometry) error {
	switch g.Type {
	case "Point":
		var p []float64
		if err := json.Unmarshal(g.Coordinates, &p); err != nil {
			return err
		}
		return reencode(g, roundPair(p))
	case "MultiPoint":
		var pairs [][]float64
		if err := json.Unmarshal(g.Coordinates, &pairs); err != nil {
			return err
		}
		// Positions that round to the same coordinate collapse into one,
		// like duplicate Point features do at the collection level.
		seen := make(map[LatLng]struct{}, len(pairs))
		kept := make([][]float64, 0, len(pairs))
		for _, p := range pairs {
			rounded := roundPair(p)
			if len(rounded) >= 2 {
				key := LatLng{Lat: rounded[1], Lng: rounded[0]}
				if _, dup := seen[key]; dup {
					continue
				}
				seen[key] = struct{}{}
			}
			kept = append(kept, rounded)
		}
		return reencode(g, kept)
	case "LineString":
		var pairs [][]float64
		if err := json.Unmarshal(g.Coordinates, &pairs); err != nil {
			return err
		}
		for i := range pairs {
			pairs[i] = roundPair(pairs[i])
		}
		return reencode(g, pairs)
	case "MultiLineString", "Polygon":
		var rings [][][]float64
		if err := json.Unmarshal(g.Coordinates, &rings); err != nil {
			return err
		}
		for i := range rings {
			for j := range rings[i] {
				rings[i][j] = roundPair(rings[i][j])
			}
		}
		return reencode(g, rings)
	case "MultiPolygon":
		var polys [][][][]float64
		if err := json.Unmarshal(g.Coordinates, &polys); err != nil {
			return err
		}
		for i := range polys {
			for j := range polys[i] {
				for k := range polys[i][j] {
					polys[i][j][k] = roundPair(polys[i][j][k])
				}
			}
		}
		return reencode(g, polys)
	case "GeometryCollection":
		for i := range g.Geometries {
			if err := roundGeometry(&g.Geometries[i]); err != nil {
				return err
			}
		}
		return nil
	default:
		return fmt.Errorf("unsupported geometry type %q", g.Type)
	}
}

func roundPair(p []float64) []float64 {
	out := make([]float64, len(p))
	for i, v := range p {
		out[i] = RoundCoord(v)
	}
	return out
}

func reencode(g *Geometry, coords any) error {
	data, err := json.Marshal(coords)
	if err != nil {
		return err
	}
	g.Coordinates = data
	return nil
}
