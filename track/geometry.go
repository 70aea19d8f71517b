// Package track snaps raw GPS positions onto the rail corridor geometry
// and derives a display bearing. The geometry is a static external
// asset; this package only reads it.
package track

import (
	"encoding/json"
	"fmt"
	"math"
	"os"

	"trainwatch/model"
)

// segment is one directed edge of the corridor geometry.
type segment struct {
	a, b model.Coordinates
}

// Network is the loaded rail-corridor geometry, immutable after load.
type Network struct {
	segments []segment
}

type geoJSON struct {
	Features []struct {
		Geometry struct {
			Type        string          `json:"type"`
			Coordinates json.RawMessage `json:"coordinates"`
		} `json:"geometry"`
	} `json:"features"`
}

// LoadNetwork reads a GeoJSON FeatureCollection of LineString and
// MultiLineString features. Other geometry types are skipped.
func LoadNetwork(path string) (*Network, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track geometry %s: %w", path, err)
	}
	return ParseNetwork(data)
}

// ParseNetwork builds a Network from raw GeoJSON bytes.
func ParseNetwork(data []byte) (*Network, error) {
	var doc geoJSON
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("parse track geometry: %w", err)
	}

	n := &Network{}
	for _, f := range doc.Features {
		switch f.Geometry.Type {
		case "LineString":
			var line []model.Coordinates
			if err := json.Unmarshal(f.Geometry.Coordinates, &line); err != nil {
				return nil, fmt.Errorf("parse track geometry: %w", err)
			}
			n.addLine(line)
		case "MultiLineString":
			var lines [][]model.Coordinates
			if err := json.Unmarshal(f.Geometry.Coordinates, &lines); err != nil {
				return nil, fmt.Errorf("parse track geometry: %w", err)
			}
			for _, line := range lines {
				n.addLine(line)
			}
		}
	}
	return n, nil
}

func (n *Network) addLine(line []model.Coordinates) {
	for i := 1; i < len(line); i++ {
		n.segments = append(n.segments, segment{a: line[i-1], b: line[i]})
	}
}

// Segments reports the number of loaded edges.
func (n *Network) Segments() int { return len(n.segments) }

// clip returns the segments whose closest approach to the center is
// within radiusMeters. Testing the approach rather than the endpoints
// keeps long, sparsely-vertexed straightaways in play when both of a
// segment's vertices sit outside the radius.
func (n *Network) clip(center model.Coordinates, radiusMeters float64) []segment {
	cosLat := math.Cos(center.Lat() * math.Pi / 180)
	if cosLat < 0.01 {
		cosLat = 0.01
	}

	var out []segment
	for _, s := range n.segments {
		if segmentDistance(center, s, cosLat) <= radiusMeters {
			out = append(out, s)
		}
	}
	return out
}

// segmentDistance is the planar distance from a point to a segment,
// both projected into meters around the point.
func segmentDistance(p model.Coordinates, s segment, cosLat float64) float64 {
	ax, ay := project(s.a, p, cosLat)
	bx, by := project(s.b, p, cosLat)

	dx, dy := bx-ax, by-ay
	var frac float64
	if l2 := dx*dx + dy*dy; l2 > 0 {
		frac = -(ax*dx + ay*dy) / l2
		frac = math.Max(0, math.Min(1, frac))
	}
	return math.Hypot(ax+frac*dx, ay+frac*dy)
}
