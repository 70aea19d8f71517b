package track

import (
	"log/slog"
	"math"
	"sync"
	"time"

	"trainwatch/geo"
	"trainwatch/metrics"
	"trainwatch/model"
	"trainwatch/stations"
)

// clipRadiusMeters bounds the geometry considered around a raw point.
// Outside this box the point is too far from any track to snap.
const clipRadiusMeters = 1000.0

// Position is a corridor-snapped display position. Bearing is nil when
// the direction could not be determined.
type Position struct {
	Coordinates model.Coordinates `json:"coordinates"`
	Bearing     *float64          `json:"bearing,omitempty"`
}

type cacheEntry struct {
	updated time.Time
	pos     Position
}

// Snapper snaps train positions onto the corridor network. The memo
// cache is the only mutable state; entries stay valid until the train's
// updated timestamp advances.
type Snapper struct {
	network  *Network
	stations *stations.Table
	logger   *slog.Logger
	metrics  *metrics.Collector

	mu    sync.RWMutex
	cache map[string]cacheEntry
}

// NewSnapper builds a Snapper. The metrics collector may be nil.
func NewSnapper(network *Network, table *stations.Table, logger *slog.Logger, collector *metrics.Collector) *Snapper {
	return &Snapper{
		network:  network,
		stations: table,
		logger:   logger,
		metrics:  collector,
		cache:    map[string]cacheEntry{},
	}
}

// Snap returns the corridor-snapped position for a train. next is the
// train's next scheduled stop, used to orient the bearing; nil leaves
// the bearing undetermined. ok is false when the train carries no
// coordinate at all.
func (s *Snapper) Snap(t model.Train, next *model.Stop) (Position, bool) {
	if t.Coordinates == nil {
		return Position{}, false
	}

	if t.Updated != nil {
		s.mu.RLock()
		e, hit := s.cache[t.ID]
		s.mu.RUnlock()
		if hit && e.updated.Equal(*t.Updated) {
			s.metrics.RecordSnap(true)
			return e.pos, true
		}
	}
	s.metrics.RecordSnap(false)

	pos := s.compute(t, next)

	if t.Updated != nil {
		s.mu.Lock()
		s.cache[t.ID] = cacheEntry{updated: *t.Updated, pos: pos}
		s.mu.Unlock()
	}
	return pos, true
}

func (s *Snapper) compute(t model.Train, next *model.Stop) Position {
	raw := *t.Coordinates
	clipped := s.network.clip(raw, clipRadiusMeters)
	if len(clipped) == 0 {
		// No track nearby. The raw point passes through untouched.
		return Position{Coordinates: raw}
	}

	snapped := nearestOnSegments(raw, clipped)
	vertex := nearestVertex(raw, clipped)

	pos := Position{Coordinates: snapped}
	if b, ok := s.orient(t, raw, vertex, next); ok {
		pos.Bearing = &b
	}
	return pos
}

// orient derives the bearing toward the nearest vertex, flipped 180
// degrees when the vertex sits behind the train. Behind means farther
// from the next scheduled station than the train itself.
func (s *Snapper) orient(t model.Train, raw, vertex model.Coordinates, next *model.Stop) (float64, bool) {
	if next == nil {
		return 0, false
	}
	st, ok := s.stations.Get(next.Code)
	if !ok {
		s.logger.Warn("next station not in reference table, bearing undetermined",
			"train", t.ID, "station", next.Code)
		return 0, false
	}

	trainDist := geo.DistanceMeters(raw.Lat(), raw.Lon(), st.Lat, st.Lon)
	vertexDist := geo.DistanceMeters(vertex.Lat(), vertex.Lon(), st.Lat, st.Lon)

	b := geo.Bearing(raw.Lat(), raw.Lon(), vertex.Lat(), vertex.Lon())
	if vertexDist > trainDist {
		b = geo.NormalizeHeading(b + 180)
	}
	return b, true
}

// nearestOnSegments projects the point onto each candidate segment in a
// local equirectangular plane and keeps the closest projection.
func nearestOnSegments(p model.Coordinates, segs []segment) model.Coordinates {
	cosLat := math.Cos(p.Lat() * math.Pi / 180)
	px, py := project(p, p, cosLat)

	best := segs[0].a
	bestDist := math.Inf(1)
	for _, s := range segs {
		ax, ay := project(s.a, p, cosLat)
		bx, by := project(s.b, p, cosLat)

		dx, dy := bx-ax, by-ay
		var frac float64
		if l2 := dx*dx + dy*dy; l2 > 0 {
			frac = ((px-ax)*dx + (py-ay)*dy) / l2
			frac = math.Max(0, math.Min(1, frac))
		}
		cx, cy := ax+frac*dx, ay+frac*dy
		if d := (px-cx)*(px-cx) + (py-cy)*(py-cy); d < bestDist {
			bestDist = d
			best = model.Coordinates{
				s.a.Lon() + frac*(s.b.Lon()-s.a.Lon()),
				s.a.Lat() + frac*(s.b.Lat()-s.a.Lat()),
			}
		}
	}
	return best
}

// nearestVertex finds the closest segment endpoint to the point.
func nearestVertex(p model.Coordinates, segs []segment) model.Coordinates {
	best := segs[0].a
	bestDist := math.Inf(1)
	for _, s := range segs {
		for _, v := range [2]model.Coordinates{s.a, s.b} {
			if d := geo.DistanceMeters(p.Lat(), p.Lon(), v.Lat(), v.Lon()); d < bestDist {
				bestDist = d
				best = v
			}
		}
	}
	return best
}

// project maps a coordinate into meters relative to an origin using an
// equirectangular approximation, good within the clip radius.
func project(c, origin model.Coordinates, cosLat float64) (x, y float64) {
	const metersPerDeg = 111320.0
	x = (c.Lon() - origin.Lon()) * cosLat * metersPerDeg
	y = (c.Lat() - origin.Lat()) * metersPerDeg
	return x, y
}
