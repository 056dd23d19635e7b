package hybrid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geo"
	"github.com/paulmach/orb/quadtree"
)

type geoEntry struct {
	id string
	p  orb.Point // lng, lat
}

func (e geoEntry) Point() orb.Point { return e.p }

// geoIndex finds nodes by haversine distance. Candidates come from a padded
// lng/lat bounding box and are then filtered by exact distance.
type geoIndex struct {
	tree *quadtree.Quadtree
	size int
}

func newGeoIndex(entries []geoEntry) *geoIndex {
	bound := orb.Bound{Min: orb.Point{-180, -90}, Max: orb.Point{180, 90}}
	idx := &geoIndex{tree: quadtree.New(bound)}
	for _, e := range entries {
		if err := idx.tree.Add(e); err == nil {
			idx.size++
		}
	}
	return idx
}

func (x *geoIndex) candidates(p orb.Point, radius float64) []orb.Pointer {
	if x.size == 0 || radius < 0 || math.IsNaN(radius) {
		return nil
	}
	// the box is an approximation near the poles; pad it
	box := geo.NewBoundAroundPoint(p, radius*1.05+1)
	return x.tree.InBound(nil, box)
}

// within returns every node within radius metres of p with its distance.
func (x *geoIndex) within(p orb.Point, radius float64) map[string]float64 {
	out := make(map[string]float64)
	for _, c := range x.candidates(p, radius) {
		e := c.(geoEntry)
		if d := geo.DistanceHaversine(p, e.p); d <= radius {
			out[e.id] = d
		}
	}
	return out
}

// nearest returns the closest node within radius metres. Ties go to the
// smaller id.
func (x *geoIndex) nearest(p orb.Point, radius float64) (string, float64, bool) {
	best, bestDist, ok := "", 0.0, false
	for _, c := range x.candidates(p, radius) {
		e := c.(geoEntry)
		d := geo.DistanceHaversine(p, e.p)
		if math.IsNaN(d) || d > radius {
			continue
		}
		if !ok || d < bestDist || (d == bestDist && e.id < best) {
			best, bestDist, ok = e.id, d, true
		}
	}
	return best, bestDist, ok
}
