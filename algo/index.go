package algo

import (
	"math"

	"precinct-nav/metrics"
	"precinct-nav/model"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"github.com/paulmach/orb/quadtree"
)

// indexedNode adapts a node to orb.Pointer for the quadtree.
type indexedNode struct {
	id string
	p  orb.Point
}

func (n indexedNode) Point() orb.Point { return n.p }

// SpatialIndex accelerates nearest-node lookups. It is built from a snapshot
// of the graph's nodes and must be rebuilt when the graph changes.
type SpatialIndex struct {
	tree *quadtree.Quadtree
	size int
}

func newSpatialIndex(nodes map[string]model.Node) *SpatialIndex {
	var bound orb.Bound
	first := true
	for _, n := range nodes {
		p := orb.Point{n.X, n.Y}
		if !finitePoint(p) {
			continue
		}
		if first {
			bound = orb.Bound{Min: p, Max: p}
			first = false
			continue
		}
		bound = bound.Extend(p)
	}

	idx := &SpatialIndex{tree: quadtree.New(bound.Pad(1))}
	for id, n := range nodes {
		p := orb.Point{n.X, n.Y}
		if !finitePoint(p) {
			continue
		}
		if err := idx.tree.Add(indexedNode{id: id, p: p}); err == nil {
			idx.size++
		}
	}
	metrics.SpatialIndexBuildsTotal.Inc()
	return idx
}

// Len is the number of indexed nodes.
func (s *SpatialIndex) Len() int { return s.size }

// Nearest returns the closest indexed node within radius of p. Candidates
// come from a bounding-box query and are ranked exactly like the linear scan,
// so both return the same node.
func (s *SpatialIndex) Nearest(p orb.Point, radius float64) (string, float64, bool) {
	if s.size == 0 || !finitePoint(p) || radius < 0 {
		return "", 0, false
	}
	// slack keeps nodes sitting exactly on the radius inside the box despite
	// rounding in p±radius
	r := radius + radius*1e-9 + 1e-9
	box := orb.Bound{
		Min: orb.Point{p[0] - r, p[1] - r},
		Max: orb.Point{p[0] + r, p[1] + r},
	}

	var best nearestPick
	for _, c := range s.tree.InBound(nil, box) {
		n := c.(indexedNode)
		best.offer(n.id, planar.Distance(p, n.p), radius)
	}
	return best.id, best.dist, best.ok
}

// nearestPick keeps the closest candidate within a radius. Equal distances
// are broken by the smaller id so results never depend on iteration order.
type nearestPick struct {
	id   string
	dist float64
	ok   bool
}

func (b *nearestPick) offer(id string, d, radius float64) {
	if math.IsNaN(d) || math.IsInf(d, 0) || d > radius {
		return
	}
	if !b.ok || d < b.dist || (d == b.dist && id < b.id) {
		b.id, b.dist, b.ok = id, d, true
	}
}

func finitePoint(p orb.Point) bool {
	return !math.IsNaN(p[0]) && !math.IsNaN(p[1]) && !math.IsInf(p[0], 0) && !math.IsInf(p[1], 0)
}

// Index returns the graph's spatial index, building it on first use.
func (g *Graph) Index() *SpatialIndex {
	g.indexMu.Lock()
	defer g.indexMu.Unlock()
	if g.index == nil {
		g.index = newSpatialIndex(g.Nodes)
	}
	return g.index
}

// Invalidate drops the cached spatial index. The next lookup rebuilds it.
func (g *Graph) Invalidate() {
	g.indexMu.Lock()
	g.index = nil
	g.indexMu.Unlock()
}

// NearestNode finds the closest node within radius using the spatial index.
func (g *Graph) NearestNode(p model.PlanarPoint, radius float64) (model.Node, float64, bool) {
	id, d, ok := g.Index().Nearest(p.Orb(), radius)
	if !ok {
		return model.Node{}, 0, false
	}
	return g.Nodes[id], d, true
}

// NearestNodeLinear is the O(n) reference implementation of NearestNode.
func (g *Graph) NearestNodeLinear(p model.PlanarPoint, radius float64) (model.Node, float64, bool) {
	if radius < 0 {
		return model.Node{}, 0, false
	}
	q := p.Orb()
	var best nearestPick
	for id, n := range g.Nodes {
		best.offer(id, planar.Distance(q, orb.Point{n.X, n.Y}), radius)
	}
	if !best.ok {
		return model.Node{}, 0, false
	}
	return g.Nodes[best.id], best.dist, true
}

// NearestNodeFiltered is a linear scan restricted to nodes accepted by keep.
func (g *Graph) NearestNodeFiltered(p model.PlanarPoint, radius float64, keep func(model.Node) bool) (model.Node, float64, bool) {
	q := p.Orb()
	var best nearestPick
	for id, n := range g.Nodes {
		if keep != nil && !keep(n) {
			continue
		}
		best.offer(id, planar.Distance(q, orb.Point{n.X, n.Y}), radius)
	}
	if !best.ok {
		return model.Node{}, 0, false
	}
	return g.Nodes[best.id], best.dist, true
}
