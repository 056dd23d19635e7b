package hybrid

import (
	"errors"
	"fmt"
	"math"

	"precinct-nav/algo"
	"precinct-nav/metrics"
	"precinct-nav/model"
	"precinct-nav/utils"
)

var (
	ErrEndpointUnresolved = errors.New("endpoint does not resolve to a graph node")
	ErrNoRoute            = errors.New("no route between endpoints")
)

// Endpoint is a route end: either a geographic point, or a planar point on a
// given building floor.
type Endpoint struct {
	Geo        *model.GeoPoint    `json:"geo,omitempty"`
	BuildingID string             `json:"building_id,omitempty"`
	FloorID    string             `json:"floor_id,omitempty"`
	Planar     *model.PlanarPoint `json:"planar,omitempty"`
}

// Indoor reports whether the endpoint names a building floor.
func (e Endpoint) Indoor() bool {
	return e.Geo == nil && e.Planar != nil
}

func (e Endpoint) String() string {
	if e.Indoor() {
		return fmt.Sprintf("%s/%s (%.1f, %.1f)", e.BuildingID, e.FloorID, e.Planar.X, e.Planar.Y)
	}
	if e.Geo != nil {
		return fmt.Sprintf("(%.6f, %.6f)", e.Geo.Lat, e.Geo.Lng)
	}
	return "empty endpoint"
}

// Segment is a run of consecutive route nodes of one kind, and for indoor
// runs one floor. Distance includes the edge that enters the segment.
type Segment struct {
	Kind        model.NodeKind     `json:"kind"`
	BuildingID  string             `json:"building_id,omitempty"`
	FloorID     string             `json:"floor_id,omitempty"`
	FromFloorID string             `json:"from_floor_id,omitempty"`
	ToFloorID   string             `json:"to_floor_id,omitempty"`
	Nodes       []model.HybridNode `json:"nodes"`
	Distance    float64            `json:"distance"`
}

// Route is a fused route split into segments.
type Route struct {
	NodeIDs            []string  `json:"node_ids"`
	Segments           []Segment `json:"segments"`
	TotalDistance      float64   `json:"total_distance"`
	BuildingsTraversed []string  `json:"buildings_traversed"`
	StartDistance      float64   `json:"start_distance"`
	EndDistance        float64   `json:"end_distance"`
}

// FindRoute resolves both endpoints, runs A* over the fused graph and
// segments the result. Failures are ErrEndpointUnresolved or ErrNoRoute.
func (g *Graph) FindRoute(start, end Endpoint) (*Route, error) {
	r, err := g.findRoute(start, end)
	switch {
	case err == nil:
		metrics.HybridQueriesTotal.WithLabelValues("found").Inc()
	case errors.Is(err, ErrEndpointUnresolved):
		metrics.HybridQueriesTotal.WithLabelValues("unresolved").Inc()
	default:
		metrics.HybridQueriesTotal.WithLabelValues("no_route").Inc()
	}
	return r, err
}

func (g *Graph) findRoute(start, end Endpoint) (*Route, error) {
	from, fromDist, err := g.Resolve(start)
	if err != nil {
		return nil, fmt.Errorf("start %s: %w", start, err)
	}
	to, toDist, err := g.Resolve(end)
	if err != nil {
		return nil, fmt.Errorf("end %s: %w", end, err)
	}
	if from == to {
		return nil, fmt.Errorf("start and end both resolve to %s: %w", from, ErrNoRoute)
	}

	path := algo.AStar(g, from, to)
	if len(path.NodeIDs) < 2 {
		return nil, fmt.Errorf("%s to %s: %w", from, to, ErrNoRoute)
	}

	segs := g.Segment(path.NodeIDs)
	total := 0.0
	for _, s := range segs {
		total += s.Distance
	}
	return &Route{
		NodeIDs:            path.NodeIDs,
		Segments:           segs,
		TotalDistance:      total,
		BuildingsTraversed: g.buildings(path.NodeIDs),
		StartDistance:      fromDist,
		EndDistance:        toDist,
	}, nil
}

// Resolve maps an endpoint to its nearest node: a geographic search over
// outdoor and portal nodes, or a planar search on the named floor with the
// escalating radii.
func (g *Graph) Resolve(e Endpoint) (string, float64, error) {
	switch {
	case e.Geo != nil:
		p, ok := utils.NormalizeGeo(*e.Geo)
		if !ok {
			return "", 0, fmt.Errorf("invalid coordinates: %w", ErrEndpointUnresolved)
		}
		id, d, ok := g.geo.nearest(p.Orb(), g.opts.GeoRadius)
		if !ok {
			return "", 0, fmt.Errorf("nothing within %gm: %w", g.opts.GeoRadius, ErrEndpointUnresolved)
		}
		return id, d, nil

	case e.Planar != nil:
		fg, ok := g.floors[floorKey{e.BuildingID, e.FloorID}]
		if !ok {
			return "", 0, fmt.Errorf("unknown building %q floor %q: %w", e.BuildingID, e.FloorID, ErrEndpointUnresolved)
		}
		radii := g.opts.Radii
		if len(radii) == 0 {
			radii = algo.DefaultSearchRadii
		}
		for _, r := range radii {
			if n, d, ok := fg.NearestNode(*e.Planar, r); ok {
				return indoorID(e.BuildingID, e.FloorID, n.ID), d, nil
			}
		}
		return "", 0, fmt.Errorf("nothing on floor within %g units: %w", radii[len(radii)-1], ErrEndpointUnresolved)
	}
	return "", 0, fmt.Errorf("endpoint has neither geo nor planar point: %w", ErrEndpointUnresolved)
}

// Segment splits a node path into segments. A boundary falls wherever the
// node kind changes, or the floor changes between indoor nodes. Consecutive
// floor-transition nodes form one segment that records the floor it leaves
// and the floor it reaches.
func (g *Graph) Segment(ids []string) []Segment {
	var segs []Segment
	for i, id := range ids {
		n := g.Nodes[id]
		step := 0.0
		if i > 0 {
			if e, ok := g.edge(ids[i-1], id); ok {
				step = e.Dist
			}
		}

		if len(segs) > 0 {
			cur := &segs[len(segs)-1]
			if sameSegment(cur, n) {
				cur.Nodes = append(cur.Nodes, n)
				cur.Distance += step
				if n.Kind == model.KindFloorTransition {
					cur.ToFloorID = n.FloorID
				}
				continue
			}
		}

		seg := Segment{Kind: n.Kind, BuildingID: n.BuildingID, Nodes: []model.HybridNode{n}, Distance: step}
		switch n.Kind {
		case model.KindIndoor, model.KindPortal:
			seg.FloorID = n.FloorID
		case model.KindFloorTransition:
			seg.FromFloorID, seg.ToFloorID = n.FloorID, n.FloorID
		case model.KindOutdoor:
		}
		segs = append(segs, seg)
	}
	return segs
}

func sameSegment(cur *Segment, n model.HybridNode) bool {
	if cur.Kind != n.Kind {
		return false
	}
	switch n.Kind {
	case model.KindIndoor:
		return cur.BuildingID == n.BuildingID && cur.FloorID == n.FloorID
	case model.KindPortal, model.KindFloorTransition:
		return cur.BuildingID == n.BuildingID
	case model.KindOutdoor:
		return true
	}
	return false
}

func (g *Graph) edge(from, to string) (model.Edge, bool) {
	var best model.Edge
	found := false
	for _, e := range g.AdjList[from] {
		if e.To == to && (!found || e.Dist < best.Dist) {
			best, found = e, true
		}
	}
	return best, found
}

// buildings lists the buildings a path enters, in order of first visit.
func (g *Graph) buildings(ids []string) []string {
	out := []string{}
	seen := make(map[string]bool)
	for _, id := range ids {
		b := g.Nodes[id].BuildingID
		if b != "" && !seen[b] {
			seen[b] = true
			out = append(out, b)
		}
	}
	return out
}

// Distance is the sum of edge weights along ids, or +Inf when two
// consecutive nodes are not linked.
func (g *Graph) Distance(ids []string) float64 {
	total := 0.0
	for i := 1; i < len(ids); i++ {
		e, ok := g.edge(ids[i-1], ids[i])
		if !ok {
			return math.Inf(1)
		}
		total += e.Dist
	}
	return total
}
