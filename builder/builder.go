package builder

import (
	"fmt"
	"math"

	"precinct-nav/algo"
	"precinct-nav/calib"
	"precinct-nav/model"
	"precinct-nav/utils"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
	"go.uber.org/zap"
)

// Options control graph construction.
type Options struct {
	SnapRadius        float64 // points closer than this reuse an existing node
	DoorMaxDistance   float64 // longest allowed door-to-path link
	CurveSegments     int     // samples per Bézier curve before simplification
	SimplifyTolerance float64 // Douglas-Peucker tolerance for flattened curves
	Calibration       *calib.Calibration
	Version           string
	Logger            *zap.Logger
}

// DefaultOptions returns the builder defaults.
func DefaultOptions() Options {
	return Options{
		SnapRadius:        2,
		DoorMaxDistance:   50,
		CurveSegments:     16,
		SimplifyTolerance: 0.25,
	}
}

// Report lists the defects found while building. None of them abort the
// build.
type Report struct {
	Stats             algo.Stats `json:"stats"`
	SkippedPrimitives int        `json:"skipped_primitives"`
	Skipped           []string   `json:"skipped,omitempty"`
	UnconnectedDoors  []string   `json:"unconnected_doors"`
	DroppedRoutes     []string   `json:"dropped_routes,omitempty"`
	SnappedPoints     int        `json:"snapped_points"`
}

type cellKey struct{ x, y int64 }

type room struct {
	label   string
	polygon orb.Polygon
}

// Builder accumulates one graph. It is single-use and not safe for
// concurrent use.
type Builder struct {
	opts   Options
	flat   flattener
	graph  *algo.Graph
	grid   map[cellKey][]string
	rooms  []room
	seq    int
	report Report
	logger *zap.Logger
}

// New creates a builder. Zero or negative option values fall back to the
// defaults.
func New(opts Options) *Builder {
	def := DefaultOptions()
	if opts.SnapRadius <= 0 {
		opts.SnapRadius = def.SnapRadius
	}
	if opts.DoorMaxDistance <= 0 {
		opts.DoorMaxDistance = def.DoorMaxDistance
	}
	if opts.CurveSegments <= 0 {
		opts.CurveSegments = def.CurveSegments
	}
	if opts.SimplifyTolerance < 0 {
		opts.SimplifyTolerance = 0
	}
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	return &Builder{
		opts:   opts,
		flat:   flattener{segments: opts.CurveSegments, tolerance: opts.SimplifyTolerance},
		graph:  algo.NewGraph(),
		grid:   make(map[cellKey][]string),
		logger: opts.Logger.With(zap.String("component", "graph_builder")),
		report: Report{UnconnectedDoors: []string{}},
	}
}

// Build is the one-shot offline pipeline: paths, rooms, doors, geographic
// coordinates, predefined routes, validation.
func Build(m model.TracedMap, opts Options) (*algo.Graph, Report) {
	b := New(opts)
	b.graph.ViewBox = m.ViewBox

	for i, p := range m.Paths {
		b.AddPath(p, i)
	}
	for i, r := range m.Rooms {
		b.AddRoom(r, i)
	}
	for i, d := range m.Doors {
		b.AddDoor(d, i)
	}
	b.labelRooms()
	b.attachGeo()
	for _, r := range m.Routes {
		b.AddRoute(r)
	}
	return b.Finish()
}

// AddPath flattens a traced primitive and links consecutive points.
func (b *Builder) AddPath(p model.PathPrimitive, index int) {
	lines, err := b.flat.flatten(p)
	if err != nil {
		b.skip("path", p.ID, index, err)
		return
	}
	for _, ls := range lines {
		prev := ""
		for _, pt := range ls {
			id := b.snap(pt, model.NodeTypePath, p.Label)
			if prev != "" && prev != id {
				a, c := b.graph.Nodes[prev], b.graph.Nodes[id]
				// both nodes exist, so AddEdge cannot fail
				_ = b.graph.AddEdge(prev, id, utils.PlanarDistance(a.Planar(), c.Planar()), p.Label)
			}
			prev = id
		}
	}
}

// AddRoom records a room outline used to label the nodes inside it.
func (b *Builder) AddRoom(r model.RoomBoundary, index int) {
	ring, err := toPoints(r.Polygon)
	if err != nil {
		b.skip("room", r.ID, index, err)
		return
	}
	if len(ring) < 3 {
		b.skip("room", r.ID, index, fmt.Errorf("polygon needs at least 3 points, got %d", len(ring)))
		return
	}
	if ring[0] != ring[len(ring)-1] {
		ring = append(ring, ring[0])
	}
	b.rooms = append(b.rooms, room{label: r.Label, polygon: orb.Polygon{orb.Ring(ring)}})
}

// AddDoor adds a door node at the midpoint of the marker and links it to the
// nearest path node within DoorMaxDistance. Doors never link to doors.
func (b *Builder) AddDoor(d model.DoorMarker, index int) {
	pts, err := toPoints(d.Points)
	if err != nil || len(pts) == 0 {
		if err == nil {
			err = fmt.Errorf("door has no points")
		}
		b.skip("door", d.ID, index, err)
		return
	}
	first, last := pts[0], pts[len(pts)-1]
	mid := model.PlanarPoint{X: (first[0] + last[0]) / 2, Y: (first[1] + last[1]) / 2}

	b.seq++
	id := fmt.Sprintf("door%d", b.seq)
	door := model.Node{ID: id, X: mid.X, Y: mid.Y, Label: d.Label, Type: model.NodeTypeDoor}
	b.graph.AddNode(door)

	target, dist, ok := b.graph.NearestNodeFiltered(mid, b.opts.DoorMaxDistance, func(n model.Node) bool {
		return n.Type != model.NodeTypeDoor
	})
	if !ok {
		b.report.UnconnectedDoors = append(b.report.UnconnectedDoors, id)
		b.logger.Warn("door has no path node in range",
			zap.String("door", id),
			zap.String("label", d.Label),
			zap.Float64("max_distance", b.opts.DoorMaxDistance))
		return
	}
	_ = b.graph.AddEdge(id, target.ID, dist, d.Label)
}

// AddRoute resolves hand-authored waypoints to nodes and stitches the legs
// with A*, so the stored route always runs over graph edges.
func (b *Builder) AddRoute(r model.RouteWaypoints) {
	name := r.StartRef + "->" + r.EndRef
	if len(r.Waypoints) < 2 {
		b.dropRoute(name, "needs at least 2 waypoints")
		return
	}
	var ids []string
	prev := ""
	for i, w := range r.Waypoints {
		if len(w) < 2 {
			b.dropRoute(name, fmt.Sprintf("waypoint %d is malformed", i))
			return
		}
		n, _, ok := b.graph.NearestNodeLinear(model.PlanarPoint{X: w[0], Y: w[1]}, b.opts.DoorMaxDistance)
		if !ok {
			b.dropRoute(name, fmt.Sprintf("waypoint %d has no node in range", i))
			return
		}
		if prev == "" {
			ids = append(ids, n.ID)
		} else if n.ID != prev {
			leg := algo.AStar(b.graph, prev, n.ID)
			if len(leg.NodeIDs) < 2 {
				b.dropRoute(name, fmt.Sprintf("waypoints %d and %d are not connected", i-1, i))
				return
			}
			ids = append(ids, leg.NodeIDs[1:]...)
		}
		prev = n.ID
	}
	err := b.graph.AddRoute(model.PredefinedRoute{StartRef: r.StartRef, EndRef: r.EndRef, NodeIDs: ids})
	if err != nil {
		b.dropRoute(name, err.Error())
	}
}

// Finish stamps the version, computes the validation report and returns the
// graph. The builder must not be used afterwards.
func (b *Builder) Finish() (*algo.Graph, Report) {
	b.graph.Version = b.opts.Version
	if b.graph.Version == "" {
		b.graph.Version = uuid.New().String()
	}
	b.report.Stats = b.graph.Stats()

	s := b.report.Stats
	b.logger.Info("graph built",
		zap.String("version", b.graph.Version),
		zap.Int("nodes", s.NodeCount),
		zap.Int("edges", s.EdgeCount),
		zap.Float64("average_degree", s.AverageDegree),
		zap.Int("isolated", len(s.IsolatedNodes)),
		zap.Float64("isolated_percent", s.IsolatedPercent),
		zap.Int("skipped_primitives", b.report.SkippedPrimitives))
	for _, id := range s.IsolatedNodes {
		n := b.graph.Nodes[id]
		b.logger.Warn("isolated node", zap.String("node", id), zap.String("type", n.Type), zap.Float64("x", n.X), zap.Float64("y", n.Y))
	}
	return b.graph, b.report
}

// snap returns the id of the nearest node within SnapRadius of p, creating a
// node when there is none.
func (b *Builder) snap(p orb.Point, nodeType, label string) string {
	r := b.opts.SnapRadius
	cx, cy := b.cell(p)
	best, bestDist := "", math.Inf(1)
	for dx := int64(-1); dx <= 1; dx++ {
		for dy := int64(-1); dy <= 1; dy++ {
			for _, id := range b.grid[cellKey{cx + dx, cy + dy}] {
				n := b.graph.Nodes[id]
				d := planar.Distance(p, orb.Point{n.X, n.Y})
				if d <= r && d < bestDist {
					best, bestDist = id, d
				}
			}
		}
	}
	if best != "" {
		b.report.SnappedPoints++
		if n := b.graph.Nodes[best]; n.Label == "" && label != "" {
			n.Label = label
			b.graph.Nodes[best] = n
		}
		return best
	}

	b.seq++
	id := fmt.Sprintf("n%d", b.seq)
	b.graph.AddNode(model.Node{ID: id, X: p[0], Y: p[1], Label: label, Type: nodeType})
	key := cellKey{cx, cy}
	b.grid[key] = append(b.grid[key], id)
	return id
}

func (b *Builder) cell(p orb.Point) (int64, int64) {
	return int64(math.Floor(p[0] / b.opts.SnapRadius)), int64(math.Floor(p[1] / b.opts.SnapRadius))
}

// labelRooms gives unlabelled nodes the label of the room containing them.
func (b *Builder) labelRooms() {
	if len(b.rooms) == 0 {
		return
	}
	for _, id := range b.graph.NodeIDs() {
		n := b.graph.Nodes[id]
		if n.Label != "" {
			continue
		}
		for _, r := range b.rooms {
			if r.label != "" && planar.PolygonContains(r.polygon, orb.Point{n.X, n.Y}) {
				n.Label = r.label
				b.graph.Nodes[id] = n
				break
			}
		}
	}
}

// attachGeo fills in geographic coordinates through the inverse calibration.
func (b *Builder) attachGeo() {
	cal := b.opts.Calibration
	if cal == nil {
		return
	}
	if cal.Degenerate() {
		b.logger.Warn("attaching geo coordinates with a degenerate calibration", zap.Stringer("calibration", cal))
	}
	for id, n := range b.graph.Nodes {
		g := cal.Unproject(n.Planar())
		n.Geo = &g
		b.graph.Nodes[id] = n
	}
}

func (b *Builder) skip(kind, id string, index int, err error) {
	b.report.SkippedPrimitives++
	ref := id
	if ref == "" {
		ref = fmt.Sprintf("#%d", index)
	}
	msg := fmt.Sprintf("%s %s: %v", kind, ref, err)
	b.report.Skipped = append(b.report.Skipped, msg)
	b.logger.Warn("skipped malformed primitive", zap.String("kind", kind), zap.String("ref", ref), zap.Error(err))
}

func (b *Builder) dropRoute(name, reason string) {
	msg := fmt.Sprintf("%s: %s", name, reason)
	b.report.DroppedRoutes = append(b.report.DroppedRoutes, msg)
	b.logger.Warn("predefined route dropped", zap.String("route", name), zap.String("reason", reason))
}
