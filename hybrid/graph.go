// Package hybrid fuses the outdoor walkable graph, per-building indoor floor
// graphs and building entrances into one searchable graph.
package hybrid

import (
	"fmt"
	"sort"

	"precinct-nav/algo"
	"precinct-nav/metrics"
	"precinct-nav/model"
	"precinct-nav/utils"

	"go.uber.org/zap"
)

// crossSpaceHeuristic is the estimate between nodes that share no coordinate
// space. It overestimates, so a route into a building takes the first portal
// the search reaches and is not guaranteed shortest.
const crossSpaceHeuristic = 1e6

// Options configure fusion.
type Options struct {
	GeoThreshold    float64 // metres from a portal to the outdoor nodes it joins
	PlanarThreshold float64 // floor units from a portal to the indoor nodes it joins
	EntryCost       float64 // added to every portal edge
	AccessibleOnly  bool    // drop entrances and transitions that are not step-free
	GeoRadius       float64 // metres, resolving geographic route endpoints
	Radii           []float64
	Logger          *zap.Logger
}

// DefaultOptions returns the fusion defaults.
func DefaultOptions() Options {
	return Options{
		GeoThreshold:    30,
		PlanarThreshold: 50,
		EntryCost:       5,
		GeoRadius:       250,
	}
}

// Defect is a building-level quality problem found during fusion.
type Defect struct {
	BuildingID string `json:"building_id,omitempty"`
	Message    string `json:"message"`
}

// Report summarises a fusion run.
type Report struct {
	Nodes          int      `json:"nodes"`
	Edges          int      `json:"edges"`
	Outdoor        int      `json:"outdoor"`
	Indoor         int      `json:"indoor"`
	Portals        int      `json:"portals"`
	Transitions    int      `json:"transitions"`
	SkippedOutdoor []string `json:"skipped_outdoor,omitempty"`
	Defects        []Defect `json:"defects"`
}

// Graph is the fused graph. It is read-only after BuildHybridGraph and safe
// for concurrent searches.
type Graph struct {
	Nodes   map[string]model.HybridNode
	AdjList map[string][]model.Edge

	floors map[floorKey]*algo.Graph
	geo    *geoIndex
	opts   Options
}

type floorKey struct{ building, floor string }

// Node ids are namespaced by kind so the source graphs can reuse ids.
func outdoorID(id string) string { return "out:" + id }

func indoorID(building, floor, id string) string { return "in:" + building + ":" + floor + ":" + id }

func portalID(id string) string { return "portal:" + id }

func transitionID(id, floor string) string { return "xfer:" + id + ":" + floor }

// HasNode implements algo.Searchable.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// Neighbors implements algo.Searchable.
func (g *Graph) Neighbors(id string) []model.Edge {
	return g.AdjList[id]
}

// Heuristic estimates the remaining cost: geographic distance when both nodes
// carry a geo point, planar distance when both carry a planar point in the
// same building, a large constant otherwise.
func (g *Graph) Heuristic(from, to string) float64 {
	a, okA := g.Nodes[from]
	b, okB := g.Nodes[to]
	if !okA || !okB {
		return crossSpaceHeuristic
	}
	if a.Geo != nil && b.Geo != nil {
		return utils.HaversineDistance(*a.Geo, *b.Geo)
	}
	if a.Planar != nil && b.Planar != nil && a.BuildingID != "" && a.BuildingID == b.BuildingID {
		return utils.PlanarDistance(*a.Planar, *b.Planar)
	}
	return crossSpaceHeuristic
}

// NodeIDs returns every node id in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (g *Graph) addNode(n model.HybridNode) {
	g.Nodes[n.ID] = n
}

// link inserts both directions. The cheaper edge wins when the pair is
// already linked.
func (g *Graph) link(a, b string, dist float64, label string) {
	g.upsert(a, model.Edge{To: b, Dist: dist, Label: label})
	g.upsert(b, model.Edge{To: a, Dist: dist, Label: label})
}

func (g *Graph) upsert(from string, e model.Edge) {
	for i, old := range g.AdjList[from] {
		if old.To == e.To {
			if e.Dist < old.Dist {
				g.AdjList[from][i] = e
			}
			return
		}
	}
	g.AdjList[from] = append(g.AdjList[from], e)
}

// fusion carries the working state of one BuildHybridGraph call.
type fusion struct {
	g      *Graph
	opts   Options
	report Report
	logger *zap.Logger
}

func (f *fusion) defect(building, format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	f.report.Defects = append(f.report.Defects, Defect{BuildingID: building, Message: msg})
	f.logger.Warn("hybrid fusion defect", zap.String("building", building), zap.String("defect", msg))
}

// BuildHybridGraph fuses the outdoor graph, the indoor buildings and the
// entrances. Problems are reported per building and never stop the fusion.
//
// Outdoor edges are re-weighted by geographic distance so that every cost in
// the fused graph is in metres outdoors and in floor units indoors; outdoor
// nodes without a geo point cannot be placed and are skipped.
func BuildHybridGraph(outdoor *algo.Graph, entrances []model.Entrance, buildings map[string]*Building, opts Options) (*Graph, Report) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	f := &fusion{
		g: &Graph{
			Nodes:   make(map[string]model.HybridNode),
			AdjList: make(map[string][]model.Edge),
			floors:  make(map[floorKey]*algo.Graph),
			opts:    opts,
		},
		opts:   opts,
		report: Report{Defects: []Defect{}},
		logger: opts.Logger.With(zap.String("component", "hybrid_fusion")),
	}

	if outdoor != nil {
		f.addOutdoor(outdoor)
	}
	for _, id := range sortedBuildingIDs(buildings) {
		f.addBuilding(buildings[id])
	}
	f.buildGeoIndex()

	connected := make(map[string]int)
	seen := make(map[string]bool)
	for _, e := range entrances {
		if seen[e.ID] {
			f.defect(e.BuildingID, "duplicate entrance id %s", e.ID)
			continue
		}
		seen[e.ID] = true
		if f.addPortal(e) {
			connected[e.BuildingID]++
		}
	}
	// the geo index also serves endpoint resolution, so it must see portals
	f.buildGeoIndex()

	for _, id := range sortedBuildingIDs(buildings) {
		if connected[id] == 0 {
			f.defect(id, "no entrance connects building %s to the outdoor graph", id)
		}
	}

	directed := 0
	for _, edges := range f.g.AdjList {
		directed += len(edges)
	}
	f.report.Nodes = len(f.g.Nodes)
	f.report.Edges = directed / 2
	metrics.GraphNodes.WithLabelValues("hybrid").Set(float64(len(f.g.Nodes)))
	f.logger.Info("hybrid graph built",
		zap.Int("nodes", f.report.Nodes),
		zap.Int("edges", f.report.Edges),
		zap.Int("portals", f.report.Portals),
		zap.Int("defects", len(f.report.Defects)))
	return f.g, f.report
}

func (f *fusion) addOutdoor(outdoor *algo.Graph) {
	for _, id := range outdoor.NodeIDs() {
		n := outdoor.Nodes[id]
		if n.Geo == nil {
			f.report.SkippedOutdoor = append(f.report.SkippedOutdoor, id)
			continue
		}
		geo, ok := utils.NormalizeGeo(*n.Geo)
		if !ok {
			f.report.SkippedOutdoor = append(f.report.SkippedOutdoor, id)
			continue
		}
		f.g.addNode(model.HybridNode{ID: outdoorID(id), Kind: model.KindOutdoor, Geo: &geo, Label: n.Label})
		f.report.Outdoor++
	}
	if len(f.report.SkippedOutdoor) > 0 {
		f.logger.Warn("outdoor nodes without geo coordinates skipped", zap.Int("count", len(f.report.SkippedOutdoor)))
	}
	for _, id := range outdoor.NodeIDs() {
		from, ok := f.g.Nodes[outdoorID(id)]
		if !ok {
			continue
		}
		for _, e := range outdoor.Neighbors(id) {
			to, ok := f.g.Nodes[outdoorID(e.To)]
			if !ok {
				continue
			}
			f.g.link(from.ID, to.ID, utils.HaversineDistance(*from.Geo, *to.Geo), e.Label)
		}
	}
}

func (f *fusion) addBuilding(b *Building) {
	if len(b.Floors) == 0 {
		f.defect(b.ID, "building %s has no floors", b.ID)
		return
	}
	for _, floorID := range b.FloorIDs() {
		fg := b.Floors[floorID]
		f.g.floors[floorKey{b.ID, floorID}] = fg
		for _, id := range fg.NodeIDs() {
			n := fg.Nodes[id]
			p := n.Planar()
			f.g.addNode(model.HybridNode{
				ID:         indoorID(b.ID, floorID, id),
				Kind:       model.KindIndoor,
				Planar:     &p,
				BuildingID: b.ID,
				FloorID:    floorID,
				Label:      n.Label,
			})
			f.report.Indoor++
		}
		for _, id := range fg.NodeIDs() {
			for _, e := range fg.Neighbors(id) {
				f.g.link(indoorID(b.ID, floorID, id), indoorID(b.ID, floorID, e.To), e.Dist, e.Label)
			}
		}
	}

	if len(b.Floors) > 1 && len(b.Transitions) == 0 {
		f.defect(b.ID, "building %s has %d floors but no floor transitions", b.ID, len(b.Floors))
	}
	for _, t := range b.Transitions {
		f.addTransition(b, t)
	}
}

// addTransition adds one transition node per end and links them. Each end
// joins the floor node it names at no extra cost.
func (f *fusion) addTransition(b *Building, t model.FloorTransition) {
	if f.opts.AccessibleOnly && !t.Accessible {
		return
	}
	if t.FromFloor == t.ToFloor {
		f.defect(b.ID, "transition %s links floor %s to itself", t.ID, t.FromFloor)
		return
	}
	if t.Cost < 0 || !utils.IsFinite(t.Cost) {
		f.defect(b.ID, "transition %s has invalid cost %v", t.ID, t.Cost)
		return
	}

	type end struct {
		floor string
		node  model.Node
	}
	var ends [2]end
	for i, ref := range [2][2]string{{t.FromFloor, t.FromNode}, {t.ToFloor, t.ToNode}} {
		fg, ok := b.Floors[ref[0]]
		if !ok {
			f.defect(b.ID, "transition %s references unknown floor %s", t.ID, ref[0])
			return
		}
		n, ok := fg.Nodes[ref[1]]
		if !ok {
			f.defect(b.ID, "transition %s references unknown node %s on floor %s", t.ID, ref[1], ref[0])
			return
		}
		if f.g.HasNode(transitionID(t.ID, ref[0])) {
			f.defect(b.ID, "duplicate transition id %s", t.ID)
			return
		}
		ends[i] = end{floor: ref[0], node: n}
	}

	for _, e := range ends {
		p := e.node.Planar()
		id := transitionID(t.ID, e.floor)
		f.g.addNode(model.HybridNode{
			ID:         id,
			Kind:       model.KindFloorTransition,
			Planar:     &p,
			BuildingID: b.ID,
			FloorID:    e.floor,
			Label:      e.node.Label,
		})
		f.g.link(id, indoorID(b.ID, e.floor, e.node.ID), 0, t.Type)
	}
	f.g.link(transitionID(t.ID, ends[0].floor), transitionID(t.ID, ends[1].floor), t.Cost, t.Type)
	f.report.Transitions++
}

// addPortal adds an entrance and links it to nearby outdoor nodes and to
// nearby nodes on its own floor. It reports whether both sides were reached.
func (f *fusion) addPortal(e model.Entrance) bool {
	if f.opts.AccessibleOnly && !e.Accessible {
		return false
	}
	geo, ok := utils.NormalizeGeo(e.Geo)
	if !ok || !utils.IsFinite(e.Planar.X) || !utils.IsFinite(e.Planar.Y) {
		f.defect(e.BuildingID, "entrance %s has invalid coordinates", e.ID)
		return false
	}
	fg, ok := f.g.floors[floorKey{e.BuildingID, e.FloorID}]
	if !ok {
		f.defect(e.BuildingID, "entrance %s references unknown building %s floor %s", e.ID, e.BuildingID, e.FloorID)
		return false
	}

	planarPt := e.Planar
	id := portalID(e.ID)
	f.g.addNode(model.HybridNode{
		ID:         id,
		Kind:       model.KindPortal,
		Geo:        &geo,
		Planar:     &planarPt,
		BuildingID: e.BuildingID,
		FloorID:    e.FloorID,
		Label:      e.Label,
	})
	f.report.Portals++

	outside := 0
	for nid, d := range f.g.geo.within(geo.Orb(), f.opts.GeoThreshold) {
		if f.g.Nodes[nid].Kind != model.KindOutdoor {
			continue
		}
		f.g.link(id, nid, d+f.opts.EntryCost, e.Label)
		outside++
	}
	inside := 0
	for _, nid := range fg.NodeIDs() {
		d := utils.PlanarDistance(planarPt, fg.Nodes[nid].Planar())
		if d <= f.opts.PlanarThreshold {
			f.g.link(id, indoorID(e.BuildingID, e.FloorID, nid), d+f.opts.EntryCost, e.Label)
			inside++
		}
	}

	if outside == 0 {
		f.defect(e.BuildingID, "entrance %s has no outdoor node within %gm", e.ID, f.opts.GeoThreshold)
	}
	if inside == 0 {
		f.defect(e.BuildingID, "entrance %s has no node on floor %s within %g units", e.ID, e.FloorID, f.opts.PlanarThreshold)
	}
	return outside > 0 && inside > 0
}

func (f *fusion) buildGeoIndex() {
	var entries []geoEntry
	for id, n := range f.g.Nodes {
		if n.Geo != nil {
			entries = append(entries, geoEntry{id: id, p: n.Geo.Orb()})
		}
	}
	f.g.geo = newGeoIndex(entries)
}

func sortedBuildingIDs(m map[string]*Building) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
