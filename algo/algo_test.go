package algo

import (
	"fmt"
	"math"
	"math/rand"
	"path/filepath"
	"reflect"
	"testing"

	"precinct-nav/model"
	"precinct-nav/utils"
)

func addNode(g *Graph, id string, x, y float64) {
	g.AddNode(model.Node{ID: id, X: x, Y: y, Type: model.NodeTypePath})
}

func link(t *testing.T, g *Graph, a, b string) {
	t.Helper()
	d := utils.PlanarDistance(g.Nodes[a].Planar(), g.Nodes[b].Planar())
	if err := g.AddEdge(a, b, d, ""); err != nil {
		t.Fatalf("add edge %s-%s: %v", a, b, err)
	}
}

// diamond: a-b-c along the x axis is shortest; a-d-c and a-e-c detour.
func diamond(t *testing.T) *Graph {
	g := NewGraph()
	addNode(g, "a", 0, 0)
	addNode(g, "b", 50, 0)
	addNode(g, "c", 100, 0)
	addNode(g, "d", 50, 40)
	addNode(g, "e", 50, -200)
	link(t, g, "a", "b")
	link(t, g, "b", "c")
	link(t, g, "a", "d")
	link(t, g, "d", "c")
	link(t, g, "a", "e")
	link(t, g, "e", "c")
	return g
}

func TestAStarFindsOptimalPath(t *testing.T) {
	g := diamond(t)
	p := AStar(g, "a", "c")
	if !reflect.DeepEqual(p.NodeIDs, []string{"a", "b", "c"}) {
		t.Fatalf("path = %v, want [a b c]", p.NodeIDs)
	}
	if math.Abs(p.Distance-100) > 1e-9 {
		t.Fatalf("distance = %v, want 100", p.Distance)
	}
	if sum, ok := g.PathDistance(p.NodeIDs); !ok || math.Abs(sum-p.Distance) > 1e-9 {
		t.Fatalf("path distance %v does not match hand sum %v", p.Distance, sum)
	}
}

func TestAStarAvoidsExpensiveShortcut(t *testing.T) {
	g := diamond(t)
	// make the straight route very expensive; the d detour becomes optimal
	g.AdjList["a"][0].Dist = 1e6
	p := AStar(g, "a", "c")
	if !reflect.DeepEqual(p.NodeIDs, []string{"a", "d", "c"}) {
		t.Fatalf("path = %v, want [a d c]", p.NodeIDs)
	}
}

func TestAStarAndBFSOnAdversarialWeights(t *testing.T) {
	g := NewGraph()
	addNode(g, "a", 0, 0)
	addNode(g, "b", 1, 0)
	addNode(g, "c", 2, 0)
	if err := g.AddEdge("a", "b", 1e9, ""); err != nil {
		t.Fatal(err)
	}
	if err := g.AddEdge("b", "c", 1e9, ""); err != nil {
		t.Fatal(err)
	}
	if p := AStar(g, "a", "c"); len(p.NodeIDs) < 2 {
		t.Fatalf("A* returned %v", p.NodeIDs)
	}
	if ids := BreadthFirst(g, "a", "c"); len(ids) < 2 {
		t.Fatalf("BFS returned %v", ids)
	}
}

func TestAStarUnreachable(t *testing.T) {
	g := diamond(t)
	addNode(g, "island", 500, 500)
	if p := AStar(g, "a", "island"); len(p.NodeIDs) != 0 {
		t.Fatalf("expected no path, got %v", p.NodeIDs)
	}
	if ids := BreadthFirst(g, "a", "island"); ids != nil {
		t.Fatalf("expected no BFS path, got %v", ids)
	}
	if p := AStar(g, "a", "a"); len(p.NodeIDs) != 1 {
		t.Fatalf("start==goal should give a single node, got %v", p.NodeIDs)
	}
}

func TestNearestNodeIndexMatchesLinearScan(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	g := NewGraph()
	for i := 0; i < 400; i++ {
		x := math.Round(rng.Float64()*2000) / 2
		y := math.Round(rng.Float64()*1500) / 2
		addNode(g, fmt.Sprintf("n%03d", i), x, y)
	}
	// duplicate positions force the tie-break path
	addNode(g, "dup-a", 500, 500)
	addNode(g, "dup-b", 500, 500)

	queries := []model.PlanarPoint{{X: 500, Y: 500}, {X: -100, Y: -100}, {X: 1200, Y: 900}}
	for i := 0; i < 500; i++ {
		queries = append(queries, model.PlanarPoint{X: rng.Float64()*1200 - 100, Y: rng.Float64()*900 - 100})
	}
	for i, q := range queries {
		radius := rng.Float64() * 80
		if i == 0 {
			radius = 1
		}
		a, da, oka := g.NearestNodeLinear(q, radius)
		b, db, okb := g.NearestNode(q, radius)
		if oka != okb || a.ID != b.ID || da != db {
			t.Fatalf("query %v r=%v: linear=(%s,%v,%v) index=(%s,%v,%v)", q, radius, a.ID, da, oka, b.ID, db, okb)
		}
	}

	n, _, ok := g.NearestNode(model.PlanarPoint{X: 500, Y: 500}, 1)
	if !ok || n.ID != "dup-a" {
		t.Fatalf("tie should resolve to the smaller id, got %s", n.ID)
	}
}

func TestNearestNodeExactRadiusBoundary(t *testing.T) {
	g := NewGraph()
	addNode(g, "a", 10, 0)
	for _, lookup := range []func(model.PlanarPoint, float64) (model.Node, float64, bool){g.NearestNode, g.NearestNodeLinear} {
		if _, _, ok := lookup(model.PlanarPoint{}, 10); !ok {
			t.Fatalf("node exactly on the radius should qualify")
		}
		if _, _, ok := lookup(model.PlanarPoint{}, 9.999); ok {
			t.Fatalf("node beyond the radius should not qualify")
		}
	}
}

func TestIndexInvalidatedOnMutation(t *testing.T) {
	g := diamond(t)
	first := g.Index()
	if first.Len() != 5 {
		t.Fatalf("index size = %d, want 5", first.Len())
	}
	addNode(g, "f", 1000, 1000)
	if g.Index() == first {
		t.Fatalf("index should be rebuilt after AddNode")
	}
	if n, _, ok := g.NearestNode(model.PlanarPoint{X: 1001, Y: 1001}, 5); !ok || n.ID != "f" {
		t.Fatalf("new node not found through rebuilt index")
	}
	g.Invalidate()
	if g.Index() == nil || g.Index().Len() != 6 {
		t.Fatalf("explicit invalidate should rebuild lazily")
	}
}

func TestFindRouteAStar(t *testing.T) {
	g := diamond(t)
	res := g.FindRoute(Query{Start: model.PlanarPoint{X: -3, Y: 4}, End: model.PlanarPoint{X: 100, Y: 1}}, Options{})
	if !res.Found || res.Diagnostics.Strategy != StrategyAStar {
		t.Fatalf("unexpected result %+v", res.Diagnostics)
	}
	if res.Diagnostics.StartNode.ID != "a" || res.Diagnostics.EndNode.ID != "c" {
		t.Fatalf("resolved %s -> %s", res.Diagnostics.StartNode.ID, res.Diagnostics.EndNode.ID)
	}
	if res.Diagnostics.StartDistance != 5 || res.Diagnostics.EndDistance != 1 {
		t.Fatalf("unexpected endpoint distances %v %v", res.Diagnostics.StartDistance, res.Diagnostics.EndDistance)
	}
	if res.Diagnostics.StartRadius != 500 {
		t.Fatalf("expected first radius to resolve, got %v", res.Diagnostics.StartRadius)
	}
	if len(res.Nodes) != 3 || res.Distance != 100 {
		t.Fatalf("unexpected route %v distance %v", res.NodeIDs, res.Distance)
	}
}

func TestFindRouteEscalatesRadius(t *testing.T) {
	g := diamond(t)
	res := g.FindRoute(Query{Start: model.PlanarPoint{X: -800, Y: 0}, End: model.PlanarPoint{X: 100, Y: 0}}, Options{})
	if !res.Found {
		t.Fatalf("expected escalation to resolve the start, got %+v", res.Diagnostics)
	}
	if res.Diagnostics.StartRadius != 1000 || res.Diagnostics.EndRadius != 500 {
		t.Fatalf("radii used = %v, %v", res.Diagnostics.StartRadius, res.Diagnostics.EndRadius)
	}
}

func TestFindRouteUnreachableEndpoint(t *testing.T) {
	g := diamond(t)
	res := g.FindRoute(Query{Start: model.PlanarPoint{}, End: model.PlanarPoint{X: 9000, Y: 9000}}, Options{LinearScan: true})
	if res.Found || res.Diagnostics.Strategy != StrategyFailed || res.Diagnostics.Reason != ReasonEndUnreachable {
		t.Fatalf("unexpected diagnostics %+v", res.Diagnostics)
	}
	if res.Diagnostics.StartNode == nil || res.Diagnostics.EndNode != nil {
		t.Fatalf("start should be resolved and end should not")
	}
}

func TestFindRouteDisconnectedGraph(t *testing.T) {
	g := diamond(t)
	addNode(g, "island", 300, 0)
	res := g.FindRoute(Query{Start: model.PlanarPoint{}, End: model.PlanarPoint{X: 300, Y: 0}}, Options{})
	if res.Found || res.Diagnostics.Reason != ReasonNoPath {
		t.Fatalf("unexpected diagnostics %+v", res.Diagnostics)
	}
	if res.Diagnostics.StartNode == nil || res.Diagnostics.EndNode == nil {
		t.Fatalf("both endpoints should be resolved for a disconnected graph")
	}
}

func TestFindRouteFallsBackToBFS(t *testing.T) {
	g := diamond(t)
	// a cost cap below the shortest route defeats A*; BFS ignores weights
	res := g.FindRoute(Query{Start: model.PlanarPoint{}, End: model.PlanarPoint{X: 100, Y: 0}}, Options{MaxDistance: 10})
	if !res.Found || res.Diagnostics.Strategy != StrategyBFS {
		t.Fatalf("expected bfs fallback, got %+v", res.Diagnostics)
	}
	if len(res.NodeIDs) < 2 || res.NodeIDs[0] != "a" || res.NodeIDs[len(res.NodeIDs)-1] != "c" {
		t.Fatalf("unexpected bfs path %v", res.NodeIDs)
	}
}

func TestFindRouteSameNode(t *testing.T) {
	g := diamond(t)
	res := g.FindRoute(Query{Start: model.PlanarPoint{X: 1}, End: model.PlanarPoint{X: 2}}, Options{})
	if res.Found || res.Diagnostics.Reason != ReasonSameNode {
		t.Fatalf("unexpected diagnostics %+v", res.Diagnostics)
	}
}

func TestPredefinedRouteOverride(t *testing.T) {
	g := diamond(t)
	if err := g.AddRoute(model.PredefinedRoute{StartRef: "library", EndRef: "cafe", NodeIDs: []string{"a", "d", "c"}}); err != nil {
		t.Fatalf("add route: %v", err)
	}

	res := g.FindRoute(Query{StartRef: "library", EndRef: "cafe", Start: model.PlanarPoint{}, End: model.PlanarPoint{X: 100}}, Options{})
	if res.Diagnostics.Strategy != StrategyPredefined || !reflect.DeepEqual(res.NodeIDs, []string{"a", "d", "c"}) {
		t.Fatalf("forward lookup: %s %v", res.Diagnostics.Strategy, res.NodeIDs)
	}

	res = g.FindRoute(Query{StartRef: "cafe", EndRef: "library"}, Options{})
	if res.Diagnostics.Strategy != StrategyPredefined || !reflect.DeepEqual(res.NodeIDs, []string{"c", "d", "a"}) {
		t.Fatalf("reverse lookup: %s %v", res.Diagnostics.Strategy, res.NodeIDs)
	}

	res = g.FindRoute(Query{StartRef: "cafe", EndRef: "museum", End: model.PlanarPoint{X: 100}}, Options{})
	if res.Diagnostics.Strategy != StrategyAStar {
		t.Fatalf("unmatched refs should be computed, got %s", res.Diagnostics.Strategy)
	}
}

func TestAddRouteRejectsDisconnected(t *testing.T) {
	g := diamond(t)
	if err := g.AddRoute(model.PredefinedRoute{StartRef: "x", EndRef: "y", NodeIDs: []string{"a", "c"}}); err == nil {
		t.Fatalf("route skipping an edge should be rejected")
	}
	if err := g.AddRoute(model.PredefinedRoute{StartRef: "x", EndRef: "y", NodeIDs: []string{"a", "zzz"}}); err == nil {
		t.Fatalf("route with unknown node should be rejected")
	}
}

func TestFromMapDataDropsBadEntries(t *testing.T) {
	data := model.MapData{
		Nodes: map[string]model.Node{
			"a": {ID: "a", X: 0, Y: 0},
			"b": {ID: "b", X: 3, Y: 4},
		},
		Adjacency: map[string][]model.Edge{
			"a":     {{To: "b", Dist: 5}, {To: "ghost", Dist: 1}},
			"b":     {{To: "a", Dist: 5}, {To: "a", Dist: -1}},
			"ghost": {{To: "a", Dist: 1}},
		},
		Routes: []model.PredefinedRoute{
			{StartRef: "s", EndRef: "e", NodeIDs: []string{"a", "b"}},
			{StartRef: "s", EndRef: "x", NodeIDs: []string{"a", "ghost"}},
		},
	}
	g, warnings := FromMapData(data)
	if len(warnings) != 4 {
		t.Fatalf("expected 4 warnings, got %d: %v", len(warnings), warnings)
	}
	if len(g.AdjList["a"]) != 1 || len(g.AdjList["b"]) != 1 {
		t.Fatalf("unexpected adjacency %v", g.AdjList)
	}
	if len(g.Routes()) != 1 {
		t.Fatalf("expected one surviving route")
	}
}

func TestJSONRoundTrip(t *testing.T) {
	g := diamond(t)
	g.Version = "v1"
	if err := g.AddRoute(model.PredefinedRoute{StartRef: "s", EndRef: "e", NodeIDs: []string{"a", "b", "c"}}); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(t.TempDir(), "graph.json")
	if err := g.SaveJSON(path); err != nil {
		t.Fatalf("save: %v", err)
	}
	loaded, warnings, err := LoadFromJSON(path)
	if err != nil || len(warnings) != 0 {
		t.Fatalf("load: %v %v", err, warnings)
	}
	if loaded.Version != "v1" || len(loaded.Nodes) != 5 || len(loaded.Routes()) != 1 {
		t.Fatalf("loaded graph differs: %+v", loaded.Stats())
	}
	if !reflect.DeepEqual(loaded.AdjList, g.AdjList) {
		t.Fatalf("adjacency changed across save/load")
	}
}

func TestStats(t *testing.T) {
	g := diamond(t)
	addNode(g, "lonely", 900, 900)
	s := g.Stats()
	if s.NodeCount != 6 || s.EdgeCount != 6 {
		t.Fatalf("counts = %d nodes %d edges", s.NodeCount, s.EdgeCount)
	}
	if !reflect.DeepEqual(s.IsolatedNodes, []string{"lonely"}) {
		t.Fatalf("isolated = %v", s.IsolatedNodes)
	}
	if math.Abs(s.AverageDegree-2) > 1e-9 || math.Abs(s.IsolatedPercent-100.0/6) > 1e-9 {
		t.Fatalf("degree %v isolated%% %v", s.AverageDegree, s.IsolatedPercent)
	}
	if s.Components != 2 {
		t.Fatalf("components = %d", s.Components)
	}
}
