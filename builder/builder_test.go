package builder

import (
	"math"
	"reflect"
	"strings"
	"testing"

	"precinct-nav/algo"
	"precinct-nav/calib"
	"precinct-nav/model"
)

func polyline(id string, pts ...[]float64) model.PathPrimitive {
	return model.PathPrimitive{ID: id, Type: model.PrimitivePolyline, Points: pts}
}

func pt(x, y float64) []float64 { return []float64{x, y} }

func testOptions() Options {
	opts := DefaultOptions()
	opts.Version = "test"
	return opts
}

func TestBuildIsDeterministic(t *testing.T) {
	m := model.TracedMap{
		Paths: []model.PathPrimitive{
			polyline("a", pt(0, 0), pt(50, 0), pt(100, 0)),
			polyline("b", pt(50, 0), pt(50, 80)),
			{ID: "c", Type: model.PrimitiveCubic, Points: [][]float64{pt(100, 0), pt(120, 40), pt(140, 40), pt(160, 0)}},
		},
		Doors: []model.DoorMarker{{ID: "d", Points: [][]float64{pt(45, 85), pt(55, 85)}}},
	}
	g1, r1 := Build(m, testOptions())
	g2, r2 := Build(m, testOptions())
	if !reflect.DeepEqual(g1.ToMapData(), g2.ToMapData()) {
		t.Fatal("two builds of the same input differ")
	}
	if !reflect.DeepEqual(r1, r2) {
		t.Fatalf("reports differ: %+v vs %+v", r1, r2)
	}
}

func TestSnappingJoinsNearbyEndpoints(t *testing.T) {
	m := model.TracedMap{Paths: []model.PathPrimitive{
		polyline("a", pt(0, 0), pt(10, 0)),
		polyline("b", pt(10.5, 0.5), pt(20, 0)),
	}}
	g, rep := Build(m, testOptions())
	if len(g.Nodes) != 3 {
		t.Fatalf("nodes = %d, want 3", len(g.Nodes))
	}
	if rep.Stats.EdgeCount != 2 || rep.Stats.Components != 1 {
		t.Fatalf("stats = %+v, want 2 edges in 1 component", rep.Stats)
	}
	if rep.SnappedPoints != 1 {
		t.Fatalf("snapped = %d, want 1", rep.SnappedPoints)
	}
}

func TestEdgeWeightsAreEuclidean(t *testing.T) {
	m := model.TracedMap{Paths: []model.PathPrimitive{polyline("a", pt(0, 0), pt(30, 40))}}
	g, _ := Build(m, testOptions())
	e, ok := g.EdgeBetween("n1", "n2")
	if !ok {
		t.Fatal("edge n1-n2 missing")
	}
	if math.Abs(e.Dist-50) > 1e-9 {
		t.Fatalf("edge distance = %v, want 50", e.Dist)
	}
}

func TestDoorsLinkWithinMaxDistance(t *testing.T) {
	m := model.TracedMap{
		Paths: []model.PathPrimitive{polyline("corridor", pt(0, 0), pt(50, 0), pt(100, 0))},
		Doors: []model.DoorMarker{
			{ID: "near", Points: [][]float64{pt(45, 15), pt(55, 15)}, Label: "Room 101"},
			{ID: "far", Points: [][]float64{pt(500, 500)}},
			{ID: "far-twin", Points: [][]float64{pt(500, 510)}},
		},
	}
	g, rep := Build(m, testOptions())

	e, ok := g.EdgeBetween("door4", "n2")
	if !ok {
		t.Fatal("near door not linked to the corridor")
	}
	if math.Abs(e.Dist-15) > 1e-9 {
		t.Fatalf("door link = %v, want 15", e.Dist)
	}
	if g.Nodes["door4"].Type != model.NodeTypeDoor || g.Nodes["door4"].Label != "Room 101" {
		t.Fatalf("door node = %+v", g.Nodes["door4"])
	}
	// doors never link to other doors, even when close
	if _, ok := g.EdgeBetween("door5", "door6"); ok {
		t.Fatal("door linked to a door")
	}
	want := []string{"door5", "door6"}
	if !reflect.DeepEqual(rep.UnconnectedDoors, want) {
		t.Fatalf("unconnected = %v, want %v", rep.UnconnectedDoors, want)
	}
	if !reflect.DeepEqual(rep.Stats.IsolatedNodes, want) {
		t.Fatalf("isolated = %v, want %v", rep.Stats.IsolatedNodes, want)
	}
	for _, id := range g.NodeIDs() {
		for _, e := range g.Neighbors(id) {
			if g.Nodes[id].Type == model.NodeTypeDoor && g.Nodes[e.To].Type != model.NodeTypeDoor && e.Dist > 50 {
				t.Fatalf("door edge %s-%s longer than 50: %v", id, e.To, e.Dist)
			}
		}
	}
}

func TestCubicFlatteningKeepsEndpoints(t *testing.T) {
	m := model.TracedMap{Paths: []model.PathPrimitive{
		{Type: model.PrimitiveCubic, Points: [][]float64{pt(0, 0), pt(0, 100), pt(100, 100), pt(100, 0)}},
	}}
	g, rep := Build(m, testOptions())
	if rep.SkippedPrimitives != 0 {
		t.Fatalf("skipped: %v", rep.Skipped)
	}
	start, _, ok := g.NearestNodeLinear(model.PlanarPoint{X: 0, Y: 0}, 0)
	if !ok {
		t.Fatal("no node at curve start")
	}
	end, _, ok := g.NearestNodeLinear(model.PlanarPoint{X: 100, Y: 0}, 0)
	if !ok {
		t.Fatal("no node at curve end")
	}
	p := algo.AStar(g, start.ID, end.ID)
	if p.Distance <= 100 || p.Distance >= 300 {
		t.Fatalf("curve length = %v, want between chord 100 and hull 300", p.Distance)
	}
	if len(g.Nodes) < 4 {
		t.Fatalf("curve flattened to %d nodes", len(g.Nodes))
	}
}

func TestSVGPathData(t *testing.T) {
	m := model.TracedMap{Paths: []model.PathPrimitive{
		{ID: "square", Type: model.PrimitivePath, D: "M0 0 L10 0 l0 10 H0 Z"},
		{ID: "arc", Type: model.PrimitivePath, D: "M0 0 A5 5 0 0 1 10 0"},
	}}
	g, rep := Build(m, testOptions())
	if len(g.Nodes) != 4 || rep.Stats.EdgeCount != 4 {
		t.Fatalf("square = %d nodes %d edges, want 4 and 4", len(g.Nodes), rep.Stats.EdgeCount)
	}
	if _, ok := g.EdgeBetween("n4", "n1"); !ok {
		t.Fatal("closepath did not return to the start node")
	}
	if rep.SkippedPrimitives != 1 || !strings.Contains(rep.Skipped[0], "arc") {
		t.Fatalf("skipped = %v, want the arc", rep.Skipped)
	}
}

func TestParsePathDataRelativeCurves(t *testing.T) {
	f := flattener{segments: 8}
	lines, err := parsePathData("m10,10 c0,10 10,10 10,0 s10,-10 10,0 M100 100 q5 5 10 0 t10 0", f)
	if err != nil {
		t.Fatal(err)
	}
	if len(lines) != 2 {
		t.Fatalf("subpaths = %d, want 2", len(lines))
	}
	last := lines[0][len(lines[0])-1]
	if last != [2]float64{30, 10} {
		t.Fatalf("first subpath ends at %v, want [30 10]", last)
	}
	last = lines[1][len(lines[1])-1]
	if last != [2]float64{120, 100} {
		t.Fatalf("second subpath ends at %v, want [120 100]", last)
	}
	if _, err := parsePathData("10 10 L 5 5", f); err == nil {
		t.Fatal("expected error for data without a leading command")
	}
	if _, err := parsePathData("M0 0 L5", f); err == nil {
		t.Fatal("expected error for a missing argument")
	}
}

func TestMalformedPrimitivesAreSkipped(t *testing.T) {
	m := model.TracedMap{
		Paths: []model.PathPrimitive{
			polyline("ok", pt(0, 0), pt(10, 0)),
			polyline("short", pt(0, 0)),
			polyline("nan", pt(0, 0), pt(math.NaN(), 1)),
			{ID: "cubic", Type: model.PrimitiveCubic, Points: [][]float64{pt(0, 0), pt(1, 1), pt(2, 2)}},
			{ID: "weird", Type: "spline", Points: [][]float64{pt(0, 0), pt(1, 1)}},
			{Type: model.PrimitivePolyline, Points: [][]float64{{1}}},
		},
		Doors: []model.DoorMarker{{ID: "empty"}},
		Rooms: []model.RoomBoundary{{ID: "sliver", Label: "x", Polygon: [][]float64{pt(0, 0), pt(1, 1)}}},
	}
	g, rep := Build(m, testOptions())
	if rep.SkippedPrimitives != 7 {
		t.Fatalf("skipped = %d (%v), want 7", rep.SkippedPrimitives, rep.Skipped)
	}
	if len(g.Nodes) != 2 {
		t.Fatalf("nodes = %d, want 2", len(g.Nodes))
	}
	if !strings.Contains(rep.Skipped[4], "#5") {
		t.Fatalf("anonymous primitive reported as %q", rep.Skipped[4])
	}
}

func TestRoomsLabelUnlabelledNodes(t *testing.T) {
	m := model.TracedMap{
		Paths: []model.PathPrimitive{
			polyline("inside", pt(5, 5), pt(15, 5)),
			{ID: "named", Type: model.PrimitivePolyline, Points: [][]float64{pt(5, 15), pt(15, 15)}, Label: "Hall"},
			polyline("outside", pt(50, 50), pt(60, 50)),
		},
		Rooms: []model.RoomBoundary{{Label: "Lobby", Polygon: [][]float64{pt(0, 0), pt(20, 0), pt(20, 20), pt(0, 20)}}},
	}
	g, _ := Build(m, testOptions())
	want := map[string]string{"n1": "Lobby", "n2": "Lobby", "n3": "Hall", "n4": "Hall", "n5": "", "n6": ""}
	for id, label := range want {
		if g.Nodes[id].Label != label {
			t.Errorf("%s label = %q, want %q", id, g.Nodes[id].Label, label)
		}
	}
}

func TestPredefinedRoutesAreStitched(t *testing.T) {
	m := model.TracedMap{
		Paths: []model.PathPrimitive{
			polyline("main", pt(0, 0), pt(50, 0), pt(100, 0), pt(150, 0)),
			polyline("spur", pt(500, 500), pt(550, 500)),
		},
		Routes: []model.RouteWaypoints{
			{StartRef: "gate", EndRef: "library", Waypoints: [][]float64{pt(1, 1), pt(149, 0)}},
			{StartRef: "gate", EndRef: "island", Waypoints: [][]float64{pt(0, 0), pt(500, 500)}},
			{StartRef: "gate", EndRef: "nowhere", Waypoints: [][]float64{pt(0, 0)}},
		},
	}
	g, rep := Build(m, testOptions())
	if len(rep.DroppedRoutes) != 2 {
		t.Fatalf("dropped = %v, want 2", rep.DroppedRoutes)
	}
	routes := g.Routes()
	if len(routes) != 1 {
		t.Fatalf("routes = %d, want 1", len(routes))
	}
	if want := []string{"n1", "n2", "n3", "n4"}; !reflect.DeepEqual(routes[0].NodeIDs, want) {
		t.Fatalf("stitched route = %v, want %v", routes[0].NodeIDs, want)
	}

	res := g.FindRoute(algo.Query{StartRef: "library", EndRef: "gate"}, algo.Options{})
	if res.Diagnostics.Strategy != algo.StrategyPredefined {
		t.Fatalf("strategy = %s, want predefined", res.Diagnostics.Strategy)
	}
	if want := []string{"n4", "n3", "n2", "n1"}; !reflect.DeepEqual(res.NodeIDs, want) {
		t.Fatalf("reverse route = %v, want %v", res.NodeIDs, want)
	}
}

func TestGeoAttachedThroughCalibration(t *testing.T) {
	vb := model.ViewBox{Width: 1200, Height: 800}
	bounds := model.GeoBounds{North: 40.76, South: 40.75, East: -73.97, West: -73.99}
	cal, err := calib.NewCorners(bounds, vb)
	if err != nil {
		t.Fatal(err)
	}
	opts := testOptions()
	opts.Calibration = cal
	m := model.TracedMap{ViewBox: vb, Paths: []model.PathPrimitive{polyline("a", pt(600, 400), pt(600, 0))}}
	g, _ := Build(m, opts)

	mid := g.Nodes["n1"].Geo
	if mid == nil {
		t.Fatal("no geo on n1")
	}
	c := bounds.Center()
	if math.Abs(mid.Lat-c.Lat) > 1e-9 || math.Abs(mid.Lng-c.Lng) > 1e-9 {
		t.Fatalf("centre node geo = %+v, want %+v", *mid, c)
	}
	top := g.Nodes["n2"].Geo
	if math.Abs(top.Lat-bounds.North) > 1e-9 {
		t.Fatalf("top edge lat = %v, want %v", top.Lat, bounds.North)
	}
}

func TestVersionDefaultsToUUID(t *testing.T) {
	g, _ := Build(model.TracedMap{Paths: []model.PathPrimitive{polyline("a", pt(0, 0), pt(1, 0))}}, DefaultOptions())
	if len(g.Version) != 36 {
		t.Fatalf("version = %q, want a uuid", g.Version)
	}
}

func TestFromGeoJSON(t *testing.T) {
	data := []byte(`{
	  "type": "FeatureCollection",
	  "features": [
	    {"type": "Feature", "id": "walk", "properties": {"label": "Quad"},
	     "geometry": {"type": "LineString", "coordinates": [[0,0],[50,0],[100,0]]}},
	    {"type": "Feature", "properties": {"kind": "door", "label": "Main entrance"},
	     "geometry": {"type": "Point", "coordinates": [50,10]}},
	    {"type": "Feature", "properties": {"kind": "room", "label": "Atrium"},
	     "geometry": {"type": "Polygon", "coordinates": [[[0,-5],[100,-5],[100,5],[0,5],[0,-5]]]}},
	    {"type": "Feature", "properties": {},
	     "geometry": {"type": "MultiLineString", "coordinates": [[[200,0],[210,0]],[[300,0],[310,0]]]}}
	  ]
	}`)
	m, err := FromGeoJSON(data, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Paths) != 3 || len(m.Doors) != 1 || len(m.Rooms) != 1 {
		t.Fatalf("paths %d doors %d rooms %d, want 3 1 1", len(m.Paths), len(m.Doors), len(m.Rooms))
	}
	if m.Paths[0].ID != "walk" || m.Paths[1].ID != "feature3.0" {
		t.Fatalf("path ids = %q %q", m.Paths[0].ID, m.Paths[1].ID)
	}

	g, rep := Build(m, testOptions())
	if len(rep.UnconnectedDoors) != 0 {
		t.Fatalf("door not linked: %v", rep.UnconnectedDoors)
	}
	if rep.Stats.Components != 3 {
		t.Fatalf("components = %d, want 3", rep.Stats.Components)
	}
	if _, err := FromGeoJSON([]byte("{"), nil); err == nil {
		t.Fatal("expected parse error")
	}
	_ = g
}
