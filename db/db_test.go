package db

import (
	"reflect"
	"testing"

	"precinct-nav/algo"
	"precinct-nav/model"
)

func sampleGraph(t *testing.T) *algo.Graph {
	g := algo.NewGraph()
	g.Version = "v1"
	g.ViewBox = model.ViewBox{Width: 100, Height: 50}
	g.AddNode(model.Node{ID: "a", X: 0, Y: 0, Type: model.NodeTypePath, Geo: &model.GeoPoint{Lat: 1, Lng: 2}})
	g.AddNode(model.Node{ID: "b", X: 10, Y: 0, Type: model.NodeTypePath, Label: "Main St"})
	g.AddNode(model.Node{ID: "c", X: 10, Y: 5, Type: model.NodeTypeDoor})
	for _, e := range [][2]string{{"a", "b"}, {"b", "c"}} {
		if err := g.AddEdge(e[0], e[1], 5, "Main St"); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.AddRoute(model.PredefinedRoute{StartRef: "gate", EndRef: "hall", NodeIDs: []string{"a", "b", "c"}}); err != nil {
		t.Fatal(err)
	}
	return g
}

func TestRecordsRoundTrip(t *testing.T) {
	g := sampleGraph(t)
	data := g.ToMapData()
	recs := toRecords(data)

	if len(recs.nodes) != 3 || len(recs.edges) != 4 || len(recs.routes) != 1 {
		t.Fatalf("records = %d nodes %d edges %d routes", len(recs.nodes), len(recs.edges), len(recs.routes))
	}
	if recs.nodes[0].Lat == nil || *recs.nodes[0].Lat != 1 || recs.nodes[1].Lat != nil {
		t.Fatal("geo columns not mapped")
	}

	back, warnings := algo.FromMapData(fromRecords(recs))
	if len(warnings) != 0 {
		t.Fatalf("warnings: %v", warnings)
	}
	if !reflect.DeepEqual(back.ToMapData(), data) {
		t.Fatalf("round trip differs:\n%+v\n%+v", back.ToMapData(), data)
	}
}

func TestBrokenStoredRouteIsDropped(t *testing.T) {
	recs := toRecords(sampleGraph(t).ToMapData())
	recs.routes[0].NodeIDs = []string{"a", "c"}
	g, warnings := algo.FromMapData(fromRecords(recs))
	if len(warnings) != 1 || len(g.Routes()) != 0 {
		t.Fatalf("warnings = %v routes = %v", warnings, g.Routes())
	}
}

func TestEntranceRecord(t *testing.T) {
	e := model.Entrance{
		ID: "e1", BuildingID: "lib", FloorID: "1",
		Geo: model.GeoPoint{Lat: 40.75, Lng: -73.98}, Planar: model.PlanarPoint{X: 3, Y: 4},
		Accessible: true, Label: "North door",
	}
	if got := entranceToRecord(e).toModel(); !reflect.DeepEqual(got, e) {
		t.Fatalf("got %+v, want %+v", got, e)
	}
}

func TestEntranceRecordsRejectBadSets(t *testing.T) {
	good := []model.Entrance{
		{ID: "e1", BuildingID: "lib", FloorID: "1"},
		{ID: "e2", BuildingID: "lib", FloorID: "2", Accessible: true},
	}
	recs, err := entranceRecords(good)
	if err != nil {
		t.Fatal(err)
	}
	if len(recs) != 2 || recs[1].EntranceID != "e2" || !recs[1].Accessible {
		t.Fatalf("records %+v", recs)
	}

	for name, bad := range map[string][]model.Entrance{
		"missing id":       {{BuildingID: "lib"}},
		"missing building": {{ID: "e1"}},
		"duplicate":        {{ID: "e1", BuildingID: "lib"}, {ID: "e1", BuildingID: "annex"}},
	} {
		if _, err := entranceRecords(bad); err == nil {
			t.Errorf("%s: accepted", name)
		}
	}
}

func TestNewStoreDefaultsLogger(t *testing.T) {
	if s := NewStore(nil, nil); s.logger == nil {
		t.Fatal("nil logger kept")
	}
}
