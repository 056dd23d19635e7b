package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"precinct-nav/algo"
	"precinct-nav/config"
	"precinct-nav/model"
	"precinct-nav/utils"

	"go.uber.org/zap"
)

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" 12.5, -3 ")
	if err != nil {
		t.Fatal(err)
	}
	if p.X != 12.5 || p.Y != -3 {
		t.Fatalf("got %+v", p)
	}
	for _, bad := range []string{"", "1", "1,2,3", "a,2", "1,b"} {
		if _, err := parsePoint(bad); err == nil {
			t.Errorf("parsePoint(%q) succeeded", bad)
		}
	}
}

func writeJSON(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestReadTracedMap(t *testing.T) {
	dir := t.TempDir()

	jsonPath := filepath.Join(dir, "map.json")
	writeJSON(t, jsonPath, model.TracedMap{Paths: []model.PathPrimitive{
		{ID: "p1", Type: model.PrimitiveLine, Points: [][]float64{{0, 0}, {10, 0}}},
	}})
	m, err := readTracedMap(jsonPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Paths) != 1 || m.Paths[0].ID != "p1" {
		t.Fatalf("paths %+v", m.Paths)
	}

	geoPath := filepath.Join(dir, "map.GeoJSON")
	geo := `{"type":"FeatureCollection","features":[
		{"type":"Feature","id":"walk","properties":{},"geometry":{"type":"LineString","coordinates":[[0,0],[5,0]]}},
		{"type":"Feature","id":"d1","properties":{"kind":"door"},"geometry":{"type":"Point","coordinates":[5,1]}}
	]}`
	if err := os.WriteFile(geoPath, []byte(geo), 0o644); err != nil {
		t.Fatal(err)
	}
	m, err = readTracedMap(geoPath, nil)
	if err != nil {
		t.Fatal(err)
	}
	if len(m.Paths) != 1 || len(m.Doors) != 1 {
		t.Fatalf("paths %d doors %d", len(m.Paths), len(m.Doors))
	}

	if _, err := readTracedMap(filepath.Join(dir, "missing.json"), nil); err == nil {
		t.Fatal("missing file accepted")
	}
}

// campusFiles writes a street with one building reachable through entrance e1.
func campusFiles(t *testing.T) *config.Config {
	t.Helper()
	dir := t.TempDir()

	street := algo.NewGraph()
	street.Version = "street-v1"
	street.AddNode(model.Node{ID: "s1", X: 0, Y: 0, Type: model.NodeTypePath, Geo: &model.GeoPoint{Lat: 40.76, Lng: -74.0}})
	street.AddNode(model.Node{ID: "s2", X: 10, Y: 0, Type: model.NodeTypePath, Geo: &model.GeoPoint{Lat: 40.76, Lng: -73.999}})
	if err := street.AddEdge("s1", "s2", 10, ""); err != nil {
		t.Fatal(err)
	}
	graphFile := filepath.Join(dir, "graph.json")
	if err := street.SaveJSON(graphFile); err != nil {
		t.Fatal(err)
	}

	floor := algo.NewGraph()
	floor.AddNode(model.Node{ID: "a", X: 0, Y: 0, Type: model.NodeTypePath})
	floor.AddNode(model.Node{ID: "b", X: 10, Y: 0, Type: model.NodeTypePath})
	if err := floor.AddEdge("a", "b", 10, ""); err != nil {
		t.Fatal(err)
	}
	indoorDir := filepath.Join(dir, "indoor")
	if err := os.Mkdir(indoorDir, 0o755); err != nil {
		t.Fatal(err)
	}
	writeJSON(t, filepath.Join(indoorDir, "hall.json"), model.IndoorMapData{
		BuildingID: "hall",
		Floors:     map[string]model.MapData{"G": floor.ToMapData()},
	})

	entrancesFile := filepath.Join(dir, "entrances.json")
	writeJSON(t, entrancesFile, []model.Entrance{{
		ID: "e1", BuildingID: "hall", FloorID: "G",
		Geo:        model.GeoPoint{Lat: 40.7601, Lng: -73.999},
		Planar:     model.PlanarPoint{X: 0, Y: -2},
		Accessible: true,
	}})

	return &config.Config{
		GraphSource:           config.SourceFile,
		GraphFile:             graphFile,
		IndoorDir:             indoorDir,
		EntrancesFile:         entrancesFile,
		SearchRadii:           algo.DefaultSearchRadii,
		PortalGeoThreshold:    30,
		PortalPlanarThreshold: 50,
		PortalEntryCost:       5,
		HybridGeoRadius:       250,
	}
}

func TestSourcesLoadFusesBuildings(t *testing.T) {
	c := campusFiles(t)
	src := &sources{cfg: c, logger: zap.NewNop()}
	st, err := src.load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Graph.Version != "street-v1" || st.Stats.NodeCount != 2 {
		t.Fatalf("graph %s with %d nodes", st.Graph.Version, st.Stats.NodeCount)
	}
	if st.Hybrid == nil || st.StepFree == nil || st.HybridReport == nil {
		t.Fatal("hybrid graphs not built")
	}
	if st.HybridReport.Portals != 1 || st.HybridReport.Outdoor != 2 {
		t.Fatalf("report %+v", st.HybridReport)
	}
	if !st.Hybrid.HasNode("in:hall:G:b") {
		t.Fatal("indoor node missing from hybrid graph")
	}
}

func TestSourcesLoadOutdoorOnly(t *testing.T) {
	c := campusFiles(t)
	c.IndoorDir = ""
	src := &sources{cfg: c, logger: zap.NewNop()}
	st, err := src.load(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if st.Hybrid != nil {
		t.Fatal("hybrid graph built without buildings")
	}
	if st.Warnings == nil {
		t.Fatal("warnings should be an empty list, not nil")
	}
}

func TestSourcesLoadErrors(t *testing.T) {
	c := campusFiles(t)
	c.GraphFile = filepath.Join(t.TempDir(), "nope.json")
	if _, err := (&sources{cfg: c, logger: zap.NewNop()}).load(context.Background()); err == nil {
		t.Fatal("missing graph file accepted")
	}

	c = campusFiles(t)
	c.GraphSource = config.SourceDB
	if _, err := (&sources{cfg: c, logger: zap.NewNop()}).load(context.Background()); err == nil {
		t.Fatal("db source without a store accepted")
	}
}

func TestNewCalibratorWithoutSurvey(t *testing.T) {
	cal, err := newCalibrator(context.Background(), &config.Config{}, nil, model.ViewBox{Width: 100, Height: 100}, zap.NewNop())
	if err != nil {
		t.Fatal(err)
	}
	if !cal.Current().Degenerate() {
		t.Fatal("expected a flagged identity calibration")
	}
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return out.String(), err
}

func TestHashPasswordCommand(t *testing.T) {
	out, err := execute(t, "hash-password", "hunter2")
	if err != nil {
		t.Fatal(err)
	}
	if !utils.CheckPassword(strings.TrimSpace(out), "hunter2") {
		t.Fatalf("output %q is not a hash of the password", out)
	}
}

func TestBuildValidateRoute(t *testing.T) {
	dir := t.TempDir()
	input := filepath.Join(dir, "map.json")
	output := filepath.Join(dir, "graph.json")
	writeJSON(t, input, model.TracedMap{Paths: []model.PathPrimitive{
		{ID: "main", Type: model.PrimitivePolyline, Points: [][]float64{{0, 0}, {10, 0}, {20, 0}}},
		{ID: "spur", Type: model.PrimitiveLine, Points: [][]float64{{10, 0}, {10, 15}}},
	}})

	out, err := execute(t, "build", "--input", input, "--output", output, "--version", "test-v1")
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if !strings.Contains(out, `"version": "test-v1"`) {
		t.Fatalf("build output %s", out)
	}

	out, err = execute(t, "validate", "--graph", output)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	var report struct {
		Stats algo.Stats `json:"stats"`
	}
	if err := json.Unmarshal([]byte(out), &report); err != nil {
		t.Fatal(err)
	}
	if report.Stats.NodeCount != 4 || report.Stats.EdgeCount != 3 || report.Stats.Components != 1 {
		t.Fatalf("stats %+v", report.Stats)
	}

	out, err = execute(t, "route", "--graph", output, "--from", "0,0", "--to", "10,15")
	if err != nil {
		t.Fatalf("route: %v\n%s", err, out)
	}
	if !strings.Contains(out, "Distance: 25.00") {
		t.Fatalf("route output %s", out)
	}
}

func TestBuildEntrancesFlag(t *testing.T) {
	t.Cleanup(func() { buildEntrances, buildStore = "", false })
	dir := t.TempDir()
	input := filepath.Join(dir, "map.json")
	writeJSON(t, input, model.TracedMap{Paths: []model.PathPrimitive{
		{ID: "main", Type: model.PrimitiveLine, Points: [][]float64{{0, 0}, {10, 0}}},
	}})
	output := filepath.Join(dir, "graph.json")

	_, err := execute(t, "build", "--input", input, "--output", output, "--entrances", filepath.Join(dir, "entrances.json"))
	if err == nil || !strings.Contains(err.Error(), "--store") {
		t.Fatalf("entrances without --store: %v", err)
	}

	// the entrance file is read before the database is opened
	_, err = execute(t, "build", "--input", input, "--output", output, "--store", "--entrances", filepath.Join(dir, "missing.json"))
	if err == nil || !strings.Contains(err.Error(), "entrances") {
		t.Fatalf("missing entrance file: %v", err)
	}
	if _, statErr := os.Stat(output); !os.IsNotExist(statErr) {
		t.Fatal("graph written although the build was refused")
	}
}
