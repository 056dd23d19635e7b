package hybrid

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"precinct-nav/algo"
	"precinct-nav/model"
)

// Building holds the indoor graphs of one building, one per floor, and the
// stairs/elevator links between them. Floor graphs use their own planar
// coordinate space.
type Building struct {
	ID          string
	Floors      map[string]*algo.Graph
	Transitions []model.FloorTransition
}

// FloorIDs returns the floor ids in sorted order.
func (b *Building) FloorIDs() []string {
	ids := make([]string, 0, len(b.Floors))
	for id := range b.Floors {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// BuildingFromMapData converts persisted indoor data. Broken floor entries
// are dropped and reported the same way algo.FromMapData does.
func BuildingFromMapData(data model.IndoorMapData) (*Building, []string) {
	b := &Building{
		ID:          data.BuildingID,
		Floors:      make(map[string]*algo.Graph, len(data.Floors)),
		Transitions: append([]model.FloorTransition(nil), data.Transitions...),
	}
	var warnings []string
	for floorID, md := range data.Floors {
		g, w := algo.FromMapData(md)
		for _, msg := range w {
			warnings = append(warnings, fmt.Sprintf("building %s floor %s: %s", data.BuildingID, floorID, msg))
		}
		b.Floors[floorID] = g
	}
	sort.Strings(warnings)
	return b, warnings
}

// LoadBuilding reads one building file.
func LoadBuilding(path string) (*Building, []string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to read indoor map: %w", err)
	}
	var data model.IndoorMapData
	if err := json.Unmarshal(raw, &data); err != nil {
		return nil, nil, fmt.Errorf("failed to parse indoor map %s: %w", path, err)
	}
	if data.BuildingID == "" {
		return nil, nil, fmt.Errorf("indoor map %s has no building_id", path)
	}
	b, warnings := BuildingFromMapData(data)
	return b, warnings, nil
}

// LoadIndoorDir reads every *.json building file in dir, keyed by building id.
func LoadIndoorDir(dir string) (map[string]*Building, []string, error) {
	files, err := filepath.Glob(filepath.Join(dir, "*.json"))
	if err != nil {
		return nil, nil, err
	}
	sort.Strings(files)
	out := make(map[string]*Building, len(files))
	var warnings []string
	for _, f := range files {
		b, w, err := LoadBuilding(f)
		if err != nil {
			return nil, nil, err
		}
		if _, dup := out[b.ID]; dup {
			return nil, nil, fmt.Errorf("building %s defined twice (%s)", b.ID, f)
		}
		out[b.ID] = b
		warnings = append(warnings, w...)
	}
	return out, warnings, nil
}

// LoadEntrances reads a JSON array of entrance records.
func LoadEntrances(path string) ([]model.Entrance, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read entrances: %w", err)
	}
	var out []model.Entrance
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("failed to parse entrances: %w", err)
	}
	return out, nil
}
