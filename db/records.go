package db

import (
	"fmt"
	"time"

	"precinct-nav/model"

	"github.com/lib/pq"
)

// GraphVersionRecord is one stored build of the outdoor graph.
type GraphVersionRecord struct {
	ID        uint   `gorm:"primaryKey"`
	Version   string `gorm:"uniqueIndex;size:64"`
	MinX      float64
	MinY      float64
	Width     float64
	Height    float64
	CreatedAt time.Time `gorm:"index"`
}

func (GraphVersionRecord) TableName() string { return "graph_versions" }

type NodeRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Version string `gorm:"index;size:64"`
	NodeID  string `gorm:"size:128"`
	X       float64
	Y       float64
	Lat     *float64
	Lng     *float64
	Label   string
	Type    string `gorm:"size:16"`
}

func (NodeRecord) TableName() string { return "graph_nodes" }

// EdgeRecord stores one direction of an edge.
type EdgeRecord struct {
	ID      uint   `gorm:"primaryKey"`
	Version string `gorm:"index;size:64"`
	FromID  string `gorm:"size:128"`
	ToID    string `gorm:"size:128"`
	Dist    float64
	Label   string
}

func (EdgeRecord) TableName() string { return "graph_edges" }

type RouteRecord struct {
	ID       uint   `gorm:"primaryKey"`
	Version  string `gorm:"index;size:64"`
	StartRef string
	EndRef   string
	NodeIDs  pq.StringArray `gorm:"type:text[]"`
}

func (RouteRecord) TableName() string { return "predefined_routes" }

type CalibrationPointRecord struct {
	ID   uint `gorm:"primaryKey"`
	Name string
	Lat  float64
	Lng  float64
	X    float64
	Y    float64
}

func (CalibrationPointRecord) TableName() string { return "calibration_points" }

type EntranceRecord struct {
	ID         uint   `gorm:"primaryKey"`
	EntranceID string `gorm:"uniqueIndex;size:128"`
	BuildingID string `gorm:"index;size:128"`
	FloorID    string `gorm:"size:64"`
	Lat        float64
	Lng        float64
	X          float64
	Y          float64
	Accessible bool
	Label      string
}

func (EntranceRecord) TableName() string { return "entrances" }

// graphRecords holds everything stored for one graph version.
type graphRecords struct {
	version GraphVersionRecord
	nodes   []NodeRecord
	edges   []EdgeRecord
	routes  []RouteRecord
}

func toRecords(data model.MapData) graphRecords {
	recs := graphRecords{version: GraphVersionRecord{
		Version: data.Version,
		MinX:    data.ViewBox.MinX,
		MinY:    data.ViewBox.MinY,
		Width:   data.ViewBox.Width,
		Height:  data.ViewBox.Height,
	}}
	for _, id := range sortedIDs(data.Nodes) {
		n := data.Nodes[id]
		r := NodeRecord{Version: data.Version, NodeID: id, X: n.X, Y: n.Y, Label: n.Label, Type: n.Type}
		if n.Geo != nil {
			lat, lng := n.Geo.Lat, n.Geo.Lng
			r.Lat, r.Lng = &lat, &lng
		}
		recs.nodes = append(recs.nodes, r)
	}
	for _, from := range sortedIDs(data.Adjacency) {
		for _, e := range data.Adjacency[from] {
			recs.edges = append(recs.edges, EdgeRecord{Version: data.Version, FromID: from, ToID: e.To, Dist: e.Dist, Label: e.Label})
		}
	}
	for _, r := range data.Routes {
		recs.routes = append(recs.routes, RouteRecord{
			Version:  data.Version,
			StartRef: r.StartRef,
			EndRef:   r.EndRef,
			NodeIDs:  pq.StringArray(r.NodeIDs),
		})
	}
	return recs
}

func fromRecords(recs graphRecords) model.MapData {
	v := recs.version
	data := model.MapData{
		Version:   v.Version,
		ViewBox:   model.ViewBox{MinX: v.MinX, MinY: v.MinY, Width: v.Width, Height: v.Height},
		Nodes:     make(map[string]model.Node, len(recs.nodes)),
		Adjacency: make(map[string][]model.Edge, len(recs.nodes)),
	}
	for _, r := range recs.nodes {
		n := model.Node{ID: r.NodeID, X: r.X, Y: r.Y, Label: r.Label, Type: r.Type}
		if r.Lat != nil && r.Lng != nil {
			n.Geo = &model.GeoPoint{Lat: *r.Lat, Lng: *r.Lng}
		}
		data.Nodes[r.NodeID] = n
	}
	for _, r := range recs.edges {
		data.Adjacency[r.FromID] = append(data.Adjacency[r.FromID], model.Edge{To: r.ToID, Dist: r.Dist, Label: r.Label})
	}
	for _, r := range recs.routes {
		data.Routes = append(data.Routes, model.PredefinedRoute{
			StartRef: r.StartRef,
			EndRef:   r.EndRef,
			NodeIDs:  []string(r.NodeIDs),
		})
	}
	return data
}

func entranceToRecord(e model.Entrance) EntranceRecord {
	return EntranceRecord{
		EntranceID: e.ID,
		BuildingID: e.BuildingID,
		FloorID:    e.FloorID,
		Lat:        e.Geo.Lat,
		Lng:        e.Geo.Lng,
		X:          e.Planar.X,
		Y:          e.Planar.Y,
		Accessible: e.Accessible,
		Label:      e.Label,
	}
}

// entranceRecords converts a full entrance set, checking that every entrance
// is addressable and listed once.
func entranceRecords(entrances []model.Entrance) ([]EntranceRecord, error) {
	recs := make([]EntranceRecord, len(entrances))
	seen := make(map[string]bool, len(entrances))
	for i, e := range entrances {
		if e.ID == "" || e.BuildingID == "" {
			return nil, fmt.Errorf("entrance #%d needs an id and a building id", i)
		}
		if seen[e.ID] {
			return nil, fmt.Errorf("entrance %s listed twice", e.ID)
		}
		seen[e.ID] = true
		recs[i] = entranceToRecord(e)
	}
	return recs, nil
}

func (r EntranceRecord) toModel() model.Entrance {
	return model.Entrance{
		ID:         r.EntranceID,
		BuildingID: r.BuildingID,
		FloorID:    r.FloorID,
		Geo:        model.GeoPoint{Lat: r.Lat, Lng: r.Lng},
		Planar:     model.PlanarPoint{X: r.X, Y: r.Y},
		Accessible: r.Accessible,
		Label:      r.Label,
	}
}
