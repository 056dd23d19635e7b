package model

// Path primitive types accepted by the graph builder
const (
	PrimitiveLine      = "line"
	PrimitivePolyline  = "polyline"
	PrimitiveQuadratic = "quadratic" // points: start, control, end
	PrimitiveCubic     = "cubic"     // points: start, control1, control2, end
	PrimitivePath      = "path"      // SVG path data in D
)

// PathPrimitive is one traced walkable line.
type PathPrimitive struct {
	ID     string      `json:"id,omitempty"`
	Type   string      `json:"type"`
	Points [][]float64 `json:"points,omitempty"`
	D      string      `json:"d,omitempty"`
	Label  string      `json:"label,omitempty"`
}

// DoorMarker is a door or building entry traced as a short segment or a
// single point.
type DoorMarker struct {
	ID     string      `json:"id,omitempty"`
	Points [][]float64 `json:"points"`
	Label  string      `json:"label,omitempty"`
}

// RoomBoundary is a traced room outline.
type RoomBoundary struct {
	ID      string      `json:"id,omitempty"`
	Label   string      `json:"label"`
	Polygon [][]float64 `json:"polygon"`
}

// RouteWaypoints is a hand-authored route: waypoints in render space keyed by
// semantic start/end identifiers.
type RouteWaypoints struct {
	StartRef  string      `json:"start_ref"`
	EndRef    string      `json:"end_ref"`
	Waypoints [][]float64 `json:"waypoints"`
}

// TracedMap is the raw geometry exported by the map authoring step.
type TracedMap struct {
	ViewBox ViewBox          `json:"view_box"`
	Paths   []PathPrimitive  `json:"paths"`
	Doors   []DoorMarker     `json:"doors"`
	Rooms   []RoomBoundary   `json:"rooms"`
	Routes  []RouteWaypoints `json:"routes,omitempty"`
}
