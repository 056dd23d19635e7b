package model

import "fmt"

// NodeKind tags a hybrid graph node with the coordinate space it lives in.
type NodeKind int

const (
	KindOutdoor NodeKind = iota + 1
	KindIndoor
	KindPortal
	KindFloorTransition
)

func (k NodeKind) String() string {
	switch k {
	case KindOutdoor:
		return "outdoor"
	case KindIndoor:
		return "indoor"
	case KindPortal:
		return "entrance-portal"
	case KindFloorTransition:
		return "floor-transition"
	default:
		return "unknown"
	}
}

// MarshalText encodes the kind by name.
func (k NodeKind) MarshalText() ([]byte, error) {
	if k < KindOutdoor || k > KindFloorTransition {
		return nil, fmt.Errorf("invalid node kind %d", int(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText decodes a kind name.
func (k *NodeKind) UnmarshalText(b []byte) error {
	switch string(b) {
	case "outdoor":
		*k = KindOutdoor
	case "indoor":
		*k = KindIndoor
	case "entrance-portal":
		*k = KindPortal
	case "floor-transition":
		*k = KindFloorTransition
	default:
		return fmt.Errorf("unknown node kind %q", string(b))
	}
	return nil
}

// HybridNode is a node of the fused outdoor/indoor graph. Which optional
// fields are set depends on Kind; see Validate.
type HybridNode struct {
	ID         string       `json:"id"`
	Kind       NodeKind     `json:"kind"`
	Geo        *GeoPoint    `json:"geo,omitempty"`
	Planar     *PlanarPoint `json:"planar,omitempty"`
	BuildingID string       `json:"building_id,omitempty"`
	FloorID    string       `json:"floor_id,omitempty"`
	Label      string       `json:"label,omitempty"`
}

// Validate checks that the node carries exactly the fields its kind allows.
func (n HybridNode) Validate() error {
	switch n.Kind {
	case KindOutdoor:
		if n.Geo == nil {
			return fmt.Errorf("outdoor node %s has no geo point", n.ID)
		}
		if n.BuildingID != "" || n.FloorID != "" {
			return fmt.Errorf("outdoor node %s has a building or floor", n.ID)
		}
	case KindIndoor, KindFloorTransition:
		if n.Planar == nil {
			return fmt.Errorf("%s node %s has no planar point", n.Kind, n.ID)
		}
		if n.BuildingID == "" || n.FloorID == "" {
			return fmt.Errorf("%s node %s has no building or floor", n.Kind, n.ID)
		}
	case KindPortal:
		if n.Geo == nil || n.Planar == nil {
			return fmt.Errorf("portal %s needs both geo and planar points", n.ID)
		}
		if n.BuildingID == "" || n.FloorID == "" {
			return fmt.Errorf("portal %s has no building or floor", n.ID)
		}
	default:
		return fmt.Errorf("node %s has invalid kind %d", n.ID, int(n.Kind))
	}
	return nil
}

// Entrance is a building entrance record. It becomes an entrance-portal node.
type Entrance struct {
	ID         string      `json:"id"`
	BuildingID string      `json:"building_id"`
	FloorID    string      `json:"floor_id"`
	Geo        GeoPoint    `json:"geo"`
	Planar     PlanarPoint `json:"planar"`
	Accessible bool        `json:"accessible"`
	Label      string      `json:"label,omitempty"`
}

// Floor transition types
const (
	TransitionStairs   = "stairs"
	TransitionElevator = "elevator"
	TransitionRamp     = "ramp"
)

// FloorTransition links a node on one floor to a node on another floor of the
// same building (stairs, elevator, ramp).
type FloorTransition struct {
	ID         string  `json:"id"`
	Type       string  `json:"type"`
	FromFloor  string  `json:"from_floor"`
	FromNode   string  `json:"from_node"`
	ToFloor    string  `json:"to_floor"`
	ToNode     string  `json:"to_node"`
	Cost       float64 `json:"cost"`
	Accessible bool    `json:"accessible"`
}

// IndoorMapData is the persisted form of one building's indoor graphs.
type IndoorMapData struct {
	BuildingID  string             `json:"building_id"`
	Floors      map[string]MapData `json:"floors"`
	Transitions []FloorTransition  `json:"transitions"`
}
