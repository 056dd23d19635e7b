package model

// Edge is a directed edge. Graphs always hold the reverse edge too, so they behave as
// undirected.
type Edge struct {
	To    string  `json:"to"`
	Dist  float64 `json:"distance"`
	Label string  `json:"label,omitempty"`
}

// PredefinedRoute is a hand-authored canonical route between two semantic
// endpoints (landmark ids, not coordinates).
type PredefinedRoute struct {
	StartRef string   `json:"start_ref"`
	EndRef   string   `json:"end_ref"`
	NodeIDs  []string `json:"node_ids"`
}

// MapData is the persisted walkable graph. It is written by the offline builder and loaded
// verbatim at startup.
type MapData struct {
	Version   string            `json:"version"`
	ViewBox   ViewBox           `json:"view_box"`
	Nodes     map[string]Node   `json:"nodes"`
	Adjacency map[string][]Edge `json:"adjacency"`
	Routes    []PredefinedRoute `json:"routes,omitempty"`
}
