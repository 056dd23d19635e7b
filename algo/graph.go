package algo

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"sort"
	"sync"

	"precinct-nav/model"
	"precinct-nav/utils"
)

// Graph is a walkable graph. Nodes are referenced by id everywhere so the
// graph stays plain serializable data. After loading it is treated as
// read-only and may be queried concurrently.
type Graph struct {
	Version string
	ViewBox model.ViewBox
	Nodes   map[string]model.Node   // node id -> node
	AdjList map[string][]model.Edge // node id -> outgoing edges

	routes map[string]model.PredefinedRoute // routeKey(start, end) -> route

	indexMu sync.Mutex
	index   *SpatialIndex
}

// NewGraph creates an empty graph.
func NewGraph() *Graph {
	return &Graph{
		Nodes:   make(map[string]model.Node),
		AdjList: make(map[string][]model.Edge),
		routes:  make(map[string]model.PredefinedRoute),
	}
}

// AddNode inserts or replaces a node.
func (g *Graph) AddNode(n model.Node) {
	g.Nodes[n.ID] = n
	if _, ok := g.AdjList[n.ID]; !ok {
		g.AdjList[n.ID] = nil
	}
	g.Invalidate()
}

// AddEdge inserts the edge and its reverse. If the pair is already linked the
// shorter distance wins, so repeated tracing never creates parallel edges.
func (g *Graph) AddEdge(from, to string, dist float64, label string) error {
	if _, ok := g.Nodes[from]; !ok {
		return fmt.Errorf("edge from unknown node %s", from)
	}
	if _, ok := g.Nodes[to]; !ok {
		return fmt.Errorf("edge to unknown node %s", to)
	}
	if dist < 0 || math.IsNaN(dist) {
		return fmt.Errorf("edge %s-%s has invalid distance %v", from, to, dist)
	}
	g.upsertEdge(from, model.Edge{To: to, Dist: dist, Label: label})
	g.upsertEdge(to, model.Edge{To: from, Dist: dist, Label: label})
	return nil
}

func (g *Graph) upsertEdge(from string, e model.Edge) {
	edges := g.AdjList[from]
	for i := range edges {
		if edges[i].To == e.To {
			if e.Dist < edges[i].Dist {
				edges[i] = e
			}
			return
		}
	}
	g.AdjList[from] = append(edges, e)
}

// HasNode reports whether id is a node of the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.Nodes[id]
	return ok
}

// Neighbors returns the outgoing edges of a node.
func (g *Graph) Neighbors(id string) []model.Edge {
	return g.AdjList[id]
}

// Heuristic is the straight-line planar distance, admissible because every
// edge weighs at least the Euclidean length between its ends.
func (g *Graph) Heuristic(from, to string) float64 {
	a, ok1 := g.Nodes[from]
	b, ok2 := g.Nodes[to]
	if !ok1 || !ok2 {
		return 0
	}
	return utils.PlanarDistance(a.Planar(), b.Planar())
}

// EdgeBetween returns the shortest direct edge from a to b.
func (g *Graph) EdgeBetween(a, b string) (model.Edge, bool) {
	var best model.Edge
	found := false
	for _, e := range g.AdjList[a] {
		if e.To == b && (!found || e.Dist < best.Dist) {
			best, found = e, true
		}
	}
	return best, found
}

// NodeIDs returns all node ids in sorted order.
func (g *Graph) NodeIDs() []string {
	ids := make([]string, 0, len(g.Nodes))
	for id := range g.Nodes {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Routes returns the predefined routes sorted by start and end reference.
func (g *Graph) Routes() []model.PredefinedRoute {
	out := make([]model.PredefinedRoute, 0, len(g.routes))
	for _, r := range g.routes {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StartRef != out[j].StartRef {
			return out[i].StartRef < out[j].StartRef
		}
		return out[i].EndRef < out[j].EndRef
	})
	return out
}

// AddRoute validates a predefined route and stores it. A route must have at
// least two nodes and every consecutive pair must be joined by an edge.
func (g *Graph) AddRoute(r model.PredefinedRoute) error {
	if r.StartRef == "" || r.EndRef == "" {
		return fmt.Errorf("route needs both start and end references")
	}
	if len(r.NodeIDs) < 2 {
		return fmt.Errorf("route %s->%s has %d nodes", r.StartRef, r.EndRef, len(r.NodeIDs))
	}
	for i, id := range r.NodeIDs {
		if !g.HasNode(id) {
			return fmt.Errorf("route %s->%s references unknown node %s", r.StartRef, r.EndRef, id)
		}
		if i > 0 {
			if _, ok := g.EdgeBetween(r.NodeIDs[i-1], id); !ok {
				return fmt.Errorf("route %s->%s is not connected between %s and %s", r.StartRef, r.EndRef, r.NodeIDs[i-1], id)
			}
		}
	}
	r.NodeIDs = append([]string(nil), r.NodeIDs...)
	g.routes[routeKey(r.StartRef, r.EndRef)] = r
	return nil
}

// predefinedRoute looks a route up in either direction. A reverse match is
// returned with its node order flipped.
func (g *Graph) predefinedRoute(startRef, endRef string) ([]string, bool) {
	if startRef == "" || endRef == "" {
		return nil, false
	}
	if r, ok := g.routes[routeKey(startRef, endRef)]; ok {
		return append([]string(nil), r.NodeIDs...), true
	}
	if r, ok := g.routes[routeKey(endRef, startRef)]; ok {
		ids := make([]string, len(r.NodeIDs))
		for i, id := range r.NodeIDs {
			ids[len(ids)-1-i] = id
		}
		return ids, true
	}
	return nil, false
}

func routeKey(start, end string) string {
	return start + "\x00" + end
}

// PathDistance sums the edge weights along a node sequence. ok is false if a
// consecutive pair is not connected.
func (g *Graph) PathDistance(ids []string) (float64, bool) {
	total := 0.0
	for i := 1; i < len(ids); i++ {
		e, ok := g.EdgeBetween(ids[i-1], ids[i])
		if !ok {
			return total, false
		}
		total += e.Dist
	}
	return total, true
}

// FromMapData builds a graph from persisted data. Dangling adjacency entries,
// edges to unknown nodes, negative weights and broken predefined routes are
// dropped and reported as warnings.
func FromMapData(data model.MapData) (*Graph, []string) {
	g := NewGraph()
	g.Version = data.Version
	g.ViewBox = data.ViewBox
	var warnings []string

	for id, n := range data.Nodes {
		if n.ID != id {
			if n.ID != "" {
				warnings = append(warnings, fmt.Sprintf("node key %s does not match id %s, using key", id, n.ID))
			}
			n.ID = id
		}
		g.Nodes[id] = n
		g.AdjList[id] = nil
	}

	for _, from := range sortedKeys(data.Adjacency) {
		if !g.HasNode(from) {
			warnings = append(warnings, fmt.Sprintf("adjacency for unknown node %s dropped", from))
			continue
		}
		for _, e := range data.Adjacency[from] {
			if !g.HasNode(e.To) {
				warnings = append(warnings, fmt.Sprintf("edge %s->%s references unknown node, dropped", from, e.To))
				continue
			}
			if e.Dist < 0 || math.IsNaN(e.Dist) {
				warnings = append(warnings, fmt.Sprintf("edge %s->%s has invalid distance %v, dropped", from, e.To, e.Dist))
				continue
			}
			g.upsertEdge(from, e)
		}
	}

	for _, r := range data.Routes {
		if err := g.AddRoute(r); err != nil {
			warnings = append(warnings, "predefined route dropped: "+err.Error())
		}
	}
	return g, warnings
}

// ToMapData converts the graph into its persisted form.
func (g *Graph) ToMapData() model.MapData {
	data := model.MapData{
		Version:   g.Version,
		ViewBox:   g.ViewBox,
		Nodes:     make(map[string]model.Node, len(g.Nodes)),
		Adjacency: make(map[string][]model.Edge, len(g.AdjList)),
		Routes:    g.Routes(),
	}
	for id, n := range g.Nodes {
		data.Nodes[id] = n
	}
	for id, edges := range g.AdjList {
		data.Adjacency[id] = append([]model.Edge{}, edges...)
	}
	return data
}

// LoadFromJSON loads a graph written by SaveJSON.
func LoadFromJSON(path string) (*Graph, []string, error) {
	file, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read graph file: %w", err)
	}
	var data model.MapData
	if err := json.Unmarshal(file, &data); err != nil {
		return nil, nil, fmt.Errorf("parse graph JSON: %w", err)
	}
	g, warnings := FromMapData(data)
	return g, warnings, nil
}

// SaveJSON writes the graph as static data.
func (g *Graph) SaveJSON(path string) error {
	data, err := json.MarshalIndent(g.ToMapData(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode graph: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write graph file: %w", err)
	}
	return nil
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
