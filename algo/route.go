package algo

import (
	"fmt"
	"math"
	"time"

	"precinct-nav/metrics"
	"precinct-nav/model"
	"precinct-nav/utils"
)

// Strategy records which method produced a route.
type Strategy string

const (
	StrategyPredefined Strategy = "predefined"
	StrategyAStar      Strategy = "astar"
	StrategyBFS        Strategy = "bfs"
	StrategyFailed     Strategy = "failed"
)

// FailureReason explains a failed query.
type FailureReason string

const (
	ReasonNone             FailureReason = ""
	ReasonStartUnreachable FailureReason = "start_unreachable"
	ReasonEndUnreachable   FailureReason = "end_unreachable"
	ReasonNoPath           FailureReason = "no_path"
	ReasonSameNode         FailureReason = "same_node"
)

// DefaultSearchRadii are the escalating nearest-node radii in render units.
var DefaultSearchRadii = []float64{500, 1000, 2000}

// Query is a route request in render space. StartRef and EndRef are optional
// semantic identifiers used to match predefined routes.
type Query struct {
	Start    model.PlanarPoint
	End      model.PlanarPoint
	StartRef string
	EndRef   string
}

// Options tune FindRoute. The zero value uses DefaultSearchRadii, the spatial
// index and no cost cap.
type Options struct {
	Radii       []float64
	LinearScan  bool
	MaxDistance float64
}

func (o Options) radii() []float64 {
	if len(o.Radii) == 0 {
		return DefaultSearchRadii
	}
	return o.Radii
}

// Diagnostics explains how a route was, or was not, produced.
type Diagnostics struct {
	Strategy      Strategy      `json:"strategy"`
	Reason        FailureReason `json:"reason,omitempty"`
	StartNode     *model.Node   `json:"start_node,omitempty"`
	EndNode       *model.Node   `json:"end_node,omitempty"`
	StartDistance float64       `json:"start_distance"`
	EndDistance   float64       `json:"end_distance"`
	StartRadius   float64       `json:"start_radius,omitempty"`
	EndRadius     float64       `json:"end_radius,omitempty"`
}

// RouteResult is the outcome of FindRoute. Found is false whenever the
// strategy is StrategyFailed.
type RouteResult struct {
	Found       bool         `json:"found"`
	NodeIDs     []string     `json:"node_ids,omitempty"`
	Nodes       []model.Node `json:"nodes,omitempty"`
	Distance    float64      `json:"distance"`
	Diagnostics Diagnostics  `json:"diagnostics"`
}

// FindRoute resolves both endpoints and searches a walkable route.
//
// Order of attempts: a predefined route matching the semantic references in
// either direction; nearest-node resolution at escalating radii; A*; BFS when
// A* yields fewer than two nodes. It never returns an error: failures are
// described by the diagnostics.
func (g *Graph) FindRoute(q Query, opts Options) RouteResult {
	start := time.Now()
	res := g.findRoute(q, opts)
	metrics.RouteSearchDuration.Observe(time.Since(start).Seconds())
	metrics.RouteQueriesTotal.WithLabelValues(string(res.Diagnostics.Strategy)).Inc()
	return res
}

func (g *Graph) findRoute(q Query, opts Options) RouteResult {
	var diag Diagnostics

	if ids, ok := g.predefinedRoute(q.StartRef, q.EndRef); ok {
		first, last := g.Nodes[ids[0]], g.Nodes[ids[len(ids)-1]]
		diag.Strategy = StrategyPredefined
		diag.StartNode, diag.EndNode = &first, &last
		diag.StartDistance = utils.PlanarDistance(q.Start, first.Planar())
		diag.EndDistance = utils.PlanarDistance(q.End, last.Planar())
		return g.result(ids, diag)
	}

	startNode, startDist, startRadius, ok := g.resolve(q.Start, opts)
	if !ok {
		diag.Strategy, diag.Reason = StrategyFailed, ReasonStartUnreachable
		return RouteResult{Diagnostics: diag}
	}
	diag.StartNode, diag.StartDistance, diag.StartRadius = &startNode, startDist, startRadius

	endNode, endDist, endRadius, ok := g.resolve(q.End, opts)
	if !ok {
		diag.Strategy, diag.Reason = StrategyFailed, ReasonEndUnreachable
		return RouteResult{Diagnostics: diag}
	}
	diag.EndNode, diag.EndDistance, diag.EndRadius = &endNode, endDist, endRadius

	maxCost := math.Inf(1)
	if opts.MaxDistance > 0 {
		maxCost = opts.MaxDistance
	}
	path := AStarBounded(g, startNode.ID, endNode.ID, maxCost)
	if len(path.NodeIDs) >= 2 {
		diag.Strategy = StrategyAStar
		return g.result(path.NodeIDs, diag)
	}

	ids := BreadthFirst(g, startNode.ID, endNode.ID)
	if len(ids) >= 2 {
		diag.Strategy = StrategyBFS
		return g.result(ids, diag)
	}

	diag.Strategy = StrategyFailed
	diag.Reason = ReasonNoPath
	if startNode.ID == endNode.ID {
		diag.Reason = ReasonSameNode
	}
	return RouteResult{Diagnostics: diag}
}

// resolve tries each radius in turn until a node qualifies.
func (g *Graph) resolve(p model.PlanarPoint, opts Options) (model.Node, float64, float64, bool) {
	for _, r := range opts.radii() {
		var (
			n  model.Node
			d  float64
			ok bool
		)
		if opts.LinearScan {
			n, d, ok = g.NearestNodeLinear(p, r)
		} else {
			n, d, ok = g.NearestNode(p, r)
		}
		if ok {
			return n, d, r, true
		}
	}
	return model.Node{}, 0, 0, false
}

func (g *Graph) result(ids []string, diag Diagnostics) RouteResult {
	nodes := make([]model.Node, len(ids))
	for i, id := range ids {
		nodes[i] = g.Nodes[id]
	}
	dist, _ := g.PathDistance(ids)
	return RouteResult{
		Found:       true,
		NodeIDs:     ids,
		Nodes:       nodes,
		Distance:    dist,
		Diagnostics: diag,
	}
}

// FormatRoute renders a route result as readable text.
func FormatRoute(res RouteResult) string {
	d := res.Diagnostics
	if !res.Found {
		out := fmt.Sprintf("No route (%s)\n", d.Reason)
		if d.StartNode != nil {
			out += fmt.Sprintf("start resolved to %s at %.1f units\n", d.StartNode.ID, d.StartDistance)
		}
		if d.EndNode != nil {
			out += fmt.Sprintf("end resolved to %s at %.1f units\n", d.EndNode.ID, d.EndDistance)
		}
		return out
	}

	output := fmt.Sprintf("Strategy: %s\n", d.Strategy)
	output += fmt.Sprintf("Distance: %.2f units\n", res.Distance)
	output += "Path:\n"
	for i, n := range res.Nodes {
		label := n.Label
		if label == "" {
			label = n.Type
		}
		output += fmt.Sprintf("%d. %s (%.1f, %.1f) %s\n", i+1, n.ID, n.X, n.Y, label)
	}
	return output
}
