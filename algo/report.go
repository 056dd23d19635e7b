package algo

import "sort"

// Stats summarises graph quality. Isolated nodes are a defect to fix by hand,
// not a reason to reject the graph.
type Stats struct {
	NodeCount       int      `json:"node_count"`
	EdgeCount       int      `json:"edge_count"` // undirected
	AverageDegree   float64  `json:"average_degree"`
	IsolatedNodes   []string `json:"isolated_nodes"`
	IsolatedPercent float64  `json:"isolated_percent"`
	Components      int      `json:"components"`
	RouteCount      int      `json:"predefined_routes"`
}

// Stats computes the validation summary.
func (g *Graph) Stats() Stats {
	s := Stats{NodeCount: len(g.Nodes), IsolatedNodes: []string{}, RouteCount: len(g.routes)}
	directed := 0
	for id := range g.Nodes {
		n := len(g.AdjList[id])
		directed += n
		if n == 0 {
			s.IsolatedNodes = append(s.IsolatedNodes, id)
		}
	}
	sort.Strings(s.IsolatedNodes)
	s.EdgeCount = directed / 2
	if s.NodeCount > 0 {
		s.AverageDegree = float64(directed) / float64(s.NodeCount)
		s.IsolatedPercent = 100 * float64(len(s.IsolatedNodes)) / float64(s.NodeCount)
	}
	s.Components = len(g.Components())
	return s
}

// Components returns the connected components, each sorted, largest first.
func (g *Graph) Components() [][]string {
	seen := make(map[string]bool, len(g.Nodes))
	var comps [][]string
	for _, id := range g.NodeIDs() {
		if seen[id] {
			continue
		}
		var comp []string
		stack := []string{id}
		seen[id] = true
		for len(stack) > 0 {
			cur := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			comp = append(comp, cur)
			for _, e := range g.AdjList[cur] {
				if !seen[e.To] {
					seen[e.To] = true
					stack = append(stack, e.To)
				}
			}
		}
		sort.Strings(comp)
		comps = append(comps, comp)
	}
	sort.SliceStable(comps, func(i, j int) bool { return len(comps[i]) > len(comps[j]) })
	return comps
}
