package algo

import (
	"container/heap"
	"math"
	"slices"

	"precinct-nav/model"
)

// Searchable is what the shortest-path searches need from a graph. Both the
// outdoor walkable graph and the fused hybrid graph implement it.
type Searchable interface {
	HasNode(id string) bool
	Neighbors(id string) []model.Edge
	Heuristic(from, to string) float64
}

// Path is an ordered node sequence with its total edge weight.
type Path struct {
	NodeIDs  []string
	Distance float64
}

// PriorityQueueItem is an open-set entry.
type PriorityQueueItem struct {
	NodeID string
	G      float64 // cost from start
	Cost   float64 // f = g + h
	Index  int     // position in the heap
}

// PriorityQueue implements heap.Interface ordered by lowest f.
type PriorityQueue []*PriorityQueueItem

func (pq PriorityQueue) Len() int { return len(pq) }

func (pq PriorityQueue) Less(i, j int) bool {
	return pq[i].Cost < pq[j].Cost
}

func (pq PriorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].Index = i
	pq[j].Index = j
}

func (pq *PriorityQueue) Push(x any) {
	item := x.(*PriorityQueueItem)
	item.Index = len(*pq)
	*pq = append(*pq, item)
}

func (pq *PriorityQueue) Pop() any {
	old := *pq
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	item.Index = -1
	*pq = old[:n-1]
	return item
}

// AStar finds the shortest path from start to goal. It returns an empty Path
// when goal is unreachable and a single-node path when start equals goal.
// Ties between equal f values are broken arbitrarily.
func AStar(s Searchable, startID, goalID string) Path {
	return AStarBounded(s, startID, goalID, math.Inf(1))
}

// AStarBounded is AStar that gives up on any partial path costing more than
// maxCost. Nodes may be reopened when a cheaper route to them appears, which
// keeps the search correct for heuristics that are admissible but not
// consistent.
func AStarBounded(s Searchable, startID, goalID string, maxCost float64) Path {
	if !s.HasNode(startID) || !s.HasNode(goalID) {
		return Path{}
	}
	if startID == goalID {
		return Path{NodeIDs: []string{startID}}
	}

	gScore := map[string]float64{startID: 0}
	cameFrom := make(map[string]string)

	pq := make(PriorityQueue, 0)
	heap.Init(&pq)
	heap.Push(&pq, &PriorityQueueItem{NodeID: startID, G: 0, Cost: s.Heuristic(startID, goalID)})

	for pq.Len() > 0 {
		current := heap.Pop(&pq).(*PriorityQueueItem)
		// stale entry, a cheaper one was pushed later
		if current.G > gScore[current.NodeID] {
			continue
		}
		if current.NodeID == goalID {
			return Path{NodeIDs: reconstruct(cameFrom, startID, goalID), Distance: current.G}
		}

		for _, edge := range s.Neighbors(current.NodeID) {
			g := current.G + edge.Dist
			if g > maxCost {
				continue
			}
			if old, seen := gScore[edge.To]; seen && g >= old {
				continue
			}
			gScore[edge.To] = g
			cameFrom[edge.To] = current.NodeID
			heap.Push(&pq, &PriorityQueueItem{
				NodeID: edge.To,
				G:      g,
				Cost:   g + s.Heuristic(edge.To, goalID),
			})
		}
	}
	return Path{}
}

// BreadthFirst finds a path with the fewest edges, ignoring weights. It is
// the connectivity fallback when A* returns nothing useful.
func BreadthFirst(s Searchable, startID, goalID string) []string {
	if !s.HasNode(startID) || !s.HasNode(goalID) {
		return nil
	}
	if startID == goalID {
		return []string{startID}
	}

	cameFrom := map[string]string{}
	visited := map[string]bool{startID: true}
	queue := []string{startID}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for _, edge := range s.Neighbors(current) {
			if visited[edge.To] {
				continue
			}
			visited[edge.To] = true
			cameFrom[edge.To] = current
			if edge.To == goalID {
				return reconstruct(cameFrom, startID, goalID)
			}
			queue = append(queue, edge.To)
		}
	}
	return nil
}

func reconstruct(cameFrom map[string]string, startID, goalID string) []string {
	path := []string{goalID}
	for at := goalID; at != startID; {
		at = cameFrom[at]
		path = append(path, at)
	}
	slices.Reverse(path)
	return path
}
