package graph

import (
	"sort"
)

// FixedFunc decides whether a task is a read-only input rather than a
// schedulable node.
type FixedFunc func(*Task) bool

// IsLocked is the default FixedFunc.
func IsLocked(t *Task) bool {
	return t.Locked
}

// Build constructs a TaskGraph from a task set and its dependency edges.
//
// Archived tasks are left out of the graph along with any edge touching them.
// Tasks for which fixed returns true are kept as fixed nodes: their dates
// constrain their neighbours but they are never rescheduled. A nil fixed
// means IsLocked. An edge naming a task that is not in the set fails with
// *InvalidGraphError. Repeated edges for the same ordered pair keep the first.
func Build(tasks []*Task, deps []Dependency, fixed FixedFunc) (*TaskGraph, error) {
	if fixed == nil {
		fixed = IsLocked
	}

	known := make(map[TaskID]*Task, len(tasks))
	for _, t := range tasks {
		known[t.ID] = t
	}

	// Index active tasks in ID order for deterministic traversal.
	active := make([]*Task, 0, len(tasks))
	for _, t := range known {
		if !t.Archived {
			active = append(active, t)
		}
	}
	sort.Slice(active, func(i, j int) bool { return active[i].ID < active[j].ID })

	g := &TaskGraph{
		Nodes: make([]Node, len(active)),
		Index: make(map[TaskID]int, len(active)),
		Preds: make([][]Edge, len(active)),
		Succs: make([][]Edge, len(active)),
	}
	for i, t := range active {
		g.Nodes[i] = Node{Task: t, Fixed: fixed(t)}
		g.Index[t.ID] = i
	}

	edgeSet := make(map[[2]TaskID]bool)
	for _, d := range deps {
		for _, id := range []TaskID{d.Predecessor, d.Successor} {
			if _, ok := known[id]; !ok {
				return nil, &InvalidGraphError{Dependency: d, Missing: id}
			}
		}
		from, okFrom := g.Index[d.Predecessor]
		to, okTo := g.Index[d.Successor]
		if !okFrom || !okTo {
			// One endpoint is archived.
			continue
		}
		key := [2]TaskID{d.Predecessor, d.Successor}
		if edgeSet[key] {
			continue
		}
		edgeSet[key] = true
		g.Succs[from] = append(g.Succs[from], Edge{Node: to, Type: d.Type, Lag: d.Lag})
		g.Preds[to] = append(g.Preds[to], Edge{Node: from, Type: d.Type, Lag: d.Lag})
	}

	// Sort adjacency lists for deterministic ordering
	for i := range g.Nodes {
		sortEdges(g.Preds[i])
		sortEdges(g.Succs[i])
	}

	for i, n := range g.Nodes {
		if n.Fixed {
			continue
		}
		if len(g.Preds[i]) == 0 {
			g.Roots = append(g.Roots, i)
		}
		if len(g.Succs[i]) == 0 {
			g.Leaves = append(g.Leaves, i)
		}
	}

	return g, nil
}

func sortEdges(edges []Edge) {
	sort.SliceStable(edges, func(a, b int) bool { return edges[a].Node < edges[b].Node })
}

// ID returns the task ID stored at arena index i.
func (g *TaskGraph) ID(i int) TaskID {
	return g.Nodes[i].Task.ID
}

// TaskCount returns the number of active tasks in the graph, fixed ones included.
func (g *TaskGraph) TaskCount() int {
	return len(g.Nodes)
}

// Schedulable returns the arena indices of every non-fixed node in ID order.
func (g *TaskGraph) Schedulable() []int {
	var out []int
	for i, n := range g.Nodes {
		if !n.Fixed {
			out = append(out, i)
		}
	}
	return out
}

// DetectCycle returns the cycle path if one exists, or nil if the graph is acyclic.
// Uses DFS with coloring: white (unvisited), gray (in progress), black (done).
func (g *TaskGraph) DetectCycle() []TaskID {
	const (
		white = 0
		gray  = 1
		black = 2
	)

	color := make([]int, len(g.Nodes))
	parent := make([]int, len(g.Nodes))

	var dfs func(node int) []TaskID
	dfs = func(node int) []TaskID {
		color[node] = gray
		for _, e := range g.Succs[node] {
			next := e.Node
			if color[next] == gray {
				// Back edge: walk parents back to next
				cycle := []TaskID{g.ID(next), g.ID(node)}
				cur := node
				for cur != next {
					cur = parent[cur]
					cycle = append(cycle, g.ID(cur))
				}
				for i, j := 0, len(cycle)-1; i < j; i, j = i+1, j-1 {
					cycle[i], cycle[j] = cycle[j], cycle[i]
				}
				return cycle
			}
			if color[next] == white {
				parent[next] = node
				if cycle := dfs(next); cycle != nil {
					return cycle
				}
			}
		}
		color[node] = black
		return nil
	}

	for i := range g.Nodes {
		if color[i] == white {
			if cycle := dfs(i); cycle != nil {
				return cycle
			}
		}
	}
	return nil
}
