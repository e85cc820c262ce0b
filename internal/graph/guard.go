package graph

import "sort"

// CheckNewEdge validates a proposed edge pred → succ against the existing
// dependency set. It rejects self references, duplicate ordered pairs, and
// any edge that would let succ reach pred through successor links.
func CheckNewEdge(existing []Dependency, pred, succ TaskID) error {
	if pred == succ {
		return ErrSelfDependency
	}

	successors := make(map[TaskID][]TaskID)
	for _, d := range existing {
		if d.Predecessor == pred && d.Successor == succ {
			return &DuplicateDependencyError{Predecessor: pred, Successor: succ}
		}
		successors[d.Predecessor] = append(successors[d.Predecessor], d.Successor)
	}
	for _, next := range successors {
		sort.Slice(next, func(i, j int) bool { return next[i] < next[j] })
	}

	if path := reachPath(successors, succ, pred); path != nil {
		return &CircularDependencyError{Predecessor: pred, Successor: succ, Path: path}
	}
	return nil
}

// reachPath runs an iterative depth-first search from start and returns the
// path to target, or nil when target is unreachable.
func reachPath(successors map[TaskID][]TaskID, start, target TaskID) []TaskID {
	parent := map[TaskID]TaskID{}
	visited := map[TaskID]bool{start: true}
	stack := []TaskID{start}

	for len(stack) > 0 {
		cur := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if cur == target {
			path := []TaskID{cur}
			for cur != start {
				cur = parent[cur]
				path = append(path, cur)
			}
			for i, j := 0, len(path)-1; i < j; i, j = i+1, j-1 {
				path[i], path[j] = path[j], path[i]
			}
			return path
		}

		next := successors[cur]
		for i := len(next) - 1; i >= 0; i-- {
			n := next[i]
			if visited[n] {
				continue
			}
			visited[n] = true
			parent[n] = cur
			stack = append(stack, n)
		}
	}
	return nil
}
