// Package wbs assigns hierarchical work breakdown codes to a task tree.
package wbs

import (
	"fmt"
	"sort"
	"strings"

	"github.com/joshharrison/schedloom/internal/graph"
)

// SegmentWidth is the zero-padded width of one code segment in a sort key.
const SegmentWidth = 4

// lastKey sorts after every real code.
var lastKey = strings.Repeat("9", SegmentWidth)

// Recompute reassigns WBSCode and WBSLevel for every active task. Roots
// (no parent, or a parent outside the active set) are numbered 1, 2, 3...
// in sibling order; children append ".<n>" to their parent's code. Sibling
// order is Sequence, then ID. Archived tasks have their code cleared.
func Recompute(tasks []*graph.Task) {
	active := make(map[graph.TaskID]*graph.Task, len(tasks))
	for _, t := range tasks {
		if t.Archived {
			t.WBSCode, t.WBSLevel = "", 0
			continue
		}
		active[t.ID] = t
	}

	children := make(map[graph.TaskID][]*graph.Task)
	var roots []*graph.Task
	for _, t := range tasks {
		if t.Archived {
			continue
		}
		if t.ParentID != nil && *t.ParentID != t.ID {
			if _, ok := active[*t.ParentID]; ok {
				children[*t.ParentID] = append(children[*t.ParentID], t)
				continue
			}
		}
		roots = append(roots, t)
	}

	type frame struct {
		task *graph.Task
		code string
	}

	sortSiblings(roots)
	stack := make([]frame, 0, len(roots))
	for i := len(roots) - 1; i >= 0; i-- {
		stack = append(stack, frame{task: roots[i], code: fmt.Sprint(i + 1)})
	}

	visited := make(map[graph.TaskID]bool, len(active))
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if visited[f.task.ID] {
			continue
		}
		visited[f.task.ID] = true

		f.task.WBSCode = f.code
		f.task.WBSLevel = strings.Count(f.code, ".") + 1

		kids := children[f.task.ID]
		sortSiblings(kids)
		for i := len(kids) - 1; i >= 0; i-- {
			stack = append(stack, frame{task: kids[i], code: fmt.Sprintf("%s.%d", f.code, i+1)})
		}
	}

	// Tasks on a parent cycle are never reached from a root.
	for id, t := range active {
		if !visited[id] {
			t.WBSCode, t.WBSLevel = "", 0
		}
	}
}

func sortSiblings(ts []*graph.Task) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Sequence != ts[j].Sequence {
			return ts[i].Sequence < ts[j].Sequence
		}
		return ts[i].ID < ts[j].ID
	})
}

// SortKey pads every segment of code to SegmentWidth digits so that keys
// compare correctly as strings. An empty code sorts last.
func SortKey(code string) string {
	if code == "" {
		return lastKey
	}
	parts := strings.Split(code, ".")
	for i, p := range parts {
		if len(p) < SegmentWidth {
			parts[i] = strings.Repeat("0", SegmentWidth-len(p)) + p
		}
	}
	return strings.Join(parts, ".")
}

// Sort orders tasks by their WBS sort key, then ID.
func Sort(tasks []*graph.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		ki, kj := SortKey(tasks[i].WBSCode), SortKey(tasks[j].WBSCode)
		if ki != kj {
			return ki < kj
		}
		return tasks[i].ID < tasks[j].ID
	})
}

// Node is one entry of a WBS tree.
type Node struct {
	Task     *graph.Task `json:"task"`
	Children []*Node     `json:"children,omitempty"`
}

// Tree nests active tasks under their parents, each level ordered by WBS
// sort key. Tasks without a code are appended as top-level nodes.
func Tree(tasks []*graph.Task) []*Node {
	ordered := make([]*graph.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Archived {
			ordered = append(ordered, t)
		}
	}
	Sort(ordered)

	nodes := make(map[graph.TaskID]*Node, len(ordered))
	for _, t := range ordered {
		nodes[t.ID] = &Node{Task: t}
	}

	var roots []*Node
	for _, t := range ordered {
		n := nodes[t.ID]
		if t.WBSLevel > 1 && t.ParentID != nil {
			if parent, ok := nodes[*t.ParentID]; ok {
				parent.Children = append(parent.Children, n)
				continue
			}
		}
		roots = append(roots, n)
	}
	return roots
}
