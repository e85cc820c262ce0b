package graph

import (
	"fmt"
	"strings"
	"time"
)

// TaskID identifies a task within a project.
type TaskID int64

// DepType is the precedence relation of a dependency.
type DepType int

const (
	FS DepType = iota // finish-to-start
	SS                // start-to-start
	FF                // finish-to-finish
	SF                // start-to-finish
)

// DepTypes lists every relation kind in declaration order.
var DepTypes = []DepType{FS, SS, FF, SF}

var depTypeNames = [...]string{FS: "FS", SS: "SS", FF: "FF", SF: "SF"}

func (d DepType) String() string {
	if d < FS || d > SF {
		return fmt.Sprintf("DepType(%d)", int(d))
	}
	return depTypeNames[d]
}

// Valid reports whether d is one of the four known relation kinds.
func (d DepType) Valid() bool {
	return d >= FS && d <= SF
}

// ParseDepType converts "FS", "SS", "FF" or "SF" (case-insensitive) into a DepType.
// An empty string yields FS.
func ParseDepType(s string) (DepType, error) {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return FS, nil
	}
	for i, name := range depTypeNames {
		if name == s {
			return DepType(i), nil
		}
	}
	return FS, fmt.Errorf("unknown dependency type %q", s)
}

func (d DepType) MarshalText() ([]byte, error) {
	if !d.Valid() {
		return nil, fmt.Errorf("invalid dependency type %d", int(d))
	}
	return []byte(d.String()), nil
}

func (d *DepType) UnmarshalText(b []byte) error {
	v, err := ParseDepType(string(b))
	if err != nil {
		return err
	}
	*d = v
	return nil
}

// Task is a unit of work as held by the task store.
// The Early/Late/Float/Critical fields are owned by the scheduler and
// overwritten on every run.
type Task struct {
	ID          TaskID  `json:"id"`
	Name        string  `json:"name"`
	Duration    int     `json:"duration"` // calendar days
	Locked      bool    `json:"locked,omitempty"`
	IsMilestone bool    `json:"is_milestone,omitempty"`
	Archived    bool    `json:"archived,omitempty"`
	ParentID    *TaskID `json:"parent_id,omitempty"`
	Sequence    int     `json:"sequence"`

	// Canonical planned dates.
	Start  *time.Time `json:"start,omitempty"`
	Finish *time.Time `json:"finish,omitempty"`

	EarlyStart  *time.Time `json:"early_start,omitempty"`
	EarlyFinish *time.Time `json:"early_finish,omitempty"`
	LateStart   *time.Time `json:"late_start,omitempty"`
	LateFinish  *time.Time `json:"late_finish,omitempty"`
	FloatDays   int        `json:"float_days"`
	IsCritical  bool       `json:"is_critical"`

	TentativeStart  *time.Time `json:"tentative_start,omitempty"`
	TentativeFinish *time.Time `json:"tentative_finish,omitempty"`
	TentativeActive bool       `json:"tentative_active,omitempty"`

	WBSCode  string `json:"wbs_code,omitempty"`
	WBSLevel int    `json:"wbs_level,omitempty"`
}

// EffectiveDuration is the duration used for scheduling: zero for
// milestones regardless of the stored value, never negative.
func (t *Task) EffectiveDuration() int {
	if t.IsMilestone || t.Duration < 0 {
		return 0
	}
	return t.Duration
}

// Dependency is a precedence edge between two tasks.
type Dependency struct {
	Predecessor TaskID  `json:"predecessor"`
	Successor   TaskID  `json:"successor"`
	Type        DepType `json:"type"`
	Lag         int     `json:"lag"` // signed days
}

func (d Dependency) String() string {
	lag := ""
	switch {
	case d.Lag > 0:
		lag = fmt.Sprintf("+%dd", d.Lag)
	case d.Lag < 0:
		lag = fmt.Sprintf("%dd", d.Lag)
	}
	return fmt.Sprintf("%d → %d (%s%s)", d.Predecessor, d.Successor, d.Type, lag)
}

// Edge is one adjacency entry: the node on the other end plus the relation.
type Edge struct {
	Node int
	Type DepType
	Lag  int
}

// Node is an arena slot for one task.
type Node struct {
	Task  *Task
	Fixed bool // locked or otherwise excluded from rescheduling
}

// TaskGraph is the adjacency view of a task set. Tasks live in a flat
// arena addressed by index; adjacency lists hold indices, not pointers.
type TaskGraph struct {
	Nodes  []Node
	Index  map[TaskID]int
	Preds  [][]Edge // node -> edges to its predecessors
	Succs  [][]Edge // node -> edges to its successors
	Roots  []int    // schedulable nodes with no predecessors
	Leaves []int    // schedulable nodes with no successors
}
