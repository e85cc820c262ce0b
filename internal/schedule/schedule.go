// Package schedule runs the CPM engine over a task set and commits the
// result to the tasks' canonical or tentative fields.
package schedule

import (
	"fmt"
	"time"

	"github.com/joshharrison/schedloom/internal/cpm"
	"github.com/joshharrison/schedloom/internal/graph"
)

// Options controls one scheduling run.
type Options struct {
	Anchor    cpm.Anchor
	Tentative bool
	// Fixed marks additional tasks as read-only inputs. Locked tasks are
	// always fixed.
	Fixed graph.FixedFunc
}

// Outcome is what a run reports back to its caller.
type Outcome struct {
	Result         *cpm.CPMResult
	ScheduledCount int
	CriticalCount  int
	Tentative      bool
}

// Run builds the graph, runs both passes and applies the result to tasks.
// Tasks are only written after both passes succeed, so a failed run leaves
// every task untouched.
func Run(tasks []*graph.Task, deps []graph.Dependency, opts Options) (*Outcome, error) {
	fixed := graph.IsLocked
	if opts.Fixed != nil {
		fixed = func(t *graph.Task) bool { return t.Locked || opts.Fixed(t) }
	}

	g, err := graph.Build(tasks, deps, fixed)
	if err != nil {
		return nil, fmt.Errorf("build task graph: %w", err)
	}

	result, err := cpm.Analyze(g, opts.Anchor)
	if err != nil {
		return nil, fmt.Errorf("CPM analysis: %w", err)
	}

	Apply(tasks, result, opts.Tentative)

	return &Outcome{
		Result:         result,
		ScheduledCount: result.ScheduledCount,
		CriticalCount:  result.CriticalCount,
		Tentative:      opts.Tentative,
	}, nil
}

// Apply writes result into the matching tasks. Late dates, float and
// criticality are always written. Early dates go to the tentative fields
// when tentative is set, and to the canonical Start/Finish otherwise. A
// direct run supersedes any pending tentative schedule on the task.
// Tasks absent from result (locked, archived) are not touched.
func Apply(tasks []*graph.Task, result *cpm.CPMResult, tentative bool) {
	for _, t := range tasks {
		ts, ok := result.Tasks[t.ID]
		if !ok {
			continue
		}

		t.EarlyStart, t.EarlyFinish = nil, nil
		if ts.HasEarly {
			t.EarlyStart = datePtr(result.Date(ts.ES))
			t.EarlyFinish = datePtr(result.Date(ts.EF))
		}
		t.LateStart, t.LateFinish = nil, nil
		if ts.HasLate {
			t.LateStart = datePtr(result.Date(ts.LS))
			t.LateFinish = datePtr(result.Date(ts.LF))
		}
		t.FloatDays = ts.Float
		t.IsCritical = ts.IsCritical

		if tentative {
			t.TentativeStart = copyDate(t.EarlyStart)
			t.TentativeFinish = copyDate(t.EarlyFinish)
			t.TentativeActive = true
		} else {
			t.Start = copyDate(t.EarlyStart)
			t.Finish = copyDate(t.EarlyFinish)
			t.TentativeStart, t.TentativeFinish = nil, nil
			t.TentativeActive = false
		}
	}
}

// Publish copies the tentative dates of every task with an active
// tentative schedule into its canonical dates and returns how many were
// committed.
func Publish(tasks []*graph.Task) int {
	committed := 0
	for _, t := range tasks {
		if !t.TentativeActive {
			continue
		}
		t.Start = copyDate(t.TentativeStart)
		t.Finish = copyDate(t.TentativeFinish)
		t.TentativeActive = false
		committed++
	}
	return committed
}

// Discard clears the tentative fields of every task. Canonical dates are
// left alone. It returns how many tasks had an active tentative schedule.
func Discard(tasks []*graph.Task) int {
	cleared := 0
	for _, t := range tasks {
		if t.TentativeActive {
			cleared++
		}
		t.TentativeStart = nil
		t.TentativeFinish = nil
		t.TentativeActive = false
	}
	return cleared
}

// Shift moves the canonical dates of every unlocked task by days and
// returns how many tasks moved.
func Shift(tasks []*graph.Task, days int) int {
	moved := 0
	for _, t := range tasks {
		if t.Locked || (t.Start == nil && t.Finish == nil) {
			continue
		}
		if t.Start != nil {
			t.Start = datePtr(t.Start.AddDate(0, 0, days))
		}
		if t.Finish != nil {
			t.Finish = datePtr(t.Finish.AddDate(0, 0, days))
		}
		moved++
	}
	return moved
}

func datePtr(t time.Time) *time.Time {
	return &t
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	return datePtr(*t)
}
