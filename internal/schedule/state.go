package schedule

import "github.com/joshharrison/schedloom/internal/graph"

// TaskState is where a task sits in the scheduling lifecycle.
type TaskState string

const (
	StateUnscheduled TaskState = "unscheduled"
	StateTentative   TaskState = "tentative"
	StateCommitted   TaskState = "committed"
	StateLocked      TaskState = "locked"
)

// StateOf derives the lifecycle state from a task's fields.
//
//	unscheduled --run(tentative)--> tentative --publish--> committed
//	tentative --discard--> unscheduled (or committed, if it already had dates)
//	committed --run--> tentative | committed
//
// Locked tasks stay outside the machine.
func StateOf(t *graph.Task) TaskState {
	switch {
	case t.Locked:
		return StateLocked
	case t.TentativeActive:
		return StateTentative
	case t.Start != nil && t.Finish != nil:
		return StateCommitted
	default:
		return StateUnscheduled
	}
}

// HasTentative reports whether any task holds an unpublished schedule.
func HasTentative(tasks []*graph.Task) bool {
	for _, t := range tasks {
		if t.TentativeActive {
			return true
		}
	}
	return false
}
