package cpm

import (
	"fmt"
	"strings"
	"time"

	"github.com/joshharrison/schedloom/internal/graph"
)

// Mode selects which end of the project the schedule is anchored to.
type Mode string

const (
	FromStart  Mode = "from_start"
	FromFinish Mode = "from_finish"
)

// Anchor is the fixed project date the passes are computed against.
type Anchor struct {
	Date time.Time
	Mode Mode
}

// CPMResult holds the complete critical path analysis. All day values are
// signed offsets from Anchor.Date.
type CPMResult struct {
	Anchor             Anchor
	Tasks              map[graph.TaskID]*TaskSchedule
	CriticalPath       []graph.TaskID // critical tasks ordered by ES, then ID
	ProjectStart       int
	ProjectEnd         int
	TotalDuration      int
	CriticalPathLength int // sum of critical task durations
	ScheduledCount     int
	CriticalCount      int
	Waves              []Wave // tasks sharing an early start day
	TopoOrder          []graph.TaskID
	Warnings           []error
}

// TaskSchedule holds the scheduling info for a single task.
type TaskSchedule struct {
	TaskID     graph.TaskID
	Duration   int
	ES, EF     int // earliest start/finish
	LS, LF     int // latest start/finish
	HasEarly   bool
	HasLate    bool
	Float      int
	IsCritical bool
	Wave       int
}

// Wave represents a group of tasks that can start on the same day.
type Wave struct {
	Index      int
	Day        int
	TaskIDs    []graph.TaskID
	IsCritical bool // true if wave contains critical path tasks
}

// Date converts a day offset into a calendar date.
func (r *CPMResult) Date(offset int) time.Time {
	return r.Anchor.Date.AddDate(0, 0, offset)
}

// CycleDetectedError is returned when a pass stops making progress: some
// schedulable tasks wait on each other and can never be computed.
type CycleDetectedError struct {
	Pass    string
	Pending []graph.TaskID
	Cycle   []graph.TaskID
}

func (e *CycleDetectedError) Error() string {
	msg := fmt.Sprintf("%s pass: dependency cycle detected (%d tasks could not be scheduled)", e.Pass, len(e.Pending))
	if len(e.Cycle) > 0 {
		parts := make([]string, len(e.Cycle))
		for i, id := range e.Cycle {
			parts[i] = fmt.Sprint(id)
		}
		msg += ": " + strings.Join(parts, " → ")
	}
	return msg
}

// EmptyScheduleWarning is reported in CPMResult.Warnings when no task is
// left to schedule once locked tasks are excluded. It is not a failure.
type EmptyScheduleWarning struct {
	Fixed int
}

func (w *EmptyScheduleWarning) Error() string {
	return fmt.Sprintf("no schedulable tasks (%d locked)", w.Fixed)
}

// Day truncates t to midnight UTC of its calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b.
func DaysBetween(a, b time.Time) int {
	return int(Day(b).Sub(Day(a)).Hours() / 24)
}
