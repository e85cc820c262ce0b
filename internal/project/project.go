// Package project holds the project header that anchors a schedule and
// reads project files exported by the task-management system.
package project

import (
	"time"

	"github.com/joshharrison/schedloom/internal/cpm"
	"github.com/joshharrison/schedloom/internal/graph"
)

// ScheduleFrom values.
const (
	FromStartDate  = "start"
	FromFinishDate = "finish"
)

// Project is the header of a scheduled project.
type Project struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	ScheduleFrom string     `json:"schedule_from"`
	StartDate    *time.Time `json:"start_date,omitempty"`
	FinishDate   *time.Time `json:"finish_date,omitempty"`

	// Tasks whose canonical start falls outside this window are left alone.
	IgnoreTasksBefore *time.Time `json:"ignore_tasks_before,omitempty"`
	IgnoreTasksAfter  *time.Time `json:"ignore_tasks_after,omitempty"`

	// RespectResourceConstraints is carried for compatibility only; the
	// engine does not level resources.
	RespectResourceConstraints bool `json:"respect_resource_constraints,omitempty"`
}

// Anchor picks the scheduling anchor: the finish date when the project is
// scheduled from its finish and has one, otherwise the start date, or today
// when no start date is set.
func (p *Project) Anchor(today time.Time) cpm.Anchor {
	if p.ScheduleFrom == FromFinishDate && p.FinishDate != nil {
		return cpm.Anchor{Date: cpm.Day(*p.FinishDate), Mode: cpm.FromFinish}
	}
	if p.StartDate != nil {
		return cpm.Anchor{Date: cpm.Day(*p.StartDate), Mode: cpm.FromStart}
	}
	return cpm.Anchor{Date: cpm.Day(today), Mode: cpm.FromStart}
}

// OutsideWindow reports whether a task falls outside the project's
// scheduling window. Such tasks are treated as fixed inputs. Tasks with no
// canonical start are always inside.
func (p *Project) OutsideWindow(t *graph.Task) bool {
	if t.Start == nil {
		return false
	}
	start := cpm.Day(*t.Start)
	if p.IgnoreTasksBefore != nil && start.Before(cpm.Day(*p.IgnoreTasksBefore)) {
		return true
	}
	if p.IgnoreTasksAfter != nil && start.After(cpm.Day(*p.IgnoreTasksAfter)) {
		return true
	}
	return false
}
