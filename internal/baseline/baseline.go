// Package baseline snapshots a project's committed schedule and reports how
// the current plan has drifted from it.
package baseline

import (
	"time"

	"github.com/joshharrison/schedloom/internal/cpm"
	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/wbs"
)

// Baseline is a frozen copy of a project's canonical dates.
type Baseline struct {
	ProjectID   string     `json:"project_id"`
	Revision    int        `json:"revision"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	Start       *time.Time `json:"start,omitempty"`  // earliest task start
	Finish      *time.Time `json:"finish,omitempty"` // latest task finish
	Tasks       []Snapshot `json:"tasks"`
}

// Snapshot is one task as it stood when the baseline was taken.
type Snapshot struct {
	TaskID   graph.TaskID `json:"task_id"`
	Name     string       `json:"name"`
	WBSCode  string       `json:"wbs_code,omitempty"`
	Duration int          `json:"duration"`
	Start    *time.Time   `json:"start,omitempty"`
	Finish   *time.Time   `json:"finish,omitempty"`
}

// Capture snapshots every active task. The caller assigns the revision.
func Capture(projectID string, revision int, name string, tasks []*graph.Task, now time.Time) *Baseline {
	b := &Baseline{
		ProjectID: projectID,
		Revision:  revision,
		Name:      name,
		CreatedAt: now.UTC(),
	}

	active := make([]*graph.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Archived {
			active = append(active, t)
		}
	}
	wbs.Sort(active)

	for _, t := range active {
		b.Tasks = append(b.Tasks, Snapshot{
			TaskID:   t.ID,
			Name:     t.Name,
			WBSCode:  t.WBSCode,
			Duration: t.EffectiveDuration(),
			Start:    copyDate(t.Start),
			Finish:   copyDate(t.Finish),
		})
		if t.Start != nil && (b.Start == nil || t.Start.Before(*b.Start)) {
			b.Start = copyDate(t.Start)
		}
		if t.Finish != nil && (b.Finish == nil || t.Finish.After(*b.Finish)) {
			b.Finish = copyDate(t.Finish)
		}
	}
	return b
}

// Status classifies a task in a comparison.
type Status string

const (
	Unchanged Status = "unchanged"
	Slipped   Status = "slipped" // finishes later than baselined
	Ahead     Status = "ahead"   // finishes earlier than baselined
	Added     Status = "added"   // not in the baseline
	Removed   Status = "removed" // in the baseline, no longer active
)

// Variance is the drift of one task. Day variances are current minus
// baseline, and zero when either side has no date.
type Variance struct {
	TaskID         graph.TaskID `json:"task_id"`
	Name           string       `json:"name"`
	WBSCode        string       `json:"wbs_code,omitempty"`
	Status         Status       `json:"status"`
	BaselineStart  *time.Time   `json:"baseline_start,omitempty"`
	BaselineFinish *time.Time   `json:"baseline_finish,omitempty"`
	Start          *time.Time   `json:"start,omitempty"`
	Finish         *time.Time   `json:"finish,omitempty"`
	StartDays      int          `json:"start_variance_days"`
	FinishDays     int          `json:"finish_variance_days"`
	DurationDays   int          `json:"duration_variance_days"`
}

// Compare reports the variance of every task in either the baseline or the
// current active set, in current WBS order followed by removed tasks.
func Compare(b *Baseline, tasks []*graph.Task) []Variance {
	snaps := make(map[graph.TaskID]Snapshot, len(b.Tasks))
	for _, s := range b.Tasks {
		snaps[s.TaskID] = s
	}

	active := make([]*graph.Task, 0, len(tasks))
	for _, t := range tasks {
		if !t.Archived {
			active = append(active, t)
		}
	}
	wbs.Sort(active)

	out := make([]Variance, 0, len(active))
	seen := make(map[graph.TaskID]bool, len(active))
	for _, t := range active {
		seen[t.ID] = true
		v := Variance{
			TaskID:  t.ID,
			Name:    t.Name,
			WBSCode: t.WBSCode,
			Start:   copyDate(t.Start),
			Finish:  copyDate(t.Finish),
		}
		s, ok := snaps[t.ID]
		if !ok {
			v.Status = Added
			out = append(out, v)
			continue
		}
		v.BaselineStart, v.BaselineFinish = copyDate(s.Start), copyDate(s.Finish)
		v.StartDays = daysBetween(s.Start, t.Start)
		v.FinishDays = daysBetween(s.Finish, t.Finish)
		v.DurationDays = t.EffectiveDuration() - s.Duration
		switch {
		case v.FinishDays > 0:
			v.Status = Slipped
		case v.FinishDays < 0:
			v.Status = Ahead
		default:
			v.Status = Unchanged
		}
		out = append(out, v)
	}

	for _, s := range b.Tasks {
		if seen[s.TaskID] {
			continue
		}
		out = append(out, Variance{
			TaskID:         s.TaskID,
			Name:           s.Name,
			WBSCode:        s.WBSCode,
			Status:         Removed,
			BaselineStart:  copyDate(s.Start),
			BaselineFinish: copyDate(s.Finish),
		})
	}
	return out
}

func daysBetween(from, to *time.Time) int {
	if from == nil || to == nil {
		return 0
	}
	return cpm.DaysBetween(*from, *to)
}

func copyDate(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	d := *t
	return &d
}
