package project

import (
	"errors"
	"fmt"
	"strings"

	"github.com/tidwall/gjson"
)

// ParseJSON reads a JSON project export. Exports from the task-management
// system are not uniform, so several fields accept more than one name
// (duration or duration_days, predecessor or predecessor_id, lag or
// lag_days, type or dependency_type and so on); the first one present wins.
// The header may sit under "project" or at the top level.
func ParseJSON(data []byte) (*File, error) {
	if !gjson.ValidBytes(data) {
		return nil, errors.New("parse JSON: malformed document")
	}
	doc := gjson.ParseBytes(data)

	proj := doc.Get("project")
	if !proj.Exists() {
		proj = doc
	}

	f := &File{
		Project: Header{
			ID:                         first(proj, "id", "project_id").String(),
			Name:                       first(proj, "name", "title").String(),
			ScheduleFrom:               first(proj, "schedule_from").String(),
			StartDate:                  dateOnly(first(proj, "start_date")),
			FinishDate:                 dateOnly(first(proj, "finish_date", "end_date")),
			IgnoreTasksBefore:          dateOnly(first(proj, "ignore_tasks_before")),
			IgnoreTasksAfter:           dateOnly(first(proj, "ignore_tasks_after")),
			RespectResourceConstraints: first(proj, "respect_resource_constraints").Bool(),
		},
	}

	doc.Get("tasks").ForEach(func(_, item gjson.Result) bool {
		f.Tasks = append(f.Tasks, TaskSpec{
			ID:        first(item, "id").Int(),
			Name:      first(item, "name", "title").String(),
			Duration:  int(first(item, "duration", "duration_days").Int()),
			Locked:    first(item, "locked", "is_locked").Bool(),
			Milestone: first(item, "milestone", "is_milestone").Bool(),
			Archived:  first(item, "archived", "is_archived").Bool(),
			Parent:    first(item, "parent", "parent_id").Int(),
			Sequence:  int(first(item, "sequence").Int()),
			Start:     dateOnly(first(item, "start", "start_date")),
			Finish:    dateOnly(first(item, "finish", "end_date", "finish_date")),
		})
		return true
	})

	doc.Get("dependencies").ForEach(func(_, item gjson.Result) bool {
		f.Dependencies = append(f.Dependencies, DependencySpec{
			Predecessor: first(item, "predecessor", "predecessor_id").Int(),
			Successor:   first(item, "successor", "successor_id").Int(),
			Type:        first(item, "type", "dependency_type").String(),
			Lag:         int(first(item, "lag", "lag_days").Int()),
		})
		return true
	})

	if err := f.Validate(); err != nil {
		return nil, fmt.Errorf("parse JSON: %w", err)
	}
	return f, nil
}

// dateOnly drops a time-of-day suffix so that "2026-01-05T00:00:00Z"
// reads as "2026-01-05".
func dateOnly(v gjson.Result) string {
	s := v.String()
	if i := strings.IndexByte(s, 'T'); i == len(DateLayout) {
		return s[:i]
	}
	return s
}

// first returns the first of keys present on r. A JSON null counts as
// absent.
func first(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() && v.Type != gjson.Null {
			return v
		}
	}
	return gjson.Result{}
}
