package project

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/schedloom/internal/cpm"
	"github.com/joshharrison/schedloom/internal/graph"
)

func day(s string) *time.Time {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		panic(err)
	}
	return &t
}

const closeYAML = `
project:
  id: close-2026-01
  name: January close
  schedule_from: start
  start_date: "2026-01-05"
  ignore_tasks_before: "2025-12-01"
tasks:
  - id: 1
    name: Bank reconciliation
    duration: 5
    sequence: 1
  - id: 2
    name: Accruals
    duration: 3
    parent: 1
    sequence: 2
  - id: 3
    name: Sign-off
    duration: 4
    milestone: true
    locked: true
    start: "2026-01-20"
    finish: "2026-01-20"
dependencies:
  - predecessor: 1
    successor: 2
  - predecessor: 2
    successor: 3
    type: ff
    lag: -1
`

func TestAnchor(t *testing.T) {
	today := time.Date(2026, 3, 9, 15, 30, 0, 0, time.UTC)

	tests := []struct {
		name string
		p    Project
		want cpm.Anchor
	}{
		{
			name: "start date",
			p:    Project{ScheduleFrom: FromStartDate, StartDate: day("2026-01-05")},
			want: cpm.Anchor{Date: *day("2026-01-05"), Mode: cpm.FromStart},
		},
		{
			name: "finish date",
			p:    Project{ScheduleFrom: FromFinishDate, StartDate: day("2026-01-05"), FinishDate: day("2026-02-01")},
			want: cpm.Anchor{Date: *day("2026-02-01"), Mode: cpm.FromFinish},
		},
		{
			name: "finish mode without finish date falls back to start",
			p:    Project{ScheduleFrom: FromFinishDate, StartDate: day("2026-01-05")},
			want: cpm.Anchor{Date: *day("2026-01-05"), Mode: cpm.FromStart},
		},
		{
			name: "no dates uses today",
			p:    Project{},
			want: cpm.Anchor{Date: *day("2026-03-09"), Mode: cpm.FromStart},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.p.Anchor(today)
			assert.True(t, tt.want.Date.Equal(got.Date), "date: want %v, got %v", tt.want.Date, got.Date)
			assert.Equal(t, tt.want.Mode, got.Mode)
		})
	}
}

func TestOutsideWindow(t *testing.T) {
	p := &Project{IgnoreTasksBefore: day("2026-01-01"), IgnoreTasksAfter: day("2026-01-31")}

	assert.False(t, p.OutsideWindow(&graph.Task{}), "undated task is inside")
	assert.False(t, p.OutsideWindow(&graph.Task{Start: day("2026-01-01")}))
	assert.False(t, p.OutsideWindow(&graph.Task{Start: day("2026-01-31")}))
	assert.True(t, p.OutsideWindow(&graph.Task{Start: day("2025-12-31")}))
	assert.True(t, p.OutsideWindow(&graph.Task{Start: day("2026-02-01")}))
	assert.False(t, (&Project{}).OutsideWindow(&graph.Task{Start: day("1999-01-01")}))
}

func TestParseYAML_Build(t *testing.T) {
	f, err := ParseYAML([]byte(closeYAML))
	require.NoError(t, err)

	p, tasks, deps, err := f.Build()
	require.NoError(t, err)

	assert.Equal(t, "close-2026-01", p.ID)
	assert.Equal(t, FromStartDate, p.ScheduleFrom)
	require.NotNil(t, p.StartDate)
	assert.Equal(t, "2026-01-05", FormatDate(p.StartDate))
	assert.Equal(t, "2025-12-01", FormatDate(p.IgnoreTasksBefore))
	assert.Nil(t, p.FinishDate)

	require.Len(t, tasks, 3)
	assert.Equal(t, graph.TaskID(1), tasks[0].ID)
	assert.Nil(t, tasks[0].ParentID)
	require.NotNil(t, tasks[1].ParentID)
	assert.Equal(t, graph.TaskID(1), *tasks[1].ParentID)
	assert.True(t, tasks[2].IsMilestone)
	assert.True(t, tasks[2].Locked)
	assert.Equal(t, "2026-01-20", FormatDate(tasks[2].Start))

	require.Len(t, deps, 2)
	assert.Equal(t, graph.Dependency{Predecessor: 1, Successor: 2, Type: graph.FS}, deps[0])
	assert.Equal(t, graph.Dependency{Predecessor: 2, Successor: 3, Type: graph.FF, Lag: -1}, deps[1])
}

func TestParseYAML_DefaultsScheduleFrom(t *testing.T) {
	f, err := ParseYAML([]byte("project:\n  id: p\n"))
	require.NoError(t, err)
	p, tasks, deps, err := f.Build()
	require.NoError(t, err)
	assert.Equal(t, FromStartDate, p.ScheduleFrom)
	assert.Empty(t, tasks)
	assert.Empty(t, deps)
}

func TestParseYAML_Invalid(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		msg  string
	}{
		{
			name: "missing project id",
			doc:  "tasks:\n  - id: 1\n",
			msg:  "Project.ID",
		},
		{
			name: "negative duration",
			doc:  "project: {id: p}\ntasks:\n  - id: 1\n    duration: -2\n",
			msg:  "Duration",
		},
		{
			name: "unknown dependency type",
			doc:  "project: {id: p}\ndependencies:\n  - {predecessor: 1, successor: 2, type: XX}\n",
			msg:  "Type",
		},
		{
			name: "bad date",
			doc:  "project: {id: p, start_date: \"05/01/2026\"}\n",
			msg:  "StartDate",
		},
		{
			name: "bad schedule_from",
			doc:  "project: {id: p, schedule_from: middle}\n",
			msg:  "ScheduleFrom",
		},
		{
			name: "duplicate task id",
			doc:  "project: {id: p}\ntasks:\n  - id: 4\n  - id: 4\n",
			msg:  "duplicate task id 4",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseYAML([]byte(tt.doc))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.msg)
		})
	}
}

func TestParseJSON_Aliases(t *testing.T) {
	doc := `{
		"project": {"project_id": "p-7", "title": "Audit", "schedule_from": "finish", "end_date": "2026-06-30T00:00:00Z"},
		"tasks": [
			{"id": 10, "title": "Fieldwork", "duration_days": 12, "is_milestone": false, "parent_id": null},
			{"id": "11", "name": "Report", "duration": 2, "parent_id": 10, "start_date": "2026-06-01"}
		],
		"dependencies": [
			{"predecessor_id": 10, "successor_id": 11, "dependency_type": "SS", "lag_days": 3}
		]
	}`

	f, err := ParseJSON([]byte(doc))
	require.NoError(t, err)

	p, tasks, deps, err := f.Build()
	require.NoError(t, err)

	assert.Equal(t, "p-7", p.ID)
	assert.Equal(t, "Audit", p.Name)
	assert.Equal(t, FromFinishDate, p.ScheduleFrom)
	assert.Equal(t, "2026-06-30", FormatDate(p.FinishDate))

	require.Len(t, tasks, 2)
	assert.Equal(t, "Fieldwork", tasks[0].Name)
	assert.Equal(t, 12, tasks[0].Duration)
	assert.Nil(t, tasks[0].ParentID)
	assert.Equal(t, graph.TaskID(11), tasks[1].ID)
	require.NotNil(t, tasks[1].ParentID)
	assert.Equal(t, graph.TaskID(10), *tasks[1].ParentID)
	assert.Equal(t, "2026-06-01", FormatDate(tasks[1].Start))

	require.Len(t, deps, 1)
	assert.Equal(t, graph.Dependency{Predecessor: 10, Successor: 11, Type: graph.SS, Lag: 3}, deps[0])
}

func TestParseJSON_TopLevelHeader(t *testing.T) {
	f, err := ParseJSON([]byte(`{"id": "flat", "start_date": "2026-02-02", "tasks": []}`))
	require.NoError(t, err)
	assert.Equal(t, "flat", f.Project.ID)
	assert.Equal(t, "2026-02-02", f.Project.StartDate)
}

func TestParseJSON_Malformed(t *testing.T) {
	_, err := ParseJSON([]byte(`{"project": `))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed")
}

func TestLoad_ByExtension(t *testing.T) {
	dir := t.TempDir()

	yamlPath := filepath.Join(dir, "close.yaml")
	require.NoError(t, os.WriteFile(yamlPath, []byte(closeYAML), 0o644))
	f, err := Load(yamlPath)
	require.NoError(t, err)
	assert.Len(t, f.Tasks, 3)

	jsonPath := filepath.Join(dir, "close.json")
	require.NoError(t, os.WriteFile(jsonPath, []byte(`{"project": {"id": "j"}, "tasks": [{"id": 1}]}`), 0o644))
	f, err = Load(jsonPath)
	require.NoError(t, err)
	assert.Equal(t, "j", f.Project.ID)

	_, err = Load(filepath.Join(dir, "missing.yaml"))
	require.Error(t, err)
}
