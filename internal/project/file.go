package project

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/joshharrison/schedloom/internal/graph"
)

// DateLayout is the calendar date format used in project files.
const DateLayout = "2006-01-02"

var validate = validator.New()

// File is a project export: the header, its tasks and their dependencies.
type File struct {
	Project      Header           `yaml:"project" json:"project"`
	Tasks        []TaskSpec       `yaml:"tasks" json:"tasks" validate:"dive"`
	Dependencies []DependencySpec `yaml:"dependencies" json:"dependencies" validate:"dive"`
}

// Header is the project record as written in a file.
type Header struct {
	ID                string `yaml:"id" json:"id" validate:"required,excludes=/"`
	Name              string `yaml:"name" json:"name"`
	ScheduleFrom      string `yaml:"schedule_from" json:"schedule_from" validate:"omitempty,oneof=start finish"`
	StartDate         string `yaml:"start_date" json:"start_date" validate:"omitempty,datetime=2006-01-02"`
	FinishDate        string `yaml:"finish_date" json:"finish_date" validate:"omitempty,datetime=2006-01-02"`
	IgnoreTasksBefore string `yaml:"ignore_tasks_before" json:"ignore_tasks_before" validate:"omitempty,datetime=2006-01-02"`
	IgnoreTasksAfter  string `yaml:"ignore_tasks_after" json:"ignore_tasks_after" validate:"omitempty,datetime=2006-01-02"`

	RespectResourceConstraints bool `yaml:"respect_resource_constraints" json:"respect_resource_constraints"`
}

// TaskSpec is one task as written in a file.
type TaskSpec struct {
	ID        int64  `yaml:"id" json:"id" validate:"required,gt=0"`
	Name      string `yaml:"name" json:"name"`
	Duration  int    `yaml:"duration" json:"duration" validate:"gte=0"`
	Locked    bool   `yaml:"locked" json:"locked"`
	Milestone bool   `yaml:"milestone" json:"milestone"`
	Archived  bool   `yaml:"archived" json:"archived"`
	Parent    int64  `yaml:"parent" json:"parent" validate:"gte=0"`
	Sequence  int    `yaml:"sequence" json:"sequence"`
	Start     string `yaml:"start" json:"start" validate:"omitempty,datetime=2006-01-02"`
	Finish    string `yaml:"finish" json:"finish" validate:"omitempty,datetime=2006-01-02"`
}

// DependencySpec is one dependency as written in a file.
type DependencySpec struct {
	Predecessor int64  `yaml:"predecessor" json:"predecessor" validate:"required,gt=0"`
	Successor   int64  `yaml:"successor" json:"successor" validate:"required,gt=0"`
	Type        string `yaml:"type" json:"type" validate:"omitempty,oneof=FS SS FF SF fs ss ff sf"`
	Lag         int    `yaml:"lag" json:"lag"`
}

// Load reads a project file. Files ending in .json are read with the
// tolerant JSON reader; anything else is parsed as YAML.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read project file: %w", err)
	}

	var f *File
	if strings.EqualFold(filepath.Ext(path), ".json") {
		f, err = ParseJSON(data)
	} else {
		f, err = ParseYAML(data)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// ParseYAML decodes and validates a YAML project file.
func ParseYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse YAML: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Validate checks field constraints and that task ids are unique.
func (f *File) Validate() error {
	if err := validate.Struct(f); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, len(verrs))
			for i, fe := range verrs {
				msgs[i] = fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag())
			}
			return fmt.Errorf("invalid project file: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid project file: %w", err)
	}

	seen := make(map[int64]bool, len(f.Tasks))
	for _, t := range f.Tasks {
		if seen[t.ID] {
			return fmt.Errorf("invalid project file: duplicate task id %d", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Build converts the file into the domain types. Dates are truncated to
// calendar days.
func (f *File) Build() (*Project, []*graph.Task, []graph.Dependency, error) {
	h := f.Project
	p := &Project{
		ID:                         h.ID,
		Name:                       h.Name,
		ScheduleFrom:               h.ScheduleFrom,
		RespectResourceConstraints: h.RespectResourceConstraints,
	}
	if p.ScheduleFrom == "" {
		p.ScheduleFrom = FromStartDate
	}

	var err error
	for _, d := range []struct {
		dst   **time.Time
		value string
		field string
	}{
		{&p.StartDate, h.StartDate, "start_date"},
		{&p.FinishDate, h.FinishDate, "finish_date"},
		{&p.IgnoreTasksBefore, h.IgnoreTasksBefore, "ignore_tasks_before"},
		{&p.IgnoreTasksAfter, h.IgnoreTasksAfter, "ignore_tasks_after"},
	} {
		if *d.dst, err = ParseDate(d.value); err != nil {
			return nil, nil, nil, fmt.Errorf("project %s: %w", d.field, err)
		}
	}

	tasks := make([]*graph.Task, 0, len(f.Tasks))
	for _, ts := range f.Tasks {
		t := &graph.Task{
			ID:          graph.TaskID(ts.ID),
			Name:        ts.Name,
			Duration:    ts.Duration,
			Locked:      ts.Locked,
			IsMilestone: ts.Milestone,
			Archived:    ts.Archived,
			Sequence:    ts.Sequence,
		}
		if ts.Parent > 0 {
			parent := graph.TaskID(ts.Parent)
			t.ParentID = &parent
		}
		if t.Start, err = ParseDate(ts.Start); err != nil {
			return nil, nil, nil, fmt.Errorf("task %d start: %w", ts.ID, err)
		}
		if t.Finish, err = ParseDate(ts.Finish); err != nil {
			return nil, nil, nil, fmt.Errorf("task %d finish: %w", ts.ID, err)
		}
		tasks = append(tasks, t)
	}

	deps := make([]graph.Dependency, 0, len(f.Dependencies))
	for _, ds := range f.Dependencies {
		typ, err := graph.ParseDepType(ds.Type)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("dependency %d → %d: %w", ds.Predecessor, ds.Successor, err)
		}
		deps = append(deps, graph.Dependency{
			Predecessor: graph.TaskID(ds.Predecessor),
			Successor:   graph.TaskID(ds.Successor),
			Type:        typ,
			Lag:         ds.Lag,
		})
	}

	return p, tasks, deps, nil
}

// ParseDate parses a calendar date. An empty string yields nil.
func ParseDate(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q (want YYYY-MM-DD)", s)
	}
	return &t, nil
}

// FormatDate renders a date for files and tables; nil renders as "".
func FormatDate(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(DateLayout)
}
