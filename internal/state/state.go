package state

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

const (
	runsDir    = "runs"
	historyDir = "history"
)

// Status is the outcome of a scheduling run.
type Status string

const (
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
)

// Event is a tentative-schedule transition recorded after the run.
type Event struct {
	At     time.Time `json:"at"`
	Action string    `json:"action"` // "publish", "discard", "shift"
	Tasks  int       `json:"tasks"`
}

// RunState is the last-run record of one project.
type RunState struct {
	RunID          string     `json:"run_id"`
	ProjectID      string     `json:"project_id"`
	StartedAt      time.Time  `json:"started_at"`
	FinishedAt     *time.Time `json:"finished_at,omitempty"`
	Status         Status     `json:"status"`
	Mode           string     `json:"mode"`
	Anchor         time.Time  `json:"anchor"`
	Tentative      bool       `json:"tentative"`
	ScheduledCount int        `json:"scheduled_count"`
	CriticalCount  int        `json:"critical_count"`
	ProjectStart   *time.Time `json:"project_start,omitempty"`
	ProjectFinish  *time.Time `json:"project_finish,omitempty"`
	CriticalPath   []int64    `json:"critical_path,omitempty"`
	Warnings       []string   `json:"warnings,omitempty"`
	Error          string     `json:"error,omitempty"`
	Events         []Event    `json:"events,omitempty"`

	mu   sync.Mutex
	path string
}

// Dir is the state directory, usually ".schedloom".
type Dir string

func (d Dir) path(projectID string) string {
	return filepath.Join(string(d), runsDir, projectID+".json")
}

// New creates a running record for projectID and persists it. The
// previous record, if any, is moved to the project's history first.
func (d Dir) New(runID, projectID string) (*RunState, error) {
	if err := os.MkdirAll(filepath.Join(string(d), runsDir), 0o755); err != nil {
		return nil, fmt.Errorf("create state dir: %w", err)
	}
	if d.Exists(projectID) {
		if err := d.Archive(projectID); err != nil {
			return nil, err
		}
	}

	s := &RunState{
		RunID:     runID,
		ProjectID: projectID,
		StartedAt: time.Now().UTC(),
		Status:    StatusRunning,
		path:      d.path(projectID),
	}
	if err := s.Save(); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads the last-run record of projectID.
func (d Dir) Load(projectID string) (*RunState, error) {
	path := d.path(projectID)
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read state: %w", err)
	}

	var s RunState
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, fmt.Errorf("parse state: %w", err)
	}
	s.path = path
	return &s, nil
}

// Exists reports whether projectID has a last-run record.
func (d Dir) Exists(projectID string) bool {
	_, err := os.Stat(d.path(projectID))
	return err == nil
}

// Clean removes the record of projectID.
func (d Dir) Clean(projectID string) error {
	err := os.Remove(d.path(projectID))
	if os.IsNotExist(err) {
		return nil
	}
	return err
}

// Archive moves the current record of projectID into its history.
func (d Dir) Archive(projectID string) error {
	prev, err := d.Load(projectID)
	if err != nil {
		return err
	}
	dir := filepath.Join(string(d), historyDir, projectID)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	name := prev.StartedAt.UTC().Format("20060102-150405.000000000") + "-" + prev.RunID + ".json"
	if err := os.Rename(prev.path, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("archive run %s: %w", prev.RunID, err)
	}
	return nil
}

// History returns the archived records of projectID, newest first.
func (d Dir) History(projectID string) ([]*RunState, error) {
	dir := filepath.Join(string(d), historyDir, projectID)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".json" {
			names = append(names, e.Name())
		}
	}
	sort.Sort(sort.Reverse(sort.StringSlice(names)))

	out := make([]*RunState, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read history: %w", err)
		}
		var s RunState
		if err := json.Unmarshal(data, &s); err != nil {
			return nil, fmt.Errorf("parse history %s: %w", name, err)
		}
		out = append(out, &s)
	}
	return out, nil
}

// Save persists the record.
func (s *RunState) Save() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal state: %w", err)
	}
	return os.WriteFile(s.path, data, 0o644)
}

// Finish stamps the finish time, sets the status from err and saves.
func (s *RunState) Finish(err error) error {
	now := time.Now().UTC()
	s.mu.Lock()
	s.FinishedAt = &now
	s.Status = StatusCompleted
	if err != nil {
		s.Status = StatusFailed
		s.Error = err.Error()
	}
	s.mu.Unlock()
	return s.Save()
}

// Record appends a transition and saves.
func (s *RunState) Record(action string, tasks int) error {
	s.mu.Lock()
	s.Events = append(s.Events, Event{At: time.Now().UTC(), Action: action, Tasks: tasks})
	s.mu.Unlock()
	return s.Save()
}

// Duration is the wall time of the run, or time since start while running.
func (s *RunState) Duration() time.Duration {
	if s.FinishedAt != nil {
		return s.FinishedAt.Sub(s.StartedAt)
	}
	return time.Since(s.StartedAt)
}
