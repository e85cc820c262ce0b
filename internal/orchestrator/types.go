package orchestrator

import (
	"time"

	"github.com/joshharrison/schedloom/internal/baseline"
	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/project"
	"github.com/joshharrison/schedloom/internal/schedule"
)

// Config holds orchestrator configuration.
type Config struct {
	MaxParallel int              // projects scheduled at once by RunAll
	StateDir    string           // where run records go; empty disables them
	Now         func() time.Time // clock for "today" and baselines (default: time.Now)
}

// Store is the persistence the orchestrator drives. *store.Store
// implements it.
type Store interface {
	Project(pid string) (*project.Project, error)
	Projects() ([]*project.Project, error)
	Tasks(pid string) ([]*graph.Task, error)
	PutTasks(pid string, tasks []*graph.Task) error
	Dependencies(pid string) ([]graph.Dependency, error)
	AddDependency(pid string, dep graph.Dependency) error
	RemoveDependency(pid string, pred, succ graph.TaskID) error
	Import(p *project.Project, tasks []*graph.Task, deps []graph.Dependency) error
	PutBaseline(b *baseline.Baseline) (int, error)
	Baseline(pid string, rev int) (*baseline.Baseline, error)
}

// RunOptions controls one scheduling run.
type RunOptions struct {
	Tentative bool
}

// RunReport describes a completed run.
type RunReport struct {
	RunID    string
	Project  *project.Project
	Outcome  *schedule.Outcome
	Tasks    []*graph.Task // every task of the project after the run
	Duration time.Duration
}

// ProjectResult is one entry of a RunAll batch. Exactly one of Report and
// Err is set.
type ProjectResult struct {
	ProjectID string
	Report    *RunReport
	Err       error
}
