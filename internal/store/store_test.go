package store

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joshharrison/schedloom/internal/baseline"
	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/project"
)

func openTest(t *testing.T) *Store {
	t.Helper()
	s, err := Open(InMemoryConfig())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func seed(t *testing.T, s *Store, pid string, ids ...graph.TaskID) {
	t.Helper()
	tasks := make([]*graph.Task, len(ids))
	for i, id := range ids {
		tasks[i] = &graph.Task{ID: id, Name: "task", Duration: int(id)}
	}
	require.NoError(t, s.Import(&project.Project{ID: pid, ScheduleFrom: project.FromStartDate}, tasks, nil))
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{})
	require.Error(t, err)
}

func TestOpen_Persistent(t *testing.T) {
	dir := t.TempDir()

	s, err := Open(DefaultConfig(dir))
	require.NoError(t, err)
	seed(t, s, "p", 1)
	require.NoError(t, s.Close())

	s, err = Open(DefaultConfig(dir))
	require.NoError(t, err)
	defer s.Close()
	tasks, err := s.Tasks("p")
	require.NoError(t, err)
	assert.Len(t, tasks, 1)
}

func TestProjects(t *testing.T) {
	s := openTest(t)
	seed(t, s, "beta")
	seed(t, s, "alpha")

	ps, err := s.Projects()
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "alpha", ps[0].ID)
	assert.Equal(t, "beta", ps[1].ID)

	_, err = s.Project("gamma")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.Error(t, s.PutProject(&project.Project{ID: "a/b"}))
}

func TestTasks_RoundTrip(t *testing.T) {
	s := openTest(t)
	seed(t, s, "p", 12, 3, 100)

	tasks, err := s.Tasks("p")
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	assert.Equal(t, []graph.TaskID{3, 12, 100}, []graph.TaskID{tasks[0].ID, tasks[1].ID, tasks[2].ID})

	start := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	tasks[0].TentativeStart = &start
	tasks[0].TentativeActive = true
	tasks[0].WBSCode = "1.2"
	require.NoError(t, s.PutTasks("p", tasks))

	again, err := s.Tasks("p")
	require.NoError(t, err)
	assert.True(t, again[0].TentativeActive)
	assert.True(t, again[0].TentativeStart.Equal(start))
	assert.Equal(t, "1.2", again[0].WBSCode)

	_, err = s.Tasks("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.PutTasks("missing", tasks), ErrNotFound)
}

func TestAddDependency(t *testing.T) {
	s := openTest(t)
	seed(t, s, "p", 1, 2, 3)

	require.NoError(t, s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 2, Type: graph.SS, Lag: 2}))
	require.NoError(t, s.AddDependency("p", graph.Dependency{Predecessor: 2, Successor: 3}))

	deps, err := s.Dependencies("p")
	require.NoError(t, err)
	assert.Equal(t, []graph.Dependency{
		{Predecessor: 1, Successor: 2, Type: graph.SS, Lag: 2},
		{Predecessor: 2, Successor: 3, Type: graph.FS},
	}, deps)
}

func TestAddDependency_Rejections(t *testing.T) {
	s := openTest(t)
	seed(t, s, "p", 1, 2, 3)
	seed(t, s, "q", 50)
	require.NoError(t, s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 2}))
	require.NoError(t, s.AddDependency("p", graph.Dependency{Predecessor: 2, Successor: 3}))

	err := s.AddDependency("p", graph.Dependency{Predecessor: 3, Successor: 1})
	var circ *graph.CircularDependencyError
	require.True(t, errors.As(err, &circ), "expected CircularDependencyError, got %v", err)
	assert.Equal(t, []graph.TaskID{1, 2, 3}, circ.Path)

	err = s.AddDependency("p", graph.Dependency{Predecessor: 2, Successor: 2})
	assert.ErrorIs(t, err, graph.ErrSelfDependency)

	err = s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 2, Type: graph.FF})
	var dup *graph.DuplicateDependencyError
	assert.True(t, errors.As(err, &dup), "expected DuplicateDependencyError, got %v", err)

	err = s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 50})
	assert.ErrorIs(t, err, ErrCrossProject)

	err = s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 99})
	assert.ErrorIs(t, err, ErrNotFound)

	err = s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 3, Type: graph.DepType(9)})
	assert.Error(t, err)

	deps, err := s.Dependencies("p")
	require.NoError(t, err)
	assert.Len(t, deps, 2, "rejected edges must leave the dependency set unchanged")
}

func TestRemoveDependency(t *testing.T) {
	s := openTest(t)
	seed(t, s, "p", 1, 2)
	require.NoError(t, s.AddDependency("p", graph.Dependency{Predecessor: 1, Successor: 2}))

	require.NoError(t, s.RemoveDependency("p", 1, 2))
	assert.ErrorIs(t, s.RemoveDependency("p", 1, 2), ErrNotFound)

	deps, err := s.Dependencies("p")
	require.NoError(t, err)
	assert.Empty(t, deps)
}

func TestImport_ReplacesProject(t *testing.T) {
	s := openTest(t)
	p := &project.Project{ID: "p"}
	tasks := []*graph.Task{{ID: 1}, {ID: 2}, {ID: 3}}
	deps := []graph.Dependency{{Predecessor: 1, Successor: 2}, {Predecessor: 2, Successor: 3}}
	require.NoError(t, s.Import(p, tasks, deps))

	require.NoError(t, s.Import(p, []*graph.Task{{ID: 7}}, nil))
	got, err := s.Tasks("p")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, graph.TaskID(7), got[0].ID)
	gotDeps, err := s.Dependencies("p")
	require.NoError(t, err)
	assert.Empty(t, gotDeps)
}

func TestImport_RejectsBadEdgesAtomically(t *testing.T) {
	s := openTest(t)
	seed(t, s, "p", 1)

	tasks := []*graph.Task{{ID: 1}, {ID: 2}}
	err := s.Import(&project.Project{ID: "p"}, tasks, []graph.Dependency{
		{Predecessor: 1, Successor: 2},
		{Predecessor: 2, Successor: 1},
	})
	var circ *graph.CircularDependencyError
	require.True(t, errors.As(err, &circ), "expected CircularDependencyError, got %v", err)

	err = s.Import(&project.Project{ID: "p"}, tasks, []graph.Dependency{{Predecessor: 1, Successor: 8}})
	var ige *graph.InvalidGraphError
	require.True(t, errors.As(err, &ige), "expected InvalidGraphError, got %v", err)
	assert.Equal(t, graph.TaskID(8), ige.Missing)

	got, err := s.Tasks("p")
	require.NoError(t, err)
	assert.Len(t, got, 1, "failed import must not change the stored project")
}

func TestBaselines(t *testing.T) {
	s := openTest(t)
	seed(t, s, "p", 1)
	tasks, err := s.Tasks("p")
	require.NoError(t, err)

	now := time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC)
	rev, err := s.PutBaseline(baseline.Capture("p", 0, "first", tasks, now))
	require.NoError(t, err)
	assert.Equal(t, 1, rev)
	rev, err = s.PutBaseline(baseline.Capture("p", 0, "second", tasks, now))
	require.NoError(t, err)
	assert.Equal(t, 2, rev)

	all, err := s.Baselines("p")
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, "first", all[0].Name)

	latest, err := s.Baseline("p", 0)
	require.NoError(t, err)
	assert.Equal(t, "second", latest.Name)

	first, err := s.Baseline("p", 1)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Revision)

	_, err = s.Baseline("p", 9)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.Baseline("other", 0)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.PutBaseline(baseline.Capture("missing", 0, "", nil, now))
	assert.ErrorIs(t, err, ErrNotFound)
}
