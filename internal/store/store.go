package store

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"github.com/joshharrison/schedloom/internal/baseline"
	"github.com/joshharrison/schedloom/internal/graph"
	"github.com/joshharrison/schedloom/internal/project"
)

var (
	// ErrNotFound is returned when a project, task, dependency or baseline
	// does not exist.
	ErrNotFound = errors.New("not found")

	// ErrCrossProject is returned when a dependency names a task that
	// belongs to a different project.
	ErrCrossProject = errors.New("task belongs to another project")
)

func projectKey(pid string) []byte { return []byte("project/" + pid) }

func taskPrefix(pid string) []byte { return []byte("task/" + pid + "/") }

func taskKey(pid string, id graph.TaskID) []byte {
	return []byte(fmt.Sprintf("task/%s/%020d", pid, id))
}

func depPrefix(pid string) []byte { return []byte("dep/" + pid + "/") }

func depKey(pid string, pred, succ graph.TaskID) []byte {
	return []byte(fmt.Sprintf("dep/%s/%020d/%020d", pid, pred, succ))
}

func baselinePrefix(pid string) []byte { return []byte("baseline/" + pid + "/") }

func baselineKey(pid string, rev int) []byte {
	return []byte(fmt.Sprintf("baseline/%s/%08d", pid, rev))
}

func getJSON(txn *badger.Txn, key []byte, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	return txn.Set(key, data)
}

// scan calls fn with the value of every key under prefix, in key order.
func scan(txn *badger.Txn, prefix []byte, fn func(val []byte) error) error {
	it := txn.NewIterator(badger.IteratorOptions{PrefetchValues: true, PrefetchSize: 100, Prefix: prefix})
	defer it.Close()
	for it.Rewind(); it.Valid(); it.Next() {
		if err := it.Item().Value(fn); err != nil {
			return err
		}
	}
	return nil
}

// keys returns copies of every key under prefix.
func keys(txn *badger.Txn, prefix []byte) [][]byte {
	it := txn.NewIterator(badger.IteratorOptions{Prefix: prefix})
	defer it.Close()
	var out [][]byte
	for it.Rewind(); it.Valid(); it.Next() {
		out = append(out, it.Item().KeyCopy(nil))
	}
	return out
}

func requireProject(txn *badger.Txn, pid string) error {
	if _, err := txn.Get(projectKey(pid)); err != nil {
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("project %q: %w", pid, ErrNotFound)
		}
		return err
	}
	return nil
}

// requireTask checks that id is a task of pid. A task found under another
// project yields ErrCrossProject.
func requireTask(txn *badger.Txn, pid string, id graph.TaskID) error {
	_, err := txn.Get(taskKey(pid, id))
	if err == nil {
		return nil
	}
	if !errors.Is(err, badger.ErrKeyNotFound) {
		return err
	}
	suffix := []byte(fmt.Sprintf("/%020d", id))
	for _, k := range keys(txn, []byte("task/")) {
		if bytes.HasSuffix(k, suffix) {
			return fmt.Errorf("task %d: %w", id, ErrCrossProject)
		}
	}
	return fmt.Errorf("task %d: %w", id, ErrNotFound)
}

// PutProject creates or replaces a project header.
func (s *Store) PutProject(p *project.Project) error {
	if p.ID == "" || strings.Contains(p.ID, "/") {
		return fmt.Errorf("invalid project id %q", p.ID)
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return setJSON(txn, projectKey(p.ID), p)
	})
}

// Project loads one project header.
func (s *Store) Project(pid string) (*project.Project, error) {
	var p project.Project
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, projectKey(pid), &p)
	})
	if errors.Is(err, ErrNotFound) {
		return nil, fmt.Errorf("project %q: %w", pid, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("load project %q: %w", pid, err)
	}
	return &p, nil
}

// Projects lists every project ordered by id.
func (s *Store) Projects() ([]*project.Project, error) {
	var out []*project.Project
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, []byte("project/"), func(val []byte) error {
			var p project.Project
			if err := json.Unmarshal(val, &p); err != nil {
				return err
			}
			out = append(out, &p)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out, nil
}

// Tasks loads every task of a project, archived ones included, ordered by id.
func (s *Store) Tasks(pid string) ([]*graph.Task, error) {
	var out []*graph.Task
	err := s.db.View(func(txn *badger.Txn) error {
		if err := requireProject(txn, pid); err != nil {
			return err
		}
		return scan(txn, taskPrefix(pid), func(val []byte) error {
			var t graph.Task
			if err := json.Unmarshal(val, &t); err != nil {
				return err
			}
			out = append(out, &t)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("load tasks: %w", err)
	}
	return out, nil
}

// PutTasks writes tasks in a single transaction: either every task is
// stored or none is.
func (s *Store) PutTasks(pid string, tasks []*graph.Task) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := requireProject(txn, pid); err != nil {
			return err
		}
		for _, t := range tasks {
			if err := setJSON(txn, taskKey(pid, t.ID), t); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("store tasks: %w", err)
	}
	return nil
}

// Dependencies loads every dependency of a project ordered by
// (predecessor, successor).
func (s *Store) Dependencies(pid string) ([]graph.Dependency, error) {
	var out []graph.Dependency
	err := s.db.View(func(txn *badger.Txn) error {
		if err := requireProject(txn, pid); err != nil {
			return err
		}
		var err error
		out, err = loadDependencies(txn, pid)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("load dependencies: %w", err)
	}
	return out, nil
}

func loadDependencies(txn *badger.Txn, pid string) ([]graph.Dependency, error) {
	var out []graph.Dependency
	err := scan(txn, depPrefix(pid), func(val []byte) error {
		var d graph.Dependency
		if err := json.Unmarshal(val, &d); err != nil {
			return err
		}
		out = append(out, d)
		return nil
	})
	return out, err
}

// AddDependency inserts a dependency after checking that both tasks belong
// to the project and that the edge is not a self-reference, a duplicate or
// the closing edge of a cycle. The check and the insert share one
// transaction, so a rejected edge leaves the dependency set unchanged.
func (s *Store) AddDependency(pid string, dep graph.Dependency) error {
	if !dep.Type.Valid() {
		return fmt.Errorf("add dependency %s: invalid type", dep)
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := requireProject(txn, pid); err != nil {
			return err
		}
		for _, id := range []graph.TaskID{dep.Predecessor, dep.Successor} {
			if err := requireTask(txn, pid, id); err != nil {
				return err
			}
		}
		existing, err := loadDependencies(txn, pid)
		if err != nil {
			return err
		}
		if err := graph.CheckNewEdge(existing, dep.Predecessor, dep.Successor); err != nil {
			return err
		}
		return setJSON(txn, depKey(pid, dep.Predecessor, dep.Successor), dep)
	})
	if err != nil {
		return fmt.Errorf("add dependency %s: %w", dep, err)
	}
	return nil
}

// RemoveDependency deletes the edge pred → succ.
func (s *Store) RemoveDependency(pid string, pred, succ graph.TaskID) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		key := depKey(pid, pred, succ)
		if _, err := txn.Get(key); err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return ErrNotFound
			}
			return err
		}
		return txn.Delete(key)
	})
	if err != nil {
		return fmt.Errorf("remove dependency %d → %d: %w", pred, succ, err)
	}
	return nil
}

// Import replaces a project with the given header, tasks and dependencies
// in one transaction. Every dependency must name two imported tasks and
// passes the same checks as AddDependency.
func (s *Store) Import(p *project.Project, tasks []*graph.Task, deps []graph.Dependency) error {
	if p.ID == "" || strings.Contains(p.ID, "/") {
		return fmt.Errorf("invalid project id %q", p.ID)
	}

	known := make(map[graph.TaskID]bool, len(tasks))
	for _, t := range tasks {
		known[t.ID] = true
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		for _, prefix := range [][]byte{taskPrefix(p.ID), depPrefix(p.ID)} {
			for _, k := range keys(txn, prefix) {
				if err := txn.Delete(k); err != nil {
					return err
				}
			}
		}
		if err := setJSON(txn, projectKey(p.ID), p); err != nil {
			return err
		}
		for _, t := range tasks {
			if err := setJSON(txn, taskKey(p.ID, t.ID), t); err != nil {
				return err
			}
		}

		accepted := make([]graph.Dependency, 0, len(deps))
		for _, d := range deps {
			for _, id := range []graph.TaskID{d.Predecessor, d.Successor} {
				if !known[id] {
					return &graph.InvalidGraphError{Dependency: d, Missing: id}
				}
			}
			if err := graph.CheckNewEdge(accepted, d.Predecessor, d.Successor); err != nil {
				return err
			}
			if err := setJSON(txn, depKey(p.ID, d.Predecessor, d.Successor), d); err != nil {
				return err
			}
			accepted = append(accepted, d)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("import project %q: %w", p.ID, err)
	}
	return nil
}

// PutBaseline stores b under the next free revision of its project and
// returns that revision.
func (s *Store) PutBaseline(b *baseline.Baseline) (int, error) {
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := requireProject(txn, b.ProjectID); err != nil {
			return err
		}
		b.Revision = len(keys(txn, baselinePrefix(b.ProjectID))) + 1
		return setJSON(txn, baselineKey(b.ProjectID, b.Revision), b)
	})
	if err != nil {
		return 0, fmt.Errorf("store baseline: %w", err)
	}
	return b.Revision, nil
}

// Baselines lists a project's baselines, oldest first.
func (s *Store) Baselines(pid string) ([]*baseline.Baseline, error) {
	var out []*baseline.Baseline
	err := s.db.View(func(txn *badger.Txn) error {
		return scan(txn, baselinePrefix(pid), func(val []byte) error {
			var b baseline.Baseline
			if err := json.Unmarshal(val, &b); err != nil {
				return err
			}
			out = append(out, &b)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("list baselines: %w", err)
	}
	return out, nil
}

// Baseline loads one revision. Revision 0 means the latest.
func (s *Store) Baseline(pid string, rev int) (*baseline.Baseline, error) {
	if rev == 0 {
		all, err := s.Baselines(pid)
		if err != nil {
			return nil, err
		}
		if len(all) == 0 {
			return nil, fmt.Errorf("baseline of %q: %w", pid, ErrNotFound)
		}
		return all[len(all)-1], nil
	}

	var b baseline.Baseline
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, baselineKey(pid, rev), &b)
	})
	if err != nil {
		return nil, fmt.Errorf("baseline %d of %q: %w", rev, pid, err)
	}
	return &b, nil
}
