package graph

import (
	"errors"
	"fmt"
	"strings"
)

// ErrSelfDependency is returned when a task is asked to depend on itself.
var ErrSelfDependency = errors.New("a task cannot depend on itself")

// InvalidGraphError reports a dependency whose endpoint is not in the task set.
type InvalidGraphError struct {
	Dependency Dependency
	Missing    TaskID
}

func (e *InvalidGraphError) Error() string {
	return fmt.Sprintf("invalid graph: dependency %s references unknown task %d", e.Dependency, e.Missing)
}

// CircularDependencyError is returned by the cycle guard when a new edge
// would close a cycle. Path runs from the proposed successor back to the
// proposed predecessor.
type CircularDependencyError struct {
	Predecessor TaskID
	Successor   TaskID
	Path        []TaskID
}

func (e *CircularDependencyError) Error() string {
	parts := make([]string, len(e.Path))
	for i, id := range e.Path {
		parts[i] = fmt.Sprint(id)
	}
	return fmt.Sprintf("dependency %d → %d would create a circular reference (%s → %d)",
		e.Predecessor, e.Successor, strings.Join(parts, " → "), e.Successor)
}

// DuplicateDependencyError is returned when an edge for the same ordered
// pair already exists.
type DuplicateDependencyError struct {
	Predecessor TaskID
	Successor   TaskID
}

func (e *DuplicateDependencyError) Error() string {
	return fmt.Sprintf("a dependency from %d to %d already exists", e.Predecessor, e.Successor)
}
