package plan

import (
	"errors"
	"fmt"
)

// Validation errors returned by Finalize.
var (
	// ErrEmptyPlan is returned for a plan with no tasks.
	ErrEmptyPlan = errors.New("plan has no tasks")

	// ErrUnknownDependency is returned when a task depends on an id that
	// does not exist in the plan.
	ErrUnknownDependency = errors.New("unknown task dependency")

	// ErrCircularDependency is returned when the dependency graph has a cycle.
	ErrCircularDependency = errors.New("circular task dependency")

	// ErrSelfDependency is returned when a task depends on itself.
	ErrSelfDependency = errors.New("task depends on itself")
)

// Validate checks the task graph: non-empty, every dependency id exists, and
// the dependency relation is acyclic. Validation is read-only and idempotent.
func Validate(d *Document) error {
	if len(d.Tasks) == 0 {
		return ErrEmptyPlan
	}

	idx := d.taskIndex()
	for _, t := range d.Tasks {
		for _, dep := range t.DependsOn {
			if dep == t.ID {
				return fmt.Errorf("%w: %s", ErrSelfDependency, t.ID)
			}
			if _, ok := idx[dep]; !ok {
				return fmt.Errorf("%w: task %s depends on %s", ErrUnknownDependency, t.ID, dep)
			}
		}
	}

	// Kahn's algorithm: peel zero-in-degree tasks; anything left sits on a cycle.
	inDegree := make(map[string]int, len(d.Tasks))
	dependentsOf := make(map[string][]string, len(d.Tasks))
	for _, t := range d.Tasks {
		inDegree[t.ID] = len(t.DependsOn)
		for _, dep := range t.DependsOn {
			dependentsOf[dep] = append(dependentsOf[dep], t.ID)
		}
	}

	queue := make([]string, 0, len(d.Tasks))
	for id, deg := range inDegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, dep := range dependentsOf[id] {
			inDegree[dep]--
			if inDegree[dep] == 0 {
				queue = append(queue, dep)
			}
		}
	}

	if processed != len(d.Tasks) {
		var stuck []string
		for id, deg := range inDegree {
			if deg > 0 {
				stuck = append(stuck, id)
			}
		}
		return fmt.Errorf("%w: involves tasks %v", ErrCircularDependency, stuck)
	}
	return nil
}
