package plan

import "fmt"

// DanglingDependencyError reports a dependency on a task id that is
// absent from the plan. Raised at install time, never at runtime.
type DanglingDependencyError struct {
	TaskID    string
	DependsOn string
}

func (e *DanglingDependencyError) Error() string {
	return fmt.Sprintf("task %s depends on unknown task %s", e.TaskID, e.DependsOn)
}

// CycleError reports a dependency cycle. The path is one stable
// witness, not an enumeration of all cycles.
type CycleError struct {
	Path []string
}

func (e *CycleError) Error() string {
	if len(e.Path) == 0 {
		return "dependency cycle detected"
	}
	s := e.Path[0]
	for _, id := range e.Path[1:] {
		s += " -> " + id
	}
	return "dependency cycle: " + s
}

// DuplicateTaskError reports two tasks sharing an id.
type DuplicateTaskError struct {
	TaskID string
}

func (e *DuplicateTaskError) Error() string {
	return fmt.Sprintf("duplicate task id: %s", e.TaskID)
}

// UnknownTaskError reports an update against an id not in the plan.
type UnknownTaskError struct {
	TaskID string
}

func (e *UnknownTaskError) Error() string {
	return fmt.Sprintf("unknown task id: %s", e.TaskID)
}
