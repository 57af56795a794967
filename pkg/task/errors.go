package task

import "errors"

var (
	// ErrInvalidTask indicates a task failed structural validation.
	ErrInvalidTask = errors.New("invalid task")

	// ErrDuplicateTask indicates a task id is already present in the graph.
	ErrDuplicateTask = errors.New("duplicate task id")

	// ErrUnknownDependency indicates depends_on references an id outside the graph.
	ErrUnknownDependency = errors.New("unknown dependency")

	// ErrCycle indicates the dependency edges form a cycle.
	ErrCycle = errors.New("dependency cycle")

	// ErrNotFound indicates a lookup for an id that is not in the graph.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition indicates a status change the state machine forbids.
	ErrInvalidTransition = errors.New("invalid status transition")
)
