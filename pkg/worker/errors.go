package worker

import (
	"errors"
	"fmt"

	"github.com/vulntor/bytehunter/pkg/task"
)

var (
	// ErrCategoryMismatch indicates a task was handed to the wrong worker.
	ErrCategoryMismatch = errors.New("task category does not match worker")

	// ErrTimeout indicates an external command exceeded its deadline.
	ErrTimeout = errors.New("external command timed out")

	// ErrMalformedOutput indicates a tool produced output that could not be used.
	ErrMalformedOutput = errors.New("malformed tool output")

	// ErrCommandFailed indicates an external command could not run or exited non-zero.
	ErrCommandFailed = errors.New("external command failed")

	// ErrInvalidParameter indicates a task parameter the worker cannot use.
	ErrInvalidParameter = errors.New("invalid task parameter")

	// ErrDuplicateWorker indicates a second worker was registered for a category.
	ErrDuplicateWorker = errors.New("worker already registered for category")

	// ErrNotRegistered indicates no worker handles a category.
	ErrNotRegistered = errors.New("no worker registered for category")
)

// Error is the failure payload of a worker invocation.
type Error struct {
	Category task.Category
	TaskID   string
	Op       string // operation that failed, empty for whole-task failures
	Cause    error
}

func (e *Error) Error() string {
	if e.Op != "" {
		return fmt.Sprintf("%s worker: task %s: %s: %v", e.Category, e.TaskID, e.Op, e.Cause)
	}
	return fmt.Sprintf("%s worker: task %s: %v", e.Category, e.TaskID, e.Cause)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

func newError(t task.Task, op string, cause error) *Error {
	return &Error{Category: t.Category, TaskID: t.ID, Op: op, Cause: cause}
}

// checkCategory rejects tasks of another category.
func checkCategory(w Worker, t task.Task) error {
	want := w.Metadata().Category
	if t.Category != want {
		return newError(t, "", fmt.Errorf("%w: %s worker cannot run %s task", ErrCategoryMismatch, want, t.Category))
	}
	return nil
}
