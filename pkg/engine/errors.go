package engine

import (
	"context"
	"errors"
	"fmt"

	"github.com/vulntor/bytehunter/pkg/task"
)

const (
	errorCodeNoProgress       = "NO_PROGRESS"
	errorCodeNoWorker         = "NO_WORKER"
	errorCodeInvalidTarget    = "INVALID_TARGET"
	errorCodeUnknownProfile   = "UNKNOWN_PROFILE"
	errorCodePlanLoadFailed   = "PLAN_LOAD_FAILED"
	errorCodeInvalidPlan      = "PLAN_INVALID"
	errorCodeWorkflowNotFound = "WORKFLOW_NOT_FOUND"
	errorCodeAlreadyExecuted  = "WORKFLOW_ALREADY_EXECUTED"
	errorCodeShutdown         = "ORCHESTRATOR_SHUT_DOWN"
	errorCodeReportWrite      = "REPORT_WRITE_FAILED"
	errorCodeCanceled         = "RUN_CANCELED"
	errorCodeRunFailed        = "RUN_FAILED"
)

var (
	// ErrNoProgress indicates nothing is runnable although the graph is not
	// exhausted. It aborts the run and is distinct from any task failure.
	ErrNoProgress = errors.New("scheduler cannot make progress")

	// ErrNoWorker indicates a task category has no registered worker.
	ErrNoWorker = errors.New("no worker registered for task category")

	// ErrWorkerPanic marks a task failure caused by a recovered worker panic.
	ErrWorkerPanic = errors.New("worker panicked")

	// ErrInvalidTarget indicates an empty or unusable assessment target.
	ErrInvalidTarget = errors.New("invalid target")

	// ErrUnknownProfile indicates a profile name the planner does not know.
	ErrUnknownProfile = errors.New("unknown assessment profile")

	// ErrPlanLoadFailed indicates a plan file could not be read or parsed.
	ErrPlanLoadFailed = errors.New("plan load failed")

	// ErrInvalidPlan indicates a plan whose tasks do not form a valid graph.
	ErrInvalidPlan = errors.New("plan invalid")

	// ErrWorkflowNotFound indicates an unknown workflow id.
	ErrWorkflowNotFound = errors.New("workflow not found")

	// ErrAlreadyExecuted indicates Execute was called twice for one workflow.
	ErrAlreadyExecuted = errors.New("workflow already executed")

	// ErrShutdown indicates the orchestrator no longer accepts work.
	ErrShutdown = errors.New("orchestrator is shut down")

	// ErrReportWrite indicates the rendered report could not be persisted.
	ErrReportWrite = errors.New("report write failed")
)

type errorCoder interface {
	error
	Code() string
}

type withCodeError struct {
	error
	code string
}

func (e *withCodeError) Code() string {
	return e.code
}

func (e *withCodeError) Unwrap() error {
	return e.error
}

// WithErrorCode annotates err with an orchestration error code.
func WithErrorCode(err error, code string) error {
	if err == nil {
		return nil
	}
	return &withCodeError{error: err, code: code}
}

// WrapPlanLoadError annotates a plan file failure.
func WrapPlanLoadError(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("%w: %w", ErrPlanLoadFailed, err), errorCodePlanLoadFailed)
}

// WrapInvalidPlan annotates a graph construction failure.
func WrapInvalidPlan(err error) error {
	if err == nil {
		return nil
	}
	return WithErrorCode(fmt.Errorf("%w: %w", ErrInvalidPlan, err), errorCodeInvalidPlan)
}

// ErrorCode resolves an error to its orchestration error code.
func ErrorCode(err error) string {
	if err == nil {
		return ""
	}

	var coded errorCoder
	if errors.As(err, &coded) {
		if code := coded.Code(); code != "" {
			return code
		}
	}

	switch {
	case errors.Is(err, ErrNoProgress):
		return errorCodeNoProgress
	case errors.Is(err, ErrNoWorker):
		return errorCodeNoWorker
	case errors.Is(err, ErrInvalidTarget):
		return errorCodeInvalidTarget
	case errors.Is(err, ErrUnknownProfile):
		return errorCodeUnknownProfile
	case errors.Is(err, ErrPlanLoadFailed):
		return errorCodePlanLoadFailed
	case errors.Is(err, ErrInvalidPlan),
		errors.Is(err, task.ErrCycle),
		errors.Is(err, task.ErrDuplicateTask),
		errors.Is(err, task.ErrUnknownDependency),
		errors.Is(err, task.ErrInvalidTask):
		return errorCodeInvalidPlan
	case errors.Is(err, ErrWorkflowNotFound):
		return errorCodeWorkflowNotFound
	case errors.Is(err, ErrAlreadyExecuted):
		return errorCodeAlreadyExecuted
	case errors.Is(err, ErrShutdown):
		return errorCodeShutdown
	case errors.Is(err, ErrReportWrite):
		return errorCodeReportWrite
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return errorCodeCanceled
	default:
		return errorCodeRunFailed
	}
}

// ExitCode maps errors to CLI exit codes.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget, errorCodeUnknownProfile, errorCodeInvalidPlan:
		return 2
	case errorCodeNoProgress, errorCodeNoWorker:
		return 3
	case errorCodePlanLoadFailed, errorCodeWorkflowNotFound:
		return 4
	case errorCodeCanceled:
		return 130
	default:
		return 1
	}
}

// HTTPStatus maps errors to HTTP status codes.
func HTTPStatus(err error) int {
	if err == nil {
		return 200
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget, errorCodeUnknownProfile, errorCodeInvalidPlan:
		return 400
	case errorCodeWorkflowNotFound, errorCodePlanLoadFailed:
		return 404
	case errorCodeAlreadyExecuted:
		return 409
	case errorCodeShutdown:
		return 503
	default:
		return 500
	}
}

// Suggestions provides human readable guidance for CLI usage.
func Suggestions(err error) []string {
	if err == nil {
		return nil
	}

	switch ErrorCode(err) {
	case errorCodeInvalidTarget:
		return []string{
			"Pass a hostname, domain or IP address as the target",
		}
	case errorCodeUnknownProfile:
		return []string{
			"Use --profile comprehensive or --profile quick",
			"Or describe the tasks in a plan file and pass --plan",
		}
	case errorCodePlanLoadFailed:
		return []string{
			"Verify the plan file path exists",
			"Ensure the file is valid YAML or JSON",
		}
	case errorCodeInvalidPlan:
		return []string{
			"Check that every depends_on entry names a task in the same plan",
			"Remove dependency cycles and duplicate task ids",
		}
	case errorCodeNoWorker:
		return []string{
			"Run bytehunter workers to list the supported categories",
		}
	case errorCodeNoProgress:
		return []string{
			"Re-run with --debug to see the task state transitions",
		}
	case errorCodeReportWrite:
		return []string{
			"Ensure the workspace directory is writable",
			"Retry with --no-report to skip persisting the report",
		}
	default:
		return nil
	}
}
