package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/vulntor/bytehunter/pkg/task"
)

func TestErrorCodeMapping(t *testing.T) {
	tests := []struct {
		name   string
		err    error
		code   string
		exit   int
		status int
	}{
		{"nil", nil, "", 0, 200},
		{"no progress", fmt.Errorf("run wf: %w", ErrNoProgress), errorCodeNoProgress, 3, 500},
		{"no worker", ErrNoWorker, errorCodeNoWorker, 3, 500},
		{"invalid target", ErrInvalidTarget, errorCodeInvalidTarget, 2, 400},
		{"unknown profile", ErrUnknownProfile, errorCodeUnknownProfile, 2, 400},
		{"plan load", WrapPlanLoadError(errors.New("boom")), errorCodePlanLoadFailed, 4, 404},
		{"raw cycle", fmt.Errorf("build: %w", task.ErrCycle), errorCodeInvalidPlan, 2, 400},
		{"not found", ErrWorkflowNotFound, errorCodeWorkflowNotFound, 4, 404},
		{"already executed", ErrAlreadyExecuted, errorCodeAlreadyExecuted, 1, 409},
		{"shutdown", ErrShutdown, errorCodeShutdown, 1, 503},
		{"report write", ErrReportWrite, errorCodeReportWrite, 1, 500},
		{"canceled", fmt.Errorf("run: %w", context.Canceled), errorCodeCanceled, 130, 500},
		{"deadline", context.DeadlineExceeded, errorCodeCanceled, 130, 500},
		{"other", errors.New("something else"), errorCodeRunFailed, 1, 500},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, ErrorCode(tt.err))
			assert.Equal(t, tt.exit, ExitCode(tt.err))
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestWithErrorCodeOverridesSentinel(t *testing.T) {
	err := WithErrorCode(ErrNoWorker, "CUSTOM")
	assert.Equal(t, "CUSTOM", ErrorCode(err))
	assert.ErrorIs(t, err, ErrNoWorker)
	assert.Nil(t, WithErrorCode(nil, "CUSTOM"))
	assert.Nil(t, WrapInvalidPlan(nil))
}

func TestSuggestions(t *testing.T) {
	assert.Nil(t, Suggestions(nil))
	assert.Nil(t, Suggestions(errors.New("plain")))
	assert.NotEmpty(t, Suggestions(ErrInvalidTarget))
	assert.NotEmpty(t, Suggestions(WrapInvalidPlan(task.ErrCycle)))
	assert.Contains(t, Suggestions(ErrReportWrite)[1], "--no-report")
}

func TestIsFatal(t *testing.T) {
	assert.True(t, IsFatal(fmt.Errorf("x: %w", ErrNoProgress)))
	assert.True(t, IsFatal(ErrNoWorker))
	assert.False(t, IsFatal(context.Canceled))
	assert.False(t, IsFatal(nil))
}
