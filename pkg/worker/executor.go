package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/vulntor/bytehunter/pkg/logging"
	"github.com/vulntor/bytehunter/pkg/task"
)

// waitDelay bounds how long Run waits for output pipes after the process is
// killed, in case a child process still holds them.
const waitDelay = 2 * time.Second

// Command is one external tool invocation. Arguments are passed verbatim,
// never through a shell.
type Command struct {
	Name string
	Args []string
	Dir  string
}

func (c Command) String() string {
	if len(c.Args) == 0 {
		return c.Name
	}
	return c.Name + " " + strings.Join(c.Args, " ")
}

// ExecResult is what an external command left behind.
type ExecResult struct {
	Stdout   string
	Stderr   string
	ExitCode int
	Duration time.Duration
}

// Executor runs external commands. A non-zero exit is reported through
// ExitCode, not as an error; errors mean the command could not run to
// completion (not found, killed, timed out).
type Executor interface {
	Run(ctx context.Context, cmd Command, timeout time.Duration) (ExecResult, error)
}

// ShellExecutor runs commands with os/exec under a deadline and an optional
// shared rate limit.
type ShellExecutor struct {
	limiter *rate.Limiter
	logger  zerolog.Logger
}

// ShellOption configures a ShellExecutor.
type ShellOption func(*ShellExecutor)

// WithRateLimit allows at most rps command starts per second with the given
// burst. rps <= 0 disables limiting.
func WithRateLimit(rps float64, burst int) ShellOption {
	return func(e *ShellExecutor) {
		if rps <= 0 {
			e.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		e.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithExecLogger sets the parent logger.
func WithExecLogger(l zerolog.Logger) ShellOption {
	return func(e *ShellExecutor) {
		e.logger = logging.Component("executor", &l)
	}
}

// NewShellExecutor returns an executor with no rate limit unless configured.
func NewShellExecutor(opts ...ShellOption) *ShellExecutor {
	e := &ShellExecutor{
		logger: logging.Component("executor", nil),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes cmd and waits for it. timeout <= 0 relies on ctx alone.
func (e *ShellExecutor) Run(ctx context.Context, cmd Command, timeout time.Duration) (ExecResult, error) {
	if e.limiter != nil {
		if err := e.limiter.Wait(ctx); err != nil {
			return ExecResult{}, fmt.Errorf("%w: %s: rate limit: %w", ErrCommandFailed, cmd.Name, err)
		}
	}

	runCtx := ctx
	if timeout > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	c := exec.CommandContext(runCtx, cmd.Name, cmd.Args...)
	c.Dir = cmd.Dir
	c.WaitDelay = waitDelay
	var stdout, stderr bytes.Buffer
	c.Stdout = &stdout
	c.Stderr = &stderr

	e.logger.Debug().Str("cmd", cmd.String()).Dur("timeout", timeout).Msg("Running external command")
	start := time.Now()
	err := c.Run()
	res := ExecResult{
		Stdout:   stdout.String(),
		Stderr:   stderr.String(),
		Duration: time.Since(start),
	}

	if errors.Is(runCtx.Err(), context.DeadlineExceeded) {
		res.ExitCode = -1
		return res, fmt.Errorf("%w: %s after %s", ErrTimeout, cmd.Name, timeout)
	}
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			res.ExitCode = exitErr.ExitCode()
			e.logger.Debug().Str("cmd", cmd.Name).Int("exit_code", res.ExitCode).Msg("External command exited non-zero")
			return res, nil
		}
		res.ExitCode = -1
		return res, fmt.Errorf("%w: %s: %w", ErrCommandFailed, cmd.Name, err)
	}
	return res, nil
}

// run executes cmd through exec and converts every failure, including a
// non-zero exit, into a *Error for t.
func run(ctx context.Context, ex Executor, t task.Task, op string, cmd Command, timeout time.Duration) (ExecResult, error) {
	res, err := ex.Run(ctx, cmd, timeout)
	if err != nil {
		return res, newError(t, op, err)
	}
	if res.ExitCode != 0 {
		msg := strings.TrimSpace(res.Stderr)
		if msg == "" {
			msg = "no stderr output"
		}
		return res, newError(t, op, fmt.Errorf("%w: %s exited with code %d: %s", ErrCommandFailed, cmd.Name, res.ExitCode, msg))
	}
	return res, nil
}
