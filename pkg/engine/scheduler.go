// Package engine drives assessment workflows: it plans a task graph from a
// profile or plan file, schedules each task onto its worker in dependency
// order and aggregates the resulting findings.
package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/vulntor/bytehunter/pkg/event"
	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/logging"
	"github.com/vulntor/bytehunter/pkg/metrics"
	"github.com/vulntor/bytehunter/pkg/task"
	"github.com/vulntor/bytehunter/pkg/worker"
)

// SchedulerOptions configures a Scheduler.
type SchedulerOptions struct {
	Registry *worker.Registry
	Logger   *zerolog.Logger
	Bus      event.EventBus
	Metrics  *metrics.Metrics

	// Concurrency bounds how many tasks run at once. Values below 2 select the
	// sequential scheduler.
	Concurrency int
	// PerCategoryLimit bounds running tasks per category in concurrent mode.
	// Zero means no per-category bound.
	PerCategoryLimit int

	Now func() time.Time
}

// Scheduler drives a task graph to exhaustion.
type Scheduler struct {
	registry         *worker.Registry
	logger           zerolog.Logger
	bus              event.EventBus
	metrics          *metrics.Metrics
	concurrency      int
	perCategoryLimit int
	now              func() time.Time
}

// NewScheduler validates opts and returns a scheduler.
func NewScheduler(opts SchedulerOptions) (*Scheduler, error) {
	if opts.Registry == nil {
		return nil, errors.New("scheduler: worker registry is required")
	}
	if opts.PerCategoryLimit < 0 {
		return nil, fmt.Errorf("scheduler: per-category limit must be >= 0, got %d", opts.PerCategoryLimit)
	}
	s := &Scheduler{
		registry:         opts.Registry,
		logger:           logging.Component("scheduler", opts.Logger),
		bus:              opts.Bus,
		metrics:          opts.Metrics,
		concurrency:      max(opts.Concurrency, 1),
		perCategoryLimit: opts.PerCategoryLimit,
		now:              opts.Now,
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

// Run dispatches every runnable task of g until the graph is exhausted.
// Findings of each completed task are recorded in agg before the task is
// marked Completed. Task failures never abort the run; ErrNoWorker,
// ErrNoProgress and context cancellation do.
func (s *Scheduler) Run(ctx context.Context, workflowID string, g *task.Graph, agg *finding.Aggregator) (RunSummary, error) {
	started := s.now()
	logger := s.logger.With().Str("workflow", workflowID).Logger()

	if err := s.checkWorkers(g); err != nil {
		logger.Error().Err(err).Msg("Workflow cannot be scheduled")
		return summarize(workflowID, g, agg, started, s.now()), err
	}

	ctx = worker.ContextWithFindings(ctx, agg)
	logger.Info().Int("tasks", g.Len()).Int("concurrency", s.concurrency).Msg("Starting workflow run")

	var err error
	if s.concurrency > 1 {
		err = s.runConcurrent(ctx, workflowID, g, agg, logger)
	} else {
		err = s.runSequential(ctx, workflowID, g, agg, logger)
	}

	summary := summarize(workflowID, g, agg, started, s.now())
	for _, id := range summary.Blocked {
		t, _ := g.Get(id)
		s.publishTask(ctx, workflowID, t, string(task.ClassBlocked), nil)
	}
	if err != nil {
		logger.Error().Err(err).Msg("Workflow run aborted")
	} else {
		logger.Info().
			Int("completed", len(summary.Completed)).
			Int("failed", len(summary.Failed)).
			Int("blocked", len(summary.Blocked)).
			Int("findings", summary.Findings).
			Dur("duration", summary.Duration).
			Msg("Workflow run finished")
	}
	return summary, err
}

// checkWorkers rejects a graph containing a category nobody handles.
func (s *Scheduler) checkWorkers(g *task.Graph) error {
	var missing []string
	for _, t := range g.Tasks() {
		if _, ok := s.registry.Get(t.Category); !ok && !slices.Contains(missing, string(t.Category)) {
			missing = append(missing, string(t.Category))
		}
	}
	if len(missing) > 0 {
		return WithErrorCode(fmt.Errorf("%w: %v", ErrNoWorker, missing), errorCodeNoWorker)
	}
	return nil
}

func (s *Scheduler) runSequential(ctx context.Context, workflowID string, g *task.Graph, agg *finding.Aggregator, logger zerolog.Logger) error {
	for {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("workflow %s: %w", workflowID, err)
		}
		next, ok := firstRunnable(g)
		if !ok {
			if g.IsExhausted() {
				return nil
			}
			return s.noProgress(workflowID, g, logger)
		}
		s.dispatch(ctx, workflowID, g, agg, next)
	}
}

// runConcurrent launches runnable tasks on an errgroup bounded by the global
// limit, and by a weighted semaphore per category. After each completion the
// runnable set is queried again.
func (s *Scheduler) runConcurrent(ctx context.Context, workflowID string, g *task.Graph, agg *finding.Aggregator, logger zerolog.Logger) error {
	var eg errgroup.Group
	eg.SetLimit(s.concurrency)

	sems := make(map[task.Category]*semaphore.Weighted)
	if s.perCategoryLimit > 0 {
		for _, c := range task.Categories() {
			sems[c] = semaphore.NewWeighted(int64(s.perCategoryLimit))
		}
	}

	done := make(chan string, g.Len())
	launched := make(map[string]bool, g.Len())
	inflight := 0

	for {
		if err := ctx.Err(); err != nil {
			_ = eg.Wait()
			return fmt.Errorf("workflow %s: %w", workflowID, err)
		}

		for id := range g.Runnable() {
			if launched[id] {
				continue
			}
			t, _ := g.Get(id)
			sem := sems[t.Category]
			if sem != nil && !sem.TryAcquire(1) {
				continue
			}
			ok := eg.TryGo(func() error {
				defer func() {
					if sem != nil {
						sem.Release(1)
					}
					done <- id
				}()
				s.dispatch(ctx, workflowID, g, agg, id)
				return nil
			})
			if !ok {
				if sem != nil {
					sem.Release(1)
				}
				break
			}
			launched[id] = true
			inflight++
		}

		if inflight == 0 {
			if g.IsExhausted() {
				return eg.Wait()
			}
			return s.noProgress(workflowID, g, logger)
		}
		<-done
		inflight--
	}
}

func (s *Scheduler) noProgress(workflowID string, g *task.Graph, logger zerolog.Logger) error {
	var stuck []string
	for id, c := range g.Classifications() {
		if c == task.ClassIdle || c == task.ClassRunning {
			stuck = append(stuck, id)
		}
	}
	slices.Sort(stuck)
	err := WithErrorCode(fmt.Errorf("%w: workflow %s: tasks %v are neither runnable nor blocked", ErrNoProgress, workflowID, stuck), errorCodeNoProgress)
	logger.Error().Strs("tasks", stuck).Msg("Scheduler cannot make progress")
	return err
}

// dispatch runs one task: Idle to Running, worker invocation, then the
// terminal transition. Worker failures and panics become Failed.
func (s *Scheduler) dispatch(ctx context.Context, workflowID string, g *task.Graph, agg *finding.Aggregator, id string) {
	t, ok := g.Get(id)
	if !ok {
		return
	}
	if err := g.Start(id); err != nil {
		s.logger.Warn().Err(err).Str("task", id).Msg("Task could not be started")
		return
	}
	s.transition(ctx, workflowID, t, task.StatusRunning, nil)

	w, _ := s.registry.Get(t.Category)
	start := s.now()
	out, err := s.invoke(ctx, w, t)
	s.metrics.ObserveWorker(string(t.Category), err == nil, s.now().Sub(start))

	if err != nil {
		if ferr := g.Fail(id, err); ferr != nil {
			s.logger.Warn().Err(ferr).Str("task", id).Msg("Failed to record task failure")
			return
		}
		s.logger.Warn().Err(err).Str("workflow", workflowID).Str("task", id).Str("category", string(t.Category)).Msg("Task failed")
		s.transition(ctx, workflowID, t, task.StatusFailed, err)
		return
	}

	findings := worker.FindingsFrom(out)
	agg.Record(findings...)
	for _, f := range findings {
		s.metrics.RecordFinding(f.Severity.String())
	}
	if cerr := g.Complete(id, out); cerr != nil {
		s.logger.Warn().Err(cerr).Str("task", id).Msg("Failed to record task completion")
		return
	}
	s.transition(ctx, workflowID, t, task.StatusCompleted, nil)
}

// invoke calls the worker, converting panics and foreign errors into
// *worker.Error.
func (s *Scheduler) invoke(ctx context.Context, w worker.Worker, t task.Task) (out worker.Output, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error().Str("task", t.ID).Interface("panic", r).Msg("Worker panicked")
			out = nil
			err = &worker.Error{Category: t.Category, TaskID: t.ID, Cause: fmt.Errorf("%w: %v", ErrWorkerPanic, r)}
		}
	}()
	out, err = w.Execute(ctx, t)
	if err != nil {
		var werr *worker.Error
		if !errors.As(err, &werr) {
			err = &worker.Error{Category: t.Category, TaskID: t.ID, Cause: err}
		}
		return nil, err
	}
	return out, nil
}

func (s *Scheduler) transition(ctx context.Context, workflowID string, t task.Task, to task.Status, err error) {
	s.logger.Debug().Str("workflow", workflowID).Str("task", t.ID).Str("status", to.String()).Msg("Task status changed")
	s.metrics.RecordTransition(string(t.Category), to.String())
	s.publishTask(ctx, workflowID, t, to.String(), err)
}

func (s *Scheduler) publishTask(ctx context.Context, workflowID string, t task.Task, status string, err error) {
	if s.bus == nil {
		return
	}
	ev := event.TaskEvent{
		WorkflowID: workflowID,
		TaskID:     t.ID,
		Category:   string(t.Category),
		Status:     status,
		At:         s.now(),
	}
	if err != nil {
		ev.Error = err.Error()
	}
	s.bus.Publish(ctx, event.TaskStatusChanged, ev)
}

func firstRunnable(g *task.Graph) (string, bool) {
	for id := range g.Runnable() {
		return id, true
	}
	return "", false
}
