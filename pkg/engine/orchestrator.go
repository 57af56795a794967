package engine

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/bytehunter/pkg/event"
	"github.com/vulntor/bytehunter/pkg/logging"
	"github.com/vulntor/bytehunter/pkg/metrics"
	"github.com/vulntor/bytehunter/pkg/report"
	"github.com/vulntor/bytehunter/pkg/task"
	"github.com/vulntor/bytehunter/pkg/worker"
)

// ReportWriter persists a rendered report and returns where it went.
type ReportWriter interface {
	WriteReport(workflowID string, data []byte) (string, error)
}

// Options configures an Orchestrator.
type Options struct {
	Registry *worker.Registry
	Logger   *zerolog.Logger
	Bus      *event.Bus
	Metrics  *metrics.Metrics

	Concurrency      int
	PerCategoryLimit int

	// Summarizer adds analysis to reports. Defaults to NopSummarizer.
	Summarizer Summarizer
	// ReportWriter persists reports. Nil keeps them in memory only.
	ReportWriter ReportWriter

	// Clock names workflows and dates reports. Defaults to time.Now.
	Clock func() time.Time
}

// Orchestrator owns the worker registry and every workflow submitted to it.
type Orchestrator struct {
	opts      Options
	scheduler *Scheduler
	logger    zerolog.Logger
	clock     func() time.Time

	mu        sync.Mutex
	workflows map[string]*Workflow
	order     []string
	cancels   map[string]context.CancelFunc
	closed    bool
	running   sync.WaitGroup
}

// NewOrchestrator returns an orchestrator ready to accept workflows.
func NewOrchestrator(opts Options) (*Orchestrator, error) {
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	if opts.Summarizer == nil {
		opts.Summarizer = NopSummarizer{}
	}

	var bus event.EventBus
	if opts.Bus != nil {
		bus = opts.Bus
	}
	sched, err := NewScheduler(SchedulerOptions{
		Registry:         opts.Registry,
		Logger:           opts.Logger,
		Bus:              bus,
		Metrics:          opts.Metrics,
		Concurrency:      opts.Concurrency,
		PerCategoryLimit: opts.PerCategoryLimit,
		Now:              opts.Clock,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		opts:      opts,
		scheduler: sched,
		logger:    logging.Component("orchestrator", opts.Logger),
		clock:     opts.Clock,
		workflows: make(map[string]*Workflow),
		cancels:   make(map[string]context.CancelFunc),
	}, nil
}

// Registry returns the worker registry.
func (o *Orchestrator) Registry() *worker.Registry {
	return o.opts.Registry
}

// Submit plans a workflow for target from a built-in profile and returns its
// id. Nothing runs until Execute.
func (o *Orchestrator) Submit(ctx context.Context, target, profile string) (string, error) {
	if profile == "" {
		profile = ProfileComprehensive
	}
	return o.submit(ctx, target, profile, func(id, target string) ([]task.Task, error) {
		return PlanProfile(id, target, profile)
	})
}

// SubmitPlan registers a workflow built from a plan.
func (o *Orchestrator) SubmitPlan(ctx context.Context, target string, plan *Plan) (string, error) {
	if err := plan.Validate(); err != nil {
		return "", err
	}
	return o.submit(ctx, target, plan.Name, func(_, target string) ([]task.Task, error) {
		return plan.TasksFor(target), nil
	})
}

func (o *Orchestrator) submit(_ context.Context, target, profile string, plan func(id, target string) ([]task.Task, error)) (string, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return "", WithErrorCode(fmt.Errorf("%w: target is empty", ErrInvalidTarget), errorCodeInvalidTarget)
	}

	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return "", ErrShutdown
	}

	now := o.clock()
	id := o.nextIDLocked(now)
	tasks, err := plan(id, target)
	if err != nil {
		return "", err
	}
	g, err := task.Build(tasks...)
	if err != nil {
		return "", WrapInvalidPlan(err)
	}

	o.workflows[id] = newWorkflow(id, target, profile, now, g)
	o.order = append(o.order, id)
	o.logger.Info().Str("workflow", id).Str("target", target).Str("profile", profile).Int("tasks", g.Len()).Msg("Workflow submitted")
	return id, nil
}

// nextIDLocked names a workflow after the submission second, adding a
// numeric suffix when that name is taken.
func (o *Orchestrator) nextIDLocked(now time.Time) string {
	base := now.Format("workflow_20060102_150405")
	id := base
	for n := 2; ; n++ {
		if _, taken := o.workflows[id]; !taken {
			return id
		}
		id = fmt.Sprintf("%s_%d", base, n)
	}
}

// Workflow returns the workflow with id.
func (o *Orchestrator) Workflow(id string) (*Workflow, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	wf, ok := o.workflows[id]
	return wf, ok
}

// Workflows returns workflow ids in submission order.
func (o *Orchestrator) Workflows() []string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return slices.Clone(o.order)
}

// Execute runs a submitted workflow to completion, renders its report and,
// when a ReportWriter is configured, persists it. Task failures are part of
// the outcome; only fatal scheduling errors, cancellation and report
// persistence failures are returned as errors.
func (o *Orchestrator) Execute(ctx context.Context, id string) (*Outcome, error) {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil, ErrShutdown
	}
	wf, ok := o.workflows[id]
	if !ok {
		o.mu.Unlock()
		return nil, WithErrorCode(fmt.Errorf("%w: %s", ErrWorkflowNotFound, id), errorCodeWorkflowNotFound)
	}
	if !wf.begin() {
		o.mu.Unlock()
		return nil, WithErrorCode(fmt.Errorf("%w: %s is %s", ErrAlreadyExecuted, id, wf.State()), errorCodeAlreadyExecuted)
	}
	runCtx, cancel := context.WithCancel(ctx)
	o.cancels[id] = cancel
	o.running.Add(1)
	o.mu.Unlock()

	defer func() {
		o.mu.Lock()
		delete(o.cancels, id)
		o.mu.Unlock()
		cancel()
		o.running.Done()
	}()

	summary, runErr := o.scheduler.Run(runCtx, wf.ID, wf.Graph, wf.Findings)
	out := &Outcome{Summary: summary, Findings: wf.Findings.Findings()}

	if runErr != nil {
		wf.finish(WorkflowAborted, out)
		o.opts.Metrics.RecordWorkflow(runErr)
		o.publishFinished(ctx, wf, summary, runErr)
		return out, runErr
	}

	analysis, err := o.opts.Summarizer.Summarize(runCtx, wf.Target, out.Findings)
	if err != nil {
		o.logger.Warn().Err(err).Str("workflow", id).Msg("Summarizer failed, continuing without analysis")
		analysis = ""
	}
	out.Analysis = analysis
	out.Report = report.Render(out.Findings, wf.Target, report.Options{
		GeneratedAt:  o.clock(),
		Phases:       categoryNames(summary.Phases),
		FailedPhases: categoryNames(summary.FailedPhases),
		Analysis:     analysis,
	})

	var writeErr error
	if o.opts.ReportWriter != nil {
		path, err := o.opts.ReportWriter.WriteReport(wf.ID, out.Report.Bytes())
		if err != nil {
			writeErr = WithErrorCode(fmt.Errorf("%w: workflow %s: %w", ErrReportWrite, wf.ID, err), errorCodeReportWrite)
			o.logger.Error().Err(err).Str("workflow", id).Msg("Failed to persist report")
		} else {
			out.ReportPath = path
			o.logger.Info().Str("workflow", id).Str("path", path).Msg("Report written")
		}
	}

	wf.finish(WorkflowFinished, out)
	o.opts.Metrics.RecordWorkflow(writeErr)
	o.publishFinished(ctx, wf, summary, writeErr)
	return out, writeErr
}

// Report returns the rendered report of a finished workflow.
func (o *Orchestrator) Report(id string) (report.Document, error) {
	wf, ok := o.Workflow(id)
	if !ok {
		return report.Document{}, WithErrorCode(fmt.Errorf("%w: %s", ErrWorkflowNotFound, id), errorCodeWorkflowNotFound)
	}
	out := wf.Outcome()
	if out == nil || wf.State() != WorkflowFinished {
		return report.Document{}, fmt.Errorf("workflow %s has no report (state %s)", id, wf.State())
	}
	return out.Report, nil
}

// Shutdown stops accepting work, cancels running workflows and waits for them
// to return or for ctx to end.
func (o *Orchestrator) Shutdown(ctx context.Context) error {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return nil
	}
	o.closed = true
	for id, cancel := range o.cancels {
		o.logger.Info().Str("workflow", id).Msg("Cancelling running workflow")
		cancel()
	}
	o.mu.Unlock()

	done := make(chan struct{})
	go func() {
		o.running.Wait()
		close(done)
	}()
	select {
	case <-done:
		o.logger.Debug().Msg("Orchestrator shut down")
		return nil
	case <-ctx.Done():
		return fmt.Errorf("shutdown: %w", ctx.Err())
	}
}

func (o *Orchestrator) publishFinished(ctx context.Context, wf *Workflow, s RunSummary, err error) {
	if o.opts.Bus == nil {
		return
	}
	ev := event.WorkflowEvent{
		WorkflowID: wf.ID,
		Completed:  len(s.Completed),
		Failed:     len(s.Failed),
		Blocked:    len(s.Blocked),
		Findings:   s.Findings,
		At:         o.clock(),
	}
	if err != nil {
		ev.Err = err.Error()
	}
	o.opts.Bus.Publish(context.WithoutCancel(ctx), event.WorkflowFinished, ev)
}

func categoryNames(cs []task.Category) []string {
	out := make([]string, 0, len(cs))
	for _, c := range cs {
		out = append(out, string(c))
	}
	return out
}

// IsFatal reports whether err aborted a run rather than failing single tasks.
func IsFatal(err error) bool {
	return errors.Is(err, ErrNoProgress) || errors.Is(err, ErrNoWorker)
}
