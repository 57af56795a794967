package engine

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/bytehunter/pkg/event"
	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/metrics"
	"github.com/vulntor/bytehunter/pkg/task"
	"github.com/vulntor/bytehunter/pkg/worker"
)

// recorder keeps the global order in which stub workers were invoked.
type recorder struct {
	mu    sync.Mutex
	order []string
}

func (r *recorder) add(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.order = append(r.order, id)
}

func (r *recorder) calls() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.order...)
}

type stubWorker struct {
	category task.Category
	rec      *recorder
	fn       func(ctx context.Context, t task.Task) (worker.Output, error)
}

func (s *stubWorker) Metadata() worker.Metadata {
	return worker.Metadata{ID: "stub-" + string(s.category), Name: "stub " + string(s.category), Category: s.category}
}

func (s *stubWorker) Execute(ctx context.Context, t task.Task) (worker.Output, error) {
	if s.rec != nil {
		s.rec.add(t.ID)
	}
	if s.fn != nil {
		return s.fn(ctx, t)
	}
	return worker.Output{}, nil
}

// stubRegistry registers a stub for every category; fns overrides behaviour
// per category.
func stubRegistry(t *testing.T, rec *recorder, fns map[task.Category]func(context.Context, task.Task) (worker.Output, error)) *worker.Registry {
	t.Helper()
	reg := worker.NewRegistry()
	for _, c := range task.Categories() {
		require.NoError(t, reg.Register(&stubWorker{category: c, rec: rec, fn: fns[c]}))
	}
	return reg
}

func nopLogger() *zerolog.Logger {
	l := zerolog.Nop()
	return &l
}

func newTestScheduler(t *testing.T, reg *worker.Registry, mutate func(*SchedulerOptions)) *Scheduler {
	t.Helper()
	opts := SchedulerOptions{Registry: reg, Logger: nopLogger()}
	if mutate != nil {
		mutate(&opts)
	}
	s, err := NewScheduler(opts)
	require.NoError(t, err)
	return s
}

func mustBuild(t *testing.T, tasks ...task.Task) *task.Graph {
	t.Helper()
	g, err := task.Build(tasks...)
	require.NoError(t, err)
	return g
}

func emit(sev finding.Severity, title string) func(context.Context, task.Task) (worker.Output, error) {
	return func(context.Context, task.Task) (worker.Output, error) {
		return worker.Output{"items": []finding.Finding{{Title: title, Severity: sev}}}, nil
	}
}

func TestNewScheduler_Validation(t *testing.T) {
	_, err := NewScheduler(SchedulerOptions{})
	require.Error(t, err)

	_, err = NewScheduler(SchedulerOptions{Registry: worker.NewRegistry(), PerCategoryLimit: -1})
	require.Error(t, err)
}

func TestScheduler_EmptyGraphExhaustedImmediately(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, stubRegistry(t, rec, nil), nil)
	agg := finding.NewAggregator()

	summary, err := s.Run(context.Background(), "wf", task.NewGraph(), agg)
	require.NoError(t, err)
	assert.Empty(t, rec.calls())
	assert.Zero(t, summary.Total())
	assert.Zero(t, summary.Findings)
	for _, sev := range finding.Severities() {
		assert.Zero(t, summary.Severity[sev])
	}
	assert.True(t, summary.Succeeded())
}

func TestScheduler_DependencyOrderAndPriority(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, stubRegistry(t, rec, nil), nil)

	g := mustBuild(t,
		task.New("report", task.CategoryReport, "x", task.WithPriority(0), task.WithDependsOn("vuln", "opsec")),
		task.New("vuln", task.CategoryVulnScan, "x", task.WithPriority(2), task.WithDependsOn("recon")),
		task.New("opsec", task.CategoryPostureReview, "x", task.WithPriority(1)),
		task.New("recon", task.CategoryRecon, "x", task.WithPriority(3)),
	)

	summary, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
	require.NoError(t, err)
	assert.Equal(t, []string{"opsec", "recon", "vuln", "report"}, rec.calls())
	assert.Len(t, summary.Completed, 4)
	assert.True(t, g.IsExhausted())
}

func TestScheduler_NoTaskTerminalBeforeItsDependencies(t *testing.T) {
	var g *task.Graph
	var violations atomic.Int32
	check := func(_ context.Context, tk task.Task) (worker.Output, error) {
		for _, dep := range tk.DependsOn {
			d, _ := g.Get(dep)
			if !d.Status.Terminal() {
				violations.Add(1)
			}
		}
		return worker.Output{}, nil
	}
	fns := map[task.Category]func(context.Context, task.Task) (worker.Output, error){}
	for _, c := range task.Categories() {
		fns[c] = check
	}

	for _, concurrency := range []int{1, 4} {
		g = mustBuild(t,
			task.New("a", task.CategoryRecon, "x"),
			task.New("b", task.CategoryRecon, "x"),
			task.New("c", task.CategoryVulnScan, "x", task.WithDependsOn("a", "b")),
			task.New("d", task.CategoryExploitProbe, "x", task.WithDependsOn("c")),
			task.New("e", task.CategoryReport, "x", task.WithDependsOn("d", "a")),
		)
		s := newTestScheduler(t, stubRegistry(t, nil, fns), func(o *SchedulerOptions) { o.Concurrency = concurrency })
		summary, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
		require.NoError(t, err)
		assert.Len(t, summary.Completed, 5)
	}
	assert.Zero(t, violations.Load())
}

func TestScheduler_SiblingScenario(t *testing.T) {
	rec := &recorder{}
	reg := stubRegistry(t, rec, map[task.Category]func(context.Context, task.Task) (worker.Output, error){
		task.CategoryRecon: func(context.Context, task.Task) (worker.Output, error) {
			return nil, errors.New("subfinder not installed")
		},
		task.CategoryPostureReview: emit(finding.SeverityMedium, "posture"),
	})
	s := newTestScheduler(t, reg, nil)

	g := mustBuild(t,
		task.New("A", task.CategoryRecon, "x"),
		task.New("B", task.CategoryVulnScan, "x", task.WithDependsOn("A")),
		task.New("C", task.CategoryPostureReview, "x"),
	)
	agg := finding.NewAggregator()
	summary, err := s.Run(context.Background(), "wf", g, agg)
	require.NoError(t, err, "task failures do not abort the run")

	assert.Equal(t, []string{"A", "C"}, rec.calls(), "B is never dispatched")
	assert.Equal(t, []string{"C"}, summary.Completed)
	assert.Equal(t, []string{"A"}, summary.Failed)
	assert.Equal(t, []string{"B"}, summary.Blocked)
	assert.Equal(t, []task.Category{task.CategoryRecon}, summary.FailedPhases)
	assert.Contains(t, summary.TaskErrors["A"], "subfinder not installed")
	assert.Equal(t, 1, agg.Len())

	class, err := g.Classify("B")
	require.NoError(t, err)
	assert.Equal(t, task.ClassBlocked, class)

	a, _ := g.Get("A")
	var werr *worker.Error
	require.ErrorAs(t, a.Result.Err, &werr, "foreign errors are wrapped")
	assert.Equal(t, "A", werr.TaskID)
}

func TestScheduler_FindingsRecordedBeforeDependentsRun(t *testing.T) {
	var seen []finding.Finding
	reg := stubRegistry(t, nil, map[task.Category]func(context.Context, task.Task) (worker.Output, error){
		task.CategoryRecon:    emit(finding.SeverityHigh, "first"),
		task.CategoryVulnScan: emit(finding.SeverityLow, "second"),
		task.CategoryReport: func(ctx context.Context, _ task.Task) (worker.Output, error) {
			seen = worker.FindingsFromContext(ctx)
			return worker.Output{worker.KeyReport: "done"}, nil
		},
	})
	s := newTestScheduler(t, reg, nil)
	g := mustBuild(t,
		task.New("r", task.CategoryRecon, "x"),
		task.New("v", task.CategoryVulnScan, "x", task.WithDependsOn("r")),
		task.New("rep", task.CategoryReport, "x", task.WithDependsOn("v")),
	)
	agg := finding.NewAggregator()
	summary, err := s.Run(context.Background(), "wf", g, agg)
	require.NoError(t, err)

	require.Len(t, seen, 2)
	assert.Equal(t, "first", seen[0].Title)
	assert.Equal(t, "second", seen[1].Title)
	assert.Equal(t, 2, summary.Findings)
	assert.Equal(t, 1, summary.Severity[finding.SeverityHigh])
	assert.Equal(t, 1, summary.Severity[finding.SeverityLow])

	rep, _ := g.Get("rep")
	require.True(t, rep.Result.Succeeded())
	assert.Equal(t, "done", rep.Result.Output[worker.KeyReport])
}

func TestScheduler_NoWorkerIsFatal(t *testing.T) {
	rec := &recorder{}
	reg := worker.NewRegistry()
	require.NoError(t, reg.Register(&stubWorker{category: task.CategoryRecon, rec: rec}))
	s := newTestScheduler(t, reg, nil)

	g := mustBuild(t,
		task.New("r", task.CategoryRecon, "x"),
		task.New("rep", task.CategoryReport, "x", task.WithDependsOn("r")),
	)
	_, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
	require.ErrorIs(t, err, ErrNoWorker)
	assert.True(t, IsFatal(err))
	assert.Empty(t, rec.calls(), "nothing runs when a category is unhandled")
}

func TestScheduler_NoProgressIsFatal(t *testing.T) {
	for _, concurrency := range []int{1, 3} {
		rec := &recorder{}
		s := newTestScheduler(t, stubRegistry(t, rec, nil), func(o *SchedulerOptions) { o.Concurrency = concurrency })
		g := mustBuild(t,
			task.New("stuck", task.CategoryRecon, "x"),
			task.New("waiting", task.CategoryVulnScan, "x", task.WithDependsOn("stuck")),
		)
		// Running outside the scheduler's control: it never finishes.
		require.NoError(t, g.Start("stuck"))

		summary, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
		require.ErrorIs(t, err, ErrNoProgress)
		assert.Equal(t, errorCodeNoProgress, ErrorCode(err))
		assert.Empty(t, rec.calls())
		assert.ElementsMatch(t, []string{"stuck", "waiting"}, summary.Pending)
	}
}

func TestScheduler_PanicRecordedAsFailure(t *testing.T) {
	reg := stubRegistry(t, nil, map[task.Category]func(context.Context, task.Task) (worker.Output, error){
		task.CategoryExploitProbe: func(context.Context, task.Task) (worker.Output, error) {
			panic("nil map write")
		},
	})
	s := newTestScheduler(t, reg, nil)
	g := mustBuild(t,
		task.New("probe", task.CategoryExploitProbe, "x"),
		task.New("rep", task.CategoryReport, "x", task.WithDependsOn("probe")),
		task.New("other", task.CategoryRecon, "x"),
	)

	summary, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
	require.NoError(t, err)
	assert.Equal(t, []string{"probe"}, summary.Failed)
	assert.Equal(t, []string{"rep"}, summary.Blocked)
	assert.Equal(t, []string{"other"}, summary.Completed)

	probe, _ := g.Get("probe")
	assert.ErrorIs(t, probe.Result.Err, ErrWorkerPanic)
}

func TestScheduler_ConcurrentDispatch(t *testing.T) {
	const n = 3
	var started sync.WaitGroup
	started.Add(n)
	release := make(chan struct{})
	go func() {
		started.Wait()
		close(release)
	}()

	barrier := func(ctx context.Context, _ task.Task) (worker.Output, error) {
		started.Done()
		select {
		case <-release:
			return worker.Output{}, nil
		case <-time.After(5 * time.Second):
			return nil, errors.New("tasks were not running concurrently")
		}
	}
	reg := stubRegistry(t, nil, map[task.Category]func(context.Context, task.Task) (worker.Output, error){
		task.CategoryRecon:         barrier,
		task.CategoryVulnScan:      barrier,
		task.CategoryPostureReview: barrier,
	})
	s := newTestScheduler(t, reg, func(o *SchedulerOptions) { o.Concurrency = n })
	g := mustBuild(t,
		task.New("a", task.CategoryRecon, "x"),
		task.New("b", task.CategoryVulnScan, "x"),
		task.New("c", task.CategoryPostureReview, "x"),
		task.New("rep", task.CategoryReport, "x", task.WithDependsOn("a", "b", "c")),
	)

	summary, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
	require.NoError(t, err)
	assert.Len(t, summary.Completed, 4)
	assert.Empty(t, summary.Failed)
}

func TestScheduler_PerCategoryLimit(t *testing.T) {
	var current, peak atomic.Int32
	track := func(context.Context, task.Task) (worker.Output, error) {
		now := current.Add(1)
		for {
			old := peak.Load()
			if now <= old || peak.CompareAndSwap(old, now) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		current.Add(-1)
		return worker.Output{}, nil
	}
	reg := stubRegistry(t, nil, map[task.Category]func(context.Context, task.Task) (worker.Output, error){
		task.CategoryRecon: track,
	})
	s := newTestScheduler(t, reg, func(o *SchedulerOptions) {
		o.Concurrency = 4
		o.PerCategoryLimit = 1
	})
	g := mustBuild(t,
		task.New("r1", task.CategoryRecon, "x"),
		task.New("r2", task.CategoryRecon, "x"),
		task.New("r3", task.CategoryRecon, "x"),
	)

	summary, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
	require.NoError(t, err)
	assert.Len(t, summary.Completed, 3)
	assert.Equal(t, int32(1), peak.Load())
}

func TestScheduler_EventsAndMetrics(t *testing.T) {
	bus := event.New()
	var mu sync.Mutex
	var statuses []string
	bus.Subscribe(event.TaskStatusChanged, func(_ context.Context, data any) {
		ev := data.(event.TaskEvent)
		mu.Lock()
		statuses = append(statuses, ev.TaskID+":"+ev.Status)
		mu.Unlock()
	})

	m := metrics.New(prometheus.NewRegistry())
	reg := stubRegistry(t, nil, map[task.Category]func(context.Context, task.Task) (worker.Output, error){
		task.CategoryRecon:    emit(finding.SeverityHigh, "h"),
		task.CategoryVulnScan: func(context.Context, task.Task) (worker.Output, error) { return nil, errors.New("boom") },
	})
	s := newTestScheduler(t, reg, func(o *SchedulerOptions) {
		o.Bus = bus
		o.Metrics = m
	})
	g := mustBuild(t,
		task.New("r", task.CategoryRecon, "x"),
		task.New("v", task.CategoryVulnScan, "x", task.WithDependsOn("r")),
		task.New("rep", task.CategoryReport, "x", task.WithDependsOn("v")),
	)

	_, err := s.Run(context.Background(), "wf", g, finding.NewAggregator())
	require.NoError(t, err)
	assert.Equal(t, []string{"r:Running", "r:Completed", "v:Running", "v:Failed", "rep:Blocked"}, statuses)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskTransitions.WithLabelValues("recon", "Completed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TaskTransitions.WithLabelValues("vulnerability-scan", "Failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FindingsTotal.WithLabelValues("High")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.TasksRunning))
}

func TestScheduler_CanceledContextStopsDispatch(t *testing.T) {
	rec := &recorder{}
	s := newTestScheduler(t, stubRegistry(t, rec, nil), nil)
	g := mustBuild(t, task.New("r", task.CategoryRecon, "x"))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Run(ctx, "wf", g, finding.NewAggregator())
	require.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, rec.calls())
}
