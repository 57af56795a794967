package commands

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/bind"
	"github.com/vulntor/bytehunter/cmd/bytehunter/internal/format"
	"github.com/vulntor/bytehunter/pkg/config"
	"github.com/vulntor/bytehunter/pkg/engine"
	"github.com/vulntor/bytehunter/pkg/event"
	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/metrics"
	"github.com/vulntor/bytehunter/pkg/workspace"
	"github.com/vulntor/bytehunter/pkg/worker"
)

const shutdownTimeout = 10 * time.Second

// newRegistry is replaced in tests to avoid running external scanners.
var newRegistry = func(cfg config.Config, ws *workspace.Workspace, logger *zerolog.Logger) *worker.Registry {
	exec := worker.NewShellExecutor(
		worker.WithRateLimit(cfg.Executor.RateLimit, cfg.Executor.Burst),
		worker.WithExecLogger(*logger),
	)
	opts := worker.Options{Timeout: cfg.Executor.Timeout, Logger: logger}
	if ws != nil {
		opts.ResultsDir = ws.Path(workspace.ResultsDir)
	}
	return worker.NewDefaultRegistry(exec, opts)
}

func newAssessCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "assess <target>",
		Short: "Run a security assessment workflow against a target",
		Long: `Plans the assessment from a built-in profile or a plan file, runs every task
through its worker in dependency order and renders the findings report.

Profiles:
  comprehensive  recon -> vulnerability scan -> exploit probes -> posture review -> report
  quick          port scan -> vulnerability scan -> report`,
		Example: `  bytehunter assess example.com
  bytehunter assess example.com --profile quick --progress
  bytehunter assess example.com --plan web.yaml -o json`,
		GroupID: "assess",
		Args:    cobra.ExactArgs(1),
		RunE:    runAssess,
	}

	f := cmd.Flags()
	f.String("profile", engine.ProfileComprehensive, "Assessment profile (comprehensive, quick)")
	f.String("plan", "", "Plan file (YAML or JSON) describing the task graph")
	f.StringP("output", "o", "text", "Output format (text, json, yaml)")
	f.Bool("no-report", false, "Do not write the report to the workspace")
	f.Bool("show-report", false, "Print the full markdown report (text output)")
	f.Bool("progress", false, "Print task transitions while the workflow runs")
	f.String("metrics-file", "", "Write Prometheus metrics of the run to this file")
	f.Int("concurrency", 0, "Maximum tasks in flight (0 or 1 runs sequentially)")
	f.Int("per-category-limit", 0, "Maximum tasks in flight per category (0 = unlimited)")
	f.Duration("timeout", 0, "Default timeout for each external command")
	f.Float64("rate-limit", 0, "External command launches per second (0 = unlimited)")
	f.Int("burst", 0, "Burst of command launches allowed above the rate limit")

	return cmd
}

func runAssess(cmd *cobra.Command, args []string) error {
	formatter := format.FromCommand(cmd)
	logger := log.With().Str("command", "assess").Logger()

	opts, err := bind.BindAssessOptions(cmd, args)
	if err != nil {
		return err
	}

	cfg := configFrom(cmd)
	ws := workspaceFrom(cmd)

	bus := event.New()
	if opts.Progress {
		bus.Subscribe(event.TaskStatusChanged, progressHandler(formatter))
	}

	reg := prometheus.NewRegistry()
	orchOpts := engine.Options{
		Registry:         newRegistry(cfg, ws, &logger),
		Logger:           &logger,
		Bus:              bus,
		Metrics:          metrics.New(reg),
		Concurrency:      cfg.Scheduler.Concurrency,
		PerCategoryLimit: cfg.Scheduler.PerCategoryLimit,
	}
	if ws != nil && cfg.Report.Enabled && !opts.NoReport {
		orchOpts.ReportWriter = ws
	}

	orch, err := engine.NewOrchestrator(orchOpts)
	if err != nil {
		return err
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := orch.Shutdown(ctx); err != nil {
			logger.Warn().Err(err).Msg("Orchestrator shutdown incomplete")
		}
	}()

	ctx := cmd.Context()
	var id, profile string
	if opts.PlanPath != "" {
		plan, err := engine.LoadPlanFromFile(opts.PlanPath)
		if err != nil {
			return err
		}
		profile = plan.Name
		id, err = orch.SubmitPlan(ctx, opts.Target, plan)
		if err != nil {
			return err
		}
	} else {
		profile = opts.Profile
		id, err = orch.Submit(ctx, opts.Target, opts.Profile)
		if err != nil {
			return err
		}
	}

	out, runErr := orch.Execute(ctx, id)
	if out == nil {
		return runErr
	}

	if path, _ := cmd.Flags().GetString("metrics-file"); path != "" {
		if err := prometheus.WriteToTextfile(path, reg); err != nil {
			logger.Warn().Err(err).Str("path", path).Msg("Failed to write metrics file")
		}
	}

	wf, _ := orch.Workflow(id)
	if err := formatter.PrintAssessment(assessmentView(wf, profile, out, opts)); err != nil {
		return fmt.Errorf("print assessment: %w", err)
	}
	return runErr
}

// progressHandler prints task transitions one line at a time. The concurrent
// scheduler publishes from several goroutines.
func progressHandler(formatter format.Formatter) event.Handler {
	var mu sync.Mutex
	return func(_ context.Context, data any) {
		ev, ok := data.(event.TaskEvent)
		if !ok {
			return
		}
		mu.Lock()
		defer mu.Unlock()
		_ = formatter.PrintProgress(ev.TaskID, ev.Category, ev.Status, ev.Error)
	}
}

// assessmentResult is the json/yaml form of an assess run.
type assessmentResult struct {
	WorkflowID string            `json:"workflow_id" yaml:"workflow_id"`
	Target     string            `json:"target" yaml:"target"`
	Profile    string            `json:"profile" yaml:"profile"`
	Tasks      []taskResult      `json:"tasks" yaml:"tasks"`
	Summary    engine.RunSummary `json:"summary" yaml:"summary"`
	Findings   []finding.Finding `json:"findings" yaml:"findings"`
	ReportPath string            `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	Analysis   string            `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Report     string            `json:"report,omitempty" yaml:"report,omitempty"`
}

type taskResult struct {
	ID       string `json:"id" yaml:"id"`
	Category string `json:"category" yaml:"category"`
	Status   string `json:"status" yaml:"status"`
	Error    string `json:"error,omitempty" yaml:"error,omitempty"`
}

func assessmentView(wf *engine.Workflow, profile string, out *engine.Outcome, opts bind.AssessOptions) format.Assessment {
	var rows []format.TaskRow
	var tasks []taskResult
	for _, t := range wf.Graph.Tasks() {
		status := t.Status.String()
		if slices.Contains(out.Summary.Blocked, t.ID) {
			status = "Blocked"
		}
		row := format.TaskRow{ID: t.ID, Category: string(t.Category), Status: status, Error: out.Summary.TaskErrors[t.ID]}
		rows = append(rows, row)
		tasks = append(tasks, taskResult(row))
	}

	result := assessmentResult{
		WorkflowID: wf.ID,
		Target:     wf.Target,
		Profile:    profile,
		Tasks:      tasks,
		Summary:    out.Summary,
		Findings:   out.Findings,
		ReportPath: out.ReportPath,
		Analysis:   out.Analysis,
	}
	if opts.ShowReport {
		result.Report = out.Report.Body
	}

	return format.Assessment{
		WorkflowID: wf.ID,
		Target:     wf.Target,
		Profile:    profile,
		Duration:   out.Summary.Duration,
		Tasks:      rows,
		Severity:   out.Summary.Severity,
		Findings:   out.Findings,
		ReportPath: out.ReportPath,
		Report:     out.Report.Body,
		ShowReport: opts.ShowReport,
		Data:       result,
	}
}
