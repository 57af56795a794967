package commands

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vulntor/bytehunter/pkg/config"
	"github.com/vulntor/bytehunter/pkg/engine"
	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/task"
	"github.com/vulntor/bytehunter/pkg/workspace"
	"github.com/vulntor/bytehunter/pkg/worker"
)

type stubWorker struct {
	category task.Category
	fail     bool
}

func (s stubWorker) Metadata() worker.Metadata {
	return worker.Metadata{ID: "stub-" + string(s.category), Name: "stub", Category: s.category}
}

func (s stubWorker) Execute(_ context.Context, t task.Task) (worker.Output, error) {
	if s.fail {
		return nil, errors.New("tool not installed")
	}
	if s.category == task.CategoryRecon {
		return worker.Output{"findings": []finding.Finding{{
			ID: "f1", Title: "Open admin port", Severity: finding.SeverityHigh, Category: "recon", Evidence: t.Target,
		}}}, nil
	}
	return worker.Output{}, nil
}

// useStubWorkers swaps the scanner-backed registry for stubs; failing lists
// categories whose worker errors.
func useStubWorkers(t *testing.T, failing ...task.Category) {
	t.Helper()
	old := newRegistry
	newRegistry = func(_ config.Config, _ *workspace.Workspace, logger *zerolog.Logger) *worker.Registry {
		reg := worker.NewRegistry()
		for _, c := range task.Categories() {
			if c == task.CategoryReport {
				require.NoError(t, reg.Register(worker.NewReportWorker(worker.Options{Logger: logger})))
				continue
			}
			fail := false
			for _, f := range failing {
				fail = fail || f == c
			}
			require.NoError(t, reg.Register(stubWorker{category: c, fail: fail}))
		}
		return reg
	}
	t.Cleanup(func() { newRegistry = old })
}

func execute(t *testing.T, args ...string) (string, string, error) {
	t.Helper()
	cmd := NewCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	cmd.SetArgs(append(args, "--log-level", "error"))
	err := cmd.ExecuteContext(context.Background())
	return stdout.String(), stderr.String(), err
}

func TestRootCommandPreparesWorkspaceAndRunsVersion(t *testing.T) {
	root := filepath.Join(t.TempDir(), "ws")
	t.Setenv(workspace.EnvWorkspace, root)

	out, _, err := execute(t, "version", "--short")
	require.NoError(t, err)
	assert.Equal(t, "bytehunter version: dev\n", out)

	for _, sub := range workspace.Subdirectories() {
		assert.DirExists(t, filepath.Join(root, sub))
	}
}

func TestVersionJSON(t *testing.T) {
	out, _, err := execute(t, "version", "-o", "json", "--no-workspace")
	require.NoError(t, err)
	var info map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &info))
	assert.Equal(t, "dev", info["version"])
}

func TestInvalidConfigurationFails(t *testing.T) {
	_, _, err := execute(t, "version", "--no-workspace", "--log-format", "xml")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "load configuration")
}

func TestAssess_QuickProfileJSON(t *testing.T) {
	useStubWorkers(t)
	ws := t.TempDir()

	out, _, err := execute(t, "assess", "example.com", "--profile", "quick", "--workspace", ws, "-o", "json")
	require.NoError(t, err)

	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Equal(t, "example.com", res["target"])
	assert.Equal(t, "quick", res["profile"])

	tasks := res["tasks"].([]any)
	require.Len(t, tasks, 3)
	for _, raw := range tasks {
		assert.Equal(t, "Completed", raw.(map[string]any)["status"])
	}

	reportPath, _ := res["report_path"].(string)
	require.NotEmpty(t, reportPath)
	assert.True(t, strings.HasPrefix(reportPath, ws))
	body, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(body), "### 1. Open admin port")
	assert.Contains(t, string(body), "| High | 1 |")
}

func TestAssess_TextWithFailedPhaseAndProgress(t *testing.T) {
	useStubWorkers(t, task.CategoryVulnScan)

	out, stderr, err := execute(t, "assess", "example.com", "--profile", "quick", "--no-workspace", "--progress", "--no-color")
	require.NoError(t, err, "task failures are reported, not returned")

	assert.Contains(t, out, "Workflow: workflow_")
	assert.Contains(t, out, "tool not installed")
	assert.Contains(t, out, "Blocked")
	assert.Contains(t, out, "Findings (1)")
	assert.NotContains(t, out, "Report written to")

	assert.Contains(t, stderr, "Running")
	assert.Contains(t, stderr, "Failed")
}

func TestAssess_NoReportSkipsWorkspaceWrite(t *testing.T) {
	useStubWorkers(t)
	ws := t.TempDir()

	_, _, err := execute(t, "assess", "example.com", "--profile", "quick", "--workspace", ws, "--no-report", "-o", "yaml")
	require.NoError(t, err)

	entries, err := os.ReadDir(filepath.Join(ws, workspace.ReportsDir))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestAssess_PlanFile(t *testing.T) {
	useStubWorkers(t)
	plan := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(plan, []byte(`
name: recon-only
tasks:
  - id: scan
    category: recon
  - id: report
    category: report
    depends_on: [scan]
`), 0o600))

	out, _, err := execute(t, "assess", "example.com", "--plan", plan, "--no-workspace", "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, `"profile": "recon-only"`)
	assert.Contains(t, out, `"id": "scan"`)
}

func TestAssess_Errors(t *testing.T) {
	useStubWorkers(t)

	_, _, err := execute(t, "assess", "example.com", "--profile", "stealth", "--no-workspace")
	require.Error(t, err)

	_, _, err = execute(t, "assess", "example.com", "--plan", filepath.Join(t.TempDir(), "missing.yaml"), "--no-workspace")
	require.Error(t, err)

	bad := filepath.Join(t.TempDir(), "plan.json")
	require.NoError(t, os.WriteFile(bad, []byte(`{"name":"loop","tasks":[{"id":"a","category":"recon","depends_on":["a"]}]}`), 0o600))
	_, _, err = execute(t, "assess", "example.com", "--plan", bad, "--no-workspace")
	require.ErrorIs(t, err, engine.ErrInvalidPlan)
	assert.Equal(t, 2, engine.ExitCode(err))
}

func TestAssess_MetricsFile(t *testing.T) {
	useStubWorkers(t)
	path := filepath.Join(t.TempDir(), "run.prom")

	_, _, err := execute(t, "assess", "example.com", "--profile", "quick", "--no-workspace", "--metrics-file", path, "-o", "json")
	require.NoError(t, err)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), `bytehunter_findings_total{severity="High"} 1`)
	assert.Contains(t, string(data), "bytehunter_workflows_total")
}

func TestReports(t *testing.T) {
	useStubWorkers(t)
	ws := t.TempDir()

	out, _, err := execute(t, "assess", "example.com", "--profile", "quick", "--workspace", ws, "-o", "json")
	require.NoError(t, err)
	var res map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	id := res["workflow_id"].(string)

	out, _, err = execute(t, "reports", "--workspace", ws, "-o", "json")
	require.NoError(t, err)
	assert.Contains(t, out, id)

	out, _, err = execute(t, "reports", id, "--workspace", ws)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "# ByteHunter Security Assessment Report"))

	_, _, err = execute(t, "reports", "workflow_missing", "--workspace", ws)
	assert.ErrorIs(t, err, engine.ErrWorkflowNotFound)

	_, _, err = execute(t, "reports", "--no-workspace")
	assert.ErrorIs(t, err, errNoWorkspace)
}

func TestWorkersCommand(t *testing.T) {
	out, _, err := execute(t, "workers", "--no-workspace", "-o", "json")
	require.NoError(t, err)

	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 5)
	assert.Equal(t, "recon", rows[0]["category"])
	assert.Equal(t, "report", rows[4]["category"])
}

func TestPlanCommands(t *testing.T) {
	out, _, err := execute(t, "plan", "show", "example.com", "--profile", "quick", "--no-workspace", "-o", "json")
	require.NoError(t, err)
	var rows []map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &rows))
	require.Len(t, rows, 3)
	assert.Equal(t, "workflow_recon", rows[0]["id"])
	assert.Equal(t, "workflow_recon", rows[1]["depends_on"])

	path := filepath.Join(t.TempDir(), "plan.yaml")
	require.NoError(t, os.WriteFile(path, []byte("name: p\ntasks:\n  - id: a\n    category: recon\n"), 0o600))
	out, _, err = execute(t, "plan", "validate", path, "--no-workspace")
	require.NoError(t, err)
	assert.Contains(t, out, `Plan "p" is valid (1 tasks)`)
}
