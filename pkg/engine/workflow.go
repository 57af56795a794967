package engine

import (
	"sync"
	"time"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/report"
	"github.com/vulntor/bytehunter/pkg/task"
)

// WorkflowState is the lifecycle of a submitted workflow.
type WorkflowState string

const (
	WorkflowPending  WorkflowState = "pending"
	WorkflowRunning  WorkflowState = "running"
	WorkflowFinished WorkflowState = "finished"
	WorkflowAborted  WorkflowState = "aborted"
)

// Workflow is one assessment run: the task graph and the findings it produced.
type Workflow struct {
	ID        string
	Target    string
	Profile   string // profile name, or the plan name for plan submissions
	CreatedAt time.Time

	Graph    *task.Graph
	Findings *finding.Aggregator

	mu      sync.RWMutex
	state   WorkflowState
	outcome *Outcome
}

// Outcome is what Execute returns for a workflow.
type Outcome struct {
	Summary    RunSummary        `json:"summary" yaml:"summary"`
	Report     report.Document   `json:"-" yaml:"-"`
	ReportPath string            `json:"report_path,omitempty" yaml:"report_path,omitempty"`
	Analysis   string            `json:"analysis,omitempty" yaml:"analysis,omitempty"`
	Findings   []finding.Finding `json:"findings" yaml:"findings"`
}

func newWorkflow(id, target, profile string, createdAt time.Time, g *task.Graph) *Workflow {
	return &Workflow{
		ID:        id,
		Target:    target,
		Profile:   profile,
		CreatedAt: createdAt,
		Graph:     g,
		Findings:  finding.NewAggregator(),
		state:     WorkflowPending,
	}
}

// State returns the current lifecycle state.
func (w *Workflow) State() WorkflowState {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.state
}

// Outcome returns the result of Execute, or nil before the run ends.
func (w *Workflow) Outcome() *Outcome {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return w.outcome
}

// begin moves a pending workflow to running.
func (w *Workflow) begin() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.state != WorkflowPending {
		return false
	}
	w.state = WorkflowRunning
	return true
}

func (w *Workflow) finish(state WorkflowState, out *Outcome) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = state
	w.outcome = out
}
