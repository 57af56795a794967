package engine

import (
	"slices"
	"time"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/task"
)

// RunSummary describes the outcome of one scheduler run. Task ids appear in
// graph order.
type RunSummary struct {
	WorkflowID string `json:"workflow_id" yaml:"workflow_id"`

	Completed []string `json:"completed" yaml:"completed"`
	Failed    []string `json:"failed" yaml:"failed"`
	Blocked   []string `json:"blocked" yaml:"blocked"`
	Pending   []string `json:"pending,omitempty" yaml:"pending,omitempty"`

	// FailedPhases lists the categories with at least one failed task, in
	// phase order.
	FailedPhases []task.Category `json:"failed_phases,omitempty" yaml:"failed_phases,omitempty"`
	// Phases lists every category that completed at least one task.
	Phases []task.Category `json:"phases,omitempty" yaml:"phases,omitempty"`

	// TaskErrors maps failed task ids to their error text.
	TaskErrors map[string]string `json:"task_errors,omitempty" yaml:"task_errors,omitempty"`

	Findings int                      `json:"findings" yaml:"findings"`
	Severity map[finding.Severity]int `json:"severity" yaml:"severity"`

	StartedAt  time.Time     `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time     `json:"finished_at" yaml:"finished_at"`
	Duration   time.Duration `json:"duration" yaml:"duration"`
}

// Succeeded reports whether every task completed.
func (s RunSummary) Succeeded() bool {
	return len(s.Failed) == 0 && len(s.Blocked) == 0 && len(s.Pending) == 0
}

// Total returns the number of tasks covered by the summary.
func (s RunSummary) Total() int {
	return len(s.Completed) + len(s.Failed) + len(s.Blocked) + len(s.Pending)
}

func summarize(workflowID string, g *task.Graph, agg *finding.Aggregator, started, finished time.Time) RunSummary {
	s := RunSummary{
		WorkflowID: workflowID,
		Completed:  []string{},
		Failed:     []string{},
		Blocked:    []string{},
		Findings:   agg.Len(),
		Severity:   agg.Summary(),
		StartedAt:  started,
		FinishedAt: finished,
		Duration:   finished.Sub(started),
	}

	classes := g.Classifications()
	failedPhases := make(map[task.Category]bool)
	phases := make(map[task.Category]bool)
	for _, t := range g.Tasks() {
		switch classes[t.ID] {
		case task.ClassCompleted:
			s.Completed = append(s.Completed, t.ID)
			phases[t.Category] = true
		case task.ClassFailed:
			s.Failed = append(s.Failed, t.ID)
			failedPhases[t.Category] = true
			if t.Result != nil && t.Result.Err != nil {
				if s.TaskErrors == nil {
					s.TaskErrors = make(map[string]string)
				}
				s.TaskErrors[t.ID] = t.Result.Err.Error()
			}
		case task.ClassBlocked:
			s.Blocked = append(s.Blocked, t.ID)
		default:
			s.Pending = append(s.Pending, t.ID)
		}
	}
	for _, c := range task.Categories() {
		if failedPhases[c] {
			s.FailedPhases = append(s.FailedPhases, c)
		}
		if phases[c] {
			s.Phases = append(s.Phases, c)
		}
	}
	s.FailedPhases = slices.Clip(s.FailedPhases)
	return s
}
