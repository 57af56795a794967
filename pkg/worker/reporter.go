package worker

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/report"
	"github.com/vulntor/bytehunter/pkg/task"
)

// ReportWorker renders the findings gathered so far into a Markdown report.
type ReportWorker struct {
	opts   Options
	logger zerolog.Logger
}

// NewReportWorker returns a report worker. It makes no external calls.
func NewReportWorker(opts Options) *ReportWorker {
	opts = opts.withDefaults()
	return &ReportWorker{opts: opts, logger: opts.logger("worker.report")}
}

func (w *ReportWorker) Metadata() Metadata {
	return Metadata{
		ID:          "report",
		Name:        "Security Reporting Specialist",
		Category:    task.CategoryReport,
		Description: "Markdown report synthesis from aggregated findings",
		Capabilities: []string{
			"report_generation", "findings_analysis", "risk_assessment",
			"executive_summary", "technical_details", "remediation_planning",
		},
	}
}

// Execute renders parameters["findings"] when present, otherwise the
// findings attached to ctx, otherwise an empty report.
func (w *ReportWorker) Execute(ctx context.Context, t task.Task) (Output, error) {
	if err := checkCategory(w, t); err != nil {
		return nil, err
	}

	var findings []finding.Finding
	if raw, ok := t.Parameters[ParamFindings]; ok && raw != nil {
		fs, err := decodeFindings(raw)
		if err != nil {
			return nil, newError(t, "", fmt.Errorf("%w: %s: %w", ErrInvalidParameter, ParamFindings, err))
		}
		findings = fs
	} else {
		findings = FindingsFromContext(ctx)
	}

	doc := report.Render(findings, t.Target, report.Options{GeneratedAt: w.opts.Now()})
	w.logger.Debug().Str("task", t.ID).Int("findings", len(findings)).Msg("Report rendered")
	return Output{
		KeyReport:  doc.String(),
		KeySummary: doc.Summary,
	}, nil
}

// decodeFindings accepts a finding slice as built in Go, or the generic
// lists of maps that YAML and JSON plan files decode to.
func decodeFindings(raw any) ([]finding.Finding, error) {
	switch v := raw.(type) {
	case []finding.Finding:
		return v, nil
	case []any, []map[string]any:
		data, err := yaml.Marshal(v)
		if err != nil {
			return nil, err
		}
		var fs []finding.Finding
		if err := yaml.Unmarshal(data, &fs); err != nil {
			return nil, err
		}
		return fs, nil
	default:
		return nil, fmt.Errorf("must be a list of findings, got %T", raw)
	}
}
