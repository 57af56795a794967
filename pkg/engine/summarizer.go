package engine

import (
	"context"

	"github.com/vulntor/bytehunter/pkg/finding"
)

// Summarizer produces free-form analysis of a workflow's findings, appended
// to the report. Implementations may call out to external analysis services;
// the orchestrator treats an error as "no analysis".
type Summarizer interface {
	Summarize(ctx context.Context, target string, findings []finding.Finding) (string, error)
}

// NopSummarizer returns no analysis.
type NopSummarizer struct{}

func (NopSummarizer) Summarize(context.Context, string, []finding.Finding) (string, error) {
	return "", nil
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, target string, findings []finding.Finding) (string, error)

func (f SummarizerFunc) Summarize(ctx context.Context, target string, findings []finding.Finding) (string, error) {
	return f(ctx, target, findings)
}
