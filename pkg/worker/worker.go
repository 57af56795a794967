// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package worker defines the units that perform the actual assessment work.
// Each task category is handled by exactly one Worker; workers are stateless
// per invocation and reach external tools only through an Executor.
package worker

import (
	"context"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/logging"
	"github.com/vulntor/bytehunter/pkg/task"
)

// Output keys produced by the built-in workers.
const (
	KeySubdomains      = "subdomains"
	KeyPorts           = "ports"
	KeyTechnologies    = "technologies"
	KeyVulnerabilities = "vulnerabilities"
	KeyWebVulns        = "web_vulns"
	KeyBugBounty       = "bug_bounty_findings"
	KeyOpsec           = "opsec_findings"
	KeyReport          = "report"
	KeySummary         = "summary"
)

// Output is the success payload of a worker: named sub-results. Findings are
// carried as []finding.Finding values under any key.
type Output map[string]any

// Metadata describes a worker for listing and registry checks.
type Metadata struct {
	ID           string        // Stable identifier, stamped on findings as SourceWorker
	Name         string        // Human-readable name
	Category     task.Category // The single category this worker accepts
	Description  string
	Capabilities []string
}

// Worker performs the work of one task category.
type Worker interface {
	// Metadata returns descriptive information about the worker.
	Metadata() Metadata

	// Execute runs the task. A task whose category differs from
	// Metadata().Category is rejected with ErrCategoryMismatch before any
	// external call.
	Execute(ctx context.Context, t task.Task) (Output, error)
}

// FindingsFrom collects every finding carried in out. Keys are visited in
// sorted order so the result is deterministic.
func FindingsFrom(out Output) []finding.Finding {
	var all []finding.Finding
	for _, k := range slices.Sorted(maps.Keys(out)) {
		switch v := out[k].(type) {
		case []finding.Finding:
			all = append(all, v...)
		case finding.Finding:
			all = append(all, v)
		}
	}
	return all
}

// FindingsSource exposes the findings recorded so far in a workflow.
type FindingsSource interface {
	Findings() []finding.Finding
}

type findingsKey struct{}

// ContextWithFindings attaches src so that workers which summarize earlier
// phases can read them at execution time.
func ContextWithFindings(ctx context.Context, src FindingsSource) context.Context {
	if src == nil {
		return ctx
	}
	return context.WithValue(ctx, findingsKey{}, src)
}

// FindingsFromContext returns the findings of the source attached to ctx, or
// nil when none is attached.
func FindingsFromContext(ctx context.Context) []finding.Finding {
	if ctx == nil {
		return nil
	}
	if src, ok := ctx.Value(findingsKey{}).(FindingsSource); ok {
		return src.Findings()
	}
	return nil
}

// Options configures the built-in workers.
type Options struct {
	// Timeout bounds each external command unless a task overrides it with
	// the "timeout" parameter.
	Timeout time.Duration
	// ResultsDir receives raw tool output files. Empty means the OS temp dir.
	ResultsDir string
	// Now stamps findings and reports. Defaults to time.Now.
	Now func() time.Time
	// Logger is the parent logger; each worker derives a component logger.
	Logger *zerolog.Logger
}

// DefaultTimeout is used when neither Options nor the task specify one.
const DefaultTimeout = 10 * time.Minute

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

func (o Options) logger(component string) zerolog.Logger {
	return logging.Component(component, o.Logger)
}
