// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package report renders aggregated findings into a Markdown assessment
// document. Rendering is pure: the same findings, target and options always
// produce the same bytes.
package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/vulntor/bytehunter/pkg/finding"
)

// Section headings in document order. Automated Analysis appears only when
// analysis text is supplied.
const (
	SectionExecutiveSummary = "Executive Summary"
	SectionDetailedFindings = "Detailed Findings"
	SectionAnalysis         = "Automated Analysis"
	SectionRiskAnalysis     = "Risk Analysis"
	SectionRecommendations  = "Strategic Recommendations"
	SectionMethodology      = "Methodology"
)

// Options carries the inputs that would otherwise come from the environment.
type Options struct {
	// GeneratedAt is printed as the assessment date. Zero omits the line.
	GeneratedAt time.Time
	// Generator names the producing system in the header and footer.
	Generator string
	// Phases lists the assessment phases that ran, for the summary section.
	Phases []string
	// FailedPhases lists phases that did not complete.
	FailedPhases []string
	// Analysis is optional free-form commentary placed after the findings.
	Analysis string
}

// Document is a rendered report.
type Document struct {
	Target  string
	Title   string
	Summary map[finding.Severity]int
	Body    string
}

// String returns the Markdown body.
func (d Document) String() string { return d.Body }

// Bytes returns the Markdown body as bytes, ready to persist.
func (d Document) Bytes() []byte { return []byte(d.Body) }

const defaultGenerator = "ByteHunter Orchestration System"

// Render builds the report for target. The summary table groups findings by
// severity; the detail section lists every finding in the order given.
func Render(findings []finding.Finding, target string, opts Options) Document {
	generator := opts.Generator
	if generator == "" {
		generator = defaultGenerator
	}
	counts := finding.Count(findings)
	title := "ByteHunter Security Assessment Report"

	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "**Target:** %s\n", target)
	if !opts.GeneratedAt.IsZero() {
		fmt.Fprintf(&b, "**Assessment Date:** %s\n", opts.GeneratedAt.Format("2006-01-02 15:04:05"))
	}
	fmt.Fprintf(&b, "**Generated by:** %s\n\n", generator)

	writeSummary(&b, counts, len(findings), opts)
	writeDetails(&b, findings)
	if analysis := strings.TrimSpace(opts.Analysis); analysis != "" {
		fmt.Fprintf(&b, "## %s\n\n%s\n\n", SectionAnalysis, analysis)
	}
	writeRiskAnalysis(&b)
	writeRecommendations(&b)

	fmt.Fprintf(&b, "## %s\n\n", SectionMethodology)
	b.WriteString("This assessment utilized:\n")
	b.WriteString("- Automated reconnaissance and vulnerability scanning\n")
	b.WriteString("- Targeted exploitation probes\n")
	b.WriteString("- Operational security posture review\n")
	b.WriteString("- Dependency-ordered task orchestration with per-phase findings aggregation\n\n")
	b.WriteString("---\n\n")
	fmt.Fprintf(&b, "*Report generated by %s*\n", generator)

	return Document{
		Target:  target,
		Title:   title,
		Summary: counts,
		Body:    b.String(),
	}
}

func writeSummary(b *strings.Builder, counts map[finding.Severity]int, total int, opts Options) {
	fmt.Fprintf(b, "## %s\n\n", SectionExecutiveSummary)
	if len(opts.Phases) > 0 {
		fmt.Fprintf(b, "Assessment phases executed: %s.\n\n", strings.Join(opts.Phases, ", "))
	}
	if len(opts.FailedPhases) > 0 {
		fmt.Fprintf(b, "Phases that did not complete: %s.\n\n", strings.Join(opts.FailedPhases, ", "))
	}
	fmt.Fprintf(b, "**Findings Overview:** %d total\n\n", total)
	b.WriteString("| Severity | Count |\n")
	b.WriteString("|----------|-------|\n")
	for _, sev := range finding.Severities() {
		fmt.Fprintf(b, "| %s | %d |\n", sev, counts[sev])
	}
	b.WriteString("\n")
}

func writeDetails(b *strings.Builder, findings []finding.Finding) {
	fmt.Fprintf(b, "## %s\n\n", SectionDetailedFindings)
	if len(findings) == 0 {
		b.WriteString("No findings were recorded.\n\n")
		return
	}
	for i, f := range findings {
		fmt.Fprintf(b, "### %d. %s\n\n", i+1, f.Title)
		fmt.Fprintf(b, "- **Worker:** %s\n", f.SourceWorker)
		fmt.Fprintf(b, "- **Category:** %s\n", f.Category)
		fmt.Fprintf(b, "- **Severity:** %s\n", f.Severity)
		fmt.Fprintf(b, "- **Risk Score:** %.1f\n", f.RiskScore)
		fmt.Fprintf(b, "- **Confidence:** %s\n\n", f.Confidence)
		fmt.Fprintf(b, "**Description:**\n%s\n\n", f.Description)
		fmt.Fprintf(b, "**Evidence:**\n%s\n\n", f.Evidence)
		fmt.Fprintf(b, "**Recommendation:**\n%s\n\n", f.Recommendation)
		b.WriteString("---\n\n")
	}
}

func writeRiskAnalysis(b *strings.Builder) {
	fmt.Fprintf(b, "## %s\n\n", SectionRiskAnalysis)
	b.WriteString("The identified issues pose varying levels of risk:\n")
	b.WriteString("- Critical and High findings require immediate attention\n")
	b.WriteString("- Medium findings should be addressed in the next maintenance cycle\n")
	b.WriteString("- Low findings can be scheduled for future security improvements\n\n")
}

func writeRecommendations(b *strings.Builder) {
	fmt.Fprintf(b, "## %s\n\n", SectionRecommendations)
	b.WriteString("1. **Immediate Actions (Critical/High)**\n")
	b.WriteString("   - Apply critical security patches\n")
	b.WriteString("   - Remediate high-risk vulnerabilities\n")
	b.WriteString("   - Enhance monitoring and incident response\n\n")
	b.WriteString("2. **Short-term Actions (Medium)**\n")
	b.WriteString("   - Deploy security headers\n")
	b.WriteString("   - Tighten access controls\n")
	b.WriteString("   - Run security awareness training\n\n")
	b.WriteString("3. **Long-term Actions (Strategic)**\n")
	b.WriteString("   - Establish a secure development lifecycle\n")
	b.WriteString("   - Schedule recurring security testing\n")
	b.WriteString("   - Adopt a security framework (ISO 27001, NIST)\n\n")
}
