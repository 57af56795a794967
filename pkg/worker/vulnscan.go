package worker

import (
	"context"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/task"
)

// Vulnerability scan operations.
const (
	OpVulnerabilityScanning = "vulnerability_scanning"
	OpWebVulnerabilities    = "web_vulnerabilities"
)

var vulnOperations = []string{OpVulnerabilityScanning, OpWebVulnerabilities}

var cveRe = regexp.MustCompile(`CVE-\d{4}-\d{4,7}`)

// VulnScanWorker runs known-vulnerability and web scanners.
type VulnScanWorker struct {
	exec   Executor
	opts   Options
	logger zerolog.Logger
}

// NewVulnScanWorker returns a vulnerability scan worker.
func NewVulnScanWorker(exec Executor, opts Options) *VulnScanWorker {
	opts = opts.withDefaults()
	return &VulnScanWorker{exec: exec, opts: opts, logger: opts.logger("worker.vulnscan")}
}

func (w *VulnScanWorker) Metadata() Metadata {
	return Metadata{
		ID:          "vulnscan",
		Name:        "Vulnerability Assessment Specialist",
		Category:    task.CategoryVulnScan,
		Description: "nmap vulnerability scripts and nikto web scanning",
		Capabilities: []string{
			OpVulnerabilityScanning, "weakness_identification", "cve_analysis",
			"security_configuration_review", "patch_assessment",
		},
	}
}

// Execute never fails on a scanner error: a failed nmap run becomes a Low
// finding and a failed nikto run is skipped.
func (w *VulnScanWorker) Execute(ctx context.Context, t task.Task) (Output, error) {
	if err := checkCategory(w, t); err != nil {
		return nil, err
	}
	timeout := timeoutFor(t, w.opts)
	ops := operations(t, vulnOperations)
	for _, op := range ops {
		if !slices.Contains(vulnOperations, op) {
			return nil, newError(t, op, fmt.Errorf("%w: unknown vulnerability-scan operation %q", ErrInvalidParameter, op))
		}
	}

	out := Output{}
	for _, op := range ops {
		switch op {
		case OpVulnerabilityScanning:
			out[KeyVulnerabilities] = w.nmapVuln(ctx, t, timeout)
		case OpWebVulnerabilities:
			out[KeyWebVulns] = w.nikto(ctx, t, timeout)
		}
	}
	return out, nil
}

func (w *VulnScanWorker) nmapVuln(ctx context.Context, t task.Task, timeout time.Duration) []finding.Finding {
	md := w.Metadata()
	scanFile := w.opts.resultsPath(t, "vuln_scan.xml")
	res, err := run(ctx, w.exec, t, OpVulnerabilityScanning, Command{
		Name: "nmap",
		Args: []string{"--script", "vuln", "-oX", scanFile, t.Target},
	}, timeout)
	if err != nil {
		w.logger.Warn().Err(err).Str("task", t.ID).Msg("Vulnerability scan failed")
		return []finding.Finding{w.opts.stamp(md, finding.Finding{
			Category:       "vulnerability_scan",
			Severity:       finding.SeverityLow,
			Title:          "Vulnerability Scan Failed",
			Description:    "Automated vulnerability scan encountered errors",
			Evidence:       err.Error(),
			Recommendation: "Perform manual vulnerability assessment",
			Confidence:     finding.ConfidenceLow,
		})}
	}

	findings := []finding.Finding{w.opts.stamp(md, finding.Finding{
		Category:       "vulnerability_scan",
		Severity:       finding.SeverityMedium,
		Title:          "Vulnerability Scan Completed",
		Description:    "Comprehensive vulnerability scan performed",
		Evidence:       scanFile,
		Recommendation: "Review detailed scan results for identified vulnerabilities",
	})}

	seen := make(map[string]struct{})
	for _, cve := range cveRe.FindAllString(res.Stdout, -1) {
		if _, dup := seen[cve]; dup {
			continue
		}
		seen[cve] = struct{}{}
		findings = append(findings, w.opts.stamp(md, finding.Finding{
			Category:       "cve",
			Severity:       finding.SeverityHigh,
			Title:          "Known Vulnerability " + cve,
			Description:    fmt.Sprintf("nmap vulnerability scripts reported %s on %s", cve, t.Target),
			Evidence:       scanFile,
			Recommendation: "Apply the vendor patch or mitigation for " + cve,
			Confidence:     finding.ConfidenceHigh,
		}))
	}
	return findings
}

func (w *VulnScanWorker) nikto(ctx context.Context, t task.Task, timeout time.Duration) []finding.Finding {
	outFile := w.opts.resultsPath(t, "nikto.txt")
	_, err := run(ctx, w.exec, t, OpWebVulnerabilities, Command{
		Name: "nikto",
		Args: []string{"-h", targetURL(t), "-o", outFile},
	}, timeout)
	if err != nil {
		w.logger.Warn().Err(err).Str("task", t.ID).Msg("Web vulnerability scan failed, skipping")
		return []finding.Finding{}
	}
	return []finding.Finding{w.opts.stamp(w.Metadata(), finding.Finding{
		Category:       "web_vulnerability",
		Severity:       finding.SeverityMedium,
		Title:          "Web Vulnerability Scan",
		Description:    "Web application vulnerability assessment completed",
		Evidence:       outFile,
		Recommendation: "Review Nikto output for identified web vulnerabilities",
	})}
}
