package engine

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vulntor/bytehunter/pkg/task"
	"github.com/vulntor/bytehunter/pkg/worker"
)

// Built-in assessment profiles.
const (
	ProfileComprehensive = "comprehensive"
	ProfileQuick         = "quick"
)

// Profiles lists the built-in profile names.
func Profiles() []string {
	return []string{ProfileComprehensive, ProfileQuick}
}

// Task id suffixes used by the built-in profiles.
const (
	suffixRecon  = "_recon"
	suffixVuln   = "_vuln"
	suffixBounty = "_bounty"
	suffixOpsec  = "_opsec"
	suffixReport = "_report"
)

// PlanProfile expands profile into the task chain for one workflow. Task ids
// are the workflow id plus a phase suffix.
func PlanProfile(workflowID, target, profile string) ([]task.Task, error) {
	target = strings.TrimSpace(target)
	if target == "" {
		return nil, WithErrorCode(fmt.Errorf("%w: target is empty", ErrInvalidTarget), errorCodeInvalidTarget)
	}

	switch strings.ToLower(strings.TrimSpace(profile)) {
	case ProfileComprehensive, "":
		return comprehensivePlan(workflowID, target), nil
	case ProfileQuick:
		return quickPlan(workflowID, target), nil
	default:
		return nil, WithErrorCode(fmt.Errorf("%w: %q (known: %s)", ErrUnknownProfile, profile, strings.Join(Profiles(), ", ")), errorCodeUnknownProfile)
	}
}

// comprehensivePlan chains every phase: recon, vulnerability scan, exploit
// probes, posture review, report.
func comprehensivePlan(wf, target string) []task.Task {
	recon := wf + suffixRecon
	vuln := wf + suffixVuln
	bounty := wf + suffixBounty
	opsec := wf + suffixOpsec
	return []task.Task{
		task.New(recon, task.CategoryRecon, target,
			task.WithPriority(1),
			task.WithParameters(map[string]any{
				worker.ParamOperations: []string{worker.OpSubdomainEnumeration, worker.OpPortScanning, worker.OpTechnologyDetection},
			})),
		task.New(vuln, task.CategoryVulnScan, target,
			task.WithPriority(2),
			task.WithDependsOn(recon),
			task.WithParameters(map[string]any{
				worker.ParamOperations: []string{worker.OpVulnerabilityScanning, worker.OpWebVulnerabilities},
			})),
		task.New(bounty, task.CategoryExploitProbe, target,
			task.WithPriority(3),
			task.WithDependsOn(vuln),
			task.WithParameters(map[string]any{
				worker.ParamTestSQLInjection: true,
				worker.ParamTestXSS:          true,
			})),
		task.New(opsec, task.CategoryPostureReview, target,
			task.WithPriority(4),
			task.WithDependsOn(bounty)),
		task.New(wf+suffixReport, task.CategoryReport, target,
			task.WithPriority(5),
			task.WithDependsOn(opsec)),
	}
}

// quickPlan is port scanning, known-vulnerability scanning and a report.
func quickPlan(wf, target string) []task.Task {
	recon := wf + suffixRecon
	vuln := wf + suffixVuln
	return []task.Task{
		task.New(recon, task.CategoryRecon, target,
			task.WithPriority(1),
			task.WithParameters(map[string]any{
				worker.ParamOperations: []string{worker.OpPortScanning},
			})),
		task.New(vuln, task.CategoryVulnScan, target,
			task.WithPriority(2),
			task.WithDependsOn(recon),
			task.WithParameters(map[string]any{
				worker.ParamOperations: []string{worker.OpVulnerabilityScanning},
			})),
		task.New(wf+suffixReport, task.CategoryReport, target,
			task.WithPriority(3),
			task.WithDependsOn(vuln)),
	}
}

// KnownProfile reports whether name is a built-in profile.
func KnownProfile(name string) bool {
	return slices.Contains(Profiles(), strings.ToLower(strings.TrimSpace(name)))
}
