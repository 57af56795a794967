package worker

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/task"
)

// securityHeaders are the response headers whose absence is reported.
var securityHeaders = []string{
	"Strict-Transport-Security",
	"Content-Security-Policy",
	"X-Frame-Options",
	"X-Content-Type-Options",
	"X-XSS-Protection",
}

// PostureWorker reviews operational security posture.
type PostureWorker struct {
	exec   Executor
	opts   Options
	logger zerolog.Logger
}

// NewPostureWorker returns a posture-review worker.
func NewPostureWorker(exec Executor, opts Options) *PostureWorker {
	opts = opts.withDefaults()
	return &PostureWorker{exec: exec, opts: opts, logger: opts.logger("worker.posture")}
}

func (w *PostureWorker) Metadata() Metadata {
	return Metadata{
		ID:          "posture",
		Name:        "Operational Security Specialist",
		Category:    task.CategoryPostureReview,
		Description: "Operational security, threat model and security header review",
		Capabilities: []string{
			"security_posture_assessment", "operational_security", "threat_modeling",
			"security_monitoring", "security_hardening", "header_review",
		},
	}
}

// Execute always reports the operational-security and threat-model review.
// With headers_url set it also probes response headers; unreadable probe
// output fails the task.
func (w *PostureWorker) Execute(ctx context.Context, t task.Task) (Output, error) {
	if err := checkCategory(w, t); err != nil {
		return nil, err
	}
	md := w.Metadata()
	findings := []finding.Finding{
		w.opts.stamp(md, finding.Finding{
			Category:       "operational_security",
			Severity:       finding.SeverityMedium,
			Title:          "Operational Security Assessment",
			Description:    "Assessment of security operations and monitoring capabilities",
			Evidence:       "security_configuration_review",
			Recommendation: "Implement comprehensive security monitoring and logging",
		}),
		w.opts.stamp(md, finding.Finding{
			Category:       "threat_modeling",
			Severity:       finding.SeverityLow,
			Title:          "Threat Model Analysis",
			Description:    "Analysis of potential threats and attack vectors",
			Evidence:       "threat_model_results",
			Recommendation: "Develop and maintain threat models for critical assets",
		}),
	}

	if url := stringParam(t, ParamHeadersURL); url != "" {
		missing, err := w.missingHeaders(ctx, t, url)
		if err != nil {
			return nil, err
		}
		for _, h := range missing {
			findings = append(findings, w.opts.stamp(md, finding.Finding{
				Category:       "security_headers",
				Severity:       finding.SeverityMedium,
				Title:          "Missing " + h + " Header",
				Description:    fmt.Sprintf("%s does not send the %s response header", url, h),
				Evidence:       "curl -sI " + url,
				Recommendation: "Configure the web server to send " + h,
				Confidence:     finding.ConfidenceHigh,
			}))
		}
	}

	return Output{KeyOpsec: findings}, nil
}

func (w *PostureWorker) missingHeaders(ctx context.Context, t task.Task, url string) ([]string, error) {
	res, err := run(ctx, w.exec, t, "header_review", Command{
		Name: "curl",
		Args: []string{"-sI", "-m", "30", url},
	}, timeoutFor(t, w.opts))
	if err != nil {
		return nil, err
	}

	lines := splitLines(res.Stdout)
	if len(lines) == 0 || !strings.HasPrefix(lines[0], "HTTP/") {
		return nil, newError(t, "header_review", fmt.Errorf("%w: no HTTP status line in response from %s", ErrMalformedOutput, url))
	}
	present := make(map[string]struct{}, len(lines))
	for _, line := range lines[1:] {
		name, _, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		present[strings.ToLower(strings.TrimSpace(name))] = struct{}{}
	}

	var missing []string
	for _, h := range securityHeaders {
		if _, ok := present[strings.ToLower(h)]; !ok {
			missing = append(missing, h)
		}
	}
	w.logger.Debug().Str("url", url).Strs("missing", missing).Msg("Security headers reviewed")
	return missing, nil
}
