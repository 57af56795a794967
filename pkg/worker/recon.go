package worker

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"github.com/vulntor/bytehunter/pkg/task"
)

// Recon operations.
const (
	OpSubdomainEnumeration = "subdomain_enumeration"
	OpPortScanning         = "port_scanning"
	OpTechnologyDetection  = "technology_detection"
)

var reconOperations = []string{OpSubdomainEnumeration, OpPortScanning, OpTechnologyDetection}

var (
	openPortRe   = regexp.MustCompile(`^(\d+)/(tcp|udp)\s+open\s+(\S+)`)
	whatwebTagRe = regexp.MustCompile(`(?:^|,\s*|\]\s+)([A-Za-z0-9][\w.\-]*)\[`)
)

// ReconWorker enumerates subdomains, open ports and technologies.
type ReconWorker struct {
	exec   Executor
	opts   Options
	logger zerolog.Logger
}

// NewReconWorker returns a recon worker that runs tools through exec.
func NewReconWorker(exec Executor, opts Options) *ReconWorker {
	opts = opts.withDefaults()
	return &ReconWorker{exec: exec, opts: opts, logger: opts.logger("worker.recon")}
}

func (w *ReconWorker) Metadata() Metadata {
	return Metadata{
		ID:          "recon",
		Name:        "Reconnaissance Specialist",
		Category:    task.CategoryRecon,
		Description: "Subdomain enumeration, port scanning and technology detection",
		Capabilities: []string{
			OpSubdomainEnumeration, OpPortScanning, OpTechnologyDetection,
			"dns_enumeration", "service_identification", "network_mapping",
		},
	}
}

// Execute runs the requested operations. A failed operation is skipped and
// listed under "failed_operations"; the task fails only when all of them do.
func (w *ReconWorker) Execute(ctx context.Context, t task.Task) (Output, error) {
	if err := checkCategory(w, t); err != nil {
		return nil, err
	}
	timeout := timeoutFor(t, w.opts)
	ops := operations(t, reconOperations)
	for _, op := range ops {
		if !slices.Contains(reconOperations, op) {
			return nil, newError(t, op, fmt.Errorf("%w: unknown recon operation %q", ErrInvalidParameter, op))
		}
	}

	out := Output{}
	var errs []error
	var failed []string
	for _, op := range ops {
		var err error
		switch op {
		case OpSubdomainEnumeration:
			var subs []string
			if subs, err = w.subdomains(ctx, t, timeout); err == nil {
				out[KeySubdomains] = subs
			}
		case OpPortScanning:
			var ports map[string]any
			if ports, err = w.portScan(ctx, t, timeout); err == nil {
				out[KeyPorts] = ports
			}
		case OpTechnologyDetection:
			var tech []string
			if tech, err = w.technologies(ctx, t, timeout); err == nil {
				out[KeyTechnologies] = tech
			}
		}
		if err != nil {
			w.logger.Warn().Err(err).Str("task", t.ID).Str("operation", op).Msg("Recon operation failed")
			errs = append(errs, err)
			failed = append(failed, op)
		}
	}

	if len(out) == 0 && len(errs) > 0 {
		return nil, newError(t, "", errors.Join(errs...))
	}
	if len(failed) > 0 {
		out["failed_operations"] = failed
	}
	return out, nil
}

// subdomains merges subfinder and amass results. A tool that fails is
// skipped; the operation fails only if both do.
func (w *ReconWorker) subdomains(ctx context.Context, t task.Task, timeout time.Duration) ([]string, error) {
	cmds := []Command{
		{Name: "subfinder", Args: []string{"-silent", "-d", t.Target}},
		{Name: "amass", Args: []string{"enum", "-passive", "-d", t.Target}},
	}
	seen := make(map[string]struct{})
	var errs []error
	for _, cmd := range cmds {
		res, err := run(ctx, w.exec, t, OpSubdomainEnumeration, cmd, timeout)
		if err != nil {
			w.logger.Debug().Err(err).Str("tool", cmd.Name).Msg("Subdomain tool failed, skipping")
			errs = append(errs, err)
			continue
		}
		for _, line := range splitLines(res.Stdout) {
			seen[line] = struct{}{}
		}
	}
	if len(errs) == len(cmds) {
		return nil, errors.Join(errs...)
	}
	subs := make([]string, 0, len(seen))
	for s := range seen {
		subs = append(subs, s)
	}
	slices.Sort(subs)
	return subs, nil
}

func (w *ReconWorker) portScan(ctx context.Context, t task.Task, timeout time.Duration) (map[string]any, error) {
	scanFile := w.opts.resultsPath(t, "scan.xml")
	res, err := run(ctx, w.exec, t, OpPortScanning, Command{
		Name: "nmap",
		Args: []string{"-sC", "-sV", "-oX", scanFile, t.Target},
	}, timeout)
	if err != nil {
		return nil, err
	}
	var open []string
	for _, line := range splitLines(res.Stdout) {
		if m := openPortRe.FindStringSubmatch(line); m != nil {
			open = append(open, fmt.Sprintf("%s/%s %s", m[1], m[2], m[3]))
		}
	}
	return map[string]any{
		"scan_file":  scanFile,
		"status":     "completed",
		"open_ports": open,
	}, nil
}

func (w *ReconWorker) technologies(ctx context.Context, t task.Task, timeout time.Duration) ([]string, error) {
	logFile := w.opts.resultsPath(t, "whatweb.json")
	res, err := run(ctx, w.exec, t, OpTechnologyDetection, Command{
		Name: "whatweb",
		Args: []string{"--color=never", "--log-json=" + logFile, t.Target},
	}, timeout)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	for _, line := range splitLines(res.Stdout) {
		for _, m := range whatwebTagRe.FindAllStringSubmatch(line, -1) {
			seen[m[1]] = struct{}{}
		}
	}
	tech := make([]string, 0, len(seen))
	for name := range seen {
		tech = append(tech, name)
	}
	slices.Sort(tech)
	return tech, nil
}
