package worker

import (
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cast"

	"github.com/vulntor/bytehunter/pkg/finding"
	"github.com/vulntor/bytehunter/pkg/task"
)

// Parameter names understood by the built-in workers.
const (
	ParamOperations           = "operations"
	ParamTimeout              = "timeout"
	ParamURL                  = "url"
	ParamTestSQLInjection     = "test_sql_injection"
	ParamTestXSS              = "test_xss"
	ParamTestDirectoryListing = "test_directory_listing"
	ParamHeadersURL           = "headers_url"
	ParamFindings             = "findings"
)

// operations returns the requested operation list, or defaults when the task
// does not name any. Accepts a list or a comma separated string.
func operations(t task.Task, defaults []string) []string {
	raw, ok := t.Parameters[ParamOperations]
	if !ok || raw == nil {
		return slices.Clone(defaults)
	}
	if s, isString := raw.(string); isString {
		raw = strings.Split(s, ",")
	}
	var ops []string
	for _, op := range cast.ToStringSlice(raw) {
		if op = strings.TrimSpace(op); op != "" {
			ops = append(ops, op)
		}
	}
	if len(ops) == 0 {
		return slices.Clone(defaults)
	}
	return ops
}

func boolParam(t task.Task, key string, def bool) bool {
	v, ok := t.Parameters[key]
	if !ok || v == nil {
		return def
	}
	b, err := cast.ToBoolE(v)
	if err != nil {
		return def
	}
	return b
}

func stringParam(t task.Task, key string) string {
	return strings.TrimSpace(cast.ToString(t.Parameters[key]))
}

// timeoutFor reads the timeout parameter. Bare numbers, and strings without
// a unit, are seconds; strings such as "90s" or "2m" are parsed as durations.
func timeoutFor(t task.Task, o Options) time.Duration {
	v, ok := t.Parameters[ParamTimeout]
	if !ok || v == nil {
		return o.Timeout
	}
	var d time.Duration
	switch x := v.(type) {
	case time.Duration:
		d = x
	case string:
		s := strings.TrimSpace(x)
		if secs, err := cast.ToFloat64E(s); err == nil {
			d = seconds(secs)
		} else if parsed, err := cast.ToDurationE(s); err == nil {
			d = parsed
		}
	default:
		if secs, err := cast.ToFloat64E(x); err == nil {
			d = seconds(secs)
		}
	}
	if d <= 0 {
		return o.Timeout
	}
	return d
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

// targetURL is the explicit url parameter or http://<target>.
func targetURL(t task.Task) string {
	if u := stringParam(t, ParamURL); u != "" {
		return u
	}
	if strings.Contains(t.Target, "://") {
		return t.Target
	}
	return "http://" + t.Target
}

// resultsPath names a raw output file for one tool run of one task.
func (o Options) resultsPath(t task.Task, name string) string {
	dir := o.ResultsDir
	if dir == "" {
		dir = os.TempDir()
	}
	return filepath.Join(dir, t.ID+"_"+name)
}

// stamp fills the fields every finding shares: id, source, timestamp, and
// severity defaults for risk score and confidence.
func (o Options) stamp(md Metadata, f finding.Finding) finding.Finding {
	f.ID = md.ID + "-" + uuid.NewString()
	f.SourceWorker = md.ID
	if f.RiskScore == 0 {
		f.RiskScore = f.Severity.DefaultRiskScore()
	}
	if f.Confidence == "" {
		f.Confidence = finding.ConfidenceMedium
	}
	f.Timestamp = o.Now()
	return f
}

// splitLines returns the non-empty trimmed lines of s.
func splitLines(s string) []string {
	var out []string
	for line := range strings.Lines(s) {
		if line = strings.TrimSpace(line); line != "" {
			out = append(out, line)
		}
	}
	return out
}
