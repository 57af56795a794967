package finding

import (
	"cmp"
	"slices"
	"sync"
)

// Aggregator collects the findings of one workflow. It only ever appends.
type Aggregator struct {
	mu       sync.RWMutex
	findings []Finding
}

// NewAggregator returns an empty aggregator.
func NewAggregator() *Aggregator {
	return &Aggregator{}
}

// Record appends findings in the order given.
func (a *Aggregator) Record(findings ...Finding) {
	if len(findings) == 0 {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	a.findings = append(a.findings, findings...)
}

// Len returns the number of recorded findings.
func (a *Aggregator) Len() int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.findings)
}

// Findings returns a copy of the recorded findings in record order.
func (a *Aggregator) Findings() []Finding {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return slices.Clone(a.findings)
}

// Summary counts findings per severity with a fresh linear scan. Every level
// is present in the result, zero when nothing was recorded at that level.
func (a *Aggregator) Summary() map[Severity]int {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return Count(a.findings)
}

// Sorted returns a copy ordered by severity, then risk score, both
// descending. Ties keep record order.
func (a *Aggregator) Sorted() []Finding {
	return Sorted(a.Findings())
}

// Sorted returns a sorted copy of findings with the ordering of
// Aggregator.Sorted.
func Sorted(findings []Finding) []Finding {
	out := slices.Clone(findings)
	slices.SortStableFunc(out, func(x, y Finding) int {
		if c := cmp.Compare(y.Severity, x.Severity); c != 0 {
			return c
		}
		return cmp.Compare(y.RiskScore, x.RiskScore)
	})
	return out
}

// Count tallies findings per severity; every level is present in the result.
func Count(findings []Finding) map[Severity]int {
	counts := make(map[Severity]int, 4)
	for _, s := range Severities() {
		counts[s] = 0
	}
	for _, f := range findings {
		counts[f.Severity]++
	}
	return counts
}
