// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package finding defines security observations emitted by workers and the
// per-workflow aggregator that collects them.
package finding

import (
	"fmt"
	"strings"
	"time"
)

// Severity is an ordered enumeration: Critical > High > Medium > Low.
type Severity int

const (
	SeverityLow Severity = iota + 1
	SeverityMedium
	SeverityHigh
	SeverityCritical
)

// Severities lists every level from most to least severe.
func Severities() []Severity {
	return []Severity{SeverityCritical, SeverityHigh, SeverityMedium, SeverityLow}
}

func (s Severity) String() string {
	switch s {
	case SeverityCritical:
		return "Critical"
	case SeverityHigh:
		return "High"
	case SeverityMedium:
		return "Medium"
	case SeverityLow:
		return "Low"
	default:
		return fmt.Sprintf("Severity(%d)", int(s))
	}
}

// ParseSeverity accepts any casing of the level names.
func ParseSeverity(s string) (Severity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "critical":
		return SeverityCritical, nil
	case "high":
		return SeverityHigh, nil
	case "medium":
		return SeverityMedium, nil
	case "low":
		return SeverityLow, nil
	default:
		return 0, fmt.Errorf("unknown severity %q", s)
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (s *Severity) UnmarshalText(b []byte) error {
	v, err := ParseSeverity(string(b))
	if err != nil {
		return err
	}
	*s = v
	return nil
}

// DefaultRiskScore is the CVSS-like score used when a worker does not supply one.
func (s Severity) DefaultRiskScore() float64 {
	switch s {
	case SeverityCritical:
		return 9.0
	case SeverityHigh:
		return 7.5
	case SeverityMedium:
		return 5.0
	case SeverityLow:
		return 2.0
	default:
		return 0
	}
}

// Confidence expresses how certain a worker is about a finding.
type Confidence string

const (
	ConfidenceLow    Confidence = "Low"
	ConfidenceMedium Confidence = "Medium"
	ConfidenceHigh   Confidence = "High"
)

// Finding is a single security observation. Values are immutable once
// created; holders copy rather than modify them.
type Finding struct {
	ID             string     `json:"id" yaml:"id"`
	SourceWorker   string     `json:"source_worker" yaml:"source_worker"`
	Category       string     `json:"category" yaml:"category"`
	Severity       Severity   `json:"severity" yaml:"severity"`
	Title          string     `json:"title" yaml:"title"`
	Description    string     `json:"description" yaml:"description"`
	Evidence       string     `json:"evidence" yaml:"evidence"`
	Recommendation string     `json:"recommendation" yaml:"recommendation"`
	RiskScore      float64    `json:"risk_score" yaml:"risk_score"`
	Confidence     Confidence `json:"confidence" yaml:"confidence"`
	Timestamp      time.Time  `json:"timestamp" yaml:"timestamp"`
}
