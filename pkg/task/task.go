// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package task holds the unit of dispatchable work and the dependency graph
// that decides when each unit may run.
package task

import (
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/go-playground/validator/v10"
)

// Category selects the worker that handles a task.
type Category string

const (
	CategoryRecon         Category = "recon"              // Subdomains, ports, technologies
	CategoryVulnScan      Category = "vulnerability-scan" // Known-vulnerability and web scanners
	CategoryExploitProbe  Category = "exploit-probe"      // Injection and bug-bounty style probes
	CategoryPostureReview Category = "posture-review"     // Operational security review
	CategoryReport        Category = "report"             // Report synthesis
)

// Categories returns every known category in phase order.
func Categories() []Category {
	return []Category{
		CategoryRecon,
		CategoryVulnScan,
		CategoryExploitProbe,
		CategoryPostureReview,
		CategoryReport,
	}
}

// Valid reports whether c is one of the known categories.
func (c Category) Valid() bool {
	return slices.Contains(Categories(), c)
}

// Status is the stored lifecycle state of a task.
type Status int

const (
	StatusIdle Status = iota
	StatusRunning
	StatusCompleted
	StatusFailed
)

// String returns the label of the status.
func (s Status) String() string {
	if s < StatusIdle || s > StatusFailed {
		return fmt.Sprintf("Status(%d)", int(s))
	}
	return [...]string{"Idle", "Running", "Completed", "Failed"}[s]
}

// Terminal reports whether no further transition is allowed from s.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Result is populated once a task is terminal. Exactly one of Output or Err
// is set.
type Result struct {
	Output map[string]any
	Err    error
}

// Succeeded reports whether the result carries a success payload.
func (r *Result) Succeeded() bool {
	return r != nil && r.Err == nil
}

// Task is one unit of work within a workflow.
type Task struct {
	ID         string         `validate:"required" json:"id" yaml:"id"`
	Category   Category       `validate:"required,category" json:"category" yaml:"category"`
	Target     string         `validate:"required" json:"target" yaml:"target"`
	Parameters map[string]any `json:"parameters,omitempty" yaml:"parameters,omitempty"`
	Priority   int            `json:"priority" yaml:"priority"`
	DependsOn  []string       `validate:"dive,required" json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Status     Status         `json:"status" yaml:"status"`
	Result     *Result        `json:"-" yaml:"-"`
	CreatedAt  time.Time      `json:"created_at" yaml:"created_at"`
}

// Option customizes a task built with New.
type Option func(*Task)

// WithPriority sets the advisory priority. Lower numbers dispatch first.
func WithPriority(p int) Option {
	return func(t *Task) { t.Priority = p }
}

// WithDependsOn declares ids that must complete before the task may run.
func WithDependsOn(ids ...string) Option {
	return func(t *Task) { t.DependsOn = append(t.DependsOn, ids...) }
}

// WithParameters merges worker-specific parameters into the task.
func WithParameters(params map[string]any) Option {
	return func(t *Task) {
		if t.Parameters == nil {
			t.Parameters = make(map[string]any, len(params))
		}
		maps.Copy(t.Parameters, params)
	}
}

// New builds an idle task stamped with the current time.
func New(id string, category Category, target string, opts ...Option) Task {
	t := Task{
		ID:        id,
		Category:  category,
		Target:    target,
		Status:    StatusIdle,
		CreatedAt: time.Now(),
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("category", func(fl validator.FieldLevel) bool {
		return Category(fl.Field().String()).Valid()
	})
	return v
}

// Validate checks the structural fields of a task.
func (t Task) Validate() error {
	if err := validate.Struct(t); err != nil {
		return fmt.Errorf("%w: task %q: %w", ErrInvalidTask, t.ID, err)
	}
	return nil
}

// Clone returns a copy that shares no mutable state with t.
func (t Task) Clone() Task {
	c := t
	c.DependsOn = slices.Clone(t.DependsOn)
	c.Parameters = maps.Clone(t.Parameters)
	if t.Result != nil {
		r := *t.Result
		r.Output = maps.Clone(t.Result.Output)
		c.Result = &r
	}
	return c
}
