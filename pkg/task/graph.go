// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

package task

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"strings"
	"sync"
	"time"
)

// Classification is the read-only view of a task used in status summaries.
// It extends Status with the derived Blocked state.
type Classification string

const (
	ClassIdle      Classification = "Idle"
	ClassRunning   Classification = "Running"
	ClassCompleted Classification = "Completed"
	ClassFailed    Classification = "Failed"
	ClassBlocked   Classification = "Blocked"
)

// Graph holds the tasks of one workflow and their dependency edges.
// All methods are safe for concurrent use; readers observe a task either
// before or after a transition, never in between.
type Graph struct {
	mu    sync.RWMutex
	tasks map[string]*Task
	order []string // insertion order
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{tasks: make(map[string]*Task)}
}

// Build constructs a graph from tasks given in any order. Dependencies are
// resolved within the set, so a task may be listed before the tasks it
// depends on. Any construction error rejects the whole set.
func Build(tasks ...Task) (*Graph, error) {
	index := make(map[string]Task, len(tasks))
	for _, t := range tasks {
		if err := t.Validate(); err != nil {
			return nil, err
		}
		if _, dup := index[t.ID]; dup {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
		}
		index[t.ID] = t
	}
	for _, t := range tasks {
		for _, dep := range t.DependsOn {
			if _, ok := index[dep]; !ok {
				return nil, fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, t.ID, dep)
			}
		}
	}

	const (
		white = iota
		grey
		black
	)
	color := make(map[string]int, len(tasks))
	sorted := make([]Task, 0, len(tasks))
	var path []string

	var visit func(id string) error
	visit = func(id string) error {
		switch color[id] {
		case grey:
			start := slices.Index(path, id)
			cycle := append(slices.Clone(path[start:]), id)
			return fmt.Errorf("%w: %s", ErrCycle, strings.Join(cycle, " -> "))
		case black:
			return nil
		}
		color[id] = grey
		path = append(path, id)
		for _, dep := range index[id].DependsOn {
			if err := visit(dep); err != nil {
				return err
			}
		}
		path = path[:len(path)-1]
		color[id] = black
		sorted = append(sorted, index[id])
		return nil
	}
	for _, t := range tasks {
		if err := visit(t.ID); err != nil {
			return nil, err
		}
	}

	g := NewGraph()
	for _, t := range sorted {
		if err := g.AddTask(t); err != nil {
			return nil, err
		}
	}
	return g, nil
}

// AddTask inserts an idle task. It is rejected when the id is already present,
// when a dependency is unknown, or when the new edges would close a cycle.
func (g *Graph) AddTask(t Task) error {
	if err := t.Validate(); err != nil {
		return err
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tasks[t.ID]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateTask, t.ID)
	}
	for _, dep := range t.DependsOn {
		if dep == t.ID {
			return fmt.Errorf("%w: %s -> %s", ErrCycle, t.ID, t.ID)
		}
		if _, ok := g.tasks[dep]; !ok {
			return fmt.Errorf("%w: task %q depends on %q", ErrUnknownDependency, t.ID, dep)
		}
	}
	if g.reachesLocked(t.DependsOn, t.ID) {
		return fmt.Errorf("%w: %s reaches itself through its dependencies", ErrCycle, t.ID)
	}

	stored := t.Clone()
	stored.Status = StatusIdle
	stored.Result = nil
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = time.Now()
	}
	g.tasks[t.ID] = &stored
	g.order = append(g.order, t.ID)
	return nil
}

// reachesLocked walks the dependency chain depth-first from the given ids
// and reports whether target is reachable.
func (g *Graph) reachesLocked(from []string, target string) bool {
	seen := make(map[string]bool)
	stack := slices.Clone(from)
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if id == target {
			return true
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		if t, ok := g.tasks[id]; ok {
			stack = append(stack, t.DependsOn...)
		}
	}
	return false
}

// Len returns the number of tasks.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.order)
}

// Get returns a copy of the task with the given id.
func (g *Graph) Get(id string) (Task, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return Task{}, false
	}
	return t.Clone(), true
}

// Tasks returns copies of all tasks in insertion order.
func (g *Graph) Tasks() []Task {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Task, 0, len(g.order))
	for _, id := range g.order {
		out = append(out, g.tasks[id].Clone())
	}
	return out
}

// Runnable yields the ids of tasks that are Idle with every dependency
// Completed, in ascending priority order (insertion order breaks ties).
// The set is computed when iteration starts, so each call reflects the
// current state rather than a snapshot from submission time.
func (g *Graph) Runnable() iter.Seq[string] {
	return func(yield func(string) bool) {
		g.mu.RLock()
		var ready []*Task
		for _, id := range g.order {
			t := g.tasks[id]
			if t.Status == StatusIdle && g.depsCompletedLocked(t) {
				ready = append(ready, t)
			}
		}
		slices.SortStableFunc(ready, func(a, b *Task) int {
			return cmp.Compare(a.Priority, b.Priority)
		})
		ids := make([]string, len(ready))
		for i, t := range ready {
			ids[i] = t.ID
		}
		g.mu.RUnlock()

		for _, id := range ids {
			if !yield(id) {
				return
			}
		}
	}
}

func (g *Graph) depsCompletedLocked(t *Task) bool {
	for _, dep := range t.DependsOn {
		if g.tasks[dep].Status != StatusCompleted {
			return false
		}
	}
	return true
}

// IsExhausted reports whether every task is Completed, Failed or Blocked.
// An empty graph is exhausted.
func (g *Graph) IsExhausted() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	memo := make(map[string]bool)
	for _, id := range g.order {
		t := g.tasks[id]
		if t.Status.Terminal() {
			continue
		}
		if !g.blockedLocked(t, memo) {
			return false
		}
	}
	return true
}

// HasRunning reports whether any task is currently Running.
func (g *Graph) HasRunning() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	for _, t := range g.tasks {
		if t.Status == StatusRunning {
			return true
		}
	}
	return false
}

// blockedLocked reports whether a non-terminal task can never run because a
// dependency, directly or transitively, failed.
func (g *Graph) blockedLocked(t *Task, memo map[string]bool) bool {
	if t.Status.Terminal() {
		return false
	}
	if v, ok := memo[t.ID]; ok {
		return v
	}
	memo[t.ID] = false
	blocked := false
	for _, dep := range t.DependsOn {
		d := g.tasks[dep]
		if d.Status == StatusFailed || g.blockedLocked(d, memo) {
			blocked = true
			break
		}
	}
	memo[t.ID] = blocked
	return blocked
}

// Classify returns the summary classification of a task.
func (g *Graph) Classify(id string) (Classification, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	t, ok := g.tasks[id]
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return g.classifyLocked(t, make(map[string]bool)), nil
}

// Classifications returns the classification of every task keyed by id.
func (g *Graph) Classifications() map[string]Classification {
	g.mu.RLock()
	defer g.mu.RUnlock()
	memo := make(map[string]bool)
	out := make(map[string]Classification, len(g.order))
	for _, id := range g.order {
		out[id] = g.classifyLocked(g.tasks[id], memo)
	}
	return out
}

func (g *Graph) classifyLocked(t *Task, memo map[string]bool) Classification {
	switch t.Status {
	case StatusRunning:
		return ClassRunning
	case StatusCompleted:
		return ClassCompleted
	case StatusFailed:
		return ClassFailed
	}
	if g.blockedLocked(t, memo) {
		return ClassBlocked
	}
	return ClassIdle
}

// Start moves a task from Idle to Running. Every dependency must be Completed.
func (g *Graph) Start(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Status != StatusIdle {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, t.Status, StatusRunning)
	}
	if !g.depsCompletedLocked(t) {
		return fmt.Errorf("%w: %s has unfinished dependencies", ErrInvalidTransition, id)
	}
	t.Status = StatusRunning
	return nil
}

// Complete moves a Running task to Completed with a success payload.
func (g *Graph) Complete(id string, output map[string]any) error {
	return g.finish(id, StatusCompleted, &Result{Output: output})
}

// Fail moves a Running task to Failed with an error payload.
func (g *Graph) Fail(id string, cause error) error {
	if cause == nil {
		cause = fmt.Errorf("task %s failed without a cause", id)
	}
	return g.finish(id, StatusFailed, &Result{Err: cause})
}

func (g *Graph) finish(id string, to Status, res *Result) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	t, ok := g.tasks[id]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Status != StatusRunning {
		return fmt.Errorf("%w: %s %s -> %s", ErrInvalidTransition, id, t.Status, to)
	}
	t.Status = to
	t.Result = res
	return nil
}
