package worker

import (
	"fmt"
	"slices"
	"sync"

	"github.com/vulntor/bytehunter/pkg/task"
)

// Registry maps each task category to the single worker that handles it.
type Registry struct {
	mu      sync.RWMutex
	workers map[task.Category]Worker
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{workers: make(map[task.Category]Worker)}
}

// NewDefaultRegistry registers the five built-in workers.
func NewDefaultRegistry(exec Executor, opts Options) *Registry {
	r := NewRegistry()
	for _, w := range []Worker{
		NewReconWorker(exec, opts),
		NewVulnScanWorker(exec, opts),
		NewExploitWorker(exec, opts),
		NewPostureWorker(exec, opts),
		NewReportWorker(opts),
	} {
		if err := r.Register(w); err != nil {
			panic(err) // built-in categories are distinct
		}
	}
	return r
}

// Register adds w under its metadata category.
func (r *Registry) Register(w Worker) error {
	if w == nil {
		return fmt.Errorf("register worker: nil worker")
	}
	c := w.Metadata().Category
	if !c.Valid() {
		return fmt.Errorf("register worker %q: unknown category %q", w.Metadata().Name, c)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.workers[c]; exists {
		return fmt.Errorf("%w: %s", ErrDuplicateWorker, c)
	}
	r.workers[c] = w
	return nil
}

// Get returns the worker for c.
func (r *Registry) Get(c task.Category) (Worker, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	w, ok := r.workers[c]
	return w, ok
}

// Lookup is Get with an error naming the missing category.
func (r *Registry) Lookup(c task.Category) (Worker, error) {
	if w, ok := r.Get(c); ok {
		return w, nil
	}
	return nil, fmt.Errorf("%w: %s", ErrNotRegistered, c)
}

// Workers returns registered workers in phase order.
func (r *Registry) Workers() []Worker {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Worker, 0, len(r.workers))
	for _, c := range task.Categories() {
		if w, ok := r.workers[c]; ok {
			out = append(out, w)
		}
	}
	return out
}

// Categories returns the registered categories in phase order.
func (r *Registry) Categories() []task.Category {
	var out []task.Category
	for _, w := range r.Workers() {
		out = append(out, w.Metadata().Category)
	}
	return slices.Clip(out)
}
