package engine

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/vulntor/bytehunter/pkg/task"
	"github.com/vulntor/bytehunter/pkg/version"
)

// Plan is a user-authored task graph.
type Plan struct {
	Name        string     `yaml:"name" json:"name" validate:"required"`
	Description string     `yaml:"description,omitempty" json:"description,omitempty"`
	// Requires is an optional version constraint, e.g. ">= 0.3.0".
	Requires    string     `yaml:"requires,omitempty" json:"requires,omitempty"`
	Tasks       []PlanTask `yaml:"tasks" json:"tasks" validate:"dive"`
}

// PlanTask describes one task of a plan. Target defaults to the workflow
// target.
type PlanTask struct {
	ID         string         `yaml:"id" json:"id" validate:"required"`
	Category   string         `yaml:"category" json:"category" validate:"required"`
	Target     string         `yaml:"target,omitempty" json:"target,omitempty"`
	Priority   int            `yaml:"priority,omitempty" json:"priority,omitempty"`
	DependsOn  []string       `yaml:"depends_on,omitempty" json:"depends_on,omitempty" validate:"dive,required"`
	Parameters map[string]any `yaml:"parameters,omitempty" json:"parameters,omitempty"`
}

var planValidate = validator.New()

// Validate checks the plan structure and that it forms an acyclic graph.
func (p *Plan) Validate() error {
	if p == nil {
		return WrapInvalidPlan(fmt.Errorf("plan is nil"))
	}
	if err := planValidate.Struct(p); err != nil {
		return WrapInvalidPlan(err)
	}
	ok, err := version.Satisfies(p.Requires)
	if err != nil {
		return WrapInvalidPlan(err)
	}
	if !ok {
		return WrapInvalidPlan(fmt.Errorf("plan %q requires bytehunter %s, running %s", p.Name, p.Requires, version.Version))
	}
	for _, pt := range p.Tasks {
		if !task.Category(pt.Category).Valid() {
			return WrapInvalidPlan(fmt.Errorf("task %q: unknown category %q", pt.ID, pt.Category))
		}
	}
	if _, err := task.Build(p.TasksFor("plan-validation")...); err != nil {
		return WrapInvalidPlan(err)
	}
	return nil
}

// TasksFor materializes the plan's tasks against target.
func (p *Plan) TasksFor(target string) []task.Task {
	out := make([]task.Task, 0, len(p.Tasks))
	for _, pt := range p.Tasks {
		tgt := pt.Target
		if tgt == "" {
			tgt = target
		}
		out = append(out, task.New(pt.ID, task.Category(pt.Category), tgt,
			task.WithPriority(pt.Priority),
			task.WithDependsOn(pt.DependsOn...),
			task.WithParameters(pt.Parameters),
		))
	}
	return out
}

// LoadPlanFromFile loads a plan from a YAML or JSON file.
//
// The file format is determined by extension:
//   - .yaml, .yml → YAML
//   - .json → JSON
func LoadPlanFromFile(path string) (*Plan, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapPlanLoadError(fmt.Errorf("read file: %w", err))
	}

	ext := strings.ToLower(filepath.Ext(path))
	var plan Plan
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &plan); err != nil {
			return nil, WrapPlanLoadError(fmt.Errorf("parse YAML: %w", err))
		}
	case ".json":
		if err := json.Unmarshal(data, &plan); err != nil {
			return nil, WrapPlanLoadError(fmt.Errorf("parse JSON: %w", err))
		}
	default:
		return nil, WrapPlanLoadError(fmt.Errorf("unsupported file format: %s (use .yaml, .yml, or .json)", ext))
	}

	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}

// LoadPlanFromBytes loads a plan from raw YAML or JSON. YAML is tried first
// since it also accepts JSON documents.
func LoadPlanFromBytes(data []byte) (*Plan, error) {
	var plan Plan
	if err := yaml.Unmarshal(data, &plan); err != nil {
		if jsonErr := json.Unmarshal(data, &plan); jsonErr != nil {
			return nil, WrapPlanLoadError(fmt.Errorf("parse YAML/JSON: yaml=%v, json=%v", err, jsonErr))
		}
	}
	if err := plan.Validate(); err != nil {
		return nil, err
	}
	return &plan, nil
}
