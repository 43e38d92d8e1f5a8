// Package rules provides the CEL-Go based decision engine: weighted scoring,
// tier classification, action selection and reward calculation, all driven
// by versioned rule sets.
package rules

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/open-sustainability/heron/internal/domain"
)

// Engine holds compiled rule sets keyed by version.
type Engine struct {
	mu       sync.RWMutex
	env      *cel.Env
	ruleSets map[string]*CompiledRuleSet
}

// CompiledRuleSet is a rule set whose category expressions and bonus
// predicates have been compiled into CEL programs. Immutable after compile;
// safe for concurrent use.
type CompiledRuleSet struct {
	Config     *domain.RuleSet
	categories []compiledCategory
	bonuses    []compiledBonus
}

type compiledCategory struct {
	cfg     domain.CategoryWeight
	program cel.Program
}

type compiledBonus struct {
	cfg     domain.BonusRule
	program cel.Program
}

// NewEngine creates an engine with the profile evaluation environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("numeric", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("boolean", cel.MapType(cel.StringType, cel.BoolType)),
		cel.Variable("condition", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:      env,
		ruleSets: make(map[string]*CompiledRuleSet),
	}, nil
}

// Compile validates a rule set and compiles its expressions without loading
// it into the engine.
func (e *Engine) Compile(rs *domain.RuleSet) (*CompiledRuleSet, error) {
	if rs == nil {
		return nil, fmt.Errorf("%w: rule set is required", domain.ErrInvalidRuleSet)
	}
	if err := rs.Validate(); err != nil {
		return nil, err
	}

	compiled := &CompiledRuleSet{Config: rs}

	for _, c := range rs.Categories {
		program, err := e.compile(c.Expression, fmt.Sprintf("category %q", c.Category), cel.IntType, cel.DoubleType)
		if err != nil {
			return nil, err
		}
		compiled.categories = append(compiled.categories, compiledCategory{cfg: c, program: program})
	}

	for _, b := range rs.Bonuses {
		program, err := e.compile(b.When, fmt.Sprintf("bonus rule %q", b.ID), cel.BoolType)
		if err != nil {
			return nil, err
		}
		compiled.bonuses = append(compiled.bonuses, compiledBonus{cfg: b, program: program})
	}

	return compiled, nil
}

// Load compiles and loads one rule set version into the engine.
func (e *Engine) Load(rs *domain.RuleSet) error {
	compiled, err := e.Compile(rs)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleSets[rs.Version] = compiled
	return nil
}

// LoadAll compiles and loads multiple rule sets, skipping disabled ones.
func (e *Engine) LoadAll(ruleSets []*domain.RuleSet) error {
	for _, rs := range ruleSets {
		if !rs.Enabled {
			continue
		}
		if err := e.Load(rs); err != nil {
			return err
		}
	}
	return nil
}

// Reload atomically replaces all loaded rule sets with the given ones.
// This enables hot-reloading from storage without serving a half-updated
// registry.
func (e *Engine) Reload(ruleSets []*domain.RuleSet) error {
	next := make(map[string]*CompiledRuleSet, len(ruleSets))
	for _, rs := range ruleSets {
		if !rs.Enabled {
			continue
		}
		compiled, err := e.Compile(rs)
		if err != nil {
			return err
		}
		next[rs.Version] = compiled
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleSets = next
	return nil
}

// Get returns the compiled rule set for a version.
func (e *Engine) Get(version string) (*CompiledRuleSet, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()

	compiled, ok := e.ruleSets[version]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrUnknownRuleSetVersion, version)
	}
	return compiled, nil
}

// RuleSets returns the currently loaded rule set configurations, sorted by
// version for stable listings.
func (e *Engine) RuleSets() []*domain.RuleSet {
	e.mu.RLock()
	defer e.mu.RUnlock()

	out := make([]*domain.RuleSet, 0, len(e.ruleSets))
	for _, compiled := range e.ruleSets {
		out = append(out, compiled.Config)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Version < out[j].Version })
	return out
}

// Count returns the number of loaded rule set versions.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.ruleSets)
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ruleSets = make(map[string]*CompiledRuleSet)
	return nil
}

func (e *Engine) compile(expression, what string, allowed ...*cel.Type) (cel.Program, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRuleSet, what, issues.Err())
	}

	outputType := ast.OutputType()
	ok := false
	for _, t := range allowed {
		if outputType == t {
			ok = true
			break
		}
	}
	if !ok {
		names := make([]string, len(allowed))
		for i, t := range allowed {
			names[i] = t.String()
		}
		return nil, fmt.Errorf("%w: %s: expression must return %s, got %s",
			domain.ErrInvalidRuleSet, what, strings.Join(names, " or "), outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", domain.ErrInvalidRuleSet, what, err)
	}
	return program, nil
}
