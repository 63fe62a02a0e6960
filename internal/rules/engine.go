// Package rules provides the CEL-Go based risk rule engine. Operators
// define custom scoring rules as CEL expressions over the extracted
// document fields; the engine compiles them once and evaluates them after
// the built-in identity rules for every scored document.
package rules

import (
	"context"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"
	"github.com/opensource-finance/kestrel/internal/domain"
)

// Engine compiles and evaluates custom risk rules.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.RiskRule
	Program cel.Program
}

// NewEngine creates a rule engine with the document evaluation environment.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("doc_type", cel.StringType),
		cel.Variable("number", cel.StringType),
		cel.Variable("fraud_score", cel.IntType),
		cel.Variable("match_ratio", cel.DoubleType),
		cel.Variable("name_found", cel.BoolType),
		cel.Variable("dob_found", cel.BoolType),
		cel.Variable("gender_found", cel.BoolType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *Engine) ValidateRule(rule *domain.RiskRule) error {
	if rule == nil {
		return fmt.Errorf("risk rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads one rule into the engine.
func (e *Engine) LoadRule(rule *domain.RiskRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled

	return nil
}

// LoadRules compiles and loads all enabled rules.
func (e *Engine) LoadRules(rls []*domain.RiskRule) error {
	for _, rule := range rls {
		if rule.Enabled {
			if err := e.LoadRule(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules replaces the loaded set atomically. This enables hot-reloading
// of rules from the database.
func (e *Engine) ReloadRules(rls []*domain.RiskRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, rule := range rls {
		if !rule.Enabled {
			continue
		}

		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		newRules[rule.ID] = compiled
	}

	e.compiledRules = newRules

	return nil
}

// EvaluateInput holds one document's scoring state for rule evaluation.
type EvaluateInput struct {
	DocType     domain.DocumentType
	Number      string
	FraudScore  int
	MatchRatio  float64
	NameFound   bool
	DOBFound    bool
	GenderFound bool
}

// EvaluateAll evaluates every loaded rule against one document. Rules run
// sequentially in rule-ID order so repeated runs over identical input
// produce identical reason ordering. A failing rule contributes a zero
// delta and records its error instead of aborting the document.
func (e *Engine) EvaluateAll(ctx context.Context, input *EvaluateInput) []domain.RiskRuleResult {
	e.mu.RLock()
	rls := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rls = append(rls, rule)
	}
	e.mu.RUnlock()

	if len(rls) == 0 {
		return nil
	}
	sort.Slice(rls, func(i, j int) bool { return rls[i].Rule.ID < rls[j].Rule.ID })

	activation := map[string]any{
		"doc_type":     string(input.DocType),
		"number":       input.Number,
		"fraud_score":  input.FraudScore,
		"match_ratio":  input.MatchRatio,
		"name_found":   input.NameFound,
		"dob_found":    input.DOBFound,
		"gender_found": input.GenderFound,
	}

	results := make([]domain.RiskRuleResult, 0, len(rls))
	for _, rule := range rls {
		if ctx.Err() != nil {
			break
		}
		results = append(results, e.evaluateRule(rule, activation))
	}
	return results
}

func (e *Engine) evaluateRule(rule *CompiledRule, activation map[string]any) domain.RiskRuleResult {
	result := domain.RiskRuleResult{RuleID: rule.Rule.ID}

	out, _, err := rule.Program.Eval(activation)
	if err != nil {
		result.Err = fmt.Sprintf("evaluation error: %v", err)
		return result
	}

	result.Delta = toDelta(out, rule.Rule.Weight)
	if result.Delta != 0 {
		result.Reason = rule.Rule.Reason
	}
	return result
}

// toDelta converts a CEL result to a score delta. A true boolean contributes
// the rule's full weight; a numeric result is scaled by the weight and
// rounded half away from zero.
func toDelta(val ref.Val, weight float64) int {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return int(math.Round(weight))
		}
		return 0
	case types.Double:
		return int(math.Round(float64(v) * weight))
	case types.Int:
		return int(math.Round(float64(v) * weight))
	default:
		return 0
	}
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rule definitions.
func (e *Engine) GetLoadedRules() []*domain.RiskRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rls := make([]*domain.RiskRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rls = append(rls, compiled.Rule)
	}
	return rls
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.RiskRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("rule %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{
		Rule:    rule,
		Program: program,
	}, nil
}
