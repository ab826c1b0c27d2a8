package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"crm-backend/internal/metadata"
	"crm-backend/internal/provider"
)

// CompileExpression compiles a rule expression into an expr-lang program.
func CompileExpression(expression string) (*vm.Program, error) {
	prog, err := expr.Compile(expression, expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("compile expression: %w", err)
	}
	return prog, nil
}

// EvaluateRules runs the rules in order against the record. A rule whose
// expression evaluates to true is violated.
func (v *SchemaValidator) EvaluateRules(rules []*metadata.Rule, hook string, record provider.Record) []ErrorDetail {
	if len(rules) == 0 {
		return nil
	}

	env := map[string]any{
		"record": map[string]any(record),
		"action": hook,
	}

	var errs []ErrorDetail
	for _, r := range rules {
		detail := v.evaluateRule(r, env)
		if detail == nil {
			continue
		}
		errs = append(errs, *detail)
		if r.Definition.StopOnFail {
			break
		}
	}
	return errs
}

func (v *SchemaValidator) evaluateRule(rule *metadata.Rule, env map[string]any) *ErrorDetail {
	prog, err := v.program(rule)
	if err != nil {
		return &ErrorDetail{Field: rule.Definition.Field, Rule: "expression", Message: fmt.Sprintf("compile error: %v", err)}
	}

	result, err := expr.Run(prog, env)
	if err != nil {
		return &ErrorDetail{Field: rule.Definition.Field, Rule: "expression", Message: fmt.Sprintf("rule evaluation error: %v", err)}
	}

	violated, ok := result.(bool)
	if !ok || !violated {
		return nil
	}

	msg := rule.Definition.Message
	if msg == "" {
		msg = "Expression rule violated"
	}
	return &ErrorDetail{Field: rule.Definition.Field, Rule: "expression", Message: msg}
}

func (v *SchemaValidator) program(rule *metadata.Rule) (*vm.Program, error) {
	key := rule.ID + "\x00" + rule.Definition.Expression

	v.mu.Lock()
	prog, ok := v.programs[key]
	v.mu.Unlock()
	if ok {
		return prog, nil
	}

	prog, err := CompileExpression(rule.Definition.Expression)
	if err != nil {
		return nil, err
	}

	v.mu.Lock()
	v.programs[key] = prog
	v.mu.Unlock()
	return prog, nil
}
