package engine

import (
	"fmt"

	"github.com/expr-lang/expr"
)

// EvalCondition evaluates an expression against the given environment
// and coerces the result to a boolean. An empty expression is true.
func EvalCondition(expression string, env map[string]any) (bool, error) {
	if expression == "" {
		return true, nil
	}
	program, err := expr.Compile(expression, expr.Env(env))
	if err != nil {
		return false, fmt.Errorf("compile condition %q: %w", expression, err)
	}
	result, err := expr.Run(program, env)
	if err != nil {
		return false, fmt.Errorf("evaluate condition %q: %w", expression, err)
	}
	return isTruthy(result), nil
}

// isTruthy converts a value to a boolean. Non-empty strings, non-zero
// numbers, and non-empty collections count as true.
func isTruthy(v any) bool {
	if v == nil {
		return false
	}
	switch val := v.(type) {
	case bool:
		return val
	case string:
		return val != ""
	case int:
		return val != 0
	case int64:
		return val != 0
	case float64:
		return val != 0
	case []any:
		return len(val) > 0
	case map[string]any:
		return len(val) > 0
	default:
		return true
	}
}
