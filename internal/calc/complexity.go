package calc

import (
	"regexp"
	"strings"
)

// callPattern matches an identifier used as a function call.
var callPattern = regexp.MustCompile(`([A-Za-z_][A-Za-z0-9_]*)\s*\(`)

// ComplexityReport summarizes the static shape of a normalized expression.
type ComplexityReport struct {
	Length        int     `json:"length"`
	MaxDepth      int     `json:"max_nesting_depth"`
	FunctionCalls int     `json:"function_call_count"`
	MulDiv        int     `json:"mul_div_count"`
	AddSub        int     `json:"add_sub_count"`
	Score         float64 `json:"complexity_score"`
}

// Analyze measures expr and rejects it when it breaks one of the limits.
// The checks run in order: length, parenthesis balance, nesting depth,
// function-call count.
func Analyze(expr string, limits Limits) (ComplexityReport, error) {
	limits = limits.withDefaults()

	var r ComplexityReport
	r.Length = len(expr)
	if r.Length > limits.MaxLength {
		return r, newError(KindExpressionTooLong, "",
			"expression too long: %d characters (maximum %d)", r.Length, limits.MaxLength)
	}

	depth := 0
	for i, c := range expr {
		switch c {
		case '(':
			depth++
			if depth > r.MaxDepth {
				r.MaxDepth = depth
			}
		case ')':
			depth--
			if depth < 0 {
				return r, newError(KindUnbalancedParentheses, expr[:i+1],
					"unbalanced parentheses: unexpected ')' at position %d", i)
			}
		case '*', '/':
			r.MulDiv++
		case '+', '-':
			r.AddSub++
		}
	}
	if depth != 0 {
		return r, newError(KindUnbalancedParentheses, "",
			"unbalanced parentheses: %d unclosed '('", depth)
	}
	if r.MaxDepth > limits.MaxDepth {
		return r, newError(KindNestingTooDeep, strings.Repeat("(", r.MaxDepth),
			"parentheses nested too deeply: depth %d (maximum %d)", r.MaxDepth, limits.MaxDepth)
	}

	r.FunctionCalls = len(callPattern.FindAllStringIndex(expr, -1))
	if r.FunctionCalls > limits.MaxCalls {
		return r, newError(KindTooManyFunctionCalls, "",
			"too many function calls: %d (maximum %d)", r.FunctionCalls, limits.MaxCalls)
	}

	r.Score = 0.1*float64(r.Length) +
		2*float64(r.MaxDepth) +
		3*float64(r.FunctionCalls) +
		0.5*float64(r.MulDiv) +
		0.2*float64(r.AddSub)
	return r, nil
}

// Check rejects the report when its score exceeds max.
func (r ComplexityReport) Check(max float64) error {
	if r.Score > max {
		return newError(KindComplexityTooHigh, "",
			"expression too complex: score %.1f exceeds %.1f", r.Score, max)
	}
	return nil
}
