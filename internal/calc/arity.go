package calc

import "strings"

// CheckArity counts the top-level arguments of every call in expr and
// compares them with the declared arity of the function. Calls to names
// that are not in env are skipped; CheckFunctions rejects those.
func CheckArity(expr string, env *Environment) error {
	for _, loc := range callPattern.FindAllStringSubmatchIndex(expr, -1) {
		name := expr[loc[2]:loc[3]]
		spec, ok := env.Function(name)
		if !ok {
			continue
		}
		args, ok := argumentList(expr, loc[1])
		if !ok {
			return newError(KindUnbalancedParentheses, name,
				"unbalanced parentheses in call to %q", name)
		}
		n := countArguments(args)
		if n < spec.MinArity || n > spec.MaxArity {
			return arityError(spec, n)
		}
	}
	return nil
}

// argumentList returns the text between the '(' that ends at open and its
// matching ')'.
func argumentList(expr string, open int) (string, bool) {
	depth := 1
	for i := open; i < len(expr); i++ {
		switch expr[i] {
		case '(':
			depth++
		case ')':
			depth--
			if depth == 0 {
				return expr[open:i], true
			}
		}
	}
	return "", false
}

// countArguments splits args on commas outside nested parentheses. An
// empty list has zero arguments and a single trailing comma is ignored.
func countArguments(args string) int {
	if strings.TrimSpace(args) == "" {
		return 0
	}
	depth, n := 0, 1
	last := 0
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				n++
				last = i
			}
		}
	}
	if n > 1 && strings.TrimSpace(args[last+1:]) == "" {
		n--
	}
	return n
}
