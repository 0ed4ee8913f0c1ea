package calc

import (
	"regexp"
	"strings"
)

// dangerousPatterns are rejected anywhere in the expression, whether or
// not the names involved would pass the function whitelist.
var dangerousPatterns = []struct {
	name string
	re   *regexp.Regexp
}{
	{"dunder name", regexp.MustCompile(`__\w*__|\b__\w+`)},
	{"attribute access", regexp.MustCompile(`[A-Za-z_)]\s*\.\s*[A-Za-z_]`)},
	{"dynamic evaluation", regexp.MustCompile(`(?i)\b(eval|exec|compile|execfile)\s*\(`)},
	{"import", regexp.MustCompile(`(?i)\b(import|__import__|importlib)\b`)},
	{"introspection", regexp.MustCompile(`(?i)\b(globals|locals|vars|dir|type|id|help|breakpoint|input|open)\s*\(`)},
	{"attribute reflection", regexp.MustCompile(`(?i)\b(getattr|setattr|delattr|hasattr)\b`)},
	{"anonymous function", regexp.MustCompile(`(?i)\blambda\b`)},
}

// CheckDangerousPatterns scans the whole expression for forbidden
// constructs.
func CheckDangerousPatterns(expr string) error {
	for _, p := range dangerousPatterns {
		if m := p.re.FindString(expr); m != "" {
			return newError(KindDangerousPattern, m,
				"expression contains a forbidden construct (%s): %q", p.name, strings.TrimSpace(m))
		}
	}
	return nil
}

// CheckFunctions runs the dangerous-pattern scan, then verifies every
// identifier used as a call is a function of env.
func CheckFunctions(expr string, env *Environment) error {
	if err := CheckDangerousPatterns(expr); err != nil {
		return err
	}
	for _, m := range callPattern.FindAllStringSubmatch(expr, -1) {
		name := m[1]
		if _, ok := env.Function(name); !ok {
			return unsupportedFunctionError(name, env.FunctionNames())
		}
	}
	return nil
}
