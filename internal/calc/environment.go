package calc

import (
	"fmt"
	"math"
	"sort"
	"strconv"
)

// Func is the implementation of a Safe Environment function. Arguments
// arrive already counted by the arity guard.
type Func func(args ...float64) (float64, error)

// FunctionSpec declares one permitted function.
type FunctionSpec struct {
	Name     string
	MinArity int
	MaxArity int
	Impl     Func
	Doc      string
}

func (s FunctionSpec) arityText() string {
	switch {
	case s.MinArity == s.MaxArity && s.MinArity == 1:
		return "1 argument"
	case s.MinArity == s.MaxArity:
		return fmt.Sprintf("%d arguments", s.MinArity)
	default:
		return fmt.Sprintf("%d to %d arguments", s.MinArity, s.MaxArity)
	}
}

// Environment is an immutable table of constants and functions. It is
// safe for concurrent use because nothing mutates it after construction.
type Environment struct {
	functions map[string]FunctionSpec
	constants map[string]float64
	names     []string
}

// NewEnvironment builds an environment from the given functions and
// constants. The inputs are copied.
func NewEnvironment(functions []FunctionSpec, constants map[string]float64) (*Environment, error) {
	env := &Environment{
		functions: make(map[string]FunctionSpec, len(functions)),
		constants: make(map[string]float64, len(constants)),
	}
	for _, fn := range functions {
		if fn.Name == "" || fn.Impl == nil {
			return nil, fmt.Errorf("function %q: name and implementation are required", fn.Name)
		}
		if fn.MinArity < 0 || fn.MaxArity < fn.MinArity {
			return nil, fmt.Errorf("function %q: invalid arity range %d..%d", fn.Name, fn.MinArity, fn.MaxArity)
		}
		if _, dup := env.functions[fn.Name]; dup {
			return nil, fmt.Errorf("function %q declared twice", fn.Name)
		}
		env.functions[fn.Name] = fn
		env.names = append(env.names, fn.Name)
	}
	for name, v := range constants {
		if _, clash := env.functions[name]; clash {
			return nil, fmt.Errorf("constant %q shadows a function", name)
		}
		env.constants[name] = v
	}
	sort.Strings(env.names)
	return env, nil
}

// Function looks up a permitted function.
func (e *Environment) Function(name string) (FunctionSpec, bool) {
	fn, ok := e.functions[name]
	return fn, ok
}

// Constant looks up a permitted constant.
func (e *Environment) Constant(name string) (float64, bool) {
	v, ok := e.constants[name]
	return v, ok
}

// FunctionNames returns the sorted function names. The slice is a copy.
func (e *Environment) FunctionNames() []string {
	return append([]string(nil), e.names...)
}

// Functions returns the function specs sorted by name.
func (e *Environment) Functions() []FunctionSpec {
	out := make([]FunctionSpec, 0, len(e.names))
	for _, n := range e.names {
		out = append(out, e.functions[n])
	}
	return out
}

// ConstantNames returns the sorted constant names.
func (e *Environment) ConstantNames() []string {
	names := make([]string, 0, len(e.constants))
	for n := range e.constants {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

var defaultEnvironment = mustDefaultEnvironment()

// DefaultEnvironment returns the process-wide Safe Environment.
func DefaultEnvironment() *Environment {
	return defaultEnvironment
}

func mustDefaultEnvironment() *Environment {
	env, err := NewEnvironment(defaultFunctions(), map[string]float64{
		"pi":  math.Pi,
		"e":   math.E,
		"tau": 2 * math.Pi,
	})
	if err != nil {
		panic(err)
	}
	return env
}

func unary(name, doc string, fn func(float64) float64) FunctionSpec {
	return FunctionSpec{
		Name: name, MinArity: 1, MaxArity: 1, Doc: doc,
		Impl: func(args ...float64) (float64, error) { return fn(args[0]), nil },
	}
}

func defaultFunctions() []FunctionSpec {
	return []FunctionSpec{
		{Name: "sqrt", MinArity: 1, MaxArity: 1, Impl: safeSqrt, Doc: "square root, x >= 0"},
		{Name: "log", MinArity: 1, MaxArity: 2, Impl: safeLog, Doc: "natural logarithm, or log(x, base)"},
		{Name: "log10", MinArity: 1, MaxArity: 1, Impl: positiveLog("log10", math.Log10), Doc: "base-10 logarithm"},
		{Name: "log2", MinArity: 1, MaxArity: 1, Impl: positiveLog("log2", math.Log2), Doc: "base-2 logarithm"},
		{Name: "asin", MinArity: 1, MaxArity: 1, Impl: unitInterval("asin", math.Asin), Doc: "inverse sine, -1 <= x <= 1"},
		{Name: "acos", MinArity: 1, MaxArity: 1, Impl: unitInterval("acos", math.Acos), Doc: "inverse cosine, -1 <= x <= 1"},
		{Name: "pow", MinArity: 2, MaxArity: 2, Impl: safePow, Doc: "x raised to y"},
		{Name: "round", MinArity: 1, MaxArity: 2, Impl: roundDigits, Doc: "round half to even, optionally to n digits"},
		{Name: "atan2", MinArity: 2, MaxArity: 2, Doc: "arc tangent of y/x",
			Impl: func(args ...float64) (float64, error) { return math.Atan2(args[0], args[1]), nil }},
		{Name: "hypot", MinArity: 2, MaxArity: 2, Doc: "euclidean norm sqrt(x*x + y*y)",
			Impl: func(args ...float64) (float64, error) { return math.Hypot(args[0], args[1]), nil }},
		unary("abs", "absolute value", math.Abs),
		unary("sin", "sine (radians)", math.Sin),
		unary("cos", "cosine (radians)", math.Cos),
		unary("tan", "tangent (radians)", math.Tan),
		unary("sinh", "hyperbolic sine", math.Sinh),
		unary("cosh", "hyperbolic cosine", math.Cosh),
		unary("tanh", "hyperbolic tangent", math.Tanh),
		unary("atan", "inverse tangent", math.Atan),
		unary("exp", "e raised to x", math.Exp),
		unary("floor", "largest integer <= x", math.Floor),
		unary("ceil", "smallest integer >= x", math.Ceil),
		unary("trunc", "integer part of x", math.Trunc),
		unary("degrees", "radians to degrees", func(x float64) float64 { return x * 180 / math.Pi }),
		unary("radians", "degrees to radians", func(x float64) float64 { return x * math.Pi / 180 }),
	}
}

func safeSqrt(args ...float64) (float64, error) {
	x := args[0]
	if x < 0 {
		return 0, DomainError("sqrt", x, "argument must be non-negative")
	}
	return math.Sqrt(x), nil
}

func safeLog(args ...float64) (float64, error) {
	x := args[0]
	if x <= 0 {
		return 0, DomainError("log", x, "argument must be positive")
	}
	if len(args) == 1 {
		return math.Log(x), nil
	}
	base := args[1]
	if base <= 0 || base == 1 {
		return 0, DomainError("log", base, "base must be positive and not equal to 1")
	}
	return math.Log(x) / math.Log(base), nil
}

func positiveLog(name string, fn func(float64) float64) Func {
	return func(args ...float64) (float64, error) {
		if args[0] <= 0 {
			return 0, DomainError(name, args[0], "argument must be positive")
		}
		return fn(args[0]), nil
	}
}

func unitInterval(name string, fn func(float64) float64) Func {
	return func(args ...float64) (float64, error) {
		if args[0] < -1 || args[0] > 1 {
			return 0, DomainError(name, args[0], "argument must be between -1 and 1")
		}
		return fn(args[0]), nil
	}
}

func safePow(args ...float64) (float64, error) {
	x, y := args[0], args[1]
	if x == 0 && y < 0 {
		return 0, DomainError("pow", x, "zero cannot be raised to a negative power")
	}
	if x < 0 && y != math.Trunc(y) && !math.IsInf(y, 0) {
		return 0, DomainError("pow", x, "negative base requires an integer exponent")
	}
	return math.Pow(x, y), nil
}

// powOperator backs the ** operator. Zero to a negative power is a
// division by zero, as with 1/0.
func powOperator(x, y float64) (float64, error) {
	if x == 0 && y < 0 {
		return 0, divisionByZeroError()
	}
	if x < 0 && y != math.Trunc(y) && !math.IsInf(y, 0) {
		return 0, DomainError("**", x, "negative base requires an integer exponent")
	}
	return math.Pow(x, y), nil
}

func divideOperator(x, y float64) (float64, error) {
	if y == 0 {
		return 0, divisionByZeroError()
	}
	return x / y, nil
}

func roundDigits(args ...float64) (float64, error) {
	digits := 0
	if len(args) == 2 {
		if args[1] != math.Trunc(args[1]) {
			return 0, DomainError("round", args[1], "number of digits must be an integer")
		}
		digits = int(args[1])
	}
	return roundHalfEven(args[0], digits), nil
}

// roundHalfEven rounds x to the given number of decimal places using the
// correctly rounded decimal expansion of x, ties to even.
func roundHalfEven(x float64, places int) float64 {
	if math.IsNaN(x) || math.IsInf(x, 0) {
		return x
	}
	if places < 0 {
		scale := math.Pow(10, float64(-places))
		return math.RoundToEven(x/scale) * scale
	}
	if places > 300 {
		return x
	}
	v, err := strconv.ParseFloat(strconv.FormatFloat(x, 'f', places, 64), 64)
	if err != nil {
		return x
	}
	return v
}
