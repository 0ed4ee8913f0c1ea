package calc

import (
	"errors"
	"math"
	"testing"
)

// ---------------------------------------------------------------------------
// CheckCharacters
// ---------------------------------------------------------------------------

func TestCheckCharacters(t *testing.T) {
	tests := []struct {
		name    string
		expr    string
		wantErr bool
	}{
		{name: "arithmetic", expr: "1 + 2 * (3 - 4) / 5", wantErr: false},
		{name: "functions and caret", expr: "log_x(2, 3) ^ 2", wantErr: false},
		{name: "tabs and newlines", expr: "1\t+\n2", wantErr: false},
		{name: "percent", expr: "5 % 2", wantErr: true},
		{name: "brackets", expr: "[1]", wantErr: true},
		{name: "quote", expr: `"1"`, wantErr: true},
		{name: "non-ascii space", expr: "1\u00a0+ 1", wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			err := CheckCharacters(tc.expr)
			if tc.wantErr && !errors.Is(err, ErrInvalidCharacter) {
				t.Errorf("expected InvalidCharacter, got %v", err)
			}
			if !tc.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Normalize
// ---------------------------------------------------------------------------

func TestNormalize(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{in: "2^3", want: "2**3"},
		{in: "2 ^ 3", want: "2 ** 3"},
		{in: "2^^3", want: "2**3"},
		{in: "2*^3", want: "2**3"},
		{in: "2^*3", want: "2**3"},
		{in: "2^3^2", want: "2**3**2"},
		{in: "2**3", want: "2**3"},
		{in: "2*3", want: "2*3"},
	}

	for _, tc := range tests {
		t.Run(tc.in, func(t *testing.T) {
			if got := Normalize(tc.in); got != tc.want {
				t.Errorf("got %q, want %q", got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Analyze
// ---------------------------------------------------------------------------

func TestAnalyze_Report(t *testing.T) {
	r, err := Analyze("sqrt(abs(-1))", DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if r.Length != 13 || r.MaxDepth != 2 || r.FunctionCalls != 2 || r.AddSub != 1 || r.MulDiv != 0 {
		t.Fatalf("unexpected report: %+v", r)
	}
	want := 0.1*13 + 2*2 + 3*2 + 0.2*1
	if math.Abs(r.Score-want) > 1e-9 {
		t.Errorf("score: got %v, want %v", r.Score, want)
	}
}

func TestAnalyze_ScoreWeights(t *testing.T) {
	r, err := Analyze("2 + 3 * 4", DefaultLimits())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if math.Abs(r.Score-1.6) > 1e-9 {
		t.Errorf("score: got %v, want 1.6", r.Score)
	}
	if err := r.Check(1.6); err != nil {
		t.Errorf("score equal to the budget should pass: %v", err)
	}
	if err := r.Check(1.5); !errors.Is(err, ErrComplexityTooHigh) {
		t.Errorf("expected ComplexityTooHigh, got %v", err)
	}
}

func TestAnalyze_Limits(t *testing.T) {
	limits := Limits{MaxLength: 20, MaxDepth: 2, MaxCalls: 1}
	tests := []struct {
		name string
		expr string
		want error
	}{
		{name: "length", expr: "1+1+1+1+1+1+1+1+1+1+1", want: ErrExpressionTooLong},
		{name: "depth", expr: "(((1)))", want: ErrNestingTooDeep},
		{name: "unbalanced beats depth", expr: "((((1)))", want: ErrUnbalancedParentheses},
		{name: "close first", expr: "1)(", want: ErrUnbalancedParentheses},
		{name: "calls", expr: "abs(1)+abs(2)", want: ErrTooManyFunctionCalls},
		{name: "within limits", expr: "abs((1))", want: nil},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := Analyze(tc.expr, limits)
			if tc.want == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// CheckFunctions / CheckDangerousPatterns
// ---------------------------------------------------------------------------

func TestCheckDangerousPatterns(t *testing.T) {
	dangerous := []string{
		"__import__",
		"x.__class__",
		"(1).real",
		"pi . imag",
		"eval(1)",
		"EXEC (1)",
		"compile(1)",
		"import",
		"globals()",
		"locals()",
		"vars()",
		"dir()",
		"type(1)",
		"getattr",
		"setattr",
		"hasattr",
		"delattr",
		"lambda",
		"breakpoint()",
	}
	for _, expr := range dangerous {
		t.Run(expr, func(t *testing.T) {
			if err := CheckDangerousPatterns(expr); !errors.Is(err, ErrDangerousPattern) {
				t.Errorf("expected DangerousPattern, got %v", err)
			}
		})
	}

	safe := []string{"1.5 + 2.25", "sqrt(2) * pi", "radians(90)", "log_base + 1", "e + 1"}
	for _, expr := range safe {
		t.Run(expr, func(t *testing.T) {
			if err := CheckDangerousPatterns(expr); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestCheckFunctions(t *testing.T) {
	env := DefaultEnvironment()
	if err := CheckFunctions("sqrt(2) + log(3, 2) + pi", env); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := CheckFunctions("sqrt(2) + system(1)", env)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindUnsupportedFunction {
		t.Fatalf("expected UnsupportedFunction, got %v", err)
	}
	if e.Subject != "system" {
		t.Errorf("subject: got %q, want %q", e.Subject, "system")
	}
}

// ---------------------------------------------------------------------------
// CheckArity
// ---------------------------------------------------------------------------

func TestCountArguments(t *testing.T) {
	tests := []struct {
		args string
		want int
	}{
		{args: "", want: 0},
		{args: "  ", want: 0},
		{args: "1", want: 1},
		{args: "1, 2", want: 2},
		{args: "pow(1, 2), 3", want: 2},
		{args: "log(pow(1, 2), 3)", want: 1},
		{args: "1,", want: 1},
	}
	for _, tc := range tests {
		t.Run(tc.args, func(t *testing.T) {
			if got := countArguments(tc.args); got != tc.want {
				t.Errorf("got %d, want %d", got, tc.want)
			}
		})
	}
}

func TestCheckArity(t *testing.T) {
	env := DefaultEnvironment()
	ok := []string{"log(8)", "log(8, 2)", "round(1.5)", "round(1.25, 1)", "pow(sqrt(4), log(8, 2))"}
	for _, expr := range ok {
		t.Run(expr, func(t *testing.T) {
			if err := CheckArity(expr, env); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}

	err := CheckArity("pow(sqrt(4, 1), 2)", env)
	var e *Error
	if !errors.As(err, &e) || e.Kind != KindArityMismatch {
		t.Fatalf("expected ArityMismatch, got %v", err)
	}
	if e.Function != "sqrt" || e.MinArity != 1 || e.MaxArity != 1 || e.Actual != 2 {
		t.Errorf("unexpected details: %+v", e)
	}
}

// ---------------------------------------------------------------------------
// Environment
// ---------------------------------------------------------------------------

func TestDefaultEnvironment(t *testing.T) {
	env := DefaultEnvironment()
	for _, name := range []string{"sqrt", "log", "log10", "asin", "acos", "pow", "abs", "round",
		"sin", "cos", "tan", "sinh", "cosh", "tanh", "floor", "ceil", "trunc"} {
		if _, ok := env.Function(name); !ok {
			t.Errorf("missing function %q", name)
		}
	}
	for _, name := range []string{"pi", "e"} {
		if _, ok := env.Constant(name); !ok {
			t.Errorf("missing constant %q", name)
		}
	}
	if spec, _ := env.Function("log"); spec.MinArity != 1 || spec.MaxArity != 2 {
		t.Errorf("log arity: got %d..%d", spec.MinArity, spec.MaxArity)
	}

	names := env.FunctionNames()
	names[0] = "mutated"
	if env.FunctionNames()[0] == "mutated" {
		t.Error("FunctionNames must return a copy")
	}
	if DefaultEnvironment() != env {
		t.Error("default environment should be a single shared instance")
	}
}

func TestNewEnvironment_Invalid(t *testing.T) {
	impl := func(args ...float64) (float64, error) { return 0, nil }
	tests := []struct {
		name      string
		functions []FunctionSpec
		constants map[string]float64
	}{
		{name: "missing impl", functions: []FunctionSpec{{Name: "f", MinArity: 1, MaxArity: 1}}},
		{name: "bad arity", functions: []FunctionSpec{{Name: "f", MinArity: 2, MaxArity: 1, Impl: impl}}},
		{name: "duplicate", functions: []FunctionSpec{
			{Name: "f", MinArity: 1, MaxArity: 1, Impl: impl},
			{Name: "f", MinArity: 1, MaxArity: 1, Impl: impl},
		}},
		{name: "shadowing constant", functions: []FunctionSpec{{Name: "f", MinArity: 1, MaxArity: 1, Impl: impl}},
			constants: map[string]float64{"f": 1}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewEnvironment(tc.functions, tc.constants); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestSafeFunctions(t *testing.T) {
	tests := []struct {
		name    string
		fn      Func
		args    []float64
		want    float64
		wantErr bool
	}{
		{name: "sqrt", fn: safeSqrt, args: []float64{9}, want: 3},
		{name: "sqrt negative", fn: safeSqrt, args: []float64{-4}, wantErr: true},
		{name: "log base 10", fn: safeLog, args: []float64{100, 10}, want: 2},
		{name: "log negative base", fn: safeLog, args: []float64{100, -10}, wantErr: true},
		{name: "pow", fn: safePow, args: []float64{-2, 3}, want: -8},
		{name: "pow fractional negative", fn: safePow, args: []float64{-8, 1.0 / 3}, wantErr: true},
		{name: "pow zero negative", fn: safePow, args: []float64{0, -1}, wantErr: true},
		{name: "round negative digits", fn: roundDigits, args: []float64{1234, -2}, want: 1200},
		{name: "round fractional digits", fn: roundDigits, args: []float64{1.5, 0.5}, wantErr: true},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := tc.fn(tc.args...)
			if tc.wantErr {
				if !errors.Is(err, ErrDomain) {
					t.Fatalf("expected DomainError, got %v", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if math.Abs(got-tc.want) > 1e-9 {
				t.Errorf("got %v, want %v", got, tc.want)
			}
		})
	}
}

// ---------------------------------------------------------------------------
// Finalize
// ---------------------------------------------------------------------------

func TestFinalize(t *testing.T) {
	if _, err := Finalize(math.NaN(), 2); !errors.Is(err, ErrNotANumber) {
		t.Errorf("NaN: expected NotANumber, got %v", err)
	}
	if _, err := Finalize(math.Inf(-1), 2); !errors.Is(err, ErrOverflow) {
		t.Errorf("-Inf: expected Overflow, got %v", err)
	}
	got, err := Finalize(1.23456, 3)
	if err != nil || got != 1.235 {
		t.Errorf("got %v, %v; want 1.235", got, err)
	}
	got, err = Finalize(-0.0001, 2)
	if err != nil || got != 0 || math.Signbit(got) {
		t.Errorf("got %v, %v; want positive zero", got, err)
	}
}

func TestKindOf(t *testing.T) {
	if KindOf(errors.New("plain")) != "" {
		t.Error("plain errors have no kind")
	}
	if !IsGuardFailure(ErrArityMismatch) || IsGuardFailure(ErrDivisionByZero) {
		t.Error("IsGuardFailure misclassifies")
	}
	if ErrSyntax.Retryable() || !ErrTimeout.Retryable() {
		t.Error("only timeouts are retryable")
	}
}
