// Package calc evaluates untrusted arithmetic expressions against a fixed
// table of constants and functions.
//
// An expression passes through a fixed pipeline: character check,
// caret normalization, complexity limits, function whitelist and
// dangerous-pattern scan, arity check, bounded evaluation and result
// rounding. The first failing stage returns an *Error and nothing after
// it runs.
package calc

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"time"
)

// Result is a successful evaluation.
type Result struct {
	Expression string           `json:"expression"`
	Normalized string           `json:"normalized"`
	Value      float64          `json:"value"`
	Precision  int              `json:"precision"`
	Report     ComplexityReport `json:"complexity"`
	Duration   time.Duration    `json:"-"`
}

// Evaluator runs the pipeline. It holds no per-call state and may be
// shared between goroutines.
type Evaluator struct {
	env    *Environment
	limits Limits
	logger *slog.Logger
}

// Option configures an Evaluator.
type Option func(*Evaluator)

// WithEnvironment replaces the default Safe Environment.
func WithEnvironment(env *Environment) Option {
	return func(e *Evaluator) { e.env = env }
}

// WithLimits sets the static limits. Zero fields keep their defaults.
func WithLimits(l Limits) Option {
	return func(e *Evaluator) { e.limits = l.withDefaults() }
}

// WithLogger sets the logger used for rejected expressions.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Evaluator) { e.logger = logger }
}

// New creates an Evaluator.
func New(opts ...Option) *Evaluator {
	e := &Evaluator{
		env:    DefaultEnvironment(),
		limits: DefaultLimits(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Environment returns the table the evaluator resolves names against.
func (e *Evaluator) Environment() *Environment { return e.env }

// Limits returns the evaluator's static limits.
func (e *Evaluator) Limits() Limits { return e.limits }

// Evaluate runs req through the pipeline. On failure the returned Result
// still carries whatever the pipeline measured before it stopped.
func (e *Evaluator) Evaluate(ctx context.Context, req Request) (Result, error) {
	start := time.Now()
	res, err := e.evaluate(ctx, req)
	res.Duration = time.Since(start)
	if err != nil {
		e.logger.Debug("expression rejected",
			"kind", string(KindOf(err)),
			"error", err.Error(),
			"length", len(req.Expression),
		)
		res.Value = 0
		return res, err
	}
	return res, nil
}

func (e *Evaluator) evaluate(ctx context.Context, req Request) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, req.timeout())
	defer cancel()

	res := Result{Expression: req.Expression, Precision: req.precision()}

	if err := CheckCharacters(req.Expression); err != nil {
		return res, err
	}
	if strings.TrimSpace(req.Expression) == "" {
		return res, newError(KindSyntaxError, "", "invalid mathematical expression: empty expression")
	}

	res.Normalized = Normalize(req.Expression)

	report, err := Analyze(res.Normalized, e.limits)
	res.Report = report
	if err != nil {
		return res, err
	}
	if err := report.Check(req.maxComplexity()); err != nil {
		return res, err
	}

	if err := CheckFunctions(res.Normalized, e.env); err != nil {
		return res, err
	}
	if err := CheckArity(res.Normalized, e.env); err != nil {
		return res, err
	}

	prog, err := compile(ctx, res.Normalized, e.env)
	if err != nil {
		return res, err
	}
	raw, err := prog.run(ctx)
	if err != nil {
		return res, err
	}

	res.Value, err = Finalize(raw, res.Precision)
	if err != nil {
		return res, err
	}
	return res, nil
}

// Evaluate evaluates expr with the default evaluator. Options override
// request defaults.
func Evaluate(ctx context.Context, expr string, opts ...RequestOption) (float64, error) {
	req := NewRequest(expr)
	for _, opt := range opts {
		req = opt(req)
	}
	res, err := defaultEvaluator.Evaluate(ctx, req)
	if err != nil {
		return 0, err
	}
	return res.Value, nil
}

var defaultEvaluator = New()

// RequestOption adjusts a Request built by Evaluate.
type RequestOption func(Request) Request

// Precision sets the number of decimal places.
func Precision(places int) RequestOption {
	return func(r Request) Request { return r.WithPrecision(places) }
}

// Timeout sets the wall-clock budget.
func Timeout(d time.Duration) RequestOption {
	return func(r Request) Request { return r.WithTimeout(d) }
}

// MaxComplexity sets the complexity budget.
func MaxComplexity(max float64) RequestOption {
	return func(r Request) Request { return r.WithMaxComplexity(max) }
}
