package calc

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
)

// Names of the checked operator functions the arithmetic patcher
// substitutes for "/" and "**". They cannot be spelled in user input.
const (
	divideFunc = "#divide"
	powerFunc  = "#power"
)

// leadingDot matches a float literal written without its integer part.
var leadingDot = regexp.MustCompile(`(^|[^0-9A-Za-z_.])\.([0-9])`)

// program is a compiled expression bound to the call that compiled it.
// The function closures share failure with the VM goroutine; it is only
// read after that goroutine has finished.
type program struct {
	source  string
	vm      *vm.Program
	env     map[string]any
	failure error
}

// compile parses expr, validates it against the closed grammar and binds
// it to env. Functions check ctx before doing any work.
func compile(ctx context.Context, source string, env *Environment) (*program, error) {
	if err := checkComments(source); err != nil {
		return nil, err
	}
	source = leadingDot.ReplaceAllString(source, "${1}0.${2}")
	p := &program{
		source: source,
		env:    make(map[string]any, len(env.constants)),
	}
	for name, v := range env.constants {
		p.env[name] = v
	}

	grammar := &grammarValidator{env: env}
	opts := []expr.Option{
		expr.Env(p.env),
		expr.DisableAllBuiltins(),
		expr.AsFloat64(),
		expr.Patch(grammar),
		expr.Patch(arithmeticPatcher{env: env}),
		expr.Function(divideFunc, p.binary(divideOperator)),
		expr.Function(powerFunc, p.binary(powOperator)),
	}
	for _, spec := range env.functions {
		opts = append(opts, expr.Function(spec.Name, p.call(ctx, spec)))
	}

	compiled, err := expr.Compile(source, opts...)
	if gerr := grammar.result(); gerr != nil {
		return nil, gerr
	}
	if err != nil {
		return nil, syntaxError(source, err)
	}
	p.vm = compiled
	return p, nil
}

// checkComments rejects "//" and "/*". The expression lexer would
// otherwise drop the rest of the input as a comment while every guard
// still saw it.
func checkComments(source string) error {
	for _, marker := range []string{"//", "/*"} {
		if strings.Contains(source, marker) {
			return newError(KindSyntaxError, marker, "invalid mathematical expression: unexpected %q", marker)
		}
	}
	return nil
}

func (p *program) fail(err error) error {
	if p.failure == nil {
		p.failure = err
	}
	return err
}

func (p *program) call(ctx context.Context, spec FunctionSpec) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, p.fail(TimeoutError(ctx))
		}
		if len(params) < spec.MinArity || len(params) > spec.MaxArity {
			return nil, p.fail(arityError(spec, len(params)))
		}
		args := make([]float64, len(params))
		for i, v := range params {
			f, err := toFloat(v)
			if err != nil {
				return nil, p.fail(syntaxError(spec.Name, err))
			}
			args[i] = f
		}
		out, err := spec.Impl(args...)
		if err != nil {
			return nil, p.fail(err)
		}
		return out, nil
	}
}

func (p *program) binary(op func(x, y float64) (float64, error)) func(params ...any) (any, error) {
	return func(params ...any) (any, error) {
		if len(params) != 2 {
			return nil, p.fail(syntaxError("", fmt.Errorf("operator expects 2 operands, got %d", len(params))))
		}
		x, err := toFloat(params[0])
		if err != nil {
			return nil, p.fail(syntaxError("", err))
		}
		y, err := toFloat(params[1])
		if err != nil {
			return nil, p.fail(syntaxError("", err))
		}
		out, err := op(x, y)
		if err != nil {
			return nil, p.fail(err)
		}
		return out, nil
	}
}

type runOutcome struct {
	value any
	err   error
}

// run executes the program and waits for it or for ctx, whichever comes
// first. A program abandoned on timeout never publishes its result.
func (p *program) run(ctx context.Context) (float64, error) {
	if ctx.Err() != nil {
		return 0, TimeoutError(ctx)
	}
	done := make(chan runOutcome, 1)
	go func() {
		v, err := expr.Run(p.vm, p.env)
		done <- runOutcome{value: v, err: err}
	}()

	select {
	case <-ctx.Done():
		return 0, TimeoutError(ctx)
	case out := <-done:
		if out.err != nil {
			if p.failure != nil {
				return 0, p.failure
			}
			var e *Error
			if errors.As(out.err, &e) {
				return 0, e
			}
			return 0, syntaxError(p.source, out.err)
		}
		v, err := toFloat(out.value)
		if err != nil {
			return 0, syntaxError(p.source, err)
		}
		return v, nil
	}
}

// TimeoutError reports that ctx ended before an evaluation finished.
func TimeoutError(ctx context.Context) *Error {
	e := newError(KindTimeout, "", "evaluation timed out")
	if cause := context.Cause(ctx); cause != nil && !errors.Is(cause, context.DeadlineExceeded) {
		e.Message = fmt.Sprintf("evaluation aborted: %v", cause)
	}
	e.err = ctx.Err()
	return e
}

func toFloat(v any) (float64, error) {
	switch n := v.(type) {
	case float64:
		return n, nil
	case float32:
		return float64(n), nil
	case int:
		return float64(n), nil
	case int64:
		return float64(n), nil
	default:
		return 0, fmt.Errorf("expected a number, got %T", v)
	}
}

// grammarValidator rejects every node outside the closed arithmetic
// grammar: numbers, known constants, unary +/-, binary + - * / ** and
// calls to Safe Environment functions.
type grammarValidator struct {
	env *Environment
	err error
	// uncalled holds function names seen so far that no call node has
	// claimed as its callee. Walk is post-order, so a callee is visited
	// before its call.
	uncalled []*ast.IdentifierNode
}

func (g *grammarValidator) Visit(node *ast.Node) {
	if g.err != nil {
		return
	}
	switch n := (*node).(type) {
	case *ast.IntegerNode, *ast.FloatNode:
	case *ast.IdentifierNode:
		if _, ok := g.env.Constant(n.Value); ok {
			return
		}
		if _, ok := g.env.Function(n.Value); ok {
			g.uncalled = append(g.uncalled, n)
			return
		}
		g.err = newError(KindSyntaxError, n.Value, "unknown name %q", n.Value)
	case *ast.UnaryNode:
		if n.Operator != "-" && n.Operator != "+" {
			g.err = newError(KindSyntaxError, n.Operator, "unsupported operator %q", n.Operator)
		}
	case *ast.BinaryNode:
		switch n.Operator {
		case "+", "-", "*", "/", "**", "^":
		default:
			g.err = newError(KindSyntaxError, n.Operator, "unsupported operator %q", n.Operator)
		}
	case *ast.CallNode:
		id, ok := n.Callee.(*ast.IdentifierNode)
		if !ok {
			g.err = newError(KindSyntaxError, "", "only named functions can be called")
			return
		}
		g.uncalled = slices.DeleteFunc(g.uncalled, func(u *ast.IdentifierNode) bool { return u == id })
		g.checkCall(id.Value, len(n.Arguments))
	case *ast.BuiltinNode:
		g.checkCall(n.Name, len(n.Arguments))
	default:
		g.err = newError(KindSyntaxError, "", "unsupported construct %T", *node)
	}
}

// result reports the first grammar violation, including a function
// name used as a value.
func (g *grammarValidator) result() error {
	if g.err != nil {
		return g.err
	}
	if len(g.uncalled) > 0 {
		name := g.uncalled[0].Value
		return newError(KindSyntaxError, name, "function %q must be called with arguments", name)
	}
	return nil
}

func (g *grammarValidator) checkCall(name string, argc int) {
	spec, ok := g.env.Function(name)
	if !ok {
		g.err = unsupportedFunctionError(name, g.env.FunctionNames())
		return
	}
	if argc < spec.MinArity || argc > spec.MaxArity {
		g.err = arityError(spec, argc)
	}
}

// arithmeticPatcher makes every literal a float and routes "/" and "**"
// through checked functions, so that integer overflow and silent
// infinities cannot occur.
type arithmeticPatcher struct {
	env *Environment
}

func (a arithmeticPatcher) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IntegerNode:
		ast.Patch(node, &ast.FloatNode{Value: float64(n.Value)})
	case *ast.BinaryNode:
		switch n.Operator {
		case "/":
			ast.Patch(node, checkedCall(divideFunc, n.Left, n.Right))
		case "**", "^":
			ast.Patch(node, checkedCall(powerFunc, n.Left, n.Right))
		}
	case *ast.BuiltinNode:
		if _, ok := a.env.Function(n.Name); ok {
			ast.Patch(node, &ast.CallNode{
				Callee:    &ast.IdentifierNode{Value: n.Name},
				Arguments: n.Arguments,
			})
		}
	}
}

func checkedCall(name string, left, right ast.Node) *ast.CallNode {
	return &ast.CallNode{
		Callee:    &ast.IdentifierNode{Value: name},
		Arguments: []ast.Node{left, right},
	}
}
