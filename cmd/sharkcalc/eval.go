package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/szaher/sharkcalc/internal/calc"
	"github.com/szaher/sharkcalc/internal/service"
	"github.com/szaher/sharkcalc/internal/telemetry"
)

const surface = "cli"

// requestFlags are the per-request overrides shared by eval and batch.
type requestFlags struct {
	precision     int
	timeout       time.Duration
	maxComplexity float64
	jsonOut       bool
}

func (f *requestFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVarP(&f.precision, "precision", "p", calc.DefaultPrecision, "Decimal places in the result")
	cmd.Flags().DurationVar(&f.timeout, "timeout", 0, "Evaluation time budget (default from config)")
	cmd.Flags().Float64Var(&f.maxComplexity, "max-complexity", 0, "Complexity score limit (default from config)")
	cmd.Flags().BoolVar(&f.jsonOut, "json", false, "Print results as JSON")
}

func (f *requestFlags) request(cmd *cobra.Command, expr string) calc.Request {
	req := calc.Request{Expression: expr}
	if cmd.Flags().Changed("precision") {
		req = req.WithPrecision(f.precision)
	}
	if f.timeout > 0 {
		req = req.WithTimeout(f.timeout)
	}
	if f.maxComplexity > 0 {
		req = req.WithMaxComplexity(f.maxComplexity)
	}
	return req
}

// jsonResult is one line of --json output.
type jsonResult struct {
	Expression string                 `json:"expression"`
	Value      *float64               `json:"value,omitempty"`
	Precision  int                    `json:"precision,omitempty"`
	Complexity *calc.ComplexityReport `json:"complexity,omitempty"`
	Error      string                 `json:"error,omitempty"`
	Message    string                 `json:"message,omitempty"`
}

func newJSONResult(expr string, res calc.Result, err error) jsonResult {
	out := jsonResult{Expression: expr}
	if err != nil {
		out.Error = string(calc.KindOf(err))
		out.Message = err.Error()
		return out
	}
	v := res.Value
	out.Value = &v
	out.Precision = res.Precision
	out.Complexity = &res.Report
	return out
}

func printResult(w io.Writer, jsonOut bool, expr string, res calc.Result, err error) {
	if jsonOut {
		_ = json.NewEncoder(w).Encode(newJSONResult(expr, res, err))
		return
	}
	fmt.Fprintln(w, service.Render(expr, res.Value, err))
}

func newEvalCmd() *cobra.Command {
	var flags requestFlags

	cmd := &cobra.Command{
		Use:   "eval <expression>",
		Short: "Evaluate one expression",
		Long: `Evaluate one arithmetic expression and print the result. Multiple
arguments are joined with spaces, so quoting is optional for simple input.
Exits with status 2 when the expression is rejected or fails.`,
		Example: `  sharkcalc eval "2^10 + sqrt(16)"
  sharkcalc eval --precision 3 "log(2, 10)"`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, _, _, err := newService()
			if err != nil {
				return err
			}

			expr := strings.Join(args, " ")
			ctx := telemetry.WithCorrelationID(context.Background(), correlationID)
			res, err := svc.Calculate(ctx, surface, flags.request(cmd, expr))
			printResult(cmd.OutOrStdout(), flags.jsonOut, expr, res, err)
			if err != nil {
				return exitCode(2)
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}

func newBatchCmd() *cobra.Command {
	var (
		flags requestFlags
		file  string
	)

	cmd := &cobra.Command{
		Use:   "batch [expression...]",
		Short: "Evaluate many expressions concurrently",
		Long: `Evaluate every argument, or every line of --file ("-" for stdin), and
print one result per expression in input order. Blank lines and lines
starting with # are skipped. Exits with status 2 when any expression fails.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			exprs := args
			if file != "" {
				lines, err := readExpressions(cmd.InOrStdin(), file)
				if err != nil {
					return err
				}
				exprs = append(exprs, lines...)
			}
			if len(exprs) == 0 {
				return fmt.Errorf("no expressions given; pass arguments or --file")
			}

			svc, _, _, err := newService()
			if err != nil {
				return err
			}

			reqs := make([]calc.Request, len(exprs))
			for i, e := range exprs {
				reqs[i] = flags.request(cmd, e)
			}

			ctx := telemetry.WithCorrelationID(context.Background(), correlationID)
			items, err := svc.CalculateBatch(ctx, surface, reqs)
			if err != nil {
				return err
			}

			failed := 0
			for i, item := range items {
				if item.Err != nil {
					failed++
				}
				printResult(cmd.OutOrStdout(), flags.jsonOut, exprs[i], item.Result, item.Err)
			}
			if failed > 0 {
				return exitCode(2)
			}
			return nil
		},
	}

	flags.register(cmd)
	cmd.Flags().StringVarP(&file, "file", "f", "", `File with one expression per line ("-" for stdin)`)
	return cmd
}

func readExpressions(stdin io.Reader, path string) ([]string, error) {
	r := stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("opening %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}

	var exprs []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		exprs = append(exprs, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading expressions: %w", err)
	}
	return exprs, nil
}
