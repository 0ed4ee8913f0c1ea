package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/szaher/sharkcalc/internal/calc"
)

func newFunctionsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "functions",
		Short: "List the functions and constants expressions may use",
		RunE: func(cmd *cobra.Command, args []string) error {
			env := calc.DefaultEnvironment()

			tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "FUNCTION\tARGS\tDESCRIPTION")
			for _, f := range env.Functions() {
				args := fmt.Sprintf("%d", f.MinArity)
				if f.MaxArity != f.MinArity {
					args = fmt.Sprintf("%d-%d", f.MinArity, f.MaxArity)
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\n", f.Name, args, f.Doc)
			}
			if err := tw.Flush(); err != nil {
				return err
			}

			names := env.ConstantNames()
			values := make([]string, len(names))
			for i, n := range names {
				v, _ := env.Constant(n)
				values[i] = fmt.Sprintf("%s=%v", n, v)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "\nConstants: %s\n", strings.Join(values, ", "))
			return nil
		},
	}
}
