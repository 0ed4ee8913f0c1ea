// Package mcp serves the calculator as Model Context Protocol tools and
// provides a client for talking to such a server.
package mcp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/szaher/sharkcalc/internal/calc"
	"github.com/szaher/sharkcalc/internal/service"
	"github.com/szaher/sharkcalc/internal/telemetry"
)

const surface = "mcp"

// Tool names.
const (
	ToolCalculate     = "calculate"
	ToolListFunctions = "list_functions"
)

// CalculateInput is the argument object of the calculate tool.
type CalculateInput struct {
	Expression    string  `json:"expression" jsonschema:"arithmetic expression, e.g. 2^10 + sqrt(16) or log(100, 10)"`
	Precision     *int    `json:"precision,omitempty" jsonschema:"decimal places in the result (default 10)"`
	TimeoutMS     int     `json:"timeout_ms,omitempty" jsonschema:"wall-clock budget in milliseconds (default 5000)"`
	MaxComplexity float64 `json:"max_complexity,omitempty" jsonschema:"complexity score limit (default 100)"`
}

// CalculateOutput is the structured result of the calculate tool.
type CalculateOutput struct {
	Expression string   `json:"expression"`
	Value      *float64 `json:"value,omitempty"`
	Precision  int      `json:"precision,omitempty"`
	Error      string   `json:"error,omitempty"`
	Message    string   `json:"message,omitempty"`
	Retryable  bool     `json:"retryable,omitempty"`
}

// ListFunctionsInput takes no arguments.
type ListFunctionsInput struct{}

// FunctionInfo describes one callable function.
type FunctionInfo struct {
	Name     string `json:"name"`
	MinArity int    `json:"min_arity"`
	MaxArity int    `json:"max_arity"`
	Doc      string `json:"doc,omitempty"`
}

// ListFunctionsOutput lists the Safe Environment.
type ListFunctionsOutput struct {
	Functions []FunctionInfo `json:"functions"`
	Constants []string       `json:"constants"`
}

// Server exposes a service.Service as MCP tools.
type Server struct {
	svc    *service.Service
	server *mcpsdk.Server
	logger *slog.Logger
}

// NewServer creates an MCP server with the calculate and list_functions
// tools registered.
func NewServer(svc *service.Service, version string, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		svc:    svc,
		logger: logger,
		server: mcpsdk.NewServer(&mcpsdk.Implementation{
			Name:    "sharkcalc",
			Version: version,
		}, nil),
	}

	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name: ToolCalculate,
		Description: "Safely evaluate an arithmetic expression. Supports + - * / ^ (or **), " +
			"parentheses, the constants pi, e and tau, and the functions listed by " +
			ToolListFunctions + ".",
	}, s.calculate)
	mcpsdk.AddTool(s.server, &mcpsdk.Tool{
		Name:        ToolListFunctions,
		Description: "List the functions and constants available to the calculate tool.",
	}, s.listFunctions)

	return s
}

// Run serves over stdin/stdout until ctx is done or the client disconnects.
func (s *Server) Run(ctx context.Context) error {
	s.logger.Info("mcp server starting", "transport", "stdio")
	return s.server.Run(ctx, &mcpsdk.StdioTransport{})
}

// Connect serves a single session over t.
func (s *Server) Connect(ctx context.Context, t mcpsdk.Transport) (*mcpsdk.ServerSession, error) {
	return s.server.Connect(ctx, t, nil)
}

func (s *Server) calculate(ctx context.Context, _ *mcpsdk.CallToolRequest, in CalculateInput) (*mcpsdk.CallToolResult, CalculateOutput, error) {
	ctx = telemetry.WithCorrelationID(ctx, "")

	req := calc.Request{Expression: in.Expression}
	if in.Precision != nil {
		req = req.WithPrecision(*in.Precision)
	}
	if in.TimeoutMS > 0 {
		req = req.WithTimeout(time.Duration(in.TimeoutMS) * time.Millisecond)
	}
	if in.MaxComplexity > 0 {
		req = req.WithMaxComplexity(in.MaxComplexity)
	}

	res, err := s.svc.Calculate(ctx, surface, req)
	out := CalculateOutput{Expression: in.Expression}
	text := service.Render(in.Expression, res.Value, err)
	if err != nil {
		out.Message = service.ErrorText(err)
		var ce *calc.Error
		if errors.As(err, &ce) {
			out.Error = string(ce.Kind)
			out.Retryable = ce.Retryable()
		}
		return &mcpsdk.CallToolResult{
			IsError: true,
			Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
		}, out, nil
	}

	value := res.Value
	out.Value = &value
	out.Precision = res.Precision
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: text}},
	}, out, nil
}

func (s *Server) listFunctions(_ context.Context, _ *mcpsdk.CallToolRequest, _ ListFunctionsInput) (*mcpsdk.CallToolResult, ListFunctionsOutput, error) {
	env := s.svc.Environment()
	out := ListFunctionsOutput{Constants: env.ConstantNames()}

	var b strings.Builder
	b.WriteString("Functions:\n")
	for _, f := range env.Functions() {
		out.Functions = append(out.Functions, FunctionInfo{
			Name:     f.Name,
			MinArity: f.MinArity,
			MaxArity: f.MaxArity,
			Doc:      f.Doc,
		})
		fmt.Fprintf(&b, "  %s%s", f.Name, signature(f.MinArity, f.MaxArity))
		if f.Doc != "" {
			fmt.Fprintf(&b, ": %s", f.Doc)
		}
		b.WriteByte('\n')
	}
	fmt.Fprintf(&b, "Constants: %s", strings.Join(out.Constants, ", "))

	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: b.String()}},
	}, out, nil
}

// signature renders "(x)", "(x, y)" or "(x[, y])".
func signature(minArity, maxArity int) string {
	params := []string{"x", "y", "z"}
	var b strings.Builder
	b.WriteByte('(')
	for i := 0; i < maxArity && i < len(params); i++ {
		switch {
		case i == 0:
		case i < minArity:
			b.WriteString(", ")
		default:
			b.WriteString("[, ")
		}
		b.WriteString(params[i])
	}
	for i := minArity; i < maxArity && i < len(params); i++ {
		if i > 0 {
			b.WriteByte(']')
		}
	}
	b.WriteByte(')')
	return b.String()
}
