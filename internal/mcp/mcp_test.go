package mcp

import (
	"context"
	"io"
	"log/slog"
	"slices"
	"strings"
	"testing"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/szaher/sharkcalc/internal/service"
)

// connect wires a client to a fresh server over in-memory transports.
func connect(t *testing.T) *Client {
	t.Helper()
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	srv := NewServer(service.New(nil, service.WithLogger(logger)), "test", logger)
	serverTransport, clientTransport := mcpsdk.NewInMemoryTransports()

	session, err := srv.Connect(ctx, serverTransport)
	if err != nil {
		t.Fatalf("server connect: %v", err)
	}
	t.Cleanup(func() { _ = session.Close() })

	client := NewClient("test")
	if err := client.Connect(ctx, clientTransport); err != nil {
		t.Fatalf("client connect: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func TestTools(t *testing.T) {
	client := connect(t)

	names, err := client.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools() error: %v", err)
	}
	slices.Sort(names)
	if !slices.Equal(names, []string{ToolCalculate, ToolListFunctions}) {
		t.Errorf("tools = %v", names)
	}
}

func TestCalculateTool(t *testing.T) {
	client := connect(t)
	two := 2

	tests := []struct {
		name      string
		in        CalculateInput
		wantText  string
		wantValue float64
		wantError string
	}{
		{
			name:      "power and sqrt",
			in:        CalculateInput{Expression: "2^10 + sqrt(16)"},
			wantText:  "✅ 2^10 + sqrt(16) = 1028.0",
			wantValue: 1028,
		},
		{
			name:      "precision",
			in:        CalculateInput{Expression: "pi", Precision: &two},
			wantText:  "✅ pi = 3.14",
			wantValue: 3.14,
		},
		{
			name:      "division by zero",
			in:        CalculateInput{Expression: "10/0"},
			wantText:  "❌ Error: Division by zero in expression!",
			wantError: "DivisionByZero",
		},
		{
			name:      "syntax error",
			in:        CalculateInput{Expression: "2 +"},
			wantText:  "❌ Error: Invalid mathematical expression!",
			wantError: "SyntaxError",
		},
		{
			name:      "dangerous pattern",
			in:        CalculateInput{Expression: "exec(1)"},
			wantError: "DangerousPattern",
		},
		{
			name:      "complexity budget",
			in:        CalculateInput{Expression: "1+2+3", MaxComplexity: 0.5},
			wantError: "ComplexityTooHigh",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, out, err := client.Calculate(context.Background(), tt.in)
			if err != nil {
				t.Fatalf("Calculate() error: %v", err)
			}
			if tt.wantText != "" && text != tt.wantText {
				t.Errorf("text = %q, want %q", text, tt.wantText)
			}
			if out.Expression != tt.in.Expression {
				t.Errorf("expression = %q, want %q", out.Expression, tt.in.Expression)
			}
			if tt.wantError != "" {
				if out.Error != tt.wantError {
					t.Errorf("error = %q, want %q", out.Error, tt.wantError)
				}
				if out.Value != nil {
					t.Errorf("value = %v, want nil on failure", *out.Value)
				}
				if !strings.HasPrefix(text, "❌ Error: ") {
					t.Errorf("text = %q, want error rendering", text)
				}
				return
			}
			if out.Value == nil || *out.Value != tt.wantValue {
				t.Errorf("value = %v, want %v", out.Value, tt.wantValue)
			}
		})
	}
}

func TestListFunctionsTool(t *testing.T) {
	client := connect(t)

	out, err := client.ListFunctions(context.Background())
	if err != nil {
		t.Fatalf("ListFunctions() error: %v", err)
	}
	if !slices.Equal(out.Constants, []string{"e", "pi", "tau"}) {
		t.Errorf("constants = %v", out.Constants)
	}

	byName := map[string]FunctionInfo{}
	for _, f := range out.Functions {
		byName[f.Name] = f
	}
	for _, name := range []string{"sqrt", "log", "pow", "round", "atan2", "hypot"} {
		if _, ok := byName[name]; !ok {
			t.Errorf("function %q missing", name)
		}
	}
	if f := byName["round"]; f.MinArity != 1 || f.MaxArity != 2 {
		t.Errorf("round arity = %d..%d, want 1..2", f.MinArity, f.MaxArity)
	}
}

func TestClientNotConnected(t *testing.T) {
	client := NewClient("test")
	if _, _, err := client.Calculate(context.Background(), CalculateInput{Expression: "1"}); err == nil {
		t.Error("Calculate() on unconnected client: error = nil")
	}
	if _, err := client.Tools(context.Background()); err == nil {
		t.Error("Tools() on unconnected client: error = nil")
	}
	if err := client.Close(); err != nil {
		t.Errorf("Close() on unconnected client: %v", err)
	}
}

func TestSignature(t *testing.T) {
	tests := []struct {
		min, max int
		want     string
	}{
		{1, 1, "(x)"},
		{2, 2, "(x, y)"},
		{1, 2, "(x[, y])"},
	}
	for _, tt := range tests {
		if got := signature(tt.min, tt.max); got != tt.want {
			t.Errorf("signature(%d, %d) = %q, want %q", tt.min, tt.max, got, tt.want)
		}
	}
}
