package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"
)

// Client talks to a sharkcalc MCP server.
type Client struct {
	client  *mcpsdk.Client
	session *mcpsdk.ClientSession
}

// NewClient creates an unconnected client.
func NewClient(version string) *Client {
	return &Client{
		client: mcpsdk.NewClient(&mcpsdk.Implementation{
			Name:    "sharkcalc-client",
			Version: version,
		}, nil),
	}
}

// Connect establishes a session over t.
func (c *Client) Connect(ctx context.Context, t mcpsdk.Transport) error {
	session, err := c.client.Connect(ctx, t, nil)
	if err != nil {
		return fmt.Errorf("mcp connect: %w", err)
	}
	c.session = session
	return nil
}

// ConnectCommand starts command as a subprocess and connects over its
// stdin/stdout.
func (c *Client) ConnectCommand(ctx context.Context, command string, args ...string) error {
	cmd := exec.CommandContext(ctx, command, args...)
	return c.Connect(ctx, &mcpsdk.CommandTransport{Command: cmd})
}

// Tools returns the names of the tools the server offers.
func (c *Client) Tools(ctx context.Context) ([]string, error) {
	if c.session == nil {
		return nil, fmt.Errorf("mcp client not connected")
	}

	var names []string
	for tool, err := range c.session.Tools(ctx, nil) {
		if err != nil {
			return nil, fmt.Errorf("mcp list tools: %w", err)
		}
		names = append(names, tool.Name)
	}
	return names, nil
}

// Calculate calls the calculate tool. It returns the rendered text and the
// structured output; a failed evaluation is reported in the output, not as
// an error.
func (c *Client) Calculate(ctx context.Context, in CalculateInput) (string, CalculateOutput, error) {
	var out CalculateOutput
	text, err := c.call(ctx, ToolCalculate, in, &out)
	return text, out, err
}

// ListFunctions calls the list_functions tool.
func (c *Client) ListFunctions(ctx context.Context) (ListFunctionsOutput, error) {
	var out ListFunctionsOutput
	_, err := c.call(ctx, ToolListFunctions, ListFunctionsInput{}, &out)
	return out, err
}

func (c *Client) call(ctx context.Context, name string, args, out any) (string, error) {
	if c.session == nil {
		return "", fmt.Errorf("mcp client not connected")
	}

	result, err := c.session.CallTool(ctx, &mcpsdk.CallToolParams{
		Name:      name,
		Arguments: args,
	})
	if err != nil {
		return "", fmt.Errorf("mcp call tool %s: %w", name, err)
	}

	var texts []string
	for _, content := range result.Content {
		if tc, ok := content.(*mcpsdk.TextContent); ok {
			texts = append(texts, tc.Text)
		}
	}
	text := strings.Join(texts, "\n")

	if result.StructuredContent != nil {
		data, err := json.Marshal(result.StructuredContent)
		if err != nil {
			return text, fmt.Errorf("mcp tool %s: encoding structured content: %w", name, err)
		}
		if err := json.Unmarshal(data, out); err != nil {
			return text, fmt.Errorf("mcp tool %s: decoding structured content: %w", name, err)
		}
	}
	return text, nil
}

// Close gracefully closes the MCP connection.
func (c *Client) Close() error {
	if c.session != nil {
		return c.session.Close()
	}
	return nil
}
