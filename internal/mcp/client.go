package mcp

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strings"
	"time"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/carebridge/carebridge/internal/agent"
)

// callTimeout bounds a single remote tool invocation so a hung tool
// server cannot stall an agent run.
const callTimeout = 10 * time.Second

// Client owns a session to one MCP tool server and projects its tools
// into the agent tool interface.
type Client struct {
	session *sdk.ClientSession
}

// Connect launches the tool server command and performs the MCP
// handshake over its stdio.
func Connect(ctx context.Context, version string, command string, args ...string) (*Client, error) {
	if strings.TrimSpace(command) == "" {
		return nil, fmt.Errorf("tool server command is required")
	}
	client := sdk.NewClient(&sdk.Implementation{Name: "carebridge", Version: version}, nil)
	transport := &sdk.CommandTransport{Command: exec.Command(command, args...)}
	session, err := client.Connect(ctx, transport, nil)
	if err != nil {
		return nil, fmt.Errorf("connect tool server: %w", err)
	}
	return &Client{session: session}, nil
}

func (c *Client) Close() error {
	return c.session.Close()
}

// Tools lists the server's tools wrapped as agent tools.
func (c *Client) Tools(ctx context.Context) ([]agent.Tool, error) {
	res, err := c.session.ListTools(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("list tools: %w", err)
	}
	tools := make([]agent.Tool, 0, len(res.Tools))
	for _, tool := range res.Tools {
		params, err := toParameters(tool.InputSchema)
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", tool.Name, err)
		}
		tools = append(tools, &remoteTool{
			session:     c.session,
			name:        tool.Name,
			description: tool.Description,
			parameters:  params,
		})
	}
	return tools, nil
}

func toParameters(schema interface{}) (map[string]interface{}, error) {
	if schema == nil {
		return map[string]interface{}{"type": "object"}, nil
	}
	data, err := json.Marshal(schema)
	if err != nil {
		return nil, err
	}
	var params map[string]interface{}
	if err := json.Unmarshal(data, &params); err != nil {
		return nil, err
	}
	return params, nil
}

type remoteTool struct {
	session     *sdk.ClientSession
	name        string
	description string
	parameters  map[string]interface{}
}

func (t *remoteTool) Name() string {
	return t.name
}

func (t *remoteTool) Description() string {
	return t.description
}

func (t *remoteTool) Parameters() map[string]interface{} {
	return t.parameters
}

func (t *remoteTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var arguments map[string]interface{}
	if len(args) > 0 {
		if err := json.Unmarshal(args, &arguments); err != nil {
			return "", fmt.Errorf("invalid arguments: %w", err)
		}
	}
	res, err := t.session.CallTool(callCtx, &sdk.CallToolParams{
		Name:      t.name,
		Arguments: arguments,
	})
	if err != nil {
		return "", fmt.Errorf("call tool %s: %w", t.name, err)
	}
	text := contentText(res.Content)
	if res.IsError {
		return "", fmt.Errorf("tool %s failed: %s", t.name, text)
	}
	return text, nil
}

func contentText(content []sdk.Content) string {
	var sb strings.Builder
	for _, item := range content {
		if text, ok := item.(*sdk.TextContent); ok {
			sb.WriteString(text.Text)
		}
	}
	return sb.String()
}
