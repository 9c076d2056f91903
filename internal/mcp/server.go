package mcp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"
	sdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/carebridge/carebridge/internal/agent"
)

const serverName = "carebridge-tools"

// NewServer exposes the given tools over the Model Context Protocol.
// Run it on a stdio transport from the tool server binary.
func NewServer(version string, tools ...agent.Tool) (*sdk.Server, error) {
	server := sdk.NewServer(&sdk.Implementation{Name: serverName, Version: version}, nil)
	for _, tool := range tools {
		schema, err := toSchema(tool.Parameters())
		if err != nil {
			return nil, fmt.Errorf("tool %s schema: %w", tool.Name(), err)
		}
		server.AddTool(&sdk.Tool{
			Name:        tool.Name(),
			Description: tool.Description(),
			InputSchema: schema,
		}, toolHandler(tool))
	}
	return server, nil
}

// Run serves requests on stdin/stdout until the context is canceled or
// the peer disconnects.
func Run(ctx context.Context, server *sdk.Server) error {
	return server.Run(ctx, &sdk.StdioTransport{})
}

func toSchema(params map[string]interface{}) (*jsonschema.Schema, error) {
	data, err := json.Marshal(params)
	if err != nil {
		return nil, err
	}
	var schema jsonschema.Schema
	if err := json.Unmarshal(data, &schema); err != nil {
		return nil, err
	}
	return &schema, nil
}

func toolHandler(tool agent.Tool) sdk.ToolHandler {
	return func(ctx context.Context, req *sdk.CallToolRequest) (*sdk.CallToolResult, error) {
		var args json.RawMessage
		if req.Params != nil {
			args = req.Params.Arguments
		}
		if len(args) == 0 {
			args = json.RawMessage(`{}`)
		}
		result, err := tool.Call(ctx, args)
		if err != nil {
			return &sdk.CallToolResult{
				IsError: true,
				Content: []sdk.Content{&sdk.TextContent{Text: err.Error()}},
			}, nil
		}
		return &sdk.CallToolResult{
			Content: []sdk.Content{&sdk.TextContent{Text: result}},
		}, nil
	}
}
