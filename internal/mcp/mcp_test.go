package mcp

import (
	"context"
	"encoding/json"
	"testing"

	sdk "github.com/modelcontextprotocol/go-sdk/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/agent"
)

func newConnectedClient(t *testing.T, tools ...agent.Tool) *Client {
	t.Helper()
	server, err := NewServer("test", tools...)
	require.NoError(t, err)

	serverTransport, clientTransport := sdk.NewInMemoryTransports()
	ctx := context.Background()

	serverSession, err := server.Connect(ctx, serverTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = serverSession.Close() })

	client := sdk.NewClient(&sdk.Implementation{Name: "test", Version: "test"}, nil)
	clientSession, err := client.Connect(ctx, clientTransport, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = clientSession.Close() })

	return &Client{session: clientSession}
}

func TestServerExposesToolsOverProtocol(t *testing.T) {
	client := newConnectedClient(t, agent.NewVisitCostTool())

	tools, err := client.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "visit_cost_estimate", tools[0].Name())
	assert.Equal(t, "object", tools[0].Parameters()["type"])
}

func TestRemoteToolCallRoundTrip(t *testing.T) {
	client := newConnectedClient(t, agent.NewVisitCostTool())

	tools, err := client.Tools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)

	out, err := tools[0].Call(context.Background(), json.RawMessage(`{"visit_type":"consultation","insurance_coverage":0.5}`))
	require.NoError(t, err)

	var res map[string]float64
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.InDelta(t, 250, res["base_cost"], 0.001)
	assert.InDelta(t, 125, res["patient_share"], 0.001)
}

func TestRemoteToolErrorSurfaced(t *testing.T) {
	client := newConnectedClient(t, agent.NewVisitCostTool())

	tools, err := client.Tools(context.Background())
	require.NoError(t, err)

	_, err = tools[0].Call(context.Background(), json.RawMessage(`{"visit_type":"spa"}`))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown visit type")
}
