package agent

import (
	"context"
	"encoding/json"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedModel replays canned replies in order.
type scriptedModel struct {
	replies []openai.ChatCompletionMessage
	calls   [][]openai.ChatCompletionMessage
}

func (m *scriptedModel) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	m.calls = append(m.calls, messages)
	if len(m.replies) == 0 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "done"}, nil
	}
	reply := m.replies[0]
	m.replies = m.replies[1:]
	return reply, nil
}

type echoTool struct{}

func (echoTool) Name() string        { return "echo" }
func (echoTool) Description() string { return "echoes input" }
func (echoTool) Parameters() map[string]interface{} {
	return map[string]interface{}{"type": "object"}
}
func (echoTool) Call(ctx context.Context, args json.RawMessage) (string, error) {
	var req struct {
		Text string `json:"text"`
	}
	if err := json.Unmarshal(args, &req); err != nil {
		return "", err
	}
	return "echo: " + req.Text, nil
}

func TestReactAgentExecutesToolCalls(t *testing.T) {
	model := &scriptedModel{replies: []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:   "call-1",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "echo",
					Arguments: `{"text":"hello"}`,
				},
			}},
		},
		{Role: openai.ChatMessageRoleAssistant, Content: "final answer"},
	}}
	agent := NewReactAgent("test", model, NewRegistry(echoTool{}), "system", "m", 5)

	answer, err := agent.Run(context.Background(), "say hello", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "final answer", answer)

	// Second round trip carries the tool result back to the model.
	require.Len(t, model.calls, 2)
	last := model.calls[1][len(model.calls[1])-1]
	assert.Equal(t, openai.ChatMessageRoleTool, last.Role)
	assert.Equal(t, "echo: hello", last.Content)
	assert.Equal(t, "call-1", last.ToolCallID)
}

func TestReactAgentToolErrorFedBack(t *testing.T) {
	model := &scriptedModel{replies: []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:   "call-1",
				Type: openai.ToolTypeFunction,
				Function: openai.FunctionCall{
					Name:      "missing_tool",
					Arguments: `{}`,
				},
			}},
		},
		{Role: openai.ChatMessageRoleAssistant, Content: "recovered"},
	}}
	agent := NewReactAgent("test", model, NewRegistry(echoTool{}), "", "m", 5)

	answer, err := agent.Run(context.Background(), "q", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "recovered", answer)

	last := model.calls[1][len(model.calls[1])-1]
	assert.Contains(t, last.Content, "tool error")
}

func TestReactAgentNoRegistryToolCallErrors(t *testing.T) {
	model := &scriptedModel{replies: []openai.ChatCompletionMessage{
		{
			Role: openai.ChatMessageRoleAssistant,
			ToolCalls: []openai.ToolCall{{
				ID:       "call-1",
				Type:     openai.ToolTypeFunction,
				Function: openai.FunctionCall{Name: "echo", Arguments: `{}`},
			}},
		},
	}}
	agent := NewReactAgent("test", model, nil, "", "m", 5)

	_, err := agent.Run(context.Background(), "q", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no tools")
}

func TestReactAgentIterationCap(t *testing.T) {
	loop := openai.ChatCompletionMessage{
		Role: openai.ChatMessageRoleAssistant,
		ToolCalls: []openai.ToolCall{{
			ID:       "c",
			Type:     openai.ToolTypeFunction,
			Function: openai.FunctionCall{Name: "echo", Arguments: `{"text":"x"}`},
		}},
	}
	model := &scriptedModel{replies: []openai.ChatCompletionMessage{loop, loop, loop}}
	agent := NewReactAgent("test", model, NewRegistry(echoTool{}), "", "m", 3)

	_, err := agent.Run(context.Background(), "q", nil, nil)
	assert.Error(t, err)
}
