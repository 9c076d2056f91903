package agent

import (
	"context"
	"strings"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// routeThenAnswer serves a routing reply first, then answers every
// specialist call with its own name so tests can see who ran.
type routeThenAnswer struct {
	routing string
	served  int
}

func (m *routeThenAnswer) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	m.served++
	if m.served == 1 {
		return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.routing}, nil
	}
	content := messages[len(messages)-1].Content
	return openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: "answered: " + content}, nil
}

func newTestOrchestrator(t *testing.T, model ChatModel) *Orchestrator {
	t.Helper()
	clinical := NewReactAgent("clinical", model, nil, "", "m", 3)
	billing := NewReactAgent("billing", model, nil, "", "m", 3)
	general := NewReactAgent("general", model, nil, "", "m", 3)
	o, err := NewOrchestrator(model, "m", "general", clinical, billing, general)
	require.NoError(t, err)
	return o
}

func TestOrchestratorRoutesToPrimary(t *testing.T) {
	model := &routeThenAnswer{routing: `{"primary_agent":"clinical","secondary_agents":[],"requires_collaboration":false,"execution_order":[]}`}
	o := newTestOrchestrator(t, model)

	result, err := o.Process(context.Background(), "what are the symptoms", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "clinical", result.Routing.PrimaryAgent)
	require.Len(t, result.Responses, 1)
	assert.Equal(t, "clinical", result.Responses[0].Agent)
}

func TestOrchestratorFallbackOnMalformedRouting(t *testing.T) {
	model := &routeThenAnswer{routing: "I think the clinical agent should handle this one."}
	o := newTestOrchestrator(t, model)

	result, err := o.Process(context.Background(), "query", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "general", result.Routing.PrimaryAgent)
	require.Len(t, result.Responses, 1)
	assert.Equal(t, "general", result.Responses[0].Agent)
}

func TestOrchestratorFallbackOnUnknownAgent(t *testing.T) {
	model := &routeThenAnswer{routing: `{"primary_agent":"radiology"}`}
	o := newTestOrchestrator(t, model)

	result, err := o.Process(context.Background(), "query", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "general", result.Routing.PrimaryAgent)
}

func TestOrchestratorStripsCodeFence(t *testing.T) {
	model := &routeThenAnswer{routing: "```json\n{\"primary_agent\":\"billing\"}\n```"}
	o := newTestOrchestrator(t, model)

	result, err := o.Process(context.Background(), "how much is a checkup", nil, nil)
	require.NoError(t, err)
	assert.Equal(t, "billing", result.Routing.PrimaryAgent)
}

func TestOrchestratorCollaborationSynthesizes(t *testing.T) {
	model := &routeThenAnswer{routing: `{"primary_agent":"clinical","secondary_agents":["billing"],"requires_collaboration":true,"execution_order":["clinical","billing"]}`}
	o := newTestOrchestrator(t, model)

	result, err := o.Process(context.Background(), "treatment and its cost", nil, nil)
	require.NoError(t, err)
	require.Len(t, result.Responses, 2)
	assert.Equal(t, "clinical", result.Responses[0].Agent)
	assert.Equal(t, "billing", result.Responses[1].Agent)
	// Synthesis prompt carries both specialist answers.
	assert.True(t, strings.HasPrefix(result.Answer, "answered:"))
	assert.Contains(t, result.Answer, "[clinical]")
	assert.Contains(t, result.Answer, "[billing]")
}

func TestStripCodeFence(t *testing.T) {
	assert.Equal(t, `{"a":1}`, stripCodeFence("```json\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence("```\n{\"a\":1}\n```"))
	assert.Equal(t, `{"a":1}`, stripCodeFence(`{"a":1}`))
}
