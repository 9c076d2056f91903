package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/carebridge/carebridge/internal/trace"
)

const defaultMaxIterations = 8

// ReactAgent runs the model in a tool-calling loop: the model either
// answers or requests tool calls, whose results are fed back until it
// produces a final answer or the iteration cap is hit.
type ReactAgent struct {
	name          string
	model         ChatModel
	registry      *Registry
	systemPrompt  string
	modelName     string
	maxIterations int
}

func NewReactAgent(name string, model ChatModel, registry *Registry, systemPrompt, modelName string, maxIterations int) *ReactAgent {
	if maxIterations <= 0 {
		maxIterations = defaultMaxIterations
	}
	return &ReactAgent{
		name:          name,
		model:         model,
		registry:      registry,
		systemPrompt:  systemPrompt,
		modelName:     modelName,
		maxIterations: maxIterations,
	}
}

func (a *ReactAgent) Name() string {
	return a.name
}

// Run answers one query, optionally continuing a prior conversation.
func (a *ReactAgent) Run(ctx context.Context, query string, history []openai.ChatCompletionMessage, tr *trace.Trace) (string, error) {
	logger := logutil.GetLogger(ctx)
	messages := make([]openai.ChatCompletionMessage, 0, len(history)+2)
	if a.systemPrompt != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: a.systemPrompt,
		})
	}
	messages = append(messages, history...)
	messages = append(messages, openai.ChatCompletionMessage{
		Role:    openai.ChatMessageRoleUser,
		Content: query,
	})

	var tools []openai.Tool
	if a.registry != nil {
		tools = a.registry.OpenAITools()
	}

	for i := 0; i < a.maxIterations; i++ {
		start := time.Now()
		reply, err := a.model.Chat(ctx, messages, tools)
		if err != nil {
			return "", fmt.Errorf("agent %s chat failed: %w", a.name, err)
		}
		tr.AddLLMSpan(a.name, query, reply.Content, a.modelName, time.Since(start))

		if len(reply.ToolCalls) == 0 {
			return reply.Content, nil
		}
		if a.registry == nil {
			return "", fmt.Errorf("agent %s requested tool calls but has no tools", a.name)
		}

		messages = append(messages, reply)
		for _, call := range reply.ToolCalls {
			toolStart := time.Now()
			result, err := a.registry.Execute(ctx, call.Function.Name, json.RawMessage(call.Function.Arguments))
			if err != nil {
				logger.Warn("tool call failed",
					zap.String("agent", a.name),
					zap.String("tool", call.Function.Name),
					zap.Error(err),
				)
				result = fmt.Sprintf("tool error: %v", err)
			}
			tr.AddToolSpan(call.Function.Name, call.Function.Arguments, result, time.Since(toolStart))
			messages = append(messages, openai.ChatCompletionMessage{
				Role:       openai.ChatMessageRoleTool,
				Content:    result,
				ToolCallID: call.ID,
			})
		}
	}
	return "", fmt.Errorf("agent %s exceeded %d iterations", a.name, a.maxIterations)
}
