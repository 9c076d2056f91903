package agent

import (
	"context"
	"fmt"

	openai "github.com/sashabaranov/go-openai"
)

// ChatModel abstracts the tool-calling chat endpoint so agents can be
// tested against a scripted fake.
type ChatModel interface {
	Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error)
}

type openAIChatModel struct {
	client *openai.Client
	model  string
}

func NewOpenAIChatModel(client *openai.Client, model string) ChatModel {
	return &openAIChatModel{client: client, model: model}
}

func (m *openAIChatModel) Chat(ctx context.Context, messages []openai.ChatCompletionMessage, tools []openai.Tool) (openai.ChatCompletionMessage, error) {
	req := openai.ChatCompletionRequest{
		Model:    m.model,
		Messages: messages,
	}
	if len(tools) > 0 {
		req.Tools = tools
	}
	resp, err := m.client.CreateChatCompletion(ctx, req)
	if err != nil {
		return openai.ChatCompletionMessage{}, err
	}
	if len(resp.Choices) == 0 {
		return openai.ChatCompletionMessage{}, fmt.Errorf("chat response has no choices")
	}
	return resp.Choices[0].Message, nil
}
