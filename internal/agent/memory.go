package agent

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
)

const (
	sessionKeyPrefix          = "carebridge:session:"
	defaultMaxSessionMessages = 40
)

// Memory keeps per-session conversation history so follow-up questions
// carry their context across requests. History is capped at maxMessages
// entries; older ones are trimmed away, since the full list is replayed
// into every prompt.
type Memory struct {
	client      *redis.Client
	ttl         time.Duration
	maxMessages int
}

func NewMemory(client *redis.Client, ttl time.Duration, maxMessages int) *Memory {
	if maxMessages <= 0 {
		maxMessages = defaultMaxSessionMessages
	}
	return &Memory{client: client, ttl: ttl, maxMessages: maxMessages}
}

func sessionKey(sessionID string) string {
	return sessionKeyPrefix + sessionID
}

type storedMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (m *Memory) History(ctx context.Context, sessionID string) ([]openai.ChatCompletionMessage, error) {
	if m == nil || m.client == nil || sessionID == "" {
		return nil, nil
	}
	raw, err := m.client.LRange(ctx, sessionKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("load session history: %w", err)
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(raw))
	for _, item := range raw {
		var msg storedMessage
		if err := json.Unmarshal([]byte(item), &msg); err != nil {
			continue
		}
		messages = append(messages, openai.ChatCompletionMessage{Role: msg.Role, Content: msg.Content})
	}
	return messages, nil
}

func (m *Memory) Append(ctx context.Context, sessionID string, role, content string) error {
	if m == nil || m.client == nil || sessionID == "" {
		return nil
	}
	data, err := json.Marshal(storedMessage{Role: role, Content: content})
	if err != nil {
		return err
	}
	key := sessionKey(sessionID)
	pipe := m.client.Pipeline()
	pipe.RPush(ctx, key, data)
	pipe.LTrim(ctx, key, int64(-m.maxMessages), -1)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("append session history: %w", err)
	}
	return nil
}

func (m *Memory) Clear(ctx context.Context, sessionID string) error {
	if m == nil || m.client == nil || sessionID == "" {
		return nil
	}
	return m.client.Del(ctx, sessionKey(sessionID)).Err()
}
