package agent

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestMemory(t *testing.T) (*Memory, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewMemory(client, time.Hour, 0), mr
}

func TestMemoryRoundTrip(t *testing.T) {
	memory, _ := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, memory.Append(ctx, "s1", openai.ChatMessageRoleUser, "hello"))
	require.NoError(t, memory.Append(ctx, "s1", openai.ChatMessageRoleAssistant, "hi, how can I help"))

	history, err := memory.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, openai.ChatMessageRoleUser, history[0].Role)
	assert.Equal(t, "hello", history[0].Content)
	assert.Equal(t, "hi, how can I help", history[1].Content)
}

func TestMemorySessionsIsolated(t *testing.T) {
	memory, _ := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, memory.Append(ctx, "s1", openai.ChatMessageRoleUser, "one"))
	require.NoError(t, memory.Append(ctx, "s2", openai.ChatMessageRoleUser, "two"))

	history, err := memory.History(ctx, "s2")
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, "two", history[0].Content)
}

func TestMemoryHistoryBounded(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	memory := NewMemory(client, time.Hour, 5)
	ctx := context.Background()

	for i := 0; i < 12; i++ {
		require.NoError(t, memory.Append(ctx, "s1", openai.ChatMessageRoleUser, fmt.Sprintf("msg-%d", i)))
	}

	history, err := memory.History(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, history, 5)
	assert.Equal(t, "msg-7", history[0].Content)
	assert.Equal(t, "msg-11", history[4].Content)
}

func TestMemoryTTLSet(t *testing.T) {
	memory, mr := newTestMemory(t)
	require.NoError(t, memory.Append(context.Background(), "s1", openai.ChatMessageRoleUser, "x"))
	assert.Greater(t, mr.TTL(sessionKey("s1")), time.Duration(0))
}

func TestMemoryClear(t *testing.T) {
	memory, _ := newTestMemory(t)
	ctx := context.Background()

	require.NoError(t, memory.Append(ctx, "s1", openai.ChatMessageRoleUser, "x"))
	require.NoError(t, memory.Clear(ctx, "s1"))

	history, err := memory.History(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}

func TestMemoryNilClientNoop(t *testing.T) {
	var memory *Memory
	require.NoError(t, memory.Append(context.Background(), "s1", "user", "x"))
	history, err := memory.History(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, history)
}
