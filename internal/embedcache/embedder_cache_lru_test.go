package embedcache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type countingEmbedder struct {
	calls int
}

func (c *countingEmbedder) Embed(ctx context.Context, text string, taskType string) ([]float32, error) {
	c.calls++
	return []float32{1, 2, 3}, nil
}

func (c *countingEmbedder) ModelName() string {
	return "test-model"
}

func TestLruEmbedderCachesByTextAndTaskType(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "patient note", "retrieval_document")
	require.NoError(t, err)
	second, err := cached.Embed(ctx, "patient note", "retrieval_document")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, inner.calls)

	_, err = cached.Embed(ctx, "patient note", "retrieval_query")
	require.NoError(t, err)
	assert.Equal(t, 2, inner.calls)
}

func TestLruEmbedderReturnsCopy(t *testing.T) {
	inner := &countingEmbedder{}
	cached := WrapLruCacheToEmbedder(inner, 16, time.Minute)

	ctx := context.Background()
	first, err := cached.Embed(ctx, "note", "")
	require.NoError(t, err)
	first[0] = 99

	second, err := cached.Embed(ctx, "note", "")
	require.NoError(t, err)
	assert.Equal(t, float32(1), second[0])
}

func TestWrapLruCacheDisabled(t *testing.T) {
	inner := &countingEmbedder{}
	assert.Equal(t, inner, WrapLruCacheToEmbedder(inner, 0, time.Minute))
	assert.Equal(t, inner, WrapLruCacheToEmbedder(inner, 16, 0))
}
