package ai

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carebridge/carebridge/internal/model"
)

func TestChunkerSplitsOnHeadings(t *testing.T) {
	markdown := `# Visit Summary

Patient presented with mild fever and fatigue.

# Treatment Plan

Prescribed rest and fluids. Follow up in two weeks.`

	chunks, err := NewChunker().Chunk(context.Background(), markdown)
	require.NoError(t, err)
	require.Len(t, chunks, 2)
	assert.True(t, strings.HasPrefix(chunks[0].Content, "Section: Visit Summary"))
	assert.True(t, strings.HasPrefix(chunks[1].Content, "Section: Treatment Plan"))
	assert.Equal(t, 0, chunks[0].Position)
	assert.Equal(t, 1, chunks[1].Position)
}

func TestChunkerFlushesOnTokenBudget(t *testing.T) {
	paragraph := strings.Repeat("word ", 150)
	markdown := "# Notes\n\n" + paragraph + "\n\n" + paragraph + "\n\n" + paragraph

	chunks, err := NewChunker().Chunk(context.Background(), markdown)
	require.NoError(t, err)
	require.Greater(t, len(chunks), 1)
	for _, chunk := range chunks {
		assert.Equal(t, model.ChunkTypeText, chunk.ChunkType)
	}
	// Every chunk keeps its section heading.
	for _, chunk := range chunks {
		assert.True(t, strings.HasPrefix(chunk.Content, "Section: Notes"))
	}
}

func TestChunkerStandaloneCodeBlock(t *testing.T) {
	paragraph := strings.Repeat("lab value ", 180)
	markdown := "# Labs\n\n" + paragraph + "\n\n```\n" + strings.Repeat("CBC 4.5\n", 100) + "```"

	chunks, err := NewChunker().Chunk(context.Background(), markdown)
	require.NoError(t, err)
	var codeChunks int
	for _, chunk := range chunks {
		if chunk.ChunkType == model.ChunkTypeCode {
			codeChunks++
		}
	}
	assert.Equal(t, 1, codeChunks)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 3, estimateTokens("one two three"))
	assert.Equal(t, 1, estimateTokens("!"))
	assert.Equal(t, 0, estimateTokens(""))
}
