package compressor

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
)

func TestCompressAcceptsUntilBudget(t *testing.T) {
	c := New()
	candidates := []rag.Candidate{
		{Chunk: rag.Chunk{ID: "a", Text: strings.Repeat("x", 40)}},
		{Chunk: rag.Chunk{ID: "b", Text: strings.Repeat("y", 40)}},
		{Chunk: rag.Chunk{ID: "c", Text: strings.Repeat("z", 400)}},
	}
	out, err := c.Compress(context.Background(), "q", candidates, 20)
	require.NoError(t, err)
	require.NotEmpty(t, out)
	assert.Equal(t, "a", out[0].Chunk.ID)
}

func TestCompressNeverEmptyWithNonEmptyInput(t *testing.T) {
	c := New()
	candidates := []rag.Candidate{
		{Chunk: rag.Chunk{ID: "a", Text: strings.Repeat("word ", 1000)}},
	}
	out, err := c.Compress(context.Background(), "q", candidates, 1)
	require.NoError(t, err)
	assert.NotEmpty(t, out)
}

func TestEstimateTokensCeilDivByFour(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Equal(t, 1, estimateTokens("abc"))
	assert.Equal(t, 1, estimateTokens("abcd"))
	assert.Equal(t, 2, estimateTokens("abcde"))
}
