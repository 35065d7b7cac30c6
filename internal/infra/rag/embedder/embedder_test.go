package embedder

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicEmbedderOrderPreserved(t *testing.T) {
	e := NewDeterministicEmbedder(16)
	vectors, err := e.Embed(context.Background(), []string{"alpha", "beta", "gamma"})
	require.NoError(t, err)
	require.Len(t, vectors, 3)
	for _, v := range vectors {
		assert.Len(t, v, 16)
	}
	// Deterministic: same text embeds identically every time.
	again, err := e.Embed(context.Background(), []string{"alpha"})
	require.NoError(t, err)
	assert.Equal(t, vectors[0], again[0])
}

func TestDeterministicEmbedderRejectsEmpty(t *testing.T) {
	e := NewDeterministicEmbedder(8)
	_, err := e.Embed(context.Background(), []string{""})
	assert.Error(t, err)
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, estimateTokens(""))
	assert.Greater(t, estimateTokens("a reasonably long sentence with several words in it"), 0)
}
