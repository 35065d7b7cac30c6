package vectorindex

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
)

func TestMemoryVectorIndexRanksBySimilarity(t *testing.T) {
	idx := NewMemoryVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []rag.Vector{
		{EmbeddingRef: "a", Values: []float32{1, 0, 0}},
		{EmbeddingRef: "b", Values: []float32{0, 1, 0}},
		{EmbeddingRef: "c", Values: []float32{0.9, 0.1, 0}},
	}))

	results, err := idx.Query(ctx, []float32{1, 0, 0}, 2, nil)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, "a", results[0].EmbeddingRef)
	assert.Equal(t, "c", results[1].EmbeddingRef)
}

func TestMemoryVectorIndexTiesBreakByEmbeddingRef(t *testing.T) {
	idx := NewMemoryVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []rag.Vector{
		{EmbeddingRef: "zeta", Values: []float32{1, 0}},
		{EmbeddingRef: "alpha", Values: []float32{1, 0}},
		{EmbeddingRef: "mu", Values: []float32{1, 0}},
	}))

	results, err := idx.Query(ctx, []float32{1, 0}, 10, nil)
	require.NoError(t, err)
	require.Len(t, results, 3)
	assert.Equal(t, []string{"alpha", "mu", "zeta"}, []string{
		results[0].EmbeddingRef, results[1].EmbeddingRef, results[2].EmbeddingRef,
	})
}

func TestMemoryVectorIndexRestricts(t *testing.T) {
	idx := NewMemoryVectorIndex()
	ctx := context.Background()

	require.NoError(t, idx.Upsert(ctx, []rag.Vector{
		{EmbeddingRef: "a", Values: []float32{1, 0}, Restricts: map[string][]string{"tenant": {"t1"}}},
		{EmbeddingRef: "b", Values: []float32{1, 0}, Restricts: map[string][]string{"tenant": {"t2"}}},
	}))

	results, err := idx.Query(ctx, []float32{1, 0}, 10, map[string][]string{"tenant": {"t2"}})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "b", results[0].EmbeddingRef)
}
