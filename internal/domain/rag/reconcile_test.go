package rag_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/rag/chunkstore"
	"github.com/ragserve/core/internal/infra/rag/embedder"
	"github.com/ragserve/core/internal/infra/rag/vectorindex"
)

func TestReconcileRepairsOrphanChunk(t *testing.T) {
	cs := chunkstore.NewMemoryChunkStore()
	vi := vectorindex.NewMemoryVectorIndex()
	emb := embedder.NewDeterministicEmbedder(16)
	ctx := context.Background()

	_, err := cs.UpsertMany(ctx, []rag.Chunk{
		{ID: "chunk-1", DocID: "doc-1", Text: "the archive closes at 6pm", EmbeddingRef: "embed-1"},
	})
	require.NoError(t, err)
	// C5 never got the upsert C3 recorded, the PARTIAL_FAILURE orphan
	// scenario the reconciler exists to repair.

	reconciler := rag.NewReconciler(cs, vi, emb, discardLogger())
	result, err := reconciler.Reconcile(ctx, []string{"chunk-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, []string{"chunk-1"}, result.Repaired)
	assert.Empty(t, result.Missing)

	vec, err := emb.EmbedOne(ctx, "the archive closes at 6pm")
	require.NoError(t, err)
	scored, err := vi.Query(ctx, vec, 1, nil)
	require.NoError(t, err)
	require.NotEmpty(t, scored)
	assert.Equal(t, "embed-1", scored[0].EmbeddingRef)
}

func TestReconcileReportsMissingChunk(t *testing.T) {
	cs := chunkstore.NewMemoryChunkStore()
	vi := vectorindex.NewMemoryVectorIndex()
	emb := embedder.NewDeterministicEmbedder(16)

	reconciler := rag.NewReconciler(cs, vi, emb, discardLogger())
	result, err := reconciler.Reconcile(context.Background(), []string{"does-not-exist"})
	require.NoError(t, err)
	assert.Equal(t, 1, result.Checked)
	assert.Equal(t, []string{"does-not-exist"}, result.Missing)
	assert.Empty(t, result.Repaired)
}

func TestReconcileSkipsAlreadyCoupledChunk(t *testing.T) {
	cs := chunkstore.NewMemoryChunkStore()
	vi := vectorindex.NewMemoryVectorIndex()
	emb := embedder.NewDeterministicEmbedder(16)
	ctx := context.Background()

	text := "two clerks staff the reading room"
	vec, err := emb.EmbedOne(ctx, text)
	require.NoError(t, err)
	require.NoError(t, vi.Upsert(ctx, []rag.Vector{{EmbeddingRef: "embed-2", Values: vec}}))
	_, err = cs.UpsertMany(ctx, []rag.Chunk{
		{ID: "chunk-2", DocID: "doc-1", Text: text, EmbeddingRef: "embed-2"},
	})
	require.NoError(t, err)

	reconciler := rag.NewReconciler(cs, vi, emb, discardLogger())
	result, err := reconciler.Reconcile(ctx, []string{"chunk-2"})
	require.NoError(t, err)
	assert.Empty(t, result.Repaired, "already-coupled chunk should not be re-upserted")
}
