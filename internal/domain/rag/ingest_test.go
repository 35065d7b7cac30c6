package rag_test

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/rag/chunker"
	"github.com/ragserve/core/internal/infra/rag/chunkstore"
	"github.com/ragserve/core/internal/infra/rag/embedder"
	"github.com/ragserve/core/internal/infra/rag/objectstore"
	"github.com/ragserve/core/internal/infra/rag/pii"
	"github.com/ragserve/core/internal/infra/rag/vectorindex"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestIngestOrchestrator() (*rag.IngestOrchestrator, rag.ChunkStore, rag.VectorIndex) {
	emb := embedder.NewDeterministicEmbedder(16)
	cs := chunkstore.NewMemoryChunkStore()
	objs := objectstore.NewMemoryObjectStore()
	vi := vectorindex.NewMemoryVectorIndex()
	o := rag.NewIngestOrchestrator(
		rag.IngestConfig{},
		chunker.New(nil), emb, cs, objs, vi, pii.NewRedactor(), discardLogger(),
	)
	return o, cs, vi
}

func TestIngestHappyPathIndexesChunkContiguously(t *testing.T) {
	orch, chunks, _ := newTestIngestOrchestrator()
	content := []byte("Our support hours are 9am to 5pm, Monday to Friday. Contact support@example.com for help.")

	resp, err := orch.Ingest(context.Background(), []rag.IngestFile{
		{Filename: "faq.txt", Content: content, ContentType: rag.ContentTypeTXT, UploaderID: "u1"},
	})
	require.NoError(t, err)
	require.Len(t, resp.Documents, 1)
	doc := resp.Documents[0]
	assert.Equal(t, rag.DocStatusComplete, doc.Status)
	require.NotEmpty(t, doc.ChunkIDs)

	stored, err := chunks.GetMany(context.Background(), doc.ChunkIDs)
	require.NoError(t, err)
	for i, c := range stored {
		require.NotNil(t, c, "chunk %d must be retrievable", i)
		assert.Equal(t, i, c.Ordinal, "ordinals must be contiguous")
	}
	assert.Contains(t, stored[0].PIICategories, "email")
}

func TestIngestCoupledChunkIsRetrievableByItsOwnEmbedding(t *testing.T) {
	orch, chunks, vectors := newTestIngestOrchestrator()
	content := []byte("The archive room closes at 6pm on weekdays and is staffed by two clerks.")

	resp, err := orch.Ingest(context.Background(), []rag.IngestFile{
		{Filename: "archive.txt", Content: content, ContentType: rag.ContentTypeTXT},
	})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Documents[0].ChunkIDs)

	emb := embedder.NewDeterministicEmbedder(16)
	for _, chunkID := range resp.Documents[0].ChunkIDs {
		stored, err := chunks.GetMany(context.Background(), []string{chunkID})
		require.NoError(t, err)
		require.NotNil(t, stored[0])

		vec, err := emb.EmbedOne(context.Background(), stored[0].Text)
		require.NoError(t, err)
		scored, err := vectors.Query(context.Background(), vec, 1, nil)
		require.NoError(t, err)
		require.NotEmpty(t, scored)
		assert.Equal(t, stored[0].EmbeddingRef, scored[0].EmbeddingRef)
	}
}

func TestIngestIdempotentOnIdenticalBytes(t *testing.T) {
	orch, chunks, _ := newTestIngestOrchestrator()
	content := []byte("Re-ingesting the same bytes must not duplicate chunks in the store.")

	first, err := orch.Ingest(context.Background(), []rag.IngestFile{
		{Filename: "doc1.txt", Content: content, ContentType: rag.ContentTypeTXT},
	})
	require.NoError(t, err)
	second, err := orch.Ingest(context.Background(), []rag.IngestFile{
		{Filename: "doc1.txt", Content: content, ContentType: rag.ContentTypeTXT},
	})
	require.NoError(t, err)

	assert.Equal(t, first.Documents[0].DocID, second.Documents[0].DocID)
	assert.Equal(t, first.Documents[0].ChunkIDs, second.Documents[0].ChunkIDs)

	all, err := chunks.GetMany(context.Background(), second.Documents[0].ChunkIDs)
	require.NoError(t, err)
	assert.Len(t, all, len(first.Documents[0].ChunkIDs))
}

func TestIngestEmptyDocumentRejected(t *testing.T) {
	orch, _, _ := newTestIngestOrchestrator()
	resp, err := orch.Ingest(context.Background(), []rag.IngestFile{
		{Filename: "empty.txt", Content: []byte("   \n\t "), ContentType: rag.ContentTypeTXT},
	})
	require.Error(t, err)
	require.Len(t, resp.Documents, 1)
	assert.Equal(t, rag.DocStatusRejected, resp.Documents[0].Status)
}

func TestIngestPartialFailureWhenSomeSucceedSomeFail(t *testing.T) {
	orch, _, _ := newTestIngestOrchestrator()
	resp, err := orch.Ingest(context.Background(), []rag.IngestFile{
		{Filename: "good.txt", Content: []byte("A perfectly ordinary support document with real content in it."), ContentType: rag.ContentTypeTXT},
		{Filename: "empty.txt", Content: []byte("   "), ContentType: rag.ContentTypeTXT},
	})
	require.NoError(t, err, "aggregate call succeeds because one document indexed end-to-end")
	require.Len(t, resp.Documents, 2)
	assert.Equal(t, rag.DocStatusComplete, resp.Documents[0].Status)
	assert.Equal(t, rag.DocStatusRejected, resp.Documents[1].Status)
}
