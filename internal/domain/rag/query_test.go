package rag_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/rag/chunkstore"
	"github.com/ragserve/core/internal/infra/rag/compressor"
	"github.com/ragserve/core/internal/infra/rag/embedder"
	"github.com/ragserve/core/internal/infra/rag/reranker"
	"github.com/ragserve/core/internal/infra/rag/sessionstore"
	"github.com/ragserve/core/internal/infra/rag/vectorindex"
	apperrors "github.com/ragserve/core/pkg/errors"
)

// delayedEmbedder injects a synthetic delay into EmbedOne before
// returning, the "test seam" S6 calls for; it still honors ctx so a
// canceled/expired deadline wins the race rather than the sleep.
type delayedEmbedder struct {
	rag.Embedder
	delay time.Duration
}

func (d *delayedEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	select {
	case <-time.After(d.delay):
		return d.Embedder.EmbedOne(ctx, text)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// echoGenerator returns a deterministic answer citing every context it
// is given, so orchestrator-level tests don't depend on a real LM.
type echoGenerator struct {
	lastReq rag.GenerateRequest
}

func (g *echoGenerator) Generate(_ context.Context, req rag.GenerateRequest) (rag.GenerateResponse, error) {
	g.lastReq = req
	if req.NoEvidence {
		return rag.GenerateResponse{Answer: "I cannot answer from the available evidence"}, nil
	}
	answer := "answer"
	var citations []rag.Citation
	for i, c := range req.Contexts {
		answer += fmt.Sprintf(" [%d]", i+1)
		citations = append(citations, rag.Citation{Index: i + 1, DocID: c.Chunk.DocID, ChunkID: c.Chunk.ID})
	}
	return rag.GenerateResponse{Answer: answer, Citations: citations, PromptTokens: 10, CompletionTokens: 5}, nil
}

func newTestQueryOrchestrator(t *testing.T, gen rag.Generator) (*rag.QueryOrchestrator, rag.ChunkStore, rag.VectorIndex, rag.SessionStore) {
	t.Helper()
	emb := embedder.NewDeterministicEmbedder(16)
	return newTestQueryOrchestratorWithEmbedder(t, gen, emb)
}

func newTestQueryOrchestratorWithEmbedder(t *testing.T, gen rag.Generator, emb rag.Embedder) (*rag.QueryOrchestrator, rag.ChunkStore, rag.VectorIndex, rag.SessionStore) {
	t.Helper()
	cs := chunkstore.NewMemoryChunkStore()
	vi := vectorindex.NewMemoryVectorIndex()
	sessions := sessionstore.NewMemoryStore()
	o := rag.NewQueryOrchestrator(
		rag.QueryConfig{MaxContextTokens: 4000},
		emb, cs, vi, reranker.New(embedder.NewDeterministicEmbedder(16)), compressor.New(), gen, sessions, discardLogger(),
	)
	return o, cs, vi, sessions
}

func seedChunk(t *testing.T, ctx context.Context, cs rag.ChunkStore, vi rag.VectorIndex, emb rag.Embedder, docID, text string) string {
	t.Helper()
	chunk := rag.Chunk{ID: docID + "-c0", DocID: docID, Ordinal: 0, Text: text, Restricts: map[string][]string{"doc_id": {docID}}}
	chunk.EmbeddingRef = chunk.ID
	_, err := cs.UpsertMany(ctx, []rag.Chunk{chunk})
	require.NoError(t, err)
	vec, err := emb.EmbedOne(ctx, text)
	require.NoError(t, err)
	require.NoError(t, vi.Upsert(ctx, []rag.Vector{{EmbeddingRef: chunk.EmbeddingRef, Values: vec, Restricts: chunk.Restricts}}))
	return chunk.ID
}

func TestQueryHappyPathReturnsCitedAnswer(t *testing.T) {
	ctx := context.Background()
	gen := &echoGenerator{}
	orch, cs, vi, _ := newTestQueryOrchestrator(t, gen)
	emb := embedder.NewDeterministicEmbedder(16)
	chunkID := seedChunk(t, ctx, cs, vi, emb, "d1", "Our support hours are 9am to 5pm, Monday to Friday.")

	result, err := orch.Query(ctx, rag.QueryRequest{UserID: "u1", Question: "What are the support hours?", TopK: 3})
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "[1]")
	require.Len(t, result.Citations, 1)
	assert.Equal(t, chunkID, result.Citations[0].ChunkID)
	assert.Greater(t, result.PromptTokens, 0)
}

func TestQueryNoEvidenceRefusesWithoutInventingAnswer(t *testing.T) {
	ctx := context.Background()
	gen := &echoGenerator{}
	orch, _, _, _ := newTestQueryOrchestrator(t, gen)

	result, err := orch.Query(ctx, rag.QueryRequest{UserID: "u1", Question: "What is the speed of light?"})
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "cannot answer from the available evidence")
	assert.Empty(t, result.Citations)
}

func TestQueryEmptyQuestionRejected(t *testing.T) {
	orch, _, _, _ := newTestQueryOrchestrator(t, &echoGenerator{})
	_, err := orch.Query(context.Background(), rag.QueryRequest{UserID: "u1"})
	assert.Error(t, err)
}

func TestQuerySessionHistoryPersistsAcrossCalls(t *testing.T) {
	ctx := context.Background()
	gen := &echoGenerator{}
	orch, cs, vi, sessions := newTestQueryOrchestrator(t, gen)
	emb := embedder.NewDeterministicEmbedder(16)
	seedChunk(t, ctx, cs, vi, emb, "d1", "My name is recorded in this document about John.")

	first, err := orch.Query(ctx, rag.QueryRequest{UserID: "u1", Question: "I am John."})
	require.NoError(t, err)

	sessionID := ""
	list, err := sessions.ListSessions(ctx, "u1", 10, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	sessionID = list[0].SessionID

	second, err := orch.Query(ctx, rag.QueryRequest{UserID: "u1", SessionID: sessionID, Question: "What is my name?", UseHistory: true})
	require.NoError(t, err)

	history, err := sessions.Recent(ctx, sessionID, 6)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, len(history), 2)
	_ = first
	_ = second
}

func TestQueryDropsOrphanVectors(t *testing.T) {
	ctx := context.Background()
	gen := &echoGenerator{}
	orch, _, vi, _ := newTestQueryOrchestrator(t, gen)
	emb := embedder.NewDeterministicEmbedder(16)
	vec, err := emb.EmbedOne(ctx, "orphaned vector with no chunk record")
	require.NoError(t, err)
	require.NoError(t, vi.Upsert(ctx, []rag.Vector{{EmbeddingRef: "missing-chunk", Values: vec}}))

	result, err := orch.Query(ctx, rag.QueryRequest{UserID: "u1", Question: "orphaned vector with no chunk record"})
	require.NoError(t, err)
	assert.Contains(t, result.Answer, "cannot answer from the available evidence")
}

// TestQueryDeadlineExceededDuringEmbedFailsFastWithoutRecording mirrors
// spec.md §8's S6: a 2s caller deadline against a 5s embedder delay
// must fail within the deadline window with CodeDeadlineExceeded, and
// must not append anything to the session.
func TestQueryDeadlineExceededDuringEmbedFailsFastWithoutRecording(t *testing.T) {
	base := embedder.NewDeterministicEmbedder(16)
	slow := &delayedEmbedder{Embedder: base, delay: 5 * time.Second}
	gen := &echoGenerator{}
	orch, _, _, sessions := newTestQueryOrchestratorWithEmbedder(t, gen, slow)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	start := time.Now()
	_, err := orch.Query(ctx, rag.QueryRequest{UserID: "u1", Question: "will this ever answer?"})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperrors.IsCode(err, apperrors.CodeDeadlineExceeded))
	assert.Less(t, elapsed, 2500*time.Millisecond)

	list, listErr := sessions.ListSessions(context.Background(), "u1", 10, 0)
	require.NoError(t, listErr)
	for _, meta := range list {
		history, histErr := sessions.Recent(context.Background(), meta.SessionID, 10)
		require.NoError(t, histErr)
		assert.Empty(t, history)
	}
}
