// Package reranker implements C7: re-scoring retrieval candidates with
// a combined retrieval/semantic/length signal, grounded on Tangerg-lynx's
// RankDocumentRefiner (sort-by-score, truncate-to-top-K shape) with the
// score itself computed per spec.md §4.7's fixed formula rather than
// reused verbatim from a single incoming score.
package reranker

import (
	"context"
	"math"
	"sort"
	"unicode/utf8"

	"github.com/samber/lo"

	"github.com/ragserve/core/internal/domain/rag"
)

const (
	weightRetrieval = 0.50
	weightSemantic  = 0.35
	weightLength    = 0.15

	semanticPrefixChars = 1000
	lengthPriorDivisor  = 1500.0
)

// Embedder is the minimal capability Reranker needs: embedding single
// strings for the semantic_sim term.
type Embedder interface {
	EmbedOne(ctx context.Context, text string) ([]float32, error)
}

// Reranker computes spec.md §4.7's combined score for each candidate.
type Reranker struct {
	embedder Embedder
}

// New constructs a Reranker backed by the given embedder.
func New(embedder Embedder) *Reranker {
	return &Reranker{embedder: embedder}
}

var _ rag.Reranker = (*Reranker)(nil)

// Rerank scores every candidate and returns exactly min(topK, len(candidates))
// entries, stable on ties (by retrieval score, then chunk-id), never
// inventing candidates not present in the input.
func (r *Reranker) Rerank(ctx context.Context, query string, candidates []rag.Candidate, topK int) ([]rag.Candidate, error) {
	if len(candidates) == 0 {
		return nil, nil
	}

	queryVec, err := r.embedder.EmbedOne(ctx, query)
	if err != nil {
		return nil, err
	}

	retrievalScores := lo.Map(candidates, func(c rag.Candidate, _ int) float64 { return c.RetrievalScore })
	minRetrieval, maxRetrieval := lo.Min(retrievalScores), lo.Max(retrievalScores)

	scored := make([]rag.Candidate, len(candidates))
	for i, c := range candidates {
		normalizedRetrieval := 1.0
		if maxRetrieval > minRetrieval {
			normalizedRetrieval = (c.RetrievalScore - minRetrieval) / (maxRetrieval - minRetrieval)
		}

		prefix := truncateRunes(c.Chunk.Text, semanticPrefixChars)
		chunkVec, err := r.embedder.EmbedOne(ctx, prefix)
		if err != nil {
			return nil, err
		}
		semanticSim := cosineSimilarity(queryVec, chunkVec)

		lengthPrior := math.Min(1.0, float64(utf8.RuneCountInString(c.Chunk.Text))/lengthPriorDivisor)

		combined := weightRetrieval*normalizedRetrieval + weightSemantic*semanticSim + weightLength*lengthPrior

		c.CombinedScore = combined
		scored[i] = c
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].CombinedScore != scored[j].CombinedScore {
			return scored[i].CombinedScore > scored[j].CombinedScore
		}
		if scored[i].RetrievalScore != scored[j].RetrievalScore {
			return scored[i].RetrievalScore > scored[j].RetrievalScore
		}
		return scored[i].Chunk.ID < scored[j].Chunk.ID
	})

	if topK < len(scored) {
		scored = scored[:topK]
	}
	return scored, nil
}

func truncateRunes(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
