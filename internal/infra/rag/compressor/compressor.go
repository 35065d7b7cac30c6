// Package compressor implements C8: greedy token-budget selection over
// pre-ranked candidates, grounded on the general RAG compression shape
// in Tangerg-lynx's query_transformer_compression.go (accept-until-budget
// over an ordered list) but built to spec.md §4.8's exact contract,
// which is a distinct concern from query rewriting.
package compressor

import (
	"context"
	"strings"

	"github.com/samber/lo"

	"github.com/ragserve/core/internal/domain/rag"
)

// Compressor greedily accepts pre-ranked candidates until the next one
// would exceed the token budget, optionally including a sentence-safe
// prefix of the first rejected candidate.
type Compressor struct{}

// New constructs a Compressor. It holds no state.
func New() *Compressor {
	return &Compressor{}
}

var _ rag.ContextCompressor = (*Compressor)(nil)

// Compress assumes candidates are pre-sorted by reranker score
// descending. Never returns an empty list when at least one non-empty
// candidate was provided; preserves input order.
func (c *Compressor) Compress(_ context.Context, _ string, candidates []rag.Candidate, maxTokens int) ([]rag.Candidate, error) {
	nonEmpty := lo.Filter(candidates, func(cand rag.Candidate, _ int) bool {
		return strings.TrimSpace(cand.Chunk.Text) != ""
	})

	var accepted []rag.Candidate
	used := 0

	for _, cand := range nonEmpty {
		tokens := estimateTokens(cand.Chunk.Text)
		if used+tokens <= maxTokens {
			accepted = append(accepted, cand)
			used += tokens
			continue
		}

		remaining := maxTokens - used
		if remaining > 0 {
			if prefix, ok := sentenceSafePrefix(cand.Chunk.Text, remaining); ok {
				truncated := cand
				truncated.Chunk.Text = prefix
				accepted = append(accepted, truncated)
			}
		}
		break
	}

	if len(accepted) == 0 && len(nonEmpty) > 0 {
		accepted = append(accepted, nonEmpty[0])
	}
	return accepted, nil
}

// estimateTokens is spec.md §4.8's contractual estimator:
// ceil(len(text)/4).
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}

// sentenceSafePrefix returns the longest prefix of text that fits within
// budget tokens AND ends on a complete sentence, if one exists.
func sentenceSafePrefix(text string, budgetTokens int) (string, bool) {
	maxChars := budgetTokens * 4
	if maxChars <= 0 || maxChars >= len(text) {
		return "", false
	}
	window := text[:maxChars]

	lastEnd := -1
	for i, r := range window {
		if r == '.' || r == '!' || r == '?' {
			lastEnd = i + 1
		}
	}
	if lastEnd <= 0 {
		return "", false
	}
	return strings.TrimSpace(window[:lastEnd]), true
}
