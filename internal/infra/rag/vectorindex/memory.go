package vectorindex

import (
	"context"
	"math"
	"sort"
	"sync"

	"github.com/ragserve/core/internal/domain/rag"
)

// MemoryVectorIndex is a brute-force cosine-similarity index used for
// tests and local dev when no Qdrant endpoint is configured.
type MemoryVectorIndex struct {
	mu    sync.RWMutex
	items map[string]rag.Vector
}

// NewMemoryVectorIndex constructs an empty index.
func NewMemoryVectorIndex() *MemoryVectorIndex {
	return &MemoryVectorIndex{items: make(map[string]rag.Vector)}
}

var _ rag.VectorIndex = (*MemoryVectorIndex)(nil)

func (idx *MemoryVectorIndex) Upsert(_ context.Context, vectors []rag.Vector) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	for _, v := range vectors {
		idx.items[v.EmbeddingRef] = v
	}
	return nil
}

func (idx *MemoryVectorIndex) Query(_ context.Context, vector []float32, topK int, restricts map[string][]string) ([]rag.ScoredVector, error) {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	var scored []rag.ScoredVector
	for _, v := range idx.items {
		if !matchesRestricts(v.Restricts, restricts) {
			continue
		}
		scored = append(scored, rag.ScoredVector{
			EmbeddingRef: v.EmbeddingRef,
			Score:        cosineSimilarity(vector, v.Values),
		})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		return scored[i].EmbeddingRef < scored[j].EmbeddingRef
	})
	if topK > 0 && len(scored) > topK {
		scored = scored[:topK]
	}
	return scored, nil
}

func (idx *MemoryVectorIndex) Ping(context.Context) error { return nil }

func matchesRestricts(have, want map[string][]string) bool {
	for key, values := range want {
		haveValues, ok := have[key]
		if !ok {
			return false
		}
		if !anyOverlap(haveValues, values) {
			return false
		}
	}
	return true
}

func anyOverlap(a, b []string) bool {
	set := make(map[string]struct{}, len(a))
	for _, v := range a {
		set[v] = struct{}{}
	}
	for _, v := range b {
		if _, ok := set[v]; ok {
			return true
		}
	}
	return false
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
