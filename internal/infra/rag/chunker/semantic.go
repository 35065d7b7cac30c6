package chunker

import (
	"context"
	"math"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/ragserve/core/internal/domain/rag"
)

// maxFanOut bounds concurrent sentence-embedding calls per §5's per-task
// fan-out limit.
const maxFanOut = 8

// semanticChunk implements spec.md §4.1's semantic-chunking algorithm:
// split into sentences, embed them in parallel batches of 32, walk left-to-right
// grouping sentences whose boundary similarity stays above the
// threshold, merge undersized chunks, then prepend overlap.
func semanticChunk(ctx context.Context, embedder rag.Embedder, text string, opts rag.ChunkOptions) ([]rag.ChunkCandidate, error) {
	sentences := splitSentences(text)
	if len(sentences) == 0 {
		return nil, nil
	}
	if len(sentences) == 1 {
		return []rag.ChunkCandidate{{Ordinal: 0, Text: sentences[0]}}, nil
	}

	vectors, err := embedSentences(ctx, embedder, sentences)
	if err != nil {
		return nil, err
	}

	groups := walkSentences(sentences, vectors, opts)
	groups = mergeUndersized(groups, vectors, opts.MinChunkChars)
	groups = applyOverlap(groups, sentences, opts.OverlapChars)

	out := make([]rag.ChunkCandidate, 0, len(groups))
	for i, g := range groups {
		text := strings.TrimSpace(strings.Join(g.texts, " "))
		if text == "" {
			continue
		}
		out = append(out, rag.ChunkCandidate{Ordinal: i, Text: text})
	}
	return out, nil
}

// embedSentences embeds every sentence, fanning out in bounded batches via
// errgroup rather than the teacher's single blocking Embed call, since
// sentence-level batches for a long document can exceed one request.
func embedSentences(ctx context.Context, embedder rag.Embedder, sentences []string) ([][]float32, error) {
	vectors := make([][]float32, len(sentences))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxFanOut)

	batchSize := 32
	for start := 0; start < len(sentences); start += batchSize {
		start := start
		end := start + batchSize
		if end > len(sentences) {
			end = len(sentences)
		}
		g.Go(func() error {
			embedded, err := embedder.Embed(gctx, sentences[start:end])
			if err != nil {
				return err
			}
			copy(vectors[start:end], embedded)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return vectors, nil
}

type sentenceGroup struct {
	indices []int
	texts   []string
}

func walkSentences(sentences []string, vectors [][]float32, opts rag.ChunkOptions) []sentenceGroup {
	var groups []sentenceGroup
	current := sentenceGroup{indices: []int{0}, texts: []string{sentences[0]}}
	currentLen := runeLen(sentences[0])

	for i := 1; i < len(sentences); i++ {
		sim := cosineSimilarity(vectors[i-1], vectors[i])
		nextLen := currentLen + 1 + runeLen(sentences[i])
		if sim < opts.SimilarityThreshold || nextLen > opts.MaxChunkChars {
			groups = append(groups, current)
			current = sentenceGroup{indices: []int{i}, texts: []string{sentences[i]}}
			currentLen = runeLen(sentences[i])
			continue
		}
		current.indices = append(current.indices, i)
		current.texts = append(current.texts, sentences[i])
		currentLen = nextLen
	}
	groups = append(groups, current)
	return groups
}

// mergeUndersized merges any group whose text length is below minChars
// into its neighbor with the higher boundary similarity (the cosine
// similarity between the sentence vectors straddling that boundary),
// ties resolved toward the previous group, per spec.md §4.1 step 4.
func mergeUndersized(groups []sentenceGroup, vectors [][]float32, minChars int) []sentenceGroup {
	changed := true
	for changed && len(groups) > 1 {
		changed = false
		for i, g := range groups {
			length := 0
			for _, t := range g.texts {
				length += runeLen(t)
			}
			if length >= minChars {
				continue
			}
			groups = mergeGroups(groups, i, mergeTarget(groups, vectors, i))
			changed = true
			break
		}
	}
	return groups
}

// mergeTarget picks which neighbor an undersized group i should merge
// into. Only one neighbor exists at either end of the group list; when
// both exist, the boundary with the higher cosine similarity wins and a
// tie favors the previous group.
func mergeTarget(groups []sentenceGroup, vectors [][]float32, i int) int {
	if i == 0 {
		return 1
	}
	if i == len(groups)-1 {
		return i - 1
	}

	prevBoundarySim := cosineSimilarity(
		vectors[lastIndex(groups[i-1])],
		vectors[firstIndex(groups[i])],
	)
	nextBoundarySim := cosineSimilarity(
		vectors[lastIndex(groups[i])],
		vectors[firstIndex(groups[i+1])],
	)
	if nextBoundarySim > prevBoundarySim {
		return i + 1
	}
	return i - 1
}

func firstIndex(g sentenceGroup) int { return g.indices[0] }
func lastIndex(g sentenceGroup) int  { return g.indices[len(g.indices)-1] }

func mergeGroups(groups []sentenceGroup, a, b int) []sentenceGroup {
	if a > b {
		a, b = b, a
	}
	merged := sentenceGroup{
		indices: append(append([]int{}, groups[a].indices...), groups[b].indices...),
		texts:   append(append([]string{}, groups[a].texts...), groups[b].texts...),
	}
	out := make([]sentenceGroup, 0, len(groups)-1)
	out = append(out, groups[:a]...)
	out = append(out, merged)
	out = append(out, groups[a+1:b]...)
	out = append(out, groups[b+1:]...)
	return out
}

// applyOverlap prepends the last overlapChars characters of chunk i to the
// front of chunk i+1, per spec.md §4.1 step 5.
func applyOverlap(groups []sentenceGroup, sentences []string, overlapChars int) []sentenceGroup {
	if overlapChars <= 0 {
		return groups
	}
	for i := len(groups) - 1; i > 0; i-- {
		prevText := strings.Join(groups[i-1].texts, " ")
		tail := tailRunes(prevText, overlapChars)
		if tail == "" {
			continue
		}
		groups[i].texts = append([]string{tail}, groups[i].texts...)
	}
	return groups
}

func tailRunes(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[len(runes)-n:])
}

func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(b) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, magA, magB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		magA += float64(a[i]) * float64(a[i])
		magB += float64(b[i]) * float64(b[i])
	}
	if magA == 0 || magB == 0 {
		return 0
	}
	return dot / (math.Sqrt(magA) * math.Sqrt(magB))
}
