package embedder

import (
	"context"
	"hash/fnv"
	"strings"

	apperrors "github.com/ragserve/core/pkg/errors"

	"github.com/ragserve/core/internal/domain/rag"
)

// DeterministicEmbedder avoids network calls by hashing text into a
// pseudo-random vector. Used by the composition root when it has no chat
// client or no embedding model (an empty LLM API key does not select it:
// chat client construction fails first), and as the test seam for reproducible
// similarity behavior, carried near-verbatim from the teacher's
// embedder of the same name.
type DeterministicEmbedder struct {
	dim int
}

// NewDeterministicEmbedder constructs the embedder.
func NewDeterministicEmbedder(dim int) *DeterministicEmbedder {
	if dim <= 0 {
		dim = 768
	}
	return &DeterministicEmbedder{dim: dim}
}

var _ rag.Embedder = (*DeterministicEmbedder)(nil)

func (e *DeterministicEmbedder) Dimension() int { return e.dim }

func (e *DeterministicEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

func (e *DeterministicEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	vectors := make([][]float32, len(texts))
	for i, text := range texts {
		if strings.TrimSpace(text) == "" {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "cannot embed empty text", nil)
		}
		vector := make([]float32, e.dim)
		hash := fnv.New64a()
		_, _ = hash.Write([]byte(text))
		seed := hash.Sum64()
		for j := 0; j < e.dim; j++ {
			seed = seed*1099511628211 + 1469598103934665603
			vector[j] = float32(seed%997) / 997.0
		}
		vectors[i] = vector
	}
	return vectors, nil
}
