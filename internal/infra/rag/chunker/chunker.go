// Package chunker implements C1: extracting text from PDF/DOCX/HTML/TXT
// bytes and splitting it into overlapping, ordinal-contiguous chunks.
package chunker

import (
	"context"
	"fmt"

	"github.com/ragserve/core/internal/domain/rag"
)

// Chunker is C1's concrete implementation. It extracts plain text from
// raw document bytes and delegates to semantic or size-based chunking
// depending on whether an Embedder is available and opts.UseSemantic.
type Chunker struct {
	embedder rag.Embedder
}

// New constructs a Chunker. embedder may be nil, in which case
// UseSemantic is always treated as false regardless of opts.
func New(embedder rag.Embedder) *Chunker {
	return &Chunker{embedder: embedder}
}

var _ rag.Chunker = (*Chunker)(nil)

// Chunk extracts text from data per contentType, normalizes it, and
// splits it into chunks. An empty document after extraction returns
// (nil, nil) — the caller treats this as "skipped with a warning" per
// spec.md §4.1, not a failure.
func (c *Chunker) Chunk(ctx context.Context, filename string, data []byte, contentType rag.ContentType, opts rag.ChunkOptions) ([]rag.ChunkCandidate, error) {
	opts = withDefaults(opts)

	raw, err := extractText(data, contentType)
	if err != nil {
		return nil, fmt.Errorf("extract %s: %w", filename, err)
	}
	text := normalizeText(raw)
	if text == "" {
		return nil, nil
	}

	if opts.UseSemantic && c.embedder != nil {
		candidates, err := semanticChunk(ctx, c.embedder, text, opts)
		if err != nil {
			return nil, fmt.Errorf("semantic chunk %s: %w", filename, err)
		}
		if len(candidates) > 0 {
			return candidates, nil
		}
	}
	return fallbackChunk(text, opts), nil
}

func withDefaults(opts rag.ChunkOptions) rag.ChunkOptions {
	if opts.MaxChunkChars <= 0 {
		opts.MaxChunkChars = 2800
	}
	if opts.MinChunkChars <= 0 {
		opts.MinChunkChars = 500
	}
	if opts.OverlapChars <= 0 {
		opts.OverlapChars = opts.MaxChunkChars / 10
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.75
	}
	return opts
}
