package rag

import (
	"context"
	"log/slog"

	apperrors "github.com/ragserve/core/pkg/errors"
)

// ReconcileResult reports the outcome of one Reconciler pass over a set
// of chunk-ids, per spec.md §4.12's C3/C5 orphan-reconciliation note.
type ReconcileResult struct {
	Checked  int
	Repaired []string
	Missing  []string
}

// Reconciler implements spec.md §4.12's "background reconciliation loop
// or explicit admin tool" as the latter: given chunk-ids an operator
// already knows were indexed around a PARTIAL_FAILURE, it re-derives
// each chunk's vector and re-upserts it into C5 whenever C5 doesn't
// already resolve that chunk's own embedding back to its embedding-ref
// (the same coupling check §8 testable property 2 names).
type Reconciler struct {
	chunks   ChunkStore
	vectors  VectorIndex
	embedder Embedder
	logger   *slog.Logger
}

// NewReconciler wires a Reconciler from C3, C5 and C2.
func NewReconciler(chunks ChunkStore, vectors VectorIndex, embedder Embedder, logger *slog.Logger) *Reconciler {
	return &Reconciler{chunks: chunks, vectors: vectors, embedder: embedder, logger: logger.With("component", "rag.reconciler")}
}

// Reconcile checks each chunk-id and repairs C5 if it is missing or
// stale. Chunks absent from C3 entirely are reported, not repaired —
// there is nothing to re-index without the source text.
func (r *Reconciler) Reconcile(ctx context.Context, chunkIDs []string) (ReconcileResult, error) {
	var result ReconcileResult
	if len(chunkIDs) == 0 {
		return result, nil
	}

	stored, err := r.chunks.GetMany(ctx, chunkIDs)
	if err != nil {
		return result, stageError(apperrors.CodeChunkStoreUnavailable, "reconcile_lookup", err)
	}

	for i, chunk := range stored {
		result.Checked++
		if chunk == nil {
			result.Missing = append(result.Missing, chunkIDs[i])
			r.logger.Warn("reconcile: chunk missing from C3", "chunk_id", chunkIDs[i])
			continue
		}

		vec, err := r.embedder.EmbedOne(ctx, chunk.Text)
		if err != nil {
			return result, stageError(apperrors.CodeEmbeddingUnavailable, "reconcile_embed", err)
		}

		scored, err := r.vectors.Query(ctx, vec, 1, nil)
		if err != nil {
			return result, stageError(apperrors.CodeVectorIndexUnavailable, "reconcile_probe", err)
		}

		if len(scored) > 0 && scored[0].EmbeddingRef == chunk.EmbeddingRef {
			continue
		}

		if err := r.vectors.Upsert(ctx, []Vector{{
			EmbeddingRef: chunk.EmbeddingRef,
			Values:       vec,
			Restricts:    chunk.Restricts,
			CrowdingTag:  chunk.DocID,
		}}); err != nil {
			return result, stageError(apperrors.CodeVectorIndexUnavailable, "reconcile_upsert", err)
		}
		result.Repaired = append(result.Repaired, chunk.ID)
		r.logger.Info("reconcile: repaired orphan chunk", "chunk_id", chunk.ID, "doc_id", chunk.DocID)
	}

	return result, nil
}
