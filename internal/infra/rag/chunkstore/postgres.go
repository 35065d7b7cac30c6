// Package chunkstore implements C3: the durable mapping from chunk-id to
// Chunk. It owns chunk metadata exclusively; vectors live in C5.
package chunkstore

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	apperrors "github.com/ragserve/core/pkg/errors"

	"github.com/ragserve/core/internal/domain/rag"
)

// subBatchSize is spec.md §4.3's "batched into sub-batches of at most 500
// records" cap.
const subBatchSize = 500

// PostgresChunkStore persists chunk metadata via pgx, adapted from the
// teacher's PostgresChunkRepository with the embedding column removed —
// embedding-ref is now an opaque string pointing into the Vector Index
// (C5), not a pgvector column on this table.
type PostgresChunkStore struct {
	pool *pgxpool.Pool
}

// NewPostgresChunkStore constructs the store.
func NewPostgresChunkStore(pool *pgxpool.Pool) *PostgresChunkStore {
	return &PostgresChunkStore{pool: pool}
}

var _ rag.ChunkStore = (*PostgresChunkStore)(nil)

// UpsertMany is idempotent on chunk-id, sub-batched at 500 records, each
// sub-batch atomic from the caller's perspective (one pgx.Batch/SendBatch
// round-trip). Rejects any chunk with empty text (I-3, InvalidChunk).
func (s *PostgresChunkStore) UpsertMany(ctx context.Context, chunks []rag.Chunk) ([]string, error) {
	for _, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "chunk text must not be empty", nil)
		}
	}

	var ids []string
	for start := 0; start < len(chunks); start += subBatchSize {
		end := start + subBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}
		sub := chunks[start:end]
		if err := s.upsertBatch(ctx, sub); err != nil {
			return nil, apperrors.Wrap(apperrors.CodeChunkStoreUnavailable, "upsert chunk batch", err)
		}
		for _, c := range sub {
			ids = append(ids, c.ID)
		}
	}
	return ids, nil
}

func (s *PostgresChunkStore) upsertBatch(ctx context.Context, chunks []rag.Chunk) error {
	batch := &pgx.Batch{}
	for _, c := range chunks {
		restricts, err := json.Marshal(c.Restricts)
		if err != nil {
			return fmt.Errorf("marshal restricts: %w", err)
		}
		pii, err := json.Marshal(c.PIICategories)
		if err != nil {
			return fmt.Errorf("marshal pii categories: %w", err)
		}
		batch.Queue(`
			INSERT INTO rag_chunks (id, doc_id, ordinal, text, embedding_ref, pii_categories, restricts, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO UPDATE SET
				doc_id = EXCLUDED.doc_id,
				ordinal = EXCLUDED.ordinal,
				text = EXCLUDED.text,
				embedding_ref = EXCLUDED.embedding_ref,
				pii_categories = EXCLUDED.pii_categories,
				restricts = EXCLUDED.restricts
		`, c.ID, c.DocID, c.Ordinal, c.Text, c.EmbeddingRef, pii, restricts, c.CreatedAt)
	}
	return s.pool.SendBatch(ctx, batch).Close()
}

// GetMany preserves request order; missing ids produce a nil hole rather
// than an error.
func (s *PostgresChunkStore) GetMany(ctx context.Context, ids []string) ([]*rag.Chunk, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, doc_id, ordinal, text, embedding_ref, pii_categories, restricts, created_at
		FROM rag_chunks
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeChunkStoreUnavailable, "get many chunks", err)
	}
	defer rows.Close()

	found := make(map[string]*rag.Chunk, len(ids))
	for rows.Next() {
		var (
			c            rag.Chunk
			piiRaw       []byte
			restrictsRaw []byte
		)
		if err := rows.Scan(&c.ID, &c.DocID, &c.Ordinal, &c.Text, &c.EmbeddingRef, &piiRaw, &restrictsRaw, &c.CreatedAt); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(piiRaw, &c.PIICategories)
		_ = json.Unmarshal(restrictsRaw, &c.Restricts)
		found[c.ID] = &c
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	out := make([]*rag.Chunk, len(ids))
	for i, id := range ids {
		out[i] = found[id] // nil left as the "holes-marker" for missing ids
	}
	return out, nil
}

// DeleteByDoc removes every chunk belonging to a document.
func (s *PostgresChunkStore) DeleteByDoc(ctx context.Context, docID string) error {
	_, err := s.pool.Exec(ctx, `DELETE FROM rag_chunks WHERE doc_id = $1`, docID)
	if err != nil {
		return apperrors.Wrap(apperrors.CodeChunkStoreUnavailable, "delete by doc", err)
	}
	return nil
}

// Ping satisfies rag.Pinger for /readiness.
func (s *PostgresChunkStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}
