package rag

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"math/rand"
	"time"

	"github.com/google/uuid"

	apperrors "github.com/ragserve/core/pkg/errors"
	"github.com/ragserve/core/pkg/util"
)

// IngestConfig drives the Ingest Orchestrator (C12).
type IngestConfig struct {
	ChunkOptions ChunkOptions
	RetryMax     int
	RetryBase    time.Duration
}

// IngestFile is one file within an /ingest submission.
type IngestFile struct {
	Filename    string
	Content     []byte
	ContentType ContentType
	UploaderID  string
}

// DocStatus is the terminal state of one document's ingest, per §4.12's
// state machine.
type DocStatus string

const (
	DocStatusComplete       DocStatus = "COMPLETE"
	DocStatusRejected       DocStatus = "REJECTED"
	DocStatusPartialFailure DocStatus = "PARTIAL_FAILURE"
)

// DocIngestResult reports one document's outcome.
type DocIngestResult struct {
	DocID    string
	Filename string
	Status   DocStatus
	ChunkIDs []string
	Reason   string
}

// IngestResponse is the aggregate /ingest response.
type IngestResponse struct {
	Documents []DocIngestResult
}

// IngestOrchestrator runs C12's state machine: RECEIVED -> PARSED ->
// CHUNKED -> PII_TAGGED -> EMBEDDED -> PERSISTED -> INDEXED -> COMPLETE,
// with PARTIAL_FAILURE escape hatches from EMBEDDED/PERSISTED/INDEXED.
type IngestOrchestrator struct {
	cfg      IngestConfig
	chunker  Chunker
	embedder Embedder
	chunks   ChunkStore
	objects  ObjectStore
	vectors  VectorIndex
	pii      PIIRedactor
	logger   *slog.Logger
}

// NewIngestOrchestrator wires C12 from its component dependencies.
func NewIngestOrchestrator(cfg IngestConfig, chunker Chunker, embedder Embedder, chunks ChunkStore, objects ObjectStore, vectors VectorIndex, pii PIIRedactor, logger *slog.Logger) *IngestOrchestrator {
	if cfg.RetryMax <= 0 {
		cfg.RetryMax = 3
	}
	if cfg.RetryBase <= 0 {
		cfg.RetryBase = 100 * time.Millisecond
	}
	return &IngestOrchestrator{
		cfg: cfg, chunker: chunker, embedder: embedder, chunks: chunks,
		objects: objects, vectors: vectors, pii: pii,
		logger: logger.With("component", "rag.ingest_orchestrator"),
	}
}

// Ingest processes every file independently; the aggregate call is
// successful iff at least one document indexed end-to-end (§4.12).
func (o *IngestOrchestrator) Ingest(ctx context.Context, files []IngestFile) (IngestResponse, error) {
	results := make([]DocIngestResult, 0, len(files))
	anySucceeded := false

	for _, f := range files {
		result := o.ingestOne(ctx, f)
		if result.Status == DocStatusComplete {
			anySucceeded = true
		}
		results = append(results, result)
	}

	if len(files) > 0 && !anySucceeded {
		return IngestResponse{Documents: results}, apperrors.Wrap(apperrors.CodePartialFailure, "no document indexed end-to-end", nil)
	}
	return IngestResponse{Documents: results}, nil
}

func (o *IngestOrchestrator) ingestOne(ctx context.Context, f IngestFile) DocIngestResult {
	docID := contentDocID(f.Content)
	result := DocIngestResult{DocID: docID, Filename: f.Filename}

	// PARSED: extract+chunk happens inside the chunker (C1 owns parse+split).
	candidates, err := o.chunker.Chunk(ctx, f.Filename, f.Content, f.ContentType, o.cfg.ChunkOptions)
	if err != nil {
		o.logger.Warn("parse/chunk failed", "doc_id", docID, "filename", f.Filename, "error", err)
		result.Status = DocStatusRejected
		result.Reason = "unable to parse document"
		return result
	}
	if len(candidates) == 0 {
		result.Status = DocStatusRejected
		result.Reason = "document produced no content"
		return result
	}

	// CHUNKED -> PII_TAGGED: tag each candidate's PII categories before
	// anything leaves the process boundary.
	chunks := make([]Chunk, len(candidates))
	texts := make([]string, len(candidates))
	for i, c := range candidates {
		detection := o.pii.Detect(c.Text)
		chunks[i] = Chunk{
			ID:            uuid.NewSHA1(uuid.NameSpaceOID, []byte(fmt.Sprintf("%s/%d", docID, c.Ordinal))).String(),
			DocID:         docID,
			Ordinal:       c.Ordinal,
			Text:          c.Text,
			PIICategories: detection.Categories,
			Restricts:     map[string][]string{"doc_id": {docID}},
			CreatedAt:     util.NowUTC(),
		}
		texts[i] = c.Text
	}

	// EMBEDDED
	embeddings, err := o.retryEmbed(ctx, texts)
	if err != nil {
		o.logger.Warn("embed failed", "doc_id", docID, "error", err)
		result.Status = DocStatusPartialFailure
		result.Reason = "embedding failed"
		return result
	}
	for i := range chunks {
		chunks[i].EmbeddingRef = chunks[i].ID
	}

	// object store: raw bytes, best-effort (not part of the retrievability
	// contract but required for re-extraction/audit).
	if o.objects != nil {
		if _, err := o.objects.Put(ctx, docID, f.Content, f.ContentType, ObjectMetadata{
			UploaderID: f.UploaderID, OriginalFilename: f.Filename, ContentType: f.ContentType,
			SHA256: docID,
		}); err != nil {
			o.logger.Warn("object store put failed", "doc_id", docID, "error", err)
		}
	}

	// PERSISTED: C3 first, per §4.12's atomicity strategy.
	chunkIDs, err := o.chunks.UpsertMany(ctx, chunks)
	if err != nil {
		o.logger.Warn("chunk persist failed", "doc_id", docID, "error", err)
		result.Status = DocStatusPartialFailure
		result.Reason = "persisting chunks failed"
		return result
	}
	result.ChunkIDs = chunkIDs

	// INDEXED: C5, never rolled back on failure — orphan chunks remain
	// retrievable by id and are reconciled out-of-band.
	vectors := make([]Vector, len(chunks))
	for i, c := range chunks {
		vectors[i] = Vector{EmbeddingRef: c.EmbeddingRef, Values: embeddings[i], Restricts: c.Restricts, CrowdingTag: docID}
	}
	if err := o.retryIndex(ctx, vectors); err != nil {
		o.logger.Warn("index upsert failed", "doc_id", docID, "error", err)
		result.Status = DocStatusPartialFailure
		result.Reason = "indexing failed"
		return result
	}

	result.Status = DocStatusComplete
	return result
}

// retryEmbed retries the embedding call up to cfg.RetryMax times with
// jittered exponential backoff, per §4.12's retry policy.
func (o *IngestOrchestrator) retryEmbed(ctx context.Context, texts []string) ([][]float32, error) {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, o.cfg.RetryBase, attempt); err != nil {
				return nil, err
			}
		}
		out, err := o.embedder.Embed(ctx, texts)
		if err == nil {
			return out, nil
		}
		lastErr = err
	}
	return nil, fmt.Errorf("embed after %d attempts: %w", o.cfg.RetryMax+1, lastErr)
}

// retryIndex retries the vector upsert with the same backoff schedule.
func (o *IngestOrchestrator) retryIndex(ctx context.Context, vectors []Vector) error {
	var lastErr error
	for attempt := 0; attempt <= o.cfg.RetryMax; attempt++ {
		if attempt > 0 {
			if err := sleepBackoff(ctx, o.cfg.RetryBase, attempt); err != nil {
				return err
			}
		}
		if err := o.vectors.Upsert(ctx, vectors); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	return fmt.Errorf("index upsert after %d attempts: %w", o.cfg.RetryMax+1, lastErr)
}

// backoffDelay is base * 4^(attempt-1) so a 100ms RetryBase produces the
// 100ms/400ms/1600ms schedule spec.md §4.12 pins.
func backoffDelay(base time.Duration, attempt int) time.Duration {
	return base * time.Duration(1<<uint(2*(attempt-1)))
}

// sleepBackoff waits out one retry delay, jittered +/-20% the same way
// embedder/openai.go's fixed retryDelays table is.
func sleepBackoff(ctx context.Context, base time.Duration, attempt int) error {
	delay := backoffDelay(base, attempt)
	jitter := time.Duration(float64(delay) * (rand.Float64()*0.4 - 0.2))
	timer := time.NewTimer(delay + jitter)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// contentDocID derives a stable doc-id from content bytes so re-ingesting
// identical bytes is idempotent (§8 testable property 3, §5 ordering
// guarantees).
func contentDocID(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
