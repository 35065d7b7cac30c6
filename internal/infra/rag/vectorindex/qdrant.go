// Package vectorindex implements C5: approximate nearest-neighbor search
// over embeddings, owned and stored separately from chunk metadata (C3)
// per the ownership split in spec.md §3 — this component tolerates a
// propagation window where a vector briefly lags its chunk record.
package vectorindex

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/qdrant/go-client/qdrant"

	apperrors "github.com/ragserve/core/pkg/errors"

	"github.com/ragserve/core/internal/domain/rag"
)

// QdrantVectorIndex stores and queries vectors in a Qdrant collection,
// grounded on Tangerg-lynx's qdrant VectorStore (CollectionExists /
// CreateCollection / Upsert / Query / Delete shape), with its
// AST-based filter-expression converter (ai/extensions/vectorstores/
// qdrant/converter.go) simplified down to a flat restricts map, since
// spec.md §4.5's contract is query(vector, top_k, restricts?), not a
// filter DSL.
type QdrantVectorIndex struct {
	client         *qdrant.Client
	collectionName string
	dim            int
	logger         *slog.Logger
}

// NewQdrantVectorIndex constructs the index and ensures the backing
// collection exists with cosine distance, matching the teacher's
// initialize() idiom.
func NewQdrantVectorIndex(ctx context.Context, client *qdrant.Client, collectionName string, dim int, logger *slog.Logger) (*QdrantVectorIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	idx := &QdrantVectorIndex{
		client:         client,
		collectionName: collectionName,
		dim:            dim,
		logger:         logger.With("component", "rag.vectorindex.qdrant"),
	}
	if err := idx.ensureCollection(ctx); err != nil {
		return nil, fmt.Errorf("ensure qdrant collection: %w", err)
	}
	return idx, nil
}

var _ rag.VectorIndex = (*QdrantVectorIndex)(nil)

func (idx *QdrantVectorIndex) ensureCollection(ctx context.Context) error {
	exists, err := idx.client.CollectionExists(ctx, idx.collectionName)
	if err != nil {
		return fmt.Errorf("check collection existence: %w", err)
	}
	if exists {
		return nil
	}
	return idx.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: idx.collectionName,
		VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
			Size:     uint64(idx.dim),
			Distance: qdrant.Distance_Cosine,
		}),
	})
}

// Upsert writes vectors keyed by EmbeddingRef, with Restricts carried as
// payload fields so Query can filter on them.
func (idx *QdrantVectorIndex) Upsert(ctx context.Context, vectors []rag.Vector) error {
	if len(vectors) == 0 {
		return nil
	}
	points := make([]*qdrant.PointStruct, 0, len(vectors))
	for _, v := range vectors {
		payload, err := qdrant.TryValueMap(restrictsToPayload(v.Restricts, v.CrowdingTag))
		if err != nil {
			return apperrors.Wrap(apperrors.CodeVectorIndexUnavailable, "build payload", err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(v.EmbeddingRef),
			Vectors: qdrant.NewVectors(v.Values...),
			Payload: payload,
		})
	}
	_, err := idx.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: idx.collectionName,
		Points:         points,
	})
	if err != nil {
		return apperrors.Wrap(apperrors.CodeVectorIndexUnavailable, "upsert vectors", err)
	}
	return nil
}

// Query performs top-K cosine search, optionally restricted to points
// whose payload fields match every key/value pair given.
func (idx *QdrantVectorIndex) Query(ctx context.Context, vector []float32, topK int, restricts map[string][]string) ([]rag.ScoredVector, error) {
	queryPoints := &qdrant.QueryPoints{
		CollectionName: idx.collectionName,
		Query:          qdrant.NewQuery(vector...),
		Limit:          qdrantLimit(topK),
		WithPayload:    qdrant.NewWithPayload(false),
	}
	if len(restricts) > 0 {
		queryPoints.Filter = buildFilter(restricts)
	}

	scored, err := idx.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, apperrors.Wrap(apperrors.CodeVectorIndexUnavailable, "query vectors", err)
	}

	out := make([]rag.ScoredVector, 0, len(scored))
	for _, p := range scored {
		out = append(out, rag.ScoredVector{
			EmbeddingRef: p.GetId().GetUuid(),
			Score:        float64(p.GetScore()),
		})
	}
	return out, nil
}

// Ping satisfies rag.Pinger for /readiness.
func (idx *QdrantVectorIndex) Ping(ctx context.Context) error {
	_, err := idx.client.CollectionExists(ctx, idx.collectionName)
	return err
}

func qdrantLimit(topK int) *uint64 {
	v := uint64(topK)
	return &v
}

// buildFilter turns a flat restricts map into a Must-match Qdrant
// filter: every key must match at least one of its listed values.
func buildFilter(restricts map[string][]string) *qdrant.Filter {
	var must []*qdrant.Condition
	for key, values := range restricts {
		if len(values) == 0 {
			continue
		}
		must = append(must, qdrant.NewMatchKeywords(key, values...))
	}
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

func restrictsToPayload(restricts map[string][]string, crowdingTag string) map[string]any {
	payload := make(map[string]any, len(restricts)+1)
	for key, values := range restricts {
		anyValues := make([]any, len(values))
		for i, v := range values {
			anyValues[i] = v
		}
		payload[key] = anyValues
	}
	if crowdingTag != "" {
		payload["crowding_tag"] = crowdingTag
	}
	return payload
}
