package main

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/qdrant/go-client/qdrant"
	"github.com/valkey-io/valkey-go"

	"github.com/ragserve/core/internal/domain/evaluation"
	"github.com/ragserve/core/internal/domain/identity"
	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/config"
	"github.com/ragserve/core/internal/infra/llm/chatgpt"
	"github.com/ragserve/core/internal/infra/rag/admission"
	"github.com/ragserve/core/internal/infra/rag/chunker"
	"github.com/ragserve/core/internal/infra/rag/chunkstore"
	"github.com/ragserve/core/internal/infra/rag/compressor"
	"github.com/ragserve/core/internal/infra/rag/embedder"
	"github.com/ragserve/core/internal/infra/rag/generator"
	"github.com/ragserve/core/internal/infra/rag/objectstore"
	"github.com/ragserve/core/internal/infra/rag/pii"
	"github.com/ragserve/core/internal/infra/rag/reranker"
	"github.com/ragserve/core/internal/infra/rag/sessionstore"
	"github.com/ragserve/core/internal/infra/rag/vectorindex"
)

func provideChatGPTClient(cfg *config.Config) (*chatgpt.Client, error) {
	return chatgpt.NewClient(cfg.RAG.LLM.APIKey, cfg.RAG.LLM.BaseURL)
}

func provideIdentityVerifier(cfg *config.Config) identity.Verifier {
	return identity.NewJWTVerifier(identity.Config{Secret: cfg.RAG.Identity.JWTSecret})
}

var (
	ragPoolOnce sync.Once
	ragPool     *pgxpool.Pool
)

// ragPostgresPool lazily opens the shared pool backing C3 (chunk
// metadata), memoizing the connection attempt the way the teacher's
// uploadPostgresPool does for its own domain.
func ragPostgresPool(cfg *config.Config, logger *slog.Logger) *pgxpool.Pool {
	ragPoolOnce.Do(func() {
		dsn := strings.TrimSpace(cfg.RAG.Postgres.DSN)
		if dsn == "" {
			logger.Info("rag postgres dsn not set, using memory chunk store")
			return
		}
		poolConfig, err := pgxpool.ParseConfig(dsn)
		if err != nil {
			logger.Error("invalid rag postgres dsn, using memory chunk store", "error", err)
			return
		}
		if cfg.RAG.Postgres.MaxConns > 0 {
			poolConfig.MaxConns = cfg.RAG.Postgres.MaxConns
		}
		if cfg.RAG.Postgres.MinConns > 0 {
			poolConfig.MinConns = cfg.RAG.Postgres.MinConns
		}
		pool, err := pgxpool.NewWithConfig(context.Background(), poolConfig)
		if err != nil {
			logger.Error("failed to initialize rag postgres pool, using memory chunk store", "error", err)
			return
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := pool.Ping(ctx); err != nil {
			logger.Error("rag postgres ping failed, using memory chunk store", "error", err)
			pool.Close()
			return
		}
		logger.Info("rag postgres chunk store enabled")
		ragPool = pool
	})
	return ragPool
}

// provideChunkStore backs C3. Falls back to the in-memory store when no
// DSN is configured or the backing Postgres instance is unreachable.
func provideChunkStore(cfg *config.Config, logger *slog.Logger) rag.ChunkStore {
	if pool := ragPostgresPool(cfg, logger); pool != nil {
		return chunkstore.NewPostgresChunkStore(pool)
	}
	return chunkstore.NewMemoryChunkStore()
}

// provideObjectStore backs C4, falling back to memory when Minio is not
// fully configured or unreachable, mirroring the teacher's
// provideUploadStorage idiom.
func provideObjectStore(cfg *config.Config, logger *slog.Logger) rag.ObjectStore {
	endpoint := strings.TrimSpace(cfg.RAG.Minio.Endpoint)
	accessKey := strings.TrimSpace(cfg.RAG.Minio.AccessKey)
	secretKey := strings.TrimSpace(cfg.RAG.Minio.SecretKey)
	bucket := strings.TrimSpace(cfg.RAG.Minio.Bucket)
	region := strings.TrimSpace(cfg.RAG.Minio.Region)

	if endpoint == "" || accessKey == "" || secretKey == "" || bucket == "" {
		logger.Info("rag object storage not fully configured, using memory object store")
		return objectstore.NewMemoryObjectStore()
	}
	store, err := objectstore.NewMinioObjectStore(endpoint, accessKey, secretKey, bucket, region, logger)
	if err != nil {
		logger.Error("failed to initialize minio object store, using memory object store", "error", err)
		return objectstore.NewMemoryObjectStore()
	}
	logger.Info("rag minio object store enabled", "endpoint", endpoint, "bucket", bucket)
	return store
}

// provideVectorIndex backs C5, falling back to memory when Qdrant is
// disabled or unreachable at startup.
func provideVectorIndex(cfg *config.Config, logger *slog.Logger) rag.VectorIndex {
	fallback := vectorindex.NewMemoryVectorIndex()
	if !cfg.RAG.Qdrant.Enabled {
		logger.Info("qdrant disabled, using memory vector index")
		return fallback
	}
	address := strings.TrimSpace(cfg.RAG.Qdrant.Address)
	if address == "" {
		logger.Warn("qdrant enabled but address unset, using memory vector index")
		return fallback
	}
	host, port := splitHostPort(address, 6334)
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.RAG.Qdrant.APIKey,
		UseTLS: cfg.RAG.Qdrant.UseTLS,
	})
	if err != nil {
		logger.Error("failed to create qdrant client, using memory vector index", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	idx, err := vectorindex.NewQdrantVectorIndex(ctx, client, cfg.RAG.Qdrant.CollectionName, cfg.RAG.Embed.Dim, logger)
	if err != nil {
		logger.Error("failed to initialize qdrant vector index, using memory vector index", "error", err)
		return fallback
	}
	logger.Info("rag qdrant vector index enabled", "address", address, "collection", cfg.RAG.Qdrant.CollectionName)
	return idx
}

func splitHostPort(address string, defaultPort int) (string, int) {
	host, portStr, found := strings.Cut(address, ":")
	if !found || portStr == "" {
		return host, defaultPort
	}
	port, err := strconv.Atoi(portStr)
	if err != nil {
		return host, defaultPort
	}
	return host, port
}

// provideSessionStore backs C10, falling back to memory when Valkey is
// disabled or unreachable, mirroring the teacher's provideFAQStore idiom.
func provideSessionStore(cfg *config.Config, logger *slog.Logger) rag.SessionStore {
	fallback := sessionstore.NewMemoryStore()
	if !cfg.RAG.Redis.Enabled {
		logger.Info("valkey disabled, using memory session store")
		return fallback
	}
	opt, err := buildValkeyOptions(cfg.RAG.Redis.Addr)
	if err != nil {
		logger.Error("invalid valkey configuration, falling back to memory session store", "error", err)
		return fallback
	}
	client, err := valkey.NewClient(opt)
	if err != nil {
		logger.Error("failed to create valkey client, falling back to memory session store", "error", err)
		return fallback
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Do(ctx, client.B().Ping().Build()).Error(); err != nil {
		logger.Error("valkey ping failed, falling back to memory session store", "error", err)
		return fallback
	}
	logger.Info("rag valkey session store enabled", "addr", cfg.RAG.Redis.Addr)
	return sessionstore.NewValkeyStore(client, "rag:session")
}

func buildValkeyOptions(addr string) (valkey.ClientOption, error) {
	var (
		opt valkey.ClientOption
		err error
	)
	addr = strings.TrimSpace(addr)
	if strings.Contains(addr, "://") {
		opt, err = valkey.ParseURL(addr)
	} else {
		opt = valkey.ClientOption{InitAddress: []string{addr}}
	}
	if err != nil {
		return valkey.ClientOption{}, err
	}
	return opt, nil
}

// provideEmbedder backs C2: an OpenAI-compatible embedder when a chat
// client and embedding model are configured, otherwise a deterministic
// fallback suitable for local development and tests.
func provideEmbedder(client *chatgpt.Client, cfg *config.Config, logger *slog.Logger) rag.Embedder {
	model := strings.TrimSpace(cfg.RAG.LLM.EmbeddingModel)
	if client != nil && model != "" {
		return embedder.NewOpenAIEmbedder(client, model, cfg.RAG.Embed.Dim, logger)
	}
	logger.Warn("embedding client unavailable, using deterministic embedder")
	return embedder.NewDeterministicEmbedder(cfg.RAG.Embed.Dim)
}

func provideChunker(embedder rag.Embedder) rag.Chunker {
	return chunker.New(embedder)
}

func providePIIRedactor() rag.PIIRedactor {
	return pii.NewRedactor()
}

func provideReranker(embedder rag.Embedder) rag.Reranker {
	return reranker.New(embedder)
}

func provideCompressor() rag.ContextCompressor {
	return compressor.New()
}

// provideGenerator backs C9, using the configured chat client and
// model/timeout settings.
func provideGenerator(client *chatgpt.Client, cfg *config.Config) rag.Generator {
	return generator.New(client, cfg.RAG.LLM.Model, cfg.RAG.Generation.Timeout)
}

func provideAdmissionController(cfg *config.Config) rag.AdmissionController {
	return admission.New(cfg.RAG.Admission.RateLimitPerMinute, cfg.RAG.Admission.MaxRequestBytes, cfg.RAG.Admission.MaxFilesPerRequest)
}

func provideIngestConfig(cfg *config.Config) rag.IngestConfig {
	return rag.IngestConfig{
		ChunkOptions: rag.ChunkOptions{
			MaxChunkChars:       cfg.RAG.Chunk.MaxChars,
			MinChunkChars:       cfg.RAG.Chunk.MinChars,
			OverlapChars:        cfg.RAG.Chunk.OverlapChars,
			UseSemantic:         true,
			SimilarityThreshold: cfg.RAG.Chunk.SimilarityThreshold,
		},
	}
}

func provideIngestOrchestrator(cfg rag.IngestConfig, chunker rag.Chunker, embedder rag.Embedder, chunks rag.ChunkStore, objects rag.ObjectStore, vectors rag.VectorIndex, redactor rag.PIIRedactor, logger *slog.Logger) *rag.IngestOrchestrator {
	return rag.NewIngestOrchestrator(cfg, chunker, embedder, chunks, objects, vectors, redactor, logger)
}

func provideQueryConfig(cfg *config.Config) rag.QueryConfig {
	return rag.QueryConfig{
		TopKDefault:         cfg.RAG.Retrieval.TopKDefault,
		TopKMax:             cfg.RAG.Retrieval.TopKMax,
		CandidateMultiplier: cfg.RAG.Retrieval.CandidateMultiplier,
		MaxContextTokens:    cfg.RAG.Generation.ContextTokenBudget,
		RecentMessages:      cfg.RAG.Session.RecentMessages,
	}
}

func provideQueryOrchestrator(cfg rag.QueryConfig, embedder rag.Embedder, chunks rag.ChunkStore, vectors rag.VectorIndex, rr rag.Reranker, cmp rag.ContextCompressor, gen rag.Generator, sessions rag.SessionStore, logger *slog.Logger) *rag.QueryOrchestrator {
	return rag.NewQueryOrchestrator(cfg, embedder, chunks, vectors, rr, cmp, gen, sessions, logger)
}

func provideEvaluator() *evaluation.CompositeEvaluator {
	return evaluation.NewCompositeEvaluator()
}

// provideDependencyChecks exposes the backends that implement
// rag.Pinger to the /readiness handler. The memory fallbacks implement
// Ping too, so they appear here and always report ok.
func provideDependencyChecks(chunks rag.ChunkStore, objects rag.ObjectStore, vectors rag.VectorIndex, sessions rag.SessionStore) map[string]rag.Pinger {
	checks := make(map[string]rag.Pinger)
	if p, ok := chunks.(rag.Pinger); ok {
		checks["chunk_store"] = p
	}
	if p, ok := objects.(rag.Pinger); ok {
		checks["object_store"] = p
	}
	if p, ok := vectors.(rag.Pinger); ok {
		checks["vector_index"] = p
	}
	if p, ok := sessions.(rag.Pinger); ok {
		checks["session_store"] = p
	}
	return checks
}
