package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config aggregates runtime configuration used across the service.
type Config struct {
	HTTP HTTPConfig `yaml:"http"`
	RAG  RAGConfig  `yaml:"rag"`
}

// HTTPConfig controls server level behavior.
type HTTPConfig struct {
	Address        string          `yaml:"address"`
	ReadTimeout    time.Duration   `yaml:"readTimeout"`
	WriteTimeout   time.Duration   `yaml:"writeTimeout"`
	AllowedOrigins []string        `yaml:"allowedOrigins"`
	RateLimit      RateLimitConfig `yaml:"rateLimit"`
	Retry          RetryConfig     `yaml:"retry"`
}

// RateLimitConfig drives the request limiting middleware. This is the
// HTTP-layer limiter; the Admission Controller (C11) keeps its own
// per-client_key buckets at the domain layer (see RAG.Admission).
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	RequestsPerMinute int  `yaml:"requestsPerMinute"`
	Burst             int  `yaml:"burst"`
}

// RetryConfig configures best-effort retries for idempotent requests.
type RetryConfig struct {
	Enabled     bool          `yaml:"enabled"`
	MaxAttempts int           `yaml:"maxAttempts"`
	BaseBackoff time.Duration `yaml:"baseBackoff"`
	Exclude     []string      `yaml:"exclude"`
}

// RedisConfig contains connection information for Valkey-compatible
// cache/session storage.
type RedisConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// PostgresConfig contains DSN and pooling settings.
type PostgresConfig struct {
	DSN      string `yaml:"dsn"`
	MaxConns int32  `yaml:"maxConns"`
	MinConns int32  `yaml:"minConns"`
}

// RAGConfig is the root of every §6-enumerated setting for the
// ingest/query core.
type RAGConfig struct {
	Admission  AdmissionConfig  `yaml:"admission"`
	Chunk      ChunkConfig      `yaml:"chunk"`
	Embed      EmbedConfig      `yaml:"embed"`
	Retrieval  RetrievalConfig  `yaml:"retrieval"`
	Generation GenerationConfig `yaml:"generation"`
	Deadlines  DeadlineConfig   `yaml:"deadlines"`
	Session    SessionConfig    `yaml:"session"`
	LLM        LLMConfig        `yaml:"llm"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	Redis      RedisConfig      `yaml:"redis"`
	Qdrant     QdrantConfig     `yaml:"qdrant"`
	Minio      MinioConfig      `yaml:"minio"`
	Identity   IdentityConfig   `yaml:"identity"`
}

// IdentityConfig verifies the bearer tokens issued by the
// authentication collaborator (see internal/domain/identity).
type IdentityConfig struct {
	JWTSecret string `yaml:"jwtSecret"`
}

// AdmissionConfig backs C11.
type AdmissionConfig struct {
	RateLimitPerMinute int   `yaml:"rateLimitPerMinute"`
	MaxRequestBytes    int64 `yaml:"maxRequestBytes"`
	MaxFilesPerRequest int   `yaml:"maxFilesPerRequest"`
}

// ChunkConfig backs C1.
type ChunkConfig struct {
	MaxChars            int     `yaml:"maxChars"`
	MinChars            int     `yaml:"minChars"`
	OverlapChars        int     `yaml:"overlapChars"`
	SimilarityThreshold float64 `yaml:"similarityThreshold"`
}

// EmbedConfig backs C2.
type EmbedConfig struct {
	Dim       int           `yaml:"dim"`
	BatchMax  int           `yaml:"batchMax"`
	Timeout   time.Duration `yaml:"timeout"`
}

// RetrievalConfig backs C13's topK/candidate parameters.
type RetrievalConfig struct {
	TopKDefault        int `yaml:"topKDefault"`
	TopKMax            int `yaml:"topKMax"`
	CandidateMultiplier int `yaml:"candidateMultiplier"`
}

// GenerationConfig backs C9.
type GenerationConfig struct {
	MaxGenTokens       int           `yaml:"maxGenTokens"`
	ContextTokenBudget int           `yaml:"contextTokenBudget"`
	Timeout            time.Duration `yaml:"timeout"`
}

// DeadlineConfig backs §5's per-request deadlines.
type DeadlineConfig struct {
	Query  time.Duration `yaml:"query"`
	Ingest time.Duration `yaml:"ingest"`
}

// SessionConfig backs C10.
type SessionConfig struct {
	TTLDays        int `yaml:"ttlDays"`
	RecentMessages int `yaml:"recentMessages"`
}

// LLMConfig contains the OpenAI-compatible chat/embedding settings.
type LLMConfig struct {
	APIKey         string  `yaml:"apiKey"`
	BaseURL        string  `yaml:"baseUrl"`
	Model          string  `yaml:"model"`
	EmbeddingModel string  `yaml:"embeddingModel"`
	Temperature    float32 `yaml:"temperature"`
}

// QdrantConfig backs C5.
type QdrantConfig struct {
	Enabled        bool   `yaml:"enabled"`
	Address        string `yaml:"address"`
	CollectionName string `yaml:"collectionName"`
	APIKey         string `yaml:"apiKey"`
	UseTLS         bool   `yaml:"useTls"`
}

// MinioConfig backs C4.
type MinioConfig struct {
	Endpoint  string `yaml:"endpoint"`
	AccessKey string `yaml:"accessKey"`
	SecretKey string `yaml:"secretKey"`
	Bucket    string `yaml:"bucket"`
	Region    string `yaml:"region"`
	UseSSL    bool   `yaml:"useSsl"`
}

// Load reads configuration from a YAML file and environment variables.
func Load() (*Config, error) {
	cfg := defaultConfig()

	if path := os.Getenv("CONFIG_PATH"); path != "" {
		if err := hydrateFromFile(cfg, path); err != nil {
			return nil, err
		}
	} else if _, err := os.Stat("configs/config.yaml"); err == nil {
		if err := hydrateFromFile(cfg, "configs/config.yaml"); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return cfg, nil
}

func hydrateFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HTTP_ADDRESS"); v != "" {
		cfg.HTTP.Address = v
	}
	if v := os.Getenv("HTTP_READ_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.ReadTimeout = parsed
		}
	}
	if v := os.Getenv("HTTP_WRITE_TIMEOUT"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.WriteTimeout = parsed
		}
	}
	if v := os.Getenv("HTTP_ALLOWED_ORIGINS"); v != "" {
		cfg.HTTP.AllowedOrigins = splitAndTrim(v)
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_ENABLED"); v != "" {
		cfg.HTTP.RateLimit.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_RPM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.RequestsPerMinute = parsed
		}
	}
	if v := os.Getenv("HTTP_RATE_LIMIT_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.RateLimit.Burst = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_ENABLED"); v != "" {
		cfg.HTTP.Retry.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("HTTP_RETRY_MAX_ATTEMPTS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.HTTP.Retry.MaxAttempts = parsed
		}
	}
	if v := os.Getenv("HTTP_RETRY_BASE_BACKOFF"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.HTTP.Retry.BaseBackoff = parsed
		}
	}
	if v := os.Getenv("MAX_REQUEST_BYTES"); v != "" {
		if parsed, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.RAG.Admission.MaxRequestBytes = parsed
		}
	}
	if v := os.Getenv("MAX_FILES_PER_REQUEST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Admission.MaxFilesPerRequest = parsed
		}
	}
	if v := os.Getenv("RATE_LIMIT_PER_MINUTE"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Admission.RateLimitPerMinute = parsed
		}
	}
	if v := os.Getenv("CHUNK_MAX_CHARS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Chunk.MaxChars = parsed
		}
	}
	if v := os.Getenv("CHUNK_MIN_CHARS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Chunk.MinChars = parsed
		}
	}
	if v := os.Getenv("CHUNK_OVERLAP_CHARS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Chunk.OverlapChars = parsed
		}
	}
	if v := os.Getenv("SEMANTIC_SIMILARITY_THRESHOLD"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.RAG.Chunk.SimilarityThreshold = parsed
		}
	}
	if v := os.Getenv("EMBED_DIM"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Embed.Dim = parsed
		}
	}
	if v := os.Getenv("EMBED_BATCH_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Embed.BatchMax = parsed
		}
	}
	if v := os.Getenv("EMBED_TIMEOUT_S"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Embed.Timeout = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("TOPK_DEFAULT"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Retrieval.TopKDefault = parsed
		}
	}
	if v := os.Getenv("TOPK_MAX"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Retrieval.TopKMax = parsed
		}
	}
	if v := os.Getenv("CANDIDATE_MULTIPLIER"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Retrieval.CandidateMultiplier = parsed
		}
	}
	if v := os.Getenv("MAX_GEN_TOKENS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Generation.MaxGenTokens = parsed
		}
	}
	if v := os.Getenv("CONTEXT_TOKEN_BUDGET"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Generation.ContextTokenBudget = parsed
		}
	}
	if v := os.Getenv("GEN_TIMEOUT_S"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Generation.Timeout = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("QUERY_DEADLINE_S"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Deadlines.Query = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("INGEST_DEADLINE_S"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Deadlines.Ingest = time.Duration(parsed) * time.Second
		}
	}
	if v := os.Getenv("SESSION_TTL_DAYS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Session.TTLDays = parsed
		}
	}
	if v := os.Getenv("RECENT_MESSAGES"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Session.RecentMessages = parsed
		}
	}
	if v := os.Getenv("LLM_API_KEY"); v != "" {
		cfg.RAG.LLM.APIKey = v
	}
	if v := os.Getenv("LLM_BASE_URL"); v != "" {
		cfg.RAG.LLM.BaseURL = v
	}
	if v := os.Getenv("LLM_MODEL"); v != "" {
		cfg.RAG.LLM.Model = v
	}
	if v := os.Getenv("LLM_EMBEDDING_MODEL"); v != "" {
		cfg.RAG.LLM.EmbeddingModel = v
	}
	if v := os.Getenv("LLM_TEMPERATURE"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 32); err == nil {
			cfg.RAG.LLM.Temperature = float32(parsed)
		}
	}
	if v := os.Getenv("RAG_POSTGRES_DSN"); v != "" {
		cfg.RAG.Postgres.DSN = v
	}
	if v := os.Getenv("RAG_POSTGRES_MAX_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Postgres.MaxConns = int32(parsed)
		}
	}
	if v := os.Getenv("RAG_POSTGRES_MIN_CONNS"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			cfg.RAG.Postgres.MinConns = int32(parsed)
		}
	}
	if v := os.Getenv("RAG_REDIS_ENABLED"); v != "" {
		cfg.RAG.Redis.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("RAG_REDIS_ADDR"); v != "" {
		cfg.RAG.Redis.Addr = v
	}
	if v := os.Getenv("QDRANT_ENABLED"); v != "" {
		cfg.RAG.Qdrant.Enabled = v == "1" || strings.EqualFold(v, "true")
	}
	if v := os.Getenv("QDRANT_ADDRESS"); v != "" {
		cfg.RAG.Qdrant.Address = v
	}
	if v := os.Getenv("QDRANT_COLLECTION"); v != "" {
		cfg.RAG.Qdrant.CollectionName = v
	}
	if v := os.Getenv("QDRANT_API_KEY"); v != "" {
		cfg.RAG.Qdrant.APIKey = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.RAG.Minio.Endpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.RAG.Minio.AccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.RAG.Minio.SecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.RAG.Minio.Bucket = v
	}
	if v := os.Getenv("MINIO_REGION"); v != "" {
		cfg.RAG.Minio.Region = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.RAG.Identity.JWTSecret = v
	}
}

func defaultConfig() *Config {
	return &Config{
		HTTP: HTTPConfig{
			Address:        ":8080",
			AllowedOrigins: []string{"*"},
			RateLimit: RateLimitConfig{
				Enabled:           true,
				RequestsPerMinute: 60,
				Burst:             20,
			},
			Retry: RetryConfig{
				Enabled:     true,
				MaxAttempts: 3,
				BaseBackoff: 150 * time.Millisecond,
				Exclude:     []string{"/api/v1/ingest"},
			},
		},
		RAG: RAGConfig{
			Admission: AdmissionConfig{
				RateLimitPerMinute: 60,
				MaxRequestBytes:    10485760,
				MaxFilesPerRequest: 10,
			},
			Chunk: ChunkConfig{
				MaxChars:            2800,
				MinChars:            500,
				OverlapChars:        256,
				SimilarityThreshold: 0.75,
			},
			Embed: EmbedConfig{
				Dim:      768,
				BatchMax: 96,
				Timeout:  30 * time.Second,
			},
			Retrieval: RetrievalConfig{
				TopKDefault:         5,
				TopKMax:             20,
				CandidateMultiplier: 3,
			},
			Generation: GenerationConfig{
				MaxGenTokens:       8000,
				ContextTokenBudget: 4000,
				Timeout:            60 * time.Second,
			},
			Deadlines: DeadlineConfig{
				Query:  30 * time.Second,
				Ingest: 90 * time.Second,
			},
			Session: SessionConfig{
				TTLDays:        30,
				RecentMessages: 6,
			},
			LLM: LLMConfig{
				Model:          "gpt-4o-mini",
				EmbeddingModel: "text-embedding-3-small",
				Temperature:    0.2,
			},
			Postgres: PostgresConfig{
				MaxConns: 10,
				MinConns: 2,
			},
			Redis: RedisConfig{
				Enabled: false,
			},
			Qdrant: QdrantConfig{
				Enabled:        false,
				Address:        "localhost:6334",
				CollectionName: "ragserve_chunks",
			},
			Minio: MinioConfig{
				Bucket: "ragserve-documents",
			},
			Identity: IdentityConfig{
				JWTSecret: "dev-secret-change-me",
			},
		},
	}
}

// Validate ensures the configuration is safe to use.
func (c *Config) Validate() error {
	if c.HTTP.Address == "" {
		return errors.New("http.address cannot be empty")
	}
	if c.HTTP.RateLimit.Enabled {
		if c.HTTP.RateLimit.RequestsPerMinute <= 0 {
			return errors.New("http.rateLimit.requestsPerMinute must be positive")
		}
		if c.HTTP.RateLimit.Burst <= 0 {
			return errors.New("http.rateLimit.burst must be positive")
		}
	}
	if c.HTTP.Retry.Enabled {
		if c.HTTP.Retry.MaxAttempts <= 0 {
			return errors.New("http.retry.maxAttempts must be positive")
		}
		if c.HTTP.Retry.BaseBackoff <= 0 {
			return errors.New("http.retry.baseBackoff must be positive")
		}
	}
	if c.RAG.Admission.RateLimitPerMinute <= 0 {
		return errors.New("rag.admission.rateLimitPerMinute must be positive")
	}
	if c.RAG.Admission.MaxRequestBytes <= 0 {
		return errors.New("rag.admission.maxRequestBytes must be positive")
	}
	if c.RAG.Admission.MaxFilesPerRequest <= 0 {
		return errors.New("rag.admission.maxFilesPerRequest must be positive")
	}
	if c.RAG.Chunk.MaxChars <= c.RAG.Chunk.MinChars {
		return errors.New("rag.chunk.maxChars must exceed rag.chunk.minChars")
	}
	if c.RAG.Chunk.SimilarityThreshold < 0 || c.RAG.Chunk.SimilarityThreshold > 1 {
		return errors.New("rag.chunk.similarityThreshold must be in [0,1]")
	}
	if c.RAG.Embed.Dim <= 0 {
		return errors.New("rag.embed.dim must be positive")
	}
	if c.RAG.Embed.BatchMax <= 0 {
		return errors.New("rag.embed.batchMax must be positive")
	}
	if c.RAG.Retrieval.TopKDefault <= 0 || c.RAG.Retrieval.TopKDefault > c.RAG.Retrieval.TopKMax {
		return errors.New("rag.retrieval.topKDefault must be positive and at most topKMax")
	}
	if c.RAG.Generation.MaxGenTokens <= 0 {
		return errors.New("rag.generation.maxGenTokens must be positive")
	}
	if c.RAG.Generation.ContextTokenBudget <= 0 {
		return errors.New("rag.generation.contextTokenBudget must be positive")
	}
	if c.RAG.Deadlines.Query <= 0 || c.RAG.Deadlines.Ingest <= 0 {
		return errors.New("rag.deadlines must be positive")
	}
	if c.RAG.Session.TTLDays <= 0 {
		return errors.New("rag.session.ttlDays must be positive")
	}
	if c.RAG.Session.RecentMessages <= 0 {
		return errors.New("rag.session.recentMessages must be positive")
	}
	if strings.TrimSpace(c.RAG.LLM.EmbeddingModel) == "" {
		return errors.New("rag.llm.embeddingModel cannot be empty")
	}
	if c.RAG.Redis.Enabled && strings.TrimSpace(c.RAG.Redis.Addr) == "" {
		return errors.New("rag.redis.addr cannot be empty when rag.redis is enabled")
	}
	if c.RAG.Qdrant.Enabled && strings.TrimSpace(c.RAG.Qdrant.Address) == "" {
		return errors.New("rag.qdrant.address cannot be empty when rag.qdrant is enabled")
	}
	if strings.TrimSpace(c.RAG.Identity.JWTSecret) == "" {
		return errors.New("rag.identity.jwtSecret cannot be empty")
	}
	return nil
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	var result []string
	for _, part := range parts {
		val := strings.TrimSpace(part)
		if val != "" {
			result = append(result, val)
		}
	}
	return result
}
