package rag

import "context"

// Chunker turns the raw bytes of a document into ordered, overlapping
// text chunks (C1).
type Chunker interface {
	Chunk(ctx context.Context, filename string, data []byte, contentType ContentType, opts ChunkOptions) ([]ChunkCandidate, error)
}

// ChunkOptions configures one Chunker.Chunk call. Zero values are
// replaced by the Config defaults (§6).
type ChunkOptions struct {
	MaxChunkChars         int
	MinChunkChars         int
	OverlapChars          int
	UseSemantic           bool
	SimilarityThreshold   float64
}

// ChunkCandidate is a chunked fragment prior to PII tagging, embedding
// and persistence.
type ChunkCandidate struct {
	Ordinal int
	Text    string
}

// Embedder turns text into fixed-dimension vectors (C2).
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
	EmbedOne(ctx context.Context, text string) ([]float32, error)
	Dimension() int
}

// ChunkStore is the durable mapping from chunk-id to Chunk (C3). It owns
// chunk records exclusively; every other component reads by id.
type ChunkStore interface {
	UpsertMany(ctx context.Context, chunks []Chunk) ([]string, error)
	GetMany(ctx context.Context, ids []string) ([]*Chunk, error)
	DeleteByDoc(ctx context.Context, docID string) error
}

// ObjectStore is durable storage of raw ingested bytes, keyed by
// content-derived id (C4).
type ObjectStore interface {
	Put(ctx context.Context, docID string, data []byte, contentType ContentType, metadata ObjectMetadata) (string, error)
	Get(ctx context.Context, objectRef string) ([]byte, ObjectMetadata, error)
}

// ObjectMetadata is attached to every stored object.
type ObjectMetadata struct {
	UploaderID       string
	OriginalFilename string
	ContentType      ContentType
	SHA256           string
}

// VectorIndex is approximate nearest-neighbor search over embeddings
// (C5). It owns vector storage exclusively.
type VectorIndex interface {
	Upsert(ctx context.Context, vectors []Vector) error
	Query(ctx context.Context, vector []float32, topK int, restricts map[string][]string) ([]ScoredVector, error)
}

// PIIRedactor detects and redacts PII spans in text (C6).
type PIIRedactor interface {
	Detect(text string) PIIDetection
	Redact(text string) string
}

// Reranker re-scores a candidate list against a query (C7).
type Reranker interface {
	Rerank(ctx context.Context, query string, candidates []Candidate, topK int) ([]Candidate, error)
}

// ContextCompressor drops lowest-ranked candidates until the remainder
// fits a token budget (C8).
type ContextCompressor interface {
	Compress(ctx context.Context, query string, candidates []Candidate, maxTokens int) ([]Candidate, error)
}

// Generator builds a grounded prompt and calls the language model (C9).
type Generator interface {
	Generate(ctx context.Context, req GenerateRequest) (GenerateResponse, error)
}

// GenerateRequest is C9's input: a query, its compressed evidence, and
// recent session history (read-only).
type GenerateRequest struct {
	Query      string
	Contexts   []Candidate
	History    []Message
	NoEvidence bool
}

// GenerateResponse is C9's output prior to orchestrator bookkeeping.
type GenerateResponse struct {
	Answer           string
	Citations        []Citation
	PromptTokens     int
	CompletionTokens int
	Blocked          bool
}

// SessionStore is the per-user session and message log (C10). It owns
// session and message state exclusively.
type SessionStore interface {
	CreateSession(ctx context.Context, userID string, firstMessage string) (string, error)
	Append(ctx context.Context, sessionID string, msg Message) error
	Recent(ctx context.Context, sessionID string, limit int) ([]Message, error)
	ListSessions(ctx context.Context, userID string, limit, offset int) ([]SessionMeta, error)
	Delete(ctx context.Context, sessionID, userID string) error
	Touch(ctx context.Context, sessionID string) error
	Get(ctx context.Context, sessionID string) (*SessionMeta, error)
}

// AdmissionResult is the outcome of one AdmissionController.Admit call.
type AdmissionResult struct {
	Admitted   bool
	RetryAfter float64 // seconds
}

// AdmissionController is per-client token-bucket rate limiting plus
// per-request size/count validation (C11).
type AdmissionController interface {
	Admit(clientKey string) AdmissionResult
	ValidateIngest(totalBytes int64, fileCount int) error
}

// Pinger is implemented by any backend-facing adapter that can report
// its own liveness for /readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}
