package rag

import "time"

// ContentType is the inferred or declared document format.
type ContentType string

const (
	ContentTypePDF  ContentType = "pdf"
	ContentTypeDOCX ContentType = "docx"
	ContentTypeHTML ContentType = "html"
	ContentTypeTXT  ContentType = "txt"
)

// Document is an immutable record of one successful upload.
type Document struct {
	ID               string      `json:"docId"`
	OriginalFilename string      `json:"originalFilename"`
	ContentType      ContentType `json:"contentType"`
	ByteLength       int64       `json:"byteLength"`
	UploaderID       string      `json:"uploaderId"`
	CreatedAt        time.Time   `json:"createdAt"`
}

// Chunk is one addressable fragment of a document's text.
type Chunk struct {
	ID            string              `json:"chunkId"`
	DocID         string              `json:"docId"`
	Ordinal       int                 `json:"ordinal"`
	Text          string              `json:"text"`
	EmbeddingRef  string              `json:"embeddingRef,omitempty"`
	PIICategories []string            `json:"piiCategories,omitempty"`
	Restricts     map[string][]string `json:"restricts,omitempty"`
	CreatedAt     time.Time           `json:"createdAt"`
}

// Vector is a fixed-dimension embedding plus the index-side metadata
// the Vector Index needs to store alongside it.
type Vector struct {
	EmbeddingRef string
	Values       []float32
	Restricts    map[string][]string
	CrowdingTag  string
}

// ScoredVector is one Vector Index query hit.
type ScoredVector struct {
	EmbeddingRef string
	Score        float64
}

// MessageRole is the speaker of one Message.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
)

// MessageMetadata is the tagged-variant payload a Message may carry.
// Only assistant messages populate the generation-related fields.
type MessageMetadata struct {
	PromptTokens     int        `json:"promptTokens,omitempty"`
	CompletionTokens int        `json:"completionTokens,omitempty"`
	LatencyMs        int64      `json:"latencyMs,omitempty"`
	Citations        []Citation `json:"citations,omitempty"`
}

// Message is one append-only turn in a Session.
type Message struct {
	Role      MessageRole     `json:"role"`
	Content   string          `json:"content"`
	Timestamp time.Time       `json:"timestamp"`
	Metadata  MessageMetadata `json:"metadata,omitempty"`
}

// SessionMeta describes a session without its message log.
type SessionMeta struct {
	SessionID    string    `json:"sessionId"`
	UserID       string    `json:"userId"`
	CreatedAt    time.Time `json:"createdAt"`
	LastActiveAt time.Time `json:"lastActiveAt"`
	Title        string    `json:"title"`
	MessageCount int       `json:"messageCount"`
}

// Citation resolves one `[k]` marker in a generated answer back to its
// source chunk.
type Citation struct {
	Index   int    `json:"index"`
	DocID   string `json:"docId"`
	ChunkID string `json:"chunkId"`
	Excerpt string `json:"excerpt"`
	Score   float64 `json:"score"`
}

// LatencyBreakdown records per-stage wall-clock time for one query.
type LatencyBreakdown struct {
	HistoryLoadMs  int64 `json:"historyLoadMs"`
	EmbedMs        int64 `json:"embedMs"`
	RetrieveMs     int64 `json:"retrieveMs"`
	RerankMs       int64 `json:"rerankMs"`
	CompressMs     int64 `json:"compressMs"`
	GenerateMs     int64 `json:"generateMs"`
	RecordMs       int64 `json:"recordMs"`
	TotalMs        int64 `json:"totalMs"`
}

// QueryResult is the per-request, transient output of the Query
// Orchestrator (C13). It is never persisted as a whole, only its
// generation-relevant fields are folded into the assistant Message's
// metadata.
type QueryResult struct {
	RequestID        string            `json:"requestId"`
	Answer           string            `json:"answer"`
	Citations        []Citation        `json:"citations"`
	ContextsUsed     []string          `json:"contextsUsed"`
	PromptTokens     int               `json:"promptTokens"`
	CompletionTokens int               `json:"completionTokens"`
	Blocked          bool              `json:"blocked,omitempty"`
	Latency          LatencyBreakdown  `json:"latencyMsBreakdown"`
}

// Candidate is a chunk plus its current-stage relevance score, threaded
// through retrieval -> rerank -> compression.
type Candidate struct {
	Chunk          Chunk
	RetrievalScore float64
	CombinedScore  float64
}

// PIIDetection is the result of scanning one piece of text for PII.
type PIIDetection struct {
	Categories []string
	Spans      []PIISpan
}

// PIISpan is one detected PII occurrence.
type PIISpan struct {
	Category string
	Start    int
	End      int
}
