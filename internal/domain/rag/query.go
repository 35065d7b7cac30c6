package rag

import (
	"context"
	"log/slog"
	"sort"
	"time"

	apperrors "github.com/ragserve/core/pkg/errors"
	"github.com/ragserve/core/pkg/util"
)

// degradedSessionID is returned when the session store is unavailable;
// per C10's degradation mode, history is skipped but the query still
// answers (§4.10).
const degradedSessionID = "no-session"

// QueryConfig drives the Query Orchestrator (C13).
type QueryConfig struct {
	TopKDefault         int
	TopKMax             int
	CandidateMultiplier int
	MaxContextTokens    int
	RecentMessages      int
}

// QueryRequest is one /query call.
type QueryRequest struct {
	UserID      string
	SessionID   string
	Question    string
	TopK        int
	UseHistory  bool
}

// QueryOrchestrator runs C13's state machine: ADMITTED -> HISTORY_LOADED
// -> QUERY_EMBEDDED -> RETRIEVED -> RERANKED -> COMPRESSED -> GENERATED
// -> RECORDED -> RESPONDED. Admission itself (C11) is enforced by the
// caller before Query is invoked; the orchestrator assumes ADMITTED.
type QueryOrchestrator struct {
	cfg        QueryConfig
	embedder   Embedder
	chunks     ChunkStore
	vectors    VectorIndex
	reranker   Reranker
	compressor ContextCompressor
	generator  Generator
	sessions   SessionStore
	logger     *slog.Logger
}

// NewQueryOrchestrator wires C13 from its component dependencies.
func NewQueryOrchestrator(cfg QueryConfig, embedder Embedder, chunks ChunkStore, vectors VectorIndex, reranker Reranker, compressor ContextCompressor, generator Generator, sessions SessionStore, logger *slog.Logger) *QueryOrchestrator {
	if cfg.TopKDefault <= 0 {
		cfg.TopKDefault = 5
	}
	if cfg.TopKMax <= 0 {
		cfg.TopKMax = 20
	}
	if cfg.CandidateMultiplier <= 0 {
		cfg.CandidateMultiplier = 3
	}
	if cfg.RecentMessages <= 0 {
		cfg.RecentMessages = 6
	}
	return &QueryOrchestrator{
		cfg: cfg, embedder: embedder, chunks: chunks, vectors: vectors,
		reranker: reranker, compressor: compressor, generator: generator,
		sessions: sessions, logger: logger.With("component", "rag.query_orchestrator"),
	}
}

// Query runs the full pipeline and returns a QueryResult.
func (o *QueryOrchestrator) Query(ctx context.Context, req QueryRequest) (QueryResult, error) {
	if req.Question == "" {
		return QueryResult{}, ErrEmptyQuestion()
	}
	topK := req.TopK
	if topK <= 0 {
		topK = o.cfg.TopKDefault
	}
	if topK > o.cfg.TopKMax {
		topK = o.cfg.TopKMax
	}
	candidatesN := o.cfg.CandidateMultiplier * topK
	if candidatesN < 15 {
		candidatesN = 15
	}

	var latency LatencyBreakdown
	start := time.Now()

	sessionID, history := o.loadSession(ctx, req, &latency)

	t := time.Now()
	queryVector, err := o.embedder.EmbedOne(ctx, req.Question)
	latency.EmbedMs = time.Since(t).Milliseconds()
	if err != nil {
		return QueryResult{}, stageErrorCtx(ctx, apperrors.CodeEmbeddingUnavailable, "query_embedded", err)
	}

	t = time.Now()
	scored, err := o.vectors.Query(ctx, queryVector, candidatesN, nil)
	latency.RetrieveMs = time.Since(t).Milliseconds()
	if err != nil {
		return QueryResult{}, stageErrorCtx(ctx, apperrors.CodeVectorIndexUnavailable, "retrieved", err)
	}

	candidates := o.resolveCandidates(ctx, scored)

	var noEvidence bool
	if len(candidates) == 0 {
		noEvidence = true
	} else {
		t = time.Now()
		candidates, err = o.reranker.Rerank(ctx, req.Question, candidates, topK)
		latency.RerankMs = time.Since(t).Milliseconds()
		if err != nil {
			return QueryResult{}, stageErrorCtx(ctx, apperrors.CodeInternal, "reranked", err)
		}

		t = time.Now()
		candidates, err = o.compressor.Compress(ctx, req.Question, candidates, o.cfg.MaxContextTokens)
		latency.CompressMs = time.Since(t).Milliseconds()
		if err != nil {
			return QueryResult{}, stageErrorCtx(ctx, apperrors.CodeInternal, "compressed", err)
		}
	}

	genReq := GenerateRequest{
		Query:      req.Question,
		Contexts:   candidates,
		NoEvidence: noEvidence,
	}
	if req.UseHistory {
		genReq.History = history
	}

	t = time.Now()
	genResp, err := o.generator.Generate(ctx, genReq)
	latency.GenerateMs = time.Since(t).Milliseconds()
	if err != nil {
		// A safety refusal is a normal, terminal outcome (§7): it is
		// reported verbatim in a 200 body, never retried or rephrased.
		if apperrors.IsCode(err, apperrors.CodeGenerationBlocked) {
			genResp = GenerateResponse{Answer: "<safety-refusal>", Blocked: true}
		} else {
			// Propagate as-is: the generator already carries the precise
			// code (timeout vs unavailable) that the client needs.
			return QueryResult{}, err
		}
	}

	t = time.Now()
	o.record(ctx, sessionID, req.Question, genResp)
	latency.RecordMs = time.Since(t).Milliseconds()

	latency.TotalMs = time.Since(start).Milliseconds()

	contextsUsed := make([]string, len(candidates))
	for i, c := range candidates {
		contextsUsed[i] = c.Chunk.ID
	}

	return QueryResult{
		Answer:           genResp.Answer,
		Citations:        genResp.Citations,
		ContextsUsed:     contextsUsed,
		PromptTokens:     genResp.PromptTokens,
		CompletionTokens: genResp.CompletionTokens,
		Blocked:          genResp.Blocked,
		Latency:          latency,
	}, nil
}

// loadSession ensures a session exists and loads its recent history,
// honoring C10's degraded "no-session" mode if the store is unavailable.
func (o *QueryOrchestrator) loadSession(ctx context.Context, req QueryRequest, latency *LatencyBreakdown) (string, []Message) {
	if o.sessions == nil {
		return degradedSessionID, nil
	}

	sessionID := req.SessionID
	if sessionID == "" {
		id, err := o.sessions.CreateSession(ctx, req.UserID, req.Question)
		if err != nil {
			o.logger.Warn("session create failed, degrading", "error", err)
			return degradedSessionID, nil
		}
		sessionID = id
	}

	t := time.Now()
	var history []Message
	if req.UseHistory {
		h, err := o.sessions.Recent(ctx, sessionID, o.cfg.RecentMessages)
		if err != nil {
			o.logger.Warn("history load failed", "session_id", sessionID, "error", err)
		} else {
			history = h
		}
	}
	latency.HistoryLoadMs = time.Since(t).Milliseconds()
	return sessionID, history
}

// resolveCandidates fetches chunks by embedding-ref, dropping orphans
// (vector present, chunk missing — §4.12/§8 testable property 2) with a
// warning rather than failing the request.
func (o *QueryOrchestrator) resolveCandidates(ctx context.Context, scored []ScoredVector) []Candidate {
	if len(scored) == 0 {
		return nil
	}
	ids := make([]string, len(scored))
	for i, s := range scored {
		ids[i] = s.EmbeddingRef
	}
	chunks, err := o.chunks.GetMany(ctx, ids)
	if err != nil {
		o.logger.Warn("chunk lookup failed during retrieval", "error", err)
		return nil
	}

	candidates := make([]Candidate, 0, len(scored))
	for i, c := range chunks {
		if c == nil {
			o.logger.Warn("orphan vector dropped: chunk missing from store", "embedding_ref", ids[i])
			continue
		}
		candidates = append(candidates, Candidate{Chunk: *c, RetrievalScore: scored[i].Score})
	}
	sort.SliceStable(candidates, func(i, j int) bool { return candidates[i].RetrievalScore > candidates[j].RetrievalScore })
	return candidates
}

// record appends the user question and assistant answer to the session,
// best-effort: a record failure never fails an already-generated answer.
func (o *QueryOrchestrator) record(ctx context.Context, sessionID, question string, resp GenerateResponse) {
	if o.sessions == nil || sessionID == degradedSessionID {
		return
	}
	now := util.NowUTC()
	if err := o.sessions.Append(ctx, sessionID, Message{Role: RoleUser, Content: question, Timestamp: now}); err != nil {
		o.logger.Warn("append user message failed", "session_id", sessionID, "error", err)
	}
	assistant := Message{
		Role: RoleAssistant, Content: resp.Answer, Timestamp: util.NowUTC(),
		Metadata: MessageMetadata{
			PromptTokens: resp.PromptTokens, CompletionTokens: resp.CompletionTokens,
			Citations: resp.Citations,
		},
	}
	if err := o.sessions.Append(ctx, sessionID, assistant); err != nil {
		o.logger.Warn("append assistant message failed", "session_id", sessionID, "error", err)
	}
}
