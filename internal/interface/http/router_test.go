package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/evaluation"
	"github.com/ragserve/core/internal/domain/identity"
	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/config"
	"github.com/ragserve/core/internal/infra/rag/admission"
	"github.com/ragserve/core/internal/infra/rag/chunker"
	"github.com/ragserve/core/internal/infra/rag/chunkstore"
	"github.com/ragserve/core/internal/infra/rag/compressor"
	"github.com/ragserve/core/internal/infra/rag/embedder"
	"github.com/ragserve/core/internal/infra/rag/objectstore"
	"github.com/ragserve/core/internal/infra/rag/pii"
	"github.com/ragserve/core/internal/infra/rag/reranker"
	"github.com/ragserve/core/internal/infra/rag/sessionstore"
	"github.com/ragserve/core/internal/infra/rag/vectorindex"
)

const testJWTSecret = "router-test-secret"

func TestRouter_QueryWithoutEvidenceRefuses(t *testing.T) {
	server := newRouterUnderTest(t, nil)

	recorder := performRequest(http.MethodPost, "/api/v1/query", `{"question":"what is in the docs?"}`, server)
	require.Equal(t, http.StatusOK, recorder.Code)

	var result rag.QueryResult
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &result))
	require.Contains(t, strings.ToLower(result.Answer), "cannot answer")
	require.Empty(t, result.Citations)
}

func TestRouter_QueryEmptyQuestionRejected(t *testing.T) {
	server := newRouterUnderTest(t, nil)

	recorder := performRequest(http.MethodPost, "/api/v1/query", `{"question":""}`, server)
	require.Equal(t, http.StatusBadRequest, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "invalid_request", errBody["error"]["code"])
}

func TestRouter_ProtectedRequiresAuth(t *testing.T) {
	server := newRouterUnderTest(t, nil)
	recorder := performJSONRequest(http.MethodPost, "/api/v1/query", `{"question":"hi"}`, server, withoutAuth())
	require.Equal(t, http.StatusUnauthorized, recorder.Code)

	errBody := decodeErrorBody(t, recorder.Body.Bytes())
	require.Equal(t, "unauthorized", errBody["error"]["code"])
}

func TestRouter_IngestThenQueryReturnsCitedAnswer(t *testing.T) {
	server := newRouterUnderTest(t, nil)

	body, contentType := multipartFile(t, "notes.txt", strings.Repeat("The quarterly report shows steady growth across all regions. ", 20))
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ingest", body)
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("Authorization", "Bearer "+defaultAuthToken)
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var ingestResp rag.IngestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &ingestResp))
	require.Len(t, ingestResp.Documents, 1)
	require.Equal(t, rag.DocStatusComplete, ingestResp.Documents[0].Status)

	queryRec := performRequest(http.MethodPost, "/api/v1/query", `{"question":"What does the report show about growth?"}`, server)
	require.Equal(t, http.StatusOK, queryRec.Code)

	var result rag.QueryResult
	require.NoError(t, json.Unmarshal(queryRec.Body.Bytes(), &result))
	require.NotEmpty(t, result.Answer)
	require.NotEmpty(t, result.Citations)
}

func TestRouter_EvaluateSuccess(t *testing.T) {
	server := newRouterUnderTest(t, nil)

	payload := `{"question":"q","answer":"the sky is blue","contexts":["the sky is blue today"]}`
	recorder := performRequest(http.MethodPost, "/api/v1/evaluate", payload, server)
	require.Equal(t, http.StatusOK, recorder.Code)

	var body struct {
		Scores evaluation.Scores `json:"scores"`
	}
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	require.Greater(t, body.Scores.Faithfulness, 0.0)
}

func TestRouter_HealthAndReadinessUnauthenticated(t *testing.T) {
	server := newRouterUnderTest(t, nil)

	for _, path := range []string{"/health", "/readiness", "/liveness"} {
		recorder := performJSONRequest(http.MethodGet, path, "", server, withoutAuth())
		require.Equal(t, http.StatusOK, recorder.Code, path)
	}
}

func TestRouter_SessionContextCarriesAcrossQueries(t *testing.T) {
	logger := newTestLogger()
	chunks := chunkstore.NewMemoryChunkStore()
	objects := objectstore.NewMemoryObjectStore()
	vectors := vectorindex.NewMemoryVectorIndex()
	sessions := sessionstore.NewMemoryStore()
	emb := embedder.NewDeterministicEmbedder(16)
	redactor := pii.NewRedactor()
	rerank := reranker.New(emb)
	compress := compressor.New()

	ingestOrch := rag.NewIngestOrchestrator(rag.IngestConfig{
		ChunkOptions: rag.ChunkOptions{MaxChunkChars: 400, MinChunkChars: 50, OverlapChars: 20},
	}, chunker.New(emb), emb, chunks, objects, vectors, redactor, logger)

	queryOrch := rag.NewQueryOrchestrator(rag.QueryConfig{
		TopKDefault: 5, TopKMax: 20, CandidateMultiplier: 3, MaxContextTokens: 2000, RecentMessages: 6,
	}, emb, chunks, vectors, rerank, compress, historyEchoGenerator{}, sessions, logger)

	verifier := identity.NewJWTVerifier(identity.Config{Secret: testJWTSecret})
	handler := NewHandler(ingestOrch, queryOrch, sessions, admission.New(60, 10485760, 10), evaluation.NewCompositeEvaluator(), verifier, logger)
	server := NewRouter(&config.Config{HTTP: config.HTTPConfig{
		Address: ":0", ReadTimeout: time.Second, WriteTimeout: time.Second,
		AllowedOrigins: []string{"*"}, RateLimit: config.RateLimitConfig{Enabled: false}, Retry: config.RetryConfig{Enabled: false},
	}}, handler)

	first := performRequest(http.MethodPost, "/api/v1/query", `{"question":"I am John."}`, server)
	require.Equal(t, http.StatusOK, first.Code)
	var firstResult rag.QueryResult
	require.NoError(t, json.Unmarshal(first.Body.Bytes(), &firstResult))

	sessionsRec := performJSONRequest(http.MethodGet, "/api/v1/sessions", "", server)
	var listBody struct {
		Sessions []rag.SessionMeta `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(sessionsRec.Body.Bytes(), &listBody))
	require.Len(t, listBody.Sessions, 1)
	sessionID := listBody.Sessions[0].SessionID

	second := performRequest(http.MethodPost, "/api/v1/query",
		fmt.Sprintf(`{"question":"What is my name?","session_id":%q,"use_history":true}`, sessionID), server)
	require.Equal(t, http.StatusOK, second.Code)
	var secondResult rag.QueryResult
	require.NoError(t, json.Unmarshal(second.Body.Bytes(), &secondResult))
	require.Contains(t, secondResult.Answer, "John")
}

func TestRouter_SessionsListAndDelete(t *testing.T) {
	server := newRouterUnderTest(t, nil)

	performRequest(http.MethodPost, "/api/v1/query", `{"question":"hello there"}`, server)

	listRec := performJSONRequest(http.MethodGet, "/api/v1/sessions", "", server)
	require.Equal(t, http.StatusOK, listRec.Code)

	var listBody struct {
		Sessions []rag.SessionMeta `json:"sessions"`
	}
	require.NoError(t, json.Unmarshal(listRec.Body.Bytes(), &listBody))
	require.Len(t, listBody.Sessions, 1)

	deleteRec := performJSONRequest(http.MethodDelete, "/api/v1/sessions/"+listBody.Sessions[0].SessionID, "", server)
	require.Equal(t, http.StatusNoContent, deleteRec.Code)
}

func TestRouter_RateLimitExceeded(t *testing.T) {
	server := newRouterUnderTest(t, func(cfg *config.Config) {
		cfg.HTTP.RateLimit.Enabled = true
		cfg.HTTP.RateLimit.RequestsPerMinute = 1
		cfg.HTTP.RateLimit.Burst = 1
	})

	first := performRequest(http.MethodGet, "/api/v1/sessions", "", server)
	require.Equal(t, http.StatusOK, first.Code)

	second := performRequest(http.MethodGet, "/api/v1/sessions", "", server)
	require.Equal(t, http.StatusTooManyRequests, second.Code)

	errBody := decodeErrorBody(t, second.Body.Bytes())
	require.Equal(t, "rate_limit_exceeded", errBody["error"]["code"])
}

func TestIPRateLimiterBasic(t *testing.T) {
	limiter := newIPRateLimiter(config.RateLimitConfig{RequestsPerMinute: 1, Burst: 1})
	require.True(t, limiter.allow("ip"))
	require.False(t, limiter.allow("ip"))
}

func TestRateLimitMiddlewareBlocks(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(errorHandlingMiddleware(newTestLogger()), rateLimitMiddleware(config.RateLimitConfig{
		Enabled:           true,
		RequestsPerMinute: 1,
		Burst:             1,
	}, newTestLogger()))
	router.POST("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})

	rec1 := httptest.NewRecorder()
	req1 := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	router.ServeHTTP(rec1, req1)
	require.Equal(t, http.StatusOK, rec1.Code)

	rec2 := httptest.NewRecorder()
	req2 := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{}`))
	router.ServeHTTP(rec2, req2)
	require.Equal(t, http.StatusTooManyRequests, rec2.Code)
}

func performRequest(method, path, body string, server *http.Server) *httptest.ResponseRecorder {
	return performJSONRequest(method, path, body, server)
}

func performJSONRequest(method, path, body string, server *http.Server, opts ...requestOption) *httptest.ResponseRecorder {
	var payload io.Reader
	if body != "" {
		payload = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, payload)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	req.RemoteAddr = "203.0.113.1:1234"
	req.Header.Set("Authorization", "Bearer "+defaultAuthToken)
	for _, opt := range opts {
		opt(req)
	}
	rec := httptest.NewRecorder()
	server.Handler.ServeHTTP(rec, req)
	return rec
}

func multipartFile(t *testing.T, filename, content string) (*bytes.Buffer, string) {
	t.Helper()
	buf := &bytes.Buffer{}
	writer := multipart.NewWriter(buf)
	part, err := writer.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = part.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, writer.Close())
	return buf, writer.FormDataContentType()
}

const defaultAuthUserID = "tester-1"

var defaultAuthToken = mustSignTestToken(defaultAuthUserID)

func mustSignTestToken(userID string) string {
	claims := jwt.RegisteredClaims{
		Subject:   userID,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(testJWTSecret))
	if err != nil {
		panic(fmt.Sprintf("sign test token: %v", err))
	}
	return signed
}

type requestOption func(req *http.Request)

func withoutAuth() requestOption {
	return func(req *http.Request) {
		req.Header.Del("Authorization")
	}
}

func newRouterUnderTest(t *testing.T, override func(*config.Config)) *http.Server {
	t.Helper()

	logger := newTestLogger()
	chunks := chunkstore.NewMemoryChunkStore()
	objects := objectstore.NewMemoryObjectStore()
	vectors := vectorindex.NewMemoryVectorIndex()
	sessions := sessionstore.NewMemoryStore()
	emb := embedder.NewDeterministicEmbedder(16)
	redactor := pii.NewRedactor()
	rerank := reranker.New(emb)
	compress := compressor.New()

	ingestOrch := rag.NewIngestOrchestrator(rag.IngestConfig{
		ChunkOptions: rag.ChunkOptions{MaxChunkChars: 400, MinChunkChars: 50, OverlapChars: 20},
		RetryMax:     1,
		RetryBase:    time.Millisecond,
	}, chunker.New(emb), emb, chunks, objects, vectors, redactor, logger)

	queryOrch := rag.NewQueryOrchestrator(rag.QueryConfig{
		TopKDefault:         5,
		TopKMax:             20,
		CandidateMultiplier: 3,
		MaxContextTokens:    2000,
		RecentMessages:      6,
	}, emb, chunks, vectors, rerank, compress, noEvidenceGenerator{}, sessions, logger)

	admissionCtl := admission.New(60, 10485760, 10)
	evaluator := evaluation.NewCompositeEvaluator()

	verifier := identity.NewJWTVerifier(identity.Config{Secret: testJWTSecret})
	handler := NewHandler(ingestOrch, queryOrch, sessions, admissionCtl, evaluator, verifier, logger)

	cfg := &config.Config{
		HTTP: config.HTTPConfig{
			Address:        ":0",
			ReadTimeout:    time.Second,
			WriteTimeout:   time.Second,
			AllowedOrigins: []string{"*"},
			RateLimit:      config.RateLimitConfig{Enabled: false},
			Retry:          config.RetryConfig{Enabled: false},
		},
	}
	if override != nil {
		override(cfg)
	}
	return NewRouter(cfg, handler)
}

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// noEvidenceGenerator always reports no supporting evidence, used where
// the test only exercises the HTTP contract, not C9's prompt building.
type noEvidenceGenerator struct{}

func (noEvidenceGenerator) Generate(_ context.Context, req rag.GenerateRequest) (rag.GenerateResponse, error) {
	if req.NoEvidence || len(req.Contexts) == 0 {
		return rag.GenerateResponse{Answer: "I cannot answer from the available evidence"}, nil
	}
	return rag.GenerateResponse{Answer: "Based on the report, growth was steady.", Citations: []rag.Citation{{Index: 1, DocID: req.Contexts[0].Chunk.DocID, ChunkID: req.Contexts[0].Chunk.ID}}}, nil
}

// historyEchoGenerator answers from conversation history instead of
// retrieved contexts, so a session-continuity test can assert recall
// without depending on a real LM.
type historyEchoGenerator struct{}

func (historyEchoGenerator) Generate(_ context.Context, req rag.GenerateRequest) (rag.GenerateResponse, error) {
	for _, m := range req.History {
		if strings.Contains(m.Content, "John") {
			return rag.GenerateResponse{Answer: "Your name is John."}, nil
		}
	}
	if req.NoEvidence || len(req.Contexts) == 0 {
		return rag.GenerateResponse{Answer: "I cannot answer from the available evidence"}, nil
	}
	return rag.GenerateResponse{Answer: "answer"}, nil
}

func decodeErrorBody(t *testing.T, raw []byte) map[string]map[string]string {
	t.Helper()
	var body map[string]map[string]string
	require.NoError(t, json.Unmarshal(raw, &body))
	return body
}
