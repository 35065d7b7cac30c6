package http

import (
	"io"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/ragserve/core/internal/domain/evaluation"
	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/rag/chunker"
	apperrors "github.com/ragserve/core/pkg/errors"
)

func (h *Handler) admit(c *gin.Context) bool {
	claims, ok := getClaims(c)
	clientKey := c.ClientIP()
	if ok && claims.UserID != "" {
		clientKey = claims.UserID
	}
	result := h.admission.Admit(clientKey)
	if result.Admitted {
		return true
	}
	c.Header("Retry-After", strconv.FormatFloat(result.RetryAfter, 'f', 0, 64))
	abortWithError(c, NewHTTPError(http.StatusTooManyRequests, "throttled", "rate limit exceeded", nil))
	return false
}

// Ingest handles multipart upload of 1-10 files per spec.md §6's /ingest
// contract.
func (h *Handler) Ingest(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
		return
	}
	if !h.admit(c) {
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "multipart form required", err))
		return
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "at least one file is required", nil))
		return
	}

	var totalBytes int64
	for _, fh := range headers {
		totalBytes += fh.Size
	}
	if err := h.admission.ValidateIngest(totalBytes, len(headers)); err != nil {
		status := http.StatusBadRequest
		code := "invalid_request"
		if apperrors.IsCode(err, apperrors.CodeRequestTooLarge) {
			status = http.StatusRequestEntityTooLarge
			code = "request_too_large"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}

	files := make([]rag.IngestFile, 0, len(headers))
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read upload", err))
			return
		}
		data, err := io.ReadAll(f)
		f.Close()
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", "failed to read upload", err))
			return
		}
		contentType, err := chunker.InferContentType(fh.Filename)
		if err != nil {
			abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
			return
		}
		files = append(files, rag.IngestFile{
			Filename:    fh.Filename,
			Content:     data,
			ContentType: contentType,
			UploaderID:  claims.UserID,
		})
	}

	resp, err := h.ingest.Ingest(c.Request.Context(), files)
	if err != nil {
		status := http.StatusInternalServerError
		code := "ingest_failed"
		switch {
		case apperrors.IsCode(err, apperrors.CodeInvalidInput):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, apperrors.CodePartialFailure):
			status = http.StatusInsufficientStorage
			code = "partial_failure"
		case apperrors.IsCode(err, apperrors.CodeDeadlineExceeded):
			status = http.StatusGatewayTimeout
			code = "deadline_exceeded"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, resp)
}

type queryPayload struct {
	Question   string `json:"question"`
	TopK       int    `json:"top_k"`
	SessionID  string `json:"session_id"`
	UseHistory bool   `json:"use_history"`
}

// Query handles the RAG question-answering contract.
func (h *Handler) Query(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
		return
	}
	if !h.admit(c) {
		return
	}

	var payload queryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}

	result, err := h.query.Query(c.Request.Context(), rag.QueryRequest{
		UserID:     claims.UserID,
		SessionID:  payload.SessionID,
		Question:   payload.Question,
		TopK:       payload.TopK,
		UseHistory: payload.UseHistory,
	})
	if err != nil {
		status := http.StatusInternalServerError
		code := "query_failed"
		switch {
		case apperrors.IsCode(err, apperrors.CodeInvalidInput):
			status = http.StatusBadRequest
			code = "invalid_request"
		case apperrors.IsCode(err, apperrors.CodeVectorIndexUnavailable):
			status = http.StatusFailedDependency
			code = "index_unavailable"
		case apperrors.IsCode(err, apperrors.CodeEmbeddingUnavailable):
			status = http.StatusFailedDependency
			code = "embedding_unavailable"
		case apperrors.IsCode(err, apperrors.CodeGenerationUnavailable):
			status = http.StatusFailedDependency
			code = "generation_unavailable"
		case apperrors.IsCode(err, apperrors.CodeGenerationTimeout), apperrors.IsCode(err, apperrors.CodeDeadlineExceeded):
			status = http.StatusGatewayTimeout
			code = "deadline_exceeded"
		}
		abortWithError(c, NewHTTPError(status, code, errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, result)
}

// History returns a session's message log, oldest-to-newest in the
// requested slice.
func (h *Handler) History(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
		return
	}
	sessionID := c.Param("session_id")
	meta, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil || meta == nil {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "session not found", err))
		return
	}
	if meta.UserID != claims.UserID {
		abortWithError(c, NewHTTPError(http.StatusForbidden, "forbidden", "session does not belong to caller", nil))
		return
	}

	limit := queryInt(c, "limit", 50)
	offset := queryInt(c, "offset", 0)
	messages, err := h.sessions.Recent(c.Request.Context(), sessionID, limit+offset)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	total := len(messages)
	if offset > total {
		offset = total
	}
	end := offset + limit
	if end > total {
		end = total
	}
	c.JSON(http.StatusOK, gin.H{
		"messages":    messages[offset:end],
		"total_count": total,
		"session_id":  sessionID,
	})
}

// ListSessions returns the caller's sessions, newest-first by last
// activity.
func (h *Handler) ListSessions(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
		return
	}
	limit := queryInt(c, "limit", 20)
	offset := queryInt(c, "offset", 0)
	sessions, err := h.sessions.ListSessions(c.Request.Context(), claims.UserID, limit, offset)
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "fetch_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// DeleteSession removes a session owned by the caller.
func (h *Handler) DeleteSession(c *gin.Context) {
	claims, ok := getClaims(c)
	if !ok {
		abortWithError(c, NewHTTPError(http.StatusUnauthorized, "unauthorized", "missing token", nil))
		return
	}
	sessionID := c.Param("session_id")
	meta, err := h.sessions.Get(c.Request.Context(), sessionID)
	if err != nil || meta == nil {
		abortWithError(c, NewHTTPError(http.StatusNotFound, "not_found", "session not found", err))
		return
	}
	if meta.UserID != claims.UserID {
		abortWithError(c, NewHTTPError(http.StatusForbidden, "forbidden", "session does not belong to caller", nil))
		return
	}
	if err := h.sessions.Delete(c.Request.Context(), sessionID, claims.UserID); err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "delete_failed", errMessage(err), err))
		return
	}
	c.Status(http.StatusNoContent)
}

type evaluatePayload struct {
	Question    string   `json:"question"`
	Answer      string   `json:"answer"`
	Contexts    []string `json:"contexts"`
	GroundTruth string   `json:"ground_truth"`
}

// Evaluate scores a question/answer/contexts triple against the
// composite rubric (§6, §9).
func (h *Handler) Evaluate(c *gin.Context) {
	var payload evaluatePayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		abortWithError(c, NewHTTPError(http.StatusBadRequest, "invalid_request", errMessage(err), err))
		return
	}
	scores, err := h.evaluator.Evaluate(c.Request.Context(), evaluation.Request{
		Question:    payload.Question,
		Answer:      payload.Answer,
		Contexts:    payload.Contexts,
		GroundTruth: payload.GroundTruth,
	})
	if err != nil {
		abortWithError(c, NewHTTPError(http.StatusInternalServerError, "evaluate_failed", errMessage(err), err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"scores": scores})
}

func queryInt(c *gin.Context, key string, def int) int {
	raw := c.Query(key)
	if raw == "" {
		return def
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return def
	}
	return n
}
