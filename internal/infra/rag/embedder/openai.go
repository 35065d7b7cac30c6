// Package embedder implements C2: turning text into fixed-dimension
// vectors, with batching and retry on transient upstream errors.
package embedder

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	apperrors "github.com/ragserve/core/pkg/errors"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/llm/chatgpt"
)

const maxBatchTokens = 200_000

// tokenEncoder is shared across embedders; cl100k_base mirrors the
// teacher's SimpleChunker tokenizer choice. Falls back to a char/4
// estimate when the encoding tables fail to load.
var tokenEncoder *tiktoken.Tiktoken

func init() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		tokenEncoder = enc
	}
}

// retryDelays are the exponential backoffs spec.md §4.2/§4.12 specifies:
// 100ms, 400ms, 1600ms, each jittered +/-20%.
var retryDelays = []time.Duration{100 * time.Millisecond, 400 * time.Millisecond, 1600 * time.Millisecond}

// OpenAIEmbedder calls an OpenAI-compatible embeddings API, adapted from
// the teacher's ChatGPTEmbedder with a retry loop added per spec.md's
// EmbeddingUnavailable-after-3-retries contract.
type OpenAIEmbedder struct {
	client *chatgpt.Client
	model  string
	dim    int
	logger *slog.Logger
}

// NewOpenAIEmbedder constructs an embedder backed by the chat API client.
func NewOpenAIEmbedder(client *chatgpt.Client, model string, dim int, logger *slog.Logger) *OpenAIEmbedder {
	if logger == nil {
		logger = slog.Default()
	}
	return &OpenAIEmbedder{
		client: client,
		model:  strings.TrimSpace(model),
		dim:    dim,
		logger: logger.With("component", "rag.embedder.openai"),
	}
}

var _ rag.Embedder = (*OpenAIEmbedder)(nil)

func (e *OpenAIEmbedder) Dimension() int { return e.dim }

// EmbedOne embeds a single, non-empty string.
func (e *OpenAIEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	if strings.TrimSpace(text) == "" {
		return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "cannot embed empty text", nil)
	}
	vectors, err := e.Embed(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// Embed embeds a batch of texts, preserving order, splitting transparently
// by an estimated token budget, and retrying transient failures 3 times
// with jittered exponential backoff before surfacing EmbeddingUnavailable.
func (e *OpenAIEmbedder) Embed(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}
	for _, t := range texts {
		if strings.TrimSpace(t) == "" {
			return nil, apperrors.Wrap(apperrors.CodeInvalidInput, "cannot embed empty text", nil)
		}
	}

	var (
		out         [][]float32
		batch       []string
		batchTokens int
	)

	flush := func() error {
		if len(batch) == 0 {
			return nil
		}
		resp, err := e.createEmbeddingWithRetry(ctx, batch)
		if err != nil {
			return err
		}
		for _, item := range resp.Data {
			vec := make([]float32, len(item.Embedding))
			copy(vec, item.Embedding)
			out = append(out, vec)
		}
		if len(resp.Data) != len(batch) {
			e.logger.Warn("embedding result count mismatch", "expected", len(batch), "got", len(resp.Data))
		}
		batch = batch[:0]
		batchTokens = 0
		return nil
	}

	for _, text := range texts {
		tokens := estimateTokens(text)
		if batchTokens+tokens > maxBatchTokens && len(batch) > 0 {
			if err := flush(); err != nil {
				return nil, err
			}
		}
		batch = append(batch, text)
		batchTokens += tokens
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return out, nil
}

func (e *OpenAIEmbedder) createEmbeddingWithRetry(ctx context.Context, batch []string) (chatgpt.EmbeddingResponse, error) {
	req := chatgpt.EmbeddingRequest{Model: e.model, Input: batch}

	var lastErr error
	for attempt := 0; attempt <= len(retryDelays); attempt++ {
		resp, err := e.client.CreateEmbedding(ctx, req)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if attempt == len(retryDelays) {
			break
		}
		delay := jitter(retryDelays[attempt])
		e.logger.Warn("embedding call failed, retrying", "attempt", attempt+1, "delay", delay, "err", err)
		select {
		case <-ctx.Done():
			return chatgpt.EmbeddingResponse{}, ctx.Err()
		case <-time.After(delay):
		}
	}
	return chatgpt.EmbeddingResponse{}, apperrors.Wrap(apperrors.CodeEmbeddingUnavailable, "embedding unavailable after retries", fmt.Errorf("create embedding: %w", lastErr))
}

func jitter(d time.Duration) time.Duration {
	pct := 0.8 + rand.Float64()*0.4 // +/-20%
	return time.Duration(float64(d) * pct)
}

// estimateTokens counts tokens via the same cl100k_base encoder the
// teacher's SimpleChunker uses, falling back to a char/4 estimate if the
// encoder failed to load.
func estimateTokens(text string) int {
	if text == "" {
		return 0
	}
	if tokenEncoder != nil {
		return len(tokenEncoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
