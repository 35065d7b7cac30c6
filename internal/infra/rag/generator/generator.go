// Package generator implements C9: building a grounded, citation-aware
// prompt and calling the language model, adapted from the teacher's
// Service.buildPrompt/answerWithPrompt (internal/domain/uploadask/
// service.go) — same three-section message assembly, generalized into
// spec.md §4.9's SYSTEM/RECENT DIALOG/EVIDENCE/QUESTION layout with a
// strict anti-hallucination system instruction and citation parsing.
package generator

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/pkoukk/tiktoken-go"

	apperrors "github.com/ragserve/core/pkg/errors"

	"github.com/ragserve/core/internal/domain/rag"
	"github.com/ragserve/core/internal/infra/llm/chatgpt"
)

const (
	maxHistoryMessages = 6
	citationPreviewLen = 300
	noEvidenceAnswer   = "I cannot answer from the available evidence"
)

var citationPattern = regexp.MustCompile(`\[(\d+)\]`)

// tokenEncoder mirrors C2's cl100k_base choice (internal/infra/rag/
// embedder/openai.go) so prompt/completion accounting uses the same
// tokenizer the embedding call itself is billed against. Falls back to
// a char/4 estimate when the encoding tables fail to load.
var tokenEncoder *tiktoken.Tiktoken

func init() {
	enc, err := tiktoken.GetEncoding("cl100k_base")
	if err == nil {
		tokenEncoder = enc
	}
}

// Generator builds a grounded prompt and calls the chat completion API.
type Generator struct {
	client  *chatgpt.Client
	model   string
	timeout time.Duration
}

// New constructs a Generator. timeout defaults to spec.md §4.9's 60s.
func New(client *chatgpt.Client, model string, timeout time.Duration) *Generator {
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &Generator{client: client, model: model, timeout: timeout}
}

var _ rag.Generator = (*Generator)(nil)

// Generate builds the prompt, calls the model under a wall-clock
// timeout, and resolves citation markers against the context list.
func (g *Generator) Generate(ctx context.Context, req rag.GenerateRequest) (rag.GenerateResponse, error) {
	// §7's anti-hallucination invariant pins this answer verbatim rather
	// than leaving wording to the model when no evidence was retrieved.
	if req.NoEvidence {
		return rag.GenerateResponse{Answer: noEvidenceAnswer}, nil
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	messages := g.buildMessages(req)

	resp, err := g.client.CreateChatCompletion(ctx, chatgpt.ChatCompletionRequest{
		Model:    g.model,
		Messages: messages,
	})
	if err != nil {
		if ctx.Err() != nil {
			return rag.GenerateResponse{}, apperrors.Wrap(apperrors.CodeGenerationTimeout, "generation timed out", ctx.Err())
		}
		if isSafetyRefusal(err) {
			return rag.GenerateResponse{}, apperrors.Wrap(apperrors.CodeGenerationBlocked, "generation blocked by safety policy", err)
		}
		return rag.GenerateResponse{}, apperrors.Wrap(apperrors.CodeGenerationUnavailable, "generation failed", err)
	}
	if len(resp.Choices) == 0 {
		return rag.GenerateResponse{}, apperrors.Wrap(apperrors.CodeGenerationUnavailable, "no completion returned", nil)
	}

	answer := resp.Choices[0].Message.Content
	citations := extractCitations(answer, req.Contexts)

	return rag.GenerateResponse{
		Answer:           answer,
		Citations:        citations,
		PromptTokens:     estimatePromptTokens(messages),
		CompletionTokens: estimateTokenCount(answer),
	}, nil
}

func (g *Generator) buildMessages(req rag.GenerateRequest) []chatgpt.Message {
	var messages []chatgpt.Message

	messages = append(messages, chatgpt.Message{Role: "system", Content: g.systemInstructions(req)})

	history := req.History
	if len(history) > maxHistoryMessages {
		history = history[len(history)-maxHistoryMessages:]
	}
	for _, msg := range history {
		messages = append(messages, chatgpt.Message{Role: string(msg.Role), Content: msg.Content})
	}

	messages = append(messages, chatgpt.Message{Role: "system", Content: "EVIDENCE:\n" + g.buildEvidenceBlock(req)})
	messages = append(messages, chatgpt.Message{Role: "user", Content: "QUESTION:\n" + req.Query})

	return messages
}

func (g *Generator) systemInstructions(req rag.GenerateRequest) string {
	var b strings.Builder
	b.WriteString("SYSTEM INSTRUCTIONS:\n")
	b.WriteString("Answer only from the evidence provided; if the evidence is insufficient, say so explicitly.\n")
	b.WriteString("Cite evidence by its numeric index in square brackets, e.g. [1].\n")

	var categories []string
	seen := make(map[string]bool)
	for _, c := range req.Contexts {
		for _, cat := range c.Chunk.PIICategories {
			if !seen[cat] {
				seen[cat] = true
				categories = append(categories, cat)
			}
		}
	}
	if len(categories) > 0 {
		fmt.Fprintf(&b, "Redact the following categories of personal information from your answer: %s.\n", strings.Join(categories, ", "))
	}
	if req.NoEvidence {
		b.WriteString("No relevant evidence was found for this question; state that clearly instead of guessing.\n")
	}
	return b.String()
}

func (g *Generator) buildEvidenceBlock(req rag.GenerateRequest) string {
	if len(req.Contexts) == 0 {
		return "(no evidence)"
	}
	var b strings.Builder
	for i, c := range req.Contexts {
		fmt.Fprintf(&b, "[%d] %s\n", i+1, c.Chunk.Text)
	}
	return b.String()
}

// extractCitations parses `[k]` markers, resolves each to its 1-indexed
// context, silently drops unresolvable indices, and de-duplicates
// preserving first-seen order.
func extractCitations(answer string, contexts []rag.Candidate) []rag.Citation {
	var citations []rag.Citation
	seenIndex := make(map[int]bool)

	for _, match := range citationPattern.FindAllStringSubmatch(answer, -1) {
		k, err := strconv.Atoi(match[1])
		if err != nil || k < 1 || k > len(contexts) {
			continue
		}
		if seenIndex[k] {
			continue
		}
		seenIndex[k] = true

		chunk := contexts[k-1].Chunk
		excerpt := chunk.Text
		if len(excerpt) > citationPreviewLen {
			excerpt = excerpt[:citationPreviewLen]
		}
		citations = append(citations, rag.Citation{
			Index:   k,
			DocID:   chunk.DocID,
			ChunkID: chunk.ID,
			Excerpt: excerpt,
		})
	}
	return citations
}

func isSafetyRefusal(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "content_filter") || strings.Contains(msg, "safety") || strings.Contains(msg, "refused")
}

func estimatePromptTokens(messages []chatgpt.Message) int {
	total := 0
	for _, m := range messages {
		total += estimateTokenCount(m.Content)
	}
	return total
}

func estimateTokenCount(text string) int {
	if tokenEncoder != nil {
		return len(tokenEncoder.Encode(text, nil, nil))
	}
	return (len(text) + 3) / 4
}
