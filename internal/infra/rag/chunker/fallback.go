package chunker

import (
	"strings"
	"unicode/utf8"

	"github.com/ragserve/core/internal/domain/rag"
)

var sentenceTerminators = []rune{'.', '!', '?'}

// fallbackChunk implements spec.md §4.1's size-based algorithm: slide a
// window of maxChars with overlap, snapping the window end to the
// nearest sentence terminator within the last 10% of the window.
//
// Grounded structurally on the teacher's SimpleChunker (token-budget
// word accumulation with overlap-prepend), generalized here to a
// char-budget with the sentence-snap the teacher's chunker never did.
func fallbackChunk(text string, opts rag.ChunkOptions) []rag.ChunkCandidate {
	runes := []rune(text)
	if len(runes) == 0 {
		return nil
	}

	var out []rag.ChunkCandidate
	ordinal := 0
	start := 0
	for start < len(runes) {
		end := start + opts.MaxChunkChars
		if end >= len(runes) {
			end = len(runes)
		} else {
			end = snapToSentence(runes, start, end)
		}

		content := strings.TrimSpace(string(runes[start:end]))
		if content != "" {
			out = append(out, rag.ChunkCandidate{Ordinal: ordinal, Text: content})
			ordinal++
		}

		if end >= len(runes) {
			break
		}
		next := end - opts.OverlapChars
		if next <= start {
			next = end
		}
		start = next
	}
	return out
}

// snapToSentence looks for the last sentence terminator within the final
// 10% of the [start,end) window and, if found, ends the chunk there
// instead, so chunks don't cut mid-sentence.
func snapToSentence(runes []rune, start, end int) int {
	windowLen := end - start
	lookback := windowLen / 10
	if lookback <= 0 {
		return end
	}
	floor := end - lookback
	if floor < start {
		floor = start
	}
	for i := end - 1; i >= floor; i-- {
		if isSentenceTerminator(runes[i]) {
			return i + 1
		}
	}
	return end
}

func isSentenceTerminator(r rune) bool {
	for _, t := range sentenceTerminators {
		if r == t {
			return true
		}
	}
	return false
}

// splitSentences is a punctuation-based regex-free splitter, used by
// semantic chunking's sentence walk (the fallback snap above scans for
// terminators itself).
func splitSentences(text string) []string {
	var sentences []string
	var sb strings.Builder
	runes := []rune(text)
	for i := 0; i < len(runes); i++ {
		sb.WriteRune(runes[i])
		if isSentenceTerminator(runes[i]) {
			// Consume trailing quote/paren characters and whitespace as part
			// of the same sentence, mirroring common punctuation-splitter
			// behavior (e.g. `He said "hi."` stays one sentence).
			for i+1 < len(runes) && (runes[i+1] == '"' || runes[i+1] == '\'' || runes[i+1] == ')') {
				i++
				sb.WriteRune(runes[i])
			}
			sentences = append(sentences, strings.TrimSpace(sb.String()))
			sb.Reset()
		}
	}
	if rest := strings.TrimSpace(sb.String()); rest != "" {
		sentences = append(sentences, rest)
	}
	return sentences
}

func runeLen(s string) int {
	return utf8.RuneCountInString(s)
}
