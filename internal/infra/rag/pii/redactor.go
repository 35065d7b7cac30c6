// Package pii implements C6: regex-based detection and redaction of a
// closed set of PII categories. Chunks keep their text intact in C3;
// only Generator output is redacted, per spec.md §4.6/§4.9.
package pii

import (
	"regexp"
	"sort"

	"github.com/ragserve/core/internal/domain/rag"
)

// Category names form the closed, implementation-declared enum
// spec.md §4.6 requires.
const (
	CategoryEmail      = "email"
	CategoryPhone      = "phone"
	CategoryNationalID = "national_id"
	CategoryCreditCard = "credit_card"
)

var patterns = []struct {
	category string
	re       *regexp.Regexp
}{
	{CategoryEmail, regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)},
	{CategoryCreditCard, regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)},
	{CategoryPhone, regexp.MustCompile(`\b(?:\+?\d{1,3}[ .\-]?)?\(?\d{3}\)?[ .\-]?\d{3}[ .\-]?\d{4}\b`)},
	{CategoryNationalID, regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)},
}

// Redactor detects and masks PII via a fixed set of compiled regexes.
// Deterministic on identical input, as spec.md §4.6 requires. No library
// in the retrieval pack offers PII detection; regexp is the standard
// library's own pattern-matching primitive, so no third-party
// dependency fits this concern better.
type Redactor struct{}

// NewRedactor constructs a Redactor. It holds no state.
func NewRedactor() *Redactor {
	return &Redactor{}
}

var _ rag.PIIRedactor = (*Redactor)(nil)

// Detect scans text and returns every category observed plus the spans
// that triggered it, ordered by position and then by pattern priority
// so ties are deterministic. Credit-card detection runs before phone so
// a 16-digit run isn't also claimed as a phone number.
func (r *Redactor) Detect(text string) rag.PIIDetection {
	var spans []rag.PIISpan
	seen := make(map[string]bool)
	claimed := make([]bool, len(text))

	for _, p := range patterns {
		for _, loc := range p.re.FindAllStringIndex(text, -1) {
			start, end := loc[0], loc[1]
			if rangeClaimed(claimed, start, end) {
				continue
			}
			markClaimed(claimed, start, end)
			spans = append(spans, rag.PIISpan{Category: p.category, Start: start, End: end})
			seen[p.category] = true
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].Start < spans[j].Start })

	var categories []string
	for _, p := range patterns {
		if seen[p.category] {
			categories = append(categories, p.category)
		}
	}
	return rag.PIIDetection{Categories: categories, Spans: spans}
}

// Redact replaces every detected span with a category-tagged mask.
func (r *Redactor) Redact(text string) string {
	detection := r.Detect(text)
	if len(detection.Spans) == 0 {
		return text
	}
	out := make([]byte, 0, len(text))
	last := 0
	for _, span := range detection.Spans {
		out = append(out, text[last:span.Start]...)
		out = append(out, []byte("["+span.Category+" redacted]")...)
		last = span.End
	}
	out = append(out, text[last:]...)
	return string(out)
}

func rangeClaimed(claimed []bool, start, end int) bool {
	for i := start; i < end; i++ {
		if claimed[i] {
			return true
		}
	}
	return false
}

func markClaimed(claimed []bool, start, end int) {
	for i := start; i < end; i++ {
		claimed[i] = true
	}
}
