// Package evaluation implements the /evaluate endpoint's composite
// scoring (spec.md §6, §9), grounded on Tangerg-lynx's Evaluator
// interface and CompositeEvaluator (ai/evaluation/evaluator.go,
// composite.go) — sequential run-then-merge over independent scorers,
// generalized from a single pass/fail Response into the five named
// scores spec.md §9 pins.
package evaluation

import (
	"context"
	"strings"
)

// Request is one /evaluate call: a question, its answer, the contexts
// the answer was (claimed to be) grounded on, and an optional
// ground-truth answer to compare against.
type Request struct {
	Question    string
	Answer      string
	Contexts    []string
	GroundTruth string
}

// Scores is the composite result, one field per named component plus
// their weighted sum.
type Scores struct {
	Faithfulness float64            `json:"faithfulness"`
	Correctness  float64            `json:"correctness"`
	Precision    float64            `json:"precision"`
	Recall       float64            `json:"recall"`
	Toxicity     float64            `json:"toxicity"`
	Composite    float64            `json:"composite"`
	Feedback     map[string]string  `json:"feedback,omitempty"`
}

// Scorer computes one named component of the composite score.
type Scorer interface {
	Name() string
	Score(ctx context.Context, req Request) (float64, string, error)
}

// tokenSet lowercases and splits on non-alphanumeric runs, producing the
// bag-of-words each lexical scorer compares against.
func tokenSet(s string) map[string]struct{} {
	fields := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	})
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if f != "" {
			set[f] = struct{}{}
		}
	}
	return set
}

func overlapCount(a, b map[string]struct{}) int {
	n := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			n++
		}
	}
	return n
}

func unionTokens(sets ...map[string]struct{}) map[string]struct{} {
	out := make(map[string]struct{})
	for _, s := range sets {
		for tok := range s {
			out[tok] = struct{}{}
		}
	}
	return out
}
