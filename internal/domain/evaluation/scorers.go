package evaluation

import "context"

// FaithfulnessScorer approximates RAGAS-style faithfulness: the fraction
// of the answer's vocabulary that is also present in the supplied
// contexts. An answer built entirely from words absent from every
// context scores 0; an answer using only context vocabulary scores 1.
type FaithfulnessScorer struct{}

func (FaithfulnessScorer) Name() string { return "faithfulness" }

func (FaithfulnessScorer) Score(_ context.Context, req Request) (float64, string, error) {
	answerTokens := tokenSet(req.Answer)
	if len(answerTokens) == 0 {
		return 1, "empty answer is vacuously faithful", nil
	}
	contextTokens := make(map[string]struct{})
	for _, c := range req.Contexts {
		for tok := range tokenSet(c) {
			contextTokens[tok] = struct{}{}
		}
	}
	if len(contextTokens) == 0 {
		return 0, "no contexts supplied to ground the answer against", nil
	}
	score := float64(overlapCount(answerTokens, contextTokens)) / float64(len(answerTokens))
	return score, "", nil
}

// CorrectnessScorer compares the answer against a ground-truth answer
// via Jaccard similarity over their vocabularies. Without a ground
// truth the component cannot be evaluated and scores 1 (excluded from
// penalizing the composite) with a feedback note.
type CorrectnessScorer struct{}

func (CorrectnessScorer) Name() string { return "correctness" }

func (CorrectnessScorer) Score(_ context.Context, req Request) (float64, string, error) {
	if req.GroundTruth == "" {
		return 1, "no ground_truth supplied; correctness not evaluated", nil
	}
	answerTokens := tokenSet(req.Answer)
	truthTokens := tokenSet(req.GroundTruth)
	union := unionTokens(answerTokens, truthTokens)
	if len(union) == 0 {
		return 1, "", nil
	}
	score := float64(overlapCount(answerTokens, truthTokens)) / float64(len(union))
	return score, "", nil
}

// PrecisionScorer approximates context precision: the fraction of
// supplied contexts that share any vocabulary with the question, i.e.
// contexts that were plausibly relevant to retrieve at all.
type PrecisionScorer struct{}

func (PrecisionScorer) Name() string { return "precision" }

func (PrecisionScorer) Score(_ context.Context, req Request) (float64, string, error) {
	if len(req.Contexts) == 0 {
		return 0, "no contexts supplied", nil
	}
	questionTokens := tokenSet(req.Question)
	relevant := 0
	for _, c := range req.Contexts {
		if overlapCount(questionTokens, tokenSet(c)) > 0 {
			relevant++
		}
	}
	return float64(relevant) / float64(len(req.Contexts)), "", nil
}

// RecallScorer approximates context recall: the fraction of the
// ground-truth's vocabulary (or, absent one, the question's vocabulary)
// that appears somewhere across the supplied contexts.
type RecallScorer struct{}

func (RecallScorer) Name() string { return "recall" }

func (RecallScorer) Score(_ context.Context, req Request) (float64, string, error) {
	target := req.GroundTruth
	note := ""
	if target == "" {
		target = req.Question
		note = "no ground_truth supplied; recall measured against the question"
	}
	targetTokens := tokenSet(target)
	if len(targetTokens) == 0 {
		return 1, note, nil
	}
	contextTokens := make(map[string]struct{})
	for _, c := range req.Contexts {
		for tok := range tokenSet(c) {
			contextTokens[tok] = struct{}{}
		}
	}
	return float64(overlapCount(targetTokens, contextTokens)) / float64(len(targetTokens)), note, nil
}

// toxicTerms is a small closed blocklist; this is a lexical floor, not a
// substitute for a real moderation model.
var toxicTerms = map[string]struct{}{
	"kill": {}, "hate": {}, "idiot": {}, "stupid": {}, "attack": {},
}

// ToxicityScorer scores the ABSENCE of toxicity — 1 means clean, 0 means
// every token in the answer matched the blocklist — so it composes the
// same direction ("higher is better") as the other four scorers.
type ToxicityScorer struct{}

func (ToxicityScorer) Name() string { return "toxicity" }

func (ToxicityScorer) Score(_ context.Context, req Request) (float64, string, error) {
	answerTokens := tokenSet(req.Answer)
	if len(answerTokens) == 0 {
		return 1, "", nil
	}
	hits := overlapCount(answerTokens, toxicTerms)
	return 1 - float64(hits)/float64(len(answerTokens)), "", nil
}
