package evaluation

import (
	"context"
	"fmt"
)

// componentWeights are spec.md §9's fixed composite weights: 0.30
// faithfulness, 0.25 correctness, 0.25 precision, 0.15 recall,
// 0.05 toxicity.
const (
	weightFaithfulness = 0.30
	weightCorrectness  = 0.25
	weightPrecision    = 0.25
	weightRecall       = 0.15
	weightToxicity     = 0.05
)

// CompositeEvaluator runs each named scorer in turn and merges their
// results into one Scores value, mirroring Tangerg-lynx's
// CompositeEvaluator's sequential-run-then-merge shape.
type CompositeEvaluator struct {
	faithfulness Scorer
	correctness  Scorer
	precision    Scorer
	recall       Scorer
	toxicity     Scorer
}

// NewCompositeEvaluator constructs the default lexical-overlap
// evaluator. The five slots are concrete types, not swappable at
// construction, because spec.md §9 pins both the component set and
// their weights as part of the contract.
func NewCompositeEvaluator() *CompositeEvaluator {
	return &CompositeEvaluator{
		faithfulness: FaithfulnessScorer{},
		correctness:  CorrectnessScorer{},
		precision:    PrecisionScorer{},
		recall:       RecallScorer{},
		toxicity:     ToxicityScorer{},
	}
}

// Evaluate scores req against every component and returns the weighted
// composite.
func (c *CompositeEvaluator) Evaluate(ctx context.Context, req Request) (Scores, error) {
	feedback := make(map[string]string)

	faithfulness, note, err := c.faithfulness.Score(ctx, req)
	if err != nil {
		return Scores{}, fmt.Errorf("faithfulness: %w", err)
	}
	addFeedback(feedback, "faithfulness", note)

	correctness, note, err := c.correctness.Score(ctx, req)
	if err != nil {
		return Scores{}, fmt.Errorf("correctness: %w", err)
	}
	addFeedback(feedback, "correctness", note)

	precision, note, err := c.precision.Score(ctx, req)
	if err != nil {
		return Scores{}, fmt.Errorf("precision: %w", err)
	}
	addFeedback(feedback, "precision", note)

	recall, note, err := c.recall.Score(ctx, req)
	if err != nil {
		return Scores{}, fmt.Errorf("recall: %w", err)
	}
	addFeedback(feedback, "recall", note)

	toxicity, note, err := c.toxicity.Score(ctx, req)
	if err != nil {
		return Scores{}, fmt.Errorf("toxicity: %w", err)
	}
	addFeedback(feedback, "toxicity", note)

	composite := weightFaithfulness*faithfulness + weightCorrectness*correctness +
		weightPrecision*precision + weightRecall*recall + weightToxicity*toxicity

	return Scores{
		Faithfulness: faithfulness,
		Correctness:  correctness,
		Precision:    precision,
		Recall:       recall,
		Toxicity:     toxicity,
		Composite:    composite,
		Feedback:     feedback,
	}, nil
}

func addFeedback(m map[string]string, key, note string) {
	if note != "" {
		m[key] = note
	}
}
