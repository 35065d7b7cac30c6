package evaluation

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluateFaithfulAnswerScoresHigh(t *testing.T) {
	e := NewCompositeEvaluator()
	scores, err := e.Evaluate(context.Background(), Request{
		Question: "What are the support hours?",
		Answer:   "Support hours are 9am to 5pm",
		Contexts: []string{"Our support hours are 9am to 5pm, Monday to Friday."},
	})
	require.NoError(t, err)
	assert.Greater(t, scores.Faithfulness, 0.5)
	assert.Greater(t, scores.Precision, 0.0)
	assert.Greater(t, scores.Composite, 0.0)
}

func TestEvaluateUnsupportedAnswerScoresLowFaithfulness(t *testing.T) {
	e := NewCompositeEvaluator()
	scores, err := e.Evaluate(context.Background(), Request{
		Question: "What are the support hours?",
		Answer:   "Quantum entanglement explains teleportation",
		Contexts: []string{"Our support hours are 9am to 5pm, Monday to Friday."},
	})
	require.NoError(t, err)
	assert.Equal(t, 0.0, scores.Faithfulness)
}

func TestEvaluateWithoutGroundTruthSkipsCorrectness(t *testing.T) {
	e := NewCompositeEvaluator()
	scores, err := e.Evaluate(context.Background(), Request{
		Question: "q", Answer: "a", Contexts: []string{"c"},
	})
	require.NoError(t, err)
	assert.Equal(t, 1.0, scores.Correctness)
	assert.Contains(t, scores.Feedback["correctness"], "no ground_truth")
}

func TestEvaluateToxicAnswerPenalized(t *testing.T) {
	e := NewCompositeEvaluator()
	scores, err := e.Evaluate(context.Background(), Request{
		Question: "q", Answer: "I hate this and will attack", Contexts: []string{"c"},
	})
	require.NoError(t, err)
	assert.Less(t, scores.Toxicity, 1.0)
}
