package chunker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ragserve/core/internal/domain/rag"
)

func TestInferContentType(t *testing.T) {
	ct, err := InferContentType("report.PDF")
	require.NoError(t, err)
	assert.Equal(t, rag.ContentTypePDF, ct)

	ct, err = InferContentType("notes.txt")
	require.NoError(t, err)
	assert.Equal(t, rag.ContentTypeTXT, ct)

	_, err = InferContentType("archive.zip")
	assert.Error(t, err)
}

func TestChunkContiguity(t *testing.T) {
	text := "Our support hours are 9am to 5pm, Monday to Friday. Contact support@example.com for help. "
	// Repeat to force multiple chunks under a tiny budget.
	long := ""
	for i := 0; i < 50; i++ {
		long += text
	}

	c := New(nil)
	candidates, err := c.Chunk(context.Background(), "faq.txt", []byte(long), rag.ContentTypeTXT, rag.ChunkOptions{
		MaxChunkChars: 200,
		MinChunkChars: 50,
		OverlapChars:  20,
	})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)

	for i, cand := range candidates {
		assert.Equal(t, i, cand.Ordinal, "ordinals must be contiguous and 0-based")
		assert.NotEmpty(t, cand.Text)
	}
}

func TestChunkEmptyDocumentSkipped(t *testing.T) {
	c := New(nil)
	candidates, err := c.Chunk(context.Background(), "empty.txt", []byte("   \n\t  "), rag.ContentTypeTXT, rag.ChunkOptions{})
	require.NoError(t, err)
	assert.Nil(t, candidates)
}

func TestChunkUnsupportedContentType(t *testing.T) {
	c := New(nil)
	_, err := c.Chunk(context.Background(), "x.bin", []byte("hi"), rag.ContentType("bin"), rag.ChunkOptions{})
	assert.Error(t, err)
}

type fakeEmbedder struct{}

func (fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		out[i] = []float32{float32(len(t)), 1}
	}
	return out, nil
}
func (fakeEmbedder) EmbedOne(ctx context.Context, text string) ([]float32, error) {
	v, err := fakeEmbedder{}.Embed(ctx, []string{text})
	return v[0], err
}
func (fakeEmbedder) Dimension() int { return 2 }

func TestSemanticChunkingFallsBackGracefully(t *testing.T) {
	c := New(fakeEmbedder{})
	text := "First sentence here. Second sentence follows. Third one too. Fourth and final sentence."
	candidates, err := c.Chunk(context.Background(), "doc.txt", []byte(text), rag.ContentTypeTXT, rag.ChunkOptions{
		MaxChunkChars:       2800,
		MinChunkChars:       10,
		OverlapChars:        5,
		UseSemantic:         true,
		SimilarityThreshold: 0.75,
	})
	require.NoError(t, err)
	require.NotEmpty(t, candidates)
	for i, cand := range candidates {
		assert.Equal(t, i, cand.Ordinal)
	}
}

func TestSnapToSentence(t *testing.T) {
	text := "Alpha sentence ends here. Beta continues on and on and on."
	runes := []rune(text)
	end := snapToSentence(runes, 0, 30)
	assert.LessOrEqual(t, end, 30)
}

func TestSplitSentences(t *testing.T) {
	sentences := splitSentences("Hello world. How are you? I am fine!")
	require.Len(t, sentences, 3)
	assert.Equal(t, "Hello world.", sentences[0])
}

func TestMergeTargetPrefersHigherBoundarySimilarity(t *testing.T) {
	groups := []sentenceGroup{
		{indices: []int{0}, texts: []string{"a"}},
		{indices: []int{1}, texts: []string{"b"}},
		{indices: []int{2}, texts: []string{"c"}},
	}
	vectors := [][]float32{
		{1, 0}, // group 0
		{0, 1}, // group 1: orthogonal to group 0, identical to group 2
		{0, 1}, // group 2
	}

	assert.Equal(t, 2, mergeTarget(groups, vectors, 1), "undersized middle group should merge toward its more similar neighbor")
}

func TestMergeTargetTieGoesToPreviousGroup(t *testing.T) {
	groups := []sentenceGroup{
		{indices: []int{0}, texts: []string{"a"}},
		{indices: []int{1}, texts: []string{"b"}},
		{indices: []int{2}, texts: []string{"c"}},
	}
	vectors := [][]float32{
		{1, 0},
		{1, 0},
		{1, 0},
	}

	assert.Equal(t, 0, mergeTarget(groups, vectors, 1), "equal boundary similarity must favor the previous group")
}
