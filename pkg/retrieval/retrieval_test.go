package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/vector"
)

// fakeEmbedder returns fixed vectors keyed by text, defaulting to the
// fallback vector for unknown text.
type fakeEmbedder struct {
	vectors  map[string][]float32
	fallback []float32
	fail     bool
}

func (f *fakeEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if f.fail {
		return nil, errors.New("embedder down")
	}
	if v, ok := f.vectors[text]; ok {
		return v, nil
	}
	return f.fallback, nil
}

func (f *fakeEmbedder) Dimension() int    { return len(f.fallback) }
func (f *fakeEmbedder) ModelName() string { return "fake" }
func (f *fakeEmbedder) Close() error      { return nil }

func newTestRetriever(t *testing.T, emb *fakeEmbedder) *Retriever {
	t.Helper()

	store, err := vector.NewChromemProvider(vector.ChromemConfig{})
	require.NoError(t, err)

	cfg := &config.TutoringConfig{RetrievalMinSimilarity: 0.1}
	cfg.SetDefaults()

	r, err := New(emb, store, "corpus", cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = r.Close() })
	return r
}

func seedCorpus(t *testing.T, r *Retriever) {
	t.Helper()
	ctx := context.Background()

	docs := []Document{
		{
			ID:             "q-1",
			Content:        "Solve x^2 - 5x + 6 = 0",
			Category:       CategoryQuestion,
			QuestionID:     "q-1",
			KnowledgeNodes: []string{"quadratic", "factoring"},
		},
		{
			ID:             "q-2",
			Content:        "Factor x^2 - 9",
			Category:       CategoryQuestion,
			QuestionID:     "q-2",
			KnowledgeNodes: []string{"factoring"},
		},
		{
			ID:             "sol-1",
			Content:        "Factor into (x-2)(x-3), roots are 2 and 3",
			Category:       CategorySolution,
			QuestionID:     "q-1",
			KnowledgeNodes: []string{"quadratic", "factoring"},
		},
		{
			ID:             "mis-1",
			Content:        "Students often drop the negative root",
			Category:       CategoryMisconception,
			KnowledgeNodes: []string{"quadratic"},
		},
		{
			ID:             "mis-2",
			Content:        "Sign errors when expanding brackets",
			Category:       CategoryMisconception,
			KnowledgeNodes: []string{"expansion"},
		},
	}
	require.NoError(t, r.IndexBatch(ctx, docs, 2))
}

func defaultEmbedder() *fakeEmbedder {
	return &fakeEmbedder{
		vectors: map[string][]float32{
			"Solve x^2 - 5x + 6 = 0":                   {1, 0, 0},
			"Factor x^2 - 9":                           {0.9, 0.1, 0},
			"Factor into (x-2)(x-3), roots are 2 and 3": {0.8, 0.2, 0},
			"Students often drop the negative root":     {0, 1, 0},
			"Sign errors when expanding brackets":       {0, 0.9, 0.1},
		},
		fallback: []float32{0.5, 0.5, 0},
	}
}

func TestRetrieveFiltersByCategory(t *testing.T) {
	r := newTestRetriever(t, defaultEmbedder())
	seedCorpus(t, r)

	result, err := r.Retrieve(context.Background(), "how do I factor this", SearchContext{
		Category: CategorySolution,
	})
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "sol-1", result.Documents[0].ID)
	assert.Equal(t, CategorySolution, result.Documents[0].Category)
	assert.Equal(t, "q-1", result.Documents[0].QuestionID)
	assert.Equal(t, []string{"quadratic", "factoring"}, result.Documents[0].KnowledgeNodes)
}

func TestRetrieveKnowledgeNodeAnyOf(t *testing.T) {
	r := newTestRetriever(t, defaultEmbedder())
	seedCorpus(t, r)

	// Any-of: "quadratic" matches mis-1 but not mis-2.
	result, err := r.Misconceptions(context.Background(), "I think the answer is just 3", []string{"quadratic"})
	require.NoError(t, err)
	require.Len(t, result.Documents, 1)
	assert.Equal(t, "mis-1", result.Documents[0].ID)
}

func TestRetrieveMaxResultsAndOrdering(t *testing.T) {
	r := newTestRetriever(t, defaultEmbedder())
	seedCorpus(t, r)

	result, err := r.Retrieve(context.Background(), "Solve x^2 - 5x + 6 = 0", SearchContext{
		MaxResults: 2,
	})
	require.NoError(t, err)
	require.Len(t, result.Documents, 2)
	assert.GreaterOrEqual(t, result.TotalFound, 2)
	assert.GreaterOrEqual(t, result.Documents[0].Score, result.Documents[1].Score)
}

func TestRetrieveEmbedderFailureIsUnavailable(t *testing.T) {
	emb := defaultEmbedder()
	r := newTestRetriever(t, emb)
	seedCorpus(t, r)

	emb.fail = true
	_, err := r.Retrieve(context.Background(), "anything", SearchContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestSimilarQuestionsExcludesSource(t *testing.T) {
	emb := defaultEmbedder()
	// Nearly the same vector as q-1 but a disjoint concept: close in
	// embedding space, unrelated pedagogically.
	emb.vectors["Find sin(30) without a calculator"] = []float32{0.99, 0.01, 0}

	r := newTestRetriever(t, emb)
	seedCorpus(t, r)
	require.NoError(t, r.Index(context.Background(), Document{
		ID:             "q-trig",
		Content:        "Find sin(30) without a calculator",
		Category:       CategoryQuestion,
		QuestionID:     "q-trig",
		KnowledgeNodes: []string{"trigonometry"},
	}))

	result, err := r.SimilarQuestions(context.Background(), "q-1", 3)
	require.NoError(t, err)
	require.NotEmpty(t, result.Documents)
	for _, doc := range result.Documents {
		assert.NotEqual(t, "q-1", doc.ID, "source question must be excluded")
		assert.NotEqual(t, "q-trig", doc.ID, "questions sharing no knowledge node must be excluded")
		assert.Equal(t, CategoryQuestion, doc.Category)
	}
	assert.Equal(t, "q-2", result.Documents[0].ID)
}

func TestSimilarQuestionsUnknownSource(t *testing.T) {
	r := newTestRetriever(t, defaultEmbedder())
	seedCorpus(t, r)

	_, err := r.SimilarQuestions(context.Background(), "nope", 3)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestIndexValidation(t *testing.T) {
	r := newTestRetriever(t, defaultEmbedder())

	err := r.Index(context.Background(), Document{Content: "no id"})
	assert.Error(t, err)

	err = r.Index(context.Background(), Document{ID: "no-content"})
	assert.Error(t, err)
}

func TestSplitNodesRoundTrip(t *testing.T) {
	assert.Equal(t, []string{"a", "b"}, splitNodes(joinNodes([]string{"a", "b"})))
	assert.Nil(t, splitNodes(""))
	assert.Equal(t, []string{"a"}, splitNodes(" a , "))
}
