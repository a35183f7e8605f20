package retrieval

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/config"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/embedders"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/observability"
	"github.com/Edwarddev0723/LLM-TA-sub000/pkg/vector"
)

// ErrUnavailable marks a retrieval failure the pipeline should degrade
// around rather than surface: the turn proceeds with an empty reference set.
var ErrUnavailable = errors.New("retrieval unavailable")

// Retriever is the corpus search service. Safe for concurrent use.
type Retriever struct {
	embedder   embedders.Embedder
	store      vector.Provider
	collection string

	maxResults    int
	minSimilarity float32
	timeout       time.Duration

	logger *slog.Logger
	tracer trace.Tracer
}

// Option configures a Retriever.
type Option func(*Retriever)

// WithLogger overrides the default logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Retriever) { r.logger = l }
}

// New creates a Retriever over the given embedder and vector store.
func New(embedder embedders.Embedder, store vector.Provider, collection string, cfg *config.TutoringConfig, opts ...Option) (*Retriever, error) {
	if embedder == nil {
		return nil, fmt.Errorf("embedder is required")
	}
	if store == nil {
		return nil, fmt.Errorf("vector store is required")
	}
	if collection == "" {
		return nil, fmt.Errorf("collection is required")
	}
	if cfg == nil {
		cfg = &config.TutoringConfig{}
		cfg.SetDefaults()
	}

	r := &Retriever{
		embedder:      embedder,
		store:         store,
		collection:    collection,
		maxResults:    cfg.RetrievalMaxResults,
		minSimilarity: float32(cfg.RetrievalMinSimilarity),
		timeout:       time.Duration(cfg.RetrievalTimeoutSeconds) * time.Second,
		logger:        slog.Default(),
		tracer:        observability.GetTracer("retrieval"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Retrieve embeds the query and searches the corpus. Store-side filtering
// is exact-match only (question_id, category); concept-tag matching is
// any-of semantics, so it runs here after the similarity search.
func (r *Retriever) Retrieve(ctx context.Context, query string, sc SearchContext) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	ctx, span := r.tracer.Start(ctx, observability.SpanRetrieval)
	defer span.End()

	result, err := r.retrieve(ctx, query, sc)
	observability.GetGlobalMetrics().RecordRetrieval(ctx, err)
	if err != nil {
		span.RecordError(err)
		r.logger.Warn("Retrieval failed", "error", err, "query_length", len(query))
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	span.SetAttributes(attribute.Int(observability.AttrDocsRetrieved, len(result.Documents)))
	return result, nil
}

func (r *Retriever) retrieve(ctx context.Context, query string, sc SearchContext) (*Result, error) {
	queryVec, err := r.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding failed: %w", err)
	}

	filter := make(map[string]any)
	if sc.QuestionID != "" {
		filter[metaQuestionID] = sc.QuestionID
	}
	if sc.Category != "" {
		filter[metaCategory] = string(sc.Category)
	}

	maxResults := r.maxResults
	if sc.MaxResults > 0 {
		maxResults = sc.MaxResults
	}
	minSimilarity := r.minSimilarity
	if sc.MinSimilarity > 0 {
		minSimilarity = sc.MinSimilarity
	}

	// Over-fetch so post-search tag filtering still fills maxResults.
	topK := maxResults
	if len(sc.KnowledgeNodes) > 0 {
		topK = maxResults * 4
	}

	raw, err := r.store.SearchWithFilter(ctx, r.collection, queryVec, topK, filter)
	if err != nil {
		return nil, fmt.Errorf("vector search failed: %w", err)
	}

	docs := make([]ScoredDocument, 0, len(raw))
	for _, hit := range raw {
		if hit.Score < minSimilarity {
			continue
		}
		doc := resultToDocument(hit)
		if !sharesNode(doc.KnowledgeNodes, sc.KnowledgeNodes) {
			continue
		}
		docs = append(docs, ScoredDocument{Document: doc, Score: hit.Score})
	}

	sort.SliceStable(docs, func(i, j int) bool { return docs[i].Score > docs[j].Score })

	total := len(docs)
	if len(docs) > maxResults {
		docs = docs[:maxResults]
	}

	return &Result{Documents: docs, TotalFound: total}, nil
}

// SimilarQuestions finds problems resembling the given one, using the
// source question's stored vector. The source itself is excluded, and so is
// any question sharing no concept tag with it: similarity without a common
// knowledge node is coincidence, not pedagogy.
func (r *Retriever) SimilarQuestions(ctx context.Context, questionDocID string, topK int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	src, err := r.store.Fetch(ctx, r.collection, questionDocID)
	if err != nil {
		return nil, fmt.Errorf("%w: fetch source question: %v", ErrUnavailable, err)
	}
	if src == nil || len(src.Vector) == 0 {
		return nil, fmt.Errorf("%w: question %s not indexed", ErrUnavailable, questionDocID)
	}
	var srcNodes []string
	if tags, ok := src.Metadata[metaKnowledgeNodes]; ok {
		srcNodes = splitNodes(fmt.Sprint(tags))
	}

	// Over-fetch so the tag filter still fills topK.
	fetch := topK + 1
	if len(srcNodes) > 0 {
		fetch = topK*4 + 1
	}
	raw, err := r.store.SearchWithFilter(ctx, r.collection, src.Vector, fetch, map[string]any{
		metaCategory: string(CategoryQuestion),
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	docs := make([]ScoredDocument, 0, len(raw))
	for _, hit := range raw {
		if hit.ID == questionDocID {
			continue
		}
		doc := resultToDocument(hit)
		if !sharesNode(doc.KnowledgeNodes, srcNodes) {
			continue
		}
		docs = append(docs, ScoredDocument{Document: doc, Score: hit.Score})
		if len(docs) == topK {
			break
		}
	}

	return &Result{Documents: docs, TotalFound: len(docs)}, nil
}

// Misconceptions searches the misconception corpus for the given utterance,
// restricted to the concept tags in play.
func (r *Retriever) Misconceptions(ctx context.Context, utterance string, knowledgeNodes []string) (*Result, error) {
	return r.Retrieve(ctx, utterance, SearchContext{
		Category:       CategoryMisconception,
		KnowledgeNodes: knowledgeNodes,
	})
}

// Solutions fetches the reference solutions for a problem.
func (r *Retriever) Solutions(ctx context.Context, questionID string) (*Result, error) {
	return r.Retrieve(ctx, questionID, SearchContext{
		Category:   CategorySolution,
		QuestionID: questionID,
	})
}

// Index embeds and stores one document.
func (r *Retriever) Index(ctx context.Context, doc Document) error {
	if doc.ID == "" {
		return fmt.Errorf("document id is required")
	}
	if doc.Content == "" {
		return fmt.Errorf("document content is required")
	}

	vec, err := r.embedder.Embed(ctx, doc.Content)
	if err != nil {
		return fmt.Errorf("failed to embed document %s: %w", doc.ID, err)
	}

	metadata := map[string]any{
		metaContent:  doc.Content,
		metaCategory: string(doc.Category),
	}
	if doc.QuestionID != "" {
		metadata[metaQuestionID] = doc.QuestionID
	}
	if len(doc.KnowledgeNodes) > 0 {
		metadata[metaKnowledgeNodes] = joinNodes(doc.KnowledgeNodes)
	}
	for k, v := range doc.Metadata {
		if _, reserved := metadata[k]; !reserved {
			metadata[k] = v
		}
	}

	if err := r.store.Upsert(ctx, r.collection, doc.ID, vec, metadata); err != nil {
		return fmt.Errorf("failed to index document %s: %w", doc.ID, err)
	}

	r.logger.Debug("Indexed document", "id", doc.ID, "category", doc.Category)
	return nil
}

// IndexBatch indexes documents with bounded concurrency. The first failure
// cancels the remaining work.
func (r *Retriever) IndexBatch(ctx context.Context, docs []Document, concurrency int) error {
	if concurrency <= 0 {
		concurrency = 4
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(concurrency)

	for _, doc := range docs {
		g.Go(func() error {
			return r.Index(ctx, doc)
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("batch indexing failed: %w", err)
	}

	r.logger.Info("Indexed corpus batch", "documents", len(docs))
	return nil
}

// Close releases the embedder and the vector store.
func (r *Retriever) Close() error {
	embErr := r.embedder.Close()
	storeErr := r.store.Close()
	if embErr != nil {
		return embErr
	}
	return storeErr
}

func resultToDocument(hit vector.Result) Document {
	doc := Document{
		ID:      hit.ID,
		Content: hit.Content,
	}

	metadata := make(map[string]string)
	for k, v := range hit.Metadata {
		s := fmt.Sprint(v)
		switch k {
		case metaContent:
			if doc.Content == "" {
				doc.Content = s
			}
		case metaCategory:
			doc.Category = Category(s)
		case metaQuestionID:
			doc.QuestionID = s
		case metaKnowledgeNodes:
			doc.KnowledgeNodes = splitNodes(s)
		default:
			metadata[k] = s
		}
	}
	if len(metadata) > 0 {
		doc.Metadata = metadata
	}

	return doc
}
