package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"sync"
	"unicode"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

// Default result sizes for list_views.
const (
	DefaultTopViews    = 3
	DefaultTopExamples = 5
)

// Embedder turns texts into vectors. Implemented by the llm providers.
type Embedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// SearchResult holds the most relevant views and examples for a text.
type SearchResult struct {
	Views    []model.ViewDoc
	Examples []model.ExampleQuery
}

// Searcher ranks catalog entries against free text. With an embedder it
// ranks by cosine similarity of embeddings, computed once per entry;
// without one, or when embedding fails, it ranks by TF-IDF overlap.
type Searcher struct {
	cat         *Catalog
	embedder    Embedder
	logger      *slog.Logger
	TopViews    int
	TopExamples int

	viewLex    *tfidfIndex
	exampleLex *tfidfIndex

	mu          sync.Mutex
	viewVecs    [][]float32
	exampleVecs [][]float32
}

// NewSearcher indexes the catalog. embedder may be nil.
func NewSearcher(cat *Catalog, embedder Embedder, logger *slog.Logger) *Searcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Searcher{
		cat:         cat,
		embedder:    embedder,
		logger:      logger,
		TopViews:    DefaultTopViews,
		TopExamples: DefaultTopExamples,
		viewLex:     newTFIDF(viewTexts(cat.Views())),
		exampleLex:  newTFIDF(exampleTexts(cat.Examples())),
	}
}

// Catalog returns the searched catalog.
func (s *Searcher) Catalog() *Catalog { return s.cat }

// Search returns the TopViews most relevant views and TopExamples most
// relevant example queries.
func (s *Searcher) Search(ctx context.Context, text string) (SearchResult, error) {
	viewScores, exampleScores, err := s.score(ctx, text)
	if err != nil {
		return SearchResult{}, err
	}

	var res SearchResult
	for _, i := range topN(viewScores, s.TopViews) {
		res.Views = append(res.Views, s.cat.views[i])
	}
	for _, i := range topN(exampleScores, s.TopExamples) {
		res.Examples = append(res.Examples, s.cat.examples[i])
	}
	return res, nil
}

// SimilarExamples returns the n example queries closest to question.
func (s *Searcher) SimilarExamples(ctx context.Context, question string, n int) ([]model.ExampleQuery, error) {
	_, exampleScores, err := s.score(ctx, question)
	if err != nil {
		return nil, err
	}
	var out []model.ExampleQuery
	for _, i := range topN(exampleScores, n) {
		out = append(out, s.cat.examples[i])
	}
	return out, nil
}

func (s *Searcher) score(ctx context.Context, text string) (views, examples []float64, err error) {
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	if s.embedder != nil {
		views, examples, err = s.semanticScores(ctx, text)
		if err == nil {
			return views, examples, nil
		}
		if ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		s.logger.Warn("embedding search failed, using lexical ranking", "error", err)
	}
	return s.viewLex.scores(text), s.exampleLex.scores(text), nil
}

func (s *Searcher) semanticScores(ctx context.Context, text string) ([]float64, []float64, error) {
	viewVecs, exampleVecs, err := s.entryVectors(ctx)
	if err != nil {
		return nil, nil, err
	}
	q, err := s.embedder.Embed(ctx, []string{text})
	if err != nil {
		return nil, nil, fmt.Errorf("embed query: %w", err)
	}
	if len(q) != 1 {
		return nil, nil, fmt.Errorf("embed query: got %d vectors", len(q))
	}
	return cosineAll(q[0], viewVecs), cosineAll(q[0], exampleVecs), nil
}

// entryVectors embeds every view and example on first use. A failure is
// not cached so the next search retries.
func (s *Searcher) entryVectors(ctx context.Context) ([][]float32, [][]float32, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.viewVecs != nil && s.exampleVecs != nil {
		return s.viewVecs, s.exampleVecs, nil
	}

	views, err := s.embedAll(ctx, viewTexts(s.cat.views))
	if err != nil {
		return nil, nil, fmt.Errorf("embed views: %w", err)
	}
	examples, err := s.embedAll(ctx, exampleTexts(s.cat.examples))
	if err != nil {
		return nil, nil, fmt.Errorf("embed examples: %w", err)
	}
	s.viewVecs, s.exampleVecs = views, examples
	s.logger.Info("catalog embeddings computed", "views", len(views), "examples", len(examples))
	return views, examples, nil
}

func (s *Searcher) embedAll(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return [][]float32{}, nil
	}
	vecs, err := s.embedder.Embed(ctx, texts)
	if err != nil {
		return nil, err
	}
	if len(vecs) != len(texts) {
		return nil, fmt.Errorf("got %d vectors for %d texts", len(vecs), len(texts))
	}
	return vecs, nil
}

func viewTexts(views []model.ViewDoc) []string {
	out := make([]string, len(views))
	for i, v := range views {
		var b strings.Builder
		b.WriteString(v.Table)
		b.WriteString(". ")
		b.WriteString(v.Description)
		for _, c := range v.Columns {
			b.WriteString(". ")
			b.WriteString(c.Name)
			if c.Description != "" {
				b.WriteString(": ")
				b.WriteString(c.Description)
			}
		}
		out[i] = b.String()
	}
	return out
}

func exampleTexts(examples []model.ExampleQuery) []string {
	out := make([]string, len(examples))
	for i, e := range examples {
		out[i] = e.Question
	}
	return out
}

// topN returns the indexes of the n highest scores, ties in index order.
func topN(scores []float64, n int) []int {
	idx := make([]int, len(scores))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool { return scores[idx[a]] > scores[idx[b]] })
	if n >= 0 && n < len(idx) {
		idx = idx[:n]
	}
	return idx
}

func cosineAll(q []float32, vecs [][]float32) []float64 {
	out := make([]float64, len(vecs))
	for i, v := range vecs {
		out[i] = cosine(q, v)
	}
	return out
}

func cosine(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// tfidfIndex is a small bag-of-words index with L2 normalized weights.
type tfidfIndex struct {
	docs []map[string]float64
	idf  map[string]float64
}

func newTFIDF(texts []string) *tfidfIndex {
	ix := &tfidfIndex{idf: make(map[string]float64)}
	df := make(map[string]int)
	counts := make([]map[string]int, len(texts))
	for i, t := range texts {
		counts[i] = termCounts(t)
		for term := range counts[i] {
			df[term]++
		}
	}
	n := float64(len(texts))
	for term, d := range df {
		ix.idf[term] = math.Log(1 + n/float64(d))
	}
	ix.docs = make([]map[string]float64, len(texts))
	for i, c := range counts {
		ix.docs[i] = ix.weigh(c)
	}
	return ix
}

func (ix *tfidfIndex) weigh(counts map[string]int) map[string]float64 {
	w := make(map[string]float64, len(counts))
	var norm float64
	for term, c := range counts {
		idf, ok := ix.idf[term]
		if !ok {
			continue
		}
		v := (1 + math.Log(float64(c))) * idf
		w[term] = v
		norm += v * v
	}
	if norm > 0 {
		norm = math.Sqrt(norm)
		for term := range w {
			w[term] /= norm
		}
	}
	return w
}

func (ix *tfidfIndex) scores(query string) []float64 {
	q := ix.weigh(termCounts(query))
	out := make([]float64, len(ix.docs))
	for i, d := range ix.docs {
		var s float64
		for term, w := range q {
			s += w * d[term]
		}
		out[i] = s
	}
	return out
}

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "of": true, "and": true, "or": true,
	"to": true, "in": true, "for": true, "by": true, "on": true, "is": true,
	"are": true, "what": true, "which": true, "how": true, "me": true,
	"show": true, "with": true, "per": true, "all": true, "this": true,
	"view": true, "table": true, "de": true, "la": true, "el": true,
	"los": true, "las": true, "del": true, "en": true, "y": true, "que": true,
	"di": true, "il": true,
}

// termCounts tokenizes text on non alphanumerics and camelCase boundaries,
// lowercases, drops stopwords and trims a plural "s".
func termCounts(text string) map[string]int {
	counts := make(map[string]int)
	var cur []rune
	flush := func() {
		if len(cur) == 0 {
			return
		}
		term := strings.ToLower(string(cur))
		cur = cur[:0]
		if len(term) > 3 && strings.HasSuffix(term, "s") && !strings.HasSuffix(term, "ss") {
			term = term[:len(term)-1]
		}
		if len(term) < 2 || stopwords[term] {
			return
		}
		counts[term]++
	}
	var prev rune
	for _, r := range text {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			if unicode.IsUpper(r) && unicode.IsLower(prev) {
				flush()
			}
			cur = append(cur, r)
		default:
			flush()
		}
		prev = r
	}
	flush()
	return counts
}
