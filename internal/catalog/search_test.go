package catalog

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/insightshq/nl2sql-processor/internal/model"
)

func testCatalog() *Catalog {
	return New(
		[]model.ViewDoc{
			{Table: "BudgetingView", Datasource: "finance", Description: "Budget amounts per cost center and fiscal month"},
			{Table: "VendorAging_View", Datasource: "finance", Description: "Open payables per vendor and aging bucket"},
			{Table: "CustomerAging_View", Datasource: "finance", Description: "Open receivables per customer and aging bucket"},
			{Table: "Headcount", Datasource: "hr", Description: "Employees per department"},
		},
		[]model.ExampleQuery{
			{Question: "Total budget for marketing cost center"},
			{Question: "Vendors with payables older than 90 days"},
			{Question: "Customers with overdue receivables"},
		},
	)
}

func TestLexicalSearch(t *testing.T) {
	s := NewSearcher(testCatalog(), nil, nil)

	res, err := s.Search(context.Background(), "Which vendors have the oldest open payables?")
	require.NoError(t, err)
	require.Len(t, res.Views, DefaultTopViews)
	assert.Equal(t, "VendorAging_View", res.Views[0].Table)
	require.Len(t, res.Examples, 3, "fewer examples than the limit returns all of them")
	assert.Equal(t, "Vendors with payables older than 90 days", res.Examples[0].Question)

	res, err = s.Search(context.Background(), "budget of cost centers")
	require.NoError(t, err)
	assert.Equal(t, "BudgetingView", res.Views[0].Table)
}

func TestSimilarExamples(t *testing.T) {
	s := NewSearcher(testCatalog(), nil, nil)
	got, err := s.SimilarExamples(context.Background(), "overdue customers", 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "Customers with overdue receivables", got[0].Question)
}

// keywordEmbedder maps a text to a 2-d vector: vendor-ness and budget-ness.
type keywordEmbedder struct {
	calls int
	fail  bool
}

func (e *keywordEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	e.calls++
	if e.fail {
		return nil, errors.New("deployment not found")
	}
	out := make([][]float32, len(texts))
	for i, t := range texts {
		t = strings.ToLower(t)
		var v [2]float32
		if strings.Contains(t, "vendor") || strings.Contains(t, "supplier") {
			v[0] = 1
		}
		if strings.Contains(t, "budget") {
			v[1] = 1
		}
		out[i] = []float32{v[0], v[1] + 0.01}
	}
	return out, nil
}

func TestSemanticSearchEmbedsCatalogOnce(t *testing.T) {
	emb := &keywordEmbedder{}
	s := NewSearcher(testCatalog(), emb, nil)

	// "supplier" never appears in the catalog text; only the embedder links it.
	res, err := s.Search(context.Background(), "supplier debt")
	require.NoError(t, err)
	assert.Equal(t, "VendorAging_View", res.Views[0].Table)

	_, err = s.Search(context.Background(), "budget")
	require.NoError(t, err)
	// views + examples once, then one call per query.
	assert.Equal(t, 4, emb.calls)
}

func TestSemanticSearchFallsBackToLexical(t *testing.T) {
	s := NewSearcher(testCatalog(), &keywordEmbedder{fail: true}, nil)
	res, err := s.Search(context.Background(), "vendor payables")
	require.NoError(t, err)
	assert.Equal(t, "VendorAging_View", res.Views[0].Table)
}

func TestSearchCancelled(t *testing.T) {
	s := NewSearcher(testCatalog(), nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := s.Search(ctx, "anything")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestTermCounts(t *testing.T) {
	got := termCounts("VendorAging_View: vendors, the Aging bucket")
	assert.Equal(t, map[string]int{"vendor": 2, "aging": 2, "bucket": 1}, got)
}
