// Package tools implements the functions the NL2SQL agent may call: view
// discovery, schema lookup, distinct value sampling, read-only query
// execution and example retrieval. Every tool returns text for the model;
// failures are reported in that text rather than as Go errors so the model
// can correct itself.
package tools

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/llm"
)

// Tool names as the model sees them.
const (
	ListViews           = "list_views"
	GetDBSchema         = "get_db_schema"
	FetchDistinctValues = "fetch_distinct_values"
	RunSQLQuery         = "run_sql_query"
	FetchSimilarQueries = "fetch_similar_queries"
)

// Defaults for Options.
const (
	DefaultMaxRows      = 50
	DefaultQueryTimeout = 60 * time.Second
	defaultSimilar      = 5
)

// Warehouses resolves a datasource id to a connected warehouse.
// *connector.Registry implements it.
type Warehouses interface {
	Get(id string) (connector.Connector, error)
	Datasources() []string
}

// Options tunes a Toolbox.
type Options struct {
	// MaxRows caps run_sql_query and fetch_distinct_values results.
	MaxRows int
	// QueryTimeout bounds every warehouse statement.
	QueryTimeout time.Duration
	// DefaultDatasource is used when the model omits the datasource.
	DefaultDatasource string
	// Verifier, when set, reviews queries with an LLM before the
	// deterministic read-only guard runs.
	Verifier *Verifier
	Logger   *slog.Logger
}

// Toolbox executes tool calls against the catalog and the warehouses.
type Toolbox struct {
	searcher   *catalog.Searcher
	warehouses Warehouses
	opts       Options
	logger     *slog.Logger
}

// New creates a Toolbox.
func New(searcher *catalog.Searcher, warehouses Warehouses, opts Options) *Toolbox {
	if opts.MaxRows <= 0 {
		opts.MaxRows = DefaultMaxRows
	}
	if opts.QueryTimeout <= 0 {
		opts.QueryTimeout = DefaultQueryTimeout
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Toolbox{searcher: searcher, warehouses: warehouses, opts: opts, logger: logger}
}

// Catalog returns the catalog the toolbox searches.
func (t *Toolbox) Catalog() *catalog.Catalog { return t.searcher.Catalog() }

// Warehouses returns the datasource resolver.
func (t *Toolbox) Warehouses() Warehouses { return t.warehouses }

type listViewsArgs struct {
	QueryText string `json:"query_text"`
}

type schemaArgs struct {
	ViewName   string `json:"view_name"`
	Datasource string `json:"datasource"`
}

type distinctArgs struct {
	Datasource string `json:"datasource"`
	ViewName   string `json:"view_name"`
	ColumnName string `json:"column_name"`
}

type runQueryArgs struct {
	Datasource string `json:"datasource"`
	ViewName   string `json:"view_name"`
	Query      string `json:"query"`
}

type similarArgs struct {
	Question string `json:"question"`
}

// Call dispatches one tool call by name and returns the text handed back
// to the model.
func (t *Toolbox) Call(ctx context.Context, call llm.ToolCall) string {
	start := time.Now()
	out := t.dispatch(ctx, call)
	t.logger.Debug("tool call",
		"tool", call.Name,
		"duration_ms", time.Since(start).Milliseconds(),
		"output_bytes", len(out),
	)
	return out
}

func (t *Toolbox) dispatch(ctx context.Context, call llm.ToolCall) string {
	switch call.Name {
	case ListViews:
		var a listViewsArgs
		if err := call.Decode(&a); err != nil {
			return badArgs(call.Name, err)
		}
		return t.ListViews(ctx, a.QueryText)
	case GetDBSchema:
		var a schemaArgs
		if err := call.Decode(&a); err != nil {
			return badArgs(call.Name, err)
		}
		return t.GetDBSchema(ctx, a.ViewName, a.Datasource)
	case FetchDistinctValues:
		var a distinctArgs
		if err := call.Decode(&a); err != nil {
			return badArgs(call.Name, err)
		}
		return t.FetchDistinctValues(ctx, a.Datasource, a.ViewName, a.ColumnName)
	case RunSQLQuery:
		var a runQueryArgs
		if err := call.Decode(&a); err != nil {
			return badArgs(call.Name, err)
		}
		return t.RunSQLQuery(ctx, a.Datasource, a.ViewName, a.Query)
	case FetchSimilarQueries:
		var a similarArgs
		if err := call.Decode(&a); err != nil {
			return badArgs(call.Name, err)
		}
		return t.FetchSimilarQueries(ctx, a.Question)
	default:
		return fmt.Sprintf("Function %s not found", call.Name)
	}
}

func badArgs(name string, err error) string {
	return fmt.Sprintf("Error: invalid arguments for %s: %v", name, err)
}

// ListViews returns the most relevant views followed by example queries.
func (t *Toolbox) ListViews(ctx context.Context, queryText string) string {
	res, err := t.searcher.Search(ctx, queryText)
	if err != nil {
		return fmt.Sprintf("Error searching views: %v", err)
	}
	return catalog.FormatViews(res)
}

// FetchSimilarQueries returns example questions close to question with the
// SQL that answered them.
func (t *Toolbox) FetchSimilarQueries(ctx context.Context, question string) string {
	examples, err := t.searcher.SimilarExamples(ctx, question, defaultSimilar)
	if err != nil {
		return fmt.Sprintf("Error fetching similar queries: %v", err)
	}
	return catalog.FormatSimilar(examples)
}

// GetDBSchema returns the documented schema of a view. Views missing from
// the catalog fall back to live introspection so the model still learns
// the column names.
func (t *Toolbox) GetDBSchema(ctx context.Context, view, datasource string) string {
	datasource = t.datasource(datasource)
	if doc, ok := t.Catalog().Lookup(datasource, view); ok {
		return catalog.FormatSchema(doc)
	}

	notFound := fmt.Sprintf("Error: No schema found for view '%s' with datasource '%s'.", view, datasource)
	if err := validateName(view); err != nil {
		return notFound
	}
	conn, err := t.warehouses.Get(datasource)
	if err != nil {
		return notFound
	}
	qctx, cancel := context.WithTimeout(ctx, t.opts.QueryTimeout)
	defer cancel()
	live, err := conn.IntrospectView(qctx, view)
	if err != nil {
		t.logger.Debug("live introspection failed", "view", view, "datasource", datasource, "error", err)
		return notFound
	}
	return catalog.FormatSchema(catalog.FromLive(datasource, *live))
}

func (t *Toolbox) datasource(ds string) string {
	if ds == "" {
		return t.opts.DefaultDatasource
	}
	return ds
}
