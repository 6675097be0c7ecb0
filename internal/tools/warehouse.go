package tools

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/catalog"
	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

const notReadOnlyMessage = "Error: The query is modifying the data. Please make sure the query is read-only."

func validateName(name string) error {
	return query.ValidateIdentifier(name)
}

// FetchDistinctValues returns the most frequent values of a column with
// their counts.
func (t *Toolbox) FetchDistinctValues(ctx context.Context, datasource, view, column string) string {
	datasource = t.datasource(datasource)
	if err := validateName(view); err != nil {
		return fmt.Sprintf("View '%s' does not exist or is invalid.", view)
	}
	if err := validateName(column); err != nil {
		return fmt.Sprintf("Error fetching distinct values: %v", err)
	}
	conn, err := t.warehouses.Get(datasource)
	if err != nil {
		return fmt.Sprintf("Error fetching distinct values: %v", err)
	}

	qctx, cancel := context.WithTimeout(ctx, t.opts.QueryTimeout)
	defer cancel()

	stmt := conn.BuildDistinct(view, column, t.opts.MaxRows)
	rows, err := connector.FetchRows(qctx, conn.DB(), stmt, t.opts.MaxRows)
	if err != nil {
		switch conn.ClassifyError(err) {
		case connector.ErrorUnknownColumn:
			cols, cerr := connector.ColumnNames(qctx, conn, view)
			if cerr != nil {
				return fmt.Sprintf("Error: Column '%s' not found. Additionally, could not fetch view columns (%v).", column, cerr)
			}
			return fmt.Sprintf("The column '%s' does not exist in %s. The following columns exist:\n%s",
				column, conn.QualifiedName(view), strings.Join(cols, " | "))
		case connector.ErrorUnknownObject:
			return fmt.Sprintf("View '%s' does not exist or is invalid.", view)
		default:
			return fmt.Sprintf("Error fetching distinct values: %v", err)
		}
	}
	if rows.Empty() {
		return "No rows found."
	}
	return rows.Table()
}

// RunSQLQuery executes a read-only query against a documented view. The
// statement is capped at MaxRows in the warehouse dialect before it runs.
func (t *Toolbox) RunSQLQuery(ctx context.Context, datasource, view, sqlText string) string {
	datasource = t.datasource(datasource)
	doc, ok := t.Catalog().Lookup(datasource, view)
	if !ok {
		return fmt.Sprintf("Error: No schema found for view '%s' with datasource '%s'.", view, datasource)
	}
	conn, err := t.warehouses.Get(datasource)
	if err != nil {
		return fmt.Sprintf("Error running query: %v", err)
	}

	stmt := sqlText
	if t.opts.Verifier != nil {
		verdict, err := t.opts.Verifier.Verify(ctx, sqlText, catalog.FormatSchema(doc))
		if err != nil {
			// The deterministic guard below still applies.
			t.logger.Warn("llm query verification failed", "view", view, "error", err)
		} else {
			if !verdict.ReadOnly {
				return notReadOnlyMessage
			}
			if verdict.CorrectedQuery != "" {
				stmt = verdict.CorrectedQuery
			}
		}
	}

	if err := query.CheckReadOnly(stmt, conn.SQLDialect()); err != nil {
		t.logger.Info("rejected non read-only query", "view", view, "reason", err)
		return notReadOnlyMessage
	}
	stmt = conn.LimitRows(stmt, t.opts.MaxRows)

	qctx, cancel := context.WithTimeout(ctx, t.opts.QueryTimeout)
	defer cancel()

	rows, err := connector.FetchRows(qctx, conn.DB(), stmt, t.opts.MaxRows)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return fmt.Sprintf("Error running query: the query did not finish within %s. Narrow it with filters.", t.opts.QueryTimeout)
		}
		switch conn.ClassifyError(err) {
		case connector.ErrorUnknownObject:
			return fmt.Sprintf("Error running query: %v\nView %s does not seem to exist.", err, view)
		case connector.ErrorUnknownColumn:
			cols, cerr := connector.ColumnNames(qctx, conn, view)
			if cerr != nil {
				return fmt.Sprintf("Failed to retrieve columns from view %s: %v", view, cerr)
			}
			return fmt.Sprintf("A column in your query doesn't exist.\nThese columns exist in %s:\n%s",
				conn.QualifiedName(view), strings.Join(cols, " | "))
		default:
			return fmt.Sprintf("Error running query: %v", err)
		}
	}
	if rows.Empty() {
		return "No rows returned."
	}
	out := rows.Table()
	if rows.Truncated {
		out += fmt.Sprintf("(results truncated at %d rows)\n", t.opts.MaxRows)
	}
	return out
}
