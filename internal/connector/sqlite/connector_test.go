package sqlite

import (
	"context"
	"testing"

	"github.com/insightshq/nl2sql-processor/internal/connector"
)

func newSeeded(t *testing.T) connector.Connector {
	t.Helper()
	c := New()
	if err := c.Connect(connector.ConnectionConfig{Driver: "sqlite", DSN: ":memory:"}); err != nil {
		t.Fatalf("Connect: %v", err)
	}
	t.Cleanup(func() { c.Disconnect() })

	stmts := []string{
		`CREATE TABLE budget (id INTEGER PRIMARY KEY, region TEXT NOT NULL, amount REAL)`,
		`INSERT INTO budget (region, amount) VALUES ('EMEA', 10), ('EMEA', 20), ('APAC', 5), ('AMER', NULL)`,
		`CREATE VIEW vw_budget AS SELECT region, amount FROM budget`,
	}
	for _, s := range stmts {
		if _, err := c.DB().Exec(s); err != nil {
			t.Fatalf("seed %q: %v", s, err)
		}
	}
	return c
}

func TestGetViewNames(t *testing.T) {
	c := newSeeded(t)
	names, err := c.GetViewNames(context.Background())
	if err != nil {
		t.Fatalf("GetViewNames: %v", err)
	}
	if len(names) != 2 || names[0] != "budget" || names[1] != "vw_budget" {
		t.Errorf("GetViewNames() = %v", names)
	}
}

func TestIntrospectView(t *testing.T) {
	c := newSeeded(t)
	ts, err := c.IntrospectView(context.Background(), "vw_budget")
	if err != nil {
		t.Fatalf("IntrospectView: %v", err)
	}
	if ts.Type != "view" {
		t.Errorf("Type = %q, want view", ts.Type)
	}
	got := ts.ColumnNames()
	if len(got) != 2 || got[0] != "region" || got[1] != "amount" {
		t.Errorf("columns = %v", got)
	}

	if _, err := c.IntrospectView(context.Background(), "missing"); err == nil {
		t.Error("expected error for missing view")
	}
}

func TestDistinctValues(t *testing.T) {
	c := newSeeded(t)
	rows, err := connector.FetchRows(context.Background(), c.DB(), c.BuildDistinct("vw_budget", "region", 2), 0)
	if err != nil {
		t.Fatalf("FetchRows: %v", err)
	}
	if len(rows.Values) != 2 || rows.Values[0][0] != "EMEA" || rows.Values[0][1] != "2" {
		t.Errorf("distinct rows = %v", rows.Values)
	}
}

func TestClassifyErrorFromDriver(t *testing.T) {
	c := newSeeded(t)
	ctx := context.Background()

	_, err := connector.FetchRows(ctx, c.DB(), "SELECT * FROM nope", 10)
	if k := c.ClassifyError(err); k != connector.ErrorUnknownObject {
		t.Errorf("missing table classified as %v (%v)", k, err)
	}

	_, err = connector.FetchRows(ctx, c.DB(), "SELECT bogus FROM vw_budget", 10)
	if k := c.ClassifyError(err); k != connector.ErrorUnknownColumn {
		t.Errorf("missing column classified as %v (%v)", k, err)
	}
}

func TestColumnNames(t *testing.T) {
	c := newSeeded(t)
	cols, err := connector.ColumnNames(context.Background(), c, "budget")
	if err != nil {
		t.Fatalf("ColumnNames: %v", err)
	}
	if len(cols) != 3 {
		t.Errorf("ColumnNames() = %v", cols)
	}
}
