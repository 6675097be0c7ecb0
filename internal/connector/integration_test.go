package connector_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/insightshq/nl2sql-processor/internal/connector"
	"github.com/insightshq/nl2sql-processor/internal/connector/mssql"
	"github.com/insightshq/nl2sql-processor/internal/connector/mysql"
	"github.com/insightshq/nl2sql-processor/internal/connector/oracle"
	"github.com/insightshq/nl2sql-processor/internal/connector/postgres"
	"github.com/insightshq/nl2sql-processor/internal/connector/snowflake"
)

// Integration tests run against live warehouses. Each one is enabled by a
// DSN variable and names the view it samples with a _VIEW variable, e.g.
//
//	IT_POSTGRES_DSN=postgres://... IT_POSTGRES_VIEW=sales_v go test ./internal/connector/
func liveTarget(t *testing.T, prefix string) (dsn, view string) {
	t.Helper()
	dsn = os.Getenv("IT_" + prefix + "_DSN")
	view = os.Getenv("IT_" + prefix + "_VIEW")
	if dsn == "" || view == "" {
		t.Skipf("set IT_%s_DSN and IT_%s_VIEW to run", prefix, prefix)
	}
	return dsn, view
}

func runConnectorSuite(t *testing.T, conn connector.Connector, cfg connector.ConnectionConfig, view string) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	if err := conn.Connect(cfg); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	defer conn.Disconnect()

	t.Run("Ping", func(t *testing.T) {
		if err := conn.Ping(ctx); err != nil {
			t.Fatalf("Ping failed: %v", err)
		}
	})

	var firstColumn string
	t.Run("IntrospectView", func(t *testing.T) {
		names, err := conn.GetViewNames(ctx)
		if err != nil {
			t.Fatalf("GetViewNames failed: %v", err)
		}
		t.Logf("%d views", len(names))

		ts, err := conn.IntrospectView(ctx, view)
		if err != nil {
			t.Fatalf("IntrospectView(%q) failed: %v", view, err)
		}
		if len(ts.Columns) == 0 {
			t.Fatal("IntrospectView returned zero columns")
		}
		firstColumn = ts.Columns[0].Name
	})

	t.Run("LimitedQuery", func(t *testing.T) {
		q := conn.LimitRows("SELECT * FROM "+conn.QualifiedName(view), 2)
		rows, err := connector.FetchRows(ctx, conn.DB(), q, 10)
		if err != nil {
			t.Fatalf("query %q failed: %v", q, err)
		}
		if len(rows.Values) > 2 {
			t.Errorf("expected at most 2 rows, got %d", len(rows.Values))
		}
	})

	t.Run("Distinct", func(t *testing.T) {
		if firstColumn == "" {
			t.Skip("no column introspected")
		}
		q := conn.BuildDistinct(view, firstColumn, 5)
		if _, err := connector.FetchRows(ctx, conn.DB(), q, 5); err != nil {
			t.Fatalf("distinct %q failed: %v", q, err)
		}
	})

	t.Run("UnknownObject", func(t *testing.T) {
		_, err := connector.FetchRows(ctx, conn.DB(), "SELECT * FROM "+conn.QualifiedName("no_such_view_x9"), 1)
		if k := conn.ClassifyError(err); k != connector.ErrorUnknownObject {
			t.Errorf("classified %v as %v", err, k)
		}
	})
}

func TestPostgresIntegration(t *testing.T) {
	dsn, view := liveTarget(t, "POSTGRES")
	runConnectorSuite(t, postgres.New(), connector.ConnectionConfig{Driver: "postgres", DSN: connector.SanitizeDSN("postgres", dsn)}, view)
}

func TestMySQLIntegration(t *testing.T) {
	dsn, view := liveTarget(t, "MYSQL")
	runConnectorSuite(t, mysql.New(), connector.ConnectionConfig{Driver: "mysql", DSN: connector.SanitizeDSN("mysql", dsn)}, view)
}

func TestMSSQLIntegration(t *testing.T) {
	dsn, view := liveTarget(t, "MSSQL")
	runConnectorSuite(t, mssql.New(), connector.ConnectionConfig{Driver: "mssql", DSN: connector.SanitizeDSN("mssql", dsn)}, view)
}

func TestSnowflakeIntegration(t *testing.T) {
	dsn, view := liveTarget(t, "SNOWFLAKE")
	runConnectorSuite(t, snowflake.New(), connector.ConnectionConfig{Driver: "snowflake", DSN: dsn}, view)
}

func TestOracleIntegration(t *testing.T) {
	dsn, view := liveTarget(t, "ORACLE")
	runConnectorSuite(t, oracle.New(), connector.ConnectionConfig{Driver: "oracle", DSN: dsn}, view)
}
