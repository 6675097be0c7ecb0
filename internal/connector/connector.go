// Package connector gives the agent uniform, read-only access to the
// warehouses a question may be answered from.
package connector

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"

	"github.com/insightshq/nl2sql-processor/internal/model"
	"github.com/insightshq/nl2sql-processor/internal/query"
)

// ConnectionConfig holds database connection parameters.
type ConnectionConfig struct {
	Driver          string
	DSN             string
	SchemaName      string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
	PrivateKeyPath  string // Path to PEM-encoded private key file (Snowflake JWT auth)
	AzureAD         bool   // Authenticate to SQL Server / Fabric with an Entra ID service principal
}

// Connector is the interface that all warehouse connectors must implement.
type Connector interface {
	// Connection management
	Connect(cfg ConnectionConfig) error
	Disconnect() error
	Ping(ctx context.Context) error
	DB() *sqlx.DB

	// Schema introspection
	GetViewNames(ctx context.Context) ([]string, error)
	IntrospectView(ctx context.Context, name string) (*model.TableSchema, error)

	// Query building (database-specific SQL dialect)
	BuildDistinct(view, column string, limit int) string
	LimitRows(query string, n int) string
	ClassifyError(err error) ErrorKind

	// Metadata
	DriverName() string
	QuoteIdentifier(name string) string
	QualifiedName(view string) string
	// SQLDialect describes the literal and comment syntax of the warehouse.
	SQLDialect() query.Dialect
}

// FromDatasource builds the connection settings for a configured
// datasource. Entries without an explicit DSN are assembled from the
// server, database and service principal fields.
func FromDatasource(ds model.Datasource) (ConnectionConfig, error) {
	cfg := ConnectionConfig{
		Driver:          ds.Driver,
		DSN:             ds.DSN,
		SchemaName:      ds.Schema,
		MaxOpenConns:    ds.Pool.MaxOpenConns,
		MaxIdleConns:    ds.Pool.MaxIdleConns,
		ConnMaxLifetime: ds.Pool.ConnMaxLifetime,
		ConnMaxIdleTime: ds.Pool.ConnMaxIdleTime,
		PrivateKeyPath:  ds.PrivateKeyPath,
	}
	if cfg.DSN != "" {
		cfg.DSN = SanitizeDSN(cfg.Driver, cfg.DSN)
		return cfg, nil
	}
	if ds.Driver != "mssql" {
		return cfg, fmt.Errorf("datasource %q: driver %s needs a dsn", ds.ID, ds.Driver)
	}
	if ds.Server == "" || ds.Database == "" {
		return cfg, fmt.Errorf("datasource %q: server and database are required", ds.ID)
	}
	cfg.DSN = FabricDSN(ds)
	cfg.AzureAD = ds.ClientID != ""
	return cfg, nil
}

// FabricDSN builds a sqlserver:// DSN for a Fabric warehouse or SQL
// endpoint. When a client id is present the service principal flow of
// go-mssqldb/azuread is selected.
func FabricDSN(ds model.Datasource) string {
	q := url.Values{}
	q.Set("database", ds.Database)
	q.Set("encrypt", "true")
	q.Set("connection timeout", "60")
	if ds.ClientID != "" {
		q.Set("fedauth", "ActiveDirectoryServicePrincipal")
		user := ds.ClientID
		if ds.TenantID != "" {
			user += "@" + ds.TenantID
		}
		q.Set("user id", user)
		q.Set("password", ds.ClientSecret)
	}
	u := url.URL{
		Scheme:   "sqlserver",
		Host:     ds.Server + ":1433",
		RawQuery: q.Encode(),
	}
	return u.String()
}

// SanitizeDSN percent-encodes the userinfo of URL-style DSNs (postgres://,
// sqlserver://) so passwords containing @, # or % survive URL parsing.
// MySQL DSNs are normalized to the tcp() form go-sql-driver expects; other
// drivers are returned unchanged.
func SanitizeDSN(driver, dsn string) string {
	switch driver {
	case "postgres", "mssql":
		return sanitizeURLDSN(dsn)
	case "mysql":
		return sanitizeMySQLDSN(dsn)
	default:
		return dsn
	}
}

// mysqlBareHostPort matches "user:pass@host:port/db" (no tcp() wrapper, no ()
// wrapper). We look for the last "@" followed by what looks like host:port/db.
var mysqlBareHostPort = regexp.MustCompile(`^(.+)@([^(@]+:\d+)(/.*)?$`)

// sanitizeMySQLDSN normalizes a MySQL DSN so that go-sql-driver/mysql can
// parse it correctly. The driver requires the format:
//
//	user:pass@tcp(host:port)/dbname
//
// Common mistakes from users:
//
//	user:pass@host:port/db          → missing tcp() wrapper
//	user:pass@(host:port)/db        → missing "tcp" before parens
//	user:pass@tcp(host:port)/db     → already correct
//
// When the password contains "@", the driver's ParseDSN splits on the last
// "@" before "/", this works ONLY when "tcp(" is present, otherwise the
// parser treats the password fragment as a network name.
func sanitizeMySQLDSN(dsn string) string {
	// If it already parses cleanly and has a known network, trust it.
	if cfg, err := mysqldriver.ParseDSN(dsn); err == nil && (cfg.Net == "tcp" || cfg.Net == "unix") {
		return cfg.FormatDSN()
	}

	// Try to fix common patterns.

	// Pattern: user:pass@(host:port)/db: missing "tcp" keyword.
	// Find the last "@" followed immediately by "(" but NOT preceded by
	// a network name like "tcp" or "unix".
	if idx := strings.LastIndex(dsn, "@("); idx >= 0 {
		fixed := dsn[:idx] + "@tcp" + dsn[idx+1:]
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Pattern: user:pass@host:port/db: no parens at all.
	if m := mysqlBareHostPort.FindStringSubmatch(dsn); m != nil {
		userpass := m[1] // everything before the last @host:port
		hostport := m[2]
		dbpart := m[3] // /dbname or empty
		fixed := userpass + "@tcp(" + hostport + ")" + dbpart
		if cfg, err := mysqldriver.ParseDSN(fixed); err == nil {
			return cfg.FormatDSN()
		}
	}

	// Nothing worked; return as-is and let the connect call give a clear error.
	return dsn
}

// sanitizeURLDSN parses a DSN that begins with a scheme (e.g.
// postgres://user:p@ss#word@host/db) and re-encodes the password so the
// URL library can parse it unambiguously.
func sanitizeURLDSN(dsn string) string {
	// Find the scheme separator.
	schemeEnd := strings.Index(dsn, "://")
	if schemeEnd < 0 {
		return dsn // not a URL-style DSN, return as-is
	}

	scheme := dsn[:schemeEnd]
	rest := dsn[schemeEnd+3:] // everything after "://"

	// Split off query/fragment from the authority+path portion.
	query := ""
	if qi := strings.IndexByte(rest, '?'); qi >= 0 {
		query = rest[qi:]
		rest = rest[:qi]
	}

	// Find the LAST '@': everything before it is userinfo, everything after is host+path.
	atIdx := strings.LastIndex(rest, "@")
	if atIdx < 0 {
		return dsn // no credentials in the DSN
	}

	userinfo := rest[:atIdx]
	hostpath := rest[atIdx+1:]

	// Split userinfo into user and password at the FIRST ':'.
	user := userinfo
	pass := ""
	if ci := strings.IndexByte(userinfo, ':'); ci >= 0 {
		user = userinfo[:ci]
		pass = userinfo[ci+1:]
	}

	// QueryEscape would turn spaces into '+', so PathEscape is used.
	encodedUser := url.PathEscape(user)
	encodedPass := url.PathEscape(pass)

	return scheme + "://" + encodedUser + ":" + encodedPass + "@" + hostpath + query
}
