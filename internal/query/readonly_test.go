package query

import (
	"errors"
	"testing"
)

func TestCheckReadOnly(t *testing.T) {
	tests := []struct {
		name  string
		query string
		ok    bool
	}{
		{"simple select", "SELECT * FROM [dbo].[vw_budget]", true},
		{"trailing semicolon", "SELECT 1;", true},
		{"cte", "WITH t AS (SELECT region FROM v) SELECT * FROM t", true},
		{"parenthesized", "(SELECT a FROM v) UNION ALL (SELECT a FROM w)", true},
		{"keyword in string", "SELECT * FROM v WHERE note = 'please delete me; drop table x'", true},
		{"keyword in bracket identifier", "SELECT [Update Date] FROM v", true},
		{"keyword in double quotes", `SELECT "insert_ts" , "Created By" FROM v`, true},
		{"keyword in comment", "SELECT a FROM v -- TODO delete\n", true},
		{"block comment", "/* drop */ SELECT a FROM v", true},
		{"replace function", "SELECT REPLACE(name, 'a', 'b') FROM v", true},
		{"column named updated_at", "SELECT updated_at FROM v", true},
		{"lowercase select", "select top 5 * from v", true},

		{"empty", "  ;  ", false},
		{"insert", "INSERT INTO v VALUES (1)", false},
		{"update", "UPDATE v SET a = 1", false},
		{"delete", "delete from v", false},
		{"drop", "DROP VIEW v", false},
		{"select into", "SELECT * INTO backup FROM v", false},
		{"stacked statement", "SELECT 1; DROP TABLE v", false},
		{"cte with delete", "WITH d AS (DELETE FROM v RETURNING *) SELECT * FROM d", false},
		{"exec", "EXEC sp_who", false},
		{"merge", "MERGE INTO v USING w ON 1=1 WHEN MATCHED THEN DELETE", false},
		{"truncate", "TRUNCATE TABLE v", false},
		{"unterminated string", "SELECT 'abc FROM v", false},
		{"unterminated comment", "SELECT 1 /* oops", false},
		{"openrowset", "SELECT * FROM OPENROWSET('x', 'y')", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query, TSQL)
			if tt.ok && err != nil {
				t.Errorf("CheckReadOnly(%q) = %v, want nil", tt.query, err)
			}
			if !tt.ok {
				if err == nil {
					t.Errorf("CheckReadOnly(%q) = nil, want error", tt.query)
				} else if !errors.Is(err, ErrNotReadOnly) {
					t.Errorf("error %v does not wrap ErrNotReadOnly", err)
				}
			}
			if IsReadOnly(tt.query, TSQL) != tt.ok {
				t.Errorf("IsReadOnly(%q) disagrees with CheckReadOnly", tt.query)
			}
		})
	}
}

func TestCheckReadOnlyDialects(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		query   string
		ok      bool
	}{
		{"mysql escaped quote", MySQL, `SELECT 'it\'s' AS a FROM v`, true},
		{"mysql backtick identifier", MySQL, "SELECT `order`, `delete` FROM v", true},
		{"mysql escaped quote hides outfile", MySQL, `SELECT 'x\'' INTO OUTFILE '/tmp/f' -- '`, false},
		{"mysql escaped quote hides statement", MySQL, `SELECT 'x\'' ; DELETE FROM v -- '`, false},
		{"mysql escaped double quote", MySQL, `SELECT "x\"" ; DROP TABLE v -- "`, false},
		{"mysql hash comment", MySQL, "SELECT 1 # '\n; DROP TABLE v -- '", false},
		{"mysql hash after word", MySQL, "SELECT a# '\nFROM v; DROP TABLE v -- '", false},
		{"mysql dash comment with control byte", MySQL, "SELECT 1 --\x01'\n; DROP TABLE v -- '", false},
		{"mysql double minus is arithmetic", MySQL, "SELECT 1--'x' FROM v", true},
		{"mysql executable comment", MySQL, "SELECT a FROM v /*! INTO OUTFILE '/tmp/f' */", false},
		{"mariadb executable comment", MySQL, "SELECT a FROM v /*M! INTO OUTFILE '/tmp/f' */", false},

		{"snowflake escaped quote", Snowflake, `SELECT 'it\'s' AS a FROM v`, true},
		{"snowflake escaped quote hides outfile", Snowflake, `SELECT 'x\'' INTO OUTFILE '/tmp/f' -- '`, false},
		{"snowflake escaped quote hides statement", Snowflake, `SELECT 'x\'' ; DELETE FROM v -- '`, false},
		{"snowflake dollar literal", Snowflake, "SELECT $$drop me$$ AS note FROM v", true},
		{"snowflake dollar literal hides quote", Snowflake, "SELECT $$'$$; DROP TABLE v -- '", false},
		{"snowflake positional column", Snowflake, "SELECT $1, $2 FROM @stage", true},
		{"snowflake slash comment", Snowflake, "SELECT a // note\nFROM v", true},
		{"snowflake slash comment hides quote", Snowflake, "SELECT 1 // '\n; DROP TABLE v -- '", false},

		{"postgres backslash is literal", Postgres, `SELECT 'C:\' AS path FROM v`, true},
		{"postgres escape string", Postgres, `SELECT E'x\'' ; DROP TABLE v -- '`, false},
		{"postgres dollar tag", Postgres, "SELECT $tag$'$tag$; DROP TABLE v -- '", false},
		{"postgres bind parameter", Postgres, "SELECT a FROM v WHERE b = $1", true},
		{"postgres nested comment", Postgres, "SELECT 1 /* /* */ ' */; DROP TABLE v; -- '", false},

		{"tsql bracket identifier", TSQL, "SELECT [Update Date] FROM v", true},
		{"tsql nested comment", TSQL, "SELECT 1 /* /* */ ' */; DROP TABLE v; -- '", false},

		{"oracle alternative quote", Oracle, "SELECT q'{it's}' AS a FROM dual", true},
		{"oracle alternative quote hides statement", Oracle, "SELECT q'[x']' ; DROP TABLE v -- '", false},

		{"sqlite backtick identifier", SQLite, "SELECT `insert` FROM v", true},
		{"sqlite backslash is literal", SQLite, `SELECT 'x\' ; DROP TABLE v -- '`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := CheckReadOnly(tt.query, tt.dialect)
			if tt.ok && err != nil {
				t.Errorf("CheckReadOnly(%q) = %v, want nil", tt.query, err)
			}
			if !tt.ok && !errors.Is(err, ErrNotReadOnly) {
				t.Errorf("CheckReadOnly(%q) = %v, want ErrNotReadOnly", tt.query, err)
			}
		})
	}
}

func TestStripTrailing(t *testing.T) {
	tests := []struct {
		name    string
		dialect Dialect
		in      string
		want    string
	}{
		{"semicolons", ANSI, "SELECT 1 ;; ", "SELECT 1"},
		{"line comment", ANSI, "SELECT a FROM v LIMIT 1000 -- all", "SELECT a FROM v LIMIT 1000"},
		{"block comment", ANSI, "SELECT a FROM v /* x */ ;\n", "SELECT a FROM v"},
		{"comment marker in literal", ANSI, "SELECT '-- x' FROM v", "SELECT '-- x' FROM v"},
		{"hash comment", MySQL, "SELECT a FROM v # note", "SELECT a FROM v"},
		{"unterminated quote only trimmed", ANSI, "SELECT 'a; ", "SELECT 'a"},
		{"comment only", ANSI, "-- nothing", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripTrailing(tt.in, tt.dialect); got != tt.want {
				t.Errorf("StripTrailing(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
