package connector

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/insightshq/nl2sql-processor/internal/query"
)

// DefaultDistinctLimit is how many distinct values are sampled per column.
const DefaultDistinctLimit = 50

var (
	selectHead  = regexp.MustCompile(`(?is)^\s*SELECT\s+(DISTINCT\s+)?`)
	existingTop = regexp.MustCompile(`(?is)^\s*SELECT\s+(DISTINCT\s+)?TOP\s*\(?\s*(\d+)\s*\)?`)
	trailingLim = regexp.MustCompile(`(?is)\bLIMIT\s+(\d+)(\s+OFFSET\s+\d+)?\s*$`)
	fetchFirst  = regexp.MustCompile(`(?is)\bFETCH\s+(FIRST|NEXT)\s+(\d+)\s+ROWS?\s+ONLY\s*$`)
)

// TrimStatement strips surrounding whitespace and the semicolons and
// comments that follow the last token.
func TrimStatement(q string, d query.Dialect) string {
	return query.StripTrailing(q, d)
}

// InjectTop bounds a T-SQL SELECT with TOP n. An existing smaller TOP is
// kept, a larger one is lowered. Statements that do not begin with SELECT
// (CTEs) are returned unchanged.
func InjectTop(stmt string, n int, d query.Dialect) string {
	q := TrimStatement(stmt, d)
	if m := existingTop.FindStringSubmatchIndex(q); m != nil {
		cur, _ := strconv.Atoi(q[m[4]:m[5]])
		if cur <= n {
			return q
		}
		return q[:m[4]] + strconv.Itoa(n) + q[m[5]:]
	}
	loc := selectHead.FindStringIndex(q)
	if loc == nil {
		return q
	}
	return q[:loc[1]] + fmt.Sprintf("TOP %d ", n) + q[loc[1]:]
}

// AppendLimit bounds a query with a trailing LIMIT n clause, lowering an
// existing trailing LIMIT when it is larger.
func AppendLimit(stmt string, n int, d query.Dialect) string {
	q := TrimStatement(stmt, d)
	if m := trailingLim.FindStringSubmatchIndex(q); m != nil {
		cur, _ := strconv.Atoi(q[m[2]:m[3]])
		if cur <= n {
			return q
		}
		return q[:m[2]] + strconv.Itoa(n) + q[m[3]:]
	}
	return q + "\nLIMIT " + strconv.Itoa(n)
}

// AppendFetchFirst bounds a query with FETCH FIRST n ROWS ONLY.
func AppendFetchFirst(stmt string, n int, d query.Dialect) string {
	q := TrimStatement(stmt, d)
	if m := fetchFirst.FindStringSubmatchIndex(q); m != nil {
		cur, _ := strconv.Atoi(q[m[4]:m[5]])
		if cur <= n {
			return q
		}
		return q[:m[4]] + strconv.Itoa(n) + q[m[5]:]
	}
	return q + "\nFETCH FIRST " + strconv.Itoa(n) + " ROWS ONLY"
}

// DistinctQuery renders the most frequent values of one column. tail is
// the dialect's row limiting clause.
func DistinctQuery(column, from, tail string) string {
	return "SELECT " + column + ", COUNT(*) AS qty FROM " + from +
		" GROUP BY " + column + " ORDER BY qty DESC " + tail
}

// QuoteDouble wraps an identifier in double quotes, doubling embedded ones.
func QuoteDouble(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

// Qualify joins an optional schema and a view with the given quoting.
func Qualify(quote func(string) string, schema, view string) string {
	if schema == "" {
		return quote(view)
	}
	return quote(schema) + "." + quote(view)
}
