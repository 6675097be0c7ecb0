package query

import (
	"errors"
	"fmt"
	"strings"
)

// ErrNotReadOnly is returned when a statement could modify data or schema.
var ErrNotReadOnly = errors.New("query is not read-only")

// writeKeywords may not appear anywhere in a query outside of literals,
// quoted identifiers and comments.
var writeKeywords = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "MERGE": true,
	"UPSERT": true, "DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"RENAME": true, "EXEC": true, "EXECUTE": true, "CALL": true,
	"GRANT": true, "REVOKE": true, "DENY": true, "INTO": true,
	"COPY": true, "BULK": true, "LOCK": true, "DBCC": true,
	"SHUTDOWN": true, "BACKUP": true, "RESTORE": true, "KILL": true,
	"OPENROWSET": true, "OPENDATASOURCE": true, "XP_CMDSHELL": true,
}

// readOnlyLeads are the keywords a read-only statement may begin with.
var readOnlyLeads = map[string]bool{"SELECT": true, "WITH": true}

// Dialect describes how a warehouse tells literals and comments from code.
// A construct the lexer does not know about is lexed as code, so every
// string or comment form a warehouse accepts must be listed here or a quote
// inside it could hide the rest of the statement.
//
// The zero value is ANSI SQL: single-quoted strings and double-quoted
// identifiers, both escaped only by doubling, with -- and /* */ comments.
type Dialect struct {
	// BackslashEscapes lists the quote bytes inside which a backslash
	// escapes the next byte.
	BackslashEscapes string
	// IdentifierQuotes lists quote openers beside the double quote: '['
	// (closed by ']') and '`'.
	IdentifierQuotes string
	// DollarQuotes enables $$...$$ literals.
	DollarQuotes bool
	// DollarTags also enables $tag$...$tag$ literals.
	DollarTags bool
	// NestedComments makes /* */ comments nest.
	NestedComments bool
	// EscapeStrings enables E'...' literals, which honor backslashes.
	EscapeStrings bool
	// AlternativeQuotes enables Oracle q'[...]' literals.
	AlternativeQuotes bool
	// HashComments makes # start a line comment.
	HashComments bool
	// SlashComments makes // start a line comment.
	SlashComments bool
	// DashCommentNeedsSpace only treats -- as a comment when whitespace or
	// a control character follows it.
	DashCommentNeedsSpace bool
	// ExecutableComments marks /*! ... */ and /*M! ... */ as code the
	// server runs. Such comments are rejected.
	ExecutableComments bool
}

// Dialects of the supported warehouses.
var (
	ANSI      = Dialect{}
	TSQL      = Dialect{IdentifierQuotes: "[", NestedComments: true}
	Postgres  = Dialect{DollarQuotes: true, DollarTags: true, EscapeStrings: true, NestedComments: true}
	Snowflake = Dialect{BackslashEscapes: "'", DollarQuotes: true, SlashComments: true}
	Oracle    = Dialect{AlternativeQuotes: true}
	SQLite    = Dialect{IdentifierQuotes: "[`"}
	MySQL     = Dialect{
		BackslashEscapes:      `'"`,
		IdentifierQuotes:      "`",
		HashComments:          true,
		DashCommentNeedsSpace: true,
		ExecutableComments:    true,
	}
)

type sqlTokenKind int

const (
	sqlWord sqlTokenKind = iota
	sqlSemicolon
	sqlLParen
	sqlOther
)

type sqlToken struct {
	kind  sqlTokenKind
	value string // words are uppercased
	pos   int
	end   int
}

// CheckReadOnly reports whether query is a single SELECT (optionally
// introduced by a CTE) that cannot write. It lexes the statement with the
// literal and comment rules of d so that keywords inside string literals,
// quoted identifiers and comments are ignored.
func CheckReadOnly(query string, d Dialect) error {
	tokens, err := lexSQL(query, d)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrNotReadOnly, err)
	}

	// Drop trailing semicolons; any remaining one separates statements.
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == sqlSemicolon {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return fmt.Errorf("%w: empty statement", ErrNotReadOnly)
	}

	lead := 0
	for lead < len(tokens) && tokens[lead].kind == sqlLParen {
		lead++
	}
	if lead == len(tokens) || tokens[lead].kind != sqlWord || !readOnlyLeads[tokens[lead].value] {
		return fmt.Errorf("%w: statement must start with SELECT or WITH", ErrNotReadOnly)
	}

	for _, tok := range tokens {
		switch {
		case tok.kind == sqlSemicolon:
			return fmt.Errorf("%w: multiple statements at position %d", ErrNotReadOnly, tok.pos)
		case tok.kind == sqlWord && writeKeywords[tok.value]:
			return fmt.Errorf("%w: %s at position %d", ErrNotReadOnly, tok.value, tok.pos)
		}
	}
	return nil
}

// IsReadOnly is CheckReadOnly as a predicate.
func IsReadOnly(query string, d Dialect) bool {
	return CheckReadOnly(query, d) == nil
}

// StripTrailing removes the comments, semicolons and whitespace after the
// last token of query. A query that does not lex is only trimmed of
// whitespace and semicolons.
func StripTrailing(query string, d Dialect) string {
	tokens, err := lexSQL(query, d)
	if err != nil {
		return strings.TrimRight(strings.TrimSpace(query), "; \t\r\n")
	}
	for len(tokens) > 0 && tokens[len(tokens)-1].kind == sqlSemicolon {
		tokens = tokens[:len(tokens)-1]
	}
	if len(tokens) == 0 {
		return ""
	}
	return strings.TrimSpace(query[:tokens[len(tokens)-1].end])
}

func lexSQL(input string, d Dialect) ([]sqlToken, error) {
	var tokens []sqlToken
	i := 0
	n := len(input)

	emit := func(kind sqlTokenKind, value string, start int) {
		tokens = append(tokens, sqlToken{kind: kind, value: value, pos: start, end: i})
	}

	for i < n {
		ch := input[i]
		start := i

		switch {
		case isSpace(ch):
			i++

		case ch == '-' && i+1 < n && input[i+1] == '-' &&
			(!d.DashCommentNeedsSpace || i+2 >= n || input[i+2] <= ' '):
			i = lineEnd(input, i)

		case ch == '#' && d.HashComments:
			i = lineEnd(input, i)

		case ch == '/' && i+1 < n && input[i+1] == '/' && d.SlashComments:
			i = lineEnd(input, i)

		case ch == '/' && i+1 < n && input[i+1] == '*':
			rest := input[i+2:]
			if d.ExecutableComments && (strings.HasPrefix(rest, "!") || strings.HasPrefix(rest, "M!")) {
				return nil, fmt.Errorf("executable comment at position %d", i)
			}
			end, err := blockCommentEnd(input, i, d.NestedComments)
			if err != nil {
				return nil, err
			}
			i = end

		case ch == '\'' || ch == '"' ||
			((ch == '[' || ch == '`') && strings.IndexByte(d.IdentifierQuotes, ch) >= 0):
			end, err := quotedEnd(input, i, strings.IndexByte(d.BackslashEscapes, ch) >= 0)
			if err != nil {
				return nil, err
			}
			i = end
			emit(sqlOther, "", start)

		case ch == '$' && d.DollarQuotes && dollarTag(input, i, d.DollarTags) != "":
			tag := dollarTag(input, i, d.DollarTags)
			end := strings.Index(input[i+len(tag):], tag)
			if end < 0 {
				return nil, fmt.Errorf("unterminated dollar-quoted string at position %d", i)
			}
			i += len(tag) + end + len(tag)
			emit(sqlOther, "", start)

		case ch == ';':
			i++
			emit(sqlSemicolon, ";", start)

		case ch == '(':
			i++
			emit(sqlLParen, "(", start)

		case isWordByte(ch):
			for i < n && (isWordByte(input[i]) || (input[i] >= '0' && input[i] <= '9') || input[i] == '$') {
				if input[i] == '#' && d.HashComments {
					break
				}
				i++
			}
			word := strings.ToUpper(input[start:i])
			if i < n && input[i] == '\'' {
				switch {
				case d.EscapeStrings && word == "E":
					end, err := quotedEnd(input, i, true)
					if err != nil {
						return nil, err
					}
					i = end
					emit(sqlOther, "", start)
					continue
				case d.AlternativeQuotes && (word == "Q" || word == "NQ"):
					end, err := alternativeQuoteEnd(input, i)
					if err != nil {
						return nil, err
					}
					i = end
					emit(sqlOther, "", start)
					continue
				}
			}
			emit(sqlWord, word, start)

		default:
			i++
			emit(sqlOther, string(ch), start)
		}
	}
	return tokens, nil
}

// quotedEnd returns the offset just past the quoted run opening at start.
// A doubled closing quote escapes it; with backslash set a backslash
// escapes the next byte as well.
func quotedEnd(input string, start int, backslash bool) (int, error) {
	closer := input[start]
	if closer == '[' {
		closer = ']'
	}
	n := len(input)
	for i := start + 1; i < n; i++ {
		switch {
		case backslash && input[i] == '\\':
			i++
		case input[i] == closer:
			if i+1 < n && input[i+1] == closer {
				i++
				continue
			}
			return i + 1, nil
		}
	}
	return 0, fmt.Errorf("unterminated quote starting at position %d", start)
}

// alternativeQuoteEnd lexes an Oracle q'<delim>...<delim>' literal whose
// opening quote is at start.
func alternativeQuoteEnd(input string, start int) (int, error) {
	if start+1 >= len(input) {
		return 0, fmt.Errorf("unterminated quote starting at position %d", start)
	}
	closer := input[start+1]
	switch closer {
	case '[':
		closer = ']'
	case '(':
		closer = ')'
	case '{':
		closer = '}'
	case '<':
		closer = '>'
	}
	end := strings.Index(input[start+2:], string(closer)+"'")
	if end < 0 {
		return 0, fmt.Errorf("unterminated quote starting at position %d", start)
	}
	return start + 2 + end + 2, nil
}

// blockCommentEnd returns the offset just past the /* comment at start.
func blockCommentEnd(input string, start int, nested bool) (int, error) {
	depth := 0
	for i := start; i+1 < len(input); i++ {
		switch {
		case input[i] == '/' && input[i+1] == '*' && (nested || depth == 0):
			depth++
			i++
		case input[i] == '*' && input[i+1] == '/':
			depth--
			i++
			if depth == 0 {
				return i + 1, nil
			}
		}
	}
	return 0, fmt.Errorf("unterminated comment at position %d", start)
}

// dollarTag returns the $tag$ or $$ opening a dollar-quoted literal at i,
// or "" when the dollar sign starts something else, such as $1.
func dollarTag(input string, i int, tags bool) string {
	if i+1 < len(input) && input[i+1] == '$' {
		return "$$"
	}
	if !tags {
		return ""
	}
	j := i + 1
	for j < len(input) && (isWordByte(input[j]) || (j > i+1 && input[j] >= '0' && input[j] <= '9')) {
		if input[j] == '@' || input[j] == '#' {
			return ""
		}
		j++
	}
	if j < len(input) && input[j] == '$' {
		return input[i : j+1]
	}
	return ""
}

func lineEnd(input string, i int) int {
	for i < len(input) && input[i] != '\n' {
		i++
	}
	return i
}

func isSpace(ch byte) bool {
	return ch == ' ' || ch == '\t' || ch == '\n' || ch == '\r' || ch == '\f' || ch == '\v'
}

func isWordByte(ch byte) bool {
	return ch == '_' || ch == '@' || ch == '#' || (ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') || ch >= 0x80
}
