// Package query guards the SQL the agent sends to a warehouse: names the
// model supplies are validated before they are quoted into statements, and
// free-form queries must prove they are a single read-only statement.
package query

import (
	"fmt"
	"regexp"
	"strings"
)

// MaxNameLength is the longest view or column name accepted.
const MaxNameLength = 128

// nameRegex validates view and column names. Warehouse views often carry
// spaces or dashes, so those are accepted; the name is quoted afterwards.
var nameRegex = regexp.MustCompile(`^[\p{L}_][\p{L}\p{N}_ $#@.-]*$`)

// sqlReservedWords contains SQL keywords that cannot be used as names.
var sqlReservedWords = map[string]bool{
	"SELECT": true, "INSERT": true, "UPDATE": true, "DELETE": true,
	"DROP": true, "CREATE": true, "ALTER": true, "TRUNCATE": true,
	"EXEC": true, "EXECUTE": true, "UNION": true, "INTO": true,
	"FROM": true, "WHERE": true, "TABLE": true, "DATABASE": true,
	"GRANT": true, "REVOKE": true, "MERGE": true,
}

// ValidateIdentifier ensures a view or column name supplied by the model is
// safe to quote into a statement.
func ValidateIdentifier(name string) error {
	if len(name) == 0 {
		return fmt.Errorf("identifier cannot be empty")
	}
	if len(name) > MaxNameLength {
		return fmt.Errorf("identifier too long (max %d chars): %q", MaxNameLength, name)
	}
	if strings.Contains(name, "--") || !nameRegex.MatchString(name) {
		return fmt.Errorf("invalid identifier %q", name)
	}
	if sqlReservedWords[strings.ToUpper(name)] {
		return fmt.Errorf("identifier %q is a SQL reserved word", name)
	}
	return nil
}

// SanitizeText removes null bytes and surrounding whitespace and rejects
// text longer than maxLen bytes.
func SanitizeText(val string, maxLen int) (string, error) {
	if maxLen <= 0 {
		maxLen = 65535
	}
	val = strings.TrimSpace(strings.ReplaceAll(val, "\x00", ""))
	if len(val) > maxLen {
		return "", fmt.Errorf("text too long (max %d chars)", maxLen)
	}
	return val, nil
}
