package query

import "strings"

// RawQueryGuard decides whether raw SQL sent with the query command may be
// executed.
type RawQueryGuard func(raw string) bool

// deniedPrefixes are statement prefixes AllowRawQuery refuses.
var deniedPrefixes = []string{"delete", "drop"}

// AllowRawQuery is a syntactic allowlist: a single statement that does not
// start with DELETE or DROP. It does not parse SQL and is not a security
// boundary; database permissions are.
func AllowRawQuery(raw string) bool {
	var statements []string
	for _, part := range strings.Split(raw, ";") {
		if part = strings.TrimSpace(part); part != "" {
			statements = append(statements, strings.ToLower(part))
		}
	}
	if len(statements) > 1 {
		return false
	}
	for _, stmt := range statements {
		for _, prefix := range deniedPrefixes {
			if strings.HasPrefix(stmt, prefix) {
				return false
			}
		}
	}
	return true
}
