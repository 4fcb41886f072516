package query

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// This file is the only place where request values are written into SQL
// text instead of being bound as parameters. Everything that renders a
// literal must go through Escape or EscapeElement.

// numberPattern accepts plain decimal numbers only. strconv.ParseFloat would
// also accept "Inf", "NaN" and hex floats, which must not reach SQL text
// unquoted.
var numberPattern = regexp.MustCompile(`^[+-]?(\d+(\.\d*)?|\.\d+)([eE][+-]?\d+)?$`)

// nullLiterals render as the SQL NULL keyword.
var nullLiterals = map[string]bool{
	"NULL": true,
	"null": true,
	"Null": true,
	"None": true,
}

// Escape renders a single request value as a SQL literal.
func Escape(value string, d Dialect) string {
	switch {
	case nullLiterals[value]:
		return "NULL"
	case numberPattern.MatchString(value):
		return value
	default:
		return d.QuoteLiteral(value)
	}
}

// EscapeElement renders one element of a decoded JSON list.
func EscapeElement(v any, d Dialect) (string, error) {
	switch v := v.(type) {
	case nil:
		return "NULL", nil
	case string:
		return Escape(v, d), nil
	case json.Number:
		if !numberPattern.MatchString(v.String()) {
			return "", fmt.Errorf("invalid number %q", v.String())
		}
		return v.String(), nil
	case float64:
		return strconv.FormatFloat(v, 'g', -1, 64), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case bool:
		if v {
			return "TRUE", nil
		}
		return "FALSE", nil
	default:
		return "", fmt.Errorf("unsupported list element of type %T", v)
	}
}

// likeEscaper neutralizes LIKE wildcards so a bound value matches literally.
var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern builds the pattern bound for a contains/startswith/endswith
// filter. The value's own wildcards are escaped.
func likePattern(prefix, value, suffix string) string {
	return prefix + likeEscaper.Replace(value) + suffix
}

// inlineLikePattern renders the pattern as a literal, leaving wildcards in
// the value active. Only used when Options.InlinePatterns is set.
func inlineLikePattern(prefix, value, suffix string, d Dialect) string {
	return d.QuoteLiteral(prefix + value + suffix)
}
