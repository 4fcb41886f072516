package sqlexec

import (
	"encoding/hex"
	"time"
	"unicode/utf8"
)

// NormalizeValue converts a scanned column value into something that
// encodes cleanly as JSON. Text-like byte slices become strings, other
// byte slices become a \x-prefixed hex string.
func NormalizeValue(v any) any {
	switch val := v.(type) {
	case []byte:
		if utf8.Valid(val) {
			return string(val)
		}
		return `\x` + hex.EncodeToString(val)
	case time.Time:
		return val.Format(time.RFC3339Nano)
	default:
		return v
	}
}

// NormalizeRow applies NormalizeValue to every column of row in place.
func NormalizeRow(row map[string]any) map[string]any {
	for k, v := range row {
		row[k] = NormalizeValue(v)
	}
	return row
}
