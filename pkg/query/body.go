package query

import (
	"encoding/json"
	"errors"
	"io"
	"strings"
)

// Shape is the top-level form of a request body.
type Shape int

const (
	ShapeEmpty  Shape = iota // no body
	ShapeSingle              // a JSON object
	ShapeMulti               // a JSON array of objects
)

func (s Shape) String() string {
	switch s {
	case ShapeEmpty:
		return "empty"
	case ShapeSingle:
		return "single"
	case ShapeMulti:
		return "multi"
	default:
		return "unknown"
	}
}

// Row is one column -> value map taken from a request body.
type Row = map[string]any

// Payload is a normalized request body.
type Payload struct {
	Shape Shape
	Rows  []Row
}

// Len returns the number of rows.
func (p Payload) Len() int {
	return len(p.Rows)
}

// NormalizeBody parses a JSON request body into rows. The shape is decided
// by the first non-space character before anything is decoded.
func NormalizeBody(body string) (Payload, error) {
	trimmed := strings.TrimSpace(body)
	if trimmed == "" {
		return Payload{Shape: ShapeEmpty}, nil
	}

	switch trimmed[0] {
	case '{':
		var row Row
		if err := decodeStrict(trimmed, &row); err != nil {
			return Payload{}, invalidBody(err)
		}
		return Payload{Shape: ShapeSingle, Rows: []Row{normalizeRow(row)}}, nil

	case '[':
		var items []any
		if err := decodeStrict(trimmed, &items); err != nil {
			return Payload{}, invalidBody(err)
		}
		rows := make([]Row, 0, len(items))
		for _, item := range items {
			row, ok := item.(map[string]any)
			if !ok {
				return Payload{}, newError(KindInvalidBody, "Invalid body. JSON list must contain only dictionaries.")
			}
			rows = append(rows, normalizeRow(row))
		}
		return Payload{Shape: ShapeMulti, Rows: rows}, nil

	default:
		return Payload{}, newError(KindInvalidBody, "Invalid body. Must be a JSON list or dictionary.")
	}
}

// decodeStrict decodes exactly one JSON value, keeping numbers as
// json.Number so integers survive intact.
func decodeStrict(s string, dst any) error {
	dec := json.NewDecoder(strings.NewReader(s))
	dec.UseNumber()
	if err := dec.Decode(dst); err != nil {
		return err
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return errors.New("unexpected data after JSON value")
	}
	return nil
}

func invalidBody(err error) *Error {
	return newError(KindInvalidBody, "Invalid body: %v", err)
}

// normalizeRow converts json.Number values into int64 or float64 so that
// drivers receive native numeric types. Nested values are left as decoded.
func normalizeRow(row Row) Row {
	if row == nil {
		return Row{}
	}
	for k, v := range row {
		if n, ok := v.(json.Number); ok {
			row[k] = numberValue(n)
		}
	}
	return row
}

func numberValue(n json.Number) any {
	if i, err := n.Int64(); err == nil {
		return i
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
