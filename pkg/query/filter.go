package query

import (
	"encoding/json"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strconv"
	"strings"
)

// MetaPrefix marks query-string keys that configure the compiler rather
// than filter rows.
const MetaPrefix = "_"

// Meta keys.
const (
	MetaFields  = "_fields"
	MetaIDField = "_idfield"
)

// operatorSeparator splits "<column>__<op>" filter keys.
const operatorSeparator = "__"

// truthy values for the isnull operator; anything else counts as false.
var truthy = map[string]bool{"yes": true, "true": true, "y": true, "1": true}

// FilterClause is one parsed column predicate.
type FilterClause struct {
	Column   string
	Operator Operator
	Value    string
	List     []any // in/notin only
	// Suffixed is set when the key named its operator, e.g. "age__gte".
	Suffixed bool
}

// Filter is the translated WHERE clause: fragments to be joined with AND
// and the parameters they reference.
type Filter struct {
	Where  []string
	Params map[string]any
}

// ParseFilters turns query-string keys into filter clauses, sorted by key.
// Meta keys are skipped.
func ParseFilters(params url.Values) ([]FilterClause, error) {
	keys := make([]string, 0, len(params))
	for key := range params {
		if strings.HasPrefix(key, MetaPrefix) {
			continue
		}
		keys = append(keys, key)
	}
	slices.Sort(keys)

	clauses := make([]FilterClause, 0, len(keys))
	for _, key := range keys {
		values := params[key]
		if len(values) == 0 {
			continue
		}
		clause := FilterClause{Column: key, Operator: OpEq, Value: values[len(values)-1]}

		if i := strings.LastIndex(key, operatorSeparator); i >= 0 {
			token := key[i+len(operatorSeparator):]
			op, ok := ParseOperator(token)
			if !ok {
				return nil, &Error{
					Kind:    KindInvalidFilter,
					Message: fmt.Sprintf("Invalid filter. Unknown operator %q in %q.", token, key),
				}
			}
			clause.Column = key[:i]
			clause.Operator = op
			clause.Suffixed = true
		}

		if operators[clause.Operator].bind == bindList {
			clause.List = listValue(values)
		}
		clauses = append(clauses, clause)
	}
	return clauses, nil
}

// listValue reads a list-valued key: the last value as a JSON array when it
// is one, otherwise every repeated value.
func listValue(values []string) []any {
	last := strings.TrimSpace(values[len(values)-1])
	if strings.HasPrefix(last, "[") {
		dec := json.NewDecoder(strings.NewReader(last))
		dec.UseNumber()
		var list []any
		if err := dec.Decode(&list); err == nil {
			return list
		}
	}
	list := make([]any, len(values))
	for i, v := range values {
		list[i] = v
	}
	return list
}

// Translate renders the filter keys of params as WHERE fragments.
func (c *Compiler) Translate(params url.Values) (Filter, error) {
	return c.translate(params, newParamNamer())
}

func (c *Compiler) translate(params url.Values, names *paramNamer) (Filter, error) {
	clauses, err := ParseFilters(params)
	if err != nil {
		return Filter{}, err
	}

	f := Filter{Params: make(map[string]any)}
	for _, clause := range clauses {
		fragment, err := c.renderClause(clause, names, f.Params)
		if err != nil {
			return Filter{}, err
		}
		f.Where = append(f.Where, fragment)
	}
	return f, nil
}

func (c *Compiler) renderClause(fc FilterClause, names *paramNamer, bound map[string]any) (string, error) {
	d := c.opts.Dialect
	col := d.QuoteIdentifier(fc.Column)
	spec := operators[fc.Operator]

	switch spec.bind {
	case bindValue:
		if !fc.Suffixed && fc.Value == "NULL" {
			return col + " IS NULL", nil
		}
		name := names.next(fc.Column)
		bound[name] = fc.Value
		return fmt.Sprintf("%s %s %s", col, spec.sql, d.Placeholder(name)), nil

	case bindPattern:
		sqlOp := fc.Operator.sqlOperator(d)
		if c.opts.InlinePatterns {
			return fmt.Sprintf("%s %s %s", col, sqlOp, inlineLikePattern(spec.prefix, fc.Value, spec.suffix, d)), nil
		}
		name := names.next(fc.Column)
		bound[name] = likePattern(spec.prefix, fc.Value, spec.suffix)
		return fmt.Sprintf("%s %s %s%s", col, sqlOp, d.Placeholder(name), d.LikeEscape()), nil

	case bindList:
		if len(fc.List) == 0 {
			if fc.Operator == OpNotIn {
				return "1 = 1", nil
			}
			return "1 = 0", nil
		}
		literals := make([]string, len(fc.List))
		for i, v := range fc.List {
			lit, err := EscapeElement(v, d)
			if err != nil {
				return "", newError(KindInvalidFilter, "Invalid filter %q: %v", fc.Column, err)
			}
			literals[i] = lit
		}
		return fmt.Sprintf("%s %s (%s)", col, spec.sql, strings.Join(literals, ", ")), nil

	case bindNone:
		if truthy[strings.ToLower(fc.Value)] {
			return col + " IS NULL", nil
		}
		return col + " IS NOT NULL", nil
	}

	return "", newError(KindInvalidFilter, "Invalid filter. Unsupported operator %s.", fc.Operator)
}

// nonWord matches characters that cannot appear in a placeholder name.
var nonWord = regexp.MustCompile(`[^A-Za-z0-9_]`)

// paramNamer hands out placeholder names unique within one statement.
type paramNamer struct {
	used map[string]bool
}

func newParamNamer() *paramNamer {
	return &paramNamer{used: make(map[string]bool)}
}

// next derives a placeholder name from column. Repeats get a numeric
// suffix: age, age_2, age_3.
func (n *paramNamer) next(column string) string {
	base := nonWord.ReplaceAllString(column, "_")
	if base == "" || (base[0] >= '0' && base[0] <= '9') {
		base = "p_" + base
	}
	name := base
	for i := 2; n.used[name]; i++ {
		name = base + "_" + strconv.Itoa(i)
	}
	n.used[name] = true
	return name
}

// fieldList renders the _fields meta key, or "*".
func (c *Compiler) fieldList(params url.Values) string {
	values, ok := params[MetaFields]
	if !ok || len(values) == 0 {
		return "*"
	}
	fields := listValue(values)

	rendered := make([]string, 0, len(fields))
	for _, f := range fields {
		name, ok := f.(string)
		if !ok {
			name = fmt.Sprint(f)
		}
		name = strings.TrimSpace(name)
		switch name {
		case "":
			continue
		case "*":
			rendered = append(rendered, "*")
		default:
			rendered = append(rendered, c.opts.Dialect.QuoteIdentifier(name))
		}
	}
	if len(rendered) == 0 {
		return "*"
	}
	return strings.Join(rendered, ", ")
}
