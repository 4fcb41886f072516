package query

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"slices"
	"strconv"
	"strings"
)

// DefaultIDField is the id column used when _idfield is not given.
const DefaultIDField = "id"

// StatementKind identifies which form the compiler chose.
type StatementKind int

const (
	StmtShowDatabases StatementKind = iota + 1
	StmtShowTables
	StmtDescribe
	StmtRaw
	StmtSelectByID
	StmtUpdateByID
	StmtSelect
	StmtInsert
)

var statementNames = map[StatementKind]string{
	StmtShowDatabases: "show_databases",
	StmtShowTables:    "show_tables",
	StmtDescribe:      "describe",
	StmtRaw:           "raw",
	StmtSelectByID:    "select_by_id",
	StmtUpdateByID:    "update_by_id",
	StmtSelect:        "select",
	StmtInsert:        "insert",
}

func (k StatementKind) String() string {
	if name, ok := statementNames[k]; ok {
		return name
	}
	return "unknown"
}

// ReturnsRows reports whether statements of this kind produce a result set.
// Raw queries are assumed to.
func (k StatementKind) ReturnsRows() bool {
	return k != StmtInsert && k != StmtUpdateByID
}

// CompiledQuery is a statement ready for an executor.
type CompiledQuery struct {
	Kind StatementKind
	Text string
	// Params holds the named parameters of a single execution.
	Params map[string]any
	// Batch holds one parameter map per row when MultiRow is set.
	Batch    []map[string]any
	MultiRow bool
}

// Parameters returns Params, or Batch for multi-row statements.
func (q *CompiledQuery) Parameters() any {
	if q.MultiRow {
		return q.Batch
	}
	return q.Params
}

func (q *CompiledQuery) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Query      string `json:"query"`
		Parameters any    `json:"parameters"`
	}{q.Text, q.Parameters()})
}

// Options configure a Compiler.
type Options struct {
	Dialect Dialect
	// AllowRaw guards the query command; AllowRawQuery when nil.
	AllowRaw RawQueryGuard
	// InlinePatterns renders LIKE filters as escaped literals instead of
	// bound parameters.
	InlinePatterns bool
	// IDField is the default id column; DefaultIDField when empty.
	IDField string
}

// Compiler turns requests into SQL. It holds no mutable state and is safe
// for concurrent use.
type Compiler struct {
	opts Options
}

// NewCompiler returns a Compiler with defaults filled in.
func NewCompiler(opts Options) *Compiler {
	if opts.Dialect == nil {
		opts.Dialect = Postgres
	}
	if opts.AllowRaw == nil {
		opts.AllowRaw = AllowRawQuery
	}
	if opts.IDField == "" {
		opts.IDField = DefaultIDField
	}
	return &Compiler{opts: opts}
}

// Dialect returns the dialect the compiler renders for.
func (c *Compiler) Dialect() Dialect {
	return c.opts.Dialect
}

// Compile chooses and builds the statement for one request.
func (c *Compiler) Compile(rp ResourcePath, params url.Values, body, method string) (*CompiledQuery, error) {
	d := c.opts.Dialect

	if rp.IsCommand() {
		return c.compileCommand(rp, body)
	}
	if rp.Database == "" {
		return nil, newError(KindMissingTarget, "Database or command is required.")
	}
	if rp.Table == "" {
		return nil, newError(KindMissingTarget, "Table or database command is required.")
	}

	payload, err := NormalizeBody(body)
	if err != nil {
		return nil, err
	}

	table := d.QuoteIdentifier(rp.Table)
	names := newParamNamer()

	if rp.ID != "" {
		idField := c.opts.IDField
		if v := params.Get(MetaIDField); v != "" {
			idField = v
		}
		return c.compileByID(table, idField, idValue(rp.ID), params, payload, names)
	}

	switch strings.ToUpper(method) {
	case http.MethodGet, http.MethodHead:
		filter, err := c.translate(params, names)
		if err != nil {
			return nil, err
		}
		text := fmt.Sprintf("SELECT %s FROM %s", c.fieldList(params), table)
		if len(filter.Where) > 0 {
			text += " WHERE " + strings.Join(filter.Where, " AND ")
		}
		return &CompiledQuery{Kind: StmtSelect, Text: text, Params: filter.Params}, nil

	case http.MethodPost:
		return c.compileInsert(rp.Table, table, payload, names)

	default:
		return nil, &Error{
			Kind:    KindUnsupportedMethod,
			Message: fmt.Sprintf("Method %s not allowed.", method),
		}
	}
}

func (c *Compiler) compileCommand(rp ResourcePath, body string) (*CompiledQuery, error) {
	d := c.opts.Dialect

	switch {
	case rp.Database == "":
		if rp.Command == CommandDatabases {
			return &CompiledQuery{Kind: StmtShowDatabases, Text: d.ShowDatabases(), Params: map[string]any{}}, nil
		}
	case rp.Table == "":
		switch rp.Command {
		case CommandTables:
			return &CompiledQuery{Kind: StmtShowTables, Text: d.ShowTables(), Params: map[string]any{}}, nil
		case CommandQuery:
			raw := strings.TrimSpace(body)
			if raw == "" {
				return nil, newError(KindMissingBody, "Body required for raw query.")
			}
			if !c.opts.AllowRaw(raw) {
				return nil, &Error{Kind: KindRawQueryRejected, Message: "Raw query rejected.", Query: raw}
			}
			return &CompiledQuery{Kind: StmtRaw, Text: raw, Params: map[string]any{}}, nil
		}
	default:
		if rp.Command == CommandDescribe {
			text, params := d.Describe(rp.Table)
			if params == nil {
				params = map[string]any{}
			}
			return &CompiledQuery{Kind: StmtDescribe, Text: text, Params: params}, nil
		}
	}
	return nil, newError(KindInvalidCommand, "Invalid command %q.", rp.Command)
}

func (c *Compiler) compileByID(table, idField string, id any, params url.Values, payload Payload, names *paramNamer) (*CompiledQuery, error) {
	d := c.opts.Dialect

	switch payload.Len() {
	case 0:
		idName := names.next(idField)
		text := fmt.Sprintf("SELECT %s FROM %s WHERE %s = %s",
			c.fieldList(params), table, d.QuoteIdentifier(idField), d.Placeholder(idName))
		return &CompiledQuery{Kind: StmtSelectByID, Text: text, Params: map[string]any{idName: id}}, nil
	case 1:
	default:
		return nil, newError(KindInvalidBody, "Invalid body. Single-row update cannot take multiple rows.")
	}

	row := payload.Rows[0]
	if len(row) == 0 {
		return nil, newError(KindInvalidBody, "Invalid body. Update requires at least one column.")
	}

	bound := make(map[string]any, len(row)+1)
	cols := sortedColumns(row)
	sets := make([]string, len(cols))
	for i, col := range cols {
		name := names.next(col)
		bound[name] = row[col]
		sets[i] = fmt.Sprintf("%s = %s", d.QuoteIdentifier(col), d.Placeholder(name))
	}
	idName := names.next(idField)
	bound[idName] = id

	text := fmt.Sprintf("UPDATE %s SET %s WHERE %s = %s",
		table, strings.Join(sets, ", "), d.QuoteIdentifier(idField), d.Placeholder(idName))
	return &CompiledQuery{Kind: StmtUpdateByID, Text: text, Params: bound}, nil
}

func (c *Compiler) compileInsert(rawTable, table string, payload Payload, names *paramNamer) (*CompiledQuery, error) {
	if payload.Len() == 0 {
		return nil, newError(KindMissingBody, "Body required for insert.")
	}
	d := c.opts.Dialect

	cols := sortedColumns(payload.Rows[0])
	paramNames := make([]string, len(cols))
	for i, col := range cols {
		paramNames[i] = names.next(col)
	}

	var text string
	if len(cols) == 0 {
		text = d.InsertDefaults(rawTable)
	} else {
		quoted := make([]string, len(cols))
		placeholders := make([]string, len(cols))
		for i, col := range cols {
			quoted[i] = d.QuoteIdentifier(col)
			placeholders[i] = d.Placeholder(paramNames[i])
		}
		text = fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
			table, strings.Join(quoted, ", "), strings.Join(placeholders, ", "))
	}

	batch := make([]map[string]any, len(payload.Rows))
	for r, row := range payload.Rows {
		bound := make(map[string]any, len(cols))
		for i, col := range cols {
			// rows missing a first-row column insert NULL
			bound[paramNames[i]] = row[col]
		}
		batch[r] = bound
	}

	if len(batch) == 1 {
		return &CompiledQuery{Kind: StmtInsert, Text: text, Params: batch[0]}, nil
	}
	return &CompiledQuery{Kind: StmtInsert, Text: text, Batch: batch, MultiRow: true}, nil
}

func sortedColumns(row Row) []string {
	cols := make([]string, 0, len(row))
	for col := range row {
		cols = append(cols, col)
	}
	slices.Sort(cols)
	return cols
}

// idValue keeps numeric ids numeric.
func idValue(id string) any {
	if n, err := strconv.ParseInt(id, 10, 64); err == nil {
		return n
	}
	return id
}
