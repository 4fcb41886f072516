package query

// Operator is a filter operator selected by the "__op" key suffix.
type Operator int

const (
	OpEq Operator = iota
	OpNeq
	OpLte
	OpGte
	OpLt
	OpGt
	OpIn
	OpNotIn
	OpIExact
	OpContains
	OpIContains
	OpStartsWith
	OpIStartsWith
	OpEndsWith
	OpIEndsWith
	OpIsNull

	numOperators
)

// binding says how an operator's value reaches the database.
type binding int

const (
	bindValue   binding = iota + 1 // single bound parameter
	bindPattern                    // bound LIKE pattern (or inline literal in legacy mode)
	bindList                       // escaped literal set, never bound
	bindNone                       // no value, e.g. IS NULL
)

type operatorSpec struct {
	token string
	sql   string // empty when the dialect decides (case-insensitive LIKE)
	bind  binding
	// affixes wrapped around pattern values
	prefix, suffix string
}

// operators is indexed by Operator; its length pins the table to the enum.
var operators = [numOperators]operatorSpec{
	OpEq:          {token: "exact", sql: "=", bind: bindValue},
	OpNeq:         {token: "neq", sql: "!=", bind: bindValue},
	OpLte:         {token: "lte", sql: "<=", bind: bindValue},
	OpGte:         {token: "gte", sql: ">=", bind: bindValue},
	OpLt:          {token: "lt", sql: "<", bind: bindValue},
	OpGt:          {token: "gt", sql: ">", bind: bindValue},
	OpIn:          {token: "in", sql: "IN", bind: bindList},
	OpNotIn:       {token: "notin", sql: "NOT IN", bind: bindList},
	OpIExact:      {token: "iexact", bind: bindPattern},
	OpContains:    {token: "contains", sql: "LIKE", bind: bindPattern, prefix: "%", suffix: "%"},
	OpIContains:   {token: "icontains", bind: bindPattern, prefix: "%", suffix: "%"},
	OpStartsWith:  {token: "startswith", sql: "LIKE", bind: bindPattern, suffix: "%"},
	OpIStartsWith: {token: "istartswith", bind: bindPattern, suffix: "%"},
	OpEndsWith:    {token: "endswith", sql: "LIKE", bind: bindPattern, prefix: "%"},
	OpIEndsWith:   {token: "iendswith", bind: bindPattern, prefix: "%"},
	OpIsNull:      {token: "isnull", bind: bindNone},
}

var operatorsByToken = func() map[string]Operator {
	m := make(map[string]Operator, numOperators)
	for op := Operator(0); op < numOperators; op++ {
		m[operators[op].token] = op
	}
	return m
}()

// ParseOperator looks up the operator for a key suffix.
func ParseOperator(token string) (Operator, bool) {
	op, ok := operatorsByToken[token]
	return op, ok
}

func (op Operator) String() string {
	if op < 0 || op >= numOperators {
		return "unknown"
	}
	return operators[op].token
}

// sqlOperator returns the SQL operator text for op under dialect d.
func (op Operator) sqlOperator(d Dialect) string {
	if s := operators[op].sql; s != "" {
		return s
	}
	return d.CaseInsensitiveLike()
}
