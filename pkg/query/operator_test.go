package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestOperatorTableComplete(t *testing.T) {
	for op := Operator(0); op < numOperators; op++ {
		spec := operators[op]
		assert.NotEmpty(t, spec.token, "operator %d has no token", op)
		assert.NotZero(t, spec.bind, "operator %s has no binding", spec.token)

		parsed, ok := ParseOperator(spec.token)
		assert.True(t, ok)
		assert.Equal(t, op, parsed)
		assert.Equal(t, spec.token, op.String())
	}
}

func TestParseOperatorUnknown(t *testing.T) {
	for _, token := range []string{"", "eq", "LIKE", "gte ", "in;drop"} {
		_, ok := ParseOperator(token)
		assert.False(t, ok, token)
	}
	assert.Equal(t, "unknown", numOperators.String())
}

func TestSQLOperator(t *testing.T) {
	assert.Equal(t, ">=", OpGte.sqlOperator(Postgres))
	assert.Equal(t, "NOT IN", OpNotIn.sqlOperator(SQLite))
	assert.Equal(t, "LIKE", OpContains.sqlOperator(Postgres))
	assert.Equal(t, "ILIKE", OpIContains.sqlOperator(Postgres))
	assert.Equal(t, "ILIKE", OpIExact.sqlOperator(Postgres))
	assert.Equal(t, "LIKE", OpIStartsWith.sqlOperator(SQLite))
}
