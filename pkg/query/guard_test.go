package query

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAllowRawQuery(t *testing.T) {
	tests := []struct {
		query string
		want  bool
	}{
		{"select 1", true},
		{"SELECT * FROM t WHERE a = 'x'", true},
		{"select 1;", true},
		{"select 1; ;  ", true},
		{"", true},
		{"update t set a = 1", true},
		{"SELECT 1; DROP TABLE x", false},
		{"select 1; select 2", false},
		{"drop table x", false},
		{"  DROP TABLE x", false},
		{"Delete from x", false},
		{"deleted_rows", false},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			assert.Equal(t, tt.want, AllowRawQuery(tt.query))
		})
	}
}
