package query

import (
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
)

// Dialect carries the database-specific pieces of SQL text the compiler
// emits: identifier and literal quoting, placeholder syntax, and the
// statements behind the meta commands.
type Dialect interface {
	Name() string
	QuoteIdentifier(name string) string
	// QuoteLiteral renders s as a complete, quoted string literal.
	QuoteLiteral(s string) string
	// Placeholder renders a named parameter reference.
	Placeholder(name string) string
	// CaseInsensitiveLike is the operator used by the i* pattern filters.
	CaseInsensitiveLike() string
	// LikeEscape is appended to bound LIKE patterns whose wildcards were
	// escaped with a backslash.
	LikeEscape() string
	ShowDatabases() string
	ShowTables() string
	Describe(table string) (string, map[string]any)
	InsertDefaults(table string) string
}

// Dialect names accepted by DialectByName.
const (
	DialectPostgres = "postgres"
	DialectSQLite   = "sqlite"
	DialectMySQL    = "mysql"
)

// DialectByName returns the dialect registered under name. "pg" and
// "sqlite3" are accepted as aliases.
func DialectByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case DialectPostgres, "pg", "postgresql":
		return Postgres, nil
	case DialectSQLite, "sqlite3":
		return SQLite, nil
	case DialectMySQL:
		return MySQL, nil
	default:
		return nil, fmt.Errorf("unknown dialect %q", name)
	}
}

var (
	Postgres Dialect = postgresDialect{}
	SQLite   Dialect = sqliteDialect{}
	MySQL    Dialect = mysqlDialect{}
)

// postgresDialect targets pgx, which rewrites @name placeholders when the
// arguments are passed as pgx.NamedArgs.
type postgresDialect struct{}

func (postgresDialect) Name() string { return DialectPostgres }

func (postgresDialect) QuoteIdentifier(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// QuoteLiteral follows the server's own quote_literal: quotes are doubled,
// and a value holding a backslash is written in E-string form with the
// backslashes doubled so the result does not depend on
// standard_conforming_strings.
func (postgresDialect) QuoteLiteral(s string) string {
	quoted := "'" + strings.ReplaceAll(s, "'", "''") + "'"
	if strings.Contains(s, `\`) {
		quoted = "E" + strings.ReplaceAll(quoted, `\`, `\\`)
	}
	return quoted
}

func (postgresDialect) Placeholder(name string) string { return "@" + name }

func (postgresDialect) CaseInsensitiveLike() string { return "ILIKE" }

func (postgresDialect) LikeEscape() string { return "" }

func (postgresDialect) ShowDatabases() string {
	return `SELECT datname AS "Database" FROM pg_database WHERE NOT datistemplate ORDER BY datname`
}

func (postgresDialect) ShowTables() string {
	return "SELECT table_schema, table_name FROM information_schema.tables " +
		"WHERE table_schema NOT IN ('pg_catalog', 'information_schema') " +
		"ORDER BY table_schema, table_name"
}

func (postgresDialect) Describe(table string) (string, map[string]any) {
	return "SELECT column_name, data_type, is_nullable, column_default " +
			"FROM information_schema.columns WHERE table_name = @table " +
			"ORDER BY ordinal_position",
		map[string]any{"table": table}
}

func (d postgresDialect) InsertDefaults(table string) string {
	return "INSERT INTO " + d.QuoteIdentifier(table) + " DEFAULT VALUES"
}

// sqliteDialect targets mattn/go-sqlite3, which binds sql.NamedArg values to
// :name placeholders.
type sqliteDialect struct{}

func (sqliteDialect) Name() string { return DialectSQLite }

func (sqliteDialect) QuoteIdentifier(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (sqliteDialect) QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

func (sqliteDialect) Placeholder(name string) string { return ":" + name }

// SQLite has no ILIKE; its LIKE already ignores ASCII case.
func (sqliteDialect) CaseInsensitiveLike() string { return "LIKE" }

// SQLite LIKE has no default escape character.
func (sqliteDialect) LikeEscape() string { return ` ESCAPE '\'` }

func (sqliteDialect) ShowDatabases() string { return "PRAGMA database_list" }

func (sqliteDialect) ShowTables() string {
	return "SELECT name FROM sqlite_master WHERE type = 'table' ORDER BY name"
}

func (d sqliteDialect) Describe(table string) (string, map[string]any) {
	return "PRAGMA table_info(" + d.QuoteIdentifier(table) + ")", nil
}

func (d sqliteDialect) InsertDefaults(table string) string {
	return "INSERT INTO " + d.QuoteIdentifier(table) + " DEFAULT VALUES"
}

// mysqlDialect renders the statements a MySQL server understands natively.
// It is used for dry-run compilation; there is no MySQL executor.
type mysqlDialect struct{}

func (mysqlDialect) Name() string { return DialectMySQL }

func (mysqlDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// mysqlEscaper mirrors mysql_real_escape_string.
var mysqlEscaper = strings.NewReplacer(
	"\x00", `\0`,
	"\n", `\n`,
	"\r", `\r`,
	`\`, `\\`,
	"'", `\'`,
	`"`, `\"`,
	"\x1a", `\Z`,
)

func (mysqlDialect) QuoteLiteral(s string) string {
	return "'" + mysqlEscaper.Replace(s) + "'"
}

func (mysqlDialect) Placeholder(name string) string { return ":" + name }

// MySQL LIKE follows the column collation, which is case-insensitive by
// default.
func (mysqlDialect) CaseInsensitiveLike() string { return "LIKE" }

func (mysqlDialect) LikeEscape() string { return "" }

func (mysqlDialect) ShowDatabases() string { return "SHOW DATABASES" }

func (mysqlDialect) ShowTables() string { return "SHOW TABLES" }

func (d mysqlDialect) Describe(table string) (string, map[string]any) {
	return "DESCRIBE " + d.QuoteIdentifier(table), nil
}

func (d mysqlDialect) InsertDefaults(table string) string {
	return "INSERT INTO " + d.QuoteIdentifier(table) + " () VALUES ()"
}
