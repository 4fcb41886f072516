// Package pgparse provides a raw-query guard backed by the PostgreSQL
// parser. It is stricter than query.AllowRawQuery: semicolons inside string
// literals do not count as statement separators, leading comments are
// skipped, and destructive statements are caught at the top level and inside
// the common table expressions of a WITH clause.
package pgparse

import (
	pg_query "github.com/pganalyze/pg_query_go/v5"
)

// Allow reports whether raw parses as exactly one statement that neither is
// nor contains in a WITH clause a DELETE, DROP or TRUNCATE. Statements that
// fail to parse are rejected.
func Allow(raw string) bool {
	tree, err := pg_query.Parse(raw)
	if err != nil {
		return false
	}
	if len(tree.GetStmts()) != 1 {
		return false
	}
	return !destructive(tree.GetStmts()[0].GetStmt())
}

func destructive(node *pg_query.Node) bool {
	if node == nil {
		return true
	}
	switch {
	case node.GetDeleteStmt() != nil,
		node.GetDropStmt() != nil,
		node.GetTruncateStmt() != nil,
		node.GetDropdbStmt() != nil:
		return true
	}

	for _, cte := range withClause(node).GetCtes() {
		if destructive(cte.GetCommonTableExpr().GetCtequery()) {
			return true
		}
	}
	return false
}

// withClause returns the WITH clause of a statement that can carry one.
func withClause(node *pg_query.Node) *pg_query.WithClause {
	switch {
	case node.GetSelectStmt() != nil:
		return node.GetSelectStmt().GetWithClause()
	case node.GetInsertStmt() != nil:
		return node.GetInsertStmt().GetWithClause()
	case node.GetUpdateStmt() != nil:
		return node.GetUpdateStmt().GetWithClause()
	}
	return nil
}
