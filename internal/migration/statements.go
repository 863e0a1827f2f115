package migration

import (
	"context"
	"regexp"
	"strings"
)

var (
	blockComment = regexp.MustCompile(`(?s)/\*.*?\*/`)
	lineComment  = regexp.MustCompile(`(?m)^[ \t]*--.*$`)
	blankLines   = regexp.MustCompile(`\n\s*\n`)
)

// Leading keywords that route a statement to Exec or Query. Matching is
// case-insensitive and the first match wins.
var (
	execPrefixes    = []string{"ALTER", "ANALYZE", "CREATE", "DELETE", "DROP", "INSERT", "UPDATE"}
	queryPrefixes   = []string{"PRAGMA"}
	commentPrefixes = []string{"--", "/*"}
)

// SplitStatements turns a SQL script into its statements with comments
// removed.
//
// Statements are separated by blank lines, not by semicolons: two statements
// on consecutive lines stay in one chunk. Scripts written for this splitter
// rely on that, so it is kept as is.
func SplitStatements(script string) []string {
	text := strings.ReplaceAll(script, "\r\n", "\n")
	text = blockComment.ReplaceAllString(text, "")
	text = lineComment.ReplaceAllString(text, "")

	chunks := blankLines.Split(text, -1)
	statements := make([]string, 0, len(chunks))
	for _, chunk := range chunks {
		if stmt := strings.TrimSpace(chunk); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// ExecuteStatements runs each statement against db in order, stopping at the
// first failure. Statements with an unrecognized leading keyword fail with
// *UnparsableStatementError before anything is sent to the database.
func ExecuteStatements(ctx context.Context, db Database, statements []string) error {
	for _, raw := range statements {
		stmt := strings.TrimSpace(raw)
		if stmt == "" {
			continue
		}

		upper := strings.ToUpper(stmt)
		switch {
		case hasAnyPrefix(upper, commentPrefixes):
			continue
		case hasAnyPrefix(upper, execPrefixes):
			if err := db.Exec(ctx, stmt); err != nil {
				return NewDatabaseError(stmt, "exec statement", err)
			}
		case hasAnyPrefix(upper, queryPrefixes):
			if err := drainQuery(ctx, db, stmt); err != nil {
				return NewDatabaseError(stmt, "query statement", err)
			}
		default:
			return &UnparsableStatementError{Statement: stmt}
		}
	}
	return nil
}

// ExecuteScript splits script and executes its statements.
func ExecuteScript(ctx context.Context, db Database, script string) error {
	return ExecuteStatements(ctx, db, SplitStatements(script))
}

// drainQuery runs a row-returning statement and discards its rows.
func drainQuery(ctx context.Context, db Database, stmt string) error {
	rows, err := db.Query(ctx, stmt)
	if err != nil {
		return err
	}
	if rows == nil {
		return nil
	}
	defer rows.Close()

	for rows.Next() {
	}
	return rows.Err()
}

func hasAnyPrefix(s string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.HasPrefix(s, p) {
			return true
		}
	}
	return false
}
