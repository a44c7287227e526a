package store

import (
	"context"
	_ "embed"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

//go:embed schema.sql
var schemaScript string

// Tables lists the tables of the fixed schema in dependency order.
var Tables = []string{"issues", "auditors", "auditors_issues", "findings"}

const sqlSchemaExists = `
        SELECT COUNT(*)
        FROM information_schema.tables
        WHERE table_schema = current_schema() AND table_name = ANY($1);
    `

type execer interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

type rowQuerier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// SplitStatements strips "--" line comments from script and splits it on ';'.
// Blank fragments are dropped.
func SplitStatements(script string) []string {
	var b strings.Builder
	for _, line := range strings.Split(script, "\n") {
		if idx := strings.Index(line, "--"); idx >= 0 {
			line = line[:idx]
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}

	var statements []string
	for _, fragment := range strings.Split(b.String(), ";") {
		if stmt := strings.TrimSpace(fragment); stmt != "" {
			statements = append(statements, stmt)
		}
	}
	return statements
}

// SchemaStatements returns the embedded DDL as individual statements.
func SchemaStatements() []string {
	return SplitStatements(schemaScript)
}

// InitSchema drops any previous tables and recreates the schema, one statement
// at a time. Failures wrap schemas.ErrStoreCreation.
func InitSchema(ctx context.Context, db execer) error {
	for i, stmt := range SchemaStatements() {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("%w: schema statement %d: %w", schemas.ErrStoreCreation, i+1, err)
		}
	}
	return nil
}

// SchemaExists reports whether every table in Tables is present in the
// current schema.
func SchemaExists(ctx context.Context, db rowQuerier) (bool, error) {
	var n int64
	if err := db.QueryRow(ctx, sqlSchemaExists, Tables).Scan(&n); err != nil {
		return false, fmt.Errorf("failed to inspect schema: %w", err)
	}
	return n == int64(len(Tables)), nil
}
