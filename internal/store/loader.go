package store

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

const (
	sqlMaxIssueID = `SELECT COALESCE(MAX(id), 0) FROM issues;`

	sqlSelectAuditorID = `SELECT id FROM auditors WHERE name = $1;`

	sqlInsertAuditor = `INSERT INTO auditors (name) VALUES ($1) RETURNING id;`
)

var (
	issueColumns      = []string{"id", "title", "repos", "type", "start_date", "end_date", "auditors_count", "specifications", "published", "findings_count"}
	membershipColumns = []string{"auditor_id", "issue_id"}
	findingColumns    = []string{"title", "severity", "auditor_id", "issue_id"}
)

// Loader persists normalized batches. It assumes it is the only writer.
type Loader struct {
	pool DBPool
	log  *zap.Logger
}

var _ schemas.Loader = (*Loader)(nil)

// NewLoader creates a Loader over pool.
func NewLoader(pool DBPool, logger *zap.Logger) *Loader {
	return &Loader{
		pool: pool,
		log:  logger.Named("loader"),
	}
}

// Load writes batch into the store in one transaction. With isNew the schema
// is rebuilt first inside that transaction, so a failed load keeps the
// previous tables. Either way the four tables must exist before any row is
// written or the call fails with schemas.ErrStoreCreation. Rows are written in
// dependency order: issues, auditors, memberships, findings. When appending to
// an existing store, issue ids are shifted past the current maximum.
func (l *Loader) Load(ctx context.Context, batch *schemas.Batch, isNew bool) error {
	if batch == nil {
		return fmt.Errorf("%w: nil batch", schemas.ErrValidation)
	}

	tx, err := l.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer rollback(ctx, tx, l.log)

	if isNew {
		l.log.Info("Rebuilding schema")
		if err := InitSchema(ctx, tx); err != nil {
			return err
		}
	}

	exists, err := SchemaExists(ctx, tx)
	if err != nil {
		return fmt.Errorf("%w: %w", schemas.ErrStoreCreation, err)
	}
	if !exists {
		return fmt.Errorf("%w: tables %v are missing from the target database", schemas.ErrStoreCreation, Tables)
	}

	var offset int64
	if !isNew {
		if err := tx.QueryRow(ctx, sqlMaxIssueID).Scan(&offset); err != nil {
			return fmt.Errorf("failed to read current issue id: %w", err)
		}
	}

	if err := l.persistIssues(ctx, tx, batch.Issues, offset); err != nil {
		return err
	}

	resolver := newAuditorResolver(tx)
	for _, name := range batch.Auditors {
		if _, err := resolver.resolve(ctx, name); err != nil {
			return err
		}
	}

	if err := l.persistMemberships(ctx, tx, batch.Memberships, resolver, offset); err != nil {
		return err
	}
	if err := l.persistFindings(ctx, tx, batch.Findings, resolver, offset); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	l.log.Info("Loaded batch",
		zap.Int("issues", len(batch.Issues)),
		zap.Int("auditors", len(resolver.ids)),
		zap.Int("auditors_created", resolver.created),
		zap.Int("memberships", len(batch.Memberships)),
		zap.Int("findings", len(batch.Findings)),
		zap.Int64("issue_id_offset", offset),
	)
	return nil
}

func (l *Loader) persistIssues(ctx context.Context, tx pgx.Tx, issues []schemas.Issue, offset int64) error {
	if len(issues) == 0 {
		return nil
	}
	return copyRows(ctx, tx, "issues", issueColumns, issueRows(issues, offset))
}

// issueRows lays issues out in issueColumns order with ids shifted by offset.
func issueRows(issues []schemas.Issue, offset int64) [][]any {
	rows := make([][]any, len(issues))
	for i, is := range issues {
		rows[i] = []any{
			is.ID + offset, is.Title, is.Repos, is.Type, is.StartDate, is.EndDate,
			is.AuditorsCount, is.Specifications, is.Published, is.FindingsCount,
		}
	}
	return rows
}

func (l *Loader) persistMemberships(ctx context.Context, tx pgx.Tx, pairs []schemas.Membership, r *auditorResolver, offset int64) error {
	if len(pairs) == 0 {
		return nil
	}
	rows := make([][]any, len(pairs))
	for i, p := range pairs {
		auditorID, err := r.resolve(ctx, p.AuditorName)
		if err != nil {
			return err
		}
		rows[i] = []any{auditorID, p.IssueID + offset}
	}
	return copyRows(ctx, tx, "auditors_issues", membershipColumns, rows)
}

func (l *Loader) persistFindings(ctx context.Context, tx pgx.Tx, findings []schemas.AttributedFinding, r *auditorResolver, offset int64) error {
	if len(findings) == 0 {
		return nil
	}
	rows := make([][]any, len(findings))
	for i, f := range findings {
		auditorID, err := r.resolve(ctx, f.AuditorName)
		if err != nil {
			return err
		}
		rows[i] = []any{f.Title, string(f.Severity), auditorID, f.IssueID + offset}
	}
	return copyRows(ctx, tx, "findings", findingColumns, rows)
}

func copyRows(ctx context.Context, tx pgx.Tx, table string, columns []string, rows [][]any) error {
	n, err := tx.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return fmt.Errorf("failed to copy %s: %w", table, err)
	}
	if int(n) != len(rows) {
		return fmt.Errorf("mismatch in copied %s count: expected %d, got %d", table, len(rows), n)
	}
	return nil
}

// auditorResolver maps auditor names to ids inside one load transaction,
// creating rows for names the store has not seen.
type auditorResolver struct {
	tx      pgx.Tx
	ids     map[string]int64
	created int
}

func newAuditorResolver(tx pgx.Tx) *auditorResolver {
	return &auditorResolver{tx: tx, ids: make(map[string]int64)}
}

func (r *auditorResolver) resolve(ctx context.Context, name string) (int64, error) {
	if id, ok := r.ids[name]; ok {
		return id, nil
	}

	var id int64
	err := r.tx.QueryRow(ctx, sqlSelectAuditorID, name).Scan(&id)
	switch {
	case err == nil:
	case errors.Is(err, pgx.ErrNoRows):
		if err := r.tx.QueryRow(ctx, sqlInsertAuditor, name).Scan(&id); err != nil {
			return 0, fmt.Errorf("failed to insert auditor %q: %w", name, err)
		}
		r.created++
	default:
		return 0, fmt.Errorf("failed to look up auditor %q: %w", name, err)
	}

	r.ids[name] = id
	return id, nil
}
