package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"go.uber.org/zap"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

const (
	sqlAllAuditors = `
        SELECT id, name
        FROM auditors
        ORDER BY id ASC;
    `
	sqlAuditorsByRef = `
        SELECT id, name
        FROM auditors
        WHERE id = ANY($1) OR name = ANY($2)
        ORDER BY id ASC;
    `
	sqlFindingViews = `
        SELECT f.id, f.title, f.severity, f.issue_id, a.id, a.name
        FROM findings f
        JOIN auditors a ON a.id = f.auditor_id`

	sqlIssueViews = `
        SELECT i.id, i.title, i.repos, i.type, i.start_date, i.end_date,
               i.auditors_count, i.specifications, i.published, i.findings_count,
               a.id, a.name
        FROM issues i
        LEFT JOIN auditors_issues ai ON ai.issue_id = i.id
        LEFT JOIN auditors a ON a.id = ai.auditor_id`
)

var tableNamePattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// GetAuditors returns every auditor ordered by id when refs is empty.
// Otherwise it returns one auditor per ref in request order and fails with
// schemas.ErrNotFound if any ref matches nothing.
func (s *Store) GetAuditors(ctx context.Context, refs ...schemas.AuditorRef) ([]schemas.Auditor, error) {
	if len(refs) == 0 {
		return s.queryAuditors(ctx, sqlAllAuditors)
	}

	ids := []int64{}
	names := []string{}
	for _, ref := range refs {
		if ref.IsName() {
			names = append(names, ref.Name)
		} else {
			ids = append(ids, ref.ID)
		}
	}

	found, err := s.queryAuditors(ctx, sqlAuditorsByRef, ids, names)
	if err != nil {
		return nil, err
	}
	byID := make(map[int64]schemas.Auditor, len(found))
	byName := make(map[string]schemas.Auditor, len(found))
	for _, a := range found {
		byID[a.ID] = a
		byName[a.Name] = a
	}

	out := make([]schemas.Auditor, 0, len(refs))
	for _, ref := range refs {
		var (
			a  schemas.Auditor
			ok bool
		)
		if ref.IsName() {
			a, ok = byName[ref.Name]
		} else {
			a, ok = byID[ref.ID]
		}
		if !ok {
			return nil, fmt.Errorf("%w: auditor %s", schemas.ErrNotFound, describeRef(ref))
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *Store) queryAuditors(ctx context.Context, query string, args ...any) ([]schemas.Auditor, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("failed to query auditors", err)
	}
	defer rows.Close()

	var auditors []schemas.Auditor
	for rows.Next() {
		var a schemas.Auditor
		if err := rows.Scan(&a.ID, &a.Name); err != nil {
			return nil, fmt.Errorf("failed to scan auditor row: %w", err)
		}
		auditors = append(auditors, a)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating auditor rows", err)
	}
	return auditors, nil
}

// GetFindingsByAuditors returns the findings attributed to any of the given
// auditors, or every finding when refs is empty. Each ref must resolve; the
// first one that does not aborts the call with schemas.ErrNotFound.
func (s *Store) GetFindingsByAuditors(ctx context.Context, refs ...schemas.AuditorRef) ([]schemas.FindingView, error) {
	if len(refs) == 0 {
		return s.queryFindings(ctx, sqlFindingViews+"\n        ORDER BY f.id ASC;")
	}

	auditors, err := s.GetAuditors(ctx, refs...)
	if err != nil {
		return nil, err
	}
	ids := make([]int64, 0, len(auditors))
	for _, a := range auditors {
		ids = append(ids, a.ID)
	}
	return s.queryFindings(ctx, sqlFindingViews+"\n        WHERE f.auditor_id = ANY($1)\n        ORDER BY f.id ASC;", ids)
}

// GetFindingsBySeverities returns the findings with any of the given
// severities, or every finding when none are given. Values outside the
// enumeration fail with schemas.ErrValidation.
func (s *Store) GetFindingsBySeverities(ctx context.Context, severities ...schemas.Severity) ([]schemas.FindingView, error) {
	if len(severities) == 0 {
		return s.queryFindings(ctx, sqlFindingViews+"\n        ORDER BY f.id ASC;")
	}

	values := make([]string, 0, len(severities))
	for _, sev := range severities {
		if !sev.Valid() {
			return nil, fmt.Errorf("%w: severity %q is not one of %v", schemas.ErrValidation, sev, schemas.Severities())
		}
		values = append(values, string(sev))
	}
	return s.queryFindings(ctx, sqlFindingViews+"\n        WHERE f.severity = ANY($1)\n        ORDER BY f.id ASC;", values)
}

func (s *Store) queryFindings(ctx context.Context, query string, args ...any) ([]schemas.FindingView, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("failed to query findings", err)
	}
	defer rows.Close()

	var findings []schemas.FindingView
	for rows.Next() {
		var (
			f        schemas.FindingView
			severity string
		)
		if err := rows.Scan(&f.ID, &f.Title, &severity, &f.IssueID, &f.Auditor.ID, &f.Auditor.Name); err != nil {
			return nil, fmt.Errorf("failed to scan finding row: %w", err)
		}
		f.Severity = schemas.Severity(severity)
		findings = append(findings, f)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating finding rows", err)
	}
	return findings, nil
}

// GetIssues returns one view per (issue, auditor) membership, ordered by issue
// id then auditor id. An issue with no membership rows appears once with a nil
// Auditor. Selector fields are combined with AND.
func (s *Store) GetIssues(ctx context.Context, sel schemas.IssueSelector) ([]schemas.IssueView, error) {
	var (
		conds []string
		args  []any
	)
	add := func(cond string, arg any) {
		args = append(args, arg)
		conds = append(conds, fmt.Sprintf(cond, len(args)))
	}
	if len(sel.AuditorIDs) > 0 {
		add("a.id = ANY($%d)", sel.AuditorIDs)
	}
	if len(sel.AuditorNames) > 0 {
		add("a.name = ANY($%d)", sel.AuditorNames)
	}
	if len(sel.IssueIDs) > 0 {
		add("i.id = ANY($%d)", sel.IssueIDs)
	}
	if len(sel.IssueTitles) > 0 {
		add("i.title = ANY($%d)", sel.IssueTitles)
	}

	query := sqlIssueViews
	if len(conds) > 0 {
		query += "\n        WHERE " + strings.Join(conds, " AND ")
	}
	query += "\n        ORDER BY i.id ASC, a.id ASC;"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, classify("failed to query issues", err)
	}
	defer rows.Close()

	var issues []schemas.IssueView
	for rows.Next() {
		var (
			v           schemas.IssueView
			auditorID   pgtype.Int8
			auditorName pgtype.Text
		)
		err := rows.Scan(
			&v.ID, &v.Title, &v.Repos, &v.Type, &v.StartDate, &v.EndDate,
			&v.AuditorsCount, &v.Specifications, &v.Published, &v.FindingsCount,
			&auditorID, &auditorName,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan issue row: %w", err)
		}
		if auditorID.Valid {
			v.Auditor = &schemas.Auditor{ID: auditorID.Int64, Name: auditorName.String}
		}
		issues = append(issues, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating issue rows", err)
	}
	return issues, nil
}

// GetRowCount returns the number of rows in table. A name that is not a plain
// identifier fails with schemas.ErrValidation; a table the server does not
// know fails with schemas.ErrQuery.
func (s *Store) GetRowCount(ctx context.Context, table string) (int64, error) {
	if !tableNamePattern.MatchString(table) {
		return 0, fmt.Errorf("%w: %q is not a valid table name", schemas.ErrValidation, table)
	}

	var n int64
	query := "SELECT COUNT(*) FROM " + pgx.Identifier{table}.Sanitize() + ";"
	if err := s.pool.QueryRow(ctx, query).Scan(&n); err != nil {
		return 0, classify(fmt.Sprintf("failed to count rows in %s", table), err)
	}
	return n, nil
}

// Execute runs script with params inside a read-only transaction and returns
// every row as a slice of decoded values.
func (s *Store) Execute(ctx context.Context, script string, params ...any) ([][]any, error) {
	frame, err := s.readOnly(ctx, script, params...)
	if err != nil {
		return nil, err
	}
	return frame.Rows, nil
}

// GetDataFrame is Execute with the column names attached.
func (s *Store) GetDataFrame(ctx context.Context, script string, params ...any) (*schemas.Frame, error) {
	return s.readOnly(ctx, script, params...)
}

func (s *Store) readOnly(ctx context.Context, script string, params ...any) (*schemas.Frame, error) {
	if strings.TrimSpace(script) == "" {
		return nil, fmt.Errorf("%w: empty query", schemas.ErrValidation)
	}

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly})
	if err != nil {
		return nil, fmt.Errorf("failed to begin read-only transaction: %w", err)
	}
	defer rollback(ctx, tx, s.log)

	rows, err := tx.Query(ctx, script, params...)
	if err != nil {
		return nil, classify("failed to execute query", err)
	}
	frame, err := collectFrame(rows)
	if err != nil {
		return nil, err
	}

	s.log.Debug("Executed read-only query",
		zap.Int("params", len(params)),
		zap.Int("rows", len(frame.Rows)),
	)
	return frame, nil
}

func describeRef(ref schemas.AuditorRef) string {
	if ref.IsName() {
		return fmt.Sprintf("name %q", ref.Name)
	}
	return fmt.Sprintf("id %d", ref.ID)
}
