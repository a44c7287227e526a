package store

import (
	"context"
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

var (
	auditorColumns     = []string{"id", "name"}
	findingViewColumns = []string{"id", "title", "severity", "issue_id", "auditor_id", "auditor_name"}
	issueViewColumns   = []string{
		"id", "title", "repos", "type", "start_date", "end_date",
		"auditors_count", "specifications", "published", "findings_count",
		"auditor_id", "auditor_name",
	}
)

func TestGetAuditors(t *testing.T) {
	ctx := context.Background()

	t.Run("should return all auditors ordered by id", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlAllAuditors)).
			WillReturnRows(pgxmock.NewRows(auditorColumns).AddRow(int64(1), "Alice").AddRow(int64(2), "Bob"))

		auditors, err := store.GetAuditors(ctx)
		require.NoError(t, err)
		assert.Equal(t, []schemas.Auditor{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}}, auditors)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should resolve mixed refs in request order", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlAuditorsByRef)).
			WithArgs([]int64{2}, []string{"Alice"}).
			WillReturnRows(pgxmock.NewRows(auditorColumns).AddRow(int64(1), "Alice").AddRow(int64(2), "Bob"))

		auditors, err := store.GetAuditors(ctx, schemas.AuditorByID(2), schemas.AuditorByName("Alice"))
		require.NoError(t, err)
		assert.Equal(t, []schemas.Auditor{{ID: 2, Name: "Bob"}, {ID: 1, Name: "Alice"}}, auditors)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should report a missing id as not found", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlAuditorsByRef)).
			WithArgs([]int64{1, 99}, []string{}).
			WillReturnRows(pgxmock.NewRows(auditorColumns).AddRow(int64(1), "Alice"))

		auditors, err := store.GetAuditors(ctx, schemas.AuditorByID(1), schemas.AuditorByID(99))
		require.Error(t, err)
		assert.Nil(t, auditors)
		assert.ErrorIs(t, err, schemas.ErrNotFound)
		assert.Contains(t, err.Error(), "id 99")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should map an undefined table to ErrQuery", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlAllAuditors)).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "auditors" does not exist`})

		_, err := store.GetAuditors(ctx)
		assert.ErrorIs(t, err, schemas.ErrQuery)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetFindingsByAuditors(t *testing.T) {
	ctx := context.Background()

	t.Run("should return every finding with its auditor when no refs are given", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlFindingViews + " ORDER BY f.id ASC;")).
			WillReturnRows(pgxmock.NewRows(findingViewColumns).
				AddRow(int64(1), "Bug1", "High", int64(1), int64(1), "Alice").
				AddRow(int64(2), "Bug1", "High", int64(1), int64(2), "Bob"))

		findings, err := store.GetFindingsByAuditors(ctx)
		require.NoError(t, err)
		assert.Equal(t, []schemas.FindingView{
			{ID: 1, Title: "Bug1", Severity: schemas.SeverityHigh, IssueID: 1, Auditor: schemas.Auditor{ID: 1, Name: "Alice"}},
			{ID: 2, Title: "Bug1", Severity: schemas.SeverityHigh, IssueID: 1, Auditor: schemas.Auditor{ID: 2, Name: "Bob"}},
		}, findings)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should filter on the resolved auditor ids", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlAuditorsByRef)).
			WithArgs([]int64{}, []string{"Bob"}).
			WillReturnRows(pgxmock.NewRows(auditorColumns).AddRow(int64(2), "Bob"))
		mockPool.ExpectQuery(flexibleSQLMatcher("WHERE f.auditor_id = ANY($1) ORDER BY f.id ASC;")).
			WithArgs([]int64{2}).
			WillReturnRows(pgxmock.NewRows(findingViewColumns).AddRow(int64(2), "Bug1", "High", int64(1), int64(2), "Bob"))

		findings, err := store.GetFindingsByAuditors(ctx, schemas.AuditorByName("Bob"))
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, "Bob", findings[0].Auditor.Name)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should abort when a name does not resolve", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlAuditorsByRef)).
			WithArgs([]int64{}, []string{"Alice", "Mallory"}).
			WillReturnRows(pgxmock.NewRows(auditorColumns).AddRow(int64(1), "Alice"))

		findings, err := store.GetFindingsByAuditors(ctx, schemas.AuditorByName("Alice"), schemas.AuditorByName("Mallory"))
		require.Error(t, err)
		assert.Nil(t, findings)
		assert.ErrorIs(t, err, schemas.ErrNotFound)
		assert.Contains(t, err.Error(), `"Mallory"`)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetFindingsBySeverities(t *testing.T) {
	ctx := context.Background()

	t.Run("should filter by severity", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher("WHERE f.severity = ANY($1) ORDER BY f.id ASC;")).
			WithArgs([]string{"High"}).
			WillReturnRows(pgxmock.NewRows(findingViewColumns).AddRow(int64(4), "Bug1", "High", int64(1), int64(1), "Alice"))

		findings, err := store.GetFindingsBySeverities(ctx, schemas.SeverityHigh)
		require.NoError(t, err)
		require.Len(t, findings, 1)
		assert.Equal(t, schemas.SeverityHigh, findings[0].Severity)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should return everything without arguments", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlFindingViews + " ORDER BY f.id ASC;")).
			WillReturnRows(pgxmock.NewRows(findingViewColumns).
				AddRow(int64(1), "a", "Low", int64(1), int64(1), "Alice").
				AddRow(int64(2), "b", "Informational", int64(1), int64(1), "Alice"))

		findings, err := store.GetFindingsBySeverities(ctx)
		require.NoError(t, err)
		assert.Len(t, findings, 2)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a severity outside the enumeration", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		_, err := store.GetFindingsBySeverities(ctx, schemas.SeverityLow, "high")
		assert.ErrorIs(t, err, schemas.ErrValidation)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetIssues(t *testing.T) {
	ctx := context.Background()

	t.Run("should left join every issue with its auditors", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(sqlIssueViews + " ORDER BY i.id ASC, a.id ASC;")).
			WillReturnRows(pgxmock.NewRows(issueViewColumns).
				AddRow(int64(1), "Audit A", 2, "review", "2023-01-01", "2023-02-01", 2, 1, true, 1, int64(1), "Alice").
				AddRow(int64(1), "Audit A", 2, "review", "2023-01-01", "2023-02-01", 2, 1, true, 1, int64(2), "Bob").
				AddRow(int64(2), "Orphan", 0, "", "", "", 0, 0, false, 0, nil, nil))

		issues, err := store.GetIssues(ctx, schemas.IssueSelector{})
		require.NoError(t, err)
		require.Len(t, issues, 3)

		assert.Equal(t, "Audit A", issues[0].Title)
		assert.Equal(t, 2, issues[0].AuditorsCount)
		assert.True(t, issues[0].Published)
		require.NotNil(t, issues[0].Auditor)
		assert.Equal(t, schemas.Auditor{ID: 1, Name: "Alice"}, *issues[0].Auditor)
		assert.Equal(t, "Bob", issues[1].Auditor.Name)
		assert.Nil(t, issues[2].Auditor)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should combine selectors with AND", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher("WHERE a.name = ANY($1) AND i.id = ANY($2) AND i.title = ANY($3) ORDER BY")).
			WithArgs([]string{"Bob"}, []int64{1}, []string{"Audit A"}).
			WillReturnRows(pgxmock.NewRows(issueViewColumns).
				AddRow(int64(1), "Audit A", 2, "review", "2023-01-01", "2023-02-01", 2, 1, true, 1, int64(2), "Bob"))

		issues, err := store.GetIssues(ctx, schemas.IssueSelector{
			AuditorNames: []string{"Bob"},
			IssueIDs:     []int64{1},
			IssueTitles:  []string{"Audit A"},
		})
		require.NoError(t, err)
		require.Len(t, issues, 1)
		assert.Equal(t, int64(2), issues[0].Auditor.ID)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should filter by auditor id", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher("WHERE a.id = ANY($1) ORDER BY")).
			WithArgs([]int64{3, 4}).
			WillReturnRows(pgxmock.NewRows(issueViewColumns))

		issues, err := store.GetIssues(ctx, schemas.IssueSelector{AuditorIDs: []int64{3, 4}})
		require.NoError(t, err)
		assert.Empty(t, issues)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestGetRowCount(t *testing.T) {
	ctx := context.Background()

	t.Run("should count rows of a known table", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT COUNT(*) FROM "findings";`)).
			WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(int64(2)))

		n, err := store.GetRowCount(ctx, "findings")
		require.NoError(t, err)
		assert.Equal(t, int64(2), n)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject a malformed name without querying", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		for _, name := range []string{"", "issues; DROP TABLE issues", `"quoted"`, "1abc", "a-b"} {
			n, err := store.GetRowCount(ctx, name)
			assert.Zero(t, n)
			assert.ErrorIs(t, err, schemas.ErrValidation, "name %q", name)
		}
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should map a missing table to ErrQuery", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectQuery(flexibleSQLMatcher(`SELECT COUNT(*) FROM "nope";`)).
			WillReturnError(&pgconn.PgError{Code: "42P01", Message: `relation "nope" does not exist`})

		n, err := store.GetRowCount(ctx, "nope")
		assert.Zero(t, n)
		assert.ErrorIs(t, err, schemas.ErrQuery)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestExecuteAndDataFrame(t *testing.T) {
	ctx := context.Background()
	query := `SELECT id, title FROM issues WHERE id > $1 ORDER BY id`

	t.Run("Execute returns raw rows from a read-only transaction", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
		mockPool.ExpectQuery(flexibleSQLMatcher(query)).
			WithArgs(int64(0)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "title"}).
				AddRow(int64(1), "Audit A").
				AddRow(int64(2), "Audit B"))
		mockPool.ExpectRollback()

		rows, err := store.Execute(ctx, query, int64(0))
		require.NoError(t, err)
		assert.Equal(t, [][]any{{int64(1), "Audit A"}, {int64(2), "Audit B"}}, rows)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("GetDataFrame attaches column names", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
		mockPool.ExpectQuery(flexibleSQLMatcher(query)).
			WithArgs(int64(1)).
			WillReturnRows(pgxmock.NewRows([]string{"id", "title"}))
		mockPool.ExpectRollback()

		frame, err := store.GetDataFrame(ctx, query, int64(1))
		require.NoError(t, err)
		assert.Equal(t, []string{"id", "title"}, frame.Columns)
		assert.Empty(t, frame.Rows)
		assert.NotNil(t, frame.Rows)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("writes are refused as ErrQuery", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		mockPool.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly})
		mockPool.ExpectQuery(flexibleSQLMatcher(`DELETE FROM findings`)).
			WillReturnError(&pgconn.PgError{Code: "25006", Message: "cannot execute DELETE in a read-only transaction"})
		mockPool.ExpectRollback()

		_, err := store.Execute(ctx, `DELETE FROM findings`)
		assert.ErrorIs(t, err, schemas.ErrQuery)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("an empty script is a validation error", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		_, err := store.GetDataFrame(ctx, "   ")
		assert.ErrorIs(t, err, schemas.ErrValidation)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("begin failure is propagated", func(t *testing.T) {
		store, mockPool := newMockStore(t)
		beginErr := errors.New("pool closed")
		mockPool.ExpectBeginTx(pgx.TxOptions{AccessMode: pgx.ReadOnly}).WillReturnError(beginErr)

		_, err := store.Execute(ctx, query, int64(0))
		assert.ErrorIs(t, err, beginErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}
