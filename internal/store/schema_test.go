package store

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

// expectSchemaBuild registers one Exec expectation per DDL statement.
func expectSchemaBuild(mock pgxmock.PgxPoolIface) {
	for _, stmt := range SchemaStatements() {
		mock.ExpectExec(flexibleSQLMatcher(stmt)).WillReturnResult(pgxmock.NewResult("CREATE", 0))
	}
}

func expectSchemaExists(mock pgxmock.PgxPoolIface, present int64) {
	mock.ExpectQuery(flexibleSQLMatcher(sqlSchemaExists)).
		WithArgs(Tables).
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(present))
}

func TestSplitStatements(t *testing.T) {
	script := `
-- leading comment
CREATE TABLE a (id INT); -- trailing comment
;

CREATE TABLE b (
    id INT -- inline
);
`
	got := SplitStatements(script)
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (id INT)", got[0])
	assert.True(t, strings.HasPrefix(got[1], "CREATE TABLE b ("))
	assert.NotContains(t, got[1], "inline")
}

func TestSchemaStatements(t *testing.T) {
	stmts := SchemaStatements()
	require.NotEmpty(t, stmts)

	// The drops come first, children before parents.
	assert.Equal(t, "DROP TABLE IF EXISTS findings CASCADE", stmts[0])
	assert.Equal(t, "DROP TABLE IF EXISTS issues CASCADE", stmts[3])

	created := map[string]bool{}
	for _, stmt := range stmts {
		for _, table := range Tables {
			if strings.HasPrefix(stmt, "CREATE TABLE IF NOT EXISTS "+table+" (") {
				created[table] = true
			}
		}
		assert.NotContains(t, stmt, ";")
		assert.NotContains(t, stmt, "--")
	}
	assert.Len(t, created, len(Tables))
}

func TestInitSchema(t *testing.T) {
	ctx := context.Background()

	t.Run("should execute every statement in order", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		expectSchemaBuild(mockPool)
		require.NoError(t, InitSchema(ctx, mockPool))
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should stop at the first failing statement", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool()
		require.NoError(t, err)
		defer mockPool.Close()

		stmts := SchemaStatements()
		ddlErr := errors.New("permission denied")
		mockPool.ExpectExec(flexibleSQLMatcher(stmts[0])).WillReturnResult(pgxmock.NewResult("DROP", 0))
		mockPool.ExpectExec(flexibleSQLMatcher(stmts[1])).WillReturnError(ddlErr)

		err = InitSchema(ctx, mockPool)
		require.Error(t, err)
		assert.ErrorIs(t, err, schemas.ErrStoreCreation)
		assert.ErrorIs(t, err, ddlErr)
		assert.Contains(t, err.Error(), "schema statement 2")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestSchemaExists(t *testing.T) {
	ctx := context.Background()

	for _, tc := range []struct {
		name    string
		present int64
		want    bool
	}{
		{"all tables present", 4, true},
		{"some tables missing", 2, false},
		{"empty database", 0, false},
	} {
		t.Run(tc.name, func(t *testing.T) {
			mockPool, err := pgxmock.NewPool()
			require.NoError(t, err)
			defer mockPool.Close()

			expectSchemaExists(mockPool, tc.present)
			ok, err := SchemaExists(ctx, mockPool)
			require.NoError(t, err)
			assert.Equal(t, tc.want, ok)
			assert.NoError(t, mockPool.ExpectationsWereMet())
		})
	}
}
