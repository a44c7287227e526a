package store

import (
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

// collectFrame drains rows into a Frame and closes them.
func collectFrame(rows pgx.Rows) (*schemas.Frame, error) {
	defer rows.Close()

	fields := rows.FieldDescriptions()
	frame := &schemas.Frame{
		Columns: make([]string, len(fields)),
		Rows:    [][]any{},
	}
	for i, fd := range fields {
		frame.Columns[i] = fd.Name
	}

	for rows.Next() {
		values, err := rows.Values()
		if err != nil {
			return nil, fmt.Errorf("failed to decode row values: %w", err)
		}
		frame.Rows = append(frame.Rows, values)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("error iterating query rows", err)
	}
	return frame, nil
}
