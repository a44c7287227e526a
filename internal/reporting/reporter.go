// Package reporting renders query results for the command line.
package reporting

import (
	"fmt"
	"io"
	"os"
)

// Supported output formats.
const (
	FormatJSON  = "json"
	FormatTable = "table"
)

// Reporter defines the interface for writing query results to an output.
type Reporter interface {
	// Write renders a single result value.
	Write(v any) error
	// Close finalizes the report and closes any underlying resources (e.g., file handles).
	Close() error
}

// RowCount is the result of counting one table.
type RowCount struct {
	Table string `json:"table"`
	Rows  int64  `json:"rows"`
}

// LoadSummary describes what a load wrote.
type LoadSummary struct {
	LoadID      string `json:"load_id"`
	Documents   int    `json:"documents"`
	Issues      int    `json:"issues"`
	Auditors    int    `json:"auditors"`
	Memberships int    `json:"memberships"`
	Findings    int    `json:"findings"`
	Rebuilt     bool   `json:"rebuilt"`
	DurationMS  int64  `json:"duration_ms"`
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// New creates a new reporter based on the specified format and output path.
// An empty path or "stdout" writes to stdout, which is never closed.
func New(format, outputPath string, stdout io.Writer) (Reporter, error) {
	var writer io.WriteCloser
	isStdOut := outputPath == "" || outputPath == "stdout"

	if isStdOut {
		if stdout == nil {
			stdout = os.Stdout
		}
		writer = &nopWriteCloser{stdout}
	} else {
		f, err := os.Create(outputPath)
		if err != nil {
			return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
		}
		writer = f
	}

	r, err := NewWriter(format, writer)
	if err != nil {
		writer.Close()
		return nil, err
	}
	return r, nil
}

// NewWriter creates a reporter that takes ownership of w.
func NewWriter(format string, w io.WriteCloser) (Reporter, error) {
	switch format {
	case FormatJSON:
		return &jsonReporter{w: w}, nil
	case FormatTable, "":
		return &tableReporter{w: w}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}
