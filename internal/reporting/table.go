package reporting

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

// tableReporter writes values as tab-aligned text tables with a header row.
type tableReporter struct {
	w io.WriteCloser
}

func (r *tableReporter) Write(v any) error {
	header, rows, err := tabulate(v)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(r.w, 0, 0, 2, ' ', 0)
	if len(header) > 0 {
		fmt.Fprintln(tw, strings.Join(header, "\t"))
	}
	for _, row := range rows {
		fmt.Fprintln(tw, strings.Join(row, "\t"))
	}
	if err := tw.Flush(); err != nil {
		return fmt.Errorf("failed to write table: %w", err)
	}
	return nil
}

func (r *tableReporter) Close() error {
	return r.w.Close()
}

func tabulate(v any) ([]string, [][]string, error) {
	switch x := v.(type) {
	case []schemas.Auditor:
		rows := make([][]string, len(x))
		for i, a := range x {
			rows[i] = []string{itoa(a.ID), a.Name}
		}
		return []string{"ID", "NAME"}, rows, nil

	case []schemas.FindingView:
		rows := make([][]string, len(x))
		for i, f := range x {
			rows[i] = []string{itoa(f.ID), f.Title, string(f.Severity), itoa(f.IssueID), itoa(f.Auditor.ID), f.Auditor.Name}
		}
		return []string{"ID", "TITLE", "SEVERITY", "ISSUE", "AUDITOR_ID", "AUDITOR"}, rows, nil

	case []schemas.IssueView:
		rows := make([][]string, len(x))
		for i, is := range x {
			auditor := "-"
			if is.Auditor != nil {
				auditor = is.Auditor.Name
			}
			rows[i] = []string{
				itoa(is.ID), is.Title, is.Type, is.StartDate, is.EndDate,
				strconv.Itoa(is.Repos), strconv.Itoa(is.AuditorsCount), strconv.Itoa(is.Specifications),
				strconv.FormatBool(is.Published), strconv.Itoa(is.FindingsCount), auditor,
			}
		}
		return []string{"ID", "TITLE", "TYPE", "START", "END", "REPOS", "AUDITORS", "SPECS", "PUBLISHED", "FINDINGS", "AUDITOR"}, rows, nil

	case []schemas.Severity:
		rows := make([][]string, len(x))
		for i, s := range x {
			rows[i] = []string{string(s)}
		}
		return []string{"SEVERITY"}, rows, nil

	case *schemas.Frame:
		if x == nil {
			return nil, nil, nil
		}
		return x.Columns, cells(x.Rows), nil

	case [][]any:
		return nil, cells(x), nil

	case RowCount:
		return []string{"TABLE", "ROWS"}, [][]string{{x.Table, itoa(x.Rows)}}, nil

	case []RowCount:
		rows := make([][]string, len(x))
		for i, c := range x {
			rows[i] = []string{c.Table, itoa(c.Rows)}
		}
		return []string{"TABLE", "ROWS"}, rows, nil

	case LoadSummary:
		return []string{"LOAD_ID", "DOCUMENTS", "ISSUES", "AUDITORS", "MEMBERSHIPS", "FINDINGS", "REBUILT", "DURATION_MS"},
			[][]string{{
				x.LoadID, strconv.Itoa(x.Documents), strconv.Itoa(x.Issues), strconv.Itoa(x.Auditors),
				strconv.Itoa(x.Memberships), strconv.Itoa(x.Findings), strconv.FormatBool(x.Rebuilt), itoa(x.DurationMS),
			}}, nil

	default:
		return nil, nil, fmt.Errorf("table output does not support %T", v)
	}
}

func cells(rows [][]any) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		out[i] = make([]string, len(row))
		for j, val := range row {
			if val == nil {
				out[i][j] = "NULL"
				continue
			}
			out[i][j] = fmt.Sprint(val)
		}
	}
	return out
}

func itoa(n int64) string { return strconv.FormatInt(n, 10) }
