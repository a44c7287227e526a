package schemas

import "context"

// -- Store Interfaces --

// AuditorRef selects an auditor either by id or by exact name. A ref with a
// non-empty Name is matched by name; otherwise ID is used.
type AuditorRef struct {
	ID   int64
	Name string
}

// AuditorByID returns a ref matching the auditor with the given id.
func AuditorByID(id int64) AuditorRef { return AuditorRef{ID: id} }

// AuditorByName returns a ref matching the auditor with the given name.
func AuditorByName(name string) AuditorRef { return AuditorRef{Name: name} }

// IsName reports whether the ref selects by name.
func (r AuditorRef) IsName() bool { return r.Name != "" }

// IssueSelector narrows an issue query. Every non-empty field adds a filter and
// the filters are combined with AND. The zero value selects every issue.
type IssueSelector struct {
	AuditorIDs   []int64
	AuditorNames []string
	IssueIDs     []int64
	IssueTitles  []string
}

// Empty reports whether the selector applies no filter at all.
func (s IssueSelector) Empty() bool {
	return len(s.AuditorIDs) == 0 && len(s.AuditorNames) == 0 &&
		len(s.IssueIDs) == 0 && len(s.IssueTitles) == 0
}

// Frame is a materialized tabular result: column names plus row values.
type Frame struct {
	Columns []string `json:"columns"`
	Rows    [][]any  `json:"rows"`
}

// Store is the read surface of the persisted audit data.
type Store interface {
	GetAuditors(ctx context.Context, refs ...AuditorRef) ([]Auditor, error)
	GetFindingsByAuditors(ctx context.Context, refs ...AuditorRef) ([]FindingView, error)
	GetFindingsBySeverities(ctx context.Context, severities ...Severity) ([]FindingView, error)
	GetIssues(ctx context.Context, sel IssueSelector) ([]IssueView, error)
	GetRowCount(ctx context.Context, table string) (int64, error)
	Execute(ctx context.Context, script string, params ...any) ([][]any, error)
	GetDataFrame(ctx context.Context, script string, params ...any) (*Frame, error)
}

// Loader persists a normalized batch of source documents.
type Loader interface {
	Load(ctx context.Context, batch *Batch, isNew bool) error
}
