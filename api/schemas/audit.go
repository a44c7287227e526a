package schemas

import (
	"bytes"
	"fmt"
	"strconv"

	json "github.com/json-iterator/go"
)

// -- Severity --

// Severity is the impact classification attached to a finding. The values are
// stored verbatim, so the casing is significant.
type Severity string

// The closed set of severities accepted by the store.
const (
	SeverityLow           Severity = "Low"
	SeverityMedium        Severity = "Medium"
	SeverityHigh          Severity = "High"
	SeverityInformational Severity = "Informational"
	SeverityUndetermined  Severity = "Undetermined"
)

// Severities returns the fixed severity enumeration in its canonical order.
func Severities() []Severity {
	return []Severity{
		SeverityLow,
		SeverityMedium,
		SeverityHigh,
		SeverityInformational,
		SeverityUndetermined,
	}
}

// Valid reports whether s is one of the enumerated severities.
func (s Severity) Valid() bool {
	switch s {
	case SeverityLow, SeverityMedium, SeverityHigh, SeverityInformational, SeverityUndetermined:
		return true
	}
	return false
}

// NoAuditor is the sentinel auditor name used for issues that list nobody.
const NoAuditor = "None"

// -- Source Document Schemas --

// SourceFinding is a single finding as it appears inside a source document.
type SourceFinding struct {
	Title    string   `json:"title" validate:"required"`
	Severity Severity `json:"severity" validate:"severity"`
}

// SourceDocument is one audit-engagement record from the input JSON.
type SourceDocument struct {
	Title         string          `json:"title"`
	Repos         Count           `json:"repos"`
	Type          string          `json:"type"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	Auditors      []string        `json:"auditors" validate:"dive,auditor_name"`
	Specification Count           `json:"specification"`
	Published     Flag            `json:"published"`
	Findings      []SourceFinding `json:"findings" validate:"dive"`
}

// Count holds the size of a list field. It decodes from either the list itself
// or from a number, which is the shape produced once the raw export has been
// filtered and its lists collapsed.
type Count int

// UnmarshalJSON implements json.Unmarshaler.
func (c *Count) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case len(data) == 0 || bytes.Equal(data, []byte("null")):
		*c = 0
	case data[0] == '[':
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("decoding list for count: %w", err)
		}
		*c = Count(len(items))
	default:
		n, err := strconv.Atoi(string(data))
		if err != nil {
			return fmt.Errorf("count must be a list or an integer, got %s", data)
		}
		*c = Count(n)
	}
	return nil
}

// Flag is the published marker. The export writes it as the string "true";
// anything else means false. A JSON boolean is accepted as well.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	switch {
	case bytes.Equal(data, []byte("true")):
		*f = true
	case len(data) > 0 && data[0] == '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*f = s == "true"
	default:
		*f = false
	}
	return nil
}

// -- Relational Schemas --

// Issue is one audit engagement. It maps to the `issues` table.
type Issue struct {
	ID             int64  `json:"id"`
	Title          string `json:"title"`
	Repos          int    `json:"repos"`
	Type           string `json:"type"`
	StartDate      string `json:"start_date"`
	EndDate        string `json:"end_date"`
	AuditorsCount  int    `json:"auditors_count"`
	Specifications int    `json:"specifications"`
	Published      bool   `json:"published"`
	FindingsCount  int    `json:"findings_count"`
}

// Auditor is a named reviewer. It maps to the `auditors` table.
type Auditor struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Finding is one reported defect attributed to a single auditor on a single
// issue. It maps to the `findings` table.
type Finding struct {
	ID        int64    `json:"id"`
	Title     string   `json:"title"`
	Severity  Severity `json:"severity"`
	AuditorID int64    `json:"auditor_id"`
	IssueID   int64    `json:"issue_id"`
}

// AuditorIssue records that an auditor took part in an issue.
type AuditorIssue struct {
	AuditorID int64 `json:"auditor_id"`
	IssueID   int64 `json:"issue_id"`
}

// -- Joined Views --

// FindingView is a finding with its auditor resolved.
type FindingView struct {
	ID       int64    `json:"id"`
	Title    string   `json:"title"`
	Severity Severity `json:"severity"`
	IssueID  int64    `json:"issue_id"`
	Auditor  Auditor  `json:"auditor"`
}

// IssueView is an issue joined with one of its auditors. An issue with three
// auditors produces three views.
type IssueView struct {
	Issue
	Auditor *Auditor `json:"auditor"`
}

// -- Normalized Batch --

// Membership is an auditor/issue pair whose auditor has not been resolved to an
// id yet.
type Membership struct {
	AuditorName string `json:"auditor_name"`
	IssueID     int64  `json:"issue_id"`
}

// AttributedFinding is a finding copy attributed to one auditor by name.
type AttributedFinding struct {
	Title       string   `json:"title"`
	Severity    Severity `json:"severity"`
	AuditorName string   `json:"auditor_name"`
	IssueID     int64    `json:"issue_id"`
}

// Batch holds the row-sets produced by normalizing a list of source documents.
// Issue ids are 1-based positions in the input; Auditors lists every distinct
// name in first-seen order.
type Batch struct {
	Issues      []Issue             `json:"issues"`
	Auditors    []string            `json:"auditors"`
	Memberships []Membership        `json:"memberships"`
	Findings    []AttributedFinding `json:"findings"`
}
