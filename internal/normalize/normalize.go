// Package normalize flattens audit-engagement documents into the row-sets the
// store persists.
package normalize

import (
	"strings"
	"unicode"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

// Normalizer turns source documents into a schemas.Batch.
type Normalizer struct {
	validate *validator.Validate
	log      *zap.Logger
}

// New creates a Normalizer.
func New(logger *zap.Logger) *Normalizer {
	return &Normalizer{
		validate: newValidator(),
		log:      logger.Named("normalizer"),
	}
}

// CleanName trims trailing whitespace from an auditor name. Case and leading
// whitespace are preserved.
func CleanName(name string) string {
	return strings.TrimRightFunc(name, unicode.IsSpace)
}

// Normalize validates docs and builds the batch. Issue ids are the 1-based
// position of each document. Every finding is copied once per listed auditor,
// or once for schemas.NoAuditor when the list is empty. Auditor identities
// are deduplicated across the whole input in first-seen order; memberships
// and finding copies are not.
func (n *Normalizer) Normalize(docs []schemas.SourceDocument) (*schemas.Batch, error) {
	if err := n.check(docs); err != nil {
		return nil, err
	}

	batch := &schemas.Batch{
		Issues: make([]schemas.Issue, 0, len(docs)),
	}
	seen := make(map[string]struct{})
	addAuditor := func(name string) {
		if _, ok := seen[name]; ok {
			return
		}
		seen[name] = struct{}{}
		batch.Auditors = append(batch.Auditors, name)
	}

	for i, doc := range docs {
		issueID := int64(i + 1)
		batch.Issues = append(batch.Issues, schemas.Issue{
			ID:             issueID,
			Title:          doc.Title,
			Repos:          int(doc.Repos),
			Type:           doc.Type,
			StartDate:      doc.StartDate,
			EndDate:        doc.EndDate,
			AuditorsCount:  len(doc.Auditors),
			Specifications: int(doc.Specification),
			Published:      bool(doc.Published),
			FindingsCount:  len(doc.Findings),
		})

		names := make([]string, 0, len(doc.Auditors))
		for _, raw := range doc.Auditors {
			names = append(names, CleanName(raw))
		}
		if len(names) == 0 {
			names = append(names, schemas.NoAuditor)
		}

		for _, name := range names {
			addAuditor(name)
			batch.Memberships = append(batch.Memberships, schemas.Membership{
				AuditorName: name,
				IssueID:     issueID,
			})
			for _, f := range doc.Findings {
				batch.Findings = append(batch.Findings, schemas.AttributedFinding{
					Title:       f.Title,
					Severity:    f.Severity,
					AuditorName: name,
					IssueID:     issueID,
				})
			}
		}
	}

	n.log.Debug("Normalized source documents",
		zap.Int("documents", len(docs)),
		zap.Int("auditors", len(batch.Auditors)),
		zap.Int("memberships", len(batch.Memberships)),
		zap.Int("findings", len(batch.Findings)),
	)
	return batch, nil
}
