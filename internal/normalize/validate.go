package normalize

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

// DocumentError describes one invalid field in one source document.
type DocumentError struct {
	Index   int    `json:"index"`
	Title   string `json:"title"`
	Field   string `json:"field"`
	Message string `json:"message"`
}

// DocumentErrors collects every problem found in a batch. It wraps
// schemas.ErrValidation.
type DocumentErrors []DocumentError

// Error implements the error interface.
func (d DocumentErrors) Error() string {
	if len(d) == 0 {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(schemas.ErrValidation.Error())
	sb.WriteString(": ")
	for i, e := range d {
		if i > 0 {
			sb.WriteString("; ")
		}
		fmt.Fprintf(&sb, "document %d (%q) %s: %s", e.Index, e.Title, e.Field, e.Message)
	}
	return sb.String()
}

// Unwrap lets errors.Is match schemas.ErrValidation.
func (d DocumentErrors) Unwrap() error { return schemas.ErrValidation }

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	_ = v.RegisterValidation("severity", validateSeverity)
	_ = v.RegisterValidation("auditor_name", validateAuditorName)
	return v
}

func validateSeverity(fl validator.FieldLevel) bool {
	return schemas.Severity(fl.Field().String()).Valid()
}

func validateAuditorName(fl validator.FieldLevel) bool {
	return strings.TrimSpace(fl.Field().String()) != ""
}

// check validates every document and returns DocumentErrors, or nil.
func (n *Normalizer) check(docs []schemas.SourceDocument) error {
	var out DocumentErrors
	for i, doc := range docs {
		err := n.validate.Struct(doc)
		var fieldErrs validator.ValidationErrors
		if err != nil && !errors.As(err, &fieldErrs) {
			return fmt.Errorf("validator failure on document %d: %w", i, err)
		}
		for _, fe := range fieldErrs {
			out = append(out, DocumentError{
				Index:   i,
				Title:   doc.Title,
				Field:   fe.Namespace(),
				Message: describe(fe),
			})
		}
	}
	if len(out) > 0 {
		return out
	}
	return nil
}

func describe(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "severity":
		return fmt.Sprintf("severity %q is not one of %v", fe.Value(), schemas.Severities())
	case "auditor_name":
		return "auditor name is blank"
	default:
		return fmt.Sprintf("failed %q rule", fe.Tag())
	}
}
