// Package ingest reads audit-engagement exports into source documents.
package ingest

import (
	"bytes"
	"fmt"
	"io"
	"os"

	json "github.com/json-iterator/go"

	"github.com/xkilldash9x/auditdb/api/schemas"
)

// Decode reads a JSON export from r. The export is normally an array of audit
// objects; a lone top-level object is accepted as a one-element list.
func Decode(r io.Reader) ([]schemas.SourceDocument, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read export: %w", err)
	}
	return DecodeBytes(data)
}

// DecodeBytes is Decode over an in-memory buffer.
func DecodeBytes(data []byte) ([]schemas.SourceDocument, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) == 0 {
		return nil, fmt.Errorf("export is empty")
	}

	switch trimmed[0] {
	case '[':
		var docs []schemas.SourceDocument
		if err := json.Unmarshal(trimmed, &docs); err != nil {
			return nil, fmt.Errorf("failed to decode export array: %w", err)
		}
		return docs, nil
	case '{':
		var doc schemas.SourceDocument
		if err := json.Unmarshal(trimmed, &doc); err != nil {
			return nil, fmt.Errorf("failed to decode export object: %w", err)
		}
		return []schemas.SourceDocument{doc}, nil
	default:
		return nil, fmt.Errorf("export must be a JSON array or object, found %q", trimmed[0])
	}
}

// ReadFile opens and decodes the export at path.
func ReadFile(path string) ([]schemas.SourceDocument, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open export %s: %w", path, err)
	}
	defer f.Close()

	docs, err := Decode(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return docs, nil
}
