package reporting

import (
	"fmt"
	"io"

	json "github.com/json-iterator/go"
)

// jsonReporter writes each value as an indented JSON document.
type jsonReporter struct {
	w io.WriteCloser
}

func (r *jsonReporter) Write(v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode result as JSON: %w", err)
	}
	data = append(data, '\n')
	if _, err := r.w.Write(data); err != nil {
		return fmt.Errorf("failed to write JSON result: %w", err)
	}
	return nil
}

func (r *jsonReporter) Close() error {
	return r.w.Close()
}
