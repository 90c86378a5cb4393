package export

import (
	"context"
	"encoding/json"
	"io"

	"mercator-hq/covenant/pkg/evidence"
)

// JSONExporter exports audit entries as a JSON array.
type JSONExporter struct {
	// Pretty enables pretty-printing with indentation.
	Pretty bool
}

// NewJSONExporter creates a new JSON exporter.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{
		Pretty: pretty,
	}
}

// Format returns "json".
func (e *JSONExporter) Format() string { return "json" }

// Export writes the entries as a JSON array. An empty trail is written as "[]".
func (e *JSONExporter) Export(ctx context.Context, entries []evidence.AuditEntry, w io.Writer) error {
	if err := ctx.Err(); err != nil {
		return evidence.NewExportError("json", len(entries), err)
	}
	if entries == nil {
		entries = []evidence.AuditEntry{}
	}

	enc := json.NewEncoder(w)
	if e.Pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(entries); err != nil {
		return evidence.NewExportError("json", len(entries), err)
	}
	return nil
}
