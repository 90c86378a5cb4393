package export

import (
	"context"
	"encoding/csv"
	"io"
	"strconv"
	"strings"
	"time"

	"mercator-hq/covenant/pkg/evidence"
)

// CSVExporter exports audit entries as CSV, one row per entry.
type CSVExporter struct {
	// IncludeHeader includes a header row with column names.
	IncludeHeader bool

	// ListSeparator joins violations and rule ids inside one cell.
	// Default: " | "
	ListSeparator string
}

// NewCSVExporter creates a new CSV exporter.
func NewCSVExporter(includeHeader bool) *CSVExporter {
	return &CSVExporter{
		IncludeHeader: includeHeader,
		ListSeparator: " | ",
	}
}

// Format returns "csv".
func (e *CSVExporter) Format() string { return "csv" }

var csvHeader = []string{
	"sequence", "id", "timestamp", "request_id", "action", "user_id", "status",
	"risk_score", "rules_evaluated", "violations", "rule_ids", "policy_version",
	"prev_hash", "hash",
}

// Export writes the entries in trail order.
func (e *CSVExporter) Export(ctx context.Context, entries []evidence.AuditEntry, w io.Writer) error {
	writer := csv.NewWriter(w)

	if e.IncludeHeader {
		if err := writer.Write(csvHeader); err != nil {
			return evidence.NewExportError("csv", len(entries), err)
		}
	}

	for i := range entries {
		if err := ctx.Err(); err != nil {
			return evidence.NewExportError("csv", len(entries), err)
		}
		if err := writer.Write(e.row(&entries[i])); err != nil {
			return evidence.NewExportError("csv", len(entries), err)
		}
	}

	writer.Flush()
	if err := writer.Error(); err != nil {
		return evidence.NewExportError("csv", len(entries), err)
	}
	return nil
}

func (e *CSVExporter) row(entry *evidence.AuditEntry) []string {
	sep := e.ListSeparator
	if sep == "" {
		sep = " | "
	}
	return []string{
		strconv.FormatInt(entry.Sequence, 10),
		entry.ID,
		entry.Timestamp.UTC().Format(time.RFC3339Nano),
		entry.RequestID,
		entry.Action,
		entry.UserID,
		entry.Status(),
		strconv.FormatFloat(entry.RiskScore, 'f', -1, 64),
		strconv.Itoa(entry.RulesEvaluated),
		strings.Join(entry.Violations, sep),
		strings.Join(entry.RuleIDs, sep),
		entry.PolicyVersion,
		entry.PrevHash,
		entry.Hash,
	}
}

// ForFormat returns the exporter for "json" or "csv".
func ForFormat(format string, pretty bool) (evidence.Exporter, error) {
	switch strings.ToLower(format) {
	case "json", "":
		return NewJSONExporter(pretty), nil
	case "csv":
		return NewCSVExporter(true), nil
	default:
		return nil, evidence.NewExportError(format, 0, errUnsupportedFormat(format))
	}
}

type errUnsupportedFormat string

func (f errUnsupportedFormat) Error() string {
	return "unsupported export format " + strconv.Quote(string(f))
}
