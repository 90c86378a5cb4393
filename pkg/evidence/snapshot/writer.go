package snapshot

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"mercator-hq/covenant/pkg/evidence"
)

// Source supplies the entries to persist.
type Source interface {
	Snapshot() []evidence.AuditEntry
}

// Writer exports snapshots of a Source into a directory.
type Writer struct {
	source   Source
	exporter evidence.Exporter
	dir      string
	now      func() time.Time
}

// NewWriter creates a snapshot writer.
func NewWriter(source Source, exporter evidence.Exporter, dir string) *Writer {
	return &Writer{
		source:   source,
		exporter: exporter,
		dir:      dir,
		now:      time.Now,
	}
}

// Write exports the current snapshot and returns the file path.
func (w *Writer) Write(ctx context.Context) (string, error) {
	entries := w.source.Snapshot()

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return "", evidence.NewExportError(w.exporter.Format(), len(entries), err)
	}

	name := fmt.Sprintf("audit-%s.%s", w.now().UTC().Format("20060102T150405.000000000Z"), w.exporter.Format())
	final := filepath.Join(w.dir, name)

	tmp, err := os.CreateTemp(w.dir, ".audit-*.tmp")
	if err != nil {
		return "", evidence.NewExportError(w.exporter.Format(), len(entries), err)
	}
	defer os.Remove(tmp.Name())

	if err := w.exporter.Export(ctx, entries, tmp); err != nil {
		tmp.Close()
		return "", err
	}
	if err := tmp.Close(); err != nil {
		return "", evidence.NewExportError(w.exporter.Format(), len(entries), err)
	}
	if err := os.Rename(tmp.Name(), final); err != nil {
		return "", evidence.NewExportError(w.exporter.Format(), len(entries), err)
	}
	return final, nil
}
