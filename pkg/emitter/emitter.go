// Package emitter writes the clean artifact and the rejection log of each
// entity as CSV.
package emitter

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Table is a fixed-order set of columns and rows ready to serialize.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Row is implemented by records that can render themselves for output.
type Row interface {
	CleanRow() []string
	RejectionRow() []string
}

// CleanTable renders records with their clean layout.
func CleanTable[T Row](columns []string, records []T) Table {
	t := Table{Columns: columns, Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		t.Rows = append(t.Rows, r.CleanRow())
	}
	return t
}

// RejectionTable renders records with their rejection-log layout.
func RejectionTable[T Row](columns []string, records []T) Table {
	t := Table{Columns: columns, Rows: make([][]string, 0, len(records))}
	for _, r := range records {
		t.Rows = append(t.Rows, r.RejectionRow())
	}
	return t
}

// Writer owns the output directories of one run. A Writer remembers which
// rejection logs it has already written so later writes in the same run
// append instead of truncating.
type Writer struct {
	cleanDir string
	logsDir  string
	logger   ectologger.Logger

	mu      sync.Mutex
	written map[models.Entity]bool
}

func NewWriter(cleanDir, logsDir string, logger ectologger.Logger) *Writer {
	return &Writer{
		cleanDir: cleanDir,
		logsDir:  logsDir,
		logger:   logger,
		written:  make(map[models.Entity]bool),
	}
}

func (w *Writer) CleanPath(entity models.Entity) string {
	return filepath.Join(w.cleanDir, fmt.Sprintf("%s_clean.csv", entity))
}

func (w *Writer) LogPath(entity models.Entity) string {
	return filepath.Join(w.logsDir, fmt.Sprintf("%s_logs.csv", entity))
}

// ResetLog removes a rejection log left by a previous run.
func (w *Writer) ResetLog(ctx context.Context, entity models.Entity) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.written[entity] = false
	path := w.LogPath(entity)
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove stale rejection log %s: %w", path, err)
	}
	return nil
}

// WriteClean replaces the clean artifact. The file is written next to its
// destination and renamed into place, so readers see either the previous
// artifact or the complete new one.
func (w *Writer) WriteClean(ctx context.Context, entity models.Entity, table Table) (string, error) {
	ctx, span := tracing.StartSpan(ctx, "emitter.Writer.WriteClean")
	defer span.End()

	path := w.CleanPath(entity)
	if err := os.MkdirAll(w.cleanDir, 0o755); err != nil {
		return "", fmt.Errorf("create clean dir: %w", err)
	}

	tmp, err := os.CreateTemp(w.cleanDir, fmt.Sprintf(".%s_clean-*.csv", entity))
	if err != nil {
		return "", fmt.Errorf("create temp artifact: %w", err)
	}
	tmpName := tmp.Name()

	if err := writeTable(tmp, table, true); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("write clean %s: %w", entity, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return "", fmt.Errorf("sync clean %s: %w", entity, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("close clean %s: %w", entity, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return "", fmt.Errorf("replace clean %s: %w", entity, err)
	}

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"entity": entity,
		"rows":   len(table.Rows),
		"path":   path,
	}).Info("Wrote clean artifact")
	return path, nil
}

// WriteRejections writes rejected rows to the entity's log. The first write
// of a run truncates and writes the header, later ones append rows only. An
// empty table writes nothing.
func (w *Writer) WriteRejections(ctx context.Context, entity models.Entity, table Table) (string, error) {
	if len(table.Rows) == 0 {
		return "", nil
	}

	ctx, span := tracing.StartSpan(ctx, "emitter.Writer.WriteRejections")
	defer span.End()

	w.mu.Lock()
	defer w.mu.Unlock()

	if err := os.MkdirAll(w.logsDir, 0o755); err != nil {
		return "", fmt.Errorf("create logs dir: %w", err)
	}

	path := w.LogPath(entity)
	first := !w.written[entity]
	flags := os.O_CREATE | os.O_WRONLY | os.O_APPEND
	if first {
		flags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	}

	f, err := os.OpenFile(path, flags, 0o644)
	if err != nil {
		return "", fmt.Errorf("open rejection log %s: %w", path, err)
	}
	if err := writeTable(f, table, first); err != nil {
		f.Close()
		return "", fmt.Errorf("write rejection log %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return "", fmt.Errorf("close rejection log %s: %w", path, err)
	}
	w.written[entity] = true

	w.logger.WithContext(ctx).WithFields(map[string]any{
		"entity": entity,
		"rows":   len(table.Rows),
		"path":   path,
		"append": !first,
	}).Info("Wrote rejection log")
	return path, nil
}

func writeTable(out io.Writer, table Table, header bool) error {
	cw := csv.NewWriter(out)
	if header {
		if err := cw.Write(table.Columns); err != nil {
			return err
		}
	}
	for _, row := range table.Rows {
		if len(row) != len(table.Columns) {
			return fmt.Errorf("row has %d fields, want %d", len(row), len(table.Columns))
		}
		if err := cw.Write(row); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
