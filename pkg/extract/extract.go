// Package extract reads the raw feeds into typed rows. It does no
// interpretation of values beyond trimming; that belongs to normalizers.
package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"

	"github.com/Gobusters/ectologger"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const utf8BOM = "\ufeff"

type Reader struct {
	logger ectologger.Logger
}

func NewReader(logger ectologger.Logger) *Reader {
	return &Reader{logger: logger}
}

// Patients reads the patients CSV at path.
func (r *Reader) Patients(ctx context.Context, path string) ([]models.RawPatient, error) {
	ctx, span := tracing.StartSpan(ctx, "extract.Reader.Patients")
	defer span.End()

	f, err := open(models.EntityPatients, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, missing, err := ParsePatients(f, filepath.Base(path))
	if err != nil {
		return nil, annotate(err, models.EntityPatients, path)
	}
	if len(missing) > 0 {
		r.logger.WithContext(ctx).WithFields(map[string]any{
			"file":    path,
			"columns": strings.Join(missing, ","),
		}).Warn("Patients source is missing expected columns; values treated as null")
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"file": path,
		"rows": len(rows),
	}).Info("Extracted patients")
	return rows, nil
}

// Encounters reads the messy encounters CSV at path.
func (r *Reader) Encounters(ctx context.Context, path string) ([]models.RawEncounter, error) {
	ctx, span := tracing.StartSpan(ctx, "extract.Reader.Encounters")
	defer span.End()

	f, err := open(models.EntityEncounters, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ParseEncounters(f, filepath.Base(path))
	if err != nil {
		return nil, annotate(err, models.EntityEncounters, path)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"file": path,
		"rows": len(rows),
	}).Info("Extracted encounters")
	return rows, nil
}

// Diagnoses reads the diagnoses XML document at path.
func (r *Reader) Diagnoses(ctx context.Context, path string) ([]models.RawDiagnosis, error) {
	ctx, span := tracing.StartSpan(ctx, "extract.Reader.Diagnoses")
	defer span.End()

	f, err := open(models.EntityDiagnoses, path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := ParseDiagnoses(f, filepath.Base(path))
	if err != nil {
		return nil, annotate(err, models.EntityDiagnoses, path)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"file": path,
		"rows": len(rows),
	}).Info("Extracted diagnoses")
	return rows, nil
}

func open(entity models.Entity, path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fernerrors.NewSourceErrorf("cannot open source: %w", err).
			AddEntity(string(entity)).
			AddFile(path)
	}
	return f, nil
}

func annotate(err error, entity models.Entity, path string) error {
	return fernerrors.WrapSourceError(err).AddEntity(string(entity)).AddFile(path)
}

func clean(s string) string {
	return strings.TrimSpace(strings.TrimPrefix(s, utf8BOM))
}
