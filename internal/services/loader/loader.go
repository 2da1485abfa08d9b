package loader

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/internal/repositories/diagnosis"
	"github.com/Ramsey-B/fern/internal/repositories/encounter"
	"github.com/Ramsey-B/fern/internal/repositories/patient"
	"github.com/Ramsey-B/fern/pkg/database"
	ferrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service replaces the sink snapshot with the clean artifacts of a run.
type Service struct {
	db         database.DB
	patients   patient.PatientRepository
	encounters encounter.EncounterRepository
	diagnoses  diagnosis.DiagnosisRepository
	logger     ectologger.Logger
}

func NewService(db database.DB, logger ectologger.Logger) *Service {
	return &Service{
		db:         db,
		patients:   patient.NewRepository(db, logger),
		encounters: encounter.NewRepository(db, logger),
		diagnoses:  diagnosis.NewRepository(db, logger),
		logger:     logger,
	}
}

type snapshot struct {
	patients   []*patient.PatientRow
	encounters []*encounter.EncounterRow
	diagnoses  []*diagnosis.DiagnosisRow
}

// Load reads every artifact before touching the sink, then deletes the
// previous snapshot children first and inserts parents first, all in one
// transaction. Any failure rolls the whole load back.
func (s *Service) Load(ctx context.Context, artifacts models.Artifacts) (*models.LoadSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Service.Load")
	defer span.End()

	log := s.logger.WithContext(ctx).WithField("method", "Load")

	snap, err := readSnapshot(artifacts)
	if err != nil {
		log.WithError(err).Error("Failed to read clean artifacts")
		return nil, err
	}

	ctx, tx, err := s.db.GetTx(ctx, nil)
	if err != nil {
		return nil, ferrors.NewLoadError("", err)
	}
	defer tx.Rollback(ctx)

	if err := s.diagnoses.DeleteAll(ctx); err != nil {
		return nil, ferrors.NewLoadError(string(models.EntityDiagnoses), err)
	}
	if err := s.encounters.DeleteAll(ctx); err != nil {
		return nil, ferrors.NewLoadError(string(models.EntityEncounters), err)
	}
	if err := s.patients.DeleteAll(ctx); err != nil {
		return nil, ferrors.NewLoadError(string(models.EntityPatients), err)
	}

	summary := &models.LoadSummary{}
	if summary.Patients, err = s.patients.InsertMany(ctx, snap.patients); err != nil {
		return nil, ferrors.NewLoadError(string(models.EntityPatients), err)
	}
	if summary.Encounters, err = s.encounters.InsertMany(ctx, snap.encounters); err != nil {
		return nil, ferrors.NewLoadError(string(models.EntityEncounters), err)
	}
	if summary.Diagnoses, err = s.diagnoses.InsertMany(ctx, snap.diagnoses); err != nil {
		return nil, ferrors.NewLoadError(string(models.EntityDiagnoses), err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, ferrors.NewLoadError("", err)
	}

	log.WithFields(map[string]any{
		"patients":   summary.Patients,
		"encounters": summary.Encounters,
		"diagnoses":  summary.Diagnoses,
	}).Info("Loaded clean artifacts into sink")
	return summary, nil
}

// Counts reports the current row count of each sink table.
func (s *Service) Counts(ctx context.Context) (*models.LoadSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "loader.Service.Counts")
	defer span.End()

	var (
		summary models.LoadSummary
		err     error
	)
	if summary.Patients, err = s.patients.Count(ctx); err != nil {
		return nil, err
	}
	if summary.Encounters, err = s.encounters.Count(ctx); err != nil {
		return nil, err
	}
	if summary.Diagnoses, err = s.diagnoses.Count(ctx); err != nil {
		return nil, err
	}
	return &summary, nil
}

func readSnapshot(artifacts models.Artifacts) (*snapshot, error) {
	var (
		snap snapshot
		err  error
	)
	if snap.patients, err = readArtifact(models.EntityPatients, artifacts.Patients, patient.FromCleanRecord); err != nil {
		return nil, err
	}
	if snap.encounters, err = readArtifact(models.EntityEncounters, artifacts.Encounters, encounter.FromCleanRecord); err != nil {
		return nil, err
	}
	if snap.diagnoses, err = readArtifact(models.EntityDiagnoses, artifacts.Diagnoses, diagnosis.FromCleanRecord); err != nil {
		return nil, err
	}
	return &snap, nil
}

// readArtifact parses a clean CSV artifact into sink rows.
func readArtifact[T any](entity models.Entity, path string, convert func(map[string]string) (T, error)) ([]T, error) {
	if path == "" {
		return nil, ferrors.NewLoadError(string(entity), fmt.Errorf("no clean artifact"))
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, ferrors.NewLoadError(string(entity), err)
	}
	defer f.Close()

	cr := csv.NewReader(f)
	header, err := cr.Read()
	if err != nil {
		return nil, ferrors.NewLoadError(string(entity), fmt.Errorf("read header of %s: %w", path, err))
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	var out []T
	for line := 2; ; line++ {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, ferrors.NewLoadError(string(entity), fmt.Errorf("%s: %w", path, err))
		}
		rec := make(map[string]string, len(header))
		for i, col := range header {
			rec[col] = record[i]
		}
		row, err := convert(rec)
		if err != nil {
			return nil, ferrors.NewLoadError(string(entity), fmt.Errorf("%s line %d: %w", path, line, err))
		}
		out = append(out, row)
	}
	return out, nil
}
