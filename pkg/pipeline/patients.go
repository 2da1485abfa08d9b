package pipeline

import (
	"context"
	"time"

	"github.com/Ramsey-B/fern/pkg/emitter"
	"github.com/Ramsey-B/fern/pkg/integrity"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type PatientStage struct {
	Source string
}

func NewPatientStage(source string) *PatientStage {
	return &PatientStage{Source: source}
}

func (s *PatientStage) Entity() models.Entity { return models.EntityPatients }

func (s *PatientStage) DependsOn() []models.Entity { return nil }

func (s *PatientStage) Run(ctx context.Context, rc *RunContext) (*models.StageSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.PatientStage.Run")
	defer span.End()

	start := time.Now()
	log := rc.Logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Run",
		"entity": s.Entity(),
	})

	raws, err := rc.Reader.Patients(ctx, s.Source)
	if err != nil {
		return nil, err
	}

	// the previous log survives until the inputs are known to be readable
	if err := rc.Writer.ResetLog(ctx, s.Entity()); err != nil {
		return nil, err
	}

	records, err := parallelMap(ctx, rc.Workers, raws, func(raw models.RawPatient) *models.PatientRecord {
		return normalizers.NormalizePatient(rc.Rules, raw)
	})
	if err != nil {
		return nil, err
	}

	// duplicates are judged on the canonical id before any quality rule runs
	kept, duplicates := merging.DedupPatients(records)
	if len(duplicates) > 0 {
		log.WithField("count", len(duplicates)).Warn("Dropping duplicate patient_id rows")
	}

	rs := validation.PatientRules()
	env := rc.env()
	if _, err := parallelMap(ctx, rc.Workers, kept, func(p *models.PatientRecord) struct{} {
		for _, flag := range rs.Evaluate(p, env) {
			p.Flags.Add(flag)
		}
		return struct{}{}
	}); err != nil {
		return nil, err
	}

	var clean, fatal []*models.PatientRecord
	for _, p := range kept {
		if p.Flags.Fatal(s.Entity()) {
			fatal = append(fatal, p)
			continue
		}
		clean = append(clean, p)
	}

	summary := &models.StageSummary{
		Entity:     s.Entity(),
		Extracted:  len(raws),
		Clean:      len(clean),
		Rejected:   len(duplicates) + len(fatal),
		FlagCounts: models.CountFlags(flagSets(records, func(p *models.PatientRecord) models.Flags { return p.Flags })...),
	}

	for _, batch := range [][]*models.PatientRecord{duplicates, fatal} {
		path, err := rc.Writer.WriteRejections(ctx, s.Entity(), emitter.RejectionTable(models.PatientRejectionColumns, batch))
		if err != nil {
			return nil, err
		}
		if path != "" {
			summary.RejectionLog = path
		}
	}

	if err := finish(ctx, rc, summary, emitter.CleanTable(models.PatientCleanColumns, clean)); err != nil {
		return nil, err
	}

	keys := integrity.NewKeySet()
	for _, p := range clean {
		keys.Add(p.PatientID)
	}
	rc.SetKeys(s.Entity(), keys)

	summary.Duration = time.Since(start)
	log.WithFields(map[string]any{
		"extracted": summary.Extracted,
		"clean":     summary.Clean,
		"rejected":  summary.Rejected,
	}).Info("Patients stage complete")
	return summary, nil
}

func flagSets[T any](records []T, flags func(T) models.Flags) []models.Flags {
	sets := make([]models.Flags, len(records))
	for i, r := range records {
		sets[i] = flags(r)
	}
	return sets
}
