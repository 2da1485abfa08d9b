package pipeline

import (
	"context"
	"time"

	"github.com/Gobusters/ectolinq"

	"github.com/Ramsey-B/fern/pkg/emitter"
	"github.com/Ramsey-B/fern/pkg/integrity"
	"github.com/Ramsey-B/fern/pkg/merging"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/normalizers"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/Ramsey-B/fern/pkg/validation"
)

type DiagnosisStage struct {
	Source string
}

func NewDiagnosisStage(source string) *DiagnosisStage {
	return &DiagnosisStage{Source: source}
}

func (s *DiagnosisStage) Entity() models.Entity { return models.EntityDiagnoses }

func (s *DiagnosisStage) DependsOn() []models.Entity {
	return []models.Entity{models.EntityEncounters}
}

func (s *DiagnosisStage) Run(ctx context.Context, rc *RunContext) (*models.StageSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.DiagnosisStage.Run")
	defer span.End()

	start := time.Now()
	log := rc.Logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Run",
		"entity": s.Entity(),
	})

	encounters, err := rc.Keys(ctx, models.EntityEncounters)
	if err != nil {
		return nil, err
	}

	raws, err := rc.Reader.Diagnoses(ctx, s.Source)
	if err != nil {
		return nil, err
	}

	// the previous log survives until the inputs are known to be readable
	if err := rc.Writer.ResetLog(ctx, s.Entity()); err != nil {
		return nil, err
	}

	rs := validation.DiagnosisRules()
	env := rc.env()
	records, err := parallelMap(ctx, rc.Workers, raws, func(raw models.RawDiagnosis) *models.DiagnosisRecord {
		d := normalizers.NormalizeDiagnosis(rc.Rules, raw)
		d.Flags = rs.Evaluate(d, env)
		return d
	})
	if err != nil {
		return nil, err
	}

	res, exact := merging.DedupDiagnoses(records)
	if exact > 0 {
		log.WithField("count", exact).Info("Removed exact duplicate diagnosis rows")
	}

	var candidates, fatal []*models.DiagnosisRecord
	for _, d := range res.Survivors {
		if d.Flags.Fatal(s.Entity()) {
			fatal = append(fatal, d)
			continue
		}
		candidates = append(candidates, d)
	}

	summary := &models.StageSummary{
		Entity:    s.Entity(),
		Extracted: len(raws),
	}

	path, err := rc.Writer.WriteRejections(ctx, s.Entity(), emitter.RejectionTable(models.DiagnosisRejectionColumns, fatal))
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.WithField("count", len(fatal)).Warn("Dropped diagnosis rows failing validation")
		summary.RejectionLog = path
	}

	clean, violators := integrity.Check(candidates, encounters,
		func(d *models.DiagnosisRecord) string { return d.EncounterID },
		func(d *models.DiagnosisRecord) *models.Flags { return &d.Flags },
	)
	if len(violators) > 0 {
		log.WithFields(map[string]any{
			"count":         len(violators),
			"encounter_ids": distinctEncounterIDs(violators),
		}).Warn("Found encounter_id foreign key violations")

		path, err := rc.Writer.WriteRejections(ctx, s.Entity(), emitter.RejectionTable(models.DiagnosisRejectionColumns, violators))
		if err != nil {
			return nil, err
		}
		summary.RejectionLog = path
	}

	summary.Clean = len(clean)
	summary.Rejected = len(fatal) + len(violators)
	summary.FlagCounts = models.CountFlags(flagSets(res.Survivors, func(d *models.DiagnosisRecord) models.Flags { return d.Flags })...)

	if err := finish(ctx, rc, summary, emitter.CleanTable(models.DiagnosisCleanColumns, clean)); err != nil {
		return nil, err
	}

	summary.Duration = time.Since(start)
	log.WithFields(map[string]any{
		"extracted": summary.Extracted,
		"clean":     summary.Clean,
		"rejected":  summary.Rejected,
	}).Info("Diagnoses stage complete")
	return summary, nil
}

func distinctEncounterIDs(records []*models.DiagnosisRecord) []string {
	var out []string
	for _, d := range records {
		if !ectolinq.Contains(out, d.EncounterID) {
			out = append(out, d.EncounterID)
		}
	}
	return out
}
