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

type EncounterStage struct {
	Source string
}

func NewEncounterStage(source string) *EncounterStage {
	return &EncounterStage{Source: source}
}

func (s *EncounterStage) Entity() models.Entity { return models.EntityEncounters }

func (s *EncounterStage) DependsOn() []models.Entity {
	return []models.Entity{models.EntityPatients}
}

func (s *EncounterStage) Run(ctx context.Context, rc *RunContext) (*models.StageSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.EncounterStage.Run")
	defer span.End()

	start := time.Now()
	log := rc.Logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Run",
		"entity": s.Entity(),
	})

	patients, err := rc.Keys(ctx, models.EntityPatients)
	if err != nil {
		return nil, err
	}

	raws, err := rc.Reader.Encounters(ctx, s.Source)
	if err != nil {
		return nil, err
	}

	// the previous log survives until the inputs are known to be readable
	if err := rc.Writer.ResetLog(ctx, s.Entity()); err != nil {
		return nil, err
	}

	rs := validation.EncounterRules()
	env := rc.env()
	records, err := parallelMap(ctx, rc.Workers, raws, func(raw models.RawEncounter) *models.EncounterRecord {
		e := normalizers.NormalizeEncounter(rc.Rules, raw)
		e.Flags = rs.Evaluate(e, env)
		return e
	})
	if err != nil {
		return nil, err
	}

	// rows without an id cannot take part in survivorship
	var identified, unidentified []*models.EncounterRecord
	for _, e := range records {
		if e.EncounterID == "" {
			unidentified = append(unidentified, e)
			continue
		}
		identified = append(identified, e)
	}

	res := merging.DedupEncounters(identified)
	for _, group := range res.Merged {
		files := merging.SourceFiles(group, func(e *models.EncounterRecord) string { return e.SourceFile })
		if len(files) > 1 {
			log.WithFields(map[string]any{
				"encounter_id": group.Key,
				"sources":      files,
				"survivor":     group.Members[0].SourceFile,
			}).Warn("Encounter duplicates span source files; survivor chosen by ranking")
		}
	}
	if len(res.Removed) > 0 {
		log.WithField("count", len(res.Removed)).Info("De-duplication removed encounter rows")
	}

	var candidates, fatal []*models.EncounterRecord
	for _, e := range res.Survivors {
		if e.Flags.Fatal(s.Entity()) {
			fatal = append(fatal, e)
			continue
		}
		candidates = append(candidates, e)
	}

	clean, violators := integrity.Check(candidates, patients,
		func(e *models.EncounterRecord) string { return e.PatientID },
		func(e *models.EncounterRecord) *models.Flags { return &e.Flags },
	)
	if len(violators) > 0 {
		log.WithField("count", len(violators)).Warn("Found patient_id foreign key violations")
	}

	rejected := make([]*models.EncounterRecord, 0, len(unidentified)+len(res.Removed)+len(fatal)+len(violators))
	rejected = append(rejected, unidentified...)
	rejected = append(rejected, res.Removed...)
	rejected = append(rejected, fatal...)
	rejected = append(rejected, violators...)

	summary := &models.StageSummary{
		Entity:     s.Entity(),
		Extracted:  len(raws),
		Clean:      len(clean),
		Rejected:   len(rejected),
		FlagCounts: models.CountFlags(flagSets(records, func(e *models.EncounterRecord) models.Flags { return e.Flags })...),
	}

	path, err := rc.Writer.WriteRejections(ctx, s.Entity(), emitter.RejectionTable(models.EncounterRejectionColumns, rejected))
	if err != nil {
		return nil, err
	}
	summary.RejectionLog = path

	if err := finish(ctx, rc, summary, emitter.CleanTable(models.EncounterCleanColumns, clean)); err != nil {
		return nil, err
	}

	keys := integrity.NewKeySet()
	for _, e := range clean {
		keys.Add(e.EncounterID)
	}
	rc.SetKeys(s.Entity(), keys)

	summary.Duration = time.Since(start)
	log.WithFields(map[string]any{
		"extracted": summary.Extracted,
		"clean":     summary.Clean,
		"rejected":  summary.Rejected,
	}).Info("Encounters stage complete")
	return summary, nil
}
