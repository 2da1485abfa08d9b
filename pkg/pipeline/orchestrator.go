package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectolinq"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/pkg/emitter"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/extract"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Sink receives the clean artifacts of a completed run.
type Sink interface {
	Load(ctx context.Context, artifacts models.Artifacts) (*models.LoadSummary, error)
}

type Sources struct {
	Patients   string
	Encounters string
	Diagnoses  string
}

type Options struct {
	Sources  Sources
	CleanDir string
	LogsDir  string
	Workers  int
	Rules    *rules.Rules
	// Now fixes the evaluation instant of a run. Defaults to time.Now.
	Now func() time.Time
}

// Orchestrator runs the stages of the pipeline. Stages run one at a time in
// dependency order; work inside a stage fans out over Workers goroutines.
type Orchestrator struct {
	opts      Options
	stages    []Stage
	logger    ectologger.Logger
	sink      Sink
	metrics   *metrics.Metrics
	publisher events.Publisher
}

func NewOrchestrator(opts Options, logger ectologger.Logger) *Orchestrator {
	if opts.Rules == nil {
		opts.Rules = rules.Default()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Orchestrator{
		opts:   opts,
		logger: logger,
		stages: []Stage{
			NewPatientStage(opts.Sources.Patients),
			NewEncounterStage(opts.Sources.Encounters),
			NewDiagnosisStage(opts.Sources.Diagnoses),
		},
		publisher: events.NoopPublisher{},
	}
}

// WithSink loads the clean artifacts after a full run.
func (o *Orchestrator) WithSink(sink Sink) *Orchestrator {
	o.sink = sink
	return o
}

func (o *Orchestrator) WithMetrics(m *metrics.Metrics) *Orchestrator {
	o.metrics = m
	return o
}

func (o *Orchestrator) WithPublisher(p events.Publisher) *Orchestrator {
	if p != nil {
		o.publisher = p
	}
	return o
}

// Artifacts returns where the clean artifacts of each entity are written.
func (o *Orchestrator) Artifacts() models.Artifacts {
	w := emitter.NewWriter(o.opts.CleanDir, o.opts.LogsDir, o.logger)
	return models.Artifacts{
		Patients:   w.CleanPath(models.EntityPatients),
		Encounters: w.CleanPath(models.EntityEncounters),
		Diagnoses:  w.CleanPath(models.EntityDiagnoses),
	}
}

// Run executes the named entity stages, or all of them when none are named.
// Parents that are not run are read back from their clean artifacts. The sink
// is only loaded when every stage ran. The summary is returned even when the
// run fails part way.
func (o *Orchestrator) Run(ctx context.Context, entities ...models.Entity) (*models.RunSummary, error) {
	ctx, span := tracing.StartSpan(ctx, "pipeline.Orchestrator.Run")
	defer span.End()

	summary := &models.RunSummary{
		RunID:     uuid.NewString(),
		StartedAt: o.opts.Now().UTC(),
	}
	log := o.logger.WithContext(ctx).WithFields(map[string]any{
		"method": "Run",
		"run_id": summary.RunID,
	})

	err := o.run(ctx, summary, entities)
	summary.FinishedAt = time.Now().UTC()

	status := "success"
	event := &events.RunEvent{
		EventType: events.EventRunCompleted,
		RunID:     summary.RunID,
		TraceID:   tracing.GetTraceID(ctx),
		Summary:   summary,
	}
	if err != nil {
		status = "failed"
		event.EventType = events.EventRunFailed
		event.Error = err.Error()
		log.WithError(err).Error("Pipeline run failed")
	} else {
		log.WithFields(runFields(summary)).Info("Pipeline run complete")
	}

	if o.metrics != nil {
		o.metrics.ObserveRun(status)
	}
	if pubErr := o.publisher.PublishRun(ctx, event); pubErr != nil {
		log.WithError(pubErr).Warn("Failed to publish run event")
	}

	return summary, err
}

func (o *Orchestrator) run(ctx context.Context, summary *models.RunSummary, entities []models.Entity) error {
	selected, err := o.selectStages(entities)
	if err != nil {
		return err
	}
	ordered, err := orderStages(selected)
	if err != nil {
		return err
	}

	rc := &RunContext{
		RunID:   summary.RunID,
		Rules:   o.opts.Rules,
		Now:     o.opts.Now().UTC(),
		Workers: o.opts.Workers,
		Reader:  extract.NewReader(o.logger),
		Writer:  emitter.NewWriter(o.opts.CleanDir, o.opts.LogsDir, o.logger),
		Logger:  o.logger,
	}

	for _, stage := range ordered {
		o.logger.WithContext(ctx).WithFields(map[string]any{
			"run_id":     summary.RunID,
			"entity":     stage.Entity(),
			"depends_on": stage.DependsOn(),
		}).Info("Starting stage")

		stageSummary, err := stage.Run(ctx, rc)
		if err != nil {
			return fmt.Errorf("%s stage: %w", stage.Entity(), err)
		}
		summary.Stages = append(summary.Stages, *stageSummary)
		if o.metrics != nil {
			o.metrics.ObserveStage(stageSummary)
		}
	}

	if o.sink == nil || len(ordered) != len(o.stages) {
		return nil
	}

	load, err := o.sink.Load(ctx, o.Artifacts())
	if err != nil {
		return err
	}
	summary.Load = load
	if o.metrics != nil {
		o.metrics.ObserveLoad(load)
	}
	return nil
}

func (o *Orchestrator) selectStages(entities []models.Entity) ([]Stage, error) {
	if len(entities) == 0 {
		return o.stages, nil
	}
	known := ectolinq.Map(o.stages, func(s Stage) models.Entity { return s.Entity() })
	var selected []Stage
	for _, entity := range entities {
		if !ectolinq.Contains(known, entity) {
			return nil, fmt.Errorf("unknown entity %q", entity)
		}
		for _, stage := range o.stages {
			if stage.Entity() == entity {
				selected = append(selected, stage)
			}
		}
	}
	return selected, nil
}

func runFields(summary *models.RunSummary) map[string]any {
	fields := map[string]any{}
	for _, s := range summary.Stages {
		fields[string(s.Entity)+"_clean"] = s.Clean
		fields[string(s.Entity)+"_rejected"] = s.Rejected
	}
	if summary.Load != nil {
		fields["loaded_patients"] = summary.Load.Patients
		fields["loaded_encounters"] = summary.Load.Encounters
		fields["loaded_diagnoses"] = summary.Load.Diagnoses
	}
	return fields
}
