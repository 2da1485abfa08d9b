package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
)

var testNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testOptions(t *testing.T) Options {
	dir := t.TempDir()
	return Options{
		Sources: Sources{
			Patients:   filepath.Join("testdata", "patients.csv"),
			Encounters: filepath.Join("testdata", "encounters.csv"),
			Diagnoses:  filepath.Join("testdata", "diagnoses.xml"),
		},
		CleanDir: filepath.Join(dir, "cleaned"),
		LogsDir:  filepath.Join(dir, "logs"),
		Workers:  4,
		Now:      func() time.Time { return testNow },
	}
}

func read(t *testing.T, path string) string {
	t.Helper()
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	return string(b)
}

type fakeSink struct {
	artifacts models.Artifacts
	calls     int
	err       error
}

func (f *fakeSink) Load(_ context.Context, artifacts models.Artifacts) (*models.LoadSummary, error) {
	f.calls++
	f.artifacts = artifacts
	if f.err != nil {
		return nil, fernerrors.NewLoadError("", f.err)
	}
	return &models.LoadSummary{Patients: 3, Encounters: 2, Diagnoses: 2}, nil
}

type fakePublisher struct {
	events []*events.RunEvent
}

func (f *fakePublisher) PublishRun(_ context.Context, event *events.RunEvent) error {
	f.events = append(f.events, event)
	return nil
}

func (f *fakePublisher) Close() error { return nil }

func TestOrchestrator_FullRun(t *testing.T) {
	opts := testOptions(t)
	sink := &fakeSink{}
	pub := &fakePublisher{}
	m := metrics.New()

	o := NewOrchestrator(opts, testLogger()).WithSink(sink).WithPublisher(pub).WithMetrics(m)
	summary, err := o.Run(context.Background())
	require.NoError(t, err)

	require.Len(t, summary.Stages, 3)
	assert.NotEmpty(t, summary.RunID)

	patients, ok := summary.Stage(models.EntityPatients)
	require.True(t, ok)
	assert.Equal(t, 5, patients.Extracted)
	assert.Equal(t, 3, patients.Clean)
	assert.Equal(t, 2, patients.Rejected)
	assert.Equal(t, 1, patients.FlagCounts[models.FlagDuplicatePatientID])

	assert.Equal(t,
		"patient_id,given_name,family_name,sex,dob,height,weight,qa_flags,source_file\n"+
			"P-0001,Ann,Lee,F,1980-01-01,165.0,60.0,OK,patients.csv\n"+
			"P-0002,Bob,Smith,M,1975-03-04,177.8,68.0,OK,patients.csv\n"+
			"P-0004,Old,Timer,U,1890-01-01,170.0,70.0,AGE_GT_120Y,patients.csv\n",
		read(t, patients.CleanArtifact))
	assert.Equal(t,
		"patient_id,given_name,family_name,sex,dob,height,weight,qa_flags,source_file\n"+
			"P 1,Dup,Person,F,1990-01-01,170,70,DUPLICATE_PATIENT_ID,patients.csv\n"+
			",No,Id,M,1990-01-01,170,70,MISSING_PATIENT_ID,patients.csv\n",
		read(t, patients.RejectionLog))

	encounters, _ := summary.Stage(models.EntityEncounters)
	assert.Equal(t, 2, encounters.Clean)
	assert.Equal(t, 3, encounters.Rejected)
	assert.Equal(t,
		"encounter_id,patient_id,admit_dt,discharge_dt,encounter_type,encounter_status,qa_flags,source_file\n"+
			"ENC-000001,P-0001,2024-01-01T08:00:00Z,2024-01-03T10:00:00Z,INPATIENT,CLOSED,DUP_ENCOUNTER_MERGED,encounters.csv\n"+
			"ENC-000003,P-0002,2024-03-01T09:30:00Z,,ED,OPEN,MISSING_DISCHARGE,encounters.csv\n",
		read(t, encounters.CleanArtifact))
	assert.Equal(t,
		"encounter_id,patient_id,encounter_type,admit_dt_raw,discharge_dt_raw,admit_dt,discharge_dt,qa_flags,source_file\n"+
			"ENC-000001,P-0001,INPATIENT,2024-01-01 08:00,,2024-01-01T08:00:00Z,,MISSING_DISCHARGE|DEDUP_SURVIVORSHIP,encounters.csv\n"+
			"ENC-000002,P-0002,OUTPATIENT,2024-02-05 08:00,2024-02-01 08:00,2024-02-05T08:00:00Z,2024-02-01T08:00:00Z,DISCHARGE_BEFORE_ADMIT,encounters.csv\n"+
			"ENC-000004,P-0009,OUTPATIENT,2024-04-01 08:00,2024-04-01 12:00,2024-04-01T08:00:00Z,2024-04-01T12:00:00Z,FK_VIOLATION,encounters.csv\n",
		read(t, encounters.RejectionLog))

	diagnoses, _ := summary.Stage(models.EntityDiagnoses)
	assert.Equal(t, 6, diagnoses.Extracted)
	assert.Equal(t, 2, diagnoses.Clean)
	assert.Equal(t, 2, diagnoses.Rejected)
	assert.Equal(t,
		"encounter_id,code_system,diagnosis_code,is_primary,recorded_at,qa_flags,source_file\n"+
			"ENC-000001,ICD-10,A00.1,true,2024-01-01T09:00:00Z,DUP_DIAGNOSIS_MERGED,diagnoses.xml\n"+
			"ENC-000003,ICD-10,I10,,,MISSING_ISPRIMARY,diagnoses.xml\n",
		read(t, diagnoses.CleanArtifact))
	assert.Equal(t,
		"encounter_id,code_system,diagnosis_code,is_primary,recorded_at_raw,recorded_at,qa_flags,source_file\n"+
			"ENC-000003,ICD-10,ABC,false,,,INVALID_CODE,diagnoses.xml\n"+
			"ENC-999999,ICD-10,E11,true,2024-05-01T00:00:00Z,2024-05-01T00:00:00Z,FK_VIOLATION,diagnoses.xml\n",
		read(t, diagnoses.RejectionLog))

	assert.Equal(t, 1, sink.calls)
	assert.Equal(t, o.Artifacts(), sink.artifacts)
	require.NotNil(t, summary.Load)
	assert.Equal(t, 3, summary.Load.Patients)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.EventRunCompleted, pub.events[0].EventType)
	assert.Equal(t, summary.RunID, pub.events[0].RunID)
}

func TestOrchestrator_RerunIsByteIdentical(t *testing.T) {
	opts := testOptions(t)

	first, err := NewOrchestrator(opts, testLogger()).Run(context.Background())
	require.NoError(t, err)
	firstClean := read(t, first.Stages[2].CleanArtifact)
	firstLog := read(t, first.Stages[2].RejectionLog)

	second, err := NewOrchestrator(opts, testLogger()).Run(context.Background())
	require.NoError(t, err)

	for i := range first.Stages {
		assert.Equal(t, first.Stages[i].Checksum, second.Stages[i].Checksum, first.Stages[i].Entity)
	}
	assert.Equal(t, firstClean, read(t, second.Stages[2].CleanArtifact))
	assert.Equal(t, firstLog, read(t, second.Stages[2].RejectionLog), "rejection log must be truncated, not appended")
	assert.NotEqual(t, first.RunID, second.RunID)
}

func TestOrchestrator_NoRejectionLogWhenNothingRejected(t *testing.T) {
	opts := testOptions(t)
	opts.Sources.Patients = filepath.Join("testdata", "patients_clean_only.csv")

	o := NewOrchestrator(opts, testLogger())
	logPath := filepath.Join(opts.LogsDir, "patients_logs.csv")
	require.NoError(t, os.MkdirAll(opts.LogsDir, 0o755))
	require.NoError(t, os.WriteFile(logPath, []byte("stale\n"), 0o644))

	summary, err := o.Run(context.Background(), models.EntityPatients)
	require.NoError(t, err)
	require.Len(t, summary.Stages, 1)
	assert.Equal(t, 0, summary.Stages[0].Rejected)
	assert.Empty(t, summary.Stages[0].RejectionLog)
	assert.NoFileExists(t, logPath)
}

func TestOrchestrator_StageAloneUsesParentArtifact(t *testing.T) {
	opts := testOptions(t)

	_, err := NewOrchestrator(opts, testLogger()).Run(context.Background(), models.EntityEncounters)
	require.Error(t, err)
	assert.True(t, fernerrors.IsSourceError(err))
	assert.Contains(t, err.Error(), "run the patients stage first")

	sink := &fakeSink{}
	o := NewOrchestrator(opts, testLogger()).WithSink(sink)
	_, err = o.Run(context.Background(), models.EntityPatients)
	require.NoError(t, err)

	summary, err := o.Run(context.Background(), models.EntityEncounters)
	require.NoError(t, err)
	require.Len(t, summary.Stages, 1)
	assert.Equal(t, 2, summary.Stages[0].Clean)
	assert.Equal(t, 0, sink.calls, "partial runs do not load the sink")
	assert.Nil(t, summary.Load)
}

func TestOrchestrator_MissingSourceIsFatal(t *testing.T) {
	opts := testOptions(t)
	opts.Sources.Diagnoses = filepath.Join("testdata", "missing.xml")
	pub := &fakePublisher{}

	summary, err := NewOrchestrator(opts, testLogger()).WithPublisher(pub).Run(context.Background())
	require.Error(t, err)
	assert.True(t, fernerrors.IsSourceError(err))
	assert.Len(t, summary.Stages, 2)

	require.Len(t, pub.events, 1)
	assert.Equal(t, events.EventRunFailed, pub.events[0].EventType)
	assert.NotEmpty(t, pub.events[0].Error)
}

func TestOrchestrator_AbortedStageKeepsPreviousLog(t *testing.T) {
	tests := []struct {
		name    string
		entity  models.Entity
		parents []models.Entity
		source  string
	}{
		{
			name:    "unreadable source",
			entity:  models.EntityDiagnoses,
			parents: []models.Entity{models.EntityPatients, models.EntityEncounters},
			source:  filepath.Join("testdata", "missing.xml"),
		},
		{
			name:   "missing parent artifact",
			entity: models.EntityEncounters,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			opts := testOptions(t)
			if tt.source != "" {
				opts.Sources.Diagnoses = tt.source
			}
			logPath := filepath.Join(opts.LogsDir, string(tt.entity)+"_logs.csv")
			require.NoError(t, os.MkdirAll(opts.LogsDir, 0o755))
			require.NoError(t, os.WriteFile(logPath, []byte("previous\n"), 0o644))

			o := NewOrchestrator(opts, testLogger())
			if len(tt.parents) > 0 {
				_, err := o.Run(context.Background(), tt.parents...)
				require.NoError(t, err)
			}

			_, err := o.Run(context.Background(), tt.entity)
			require.Error(t, err)
			assert.True(t, fernerrors.IsSourceError(err))
			assert.Equal(t, "previous\n", read(t, logPath))
		})
	}
}

func TestOrchestrator_SinkFailureKeepsArtifacts(t *testing.T) {
	opts := testOptions(t)
	sink := &fakeSink{err: errors.New("connection refused")}

	summary, err := NewOrchestrator(opts, testLogger()).WithSink(sink).Run(context.Background())
	require.Error(t, err)
	assert.True(t, fernerrors.IsLoadError(err))
	assert.Nil(t, summary.Load)
	for _, s := range summary.Stages {
		assert.FileExists(t, s.CleanArtifact)
	}
}

func TestOrchestrator_UnknownEntity(t *testing.T) {
	_, err := NewOrchestrator(testOptions(t), testLogger()).Run(context.Background(), models.Entity("labs"))
	assert.ErrorContains(t, err, `unknown entity "labs"`)
}

type stubStage struct {
	entity models.Entity
	deps   []models.Entity
}

func (s stubStage) Entity() models.Entity      { return s.entity }
func (s stubStage) DependsOn() []models.Entity { return s.deps }
func (s stubStage) Run(context.Context, *RunContext) (*models.StageSummary, error) {
	return &models.StageSummary{Entity: s.entity}, nil
}

func TestOrderStages(t *testing.T) {
	ordered, err := orderStages([]Stage{
		stubStage{entity: "c", deps: []models.Entity{"b"}},
		stubStage{entity: "b", deps: []models.Entity{"a"}},
		stubStage{entity: "a"},
		stubStage{entity: "d", deps: []models.Entity{"external"}},
	})
	require.NoError(t, err)

	names := make([]models.Entity, len(ordered))
	for i, s := range ordered {
		names[i] = s.Entity()
	}
	assert.Equal(t, []models.Entity{"a", "b", "c", "d"}, names)

	_, err = orderStages([]Stage{
		stubStage{entity: "a", deps: []models.Entity{"b"}},
		stubStage{entity: "b", deps: []models.Entity{"a"}},
	})
	assert.ErrorContains(t, err, "cycle")

	_, err = orderStages([]Stage{stubStage{entity: "a"}, stubStage{entity: "a"}})
	assert.ErrorContains(t, err, "registered twice")
}

func TestParallelMap_PreservesOrder(t *testing.T) {
	in := make([]int, 100)
	for i := range in {
		in[i] = i
	}
	out, err := parallelMap(context.Background(), 3, in, func(v int) int { return v * 2 })
	require.NoError(t, err)
	for i, v := range out {
		assert.Equal(t, i*2, v)
	}
}
