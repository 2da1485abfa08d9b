package merging

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
)

type candidate struct {
	key   string
	score int
	at    *time.Time
	name  string
}

func ts(day int) *time.Time {
	t := time.Date(2024, 1, day, 0, 0, 0, 0, time.UTC)
	return &t
}

func TestResolver_FirstOccurrenceWins(t *testing.T) {
	r := &Resolver[candidate]{Key: func(c candidate) string { return c.key }}
	res := r.Resolve([]candidate{
		{key: "b", name: "b1"},
		{key: "a", name: "a1"},
		{key: "b", name: "b2"},
	})

	require.Len(t, res.Survivors, 2)
	assert.Equal(t, "b1", res.Survivors[0].name)
	assert.Equal(t, "a1", res.Survivors[1].name)
	require.Len(t, res.Removed, 1)
	assert.Equal(t, "b2", res.Removed[0].name)
	assert.True(t, res.IsMerged("b"))
	assert.False(t, res.IsMerged("a"))
}

func TestResolver_RankAndSort(t *testing.T) {
	r := &Resolver[candidate]{
		Key: func(c candidate) string { return c.key },
		Less: Rank(
			PreferHigher(func(c candidate) int { return c.score }),
			PreferLater(func(c candidate) *time.Time { return c.at }),
			PreferLowerString(func(c candidate) string { return c.name }),
		),
		SortByKey: true,
	}
	res := r.Resolve([]candidate{
		{key: "z", score: 1, name: "z1"},
		{key: "a", score: 2, at: ts(1), name: "a-early"},
		{key: "a", score: 2, at: ts(5), name: "a-late"},
		{key: "a", score: 3, at: nil, name: "a-best"},
		{key: "m", score: 1, name: "m-b"},
		{key: "m", score: 1, name: "m-a"},
	})

	require.Len(t, res.Survivors, 3)
	assert.Equal(t, []string{"a-best", "m-a", "z1"}, []string{
		res.Survivors[0].name, res.Survivors[1].name, res.Survivors[2].name,
	})
	require.Len(t, res.Merged, 2)
	assert.Equal(t, "a", res.Merged[0].Key)
	assert.Equal(t, "a-late", res.Merged[0].Members[1].name)
	assert.Equal(t, "a-early", res.Merged[0].Members[2].name)
}

func TestPreferEarlier_NilLast(t *testing.T) {
	less := Rank(PreferEarlier(func(c candidate) *time.Time { return c.at }))
	assert.True(t, less(candidate{at: ts(1)}, candidate{}))
	assert.False(t, less(candidate{}, candidate{at: ts(1)}))
	assert.True(t, less(candidate{at: ts(1)}, candidate{at: ts(2)}))
	assert.False(t, less(candidate{}, candidate{}))
}

func TestDropExact(t *testing.T) {
	kept, dropped := DropExact([]string{"a", "b", "a", "a"}, func(s string) string { return s })
	assert.Equal(t, []string{"a", "b"}, kept)
	assert.Equal(t, 2, dropped)
}

func TestDedupPatients(t *testing.T) {
	first := &models.PatientRecord{PatientID: "P-0001", SourceFile: "a.csv"}
	second := &models.PatientRecord{PatientID: "P-0002"}
	dup := &models.PatientRecord{PatientID: "P-0001", SourceFile: "b.csv"}
	noID1 := &models.PatientRecord{}
	noID2 := &models.PatientRecord{}

	kept, duplicates := DedupPatients([]*models.PatientRecord{first, noID1, second, dup, noID2})

	assert.Equal(t, []*models.PatientRecord{first, noID1, second, noID2}, kept)
	require.Len(t, duplicates, 1)
	assert.Same(t, dup, duplicates[0])
	assert.True(t, dup.Flags.Has(models.FlagDuplicatePatientID))
	assert.False(t, first.Flags.Has(models.FlagDuplicatePatientID))
}

func TestDedupEncounters(t *testing.T) {
	invalid := &models.EncounterRecord{
		EncounterID: "ENC-000001", PatientID: "P-0001",
		AdmitAt: ts(5), DischargeAt: ts(2), EncounterType: "INPATIENT", SourceFile: "a.csv",
		Flags: models.Flags{models.FlagDischargeBefore},
	}
	partial := &models.EncounterRecord{
		EncounterID: "ENC-000001", PatientID: "P-0001",
		AdmitAt: ts(1), EncounterType: "UNKNOWN", SourceFile: "a.csv",
	}
	complete := &models.EncounterRecord{
		EncounterID: "ENC-000001", PatientID: "P-0001",
		AdmitAt: ts(1), DischargeAt: ts(3), EncounterType: "INPATIENT", SourceFile: "c.csv",
	}
	tieLoser := &models.EncounterRecord{
		EncounterID: "ENC-000001", PatientID: "P-0001",
		AdmitAt: ts(1), DischargeAt: ts(3), EncounterType: "INPATIENT", SourceFile: "d.csv",
	}
	single := &models.EncounterRecord{EncounterID: "ENC-000000", PatientID: "P-0002", AdmitAt: ts(1)}

	res := DedupEncounters([]*models.EncounterRecord{invalid, partial, tieLoser, complete, single})

	require.Len(t, res.Survivors, 2)
	assert.Same(t, single, res.Survivors[0])
	assert.Same(t, complete, res.Survivors[1])
	assert.Equal(t, "DUP_ENCOUNTER_MERGED", complete.Flags.String())
	assert.Equal(t, "OK", single.Flags.String())

	require.Len(t, res.Removed, 3)
	for _, e := range res.Removed {
		assert.True(t, e.Flags.Has(models.FlagDedupSurvivorship))
	}
	assert.Same(t, tieLoser, res.Removed[0])
	assert.Same(t, invalid, res.Removed[2])

	files := SourceFiles(res.Merged[0], func(e *models.EncounterRecord) string { return e.SourceFile })
	assert.Equal(t, []string{"c.csv", "d.csv", "a.csv"}, files)
}

func TestDedupDiagnoses(t *testing.T) {
	yes := true
	mk := func(enc, code string, at *time.Time) *models.DiagnosisRecord {
		return &models.DiagnosisRecord{
			EncounterID: enc, CodeSystem: models.DefaultCodeSystem, DiagnosisCode: code,
			IsPrimary: &yes, RecordedAt: at, SourceFile: "dx.xml",
		}
	}

	late := mk("ENC-000002", "E11", ts(9))
	early := mk("ENC-000002", "E11", ts(3))
	undated := mk("ENC-000002", "E11", nil)
	exact := mk("ENC-000002", "E11", ts(3))
	other := mk("ENC-000001", "A00.1", ts(1))

	res, dropped := DedupDiagnoses([]*models.DiagnosisRecord{late, undated, early, exact, other})

	assert.Equal(t, 1, dropped)
	require.Len(t, res.Survivors, 2)
	assert.Same(t, other, res.Survivors[0])
	assert.Same(t, early, res.Survivors[1])
	assert.Equal(t, "DUP_DIAGNOSIS_MERGED", early.Flags.String())
	assert.Equal(t, "OK", other.Flags.String())
	assert.Equal(t, []*models.DiagnosisRecord{late, undated}, res.Removed)
}

func TestDedupEncounters_UnknownTypeStillCounts(t *testing.T) {
	untyped := &models.EncounterRecord{
		EncounterID: "ENC-000004", PatientID: "P-0001",
		AdmitAt: ts(1), DischargeAt: ts(5), EncounterType: "UNKNOWN", SourceFile: "a.csv",
	}
	typed := &models.EncounterRecord{
		EncounterID: "ENC-000004", PatientID: "P-0001",
		AdmitAt: ts(1), DischargeAt: ts(2), EncounterType: "INPATIENT", SourceFile: "a.csv",
	}
	assert.Equal(t, typed.Completeness(), untyped.Completeness())

	res := DedupEncounters([]*models.EncounterRecord{typed, untyped})

	require.Len(t, res.Survivors, 1)
	assert.Same(t, untyped, res.Survivors[0])
	assert.Equal(t, "DUP_ENCOUNTER_MERGED", untyped.Flags.String())
	require.Len(t, res.Removed, 1)
	assert.Same(t, typed, res.Removed[0])
	assert.True(t, typed.Flags.Has(models.FlagDedupSurvivorship))
}

func TestDedupDiagnoses_RawPrimarySpelling(t *testing.T) {
	yes := true
	mk := func(raw string) *models.DiagnosisRecord {
		return &models.DiagnosisRecord{
			EncounterID: "ENC-000002", CodeSystem: models.DefaultCodeSystem, DiagnosisCode: "E11",
			IsPrimary: &yes, IsPrimaryRaw: raw, RecordedAt: ts(3), SourceFile: "dx.xml",
		}
	}

	tests := []struct {
		name        string
		first       string
		second      string
		wantDropped int
		wantFlags   string
	}{
		{name: "same spelling is an exact duplicate", first: "true", second: "true", wantDropped: 1, wantFlags: "OK"},
		{name: "different spelling is merged", first: "yes", second: "true", wantDropped: 0, wantFlags: "DUP_DIAGNOSIS_MERGED"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			first, second := mk(tt.first), mk(tt.second)

			res, dropped := DedupDiagnoses([]*models.DiagnosisRecord{first, second})

			assert.Equal(t, tt.wantDropped, dropped)
			require.Len(t, res.Survivors, 1)
			assert.Same(t, first, res.Survivors[0])
			assert.Equal(t, tt.wantFlags, first.Flags.String())
		})
	}
}
