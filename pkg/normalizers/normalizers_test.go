package normalizers

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
)

func TestRegistry(t *testing.T) {
	fn, ok := Get("title")
	require.True(t, ok)
	assert.Equal(t, "Mary-Jane", fn("mARY-jane"))

	assert.Equal(t, "value", Apply("value", "does_not_exist"))
	assert.Equal(t, "Ann Lee", ApplyChain("  ann    LEE ", "collapse_whitespace", "title"))

	Register("exclaim", func(s string) string { return s + "!" })
	assert.Equal(t, "x!", Apply("x", "exclaim"))
}

func TestTitleCase(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"john", "John"},
		{"o'brien", "O'Brien"},
		{"DE LA CRUZ", "De La Cruz"},
		{"mcdonald2nd", "Mcdonald2Nd"},
		{"", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			assert.Equal(t, test.expected, TitleCase(test.input))
		})
	}
}

func TestBaseName(t *testing.T) {
	assert.Equal(t, "encounters.csv", BaseName("/data/raw/encounters.csv"))
	assert.Equal(t, "encounters.csv", BaseName(`C:\feeds\encounters.csv`))
	assert.Equal(t, "encounters.csv", BaseName("encounters.csv"))
	assert.Equal(t, "", BaseName("  "))
}

func TestCanonicalID(t *testing.T) {
	tests := []struct {
		name     string
		prefix   string
		width    int
		input    string
		expected string
	}{
		{"padded patient", "P", 4, "p12", "P-0012"},
		{"patient with space", "P", 4, " P 7 ", "P-0007"},
		{"patient underscore", "P", 4, "P_0042", "P-0042"},
		{"already canonical", "P", 4, "P-0042", "P-0042"},
		{"encounter", "ENC", 6, "enc-123", "ENC-000123"},
		{"encounter no separator", "ENC", 6, "ENC99", "ENC-000099"},
		{"unmatched passes through", "ENC", 6, "visit-1", "VISIT-1"},
		{"empty", "P", 4, "", ""},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			pattern := rules.IDPattern(test.prefix)
			got := CanonicalID(pattern, test.prefix, test.width, test.input)
			assert.Equal(t, test.expected, got)
			assert.Equal(t, got, CanonicalID(pattern, test.prefix, test.width, got), "must be idempotent")
		})
	}
}

func TestPatientID_ConfiguredPrefix(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte("patient_id_prefix: MRN\npatient_id_width: 5\n"), 0o644))
	r, err := rules.Load(path)
	require.NoError(t, err)

	assert.Equal(t, "MRN-00012", PatientID(r, "mrn_12"))
	assert.Equal(t, "P12", PatientID(r, "p12"))
	assert.Equal(t, "", PatientID(r, "NA"))
}

func TestStandardizeDate(t *testing.T) {
	r := rules.Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"1980-05-17", "1980-05-17"},
		{"05/17/1980", "1980-05-17"},
		{"5/7/1980", "1980-05-07"},
		{"17-05-1980", "1980-05-17"},
		{"1980/05/17", "1980-05-17"},
		{"May 17 1980", ""},
		{"NA", ""},
		{"", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			got := StandardizeDate(r, test.input)
			assert.Equal(t, test.expected, models.FormatDate(got))
			if got != nil {
				again := StandardizeDate(r, models.FormatDate(got))
				require.NotNil(t, again)
				assert.True(t, got.Equal(*again))
			}
		})
	}
}

func TestParseTimestamp(t *testing.T) {
	r := rules.Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"2024-03-01T08:30:00Z", "2024-03-01T08:30:00Z"},
		{"2024-03-01T10:30:00+02:00", "2024-03-01T08:30:00Z"},
		{"2024-03-01 08:30", "2024-03-01T08:30:00Z"},
		{"2024-03-01", "2024-03-01T00:00:00Z"},
		{"03/01/2024 08:30", "2024-03-01T08:30:00Z"},
		{"01-03-2024 08:30", "2024-03-01T08:30:00Z"},
		{"not a date", ""},
		{"null", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			assert.Equal(t, test.expected, models.FormatTimestamp(ParseTimestamp(r, test.input)))
		})
	}
}

func TestHeightToCM(t *testing.T) {
	r := rules.Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"5ft 10in", "177.8"},
		{"6 feet", "182.9"},
		{"70 in", "177.8"},
		{"70 inches", "177.8"},
		{"172", "172.0"},
		{"172.46 cm", "172.5"},
		{"tall", ""},
		{"N/A", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			assert.Equal(t, test.expected, models.FormatFloat(HeightToCM(r, test.input)))
		})
	}
}

func TestWeightToKG(t *testing.T) {
	r := rules.Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"150 lb", "68.0"},
		{"150 lbs", "68.0"},
		{"200 pounds", "90.7"},
		{"72.5", "72.5"},
		{"72.5 kg", "72.5"},
		{"heavy", ""},
		{"", ""},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			assert.Equal(t, test.expected, models.FormatFloat(WeightToKG(r, test.input)))
		})
	}
}

func TestHeightWeight_Idempotent(t *testing.T) {
	r := rules.Default()

	h := HeightToCM(r, "5ft 10in")
	require.NotNil(t, h)
	assert.Equal(t, *h, *HeightToCM(r, models.FormatFloat(h)))

	w := WeightToKG(r, "150 lb")
	require.NotNil(t, w)
	assert.Equal(t, *w, *WeightToKG(r, models.FormatFloat(w)))
}

func TestSex(t *testing.T) {
	r := rules.Default()

	assert.Equal(t, "M", models.FormatString(Sex(r, "male")))
	assert.Equal(t, "F", models.FormatString(Sex(r, " Female ")))
	assert.Equal(t, "U", models.FormatString(Sex(r, "unknown")))
	assert.Equal(t, "F", models.FormatString(Sex(r, "f")))
	assert.Equal(t, "X", models.FormatString(Sex(r, "x")))
	assert.Nil(t, Sex(r, "NULL"))
}

func TestEncounterType(t *testing.T) {
	r := rules.Default()

	tests := []struct {
		input    string
		expected string
	}{
		{"IP", models.EncounterTypeInpatient},
		{"Inpatient", models.EncounterTypeInpatient},
		{"op", models.EncounterTypeOutpatient},
		{"ER", models.EncounterTypeED},
		{"emergency", models.EncounterTypeED},
		{"telehealth", models.EncounterTypeUnknown},
		{"", models.EncounterTypeUnknown},
		{"N/A", models.EncounterTypeUnknown},
	}

	for _, test := range tests {
		t.Run(test.input, func(t *testing.T) {
			assert.Equal(t, test.expected, EncounterType(r, test.input))
		})
	}
}

func TestBool(t *testing.T) {
	r := rules.Default()

	for _, s := range []string{"true", "TRUE", "1", "yes"} {
		b := Bool(r, s)
		require.NotNil(t, b, s)
		assert.True(t, *b, s)
	}
	for _, s := range []string{"false", "0", "No"} {
		b := Bool(r, s)
		require.NotNil(t, b, s)
		assert.False(t, *b, s)
	}
	assert.Nil(t, Bool(r, "maybe"))
	assert.Nil(t, Bool(r, ""))
}

func TestNormalizePatient(t *testing.T) {
	r := rules.Default()

	p := NormalizePatient(r, models.RawPatient{
		PatientID:  " p12 ",
		GivenName:  "  jane ",
		FamilyName: "DOE",
		Sex:        "female",
		DOB:        "05/17/1980",
		Height:     "5ft 10in",
		Weight:     "150 lb",
		SourceFile: "/data/raw/patients.csv",
	})

	assert.Equal(t, "P-0012", p.PatientID)
	assert.Equal(t, "Jane", *p.GivenName)
	assert.Equal(t, "Doe", *p.FamilyName)
	assert.Equal(t, "F", *p.Sex)
	assert.Equal(t, time.Date(1980, 5, 17, 0, 0, 0, 0, time.UTC), *p.DOB)
	assert.Equal(t, 177.8, *p.HeightCM)
	assert.Equal(t, 68.0, *p.WeightKG)
	assert.Equal(t, "patients.csv", p.SourceFile)
	assert.Empty(t, p.Flags)
}

func TestNormalizeEncounter(t *testing.T) {
	r := rules.Default()

	e := NormalizeEncounter(r, models.RawEncounter{
		EncounterID:   "enc 17",
		PatientID:     "P3",
		AdmitDT:       "2024-03-01 08:00",
		DischargeDT:   "",
		EncounterType: "er",
		SourceFile:    "feeds/encounters.csv",
	})

	assert.Equal(t, "ENC-000017", e.EncounterID)
	assert.Equal(t, "P-0003", e.PatientID)
	assert.Equal(t, "2024-03-01T08:00:00Z", models.FormatTimestamp(e.AdmitAt))
	assert.Nil(t, e.DischargeAt)
	assert.Equal(t, models.EncounterTypeED, e.EncounterType)
	assert.Equal(t, models.EncounterStatusOpen, e.Status())
	assert.Equal(t, "encounters.csv", e.SourceFile)
	assert.Equal(t, 3, e.Completeness())

	e = NormalizeEncounter(r, models.RawEncounter{
		EncounterID: "ENC-000018",
		PatientID:   "P-0003",
		AdmitDT:     "2024-03-01 08:00",
		DischargeDT: "2024-03-05 08:00",
	})
	assert.Equal(t, models.EncounterTypeUnknown, e.EncounterType)
	assert.Equal(t, 4, e.Completeness())
}

func TestNormalizeDiagnosis(t *testing.T) {
	r := rules.Default()

	d := NormalizeDiagnosis(r, models.RawDiagnosis{
		EncounterID: "ENC_5",
		Code:        "a00.1",
		IsPrimary:   "yes",
		RecordedAt:  "2024-03-02T09:00:00Z",
		SourceFile:  "diagnoses.xml",
	})

	assert.Equal(t, "ENC-000005", d.EncounterID)
	assert.Equal(t, models.DefaultCodeSystem, d.CodeSystem)
	assert.Equal(t, "A00.1", d.DiagnosisCode)
	require.NotNil(t, d.IsPrimary)
	assert.True(t, *d.IsPrimary)
	assert.Equal(t, "yes", d.IsPrimaryRaw)
	assert.Equal(t, "2024-03-02T09:00:00Z", models.FormatTimestamp(d.RecordedAt))
	assert.Equal(t, "2024-03-02T09:00:00Z", d.RecordedAtRaw)

	d = NormalizeDiagnosis(r, models.RawDiagnosis{CodeSystem: "snomed", Code: "123", RecordedAt: "NA"})
	assert.Equal(t, "SNOMED", d.CodeSystem)
	assert.Nil(t, d.RecordedAt)
	assert.Equal(t, "", d.RecordedAtRaw)
}
