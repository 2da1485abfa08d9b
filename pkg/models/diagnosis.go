package models

import "time"

const DefaultCodeSystem = "ICD-10"

type RawDiagnosis struct {
	EncounterID string
	CodeSystem  string
	Code        string
	IsPrimary   string
	RecordedAt  string
	SourceFile  string
	Row         int
}

type DiagnosisRecord struct {
	EncounterID   string
	CodeSystem    string
	DiagnosisCode string
	IsPrimary     *bool
	IsPrimaryRaw  string
	RecordedAt    *time.Time
	RecordedAtRaw string
	SourceFile    string
	Flags         Flags
	Row           int
}

// Key is the natural key (encounter_id, diagnosis_code).
func (d *DiagnosisRecord) Key() string {
	return d.EncounterID + "\x1f" + d.DiagnosisCode
}

var DiagnosisCleanColumns = []string{
	"encounter_id", "code_system", "diagnosis_code", "is_primary", "recorded_at", "qa_flags", "source_file",
}

var DiagnosisRejectionColumns = []string{
	"encounter_id", "code_system", "diagnosis_code", "is_primary", "recorded_at_raw", "recorded_at", "qa_flags", "source_file",
}

func (d *DiagnosisRecord) CleanRow() []string {
	return []string{
		d.EncounterID,
		d.CodeSystem,
		d.DiagnosisCode,
		FormatBool(d.IsPrimary),
		FormatTimestamp(d.RecordedAt),
		d.Flags.String(),
		d.SourceFile,
	}
}

func (d *DiagnosisRecord) RejectionRow() []string {
	return []string{
		d.EncounterID,
		d.CodeSystem,
		d.DiagnosisCode,
		FormatBool(d.IsPrimary),
		d.RecordedAtRaw,
		FormatTimestamp(d.RecordedAt),
		d.Flags.String(),
		d.SourceFile,
	}
}

// Fingerprint returns the fields that identify an exact duplicate row.
// is_primary is compared as read, so "yes" and "true" are distinct rows.
func (d *DiagnosisRecord) Fingerprint() map[string]any {
	return map[string]any{
		"encounter_id":    d.EncounterID,
		"code_system":     d.CodeSystem,
		"diagnosis_code":  d.DiagnosisCode,
		"is_primary":      d.IsPrimaryRaw,
		"recorded_at":     FormatTimestamp(d.RecordedAt),
		"recorded_at_raw": d.RecordedAtRaw,
		"source_file":     d.SourceFile,
		"qa_flags":        d.Flags.String(),
	}
}
