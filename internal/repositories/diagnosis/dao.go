package diagnosis

import (
	"database/sql"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	diagnosesTable = "diagnoses"
)

// DiagnosisRow omits the surrogate id, which the sink assigns.
type DiagnosisRow struct {
	EncounterID   string         `db:"encounter_id"`
	CodeSystem    sql.NullString `db:"code_system"`
	DiagnosisCode sql.NullString `db:"diagnosis_code"`
	IsPrimary     sql.NullBool   `db:"is_primary"`
	RecordedAt    sql.NullTime   `db:"recorded_at"`
	QAFlags       sql.NullString `db:"qa_flags"`
	SourceFile    sql.NullString `db:"source_file"`
}

var diagnosisStruct = database.NewStruct(new(DiagnosisRow))

// FromCleanRecord converts one row of the diagnoses clean artifact.
func FromCleanRecord(rec map[string]string) (*DiagnosisRow, error) {
	if rec["encounter_id"] == "" {
		return nil, fmt.Errorf("encounter_id is empty")
	}
	primary, err := database.NullBool(rec["is_primary"])
	if err != nil {
		return nil, fmt.Errorf("is_primary: %w", err)
	}
	recorded, err := database.NullTime(models.TimestampLayout, rec["recorded_at"])
	if err != nil {
		return nil, fmt.Errorf("recorded_at: %w", err)
	}

	return &DiagnosisRow{
		EncounterID:   rec["encounter_id"],
		CodeSystem:    database.NullString(rec["code_system"]),
		DiagnosisCode: database.NullString(rec["diagnosis_code"]),
		IsPrimary:     primary,
		RecordedAt:    recorded,
		QAFlags:       database.NullString(rec["qa_flags"]),
		SourceFile:    database.NullString(rec["source_file"]),
	}, nil
}
