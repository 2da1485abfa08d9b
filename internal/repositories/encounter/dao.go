package encounter

import (
	"database/sql"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	encountersTable = "encounters"
)

type EncounterRow struct {
	EncounterID     string         `db:"encounter_id"`
	PatientID       string         `db:"patient_id"`
	AdmitDT         sql.NullTime   `db:"admit_dt"`
	DischargeDT     sql.NullTime   `db:"discharge_dt"`
	EncounterType   sql.NullString `db:"encounter_type"`
	EncounterStatus sql.NullString `db:"encounter_status"`
	QAFlags         sql.NullString `db:"qa_flags"`
	SourceFile      sql.NullString `db:"source_file"`
}

var encounterStruct = database.NewStruct(new(EncounterRow))

// FromCleanRecord converts one row of the encounters clean artifact.
func FromCleanRecord(rec map[string]string) (*EncounterRow, error) {
	if rec["encounter_id"] == "" {
		return nil, fmt.Errorf("encounter_id is empty")
	}
	if rec["patient_id"] == "" {
		return nil, fmt.Errorf("encounter %s has no patient_id", rec["encounter_id"])
	}
	admit, err := database.NullTime(models.TimestampLayout, rec["admit_dt"])
	if err != nil {
		return nil, fmt.Errorf("admit_dt: %w", err)
	}
	discharge, err := database.NullTime(models.TimestampLayout, rec["discharge_dt"])
	if err != nil {
		return nil, fmt.Errorf("discharge_dt: %w", err)
	}

	return &EncounterRow{
		EncounterID:     rec["encounter_id"],
		PatientID:       rec["patient_id"],
		AdmitDT:         admit,
		DischargeDT:     discharge,
		EncounterType:   database.NullString(rec["encounter_type"]),
		EncounterStatus: database.NullString(rec["encounter_status"]),
		QAFlags:         database.NullString(rec["qa_flags"]),
		SourceFile:      database.NullString(rec["source_file"]),
	}, nil
}
