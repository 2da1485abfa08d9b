package patient

import (
	"database/sql"
	"fmt"

	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
)

const (
	patientsTable = "patients"
)

// PatientRow is the sink row for one clean patient.
type PatientRow struct {
	PatientID  string          `db:"patient_id"`
	GivenName  sql.NullString  `db:"given_name"`
	FamilyName sql.NullString  `db:"family_name"`
	Sex        sql.NullString  `db:"sex"`
	DOB        sql.NullTime    `db:"dob"`
	Height     sql.NullFloat64 `db:"height"`
	Weight     sql.NullFloat64 `db:"weight"`
	QAFlags    sql.NullString  `db:"qa_flags"`
	SourceFile sql.NullString  `db:"source_file"`
}

var patientStruct = database.NewStruct(new(PatientRow))

// FromCleanRecord converts one row of the patients clean artifact, keyed
// by column name.
func FromCleanRecord(rec map[string]string) (*PatientRow, error) {
	if rec["patient_id"] == "" {
		return nil, fmt.Errorf("patient_id is empty")
	}
	dob, err := database.NullTime(models.DateLayout, rec["dob"])
	if err != nil {
		return nil, fmt.Errorf("dob: %w", err)
	}
	height, err := database.NullFloat(rec["height"])
	if err != nil {
		return nil, fmt.Errorf("height: %w", err)
	}
	weight, err := database.NullFloat(rec["weight"])
	if err != nil {
		return nil, fmt.Errorf("weight: %w", err)
	}

	return &PatientRow{
		PatientID:  rec["patient_id"],
		GivenName:  database.NullString(rec["given_name"]),
		FamilyName: database.NullString(rec["family_name"]),
		Sex:        database.NullString(rec["sex"]),
		DOB:        dob,
		Height:     height,
		Weight:     weight,
		QAFlags:    database.NullString(rec["qa_flags"]),
		SourceFile: database.NullString(rec["source_file"]),
	}, nil
}
