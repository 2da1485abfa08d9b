package models

import "time"

const (
	EncounterStatusOpen   = "OPEN"
	EncounterStatusClosed = "CLOSED"

	EncounterTypeInpatient  = "INPATIENT"
	EncounterTypeOutpatient = "OUTPATIENT"
	EncounterTypeED         = "ED"
	EncounterTypeUnknown    = "UNKNOWN"
)

type RawEncounter struct {
	EncounterID   string
	PatientID     string
	AdmitDT       string
	DischargeDT   string
	EncounterType string
	SourceFile    string
	Row           int
}

type EncounterRecord struct {
	EncounterID string
	PatientID   string
	AdmitAt     *time.Time
	DischargeAt *time.Time
	// EncounterType is never empty once normalized; a missing type is UNKNOWN.
	EncounterType string
	SourceFile    string
	Flags         Flags
	Raw           RawEncounter
}

// Status is derived from the discharge timestamp.
func (e *EncounterRecord) Status() string {
	if e.DischargeAt == nil {
		return EncounterStatusOpen
	}
	return EncounterStatusClosed
}

// Completeness counts the populated survivorship attributes. The type
// counts whenever it is set, UNKNOWN included.
func (e *EncounterRecord) Completeness() int {
	n := 0
	if e.AdmitAt != nil {
		n++
	}
	if e.DischargeAt != nil {
		n++
	}
	if e.EncounterType != "" {
		n++
	}
	if e.PatientID != "" {
		n++
	}
	return n
}

var EncounterCleanColumns = []string{
	"encounter_id", "patient_id", "admit_dt", "discharge_dt", "encounter_type", "encounter_status", "qa_flags", "source_file",
}

var EncounterRejectionColumns = []string{
	"encounter_id", "patient_id", "encounter_type", "admit_dt_raw", "discharge_dt_raw", "admit_dt", "discharge_dt", "qa_flags", "source_file",
}

func (e *EncounterRecord) CleanRow() []string {
	return []string{
		e.EncounterID,
		e.PatientID,
		FormatTimestamp(e.AdmitAt),
		FormatTimestamp(e.DischargeAt),
		e.EncounterType,
		e.Status(),
		e.Flags.String(),
		e.SourceFile,
	}
}

func (e *EncounterRecord) RejectionRow() []string {
	return []string{
		e.EncounterID,
		e.PatientID,
		e.EncounterType,
		e.Raw.AdmitDT,
		e.Raw.DischargeDT,
		FormatTimestamp(e.AdmitAt),
		FormatTimestamp(e.DischargeAt),
		e.Flags.String(),
		e.SourceFile,
	}
}
