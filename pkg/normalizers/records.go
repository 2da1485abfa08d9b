package normalizers

import (
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
)

// NormalizePatient builds a typed patient from a raw row. Flags are left
// empty for the validation step.
func NormalizePatient(r *rules.Rules, raw models.RawPatient) *models.PatientRecord {
	return &models.PatientRecord{
		PatientID:  PatientID(r, raw.PatientID),
		GivenName:  Name(r, raw.GivenName),
		FamilyName: Name(r, raw.FamilyName),
		Sex:        Sex(r, raw.Sex),
		DOB:        StandardizeDate(r, raw.DOB),
		HeightCM:   HeightToCM(r, raw.Height),
		WeightKG:   WeightToKG(r, raw.Weight),
		SourceFile: BaseName(raw.SourceFile),
		Flags:      models.Flags{},
		Raw:        raw,
	}
}

func NormalizeEncounter(r *rules.Rules, raw models.RawEncounter) *models.EncounterRecord {
	return &models.EncounterRecord{
		EncounterID:   EncounterID(r, raw.EncounterID),
		PatientID:     PatientID(r, raw.PatientID),
		AdmitAt:       ParseTimestamp(r, raw.AdmitDT),
		DischargeAt:   ParseTimestamp(r, raw.DischargeDT),
		EncounterType: EncounterType(r, raw.EncounterType),
		SourceFile:    BaseName(raw.SourceFile),
		Flags:         models.Flags{},
		Raw:           raw,
	}
}

func NormalizeDiagnosis(r *rules.Rules, raw models.RawDiagnosis) *models.DiagnosisRecord {
	recordedAtRaw := ""
	if !r.IsMissing(raw.RecordedAt) {
		recordedAtRaw = raw.RecordedAt
	}
	return &models.DiagnosisRecord{
		EncounterID:   EncounterID(r, raw.EncounterID),
		CodeSystem:    CodeSystem(r, raw.CodeSystem),
		DiagnosisCode: Code(r, raw.Code),
		IsPrimary:     Bool(r, raw.IsPrimary),
		IsPrimaryRaw:  raw.IsPrimary,
		RecordedAt:    ParseTimestamp(r, raw.RecordedAt),
		RecordedAtRaw: recordedAtRaw,
		SourceFile:    BaseName(raw.SourceFile),
		Flags:         models.Flags{},
		Row:           raw.Row,
	}
}
