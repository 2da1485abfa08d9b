package validation

import (
	"github.com/Ramsey-B/fern/pkg/models"
)

// Patient conditions.

func missingPatientID(p *models.PatientRecord, _ Env) bool {
	return p.PatientID == ""
}

func missingDOB(p *models.PatientRecord, env Env) bool {
	return p.DOB == nil && env.Rules.IsMissing(p.Raw.DOB)
}

// invalidDOB fires when a value was supplied but no date layout accepted it.
func invalidDOB(p *models.PatientRecord, env Env) bool {
	return p.DOB == nil && !env.Rules.IsMissing(p.Raw.DOB)
}

func futureDOB(p *models.PatientRecord, env Env) bool {
	return p.DOB != nil && p.DOB.After(env.Now)
}

func ageOverMax(p *models.PatientRecord, env Env) bool {
	return p.DOB != nil && ageYears(*p.DOB, env.Now) > env.Rules.MaxAgeYears
}

func missingHeight(p *models.PatientRecord, _ Env) bool {
	return p.HeightCM == nil
}

func missingWeight(p *models.PatientRecord, _ Env) bool {
	return p.WeightKG == nil
}

func heightOutlier(p *models.PatientRecord, env Env) bool {
	return p.HeightCM != nil && !env.Rules.HeightCM.Contains(*p.HeightCM)
}

func weightOutlier(p *models.PatientRecord, env Env) bool {
	return p.WeightKG != nil && !env.Rules.WeightKG.Contains(*p.WeightKG)
}

func missingSex(p *models.PatientRecord, _ Env) bool {
	return p.Sex == nil
}

func invalidSex(p *models.PatientRecord, env Env) bool {
	return p.Sex != nil && !env.Rules.SexAllowed(*p.Sex)
}

// PatientRules is the patient rule set. Duplicate detection is handled by
// the dedup step, not here.
func PatientRules() *RuleSet[*models.PatientRecord] {
	return &RuleSet[*models.PatientRecord]{
		Entity: models.EntityPatients,
		Rules: []Rule[*models.PatientRecord]{
			{Flag: models.FlagMissingPatientID, Condition: missingPatientID},
			{Flag: models.FlagMissingDOB, Condition: missingDOB},
			{Flag: models.FlagInvalidDOB, Condition: invalidDOB},
			{Flag: models.FlagFutureDOB, Condition: futureDOB},
			{Flag: models.FlagAgeOver120, Condition: ageOverMax},
			{Flag: models.FlagMissingHeight, Condition: missingHeight},
			{Flag: models.FlagMissingWeight, Condition: missingWeight},
			{Flag: models.FlagHeightOutlier, Condition: heightOutlier},
			{Flag: models.FlagWeightOutlier, Condition: weightOutlier},
			{Flag: models.FlagMissingSex, Condition: missingSex},
			{Flag: models.FlagInvalidSex, Condition: invalidSex},
		},
	}
}

// Encounter conditions.

func missingEncounterID(e *models.EncounterRecord, _ Env) bool {
	return e.EncounterID == ""
}

func missingAdmit(e *models.EncounterRecord, _ Env) bool {
	return e.AdmitAt == nil
}

func missingDischarge(e *models.EncounterRecord, _ Env) bool {
	return e.DischargeAt == nil
}

func dischargeBeforeAdmit(e *models.EncounterRecord, _ Env) bool {
	return e.AdmitAt != nil && e.DischargeAt != nil && e.DischargeAt.Before(*e.AdmitAt)
}

func EncounterRules() *RuleSet[*models.EncounterRecord] {
	return &RuleSet[*models.EncounterRecord]{
		Entity: models.EntityEncounters,
		Rules: []Rule[*models.EncounterRecord]{
			{Flag: models.FlagMissingEncounterID, Condition: missingEncounterID},
			{Flag: models.FlagMissingAdmit, Condition: missingAdmit},
			{Flag: models.FlagMissingDischarge, Condition: missingDischarge},
			{Flag: models.FlagDischargeBefore, Condition: dischargeBeforeAdmit},
		},
	}
}

// Diagnosis conditions.

func diagnosisMissingEncounter(d *models.DiagnosisRecord, _ Env) bool {
	return d.EncounterID == ""
}

func diagnosisInvalidEncounter(d *models.DiagnosisRecord, env Env) bool {
	return d.EncounterID != "" && !env.Rules.ValidEncounterID(d.EncounterID)
}

func missingCode(d *models.DiagnosisRecord, _ Env) bool {
	return d.DiagnosisCode == ""
}

func invalidCode(d *models.DiagnosisRecord, env Env) bool {
	return d.DiagnosisCode != "" && !env.Rules.ValidDiagnosisCode(d.DiagnosisCode)
}

func missingIsPrimary(d *models.DiagnosisRecord, _ Env) bool {
	return d.IsPrimary == nil
}

func invalidDate(d *models.DiagnosisRecord, _ Env) bool {
	return d.RecordedAtRaw != "" && d.RecordedAt == nil
}

func futureDate(d *models.DiagnosisRecord, env Env) bool {
	return d.RecordedAt != nil && d.RecordedAt.After(env.Now)
}

func DiagnosisRules() *RuleSet[*models.DiagnosisRecord] {
	return &RuleSet[*models.DiagnosisRecord]{
		Entity: models.EntityDiagnoses,
		Rules: []Rule[*models.DiagnosisRecord]{
			{Flag: models.FlagMissingEncounterID, Condition: diagnosisMissingEncounter},
			{Flag: models.FlagInvalidEncounterID, Condition: diagnosisInvalidEncounter},
			{Flag: models.FlagMissingCode, Condition: missingCode},
			{Flag: models.FlagInvalidCode, Condition: invalidCode},
			{Flag: models.FlagMissingIsPrimary, Condition: missingIsPrimary},
			{Flag: models.FlagInvalidDate, Condition: invalidDate},
			{Flag: models.FlagFutureDate, Condition: futureDate},
		},
	}
}
