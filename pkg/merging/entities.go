package merging

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/fingerprint"
	"github.com/Ramsey-B/fern/pkg/models"
)

// PatientResolver keeps the first occurrence of each patient_id.
func PatientResolver() *Resolver[*models.PatientRecord] {
	return &Resolver[*models.PatientRecord]{
		Key: func(p *models.PatientRecord) string { return p.PatientID },
	}
}

// EncounterResolver ranks by valid dates, completeness, latest discharge,
// then source_file ascending.
func EncounterResolver() *Resolver[*models.EncounterRecord] {
	return &Resolver[*models.EncounterRecord]{
		Key: func(e *models.EncounterRecord) string { return e.EncounterID },
		Less: Rank(
			PreferTrue(func(e *models.EncounterRecord) bool { return !e.Flags.Has(models.FlagDischargeBefore) }),
			PreferHigher(func(e *models.EncounterRecord) int { return e.Completeness() }),
			PreferLater(func(e *models.EncounterRecord) *time.Time { return e.DischargeAt }),
			PreferLowerString(func(e *models.EncounterRecord) string { return e.SourceFile }),
		),
		SortByKey: true,
	}
}

// DiagnosisResolver keeps the earliest recording per (encounter_id, code).
func DiagnosisResolver() *Resolver[*models.DiagnosisRecord] {
	return &Resolver[*models.DiagnosisRecord]{
		Key: func(d *models.DiagnosisRecord) string { return d.Key() },
		Less: Rank(
			PreferEarlier(func(d *models.DiagnosisRecord) *time.Time { return d.RecordedAt }),
		),
		SortByKey: true,
	}
}

// DedupPatients returns the surviving patients and the later duplicates,
// which are tagged DUPLICATE_PATIENT_ID. Rows without an id are never
// treated as duplicates of each other.
func DedupPatients(records []*models.PatientRecord) (kept, duplicates []*models.PatientRecord) {
	withID := make([]*models.PatientRecord, 0, len(records))
	for _, p := range records {
		if p.PatientID != "" {
			withID = append(withID, p)
		}
	}

	res := PatientResolver().Resolve(withID)
	for _, p := range res.Removed {
		p.Flags.Add(models.FlagDuplicatePatientID)
	}

	removed := make(map[*models.PatientRecord]bool, len(res.Removed))
	for _, p := range res.Removed {
		removed[p] = true
	}
	for _, p := range records {
		if removed[p] {
			duplicates = append(duplicates, p)
			continue
		}
		kept = append(kept, p)
	}
	return kept, duplicates
}

// DedupEncounters resolves one survivor per encounter_id. Losers are tagged
// DEDUP_SURVIVORSHIP; survivors of contested keys get DUP_ENCOUNTER_MERGED.
func DedupEncounters(records []*models.EncounterRecord) Resolution[*models.EncounterRecord] {
	res := EncounterResolver().Resolve(records)
	for _, e := range res.Removed {
		e.Flags.Add(models.FlagDedupSurvivorship)
	}
	for _, e := range res.Survivors {
		if res.IsMerged(e.EncounterID) {
			e.Flags.Add(models.FlagDupEncounterMerged)
		}
	}
	return res
}

// DedupDiagnoses drops exact duplicates, then keeps the earliest recording
// per natural key. Losers are discarded, not logged.
func DedupDiagnoses(records []*models.DiagnosisRecord) (Resolution[*models.DiagnosisRecord], int) {
	unique, exact := DropExact(records, func(d *models.DiagnosisRecord) string {
		return fingerprint.Generate(d.Fingerprint())
	})

	res := DiagnosisResolver().Resolve(unique)
	for _, d := range res.Survivors {
		if res.IsMerged(d.Key()) {
			d.Flags.Add(models.FlagDupDiagnosisMerged)
		}
	}
	return res, exact
}

// SourceFiles lists the distinct source files across a group's members.
func SourceFiles[T any](group Group[T], source func(T) string) []string {
	seen := map[string]bool{}
	var out []string
	for _, m := range group.Members {
		s := source(m)
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}
