package models

import "strings"

// Entity identifies one of the feeds the pipeline cleans.
type Entity string

const (
	EntityPatients   Entity = "patients"
	EntityEncounters Entity = "encounters"
	EntityDiagnoses  Entity = "diagnoses"
)

// Flag is a single data-quality finding attached to a record.
type Flag string

const (
	FlagMissingPatientID    Flag = "MISSING_PATIENT_ID"
	FlagDuplicatePatientID  Flag = "DUPLICATE_PATIENT_ID"
	FlagMissingDOB          Flag = "MISSING_DOB"
	FlagInvalidDOB          Flag = "INVALID_DOB"
	FlagFutureDOB           Flag = "FUTURE_DOB"
	FlagAgeOver120          Flag = "AGE_GT_120Y"
	FlagMissingHeight       Flag = "MISSING_HEIGHT"
	FlagMissingWeight       Flag = "MISSING_WEIGHT"
	FlagHeightOutlier       Flag = "HEIGHT_OUTLIER"
	FlagWeightOutlier       Flag = "WEIGHT_OUTLIER"
	FlagMissingSex          Flag = "MISSING_SEX"
	FlagInvalidSex          Flag = "INVALID_SEX"
	FlagMissingEncounterID  Flag = "MISSING_ENCOUNTER_ID"
	FlagInvalidEncounterID  Flag = "INVALID_ENCOUNTER_ID"
	FlagMissingAdmit        Flag = "MISSING_ADMIT"
	FlagMissingDischarge    Flag = "MISSING_DISCHARGE"
	FlagDischargeBefore     Flag = "DISCHARGE_BEFORE_ADMIT"
	FlagDedupSurvivorship   Flag = "DEDUP_SURVIVORSHIP"
	FlagDupEncounterMerged  Flag = "DUP_ENCOUNTER_MERGED"
	FlagMissingCode         Flag = "MISSING_CODE"
	FlagInvalidCode         Flag = "INVALID_CODE"
	FlagMissingIsPrimary    Flag = "MISSING_ISPRIMARY"
	FlagInvalidDate         Flag = "INVALID_DATE"
	FlagFutureDate          Flag = "FUTURE_DATE"
	FlagDupDiagnosisMerged  Flag = "DUP_DIAGNOSIS_MERGED"
	FlagForeignKeyViolation Flag = "FK_VIOLATION"
)

// FlagsOK is the rendering of a record with no findings.
const FlagsOK = "OK"

const flagSeparator = "|"

// fatalFlags lists, per entity, the flags that exclude a record from the clean artifact.
var fatalFlags = map[Entity]map[Flag]bool{
	EntityPatients: {
		FlagMissingPatientID:   true,
		FlagDuplicatePatientID: true,
	},
	EntityEncounters: {
		FlagMissingEncounterID:  true,
		FlagDischargeBefore:     true,
		FlagDedupSurvivorship:   true,
		FlagForeignKeyViolation: true,
	},
	EntityDiagnoses: {
		FlagMissingEncounterID:  true,
		FlagInvalidEncounterID:  true,
		FlagInvalidCode:         true,
		FlagFutureDate:          true,
		FlagForeignKeyViolation: true,
	},
}

// IsFatal reports whether flag excludes a record of the given entity.
func IsFatal(entity Entity, flag Flag) bool {
	return fatalFlags[entity][flag]
}

// Flags is an ordered set of findings. Insertion order is preserved and a
// flag is recorded at most once.
type Flags []Flag

// Add appends flag unless it is already present.
func (f *Flags) Add(flag Flag) {
	if f.Has(flag) {
		return
	}
	*f = append(*f, flag)
}

func (f Flags) Has(flag Flag) bool {
	for _, existing := range f {
		if existing == flag {
			return true
		}
	}
	return false
}

// Fatal reports whether any flag is fatal for entity.
func (f Flags) Fatal(entity Entity) bool {
	for _, flag := range f {
		if IsFatal(entity, flag) {
			return true
		}
	}
	return false
}

func (f Flags) Clone() Flags {
	if f == nil {
		return nil
	}
	out := make(Flags, len(f))
	copy(out, f)
	return out
}

// String renders the flags for output. An empty set renders as OK.
func (f Flags) String() string {
	if len(f) == 0 {
		return FlagsOK
	}
	parts := make([]string, len(f))
	for i, flag := range f {
		parts[i] = string(flag)
	}
	return strings.Join(parts, flagSeparator)
}

// ParseFlags reads a rendered flag string back into a set.
func ParseFlags(s string) Flags {
	s = strings.TrimSpace(s)
	if s == "" || s == FlagsOK {
		return Flags{}
	}
	flags := Flags{}
	for _, part := range strings.Split(s, flagSeparator) {
		part = strings.TrimSpace(part)
		if part == "" || part == FlagsOK {
			continue
		}
		flags.Add(Flag(part))
	}
	return flags
}
