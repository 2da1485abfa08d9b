package models

import "time"

// RawPatient is one row of the patients feed as read from the source,
// with header names already mapped to fields.
type RawPatient struct {
	PatientID  string
	GivenName  string
	FamilyName string
	Sex        string
	DOB        string
	Height     string
	Weight     string
	SourceFile string
	Row        int
}

// PatientRecord is a normalized patient. Optional attributes are nil when
// the source value was missing or could not be interpreted.
type PatientRecord struct {
	PatientID  string
	GivenName  *string
	FamilyName *string
	Sex        *string
	DOB        *time.Time
	HeightCM   *float64
	WeightKG   *float64
	SourceFile string
	Flags      Flags
	Raw        RawPatient
}

var PatientCleanColumns = []string{
	"patient_id", "given_name", "family_name", "sex", "dob", "height", "weight", "qa_flags", "source_file",
}

// PatientRejectionColumns share the clean layout but carry the raw source values.
var PatientRejectionColumns = PatientCleanColumns

func (p *PatientRecord) CleanRow() []string {
	return []string{
		p.PatientID,
		FormatString(p.GivenName),
		FormatString(p.FamilyName),
		FormatString(p.Sex),
		FormatDate(p.DOB),
		FormatFloat(p.HeightCM),
		FormatFloat(p.WeightKG),
		p.Flags.String(),
		p.SourceFile,
	}
}

func (p *PatientRecord) RejectionRow() []string {
	return []string{
		p.Raw.PatientID,
		p.Raw.GivenName,
		p.Raw.FamilyName,
		p.Raw.Sex,
		p.Raw.DOB,
		p.Raw.Height,
		p.Raw.Weight,
		p.Flags.String(),
		p.SourceFile,
	}
}
