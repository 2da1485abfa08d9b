// Package rules holds the configuration that drives normalization and quality
// flagging. A Rules value is built once per run and never mutated.
package rules

import (
	"fmt"
	"os"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

// Range is an inclusive plausibility window.
type Range struct {
	Min float64 `yaml:"min"`
	Max float64 `yaml:"max"`
}

func (r Range) Contains(v float64) bool {
	return v >= r.Min && v <= r.Max
}

type Rules struct {
	MissingTokens     []string          `yaml:"missing_tokens"`
	DateFormats       []string          `yaml:"date_formats"`
	TimestampFormats  []string          `yaml:"timestamp_formats"`
	SexSynonyms       map[string]string `yaml:"sex_synonyms"`
	AllowedSex        []string          `yaml:"allowed_sex"`
	EncounterTypes    map[string]string `yaml:"encounter_types"`
	TrueTokens        []string          `yaml:"true_tokens"`
	FalseTokens       []string          `yaml:"false_tokens"`
	HeightCM          Range             `yaml:"height_cm"`
	WeightKG          Range             `yaml:"weight_kg"`
	MaxAgeYears       float64           `yaml:"max_age_years"`
	DiagnosisPattern  string            `yaml:"diagnosis_pattern"`
	EncounterPattern  string            `yaml:"encounter_pattern"`
	PatientIDPrefix   string            `yaml:"patient_id_prefix"`
	PatientIDWidth    int               `yaml:"patient_id_width"`
	EncounterIDPrefix string            `yaml:"encounter_id_prefix"`
	EncounterIDWidth  int               `yaml:"encounter_id_width"`

	missing       map[string]bool
	diagnosisRx   *regexp.Regexp
	encounterRx   *regexp.Regexp
	patientIDRx   *regexp.Regexp
	encounterIDRx *regexp.Regexp
}

// Default returns the rule set used when no override file is configured.
func Default() *Rules {
	r := &Rules{
		MissingTokens: []string{"", "na", "n/a", "null"},
		DateFormats: []string{
			"2006-1-2",
			"1/2/2006",
			"2-1-2006",
			"2006/1/2",
		},
		TimestampFormats: []string{
			"2006-1-2T15:04:05Z07:00",
			"2006-1-2T15:04:05",
			"2006-1-2 15:04:05",
			"2006-1-2T15:04",
			"2006-1-2 15:04",
			"2006-1-2",
			"1/2/2006 15:04:05",
			"1/2/2006 15:04",
			"1/2/2006",
			"1/2/06 15:04",
			"1/2/06",
			"2-1-2006 15:04:05",
			"2-1-2006 15:04",
			"2-1-2006",
			"2-1-06",
			"2006/1/2 15:04:05",
			"2006/1/2 15:04",
			"2006/1/2",
		},
		SexSynonyms: map[string]string{
			"MALE":    "M",
			"FEMALE":  "F",
			"UNKNOWN": "U",
		},
		AllowedSex: []string{"M", "F", "O", "U"},
		EncounterTypes: map[string]string{
			"ip":         "INPATIENT",
			"inpatient":  "INPATIENT",
			"op":         "OUTPATIENT",
			"outpatient": "OUTPATIENT",
			"ed":         "ED",
			"er":         "ED",
			"emergency":  "ED",
		},
		TrueTokens:        []string{"true", "1", "yes"},
		FalseTokens:       []string{"false", "0", "no"},
		HeightCM:          Range{Min: 40, Max: 250},
		WeightKG:          Range{Min: 3, Max: 300},
		MaxAgeYears:       120,
		DiagnosisPattern:  `^[A-Z][0-9]{2}(?:\.[0-9A-Z]{1,4})?$`,
		EncounterPattern:  `^ENC-\d{6}$`,
		PatientIDPrefix:   "P",
		PatientIDWidth:    4,
		EncounterIDPrefix: "ENC",
		EncounterIDWidth:  6,
	}
	if err := r.compile(); err != nil {
		panic(err)
	}
	return r
}

// Load reads overrides from a YAML file on top of the defaults. Keys absent
// from the file keep their default values.
func Load(path string) (*Rules, error) {
	r := Default()
	if path == "" {
		return r, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}
	if err := yaml.Unmarshal(data, r); err != nil {
		return nil, fmt.Errorf("parse rules file %s: %w", path, err)
	}
	if err := r.compile(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Rules) compile() error {
	r.missing = make(map[string]bool, len(r.MissingTokens))
	for _, token := range r.MissingTokens {
		r.missing[strings.ToLower(strings.TrimSpace(token))] = true
	}

	var err error
	r.diagnosisRx, err = regexp.Compile("(?i)" + r.DiagnosisPattern)
	if err != nil {
		return fmt.Errorf("invalid diagnosis_pattern: %w", err)
	}
	r.encounterRx, err = regexp.Compile("(?i)" + r.EncounterPattern)
	if err != nil {
		return fmt.Errorf("invalid encounter_pattern: %w", err)
	}
	r.patientIDRx = IDPattern(r.PatientIDPrefix)
	r.encounterIDRx = IDPattern(r.EncounterIDPrefix)

	if r.HeightCM.Min > r.HeightCM.Max || r.WeightKG.Min > r.WeightKG.Max {
		return fmt.Errorf("plausibility ranges must have min <= max")
	}
	return nil
}

// IsMissing reports whether s is a missing-value token once trimmed.
// Whitespace-only values always count as missing.
func (r *Rules) IsMissing(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return true
	}
	return r.missing[strings.ToLower(s)]
}

func (r *Rules) ValidDiagnosisCode(code string) bool {
	return r.diagnosisRx.MatchString(code)
}

func (r *Rules) ValidEncounterID(id string) bool {
	return r.encounterRx.MatchString(id)
}

// IDPattern matches "<prefix><separators><digits>" case-insensitively and
// captures the digits.
func IDPattern(prefix string) *regexp.Regexp {
	return regexp.MustCompile(`(?i)^` + regexp.QuoteMeta(strings.ToUpper(prefix)) + `[\s\-_]*([0-9]+)$`)
}

func (r *Rules) PatientIDPattern() *regexp.Regexp {
	return r.patientIDRx
}

func (r *Rules) EncounterIDPattern() *regexp.Regexp {
	return r.encounterIDRx
}

func (r *Rules) SexAllowed(sex string) bool {
	for _, allowed := range r.AllowedSex {
		if allowed == sex {
			return true
		}
	}
	return false
}
