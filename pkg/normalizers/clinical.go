package normalizers

import (
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
)

const (
	cmPerInch   = 2.54
	inchPerFoot = 12
	kgPerPound  = 0.453592
)

var numberRe = regexp.MustCompile(`\d+\.?\d*`)

// Missing reports whether s is null under r.
func Missing(r *rules.Rules, s string) bool {
	return r.IsMissing(s)
}

// Optional returns nil for missing values and the trimmed value otherwise.
func Optional(r *rules.Rules, s string) *string {
	if r.IsMissing(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	return &s
}

// CanonicalID rewrites a value matched by pattern (see rules.IDPattern) as
// "<PREFIX>-<zero padded digits>". Values that do not match pass through
// trimmed and upper-cased.
func CanonicalID(pattern *regexp.Regexp, prefix string, width int, s string) string {
	s = strings.ToUpper(strings.TrimSpace(s))
	if s == "" {
		return ""
	}
	m := pattern.FindStringSubmatch(s)
	if m == nil {
		return s
	}
	n, err := strconv.ParseUint(m[1], 10, 64)
	if err != nil {
		return s
	}
	return fmt.Sprintf("%s-%0*d", strings.ToUpper(prefix), width, n)
}

func PatientID(r *rules.Rules, s string) string {
	if r.IsMissing(s) {
		return ""
	}
	return CanonicalID(r.PatientIDPattern(), r.PatientIDPrefix, r.PatientIDWidth, s)
}

func EncounterID(r *rules.Rules, s string) string {
	if r.IsMissing(s) {
		return ""
	}
	return CanonicalID(r.EncounterIDPattern(), r.EncounterIDPrefix, r.EncounterIDWidth, s)
}

// StandardizeDate tries the configured date layouts in order and returns the
// calendar date at midnight UTC.
func StandardizeDate(r *rules.Rules, s string) *time.Time {
	if r.IsMissing(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range r.DateFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			d := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
			return &d
		}
	}
	return nil
}

// ParseTimestamp tries the configured timestamp layouts in order. Values
// without a zone are read as UTC; the result is always UTC.
func ParseTimestamp(r *rules.Rules, s string) *time.Time {
	if r.IsMissing(s) {
		return nil
	}
	s = strings.TrimSpace(s)
	for _, layout := range r.TimestampFormats {
		t, err := time.Parse(layout, s)
		if err == nil {
			t = t.UTC()
			return &t
		}
	}
	return nil
}

func roundTenth(v float64) float64 {
	return math.Round(v*10) / 10
}

func numbers(s string) []float64 {
	var out []float64
	for _, match := range numberRe.FindAllString(s, -1) {
		v, err := strconv.ParseFloat(match, 64)
		if err == nil {
			out = append(out, v)
		}
	}
	return out
}

// HeightToCM converts a free-text height into centimeters. Feet take an
// optional second number as inches; a bare number is already centimeters.
func HeightToCM(r *rules.Rules, s string) *float64 {
	if r.IsMissing(s) {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	nums := numbers(s)
	if len(nums) == 0 {
		return nil
	}

	v := nums[0]
	switch {
	case strings.Contains(s, "ft") || strings.Contains(s, "feet"):
		inches := 0.0
		if len(nums) > 1 {
			inches = nums[1]
		}
		v = (v*inchPerFoot + inches) * cmPerInch
	case strings.Contains(s, "in"):
		v = v * cmPerInch
	}
	v = roundTenth(v)
	return &v
}

// WeightToKG converts a free-text weight into kilograms.
func WeightToKG(r *rules.Rules, s string) *float64 {
	if r.IsMissing(s) {
		return nil
	}
	s = strings.ToLower(strings.TrimSpace(s))
	nums := numbers(s)
	if len(nums) == 0 {
		return nil
	}

	v := nums[0]
	if strings.Contains(s, "lb") || strings.Contains(s, "pound") {
		v = v * kgPerPound
	}
	v = roundTenth(v)
	return &v
}

// Sex maps synonyms onto the short code; unknown values pass through upper-cased.
func Sex(r *rules.Rules, s string) *string {
	if r.IsMissing(s) {
		return nil
	}
	s = strings.ToUpper(strings.TrimSpace(s))
	if mapped, ok := r.SexSynonyms[s]; ok {
		s = mapped
	}
	return &s
}

// EncounterType maps synonyms onto the encounter type enumeration. Missing and
// unmapped values are UNKNOWN; the result is never empty.
func EncounterType(r *rules.Rules, s string) string {
	if r.IsMissing(s) {
		return models.EncounterTypeUnknown
	}
	if mapped, ok := r.EncounterTypes[strings.ToLower(strings.TrimSpace(s))]; ok {
		return mapped
	}
	return models.EncounterTypeUnknown
}

// Bool is tri-state: unrecognized tokens are nil.
func Bool(r *rules.Rules, s string) *bool {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	for _, token := range r.TrueTokens {
		if s == token {
			b := true
			return &b
		}
	}
	for _, token := range r.FalseTokens {
		if s == token {
			b := false
			return &b
		}
	}
	return nil
}

// CodeSystem defaults to ICD-10 when the source omits it.
func CodeSystem(r *rules.Rules, s string) string {
	if r.IsMissing(s) {
		return models.DefaultCodeSystem
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

func Code(r *rules.Rules, s string) string {
	if r.IsMissing(s) {
		return ""
	}
	return strings.ToUpper(strings.TrimSpace(s))
}

// Name trims, collapses and title-cases a person name.
func Name(r *rules.Rules, s string) *string {
	if r.IsMissing(s) {
		return nil
	}
	name := ApplyChain(s, "collapse_whitespace", "title")
	return &name
}
