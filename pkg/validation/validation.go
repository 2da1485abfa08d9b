// Package validation evaluates data-quality rules against normalized records.
// Every applicable rule fires; findings accumulate on the record's flag set.
package validation

import (
	"time"

	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/rules"
)

// Env carries the inputs a condition may consult besides the record itself.
// Now is fixed once per run so every record is judged against the same instant.
type Env struct {
	Rules *rules.Rules
	Now   time.Time
}

// Condition reports whether a record exhibits a finding.
type Condition[T any] func(rec T, env Env) bool

type Rule[T any] struct {
	Flag      models.Flag
	Condition Condition[T]
}

// RuleSet is an ordered list of rules for one entity. Output flag order
// follows rule order.
type RuleSet[T any] struct {
	Entity models.Entity
	Rules  []Rule[T]
}

// Evaluate returns the flags raised by rec.
func (rs *RuleSet[T]) Evaluate(rec T, env Env) models.Flags {
	flags := models.Flags{}
	for _, rule := range rs.Rules {
		if rule.Condition(rec, env) {
			flags.Add(rule.Flag)
		}
	}
	return flags
}

// Flags lists the flags this set can raise, in evaluation order.
func (rs *RuleSet[T]) Flags() []models.Flag {
	out := make([]models.Flag, len(rs.Rules))
	for i, rule := range rs.Rules {
		out[i] = rule.Flag
	}
	return out
}

// ageYears uses whole elapsed days over the mean Gregorian year.
func ageYears(from, to time.Time) float64 {
	days := int64(to.Sub(from).Hours() / 24)
	return float64(days) / 365.25
}
