package database

import (
	"database/sql"
	"fmt"
	"strconv"
	"time"
)

// The helpers below turn clean artifact cells into nullable column values.
// An empty cell is NULL.

func NullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func NullFloat(s string) (sql.NullFloat64, error) {
	if s == "" {
		return sql.NullFloat64{}, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return sql.NullFloat64{}, fmt.Errorf("invalid number %q: %w", s, err)
	}
	return sql.NullFloat64{Float64: v, Valid: true}, nil
}

func NullBool(s string) (sql.NullBool, error) {
	if s == "" {
		return sql.NullBool{}, nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return sql.NullBool{}, fmt.Errorf("invalid boolean %q: %w", s, err)
	}
	return sql.NullBool{Bool: v, Valid: true}, nil
}

func NullTime(layout, s string) (sql.NullTime, error) {
	if s == "" {
		return sql.NullTime{}, nil
	}
	v, err := time.Parse(layout, s)
	if err != nil {
		return sql.NullTime{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return sql.NullTime{Time: v.UTC(), Valid: true}, nil
}
