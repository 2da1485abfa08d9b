package models

import "time"

// StageSummary describes the outcome of one entity stage.
type StageSummary struct {
	Entity        Entity        `json:"entity"`
	Extracted     int           `json:"extracted"`
	Clean         int           `json:"clean"`
	Rejected      int           `json:"rejected"`
	FlagCounts    map[Flag]int  `json:"flag_counts,omitempty"`
	CleanArtifact string        `json:"clean_artifact"`
	RejectionLog  string        `json:"rejection_log,omitempty"`
	Checksum      string        `json:"checksum"`
	Duration      time.Duration `json:"duration"`
}

// LoadSummary reports rows written to the sink per entity.
type LoadSummary struct {
	Patients   int `json:"patients"`
	Encounters int `json:"encounters"`
	Diagnoses  int `json:"diagnoses"`
}

type RunSummary struct {
	RunID      string         `json:"run_id"`
	StartedAt  time.Time      `json:"started_at"`
	FinishedAt time.Time      `json:"finished_at"`
	Stages     []StageSummary `json:"stages"`
	Load       *LoadSummary   `json:"load,omitempty"`
}

// Stage returns the summary for entity, if that stage ran.
func (r *RunSummary) Stage(entity Entity) (StageSummary, bool) {
	for _, s := range r.Stages {
		if s.Entity == entity {
			return s, true
		}
	}
	return StageSummary{}, false
}

// CountFlags tallies every flag across records.
func CountFlags(sets ...Flags) map[Flag]int {
	counts := make(map[Flag]int)
	for _, set := range sets {
		for _, flag := range set {
			counts[flag]++
		}
	}
	return counts
}

// Artifacts locates the clean artifact of each entity.
type Artifacts struct {
	Patients   string
	Encounters string
	Diagnoses  string
}
