package extract

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/Gobusters/ectolinq"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

var encounterHeaders = []string{"encounter_id", "patient_id", "admit_dt", "discharge_dt", "encounter_type", "source_file"}

// a row is a header when at least this many cells name known columns
const headerMatchThreshold = 3

type sourceLine struct {
	cells []string
	line  int
}

// ParseEncounters reads the encounters feed, which is only loosely CSV:
// cells may carry several fields separated by semicolons, the header may be
// preceded by junk and repeated further down, and blank lines are common.
func ParseEncounters(r io.Reader, sourceFile string) ([]models.RawEncounter, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	var lines []sourceLine
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, fernerrors.NewSourceErrorf("read row: %w", err).AddLine(line)
		}
		if blank(record) {
			continue
		}
		line, _ := cr.FieldPos(0)
		lines = append(lines, sourceLine{cells: expandSemicolons(record), line: line})
	}

	if len(lines) == 0 {
		return nil, fernerrors.NewSourceError("no rows found in encounters source")
	}

	headerIdx := -1
	for i, l := range lines {
		if looksLikeHeader(l.cells) {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil, fernerrors.NewSourceError("header not found in encounters source")
	}

	index := map[string]int{}
	for i, cell := range lines[headerIdx].cells {
		name := headerName(cell)
		if _, seen := index[name]; !seen && ectolinq.Contains(encounterHeaders, name) {
			index[name] = i
		}
	}

	var rows []models.RawEncounter
	for _, l := range lines[headerIdx+1:] {
		if looksLikeHeader(l.cells) {
			continue
		}

		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(l.cells) {
				return ""
			}
			v := l.cells[i]
			if v == "nan" {
				return ""
			}
			return v
		}

		enc := models.RawEncounter{
			EncounterID:   get("encounter_id"),
			PatientID:     get("patient_id"),
			AdmitDT:       get("admit_dt"),
			DischargeDT:   get("discharge_dt"),
			EncounterType: get("encounter_type"),
			SourceFile:    get("source_file"),
			Row:           l.line,
		}
		if enc.EncounterID == "" && enc.PatientID == "" {
			continue
		}
		if enc.SourceFile == "" {
			enc.SourceFile = sourceFile
		}
		rows = append(rows, enc)
	}
	return rows, nil
}

func expandSemicolons(record []string) []string {
	out := make([]string, 0, len(record))
	for _, cell := range record {
		c := clean(cell)
		if !strings.Contains(c, ";") {
			out = append(out, c)
			continue
		}
		for _, part := range strings.Split(c, ";") {
			out = append(out, strings.TrimSpace(part))
		}
	}
	return out
}

func headerName(cell string) string {
	return strings.TrimLeft(strings.ToLower(clean(cell)), ",")
}

func looksLikeHeader(cells []string) bool {
	matches := 0
	for _, c := range cells {
		if ectolinq.Contains(encounterHeaders, headerName(c)) {
			matches++
		}
	}
	return matches >= headerMatchThreshold
}
