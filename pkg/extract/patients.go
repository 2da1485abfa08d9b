package extract

import (
	"encoding/csv"
	"io"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

var patientColumns = []string{"patient_id", "given_name", "family_name", "sex", "dob", "height", "weight"}

// ParsePatients reads a patients CSV. A missing patient_id column is fatal;
// other absent columns are returned so the caller can warn about them.
func ParsePatients(r io.Reader, sourceFile string) ([]models.RawPatient, []string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err == io.EOF {
		return nil, nil, fernerrors.NewSourceError("patients source is empty")
	}
	if err != nil {
		return nil, nil, fernerrors.NewSourceErrorf("read header: %w", err).AddLine(1)
	}

	index := map[string]int{}
	for i, name := range header {
		if _, seen := index[clean(name)]; !seen {
			index[clean(name)] = i
		}
	}

	if _, ok := index["patient_id"]; !ok {
		return nil, nil, fernerrors.NewSourceError("required column 'patient_id' not found").AddLine(1)
	}

	var missing []string
	for _, col := range patientColumns {
		if _, ok := index[col]; !ok {
			missing = append(missing, col)
		}
	}

	var rows []models.RawPatient
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line, _ := cr.FieldPos(0)
			return nil, nil, fernerrors.NewSourceErrorf("read row: %w", err).AddLine(line)
		}
		if blank(record) {
			continue
		}

		line, _ := cr.FieldPos(0)
		get := func(col string) string {
			i, ok := index[col]
			if !ok || i >= len(record) {
				return ""
			}
			return clean(record[i])
		}

		rows = append(rows, models.RawPatient{
			PatientID:  get("patient_id"),
			GivenName:  get("given_name"),
			FamilyName: get("family_name"),
			Sex:        get("sex"),
			DOB:        get("dob"),
			Height:     get("height"),
			Weight:     get("weight"),
			SourceFile: sourceFile,
			Row:        line,
		})
	}
	return rows, missing, nil
}

func blank(record []string) bool {
	for _, cell := range record {
		if clean(cell) != "" {
			return false
		}
	}
	return true
}
