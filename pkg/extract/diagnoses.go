package extract

import (
	"encoding/xml"
	"io"
	"strings"

	fernerrors "github.com/Ramsey-B/fern/pkg/errors"
	"github.com/Ramsey-B/fern/pkg/models"
)

// DiagnosisNamespace is the namespace the diagnoses feed declares. Elements
// are matched on local name so documents without it parse the same way.
const DiagnosisNamespace = "http://example.org/diagnosis"

type diagnosisDocument struct {
	Diagnoses []diagnosisElement `xml:"Diagnosis"`
}

type diagnosisElement struct {
	EncounterID *string      `xml:"encounterId"`
	Code        *codeElement `xml:"code"`
	IsPrimary   *string      `xml:"isPrimary"`
	RecordedAt  *string      `xml:"recordedAt"`
}

type codeElement struct {
	System *string `xml:"system,attr"`
	Value  string  `xml:",chardata"`
}

// ParseDiagnoses reads every Diagnosis element under the document root.
// A code without a system attribute is reported in the default code system.
func ParseDiagnoses(r io.Reader, sourceFile string) ([]models.RawDiagnosis, error) {
	var doc diagnosisDocument
	if err := xml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return nil, fernerrors.NewSourceError("diagnoses source is empty")
		}
		return nil, fernerrors.NewSourceErrorf("parse xml: %w", err)
	}

	rows := make([]models.RawDiagnosis, 0, len(doc.Diagnoses))
	for i, el := range doc.Diagnoses {
		dx := models.RawDiagnosis{
			EncounterID: text(el.EncounterID),
			CodeSystem:  models.DefaultCodeSystem,
			IsPrimary:   text(el.IsPrimary),
			RecordedAt:  text(el.RecordedAt),
			SourceFile:  sourceFile,
			Row:         i + 1,
		}
		if el.Code != nil {
			dx.Code = strings.TrimSpace(el.Code.Value)
			if system := text(el.Code.System); system != "" {
				dx.CodeSystem = system
			}
		}
		rows = append(rows, dx)
	}
	return rows, nil
}

func text(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}
