package consultation

import (
	"strings"

	"github.com/jwalitptl/patientflow/internal/model"
)

type MergeOptions struct {
	// Overwrite replaces non-blank draft fields with non-empty extracted values.
	Overwrite bool
	// Persist saves the merged draft. Without it the merge is a preview.
	Persist bool
}

type MergeResult struct {
	Note        model.ConsultationNote  `json:"note"`
	Changed     []string                `json:"changed_fields"`
	Confidence  float64                 `json:"confidence"`
	Parsed      bool                    `json:"parsed"`
	Extracted   *ExtractedNotes         `json:"extracted,omitempty"`
	Suggestions []SuggestedPrescription `json:"suggested_prescriptions"`
	Persisted   bool                    `json:"persisted"`
}

// Merge applies an extraction to a draft. Unparseable leaves the draft as is.
func Merge(draft model.ConsultationNote, extraction Extraction, overwrite bool) MergeResult {
	result := MergeResult{Note: draft, Changed: []string{}, Suggestions: []SuggestedPrescription{}}

	parsed, ok := extraction.(Parsed)
	if !ok {
		return result
	}
	notes := parsed.Notes
	result.Parsed = true
	result.Confidence = parsed.Confidence
	result.Extracted = &notes
	if notes.Prescriptions != nil {
		result.Suggestions = notes.Prescriptions
	}

	apply := func(name string, field *string, value string) {
		if value == "" || *field == value {
			return
		}
		if strings.TrimSpace(*field) != "" && !overwrite {
			return
		}
		*field = value
		result.Changed = append(result.Changed, name)
	}
	apply("diagnosis", &result.Note.Diagnosis, notes.Diagnosis)
	apply("treatment_plan", &result.Note.TreatmentPlan, notes.TreatmentPlan)
	apply("doctor_notes", &result.Note.DoctorNotes, notes.AdditionalNotes)
	return result
}
