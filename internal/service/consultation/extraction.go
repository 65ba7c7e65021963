package consultation

import (
	"encoding/json"
	"fmt"
	"math"
	"strings"
)

// DefaultConfidence is assumed when the model omits a confidence score.
const DefaultConfidence = 0.5

// Extraction is the outcome of parsing a model answer: either Parsed or Unparseable.
type Extraction interface {
	isExtraction()
}

// Parsed is a structured extraction. Confidence is in [0,1].
type Parsed struct {
	Notes      ExtractedNotes
	Confidence float64
}

// Unparseable keeps the raw answer that could not be read as notes.
type Unparseable struct {
	Raw string
}

func (Parsed) isExtraction()      {}
func (Unparseable) isExtraction() {}

type ExtractedNotes struct {
	Diagnosis               string                  `json:"diagnosis"`
	DifferentialDiagnoses   []string                `json:"differential_diagnoses"`
	HistoryOfPresentIllness string                  `json:"history_of_present_illness"`
	PhysicalExamination     string                  `json:"physical_examination"`
	Assessment              string                  `json:"assessment"`
	TreatmentPlan           string                  `json:"treatment_plan"`
	Prescriptions           []SuggestedPrescription `json:"prescriptions"`
	FollowUp                string                  `json:"follow_up"`
	PatientEducation        string                  `json:"patient_education"`
	AdditionalNotes         string                  `json:"additional_notes"`
	ICDCodes                []string                `json:"icd_codes"`
}

// SuggestedPrescription is never written as a prescription. The doctor re-enters it.
type SuggestedPrescription struct {
	Medication   string `json:"medication"`
	Dosage       string `json:"dosage"`
	Frequency    string `json:"frequency"`
	Duration     string `json:"duration"`
	Instructions string `json:"instructions,omitempty"`
}

func (p SuggestedPrescription) String() string {
	s := strings.TrimSpace(fmt.Sprintf("%s %s - %s", p.Medication, p.Dosage, p.Frequency))
	if p.Duration != "" {
		s += " for " + p.Duration
	}
	if p.Instructions != "" {
		s += " (" + p.Instructions + ")"
	}
	return s
}

type rawExtraction struct {
	Diagnosis               *string           `json:"diagnosis"`
	DifferentialDiagnoses   []string          `json:"differential_diagnoses"`
	HistoryOfPresentIllness *string           `json:"history_of_present_illness"`
	PhysicalExamination     *string           `json:"physical_examination_findings"`
	Assessment              *string           `json:"assessment"`
	TreatmentPlan           *string           `json:"treatment_plan"`
	Prescriptions           []json.RawMessage `json:"prescriptions"`
	FollowUp                *string           `json:"follow_up"`
	PatientEducation        *string           `json:"patient_education"`
	AdditionalNotes         *string           `json:"additional_notes"`
	ICDCodes                []string          `json:"icd_codes"`
	Confidence              *float64          `json:"confidence"`
}

// ParseExtraction reads a model answer. Markdown fences are stripped, a missing
// confidence becomes DefaultConfidence and confidence is clamped to [0,1]. Anything
// that is not a JSON object is Unparseable.
func ParseExtraction(raw string) Extraction {
	body := stripFences(raw)
	if !strings.HasPrefix(body, "{") {
		return Unparseable{Raw: raw}
	}
	var r rawExtraction
	if err := json.Unmarshal([]byte(body), &r); err != nil {
		return Unparseable{Raw: raw}
	}

	notes := ExtractedNotes{
		Diagnosis:               str(r.Diagnosis),
		DifferentialDiagnoses:   nonNil(r.DifferentialDiagnoses),
		HistoryOfPresentIllness: str(r.HistoryOfPresentIllness),
		PhysicalExamination:     str(r.PhysicalExamination),
		Assessment:              str(r.Assessment),
		TreatmentPlan:           str(r.TreatmentPlan),
		Prescriptions:           []SuggestedPrescription{},
		FollowUp:                str(r.FollowUp),
		PatientEducation:        str(r.PatientEducation),
		AdditionalNotes:         str(r.AdditionalNotes),
		ICDCodes:                nonNil(r.ICDCodes),
	}
	for _, item := range r.Prescriptions {
		if rx, ok := parsePrescription(item); ok {
			notes.Prescriptions = append(notes.Prescriptions, rx)
		}
	}

	confidence := DefaultConfidence
	if r.Confidence != nil {
		confidence = *r.Confidence
	}
	return Parsed{Notes: notes, Confidence: clamp(confidence)}
}

// parsePrescription accepts either an object or a free-text line.
func parsePrescription(item json.RawMessage) (SuggestedPrescription, bool) {
	var rx SuggestedPrescription
	if err := json.Unmarshal(item, &rx); err == nil {
		return rx, rx.Medication != ""
	}
	var line string
	if err := json.Unmarshal(item, &line); err == nil && strings.TrimSpace(line) != "" {
		return SuggestedPrescription{Medication: strings.TrimSpace(line)}, true
	}
	return SuggestedPrescription{}, false
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "```json", "")
	s = strings.ReplaceAll(s, "```", "")
	return strings.TrimSpace(s)
}

func clamp(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}

func str(s *string) string {
	if s == nil {
		return ""
	}
	return strings.TrimSpace(*s)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
