package ai

import "strings"

const SystemPrompt = "You are a medical documentation assistant. Extract structured consultation notes " +
	"from doctor voice recordings. Return only valid JSON."

const extractionTemplate = `You are assisting a doctor with documenting a patient consultation. Extract structured consultation notes from the transcript of the doctor's voice recording.

TRANSCRIPT:
{transcript}

Return ONLY valid JSON, without markdown or code fences, in this shape:
{
  "diagnosis": "primary diagnosis and any secondary diagnoses",
  "differential_diagnoses": ["differential diagnoses"],
  "history_of_present_illness": "history of present illness",
  "physical_examination_findings": "examination findings mentioned",
  "assessment": "clinical assessment",
  "treatment_plan": "treatment plan, including non-pharmacological measures",
  "prescriptions": [
    {
      "medication": "drug name",
      "dosage": "for example 500mg",
      "frequency": "for example twice daily",
      "duration": "for example 7 days",
      "instructions": "for example take with food"
    }
  ],
  "follow_up": "follow-up instructions and timeline",
  "patient_education": "advice given to the patient",
  "additional_notes": "any other relevant notes",
  "icd_codes": ["ICD-10 codes if identifiable"],
  "confidence": 0.0
}

Only extract information that was stated explicitly. Use an empty string or an empty array for anything not mentioned. Set confidence to a number between 0 and 1.`

// ExtractionPrompt fills the user prompt with transcript.
func ExtractionPrompt(transcript string) string {
	return strings.Replace(extractionTemplate, "{transcript}", transcript, 1)
}
