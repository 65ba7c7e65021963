package consultation

import (
	"context"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	apperrors "github.com/jwalitptl/patientflow/pkg/errors"
)

type VoiceResult struct {
	Transcript    string       `json:"transcript"`
	AudioDuration int          `json:"audio_duration"`
	Merge         *MergeResult `json:"merge"`
	RawExtraction string       `json:"raw_extraction,omitempty"`
}

// ProcessVoice transcribes a recording, extracts notes from it and merges them into
// the draft according to opts.
func (s *Service) ProcessVoice(ctx context.Context, appointmentID, doctorID uuid.UUID, audio io.Reader, filename string, opts MergeOptions) (*VoiceResult, error) {
	if s.ai == nil {
		return nil, apperrors.NewUnavailable("voice AI is not configured", nil)
	}
	if _, err := s.inConsultation(ctx, appointmentID, doctorID, "record voice notes for"); err != nil {
		return nil, err
	}

	transcription, err := s.ai.Transcribe(ctx, audio, filename)
	if err != nil {
		return nil, apperrors.NewUnavailable("failed to transcribe audio", err)
	}
	raw, err := s.ai.ExtractNotes(ctx, transcription.Text)
	if err != nil {
		return nil, apperrors.NewUnavailable("failed to extract consultation notes", err)
	}

	extraction := ParseExtraction(raw)
	result := &VoiceResult{
		Transcript:    transcription.Text,
		AudioDuration: int(transcription.Duration.Round(time.Second).Seconds()),
	}
	if u, ok := extraction.(Unparseable); ok {
		log.Warn().Str("appointment_id", appointmentID.String()).Int("raw_length", len(u.Raw)).
			Msg("extraction answer could not be parsed")
		result.RawExtraction = u.Raw
	}

	result.Merge, err = s.MergeExtractedNotes(ctx, appointmentID, doctorID, extraction, opts)
	if err != nil {
		return nil, err
	}
	return result, nil
}
