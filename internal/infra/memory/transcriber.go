package memory

import (
	"context"
	"unicode/utf8"

	"lingua-tutor-service/internal/domain"
)

// PlainTextTranscriber treats the submitted audio bytes as UTF-8 text. It
// stands in for a real speech-to-text provider in demo mode and tests.
type PlainTextTranscriber struct{}

func NewPlainTextTranscriber() *PlainTextTranscriber {
	return &PlainTextTranscriber{}
}

func (*PlainTextTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (domain.Transcription, error) {
	if len(audio) == 0 || !utf8.Valid(audio) {
		return domain.Transcription{}, &domain.TranscriptionError{Reason: domain.TranscriptionInvalidAudio}
	}
	return domain.Transcription{Transcript: string(audio), Confidence: 1}, nil
}
