package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"

	"lingua-tutor-service/internal/domain"
)

// Transcriber calls a whisper-server style HTTP endpoint to turn audio into
// text. It owns no retry policy: a failed call is terminal for the submission
// and the caller decides whether to resubmit.
type Transcriber struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewTranscriber(baseURL, apiKey string) *Transcriber {
	return &Transcriber{
		baseURL: baseURL,
		apiKey:  apiKey,
		// Timeouts are driven by the caller's context.
		client: &http.Client{},
	}
}

type inferenceResponse struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence"`
}

func (t *Transcriber) Transcribe(ctx context.Context, audio []byte, languageHint string) (domain.Transcription, error) {
	if len(audio) == 0 {
		return domain.Transcription{}, &domain.TranscriptionError{
			Reason: domain.TranscriptionInvalidAudio,
			Err:    errors.New("empty audio payload"),
		}
	}

	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)
	part, err := form.CreateFormFile("file", "recording.wav")
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("build transcription request: %w", err)
	}
	if _, err := part.Write(audio); err != nil {
		return domain.Transcription{}, fmt.Errorf("build transcription request: %w", err)
	}
	if languageHint != "" {
		_ = form.WriteField("language", languageHint)
	}
	_ = form.WriteField("response_format", "json")
	if err := form.Close(); err != nil {
		return domain.Transcription{}, fmt.Errorf("build transcription request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/inference", body)
	if err != nil {
		return domain.Transcription{}, fmt.Errorf("build transcription request: %w", err)
	}
	req.Header.Set("Content-Type", form.FormDataContentType())
	if t.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.apiKey)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		// Connection-level failures count as timeouts for the caller: the
		// provider was unreachable within the allotted window.
		return domain.Transcription{}, &domain.TranscriptionError{Reason: domain.TranscriptionTimeout, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return domain.Transcription{}, &domain.TranscriptionError{
			Reason: reasonForStatus(resp.StatusCode),
			Err:    fmt.Errorf("provider returned %d: %s", resp.StatusCode, bytes.TrimSpace(payload)),
		}
	}

	var decoded inferenceResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return domain.Transcription{}, &domain.TranscriptionError{
			Reason: domain.TranscriptionInvalidAudio,
			Err:    fmt.Errorf("decode provider response: %w", err),
		}
	}
	confidence := decoded.Confidence
	if confidence == 0 {
		confidence = 1
	}
	return domain.Transcription{Transcript: decoded.Text, Confidence: confidence}, nil
}

func reasonForStatus(status int) domain.TranscriptionReason {
	switch status {
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.TranscriptionUnauthorized
	case http.StatusTooManyRequests:
		return domain.TranscriptionRateLimited
	case http.StatusRequestTimeout, http.StatusGatewayTimeout:
		return domain.TranscriptionTimeout
	default:
		return domain.TranscriptionInvalidAudio
	}
}
