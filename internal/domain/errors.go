package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrTopicNotFound indicates the requested topic is not in the catalog.
	ErrTopicNotFound = errors.New("topic not found")
	// ErrLessonNotFound indicates no lesson content exists for the (topic, day) pair.
	ErrLessonNotFound = errors.New("lesson not found")
	// ErrCatalogEmpty indicates the curriculum catalog has no topics at all.
	ErrCatalogEmpty = errors.New("curriculum catalog is empty")
	// ErrConflict is returned when the store exhausts its optimistic-concurrency retries.
	ErrConflict = errors.New("progress record update conflict")
)

// InvalidInputError rejects a scoring request before any work happens.
type InvalidInputError struct {
	Reason string
}

func (e *InvalidInputError) Error() string {
	return "invalid input: " + e.Reason
}

// AccessDeniedError is returned when a learner requests a day beyond the
// unlock boundary. It is informational, not a fault.
type AccessDeniedError struct {
	TopicID          string `json:"topicId"`
	RequestedDay     int    `json:"requestedDay"`
	MaxAccessibleDay int    `json:"maxAccessibleDay"`
}

func (e *AccessDeniedError) Error() string {
	return fmt.Sprintf("day %d of topic %s is locked, highest accessible day is %d",
		e.RequestedDay, e.TopicID, e.MaxAccessibleDay)
}

// TranscriptionReason classifies speech-to-text provider failures.
type TranscriptionReason string

const (
	TranscriptionRateLimited  TranscriptionReason = "rate_limited"
	TranscriptionInvalidAudio TranscriptionReason = "invalid_audio"
	TranscriptionTimeout      TranscriptionReason = "timeout"
	TranscriptionUnauthorized TranscriptionReason = "unauthorized"
)

// TranscriptionError wraps a provider failure. It is terminal for the
// submission; no progress state is touched.
type TranscriptionError struct {
	Reason TranscriptionReason
	Err    error
}

func (e *TranscriptionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("transcription failed (%s): %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("transcription failed (%s)", e.Reason)
}

func (e *TranscriptionError) Unwrap() error { return e.Err }
