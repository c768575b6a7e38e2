package scoring

import (
	"fmt"
	"math"
	"strings"

	"lingua-tutor-service/internal/domain"
)

// Feedback keys are stable, non-localized identifiers; clients map them to copy.
const (
	FeedbackExcellentAccuracy = "excellent accuracy"
	FeedbackGoodAccuracy      = "good accuracy"
	FeedbackPronunciation     = "needs pronunciation focus"
	FeedbackReviewScript      = "review script"
	FeedbackGreatPace         = "great pace"
	FeedbackImproveSpeed      = "improve speed"
	FeedbackReadAloud         = "practice reading aloud"
	FeedbackExtraWords        = "added extra words"
	FeedbackKeepGoing         = "keep practicing"
)

const feedbackCount = 3

// Assess compares a recognized transcript against the lesson's reference text
// and derives accuracy, pace and an overall score. It is a pure function of its
// inputs: no clock, no I/O, no randomness.
func Assess(referenceText, transcript string, durationSeconds float64) (domain.AssessmentResult, error) {
	reference := tokenize(referenceText)
	if len(reference) == 0 {
		return domain.AssessmentResult{}, &domain.InvalidInputError{Reason: "reference text has no words"}
	}
	if durationSeconds <= 0 {
		return domain.AssessmentResult{}, &domain.InvalidInputError{Reason: "duration must be positive"}
	}
	spoken := tokenize(transcript)

	known := make(map[string]struct{}, len(reference))
	for _, word := range reference {
		known[word] = struct{}{}
	}
	matched := 0
	for _, word := range spoken {
		if _, ok := known[word]; ok {
			matched++
		}
	}

	accuracy := math.Min(100, float64(matched)/float64(len(reference))*100)
	wpm := int(math.Round(float64(len(spoken)) / durationSeconds * 60))
	fluency := math.Min(100, accuracy*0.7+math.Min(100, float64(wpm))*0.3)
	score := int(math.Round(accuracy*0.6 + fluency*0.4))

	return domain.AssessmentResult{
		Score:          score,
		Accuracy:       accuracy,
		Fluency:        fluency,
		WordsPerMinute: wpm,
		Feedback:       feedback(accuracy, fluency, len(reference)-len(spoken)),
	}, nil
}

// tokenize lowercases and splits on whitespace, dropping empty tokens.
func tokenize(text string) []string {
	return strings.Fields(strings.ToLower(text))
}

// feedback always returns exactly three comments: one for accuracy, one for
// fluency, and one for the word-count delta (padded with encouragement when
// the delta is unremarkable).
func feedback(accuracy, fluency float64, wordDelta int) []string {
	comments := make([]string, 0, feedbackCount)

	switch {
	case accuracy >= 90:
		comments = append(comments, FeedbackExcellentAccuracy)
	case accuracy >= 70:
		comments = append(comments, FeedbackGoodAccuracy)
	case accuracy >= 50:
		comments = append(comments, FeedbackPronunciation)
	default:
		comments = append(comments, FeedbackReviewScript)
	}

	switch {
	case fluency >= 85:
		comments = append(comments, FeedbackGreatPace)
	case fluency >= 60:
		comments = append(comments, FeedbackImproveSpeed)
	default:
		comments = append(comments, FeedbackReadAloud)
	}

	switch {
	case wordDelta > 3:
		comments = append(comments, fmt.Sprintf("skipped %d words", wordDelta))
	case wordDelta < -2:
		comments = append(comments, FeedbackExtraWords)
	}
	for len(comments) < feedbackCount {
		comments = append(comments, FeedbackKeepGoing)
	}
	return comments
}
