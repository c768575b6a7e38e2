package scoring

import (
	"errors"
	"reflect"
	"strings"
	"testing"

	"lingua-tutor-service/internal/domain"
)

func TestAssessPerfectReading(t *testing.T) {
	ref := "Je suis dentiste Tu es professeur Elle est avocate"
	result, err := Assess(ref, ref, 4.5)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if result.Accuracy != 100 {
		t.Fatalf("expected accuracy 100, got %v", result.Accuracy)
	}
	if result.WordsPerMinute != 120 {
		t.Fatalf("expected 120 wpm, got %d", result.WordsPerMinute)
	}
	if result.Fluency != 100 {
		t.Fatalf("expected fluency 100, got %v", result.Fluency)
	}
	if result.Score != 100 {
		t.Fatalf("expected score 100, got %d", result.Score)
	}
	if len(result.Feedback) != 3 {
		t.Fatalf("expected exactly 3 comments, got %v", result.Feedback)
	}
	if result.Feedback[0] != FeedbackExcellentAccuracy || result.Feedback[1] != FeedbackGreatPace {
		t.Fatalf("unexpected feedback: %v", result.Feedback)
	}
}

func TestAssessNoMatches(t *testing.T) {
	ref := "un deux trois quatre cinq six sept huit neuf dix"
	result, err := Assess(ref, "alpha beta gamma delta", 10)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if result.Accuracy != 0 {
		t.Fatalf("expected accuracy 0, got %v", result.Accuracy)
	}
	// With zero accuracy the score comes from the fluency term alone.
	want := int(result.Fluency*0.4 + 0.5)
	if result.Score != want {
		t.Fatalf("expected score %d, got %d", want, result.Score)
	}
	if result.Feedback[0] != FeedbackReviewScript {
		t.Fatalf("expected review-script feedback, got %v", result.Feedback)
	}
}

func TestAssessIsDeterministic(t *testing.T) {
	ref := "bonjour je voudrais un café et un croissant"
	first, err := Assess(ref, "bonjour je voudrais un croissant", 6)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	for i := 0; i < 10; i++ {
		again, err := Assess(ref, "bonjour je voudrais un croissant", 6)
		if err != nil {
			t.Fatalf("assess: %v", err)
		}
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("results diverged: %+v vs %+v", first, again)
		}
	}
}

func TestAssessBoundsHold(t *testing.T) {
	cases := []struct {
		ref, spoken string
		duration    float64
	}{
		{"un mot", "un mot un mot un mot un mot un mot", 0.5},
		{"une phrase assez longue pour le test", "", 30},
		{"répète répète répète", "répète répète répète répète", 1},
		{"le chat dort sur le tapis", "le chat dort", 120},
	}
	for _, tc := range cases {
		result, err := Assess(tc.ref, tc.spoken, tc.duration)
		if err != nil {
			t.Fatalf("assess(%q): %v", tc.ref, err)
		}
		if result.Accuracy < 0 || result.Accuracy > 100 {
			t.Fatalf("accuracy out of range: %v", result.Accuracy)
		}
		if result.Fluency < 0 || result.Fluency > 100 {
			t.Fatalf("fluency out of range: %v", result.Fluency)
		}
		if result.Score < 0 || result.Score > 100 {
			t.Fatalf("score out of range: %d", result.Score)
		}
		if len(result.Feedback) != 3 {
			t.Fatalf("expected 3 comments, got %v", result.Feedback)
		}
	}
}

func TestAssessSkippedWords(t *testing.T) {
	ref := "un deux trois quatre cinq six sept huit"
	result, err := Assess(ref, "un deux", 5)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	found := false
	for _, comment := range result.Feedback {
		if strings.HasPrefix(comment, "skipped ") {
			found = true
			if comment != "skipped 6 words" {
				t.Fatalf("expected skipped 6 words, got %q", comment)
			}
		}
	}
	if !found {
		t.Fatalf("expected a skipped-words comment, got %v", result.Feedback)
	}
}

func TestAssessExtraWords(t *testing.T) {
	result, err := Assess("un deux", "un deux trois quatre cinq", 5)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	found := false
	for _, comment := range result.Feedback {
		if comment == FeedbackExtraWords {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected extra-words comment, got %v", result.Feedback)
	}
}

func TestAssessRejectsBadInput(t *testing.T) {
	var invalid *domain.InvalidInputError

	_, err := Assess("   ", "bonjour", 5)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for empty reference, got %v", err)
	}

	_, err = Assess("bonjour", "bonjour", 0)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for zero duration, got %v", err)
	}

	_, err = Assess("bonjour", "bonjour", -3)
	if !errors.As(err, &invalid) {
		t.Fatalf("expected InvalidInputError for negative duration, got %v", err)
	}
}

func TestAssessMatchingIsOrderInsensitive(t *testing.T) {
	ref := "le chat noir dort"
	shuffled, err := Assess(ref, "dort noir chat le", 4)
	if err != nil {
		t.Fatalf("assess: %v", err)
	}
	if shuffled.Accuracy != 100 {
		t.Fatalf("expected order-insensitive match, accuracy %v", shuffled.Accuracy)
	}
}
