package domain

import "time"

// Topic is an immutable curriculum entry. Topics are defined at deploy time
// and ordered by a globally unique, strictly increasing Order.
type Topic struct {
	ID          string `json:"id"`
	Level       string `json:"level"` // ordinal tier, e.g. A1..C1
	Order       int    `json:"order"`
	DisplayName string `json:"displayName"`
}

// Lesson is the immutable content for one (topic, day) pair. Text is the
// reference script the learner reads aloud and is the ground truth for scoring.
type Lesson struct {
	TopicID string `json:"topicId"`
	Day     int    `json:"day"`
	Text    string `json:"text"`
}

// ProgressRecord tracks a single learner's state on a single topic.
// Scores holds one entry per passed day; its keys always form a contiguous
// prefix 1..n, so len(Scores)+1 is the lowest locked day.
type ProgressRecord struct {
	LearnerID      string      `json:"learnerId"`
	TopicID        string      `json:"topicId"`
	Level          string      `json:"level"`
	CurrentDay     int         `json:"currentDay"`
	Scores         map[int]int `json:"scores"`
	Completed      bool        `json:"completed"`
	CompletedAt    *time.Time  `json:"completedAt,omitempty"`
	LastAccessedAt time.Time   `json:"lastAccessedAt"`
}

// MaxAccessibleDay is the highest day the learner may open: every passed day
// plus the first one not yet passed.
func (p *ProgressRecord) MaxAccessibleDay() int {
	return len(p.Scores) + 1
}

// Clone returns a deep copy so stores can hand out records without aliasing
// their internal state.
func (p *ProgressRecord) Clone() *ProgressRecord {
	cp := *p
	cp.Scores = make(map[int]int, len(p.Scores))
	for day, score := range p.Scores {
		cp.Scores[day] = score
	}
	if p.CompletedAt != nil {
		t := *p.CompletedAt
		cp.CompletedAt = &t
	}
	return &cp
}

// AssessmentResult is the transient outcome of scoring one spoken attempt.
type AssessmentResult struct {
	Score          int      `json:"score"`
	Accuracy       float64  `json:"accuracy"`
	Fluency        float64  `json:"fluency"`
	WordsPerMinute int      `json:"wordsPerMinute"`
	Feedback       []string `json:"feedback"`
}

// SubmissionResult reports the outcome of a day attempt. When Passed is false
// the attempt was below threshold, no state was touched and Progress is nil.
type SubmissionResult struct {
	Passed         bool             `json:"passed"`
	Assessment     AssessmentResult `json:"assessment"`
	Progress       *ProgressRecord  `json:"progress,omitempty"`
	TopicCompleted bool             `json:"topicCompleted"`
	NextTopic      *Topic           `json:"nextTopic,omitempty"`
}

// TodayLesson bundles everything the client needs to render the learner's
// current lesson.
type TodayLesson struct {
	Topic    Topic           `json:"topic"`
	Lesson   Lesson          `json:"lesson"`
	Progress *ProgressRecord `json:"progress"`
}

// DayStatus is the per-day view inside an available-lessons listing.
type DayStatus struct {
	Day      int  `json:"day"`
	Score    int  `json:"score,omitempty"`
	Done     bool `json:"done"`
	Unlocked bool `json:"unlocked"`
}

// TopicLessons groups day statuses for one topic.
type TopicLessons struct {
	Topic     Topic       `json:"topic"`
	Days      []DayStatus `json:"days"`
	Completed bool        `json:"completed"`
}

// Transcription is the output contract of the speech-to-text adapter.
type Transcription struct {
	Transcript string  `json:"transcript"`
	Confidence float64 `json:"confidence"`
}
