package app

import (
	"context"
	"time"

	"lingua-tutor-service/internal/catalog"
	"lingua-tutor-service/internal/domain"
	"lingua-tutor-service/internal/scoring"
)

// PassThreshold is the minimum score required to advance past a day.
const PassThreshold = 60

const defaultTranscribeTimeout = 30 * time.Second

// UpdateFunc computes the records to persist given the current state of the
// record under the (learner, topic) key. A nil current means no record exists
// yet. Stores may re-invoke the callback when an optimistic write conflicts,
// so it must not carry side effects beyond the returned records.
type UpdateFunc func(current *domain.ProgressRecord) ([]*domain.ProgressRecord, error)

// ProgressStore abstracts durable progress storage (in-memory, Redis, Postgres).
// Update must apply the read-modify-write atomically with respect to other
// updates on the same (learner, topic) key, and persist every returned record
// as a single logical unit.
type ProgressStore interface {
	Get(ctx context.Context, learnerID, topicID string) (*domain.ProgressRecord, bool, error)
	ListByLearner(ctx context.Context, learnerID string) ([]*domain.ProgressRecord, error)
	CountCompletedTopics(ctx context.Context, learnerID string) (int, error)
	Update(ctx context.Context, learnerID, topicID string, fn UpdateFunc) ([]*domain.ProgressRecord, error)
}

// LessonRepository loads lesson content (from cache/backing store).
type LessonRepository interface {
	GetLesson(ctx context.Context, topicID string, day int) (domain.Lesson, error)
}

// Transcriber converts raw audio to text. Implementations map provider
// failures to domain.TranscriptionError.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, languageHint string) (domain.Transcription, error)
}

// TutorService contains the speech-assessment and curriculum-progression use cases.
type TutorService struct {
	catalog  *catalog.Catalog
	progress ProgressStore
	lessons  LessonRepository
	stt      Transcriber
	language string
	now      func() time.Time

	// TranscribeTimeout bounds a single speech-to-text call.
	TranscribeTimeout time.Duration
}

func NewTutorService(cat *catalog.Catalog, store ProgressStore, lessons LessonRepository, stt Transcriber, language string) *TutorService {
	return newTutorService(cat, store, lessons, stt, language, time.Now)
}

// NewTutorServiceWithClock is test-only for deterministic timestamps.
func NewTutorServiceWithClock(cat *catalog.Catalog, store ProgressStore, lessons LessonRepository, stt Transcriber, language string, now func() time.Time) *TutorService {
	return newTutorService(cat, store, lessons, stt, language, now)
}

func newTutorService(cat *catalog.Catalog, store ProgressStore, lessons LessonRepository, stt Transcriber, language string, now func() time.Time) *TutorService {
	return &TutorService{
		catalog:           cat,
		progress:          store,
		lessons:           lessons,
		stt:               stt,
		language:          language,
		now:               now,
		TranscribeTimeout: defaultTranscribeTimeout,
	}
}

// CurrentProgress returns the learner's active progress record, creating one
// for the curriculum's first topic on first contact. It refreshes
// lastAccessedAt on every call.
func (s *TutorService) CurrentProgress(ctx context.Context, learnerID string) (*domain.ProgressRecord, error) {
	records, err := s.progress.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}

	topicID := s.catalog.First().ID
	var active *domain.ProgressRecord
	for _, rec := range records {
		if rec.Completed {
			continue
		}
		if active == nil || rec.LastAccessedAt.After(active.LastAccessedAt) {
			active = rec
		}
	}
	if active != nil {
		topicID = active.TopicID
	}

	topic, err := s.catalog.TopicByID(topicID)
	if err != nil {
		return nil, err
	}

	updated, err := s.progress.Update(ctx, learnerID, topicID, func(current *domain.ProgressRecord) ([]*domain.ProgressRecord, error) {
		rec := current
		if rec == nil {
			rec = s.newRecord(learnerID, topic)
		}
		rec.LastAccessedAt = s.now()
		return []*domain.ProgressRecord{rec}, nil
	})
	if err != nil {
		return nil, err
	}
	return updated[0], nil
}

// AccessibleLesson returns the lesson for the requested day, or an
// AccessDeniedError naming the unlock boundary when the day is still locked.
func (s *TutorService) AccessibleLesson(ctx context.Context, learnerID, topicID string, day int) (domain.Lesson, error) {
	maxDay, err := s.catalog.MaxDay(topicID)
	if err != nil {
		return domain.Lesson{}, err
	}
	if day < 1 {
		return domain.Lesson{}, &domain.InvalidInputError{Reason: "day must be at least 1"}
	}
	if day > maxDay {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}

	boundary, err := s.unlockBoundary(ctx, learnerID, topicID, maxDay)
	if err != nil {
		return domain.Lesson{}, err
	}
	if day > boundary {
		return domain.Lesson{}, &domain.AccessDeniedError{TopicID: topicID, RequestedDay: day, MaxAccessibleDay: boundary}
	}
	return s.lessons.GetLesson(ctx, topicID, day)
}

// SubmitAttempt scores a transcript against the day's reference text and, when
// the score clears the threshold, records it and advances the learner. A
// below-threshold attempt leaves all state untouched so the day can be retried.
func (s *TutorService) SubmitAttempt(ctx context.Context, learnerID, topicID string, day int, transcript string, durationSeconds float64) (*domain.SubmissionResult, error) {
	topic, err := s.catalog.TopicByID(topicID)
	if err != nil {
		return nil, err
	}
	maxDay, err := s.catalog.MaxDay(topicID)
	if err != nil {
		return nil, err
	}
	if day < 1 {
		return nil, &domain.InvalidInputError{Reason: "day must be at least 1"}
	}
	if day > maxDay {
		return nil, domain.ErrLessonNotFound
	}

	lesson, err := s.lessons.GetLesson(ctx, topicID, day)
	if err != nil {
		return nil, err
	}
	assessment, err := scoring.Assess(lesson.Text, transcript, durationSeconds)
	if err != nil {
		return nil, err
	}

	if assessment.Score < PassThreshold {
		return &domain.SubmissionResult{Passed: false, Assessment: assessment}, nil
	}

	result, err := s.recordPass(ctx, learnerID, topic, day, maxDay, assessment.Score, true)
	if err != nil {
		return nil, err
	}
	result.Assessment = assessment
	return result, nil
}

// SubmitRecording runs the full pipeline: transcribe the audio (bounded
// timeout), score the transcript, gate and persist. No progress state is
// touched unless the whole pipeline succeeds.
func (s *TutorService) SubmitRecording(ctx context.Context, learnerID, topicID string, day int, audio []byte, durationSeconds float64) (*domain.SubmissionResult, error) {
	tctx, cancel := context.WithTimeout(ctx, s.TranscribeTimeout)
	defer cancel()

	transcription, err := s.stt.Transcribe(tctx, audio, s.language)
	if err != nil {
		return nil, err
	}
	return s.SubmitAttempt(ctx, learnerID, topicID, day, transcription.Transcript, durationSeconds)
}

// CompleteFinalExam records an externally assessed score for the topic's final
// day and performs the usual completion and chaining side effects. There is no
// threshold gate and no unlock check: the oral-exam flow has already decided.
func (s *TutorService) CompleteFinalExam(ctx context.Context, learnerID, topicID string, examScore int) (*domain.SubmissionResult, error) {
	topic, err := s.catalog.TopicByID(topicID)
	if err != nil {
		return nil, err
	}
	maxDay, err := s.catalog.MaxDay(topicID)
	if err != nil {
		return nil, err
	}

	result, err := s.recordPass(ctx, learnerID, topic, maxDay, maxDay, examScore, false)
	if err != nil {
		return nil, err
	}
	result.Assessment = domain.AssessmentResult{Score: examScore}
	return result, nil
}

// TodayLesson resolves the learner's current topic and lowest unfinished day.
func (s *TutorService) TodayLesson(ctx context.Context, learnerID string) (*domain.TodayLesson, error) {
	rec, err := s.CurrentProgress(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	topic, err := s.catalog.TopicByID(rec.TopicID)
	if err != nil {
		return nil, err
	}
	maxDay, err := s.catalog.MaxDay(rec.TopicID)
	if err != nil {
		return nil, err
	}
	day := rec.MaxAccessibleDay()
	if day > maxDay {
		day = maxDay
	}
	lesson, err := s.lessons.GetLesson(ctx, rec.TopicID, day)
	if err != nil {
		return nil, err
	}
	return &domain.TodayLesson{Topic: topic, Lesson: lesson, Progress: rec}, nil
}

// AvailableLessons lists every curriculum topic with per-day completion and
// unlock flags for the learner.
func (s *TutorService) AvailableLessons(ctx context.Context, learnerID string) ([]domain.TopicLessons, error) {
	records, err := s.progress.ListByLearner(ctx, learnerID)
	if err != nil {
		return nil, err
	}
	byTopic := make(map[string]*domain.ProgressRecord, len(records))
	for _, rec := range records {
		byTopic[rec.TopicID] = rec
	}

	firstID := s.catalog.First().ID
	listing := make([]domain.TopicLessons, 0, len(s.catalog.Topics()))
	for _, topic := range s.catalog.Topics() {
		maxDay, err := s.catalog.MaxDay(topic.ID)
		if err != nil {
			return nil, err
		}
		rec := byTopic[topic.ID]
		boundary := 0
		if rec != nil {
			boundary = rec.MaxAccessibleDay()
		} else if topic.ID == firstID && len(records) == 0 {
			boundary = 1
		}

		days := make([]domain.DayStatus, 0, maxDay)
		for day := 1; day <= maxDay; day++ {
			status := domain.DayStatus{Day: day, Unlocked: day <= boundary}
			if rec != nil {
				if score, ok := rec.Scores[day]; ok {
					status.Score = score
					status.Done = true
				}
			}
			days = append(days, status)
		}
		entry := domain.TopicLessons{Topic: topic, Days: days}
		if rec != nil {
			entry.Completed = rec.Completed
		}
		listing = append(listing, entry)
	}
	return listing, nil
}

// CompletedTopics reports how many topics the learner has fully finished.
func (s *TutorService) CompletedTopics(ctx context.Context, learnerID string) (int, error) {
	return s.progress.CountCompletedTopics(ctx, learnerID)
}

// recordPass applies a passing score under the store's per-key exclusivity:
// record the day, then either advance currentDay or complete the topic and
// chain a fresh record for the next one. A day that already holds a score is
// treated as a duplicate submission: the score is refreshed and nothing else
// moves, which keeps double-clicks and network retries idempotent.
func (s *TutorService) recordPass(ctx context.Context, learnerID string, topic domain.Topic, day, maxDay, score int, enforceUnlock bool) (*domain.SubmissionResult, error) {
	var completedNow bool
	var next *domain.Topic

	updated, err := s.progress.Update(ctx, learnerID, topic.ID, func(current *domain.ProgressRecord) ([]*domain.ProgressRecord, error) {
		completedNow = false
		next = nil

		rec := current
		if rec == nil {
			rec = s.newRecord(learnerID, topic)
		}
		now := s.now()
		rec.LastAccessedAt = now

		if _, done := rec.Scores[day]; done {
			rec.Scores[day] = score
			return []*domain.ProgressRecord{rec}, nil
		}
		if enforceUnlock && day > rec.MaxAccessibleDay() {
			return nil, &domain.AccessDeniedError{TopicID: topic.ID, RequestedDay: day, MaxAccessibleDay: rec.MaxAccessibleDay()}
		}

		rec.Scores[day] = score
		if day == maxDay {
			completedAt := now
			rec.Completed = true
			rec.CompletedAt = &completedAt
			rec.CurrentDay = maxDay

			nextTopic, err := s.catalog.NextAfter(topic.ID)
			if err != nil {
				return nil, err
			}
			completedNow = true
			next = &nextTopic

			// Chaining always restarts the next topic cleanly, even when a
			// stale record exists for it.
			chained := s.newRecord(learnerID, nextTopic)
			return []*domain.ProgressRecord{rec, chained}, nil
		}

		rec.CurrentDay = len(rec.Scores) + 1
		return []*domain.ProgressRecord{rec}, nil
	})
	if err != nil {
		return nil, err
	}

	return &domain.SubmissionResult{
		Passed:         true,
		Progress:       updated[0],
		TopicCompleted: completedNow,
		NextTopic:      next,
	}, nil
}

// unlockBoundary computes the highest day the learner may open on a topic.
// With no record yet, only the first day is open.
func (s *TutorService) unlockBoundary(ctx context.Context, learnerID, topicID string, maxDay int) (int, error) {
	rec, found, err := s.progress.Get(ctx, learnerID, topicID)
	if err != nil {
		return 0, err
	}
	boundary := 1
	if found {
		boundary = rec.MaxAccessibleDay()
	}
	if boundary > maxDay {
		boundary = maxDay
	}
	return boundary, nil
}

func (s *TutorService) newRecord(learnerID string, topic domain.Topic) *domain.ProgressRecord {
	return &domain.ProgressRecord{
		LearnerID:      learnerID,
		TopicID:        topic.ID,
		Level:          topic.Level,
		CurrentDay:     1,
		Scores:         make(map[int]int),
		LastAccessedAt: s.now(),
	}
}
