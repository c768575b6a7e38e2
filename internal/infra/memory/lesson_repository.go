package memory

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"lingua-tutor-service/internal/domain"
	"golang.org/x/sync/singleflight"
)

// LessonLoader fetches lesson content from a backing store (e.g., Postgres).
type LessonLoader interface {
	LoadLesson(ctx context.Context, topicID string, day int) (domain.Lesson, error)
}

// LessonRepository caches lessons with TTL to avoid repeated DB hits. Lesson
// content is immutable, so staleness only matters across deployments.
type LessonRepository struct {
	loader LessonLoader
	ttl    time.Duration
	clock  func() time.Time
	sf     singleflight.Group

	mu    sync.RWMutex
	cache map[string]cachedLesson
}

type cachedLesson struct {
	lesson    domain.Lesson
	expiresAt time.Time
}

func NewLessonRepository(loader LessonLoader, ttl time.Duration) *LessonRepository {
	return &LessonRepository{
		loader: loader,
		ttl:    ttl,
		clock:  time.Now,
		cache:  make(map[string]cachedLesson),
	}
}

func (r *LessonRepository) GetLesson(ctx context.Context, topicID string, day int) (domain.Lesson, error) {
	key := lessonKey(topicID, day)
	now := r.clock()

	r.mu.RLock()
	if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
		r.mu.RUnlock()
		return entry.lesson, nil
	}
	r.mu.RUnlock()

	result, err, _ := r.sf.Do(key, func() (interface{}, error) {
		now := r.clock()
		r.mu.RLock()
		if entry, ok := r.cache[key]; ok && entry.expiresAt.After(now) {
			r.mu.RUnlock()
			return entry.lesson, nil
		}
		r.mu.RUnlock()

		lesson, err := r.loader.LoadLesson(ctx, topicID, day)
		if err != nil {
			return domain.Lesson{}, err
		}

		r.mu.Lock()
		r.cache[key] = cachedLesson{
			lesson:    lesson,
			expiresAt: now.Add(r.ttlWithJitter()),
		}
		r.mu.Unlock()
		return lesson, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return result.(domain.Lesson), nil
}

func (r *LessonRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// add up to 10% jitter to spread expirations; the package-level source
	// is safe for concurrent fills
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}

// StaticLessonLoader is a simple loader backed by an in-memory map (useful for
// tests and the no-database demo mode).
type StaticLessonLoader struct {
	lessons map[string]domain.Lesson
}

func NewStaticLessonLoader(lessons []domain.Lesson) *StaticLessonLoader {
	byKey := make(map[string]domain.Lesson, len(lessons))
	for _, lesson := range lessons {
		byKey[lessonKey(lesson.TopicID, lesson.Day)] = lesson
	}
	return &StaticLessonLoader{lessons: byKey}
}

func (l *StaticLessonLoader) LoadLesson(_ context.Context, topicID string, day int) (domain.Lesson, error) {
	if lesson, ok := l.lessons[lessonKey(topicID, day)]; ok {
		return lesson, nil
	}
	return domain.Lesson{}, domain.ErrLessonNotFound
}

func lessonKey(topicID string, day int) string {
	return fmt.Sprintf("%s:%d", topicID, day)
}
