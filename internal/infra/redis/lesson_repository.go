package redis

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"time"

	"lingua-tutor-service/internal/domain"
	"lingua-tutor-service/internal/infra/memory"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"
)

// LessonRepository caches lesson reference texts in Redis (hash per topic) and
// falls back to a loader on cache miss.
// Texts are stored as: HSET lesson:{topicID}:texts {day} {referenceText}
type LessonRepository struct {
	client *redis.Client
	loader memory.LessonLoader
	ttl    time.Duration
	sf     singleflight.Group
}

func NewLessonRepository(client *redis.Client, loader memory.LessonLoader, ttl time.Duration) *LessonRepository {
	return &LessonRepository{
		client: client,
		loader: loader,
		ttl:    ttl,
	}
}

func (r *LessonRepository) GetLesson(ctx context.Context, topicID string, day int) (domain.Lesson, error) {
	key := r.textsKey(topicID)
	field := strconv.Itoa(day)

	text, err := r.client.HGet(ctx, key, field).Result()
	if err == nil {
		return domain.Lesson{TopicID: topicID, Day: day, Text: text}, nil
	}
	if !errors.Is(err, redis.Nil) {
		return domain.Lesson{}, fmt.Errorf("lesson cache read: %w", err)
	}

	result, err, _ := r.sf.Do(key+":"+field, func() (interface{}, error) {
		// Re-check cache in case another goroutine filled it.
		text, err := r.client.HGet(ctx, key, field).Result()
		if err == nil {
			return domain.Lesson{TopicID: topicID, Day: day, Text: text}, nil
		}

		lesson, err := r.loader.LoadLesson(ctx, topicID, day)
		if err != nil {
			return domain.Lesson{}, err
		}

		pipe := r.client.Pipeline()
		pipe.HSet(ctx, key, field, lesson.Text)
		if ttl := r.ttlWithJitter(); ttl > 0 {
			pipe.Expire(ctx, key, ttl)
		}
		_, _ = pipe.Exec(ctx)

		return lesson, nil
	})
	if err != nil {
		return domain.Lesson{}, err
	}
	return result.(domain.Lesson), nil
}

func (r *LessonRepository) textsKey(topicID string) string {
	return "lesson:" + topicID + ":texts"
}

func (r *LessonRepository) ttlWithJitter() time.Duration {
	if r.ttl <= 0 {
		return 0
	}
	// package-level source, safe for concurrent cache fills
	jitterMax := int64(r.ttl) / 10
	return r.ttl + time.Duration(rand.Int63n(jitterMax+1))
}
