package redis

import (
	"context"
	"sync"
	"testing"
	"time"

	"lingua-tutor-service/internal/domain"
	"lingua-tutor-service/internal/infra/memory"
	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func TestLessonRepositoryCachesInRedis(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	loader := &countingLoader{
		LessonLoader: memory.NewStaticLessonLoader([]domain.Lesson{{
			TopicID: "greetings",
			Day:     1,
			Text:    "Bonjour je m'appelle Marie",
		}}),
	}
	repo := NewLessonRepository(client, loader, time.Minute)

	lesson, err := repo.GetLesson(context.Background(), "greetings", 1)
	if err != nil {
		t.Fatalf("get lesson: %v", err)
	}
	if lesson.Text != "Bonjour je m'appelle Marie" {
		t.Fatalf("unexpected text: %q", lesson.Text)
	}
	if loader.calls != 1 {
		t.Fatalf("expected loader called once, got %d", loader.calls)
	}

	// Second call should hit the Redis hash, loader not incremented.
	if _, err := repo.GetLesson(context.Background(), "greetings", 1); err != nil {
		t.Fatalf("get lesson 2: %v", err)
	}
	if loader.calls != 1 {
		t.Fatalf("expected cache hit, loader calls=%d", loader.calls)
	}
	if !mr.Exists("lesson:greetings:texts") {
		t.Fatalf("expected lesson hash in redis")
	}
}

func TestLessonRepositoryConcurrentFills(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})

	var lessons []domain.Lesson
	for day := 1; day <= 8; day++ {
		lessons = append(lessons, domain.Lesson{TopicID: "greetings", Day: day, Text: "texte du jour"})
	}
	repo := NewLessonRepository(client, memory.NewStaticLessonLoader(lessons), time.Minute)

	// Distinct keys miss the cache at the same time, so the fills (and their
	// TTL jitter) run in parallel.
	var wg sync.WaitGroup
	for day := 1; day <= 8; day++ {
		wg.Add(1)
		go func(day int) {
			defer wg.Done()
			lesson, err := repo.GetLesson(context.Background(), "greetings", day)
			if err != nil {
				t.Errorf("get lesson day %d: %v", day, err)
				return
			}
			if lesson.Day != day {
				t.Errorf("expected day %d, got %d", day, lesson.Day)
			}
		}(day)
	}
	wg.Wait()

	if !mr.Exists("lesson:greetings:texts") {
		t.Fatalf("expected lesson hash in redis")
	}
}

func TestLessonRepositoryPropagatesMiss(t *testing.T) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("run miniredis: %v", err)
	}
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	repo := NewLessonRepository(client, memory.NewStaticLessonLoader(nil), time.Minute)

	if _, err := repo.GetLesson(context.Background(), "greetings", 1); err != domain.ErrLessonNotFound {
		t.Fatalf("expected ErrLessonNotFound, got %v", err)
	}
}

type countingLoader struct {
	memory.LessonLoader
	calls int
}

func (l *countingLoader) LoadLesson(ctx context.Context, topicID string, day int) (domain.Lesson, error) {
	l.calls++
	return l.LessonLoader.LoadLesson(ctx, topicID, day)
}
