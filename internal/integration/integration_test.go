package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/catalog"
	"lingua-tutor-service/internal/domain"
	pginfra "lingua-tutor-service/internal/infra/postgres"
	pgmigrations "lingua-tutor-service/internal/infra/postgres/migrations"
	redisinfra "lingua-tutor-service/internal/infra/redis"
	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"
)

const refText = "un deux trois quatre cinq"

func TestSubmitAttemptEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	seedCurriculum(t, ctx, pgURL)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}

	entries, err := pginfra.NewCatalogLoader(pool).LoadCatalog(ctx)
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}
	cat, err := catalog.New(entries)
	if err != nil {
		t.Fatalf("catalog: %v", err)
	}

	lessons := redisinfra.NewLessonRepository(redisClient, pginfra.NewLessonLoader(pool), 5*time.Minute)
	store := pginfra.NewProgressStore(pool)
	service := app.NewTutorService(cat, store, lessons, noopTranscriber{}, "fr")

	today, err := service.TodayLesson(ctx, "learner-1")
	if err != nil {
		t.Fatalf("today: %v", err)
	}
	if today.Topic.ID != "greetings" || today.Lesson.Day != 1 {
		t.Fatalf("expected greetings day 1, got %s day %d", today.Topic.ID, today.Lesson.Day)
	}

	// Pass both days of the first topic; the second pass completes it and
	// chains into the next topic.
	for day := 1; day <= 2; day++ {
		result, err := service.SubmitAttempt(ctx, "learner-1", "greetings", day, refText, 3)
		if err != nil {
			t.Fatalf("submit day %d: %v", day, err)
		}
		if !result.Passed {
			t.Fatalf("expected pass on day %d, score %d", day, result.Assessment.Score)
		}
		if day == 2 {
			if !result.TopicCompleted || result.NextTopic == nil || result.NextTopic.ID != "family" {
				t.Fatalf("expected completion chaining into family, got %+v", result)
			}
		}
	}

	chained, found, err := store.Get(ctx, "learner-1", "family")
	if err != nil || !found {
		t.Fatalf("expected chained record, found=%v err=%v", found, err)
	}
	if chained.CurrentDay != 1 || len(chained.Scores) != 0 {
		t.Fatalf("expected fresh chained record, got %+v", chained)
	}

	count, err := store.CountCompletedTopics(ctx, "learner-1")
	if err != nil {
		t.Fatalf("count completed: %v", err)
	}
	if count != 1 {
		t.Fatalf("expected 1 completed topic, got %d", count)
	}

	// A below-threshold attempt on the new topic must leave it untouched.
	result, err := service.SubmitAttempt(ctx, "learner-1", "family", 1, "", 3)
	if err != nil {
		t.Fatalf("failing submit: %v", err)
	}
	if result.Passed {
		t.Fatalf("expected empty transcript to fail, got score %d", result.Assessment.Score)
	}
	after, _, err := store.Get(ctx, "learner-1", "family")
	if err != nil {
		t.Fatalf("get after fail: %v", err)
	}
	if len(after.Scores) != 0 {
		t.Fatalf("failed attempt must not record a score: %+v", after.Scores)
	}
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "tutor", "POSTGRES_PASSWORD": "tutorpass", "POSTGRES_DB": "tutordb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://tutor:tutorpass@%s:%s/tutordb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func seedCurriculum(t *testing.T, ctx context.Context, dsn string) {
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	topics := []struct {
		id, level, name string
		ord             int
		days            int
	}{
		{"greetings", "A1", "Greetings", 1, 2},
		{"family", "A1", "Family", 2, 2},
	}
	for _, topic := range topics {
		if _, err := db.ExecContext(ctx,
			`INSERT INTO topics (id, level, ord, display_name) VALUES (?, ?, ?, ?) ON CONFLICT (id) DO NOTHING`,
			topic.id, topic.level, topic.ord, topic.name); err != nil {
			t.Fatalf("insert topic: %v", err)
		}
		for day := 1; day <= topic.days; day++ {
			if _, err := db.ExecContext(ctx,
				`INSERT INTO lessons (topic_id, day, reference_text) VALUES (?, ?, ?) ON CONFLICT (topic_id, day) DO NOTHING`,
				topic.id, day, refText); err != nil {
				t.Fatalf("insert lesson: %v", err)
			}
		}
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}

type noopTranscriber struct{}

func (noopTranscriber) Transcribe(_ context.Context, audio []byte, _ string) (domain.Transcription, error) {
	return domain.Transcription{Transcript: string(audio), Confidence: 1}, nil
}
