package cli

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/catalog"
	"lingua-tutor-service/internal/config"
	"lingua-tutor-service/internal/domain"
	"lingua-tutor-service/internal/infra/memory"
	pginfra "lingua-tutor-service/internal/infra/postgres"
	redisinfra "lingua-tutor-service/internal/infra/redis"
	"lingua-tutor-service/internal/infra/whisper"
	transport "lingua-tutor-service/internal/transport/http"
	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/rs/cors"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the tutoring server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	// Curriculum catalog and lesson loader: Postgres when configured,
	// otherwise the compiled-in sample curriculum.
	var entries []catalog.TopicEntry
	var loader memory.LessonLoader
	if pool != nil {
		entries, err = pginfra.NewCatalogLoader(pool).LoadCatalog(ctx)
		if err != nil {
			return err
		}
		loader = pginfra.NewLessonLoader(pool)
	} else {
		entries = sampleTopics()
		loader = memory.NewStaticLessonLoader(sampleLessons())
	}
	cat, err := catalog.New(entries)
	if err != nil {
		return err
	}

	lessonTTL := config.Duration(cfg.Lesson.TTL, 10*time.Minute)
	var lessons app.LessonRepository
	if redisClient != nil {
		lessons = redisinfra.NewLessonRepository(redisClient, loader, lessonTTL)
	} else {
		lessons = memory.NewLessonRepository(loader, lessonTTL)
	}

	// Progress store: Postgres is the durable home; Redis covers deployments
	// without Postgres; in-memory is for local demo runs only.
	var store app.ProgressStore
	switch {
	case pool != nil:
		store = pginfra.NewProgressStore(pool)
	case redisClient != nil:
		store = redisinfra.NewProgressStore(redisClient)
	default:
		log.Printf("no postgres or redis configured, progress is in-memory only")
		store = memory.NewProgressStore()
	}

	var stt app.Transcriber
	if cfg.Transcriber.URL != "" {
		stt = whisper.NewTranscriber(cfg.Transcriber.URL, cfg.Transcriber.APIKey)
	} else {
		log.Printf("no transcriber configured, treating audio as plain text")
		stt = memory.NewPlainTextTranscriber()
	}

	language := cfg.Transcriber.Language
	if language == "" {
		language = "fr"
	}
	service := app.NewTutorService(cat, store, lessons, stt, language)
	service.TranscribeTimeout = config.Duration(cfg.Transcriber.Timeout, 30*time.Second)

	handler := transport.NewHandler(service)
	wsHandler := transport.NewWSHandler(service)
	routes := cors.AllowAll().Handler(handler.Routes(wsHandler))

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      routes,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	go func() {
		log.Printf("starting tutor service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// sampleTopics and sampleLessons provide a minimal French curriculum for runs
// without a database; swap in the Postgres catalog in production.
func sampleTopics() []catalog.TopicEntry {
	return []catalog.TopicEntry{
		{Topic: domain.Topic{ID: "presentations", Level: "A1", Order: 1, DisplayName: "Se présenter"}, DayCount: 3},
		{Topic: domain.Topic{ID: "professions", Level: "A1", Order: 2, DisplayName: "Les professions"}, DayCount: 2},
		{Topic: domain.Topic{ID: "quotidien", Level: "A2", Order: 3, DisplayName: "La vie quotidienne"}, DayCount: 2},
	}
}

func sampleLessons() []domain.Lesson {
	return []domain.Lesson{
		{TopicID: "presentations", Day: 1, Text: "Bonjour je m'appelle Marie J'habite à Paris"},
		{TopicID: "presentations", Day: 2, Text: "Comment tu t'appelles Tu habites où"},
		{TopicID: "presentations", Day: 3, Text: "Je vous présente mon ami Pierre Il est étudiant"},
		{TopicID: "professions", Day: 1, Text: "Je suis dentiste Tu es professeur"},
		{TopicID: "professions", Day: 2, Text: "Elle est avocate Il travaille à l'hôpital"},
		{TopicID: "quotidien", Day: 1, Text: "Je me lève à sept heures Je prends le petit déjeuner"},
		{TopicID: "quotidien", Day: 2, Text: "Le soir je rentre à la maison et je prépare le dîner"},
	}
}
