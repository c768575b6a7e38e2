package postgres

import (
	"context"
	"errors"
	"fmt"

	"lingua-tutor-service/internal/catalog"
	"lingua-tutor-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// CatalogLoader reads the curriculum topics from Postgres. The catalog is
// loaded once at process start; day counts come from the lesson rows.
type CatalogLoader struct {
	pool *pgxpool.Pool
}

func NewCatalogLoader(pool *pgxpool.Pool) *CatalogLoader {
	return &CatalogLoader{pool: pool}
}

func (l *CatalogLoader) LoadCatalog(ctx context.Context) ([]catalog.TopicEntry, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT t.id, t.level, t.ord, t.display_name, count(les.day)
		FROM topics t
		LEFT JOIN lessons les ON les.topic_id = t.id
		GROUP BY t.id, t.level, t.ord, t.display_name
		ORDER BY t.ord`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	var entries []catalog.TopicEntry
	for rows.Next() {
		var entry catalog.TopicEntry
		if err := rows.Scan(&entry.Topic.ID, &entry.Topic.Level, &entry.Topic.Order, &entry.Topic.DisplayName, &entry.DayCount); err != nil {
			return nil, fmt.Errorf("scan topic: %w", err)
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// LessonLoader fetches lesson reference texts; it sits behind the caching
// lesson repositories.
type LessonLoader struct {
	pool *pgxpool.Pool
}

func NewLessonLoader(pool *pgxpool.Pool) *LessonLoader {
	return &LessonLoader{pool: pool}
}

func (l *LessonLoader) LoadLesson(ctx context.Context, topicID string, day int) (domain.Lesson, error) {
	var text string
	err := l.pool.QueryRow(ctx,
		`SELECT reference_text FROM lessons WHERE topic_id=$1 AND day=$2`,
		topicID, day).Scan(&text)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Lesson{}, domain.ErrLessonNotFound
	}
	if err != nil {
		return domain.Lesson{}, fmt.Errorf("load lesson: %w", err)
	}
	return domain.Lesson{TopicID: topicID, Day: day, Text: text}, nil
}
