package postgres

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/domain"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// jsonNull marks a placeholder row that only exists to carry a lock.
var jsonNull = []byte("null")

// ProgressStore persists progress records as JSONB rows. The composite primary
// key (learner_id, topic_id) enforces the one-record-per-pair constraint
// structurally, and Update takes a row-level lock so concurrent submissions on
// the same key serialize inside the database.
type ProgressStore struct {
	pool *pgxpool.Pool
}

func NewProgressStore(pool *pgxpool.Pool) *ProgressStore {
	return &ProgressStore{pool: pool}
}

func (s *ProgressStore) Get(ctx context.Context, learnerID, topicID string) (*domain.ProgressRecord, bool, error) {
	var raw []byte
	err := s.pool.QueryRow(ctx,
		`SELECT data FROM progress WHERE learner_id=$1 AND topic_id=$2`,
		learnerID, topicID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get progress: %w", err)
	}
	if bytes.Equal(raw, jsonNull) {
		return nil, false, nil
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *ProgressStore) ListByLearner(ctx context.Context, learnerID string) ([]*domain.ProgressRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT data FROM progress WHERE learner_id=$1 AND data <> 'null'::jsonb ORDER BY topic_id`,
		learnerID)
	if err != nil {
		return nil, fmt.Errorf("list progress: %w", err)
	}
	defer rows.Close()

	var records []*domain.ProgressRecord
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan progress: %w", err)
		}
		rec, err := decodeRecord(raw)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (s *ProgressStore) CountCompletedTopics(ctx context.Context, learnerID string) (int, error) {
	var count int
	err := s.pool.QueryRow(ctx,
		`SELECT count(*) FROM progress WHERE learner_id=$1 AND completed`,
		learnerID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count completed: %w", err)
	}
	return count, nil
}

// Update runs fn inside a transaction holding a row lock on the keyed record,
// then upserts every returned record before committing. A failed callback
// rolls the whole transaction back, including the lock-carrier row inserted
// for first-time learners.
func (s *ProgressStore) Update(ctx context.Context, learnerID, topicID string, fn app.UpdateFunc) ([]*domain.ProgressRecord, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin progress update: %w", err)
	}
	defer tx.Rollback(ctx)

	// Make sure a row exists so SELECT ... FOR UPDATE has something to lock
	// even before the learner's first submission.
	if _, err := tx.Exec(ctx,
		`INSERT INTO progress (learner_id, topic_id, completed, data) VALUES ($1, $2, FALSE, 'null'::jsonb)
		 ON CONFLICT (learner_id, topic_id) DO NOTHING`,
		learnerID, topicID); err != nil {
		return nil, fmt.Errorf("ensure progress row: %w", err)
	}

	var raw []byte
	if err := tx.QueryRow(ctx,
		`SELECT data FROM progress WHERE learner_id=$1 AND topic_id=$2 FOR UPDATE`,
		learnerID, topicID).Scan(&raw); err != nil {
		return nil, fmt.Errorf("lock progress row: %w", err)
	}

	var current *domain.ProgressRecord
	if !bytes.Equal(raw, jsonNull) {
		if current, err = decodeRecord(raw); err != nil {
			return nil, err
		}
	}

	out, err := fn(current)
	if err != nil {
		return nil, err
	}

	for _, rec := range out {
		encoded, err := json.Marshal(rec)
		if err != nil {
			return nil, fmt.Errorf("encode progress: %w", err)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO progress (learner_id, topic_id, completed, data, updated_at) VALUES ($1, $2, $3, $4, now())
			 ON CONFLICT (learner_id, topic_id) DO UPDATE SET completed=EXCLUDED.completed, data=EXCLUDED.data, updated_at=now()`,
			rec.LearnerID, rec.TopicID, rec.Completed, encoded); err != nil {
			return nil, fmt.Errorf("write progress: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit progress update: %w", err)
	}
	return out, nil
}

func decodeRecord(raw []byte) (*domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if rec.Scores == nil {
		rec.Scores = make(map[int]int)
	}
	return &rec, nil
}
