package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// maxUpdateRetries bounds the internal retry loop on optimistic-transaction
// conflicts before the update is reported as domain.ErrConflict.
const maxUpdateRetries = 32

// ProgressStore keeps progress records in Redis.
// Layout:
//   - record:  SET progress:{learnerID}:{topicID} -> JSON ProgressRecord
//   - index:   SADD learner:{learnerID}:topics {topicID}
//
// Update runs under WATCH on the record key, so concurrent writes to the same
// (learner, topic) pair fail the transaction and are retried with a fresh read.
type ProgressStore struct {
	client *redis.Client
}

func NewProgressStore(client *redis.Client) *ProgressStore {
	return &ProgressStore{client: client}
}

func (s *ProgressStore) Get(ctx context.Context, learnerID, topicID string) (*domain.ProgressRecord, bool, error) {
	data, err := s.client.Get(ctx, recordKey(learnerID, topicID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("get progress: %w", err)
	}
	rec, err := decodeRecord(data)
	if err != nil {
		return nil, false, err
	}
	return rec, true, nil
}

func (s *ProgressStore) ListByLearner(ctx context.Context, learnerID string) ([]*domain.ProgressRecord, error) {
	topicIDs, err := s.client.SMembers(ctx, indexKey(learnerID)).Result()
	if err != nil {
		return nil, fmt.Errorf("list progress index: %w", err)
	}
	records := make([]*domain.ProgressRecord, 0, len(topicIDs))
	for _, topicID := range topicIDs {
		rec, found, err := s.Get(ctx, learnerID, topicID)
		if err != nil {
			return nil, err
		}
		if found {
			records = append(records, rec)
		}
	}
	return records, nil
}

func (s *ProgressStore) CountCompletedTopics(ctx context.Context, learnerID string) (int, error) {
	records, err := s.ListByLearner(ctx, learnerID)
	if err != nil {
		return 0, err
	}
	count := 0
	for _, rec := range records {
		if rec.Completed {
			count++
		}
	}
	return count, nil
}

// Update applies fn under an optimistic WATCH transaction. All returned
// records are written in one MULTI/EXEC block, so the completion write and the
// chained next-topic write land atomically.
func (s *ProgressStore) Update(ctx context.Context, learnerID, topicID string, fn app.UpdateFunc) ([]*domain.ProgressRecord, error) {
	key := recordKey(learnerID, topicID)

	var out []*domain.ProgressRecord
	txn := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		var current *domain.ProgressRecord
		switch {
		case errors.Is(err, redis.Nil):
			// no record yet
		case err != nil:
			return fmt.Errorf("read progress: %w", err)
		default:
			if current, err = decodeRecord(data); err != nil {
				return err
			}
		}

		out, err = fn(current)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			for _, rec := range out {
				encoded, err := json.Marshal(rec)
				if err != nil {
					return fmt.Errorf("encode progress: %w", err)
				}
				pipe.Set(ctx, recordKey(rec.LearnerID, rec.TopicID), encoded, 0)
				pipe.SAdd(ctx, indexKey(rec.LearnerID), rec.TopicID)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxUpdateRetries; attempt++ {
		err := s.client.Watch(ctx, txn, key)
		if err == nil {
			return out, nil
		}
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		return nil, err
	}
	return nil, domain.ErrConflict
}

func recordKey(learnerID, topicID string) string {
	return "progress:" + learnerID + ":" + topicID
}

func indexKey(learnerID string) string {
	return "learner:" + learnerID + ":topics"
}

func decodeRecord(data []byte) (*domain.ProgressRecord, error) {
	var rec domain.ProgressRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode progress: %w", err)
	}
	if rec.Scores == nil {
		rec.Scores = make(map[int]int)
	}
	return &rec, nil
}
