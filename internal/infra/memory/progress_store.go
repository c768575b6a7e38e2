package memory

import (
	"context"
	"sort"
	"sync"

	"lingua-tutor-service/internal/app"
	"lingua-tutor-service/internal/domain"
)

// ProgressStore is an in-memory implementation of app.ProgressStore, used for
// tests and single-process runs. Updates on the same (learner, topic) key are
// serialized by a per-key mutex; unrelated keys proceed independently.
type ProgressStore struct {
	mu      sync.RWMutex
	records map[string]*domain.ProgressRecord

	locksMu sync.Mutex
	locks   map[string]*sync.Mutex
}

func NewProgressStore() *ProgressStore {
	return &ProgressStore{
		records: make(map[string]*domain.ProgressRecord),
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *ProgressStore) Get(_ context.Context, learnerID, topicID string) (*domain.ProgressRecord, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[recordKey(learnerID, topicID)]
	if !ok {
		return nil, false, nil
	}
	return rec.Clone(), true, nil
}

func (s *ProgressStore) ListByLearner(_ context.Context, learnerID string) ([]*domain.ProgressRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var records []*domain.ProgressRecord
	for _, rec := range s.records {
		if rec.LearnerID == learnerID {
			records = append(records, rec.Clone())
		}
	}
	sort.Slice(records, func(i, j int) bool { return records[i].TopicID < records[j].TopicID })
	return records, nil
}

func (s *ProgressStore) CountCompletedTopics(_ context.Context, learnerID string) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	count := 0
	for _, rec := range s.records {
		if rec.LearnerID == learnerID && rec.Completed {
			count++
		}
	}
	return count, nil
}

// Update runs fn under the key's mutex and persists every returned record in
// one critical section, so readers never observe a half-applied chaining step.
func (s *ProgressStore) Update(_ context.Context, learnerID, topicID string, fn app.UpdateFunc) ([]*domain.ProgressRecord, error) {
	lock := s.keyLock(learnerID, topicID)
	lock.Lock()
	defer lock.Unlock()

	s.mu.RLock()
	var current *domain.ProgressRecord
	if rec, ok := s.records[recordKey(learnerID, topicID)]; ok {
		current = rec.Clone()
	}
	s.mu.RUnlock()

	out, err := fn(current)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	for _, rec := range out {
		s.records[recordKey(rec.LearnerID, rec.TopicID)] = rec.Clone()
	}
	s.mu.Unlock()
	return out, nil
}

func (s *ProgressStore) keyLock(learnerID, topicID string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	key := recordKey(learnerID, topicID)
	lock, ok := s.locks[key]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[key] = lock
	}
	return lock
}

func recordKey(learnerID, topicID string) string {
	return learnerID + "|" + topicID
}
