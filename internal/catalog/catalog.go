package catalog

import (
	"sort"

	"lingua-tutor-service/internal/domain"
)

// TopicEntry pairs a topic with its number of lesson days. DayCount is derived
// from the lesson content defined for the topic and never changes at runtime.
type TopicEntry struct {
	Topic    domain.Topic
	DayCount int
}

// Catalog is the read-only curriculum: an ordered list of topics and the day
// count for each. It is built once at process start and safe for concurrent use.
type Catalog struct {
	ordered []TopicEntry
	byID    map[string]TopicEntry
}

// New builds a catalog from entries, sorting them by topic order.
func New(entries []TopicEntry) (*Catalog, error) {
	if len(entries) == 0 {
		return nil, domain.ErrCatalogEmpty
	}
	ordered := make([]TopicEntry, len(entries))
	copy(ordered, entries)
	sort.Slice(ordered, func(i, j int) bool {
		return ordered[i].Topic.Order < ordered[j].Topic.Order
	})
	byID := make(map[string]TopicEntry, len(ordered))
	for _, entry := range ordered {
		byID[entry.Topic.ID] = entry
	}
	return &Catalog{ordered: ordered, byID: byID}, nil
}

// First returns the topic at the head of the curriculum.
func (c *Catalog) First() domain.Topic {
	return c.ordered[0].Topic
}

// TopicByID looks up a topic by its stable key.
func (c *Catalog) TopicByID(id string) (domain.Topic, error) {
	entry, ok := c.byID[id]
	if !ok {
		return domain.Topic{}, domain.ErrTopicNotFound
	}
	return entry.Topic, nil
}

// NextAfter resolves the topic following the given one in curriculum order.
// After the last topic the curriculum wraps around to the first one, so a
// learner who finishes everything starts over rather than hitting a dead end.
func (c *Catalog) NextAfter(id string) (domain.Topic, error) {
	current, ok := c.byID[id]
	if !ok {
		return domain.Topic{}, domain.ErrTopicNotFound
	}
	for _, entry := range c.ordered {
		if entry.Topic.Order > current.Topic.Order {
			return entry.Topic, nil
		}
	}
	return c.ordered[0].Topic, nil
}

// MaxDay returns the number of lesson days defined for a topic.
func (c *Catalog) MaxDay(id string) (int, error) {
	entry, ok := c.byID[id]
	if !ok {
		return 0, domain.ErrTopicNotFound
	}
	return entry.DayCount, nil
}

// Topics returns all topics in curriculum order.
func (c *Catalog) Topics() []domain.Topic {
	topics := make([]domain.Topic, len(c.ordered))
	for i, entry := range c.ordered {
		topics[i] = entry.Topic
	}
	return topics
}
