// Package cache provides a coalescing read cache in front of the durable
// store's topic table. Concurrent reads for the same topic id collapse into
// a single store fetch.
package cache

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"historydb/pkg/models"
	"historydb/pkg/store"
)

// TopicReader is the slice of the gateway the cache needs.
type TopicReader interface {
	GetTopic(ctx context.Context, id string) (*models.Topic, error)
}

// TopicCache caches topic metadata and coalesces concurrent misses.
type TopicCache struct {
	src TopicReader

	group  singleflight.Group
	mu     sync.RWMutex
	topics map[string]*models.Topic
}

// New creates a TopicCache over the given reader.
func New(src TopicReader) *TopicCache {
	return &TopicCache{src: src, topics: make(map[string]*models.Topic)}
}

// GetTopic returns the cached topic, fetching through the reader on a miss.
// A missing topic yields (nil, nil); absence is not cached, so a topic
// created later becomes visible on the next read.
func (c *TopicCache) GetTopic(ctx context.Context, id string) (*models.Topic, error) {
	c.mu.RLock()
	t, ok := c.topics[id]
	c.mu.RUnlock()
	if ok {
		return t.Clone(), nil
	}

	v, err, _ := c.group.Do(id, func() (any, error) {
		t, err := c.src.GetTopic(ctx, id)
		if err != nil {
			if err == store.ErrNotFound {
				return (*models.Topic)(nil), nil
			}
			return nil, err
		}
		c.mu.Lock()
		c.topics[id] = t.Clone()
		c.mu.Unlock()
		return t, nil
	})
	if err != nil {
		return nil, err
	}
	t, _ = v.(*models.Topic)
	return t.Clone(), nil
}

// Put stores a topic after a successful write.
func (c *TopicCache) Put(t *models.Topic) {
	if t == nil || t.ID == "" {
		return
	}
	c.mu.Lock()
	c.topics[t.ID] = t.Clone()
	c.mu.Unlock()
}

// Invalidate drops the cached entry for a topic id.
func (c *TopicCache) Invalidate(id string) {
	c.mu.Lock()
	delete(c.topics, id)
	c.mu.Unlock()
}
