package memstore

import (
	"context"
	"time"

	"go.uber.org/zap"

	"historydb/pkg/logger"
	"historydb/pkg/models"
)

// TopicSource resolves topic metadata; in the running app this is the
// coalescing topic cache.
type TopicSource interface {
	GetTopic(ctx context.Context, id string) (*models.Topic, error)
}

// MessageSource is the slice of the durable gateway LoadTopic needs.
type MessageSource interface {
	GetMessagesByIDs(ctx context.Context, ids []string) ([]*models.Message, error)
	GetMessageBlocksByMessageIDs(ctx context.Context, messageIDs []string) ([]*models.Block, error)
	SaveTopic(ctx context.Context, t *models.Topic) error
}

// LoadTopic populates the mirror for a topic from the durable store.
//
// It is a no-op when the topic's index is present and every id resolves to a
// loaded message (index length alone is not sufficient; partial loads must
// not look complete), and when a load is already in flight for the topic.
// Loads are serialized per topic via the loading flag.
//
// The context may be cancelled at any suspension point; a cancelled load
// stops mutating state. The loading flag is cleared on every exit path, but
// only by the load generation that set it.
func (s *Store) LoadTopic(ctx context.Context, topicID string) error {
	s.mu.Lock()
	ts := s.topicStateLocked(topicID)
	if ts.loading {
		s.mu.Unlock()
		return nil
	}
	if s.topicLoadedLocked(ts) {
		s.mu.Unlock()
		return nil
	}
	ts.loading = true
	ts.loadGen++
	gen := ts.loadGen
	s.mu.Unlock()

	err := s.loadTopic(ctx, topicID, gen)

	s.mu.Lock()
	if ts.loadGen == gen {
		ts.loading = false
	}
	s.mu.Unlock()

	if err != nil {
		if ctx.Err() == nil {
			serr := &StoreError{Code: CodeLoadMessages, TopicID: topicID, Err: err}
			s.RecordError(serr, topicID)
			logger.Log.Error("load_messages_failed", zap.String("topic", topicID), zap.Error(err))
			return serr
		}
		return err
	}
	return nil
}

func (s *Store) topicLoadedLocked(ts *topicState) bool {
	if len(ts.ids) == 0 {
		return false
	}
	for _, id := range ts.ids {
		if _, ok := s.messages[id]; !ok {
			return false
		}
	}
	return true
}

// guard returns ctx.Err so every post-suspend mutation is preceded by a
// cancellation check.
func guard(ctx context.Context) error { return ctx.Err() }

func (s *Store) loadTopic(ctx context.Context, topicID string, gen uint64) error {
	topic, err := s.topicSrc.GetTopic(ctx, topicID)
	if err != nil {
		return err
	}
	if err := guard(ctx); err != nil {
		return err
	}

	// Unknown topic: create an empty record so later appends have a home.
	if topic == nil {
		now := time.Now().UTC().UnixNano()
		topic = &models.Topic{ID: topicID, CreatedAt: now, UpdatedAt: now}
		if err := s.msgSrc.SaveTopic(ctx, topic); err != nil {
			return err
		}
		logger.Log.Debug("topic_created_on_load", zap.String("topic", topicID))
		return nil
	}

	msgs, err := s.msgSrc.GetMessagesByIDs(ctx, topic.MessageIDs)
	if err != nil {
		return err
	}
	if err := guard(ctx); err != nil {
		return err
	}

	blocks, err := s.msgSrc.GetMessageBlocksByMessageIDs(ctx, topic.MessageIDs)
	if err != nil {
		return err
	}
	if err := guard(ctx); err != nil {
		return err
	}

	// A newer load owns the flag; this one must not mutate state anymore.
	s.mu.Lock()
	stale := s.topics[topicID] == nil || s.topics[topicID].loadGen != gen
	s.mu.Unlock()
	if stale {
		return nil
	}

	s.UpsertBlocks(blocks)
	s.ReceiveMessages(topicID, msgs)
	logger.Log.Debug("topic_loaded",
		zap.String("topic", topicID),
		zap.Int("messages", len(msgs)),
		zap.Int("blocks", len(blocks)),
	)
	return nil
}
