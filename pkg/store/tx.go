package store

import (
	"context"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"historydb/pkg/logger"
	"historydb/pkg/models"
)

// txn adapts an indexed Pebble batch to the Tx contract. Reads go through
// the batch so they observe pending writes within the same transaction.
type txn struct {
	b *pebble.Batch
}

var _ Tx = (*txn)(nil)

func (t *txn) GetMessage(id string) (*models.Message, error) {
	var m models.Message
	if err := getJSON(t.b, msgKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (t *txn) SaveMessage(msg *models.Message) error { return saveMessage(t.b, msg) }

func (t *txn) DeleteMessage(id string) error { return deleteMessage(t.b, t.b, id) }

func (t *txn) SaveMessageBlock(b *models.Block) error { return saveBlock(t.b, b) }

func (t *txn) BulkSaveMessageBlocks(blocks []*models.Block) error {
	for _, b := range blocks {
		if err := saveBlock(t.b, b); err != nil {
			return err
		}
	}
	return nil
}

func (t *txn) DeleteMessageBlock(id string) error { return deleteBlock(t.b, t.b, id) }

func (t *txn) GetTopic(id string) (*models.Topic, error) {
	var tp models.Topic
	if err := getJSON(t.b, topicKey(id), &tp); err != nil {
		return nil, err
	}
	return &tp, nil
}

func (t *txn) SaveTopic(tp *models.Topic) error { return setJSON(t.b, topicKey(tp.ID), tp) }

func (t *txn) DeleteTopic(id string) error { return t.b.Delete(topicKey(id), pebble.Sync) }

func (t *txn) SaveSetting(key, value string) error {
	return t.b.Set(settingKey(key), []byte(value), pebble.Sync)
}

// Transaction runs fn against an indexed batch and commits it with a sync
// write. If fn returns an error the batch is discarded and nothing becomes
// visible.
func (s *Store) Transaction(ctx context.Context, fn func(tx Tx) error) error {
	if err := s.ready(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	txnsTotal.Inc()
	b := s.db.NewIndexedBatch()
	if err := fn(&txn{b: b}); err != nil {
		txnFailuresTotal.Inc()
		_ = b.Close()
		return err
	}
	if err := b.Commit(pebble.Sync); err != nil {
		txnFailuresTotal.Inc()
		logger.Log.Error("txn_commit_failed", zap.Error(err))
		return err
	}
	return nil
}
