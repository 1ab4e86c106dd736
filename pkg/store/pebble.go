package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"historydb/pkg/logger"
	"historydb/pkg/models"
)

// Key layout:
//
//	topic:<topicID>              topic metadata JSON
//	msg:<messageID>              message JSON (versions embedded)
//	blk:<blockID>                block JSON
//	msgblk:<messageID>:<blockID> per-message block index (empty value)
//	setting:<key>                generic key/value settings
func topicKey(id string) []byte   { return []byte("topic:" + id) }
func msgKey(id string) []byte     { return []byte("msg:" + id) }
func blockKey(id string) []byte   { return []byte("blk:" + id) }
func settingKey(k string) []byte  { return []byte("setting:" + k) }
func msgBlockPrefix(messageID string) []byte {
	return []byte("msgblk:" + messageID + ":")
}
func msgBlockKey(messageID, blockID string) []byte {
	return []byte("msgblk:" + messageID + ":" + blockID)
}

// reader is satisfied by *pebble.DB and *pebble.Batch (indexed).
type reader interface {
	Get(key []byte) ([]byte, io.Closer, error)
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

// writer is satisfied by *pebble.DB and *pebble.Batch.
type writer interface {
	Set(key, value []byte, opts *pebble.WriteOptions) error
	Delete(key []byte, opts *pebble.WriteOptions) error
}

// Store is the Pebble-backed durable store. It is created at startup and
// passed by handle through the composition root.
type Store struct {
	db   *pebble.DB
	path string
}

var _ Gateway = (*Store)(nil)

// Open opens (or creates) a Pebble database at the given path.
func Open(path string) (*Store, error) {
	logger.Log.Info("opening_pebble_db", zap.String("path", path))
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		logger.Log.Error("pebble_open_failed", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	logger.Log.Info("pebble_opened", zap.String("path", path))
	return &Store{db: db, path: path}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if err := s.db.Close(); err != nil {
		return err
	}
	s.db = nil
	logger.Log.Info("pebble_closed")
	return nil
}

// Path returns the on-disk database directory.
func (s *Store) Path() string { return s.path }

func (s *Store) ready() error {
	if s == nil || s.db == nil {
		return ErrClosed
	}
	return nil
}

// --- low-level helpers shared by Store and transactions ---

func getJSON(r reader, key []byte, dst any) error {
	v, closer, err := r.Get(key)
	if err != nil {
		if err == pebble.ErrNotFound {
			return ErrNotFound
		}
		return err
	}
	defer closer.Close()
	if err := json.Unmarshal(v, dst); err != nil {
		return fmt.Errorf("corrupt record at %s: %w", string(key), err)
	}
	return nil
}

func setJSON(w writer, key []byte, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshal %s: %w", string(key), err)
	}
	return w.Set(key, b, pebble.Sync)
}

func saveMessage(w writer, msg *models.Message) error {
	if msg.ID == "" {
		return fmt.Errorf("message id is empty")
	}
	return setJSON(w, msgKey(msg.ID), msg)
}

func saveBlock(w writer, b *models.Block) error {
	if b.ID == "" || b.MessageID == "" {
		return fmt.Errorf("block id and message_id are required")
	}
	if err := setJSON(w, blockKey(b.ID), b); err != nil {
		return err
	}
	return w.Set(msgBlockKey(b.MessageID, b.ID), nil, pebble.Sync)
}

func deleteBlock(r reader, w writer, id string) error {
	var b models.Block
	if err := getJSON(r, blockKey(id), &b); err != nil {
		if err == ErrNotFound {
			return nil
		}
		return err
	}
	if err := w.Delete(msgBlockKey(b.MessageID, b.ID), pebble.Sync); err != nil {
		return err
	}
	return w.Delete(blockKey(id), pebble.Sync)
}

// deleteMessage removes the message record and every block it owns.
func deleteMessage(r reader, w writer, id string) error {
	prefix := msgBlockPrefix(id)
	iter, err := r.NewIter(&pebble.IterOptions{})
	if err != nil {
		return err
	}
	var blockIDs []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		blockIDs = append(blockIDs, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Close(); err != nil {
		return err
	}
	for _, bid := range blockIDs {
		if err := w.Delete(blockKey(bid), pebble.Sync); err != nil {
			return err
		}
		if err := w.Delete(msgBlockKey(id, bid), pebble.Sync); err != nil {
			return err
		}
	}
	return w.Delete(msgKey(id), pebble.Sync)
}

func messageBlocks(r reader, messageID string) ([]*models.Block, error) {
	prefix := msgBlockPrefix(messageID)
	iter, err := r.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	var blockIDs []string
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		blockIDs = append(blockIDs, string(iter.Key()[len(prefix):]))
	}
	if err := iter.Close(); err != nil {
		return nil, err
	}
	out := make([]*models.Block, 0, len(blockIDs))
	for _, bid := range blockIDs {
		var b models.Block
		if err := getJSON(r, blockKey(bid), &b); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, &b)
	}
	return out, nil
}

// --- messages ---

func (s *Store) GetMessage(ctx context.Context, id string) (*models.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	readsTotal.WithLabelValues("message").Inc()
	var m models.Message
	if err := getJSON(s.db, msgKey(id), &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) SaveMessage(ctx context.Context, msg *models.Message) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("message").Inc()
	if err := saveMessage(s.db, msg); err != nil {
		logger.Log.Error("save_message_failed", zap.String("id", msg.ID), zap.Error(err))
		return err
	}
	logger.Log.Debug("message_saved", zap.String("id", msg.ID), zap.String("topic", msg.TopicID))
	return nil
}

func (s *Store) UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) (*models.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var m models.Message
	if err := getJSON(s.db, msgKey(id), &m); err != nil {
		return nil, err
	}
	m.Apply(patch)
	writesTotal.WithLabelValues("message").Inc()
	if err := setJSON(s.db, msgKey(id), &m); err != nil {
		logger.Log.Error("update_message_failed", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	logger.Log.Debug("message_updated", zap.String("id", id))
	return &m, nil
}

func (s *Store) DeleteMessage(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("message").Inc()
	if err := deleteMessage(s.db, s.db, id); err != nil {
		logger.Log.Error("delete_message_failed", zap.String("id", id), zap.Error(err))
		return err
	}
	logger.Log.Debug("message_deleted", zap.String("id", id))
	return nil
}

// GetMessagesByIDs bulk-fetches messages. Ids that do not resolve are
// skipped, so partially persisted topics load without failing.
func (s *Store) GetMessagesByIDs(ctx context.Context, ids []string) ([]*models.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	out := make([]*models.Message, 0, len(ids))
	for _, id := range ids {
		readsTotal.WithLabelValues("message").Inc()
		var m models.Message
		if err := getJSON(s.db, msgKey(id), &m); err != nil {
			if err == ErrNotFound {
				continue
			}
			return nil, err
		}
		out = append(out, &m)
	}
	return out, nil
}

// ListMessages returns every stored message. Used by the maintenance
// sweeper; not part of the Gateway contract.
func (s *Store) ListMessages(ctx context.Context) ([]*models.Message, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanJSON[models.Message](s.db, []byte("msg:"))
}

// --- blocks ---

func (s *Store) GetBlock(ctx context.Context, id string) (*models.Block, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	readsTotal.WithLabelValues("block").Inc()
	var b models.Block
	if err := getJSON(s.db, blockKey(id), &b); err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *Store) GetMessageBlocksByMessageID(ctx context.Context, messageID string) ([]*models.Block, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	readsTotal.WithLabelValues("block").Inc()
	return messageBlocks(s.db, messageID)
}

func (s *Store) GetMessageBlocksByMessageIDs(ctx context.Context, messageIDs []string) ([]*models.Block, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var out []*models.Block
	for _, mid := range messageIDs {
		readsTotal.WithLabelValues("block").Inc()
		bs, err := messageBlocks(s.db, mid)
		if err != nil {
			return nil, err
		}
		out = append(out, bs...)
	}
	return out, nil
}

func (s *Store) SaveMessageBlock(ctx context.Context, b *models.Block) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("block").Inc()
	if err := saveBlock(s.db, b); err != nil {
		logger.Log.Error("save_block_failed", zap.String("id", b.ID), zap.Error(err))
		return err
	}
	return nil
}

func (s *Store) BulkSaveMessageBlocks(ctx context.Context, blocks []*models.Block) error {
	if err := s.ready(); err != nil {
		return err
	}
	return s.Transaction(ctx, func(tx Tx) error {
		return tx.BulkSaveMessageBlocks(blocks)
	})
}

func (s *Store) UpdateMessageBlock(ctx context.Context, id string, patch models.BlockPatch) (*models.Block, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	var b models.Block
	if err := getJSON(s.db, blockKey(id), &b); err != nil {
		return nil, err
	}
	b.Apply(patch)
	writesTotal.WithLabelValues("block").Inc()
	if err := setJSON(s.db, blockKey(id), &b); err != nil {
		logger.Log.Error("update_block_failed", zap.String("id", id), zap.Error(err))
		return nil, err
	}
	return &b, nil
}

func (s *Store) DeleteMessageBlock(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("block").Inc()
	return deleteBlock(s.db, s.db, id)
}

// ListBlocks returns every stored block. Used by the maintenance sweeper.
func (s *Store) ListBlocks(ctx context.Context) ([]*models.Block, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanJSON[models.Block](s.db, []byte("blk:"))
}

// --- topics ---

func (s *Store) GetTopic(ctx context.Context, id string) (*models.Topic, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	readsTotal.WithLabelValues("topic").Inc()
	var t models.Topic
	if err := getJSON(s.db, topicKey(id), &t); err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) SaveTopic(ctx context.Context, t *models.Topic) error {
	if err := s.ready(); err != nil {
		return err
	}
	if t.ID == "" {
		return fmt.Errorf("topic id is empty")
	}
	writesTotal.WithLabelValues("topic").Inc()
	if err := setJSON(s.db, topicKey(t.ID), t); err != nil {
		logger.Log.Error("save_topic_failed", zap.String("id", t.ID), zap.Error(err))
		return err
	}
	logger.Log.Debug("topic_saved", zap.String("id", t.ID), zap.Int("messages", len(t.MessageIDs)))
	return nil
}

func (s *Store) DeleteTopic(ctx context.Context, id string) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("topic").Inc()
	if err := s.db.Delete(topicKey(id), pebble.Sync); err != nil {
		logger.Log.Error("delete_topic_failed", zap.String("id", id), zap.Error(err))
		return err
	}
	logger.Log.Info("topic_deleted", zap.String("id", id))
	return nil
}

func (s *Store) ListTopics(ctx context.Context) ([]*models.Topic, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return scanJSON[models.Topic](s.db, []byte("topic:"))
}

// --- settings ---

func (s *Store) SaveSetting(ctx context.Context, key, value string) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("setting").Inc()
	return s.db.Set(settingKey(key), []byte(value), pebble.Sync)
}

func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	if err := s.ready(); err != nil {
		return "", err
	}
	readsTotal.WithLabelValues("setting").Inc()
	v, closer, err := s.db.Get(settingKey(key))
	if err != nil {
		if err == pebble.ErrNotFound {
			return "", ErrNotFound
		}
		return "", err
	}
	defer closer.Close()
	return string(v), nil
}

func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	if err := s.ready(); err != nil {
		return err
	}
	writesTotal.WithLabelValues("setting").Inc()
	return s.db.Delete(settingKey(key), pebble.Sync)
}

// --- scanning ---

func scanJSON[T any](r reader, prefix []byte) ([]*T, error) {
	iter, err := r.NewIter(&pebble.IterOptions{})
	if err != nil {
		return nil, err
	}
	defer iter.Close()
	var out []*T
	for iter.SeekGE(prefix); iter.Valid(); iter.Next() {
		if !bytes.HasPrefix(iter.Key(), prefix) {
			break
		}
		var v T
		if err := json.Unmarshal(iter.Value(), &v); err != nil {
			return nil, fmt.Errorf("corrupt record at %s: %w", string(iter.Key()), err)
		}
		out = append(out, &v)
	}
	return out, iter.Error()
}
