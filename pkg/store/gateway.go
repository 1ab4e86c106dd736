// Package store implements the durable store gateway on top of Pebble.
// Messages, blocks, topics and settings live in one keyspace; multi-entity
// mutations run through Transaction which maps to an atomic Pebble batch.
package store

import (
	"context"
	"errors"

	"historydb/pkg/models"
)

// ErrNotFound is returned when the requested entity does not exist.
var ErrNotFound = errors.New("store: not found")

// ErrClosed is returned when the store has been closed.
var ErrClosed = errors.New("store: closed")

// Gateway is the durable-store call contract consumed by the reactive
// store, the version manager and the branch cloner.
type Gateway interface {
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	SaveMessage(ctx context.Context, msg *models.Message) error
	UpdateMessage(ctx context.Context, id string, patch models.MessagePatch) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
	GetMessagesByIDs(ctx context.Context, ids []string) ([]*models.Message, error)

	GetBlock(ctx context.Context, id string) (*models.Block, error)
	GetMessageBlocksByMessageID(ctx context.Context, messageID string) ([]*models.Block, error)
	GetMessageBlocksByMessageIDs(ctx context.Context, messageIDs []string) ([]*models.Block, error)
	SaveMessageBlock(ctx context.Context, b *models.Block) error
	BulkSaveMessageBlocks(ctx context.Context, blocks []*models.Block) error
	UpdateMessageBlock(ctx context.Context, id string, patch models.BlockPatch) (*models.Block, error)
	DeleteMessageBlock(ctx context.Context, id string) error

	GetTopic(ctx context.Context, id string) (*models.Topic, error)
	SaveTopic(ctx context.Context, t *models.Topic) error
	DeleteTopic(ctx context.Context, id string) error
	ListTopics(ctx context.Context) ([]*models.Topic, error)

	SaveSetting(ctx context.Context, key, value string) error
	GetSetting(ctx context.Context, key string) (string, error)
	DeleteSetting(ctx context.Context, key string) error

	// Transaction runs fn against a write batch. Either every write in fn
	// becomes visible at once, or none do.
	Transaction(ctx context.Context, fn func(tx Tx) error) error
}

// Tx is the write surface available inside a transaction. Reads performed
// through a Tx observe the transaction's own pending writes.
type Tx interface {
	GetMessage(id string) (*models.Message, error)
	SaveMessage(msg *models.Message) error
	DeleteMessage(id string) error
	SaveMessageBlock(b *models.Block) error
	BulkSaveMessageBlocks(blocks []*models.Block) error
	DeleteMessageBlock(id string) error
	GetTopic(id string) (*models.Topic, error)
	SaveTopic(t *models.Topic) error
	DeleteTopic(id string) error
	SaveSetting(key, value string) error
}
