// Package events publishes block lifecycle notifications. The reactive
// store emits an event on every block insert and mutation; UI collaborators
// subscribe to re-render streaming content.
package events

import (
	"context"
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/ThreeDotsLabs/watermill/pubsub/gochannel"
	"go.uber.org/zap"

	"historydb/pkg/logger"
	"historydb/pkg/models"
)

const (
	TopicBlockCreated = "history.block.created"
	TopicBlockUpdated = "history.block.updated"
)

// BlockEvent is the payload carried by block notifications.
type BlockEvent struct {
	BlockID   string             `json:"block_id"`
	MessageID string             `json:"message_id"`
	Type      models.BlockType   `json:"type"`
	Status    models.BlockStatus `json:"status"`
}

// Publisher is the emit surface consumed by the reactive store.
type Publisher interface {
	PublishBlockCreated(ev BlockEvent)
	PublishBlockUpdated(ev BlockEvent)
}

// Bus is an in-process pub/sub over watermill's gochannel transport.
type Bus struct {
	ps *gochannel.GoChannel
}

var _ Publisher = (*Bus)(nil)

// NewBus creates an event bus with a small per-subscriber buffer.
func NewBus() *Bus {
	ps := gochannel.NewGoChannel(
		gochannel.Config{OutputChannelBuffer: 64},
		watermill.NopLogger{},
	)
	return &Bus{ps: ps}
}

func (b *Bus) publish(topic string, ev BlockEvent) {
	payload, err := json.Marshal(ev)
	if err != nil {
		logger.Log.Error("event_marshal_failed", zap.String("topic", topic), zap.Error(err))
		return
	}
	msg := message.NewMessage(watermill.NewUUID(), payload)
	if err := b.ps.Publish(topic, msg); err != nil {
		logger.Log.Error("event_publish_failed", zap.String("topic", topic), zap.Error(err))
	}
}

func (b *Bus) PublishBlockCreated(ev BlockEvent) { b.publish(TopicBlockCreated, ev) }
func (b *Bus) PublishBlockUpdated(ev BlockEvent) { b.publish(TopicBlockUpdated, ev) }

// Subscribe returns a channel of raw messages for the given event topic.
// Callers must Ack each message.
func (b *Bus) Subscribe(ctx context.Context, topic string) (<-chan *message.Message, error) {
	return b.ps.Subscribe(ctx, topic)
}

// Close shuts the bus down and closes subscriber channels.
func (b *Bus) Close() error { return b.ps.Close() }

// Decode unmarshals a raw bus message into a BlockEvent.
func Decode(msg *message.Message) (BlockEvent, error) {
	var ev BlockEvent
	err := json.Unmarshal(msg.Payload, &ev)
	return ev, err
}
