// Package branch forks a conversation: it deep-clones a prefix of one
// topic's messages and blocks into a new topic, atomically, with fresh
// identifiers. Cloning (not re-pointing) keeps the forked topic
// independently editable and keeps block ownership per-topic.
package branch

import (
	"context"
	"sort"
	"time"

	"go.uber.org/zap"

	"historydb/pkg/ids"
	"historydb/pkg/logger"
	"historydb/pkg/memstore"
	"historydb/pkg/models"
	"historydb/pkg/store"
)

// Cloner copies topic prefixes through the durable gateway and mirrors the
// result into the reactive store.
type Cloner struct {
	gw  store.Gateway
	mem *memstore.Store
}

// NewCloner creates a Cloner.
func NewCloner(gw store.Gateway, mem *memstore.Store) *Cloner {
	return &Cloner{gw: gw, mem: mem}
}

// sourceMessages returns the source topic's messages in chronological
// order, preferring the mirror and falling back to the durable store.
func (c *Cloner) sourceMessages(ctx context.Context, topicID string) ([]*models.Message, error) {
	if msgs := c.mem.TopicMessages(topicID); len(msgs) > 0 {
		return msgs, nil
	}
	topic, err := c.gw.GetTopic(ctx, topicID)
	if err != nil {
		return nil, err
	}
	msgs, err := c.gw.GetMessagesByIDs(ctx, topic.MessageIDs)
	if err != nil {
		return nil, err
	}
	sort.SliceStable(msgs, func(i, j int) bool {
		if msgs[i].CreatedAt != msgs[j].CreatedAt {
			return msgs[i].CreatedAt < msgs[j].CreatedAt
		}
		return msgs[i].ID < msgs[j].ID
	})
	return msgs, nil
}

// CloneMessagesToNewTopic clones the prefix of sourceTopicID through
// branchPointMessageID into newTopic. Returns false when the source is
// empty, the branch point is unknown, or the transactional write fails; no
// partial clone is ever observable.
func (c *Cloner) CloneMessagesToNewTopic(ctx context.Context, sourceTopicID, branchPointMessageID string, newTopic *models.Topic) bool {
	msgs, err := c.sourceMessages(ctx, sourceTopicID)
	if err != nil {
		logger.Log.Error("clone_load_source_failed", zap.String("topic", sourceTopicID), zap.Error(err))
		return false
	}
	if len(msgs) == 0 {
		logger.Log.Warn("clone_source_empty", zap.String("topic", sourceTopicID))
		return false
	}
	branchIdx := -1
	for i, m := range msgs {
		if m.ID == branchPointMessageID {
			branchIdx = i
			break
		}
	}
	if branchIdx < 0 {
		logger.Log.Warn("clone_branch_point_missing",
			zap.String("topic", sourceTopicID),
			zap.String("message", branchPointMessageID),
		)
		return false
	}
	prefix := msgs[:branchIdx+1]

	// Clone timestamps are stamped strictly increasing so the new topic's
	// index re-derives to clone order.
	base := time.Now().UTC().UnixNano()

	var (
		clonedMsgs   []*models.Message
		clonedBlocks []*models.Block
		msgIDs       []string
	)
	for i, src := range prefix {
		blocks, err := c.messageBlocks(ctx, src)
		if err != nil {
			logger.Log.Error("clone_load_blocks_failed", zap.String("message", src.ID), zap.Error(err))
			return false
		}

		newMsgID := ids.NewMessageID()
		blockIDMap := make(map[string]string, len(src.Blocks))
		for _, bid := range src.Blocks {
			blockIDMap[bid] = ids.NewBlockID()
		}

		ts := base + int64(i)
		for _, b := range blocks {
			nb := b.Clone()
			nb.ID = blockIDMap[b.ID]
			if nb.ID == "" {
				nb.ID = ids.NewBlockID()
			}
			nb.MessageID = newMsgID
			nb.CreatedAt = ts
			nb.UpdatedAt = ts
			clonedBlocks = append(clonedBlocks, nb)
		}

		nm := src.Clone()
		nm.ID = newMsgID
		nm.TopicID = newTopic.ID
		nm.CreatedAt = ts
		nm.UpdatedAt = ts
		nm.Blocks = remapIDs(src.Blocks, blockIDMap)
		nm.Versions = cloneVersions(src.Versions, newMsgID, blockIDMap)
		// The clone starts at latest; the old side-channel backup does not
		// follow it.
		nm.CurrentVersionID = ""

		clonedMsgs = append(clonedMsgs, nm)
		msgIDs = append(msgIDs, newMsgID)
	}

	nt := newTopic.Clone()
	nt.MessageIDs = msgIDs
	nt.LastMessageTime = clonedMsgs[len(clonedMsgs)-1].CreatedAt
	if nt.CreatedAt == 0 {
		nt.CreatedAt = base
	}
	nt.UpdatedAt = base

	err = c.gw.Transaction(ctx, func(tx store.Tx) error {
		if err := tx.BulkSaveMessageBlocks(clonedBlocks); err != nil {
			return err
		}
		for _, m := range clonedMsgs {
			if err := tx.SaveMessage(m); err != nil {
				return err
			}
		}
		return tx.SaveTopic(nt)
	})
	if err != nil {
		logger.Log.Error("clone_txn_failed",
			zap.String("source", sourceTopicID),
			zap.String("target", nt.ID),
			zap.Error(err),
		)
		return false
	}

	c.mem.UpsertBlocks(clonedBlocks)
	for _, m := range clonedMsgs {
		c.mem.AddMessage(nt.ID, m)
	}

	logger.Log.Info("topic_cloned",
		zap.String("source", sourceTopicID),
		zap.String("target", nt.ID),
		zap.Int("messages", len(clonedMsgs)),
		zap.Int("blocks", len(clonedBlocks)),
	)
	return true
}

func (c *Cloner) messageBlocks(ctx context.Context, msg *models.Message) ([]*models.Block, error) {
	if blocks := c.mem.MessageBlocks(msg.ID); len(blocks) == len(msg.Blocks) {
		return blocks, nil
	}
	return c.gw.GetMessageBlocksByMessageID(ctx, msg.ID)
}

func remapIDs(src []string, m map[string]string) []string {
	out := make([]string, 0, len(src))
	for _, id := range src {
		if nid, ok := m[id]; ok {
			out = append(out, nid)
		} else {
			out = append(out, id)
		}
	}
	return out
}

// cloneVersions rewrites snapshot ownership for the cloned message. Version
// ids are regenerated so owner lookup by version id stays unambiguous
// across topics; previous-version references are remapped where possible.
func cloneVersions(vs []models.MessageVersion, newMsgID string, blockIDMap map[string]string) []models.MessageVersion {
	if len(vs) == 0 {
		return nil
	}
	verIDMap := make(map[string]string, len(vs))
	for _, v := range vs {
		verIDMap[v.ID] = ids.NewVersionID()
	}
	out := make([]models.MessageVersion, 0, len(vs))
	for _, v := range vs {
		nv := *v.Clone()
		nv.ID = verIDMap[v.ID]
		nv.MessageID = newMsgID
		nv.Blocks = remapIDs(v.Blocks, blockIDMap)
		if nid, ok := verIDMap[v.PreviousVersionID]; ok {
			nv.PreviousVersionID = nid
		} else {
			nv.PreviousVersionID = ""
		}
		out = append(out, nv)
	}
	return out
}
