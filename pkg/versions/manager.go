// Package versions creates, lists, switches and deletes textual snapshots
// of a message's primary block. History is bounded; "latest" is never stored
// as a version, so returning to it relies on a side-channel backup of the
// live content taken on the first switch away.
package versions

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"historydb/pkg/ids"
	"historydb/pkg/logger"
	"historydb/pkg/memstore"
	"historydb/pkg/models"
	"historydb/pkg/store"
)

// DefaultMaxVersions caps stored snapshots per message.
const DefaultMaxVersions = 20

// originalContentKey is the settings slot holding the live content captured
// on the first transition away from latest. One mutable slot per message.
func originalContentKey(messageID string) string {
	return "original-content:" + messageID
}

// MessageLister lets the manager locate a version's owner when the mirror
// has not loaded the owning topic. Optional.
type MessageLister interface {
	ListMessages(ctx context.Context) ([]*models.Message, error)
}

// Manager implements the version state machine per message:
// latest (no CurrentVersionID) <-> viewing-version (CurrentVersionID set).
type Manager struct {
	gw     store.Gateway
	mem    *memstore.Store
	lister MessageLister
	max    int
}

// Option customizes a Manager.
type Option func(*Manager)

// WithMaxVersions overrides the per-message snapshot cap.
func WithMaxVersions(n int) Option {
	return func(m *Manager) {
		if n > 0 {
			m.max = n
		}
	}
}

// WithLister wires a fallback message scan for owner lookup.
func WithLister(l MessageLister) Option {
	return func(m *Manager) { m.lister = l }
}

// NewManager creates a version manager over the gateway and mirror.
func NewManager(gw store.Gateway, mem *memstore.Store, opts ...Option) *Manager {
	m := &Manager{gw: gw, mem: mem, max: DefaultMaxVersions}
	for _, o := range opts {
		o(m)
	}
	return m
}

func (m *Manager) message(ctx context.Context, id string) (*models.Message, error) {
	if msg := m.mem.Message(id); msg != nil {
		return msg, nil
	}
	msg, err := m.gw.GetMessage(ctx, id)
	if err == store.ErrNotFound {
		return nil, nil
	}
	return msg, err
}

// primaryBlock returns the message's first text block, or nil if none.
func (m *Manager) primaryBlock(ctx context.Context, msg *models.Message) *models.Block {
	for _, bid := range msg.Blocks {
		b := m.mem.Block(bid)
		if b == nil {
			var err error
			b, err = m.gw.GetBlock(ctx, bid)
			if err != nil {
				continue
			}
		}
		if b.Type == models.BlockText {
			return b
		}
	}
	return nil
}

// SaveCurrentAsVersion snapshots the message's primary content as a new
// version, pruning oldest-by-creation-time entries over the cap.
//
// An empty snapshot is meaningless: when neither content nor the primary
// block carries text, it returns (nil, nil). Store failures propagate, since
// callers (regeneration) must not proceed on a silently-lost snapshot.
func (m *Manager) SaveCurrentAsVersion(ctx context.Context, messageID, content, model string, source models.VersionSource) (*models.MessageVersion, error) {
	msg, err := m.message(ctx, messageID)
	if err != nil {
		return nil, errors.Wrap(err, "load message for snapshot")
	}
	if msg == nil {
		return nil, nil
	}

	if content == "" {
		if pb := m.primaryBlock(ctx, msg); pb != nil {
			content = pb.Content
		}
	}
	if content == "" {
		return nil, nil
	}
	if model == "" {
		model = msg.Model
	}

	now := time.Now().UTC().UnixNano()
	v := models.MessageVersion{
		ID:                ids.NewVersionID(),
		MessageID:         messageID,
		Blocks:            append([]string(nil), msg.Blocks...),
		CreatedAt:         now,
		Model:             model,
		Content:           content,
		Source:            source,
		PreviousVersionID: msg.CurrentVersionID,
	}

	vs := append(append([]models.MessageVersion(nil), msg.Versions...), v)
	vs = pruneOldest(vs, m.max)

	patch := models.MessagePatch{Versions: &vs, UpdatedAt: &now}
	if _, err := m.gw.UpdateMessage(ctx, messageID, patch); err != nil {
		return nil, errors.Wrap(err, "persist version")
	}
	m.mem.UpdateMessage(messageID, patch)

	logger.Log.Info("version_saved",
		zap.String("message", messageID),
		zap.String("version", v.ID),
		zap.String("source", string(source)),
		zap.Int("versions", len(vs)),
	)
	return &v, nil
}

// pruneOldest evicts oldest-by-creation-time versions until at most max
// remain. The list stays in its stored (append) order.
func pruneOldest(vs []models.MessageVersion, max int) []models.MessageVersion {
	for len(vs) > max {
		oldest := 0
		for i := 1; i < len(vs); i++ {
			if vs[i].CreatedAt < vs[oldest].CreatedAt {
				oldest = i
			}
		}
		vs = append(vs[:oldest], vs[oldest+1:]...)
	}
	return vs
}

// findOwner locates the message owning a version id. Switches are rare and
// interactive, so a scan over all messages is fine; no dedicated index.
func (m *Manager) findOwner(ctx context.Context, versionID string) (*models.Message, *models.MessageVersion) {
	scan := func(msgs []*models.Message) (*models.Message, *models.MessageVersion) {
		for _, msg := range msgs {
			for i := range msg.Versions {
				if msg.Versions[i].ID == versionID {
					return msg, &msg.Versions[i]
				}
			}
		}
		return nil, nil
	}
	if msg, v := scan(m.mem.Messages()); msg != nil {
		return msg, v
	}
	if m.lister != nil {
		if all, err := m.lister.ListMessages(ctx); err == nil {
			return scan(all)
		}
	}
	return nil, nil
}

// writePrimaryContent overwrites the primary block's content in both the
// durable store and the mirror, creating a text block if the message has
// none.
func (m *Manager) writePrimaryContent(ctx context.Context, msg *models.Message, content string) error {
	now := time.Now().UTC().UnixNano()
	if pb := m.primaryBlock(ctx, msg); pb != nil {
		patch := models.BlockPatch{Content: &content, UpdatedAt: &now}
		b, err := m.gw.UpdateMessageBlock(ctx, pb.ID, patch)
		if err != nil {
			return err
		}
		if !m.mem.UpdateBlock(pb.ID, patch) {
			m.mem.UpsertBlock(b)
		}
		return nil
	}

	b := &models.Block{
		ID:        ids.NewBlockID(),
		MessageID: msg.ID,
		Type:      models.BlockText,
		Status:    models.BlockSuccess,
		Content:   content,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := m.gw.SaveMessageBlock(ctx, b); err != nil {
		return err
	}
	blocks := append(append([]string(nil), msg.Blocks...), b.ID)
	patch := models.MessagePatch{Blocks: &blocks, UpdatedAt: &now}
	if _, err := m.gw.UpdateMessage(ctx, msg.ID, patch); err != nil {
		return err
	}
	m.mem.UpsertBlock(b)
	m.mem.UpdateMessage(msg.ID, patch)
	return nil
}

// SwitchToVersion displays a stored snapshot. On the first transition away
// from latest it backs the live content up into the side-channel slot so a
// later SwitchToLatest can restore it. Returns false on unknown version or
// store failure.
func (m *Manager) SwitchToVersion(ctx context.Context, versionID string) bool {
	msg, v := m.findOwner(ctx, versionID)
	if msg == nil {
		logger.Log.Warn("switch_version_not_found", zap.String("version", versionID))
		return false
	}

	if msg.CurrentVersionID == "" {
		var live string
		if pb := m.primaryBlock(ctx, msg); pb != nil {
			live = pb.Content
		}
		if err := m.gw.SaveSetting(ctx, originalContentKey(msg.ID), live); err != nil {
			logger.Log.Error("switch_version_backup_failed", zap.String("message", msg.ID), zap.Error(err))
			return false
		}
	}

	if err := m.writePrimaryContent(ctx, msg, v.Content); err != nil {
		logger.Log.Error("switch_version_write_failed", zap.String("version", versionID), zap.Error(err))
		return false
	}

	now := time.Now().UTC().UnixNano()
	cur := v.ID
	patch := models.MessagePatch{CurrentVersionID: &cur, UpdatedAt: &now}
	if _, err := m.gw.UpdateMessage(ctx, msg.ID, patch); err != nil {
		logger.Log.Error("switch_version_update_failed", zap.String("message", msg.ID), zap.Error(err))
		return false
	}
	m.mem.UpdateMessage(msg.ID, patch)
	logger.Log.Info("version_switched", zap.String("message", msg.ID), zap.String("version", versionID))
	return true
}

// SwitchToLatest returns the message to its live content. Success when the
// message is already at latest. When the side-channel backup is missing the
// restore is best-effort: newest stored snapshot first, else whatever the
// primary block currently holds. The message is always left with some
// non-empty content.
func (m *Manager) SwitchToLatest(ctx context.Context, messageID string) bool {
	msg, err := m.message(ctx, messageID)
	if err != nil || msg == nil {
		logger.Log.Warn("switch_latest_message_missing", zap.String("message", messageID), zap.Error(err))
		return false
	}
	if msg.CurrentVersionID == "" {
		return true
	}

	content, haveBackup := "", false
	if s, err := m.gw.GetSetting(ctx, originalContentKey(messageID)); err == nil {
		content, haveBackup = s, true
	} else if err != store.ErrNotFound {
		logger.Log.Warn("switch_latest_backup_read_failed", zap.String("message", messageID), zap.Error(err))
	}

	if !haveBackup || content == "" {
		// Newest-first scan of other snapshots for recoverable content.
		var newest *models.MessageVersion
		for i := range msg.Versions {
			v := &msg.Versions[i]
			if v.ID == msg.CurrentVersionID || v.Content == "" {
				continue
			}
			if newest == nil || v.CreatedAt > newest.CreatedAt {
				newest = v
			}
		}
		if newest != nil {
			content = newest.Content
		}
	}
	if content == "" {
		if pb := m.primaryBlock(ctx, msg); pb != nil {
			content = pb.Content
		}
	}

	if content != "" {
		if err := m.writePrimaryContent(ctx, msg, content); err != nil {
			logger.Log.Error("switch_latest_write_failed", zap.String("message", messageID), zap.Error(err))
			return false
		}
	}

	now := time.Now().UTC().UnixNano()
	empty := ""
	patch := models.MessagePatch{CurrentVersionID: &empty, UpdatedAt: &now}
	if _, err := m.gw.UpdateMessage(ctx, messageID, patch); err != nil {
		logger.Log.Error("switch_latest_update_failed", zap.String("message", messageID), zap.Error(err))
		return false
	}
	m.mem.UpdateMessage(messageID, patch)
	_ = m.gw.DeleteSetting(ctx, originalContentKey(messageID))
	logger.Log.Info("switched_to_latest", zap.String("message", messageID))
	return true
}

// DeleteVersion removes a snapshot. Deleting the currently-viewed version
// first returns the message to latest.
func (m *Manager) DeleteVersion(ctx context.Context, versionID string) bool {
	msg, _ := m.findOwner(ctx, versionID)
	if msg == nil {
		logger.Log.Warn("delete_version_not_found", zap.String("version", versionID))
		return false
	}

	if msg.CurrentVersionID == versionID {
		if !m.SwitchToLatest(ctx, msg.ID) {
			return false
		}
	}

	vs := make([]models.MessageVersion, 0, len(msg.Versions))
	for _, v := range msg.Versions {
		if v.ID != versionID {
			vs = append(vs, v)
		}
	}
	now := time.Now().UTC().UnixNano()
	patch := models.MessagePatch{Versions: &vs, UpdatedAt: &now}
	if _, err := m.gw.UpdateMessage(ctx, msg.ID, patch); err != nil {
		logger.Log.Error("delete_version_failed", zap.String("version", versionID), zap.Error(err))
		return false
	}
	m.mem.UpdateMessage(msg.ID, patch)
	logger.Log.Info("version_deleted", zap.String("message", msg.ID), zap.String("version", versionID))
	return true
}

// ListVersions returns the stored snapshots for a message, oldest first.
func (m *Manager) ListVersions(ctx context.Context, messageID string) ([]models.MessageVersion, error) {
	msg, err := m.message(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if msg == nil {
		return nil, nil
	}
	return append([]models.MessageVersion(nil), msg.Versions...), nil
}
