package branch

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"historydb/pkg/memstore"
	"historydb/pkg/models"
	"historydb/pkg/store"
)

func newCloneFixture(t *testing.T) (*store.Store, *memstore.Store, *Cloner) {
	t.Helper()
	st, err := store.Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	mem := memstore.New(nil, nil)
	return st, mem, NewCloner(st, mem)
}

// seedTopic persists n alternating user/assistant messages, one text block
// each, and mirrors everything.
func seedTopic(t *testing.T, st *store.Store, mem *memstore.Store, topicID string, n int) []string {
	t.Helper()
	ctx := context.Background()
	topic := &models.Topic{ID: topicID, CreatedAt: 1}
	msgIDs := make([]string, 0, n)
	for i := 0; i < n; i++ {
		mid := fmt.Sprintf("%s-m%d", topicID, i)
		bid := mid + "-b0"
		role := models.RoleUser
		if i%2 == 1 {
			role = models.RoleAssistant
		}
		b := &models.Block{ID: bid, MessageID: mid, Type: models.BlockText, Content: fmt.Sprintf("content %d", i), CreatedAt: int64(10 + i)}
		m := &models.Message{ID: mid, TopicID: topicID, Role: role, Blocks: []string{bid}, CreatedAt: int64(10 + i)}
		require.NoError(t, st.SaveMessageBlock(ctx, b))
		require.NoError(t, st.SaveMessage(ctx, m))
		mem.UpsertBlock(b)
		mem.AddMessage(topicID, m)
		msgIDs = append(msgIDs, mid)
		topic.MessageIDs = append(topic.MessageIDs, mid)
	}
	require.NoError(t, st.SaveTopic(ctx, topic))
	return msgIDs
}

func TestClonePrefixIsomorphic(t *testing.T) {
	st, mem, cl := newCloneFixture(t)
	ctx := context.Background()
	srcIDs := seedTopic(t, st, mem, "src", 5)

	nt := &models.Topic{ID: "fork", Name: "forked"}
	require.True(t, cl.CloneMessagesToNewTopic(ctx, "src", srcIDs[2], nt))

	stored, err := st.GetTopic(ctx, "fork")
	require.NoError(t, err)
	require.Len(t, stored.MessageIDs, 3)

	clones, err := st.GetMessagesByIDs(ctx, stored.MessageIDs)
	require.NoError(t, err)
	require.Len(t, clones, 3)

	for i, cm := range clones {
		// Fresh identity, same shape.
		require.NotContains(t, srcIDs, cm.ID)
		require.Equal(t, "fork", cm.TopicID)
		require.Equal(t, fmt.Sprintf("content %d", i), mustOnlyBlock(t, st, cm).Content)
		if i > 0 {
			require.Greater(t, cm.CreatedAt, clones[i-1].CreatedAt)
		}
	}

	// Cloned blocks have fresh ids and point at the clone, not the source.
	for _, cm := range clones {
		b := mustOnlyBlock(t, st, cm)
		require.Equal(t, cm.ID, b.MessageID)
		require.NotContains(t, b.ID, "src-")
	}

	require.Equal(t, clones[2].CreatedAt, stored.LastMessageTime)

	// The source topic is untouched.
	src, err := st.GetTopic(ctx, "src")
	require.NoError(t, err)
	require.Len(t, src.MessageIDs, 5)
}

func mustOnlyBlock(t *testing.T, st *store.Store, m *models.Message) *models.Block {
	t.Helper()
	require.Len(t, m.Blocks, 1)
	b, err := st.GetBlock(context.Background(), m.Blocks[0])
	require.NoError(t, err)
	return b
}

func TestCloneMirrorsIntoMemstore(t *testing.T) {
	st, mem, cl := newCloneFixture(t)
	srcIDs := seedTopic(t, st, mem, "src", 3)

	nt := &models.Topic{ID: "fork"}
	require.True(t, cl.CloneMessagesToNewTopic(context.Background(), "src", srcIDs[1], nt))

	mirrored := mem.TopicMessages("fork")
	require.Len(t, mirrored, 2)
	for _, m := range mirrored {
		require.Len(t, mem.MessageBlocks(m.ID), 1)
	}
}

func TestCloneMissingBranchPoint(t *testing.T) {
	st, mem, cl := newCloneFixture(t)
	seedTopic(t, st, mem, "src", 3)

	nt := &models.Topic{ID: "fork"}
	require.False(t, cl.CloneMessagesToNewTopic(context.Background(), "src", "ghost", nt))

	_, err := st.GetTopic(context.Background(), "fork")
	require.ErrorIs(t, err, store.ErrNotFound)
}

func TestCloneEmptySource(t *testing.T) {
	st, _, cl := newCloneFixture(t)
	require.NoError(t, st.SaveTopic(context.Background(), &models.Topic{ID: "src"}))

	nt := &models.Topic{ID: "fork"}
	require.False(t, cl.CloneMessagesToNewTopic(context.Background(), "src", "m1", nt))
}

func TestCloneFallsBackToGatewayWhenMirrorCold(t *testing.T) {
	st, _, _ := newCloneFixture(t)
	coldMem := memstore.New(nil, nil)
	cl := NewCloner(st, coldMem)
	ctx := context.Background()

	// Persist without mirroring.
	topic := &models.Topic{ID: "src"}
	for i := 0; i < 2; i++ {
		mid := fmt.Sprintf("src-m%d", i)
		require.NoError(t, st.SaveMessage(ctx, &models.Message{ID: mid, TopicID: "src", CreatedAt: int64(10 + i)}))
		topic.MessageIDs = append(topic.MessageIDs, mid)
	}
	require.NoError(t, st.SaveTopic(ctx, topic))

	nt := &models.Topic{ID: "fork"}
	require.True(t, cl.CloneMessagesToNewTopic(ctx, "src", "src-m1", nt))

	stored, err := st.GetTopic(ctx, "fork")
	require.NoError(t, err)
	require.Len(t, stored.MessageIDs, 2)
}

func TestCloneRegeneratesVersionIDs(t *testing.T) {
	st, mem, cl := newCloneFixture(t)
	ctx := context.Background()

	b := &models.Block{ID: "src-m0-b0", MessageID: "src-m0", Type: models.BlockText, Content: "live", CreatedAt: 10}
	m := &models.Message{
		ID: "src-m0", TopicID: "src", Blocks: []string{b.ID}, CreatedAt: 10,
		CurrentVersionID: "ver-1",
		Versions: []models.MessageVersion{
			{ID: "ver-1", MessageID: "src-m0", Content: "v one", CreatedAt: 11},
			{ID: "ver-2", MessageID: "src-m0", Content: "v two", CreatedAt: 12, PreviousVersionID: "ver-1"},
		},
	}
	require.NoError(t, st.SaveMessageBlock(ctx, b))
	require.NoError(t, st.SaveMessage(ctx, m))
	require.NoError(t, st.SaveTopic(ctx, &models.Topic{ID: "src", MessageIDs: []string{"src-m0"}}))
	mem.UpsertBlock(b)
	mem.AddMessage("src", m)

	nt := &models.Topic{ID: "fork"}
	require.True(t, cl.CloneMessagesToNewTopic(ctx, "src", "src-m0", nt))

	stored, err := st.GetTopic(ctx, "fork")
	require.NoError(t, err)
	clones, err := st.GetMessagesByIDs(ctx, stored.MessageIDs)
	require.NoError(t, err)
	require.Len(t, clones, 1)

	cm := clones[0]
	// Clones start at latest and carry renumbered snapshots.
	require.Empty(t, cm.CurrentVersionID)
	require.Len(t, cm.Versions, 2)
	require.NotEqual(t, "ver-1", cm.Versions[0].ID)
	require.NotEqual(t, "ver-2", cm.Versions[1].ID)
	require.Equal(t, cm.ID, cm.Versions[0].MessageID)
	require.Equal(t, cm.Versions[0].ID, cm.Versions[1].PreviousVersionID)
}
