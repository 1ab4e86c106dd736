package store

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"historydb/pkg/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestMessageCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := &models.Message{ID: "m1", TopicID: "t1", Role: models.RoleUser, CreatedAt: 100}
	require.NoError(t, s.SaveMessage(ctx, msg))

	got, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "t1", got.TopicID)
	require.Equal(t, models.RoleUser, got.Role)

	status := models.MessageError
	patched, err := s.UpdateMessage(ctx, "m1", models.MessagePatch{Status: &status})
	require.NoError(t, err)
	require.Equal(t, models.MessageError, patched.Status)

	require.NoError(t, s.DeleteMessage(ctx, "m1"))
	_, err = s.GetMessage(ctx, "m1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMessageRemovesOwnedBlocks(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	msg := &models.Message{ID: "m1", TopicID: "t1", Blocks: []string{"b1", "b2"}, CreatedAt: 1}
	require.NoError(t, s.SaveMessage(ctx, msg))
	require.NoError(t, s.SaveMessageBlock(ctx, &models.Block{ID: "b1", MessageID: "m1", Type: models.BlockText, Content: "one"}))
	require.NoError(t, s.SaveMessageBlock(ctx, &models.Block{ID: "b2", MessageID: "m1", Type: models.BlockText, Content: "two"}))

	require.NoError(t, s.DeleteMessage(ctx, "m1"))

	_, err := s.GetBlock(ctx, "b1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetBlock(ctx, "b2")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestGetMessagesByIDsSkipsMissing(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMessage(ctx, &models.Message{ID: "m1", TopicID: "t1", CreatedAt: 1}))
	require.NoError(t, s.SaveMessage(ctx, &models.Message{ID: "m3", TopicID: "t1", CreatedAt: 3}))

	got, err := s.GetMessagesByIDs(ctx, []string{"m1", "m2", "m3"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, "m1", got[0].ID)
	require.Equal(t, "m3", got[1].ID)
}

func TestMessageBlocksByMessageIDs(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveMessageBlock(ctx, &models.Block{ID: "b1", MessageID: "m1", Type: models.BlockText}))
	require.NoError(t, s.SaveMessageBlock(ctx, &models.Block{ID: "b2", MessageID: "m2", Type: models.BlockText}))
	require.NoError(t, s.SaveMessageBlock(ctx, &models.Block{ID: "b3", MessageID: "m1", Type: models.BlockImage}))

	got, err := s.GetMessageBlocksByMessageIDs(ctx, []string{"m1", "m2"})
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestTopicCRUDAndList(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTopic(ctx, &models.Topic{ID: "t1", Name: "one"}))
	require.NoError(t, s.SaveTopic(ctx, &models.Topic{ID: "t2", Name: "two"}))

	got, err := s.GetTopic(ctx, "t1")
	require.NoError(t, err)
	require.Equal(t, "one", got.Name)

	topics, err := s.ListTopics(ctx)
	require.NoError(t, err)
	require.Len(t, topics, 2)

	require.NoError(t, s.DeleteTopic(ctx, "t1"))
	_, err = s.GetTopic(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestSettingsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveSetting(ctx, "original-content:m1", "hello"))
	v, err := s.GetSetting(ctx, "original-content:m1")
	require.NoError(t, err)
	require.Equal(t, "hello", v)

	require.NoError(t, s.DeleteSetting(ctx, "original-content:m1"))
	_, err = s.GetSetting(ctx, "original-content:m1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionCommit(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	err := s.Transaction(ctx, func(tx Tx) error {
		if err := tx.SaveMessage(&models.Message{ID: "m1", TopicID: "t1", CreatedAt: 1}); err != nil {
			return err
		}
		if err := tx.SaveMessageBlock(&models.Block{ID: "b1", MessageID: "m1", Type: models.BlockText}); err != nil {
			return err
		}
		return tx.SaveTopic(&models.Topic{ID: "t1", MessageIDs: []string{"m1"}})
	})
	require.NoError(t, err)

	m, err := s.GetMessage(ctx, "m1")
	require.NoError(t, err)
	require.Equal(t, "t1", m.TopicID)
	_, err = s.GetBlock(ctx, "b1")
	require.NoError(t, err)
}

func TestTransactionAbortDiscardsWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	boom := errors.New("boom")
	err := s.Transaction(ctx, func(tx Tx) error {
		if err := tx.SaveMessage(&models.Message{ID: "m1", TopicID: "t1", CreatedAt: 1}); err != nil {
			return err
		}
		if err := tx.SaveTopic(&models.Topic{ID: "t1", MessageIDs: []string{"m1"}}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	_, err = s.GetMessage(ctx, "m1")
	require.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetTopic(ctx, "t1")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestTransactionReadsSeePendingWrites(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SaveTopic(ctx, &models.Topic{ID: "t1"}))

	err := s.Transaction(ctx, func(tx Tx) error {
		t1, err := tx.GetTopic("t1")
		if err != nil {
			return err
		}
		t1.MessageIDs = append(t1.MessageIDs, "m1")
		if err := tx.SaveTopic(t1); err != nil {
			return err
		}
		again, err := tx.GetTopic("t1")
		if err != nil {
			return err
		}
		require.Equal(t, []string{"m1"}, again.MessageIDs)
		return nil
	})
	require.NoError(t, err)
}

func TestClosedStoreErrors(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.Close())

	_, err := s.GetMessage(context.Background(), "m1")
	require.ErrorIs(t, err, ErrClosed)
}
