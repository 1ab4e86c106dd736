package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"historydb/pkg/models"
)

func TestValidateMessage(t *testing.T) {
	SetRules(Rules{})
	t.Cleanup(func() { SetRules(Rules{}) })

	require.NoError(t, ValidateMessage(&models.Message{TopicID: "t1", Role: models.RoleUser}))

	err := ValidateMessage(&models.Message{Role: "robot"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "topic_id is required")
	require.Contains(t, err.Error(), "invalid role")
}

func TestValidateMessageBlockCap(t *testing.T) {
	SetRules(Rules{MaxBlocksPerMessage: 2})
	t.Cleanup(func() { SetRules(Rules{}) })

	m := &models.Message{TopicID: "t1", Role: models.RoleUser, Blocks: []string{"b1", "b2", "b3"}}
	err := ValidateMessage(m)
	require.Error(t, err)
	require.Contains(t, err.Error(), "too many blocks")
}

func TestValidateBlock(t *testing.T) {
	SetRules(Rules{})
	t.Cleanup(func() { SetRules(Rules{}) })

	require.NoError(t, ValidateBlock(&models.Block{MessageID: "m1", Type: models.BlockText}))

	err := ValidateBlock(&models.Block{Type: "hologram"})
	require.Error(t, err)
	require.Contains(t, err.Error(), "message_id is required")
	require.Contains(t, err.Error(), "invalid block type")
}

func TestValidateBlockContentCap(t *testing.T) {
	SetRules(Rules{MaxContentLen: 8})
	t.Cleanup(func() { SetRules(Rules{}) })

	b := &models.Block{MessageID: "m1", Type: models.BlockText, Content: strings.Repeat("x", 9)}
	err := ValidateBlock(b)
	require.Error(t, err)
	require.Contains(t, err.Error(), "content too large")
}
