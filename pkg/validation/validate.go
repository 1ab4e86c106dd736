// Package validation checks incoming entities at the API boundary before
// they reach the durable store.
package validation

import (
	"errors"
	"fmt"
	"strings"

	"historydb/pkg/models"
)

// Rules bounds accepted input. Zero values disable the corresponding check.
type Rules struct {
	// MaxContentLen caps block text content length in bytes.
	MaxContentLen int
	// MaxBlocksPerMessage caps the number of blocks one message may own.
	MaxBlocksPerMessage int
}

var rules Rules

// SetRules installs the active rule set.
func SetRules(r Rules) { rules = r }

var validRoles = map[models.MessageRole]struct{}{
	models.RoleUser:      {},
	models.RoleAssistant: {},
	models.RoleSystem:    {},
}

var validBlockTypes = map[models.BlockType]struct{}{
	models.BlockText:          {},
	models.BlockImage:         {},
	models.BlockSearchResults: {},
	models.BlockMultiModel:    {},
	models.BlockVideo:         {},
	models.BlockCode:          {},
}

// ValidateMessage checks a message before persistence.
func ValidateMessage(m *models.Message) error {
	var errs []string
	if m.TopicID == "" {
		errs = append(errs, "topic_id is required")
	}
	if _, ok := validRoles[m.Role]; !ok {
		errs = append(errs, fmt.Sprintf("invalid role: %q", m.Role))
	}
	if rules.MaxBlocksPerMessage > 0 && len(m.Blocks) > rules.MaxBlocksPerMessage {
		errs = append(errs, fmt.Sprintf("too many blocks: %d", len(m.Blocks)))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

// ValidateBlock checks a block before persistence.
func ValidateBlock(b *models.Block) error {
	var errs []string
	if b.MessageID == "" {
		errs = append(errs, "message_id is required")
	}
	if _, ok := validBlockTypes[b.Type]; !ok {
		errs = append(errs, fmt.Sprintf("invalid block type: %q", b.Type))
	}
	if rules.MaxContentLen > 0 && len(b.Content) > rules.MaxContentLen {
		errs = append(errs, fmt.Sprintf("content too large: %d bytes", len(b.Content)))
	}
	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}
