package models

// VersionSource records what triggered a snapshot.
type VersionSource string

const (
	VersionSourceRegenerate VersionSource = "regenerate"
	VersionSourceManual     VersionSource = "manual"
)

// MessageVersion is a saved textual snapshot of its owning message's primary
// content. The "latest" live content is intentionally not stored as a
// version; switching back to latest is handled by the version manager.
type MessageVersion struct {
	ID        string `json:"id"`
	MessageID string `json:"message_id"`
	// Blocks is a copy of the owning message's block id list at snapshot
	// time (reference only, the blocks stay owned by the message).
	Blocks    []string `json:"blocks,omitempty"`
	CreatedAt int64    `json:"created_at"`
	Model     string   `json:"model,omitempty"`
	// Content is the full text snapshot of the primary block.
	Content string        `json:"content"`
	Source  VersionSource `json:"source,omitempty"`
	// PreviousVersionID references the version that was current when this
	// snapshot was taken. Reference only, never ownership.
	PreviousVersionID string `json:"previous_version_id,omitempty"`
}

// Clone returns a deep copy of the version.
func (v *MessageVersion) Clone() *MessageVersion {
	if v == nil {
		return nil
	}
	cp := *v
	cp.Blocks = append([]string(nil), v.Blocks...)
	return &cp
}
