package models

// MessageRole identifies who produced a conversation turn.
type MessageRole string

const (
	RoleUser      MessageRole = "user"
	RoleAssistant MessageRole = "assistant"
	RoleSystem    MessageRole = "system"
)

// MessageStatus tracks the lifecycle of a message while a reply is being
// produced or a search is in flight.
type MessageStatus string

const (
	MessagePending   MessageStatus = "pending"
	MessageStreaming MessageStatus = "streaming"
	MessageSearching MessageStatus = "searching"
	MessageSuccess   MessageStatus = "success"
	MessageError     MessageStatus = "error"
)

// Message is one conversation turn. Content lives in Block entities owned
// exclusively by this message; Blocks holds their ids in render order.
type Message struct {
	ID      string      `json:"id"`
	TopicID string      `json:"topic_id"`
	Role    MessageRole `json:"role"`
	// Blocks is the ordered list of block ids composing this message.
	Blocks    []string      `json:"blocks"`
	CreatedAt int64         `json:"created_at"`
	UpdatedAt int64         `json:"updated_at,omitempty"`
	Status    MessageStatus `json:"status,omitempty"`
	// AskID links an assistant reply to the user message that triggered it.
	AskID string `json:"ask_id,omitempty"`
	// Model names the provider/model that produced an assistant message.
	Model string `json:"model,omitempty"`
	// CurrentVersionID is set while the message displays a stored snapshot
	// instead of its live content. Empty means "latest".
	CurrentVersionID string `json:"current_version_id,omitempty"`
	// Versions holds saved textual snapshots, oldest first.
	Versions []MessageVersion `json:"versions,omitempty"`
}

// Clone returns a deep copy of the message.
func (m *Message) Clone() *Message {
	if m == nil {
		return nil
	}
	cp := *m
	cp.Blocks = append([]string(nil), m.Blocks...)
	if m.Versions != nil {
		cp.Versions = make([]MessageVersion, len(m.Versions))
		for i := range m.Versions {
			cp.Versions[i] = *m.Versions[i].Clone()
		}
	}
	return &cp
}

// MessagePatch is a partial update for a message. Nil fields are left
// untouched; non-nil fields overwrite, including to empty values.
type MessagePatch struct {
	Status           *MessageStatus    `json:"status,omitempty"`
	Blocks           *[]string         `json:"blocks,omitempty"`
	UpdatedAt        *int64            `json:"updated_at,omitempty"`
	AskID            *string           `json:"ask_id,omitempty"`
	Model            *string           `json:"model,omitempty"`
	CurrentVersionID *string           `json:"current_version_id,omitempty"`
	Versions         *[]MessageVersion `json:"versions,omitempty"`
}

// Apply merges the patch into the message, field by field.
func (m *Message) Apply(p MessagePatch) {
	if p.Status != nil {
		m.Status = *p.Status
	}
	if p.Blocks != nil {
		m.Blocks = append([]string(nil), (*p.Blocks)...)
	}
	if p.UpdatedAt != nil {
		m.UpdatedAt = *p.UpdatedAt
	}
	if p.AskID != nil {
		m.AskID = *p.AskID
	}
	if p.Model != nil {
		m.Model = *p.Model
	}
	if p.CurrentVersionID != nil {
		m.CurrentVersionID = *p.CurrentVersionID
	}
	if p.Versions != nil {
		vs := make([]MessageVersion, len(*p.Versions))
		copy(vs, *p.Versions)
		m.Versions = vs
	}
}
