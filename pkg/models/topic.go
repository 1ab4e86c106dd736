package models

// Topic is a conversation thread. MessageIDs is kept in ascending
// created-time order and is always exactly the set of messages whose
// TopicID equals this topic's id.
type Topic struct {
	ID         string   `json:"id"`
	Name       string   `json:"name,omitempty"`
	MessageIDs []string `json:"message_ids"`
	// LastMessageTime is denormalized from the newest message (ns).
	LastMessageTime int64 `json:"last_message_time,omitempty"`
	CreatedAt       int64 `json:"created_at,omitempty"`
	UpdatedAt       int64 `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the topic.
func (t *Topic) Clone() *Topic {
	if t == nil {
		return nil
	}
	cp := *t
	cp.MessageIDs = append([]string(nil), t.MessageIDs...)
	return &cp
}
