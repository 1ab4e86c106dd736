package models

// BlockType tags the content kind of a block.
type BlockType string

const (
	BlockText          BlockType = "text"
	BlockImage         BlockType = "image"
	BlockSearchResults BlockType = "search_results"
	BlockMultiModel    BlockType = "multi_model"
	BlockVideo         BlockType = "video"
	BlockCode          BlockType = "code"
)

// BlockStatus tracks the streaming lifecycle of a block:
// pending -> streaming -> success | error.
type BlockStatus string

const (
	BlockPending      BlockStatus = "pending"
	BlockStreamingNow BlockStatus = "streaming"
	BlockSuccess      BlockStatus = "success"
	BlockError        BlockStatus = "error"
)

// Block is a typed unit of message content. A block is owned by exactly one
// message and is never shared.
type Block struct {
	ID        string      `json:"id"`
	MessageID string      `json:"message_id"`
	Type      BlockType   `json:"type"`
	Status    BlockStatus `json:"status,omitempty"`
	// Content holds the textual payload for text-like blocks.
	Content string `json:"content,omitempty"`
	// Payload holds type-specific data (image refs, search hits, model
	// comparison cells, ...).
	Payload   map[string]any `json:"payload,omitempty"`
	CreatedAt int64          `json:"created_at,omitempty"`
	UpdatedAt int64          `json:"updated_at,omitempty"`
}

// Clone returns a deep copy of the block.
func (b *Block) Clone() *Block {
	if b == nil {
		return nil
	}
	cp := *b
	if b.Payload != nil {
		cp.Payload = make(map[string]any, len(b.Payload))
		for k, v := range b.Payload {
			cp.Payload[k] = v
		}
	}
	return &cp
}

// BlockPatch is a partial update for a block.
type BlockPatch struct {
	Status    *BlockStatus    `json:"status,omitempty"`
	Content   *string         `json:"content,omitempty"`
	Payload   *map[string]any `json:"payload,omitempty"`
	UpdatedAt *int64          `json:"updated_at,omitempty"`
}

// Apply merges the patch into the block.
func (b *Block) Apply(p BlockPatch) {
	if p.Status != nil {
		b.Status = *p.Status
	}
	if p.Content != nil {
		b.Content = *p.Content
	}
	if p.Payload != nil {
		b.Payload = *p.Payload
	}
	if p.UpdatedAt != nil {
		b.UpdatedAt = *p.UpdatedAt
	}
}
