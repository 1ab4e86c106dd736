// Package ids generates entity identifiers. Every entity kind carries a
// short prefix so raw keys stay readable when inspecting the store.
package ids

import "github.com/google/uuid"

func NewTopicID() string   { return "topic-" + uuid.NewString() }
func NewMessageID() string { return "msg-" + uuid.NewString() }
func NewBlockID() string   { return "blk-" + uuid.NewString() }
func NewVersionID() string { return "ver-" + uuid.NewString() }
