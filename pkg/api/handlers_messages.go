package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"historydb/pkg/ids"
	"historydb/pkg/models"
	"historydb/pkg/store"
	"historydb/pkg/validation"
)

// blockInput is the wire shape for blocks on message creation.
type blockInput struct {
	Type    models.BlockType   `json:"type"`
	Content string             `json:"content,omitempty"`
	Payload map[string]any     `json:"payload,omitempty"`
	Status  models.BlockStatus `json:"status,omitempty"`
}

// messageView is a message together with its resolved blocks.
type messageView struct {
	*models.Message
	BlockEntities []*models.Block `json:"block_entities,omitempty"`
}

func (s *Server) listTopicMessages(w http.ResponseWriter, r *http.Request) {
	topicID := mux.Vars(r)["id"]
	if err := s.mem.LoadTopic(r.Context(), topicID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	msgs := s.mem.TopicMessages(topicID)
	out := make([]messageView, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageView{Message: m, BlockEntities: s.mem.MessageBlocks(m.ID)})
	}
	writeJSON(w, http.StatusOK, struct {
		Topic    string        `json:"topic"`
		Messages []messageView `json:"messages"`
	}{Topic: topicID, Messages: out})
}

func (s *Server) appendMessage(w http.ResponseWriter, r *http.Request) {
	topicID := mux.Vars(r)["id"]
	var req struct {
		Role    models.MessageRole `json:"role"`
		Content string             `json:"content,omitempty"`
		Blocks  []blockInput       `json:"blocks,omitempty"`
		AskID   string             `json:"ask_id,omitempty"`
		Model   string             `json:"model,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}

	now := time.Now().UTC().UnixNano()
	msg := &models.Message{
		ID:        ids.NewMessageID(),
		TopicID:   topicID,
		Role:      req.Role,
		CreatedAt: now,
		UpdatedAt: now,
		Status:    models.MessageSuccess,
		AskID:     req.AskID,
		Model:     req.Model,
	}

	inputs := req.Blocks
	if len(inputs) == 0 {
		inputs = []blockInput{{Type: models.BlockText, Content: req.Content, Status: models.BlockSuccess}}
	}
	blocks := make([]*models.Block, 0, len(inputs))
	for _, in := range inputs {
		b := &models.Block{
			ID:        ids.NewBlockID(),
			MessageID: msg.ID,
			Type:      in.Type,
			Status:    in.Status,
			Content:   in.Content,
			Payload:   in.Payload,
			CreatedAt: now,
			UpdatedAt: now,
		}
		if b.Status == "" {
			b.Status = models.BlockSuccess
		}
		if err := validation.ValidateBlock(b); err != nil {
			writeErr(w, http.StatusBadRequest, err.Error())
			return
		}
		blocks = append(blocks, b)
		msg.Blocks = append(msg.Blocks, b.ID)
	}
	if err := validation.ValidateMessage(msg); err != nil {
		writeErr(w, http.StatusBadRequest, err.Error())
		return
	}

	ctx := r.Context()
	var topic *models.Topic
	err := s.st.Transaction(ctx, func(tx store.Tx) error {
		t, err := tx.GetTopic(topicID)
		if err == store.ErrNotFound {
			t = &models.Topic{ID: topicID, CreatedAt: now}
		} else if err != nil {
			return err
		}
		if err := tx.BulkSaveMessageBlocks(blocks); err != nil {
			return err
		}
		if err := tx.SaveMessage(msg); err != nil {
			return err
		}
		t.MessageIDs = append(t.MessageIDs, msg.ID)
		t.LastMessageTime = now
		t.UpdatedAt = now
		topic = t
		return tx.SaveTopic(t)
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mem.UpsertBlocks(blocks)
	s.mem.AddMessage(topicID, msg)
	s.cache.Put(topic)

	writeJSON(w, http.StatusCreated, messageView{Message: msg, BlockEntities: blocks})
}

func (s *Server) getMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	msg := s.mem.Message(id)
	if msg == nil {
		var err error
		msg, err = s.st.GetMessage(r.Context(), id)
		if err == store.ErrNotFound {
			writeErr(w, http.StatusNotFound, "message not found")
			return
		}
		if err != nil {
			writeErr(w, http.StatusInternalServerError, err.Error())
			return
		}
	}
	blocks := s.mem.MessageBlocks(id)
	if len(blocks) == 0 {
		blocks, _ = s.st.GetMessageBlocksByMessageID(r.Context(), id)
	}
	writeJSON(w, http.StatusOK, messageView{Message: msg, BlockEntities: blocks})
}

func (s *Server) patchMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	var patch models.MessagePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	now := time.Now().UTC().UnixNano()
	patch.UpdatedAt = &now
	msg, err := s.st.UpdateMessage(r.Context(), id, patch)
	if err == store.ErrNotFound {
		writeErr(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.mem.UpdateMessage(id, patch)
	writeJSON(w, http.StatusOK, msg)
}

func (s *Server) deleteMessage(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()
	msg, err := s.st.GetMessage(ctx, id)
	if err == store.ErrNotFound {
		writeErr(w, http.StatusNotFound, "message not found")
		return
	}
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	var topic *models.Topic
	err = s.st.Transaction(ctx, func(tx store.Tx) error {
		if err := tx.DeleteMessage(id); err != nil {
			return err
		}
		t, err := tx.GetTopic(msg.TopicID)
		if err == store.ErrNotFound {
			return nil
		}
		if err != nil {
			return err
		}
		kept := t.MessageIDs[:0]
		for _, mid := range t.MessageIDs {
			if mid != id {
				kept = append(kept, mid)
			}
		}
		t.MessageIDs = kept
		t.UpdatedAt = time.Now().UTC().UnixNano()
		topic = t
		return tx.SaveTopic(t)
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	s.mem.RemoveMessage(id)
	if topic != nil {
		s.cache.Put(topic)
	} else {
		s.cache.Invalidate(msg.TopicID)
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}
