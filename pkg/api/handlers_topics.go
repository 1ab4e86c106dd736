package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/gorilla/mux"

	"historydb/pkg/ids"
	"historydb/pkg/models"
	"historydb/pkg/store"
)

func (s *Server) createTopic(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	now := time.Now().UTC().UnixNano()
	t := &models.Topic{ID: req.ID, Name: req.Name, CreatedAt: now, UpdatedAt: now}
	if t.ID == "" {
		t.ID = ids.NewTopicID()
	}
	if err := s.st.SaveTopic(r.Context(), t); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.cache.Put(t)
	s.mem.SetCurrentTopic(t.ID)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) listTopics(w http.ResponseWriter, r *http.Request) {
	topics, err := s.st.ListTopics(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Topics []*models.Topic `json:"topics"`
	}{Topics: topics})
}

func (s *Server) getTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	t, err := s.cache.GetTopic(r.Context(), id)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if t == nil {
		writeErr(w, http.StatusNotFound, "topic not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

func (s *Server) deleteTopic(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	ctx := r.Context()
	t, err := s.st.GetTopic(ctx, id)
	if err != nil {
		if err == store.ErrNotFound {
			writeErr(w, http.StatusNotFound, "topic not found")
			return
		}
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	err = s.st.Transaction(ctx, func(tx store.Tx) error {
		for _, mid := range t.MessageIDs {
			if err := tx.DeleteMessage(mid); err != nil {
				return err
			}
		}
		return tx.DeleteTopic(id)
	})
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.mem.ClearTopicMessages(id)
	s.cache.Invalidate(id)
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) forkTopic(w http.ResponseWriter, r *http.Request) {
	sourceID := mux.Vars(r)["id"]
	var req struct {
		BranchPoint string `json:"branch_point"`
		Name        string `json:"name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.BranchPoint == "" {
		writeErr(w, http.StatusBadRequest, "branch_point is required")
		return
	}

	// The mirror must hold the source topic so the cloner sees a complete
	// chronological prefix.
	if err := s.mem.LoadTopic(r.Context(), sourceID); err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}

	newTopic := &models.Topic{ID: ids.NewTopicID(), Name: req.Name}
	if !s.cloner.CloneMessagesToNewTopic(r.Context(), sourceID, req.BranchPoint, newTopic) {
		writeErr(w, http.StatusUnprocessableEntity, "fork failed: branch point not found or source empty")
		return
	}

	t, err := s.st.GetTopic(r.Context(), newTopic.ID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.cache.Put(t)
	writeJSON(w, http.StatusCreated, t)
}

func (s *Server) adminStats(w http.ResponseWriter, r *http.Request) {
	topics, err := s.st.ListTopics(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	msgs, err := s.st.ListMessages(r.Context())
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	size := s.st.DiskUsageBytes()
	writeJSON(w, http.StatusOK, struct {
		Topics    int    `json:"topics"`
		Messages  int    `json:"messages"`
		DiskBytes uint64 `json:"disk_bytes"`
		DiskHuman string `json:"disk_human"`
	}{
		Topics:    len(topics),
		Messages:  len(msgs),
		DiskBytes: size,
		DiskHuman: humanize.Bytes(size),
	})
}
