package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"historydb/pkg/models"
)

func (s *Server) saveVersion(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	var req struct {
		Content string               `json:"content"`
		Model   string               `json:"model,omitempty"`
		Source  models.VersionSource `json:"source,omitempty"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeErr(w, http.StatusBadRequest, "invalid json")
		return
	}
	if req.Source == "" {
		req.Source = models.VersionSourceManual
	}
	v, err := s.vers.SaveCurrentAsVersion(r.Context(), messageID, req.Content, req.Model, req.Source)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	if v == nil {
		writeErr(w, http.StatusUnprocessableEntity, "nothing to version: message missing or content empty")
		return
	}
	writeJSON(w, http.StatusCreated, v)
}

func (s *Server) listVersions(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	vs, err := s.vers.ListVersions(r.Context(), messageID)
	if err != nil {
		writeErr(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Message  string                  `json:"message"`
		Versions []models.MessageVersion `json:"versions"`
	}{Message: messageID, Versions: vs})
}

func (s *Server) switchVersion(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["id"]
	if !s.vers.SwitchToVersion(r.Context(), versionID) {
		writeErr(w, http.StatusUnprocessableEntity, "version not found or switch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "switched", "version": versionID})
}

func (s *Server) switchLatest(w http.ResponseWriter, r *http.Request) {
	messageID := mux.Vars(r)["id"]
	if !s.vers.SwitchToLatest(r.Context(), messageID) {
		writeErr(w, http.StatusUnprocessableEntity, "message not found or switch failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "switched", "message": messageID})
}

func (s *Server) deleteVersion(w http.ResponseWriter, r *http.Request) {
	versionID := mux.Vars(r)["id"]
	if !s.vers.DeleteVersion(r.Context(), versionID) {
		writeErr(w, http.StatusUnprocessableEntity, "version not found or delete failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deleted", "version": versionID})
}
