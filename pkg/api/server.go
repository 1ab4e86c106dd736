// Package api exposes conversation history over HTTP: topics, messages,
// versions and forking. The handlers drive the durable gateway, the
// reactive mirror, the version manager and the branch cloner.
package api

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"historydb/pkg/branch"
	"historydb/pkg/cache"
	"historydb/pkg/config"
	"historydb/pkg/logger"
	"historydb/pkg/memstore"
	"historydb/pkg/store"
	"historydb/pkg/versions"
)

// Server bundles the core components behind the HTTP surface.
type Server struct {
	st     *store.Store
	cache  *cache.TopicCache
	mem    *memstore.Store
	vers   *versions.Manager
	cloner *branch.Cloner
	limits *limiterPool
}

// NewServer wires the HTTP surface over the given components.
func NewServer(st *store.Store, tc *cache.TopicCache, mem *memstore.Store, vm *versions.Manager, cl *branch.Cloner, rl config.RateLimitConfig) *Server {
	return &Server{
		st:     st,
		cache:  tc,
		mem:    mem,
		vers:   vm,
		cloner: cl,
		limits: &limiterPool{cfg: rl},
	}
}

// Handler builds the router with all routes and middleware attached.
func (s *Server) Handler() http.Handler {
	r := mux.NewRouter()
	r.Use(s.requestLog, s.rateLimit)

	r.HandleFunc("/healthz", s.health).Methods(http.MethodGet)
	r.HandleFunc("/admin/stats", s.adminStats).Methods(http.MethodGet)

	v1 := r.PathPrefix("/v1").Subrouter()
	v1.HandleFunc("/topics", s.createTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics", s.listTopics).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}", s.getTopic).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}", s.deleteTopic).Methods(http.MethodDelete)
	v1.HandleFunc("/topics/{id}/fork", s.forkTopic).Methods(http.MethodPost)
	v1.HandleFunc("/topics/{id}/messages", s.listTopicMessages).Methods(http.MethodGet)
	v1.HandleFunc("/topics/{id}/messages", s.appendMessage).Methods(http.MethodPost)

	v1.HandleFunc("/messages/{id}", s.getMessage).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{id}", s.patchMessage).Methods(http.MethodPatch)
	v1.HandleFunc("/messages/{id}", s.deleteMessage).Methods(http.MethodDelete)
	v1.HandleFunc("/messages/{id}/versions", s.saveVersion).Methods(http.MethodPost)
	v1.HandleFunc("/messages/{id}/versions", s.listVersions).Methods(http.MethodGet)
	v1.HandleFunc("/messages/{id}/switch-latest", s.switchLatest).Methods(http.MethodPost)

	v1.HandleFunc("/versions/{id}/switch", s.switchVersion).Methods(http.MethodPost)
	v1.HandleFunc("/versions/{id}", s.deleteVersion).Methods(http.MethodDelete)

	return r
}

func (s *Server) requestLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		logger.LogRequest(r)
		next.ServeHTTP(w, r)
	})
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON writes v as a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeErr writes a JSON error body with the given status code.
func writeErr(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
