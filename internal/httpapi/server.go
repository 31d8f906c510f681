// Package httpapi serves the read-only status API and the prometheus
// metrics endpoint. Mutations go through the RPC surface only.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hyperspacedb/hyperspace/internal/logger"
	"github.com/hyperspacedb/hyperspace/pkg/hyperspace"
)

// Server exposes master state over HTTP.
type Server struct {
	master *hyperspace.Master
	srv    *http.Server
}

// StatusResponse is the body of GET /v1/status.
type StatusResponse struct {
	InstanceID string `json:"instance_id"`
	Generation uint32 `json:"generation"`
	UptimeSecs int64  `json:"uptime_secs"`
	Sessions   int    `json:"sessions"`
	Nodes      int    `json:"nodes"`
	Handles    int    `json:"handles"`
}

// SessionInfo is one entry of GET /v1/sessions.
type SessionInfo struct {
	ID            uint64    `json:"id"`
	Peer          string    `json:"peer"`
	LeaseDeadline time.Time `json:"lease_deadline"`
	Handles       int       `json:"handles"`
}

// NodeInfo is one entry of GET /v1/nodes.
type NodeInfo struct {
	Name       string `json:"name"`
	LockMode   string `json:"lock_mode"`
	Generation uint64 `json:"generation"`
	Handles    int    `json:"handles"`
	Pending    int    `json:"pending_lock_requests"`
	Ephemeral  bool   `json:"ephemeral"`
}

// New creates the server. registry may be nil to disable /metrics.
func New(master *hyperspace.Master, registry *prometheus.Registry, listen string) *Server {
	s := &Server{master: master}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	if registry != nil {
		r.Method(http.MethodGet, "/metrics",
			promhttp.HandlerFor(registry, promhttp.HandlerOpts{}))
	}

	r.Get("/v1/status", s.handleStatus)
	r.Get("/v1/sessions", s.handleSessions)
	r.Get("/v1/nodes", s.handleNodes)

	s.srv = &http.Server{
		Addr:              listen,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler, for tests.
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}

// ListenAndServe blocks serving requests until Shutdown.
func (s *Server) ListenAndServe() error {
	logger.Info("status API listening", "listen", s.srv.Addr)
	err := s.srv.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests and stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, StatusResponse{
		InstanceID: s.master.InstanceID().String(),
		Generation: s.master.Generation(),
		UptimeSecs: int64(s.master.Uptime().Seconds()),
		Sessions:   s.master.Sessions().Len(),
		Nodes:      s.master.Nodes().Len(),
		Handles:    s.master.Handles().Len(),
	})
}

func (s *Server) handleSessions(w http.ResponseWriter, r *http.Request) {
	sessions := s.master.Sessions().Snapshot()
	out := make([]SessionInfo, 0, len(sessions))
	for _, sess := range sessions {
		out = append(out, SessionInfo{
			ID:            uint64(sess.ID),
			Peer:          sess.Peer,
			LeaseDeadline: sess.LeaseDeadline(),
			Handles:       sess.HandleCount(),
		})
	}
	writeJSON(w, out)
}

func (s *Server) handleNodes(w http.ResponseWriter, r *http.Request) {
	nodes := s.master.Nodes().Snapshot()
	out := make([]NodeInfo, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, NodeInfo{
			Name:       n.Name,
			LockMode:   n.CurrentLockMode().String(),
			Generation: n.LockGeneration(),
			Handles:    n.HandleCount(),
			Pending:    n.PendingLockRequests(),
			Ephemeral:  n.Ephemeral(),
		})
	}
	writeJSON(w, out)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Warn("failed to encode response", logger.KeyError, err.Error())
	}
}
