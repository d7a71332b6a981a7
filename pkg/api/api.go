// Package api is the JSON-over-HTTP API rbld serves on its Unix socket.
// Handlers translate requests into engine calls; the engine does the work.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/lc/rbl/internal/buildinfo"
	"github.com/lc/rbl/internal/dnsbl"
	"github.com/lc/rbl/internal/engine"
	"github.com/lc/rbl/internal/log"
	"github.com/lc/rbl/internal/socket"
)

// LookupRequest asks for one address to be checked against the configured lists.
type LookupRequest struct {
	Address string `json:"address"`
	// EarlyExit overrides the daemon default when set.
	EarlyExit *bool `json:"early_exit,omitempty"`
}

// LookupResponse is the outcome of a lookup.
type LookupResponse struct {
	ID       string        `json:"id"`
	Address  string        `json:"address"`
	Listed   bool          `json:"listed"`
	Hits     []dnsbl.Hit   `json:"hits"`
	Duration time.Duration `json:"duration"`
}

// StatusResponse describes the running daemon.
type StatusResponse struct {
	Version string        `json:"version"`
	Commit  string        `json:"commit"`
	Uptime  time.Duration `json:"uptime"`
	Stats   engine.Stats  `json:"stats"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Service is what the server needs from the engine.
type Service interface {
	Lookup(ctx context.Context, addr string, opts ...engine.LookupOpt) (engine.Result, error)
	Stats() engine.Stats
	Lists() []dnsbl.Check
}

var _ Service = (*engine.Engine)(nil)

// Server handles API requests.
type Server struct {
	svc   Service
	start time.Time
	srv   *http.Server
}

// New creates a server for svc.
func New(svc Service) *Server {
	s := &Server{
		svc:   svc,
		start: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/lookup", s.handleLookup)
	mux.HandleFunc("GET /v1/status", s.handleStatus)
	mux.HandleFunc("GET /v1/lists", s.handleLists)

	s.srv = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the routing handler.
func (s *Server) Handler() http.Handler { return s.srv.Handler }

// ListenAndServe serves on the Unix socket at path.
func (s *Server) ListenAndServe(path string) error {
	ln, err := socket.Listen(path)
	if err != nil {
		return err
	}
	return s.Serve(ln)
}

// Serve serves on l until Shutdown.
func (s *Server) Serve(l net.Listener) error {
	log.Info("api: serving", "addr", l.Addr().String())
	if err := s.srv.Serve(l); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error { return s.srv.Shutdown(ctx) }

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var req LookupRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "decoding request: "+err.Error())
		return
	}
	if strings.TrimSpace(req.Address) == "" {
		writeError(w, http.StatusBadRequest, "address required")
		return
	}

	var opts []engine.LookupOpt
	if req.EarlyExit != nil {
		opts = append(opts, engine.WithEarlyExit(*req.EarlyExit))
	}

	res, err := s.svc.Lookup(r.Context(), req.Address, opts...)
	if err != nil {
		writeError(w, statusFor(err), err.Error())
		return
	}

	writeJSON(w, http.StatusOK, LookupResponse{
		ID:       res.ID,
		Address:  res.Address,
		Listed:   len(res.Hits) > 0,
		Hits:     res.Hits,
		Duration: res.Duration,
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, StatusResponse{
		Version: buildinfo.Version,
		Commit:  buildinfo.Commit,
		Uptime:  time.Since(s.start),
		Stats:   s.svc.Stats(),
	})
}

func (s *Server) handleLists(w http.ResponseWriter, _ *http.Request) {
	lists := s.svc.Lists()
	if lists == nil {
		lists = []dnsbl.Check{}
	}
	writeJSON(w, http.StatusOK, lists)
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, dnsbl.ErrInvalidAddress), errors.Is(err, dnsbl.ErrUsage):
		return http.StatusBadRequest
	case errors.Is(err, engine.ErrNoLists):
		return http.StatusConflict
	case errors.Is(err, dnsbl.ErrTransport):
		return http.StatusBadGateway
	case errors.Is(err, engine.ErrStopped),
		errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn("api: encoding response", "error", err)
	}
}

func writeError(w http.ResponseWriter, code int, msg string) {
	writeJSON(w, code, ErrorResponse{Error: msg})
}
