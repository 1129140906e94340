// Package statusapi serves run progress on a local HTTP port.
package statusapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/berth-dev/nftbatch/internal/execute"
)

// ProgressSource is read on every request. It must be safe for concurrent
// use; *execute.ExecutionPool is.
type ProgressSource interface {
	Snapshot() execute.ProgressSnapshot
}

type healthResponse struct {
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

type progressResponse struct {
	RunID string `json:"run_id"`
	execute.ProgressSnapshot
}

// NewRouter creates the router for runID's progress.
func NewRouter(runID string, progress ProgressSource) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, healthResponse{Status: "ok", RunID: runID})
	})
	r.Get("/progress", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, progressResponse{RunID: runID, ProgressSnapshot: progress.Snapshot()})
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Server serves the router on the loopback interface.
type Server struct {
	srv *http.Server
	ln  net.Listener
}

// Start listens on 127.0.0.1:port and serves in the background. Port 0
// picks a free port; see Addr.
func Start(port int, handler http.Handler) (*Server, error) {
	ln, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", port))
	if err != nil {
		return nil, fmt.Errorf("listen on status port %d: %w", port, err)
	}
	s := &Server{
		srv: &http.Server{Handler: handler, ReadHeaderTimeout: 5 * time.Second},
		ln:  ln,
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintf(os.Stderr, "Warning: status endpoint stopped: %v\n", err)
		}
	}()
	return s, nil
}

// Addr is the address the server listens on.
func (s *Server) Addr() string {
	return s.ln.Addr().String()
}

// Stop shuts the server down, waiting briefly for open requests.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	return s.srv.Shutdown(ctx)
}
