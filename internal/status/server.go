// Package status serves health and capture state over HTTP.
package status

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/john/memchat/internal/capture"
)

// Source reports the current capture state.
type Source interface {
	Status() capture.Status
}

// Server provides the /health and /status endpoints.
type Server struct {
	router *chi.Mux
	server *http.Server
	source Source
	log    *slog.Logger
}

func New(addr string, source Source, log *slog.Logger) *Server {
	if log == nil {
		log = slog.Default()
	}
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)

	s := &Server{
		router: router,
		server: &http.Server{Addr: addr, Handler: router},
		source: source,
		log:    log.With("component", "status"),
	}

	router.Get("/health", s.health)
	router.Get("/status", s.status)

	return s
}

// Start serves until Shutdown is called.
func (s *Server) Start() error {
	s.log.Info("status server listening", "addr", s.server.Addr)
	if err := s.server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("shutting down status server")
	return s.server.Shutdown(ctx)
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	st := s.source.Status()
	code := http.StatusOK
	if !st.Attached {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, st)
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
