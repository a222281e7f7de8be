// Package api serves the shim over HTTP in the shape of bettercap's REST
// API, plus a websocket stream of events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"pagershim/internal/shim"
)

// Commander is the shim surface the API exposes.
type Commander interface {
	Run(ctx context.Context, line string) shim.Result
	Session() shim.Snapshot
}

// Options configures a Server. Basic auth is enforced when Username is
// set.
type Options struct {
	Address  string
	Username string
	Password string
}

// Server owns the HTTP surface.
type Server struct {
	cmd    Commander
	hub    *Hub
	opts   Options
	logger *slog.Logger
}

// NewServer creates a Server over cmd, streaming events from hub.
func NewServer(cmd Commander, hub *Hub, opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{cmd: cmd, hub: hub, opts: opts, logger: logger.With("component", "api")}
}

type commandRequest struct {
	Cmd string `json:"cmd"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

// Router builds the route table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		if s.opts.Username != "" {
			r.Use(middleware.BasicAuth("pagershim", map[string]string{s.opts.Username: s.opts.Password}))
		}
		r.Get("/api/session", s.getSession)
		r.Post("/api/session", s.postSession)
		r.Get("/api/events", s.hub.ServeHTTP)
	})
	return r
}

func (s *Server) getSession(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cmd.Session())
}

// postSession runs {"cmd": "..."}. Failures answer 400 with the result
// body, as bettercap does.
func (s *Server) postSession(w http.ResponseWriter, r *http.Request) {
	var req commandRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 64*1024)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, shim.Result{Success: false, Error: "bad_json"})
		return
	}
	if req.Cmd == "" {
		writeJSON(w, http.StatusBadRequest, shim.Result{Success: false, Error: "cmd_required"})
		return
	}

	s.logger.Debug("api command", "cmd", req.Cmd)
	res := s.cmd.Run(r.Context(), req.Cmd)
	code := http.StatusOK
	if !res.Success {
		code = http.StatusBadRequest
	}
	writeJSON(w, code, res)
}

// ListenAndServe serves until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Address)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is ListenAndServe on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Serve(ln) }()
	s.logger.Info("api listening", "addr", ln.Addr().String())

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	s.hub.Close()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down api: %w", err)
	}
	return nil
}
