package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/IshaanNene/ghdependents/internal/config"
	"github.com/IshaanNene/ghdependents/internal/dependents"
	"github.com/IshaanNene/ghdependents/internal/types"
)

// Server exposes dependents traversals over HTTP. Listings are streamed
// as newline-delimited JSON while pages are fetched.
type Server struct {
	mux      *http.ServeMux
	srv      *http.Server
	scraper  *dependents.Scraper
	host     string
	maxPages int
	logger   *slog.Logger
}

// NewServer creates a new API server backed by scraper. Traversals target
// host; requests asking for more than maxPages pages are rejected.
func NewServer(scraper *dependents.Scraper, host string, maxPages int, logger *slog.Logger) *Server {
	s := &Server{
		mux:      http.NewServeMux(),
		scraper:  scraper,
		host:     host,
		maxPages: maxPages,
		logger:   logger.With("component", "api_server"),
	}

	s.registerRoutes()
	return s
}

// ServeHTTP dispatches to the registered routes.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe serves on port until ctx is canceled, then shuts down.
func (s *Server) ListenAndServe(ctx context.Context, port int) error {
	addr := fmt.Sprintf(":%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", addr, err)
	}
	s.srv = &http.Server{
		Handler:           s.mux,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}
	s.logger.Info("API server starting", "addr", addr)

	errCh := make(chan error, 1)
	go func() { errCh <- s.srv.Serve(ln) }()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("API server stopping")
		return s.srv.Shutdown(shutdownCtx)
	}
}

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("GET /api/health", s.handleHealth)
	s.mux.HandleFunc("GET /api/stats", s.handleStats)
	s.mux.HandleFunc("GET /api/dependents/{owner}/{repository}", s.handleDependents)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": config.Version,
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	s.jsonResponse(w, http.StatusOK, s.scraper.Metrics().Snapshot())
}

// handleDependents streams one traversal. Errors before the first record
// get a status code; later errors end the stream with an error line.
func (s *Server) handleDependents(w http.ResponseWriter, r *http.Request) {
	pages := 1
	if raw := r.URL.Query().Get("pages"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			s.jsonError(w, http.StatusBadRequest, fmt.Errorf("pages must be an integer, got %q", raw))
			return
		}
		pages = n
	}
	if s.maxPages > 0 && pages > s.maxPages {
		s.jsonError(w, http.StatusBadRequest, fmt.Errorf("pages must be at most %d, got %d", s.maxPages, pages))
		return
	}

	startURL := dependents.DependentsURL(s.host, r.PathValue("owner"), r.PathValue("repository"), r.URL.Query().Get("package_id"))
	seq, err := s.scraper.Stream(r.Context(), startURL, pages)
	if err != nil {
		s.jsonError(w, http.StatusBadRequest, err)
		return
	}

	enc := json.NewEncoder(w)
	flusher, _ := w.(http.Flusher)
	wrote := false

	for d, err := range seq {
		if err != nil {
			s.logger.Warn("traversal failed", "url", startURL, "error", err)
			if !wrote {
				s.jsonError(w, statusFor(err), err)
				return
			}
			_ = enc.Encode(map[string]string{"error": err.Error()})
			return
		}
		if !wrote {
			w.Header().Set("Content-Type", "application/x-ndjson")
			w.WriteHeader(http.StatusOK)
			wrote = true
		}
		if err := enc.Encode(d); err != nil {
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	if !wrote {
		w.Header().Set("Content-Type", "application/x-ndjson")
		w.WriteHeader(http.StatusOK)
	}
}

// statusFor maps a traversal error to a response status.
func statusFor(err error) int {
	var fe *types.FetchError
	if errors.As(err, &fe) && fe.StatusCode == http.StatusNotFound {
		return http.StatusNotFound
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return http.StatusGatewayTimeout
	}
	return http.StatusBadGateway
}

func (s *Server) jsonError(w http.ResponseWriter, status int, err error) {
	s.jsonResponse(w, status, map[string]string{"error": err.Error()})
}

func (s *Server) jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}
