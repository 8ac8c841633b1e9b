// Package server exposes the engine over a JSON HTTP API. Every
// endpoint passes through the rate limiter; errors map to HTTP status
// codes through their kind.
package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"time"

	"golang.org/x/sync/errgroup"

	scouterr "github.com/filescout/filescout/internal/errors"
	"github.com/filescout/filescout/pkg/version"
)

// shutdownGrace bounds how long in-flight requests may run after a stop
// signal.
const shutdownGrace = 10 * time.Second

// maxBodyBytes caps request bodies; no endpoint needs more.
const maxBodyBytes = 1 << 20

// Server is the HTTP front end.
type Server struct {
	engine Engine
	logger *slog.Logger
	http   *http.Server
}

// New creates a server listening on addr.
func New(addr string, eng Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{engine: eng, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /{$}", s.handleRoot)
	mux.HandleFunc("POST /add_folder", s.handleAddFolder)
	mux.HandleFunc("POST /add_file", s.handleAddFile)
	mux.HandleFunc("POST /remove_file", s.handleRemoveFile)
	mux.HandleFunc("POST /search", s.handleSearch)
	mux.HandleFunc("POST /ask", s.handleAsk)
	mux.HandleFunc("POST /ask_rag", s.handleAskRAG)
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.HandleFunc("GET /stats", s.handleStats)
	mux.HandleFunc("GET /watched_folders", s.handleWatchedFolders)
	mux.HandleFunc("POST /worker/pause", s.handleWorkerPause)
	mux.HandleFunc("POST /worker/resume", s.handleWorkerResume)
	mux.HandleFunc("DELETE /session/{id}", s.handleDeleteSession)

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.rateLimit(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		s.logger.Info("http server listening", slog.String("addr", s.http.Addr))
		if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
		defer cancel()
		return s.http.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// rateLimit applies the engine's limiter to every request, keyed by
// client IP and route.
func (s *Server) rateLimit(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ip := clientIP(r)
		ok, retryAfter := s.engine.Limiter().Allow(ip, r.URL.Path)
		if !ok {
			w.Header().Set("Retry-After", strconv.Itoa(int(retryAfter.Seconds())+1))
			s.writeError(w, scouterr.E(scouterr.KindRateLimited, "server",
				"rate limit exceeded for %s", r.URL.Path))
			return
		}
		next.ServeHTTP(w, r)
	})
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func (s *Server) decode(w http.ResponseWriter, r *http.Request, into any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		s.writeError(w, scouterr.E(scouterr.KindInvalidInput, "server",
			"invalid JSON body: %v", err))
		return false
	}
	return true
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode response", slog.String("error", err.Error()))
	}
}

type errorResponse struct {
	Error string `json:"error"`
	Kind  string `json:"kind"`
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := scouterr.KindOf(err)
	status := kind.HTTPStatus()
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", slog.String("error", err.Error()))
	}
	s.writeJSON(w, status, errorResponse{Error: err.Error(), Kind: kind.String()})
}

type pathRequest struct {
	Path string `json:"path"`
}

func (p pathRequest) validate() error {
	if p.Path == "" {
		return scouterr.E(scouterr.KindInvalidInput, "server", "path is required")
	}
	return nil
}

func (s *Server) handleAddFolder(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.AddFolder(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":        "ok",
		"path":          result.Root,
		"files_indexed": result.Indexed,
		"message": fmt.Sprintf("%d files indexed, %d unchanged, %d skipped",
			result.Indexed, result.Unchanged, result.Failed),
	})
}

func (s *Server) handleAddFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	result, err := s.engine.AddFile(r.Context(), req.Path)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"path":   result.Path,
		"chunks": result.Chunks,
	})
}

func (s *Server) handleRemoveFile(w http.ResponseWriter, r *http.Request) {
	var req pathRequest
	if !s.decode(w, r, &req) {
		return
	}
	if err := req.validate(); err != nil {
		s.writeError(w, err)
		return
	}

	if err := s.engine.RemoveFile(r.Context(), req.Path); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "path": req.Path})
}

type searchRequest struct {
	Query string `json:"query"`
	K     int    `json:"k"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Query == "" {
		s.writeError(w, scouterr.E(scouterr.KindInvalidInput, "server", "query is required"))
		return
	}

	results, err := s.engine.Search(r.Context(), req.Query, req.K)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"query":   req.Query,
		"results": results,
		"count":   len(results),
	})
}

type askRequest struct {
	Query     string `json:"query"`
	K         int    `json:"k"`
	SessionID string `json:"session_id"`
}

func (s *Server) handleAsk(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	reply, sessionID, err := s.engine.Ask(r.Context(), req.SessionID, req.Query)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":     reply.Answer,
		"intent":     reply.Intent,
		"tool_used":  reply.Tool,
		"session_id": sessionID,
		"sources":    reply.Sources,
	})
}

func (s *Server) handleAskRAG(w http.ResponseWriter, r *http.Request) {
	var req askRequest
	if !s.decode(w, r, &req) {
		return
	}

	answer, sessionID, err := s.engine.AskRAG(r.Context(), req.SessionID, req.Query)
	if err != nil {
		if answer == nil {
			s.writeError(w, err)
			return
		}
		// Model failures after retrieval still carry the candidate
		// sources, so the client can see where an answer would have
		// come from.
		kind := scouterr.KindOf(err)
		s.writeJSON(w, kind.HTTPStatus(), map[string]any{
			"error":         err.Error(),
			"kind":          kind.String(),
			"answer":        answer.Text,
			"sources":       answer.Sources,
			"grading_stats": answer.Stats,
			"session_id":    sessionID,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"answer":        answer.Text,
		"sources":       answer.Sources,
		"grading_stats": answer.Stats,
		"session_id":    sessionID,
	})
}

func (s *Server) handleRoot(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "filescout",
		"version": version.Version,
		"stats":   report,
	})
}

func (s *Server) handleWatchedFolders(w http.ResponseWriter, r *http.Request) {
	folders := s.engine.WatchedFolders()
	s.writeJSON(w, http.StatusOK, map[string]any{
		"folders": folders,
		"count":   len(folders),
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Health()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	report, err := s.engine.Stats()
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, report)
}

func (s *Server) handleWorkerPause(w http.ResponseWriter, r *http.Request) {
	s.engine.PauseWorker()
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "paused"})
}

func (s *Server) handleWorkerResume(w http.ResponseWriter, r *http.Request) {
	s.engine.ResumeWorker()
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "running"})
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if id == "" {
		s.writeError(w, scouterr.E(scouterr.KindInvalidInput, "server", "session id is required"))
		return
	}
	if err := s.engine.DeleteSession(r.Context(), id); err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"status": "deleted", "session_id": id})
}
