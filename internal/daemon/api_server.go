package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"harvest/internal/api"
	"harvest/internal/config"
	"harvest/internal/logging"
	"harvest/internal/metrics"
	"harvest/internal/queue"
)

type apiServer struct {
	bind     string
	logger   *slog.Logger
	daemon   *Daemon
	queueSvc *api.QueueService

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) (*apiServer, error) {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil, nil
	}

	srv := &apiServer{
		bind:     bind,
		logger:   logging.NewComponentLogger(logger, "api"),
		daemon:   d,
		queueSvc: api.NewQueueService(d.store),
	}

	token := strings.TrimSpace(cfg.Paths.APIToken)
	mux := http.NewServeMux()
	mux.HandleFunc("/api/status", authMiddleware(token, srv.handleStatus))
	mux.HandleFunc("/api/queue", authMiddleware(token, srv.handleQueue))
	mux.HandleFunc("/api/queue/", authMiddleware(token, srv.handleQueueJob))
	mux.HandleFunc("/api/queue/all", authMiddleware(token, srv.handleQueueAll))
	mux.HandleFunc("/api/process", authMiddleware(token, srv.handleProcess))
	mux.HandleFunc("/api/candidates", authMiddleware(token, srv.handleCandidates))
	mux.HandleFunc("/api/harvest/import-all", authMiddleware(token, srv.handleImportAll))
	mux.HandleFunc("/api/library/ingest", authMiddleware(token, srv.handleIngest))
	mux.HandleFunc("/api/events", authMiddleware(token, srv.handleEvents))
	if cfg.Metrics.Enabled {
		mux.Handle("/metrics", metrics.Handler())
	}

	srv.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return srv, nil
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) addr() string {
	if s == nil || s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, s.daemon.Status(r.Context()))
}

func (s *apiServer) handleQueue(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		resp, err := s.queueSvc.List(r.Context(), r.URL.Query().Get("kind"), r.URL.Query()["status"])
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	case http.MethodPost:
		var req api.EnqueueRequest
		if !s.decode(w, r, &req) {
			return
		}
		resp, err := s.queueSvc.Enqueue(r.Context(), req)
		if err != nil {
			s.writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		s.writeJSON(w, http.StatusOK, resp)
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleQueueAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.indexer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "indexer unavailable")
		return
	}
	var req api.EnqueueAllRequest
	if !s.decode(w, r, &req) {
		return
	}
	added, err := s.daemon.indexer.EnqueueAll(r.Context(), req.Model)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.EnqueueAllResponse{Added: added})
}

// handleQueueJob serves GET/DELETE /api/queue/{id} and POST
// /api/queue/{id}/retry.
func (s *apiServer) handleQueueJob(w http.ResponseWriter, r *http.Request) {
	rest := strings.TrimPrefix(r.URL.Path, "/api/queue/")
	retry := false
	if strings.HasSuffix(rest, "/retry") {
		retry = true
		rest = strings.TrimSuffix(rest, "/retry")
	}
	if rest == "" || strings.Contains(rest, "/") {
		s.writeError(w, http.StatusNotFound, "job not found")
		return
	}
	id, err := strconv.ParseInt(rest, 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	switch {
	case retry && r.Method == http.MethodPost:
		job, err := s.queueSvc.Retry(r.Context(), id)
		if err != nil {
			s.writeQueueError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.RetryResponse{Retried: job != nil})
	case !retry && r.Method == http.MethodGet:
		job, err := s.queueSvc.Describe(r.Context(), id)
		if err != nil {
			s.writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if job == nil {
			s.writeError(w, http.StatusNotFound, "job not found")
			return
		}
		s.writeJSON(w, http.StatusOK, job)
	case !retry && r.Method == http.MethodDelete:
		if err := s.queueSvc.Remove(r.Context(), id); err != nil {
			s.writeQueueError(w, err)
			return
		}
		s.writeJSON(w, http.StatusOK, api.RemoveResponse{Removed: true})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *apiServer) handleProcess(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.indexer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "indexer unavailable")
		return
	}
	var req api.ProcessRequest
	if !s.decode(w, r, &req) {
		return
	}
	batch, err := s.daemon.indexer.ProcessBatch(r.Context(), req.Count)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ProcessResponse{
		Processed: batch.Processed,
		Succeeded: batch.Succeeded,
		Remaining: batch.Remaining,
	})
}

func (s *apiServer) handleCandidates(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.indexer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "indexer unavailable")
		return
	}
	files, err := s.daemon.indexer.Candidates(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	resp := api.CandidatesResponse{Candidates: make([]api.Candidate, 0, len(files))}
	for _, file := range files {
		resp.Candidates = append(resp.Candidates, api.FromCandidate(file))
	}
	s.writeJSON(w, http.StatusOK, resp)
}

func (s *apiServer) handleImportAll(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.importer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "importer unavailable")
		return
	}
	result, err := s.daemon.importer.ImportAll(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImportResponse{
		Created:    result.Created,
		Duplicates: result.Duplicates,
		Errors:     result.Errors,
	})
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	if s.daemon.importer == nil {
		s.writeError(w, http.StatusServiceUnavailable, "importer unavailable")
		return
	}
	var req api.IngestRequest
	if !s.decode(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		s.writeError(w, http.StatusBadRequest, "path is required")
		return
	}
	result, err := s.daemon.importer.Ingest(r.Context(), req.Path, req.AutoIndex)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, api.ImportResponse{
		Created:    result.Created,
		Duplicates: result.Duplicates,
		Errors:     result.Errors,
	})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if s.daemon.events == nil {
		s.writeError(w, http.StatusServiceUnavailable, "event stream unavailable")
		return
	}
	s.daemon.events.serve(w, r)
}

func (s *apiServer) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.ContentLength == 0 {
		return true
	}
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func (s *apiServer) writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, queue.ErrNotFound):
		s.writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, queue.ErrInvalidTransition):
		s.writeError(w, http.StatusConflict, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Warn("failed to encode api response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, api.ErrorResponse{Error: message})
}
