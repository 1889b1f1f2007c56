// Package http implements the local control API for classwatcher.
package http

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/classwatcher/classwatcher/internal/domain"
	"github.com/classwatcher/classwatcher/internal/domain/ports"
	"github.com/classwatcher/classwatcher/internal/server/http/middleware"
	"github.com/classwatcher/classwatcher/internal/session"
	"github.com/gorilla/mux"
	"github.com/rs/zerolog/log"
)

const (
	defaultUploadsLimit = 50
	maxUploadsLimit     = 1000
	maxBodyBytes        = 64 * 1024
)

// WatchController starts and stops the watch worker.
type WatchController interface {
	Start(folder string) (session.Status, error)
	Stop() (session.Status, error)
	Status() session.Status
}

// FolderStore holds the selected folder.
type FolderStore interface {
	Folder() string
	// SetFolder validates and persists folder, returning the stored value.
	SetFolder(folder string) (string, error)
}

// Options configures the server. History, WebSocket and RateLimiter are optional.
type Options struct {
	Host    string
	Port    int
	Version string

	Watch       WatchController
	Folders     FolderStore
	History     ports.HistoryStore
	WebSocket   http.Handler
	RateLimiter *middleware.RateLimiter
}

// Server is the control API server.
type Server struct {
	opts      Options
	addr      string
	handler   http.Handler
	server    *http.Server
	listener  net.Listener
	startTime time.Time
}

// New creates the server and its routes.
func New(opts Options) *Server {
	s := &Server{
		opts:      opts,
		addr:      fmt.Sprintf("%s:%d", opts.Host, opts.Port),
		startTime: time.Now(),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	router := mux.NewRouter()

	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/folder", s.handleGetFolder).Methods(http.MethodGet)
	api.HandleFunc("/uploads", s.handleUploads).Methods(http.MethodGet)

	mutating := api.NewRoute().Subrouter()
	mutating.HandleFunc("/watch/start", s.handleWatchStart).Methods(http.MethodPost)
	mutating.HandleFunc("/watch/stop", s.handleWatchStop).Methods(http.MethodPost)
	mutating.HandleFunc("/folder", s.handlePutFolder).Methods(http.MethodPut)
	if s.opts.RateLimiter != nil {
		mutating.Use(middleware.RateLimitMiddleware(s.opts.RateLimiter, middleware.IPKeyExtractor))
	}

	if s.opts.WebSocket != nil {
		router.Handle("/ws", s.opts.WebSocket)
	}

	router.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusNotFound, "not found")
	})
	router.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		respondError(w, http.StatusMethodNotAllowed, "method not allowed")
	})

	var handler http.Handler = router
	handler = corsMiddleware(handler)
	handler = requestLoggingMiddleware(handler)
	return handler
}

// Handler returns the root handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.addr, err)
	}
	s.listener = ln

	// No write timeout: /ws connections are long-lived.
	s.server = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	log.Info().Str("addr", ln.Addr().String()).Msg("control API listening")

	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("control API error")
		}
	}()
	return nil
}

// Addr returns the bound address once started, otherwise the configured one.
func (s *Server) Addr() string {
	if s.listener != nil {
		return s.listener.Addr().String()
	}
	return s.addr
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Info().Msg("control API stopping")
	if s.opts.RateLimiter != nil {
		s.opts.RateLimiter.Close()
	}
	return s.server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, s.statusResponse(s.opts.Watch.Status()))
}

func (s *Server) handleWatchStart(w http.ResponseWriter, r *http.Request) {
	var req FolderRequest
	if err := decodeOptionalBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	folder := strings.TrimSpace(req.FolderPath)
	if folder == "" && s.opts.Folders != nil {
		folder = s.opts.Folders.Folder()
	}

	st, err := s.opts.Watch.Start(folder)
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}

	// A folder given with the request becomes the selected folder.
	if req.FolderPath != "" && s.opts.Folders != nil {
		if _, err := s.opts.Folders.SetFolder(folder); err != nil {
			log.Warn().Err(err).Str("folder", folder).Msg("failed to save selected folder")
		}
	}

	respondJSON(w, http.StatusOK, s.statusResponse(st))
}

func (s *Server) handleWatchStop(w http.ResponseWriter, r *http.Request) {
	st, err := s.opts.Watch.Stop()
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, s.statusResponse(st))
}

func (s *Server) handleGetFolder(w http.ResponseWriter, r *http.Request) {
	resp := FolderResponse{}
	if s.opts.Folders != nil {
		resp.FolderPath = s.opts.Folders.Folder()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePutFolder(w http.ResponseWriter, r *http.Request) {
	if s.opts.Folders == nil {
		respondError(w, http.StatusServiceUnavailable, "folder selection is not available")
		return
	}

	var req FolderRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	if strings.TrimSpace(req.FolderPath) == "" {
		respondError(w, http.StatusBadRequest, "folder_path is required")
		return
	}

	folder, err := s.opts.Folders.SetFolder(strings.TrimSpace(req.FolderPath))
	if err != nil {
		respondError(w, statusForError(err), err.Error())
		return
	}
	respondJSON(w, http.StatusOK, FolderResponse{FolderPath: folder})
}

func (s *Server) handleUploads(w http.ResponseWriter, r *http.Request) {
	if s.opts.History == nil {
		respondError(w, http.StatusServiceUnavailable, domain.ErrHistoryDisabled.Error())
		return
	}

	limit := defaultUploadsLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			respondError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = min(n, maxUploadsLimit)
	}

	records, err := s.opts.History.Recent(r.Context(), limit)
	if err != nil {
		log.Error().Err(err).Msg("failed to read upload history")
		respondError(w, http.StatusInternalServerError, "failed to read upload history")
		return
	}
	if records == nil {
		records = []domain.UploadRecord{}
	}
	respondJSON(w, http.StatusOK, UploadsResponse{Uploads: records, Count: len(records)})
}

func (s *Server) statusResponse(st session.Status) StatusResponse {
	resp := StatusResponse{
		Status:        st,
		Version:       s.opts.Version,
		UptimeSeconds: int64(time.Since(s.startTime).Seconds()),
	}
	if s.opts.Folders != nil {
		resp.ConfiguredFolder = s.opts.Folders.Folder()
	}
	return resp
}

// statusForError maps domain errors to HTTP status codes.
func statusForError(err error) int {
	var verr *domain.ValidationError
	switch {
	case errors.Is(err, domain.ErrAlreadyWatching), errors.Is(err, domain.ErrNotWatching):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNoFolder), errors.Is(err, domain.ErrFolderNotDirectory), errors.As(err, &verr):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return fmt.Errorf("invalid request body: %w", err)
	}
	return nil
}

// decodeOptionalBody accepts an empty body.
func decodeOptionalBody(r *http.Request, dst interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	err := decodeBody(r, dst)
	if errors.Is(err, io.EOF) {
		return nil
	}
	return err
}

func respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Debug().Err(err).Msg("failed to encode JSON response")
	}
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, ErrorResponse{Error: message})
}
