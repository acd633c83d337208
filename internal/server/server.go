// Package server exposes selection sessions over a small JSON HTTP API.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/Sternrassler/artsel/internal/session"
	"github.com/Sternrassler/artsel/pkg/client"
	"github.com/Sternrassler/artsel/pkg/logging"
	"github.com/Sternrassler/artsel/pkg/metrics"
	"github.com/Sternrassler/artsel/pkg/selection"
	"github.com/gorilla/schema"
	"github.com/rs/zerolog"
)

// DefaultRequestTimeout bounds a request, including upstream page fetches.
const DefaultRequestTimeout = 45 * time.Second

// maxBodyBytes caps JSON request bodies.
const maxBodyBytes = 64 << 10

// Error codes
const (
	ErrCodeBadRequest    = "BAD_REQUEST"
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeUpstream      = "UPSTREAM_ERROR"
	ErrCodeInternalError = "INTERNAL_ERROR"
)

// APIError is the body of every error response.
type APIError struct {
	Code       string `json:"code"`
	Message    string `json:"message"`
	ErrorClass string `json:"error_class,omitempty"`
}

// Handler serves the session API.
type Handler struct {
	store   *session.Store
	decoder *schema.Decoder
	logger  zerolog.Logger
}

// NewHandler creates a handler over store.
func NewHandler(store *session.Store) *Handler {
	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &Handler{
		store:   store,
		decoder: decoder,
		logger:  logging.NewLogger("http"),
	}
}

// RegisterRoutes mounts every route on mux.
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /health", h.handleHealth)
	mux.Handle("GET /metrics", metrics.Handler())

	mux.HandleFunc("POST /sessions", withTimeout(h.handleCreateSession, DefaultRequestTimeout))
	mux.HandleFunc("GET /sessions/{id}", h.withSession(h.handleGetSession))
	mux.HandleFunc("DELETE /sessions/{id}", h.handleDeleteSession)
	mux.HandleFunc("GET /sessions/{id}/page", withTimeout(h.withSession(h.handleLoadPage), DefaultRequestTimeout))
	mux.HandleFunc("POST /sessions/{id}/rows/{rowID}/toggle", h.withSession(h.handleToggleRow))
	mux.HandleFunc("POST /sessions/{id}/select-all", h.withSession(h.handleSelectAll))
	mux.HandleFunc("PUT /sessions/{id}/page-selection", maxBodySize(h.withSession(h.handleApplyPageSelection), maxBodyBytes))
	mux.HandleFunc("POST /sessions/{id}/target", h.withSession(h.handleRequestTarget))
	mux.HandleFunc("GET /sessions/{id}/selection", h.withSession(h.handleGetSelection))
	mux.HandleFunc("DELETE /sessions/{id}/selection", h.withSession(h.handleClearSelection))
}

// Routes returns the API wrapped in request logging.
func (h *Handler) Routes() http.Handler {
	mux := http.NewServeMux()
	h.RegisterRoutes(mux)
	return h.logRequests(mux)
}

// New creates an HTTP server for the API on addr.
func New(addr string, store *session.Store) *http.Server {
	return &http.Server{
		Addr:              addr,
		Handler:           NewHandler(store).Routes(),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type sessionHandler func(w http.ResponseWriter, r *http.Request, s *session.Session)

// withSession resolves the {id} path value or answers 404.
func (h *Handler) withSession(next sessionHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s, err := h.store.Get(r.PathValue("id"))
		if err != nil {
			writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
			return
		}
		next(w, r, s)
	}
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"sessions": h.store.Len(),
	})
}

type createQuery struct {
	// Page loads a first page right away when set.
	Page int `schema:"page"`
}

func (h *Handler) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var q createQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil || q.Page < 0 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}

	s := h.store.Create()
	view := s.View()
	if q.Page > 0 {
		v, err := s.Load(r.Context(), q.Page)
		if err != nil {
			// the client never learns the id, so nothing could reach this session
			_ = h.store.Delete(s.ID())
			h.writeFetchError(w, err)
			return
		}
		view = v
	}
	writeJSON(w, http.StatusCreated, view)
}

func (h *Handler) handleGetSession(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, s.View())
}

func (h *Handler) handleDeleteSession(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Delete(r.PathValue("id")); err != nil {
		writeError(w, http.StatusNotFound, ErrCodeNotFound, "Session not found")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type pageQuery struct {
	Page int `schema:"page"`
}

func (h *Handler) handleLoadPage(w http.ResponseWriter, r *http.Request, s *session.Session) {
	q := pageQuery{Page: 1}
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil || q.Page < 1 {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "page must be a positive integer")
		return
	}

	view, err := s.Load(r.Context(), q.Page)
	if err != nil {
		h.writeFetchError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleToggleRow(w http.ResponseWriter, r *http.Request, s *session.Session) {
	rowID, err := strconv.Atoi(r.PathValue("rowID"))
	if err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "rowID must be an integer")
		return
	}
	writeJSON(w, http.StatusOK, s.ToggleRow(rowID))
}

type selectAllQuery struct {
	Checked bool `schema:"checked,required"`
}

func (h *Handler) handleSelectAll(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var q selectAllQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "checked must be true or false")
		return
	}
	writeJSON(w, http.StatusOK, s.ToggleSelectAll(q.Checked))
}

// PageSelectionRequest lists the checked rows of the current page.
type PageSelectionRequest struct {
	IDs []int `json:"ids"`
}

func (h *Handler) handleApplyPageSelection(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var req PageSelectionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid request body")
		return
	}
	writeJSON(w, http.StatusOK, s.ApplyPageSelection(req.IDs))
}

type targetQuery struct {
	Count string `schema:"count"`
}

func (h *Handler) handleRequestTarget(w http.ResponseWriter, r *http.Request, s *session.Session) {
	var q targetQuery
	if err := h.decoder.Decode(&q, r.URL.Query()); err != nil {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "Invalid query parameters")
		return
	}

	view, err := s.RequestTargetInput(q.Count)
	if errors.Is(err, selection.ErrInvalidTarget) {
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, err.Error())
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, ErrCodeInternalError, "Failed to apply target")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (h *Handler) handleGetSelection(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, s.Engine().Snapshot())
}

func (h *Handler) handleClearSelection(w http.ResponseWriter, r *http.Request, s *session.Session) {
	writeJSON(w, http.StatusOK, s.Clear())
}

// writeFetchError maps a failed page load to a response. The selection was
// not touched.
func (h *Handler) writeFetchError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, client.ErrInvalidPage):
		writeError(w, http.StatusBadRequest, ErrCodeBadRequest, "page must be a positive integer")
	case errors.Is(err, context.Canceled):
		w.WriteHeader(499) // Client Closed Request
	default:
		class := client.ClassOf(err)
		if class == "" && errors.Is(err, context.DeadlineExceeded) {
			class = client.ErrorClassNetwork
		}
		h.logger.Warn().Err(err).Str("error_class", string(class)).Msg("Upstream page fetch failed")
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadGateway)
		_ = json.NewEncoder(w).Encode(APIError{
			Code:       ErrCodeUpstream,
			Message:    "Failed to load page",
			ErrorClass: string(class),
		})
	}
}

// writeError writes a structured JSON error response
func writeError(w http.ResponseWriter, status int, code string, message string) {
	writeJSON(w, status, APIError{Code: code, Message: message})
}

// writeJSON writes a JSON response with proper error handling
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		logger := logging.NewLogger("http")
		logger.Warn().Err(err).Msg("Failed to encode JSON response")
	}
}

func withTimeout(next http.HandlerFunc, timeout time.Duration) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		next(w, r.WithContext(ctx))
	}
}

// maxBodySize wraps a handler with request body size limiting
func maxBodySize(next http.HandlerFunc, maxBytes int64) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next(w, r)
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (h *Handler) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		h.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status_code", rec.status).
			Dur("duration", time.Since(start)).
			Msg("HTTP request")
	})
}
