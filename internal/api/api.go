package api

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/joescharf/maint/internal/models"
	"github.com/joescharf/maint/internal/tracker"
)

// Caller identity headers. Authentication happens in front of this server.
const (
	HeaderUserID       = "X-User-ID"
	HeaderUserName     = "X-User-Name"
	HeaderUserRole     = "X-User-Role"
	HeaderLocationID   = "X-Location-ID"
	HeaderLocationName = "X-Location-Name"
)

// Server provides the REST and websocket handlers.
type Server struct {
	tracker  *tracker.Tracker
	files    afero.Fs
	logger   *zap.Logger
	limits   tracker.Limits
	now      func() time.Time
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithFiles serves stored images read-only under /files/.
func WithFiles(fs afero.Fs) Option { return func(s *Server) { s.files = fs } }

// WithLimits sets the upload limits applied to multipart requests.
func WithLimits(l tracker.Limits) Option { return func(s *Server) { s.limits = l } }

// WithClock overrides the clock used for the calendar's current month.
func WithClock(now func() time.Time) Option { return func(s *Server) { s.now = now } }

// NewServer creates a new API server.
func NewServer(t *tracker.Tracker, logger *zap.Logger, opts ...Option) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		tracker: t,
		logger:  logger,
		limits:  tracker.DefaultLimits(),
		now:     time.Now,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Router returns an http.Handler for the API routes.
func (s *Server) Router() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", s.health)

	mux.HandleFunc("GET /api/v1/issues", s.listIssues)
	mux.HandleFunc("POST /api/v1/issues", s.createIssue)
	mux.HandleFunc("GET /api/v1/issues/live", s.liveIssues)
	mux.HandleFunc("GET /api/v1/issues/{id}", s.getIssue)
	mux.HandleFunc("DELETE /api/v1/issues/{id}", s.deleteIssue)
	mux.HandleFunc("PUT /api/v1/issues/{id}/status", s.setIssueStatus)
	mux.HandleFunc("POST /api/v1/issues/{id}/comments", s.addComment)
	mux.HandleFunc("POST /api/v1/issues/{id}/schedule", s.scheduleIssue)

	mux.HandleFunc("GET /api/v1/events", s.listEvents)
	mux.HandleFunc("POST /api/v1/events", s.createEvent)
	mux.HandleFunc("GET /api/v1/events/live", s.liveEvents)
	mux.HandleFunc("DELETE /api/v1/events/{id}", s.deleteEvent)

	mux.HandleFunc("GET /api/v1/calendar", s.calendar)

	if s.files != nil {
		fileServer := http.FileServer(afero.NewHttpFs(s.files).Dir("/"))
		mux.Handle("GET /files/", http.StripPrefix("/files", fileServer))
	}

	return s.requestLogger(corsMiddleware(mux))
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", strings.Join([]string{
			"Content-Type", HeaderUserID, HeaderUserName, HeaderUserRole, HeaderLocationID, HeaderLocationName,
		}, ", "))
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// responseRecorder wraps http.ResponseWriter to capture the status code.
type responseRecorder struct {
	http.ResponseWriter
	statusCode int
}

func (rr *responseRecorder) WriteHeader(code int) {
	rr.statusCode = code
	rr.ResponseWriter.WriteHeader(code)
}

// Hijack lets websocket upgrades pass through the recorder.
func (rr *responseRecorder) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := rr.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	rr.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}

// requestLogger logs method, path, status code, and duration for each request.
func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rr := &responseRecorder{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rr, r)
		s.logger.Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", rr.statusCode),
			zap.Duration("duration", time.Since(start)),
		)
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeTrackerError maps the tracker's error taxonomy onto status codes.
// A partial failure is reported as such even when its cause is a sentinel.
// Store failures get a generic message; the detail goes to the log.
func (s *Server) writeTrackerError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		verr *tracker.ValidationError
		perr *tracker.PartialFailureError
	)
	switch {
	case errors.As(err, &perr):
		s.logger.Error("partial failure", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("%s did not complete: %s", perr.Op, perr.Failed))
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, tracker.ErrForbidden):
		writeError(w, http.StatusForbidden, err.Error())
	case errors.Is(err, tracker.ErrNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, tracker.ErrConflict):
		writeError(w, http.StatusConflict, err.Error())
	default:
		s.logger.Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeError(w, http.StatusInternalServerError, "something went wrong, please try again")
	}
}

// callerFromRequest reads the caller identity headers.
func callerFromRequest(r *http.Request) (models.Caller, error) {
	c := models.Caller{
		UserID:       strings.TrimSpace(r.Header.Get(HeaderUserID)),
		DisplayName:  strings.TrimSpace(r.Header.Get(HeaderUserName)),
		Role:         models.Role(strings.ToLower(strings.TrimSpace(r.Header.Get(HeaderUserRole)))),
		LocationID:   strings.TrimSpace(r.Header.Get(HeaderLocationID)),
		LocationName: strings.TrimSpace(r.Header.Get(HeaderLocationName)),
	}
	if c.UserID == "" {
		return c, fmt.Errorf("missing %s header", HeaderUserID)
	}
	if c.DisplayName == "" {
		c.DisplayName = c.UserID
	}
	return c, nil
}

// caller resolves the caller or writes a 401.
func (s *Server) caller(w http.ResponseWriter, r *http.Request) (models.Caller, bool) {
	c, err := callerFromRequest(r)
	if err != nil {
		writeError(w, http.StatusUnauthorized, err.Error())
		return c, false
	}
	return c, true
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return false
	}
	return true
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
