package httpapi

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"

	"github.com/rickgao/attendance-notify/internal/connection"
	"github.com/rickgao/attendance-notify/internal/notify"
)

// Notifier accepts attendance events. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ev notify.AttendanceEvent) error
}

// Config holds server configuration.
type Config struct {
	AdminToken    string // Bearer token for /api routes; empty disables auth
	DefaultTarget string // Used by /send when the request names no target
	MetricsPath   string // default: /metrics
}

// Server routes HTTP requests to the manager.
type Server struct {
	cfg      Config
	manager  connection.Manager
	notifier Notifier
	metrics  http.Handler
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// Option configures a Server.
type Option func(*Server)

// WithNotifier enables POST /api/attendance/events.
func WithNotifier(n Notifier) Option {
	return func(s *Server) { s.notifier = n }
}

// WithMetrics serves h on the metrics path.
func WithMetrics(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// WithLogger sets the request logger.
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) { s.logger = l }
}

// New creates a Server.
func New(cfg Config, manager connection.Manager, opts ...Option) *Server {
	if cfg.MetricsPath == "" {
		cfg.MetricsPath = "/metrics"
	}
	s := &Server{
		cfg:     cfg,
		manager: manager,
		logger:  slog.Default(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "httpapi")
	return s
}

// Handler returns the routed handler.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(s.logRequests)

	r.Get("/health", s.health)
	if s.metrics != nil {
		r.Handle(s.cfg.MetricsPath, s.metrics)
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(s.requireToken)

		r.Route("/whatsapp", func(r chi.Router) {
			r.Get("/status", s.status)
			r.Get("/status/stream", s.statusStream)
			r.Get("/qr", s.qr)
			r.Get("/qr.png", s.qrPNG)
			r.Post("/start", s.start)
			r.Post("/stop", s.stop)
			r.Post("/restart", s.restart)
			r.Post("/recover", s.softRecover)
			r.Post("/logout", s.logout)
			r.Post("/send", s.send)
		})

		r.Post("/attendance/events", s.attendanceEvent)
	})
	return r
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// within shutdownTimeout.
func (s *Server) ListenAndServe(ctx context.Context, addr string, shutdownTimeout time.Duration) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.cfg.AdminToken == "" {
			next.ServeHTTP(w, r)
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(s.cfg.AdminToken)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized", "")
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)
		s.logger.Debug("http request",
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"duration", time.Since(start),
			"request_id", middleware.GetReqID(r.Context()),
		)
	})
}

type errorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, code int, message, details string) {
	writeJSON(w, code, errorResponse{Error: message, Details: details})
}

// statusFor maps manager errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, connection.ErrNotReady),
		errors.Is(err, connection.ErrUnhealthySession),
		errors.Is(err, notify.ErrQueueFull),
		errors.Is(err, notify.ErrStopped):
		return http.StatusServiceUnavailable
	case errors.Is(err, connection.ErrAlreadyRunning):
		return http.StatusConflict
	case errors.Is(err, connection.ErrSendFailed):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) fail(w http.ResponseWriter, op string, err error) {
	code := statusFor(err)
	if code >= http.StatusInternalServerError {
		s.logger.Warn("request failed", "op", op, "status", code, "error", err)
	}
	writeError(w, code, op+" failed", err.Error())
}
