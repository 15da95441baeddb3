package api

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/bench-history/tracker/analysis"
	"github.com/bench-history/tracker/metrics"
	"github.com/bench-history/tracker/storage"
	"github.com/bench-history/tracker/types"
)

// AlertNotifier is told about alerts raised by appends
type AlertNotifier interface {
	NotifyAlerts(ctx context.Context, report *types.AlertReport) error
}

// Options configures the HTTP server
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	RepoURL      string
}

// Server exposes a benchmark history over HTTP
type Server struct {
	opts     Options
	store    storage.HistoryStore
	analyzer *analysis.Analyzer
	exporter *metrics.Exporter
	notifier AlertNotifier
	mirror   storage.EntryMirror
	hub      *WSHub
	log      logrus.FieldLogger

	httpServer *http.Server
	started    time.Time
}

// NewServer creates a server over store
func NewServer(opts Options, store storage.HistoryStore, analyzer *analysis.Analyzer, exporter *metrics.Exporter, log logrus.FieldLogger) *Server {
	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = 30 * time.Second
	}
	if opts.WriteTimeout <= 0 {
		opts.WriteTimeout = 30 * time.Second
	}
	if exporter == nil {
		exporter = metrics.NewExporter()
	}

	return &Server{
		opts:     opts,
		store:    store,
		analyzer: analyzer,
		exporter: exporter,
		hub:      NewWSHub(log),
		log:      log.WithField("component", "api-server"),
		started:  time.Now(),
	}
}

// WithNotifier sends append alerts to n
func (s *Server) WithNotifier(n AlertNotifier) *Server {
	s.notifier = n
	return s
}

// WithMirror copies appended runs to m
func (s *Server) WithMirror(m storage.EntryMirror) *Server {
	s.mirror = m
	return s
}

// Hub returns the WebSocket hub
func (s *Server) Hub() *WSHub {
	return s.hub
}

// Start binds the listener and serves in the background
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.opts.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.opts.Addr, err)
	}

	s.httpServer = &http.Server{
		Handler:      s.Router(),
		ReadTimeout:  s.opts.ReadTimeout,
		WriteTimeout: s.opts.WriteTimeout,
		IdleTimeout:  120 * time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	go s.hub.Run()

	go func() {
		s.log.WithField("addr", ln.Addr().String()).Info("API server listening")
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.WithError(err).Error("API server failed")
		}
	}()
	return nil
}

// Stop shuts the server down gracefully
func (s *Server) Stop(ctx context.Context) error {
	s.log.Info("Stopping API server")
	s.hub.Stop()

	if s.httpServer == nil {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.log.WithError(err).Error("Failed to shutdown API server gracefully")
		return err
	}
	s.log.Info("API server stopped")
	return nil
}

// Router builds the route table
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.Use(s.enableCORS)
	router.Use(s.loggingMiddleware)
	router.Use(s.errorHandlingMiddleware)

	router.HandleFunc("/health", s.handleHealth).Methods("GET")
	router.HandleFunc("/data.js", s.handleDataFile).Methods("GET")
	router.HandleFunc("/data.json", s.handleDataFile).Methods("GET")
	router.HandleFunc("/metrics", s.handleMetrics).Methods("GET")

	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/health", s.handleDetailedHealth).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups", s.handleListGroups).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{group}/entries", s.handleListEntries).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{group}/entries", s.handleAppendEntry).Methods("POST", "OPTIONS")
	api.HandleFunc("/groups/{group}/entries/{commitId}", s.handleGetEntry).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{group}/benches/{bench}/series", s.handleSeries).Methods("GET", "OPTIONS")
	api.HandleFunc("/groups/{group}/compare", s.handleCompare).Methods("GET", "OPTIONS")
	api.HandleFunc("/ws", s.hub.ServeWS)

	return router
}

// enableCORS adds CORS headers to responses
func (s *Server) enableCORS(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		w.Header().Set("Access-Control-Max-Age", "86400")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// loggingMiddleware logs requests and records them in the exporter
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapper := &responseWriterWrapper{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapper, r)

		path := r.URL.Path
		if route := mux.CurrentRoute(r); route != nil {
			if tmpl, err := route.GetPathTemplate(); err == nil {
				path = tmpl
			}
		}
		duration := time.Since(start)
		s.exporter.ObserveRequest(r.Method, path, wrapper.statusCode, duration)

		s.log.WithFields(logrus.Fields{
			"method":      r.Method,
			"path":        r.URL.Path,
			"status":      wrapper.statusCode,
			"duration_ms": duration.Milliseconds(),
			"remote_addr": r.RemoteAddr,
		}).Debug("HTTP request processed")
	})
}

// errorHandlingMiddleware turns panics into 500 responses
func (s *Server) errorHandlingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				s.log.WithField("error", err).Error("Panic in HTTP handler")
				s.writeErrorResponse(w, http.StatusInternalServerError, "Internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// responseWriterWrapper captures the status code of a response
type responseWriterWrapper struct {
	http.ResponseWriter
	statusCode int
}

func (w *responseWriterWrapper) WriteHeader(statusCode int) {
	w.statusCode = statusCode
	w.ResponseWriter.WriteHeader(statusCode)
}

// Hijack lets the WebSocket upgrader take over the connection
func (w *responseWriterWrapper) Hijack() (net.Conn, *bufio.ReadWriter, error) {
	h, ok := w.ResponseWriter.(http.Hijacker)
	if !ok {
		return nil, nil, errors.New("response writer does not support hijacking")
	}
	w.statusCode = http.StatusSwitchingProtocols
	return h.Hijack()
}
