// Package web serves the JSON HTTP API and the Prometheus endpoint.
package web

import (
	"context"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/hpungsan/feedvault/internal/command"
	"github.com/hpungsan/feedvault/internal/metrics"
)

// shutdownTimeout bounds how long in-flight requests may finish after Run's
// context is done.
const shutdownTimeout = 5 * time.Second

// NewRouter builds the API routes.
func NewRouter(d *command.Dispatcher, m *metrics.Metrics, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &Handlers{d: d, log: logger}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(securityHeaders)
	r.Use(observe(m))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		renderJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	r.Method(http.MethodGet, "/metrics", m.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Post("/ingest", h.HandleIngest)

		r.Route("/records", func(r chi.Router) {
			r.Get("/", h.HandleQuery)
			r.Delete("/", h.HandleClearAll)
			r.Get("/search", h.HandleSearch)
			r.Get("/{id}", h.HandleGet)
			r.Delete("/{id}", h.HandleDelete)
		})

		r.Get("/stats", h.HandleStats)
		r.Get("/settings", h.HandleGetSettings)
		r.Patch("/settings", h.HandleUpdateSettings)
		r.Get("/export", h.HandleExport)
		r.Post("/import", h.HandleImport)
		r.Post("/cleanup", h.HandleCleanup)
		r.Post("/optimize", h.HandleOptimize)
		r.Get("/quota", h.HandleQuota)
		r.Get("/events", h.HandleEvents)
	})

	return r
}

// NewServer creates the HTTP server for the API.
func NewServer(d *command.Dispatcher, m *metrics.Metrics, logger *slog.Logger, bind string, port int) *http.Server {
	return &http.Server{
		Addr:              net.JoinHostPort(bind, fmt.Sprint(port)),
		Handler:           NewRouter(d, m, logger),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// securityHeaders adds security-related HTTP headers to all responses.
func securityHeaders(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Security-Policy", "default-src 'none'; frame-ancestors 'none'")
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Cache-Control", "no-store")
		next.ServeHTTP(w, r)
	})
}

// observe records request counts and latency by route pattern.
func observe(m *metrics.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			route := "unmatched"
			if rc := chi.RouteContext(r.Context()); rc != nil && rc.RoutePattern() != "" {
				route = rc.RoutePattern()
			}
			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			m.ObserveHTTP(r.Method, route, status, time.Since(start))
		})
	}
}

// Run serves srv until ctx is done, then shuts down gracefully.
func Run(ctx context.Context, srv *http.Server, logger *slog.Logger) error {
	if logger == nil {
		logger = slog.Default()
	}

	ln, err := net.Listen("tcp", srv.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", srv.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	logger.Info("web: listening", "addr", "http://"+ln.Addr().String())
	if host, _, _ := net.SplitHostPort(srv.Addr); host == "" || host == "0.0.0.0" || strings.Contains(host, "::") {
		logger.Warn("web: binding to all interfaces; the API has no authentication")
	}

	select {
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	case <-ctx.Done():
		logger.Info("web: shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		<-errCh
		return nil
	}
}
