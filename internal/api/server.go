// Package api serves the action history over HTTP: paginated action
// listings, per-run detail, aggregate statistics and the Prometheus metrics
// of the serving process. It is read-only.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"dupsweep/internal/database"
	"dupsweep/internal/logging"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
)

const (
	ReadTimeout     = 15 * time.Second
	WriteTimeout    = 15 * time.Second
	IdleTimeout     = 60 * time.Second
	ShutdownTimeout = 10 * time.Second
)

// Logger interface for structured logging in the API
type Logger interface {
	Info(msg string, args ...interface{})
	Warn(msg string, args ...interface{})
	Error(msg string, args ...interface{})
}

// History is the read side of database.ActionDB
type History interface {
	GetActionsPaginated(f database.ActionFilter, limit, offset int) ([]database.ActionRecord, int, error)
	GetActionsByRun(runID string) ([]database.ActionRecord, error)
	GetActionStats(days int) (*database.ActionStats, error)
}

// Options configures the router
type Options struct {
	Logger Logger
	// RequestsPerSecond and Burst bound each client, 0 uses 20 and 40
	RequestsPerSecond float64
	Burst             int
}

// NewRouter builds the history API. The returned limiter's cleanup loop runs
// until ctx is done.
func NewRouter(ctx context.Context, history History, opts Options) http.Handler {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	rps, burst := opts.RequestsPerSecond, opts.Burst
	if rps <= 0 {
		rps = 20
	}
	if burst <= 0 {
		burst = 40
	}

	h := &handlers{history: history, logger: logger}

	router := mux.NewRouter()
	router.Use(LoggingMiddleware(logger))
	router.Use(MetricsMiddleware)
	router.Use(SecurityHeadersMiddleware)
	router.Use(NewRateLimiter(ctx, rate.Limit(rps), burst, 10*time.Minute).Middleware())

	router.HandleFunc("/api/v1/health", HealthHandler).Methods(http.MethodGet, http.MethodHead)

	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.HandleFunc("/actions", h.listActions).Methods(http.MethodGet)
	v1.HandleFunc("/runs/{id}", h.getRun).Methods(http.MethodGet)
	v1.HandleFunc("/stats", h.getStats).Methods(http.MethodGet)

	router.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)

	return router
}

// Serve runs handler on addr until ctx is done, then shuts down gracefully
func Serve(ctx context.Context, addr string, handler http.Handler, logger Logger) error {
	if logger == nil {
		logger = logging.Discard()
	}

	srv := &http.Server{
		Addr:         addr,
		Handler:      handler,
		ReadTimeout:  ReadTimeout,
		WriteTimeout: WriteTimeout,
		IdleTimeout:  IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("History API listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	logger.Info("Shutting down history API")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}
