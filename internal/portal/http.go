// ABOUTME: Health and Prometheus metrics HTTP endpoints for the portal
// ABOUTME: Served on metrics.addr until the context is canceled

package portal

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Handler returns the portal's HTTP mux.
func (a *App) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", a.handleHealth)
	mux.HandleFunc("/health/ready", a.handleReady)
	path := a.Config.Metrics.Path
	if path == "" {
		path = "/metrics"
	}
	mux.Handle(path, promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{}))
	return mux
}

// handleHealth returns 200 OK if the process is alive.
func (a *App) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

// handleReady returns 200 OK if the record store answers a ping.
func (a *App) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), pingTimeout)
	defer cancel()
	if err := a.Store.Ping(ctx); err != nil {
		a.Logger.Warn("readiness check failed", "error", err)
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("store unavailable"))
		return
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("ready"))
}

// RunHTTP listens on metrics.addr and blocks until ctx is canceled.
// Returns nil on graceful shutdown, or an error if the server fails.
func (a *App) RunHTTP(ctx context.Context) error {
	ln, err := net.Listen("tcp", a.Config.Metrics.Addr)
	if err != nil {
		return fmt.Errorf("listening on metrics address: %w", err)
	}
	return a.serve(ctx, ln)
}

func (a *App) serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           a.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		a.Logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
		close(errCh)
	}()

	var serverErr error
	select {
	case <-ctx.Done():
	case serverErr = <-errCh:
		a.Logger.Error("server error", "error", serverErr)
	}

	// Uses a fresh context since ctx is already canceled.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && serverErr == nil {
		return fmt.Errorf("HTTP shutdown: %w", err)
	}
	return serverErr
}
