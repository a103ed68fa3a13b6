// Package server exposes the HTTP API: health, readiness, metrics and DJ session
// status/control. It injects correlation IDs into request contexts for
// consistent logging.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/sync/errgroup"
)

// NewMux returns the HTTP handler with all routes.
func NewMux(h *Handlers) http.Handler {
	authCfg := loadAuthConfig()
	limiter := newIPRateLimiter(loadRateLimiterConfig())

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/healthz", h.HandleHealthz)
	mux.HandleFunc("/readyz", h.HandleReadyz)
	mux.HandleFunc("/voices", h.HandleVoices)
	mux.HandleFunc("/sessions", h.HandleSessions)
	mux.Handle("/sessions/", adminAuth(rateLimitMiddleware(http.HandlerFunc(h.HandleSessionAction), limiter), authCfg))

	return withCorrelation(mux)
}

// Start serves h on addr until ctx is cancelled, then drains in-flight
// requests for up to five seconds.
func Start(ctx context.Context, addr string, h *Handlers) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           NewMux(h),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	log := slog.Default().With(slog.String("component", "http"))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info("http server listening", slog.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http listen %s: %w", addr, err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			log.Error("http server shutdown", slog.Any("err", err))
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		log.Error("http server stopped", slog.Any("err", err))
		return err
	}
	return nil
}
