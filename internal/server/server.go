package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/k8ika0s/envelope-queue/internal/api"
	"github.com/k8ika0s/envelope-queue/internal/config"
	"github.com/k8ika0s/envelope-queue/internal/report"
)

// Service is a thin wrapper around the HTTP server.
type Service struct {
	srv    *http.Server
	logger *slog.Logger
}

// New wires the API routes behind the access log, CORS and gzip middleware.
func New(cfg config.Config, q api.Queue, events *report.Hub, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	mux := http.NewServeMux()
	h := &api.Handler{Queue: q, Events: events, Token: cfg.APIToken, Logger: logger}
	h.Routes(mux)
	return &Service{
		srv: &http.Server{
			Addr:              cfg.HTTPAddr,
			Handler:           Handler(cfg, mux, logger),
			ReadHeaderTimeout: 10 * time.Second,
		},
		logger: logger,
	}
}

// Handler applies the middleware chain to next.
func Handler(cfg config.Config, next http.Handler, logger *slog.Logger) http.Handler {
	return withAccessLog(logger, withCORS(cfg, withGzip(next)))
}

// Start serves until ctx is cancelled, then shuts down gracefully.
// Request contexts are cancelled when shutdown begins so event streams end.
func (s *Service) Start(ctx context.Context) error {
	base, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	s.srv.BaseContext = func(net.Listener) context.Context { return base }
	s.srv.RegisterOnShutdown(cancelBase)

	errc := make(chan error, 1)
	go func() {
		s.logger.Info("http listening", "addr", s.srv.Addr)
		errc <- s.srv.ListenAndServe()
	}()
	select {
	case err := <-errc:
		return err
	case <-ctx.Done():
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errc; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
