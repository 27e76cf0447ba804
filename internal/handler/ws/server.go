package ws

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/helphub/relay-service/config"
	"github.com/helphub/relay-service/internal/observability"
)

// Server hosts the plaintext HTTP endpoint: the web client's static assets,
// the push upgrade path and the metrics surface.
type Server struct {
	cfg    *config.Config
	logger *slog.Logger
	srv    *http.Server
}

func NewServer(cfg *config.Config, handler *WSHandler, metrics *observability.Metrics, logger *slog.Logger) *Server {
	r := chi.NewRouter()
	r.Get("/ws", handler.ServeHTTP)
	r.Method(http.MethodGet, "/metrics",
		promhttp.HandlerFor(metrics.Registry(), promhttp.HandlerOpts{}))
	r.Handle("/*", http.FileServer(http.Dir(cfg.WebRoot)))

	return &Server{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "http")),
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.WebPort),
			Handler: r,
		},
	}
}

func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("bind web listener: %w", err)
	}
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("web listener failed", slog.Any("err", err))
		}
	}()
	s.logger.Info("serving web client and push sessions",
		slog.Int("port", s.cfg.WebPort), slog.String("webroot", s.cfg.WebRoot))
	return nil
}

func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
