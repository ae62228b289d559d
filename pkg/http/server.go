package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"Argo/pkg/http/middleware"
	"Argo/pkg/logger"
)

// Handler registers its routes on the shared echo instance.
type Handler interface {
	RegisterRoutes(e *echo.Echo)
}

// ServerOption configures a Server.
type ServerOption func(*ServerConfig)

type ServerConfig struct {
	Host            string
	Port            int
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	SlowRequest     time.Duration
	CORSOrigins     []string
	Gatherer        prometheus.Gatherer
	Registerer      prometheus.Registerer
}

// Server wraps echo with graceful shutdown.
type Server struct {
	echo   *echo.Echo
	config *ServerConfig
	l      *logger.Logger
}

// NewServer creates an echo server and registers handlers.
func NewServer(l *logger.Logger, handlers []Handler, opts ...ServerOption) *Server {
	cfg := &ServerConfig{
		Host:            "0.0.0.0",
		Port:            8080,
		ReadTimeout:     10 * time.Second,
		WriteTimeout:    10 * time.Second,
		ShutdownTimeout: 10 * time.Second,
		SlowRequest:     time.Second,
		CORSOrigins:     []string{"*"},
		Gatherer:        prometheus.DefaultGatherer,
		Registerer:      prometheus.DefaultRegisterer,
	}
	for _, opt := range opts {
		opt(cfg)
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Server.ReadTimeout = cfg.ReadTimeout
	e.Server.WriteTimeout = cfg.WriteTimeout

	e.Use(middleware.RequestID())
	e.Use(middleware.Recover(l))
	e.Use(middleware.Metrics(cfg.Registerer, l, cfg.SlowRequest))
	e.Use(middleware.RequestLogging(l))
	if len(cfg.CORSOrigins) > 0 {
		e.Use(middleware.CORS(middleware.CORSConfig{
			AllowOrigins: cfg.CORSOrigins,
			AllowMethods: []string{http.MethodGet, http.MethodOptions},
			AllowHeaders: []string{echo.HeaderOrigin, echo.HeaderContentType, echo.HeaderAccept},
		}))
	}

	for _, h := range handlers {
		if h != nil {
			h.RegisterRoutes(e)
		}
	}
	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{})))

	return &Server{echo: e, config: cfg, l: l}
}

// Start listens in the background.
func (s *Server) Start() error {
	addr := fmt.Sprintf("%s:%d", s.config.Host, s.config.Port)
	go func() {
		s.l.Info("http server listening", logger.String("addr", addr))
		if err := s.echo.Start(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.l.Error("http server stopped unexpectedly", logger.Error(err))
		}
	}()
	return nil
}

// Stop shuts the server down gracefully.
func (s *Server) Stop(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
	defer cancel()
	if err := s.echo.Shutdown(ctx); err != nil {
		return fmt.Errorf("http shutdown: %w", err)
	}
	return nil
}

func (s *Server) Echo() *echo.Echo {
	return s.echo
}

// WithAddress sets listen host and port.
func WithAddress(host string, port int) ServerOption {
	return func(c *ServerConfig) {
		c.Host = host
		c.Port = port
	}
}

// WithTimeouts sets read, write and shutdown timeouts.
func WithTimeouts(read, write, shutdown time.Duration) ServerOption {
	return func(c *ServerConfig) {
		c.ReadTimeout = read
		c.WriteTimeout = write
		c.ShutdownTimeout = shutdown
	}
}

// WithCORSOrigins sets allowed origins; empty disables CORS handling.
func WithCORSOrigins(origins []string) ServerOption {
	return func(c *ServerConfig) { c.CORSOrigins = origins }
}

// WithSlowRequestThreshold sets the latency above which requests are logged as slow.
func WithSlowRequestThreshold(d time.Duration) ServerOption {
	return func(c *ServerConfig) { c.SlowRequest = d }
}

// WithPrometheus sets where HTTP metrics are registered and what /metrics serves.
func WithPrometheus(reg prometheus.Registerer, g prometheus.Gatherer) ServerOption {
	return func(c *ServerConfig) {
		c.Registerer = reg
		c.Gatherer = g
	}
}
