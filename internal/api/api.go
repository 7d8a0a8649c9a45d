// Package api provides the FolioPipe HTTP server.
//
// It exposes a health probe, a JSON endpoint that runs one conversation turn,
// a read-only service record lookup and, when Twilio is enabled, the Twilio
// WhatsApp webhook.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/BTreeMap/FolioPipe/internal/flow"
	"github.com/BTreeMap/FolioPipe/internal/messaging"
)

// Constants for HTTP server configuration
const (
	DefaultAddr            = ":8080"
	DefaultShutdownTimeout = 10 * time.Second
	readHeaderTimeout      = 10 * time.Second
)

// Opts holds configuration options for the Server.
type Opts struct {
	Addr          string
	TwilioWebhook http.HandlerFunc
}

// Option defines a configuration option for the Server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithTwilioWebhook mounts h at POST /twilio/webhook.
func WithTwilioWebhook(h http.HandlerFunc) Option {
	return func(o *Opts) {
		o.TwilioWebhook = h
	}
}

// Server serves the HTTP API.
type Server struct {
	engine messaging.TurnHandler
	repo   flow.ServiceRepository
	opts   Opts
	router *gin.Engine
}

// NewServer creates a Server over the conversation engine and service repository.
func NewServer(engine messaging.TurnHandler, repo flow.ServiceRepository, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr}
	for _, opt := range opts {
		opt(&cfg)
	}

	s := &Server{engine: engine, repo: repo, opts: cfg}
	s.router = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestID())
	r.Use(Logger())

	r.GET("/healthz", s.healthHandler)

	v1 := r.Group("/v1")
	{
		v1.POST("/turns", s.turnHandler)
		v1.GET("/services/:folio", s.serviceHandler)
	}

	if s.opts.TwilioWebhook != nil {
		r.POST("/twilio/webhook", gin.WrapF(s.opts.TwilioWebhook))
	}
	return r
}

// Handler returns the HTTP handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), DefaultShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("Server shutdown failed", "error", err)
		}
	}()

	slog.Info("FolioPipe API listening", "addr", s.opts.Addr, "twilio", s.opts.TwilioWebhook != nil)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("api server: %w", err)
	}
	return nil
}
