// Package server exposes studio sessions over HTTP.
//
// Each session is an imagestudio.Session held in memory. Clients create a
// session, edit its fields, attach images and trigger generation; every
// response carries the full session view.
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/mhpenta/imagestudio"
)

const shutdownTimeout = 10 * time.Second

// Server serves the session API.
type Server struct {
	submitter *imagestudio.Submitter
	sessions  *Registry
	logger    *slog.Logger
	origins   []string
}

// Option configures the Server.
type Option func(*Server)

// WithLogger sets the structured logger for requests and submissions.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithAllowedOrigins restricts CORS to the given origins. All origins are
// allowed by default.
func WithAllowedOrigins(origins ...string) Option {
	return func(s *Server) {
		s.origins = origins
	}
}

// WithRegistry replaces the session registry.
func WithRegistry(r *Registry) Option {
	return func(s *Server) {
		s.sessions = r
	}
}

// New creates a Server that generates images with gen.
func New(gen imagestudio.Generator, opts ...Option) *Server {
	s := &Server{
		sessions: NewRegistry(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.submitter = imagestudio.NewSubmitter(gen, imagestudio.WithSubmitLogger(s.logger))
	return s
}

// Handler builds the gin engine with all routes registered.
func (s *Server) Handler() http.Handler {
	r := gin.New()
	r.MaxMultipartMemory = imagestudio.MaxImageSize
	r.Use(gin.Recovery(), s.requestLogger(), s.corsMiddleware())

	api := r.Group("/api")
	api.POST("/sessions", s.CreateSessionHandler)

	sess := api.Group("/sessions/:id", s.loadSession)
	sess.GET("", s.GetSessionHandler)
	sess.PATCH("", s.UpdateSessionHandler)
	sess.DELETE("", s.DeleteSessionHandler)
	sess.PUT("/images/:slot", s.PutImageHandler)
	sess.DELETE("/images/:slot", s.DeleteImageHandler)
	sess.POST("/generate", s.GenerateHandler)
	sess.GET("/events", s.EventsHandler)

	return r
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", ln.Addr().String())
		errCh <- srv.Serve(ln)
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
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) corsMiddleware() gin.HandlerFunc {
	config := cors.DefaultConfig()
	config.AllowMethods = []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete, http.MethodOptions}
	if len(s.origins) > 0 {
		config.AllowOrigins = s.origins
	} else {
		config.AllowAllOrigins = true
	}
	return cors.New(config)
}

func (s *Server) requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug("request",
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", c.Writer.Status(),
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
