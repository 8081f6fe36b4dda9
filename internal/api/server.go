// Package api exposes the resolver over HTTP: coin price, coin record, ranked
// list, conversion rate and cache administration.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/Sternrassler/coinrate/internal/config"
	"github.com/Sternrassler/coinrate/pkg/logging"
	"github.com/Sternrassler/coinrate/pkg/metrics"
	"github.com/Sternrassler/coinrate/pkg/resolver"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	defaultListLimit = 100
	maxListLimit     = 500
)

// Server is the HTTP API server.
type Server struct {
	router   chi.Router
	resolver *resolver.Resolver
	redis    *redis.Client
	cfg      config.ServerConfig
	logger   zerolog.Logger
}

// NewServer creates a server with all routes and middleware.
func NewServer(res *resolver.Resolver, redisClient *redis.Client, cfg config.ServerConfig) *Server {
	s := &Server{
		resolver: res,
		redis:    redisClient,
		cfg:      cfg,
		logger:   logging.NewLogger(logging.ComponentAPI),
	}
	s.router = s.buildRouter()
	return s
}

// Router returns the chi router for testing.
func (s *Server) Router() chi.Router {
	return s.router
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	httpSrv := &http.Server{
		Addr:         s.cfg.Addr,
		Handler:      s.router,
		ReadTimeout:  s.cfg.ReadTimeout,
		WriteTimeout: s.cfg.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info().Str("addr", s.cfg.Addr).Msg("HTTP server listening")
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	s.logger.Info().Msg("Shutting down server")
	shutdownTimeout := s.cfg.ShutdownTimeout
	if shutdownTimeout <= 0 {
		shutdownTimeout = 10 * time.Second
	}
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	// Let pending catalog write-backs finish.
	s.resolver.Wait()
	return nil
}

// buildRouter configures all routes and middleware.
func (s *Server) buildRouter() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	if s.cfg.WriteTimeout > 0 {
		r.Use(middleware.Timeout(s.cfg.WriteTimeout))
	}

	origins := []string{"*"}
	if len(s.cfg.CORSOrigins) > 0 {
		origins = s.cfg.CORSOrigins
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "If-Modified-Since", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID", "X-Cache", "Expires", "Last-Modified"},
		MaxAge:         300,
	}))

	r.Get("/health", s.handleHealth)
	r.Get("/ready", s.handleReady)
	r.Handle("/metrics", metrics.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/coin/price/{id}", s.handlePrice)
		r.Get("/coin/{slug}", s.handleCoin)
		r.Get("/coins", s.handleCoins)
		r.Get("/rate", s.handleRate)

		r.Delete("/cache/coin/{id}", s.handleInvalidate)
	})

	return r
}

func (s *Server) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		start := time.Now()
		next.ServeHTTP(ww, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", ww.Status()).
			Int("bytes", ww.BytesWritten()).
			Dur("duration", time.Since(start)).
			Str("request_id", middleware.GetReqID(r.Context())).
			Msg("HTTP request")
	})
}
