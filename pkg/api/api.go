// Package api serves night summaries and QLA results over HTTP.
package api

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/fact-project/nightsummary/pkg/config"
	"github.com/fact-project/nightsummary/pkg/store"
	"github.com/fact-project/nightsummary/pkg/summary"
	"github.com/sirupsen/logrus"
)

const shutdownTimeout = 10 * time.Second

// Server exposes the API HTTP server lifecycle.
type Server interface {
	Start(ctx context.Context) error
	Stop() error
}

// Compile-time interface check.
var _ Server = (*server)(nil)

type server struct {
	log         logrus.FieldLogger
	cfg         *config.Config
	store       store.Store
	builder     *summary.Builder
	localServer *localFileServer
	limiters    []*rateLimiterMap
	httpServer  *http.Server
	wg          sync.WaitGroup
}

// NewServer creates a new API server reading from st. The store is owned
// by the caller and must already be started.
func NewServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
) (Server, error) {
	return newServer(log, cfg, st)
}

func newServer(
	log logrus.FieldLogger,
	cfg *config.Config,
	st store.Store,
) (*server, error) {
	builder, err := summary.NewBuilder(log, st, cfg)
	if err != nil {
		return nil, err
	}

	log = log.WithField("component", "api")

	return &server{
		log:         log,
		cfg:         cfg,
		store:       st,
		builder:     builder,
		localServer: newLocalFileServer(log, cfg.Report.OutputDir),
	}, nil
}

// Start builds the router and starts the HTTP server.
func (s *server) Start(_ context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.API.Listen,
		Handler:           s.buildRouter(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	// Bind the listener synchronously so we fail fast on port conflicts.
	ln, err := net.Listen("tcp", s.cfg.API.Listen)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", s.cfg.API.Listen, err)
	}

	s.wg.Add(1)

	go func() {
		defer s.wg.Done()

		s.log.WithField("listen", ln.Addr().String()).
			Info("API server starting")

		if err := s.httpServer.Serve(ln); err != nil &&
			err != http.ErrServerClosed {
			s.log.WithError(err).Error("HTTP server error")
		}
	}()

	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *server) Stop() error {
	if s.httpServer != nil {
		ctx, cancel := context.WithTimeout(
			context.Background(), shutdownTimeout,
		)
		defer cancel()

		if err := s.httpServer.Shutdown(ctx); err != nil {
			s.log.WithError(err).Warn("HTTP server shutdown error")
		}
	}

	s.wg.Wait()

	for _, l := range s.limiters {
		l.stop()
	}

	s.log.Info("API server stopped")

	return nil
}
