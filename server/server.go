package server

import (
	"context"
	"fmt"
	"time"

	"github.com/icecapdb/icecap/server/catalog"
	"github.com/icecapdb/icecap/server/config"
	"github.com/icecapdb/icecap/server/protocols/rest"
	"github.com/rs/zerolog"
)

// Server wires the catalog service and its REST protocol surface
type Server struct {
	config    *config.Config
	logger    zerolog.Logger
	catalog   *catalog.Catalog
	rest      *rest.Server
	startTime time.Time
}

// New creates a new server instance
func New(ctx context.Context, cfg *config.Config, logger zerolog.Logger) (*Server, error) {
	cat, err := catalog.NewCatalog(ctx, cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create catalog: %w", err)
	}

	return &Server{
		config:    cfg,
		logger:    logger.With().Str("component", "server").Logger(),
		catalog:   cat,
		rest:      rest.NewServer(cat, cfg, logger),
		startTime: time.Now(),
	}, nil
}

// Catalog exposes the catalog service, mainly for embedding and tests
func (s *Server) Catalog() *catalog.Catalog {
	return s.catalog
}

// Start starts the catalog and the REST listener
func (s *Server) Start(ctx context.Context) error {
	s.logger.Info().Str("catalog", s.config.Catalog.Name).Msg("Starting icecap server")

	if err := s.catalog.Start(); err != nil {
		return fmt.Errorf("failed to start catalog: %w", err)
	}
	if err := s.rest.Start(ctx); err != nil {
		return fmt.Errorf("failed to start REST server: %w", err)
	}

	s.logger.Info().
		Str("address", s.config.HTTP.Address).
		Int("port", s.config.GetHTTPPort()).
		Msg("Server started successfully")
	return nil
}

// Shutdown stops the listener first, then the catalog
func (s *Server) Shutdown() error {
	s.logger.Info().Msg("Shutting down server")

	if err := s.rest.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping REST server")
	}
	if err := s.catalog.Stop(); err != nil {
		s.logger.Error().Err(err).Msg("Error stopping catalog")
		return err
	}

	s.logger.Info().Msg("Graceful shutdown completed")
	return nil
}

// GetUptime returns the server uptime
func (s *Server) GetUptime() time.Duration {
	return time.Since(s.startTime)
}
