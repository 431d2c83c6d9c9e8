package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/icecapdb/icecap/pkg/errors"
	"github.com/icecapdb/icecap/server/catalog"
	"github.com/icecapdb/icecap/server/config"
	"github.com/rs/zerolog"
)

// REST-specific error codes
var (
	ErrMalformedBody    = errors.MustNewCode("rest.malformed_body").WithClass(errors.ClassInvalidArgument)
	ErrMissingNamespace = errors.MustNewCode("rest.missing_namespace").WithClass(errors.ClassInvalidArgument)
)

// Server is the REST catalog protocol server
type Server struct {
	catalog *catalog.Catalog
	cfg     *config.Config
	logger  zerolog.Logger
	server  *http.Server
	wg      sync.WaitGroup
}

// NewServer creates a new REST server instance
func NewServer(cat *catalog.Catalog, cfg *config.Config, logger zerolog.Logger) *Server {
	return &Server{
		catalog: cat,
		cfg:     cfg,
		logger:  logger.With().Str("component", "rest-server").Logger(),
	}
}

// Handler builds the route tree. Exposed so tests can drive the API
// without a listener.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/v1/config", s.handleConfig)

	r.Route("/v1/{prefix}", func(r chi.Router) {
		r.Route("/namespaces", func(r chi.Router) {
			r.Get("/", s.handleListNamespaces)
			r.Post("/", s.handleCreateNamespace)

			r.Route("/{namespace}", func(r chi.Router) {
				r.Get("/", s.handleLoadNamespace)
				r.Head("/", s.handleNamespaceExists)
				r.Delete("/", s.handleDropNamespace)
				r.Post("/properties", s.handleUpdateNamespaceProperties)
				r.Post("/register", s.handleRegisterTable)

				r.Route("/tables", func(r chi.Router) {
					r.Get("/", s.handleListTables)
					r.Post("/", s.handleCreateTable)

					r.Route("/{table}", func(r chi.Router) {
						r.Get("/", s.handleLoadTable)
						r.Head("/", s.handleTableExists)
						r.Delete("/", s.handleDropTable)
						r.Post("/", s.handleCommitTable)
						r.Get("/credentials", s.handleLoadCredentials)
						r.Post("/metrics", s.handleReportMetrics)
						r.Post("/plan", s.handleSubmitPlan)
						r.Get("/plan/{planID}", s.handleGetPlan)
						r.Delete("/plan/{planID}", s.handleCancelPlan)
						r.Post("/tasks", s.handleFetchTasks)
					})
				})
			})
		})

		r.Post("/tables/rename", s.handleRenameTable)
		r.Post("/transactions/commit", s.handleCommitTransaction)
	})

	return r
}

// Start starts the REST server
func (s *Server) Start(ctx context.Context) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.HTTP.Address, s.cfg.HTTP.Port)
	s.logger.Info().Str("address", addr).Msg("Starting REST server")

	s.server = &http.Server{
		Addr:    addr,
		Handler: s.Handler(),
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("REST server error")
		}
	}()

	s.logger.Info().Msg("REST server started successfully")
	return nil
}

// Stop stops the REST server gracefully
func (s *Server) Stop() error {
	s.logger.Info().Msg("Stopping REST server")

	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := s.server.Shutdown(shutdownCtx); err != nil {
			s.logger.Error().Err(err).Msg("Error during REST server shutdown")
		}
	}

	s.wg.Wait()
	s.logger.Info().Msg("REST server stopped")
	return nil
}

// namespaceSeparator is the unit separator byte that joins namespace
// levels inside one path segment, percent-encoded as %1F on the wire
const namespaceSeparator = "\x1f"

// namespaceParam decodes the {namespace} path segment into levels. chi
// hands back the raw segment when the request path carried escapes, so
// the %1F separators are unescaped here.
func namespaceParam(r *http.Request) ([]string, error) {
	raw := pathParam(r, "namespace")
	if raw == "" {
		return nil, errors.New(ErrMissingNamespace, "namespace path segment is required", nil)
	}
	return strings.Split(raw, namespaceSeparator), nil
}

// pathParam returns an unescaped chi URL parameter
func pathParam(r *http.Request, name string) string {
	raw := chi.URLParam(r, name)
	if decoded, err := url.PathUnescape(raw); err == nil {
		return decoded
	}
	return raw
}

// splitQueryNamespace decodes a unit-separated namespace query value
func splitQueryNamespace(raw string) []string {
	return strings.Split(raw, namespaceSeparator)
}

// queryPageSize reads the pageSize query parameter; the catalog caps it
func queryPageSize(r *http.Request) int {
	raw := r.URL.Query().Get("pageSize")
	if raw == "" {
		return 0
	}
	size, err := strconv.Atoi(raw)
	if err != nil || size < 0 {
		return 0
	}
	return size
}

// decodeBody parses a JSON request body into dst
func decodeBody(r *http.Request, dst interface{}) error {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return errors.New(ErrMalformedBody, "failed to decode request body", err)
	}
	return nil
}

// writeJSON writes a JSON response with the given status
func (s *Server) writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(body); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response body")
	}
}

// writeError maps an error's failure class onto the Iceberg REST error
// model
func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	errType := "InternalServerError"
	switch errors.ClassOf(err) {
	case errors.ClassNotFound:
		status = http.StatusNotFound
		errType = "NoSuchObjectException"
	case errors.ClassConflict:
		status = http.StatusConflict
		errType = "CommitFailedException"
	case errors.ClassInvalidArgument:
		status = http.StatusBadRequest
		errType = "BadRequestException"
	}

	if status >= 500 {
		s.logger.Error().Err(err).Str("path", r.URL.Path).Msg("Request failed")
	}

	s.writeJSON(w, status, errorResponse{Error: errorBody{
		Message: err.Error(),
		Type:    errType,
		Code:    status,
	}})
}
