package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/host"
	"github.com/chiquitav2/ipam/internal/allocator/metrics"
	"github.com/chiquitav2/ipam/internal/allocator/region"
	"github.com/chiquitav2/ipam/internal/allocator/utilization"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/chiquitav2/ipam/internal/shared/models"
)

// RegionService defines the region operations the API server exposes.
type RegionService interface {
	Create(ctx context.Context, req region.CreateRequest, actor string) (*region.Region, error)
	Get(ctx context.Context, id string) (*region.Region, error)
	List(ctx context.Context, f region.Filter) (*models.Page[region.Region], error)
	Update(ctx context.Context, id string, req region.UpdateRequest, actor string) (*region.Region, error)
	Retire(ctx context.Context, id, reason string, cascade bool, actor string) (*region.RetireResult, error)
	Utilization(ctx context.Context, id string) (*region.Utilization, error)
	PreviewNext(ctx context.Context, country string) (*region.NextBlock, error)
}

// HostService defines the host operations the API server exposes.
type HostService interface {
	Create(ctx context.Context, regionID string, req host.CreateRequest, actor string) (*host.Host, error)
	BatchCreate(ctx context.Context, regionID string, req host.BatchRequest, actor string) ([]host.Host, error)
	Get(ctx context.Context, id string) (*host.Host, error)
	List(ctx context.Context, f host.Filter) (*models.Page[host.Host], error)
	Update(ctx context.Context, id string, req host.UpdateRequest, actor string) (*host.Host, error)
	Release(ctx context.Context, id, reason, actor string) (*host.Host, error)
	BulkRelease(ctx context.Context, ids []string, reason, actor string) (*host.BulkReleaseResult, error)
	PreviewNext(ctx context.Context, regionID string) (*host.Preview, error)
}

// AuditService defines the audit read operations.
type AuditService interface {
	Query(ctx context.Context, f audit.Filter) (*models.Page[audit.Entry], error)
	Get(ctx context.Context, id string) (*audit.Entry, error)
}

// UtilizationService defines capacity views and forecasts.
type UtilizationService interface {
	Countries(ctx context.Context) ([]utilization.CountryUtilization, error)
	CountryUtilization(ctx context.Context, name string) (*utilization.CountryUtilization, error)
	GlobalSnapshot(ctx context.Context) (*utilization.GlobalSnapshot, error)
	Forecast(ctx context.Context, resourceType utilization.ResourceType, id string) (*utilization.Forecast, error)
}

// Pinger reports database liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Dependencies groups the services behind the API.
type Dependencies struct {
	Regions     RegionService
	Hosts       HostService
	Audit       AuditService
	Utilization UtilizationService
	DB          Pinger
	Metrics     *metrics.Collector // optional
}

// ServerConfig contains configuration for the API server.
type ServerConfig struct {
	Address        string
	CORSOrigins    []string
	RateLimitRPS   float64 // zero disables rate limiting
	RateLimitBurst int
	Version        string
}

// Server represents the HTTP API server with proper lifecycle management.
type Server struct {
	server  *http.Server
	deps    Dependencies
	config  ServerConfig
	logger  *logger.Logger
	handler http.Handler
}

// NewServer creates a new API server instance.
func NewServer(config ServerConfig, deps Dependencies, log *logger.Logger) *Server {
	s := &Server{
		deps:   deps,
		config: config,
		logger: log.WithComponent("api"),
		server: &http.Server{
			Addr:         config.Address,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
	}
	s.handler = s.registerRoutes(http.NewServeMux())
	s.server.Handler = s.handler
	return s
}

// Handler returns the fully wrapped router.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start starts the HTTP server and begins serving requests.
func (s *Server) Start(ctx context.Context) error {
	s.logger.InfoContext(ctx, "starting API server", "address", s.server.Addr)

	errChan := make(chan error, 1)
	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errChan <- fmt.Errorf("api server failed to start: %w", err)
		}
	}()

	select {
	case err := <-errChan:
		return err
	case <-time.After(100 * time.Millisecond):
		s.logger.InfoContext(ctx, "API server started successfully", "address", s.server.Addr)
		return nil
	}
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	s.logger.InfoContext(ctx, "shutting down API server")

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("api server shutdown failed: %w", err)
	}

	s.logger.InfoContext(ctx, "API server shut down successfully")
	return nil
}

// registerRoutes registers API routes with middleware.
func (s *Server) registerRoutes(mux *http.ServeMux) http.Handler {
	mux.HandleFunc("GET /health", s.healthHandler())
	if s.deps.Metrics != nil {
		mux.Handle("GET /metrics", s.deps.Metrics.Handler())
	}

	// Address space
	mux.HandleFunc("GET /api/v1/countries", s.listCountriesHandler())
	mux.HandleFunc("GET /api/v1/countries/{country}", s.getCountryHandler())
	mux.HandleFunc("GET /api/v1/countries/{country}/next", s.nextRegionHandler())

	// Regions
	mux.HandleFunc("POST /api/v1/regions", s.createRegionHandler())
	mux.HandleFunc("GET /api/v1/regions", s.listRegionsHandler())
	mux.HandleFunc("GET /api/v1/regions/{regionID}", s.getRegionHandler())
	mux.HandleFunc("PATCH /api/v1/regions/{regionID}", s.updateRegionHandler())
	mux.HandleFunc("DELETE /api/v1/regions/{regionID}", s.retireRegionHandler())
	mux.HandleFunc("GET /api/v1/regions/{regionID}/utilization", s.regionUtilizationHandler())
	mux.HandleFunc("GET /api/v1/regions/{regionID}/next", s.nextHostHandler())
	mux.HandleFunc("POST /api/v1/regions/{regionID}/hosts", s.createHostHandler())
	mux.HandleFunc("POST /api/v1/regions/{regionID}/hosts/batch", s.batchCreateHostsHandler())

	// Hosts
	mux.HandleFunc("GET /api/v1/hosts", s.listHostsHandler())
	mux.HandleFunc("POST /api/v1/hosts/release", s.bulkReleaseHandler())
	mux.HandleFunc("GET /api/v1/hosts/{hostID}", s.getHostHandler())
	mux.HandleFunc("PATCH /api/v1/hosts/{hostID}", s.updateHostHandler())
	mux.HandleFunc("DELETE /api/v1/hosts/{hostID}", s.releaseHostHandler())

	// Utilization and audit
	mux.HandleFunc("GET /api/v1/utilization/global", s.globalUtilizationHandler())
	mux.HandleFunc("GET /api/v1/utilization/countries/{country}", s.countryUtilizationHandler())
	mux.HandleFunc("GET /api/v1/forecast/{resourceType}/{resourceID}", s.forecastHandler())
	mux.HandleFunc("GET /api/v1/audit", s.queryAuditHandler())
	mux.HandleFunc("GET /api/v1/audit/{entryID}", s.getAuditEntryHandler())

	middlewares := []Middleware{
		RequestID(s.logger),
		Recovery(),
		Logging(s.deps.Metrics),
		CORS(s.config.CORSOrigins),
	}
	if s.config.RateLimitRPS > 0 {
		middlewares = append(middlewares, RateLimit(s.config.RateLimitRPS, s.config.RateLimitBurst))
	}
	return Chain(middlewares...)(mux)
}
