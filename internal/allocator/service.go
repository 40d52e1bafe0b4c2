// Package allocator wires the allocation services, the capacity monitor and
// the HTTP API into one runnable unit.
package allocator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/addrspace"
	"github.com/chiquitav2/ipam/internal/allocator/api"
	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/config"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	"github.com/chiquitav2/ipam/internal/allocator/events"
	"github.com/chiquitav2/ipam/internal/allocator/host"
	"github.com/chiquitav2/ipam/internal/allocator/locks"
	"github.com/chiquitav2/ipam/internal/allocator/metrics"
	"github.com/chiquitav2/ipam/internal/allocator/region"
	"github.com/chiquitav2/ipam/internal/allocator/scheduler"
	"github.com/chiquitav2/ipam/internal/allocator/utilization"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"golang.org/x/sync/errgroup"
)

// Version is reported by /health. Overridden at build time.
var Version = "dev"

const defaultShutdownTimeout = 30 * time.Second

// Service owns every allocator component and their lifecycle.
type Service struct {
	config *config.Config
	logger *logger.Logger

	store   db.Store
	space   *addrspace.Space
	bus     *events.Bus
	metrics *metrics.Collector

	Regions *region.Service
	Hosts   *host.Service
	Audit   *audit.Trail
	Tracker *utilization.Tracker

	monitor   *scheduler.CapacityMonitor
	apiServer *api.Server
}

// NewService opens the store and builds all components in dependency order.
func NewService(cfg *config.Config, log *logger.Logger) (*Service, error) {
	store, err := db.NewStore(&db.Config{
		Path:            cfg.DB.Path,
		MaxOpenConns:    cfg.DB.MaxOpenConns,
		MaxIdleConns:    cfg.DB.MaxIdleConns,
		ConnMaxLifetime: cfg.DB.ConnMaxLifetime,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database store: %w", err)
	}

	s, err := NewServiceWithStore(cfg, store, log)
	if err != nil {
		_ = store.Close()
		return nil, err
	}
	return s, nil
}

// NewServiceWithStore builds the components on an already open store. The
// service takes ownership of store and closes it in Close.
func NewServiceWithStore(cfg *config.Config, store db.Store, log *logger.Logger) (*Service, error) {
	log.Info("initializing service components")

	space, err := addrspace.FromConfig(cfg.AddressSpace)
	if err != nil {
		return nil, fmt.Errorf("failed to build address space: %w", err)
	}
	log.Debug("address space ready",
		"countries", len(space.Countries()),
		"region_slots", space.TotalRegionSlots())

	s := &Service{
		config: cfg,
		logger: log,
		store:  store,
		space:  space,
		bus:    events.NewBus(log.Unwrap()),
	}

	if cfg.Metrics.Enabled {
		s.metrics = metrics.NewCollector()
		s.metrics.Subscribe(s.bus)
	}

	// Region and host writes share one lock table so a retire holding a
	// country lock and a region lock excludes concurrent host writes.
	scopes := locks.New()
	s.Hosts = host.NewService(store, scopes, s.bus, log, host.ConfigFrom(cfg.Allocation))
	s.Regions = region.NewService(store, space, scopes, s.Hosts, s.bus, log, region.ConfigFrom(cfg.Allocation))
	s.Audit = audit.NewTrail(store, log)
	s.Tracker = utilization.NewTracker(store, space, cfg.Forecast.Window, log)

	s.monitor = scheduler.NewCapacityMonitor(cfg.Forecast.Interval, s.Tracker, s.metrics, s.bus, log)

	s.apiServer = api.NewServer(api.ServerConfig{
		Address:        cfg.API.ListenAddr,
		CORSOrigins:    cfg.API.CORSOrigins,
		RateLimitRPS:   cfg.API.RateLimitRPS,
		RateLimitBurst: cfg.API.RateLimitBurst,
		Version:        Version,
	}, api.Dependencies{
		Regions:     s.Regions,
		Hosts:       s.Hosts,
		Audit:       s.Audit,
		Utilization: s.Tracker,
		DB:          store,
		Metrics:     s.metrics,
	}, log)

	log.Info("all service components initialized successfully",
		"reclaim_retired_regions", cfg.Allocation.ReclaimRetiredRegions,
		"reclaim_released_hosts", cfg.Allocation.ReclaimReleasedHosts)
	return s, nil
}

// Space returns the configured address space.
func (s *Service) Space() *addrspace.Space {
	return s.space
}

// Metrics returns the collector, or nil when metrics are disabled.
func (s *Service) Metrics() *metrics.Collector {
	return s.metrics
}

// Bus returns the event bus.
func (s *Service) Bus() *events.Bus {
	return s.bus
}

// Monitor returns the capacity monitor.
func (s *Service) Monitor() *scheduler.CapacityMonitor {
	return s.monitor
}

// APIServer returns the HTTP server.
func (s *Service) APIServer() *api.Server {
	return s.apiServer
}

// Run starts the capacity monitor and the API server and blocks until ctx
// is canceled or one of them fails. The API server is then shut down
// within the configured shutdown timeout.
func (s *Service) Run(ctx context.Context) error {
	s.logger.Info("starting allocator service", "listen_addr", s.config.API.ListenAddr)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return s.monitor.Start(gctx)
	})

	g.Go(func() error {
		if err := s.apiServer.Start(gctx); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
		<-gctx.Done()

		timeout := s.config.Service.ShutdownTimeout
		if timeout <= 0 {
			timeout = defaultShutdownTimeout
		}
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(gctx), timeout)
		defer cancel()
		return s.apiServer.Stop(shutdownCtx)
	})

	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("allocator service stopped with error", "error", err)
		return err
	}
	s.logger.Info("allocator service stopped")
	return nil
}

// Close releases the event bus and the store.
func (s *Service) Close() error {
	var errs []error
	if s.bus != nil {
		errs = append(errs, s.bus.Close())
	}
	if s.store != nil {
		s.logger.Info("closing database store")
		errs = append(errs, s.store.Close())
	}
	return errors.Join(errs...)
}
