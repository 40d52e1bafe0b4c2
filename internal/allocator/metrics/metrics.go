// Package metrics exposes allocator counters and capacity gauges to
// Prometheus.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/events"
	"github.com/gookit/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ipam"

// Collector owns a private registry so several instances (tests, embedded
// servers) never clash on registration.
type Collector struct {
	registry *prometheus.Registry

	Allocations     *prometheus.CounterVec
	OperationErrors *prometheus.CounterVec
	CapacityAlerts  *prometheus.CounterVec

	CountryRegions     *prometheus.GaugeVec
	CountryUtilization *prometheus.GaugeVec
	GlobalUtilization  prometheus.Gauge
	HostsAllocated     prometheus.Gauge
	DaysToExhaustion   *prometheus.GaugeVec

	HTTPRequests *prometheus.CounterVec
	HTTPDuration *prometheus.HistogramVec
}

// NewCollector registers every allocator metric on a fresh registry.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	factory := promauto.With(reg)

	return &Collector{
		registry: reg,

		Allocations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "allocations_total",
				Help:      "Committed allocation state changes",
			},
			[]string{"resource", "action"},
		),
		OperationErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "operation_errors_total",
				Help:      "Failed allocator operations by error code",
			},
			[]string{"operation", "code"},
		),
		CapacityAlerts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "capacity_alerts_total",
				Help:      "Capacity alerts raised by the forecast monitor",
			},
			[]string{"resource_type", "severity"},
		),
		CountryRegions: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "country_regions_allocated",
				Help:      "Active regions per country",
			},
			[]string{"country", "continent"},
		),
		CountryUtilization: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "country_utilization_percent",
				Help:      "Share of a country's /24 blocks in use",
			},
			[]string{"country", "continent"},
		),
		GlobalUtilization: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "global_utilization_percent",
				Help:      "Share of all allocatable /24 blocks in use",
			},
		),
		HostsAllocated: factory.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "hosts_allocated",
				Help:      "Active hosts across all regions",
			},
		),
		DaysToExhaustion: factory.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "forecast_days_to_exhaustion",
				Help:      "Forecast days until a resource runs out; absent when not growing",
			},
			[]string{"resource_type", "resource_id"},
		),
		HTTPRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by route and status",
			},
			[]string{"method", "route", "status"},
		),
		HTTPDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request latency",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// ObserveHTTP records one request.
func (c *Collector) ObserveHTTP(method, route string, status int, d time.Duration) {
	c.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.HTTPDuration.WithLabelValues(method, route).Observe(d.Seconds())
}

// ObserveError counts a failed operation.
func (c *Collector) ObserveError(operation, code string) {
	c.OperationErrors.WithLabelValues(operation, code).Inc()
}

// SetForecast updates the exhaustion gauge. A nil value removes the series.
func (c *Collector) SetForecast(resourceType, resourceID string, days *float64) {
	if days == nil {
		c.DaysToExhaustion.DeleteLabelValues(resourceType, resourceID)
		return
	}
	c.DaysToExhaustion.WithLabelValues(resourceType, resourceID).Set(*days)
}

// Subscribe counts committed changes and alerts published on the bus.
func (c *Collector) Subscribe(bus *events.Bus) {
	bus.SubscribeRegionEvents(event.ListenerFunc(func(e event.Event) error {
		c.Allocations.WithLabelValues("region", actionFor(e.Name())).Inc()
		return nil
	}))
	bus.SubscribeHostEvents(event.ListenerFunc(func(e event.Event) error {
		c.Allocations.WithLabelValues("host", actionFor(e.Name())).Inc()
		return nil
	}))
	bus.SubscribeCapacityAlerts(event.ListenerFunc(func(e event.Event) error {
		if p, ok := events.CapacityPayload(e); ok {
			c.CapacityAlerts.WithLabelValues(p.ResourceType, p.Severity).Inc()
		}
		return nil
	}))
}

func actionFor(name string) string {
	switch name {
	case events.EventRegionCreated, events.EventHostCreated:
		return "create"
	case events.EventRegionUpdated, events.EventHostUpdated:
		return "update"
	case events.EventRegionRetired:
		return "retire"
	case events.EventHostReleased:
		return "release"
	}
	return "unknown"
}
