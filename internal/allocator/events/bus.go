package events

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/gookit/event"
)

const payloadKey = "payload"

// Bus wraps the gookit event manager for allocation events
type Bus struct {
	bus    *event.Manager
	logger *slog.Logger
}

// NewBus creates the allocation event bus.
func NewBus(logger *slog.Logger) *Bus {
	return &Bus{
		bus:    event.NewManager("allocation"),
		logger: logger,
	}
}

func (b *Bus) fire(name string, payload any) error {
	err, _ := b.bus.Fire(name, event.M{payloadKey: payload})
	if err != nil {
		b.logger.Error("failed to publish event",
			slog.String("event", name),
			slog.String("error", err.Error()))
		return fmt.Errorf("failed to publish %s event: %w", name, err)
	}
	return nil
}

func stamp(t time.Time) time.Time {
	if t.IsZero() {
		return time.Now().UTC()
	}
	return t
}

// PublishRegion fires one of the region lifecycle events.
func (b *Bus) PublishRegion(name string, payload RegionEvent) error {
	payload.Timestamp = stamp(payload.Timestamp)

	b.logger.Debug("publishing region event",
		slog.String("event", name),
		slog.String("region_id", payload.RegionID),
		slog.String("cidr", payload.CIDR))

	return b.fire(name, payload)
}

// PublishHost fires one of the host lifecycle events.
func (b *Bus) PublishHost(name string, payload HostEvent) error {
	payload.Timestamp = stamp(payload.Timestamp)

	b.logger.Debug("publishing host event",
		slog.String("event", name),
		slog.String("host_id", payload.HostID),
		slog.String("ip_address", payload.IPAddress))

	return b.fire(name, payload)
}

// PublishCapacityAlert fires a capacity alert.
func (b *Bus) PublishCapacityAlert(payload CapacityAlertEvent) error {
	payload.Timestamp = stamp(payload.Timestamp)

	b.logger.Info("publishing capacity alert",
		slog.String("resource_type", payload.ResourceType),
		slog.String("resource_id", payload.ResourceID),
		slog.String("severity", payload.Severity))

	return b.fire(EventCapacityAlert, payload)
}

// SubscribeRegionEvents registers listener for every region lifecycle event.
func (b *Bus) SubscribeRegionEvents(listener event.Listener) {
	for _, name := range []string{EventRegionCreated, EventRegionUpdated, EventRegionRetired} {
		b.bus.On(name, listener, event.Normal)
	}
	b.logger.Debug("subscribed to region events")
}

// SubscribeHostEvents registers listener for every host lifecycle event.
func (b *Bus) SubscribeHostEvents(listener event.Listener) {
	for _, name := range []string{EventHostCreated, EventHostUpdated, EventHostReleased} {
		b.bus.On(name, listener, event.Normal)
	}
	b.logger.Debug("subscribed to host events")
}

// SubscribeCapacityAlerts registers listener for capacity alerts.
func (b *Bus) SubscribeCapacityAlerts(listener event.Listener) {
	b.bus.On(EventCapacityAlert, listener, event.Normal)
	b.logger.Debug("subscribed to capacity alerts")
}

// Close drops every listener.
func (b *Bus) Close() error {
	b.logger.Debug("closing allocation event bus")
	b.bus.Clear()
	return nil
}

// RegionPayload extracts a RegionEvent from a fired event.
func RegionPayload(e event.Event) (RegionEvent, bool) {
	p, ok := e.Get(payloadKey).(RegionEvent)
	return p, ok
}

// HostPayload extracts a HostEvent from a fired event.
func HostPayload(e event.Event) (HostEvent, bool) {
	p, ok := e.Get(payloadKey).(HostEvent)
	return p, ok
}

// CapacityPayload extracts a CapacityAlertEvent from a fired event.
func CapacityPayload(e event.Event) (CapacityAlertEvent, bool) {
	p, ok := e.Get(payloadKey).(CapacityAlertEvent)
	return p, ok
}
