package events

import (
	"errors"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/gookit/event"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestBus_PublishRegion(t *testing.T) {
	bus := NewBus(testLogger())

	var names []string
	var received *RegionEvent
	bus.SubscribeRegionEvents(event.ListenerFunc(func(e event.Event) error {
		names = append(names, e.Name())
		if p, ok := RegionPayload(e); ok {
			received = &p
		}
		return nil
	}))

	err := bus.PublishRegion(EventRegionCreated, RegionEvent{RegionID: "r1", Country: "India", CIDR: "10.50.0.0/24"})
	require.NoError(t, err)
	require.NotNil(t, received)
	assert.Equal(t, "r1", received.RegionID)
	assert.WithinDuration(t, time.Now(), received.Timestamp, time.Second)

	require.NoError(t, bus.PublishRegion(EventRegionRetired, RegionEvent{RegionID: "r1", Cascade: true, HostsReleased: 3}))
	assert.Equal(t, []string{EventRegionCreated, EventRegionRetired}, names)
	assert.Equal(t, 3, received.HostsReleased)
}

func TestBus_PublishHost(t *testing.T) {
	bus := NewBus(testLogger())

	var received []HostEvent
	bus.SubscribeHostEvents(event.ListenerFunc(func(e event.Event) error {
		if p, ok := HostPayload(e); ok {
			received = append(received, p)
		}
		return nil
	}))

	require.NoError(t, bus.PublishHost(EventHostCreated, HostEvent{HostID: "h1", IPAddress: "10.50.0.1"}))
	require.NoError(t, bus.PublishHost(EventHostReleased, HostEvent{HostID: "h1", IPAddress: "10.50.0.1"}))

	require.Len(t, received, 2)
	assert.Equal(t, "10.50.0.1", received[1].IPAddress)
}

func TestBus_RegionListenerIgnoresHostEvents(t *testing.T) {
	bus := NewBus(testLogger())

	calls := 0
	bus.SubscribeRegionEvents(event.ListenerFunc(func(e event.Event) error {
		calls++
		return nil
	}))

	require.NoError(t, bus.PublishHost(EventHostCreated, HostEvent{HostID: "h1"}))
	assert.Zero(t, calls)
}

func TestBus_CapacityAlert(t *testing.T) {
	bus := NewBus(testLogger())

	var received *CapacityAlertEvent
	bus.SubscribeCapacityAlerts(event.ListenerFunc(func(e event.Event) error {
		if p, ok := CapacityPayload(e); ok {
			received = &p
		}
		return nil
	}))

	days := 12.5
	require.NoError(t, bus.PublishCapacityAlert(CapacityAlertEvent{ResourceType: "country", ResourceID: "India", Severity: "critical", DaysToExhaustion: &days}))
	require.NotNil(t, received)
	assert.Equal(t, "critical", received.Severity)
	assert.Equal(t, 12.5, *received.DaysToExhaustion)
}

func TestBus_ListenerErrorIsReturned(t *testing.T) {
	bus := NewBus(testLogger())

	bus.SubscribeHostEvents(event.ListenerFunc(func(e event.Event) error {
		return errors.New("listener failed")
	}))

	err := bus.PublishHost(EventHostCreated, HostEvent{HostID: "h1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), EventHostCreated)
}

func TestBus_Close(t *testing.T) {
	bus := NewBus(testLogger())

	calls := 0
	bus.SubscribeHostEvents(event.ListenerFunc(func(e event.Event) error {
		calls++
		return nil
	}))
	require.NoError(t, bus.Close())

	require.NoError(t, bus.PublishHost(EventHostCreated, HostEvent{HostID: "h1"}))
	assert.Zero(t, calls)
}
