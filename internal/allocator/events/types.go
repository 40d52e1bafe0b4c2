// Package events carries allocation notifications to in-process
// subscribers such as the metrics collector. Events are fired only after
// the state change has committed.
package events

import "time"

// Region lifecycle events
const (
	EventRegionCreated = "region.created"
	EventRegionUpdated = "region.updated"
	EventRegionRetired = "region.retired"
)

// Host lifecycle events
const (
	EventHostCreated  = "host.created"
	EventHostUpdated  = "host.updated"
	EventHostReleased = "host.released"
)

// Capacity events
const (
	EventCapacityAlert = "capacity.alert"
)

// RegionEvent describes a region state change.
type RegionEvent struct {
	RegionID      string    `json:"region_id"`
	Country       string    `json:"country"`
	CIDR          string    `json:"cidr"`
	RegionName    string    `json:"region_name"`
	Actor         string    `json:"actor"`
	Cascade       bool      `json:"cascade,omitempty"`
	HostsReleased int       `json:"hosts_released,omitempty"`
	OrphanedHosts int       `json:"orphaned_hosts,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

// HostEvent describes a host state change.
type HostEvent struct {
	HostID    string    `json:"host_id"`
	RegionID  string    `json:"region_id"`
	Country   string    `json:"country"`
	IPAddress string    `json:"ip_address"`
	Hostname  string    `json:"hostname"`
	Actor     string    `json:"actor"`
	Timestamp time.Time `json:"timestamp"`
}

// CapacityAlertEvent is raised when a forecast crosses into high or critical.
type CapacityAlertEvent struct {
	ResourceType     string    `json:"resource_type"`
	ResourceID       string    `json:"resource_id"`
	Severity         string    `json:"severity"`
	DaysToExhaustion *float64  `json:"days_to_exhaustion,omitempty"`
	Percentage       float64   `json:"percentage"`
	Timestamp        time.Time `json:"timestamp"`
}
