package api

import "time"

// HealthResponse represents the health check response
type HealthResponse struct {
	Status   string    `json:"status"`
	Version  string    `json:"version,omitempty"`
	Database string    `json:"database"`
	Time     time.Time `json:"time"`
}

// CountryInfo describes one country's X range for listings.
type CountryInfo struct {
	Name        string `json:"name"`
	Continent   string `json:"continent"`
	XStart      int    `json:"x_start"`
	XEnd        int    `json:"x_end"`
	IsReserved  bool   `json:"is_reserved"`
	RegionSlots int    `json:"region_slots"`
}

// CountriesResponse lists the address space.
type CountriesResponse struct {
	Countries  []CountryInfo `json:"countries"`
	Continents []string      `json:"continents"`
	TotalSlots int           `json:"total_slots"`
}
