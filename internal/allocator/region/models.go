package region

import (
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/db"
)

// Status values for a region.
const (
	StatusActive  = db.RegionStatusActive
	StatusRetired = db.RegionStatusRetired
)

// Region is one /24 block 10.X.Y.0/24 owned by a country.
type Region struct {
	ID             string     `json:"id" yaml:"id"`
	Country        string     `json:"country" yaml:"country"`
	XOctet         int        `json:"x_octet" yaml:"x_octet"`
	YOctet         int        `json:"y_octet" yaml:"y_octet"`
	CIDR           string     `json:"cidr" yaml:"cidr"`
	RegionName     string     `json:"region_name" yaml:"region_name"`
	Description    string     `json:"description,omitempty" yaml:"description,omitempty"`
	Owner          string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Status         string     `json:"status" yaml:"status"`
	AllocatedHosts int        `json:"allocated_hosts" yaml:"allocated_hosts"`
	CreatedAt      time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at" yaml:"updated_at"`
	RetiredAt      *time.Time `json:"retired_at,omitempty" yaml:"retired_at,omitempty"`
}

// CreateRequest asks for the next free block in Country.
type CreateRequest struct {
	Country     string `json:"country"`
	RegionName  string `json:"region_name"`
	Description string `json:"description,omitempty"`
	Owner       string `json:"owner,omitempty"`
}

// UpdateRequest changes the non-nil fields only.
type UpdateRequest struct {
	RegionName  *string `json:"region_name,omitempty"`
	Description *string `json:"description,omitempty"`
	Owner       *string `json:"owner,omitempty"`
}

// RetireResult reports what a retirement did to the region's hosts.
type RetireResult struct {
	Region        Region `json:"region" yaml:"region"`
	Cascade       bool   `json:"cascade" yaml:"cascade"`
	HostsReleased int    `json:"hosts_released" yaml:"hosts_released"`
	OrphanedHosts int    `json:"orphaned_hosts" yaml:"orphaned_hosts"`
}

// Utilization is host usage within one region.
type Utilization struct {
	RegionID   string  `json:"region_id" yaml:"region_id"`
	CIDR       string  `json:"cidr" yaml:"cidr"`
	Allocated  int     `json:"allocated" yaml:"allocated"`
	Total      int     `json:"total" yaml:"total"`
	Available  int     `json:"available" yaml:"available"`
	Percentage float64 `json:"percentage" yaml:"percentage"`
}

// NextBlock is the block Create would hand out for a country.
type NextBlock struct {
	Country string `json:"country" yaml:"country"`
	XOctet  int    `json:"x_octet" yaml:"x_octet"`
	YOctet  int    `json:"y_octet" yaml:"y_octet"`
	CIDR    string `json:"cidr" yaml:"cidr"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	Country  string
	Status   string
	Owner    string
	Page     int
	PageSize int
}

// FromRow converts a stored region.
func FromRow(row db.Region) Region {
	r := Region{
		ID:             row.ID,
		Country:        row.Country,
		XOctet:         int(row.XOctet),
		YOctet:         int(row.YOctet),
		CIDR:           row.Cidr,
		RegionName:     row.RegionName,
		Description:    row.Description,
		Owner:          row.Owner,
		Status:         row.Status,
		AllocatedHosts: int(row.AllocatedHosts),
		CreatedAt:      row.CreatedAt.UTC(),
		UpdatedAt:      row.UpdatedAt.UTC(),
	}
	if row.RetiredAt.Valid {
		t := row.RetiredAt.Time.UTC()
		r.RetiredAt = &t
	}
	return r
}
