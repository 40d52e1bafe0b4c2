package host

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/db"
)

// Status values for a host.
const (
	StatusActive   = db.HostStatusActive
	StatusReleased = db.HostStatusReleased
)

// Host is one allocated address 10.X.Y.Z.
type Host struct {
	ID         string     `json:"id" yaml:"id"`
	RegionID   string     `json:"region_id" yaml:"region_id"`
	XOctet     int        `json:"x_octet" yaml:"x_octet"`
	YOctet     int        `json:"y_octet" yaml:"y_octet"`
	ZOctet     int        `json:"z_octet" yaml:"z_octet"`
	IPAddress  string     `json:"ip_address" yaml:"ip_address"`
	Hostname   string     `json:"hostname" yaml:"hostname"`
	DeviceType string     `json:"device_type,omitempty" yaml:"device_type,omitempty"`
	Owner      string     `json:"owner,omitempty" yaml:"owner,omitempty"`
	Purpose    string     `json:"purpose,omitempty" yaml:"purpose,omitempty"`
	Tags       []string   `json:"tags" yaml:"tags"`
	Status     string     `json:"status" yaml:"status"`
	CreatedAt  time.Time  `json:"created_at" yaml:"created_at"`
	UpdatedAt  time.Time  `json:"updated_at" yaml:"updated_at"`
	ReleasedAt *time.Time `json:"released_at,omitempty" yaml:"released_at,omitempty"`
}

// CreateRequest carries the caller-supplied fields of a new host.
type CreateRequest struct {
	Hostname   string   `json:"hostname"`
	DeviceType string   `json:"device_type,omitempty"`
	Owner      string   `json:"owner,omitempty"`
	Purpose    string   `json:"purpose,omitempty"`
	Tags       []string `json:"tags,omitempty"`
}

// BatchRequest allocates Count hosts named {prefix}-NN.
type BatchRequest struct {
	Count          int      `json:"count"`
	HostnamePrefix string   `json:"hostname_prefix"`
	DeviceType     string   `json:"device_type,omitempty"`
	Owner          string   `json:"owner,omitempty"`
	Purpose        string   `json:"purpose,omitempty"`
	Tags           []string `json:"tags,omitempty"`
}

// UpdateRequest changes the non-nil fields only.
type UpdateRequest struct {
	Hostname   *string   `json:"hostname,omitempty"`
	DeviceType *string   `json:"device_type,omitempty"`
	Owner      *string   `json:"owner,omitempty"`
	Purpose    *string   `json:"purpose,omitempty"`
	Tags       *[]string `json:"tags,omitempty"`
}

func (r UpdateRequest) empty() bool {
	return r.Hostname == nil && r.DeviceType == nil && r.Owner == nil && r.Purpose == nil && r.Tags == nil
}

// ReleaseOutcome is the per-host result of a bulk release.
type ReleaseOutcome struct {
	HostID    string `json:"host_id" yaml:"host_id"`
	Success   bool   `json:"success" yaml:"success"`
	ErrorCode string `json:"error_code,omitempty" yaml:"error_code,omitempty"`
	Error     string `json:"error,omitempty" yaml:"error,omitempty"`
}

// BulkReleaseResult summarizes a bulk release. Successful releases are
// never rolled back by later failures.
type BulkReleaseResult struct {
	Requested int              `json:"requested" yaml:"requested"`
	Succeeded int              `json:"succeeded" yaml:"succeeded"`
	Failed    int              `json:"failed" yaml:"failed"`
	Results   []ReleaseOutcome `json:"results" yaml:"results"`
}

// Preview is the address the next create would receive.
type Preview struct {
	RegionID  string `json:"region_id" yaml:"region_id"`
	ZOctet    int    `json:"z_octet" yaml:"z_octet"`
	IPAddress string `json:"ip_address" yaml:"ip_address"`
	Available int    `json:"available" yaml:"available"`
}

// Filter narrows List. Zero values match everything.
type Filter struct {
	RegionID   string
	Status     string
	Owner      string
	DeviceType string
	Page       int
	PageSize   int
}

// FromRow converts a stored host.
func FromRow(row db.Host) Host {
	h := Host{
		ID:         row.ID,
		RegionID:   row.RegionID,
		XOctet:     int(row.XOctet),
		YOctet:     int(row.YOctet),
		ZOctet:     int(row.ZOctet),
		IPAddress:  row.IpAddress,
		Hostname:   row.Hostname,
		DeviceType: row.DeviceType,
		Owner:      row.Owner,
		Purpose:    row.Purpose,
		Tags:       decodeTags(row.Tags),
		Status:     row.Status,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
	if row.ReleasedAt.Valid {
		t := row.ReleasedAt.Time.UTC()
		h.ReleasedAt = &t
	}
	return h
}

func encodeTags(tags []string) string {
	if len(tags) == 0 {
		return "[]"
	}
	raw, err := json.Marshal(tags)
	if err != nil {
		return "[]"
	}
	return string(raw)
}

func decodeTags(raw string) []string {
	var tags []string
	if raw == "" || json.Unmarshal([]byte(raw), &tags) != nil || tags == nil {
		return []string{}
	}
	return tags
}

// tagString is the audit representation of a tag list.
func tagString(tags []string) string {
	return strings.Join(tags, ",")
}
