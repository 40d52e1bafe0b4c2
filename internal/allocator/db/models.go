package db

import (
	"database/sql"
	"time"
)

const (
	RegionStatusActive  = "active"
	RegionStatusRetired = "retired"

	HostStatusActive   = "active"
	HostStatusReleased = "released"
)

type Region struct {
	ID             string       `json:"id"`
	Country        string       `json:"country"`
	XOctet         int64        `json:"x_octet"`
	YOctet         int64        `json:"y_octet"`
	Cidr           string       `json:"cidr"`
	RegionName     string       `json:"region_name"`
	Description    string       `json:"description"`
	Owner          string       `json:"owner"`
	Status         string       `json:"status"`
	AllocatedHosts int64        `json:"allocated_hosts"`
	CreatedAt      time.Time    `json:"created_at"`
	UpdatedAt      time.Time    `json:"updated_at"`
	RetiredAt      sql.NullTime `json:"retired_at"`
}

type Host struct {
	ID         string       `json:"id"`
	RegionID   string       `json:"region_id"`
	XOctet     int64        `json:"x_octet"`
	YOctet     int64        `json:"y_octet"`
	ZOctet     int64        `json:"z_octet"`
	IpAddress  string       `json:"ip_address"`
	Hostname   string       `json:"hostname"`
	DeviceType string       `json:"device_type"`
	Owner      string       `json:"owner"`
	Purpose    string       `json:"purpose"`
	Tags       string       `json:"tags"`
	Status     string       `json:"status"`
	CreatedAt  time.Time    `json:"created_at"`
	UpdatedAt  time.Time    `json:"updated_at"`
	ReleasedAt sql.NullTime `json:"released_at"`
}

type AuditEntry struct {
	Seq          int64     `json:"seq"`
	ID           string    `json:"id"`
	ActionType   string    `json:"action_type"`
	ResourceType string    `json:"resource_type"`
	ResourceID   string    `json:"resource_id"`
	ResourceName string    `json:"resource_name"`
	ScopeID      string    `json:"scope_id"`
	UserID       string    `json:"user_id"`
	Reason       string    `json:"reason"`
	Metadata     string    `json:"metadata"`
	Timestamp    time.Time `json:"timestamp"`
}

type AuditChange struct {
	EntryID  string `json:"entry_id"`
	Position int64  `json:"position"`
	Field    string `json:"field"`
	OldValue string `json:"old_value"`
	NewValue string `json:"new_value"`
}
