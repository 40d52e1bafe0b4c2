package db

import (
	"context"
	"database/sql"
	"time"
)

const hostColumns = `id, region_id, x_octet, y_octet, z_octet, ip_address, hostname, device_type, owner,
	purpose, tags, status, created_at, updated_at, released_at`

func scanHost(row interface{ Scan(dest ...any) error }) (Host, error) {
	var i Host
	err := row.Scan(
		&i.ID,
		&i.RegionID,
		&i.XOctet,
		&i.YOctet,
		&i.ZOctet,
		&i.IpAddress,
		&i.Hostname,
		&i.DeviceType,
		&i.Owner,
		&i.Purpose,
		&i.Tags,
		&i.Status,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.ReleasedAt,
	)
	return i, err
}

func collectHosts(rows *sql.Rows) ([]Host, error) {
	defer rows.Close()

	var items []Host
	for rows.Next() {
		i, err := scanHost(rows)
		if err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const createHost = `-- name: CreateHost :one
INSERT INTO hosts (
    id, region_id, x_octet, y_octet, z_octet, ip_address, hostname, device_type, owner,
    purpose, tags, status, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 'active', ?, ?)`

type CreateHostParams struct {
	ID         string    `json:"id"`
	RegionID   string    `json:"region_id"`
	XOctet     int64     `json:"x_octet"`
	YOctet     int64     `json:"y_octet"`
	ZOctet     int64     `json:"z_octet"`
	IpAddress  string    `json:"ip_address"`
	Hostname   string    `json:"hostname"`
	DeviceType string    `json:"device_type"`
	Owner      string    `json:"owner"`
	Purpose    string    `json:"purpose"`
	Tags       string    `json:"tags"`
	CreatedAt  time.Time `json:"created_at"`
}

func (q *Queries) CreateHost(ctx context.Context, arg CreateHostParams) (Host, error) {
	_, err := q.db.ExecContext(ctx, createHost,
		arg.ID,
		arg.RegionID,
		arg.XOctet,
		arg.YOctet,
		arg.ZOctet,
		arg.IpAddress,
		arg.Hostname,
		arg.DeviceType,
		arg.Owner,
		arg.Purpose,
		arg.Tags,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	if err != nil {
		return Host{}, err
	}
	return q.GetHost(ctx, arg.ID)
}

const getHost = `-- name: GetHost :one
SELECT ` + hostColumns + ` FROM hosts WHERE id = ?`

func (q *Queries) GetHost(ctx context.Context, id string) (Host, error) {
	return scanHost(q.db.QueryRowContext(ctx, getHost, id))
}

const listHostOctets = `-- name: ListHostOctets :many
SELECT z_octet FROM hosts
WHERE region_id = ? AND (? = 0 OR status = 'active')
ORDER BY z_octet`

type ListHostOctetsParams struct {
	RegionID   string `json:"region_id"`
	ActiveOnly bool   `json:"active_only"`
}

// ListHostOctets returns the z values held in the region. With ActiveOnly
// false released hosts are included.
func (q *Queries) ListHostOctets(ctx context.Context, arg ListHostOctetsParams) ([]int64, error) {
	rows, err := q.db.QueryContext(ctx, listHostOctets, arg.RegionID, arg.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []int64
	for rows.Next() {
		var z int64
		if err := rows.Scan(&z); err != nil {
			return nil, err
		}
		items = append(items, z)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

const listActiveHostsByRegion = `-- name: ListActiveHostsByRegion :many
SELECT ` + hostColumns + ` FROM hosts
WHERE region_id = ? AND status = 'active'
ORDER BY z_octet`

func (q *Queries) ListActiveHostsByRegion(ctx context.Context, regionID string) ([]Host, error) {
	rows, err := q.db.QueryContext(ctx, listActiveHostsByRegion, regionID)
	if err != nil {
		return nil, err
	}
	return collectHosts(rows)
}

const updateHost = `-- name: UpdateHost :one
UPDATE hosts
SET hostname = ?, device_type = ?, owner = ?, purpose = ?, tags = ?, updated_at = ?
WHERE id = ? AND status = 'active'`

type UpdateHostParams struct {
	Hostname   string    `json:"hostname"`
	DeviceType string    `json:"device_type"`
	Owner      string    `json:"owner"`
	Purpose    string    `json:"purpose"`
	Tags       string    `json:"tags"`
	UpdatedAt  time.Time `json:"updated_at"`
	ID         string    `json:"id"`
}

func (q *Queries) UpdateHost(ctx context.Context, arg UpdateHostParams) (Host, error) {
	res, err := q.db.ExecContext(ctx, updateHost,
		arg.Hostname,
		arg.DeviceType,
		arg.Owner,
		arg.Purpose,
		arg.Tags,
		arg.UpdatedAt,
		arg.ID,
	)
	if err := requireRow(res, err); err != nil {
		return Host{}, err
	}
	return q.GetHost(ctx, arg.ID)
}

const releaseHost = `-- name: ReleaseHost :one
UPDATE hosts
SET status = 'released', released_at = ?, updated_at = ?
WHERE id = ? AND status = 'active'`

type ReleaseHostParams struct {
	ReleasedAt time.Time `json:"released_at"`
	ID         string    `json:"id"`
}

func (q *Queries) ReleaseHost(ctx context.Context, arg ReleaseHostParams) (Host, error) {
	res, err := q.db.ExecContext(ctx, releaseHost, arg.ReleasedAt, arg.ReleasedAt, arg.ID)
	if err := requireRow(res, err); err != nil {
		return Host{}, err
	}
	return q.GetHost(ctx, arg.ID)
}

const listHosts = `-- name: ListHosts :many
SELECT ` + hostColumns + ` FROM hosts
WHERE (? = '' OR region_id = ?)
  AND (? = '' OR status = ?)
  AND (? = '' OR owner = ?)
  AND (? = '' OR device_type = ?)
ORDER BY created_at, region_id, z_octet
LIMIT ? OFFSET ?`

type ListHostsParams struct {
	RegionID   string `json:"region_id"`
	Status     string `json:"status"`
	Owner      string `json:"owner"`
	DeviceType string `json:"device_type"`
	Limit      int64  `json:"limit"`
	Offset     int64  `json:"offset"`
}

func (q *Queries) ListHosts(ctx context.Context, arg ListHostsParams) ([]Host, error) {
	rows, err := q.db.QueryContext(ctx, listHosts,
		arg.RegionID, arg.RegionID,
		arg.Status, arg.Status,
		arg.Owner, arg.Owner,
		arg.DeviceType, arg.DeviceType,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	return collectHosts(rows)
}

const countHosts = `-- name: CountHosts :one
SELECT COUNT(*) FROM hosts
WHERE (? = '' OR region_id = ?)
  AND (? = '' OR status = ?)
  AND (? = '' OR owner = ?)
  AND (? = '' OR device_type = ?)`

type CountHostsParams struct {
	RegionID   string `json:"region_id"`
	Status     string `json:"status"`
	Owner      string `json:"owner"`
	DeviceType string `json:"device_type"`
}

func (q *Queries) CountHosts(ctx context.Context, arg CountHostsParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countHosts,
		arg.RegionID, arg.RegionID,
		arg.Status, arg.Status,
		arg.Owner, arg.Owner,
		arg.DeviceType, arg.DeviceType,
	).Scan(&count)
	return count, err
}

const countActiveHostsInRegion = `-- name: CountActiveHostsInRegion :one
SELECT COUNT(*) FROM hosts WHERE region_id = ? AND status = 'active'`

func (q *Queries) CountActiveHostsInRegion(ctx context.Context, regionID string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveHostsInRegion, regionID).Scan(&count)
	return count, err
}

const listActiveHostnames = `-- name: ListActiveHostnames :many
SELECT hostname FROM hosts WHERE region_id = ? AND status = 'active'`

func (q *Queries) ListActiveHostnames(ctx context.Context, regionID string) ([]string, error) {
	rows, err := q.db.QueryContext(ctx, listActiveHostnames, regionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, err
		}
		items = append(items, name)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}
