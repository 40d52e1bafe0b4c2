package db

import (
	"context"
	"time"
)

const regionColumns = `id, country, x_octet, y_octet, cidr, region_name, description, owner, status,
	allocated_hosts, created_at, updated_at, retired_at`

func scanRegion(row interface{ Scan(dest ...any) error }) (Region, error) {
	var i Region
	err := row.Scan(
		&i.ID,
		&i.Country,
		&i.XOctet,
		&i.YOctet,
		&i.Cidr,
		&i.RegionName,
		&i.Description,
		&i.Owner,
		&i.Status,
		&i.AllocatedHosts,
		&i.CreatedAt,
		&i.UpdatedAt,
		&i.RetiredAt,
	)
	return i, err
}

const createRegion = `-- name: CreateRegion :one
INSERT INTO regions (
    id, country, x_octet, y_octet, cidr, region_name, description, owner, status,
    allocated_hosts, created_at, updated_at
) VALUES (?, ?, ?, ?, ?, ?, ?, ?, 'active', 0, ?, ?)`

type CreateRegionParams struct {
	ID          string    `json:"id"`
	Country     string    `json:"country"`
	XOctet      int64     `json:"x_octet"`
	YOctet      int64     `json:"y_octet"`
	Cidr        string    `json:"cidr"`
	RegionName  string    `json:"region_name"`
	Description string    `json:"description"`
	Owner       string    `json:"owner"`
	CreatedAt   time.Time `json:"created_at"`
}

func (q *Queries) CreateRegion(ctx context.Context, arg CreateRegionParams) (Region, error) {
	_, err := q.db.ExecContext(ctx, createRegion,
		arg.ID,
		arg.Country,
		arg.XOctet,
		arg.YOctet,
		arg.Cidr,
		arg.RegionName,
		arg.Description,
		arg.Owner,
		arg.CreatedAt,
		arg.CreatedAt,
	)
	if err != nil {
		return Region{}, err
	}
	return q.GetRegion(ctx, arg.ID)
}

const getRegion = `-- name: GetRegion :one
SELECT ` + regionColumns + ` FROM regions WHERE id = ?`

func (q *Queries) GetRegion(ctx context.Context, id string) (Region, error) {
	return scanRegion(q.db.QueryRowContext(ctx, getRegion, id))
}

const listRegionBlocks = `-- name: ListRegionBlocks :many
SELECT x_octet, y_octet FROM regions
WHERE country = ? AND (? = 0 OR status = 'active' OR allocated_hosts > 0)
ORDER BY x_octet, y_octet`

type ListRegionBlocksParams struct {
	Country    string `json:"country"`
	ActiveOnly bool   `json:"active_only"`
}

type ListRegionBlocksRow struct {
	XOctet int64 `json:"x_octet"`
	YOctet int64 `json:"y_octet"`
}

// ListRegionBlocks returns the (x, y) pairs held by the country. With
// ActiveOnly false retired regions are included. A retired region that
// still has active hosts holds its pair either way.
func (q *Queries) ListRegionBlocks(ctx context.Context, arg ListRegionBlocksParams) ([]ListRegionBlocksRow, error) {
	rows, err := q.db.QueryContext(ctx, listRegionBlocks, arg.Country, arg.ActiveOnly)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []ListRegionBlocksRow
	for rows.Next() {
		var i ListRegionBlocksRow
		if err := rows.Scan(&i.XOctet, &i.YOctet); err != nil {
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

const updateRegion = `-- name: UpdateRegion :one
UPDATE regions
SET region_name = ?, description = ?, owner = ?, updated_at = ?
WHERE id = ? AND status = 'active'`

type UpdateRegionParams struct {
	RegionName  string    `json:"region_name"`
	Description string    `json:"description"`
	Owner       string    `json:"owner"`
	UpdatedAt   time.Time `json:"updated_at"`
	ID          string    `json:"id"`
}

func (q *Queries) UpdateRegion(ctx context.Context, arg UpdateRegionParams) (Region, error) {
	res, err := q.db.ExecContext(ctx, updateRegion,
		arg.RegionName,
		arg.Description,
		arg.Owner,
		arg.UpdatedAt,
		arg.ID,
	)
	if err := requireRow(res, err); err != nil {
		return Region{}, err
	}
	return q.GetRegion(ctx, arg.ID)
}

const retireRegion = `-- name: RetireRegion :one
UPDATE regions
SET status = 'retired', retired_at = ?, updated_at = ?
WHERE id = ? AND status = 'active'`

type RetireRegionParams struct {
	RetiredAt time.Time `json:"retired_at"`
	ID        string    `json:"id"`
}

func (q *Queries) RetireRegion(ctx context.Context, arg RetireRegionParams) (Region, error) {
	res, err := q.db.ExecContext(ctx, retireRegion, arg.RetiredAt, arg.RetiredAt, arg.ID)
	if err := requireRow(res, err); err != nil {
		return Region{}, err
	}
	return q.GetRegion(ctx, arg.ID)
}

const adjustRegionHosts = `-- name: AdjustRegionHosts :one
UPDATE regions
SET allocated_hosts = allocated_hosts + ?, updated_at = ?
WHERE id = ?
RETURNING allocated_hosts`

type AdjustRegionHostsParams struct {
	Delta     int64     `json:"delta"`
	UpdatedAt time.Time `json:"updated_at"`
	ID        string    `json:"id"`
}

func (q *Queries) AdjustRegionHosts(ctx context.Context, arg AdjustRegionHostsParams) (int64, error) {
	var allocated int64
	err := q.db.QueryRowContext(ctx, adjustRegionHosts, arg.Delta, arg.UpdatedAt, arg.ID).Scan(&allocated)
	return allocated, err
}

const listRegions = `-- name: ListRegions :many
SELECT ` + regionColumns + ` FROM regions
WHERE (? = '' OR country = ? COLLATE NOCASE)
  AND (? = '' OR status = ?)
  AND (? = '' OR owner = ?)
ORDER BY created_at, id
LIMIT ? OFFSET ?`

type ListRegionsParams struct {
	Country string `json:"country"`
	Status  string `json:"status"`
	Owner   string `json:"owner"`
	Limit   int64  `json:"limit"`
	Offset  int64  `json:"offset"`
}

func (q *Queries) ListRegions(ctx context.Context, arg ListRegionsParams) ([]Region, error) {
	rows, err := q.db.QueryContext(ctx, listRegions,
		arg.Country, arg.Country,
		arg.Status, arg.Status,
		arg.Owner, arg.Owner,
		arg.Limit,
		arg.Offset,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []Region
	for rows.Next() {
		i, err := scanRegion(rows)
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

const countRegions = `-- name: CountRegions :one
SELECT COUNT(*) FROM regions
WHERE (? = '' OR country = ? COLLATE NOCASE)
  AND (? = '' OR status = ?)
  AND (? = '' OR owner = ?)`

type CountRegionsParams struct {
	Country string `json:"country"`
	Status  string `json:"status"`
	Owner   string `json:"owner"`
}

func (q *Queries) CountRegions(ctx context.Context, arg CountRegionsParams) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countRegions,
		arg.Country, arg.Country,
		arg.Status, arg.Status,
		arg.Owner, arg.Owner,
	).Scan(&count)
	return count, err
}

const countActiveRegionsByCountry = `-- name: CountActiveRegionsByCountry :many
SELECT country, COUNT(*) AS regions, COALESCE(SUM(allocated_hosts), 0) AS hosts
FROM regions
WHERE status = 'active'
GROUP BY country
ORDER BY country`

type CountActiveRegionsByCountryRow struct {
	Country string `json:"country"`
	Regions int64  `json:"regions"`
	Hosts   int64  `json:"hosts"`
}

func (q *Queries) CountActiveRegionsByCountry(ctx context.Context) ([]CountActiveRegionsByCountryRow, error) {
	rows, err := q.db.QueryContext(ctx, countActiveRegionsByCountry)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []CountActiveRegionsByCountryRow
	for rows.Next() {
		var i CountActiveRegionsByCountryRow
		if err := rows.Scan(&i.Country, &i.Regions, &i.Hosts); err != nil {
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

const countActiveRegionsInCountry = `-- name: CountActiveRegionsInCountry :one
SELECT COUNT(*) FROM regions WHERE country = ? AND status = 'active'`

func (q *Queries) CountActiveRegionsInCountry(ctx context.Context, country string) (int64, error) {
	var count int64
	err := q.db.QueryRowContext(ctx, countActiveRegionsInCountry, country).Scan(&count)
	return count, err
}
