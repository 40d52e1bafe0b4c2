package db

import (
	"context"
	"database/sql"
)

type Querier interface {
	// Regions
	CreateRegion(ctx context.Context, arg CreateRegionParams) (Region, error)
	GetRegion(ctx context.Context, id string) (Region, error)
	ListRegionBlocks(ctx context.Context, arg ListRegionBlocksParams) ([]ListRegionBlocksRow, error)
	UpdateRegion(ctx context.Context, arg UpdateRegionParams) (Region, error)
	RetireRegion(ctx context.Context, arg RetireRegionParams) (Region, error)
	AdjustRegionHosts(ctx context.Context, arg AdjustRegionHostsParams) (int64, error)
	ListRegions(ctx context.Context, arg ListRegionsParams) ([]Region, error)
	CountRegions(ctx context.Context, arg CountRegionsParams) (int64, error)
	CountActiveRegionsByCountry(ctx context.Context) ([]CountActiveRegionsByCountryRow, error)
	CountActiveRegionsInCountry(ctx context.Context, country string) (int64, error)

	// Hosts
	CreateHost(ctx context.Context, arg CreateHostParams) (Host, error)
	GetHost(ctx context.Context, id string) (Host, error)
	ListHostOctets(ctx context.Context, arg ListHostOctetsParams) ([]int64, error)
	ListActiveHostsByRegion(ctx context.Context, regionID string) ([]Host, error)
	ListActiveHostnames(ctx context.Context, regionID string) ([]string, error)
	UpdateHost(ctx context.Context, arg UpdateHostParams) (Host, error)
	ReleaseHost(ctx context.Context, arg ReleaseHostParams) (Host, error)
	ListHosts(ctx context.Context, arg ListHostsParams) ([]Host, error)
	CountHosts(ctx context.Context, arg CountHostsParams) (int64, error)
	CountActiveHostsInRegion(ctx context.Context, regionID string) (int64, error)

	// Audit
	CreateAuditEntry(ctx context.Context, arg CreateAuditEntryParams) (AuditEntry, error)
	CreateAuditChange(ctx context.Context, arg CreateAuditChangeParams) error
	GetAuditEntry(ctx context.Context, id string) (AuditEntry, error)
	ListAuditChanges(ctx context.Context, entryID string) ([]AuditChange, error)
	ListAuditEntries(ctx context.Context, arg ListAuditEntriesParams) ([]AuditEntry, error)
	CountAuditEntries(ctx context.Context, arg CountAuditEntriesParams) (int64, error)
	ListAllocationEvents(ctx context.Context, arg ListAllocationEventsParams) ([]ListAllocationEventsRow, error)
}

var _ Querier = (*Queries)(nil)

// requireRow turns a conditional UPDATE that matched nothing into
// sql.ErrNoRows so callers can treat it like a missed lookup.
func requireRow(res sql.Result, err error) error {
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
