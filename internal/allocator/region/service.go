// Package region allocates /24 blocks inside a country's X-octet range.
package region

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/chiquitav2/ipam/internal/allocator/addrspace"
	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/config"
	"github.com/chiquitav2/ipam/internal/allocator/db"
	"github.com/chiquitav2/ipam/internal/allocator/events"
	"github.com/chiquitav2/ipam/internal/allocator/locks"
	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/chiquitav2/ipam/internal/shared/models"
	"github.com/google/uuid"
)

// HostReleaser releases a region's hosts during a cascading retirement.
// ReleaseRegionHosts runs inside the retirement transaction; NotifyReleased
// runs after it commits.
type HostReleaser interface {
	ReleaseRegionHosts(ctx context.Context, q *db.Queries, region db.Region, reason, actor string) ([]db.Host, error)
	NotifyReleased(ctx context.Context, hosts []db.Host, country, actor string)
}

// Config controls slot reuse.
type Config struct {
	// ReclaimRetired lets a new region take the (x, y) of a retired one.
	ReclaimRetired bool
}

// ConfigFrom extracts the region settings from the allocation config.
func ConfigFrom(c config.AllocationConfig) Config {
	return Config{ReclaimRetired: c.ReclaimRetiredRegions}
}

// Service is the region allocator.
type Service struct {
	store  db.Store
	space  *addrspace.Space
	scopes *locks.ScopeLocks
	hosts  HostReleaser
	bus    *events.Bus
	logger *logger.Logger
	config Config
	limits config.AllocationLimits
	paging config.PaginationDefaults
	now    func() time.Time
}

// NewService creates a region allocator. bus may be nil.
func NewService(store db.Store, space *addrspace.Space, scopes *locks.ScopeLocks, hosts HostReleaser, bus *events.Bus, log *logger.Logger, cfg Config) *Service {
	defaults := config.NewInternalDefaults()
	return &Service{
		store:  store,
		space:  space,
		scopes: scopes,
		hosts:  hosts,
		bus:    bus,
		logger: log.WithComponent("region.service"),
		config: cfg,
		limits: defaults.AllocationLimits(),
		paging: defaults.PaginationDefaults(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// Create allocates the lowest free (x, y) block in the requested country.
func (s *Service) Create(ctx context.Context, req CreateRequest, actor string) (*Region, error) {
	ctx = logger.WithCountry(ctx, req.Country)
	op := s.logger.StartOp(ctx, "region.create", "region_name", req.RegionName)

	country, err := s.allocatableCountry(req.Country)
	if err != nil {
		op.Fail(err, "invalid region request")
		return nil, err
	}
	name := strings.TrimSpace(req.RegionName)
	if err := s.checkName(name); err != nil {
		op.Fail(err, "invalid region request")
		return nil, err
	}
	if err := s.checkText(req.Description, req.Owner); err != nil {
		op.Fail(err, "invalid region request")
		return nil, err
	}

	unlock, err := s.scopes.Lock(ctx, locks.CountryKey(country.Name))
	if err != nil {
		op.Fail(err, "failed to acquire country scope")
		return nil, err
	}
	defer unlock()

	var created db.Region
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		occupied, err := s.occupied(ctx, q, country.Name)
		if err != nil {
			return err
		}
		block, err := s.space.NextRegionBlock(country, occupied)
		if err != nil {
			return err
		}

		created, err = q.CreateRegion(ctx, db.CreateRegionParams{
			ID:          uuid.NewString(),
			Country:     country.Name,
			XOctet:      int64(block.X),
			YOctet:      int64(block.Y),
			Cidr:        block.CIDR(),
			RegionName:  name,
			Description: req.Description,
			Owner:       req.Owner,
			CreatedAt:   s.now(),
		})
		if err != nil {
			return db.MapError("create region", err)
		}

		var changes audit.Changes
		changes.Set("region_name", "", name)
		changes.Set("cidr", "", created.Cidr)
		changes.Set("country", "", country.Name)
		changes.Set("description", "", req.Description)
		changes.Set("owner", "", req.Owner)

		_, err = audit.Record(ctx, q, audit.Entry{
			ActionType:   audit.ActionCreate,
			ResourceType: audit.ResourceRegion,
			ResourceID:   created.ID,
			ResourceName: name,
			ScopeID:      country.Name,
			User:         actor,
			Changes:      changes,
			Metadata:     map[string]string{"continent": country.Continent},
			Timestamp:    created.CreatedAt,
		})
		return err
	})
	if err != nil {
		op.Fail(err, "failed to create region")
		return nil, err
	}

	s.publish(ctx, events.EventRegionCreated, events.RegionEvent{}, created, actor)

	r := FromRow(created)
	op.Complete("region created", "region_id", r.ID, "cidr", r.CIDR)
	return &r, nil
}

// Update changes the descriptive fields of an active region.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, actor string) (*Region, error) {
	ctx = logger.WithRegionID(ctx, id)
	op := s.logger.StartOp(ctx, "region.update")

	if req.RegionName == nil && req.Description == nil && req.Owner == nil {
		err := apperrors.NewValidationError(apperrors.DomainRegion, "body", "at least one field must be provided")
		op.Fail(err, "invalid update request")
		return nil, err
	}
	if req.RegionName != nil {
		if err := s.checkName(strings.TrimSpace(*req.RegionName)); err != nil {
			op.Fail(err, "invalid update request")
			return nil, err
		}
	}
	if err := s.checkText(deref(req.Description), deref(req.Owner)); err != nil {
		op.Fail(err, "invalid update request")
		return nil, err
	}

	current, err := s.lookup(ctx, s.store, id)
	if err != nil {
		op.Fail(err, "failed to load region")
		return nil, err
	}

	unlock, err := s.scopes.Lock(ctx, locks.RegionKey(current.ID))
	if err != nil {
		op.Fail(err, "failed to acquire region scope")
		return nil, err
	}
	defer unlock()

	var (
		updated db.Region
		changed bool
	)
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := s.lookup(ctx, q, id)
		if err != nil {
			return err
		}
		if row.Status != StatusActive {
			return invalidState(row, "retired regions cannot be updated")
		}

		params := db.UpdateRegionParams{
			RegionName:  row.RegionName,
			Description: row.Description,
			Owner:       row.Owner,
			UpdatedAt:   s.now(),
			ID:          id,
		}
		if req.RegionName != nil {
			params.RegionName = strings.TrimSpace(*req.RegionName)
		}
		if req.Description != nil {
			params.Description = *req.Description
		}
		if req.Owner != nil {
			params.Owner = *req.Owner
		}

		var changes audit.Changes
		changes.Track("region_name", row.RegionName, params.RegionName)
		changes.Track("description", row.Description, params.Description)
		changes.Track("owner", row.Owner, params.Owner)
		if len(changes) == 0 {
			updated = row
			return nil
		}
		changed = true

		updated, err = q.UpdateRegion(ctx, params)
		if err != nil {
			if db.IsNotFound(err) {
				return invalidState(row, "region was retired concurrently")
			}
			return db.MapError("update region", err)
		}

		_, err = audit.Record(ctx, q, audit.Entry{
			ActionType:   audit.ActionUpdate,
			ResourceType: audit.ResourceRegion,
			ResourceID:   id,
			ResourceName: params.RegionName,
			ScopeID:      row.Country,
			User:         actor,
			Changes:      changes,
		})
		return err
	})
	if err != nil {
		op.Fail(err, "failed to update region")
		return nil, err
	}

	if changed {
		s.publish(ctx, events.EventRegionUpdated, events.RegionEvent{}, updated, actor)
	}

	r := FromRow(updated)
	op.Complete("region updated", "changed", changed)
	return &r, nil
}

// Retire marks the region retired. With cascade every active host is
// released in the same transaction; without it the hosts stay active and
// are reported as orphaned.
func (s *Service) Retire(ctx context.Context, id, reason string, cascade bool, actor string) (*RetireResult, error) {
	ctx = logger.WithRegionID(ctx, id)
	op := s.logger.StartOp(ctx, "region.retire", "cascade", cascade)

	if strings.TrimSpace(reason) == "" {
		err := apperrors.NewValidationError(apperrors.DomainRegion, "reason", "reason is required")
		op.Fail(err, "invalid retire request")
		return nil, err
	}
	if len(reason) > s.limits.MaxReasonLength {
		err := apperrors.NewValidationError(apperrors.DomainRegion, "reason",
			fmt.Sprintf("reason must be at most %d characters", s.limits.MaxReasonLength))
		op.Fail(err, "invalid retire request")
		return nil, err
	}

	current, err := s.lookup(ctx, s.store, id)
	if err != nil {
		op.Fail(err, "failed to load region")
		return nil, err
	}

	// Country first, then region: the same order every caller uses.
	unlock, err := s.scopes.LockAll(ctx, locks.CountryKey(current.Country), locks.RegionKey(current.ID))
	if err != nil {
		op.Fail(err, "failed to acquire allocation scopes")
		return nil, err
	}
	defer unlock()

	var (
		retired  db.Region
		released []db.Host
		orphaned int64
	)
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := s.lookup(ctx, q, id)
		if err != nil {
			return err
		}
		if row.Status != StatusActive {
			return invalidState(row, "region is already retired")
		}

		if cascade {
			if released, err = s.hosts.ReleaseRegionHosts(ctx, q, row, reason, actor); err != nil {
				return err
			}
		} else {
			if orphaned, err = q.CountActiveHostsInRegion(ctx, id); err != nil {
				return apperrors.NewPersistenceError("count region hosts", err)
			}
		}

		now := s.now()
		retired, err = q.RetireRegion(ctx, db.RetireRegionParams{RetiredAt: now, ID: id})
		if err != nil {
			if db.IsNotFound(err) {
				return invalidState(row, "region is already retired")
			}
			return db.MapError("retire region", err)
		}

		var changes audit.Changes
		changes.Track("status", row.Status, StatusRetired)
		_, err = audit.Record(ctx, q, audit.Entry{
			ActionType:   audit.ActionRetire,
			ResourceType: audit.ResourceRegion,
			ResourceID:   id,
			ResourceName: row.RegionName,
			ScopeID:      row.Country,
			User:         actor,
			Reason:       reason,
			Changes:      changes,
			Metadata: map[string]string{
				"cascade":        strconv.FormatBool(cascade),
				"hosts_released": strconv.Itoa(len(released)),
				"orphaned_hosts": strconv.FormatInt(orphaned, 10),
				"cidr":           row.Cidr,
			},
			Timestamp: now,
		})
		return err
	})
	if err != nil {
		op.Fail(err, "failed to retire region")
		return nil, err
	}

	if len(released) > 0 {
		s.hosts.NotifyReleased(ctx, released, retired.Country, actor)
	}
	s.publish(ctx, events.EventRegionRetired, events.RegionEvent{
		Cascade:       cascade,
		HostsReleased: len(released),
		OrphanedHosts: int(orphaned),
	}, retired, actor)

	result := &RetireResult{
		Region:        FromRow(retired),
		Cascade:       cascade,
		HostsReleased: len(released),
		OrphanedHosts: int(orphaned),
	}
	op.Complete("region retired", "hosts_released", result.HostsReleased, "orphaned_hosts", result.OrphanedHosts)
	return result, nil
}

// Utilization reports host usage of a region out of 254 usable addresses.
func (s *Service) Utilization(ctx context.Context, id string) (*Utilization, error) {
	row, err := s.lookup(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	allocated, err := s.store.CountActiveHostsInRegion(ctx, id)
	if err != nil {
		return nil, apperrors.NewPersistenceError("count region hosts", err)
	}
	return Compute(row, allocated), nil
}

// Compute derives utilization from a region and its active host count.
func Compute(row db.Region, allocated int64) *Utilization {
	total := int64(addrspace.HostsPerRegion())
	available := total - allocated
	if available < 0 {
		available = 0
	}
	return &Utilization{
		RegionID:   row.ID,
		CIDR:       row.Cidr,
		Allocated:  int(allocated),
		Total:      int(total),
		Available:  int(available),
		Percentage: models.Percentage(allocated, total),
	}
}

// Get returns a region by id.
func (s *Service) Get(ctx context.Context, id string) (*Region, error) {
	row, err := s.lookup(ctx, s.store, id)
	if err != nil {
		return nil, err
	}
	r := FromRow(row)
	return &r, nil
}

// List returns regions matching f, oldest first.
func (s *Service) List(ctx context.Context, f Filter) (*models.Page[Region], error) {
	switch f.Status {
	case "", StatusActive, StatusRetired:
	default:
		return nil, apperrors.NewValidationError(apperrors.DomainRegion, "status", "status must be active or retired").
			WithMetadata("status", f.Status)
	}

	page, size := s.paging.NormalizePage(f.Page, f.PageSize)
	total, err := s.store.CountRegions(ctx, db.CountRegionsParams{Country: f.Country, Status: f.Status, Owner: f.Owner})
	if err != nil {
		return nil, apperrors.NewPersistenceError("count regions", err)
	}

	pagination := models.NewPagination(page, size, total)
	rows, err := s.store.ListRegions(ctx, db.ListRegionsParams{
		Country: f.Country,
		Status:  f.Status,
		Owner:   f.Owner,
		Limit:   int64(size),
		Offset:  pagination.Offset(),
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list regions", err)
	}

	regions := make([]Region, 0, len(rows))
	for _, row := range rows {
		regions = append(regions, FromRow(row))
	}
	return &models.Page[Region]{Results: regions, Pagination: pagination}, nil
}

// PreviewNext reports the block Create would hand out right now without
// reserving it.
func (s *Service) PreviewNext(ctx context.Context, countryName string) (*NextBlock, error) {
	country, err := s.allocatableCountry(countryName)
	if err != nil {
		return nil, err
	}
	occupied, err := s.occupied(ctx, s.store, country.Name)
	if err != nil {
		return nil, err
	}
	block, err := s.space.NextRegionBlock(country, occupied)
	if err != nil {
		return nil, err
	}
	return &NextBlock{Country: country.Name, XOctet: block.X, YOctet: block.Y, CIDR: block.CIDR()}, nil
}

func (s *Service) allocatableCountry(name string) (addrspace.Country, error) {
	country, err := s.space.Country(strings.TrimSpace(name))
	if err != nil {
		return addrspace.Country{}, err
	}
	if country.IsReserved {
		return addrspace.Country{}, apperrors.NewValidationError(apperrors.DomainRegion, "country", "country is reserved and cannot hold regions").
			WithMetadata("country", country.Name)
	}
	return country, nil
}

func (s *Service) checkName(name string) error {
	if name == "" {
		return apperrors.NewValidationError(apperrors.DomainRegion, "region_name", "region_name is required")
	}
	if len(name) > s.limits.MaxNameLength {
		return apperrors.NewValidationError(apperrors.DomainRegion, "region_name",
			fmt.Sprintf("region_name must be at most %d characters", s.limits.MaxNameLength))
	}
	return nil
}

func (s *Service) checkText(description, owner string) error {
	if len(description) > s.limits.MaxDescription {
		return apperrors.NewValidationError(apperrors.DomainRegion, "description",
			fmt.Sprintf("description must be at most %d characters", s.limits.MaxDescription))
	}
	if len(owner) > s.limits.MaxNameLength {
		return apperrors.NewValidationError(apperrors.DomainRegion, "owner",
			fmt.Sprintf("owner must be at most %d characters", s.limits.MaxNameLength))
	}
	return nil
}

// occupied returns the blocks a new region may not take under the
// configured reuse policy. Retired blocks with orphaned hosts stay taken
// until those hosts are released.
func (s *Service) occupied(ctx context.Context, q db.Querier, country string) (map[addrspace.Block]bool, error) {
	rows, err := q.ListRegionBlocks(ctx, db.ListRegionBlocksParams{Country: country, ActiveOnly: s.config.ReclaimRetired})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list region blocks", err)
	}
	occupied := make(map[addrspace.Block]bool, len(rows))
	for _, r := range rows {
		occupied[addrspace.Block{X: int(r.XOctet), Y: int(r.YOctet)}] = true
	}
	return occupied, nil
}

func (s *Service) lookup(ctx context.Context, q db.Querier, id string) (db.Region, error) {
	row, err := q.GetRegion(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Region{}, apperrors.DomainErrRegionNotFound.WithMetadata("region_id", id)
		}
		return db.Region{}, apperrors.NewPersistenceError("get region", err)
	}
	return row, nil
}

func (s *Service) publish(ctx context.Context, name string, e events.RegionEvent, row db.Region, actor string) {
	if s.bus == nil {
		return
	}
	e.RegionID = row.ID
	e.Country = row.Country
	e.CIDR = row.Cidr
	e.RegionName = row.RegionName
	e.Actor = actor
	if err := s.bus.PublishRegion(name, e); err != nil {
		s.logger.WarnCtx(ctx, "failed to publish region event", err,
			"event", name, "region_id", row.ID)
	}
}

func invalidState(row db.Region, msg string) error {
	return apperrors.NewRegionError(apperrors.ErrCodeInvalidState, msg, false, nil).
		WithMetadata("region_id", row.ID).
		WithMetadata("status", row.Status)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
