// Package host allocates individual addresses inside a region /24.
package host

import (
	"context"
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

// Config controls slot reuse.
type Config struct {
	// ReclaimReleased lets a new host take the z of a released one.
	// When false every z ever used in the region stays burned.
	ReclaimReleased bool
}

// ConfigFrom extracts the host settings from the allocation config.
func ConfigFrom(c config.AllocationConfig) Config {
	return Config{ReclaimReleased: c.ReclaimReleasedHosts}
}

// Service is the host allocator.
type Service struct {
	store    db.Store
	scopes   *locks.ScopeLocks
	bus      *events.Bus
	logger   *logger.Logger
	config   Config
	validate *validator
	paging   config.PaginationDefaults
	now      func() time.Time
}

// NewService creates a host allocator. bus may be nil.
func NewService(store db.Store, scopes *locks.ScopeLocks, bus *events.Bus, log *logger.Logger, cfg Config) *Service {
	return &Service{
		store:    store,
		scopes:   scopes,
		bus:      bus,
		logger:   log.WithComponent("host.service"),
		config:   cfg,
		validate: newValidator(),
		paging:   config.NewInternalDefaults().PaginationDefaults(),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// Create allocates the lowest free z in the region.
func (s *Service) Create(ctx context.Context, regionID string, req CreateRequest, actor string) (*Host, error) {
	op := s.logger.StartOp(ctx, "host.create", "region_id", regionID, "hostname", req.Hostname)

	tags, err := s.checkCreate(req.Hostname, req.DeviceType, req.Owner, req.Purpose, req.Tags)
	if err != nil {
		op.Fail(err, "invalid host request")
		return nil, err
	}

	unlock, err := s.scopes.Lock(ctx, locks.RegionKey(regionID))
	if err != nil {
		op.Fail(err, "failed to acquire region scope")
		return nil, err
	}
	defer unlock()

	var (
		created db.Host
		region  db.Region
	)
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		var err error
		region, err = activeRegion(ctx, q, regionID)
		if err != nil {
			return err
		}

		occupied, err := s.occupied(ctx, q, regionID)
		if err != nil {
			return err
		}
		octets, err := addrspace.NextHostOctets(occupied, 1)
		if err != nil {
			return withRegion(err, region)
		}

		created, err = s.insert(ctx, q, region, octets[0], req.Hostname, req.DeviceType, req.Owner, req.Purpose, tags, actor)
		if err != nil {
			return err
		}
		return adjustHosts(ctx, q, regionID, 1, s.now())
	})
	if err != nil {
		op.Fail(err, "failed to create host")
		return nil, err
	}

	s.publish(ctx, events.EventHostCreated, created, region.Country, actor)

	h := FromRow(created)
	op.Complete("host created", "host_id", h.ID, "ip_address", h.IPAddress)
	return &h, nil
}

// BatchCreate allocates req.Count hosts in one transaction. Either every
// host is created or none is.
func (s *Service) BatchCreate(ctx context.Context, regionID string, req BatchRequest, actor string) ([]Host, error) {
	op := s.logger.StartOp(ctx, "host.batch_create", "region_id", regionID, "count", req.Count, "prefix", req.HostnamePrefix)

	if err := s.validate.checkCount(req.Count); err != nil {
		op.Fail(err, "invalid batch request")
		return nil, err
	}
	if err := s.validate.checkPrefix(req.HostnamePrefix); err != nil {
		op.Fail(err, "invalid batch request")
		return nil, err
	}
	if err := s.validate.checkAttributes(req.DeviceType, req.Owner, req.Purpose); err != nil {
		op.Fail(err, "invalid batch request")
		return nil, err
	}
	tags, err := s.validate.normalizeTags(req.Tags)
	if err != nil {
		op.Fail(err, "invalid batch request")
		return nil, err
	}

	unlock, err := s.scopes.Lock(ctx, locks.RegionKey(regionID))
	if err != nil {
		op.Fail(err, "failed to acquire region scope")
		return nil, err
	}
	defer unlock()

	var (
		created []db.Host
		region  db.Region
	)
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		var err error
		region, err = activeRegion(ctx, q, regionID)
		if err != nil {
			return err
		}

		existing, err := q.ListActiveHostnames(ctx, regionID)
		if err != nil {
			return apperrors.NewPersistenceError("list hostnames", err)
		}
		names, err := s.validate.batchNames(req.HostnamePrefix, req.Count, existing)
		if err != nil {
			return err
		}

		occupied, err := s.occupied(ctx, q, regionID)
		if err != nil {
			return err
		}
		octets, err := addrspace.NextHostOctets(occupied, req.Count)
		if err != nil {
			return withRegion(err, region)
		}

		created = make([]db.Host, 0, req.Count)
		for i, z := range octets {
			row, err := s.insert(ctx, q, region, z, names[i], req.DeviceType, req.Owner, req.Purpose, tags, actor)
			if err != nil {
				return err
			}
			created = append(created, row)
		}
		return adjustHosts(ctx, q, regionID, int64(len(created)), s.now())
	})
	if err != nil {
		op.Fail(err, "failed to create host batch")
		return nil, err
	}

	hosts := make([]Host, 0, len(created))
	for _, row := range created {
		s.publish(ctx, events.EventHostCreated, row, region.Country, actor)
		hosts = append(hosts, FromRow(row))
	}

	op.Complete("host batch created", "created", len(hosts))
	return hosts, nil
}

// Update changes the descriptive fields of an active host. Only fields
// that actually change are audited; a no-op writes nothing.
func (s *Service) Update(ctx context.Context, id string, req UpdateRequest, actor string) (*Host, error) {
	op := s.logger.StartOp(ctx, "host.update", "host_id", id)

	if req.empty() {
		err := apperrors.NewValidationError(apperrors.DomainHost, "body", "at least one field must be provided")
		op.Fail(err, "invalid update request")
		return nil, err
	}
	if req.Hostname != nil {
		if err := s.validate.checkHostname(*req.Hostname); err != nil {
			op.Fail(err, "invalid update request")
			return nil, err
		}
	}
	if err := s.validate.checkAttributes(deref(req.DeviceType), deref(req.Owner), deref(req.Purpose)); err != nil {
		op.Fail(err, "invalid update request")
		return nil, err
	}
	var tags []string
	if req.Tags != nil {
		var err error
		if tags, err = s.validate.normalizeTags(*req.Tags); err != nil {
			op.Fail(err, "invalid update request")
			return nil, err
		}
	}

	current, err := s.lookup(ctx, id)
	if err != nil {
		op.Fail(err, "failed to load host")
		return nil, err
	}

	unlock, err := s.scopes.Lock(ctx, locks.RegionKey(current.RegionID))
	if err != nil {
		op.Fail(err, "failed to acquire region scope")
		return nil, err
	}
	defer unlock()

	var (
		updated db.Host
		changed bool
	)
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := q.GetHost(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return apperrors.DomainErrHostNotFound.WithMetadata("host_id", id)
			}
			return apperrors.NewPersistenceError("get host", err)
		}
		if row.Status != StatusActive {
			return invalidState(row, "released hosts cannot be updated")
		}

		params := db.UpdateHostParams{
			Hostname:   pick(req.Hostname, row.Hostname),
			DeviceType: pick(req.DeviceType, row.DeviceType),
			Owner:      pick(req.Owner, row.Owner),
			Purpose:    pick(req.Purpose, row.Purpose),
			Tags:       row.Tags,
			UpdatedAt:  s.now(),
			ID:         id,
		}
		if req.Tags != nil {
			params.Tags = encodeTags(tags)
		}

		var changes audit.Changes
		changes.Track("hostname", row.Hostname, params.Hostname)
		changes.Track("device_type", row.DeviceType, params.DeviceType)
		changes.Track("owner", row.Owner, params.Owner)
		changes.Track("purpose", row.Purpose, params.Purpose)
		changes.Track("tags", tagString(decodeTags(row.Tags)), tagString(decodeTags(params.Tags)))

		if len(changes) == 0 {
			updated = row
			return nil
		}
		changed = true

		updated, err = q.UpdateHost(ctx, params)
		if err != nil {
			if db.IsNotFound(err) {
				return invalidState(row, "host was released concurrently")
			}
			return db.MapError("update host", err)
		}

		_, err = audit.Record(ctx, q, audit.Entry{
			ActionType:   audit.ActionUpdate,
			ResourceType: audit.ResourceHost,
			ResourceID:   id,
			ResourceName: params.Hostname,
			ScopeID:      row.RegionID,
			User:         actor,
			Changes:      changes,
		})
		return err
	})
	if err != nil {
		op.Fail(err, "failed to update host")
		return nil, err
	}

	if changed {
		s.publish(ctx, events.EventHostUpdated, updated, "", actor)
	}

	h := FromRow(updated)
	op.Complete("host updated", "changed", changed)
	return &h, nil
}

// Release returns the host's address to the region pool.
func (s *Service) Release(ctx context.Context, id, reason, actor string) (*Host, error) {
	op := s.logger.StartOp(ctx, "host.release", "host_id", id)

	if err := s.validate.checkReason(reason); err != nil {
		op.Fail(err, "invalid release request")
		return nil, err
	}

	current, err := s.lookup(ctx, id)
	if err != nil {
		op.Fail(err, "failed to load host")
		return nil, err
	}

	unlock, err := s.scopes.Lock(ctx, locks.RegionKey(current.RegionID))
	if err != nil {
		op.Fail(err, "failed to acquire region scope")
		return nil, err
	}
	defer unlock()

	var released db.Host
	err = s.store.ExecTx(ctx, func(q *db.Queries) error {
		row, err := q.GetHost(ctx, id)
		if err != nil {
			if db.IsNotFound(err) {
				return apperrors.DomainErrHostNotFound.WithMetadata("host_id", id)
			}
			return apperrors.NewPersistenceError("get host", err)
		}
		released, err = s.ReleaseTx(ctx, q, row, reason, actor, nil)
		return err
	})
	if err != nil {
		op.Fail(err, "failed to release host")
		return nil, err
	}

	s.publish(ctx, events.EventHostReleased, released, "", actor)

	h := FromRow(released)
	op.Complete("host released", "ip_address", h.IPAddress)
	return &h, nil
}

// ReleaseTx releases row inside the caller's transaction: status, region
// counter and audit entry. The caller holds the region scope.
func (s *Service) ReleaseTx(ctx context.Context, q *db.Queries, row db.Host, reason, actor string, metadata map[string]string) (db.Host, error) {
	if row.Status != StatusActive {
		return db.Host{}, invalidState(row, "host is already released")
	}

	now := s.now()
	released, err := q.ReleaseHost(ctx, db.ReleaseHostParams{ReleasedAt: now, ID: row.ID})
	if err != nil {
		if db.IsNotFound(err) {
			return db.Host{}, invalidState(row, "host is already released")
		}
		return db.Host{}, db.MapError("release host", err)
	}
	if err := adjustHosts(ctx, q, row.RegionID, -1, now); err != nil {
		return db.Host{}, err
	}

	var changes audit.Changes
	changes.Track("status", row.Status, StatusReleased)
	if _, err := audit.Record(ctx, q, audit.Entry{
		ActionType:   audit.ActionRelease,
		ResourceType: audit.ResourceHost,
		ResourceID:   row.ID,
		ResourceName: row.Hostname,
		ScopeID:      row.RegionID,
		User:         actor,
		Reason:       reason,
		Changes:      changes,
		Metadata:     metadata,
		Timestamp:    now,
	}); err != nil {
		return db.Host{}, err
	}
	return released, nil
}

// ReleaseRegionHosts releases every active host of region in the caller's
// transaction. Region retirement uses it for cascades.
func (s *Service) ReleaseRegionHosts(ctx context.Context, q *db.Queries, region db.Region, reason, actor string) ([]db.Host, error) {
	rows, err := q.ListActiveHostsByRegion(ctx, region.ID)
	if err != nil {
		return nil, apperrors.NewPersistenceError("list region hosts", err)
	}

	metadata := map[string]string{"cascade": "true", "region_id": region.ID}
	released := make([]db.Host, 0, len(rows))
	for _, row := range rows {
		h, err := s.ReleaseTx(ctx, q, row, reason, actor, metadata)
		if err != nil {
			return nil, err
		}
		released = append(released, h)
	}
	return released, nil
}

// NotifyReleased publishes release events for hosts committed elsewhere.
func (s *Service) NotifyReleased(ctx context.Context, hosts []db.Host, country, actor string) {
	for _, h := range hosts {
		s.publish(ctx, events.EventHostReleased, h, country, actor)
	}
}

// BulkRelease releases each id in its own transaction. Failures are
// reported per host and never undo earlier successes.
func (s *Service) BulkRelease(ctx context.Context, ids []string, reason, actor string) (*BulkReleaseResult, error) {
	op := s.logger.StartOp(ctx, "host.bulk_release", "requested", len(ids))

	if err := s.validate.checkReason(reason); err != nil {
		op.Fail(err, "invalid bulk release request")
		return nil, err
	}
	if len(ids) == 0 {
		err := apperrors.NewValidationError(apperrors.DomainHost, "host_ids", "at least one host id is required")
		op.Fail(err, "invalid bulk release request")
		return nil, err
	}
	if len(ids) > s.validate.limits.MaxBulkRelease {
		err := apperrors.NewValidationError(apperrors.DomainHost, "host_ids",
			"at most "+strconv.Itoa(s.validate.limits.MaxBulkRelease)+" host ids per request").
			WithMetadata("requested", len(ids))
		op.Fail(err, "invalid bulk release request")
		return nil, err
	}

	result := &BulkReleaseResult{Requested: len(ids), Results: make([]ReleaseOutcome, 0, len(ids))}
	for _, id := range ids {
		outcome := ReleaseOutcome{HostID: id}
		if _, err := s.Release(ctx, id, reason, actor); err != nil {
			outcome.ErrorCode = apperrors.GetErrorCode(err)
			outcome.Error = err.Error()
			result.Failed++
		} else {
			outcome.Success = true
			result.Succeeded++
		}
		result.Results = append(result.Results, outcome)
	}

	op.Complete("bulk release finished", "succeeded", result.Succeeded, "failed", result.Failed)
	return result, nil
}

// Get returns a host by id.
func (s *Service) Get(ctx context.Context, id string) (*Host, error) {
	row, err := s.lookup(ctx, id)
	if err != nil {
		return nil, err
	}
	h := FromRow(row)
	return &h, nil
}

// List returns hosts matching f, oldest first.
func (s *Service) List(ctx context.Context, f Filter) (*models.Page[Host], error) {
	if err := s.validate.checkStatus(f.Status); err != nil {
		return nil, err
	}

	page, size := s.paging.NormalizePage(f.Page, f.PageSize)
	total, err := s.store.CountHosts(ctx, db.CountHostsParams{
		RegionID:   f.RegionID,
		Status:     f.Status,
		Owner:      f.Owner,
		DeviceType: f.DeviceType,
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("count hosts", err)
	}

	rows, err := s.store.ListHosts(ctx, db.ListHostsParams{
		RegionID:   f.RegionID,
		Status:     f.Status,
		Owner:      f.Owner,
		DeviceType: f.DeviceType,
		Limit:      int64(size),
		Offset:     models.NewPagination(page, size, total).Offset(),
	})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list hosts", err)
	}

	hosts := make([]Host, 0, len(rows))
	for _, row := range rows {
		hosts = append(hosts, FromRow(row))
	}
	return &models.Page[Host]{Results: hosts, Pagination: models.NewPagination(page, size, total)}, nil
}

// PreviewNext reports the address Create would hand out right now. It
// takes no lock, so a concurrent create may claim it first.
func (s *Service) PreviewNext(ctx context.Context, regionID string) (*Preview, error) {
	region, err := activeRegion(ctx, s.store, regionID)
	if err != nil {
		return nil, err
	}

	occupied, err := s.occupied(ctx, s.store, regionID)
	if err != nil {
		return nil, err
	}
	octets, err := addrspace.NextHostOctets(occupied, 1)
	if err != nil {
		return nil, withRegion(err, region)
	}

	return &Preview{
		RegionID:  regionID,
		ZOctet:    octets[0],
		IPAddress: addrspace.HostAddress(int(region.XOctet), int(region.YOctet), octets[0]),
		Available: addrspace.FreeHostOctets(occupied),
	}, nil
}

func (s *Service) checkCreate(hostname, deviceType, owner, purpose string, tags []string) ([]string, error) {
	if err := s.validate.checkHostname(hostname); err != nil {
		return nil, err
	}
	if err := s.validate.checkAttributes(deviceType, owner, purpose); err != nil {
		return nil, err
	}
	return s.validate.normalizeTags(tags)
}

func (s *Service) insert(ctx context.Context, q *db.Queries, region db.Region, z int, hostname, deviceType, owner, purpose string, tags []string, actor string) (db.Host, error) {
	ip := addrspace.HostAddress(int(region.XOctet), int(region.YOctet), z)
	row, err := q.CreateHost(ctx, db.CreateHostParams{
		ID:         uuid.NewString(),
		RegionID:   region.ID,
		XOctet:     region.XOctet,
		YOctet:     region.YOctet,
		ZOctet:     int64(z),
		IpAddress:  ip,
		Hostname:   hostname,
		DeviceType: deviceType,
		Owner:      owner,
		Purpose:    purpose,
		Tags:       encodeTags(tags),
		CreatedAt:  s.now(),
	})
	if err != nil {
		return db.Host{}, db.MapError("create host", err)
	}

	var changes audit.Changes
	changes.Set("hostname", "", hostname)
	changes.Set("ip_address", "", ip)
	changes.Set("device_type", "", deviceType)
	changes.Set("owner", "", owner)
	changes.Set("purpose", "", purpose)
	changes.Set("tags", "", tagString(tags))

	if _, err := audit.Record(ctx, q, audit.Entry{
		ActionType:   audit.ActionCreate,
		ResourceType: audit.ResourceHost,
		ResourceID:   row.ID,
		ResourceName: hostname,
		ScopeID:      region.ID,
		User:         actor,
		Changes:      changes,
		Metadata:     map[string]string{"region_id": region.ID, "country": region.Country},
		Timestamp:    row.CreatedAt,
	}); err != nil {
		return db.Host{}, err
	}
	return row, nil
}

// occupied returns the z values a new host may not take under the
// configured reuse policy.
func (s *Service) occupied(ctx context.Context, q db.Querier, regionID string) (map[int]bool, error) {
	octets, err := q.ListHostOctets(ctx, db.ListHostOctetsParams{RegionID: regionID, ActiveOnly: s.config.ReclaimReleased})
	if err != nil {
		return nil, apperrors.NewPersistenceError("list host octets", err)
	}
	occupied := make(map[int]bool, len(octets))
	for _, z := range octets {
		occupied[int(z)] = true
	}
	return occupied, nil
}

func (s *Service) lookup(ctx context.Context, id string) (db.Host, error) {
	row, err := s.store.GetHost(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Host{}, apperrors.DomainErrHostNotFound.WithMetadata("host_id", id)
		}
		return db.Host{}, apperrors.NewPersistenceError("get host", err)
	}
	return row, nil
}

func (s *Service) publish(ctx context.Context, name string, row db.Host, country, actor string) {
	if s.bus == nil {
		return
	}
	if country == "" {
		region, err := s.store.GetRegion(ctx, row.RegionID)
		if err != nil {
			s.logger.WarnCtx(ctx, "failed to resolve region country for event", err,
				"event", name, "region_id", row.RegionID)
		} else {
			country = region.Country
		}
	}
	err := s.bus.PublishHost(name, events.HostEvent{
		HostID:    row.ID,
		RegionID:  row.RegionID,
		Country:   country,
		IPAddress: row.IpAddress,
		Hostname:  row.Hostname,
		Actor:     actor,
	})
	if err != nil {
		s.logger.WarnCtx(ctx, "failed to publish host event", err,
			"event", name, "host_id", row.ID)
	}
}

func activeRegion(ctx context.Context, q db.Querier, regionID string) (db.Region, error) {
	region, err := q.GetRegion(ctx, regionID)
	if err != nil {
		if db.IsNotFound(err) {
			return db.Region{}, apperrors.DomainErrRegionNotFound.WithMetadata("region_id", regionID)
		}
		return db.Region{}, apperrors.NewPersistenceError("get region", err)
	}
	if region.Status != db.RegionStatusActive {
		return db.Region{}, apperrors.NewHostError(apperrors.ErrCodeRegionInactive, "region is retired", false, nil).
			WithMetadata("region_id", regionID).
			WithMetadata("cidr", region.Cidr)
	}
	return region, nil
}

func adjustHosts(ctx context.Context, q *db.Queries, regionID string, delta int64, now time.Time) error {
	if _, err := q.AdjustRegionHosts(ctx, db.AdjustRegionHostsParams{Delta: delta, UpdatedAt: now, ID: regionID}); err != nil {
		return db.MapError("adjust region hosts", err)
	}
	return nil
}

func withRegion(err error, region db.Region) error {
	if de, ok := apperrors.AsDomainError(err); ok {
		return de.WithMetadata("region_id", region.ID).WithMetadata("cidr", region.Cidr)
	}
	return err
}

func invalidState(row db.Host, msg string) error {
	return apperrors.NewHostError(apperrors.ErrCodeInvalidState, msg, false, nil).
		WithMetadata("host_id", row.ID).
		WithMetadata("status", row.Status)
}

func pick(v *string, current string) string {
	if v == nil {
		return current
	}
	return strings.TrimSpace(*v)
}

func deref(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
