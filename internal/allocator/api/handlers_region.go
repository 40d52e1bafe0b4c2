package api

import (
	"log/slog"
	"net/http"

	"github.com/chiquitav2/ipam/internal/allocator/region"
	"github.com/chiquitav2/ipam/pkg/api"
)

// createRegionHandler allocates the lowest free /24 in a country.
func (s *Server) createRegionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "createRegion")

		var req region.CreateRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "createRegion", err, "failed to parse request")
			return
		}
		op.With("country", req.Country)

		created, err := s.deps.Regions.Create(ctx, req, actor(r))
		if err != nil {
			s.fail(w, r, op, "createRegion", err, "failed to create region")
			return
		}

		if err := WriteStatus(w, http.StatusCreated, created); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("region created", slog.String("region_id", created.ID), slog.String("cidr", created.CIDR))
	}
}

// listRegionsHandler lists regions with optional filters.
func (s *Server) listRegionsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "listRegions")

		page, size, err := pageParams(r)
		if err != nil {
			s.fail(w, r, op, "listRegions", err, "invalid paging")
			return
		}

		result, err := s.deps.Regions.List(ctx, region.Filter{
			Country:  queryString(r, "country"),
			Status:   queryString(r, "status"),
			Owner:    queryString(r, "owner"),
			Page:     page,
			PageSize: size,
		})
		if err != nil {
			s.fail(w, r, op, "listRegions", err, "failed to list regions")
			return
		}

		if err := WriteSuccess(w, result); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("listed regions", slog.Int("count", len(result.Results)))
	}
}

// getRegionHandler returns one region.
func (s *Server) getRegionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "getRegion", slog.String("region_id", id))

		found, err := s.deps.Regions.Get(ctx, id)
		if err != nil {
			s.fail(w, r, op, "getRegion", err, "failed to get region")
			return
		}

		if err := WriteSuccess(w, found); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("retrieved region")
	}
}

// updateRegionHandler changes a region's descriptive fields.
func (s *Server) updateRegionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "updateRegion", slog.String("region_id", id))

		var req region.UpdateRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "updateRegion", err, "failed to parse request")
			return
		}

		updated, err := s.deps.Regions.Update(ctx, id, req, actor(r))
		if err != nil {
			s.fail(w, r, op, "updateRegion", err, "failed to update region")
			return
		}

		if err := WriteSuccess(w, updated); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("region updated")
	}
}

// retireRegionHandler retires a region, optionally releasing its hosts.
func (s *Server) retireRegionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "retireRegion", slog.String("region_id", id))

		var req api.RetireRegionRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "retireRegion", err, "failed to parse request")
			return
		}
		op.With("cascade", req.Cascade)

		result, err := s.deps.Regions.Retire(ctx, id, req.Reason, req.Cascade, actor(r))
		if err != nil {
			s.fail(w, r, op, "retireRegion", err, "failed to retire region")
			return
		}

		if err := WriteSuccess(w, result); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("region retired",
			slog.Int("hosts_released", result.HostsReleased),
			slog.Int("orphaned_hosts", result.OrphanedHosts))
	}
}

// regionUtilizationHandler reports host usage in a region.
func (s *Server) regionUtilizationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "regionUtilization", slog.String("region_id", id))

		u, err := s.deps.Regions.Utilization(ctx, id)
		if err != nil {
			s.fail(w, r, op, "regionUtilization", err, "failed to compute utilization")
			return
		}

		if err := WriteSuccess(w, u); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("computed region utilization")
	}
}
