package api

import (
	"log/slog"
	"net/http"

	"github.com/chiquitav2/ipam/internal/allocator/host"
	"github.com/chiquitav2/ipam/pkg/api"
)

// nextHostHandler previews the next host address in a region.
func (s *Server) nextHostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		regionID := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "previewHost", slog.String("region_id", regionID))

		preview, err := s.deps.Hosts.PreviewNext(ctx, regionID)
		if err != nil {
			s.fail(w, r, op, "previewHost", err, "failed to preview next host")
			return
		}

		if err := WriteSuccess(w, preview); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("previewed next host", slog.Int("available", preview.Available))
	}
}

// createHostHandler allocates the lowest free host octet in a region.
func (s *Server) createHostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		regionID := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "createHost", slog.String("region_id", regionID))

		var req host.CreateRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "createHost", err, "failed to parse request")
			return
		}

		created, err := s.deps.Hosts.Create(ctx, regionID, req, actor(r))
		if err != nil {
			s.fail(w, r, op, "createHost", err, "failed to create host")
			return
		}

		if err := WriteStatus(w, http.StatusCreated, created); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("host created", slog.String("host_id", created.ID), slog.String("ip_address", created.IPAddress))
	}
}

// batchCreateHostsHandler allocates up to 100 hosts atomically.
func (s *Server) batchCreateHostsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		regionID := r.PathValue("regionID")
		op := GetLogger(ctx).StartOp(ctx, "batchCreateHosts", slog.String("region_id", regionID))

		var req host.BatchRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "batchCreateHosts", err, "failed to parse request")
			return
		}
		op.With("count", req.Count)

		created, err := s.deps.Hosts.BatchCreate(ctx, regionID, req, actor(r))
		if err != nil {
			s.fail(w, r, op, "batchCreateHosts", err, "failed to create hosts")
			return
		}

		if err := WriteStatus(w, http.StatusCreated, created); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("hosts created")
	}
}

// listHostsHandler lists hosts with optional filters.
func (s *Server) listHostsHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "listHosts")

		page, size, err := pageParams(r)
		if err != nil {
			s.fail(w, r, op, "listHosts", err, "invalid paging")
			return
		}

		result, err := s.deps.Hosts.List(ctx, host.Filter{
			RegionID:   queryString(r, "region_id"),
			Status:     queryString(r, "status"),
			Owner:      queryString(r, "owner"),
			DeviceType: queryString(r, "device_type"),
			Page:       page,
			PageSize:   size,
		})
		if err != nil {
			s.fail(w, r, op, "listHosts", err, "failed to list hosts")
			return
		}

		if err := WriteSuccess(w, result); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("listed hosts", slog.Int("count", len(result.Results)))
	}
}

// getHostHandler returns one host.
func (s *Server) getHostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("hostID")
		op := GetLogger(ctx).StartOp(ctx, "getHost", slog.String("host_id", id))

		found, err := s.deps.Hosts.Get(ctx, id)
		if err != nil {
			s.fail(w, r, op, "getHost", err, "failed to get host")
			return
		}

		if err := WriteSuccess(w, found); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("retrieved host")
	}
}

// updateHostHandler changes a host's descriptive fields.
func (s *Server) updateHostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("hostID")
		op := GetLogger(ctx).StartOp(ctx, "updateHost", slog.String("host_id", id))

		var req host.UpdateRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "updateHost", err, "failed to parse request")
			return
		}

		updated, err := s.deps.Hosts.Update(ctx, id, req, actor(r))
		if err != nil {
			s.fail(w, r, op, "updateHost", err, "failed to update host")
			return
		}

		if err := WriteSuccess(w, updated); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("host updated")
	}
}

// releaseHostHandler releases one host.
func (s *Server) releaseHostHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("hostID")
		op := GetLogger(ctx).StartOp(ctx, "releaseHost", slog.String("host_id", id))

		var req api.ReleaseHostRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "releaseHost", err, "failed to parse request")
			return
		}

		released, err := s.deps.Hosts.Release(ctx, id, req.Reason, actor(r))
		if err != nil {
			s.fail(w, r, op, "releaseHost", err, "failed to release host")
			return
		}

		if err := WriteSuccess(w, released); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("host released", slog.String("ip_address", released.IPAddress))
	}
}

// bulkReleaseHandler releases many hosts, reporting each outcome. Partial
// failure is still a 200; the body carries per-host results.
func (s *Server) bulkReleaseHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "bulkReleaseHosts")

		var req api.BulkReleaseRequest
		if err := ParseJSONRequest(r, &req); err != nil {
			s.fail(w, r, op, "bulkReleaseHosts", err, "failed to parse request")
			return
		}
		op.With("requested", len(req.HostIDs))

		result, err := s.deps.Hosts.BulkRelease(ctx, req.HostIDs, req.Reason, actor(r))
		if err != nil {
			s.fail(w, r, op, "bulkReleaseHosts", err, "failed to release hosts")
			return
		}

		if err := WriteSuccess(w, result); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("bulk release finished",
			slog.Int("succeeded", result.Succeeded),
			slog.Int("failed", result.Failed))
	}
}
