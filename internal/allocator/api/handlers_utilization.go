package api

import (
	"log/slog"
	"net/http"

	"github.com/chiquitav2/ipam/internal/allocator/audit"
	"github.com/chiquitav2/ipam/internal/allocator/utilization"
)

// globalResourceID stands in for the empty id of a global forecast.
const globalResourceID = "-"

// globalUtilizationHandler returns the global snapshot.
func (s *Server) globalUtilizationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "globalUtilization")

		snap, err := s.deps.Utilization.GlobalSnapshot(ctx)
		if err != nil {
			s.fail(w, r, op, "globalUtilization", err, "failed to compute snapshot")
			return
		}

		if err := WriteSuccess(w, snap); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("computed global snapshot", slog.Float64("percentage", snap.Percentage))
	}
}

// countryUtilizationHandler returns region usage in one country.
func (s *Server) countryUtilizationHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		country := r.PathValue("country")
		op := GetLogger(ctx).StartOp(ctx, "countryUtilization", slog.String("country", country))

		u, err := s.deps.Utilization.CountryUtilization(ctx, country)
		if err != nil {
			s.fail(w, r, op, "countryUtilization", err, "failed to compute utilization")
			return
		}

		if err := WriteSuccess(w, u); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("computed country utilization")
	}
}

// forecastHandler projects exhaustion for a region, country or the whole
// space.
func (s *Server) forecastHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		resourceType := utilization.ResourceType(r.PathValue("resourceType"))
		id := r.PathValue("resourceID")
		if id == globalResourceID {
			id = ""
		}
		op := GetLogger(ctx).StartOp(ctx, "forecast",
			slog.String("resource_type", string(resourceType)),
			slog.String("resource_id", id))

		f, err := s.deps.Utilization.Forecast(ctx, resourceType, id)
		if err != nil {
			s.fail(w, r, op, "forecast", err, "failed to compute forecast")
			return
		}

		if err := WriteSuccess(w, f); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("computed forecast", slog.String("severity", string(f.Severity)))
	}
}

// queryAuditHandler pages through the audit trail, newest first.
func (s *Server) queryAuditHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "queryAudit")

		filter, err := auditFilter(r)
		if err != nil {
			s.fail(w, r, op, "queryAudit", err, "invalid audit query")
			return
		}

		result, err := s.deps.Audit.Query(ctx, filter)
		if err != nil {
			s.fail(w, r, op, "queryAudit", err, "failed to query audit trail")
			return
		}

		if err := WriteSuccess(w, result); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("queried audit trail", slog.Int64("total", result.Pagination.Total))
	}
}

// getAuditEntryHandler returns one audit entry.
func (s *Server) getAuditEntryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		id := r.PathValue("entryID")
		op := GetLogger(ctx).StartOp(ctx, "getAuditEntry", slog.String("entry_id", id))

		entry, err := s.deps.Audit.Get(ctx, id)
		if err != nil {
			s.fail(w, r, op, "getAuditEntry", err, "failed to get audit entry")
			return
		}

		if err := WriteSuccess(w, entry); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("retrieved audit entry")
	}
}

func auditFilter(r *http.Request) (audit.Filter, error) {
	page, size, err := pageParams(r)
	if err != nil {
		return audit.Filter{}, err
	}
	start, err := queryTime(r, "start_date")
	if err != nil {
		return audit.Filter{}, err
	}
	end, err := queryTime(r, "end_date")
	if err != nil {
		return audit.Filter{}, err
	}
	return audit.Filter{
		ActionType:   audit.Action(queryString(r, "action_type")),
		ResourceType: audit.ResourceType(queryString(r, "resource_type")),
		ResourceID:   queryString(r, "resource_id"),
		User:         queryString(r, "user"),
		StartDate:    start,
		EndDate:      end,
		Page:         page,
		PageSize:     size,
	}, nil
}
