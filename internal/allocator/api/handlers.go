package api

import (
	"net/http"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/internal/shared/logger"
	"github.com/chiquitav2/ipam/pkg/api"
)

// fail logs the failure on op, counts it and writes the error envelope.
func (s *Server) fail(w http.ResponseWriter, r *http.Request, op *logger.Operation, name string, err error, msg string) {
	op.Fail(err, msg)
	if s.deps.Metrics != nil {
		code := apperrors.GetErrorCode(err)
		if code == "" {
			code = apperrors.ErrCodeInternal
		}
		s.deps.Metrics.ObserveError(name, code)
	}
	WriteErrorResponse(w, r, err)
}

// healthHandler reports liveness and whether the database answers.
func (s *Server) healthHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		response := api.HealthResponse{
			Status:   "healthy",
			Version:  s.config.Version,
			Database: "ok",
			Time:     time.Now().UTC(),
		}
		status := http.StatusOK

		if s.deps.DB != nil {
			if err := s.deps.DB.Ping(ctx); err != nil {
				GetLogger(ctx).WarnCtx(ctx, "health check database ping failed", err)
				response.Status = "degraded"
				response.Database = "unreachable"
				status = http.StatusServiceUnavailable
			}
		}

		if err := WriteStatus(w, status, response); err != nil {
			s.logger.ErrorContext(ctx, "failed to encode health response", "error", err)
		}
	}
}

// listCountriesHandler lists the address space table.
func (s *Server) listCountriesHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		op := GetLogger(ctx).StartOp(ctx, "listCountries")

		countries, err := s.deps.Utilization.Countries(ctx)
		if err != nil {
			s.fail(w, r, op, "listCountries", err, "failed to list countries")
			return
		}

		response := api.CountriesResponse{
			Countries:  make([]api.CountryInfo, 0, len(countries)),
			Continents: []string{},
		}
		seen := make(map[string]bool)
		for _, c := range countries {
			response.Countries = append(response.Countries, api.CountryInfo{
				Name:        c.Country,
				Continent:   c.Continent,
				XStart:      c.XStart,
				XEnd:        c.XEnd,
				IsReserved:  c.IsReserved,
				RegionSlots: c.TotalCapacity,
			})
			if !seen[c.Continent] {
				seen[c.Continent] = true
				response.Continents = append(response.Continents, c.Continent)
			}
			response.TotalSlots += c.TotalCapacity
		}

		if err := WriteSuccess(w, response); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("listed countries", "count", len(response.Countries))
	}
}

// getCountryHandler returns one country with its utilization.
func (s *Server) getCountryHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		country := r.PathValue("country")
		op := GetLogger(ctx).StartOp(ctx, "getCountry", "country", country)

		u, err := s.deps.Utilization.CountryUtilization(ctx, country)
		if err != nil {
			s.fail(w, r, op, "getCountry", err, "failed to get country")
			return
		}

		if err := WriteSuccess(w, u); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("retrieved country")
	}
}

// nextRegionHandler previews the block the next region in a country gets.
func (s *Server) nextRegionHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		country := r.PathValue("country")
		op := GetLogger(ctx).StartOp(ctx, "previewRegion", "country", country)

		next, err := s.deps.Regions.PreviewNext(ctx, country)
		if err != nil {
			s.fail(w, r, op, "previewRegion", err, "failed to preview next region")
			return
		}

		if err := WriteSuccess(w, next); err != nil {
			op.Fail(err, "failed to encode response")
			return
		}
		op.Complete("previewed next region", "cidr", next.CIDR)
	}
}
