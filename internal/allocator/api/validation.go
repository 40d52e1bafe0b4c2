package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/gookit/goutil"
)

// maxBodyBytes caps request bodies; bulk release of 500 ids fits easily.
const maxBodyBytes = 1 << 20

// actor is the audit user for a request, taken from the X-User header.
// An absent header leaves attribution to the audit trail default.
func actor(r *http.Request) string {
	return strings.TrimSpace(r.Header.Get("X-User"))
}

// ParseJSONRequest decodes the body into dst, rejecting unknown fields.
func ParseJSONRequest(r *http.Request, dst any) error {
	if r.Body == nil {
		return apperrors.NewValidationError(apperrors.DomainAPI, "body", "request body is required")
	}
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperrors.NewValidationError(apperrors.DomainAPI, "body", "request body is required")
		}
		return apperrors.NewValidationError(apperrors.DomainAPI, "body", "invalid JSON body: "+err.Error())
	}
	return nil
}

// queryInt parses an optional integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return 0, nil
	}
	v, err := goutil.ToInt(raw)
	if err != nil || v < 0 {
		return 0, apperrors.NewValidationError(apperrors.DomainAPI, name, name+" must be a non-negative integer").
			WithMetadata("value", raw)
	}
	return v, nil
}

// pageParams reads page and page_size. Bounds are applied by the services.
func pageParams(r *http.Request) (page, pageSize int, err error) {
	if page, err = queryInt(r, "page"); err != nil {
		return 0, 0, err
	}
	if pageSize, err = queryInt(r, "page_size"); err != nil {
		return 0, 0, err
	}
	return page, pageSize, nil
}

// queryTime parses an optional RFC 3339 timestamp.
func queryTime(r *http.Request, name string) (*time.Time, error) {
	raw := strings.TrimSpace(r.URL.Query().Get(name))
	if raw == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return nil, apperrors.NewValidationError(apperrors.DomainAPI, name, name+" must be an RFC 3339 timestamp").
			WithMetadata("value", raw)
	}
	t = t.UTC()
	return &t, nil
}

func queryString(r *http.Request, name string) string {
	return strings.TrimSpace(r.URL.Query().Get(name))
}
