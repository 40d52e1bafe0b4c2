package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	apperrors "github.com/chiquitav2/ipam/internal/shared/errors"
	"github.com/chiquitav2/ipam/pkg/api"
)

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, statusCode int, data any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}

// WriteSuccess writes a successful JSON response.
func WriteSuccess[T any](w http.ResponseWriter, data T) error {
	return WriteStatus(w, http.StatusOK, data)
}

// WriteStatus writes a successful JSON response with a custom status.
func WriteStatus[T any](w http.ResponseWriter, statusCode int, data T) error {
	return WriteJSON(w, statusCode, api.Response[T]{
		Success: true,
		Data:    data,
	})
}

// WriteErrorResponse translates an error into the JSON error envelope.
// Domain errors keep their code and metadata; anything else is a 500.
func WriteErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	ctx := r.Context()
	requestID := GetRequestID(ctx)

	statusCode := http.StatusInternalServerError
	errorCode := apperrors.ErrCodeInternal
	message := "An internal server error occurred"
	var metadata map[string]any

	if domainErr, ok := apperrors.AsDomainError(err); ok {
		errorCode = domainErr.Code()
		metadata = domainErr.Metadata()
		statusCode, message = mapErrorCodeToHTTP(domainErr)

		if errorCode == apperrors.ErrCodeRateLimit {
			if retry, ok := metadata["retry_after_sec"]; ok {
				w.Header().Set("Retry-After", fmt.Sprintf("%v", retry))
			}
		}
	}

	if statusCode >= http.StatusInternalServerError {
		GetLogger(ctx).ErrorCtx(ctx, "API request failed", err)
	}

	_ = WriteJSON(w, statusCode, api.Response[any]{
		Success: false,
		Error: &api.ErrorInfo{
			Code:      errorCode,
			Message:   message,
			RequestID: requestID,
			Metadata:  metadata,
		},
	})
}

// mapErrorCodeToHTTP maps domain error codes to HTTP status codes and messages.
func mapErrorCodeToHTTP(err apperrors.DomainError) (int, string) {
	code := err.Code()
	msg := err.Message()

	switch code {
	case apperrors.ErrCodeValidation, apperrors.ErrCodeInvalidHostname:
		return http.StatusBadRequest, msg

	case apperrors.ErrCodeNotFound:
		return http.StatusNotFound, msg

	case apperrors.ErrCodeInvalidState, apperrors.ErrCodeRegionInactive,
		apperrors.ErrCodeCapacityExhausted, apperrors.ErrCodeConcurrencyConflict:
		return http.StatusConflict, msg

	case apperrors.ErrCodeRateLimit:
		return http.StatusTooManyRequests, msg

	default:
		return http.StatusInternalServerError, "An internal server error occurred"
	}
}
