package handlers

import (
	"errors"
	"net/http"

	"queryset_registry/internal/broker"
	"queryset_registry/internal/services"
)

// statusFor maps service errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, services.ErrQuerysetNotFound), errors.Is(err, services.ErrTableNotFound):
		return http.StatusNotFound
	case errors.Is(err, services.ErrQuerysetExists):
		return http.StatusConflict
	case errors.Is(err, services.ErrInvalidReference):
		return http.StatusUnprocessableEntity
	case errors.Is(err, broker.ErrIndeterminate):
		// the broker may answer on a later attempt
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
