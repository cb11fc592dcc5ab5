package api

import (
	"errors"
	"net/http"

	"dpm/internal/domain"
)

// httpStatusFromDomainError maps domain errors to HTTP status codes.
// Remote platform failures surface as gateway errors so callers can tell
// "our input was bad" from "the platform rejected it or was unreachable".
func httpStatusFromDomainError(err error) int {
	var notFound *domain.NotFoundError
	var validation *domain.ValidationError
	var conflict *domain.ConflictError
	var remote *domain.RemoteAPIError
	var transport *domain.TransportError

	switch {
	case errors.As(err, &notFound):
		return http.StatusNotFound
	case errors.As(err, &validation):
		return http.StatusBadRequest
	case errors.As(err, &conflict):
		return http.StatusConflict
	case errors.As(err, &remote):
		return http.StatusBadGateway
	case errors.As(err, &transport):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}
