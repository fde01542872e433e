package api

import (
	"errors"
	"net/http"

	"adsledger/internal/ledger"
	"adsledger/internal/service"
)

// errorStatus maps a domain error to its HTTP status and public code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, service.ErrUnauthorized):
		return http.StatusForbidden, "unauthorized"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "banned"
	case errors.Is(err, service.ErrMaintenance):
		return http.StatusServiceUnavailable, "maintenance"
	case errors.Is(err, service.ErrInsufficientFunds):
		return http.StatusBadRequest, "insufficient_funds"
	case errors.Is(err, service.ErrInvalidState):
		return http.StatusConflict, "invalid_state"
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrInvalidDecision),
		errors.Is(err, errInvalidRequest):
		return http.StatusBadRequest, "invalid_request"
	case errors.Is(err, ledger.ErrConflict):
		return http.StatusConflict, "conflict"
	case errors.Is(err, ledger.ErrUpstreamUnavailable):
		return http.StatusServiceUnavailable, "upstream_unavailable"
	default:
		return http.StatusInternalServerError, "internal_error"
	}
}

// fail logs the business event and writes the mapped error response.
func (s *Server) fail(w http.ResponseWriter, event string, err error, fields map[string]any) {
	status, code := errorStatus(err)
	message := err.Error()
	switch code {
	case "internal_error":
		s.logger.WithError(err).WithField("event", event).Error("unexpected error")
		message = "internal error"
	case "upstream_unavailable":
		s.logger.WithError(err).WithField("event", event).Warn("store unavailable")
		message = "ledger store is unavailable, try again later"
	}
	if fields == nil {
		fields = map[string]any{}
	}
	fields["reason"] = code
	s.logEvent(event, fields)
	writeError(w, status, code, message)
}
