package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"autodrive/internal/repository"
	"autodrive/internal/service"
)

// ErrorResponse represents an error response.
type ErrorResponse struct {
	Error     string `json:"error"`
	Retryable bool   `json:"retryable,omitempty"`
}

// respondError sends an error response with the appropriate HTTP status code.
func respondError(c *gin.Context, err error) {
	code := mapErrorToHTTPStatus(err)
	if code >= http.StatusInternalServerError {
		_ = c.Error(err)
	}
	c.JSON(code, ErrorResponse{
		Error:     err.Error(),
		Retryable: code == http.StatusBadGateway || errors.Is(err, service.ErrConcurrentModification),
	})
}

// respondBadRequest sends a 400 response for a malformed request.
func respondBadRequest(c *gin.Context, message string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: message})
}

// respondJSON sends a JSON response with the given status code.
func respondJSON(c *gin.Context, code int, data any) {
	c.JSON(code, data)
}

// mapErrorToHTTPStatus maps service/repository errors to HTTP status codes.
func mapErrorToHTTPStatus(err error) int {
	switch {
	// Not found errors
	case errors.Is(err, repository.ErrNotFound):
		return http.StatusNotFound

	// Validation errors - Bad Request
	case errors.Is(err, service.ErrInvalidTripID),
		errors.Is(err, service.ErrInvalidRiderID),
		errors.Is(err, service.ErrInvalidDriverID),
		errors.Is(err, service.ErrInvalidVehicleID),
		errors.Is(err, service.ErrInvalidPickupLocation),
		errors.Is(err, service.ErrInvalidDropoffLocation),
		errors.Is(err, service.ErrInvalidLocation),
		errors.Is(err, service.ErrInvalidPassengerCount),
		errors.Is(err, service.ErrInvalidActor),
		errors.Is(err, service.ErrInvalidPaymentAmount),
		errors.Is(err, service.ErrInvalidPaymentReference),
		errors.Is(err, service.ErrInvalidTripStatus),
		errors.Is(err, service.ErrInvalidVehicleStatus):
		return http.StatusBadRequest

	// Conflict errors
	case errors.Is(err, service.ErrInvalidStateTransition),
		errors.Is(err, service.ErrActiveTripExists),
		errors.Is(err, service.ErrConcurrentModification),
		errors.Is(err, repository.ErrConflict):
		return http.StatusConflict

	// Forbidden
	case errors.Is(err, service.ErrPermissionDenied):
		return http.StatusForbidden

	// Payment errors
	case errors.Is(err, service.ErrUnpaidTrip):
		return http.StatusPaymentRequired
	case errors.Is(err, service.ErrPaymentVerification):
		return http.StatusUnprocessableEntity

	// Service unavailable
	case errors.Is(err, service.ErrNoVehicleAvailable):
		return http.StatusServiceUnavailable

	// Ledger failures; nothing was persisted
	case errors.Is(err, service.ErrExternalService):
		return http.StatusBadGateway

	// Default to internal server error
	default:
		return http.StatusInternalServerError
	}
}
