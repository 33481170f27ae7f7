package handler

import (
	"errors"
	"log"
	"net/http"

	"github.com/gin-gonic/gin"

	"eventgate/internal/registration"
	"eventgate/internal/ticket"
)

// Machine-readable error tags returned in the "error" field.
const (
	TagValidation         = "validation_error"
	TagInvalidClass       = "invalid_class"
	TagNotAuthorized      = "not_authorized"
	TagDuplicate          = "duplicate_registration"
	TagTicketNotFound     = "ticket_not_found"
	TagAlreadyUsed        = "already_used"
	TagStoreWrite         = "store_write_error"
	TagServer             = "server_error"
	TagServiceUnavailable = "service_unavailable"
	TagMethodNotAllowed   = "method_not_allowed"
	TagNotFound           = "not_found"
	TagUnauthorized       = "unauthorized"
)

// classify maps a workflow error to an HTTP status and tag.
func classify(err error) (int, string) {
	switch {
	case errors.Is(err, ticket.ErrValidation):
		return http.StatusBadRequest, TagValidation
	case errors.Is(err, ticket.ErrInvalidClass):
		return http.StatusBadRequest, TagInvalidClass
	case errors.Is(err, ticket.ErrNotAuthorized):
		return http.StatusForbidden, TagNotAuthorized
	case errors.Is(err, ticket.ErrDuplicateRegistration):
		return http.StatusConflict, TagDuplicate
	case errors.Is(err, ticket.ErrTicketNotFound):
		return http.StatusNotFound, TagTicketNotFound
	case errors.Is(err, ticket.ErrAlreadyUsed):
		return http.StatusConflict, TagAlreadyUsed
	case errors.Is(err, registration.ErrStaffDisabled):
		return http.StatusNotFound, TagNotFound
	case errors.Is(err, ticket.ErrStoreWrite):
		return http.StatusInternalServerError, TagStoreWrite
	}
	return http.StatusInternalServerError, TagServer
}

// fail writes the error body and returns the tag for metrics. Server-side
// failures are logged here and nowhere else.
func fail(c *gin.Context, err error) string {
	status, tag := classify(err)
	if status >= http.StatusInternalServerError {
		log.Printf("%s %s: %v", c.Request.Method, c.FullPath(), err)
	}

	body := gin.H{"error": tag, "details": err.Error()}
	var used *ticket.AlreadyUsedError
	if errors.As(err, &used) {
		body["person"] = used.Person
	}
	c.JSON(status, body)
	return tag
}

func badRequest(c *gin.Context, details string) {
	c.JSON(http.StatusBadRequest, gin.H{"error": TagValidation, "details": details})
}
