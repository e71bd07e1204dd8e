// Package api contains the HTTP handlers for the orchestration service
package api

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"flowgate/pkg/models"
)

// ProblemDetails represents an RFC 7807 Problem Details response
type ProblemDetails struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// problem writes an RFC 7807 response.
func problem(c echo.Context, status int, title, detail string) error {
	c.Response().Header().Set(echo.HeaderContentType, "application/problem+json")
	return c.JSON(status, ProblemDetails{
		Type:   "about:blank",
		Title:  title,
		Status: status,
		Detail: detail,
	})
}

// mapError translates the service error taxonomy onto HTTP responses:
// validation 400, missing/foreign-organization rows 404, forbidden 403,
// remote engine trouble 502, everything else 500.
func mapError(c echo.Context, err error) error {
	switch {
	case models.IsValidation(err):
		return problem(c, http.StatusBadRequest, "Validation failed", err.Error())
	case errors.Is(err, models.ErrNotFound):
		return problem(c, http.StatusNotFound, "Not found", "the requested resource does not exist")
	case errors.Is(err, models.ErrForbidden):
		return problem(c, http.StatusForbidden, "Forbidden", "this action requires an admin role")
	case models.IsRemoteEngine(err):
		return problem(c, http.StatusBadGateway, "Remote engine unavailable", err.Error())
	default:
		return problem(c, http.StatusInternalServerError, "Internal error", err.Error())
	}
}
