// Package handler implements the HTTP endpoints. Handlers bind and validate
// request bodies, delegate to repositories, and translate repository errors
// into HTTP status codes.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/lifeflow/blood-donation-service/internal/middleware"
	"github.com/lifeflow/blood-donation-service/internal/repository"
)

// dbTimeout bounds every database call made from a handler.
const dbTimeout = 5 * time.Second

func reqCtx(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), dbTimeout)
}

// caller returns the authenticated identity, or an HTTPError the handler
// should return as-is.
func caller(c echo.Context) (middleware.Caller, error) {
	cl, ok := middleware.CallerFrom(c)
	if !ok {
		return middleware.Caller{}, echo.NewHTTPError(http.StatusUnauthorized, "unauthorized")
	}
	return cl, nil
}

// pathID parses a numeric path parameter.
func pathID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

// pageParams reads limit/offset query parameters with clamped defaults.
func pageParams(c echo.Context) (limit, offset int) {
	limit = 20
	if v, err := strconv.Atoi(c.QueryParam("limit")); err == nil && v > 0 {
		limit = v
	}
	if limit > 100 {
		limit = 100
	}
	if v, err := strconv.Atoi(c.QueryParam("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}

// writeRepoError maps repository sentinels onto HTTP responses. Unknown
// errors become a generic 500 so internals never leak to clients.
func writeRepoError(c echo.Context, err error, fallback string) error {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, repository.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, repository.ErrInvalidState):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "operation not valid in the current state"})
	case errors.Is(err, repository.ErrConflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflict, retry with fresh state"})
	case errors.Is(err, repository.ErrActiveBookingExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "an active booking already exists"})
	case errors.Is(err, repository.ErrEmailExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "email already exists"})
	case errors.Is(err, repository.ErrLicenseExists):
		return c.JSON(http.StatusConflict, echo.Map{"error": "license number already registered"})
	}
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": fallback})
}

// repoHTTPError is the HTTPError form of writeRepoError, for helpers that
// return errors instead of writing responses directly.
func repoHTTPError(err error, fallback string) *echo.HTTPError {
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.Is(err, repository.ErrForbidden):
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	case errors.Is(err, repository.ErrInvalidState):
		return echo.NewHTTPError(http.StatusUnprocessableEntity, "operation not valid in the current state")
	case errors.Is(err, repository.ErrConflict):
		return echo.NewHTTPError(http.StatusConflict, "conflict, retry with fresh state")
	}
	return echo.NewHTTPError(http.StatusInternalServerError, fallback)
}

// parseDate accepts RFC 3339 or bare YYYY-MM-DD dates.
func parseDate(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
