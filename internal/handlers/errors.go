package handlers

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

var statusBySentinel = []struct {
	err    error
	status int
}{
	{services.ErrForbidden, http.StatusForbidden},
	{services.ErrAccessDenied, http.StatusForbidden},

	{services.ErrCodeInvalid, http.StatusNotFound},
	{services.ErrUserNotFound, http.StatusNotFound},
	{services.ErrTicketNotFound, http.StatusNotFound},
	{services.ErrContractNotFound, http.StatusNotFound},
	{services.ErrCancellationNotFound, http.StatusNotFound},
	{services.ErrToolNotFound, http.StatusNotFound},
	{services.ErrLessonNotFound, http.StatusNotFound},

	{services.ErrSignatureMismatch, http.StatusBadRequest},
	{services.ErrConfirmationMismatch, http.StatusBadRequest},

	{services.ErrCodeExists, http.StatusConflict},
	{services.ErrTicketClosed, http.StatusConflict},
	{services.ErrNotAContract, http.StatusConflict},
	{services.ErrNotACancellationTicket, http.StatusConflict},
	{services.ErrContractNotPending, http.StatusConflict},
	{services.ErrCancellationNotPending, http.StatusConflict},

	{services.ErrTooManyAttempts, http.StatusTooManyRequests},

	{services.ErrToolURLMissing, http.StatusInternalServerError},
	{services.ErrPaymentNotConfigured, http.StatusInternalServerError},
}

// respondError writes err as a JSON error body with the matching status.
func respondError(c echo.Context, err error) error {
	var verr *services.ValidationError
	if errors.As(err, &verr) {
		return c.JSON(http.StatusBadRequest, map[string]any{
			"error":  "Invalid input",
			"fields": verr.Fields,
		})
	}

	for _, s := range statusBySentinel {
		if errors.Is(err, s.err) {
			if s.status >= http.StatusInternalServerError {
				slog.Error("request failed", "path", c.Path(), "error", err)
			}
			return c.JSON(s.status, map[string]string{"error": s.err.Error()})
		}
	}

	var ue *services.UpstreamError
	if errors.As(err, &ue) {
		return c.JSON(ue.Status, map[string]string{"error": ue.Message})
	}

	attrs := []any{"method", c.Request().Method, "path", c.Path(), "error", err}
	if actor, ok := middleware.ActorFrom(c); ok {
		attrs = append(attrs, "user_id", actor.UserID)
	}
	slog.Error("request failed", attrs...)
	return c.JSON(http.StatusInternalServerError, map[string]string{
		"error": "Something went wrong. Please try again later.",
	})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, map[string]string{"error": msg})
}
