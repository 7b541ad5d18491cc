package handlers

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/middleware"
	"github.com/admxx9/pecc-studii-sub000/internal/services"
)

const sessionLifetime = 5 * 24 * time.Hour

// SessionIssuer exchanges an ID token for a session cookie. *auth.Client
// satisfies it.
type SessionIssuer interface {
	SessionCookie(ctx context.Context, idToken string, expiresIn time.Duration) (string, error)
}

// AuthHandler handles session login and the signed-in profile.
type AuthHandler struct {
	sessions     SessionIssuer
	users        *services.UserService
	secureCookie bool
	now          func() time.Time
}

func NewAuthHandler(sessions SessionIssuer, users *services.UserService, secureCookie bool) *AuthHandler {
	return &AuthHandler{sessions: sessions, users: users, secureCookie: secureCookie, now: time.Now}
}

// HandleLogin turns a Firebase ID token into an HTTP-only session cookie.
func (h *AuthHandler) HandleLogin(c echo.Context) error {
	if h.sessions == nil {
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"error": "Firebase not initialized",
		})
	}

	authHeader := c.Request().Header.Get(echo.HeaderAuthorization)
	if authHeader == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Missing authorization header",
		})
	}
	idToken, ok := strings.CutPrefix(authHeader, "Bearer ")
	if !ok || idToken == "" {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid authorization format",
		})
	}

	cookieValue, err := h.sessions.SessionCookie(c.Request().Context(), idToken, sessionLifetime)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, map[string]string{
			"error": "Invalid token",
		})
	}

	c.SetCookie(&http.Cookie{
		Name:     middleware.SessionCookie,
		Value:    cookieValue,
		MaxAge:   int(sessionLifetime.Seconds()),
		HttpOnly: true,
		Secure:   h.secureCookie,
		Path:     "/",
		SameSite: http.SameSiteLaxMode,
	})

	return c.JSON(http.StatusOK, map[string]string{
		"status": "success",
	})
}

// HandleLogout clears the session cookie.
func (h *AuthHandler) HandleLogout(c echo.Context) error {
	c.SetCookie(middleware.ClearSessionCookie())
	return c.JSON(http.StatusOK, map[string]string{
		"status": "logged out",
	})
}

// Me returns the caller's profile.
func (h *AuthHandler) Me(c echo.Context) error {
	actor, _ := middleware.ActorFrom(c)
	user, err := h.users.GetUser(c.Request().Context(), actor.UserID)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, userView(user, h.now()))
}
