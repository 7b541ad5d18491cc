package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"

	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

// SessionCookie is the name of the cookie set by the session login.
const SessionCookie = "session"

const actorKey = "actor"

// TokenVerifier checks Firebase credentials. *auth.Client satisfies it.
type TokenVerifier interface {
	VerifyIDToken(ctx context.Context, idToken string) (*auth.Token, error)
	VerifySessionCookie(ctx context.Context, cookie string) (*auth.Token, error)
}

// UserLoader returns the stored profile for a verified uid, creating it on
// first sign-in.
type UserLoader interface {
	EnsureUser(ctx context.Context, userID, displayName, email string) (*models.User, error)
}

// RequireAuth accepts a Bearer ID token or a session cookie and stores the
// caller's Actor in the context.
func RequireAuth(verifier TokenVerifier, users UserLoader, now func() time.Time) echo.MiddlewareFunc {
	if now == nil {
		now = time.Now
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if verifier == nil {
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "Authentication not configured",
				})
			}

			ctx := c.Request().Context()
			token, err := verify(ctx, c, verifier)
			if err != nil {
				return c.JSON(http.StatusUnauthorized, map[string]string{
					"error": err.Error(),
				})
			}

			email, _ := token.Claims["email"].(string)
			name, _ := token.Claims["name"].(string)
			user, err := users.EnsureUser(ctx, token.UID, name, email)
			if err != nil {
				slog.Error("failed to load user profile", "uid", token.UID, "error", err)
				return c.JSON(http.StatusInternalServerError, map[string]string{
					"error": "Failed to load user profile",
				})
			}

			c.Set(actorKey, models.ActorFromUser(user, now()))
			return next(c)
		}
	}
}

type authError string

func (e authError) Error() string { return string(e) }

func verify(ctx context.Context, c echo.Context, verifier TokenVerifier) (*auth.Token, error) {
	if header := c.Request().Header.Get(echo.HeaderAuthorization); header != "" {
		idToken, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || idToken == "" {
			return nil, authError("Invalid authorization format")
		}
		token, err := verifier.VerifyIDToken(ctx, idToken)
		if err != nil {
			return nil, authError("Invalid token")
		}
		return token, nil
	}

	cookie, err := c.Cookie(SessionCookie)
	if err != nil || cookie.Value == "" {
		return nil, authError("Missing authorization header")
	}
	token, err := verifier.VerifySessionCookie(ctx, cookie.Value)
	if err != nil {
		c.SetCookie(ClearSessionCookie())
		return nil, authError("Session expired")
	}
	return token, nil
}

// ClearSessionCookie expires the session cookie.
func ClearSessionCookie() *http.Cookie {
	return &http.Cookie{
		Name:     SessionCookie,
		Value:    "",
		MaxAge:   -1,
		HttpOnly: true,
		Path:     "/",
	}
}

// RequireAdmin rejects non-admin callers. It must run after RequireAuth.
func RequireAdmin(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		actor, ok := ActorFrom(c)
		if !ok || !actor.IsAdmin {
			return c.JSON(http.StatusForbidden, map[string]string{
				"error": "Admin access required",
			})
		}
		return next(c)
	}
}

// ActorFrom returns the authenticated caller.
func ActorFrom(c echo.Context) (models.Actor, bool) {
	actor, ok := c.Get(actorKey).(models.Actor)
	return actor, ok
}
