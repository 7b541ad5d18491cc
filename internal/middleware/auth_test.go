package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/admxx9/pecc-studii-sub000/internal/models"
)

type fakeVerifier struct {
	tokens map[string]*auth.Token
}

func (f *fakeVerifier) VerifyIDToken(_ context.Context, idToken string) (*auth.Token, error) {
	if t, ok := f.tokens[idToken]; ok {
		return t, nil
	}
	return nil, errors.New("bad token")
}

func (f *fakeVerifier) VerifySessionCookie(_ context.Context, cookie string) (*auth.Token, error) {
	return f.VerifyIDToken(context.Background(), "cookie:"+cookie)
}

type fakeUsers struct {
	users map[string]*models.User
	err   error
}

func (f *fakeUsers) EnsureUser(_ context.Context, uid, name, email string) (*models.User, error) {
	if f.err != nil {
		return nil, f.err
	}
	if u, ok := f.users[uid]; ok {
		return u, nil
	}
	return &models.User{ID: uid, DisplayName: name, Email: email}, nil
}

var authNow = time.Date(2026, 4, 10, 12, 0, 0, 0, time.UTC)

func newAuthTestServer(users *fakeUsers) *echo.Echo {
	expired := authNow.Add(-time.Hour)
	verifier := &fakeVerifier{tokens: map[string]*auth.Token{
		"good":          {UID: "U1", Claims: map[string]interface{}{"email": "u1@example.com", "name": "Ana"}},
		"admin":         {UID: "A1"},
		"expired":       {UID: "U2"},
		"cookie:sess-1": {UID: "U1"},
	}}
	if users.users == nil {
		users.users = map[string]*models.User{}
	}
	users.users["A1"] = &models.User{ID: "A1", IsAdmin: true}
	users.users["U2"] = &models.User{ID: "U2", PremiumPlanType: models.PlanPro, PremiumExpiryDate: &expired}

	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler
	g := e.Group("", RequireAuth(verifier, users, func() time.Time { return authNow }))
	g.GET("/me", func(c echo.Context) error {
		actor, _ := ActorFrom(c)
		return c.JSON(http.StatusOK, map[string]any{"uid": actor.UserID, "plan": actor.Plan, "admin": actor.IsAdmin, "name": actor.Name})
	})
	g.GET("/admin", func(c echo.Context) error { return c.NoContent(http.StatusNoContent) }, RequireAdmin)
	return e
}

func TestRequireAuth(t *testing.T) {
	e := newAuthTestServer(&fakeUsers{})

	tests := []struct {
		name   string
		header string
		cookie string
		path   string
		status int
		body   string
	}{
		{name: "no credentials", path: "/me", status: http.StatusUnauthorized, body: "Missing authorization header"},
		{name: "wrong scheme", header: "Basic abc", path: "/me", status: http.StatusUnauthorized, body: "Invalid authorization format"},
		{name: "unknown token", header: "Bearer nope", path: "/me", status: http.StatusUnauthorized, body: "Invalid token"},
		{name: "id token", header: "Bearer good", path: "/me", status: http.StatusOK, body: `"name":"Ana"`},
		{name: "session cookie", cookie: "sess-1", path: "/me", status: http.StatusOK, body: `"uid":"U1"`},
		{name: "bad session cookie", cookie: "stale", path: "/me", status: http.StatusUnauthorized, body: "Session expired"},
		{name: "expired plan is none", header: "Bearer expired", path: "/me", status: http.StatusOK, body: `"plan":"none"`},
		{name: "non admin on admin route", header: "Bearer good", path: "/admin", status: http.StatusForbidden, body: "Admin access required"},
		{name: "admin route", header: "Bearer admin", path: "/admin", status: http.StatusNoContent},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			if tt.header != "" {
				req.Header.Set(echo.HeaderAuthorization, tt.header)
			}
			if tt.cookie != "" {
				req.AddCookie(&http.Cookie{Name: SessionCookie, Value: tt.cookie})
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, tt.status, rec.Code)
			if tt.body != "" {
				assert.Contains(t, rec.Body.String(), tt.body)
			}
		})
	}
}

func TestRequireAuth_ProfileFailure(t *testing.T) {
	e := newAuthTestServer(&fakeUsers{err: errors.New("store down")})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer good")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Contains(t, rec.Body.String(), "Failed to load user profile")
}

func TestJSONErrorHandler(t *testing.T) {
	e := echo.New()
	e.HTTPErrorHandler = JSONErrorHandler
	e.GET("/boom", func(c echo.Context) error { return errors.New("kaput") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Not Found"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "kaput")
}
