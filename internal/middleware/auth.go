package middleware

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/auth"
	"github.com/labstack/echo/v4"
	"github.com/shinyyama/sensor-market/internal/reqctx"
)

const (
	AuthModeFirebase = "firebase"
	AuthModeHeader   = "header"

	// HeaderUID carries the caller identity when AUTH_MODE=header.
	HeaderUID = "X-User-UID"
)

// Authenticator guards routes and puts the caller's uid on the echo context
// under "uid".
type Authenticator interface {
	RequireAuth(next echo.HandlerFunc) echo.HandlerFunc
}

// NewAuthenticator returns the authenticator for mode.
func NewAuthenticator(ctx context.Context, mode, projectID string) (Authenticator, error) {
	switch mode {
	case AuthModeFirebase, "":
		return NewAuthMiddleware(ctx, projectID)
	case AuthModeHeader:
		return HeaderAuth{}, nil
	}
	return nil, fmt.Errorf("unknown auth mode %q", mode)
}

type AuthMiddleware struct {
	authClient *auth.Client
}

func NewAuthMiddleware(ctx context.Context, projectID string) (*AuthMiddleware, error) {
	if projectID == "" {
		return nil, errors.New("FIREBASE_PROJECT_ID is not set")
	}
	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: projectID})
	if err != nil {
		return nil, err
	}
	client, err := app.Auth(ctx)
	if err != nil {
		return nil, err
	}
	return &AuthMiddleware{authClient: client}, nil
}

func (m *AuthMiddleware) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		authz := c.Request().Header.Get("Authorization")
		if authz == "" || !strings.HasPrefix(authz, "Bearer ") {
			return c.JSON(http.StatusUnauthorized, unauthorized("unauthorized", "missing bearer token"))
		}
		tokenStr := strings.TrimPrefix(authz, "Bearer ")
		token, err := m.authClient.VerifyIDToken(c.Request().Context(), tokenStr)
		if err != nil {
			return c.JSON(http.StatusUnauthorized, unauthorized("invalid_token", "id token could not be verified"))
		}
		setUID(c, token.UID)
		return next(c)
	}
}

// HeaderAuth trusts the X-User-UID header. It is meant for local runs and
// tests behind a trusted proxy.
type HeaderAuth struct{}

func (HeaderAuth) RequireAuth(next echo.HandlerFunc) echo.HandlerFunc {
	return func(c echo.Context) error {
		uid := strings.TrimSpace(c.Request().Header.Get(HeaderUID))
		if uid == "" {
			return c.JSON(http.StatusUnauthorized, unauthorized("unauthorized", "missing "+HeaderUID))
		}
		setUID(c, uid)
		return next(c)
	}
}

func setUID(c echo.Context, uid string) {
	c.Set("uid", uid)
	req := c.Request()
	c.SetRequest(req.WithContext(reqctx.WithActor(req.Context(), uid)))
}

func unauthorized(code, message string) map[string]map[string]string {
	return map[string]map[string]string{"error": {"code": code, "message": message}}
}
