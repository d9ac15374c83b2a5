package jwtware

import (
	"context"
	"errors"
	"io"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubClaims struct {
	subject string
	admin   bool
}

func (s stubClaims) Subject() string { return s.subject }
func (s stubClaims) UserID() string  { return s.subject }
func (s stubClaims) IsAdmin() bool   { return s.admin }

// stubValidator accepts exactly one raw token value.
type stubValidator struct {
	accept string
	claims stubClaims
}

func (v stubValidator) Validate(raw string) (AuthClaims, error) {
	if raw != v.accept {
		return nil, errors.New("token is malformed")
	}
	return v.claims, nil
}

func newMiddlewareApp(cfg Config) *fiber.App {
	app := fiber.New()
	app.Get("/private", New(cfg), func(c *fiber.Ctx) error {
		claims, ok := c.Locals(cfg.ContextKey).(AuthClaims)
		if !ok {
			return c.SendStatus(fiber.StatusInternalServerError)
		}
		return c.SendString(claims.UserID())
	})
	return app
}

func baseConfig() Config {
	return Config{
		SigningKey:     SigningKey{Key: []byte("irrelevant"), JWTAlg: "HS256"},
		ContextKey:     "claims",
		TokenValidator: stubValidator{accept: "good-token", claims: stubClaims{subject: "user-1"}},
	}
}

func TestMiddlewareAcceptsHeaderToken(t *testing.T) {
	app := newMiddlewareApp(baseConfig())

	req := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "user-1", string(body))
}

func TestMiddlewareMissingTokenIsBadRequest(t *testing.T) {
	app := newMiddlewareApp(baseConfig())

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/private", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, ErrJWTMissingOrMalformed.Error(), string(body))
}

func TestMiddlewareInvalidTokenIsUnauthorized(t *testing.T) {
	app := newMiddlewareApp(baseConfig())

	req := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer forged-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "Invalid or expired token", string(body))
}

func TestMiddlewareCookieAndQueryExtractors(t *testing.T) {
	cfg := baseConfig()
	cfg.TokenLookup = "cookie:session,query:auth_token"
	app := newMiddlewareApp(cfg)

	withCookie := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	withCookie.Header.Set(fiber.HeaderCookie, "session=good-token")

	resp, err := app.Test(withCookie)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/private?auth_token=good-token", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareRequireAdmin(t *testing.T) {
	cfg := baseConfig()
	cfg.RequireAdmin = true

	var captured error
	cfg.ErrorHandler = func(c *fiber.Ctx, err error) error {
		captured = err
		return c.SendStatus(fiber.StatusForbidden)
	}

	app := newMiddlewareApp(cfg)

	req := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusForbidden, resp.StatusCode)
	require.Error(t, captured)
	assert.Equal(t, "access denied: admin capability required", captured.Error())

	// With the capability on the claims the same request passes.
	cfg.TokenValidator = stubValidator{accept: "good-token", claims: stubClaims{subject: "root-1", admin: true}}
	app = newMiddlewareApp(cfg)

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareFilterSkipsAuth(t *testing.T) {
	cfg := baseConfig()
	cfg.Filter = func(c *fiber.Ctx) bool { return true }

	app := fiber.New()
	app.Get("/open", New(cfg), func(c *fiber.Ctx) error {
		return c.SendStatus(fiber.StatusOK)
	})

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/open", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
}

func TestMiddlewareContextEnricher(t *testing.T) {
	type enrichedKey struct{}

	cfg := baseConfig()
	cfg.ContextEnricher = func(ctx context.Context, claims AuthClaims) context.Context {
		return context.WithValue(ctx, enrichedKey{}, claims.UserID())
	}

	app := fiber.New()
	app.Get("/private", New(cfg), func(c *fiber.Ctx) error {
		val, _ := c.UserContext().Value(enrichedKey{}).(string)
		return c.SendString(val)
	})

	req := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "user-1", string(body))
}

func TestMiddlewareValidationListeners(t *testing.T) {
	cfg := baseConfig()

	var seen []string
	cfg.ValidationListeners = []ValidationListener{
		nil,
		func(c *fiber.Ctx, claims AuthClaims) error {
			seen = append(seen, claims.UserID())
			return nil
		},
	}

	app := newMiddlewareApp(cfg)

	req := httptest.NewRequest(fiber.MethodGet, "/private", nil)
	req.Header.Set(fiber.HeaderAuthorization, "Bearer good-token")

	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Equal(t, []string{"user-1"}, seen)

	// A failing listener blocks the request.
	cfg.ValidationListeners = []ValidationListener{
		func(c *fiber.Ctx, claims AuthClaims) error {
			return errors.New("listener rejected")
		},
	}
	app = newMiddlewareApp(cfg)

	resp, err = app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUnauthorized, resp.StatusCode)
}

func TestGetExtractorsParsesLookupString(t *testing.T) {
	extractors := GetExtractors("header:Authorization, cookie:session, query:auth_token, param:token")
	assert.Len(t, extractors, 4)

	extractors = GetExtractors("cookie:session")
	assert.Len(t, extractors, 1)
}
