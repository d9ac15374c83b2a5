package accounts

import (
	"context"
	"net/http"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"

	"github.com/sharearide/go-accounts/middleware/jwtware"
)

// RejectedRouteCookie remembers the path a signed-out visitor was denied so
// a later login can send them back.
const RejectedRouteCookie = "rejected_route"

// RouteAuthenticator wires the Authenticator into the fiber transport:
// cookie issuance on login, token middleware on protected routes.
type RouteAuthenticator struct {
	auth                   *Auther
	cfg                    Config
	cookieDuration         time.Duration
	extendedCookieDuration time.Duration
	Logger                 Logger
	AuthErrorHandler       fiber.ErrorHandler
	ErrorHandler           fiber.ErrorHandler
}

func NewHTTPAuthenticator(auther *Auther, cfg Config) (*RouteAuthenticator, error) {
	cookieDuration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		cookieDuration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	extendedCookieDuration := cookieDuration
	if cfg.GetExtendedTokenDuration() > 0 {
		extendedCookieDuration = time.Duration(cfg.GetExtendedTokenDuration()) * time.Hour
	}

	a := &RouteAuthenticator{
		cfg:                    cfg,
		auth:                   auther,
		Logger:                 defLogger{},
		cookieDuration:         cookieDuration,
		extendedCookieDuration: extendedCookieDuration,
	}

	a.ErrorHandler = a.defaultErrHandler
	a.AuthErrorHandler = a.defaultAuthErrHandler

	return a, nil
}

func (a *RouteAuthenticator) WithLogger(logger Logger) *RouteAuthenticator {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

func (a RouteAuthenticator) GetCookieDuration() time.Duration {
	return a.cookieDuration
}

func (a RouteAuthenticator) GetExtendedCookieDuration() time.Duration {
	return a.extendedCookieDuration
}

// tokenValidatorShim bridges the TokenService into the middleware's
// validator contract without an import cycle.
type tokenValidatorShim struct {
	service TokenService
}

func (s tokenValidatorShim) Validate(raw string) (jwtware.AuthClaims, error) {
	claims, err := s.service.Validate(raw)
	if err != nil {
		return nil, err
	}
	return claims, nil
}

// ProtectedRoute requires a valid session token. Claims land in fiber
// locals under the configured context key and in the request context.
func (a *RouteAuthenticator) ProtectedRoute(cfg Config, errorHandler fiber.ErrorHandler) fiber.Handler {
	return jwtware.New(jwtware.Config{
		ErrorHandler: errorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    []byte(cfg.GetSigningKey()),
			JWTAlg: cfg.GetSigningMethod(),
		},
		AuthScheme:      cfg.GetAuthScheme(),
		ContextKey:      cfg.GetContextKey(),
		TokenLookup:     cfg.GetTokenLookup(),
		TokenValidator:  tokenValidatorShim{service: a.auth.TokenService()},
		ContextEnricher: a.enrichContext,
	})
}

// AdminRoute additionally requires the signed admin claim.
func (a *RouteAuthenticator) AdminRoute(cfg Config, errorHandler fiber.ErrorHandler) fiber.Handler {
	return jwtware.New(jwtware.Config{
		ErrorHandler: errorHandler,
		SigningKey: jwtware.SigningKey{
			Key:    []byte(cfg.GetSigningKey()),
			JWTAlg: cfg.GetSigningMethod(),
		},
		AuthScheme:      cfg.GetAuthScheme(),
		ContextKey:      cfg.GetContextKey(),
		TokenLookup:     cfg.GetTokenLookup(),
		TokenValidator:  tokenValidatorShim{service: a.auth.TokenService()},
		ContextEnricher: a.enrichContext,
		RequireAdmin:    true,
	})
}

func (a *RouteAuthenticator) enrichContext(c context.Context, claims jwtware.AuthClaims) context.Context {
	authClaims, ok := claims.(AuthClaims)
	if !ok {
		return c
	}
	return WithClaimsContext(c, authClaims)
}

// Login authenticates the payload and sets the session cookie. The result
// carries the dashboard routing decision for the caller to act on.
func (a *RouteAuthenticator) Login(c *fiber.Ctx, payload LoginPayload) (*LoginResult, error) {
	result, err := a.auth.Login(c.UserContext(), payload.GetIdentifier(), payload.GetPassword())
	if err != nil {
		a.Logger.Error("Login error: %s", err)
		return nil, err
	}

	duration := a.cookieDuration
	if payload.GetExtendedSession() {
		duration = a.extendedCookieDuration
	}

	a.setCookieToken(c, result.Token, duration)
	return result, nil
}

func (a *RouteAuthenticator) Logout(c *fiber.Ctx) {
	a.cookieDel(c, a.cfg.GetContextKey())
}

func (a *RouteAuthenticator) MakeClientRouteAuthErrorHandler(optional bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		var richErr *errors.Error

		if IsTokenExpiredError(err) {
			richErr = ErrTokenExpired
		} else if IsMalformedError(err) {
			richErr = ErrTokenMalformed
		} else {
			richErr = errors.Wrap(err, errors.CategoryAuth, "Invalid authentication token").
				WithCode(errors.CodeUnauthorized)
		}

		if optional {
			a.Logger.Info("Optional auth failed, proceeding", "error", richErr.Message)
			return c.Next()
		}

		return a.ErrorHandler(c, richErr)
	}
}

// GetRedirect returns the remembered rejected route, clearing it, or the
// given default.
func (a *RouteAuthenticator) GetRedirect(c *fiber.Ctx, def string) string {
	r := c.Cookies(RejectedRouteCookie)
	if r == "" {
		return def
	}
	a.cookieDel(c, RejectedRouteCookie)
	return r
}

func (a *RouteAuthenticator) SetRedirect(c *fiber.Ctx) {
	a.Logger.Info("Setting redirect cookie", "key", RejectedRouteCookie, "path", c.OriginalURL())

	c.Cookie(&fiber.Cookie{
		Name:     RejectedRouteCookie,
		Value:    c.OriginalURL(),
		Expires:  time.Now().Add(time.Minute * 5),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) setCookieToken(c *fiber.Ctx, val string, duration time.Duration) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetContextKey(),
		Value:    val,
		Expires:  time.Now().Add(duration),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) cookieDel(c *fiber.Ctx, name string) {
	c.Cookie(&fiber.Cookie{
		Name:     name,
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		HTTPOnly: true,
		Secure:   true,
		SameSite: "Lax",
	})
}

func (a *RouteAuthenticator) defaultAuthErrHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryAuth, "An unexpected authentication error").
			WithCode(errors.CodeUnauthorized)
	}

	a.Logger.Info(
		"Authentication error, redirecting to login",
		"error", richErr.Message,
		"text_code", richErr.TextCode,
		"path", c.OriginalURL(),
	)

	a.SetRedirect(c)

	statusCode := http.StatusSeeOther
	if c.Method() == fiber.MethodGet {
		statusCode = http.StatusFound
	}
	return c.Redirect("/login", statusCode)
}

func (a *RouteAuthenticator) defaultErrHandler(c *fiber.Ctx, err error) error {
	var richErr *errors.Error
	if !errors.As(err, &richErr) {
		richErr = errors.Wrap(err, errors.CategoryInternal, "An unexpected server error occurred").
			WithCode(errors.CodeInternal)
	}

	a.Logger.Info(
		"Middleware error handler",
		"error", richErr.Message,
		"category", richErr.Category,
		"details", print.MaybePrettyJSON(richErr.Metadata),
	)

	switch richErr.Category {
	case errors.CategoryAuth, errors.CategoryAuthz:
		return a.AuthErrorHandler(c, richErr)
	default:
		return c.Status(richErr.Code).JSON(fiber.Map{
			"error":   UserMessage(richErr),
			"code":    richErr.TextCode,
			"message": richErr.Message,
		})
	}
}
