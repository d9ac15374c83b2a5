package accounts

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

type Logger interface {
	Debug(format string, args ...any)
	Info(format string, args ...any)
	Warn(format string, args ...any)
	Error(format string, args ...any)
}

// Session holds attributes that are part of an auth session
type Session interface {
	GetUserID() string
	GetUserUUID() (uuid.UUID, error)
	GetAudience() []string
	GetIssuer() string
	GetIssuedAt() *time.Time
	GetData() map[string]any
}

// SessionClaims is the capability view of a session token: the admin flag is
// a signed claim, never a profile field.
type SessionClaims struct {
	Admin bool
	Role  AccountRole
}

// Authenticator holds methods to deal with authentication
type Authenticator interface {
	Login(ctx context.Context, identifier, password string) (*LoginResult, error)
	SessionFromToken(token string) (Session, error)
	CurrentSessionClaims(session Session) SessionClaims
}

// LoginResult is the outcome of a successful login: the minted token plus
// the routing decision computed from role and admin claim.
type LoginResult struct {
	Token      string
	Profile    *Profile
	Dashboards []Dashboard
	// EmailVerified mirrors the identity flag so status guidance can tell
	// a not-yet-verified account from one that verified but has not
	// signed in to activate.
	EmailVerified bool
	// NeedsChoice is set when more than one dashboard is reachable; the
	// caller must resolve the ambiguity with an explicit selection.
	NeedsChoice bool
}

type LoginPayload interface {
	GetIdentifier() string
	GetPassword() string
	GetExtendedSession() bool
}

// Config holds auth options
type Config interface {
	GetSigningKey() string
	GetSigningMethod() string
	GetContextKey() string
	GetTokenExpiration() int
	GetExtendedTokenDuration() int
	GetTokenLookup() string
	GetAuthScheme() string
	GetIssuer() string
	GetAudience() []string
}

// Mailer delivers out-of-band codes. The default implementation only logs;
// production wiring supplies a real sender.
type Mailer interface {
	SendActionCode(ctx context.Context, email string, kind ActionCodeKind, code string) error
}

// MailerFunc adapts a function to the Mailer interface.
type MailerFunc func(ctx context.Context, email string, kind ActionCodeKind, code string) error

func (f MailerFunc) SendActionCode(ctx context.Context, email string, kind ActionCodeKind, code string) error {
	if f == nil {
		return nil
	}
	return f(ctx, email, kind, code)
}

type logMailer struct {
	logger Logger
}

func (m logMailer) SendActionCode(_ context.Context, email string, kind ActionCodeKind, code string) error {
	m.logger.Info("====== SENDING EMAIL NOTIFICATION =======")
	m.logger.Info("to: %s", email)
	m.logger.Info("link: /oob/%s/%s", kind, code)
	return nil
}

type defLogger struct{}

func (d defLogger) Error(format string, args ...any) {
	fmt.Printf("[ERR] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Warn(format string, args ...any) {
	fmt.Printf("[WRN] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Info(format string, args ...any) {
	fmt.Printf("[INF] ACCOUNTS "+newline(format), args...)
}

func (d defLogger) Debug(format string, args ...any) {
	fmt.Printf("[DBG] ACCOUNTS "+newline(format), args...)
}

func newline(s string) string {
	if len(s) > 0 && s[len(s)-1] != '\n' {
		s += "\n"
	}
	return s
}
