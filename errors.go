package accounts

import (
	"context"
	"errors"
	"strings"

	goerrors "github.com/goliatone/go-errors"
)

// Text codes for the error taxonomy. Every store or provider failure is
// translated to one of these before it reaches the presentation layer.
const (
	TextCodeEmailInUse           = "EMAIL_IN_USE"
	TextCodeInvalidEmail         = "INVALID_EMAIL"
	TextCodeWeakPassword         = "WEAK_PASSWORD"
	TextCodeInvalidCredentials   = "INVALID_CREDENTIALS"
	TextCodeAccountDisabled      = "ACCOUNT_DISABLED"
	TextCodeInvalidOrExpiredCode = "INVALID_OR_EXPIRED_CODE"
	TextCodeProfileNotFound      = "PROFILE_NOT_FOUND"
	TextCodePermissionDenied     = "PERMISSION_DENIED"
	TextCodeConflict             = "STALE_VERSION"
	TextCodeTimeout              = "TIMEOUT"
	TextCodeInvalidRole          = "INVALID_ROLE"
	TextCodeTokenExpired         = "TOKEN_EXPIRED"
	TextCodeTokenMalformed       = "TOKEN_MALFORMED"
)

// ErrIdentityNotFound is the error we return for non found identities
var ErrIdentityNotFound = errors.New("identity not found")

// ErrMismatchedHashAndPassword is returned for any credential mismatch; we
// never distinguish unknown email from wrong password.
var ErrMismatchedHashAndPassword = errors.New("invalid email or password")

// ErrNoEmptyString guards hashing empty passwords
var ErrNoEmptyString = errors.New("password must not be empty")

// ErrTooManyLoginAttempts is returned while the cooldown window is active
var ErrTooManyLoginAttempts = errors.New("too many login attempts, try again later")

// ErrUnableToFindSession is the error when our request has no cookie
var ErrUnableToFindSession = errors.New("unable to find session")

// ErrUnableToDecodeSession unable to decode JWT from session cookie
var ErrUnableToDecodeSession = errors.New("unable to decode session")

// ErrUnableToMapClaims unable to get claims from token
var ErrUnableToMapClaims = errors.New("unable to map claims")

// ErrUnableToParseData unable to build a session from claims
var ErrUnableToParseData = errors.New("unable to parse data")

// ErrTokenExpired is the sentinel for tokens past their expiry
var ErrTokenExpired = goerrors.New("token is expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrTokenMalformed is the sentinel for structurally invalid tokens
var ErrTokenMalformed = goerrors.New("token is malformed", goerrors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailInUse is returned when a signup collides with an existing identity.
var ErrEmailInUse = goerrors.New("email already in use", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailInUse).
	WithCode(goerrors.CodeConflict)

// ErrStaleVersion is returned when a commit loses an optimistic concurrency
// race: the profile changed between propose and commit.
var ErrStaleVersion = goerrors.New("record was modified by another session", goerrors.CategoryConflict).
	WithTextCode(TextCodeConflict).
	WithCode(goerrors.CodeConflict)

// ErrInvalidOrExpiredCode covers expired, consumed, and unknown action codes
// alike so the caller cannot probe which one it was.
var ErrInvalidOrExpiredCode = goerrors.New("the link is invalid, expired, or has already been used", goerrors.CategoryValidation).
	WithTextCode(TextCodeInvalidOrExpiredCode)

// ErrAccountDisabled is returned when the identity record is disabled.
var ErrAccountDisabled = goerrors.New("this account has been disabled", goerrors.CategoryAuth).
	WithTextCode(TextCodeAccountDisabled).
	WithCode(goerrors.CodeForbidden)

// ErrProfileNotFound marks the fatal inconsistency of an authenticated
// identity without a profile document; callers must terminate the session.
var ErrProfileNotFound = goerrors.New("account data not found, please contact support", goerrors.CategoryNotFound).
	WithTextCode(TextCodeProfileNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrAccountNotActive rejects dashboard and moderation access for a token
// whose account has since left the access-granted status.
var ErrAccountNotActive = goerrors.New("account is not in an active status", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// userMessages is the fixed table of user-facing texts keyed by text code.
// Anything without an entry falls back to a generic message so internal
// details never leak to the presentation layer.
var userMessages = map[string]string{
	TextCodeEmailInUse:           "Email already in use.",
	TextCodeInvalidEmail:         "Invalid email format.",
	TextCodeWeakPassword:         "Password is too weak.",
	TextCodeInvalidCredentials:   "Invalid email or password.",
	TextCodeAccountDisabled:      "Your account has been disabled.",
	TextCodeInvalidOrExpiredCode: "The link is invalid or has already been used. Please request a new link.",
	TextCodeProfileNotFound:      "User data not found. Please contact support.",
	TextCodePermissionDenied:     "Permission denied. Ensure your account has the necessary access.",
	TextCodeConflict:             "This record was changed by someone else. Refresh and try again.",
	TextCodeTimeout:              "The request timed out. Please try again.",
}

// UserMessage resolves the user-facing text for an error. Validation errors
// keep their own composite message; everything else goes through the table.
func UserMessage(err error) string {
	if err == nil {
		return ""
	}

	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		// Validation errors compose their own user-facing text, e.g. the
		// password policy message that names every unmet rule.
		if rich.Category == goerrors.CategoryValidation {
			return rich.Error()
		}
		if msg, ok := userMessages[rich.TextCode]; ok {
			return msg
		}
	}

	switch {
	case errors.Is(err, ErrMismatchedHashAndPassword):
		return userMessages[TextCodeInvalidCredentials]
	case errors.Is(err, ErrIdentityNotFound):
		return userMessages[TextCodeInvalidCredentials]
	case errors.Is(err, ErrTooManyLoginAttempts):
		return "Too many login attempts. Please wait before trying again."
	}

	return "Something went wrong. Please try again."
}

// MapDeadline converts context deadline failures into the Timeout error kind
// so hung store calls surface as a distinct, user-facing condition.
func MapDeadline(err error, msg string) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return goerrors.Wrap(err, goerrors.CategoryOperation, msg).
			WithTextCode(TextCodeTimeout)
	}
	return err
}

// IsTimeout will check for the mapped Timeout error kind
func IsTimeout(err error) bool {
	var rich *goerrors.Error
	if goerrors.As(err, &rich) {
		return rich.TextCode == TextCodeTimeout
	}
	return errors.Is(err, context.DeadlineExceeded)
}

// IsTokenExpiredError will check for expired tokens
func IsTokenExpiredError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is expired")
}

// IsMalformedError will check for error message
func IsMalformedError(err error) bool {
	if err == nil {
		return false
	}
	return strings.Contains(err.Error(), "token is malformed") ||
		strings.Contains(err.Error(), "missing or malformed JWT")
}
