package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

type Auther struct {
	provider        IdentityProvider
	profiles        ProfileStore
	signingKey      []byte
	tokenExpiration int
	issuer          string
	audience        []string
	logger          Logger
	tokenService    TokenService
	tokenValidator  TokenValidator
	activitySink    ActivitySink
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Authenticator
func NewAuthenticator(provider IdentityProvider, profiles ProfileStore, opts Config) *Auther {
	tokenService := NewTokenService(
		[]byte(opts.GetSigningKey()),
		opts.GetTokenExpiration(),
		opts.GetIssuer(),
		opts.GetAudience(),
		defLogger{},
	)

	return &Auther{
		provider:        provider,
		profiles:        profiles,
		signingKey:      []byte(opts.GetSigningKey()),
		tokenExpiration: opts.GetTokenExpiration(),
		audience:        opts.GetAudience(),
		issuer:          opts.GetIssuer(),
		logger:          defLogger{},
		tokenService:    tokenService,
		activitySink:    noopActivitySink{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	s.logger = logger
	// Update the TokenService logger as well
	s.tokenService = NewTokenService(
		s.signingKey,
		s.tokenExpiration,
		s.issuer,
		s.audience,
		logger,
	)
	return s
}

// WithActivitySink configures an ActivitySink for emitting auth events.
func (s *Auther) WithActivitySink(sink ActivitySink) *Auther {
	s.activitySink = normalizeActivitySink(sink)
	return s
}

// WithTokenValidator sets a custom token validator for externally issued tokens.
func (s *Auther) WithTokenValidator(validator TokenValidator) *Auther {
	s.tokenValidator = validator
	return s
}

// TokenService returns the TokenService instance used by this Authenticator
func (s *Auther) TokenService() TokenService {
	return s.tokenService
}

// Login verifies credentials and resolves where the session may go next. A
// signed-in account that is not in the access-granted status still gets a
// token, its dashboard list is simply empty and the caller shows the status
// screen instead. An identity with no profile document is a hard failure.
func (s *Auther) Login(ctx context.Context, identifier, password string) (*LoginResult, error) {
	identity, err := s.provider.VerifyIdentity(ctx, identifier, password)
	if err != nil {
		s.logger.Error("login verify identity error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, ActorRef{Type: "unknown"}, "", map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	profile, err := s.profiles.GetProfile(ctx, identity.ID)
	if err != nil {
		s.logger.Error("login profile lookup error: %v", err)
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		if goerrors.IsNotFound(err) || repository.IsRecordNotFound(err) {
			// Credentials without account data: the session must not
			// continue, the owner has to contact support.
			return nil, ErrProfileNotFound
		}
		return nil, err
	}

	token, err := s.tokenService.Generate(profile, identity.Admin)
	if err != nil {
		s.emitAuthEvent(ctx, ActivityEventLoginFailure, s.actorFromIdentity(identity), identity.ID.String(), map[string]any{
			"identifier": identifier,
			"error":      err.Error(),
		})
		return nil, err
	}

	result := &LoginResult{
		Token:         token,
		Profile:       profile,
		EmailVerified: identity.EmailVerified,
	}

	if profile.Status == StatusAccessGranted {
		result.Dashboards = ReachableDashboards(profile.Role, identity.Admin)
		result.NeedsChoice = len(result.Dashboards) > 1
	}

	s.emitAuthEvent(ctx, ActivityEventLoginSuccess, s.actorFromIdentity(identity), identity.ID.String(), map[string]any{
		"identifier": identifier,
		"status":     string(profile.Status),
	})

	return result, nil
}

func (s *Auther) SessionFromToken(raw string) (Session, error) {
	validator := s.tokenValidator
	if validator == nil {
		validator = s.tokenService
	}

	claims, err := validator.Validate(raw)
	if err != nil {
		s.logger.Error("session from token validation failed: %v", err)
		return nil, err
	}

	session, err := sessionFromAuthClaims(claims)
	if err != nil {
		s.logger.Error("session from token failed to map claims: %v", err)
		return nil, err
	}

	return session, nil
}

// CurrentSessionClaims extracts the capability view from a session.
func (s *Auther) CurrentSessionClaims(session Session) SessionClaims {
	so, ok := session.(*SessionObject)
	if !ok || so == nil {
		return SessionClaims{}
	}

	return SessionClaims{
		Admin: so.IsAdmin(),
		Role:  so.Role(),
	}
}

// ProfileFromSession re-reads the account document for a validated session.
func (s *Auther) ProfileFromSession(ctx context.Context, session Session) (*Profile, error) {
	id, err := session.GetUserUUID()
	if err != nil {
		return nil, ErrUnableToMapClaims
	}

	profile, err := s.profiles.GetProfile(ctx, id)
	if err != nil {
		s.logger.Error("profile from session lookup error: %v", err)
		return nil, err
	}

	return profile, nil
}

func (s *Auther) emitAuthEvent(ctx context.Context, eventType ActivityEventType, actor ActorRef, accountID string, metadata map[string]any) {
	sink := normalizeActivitySink(s.activitySink)
	event := ActivityEvent{
		EventType: eventType,
		Actor:     actor,
		AccountID: accountID,
		Metadata:  metadata,
	}

	if event.Metadata == nil {
		event.Metadata = map[string]any{}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = time.Now()
	}

	if err := sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity sink record error: %v", err)
	}
}

func (s *Auther) actorFromIdentity(identity *Identity) ActorRef {
	if identity == nil {
		return ActorRef{Type: "unknown"}
	}

	return ActorRef{
		ID:   identity.ID.String(),
		Type: "user",
	}
}
