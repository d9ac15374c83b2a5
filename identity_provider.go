package accounts

import (
	"context"
	"database/sql"
	"strings"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// IdentityProvider is the credentials authority. It owns registration,
// password verification, and the out-of-band code flows. It knows nothing
// about profiles or lifecycle statuses.
type IdentityProvider interface {
	RegisterIdentity(ctx context.Context, email, password string) (*Identity, error)
	VerifyIdentity(ctx context.Context, email, password string) (*Identity, error)
	GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error)
	DeleteIdentity(ctx context.Context, id uuid.UUID) error

	SendVerificationEmail(ctx context.Context, identity *Identity) (*ActionCode, error)
	SendPasswordResetEmail(ctx context.Context, email string) error
	InspectActionCode(ctx context.Context, code uuid.UUID) (*ActionCode, error)
	ConsumeVerifyEmailCode(ctx context.Context, code uuid.UUID) (*Identity, error)
	ConsumeResetPasswordCode(ctx context.Context, code uuid.UUID, passwordHash string) (*Identity, error)
}

type identityService struct {
	repo   RepositoryManager
	mailer Mailer
	logger Logger
}

var _ IdentityProvider = (*identityService)(nil)

type IdentityServiceOption func(*identityService)

func WithIdentityServiceMailer(mailer Mailer) IdentityServiceOption {
	return func(s *identityService) {
		if mailer != nil {
			s.mailer = mailer
		}
	}
}

func WithIdentityServiceLogger(logger Logger) IdentityServiceOption {
	return func(s *identityService) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func NewIdentityService(repo RepositoryManager, opts ...IdentityServiceOption) IdentityProvider {
	s := &identityService{
		repo:   repo,
		logger: defLogger{},
	}
	s.mailer = logMailer{logger: s.logger}

	for _, opt := range opts {
		if opt != nil {
			opt(s)
		}
	}

	return s
}

// RegisterIdentity creates the credentials record. The caller validates the
// password policy first; here the password is only hashed and stored.
func (s *identityService) RegisterIdentity(ctx context.Context, email, password string) (*Identity, error) {
	if _, err := s.repo.Identities().GetByEmail(ctx, email); err == nil {
		return nil, ErrEmailInUse
	} else if !repository.IsRecordNotFound(err) {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to check email availability")
	}

	hash, err := HashPassword(password)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to hash password")
	}

	identity := &Identity{
		Email:        strings.TrimSpace(strings.ToLower(email)),
		PasswordHash: hash,
	}
	// Deterministic id derived from the email keeps identity and profile
	// keys stable across re-registrations in tests and fixtures.
	if id, err := hashid.NewUUID(identity.Email); err == nil {
		identity.ID = id
	}

	return s.repo.Identities().Register(ctx, identity)
}

// VerifyIdentity checks credentials. Unknown emails and wrong passwords are
// indistinguishable from the outside.
func (s *identityService) VerifyIdentity(ctx context.Context, email, password string) (*Identity, error) {
	identity, err := s.repo.Identities().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve identity during verification")
	}

	if identity.Disabled {
		return nil, ErrAccountDisabled
	}

	if identity.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*identity.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			identity.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if identity.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, identity.PasswordHash); err != nil {
		if err2 := s.repo.Identities().TrackAttemptedLogin(ctx, identity); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	if err := s.repo.Identities().TrackSuccessfulLogin(ctx, identity); err != nil {
		s.logger.Error("failed to track successful login: %v", err)
	}

	return identity, nil
}

func (s *identityService) GetIdentity(ctx context.Context, id uuid.UUID) (*Identity, error) {
	identity, err := s.repo.Identities().GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrIdentityNotFound
		}
		return nil, err
	}
	return identity, nil
}

func (s *identityService) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	return s.repo.Identities().DeleteIdentity(ctx, id)
}

// SendVerificationEmail issues a fresh single-use verify-email code. Issuing
// a new code does not invalidate older ones, they expire on their own.
func (s *identityService) SendVerificationEmail(ctx context.Context, identity *Identity) (*ActionCode, error) {
	if identity == nil {
		return nil, ErrIdentityNotFound
	}

	code := &ActionCode{
		ID:         uuid.New(),
		IdentityID: &identity.ID,
		Kind:       ActionCodeVerifyEmail,
		Email:      identity.Email,
		Status:     ActionCodeRequested,
	}

	code, err := s.repo.ActionCodes().Create(ctx, code)
	if err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to create verification code")
	}

	if err := s.mailer.SendActionCode(ctx, identity.Email, ActionCodeVerifyEmail, code.ID.String()); err != nil {
		s.logger.Error("failed to send verification email: %v", err)
	}

	return code, nil
}

// SendPasswordResetEmail never reveals whether the email exists: unknown
// addresses are logged and swallowed.
func (s *identityService) SendPasswordResetEmail(ctx context.Context, email string) error {
	identity, err := s.repo.Identities().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			s.logger.Info("password reset requested for unknown email")
			return nil
		}
		return errors.Wrap(err, errors.CategoryInternal, "failed to retrieve identity for password reset")
	}

	code := &ActionCode{
		ID:         uuid.New(),
		IdentityID: &identity.ID,
		Kind:       ActionCodeResetPassword,
		Email:      identity.Email,
		Status:     ActionCodeRequested,
	}

	code, err = s.repo.ActionCodes().Create(ctx, code)
	if err != nil {
		return errors.Wrap(err, errors.CategoryInternal, "failed to create reset code")
	}

	if err := s.mailer.SendActionCode(ctx, identity.Email, ActionCodeResetPassword, code.ID.String()); err != nil {
		s.logger.Error("failed to send password reset email: %v", err)
	}

	return nil
}

// InspectActionCode validates a code without consuming it, so a UI can show
// the reset form only for codes that would actually work.
func (s *identityService) InspectActionCode(ctx context.Context, code uuid.UUID) (*ActionCode, error) {
	record, err := s.repo.ActionCodes().GetByID(ctx, code.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	if err := s.ensureConsumable(record); err != nil {
		return nil, err
	}

	return record, nil
}

func (s *identityService) ConsumeVerifyEmailCode(ctx context.Context, code uuid.UUID) (*Identity, error) {
	var identity *Identity

	err := s.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.consumeTx(ctx, tx, code, ActionCodeVerifyEmail)
		if err != nil {
			return err
		}

		if err := s.repo.Identities().MarkEmailVerifiedTx(ctx, tx, *record.IdentityID); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to mark email verified")
		}

		identity, err = s.repo.Identities().GetByID(ctx, record.IdentityID.String())
		return err
	})
	if err != nil {
		return nil, err
	}

	identity.EmailVerified = true
	return identity, nil
}

func (s *identityService) ConsumeResetPasswordCode(ctx context.Context, code uuid.UUID, passwordHash string) (*Identity, error) {
	var identity *Identity

	err := s.repo.RunInTx(ctx, &sql.TxOptions{}, func(ctx context.Context, tx bun.Tx) error {
		record, err := s.consumeTx(ctx, tx, code, ActionCodeResetPassword)
		if err != nil {
			return err
		}

		if err := s.repo.Identities().ResetPasswordTx(ctx, tx, *record.IdentityID, passwordHash); err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to reset password")
		}

		identity, err = s.repo.Identities().GetByID(ctx, record.IdentityID.String())
		return err
	})
	if err != nil {
		return nil, err
	}

	return identity, nil
}

// consumeTx spends a code: it must exist, match the expected kind, still be
// in the requested state, and be inside its validity window.
func (s *identityService) consumeTx(ctx context.Context, tx bun.Tx, code uuid.UUID, kind ActionCodeKind) (*ActionCode, error) {
	record, err := s.repo.ActionCodes().GetByID(ctx, code.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvalidOrExpiredCode
		}
		return nil, err
	}

	if record.Kind != kind {
		return nil, ErrInvalidOrExpiredCode
	}

	if err := s.ensureConsumable(record); err != nil {
		return nil, err
	}

	if record.IdentityID == nil {
		return nil, ErrInvalidOrExpiredCode
	}

	update := MarkActionCodeConsumed(record.ID)
	if _, err := s.repo.ActionCodes().UpdateTx(ctx, tx, update); err != nil {
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to consume action code")
	}

	return record, nil
}

func (s *identityService) ensureConsumable(record *ActionCode) error {
	if record.Status != ActionCodeRequested {
		return ErrInvalidOrExpiredCode
	}

	if record.CreatedAt != nil {
		expired, err := IsOutsideThresholdPeriod(*record.CreatedAt, ActionCodeTTL)
		if err != nil {
			return errors.Wrap(err, errors.CategoryInternal, "failed to calculate code expiry")
		}
		if expired {
			return ErrInvalidOrExpiredCode
		}
	}

	return nil
}
