package accounts

import (
	"context"
	"database/sql"
	"errors"
	"net/mail"
	"strings"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetIdentityPasswordSQL also flips the verified flag: consuming a reset
// code proves inbox possession just like a verification code does.
var ResetIdentityPasswordSQL = `UPDATE "identities" AS "idn"
SET
	"is_email_verified" = TRUE,
	"password_hash" = ?
WHERE
	"idn"."deleted_at" IS NULL
AND (
	"idn"."id" = ?
) RETURNING *;`

var MarkEmailVerifiedSQL = `UPDATE "identities" AS "idn"
SET
	"is_email_verified" = TRUE
WHERE
	"idn"."deleted_at" IS NULL
AND (
	"idn"."id" = ?
) RETURNING *;`

// Identities is the credentials repository.
type Identities interface {
	repository.Repository[*Identity]

	Register(ctx context.Context, identity *Identity) (*Identity, error)
	RegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error)
	GetByEmail(ctx context.Context, email string) (*Identity, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Identity, error)

	TrackAttemptedLogin(ctx context.Context, identity *Identity) error
	TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error
	TrackSuccessfulLogin(ctx context.Context, identity *Identity) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error

	MarkEmailVerified(ctx context.Context, id uuid.UUID) error
	MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
	ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error
	ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error

	DeleteIdentity(ctx context.Context, id uuid.UUID) error
	DeleteIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error
}

type identities struct {
	repository.Repository[*Identity]
	db *bun.DB
}

var (
	_ Identities                       = (*identities)(nil)
	_ repository.Repository[*Identity] = (*identities)(nil)
)

func NewIdentitiesRepository(db *bun.DB) Identities {
	repo := repository.NewRepository[*Identity](db, repository.ModelHandlers[*Identity]{
		NewRecord: func() *Identity { return &Identity{} },
		GetID: func(i *Identity) uuid.UUID {
			if i == nil {
				return uuid.Nil
			}
			return i.ID
		},
		SetID: func(i *Identity, id uuid.UUID) {
			if i != nil {
				i.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &identities{
		Repository: repo,
		db:         db,
	}
}

func (a *identities) Register(ctx context.Context, identity *Identity) (*Identity, error) {
	return a.RegisterTx(ctx, a.db, identity)
}

func (a *identities) RegisterTx(ctx context.Context, tx bun.IDB, identity *Identity) (*Identity, error) {
	if identity != nil {
		identity.Email = strings.TrimSpace(strings.ToLower(identity.Email))
		if identity.ID == uuid.Nil {
			identity.ID = uuid.New()
		}
	}
	return a.Repository.CreateTx(ctx, tx, identity)
}

func (a *identities) GetByEmail(ctx context.Context, email string) (*Identity, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *identities) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Identity, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"identifier": email,
			})
	}

	record := &Identity{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", email).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"identifier": email,
				})
		}
		return nil, err
	}

	return record, nil
}

func (a *identities) TrackSuccessfulLogin(ctx context.Context, identity *Identity) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, identity)
}

func (a *identities) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	// NOTE: Updating using the ORM fails due to a bug, it wont reset
	// login_attempt_at, login_attempts fields.
	loggedInAt := time.Now()
	_, err := tx.NewRaw(`
		UPDATE "identities" AS "idn"
		SET
			"loggedin_at" = ?,
			"login_attempt_at" = NULL,
			"login_attempts" = 0
		WHERE
			("idn".id = ?)
			AND "idn"."deleted_at" IS NULL;
	`, loggedInAt, identity.ID).Exec(ctx)

	return err
}

func (a *identities) TrackAttemptedLogin(ctx context.Context, identity *Identity) error {
	return a.TrackAttemptedLoginTx(ctx, a.db, identity)
}

func (a *identities) TrackAttemptedLoginTx(ctx context.Context, tx bun.IDB, identity *Identity) error {
	criteria := []repository.UpdateCriteria{
		repository.UpdateByID(identity.ID.String()),
	}

	record := &Identity{}
	record.ID = identity.ID
	record.LoginAttempts = identity.LoginAttempts + 1
	now := time.Now()
	record.LoginAttemptAt = &now

	_, err := a.Repository.UpdateTx(ctx, tx, record, criteria...)

	return err
}

func (a *identities) MarkEmailVerified(ctx context.Context, id uuid.UUID) error {
	return a.MarkEmailVerifiedTx(ctx, a.db, id)
}

func (a *identities) MarkEmailVerifiedTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	return a.execReturning(ctx, tx, id, MarkEmailVerifiedSQL, id.String())
}

func (a *identities) ResetPassword(ctx context.Context, id uuid.UUID, passwordHash string) error {
	return a.ResetPasswordTx(ctx, a.db, id, passwordHash)
}

func (a *identities) ResetPasswordTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	return a.execReturning(ctx, tx, id, ResetIdentityPasswordSQL, passwordHash, id.String())
}

func (a *identities) DeleteIdentity(ctx context.Context, id uuid.UUID) error {
	return a.DeleteIdentityTx(ctx, a.db, id)
}

func (a *identities) DeleteIdentityTx(ctx context.Context, tx bun.IDB, id uuid.UUID) error {
	_, err := tx.NewDelete().
		Model((*Identity)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	return err
}

func (a *identities) execReturning(ctx context.Context, tx bun.IDB, id uuid.UUID, query string, args ...any) error {
	res, err := a.Repository.RawTx(ctx, tx, query, args...)
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"id": id.String(),
			})
	}

	return nil
}
