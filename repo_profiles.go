package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Profiles exposes the profile repository plus the lifecycle helpers built
// on top of it.
type Profiles interface {
	repository.Repository[*Profile]

	CreateProfile(ctx context.Context, profile *Profile) (*Profile, error)
	CreateProfileTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]*Profile, error)
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error)
	UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error)
	DeleteProfile(ctx context.Context, id uuid.UUID) error

	Approve(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
	Reject(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
	Suspend(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
	Reinstate(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error)
}

type profiles struct {
	repository.Repository[*Profile]
	db                  *bun.DB
	hub                 *WatchHub
	stateMachine        AccountStateMachine
	stateMachineOptions []StateMachineOption
}

var (
	_ Profiles                        = (*profiles)(nil)
	_ ProfileStore                    = (*profiles)(nil)
	_ repository.Repository[*Profile] = (*profiles)(nil)
)

type ProfilesOption func(*profiles)

func NewProfilesRepository(db *bun.DB, opts ...ProfilesOption) Profiles {
	repo := repository.NewRepository[*Profile](db, repository.ModelHandlers[*Profile]{
		NewRecord: func() *Profile { return &Profile{} },
		GetID: func(p *Profile) uuid.UUID {
			if p == nil {
				return uuid.Nil
			}
			return p.ID
		},
		SetID: func(p *Profile, id uuid.UUID) {
			if p != nil {
				p.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	repoProfiles := &profiles{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoProfiles)
		}
	}

	return repoProfiles
}

func WithProfilesStateMachineOptions(options ...StateMachineOption) ProfilesOption {
	return func(p *profiles) {
		if len(options) == 0 {
			return
		}
		p.stateMachineOptions = append(p.stateMachineOptions, options...)
		p.stateMachine = nil
	}
}

func WithProfilesStateMachine(sm AccountStateMachine) ProfilesOption {
	return func(p *profiles) {
		p.stateMachine = sm
	}
}

// WithProfilesWatchHub wires change notifications for live subscriptions.
func WithProfilesWatchHub(hub *WatchHub) ProfilesOption {
	return func(p *profiles) {
		p.hub = hub
	}
}

func (a *profiles) CreateProfile(ctx context.Context, profile *Profile) (*Profile, error) {
	return a.CreateProfileTx(ctx, a.db, profile)
}

func (a *profiles) CreateProfileTx(ctx context.Context, tx bun.IDB, profile *Profile) (*Profile, error) {
	prepareProfileDefaults(profile)
	record, err := a.Repository.CreateTx(ctx, tx, profile)
	if err != nil {
		return nil, err
	}
	a.notify()
	return record, nil
}

func (a *profiles) GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error) {
	record, err := a.Repository.GetByID(ctx, id.String())
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	record.EnsureStatus()
	return record, nil
}

func (a *profiles) GetProfileByEmail(ctx context.Context, email string) (*Profile, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if _, err := mail.ParseAddress(email); err != nil {
		return nil, ErrProfileNotFound
	}

	record, err := a.Repository.GetByIdentifier(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrProfileNotFound
		}
		return nil, err
	}
	record.EnsureStatus()
	return record, nil
}

func (a *profiles) ListProfiles(ctx context.Context, filter ProfileFilter) ([]*Profile, error) {
	records := []*Profile{}

	q := a.db.NewSelect().
		Model(&records).
		Order("created_at ASC")

	if filter.Status != "" {
		q = q.Where("?TableAlias.account_status = ?", string(filter.Status))
	}

	if filter.Role != "" {
		q = q.Where("?TableAlias.account_role = ?", string(filter.Role))
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	for _, record := range records {
		record.EnsureStatus()
	}

	return records, nil
}

func (a *profiles) UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error) {
	return a.UpdateStatusTx(ctx, a.db, id, status, opts...)
}

// UpdateStatusTx persists one status mutation. The timestamp comes from the
// database clock, the version column increments on every write, and an
// expected-version guard turns a lost race into ErrStaleVersion rather than
// a silent overwrite.
func (a *profiles) UpdateStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error) {
	upd := buildStatusUpdate(opts...)

	query := `UPDATE "profiles" AS "prf"
SET
	"account_status" = ?,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP`
	args := []any{string(status)}

	if upd.setSuspendedAt {
		query += `,
	"suspended_at" = ?`
		args = append(args, upd.suspendedAt)
	}

	query += `
WHERE
	"prf"."deleted_at" IS NULL
AND (
	"prf"."id" = ?
)`
	args = append(args, id.String())

	if upd.expectedVersion != nil {
		query += ` AND "prf"."version" = ?`
		args = append(args, *upd.expectedVersion)
	}

	query += ` RETURNING *;`

	record := &Profile{}
	err := tx.NewRaw(query, args...).Scan(ctx, record)
	if err == nil {
		a.notify()
		return record, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	// Zero rows is either a missing profile or a lost version race; a
	// second read tells them apart.
	existing := &Profile{}
	gerr := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if gerr != nil {
		if errors.Is(gerr, sql.ErrNoRows) {
			return nil, ErrProfileNotFound
		}
		return nil, gerr
	}

	return nil, ErrStaleVersion.WithMetadata(map[string]any{
		"profile_id":       id.String(),
		"expected_version": fmt.Sprintf("%d", derefVersion(upd.expectedVersion)),
		"actual_version":   fmt.Sprintf("%d", existing.Version),
	})
}

func (a *profiles) DeleteProfile(ctx context.Context, id uuid.UUID) error {
	_, err := a.db.NewDelete().
		Model((*Profile)(nil)).
		Where("?TableAlias.id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	a.notify()
	return nil
}

func (a *profiles) Approve(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusAccessGranted, opts...)
}

func (a *profiles) Reject(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusRejected, opts...)
}

func (a *profiles) Suspend(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusSuspended, opts...)
}

func (a *profiles) Reinstate(ctx context.Context, actor ActorRef, profile *Profile, opts ...TransitionOption) (*Profile, error) {
	return a.lifecycleMachine().Transition(ctx, actor, profile, StatusAccessGranted, opts...)
}

func (a *profiles) lifecycleMachine() AccountStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewAccountStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}

func (a *profiles) notify() {
	if a.hub != nil {
		a.hub.Broadcast(CollectionUsers)
	}
}

func prepareProfileDefaults(record *Profile) {
	if record == nil {
		return
	}

	if record.Role == "" {
		record.Role = RolePassenger
	}

	record.EnsureStatus()
	record.Email = strings.TrimSpace(strings.ToLower(record.Email))

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}

func derefVersion(v *int64) int64 {
	if v == nil {
		return -1
	}
	return *v
}
