package accounts

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Identities() Identities
	Profiles() Profiles
	Rides() Rides
	ActionCodes() repository.Repository[*ActionCode]
	Announcements() repository.Repository[*Announcement]
}

func NewActionCodesRepository(db *bun.DB) repository.Repository[*ActionCode] {
	handlers := repository.ModelHandlers[*ActionCode]{
		NewRecord: func() *ActionCode {
			return &ActionCode{}
		},
		GetID: func(record *ActionCode) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *ActionCode, id uuid.UUID) {
			record.ID = id
		},
		GetIdentifier: func() string {
			return "email"
		},
	}
	return repository.NewRepository(db, handlers)
}

func NewAnnouncementsRepository(db *bun.DB) repository.Repository[*Announcement] {
	handlers := repository.ModelHandlers[*Announcement]{
		NewRecord: func() *Announcement {
			return &Announcement{}
		},
		GetID: func(record *Announcement) uuid.UUID {
			if record == nil {
				return uuid.Nil
			}
			return record.ID
		},
		SetID: func(record *Announcement, id uuid.UUID) {
			record.ID = id
		},
	}
	return repository.NewRepository(db, handlers)
}

type mngr struct {
	db            *bun.DB
	identities    Identities
	profiles      Profiles
	rides         Rides
	actionCodes   repository.Repository[*ActionCode]
	announcements repository.Repository[*Announcement]
}

type ManagerOption func(*mngr)

// WithManagerWatchHub propagates one hub to every repository that
// broadcasts changes.
func WithManagerWatchHub(hub *WatchHub) ManagerOption {
	return func(m *mngr) {
		m.profiles = NewProfilesRepository(m.db, WithProfilesWatchHub(hub))
		m.rides = NewRidesRepository(m.db, WithRidesWatchHub(hub))
	}
}

func NewRepositoryManager(db *bun.DB, opts ...ManagerOption) RepositoryManager {
	m := &mngr{
		db:            db,
		identities:    NewIdentitiesRepository(db),
		profiles:      NewProfilesRepository(db),
		rides:         NewRidesRepository(db),
		actionCodes:   NewActionCodesRepository(db),
		announcements: NewAnnouncementsRepository(db),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}

	return m
}

func (m *mngr) Validate() error {
	if m.identities == nil {
		return errors.New("repository identities should be initialized")
	}

	if m.profiles == nil {
		return errors.New("repository profiles should be initialized")
	}

	if m.rides == nil {
		return errors.New("repository rides should be initialized")
	}

	if m.actionCodes == nil {
		return errors.New("repository actionCodes should be initialized")
	}

	if m.announcements == nil {
		return errors.New("repository announcements should be initialized")
	}

	return nil
}

func (m *mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m *mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m *mngr) Identities() Identities {
	return m.identities
}

func (m *mngr) Profiles() Profiles {
	return m.profiles
}

func (m *mngr) Rides() Rides {
	return m.rides
}

func (m *mngr) ActionCodes() repository.Repository[*ActionCode] {
	return m.actionCodes
}

func (m *mngr) Announcements() repository.Repository[*Announcement] {
	return m.announcements
}
