package accounts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Rides exposes the ride repository plus the moderation helpers built on it.
type Rides interface {
	repository.Repository[*Ride]

	CreateRide(ctx context.Context, ride *Ride) (*Ride, error)
	GetRide(ctx context.Context, id uuid.UUID) (*Ride, error)
	ListRides(ctx context.Context, filter RideFilter) ([]*Ride, error)
	UpdateRideStatus(ctx context.Context, id uuid.UUID, status RideStatus, opts ...StatusUpdateOption) (*Ride, error)
	UpdateRideStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status RideStatus, opts ...StatusUpdateOption) (*Ride, error)

	Book(ctx context.Context, actor ActorRef, ride *Ride, opts ...TransitionOption) (*Ride, error)
	Complete(ctx context.Context, actor ActorRef, ride *Ride, opts ...TransitionOption) (*Ride, error)
	Cancel(ctx context.Context, actor ActorRef, ride *Ride, opts ...TransitionOption) (*Ride, error)
}

type rides struct {
	repository.Repository[*Ride]
	db                  *bun.DB
	hub                 *WatchHub
	stateMachine        RideStateMachine
	stateMachineOptions []RideStateMachineOption
}

var (
	_ Rides                        = (*rides)(nil)
	_ RideStore                    = (*rides)(nil)
	_ repository.Repository[*Ride] = (*rides)(nil)
)

type RidesOption func(*rides)

func NewRidesRepository(db *bun.DB, opts ...RidesOption) Rides {
	repo := repository.NewRepository[*Ride](db, repository.ModelHandlers[*Ride]{
		NewRecord: func() *Ride { return &Ride{} },
		GetID: func(r *Ride) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Ride, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
	})

	repoRides := &rides{
		Repository: repo,
		db:         db,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(repoRides)
		}
	}

	return repoRides
}

func WithRidesStateMachineOptions(options ...RideStateMachineOption) RidesOption {
	return func(r *rides) {
		if len(options) == 0 {
			return
		}
		r.stateMachineOptions = append(r.stateMachineOptions, options...)
		r.stateMachine = nil
	}
}

func WithRidesStateMachine(sm RideStateMachine) RidesOption {
	return func(r *rides) {
		r.stateMachine = sm
	}
}

// WithRidesWatchHub wires change notifications for live subscriptions.
func WithRidesWatchHub(hub *WatchHub) RidesOption {
	return func(r *rides) {
		r.hub = hub
	}
}

func (a *rides) CreateRide(ctx context.Context, ride *Ride) (*Ride, error) {
	if ride != nil {
		if ride.ID == uuid.Nil {
			ride.ID = uuid.New()
		}
		if ride.Status == "" {
			ride.Status = RideStatusOffered
		}
	}

	record, err := a.Repository.Create(ctx, ride)
	if err != nil {
		return nil, err
	}
	a.notify()
	return record, nil
}

func (a *rides) GetRide(ctx context.Context, id uuid.UUID) (*Ride, error) {
	return a.Repository.GetByID(ctx, id.String())
}

func (a *rides) ListRides(ctx context.Context, filter RideFilter) ([]*Ride, error) {
	records := []*Ride{}

	q := a.db.NewSelect().
		Model(&records).
		Order("departure_at ASC")

	if filter.Status != "" {
		q = q.Where("?TableAlias.status = ?", string(filter.Status))
	}

	if filter.DriverID != nil {
		q = q.Where("?TableAlias.driver_id = ?", filter.DriverID.String())
	}

	if err := q.Scan(ctx); err != nil {
		return nil, err
	}

	return records, nil
}

func (a *rides) UpdateRideStatus(ctx context.Context, id uuid.UUID, status RideStatus, opts ...StatusUpdateOption) (*Ride, error) {
	return a.UpdateRideStatusTx(ctx, a.db, id, status, opts...)
}

// UpdateRideStatusTx follows the same contract as profile status updates:
// database-assigned timestamp, version bump, optional expected-version guard.
func (a *rides) UpdateRideStatusTx(ctx context.Context, tx bun.IDB, id uuid.UUID, status RideStatus, opts ...StatusUpdateOption) (*Ride, error) {
	upd := buildStatusUpdate(opts...)

	query := `UPDATE "rides" AS "rde"
SET
	"status" = ?,
	"version" = "version" + 1,
	"updated_at" = CURRENT_TIMESTAMP
WHERE
	"rde"."deleted_at" IS NULL
AND (
	"rde"."id" = ?
)`
	args := []any{string(status), id.String()}

	if upd.expectedVersion != nil {
		query += ` AND "rde"."version" = ?`
		args = append(args, *upd.expectedVersion)
	}

	query += ` RETURNING *;`

	record := &Ride{}
	err := tx.NewRaw(query, args...).Scan(ctx, record)
	if err == nil {
		a.notify()
		return record, nil
	}

	if !errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}

	existing := &Ride{}
	gerr := tx.NewSelect().
		Model(existing).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if gerr != nil {
		if errors.Is(gerr, sql.ErrNoRows) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{
					"ride_id": id.String(),
				})
		}
		return nil, gerr
	}

	return nil, ErrStaleVersion.WithMetadata(map[string]any{
		"ride_id":          id.String(),
		"expected_version": fmt.Sprintf("%d", derefVersion(upd.expectedVersion)),
		"actual_version":   fmt.Sprintf("%d", existing.Version),
	})
}

func (a *rides) Book(ctx context.Context, actor ActorRef, ride *Ride, opts ...TransitionOption) (*Ride, error) {
	return a.moderationMachine().Transition(ctx, actor, ride, RideStatusBooked, opts...)
}

func (a *rides) Complete(ctx context.Context, actor ActorRef, ride *Ride, opts ...TransitionOption) (*Ride, error) {
	return a.moderationMachine().Transition(ctx, actor, ride, RideStatusCompleted, opts...)
}

func (a *rides) Cancel(ctx context.Context, actor ActorRef, ride *Ride, opts ...TransitionOption) (*Ride, error) {
	return a.moderationMachine().Transition(ctx, actor, ride, RideStatusCancelled, opts...)
}

func (a *rides) moderationMachine() RideStateMachine {
	if a.stateMachine == nil {
		a.stateMachine = NewRideStateMachine(a, a.stateMachineOptions...)
	}
	return a.stateMachine
}

func (a *rides) notify() {
	if a.hub != nil {
		a.hub.Broadcast(CollectionRides)
	}
}
