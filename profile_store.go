package accounts

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ProfileStore is the abstract document-store contract the lifecycle logic
// runs against. The bun repositories implement it; tests use fakes.
type ProfileStore interface {
	CreateProfile(ctx context.Context, profile *Profile) (*Profile, error)
	GetProfile(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*Profile, error)
	ListProfiles(ctx context.Context, filter ProfileFilter) ([]*Profile, error)
	// UpdateStatus persists exactly one status mutation. The store assigns
	// updated_at itself; the client clock is never written.
	UpdateStatus(ctx context.Context, id uuid.UUID, status AccountStatus, opts ...StatusUpdateOption) (*Profile, error)
	// DeleteProfile exists for signup compensation, not for user flows.
	DeleteProfile(ctx context.Context, id uuid.UUID) error
}

// ProfileFilter narrows admin listings. Zero value means all profiles.
type ProfileFilter struct {
	Status AccountStatus
	Role   AccountRole
}

// statusUpdate is the assembled mutation for UpdateStatus.
type statusUpdate struct {
	suspendedAt     *time.Time
	setSuspendedAt  bool
	expectedVersion *int64
}

// StatusUpdateOption customizes a single status mutation.
type StatusUpdateOption func(*statusUpdate)

// WithSuspendedAt sets (or clears, with nil) the suspension timestamp during
// a status transition.
func WithSuspendedAt(at *time.Time) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.suspendedAt = at
		u.setSuspendedAt = true
	}
}

// WithExpectedVersion makes the mutation conditional on the version the
// caller observed; ErrStaleVersion is returned on mismatch.
func WithExpectedVersion(version int64) StatusUpdateOption {
	return func(u *statusUpdate) {
		u.expectedVersion = &version
	}
}

func buildStatusUpdate(opts ...StatusUpdateOption) *statusUpdate {
	u := &statusUpdate{}
	for _, opt := range opts {
		if opt != nil {
			opt(u)
		}
	}
	return u
}

// RideStore is the abstract contract for ride moderation.
type RideStore interface {
	GetRide(ctx context.Context, id uuid.UUID) (*Ride, error)
	ListRides(ctx context.Context, filter RideFilter) ([]*Ride, error)
	// UpdateRideStatus mirrors ProfileStore.UpdateStatus: one atomic status
	// write with a store-assigned updated_at.
	UpdateRideStatus(ctx context.Context, id uuid.UUID, status RideStatus, opts ...StatusUpdateOption) (*Ride, error)
}

// RideFilter narrows admin ride listings. Zero value means all rides.
type RideFilter struct {
	Status   RideStatus
	DriverID *uuid.UUID
}
