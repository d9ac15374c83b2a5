package accounts

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Identity is the credentials record. It is the system of record for the
// email address, the password hash, and the email-verified flag; the profile
// side never writes any of these.
type Identity struct {
	bun.BaseModel  `bun:"table:identities,alias:idn"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"-"`
	EmailVerified  bool       `bun:"is_email_verified" json:"is_email_verified,omitempty"`
	Admin          bool       `bun:"is_admin" json:"is_admin,omitempty"`
	Disabled       bool       `bun:"is_disabled" json:"is_disabled,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// Profile is the per-account business document, keyed by the identity id.
// It owns the role and the lifecycle status, never the credentials.
type Profile struct {
	bun.BaseModel `bun:"table:profiles,alias:prf"`
	ID            uuid.UUID     `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email         string        `bun:"email,notnull,unique" json:"email,omitempty"`
	FirstName     string        `bun:"first_name,notnull" json:"first_name,omitempty"`
	LastName      string        `bun:"last_name,notnull" json:"last_name,omitempty"`
	Gender        string        `bun:"gender" json:"gender,omitempty"`
	Mobile        string        `bun:"mobile" json:"mobile,omitempty"`
	City          string        `bun:"city" json:"city,omitempty"`
	FacebookLink  string        `bun:"facebook_link" json:"facebook_link,omitempty"`
	Role          AccountRole   `bun:"account_role,notnull" json:"account_role,omitempty"`
	Status        AccountStatus `bun:"account_status,notnull" json:"account_status,omitempty"`
	SuspendedAt   *time.Time    `bun:"suspended_at,nullzero" json:"suspended_at,omitempty"`
	Version       int64         `bun:"version,notnull,default:0" json:"version,omitempty"`
	CreatedAt     *time.Time    `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time    `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time    `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the initial lifecycle status on records created
// before the status column existed.
func (p *Profile) EnsureStatus() {
	if p.Status == "" {
		p.Status = StatusAwaitingEmailVerification
	}
}

// IsSuspended reports whether the profile is administratively locked out.
func (p *Profile) IsSuspended() bool {
	return p.Status == StatusSuspended
}

// ActionCodeKind distinguishes the two out-of-band code flows.
type ActionCodeKind = string

const (
	// ActionCodeVerifyEmail codes are issued at signup and prove inbox
	// possession when consumed.
	ActionCodeVerifyEmail ActionCodeKind = "verify-email"
	// ActionCodeResetPassword codes are issued by the forgot-password flow.
	ActionCodeResetPassword ActionCodeKind = "reset-password"
)

const (
	// ActionCodeRequested is the only state a code can be consumed from.
	ActionCodeRequested = "requested"
	// ActionCodeConsumed marks a spent code; consuming again must fail.
	ActionCodeConsumed = "consumed"
)

// ActionCode is a single-use, server-issued, time-limited token delivered by
// email. The record id doubles as the code itself.
type ActionCode struct {
	bun.BaseModel `bun:"table:action_codes,alias:oob"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	IdentityID    *uuid.UUID `bun:"identity_id,notnull" json:"identity_id,omitempty"`
	Identity      *Identity  `bun:"rel:has-one,join:identity_id=id" json:"identity,omitempty"`
	Kind          string     `bun:"kind,notnull" json:"kind,omitempty"`
	Email         string     `bun:"email,notnull" json:"email,omitempty"`
	Status        string     `bun:"status,notnull" json:"status,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// MarkActionCodeConsumed builds the update record that spends a code.
func MarkActionCodeConsumed(id uuid.UUID) *ActionCode {
	c := &ActionCode{}
	c.ID = id
	c.Status = ActionCodeConsumed
	n := time.Now()
	c.ConsumedAt = &n
	return c
}

// Ride is the ancillary trip entity moderated from the admin dashboard. Its
// status transitions run through the same broker as account transitions.
type Ride struct {
	bun.BaseModel `bun:"table:rides,alias:rde"`
	ID            uuid.UUID   `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	DriverID      *uuid.UUID  `bun:"driver_id,notnull" json:"driver_id,omitempty"`
	Driver        *Profile    `bun:"rel:has-one,join:driver_id=id" json:"driver,omitempty"`
	PassengerIDs  []uuid.UUID `bun:"passenger_ids,type:jsonb" json:"passenger_ids,omitempty"`
	Origin        string      `bun:"origin,notnull" json:"origin,omitempty"`
	Destination   string      `bun:"destination,notnull" json:"destination,omitempty"`
	DepartureAt   *time.Time  `bun:"departure_at" json:"departure_at,omitempty"`
	Seats         int         `bun:"seats,notnull" json:"seats,omitempty"`
	Status        RideStatus  `bun:"status,notnull" json:"status,omitempty"`
	Version       int64       `bun:"version,notnull,default:0" json:"version,omitempty"`
	CreatedAt     *time.Time  `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time  `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time  `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// SeatsLeft reports remaining capacity; passengers beyond capacity are a
// data error tolerated as zero.
func (r *Ride) SeatsLeft() int {
	left := r.Seats - len(r.PassengerIDs)
	if left < 0 {
		return 0
	}
	return left
}

// Announcement is a broadcast message surfaced on dashboards; included so the
// admin view has a second live-subscription collection besides rides.
type Announcement struct {
	bun.BaseModel `bun:"table:announcements,alias:ann"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Title         string     `bun:"title,notnull" json:"title,omitempty"`
	Body          string     `bun:"body" json:"body,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt     *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt     *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}
