package accounts

import (
	"context"
	"fmt"
	"sync"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

const textCodeInvalidProposal = "INVALID_PROPOSAL"

// ErrProposalNotFound covers unknown, expired, and already spent handles.
var ErrProposalNotFound = goerrors.New("transition proposal not found or expired", goerrors.CategoryNotFound).
	WithTextCode(textCodeInvalidProposal).
	WithCode(goerrors.CodeNotFound)

// ErrProposalSessionMismatch is returned when a proposal is committed or
// cancelled from a session other than the one that created it.
var ErrProposalSessionMismatch = goerrors.New("transition proposal belongs to another session", goerrors.CategoryAuthz).
	WithTextCode(TextCodePermissionDenied).
	WithCode(goerrors.CodeForbidden)

// DefaultProposalTTL bounds how long a pending confirmation stays valid.
var DefaultProposalTTL = 5 * time.Minute

// ProposalKind discriminates what a proposal will mutate on commit.
type ProposalKind string

const (
	ProposalKindAccount ProposalKind = "account"
	ProposalKindRide    ProposalKind = "ride"
)

// Proposal is the read-only description of a staged transition. Nothing is
// persisted until the proposal is committed; cancelling it is free.
type Proposal struct {
	Handle    uuid.UUID
	Kind      ProposalKind
	SessionID string
	Subject   string
	From      string
	To        string
	// ExpectedVersion pins the commit to the record revision observed at
	// propose time.
	ExpectedVersion int64
	ExpiresAt       time.Time
}

// CommitResult carries whichever record the committed proposal mutated.
type CommitResult struct {
	Kind    ProposalKind
	Profile *Profile
	Ride    *Ride
}

type pendingProposal struct {
	proposal Proposal
	profile  *Profile
	ride     *Ride
	reason   string
}

// TransitionBroker implements the two-step confirmation protocol: a caller
// stages a transition, shows the handle to a human, and only a commit of
// that handle mutates anything. Handles are single use, session bound, and
// expire on their own.
type TransitionBroker struct {
	accounts AccountStateMachine
	rides    RideStateMachine
	ttl      time.Duration
	now      func() time.Time

	mu      sync.Mutex
	pending map[uuid.UUID]*pendingProposal
}

// TransitionBrokerOption customizes broker construction.
type TransitionBrokerOption func(*TransitionBroker)

func WithProposalTTL(ttl time.Duration) TransitionBrokerOption {
	return func(b *TransitionBroker) {
		if ttl > 0 {
			b.ttl = ttl
		}
	}
}

func WithBrokerClock(clock func() time.Time) TransitionBrokerOption {
	return func(b *TransitionBroker) {
		if clock != nil {
			b.now = clock
		}
	}
}

func NewTransitionBroker(accounts AccountStateMachine, rides RideStateMachine, opts ...TransitionBrokerOption) *TransitionBroker {
	b := &TransitionBroker{
		accounts: accounts,
		rides:    rides,
		ttl:      DefaultProposalTTL,
		now:      time.Now,
		pending:  map[uuid.UUID]*pendingProposal{},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(b)
		}
	}

	return b
}

// ProposeAccountTransition stages a lifecycle change. Illegal edges are
// rejected here, before any confirmation dialog is shown, with the same
// message a direct transition would produce.
func (b *TransitionBroker) ProposeAccountTransition(sessionID string, profile *Profile, target AccountStatus, opts ...TransitionOption) (*Proposal, error) {
	if profile == nil {
		return nil, ErrProfileNotFound
	}

	profile.EnsureStatus()
	if !CanTransitionAccount(profile.Status, target) {
		return nil, rejectAccountTransition(profile, profile.Status, target)
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	subject := profile.Email
	if subject == "" {
		subject = profile.ID.String()
	}

	proposal := Proposal{
		Handle:          uuid.New(),
		Kind:            ProposalKindAccount,
		SessionID:       sessionID,
		Subject:         subject,
		From:            string(profile.Status),
		To:              string(target),
		ExpectedVersion: profile.Version,
		ExpiresAt:       b.now().Add(b.ttl),
	}

	b.mu.Lock()
	b.pending[proposal.Handle] = &pendingProposal{
		proposal: proposal,
		profile:  profile,
		reason:   options.metadata.Reason,
	}
	b.mu.Unlock()

	return &proposal, nil
}

// ProposeRideTransition stages a ride status change.
func (b *TransitionBroker) ProposeRideTransition(sessionID string, ride *Ride, target RideStatus, opts ...TransitionOption) (*Proposal, error) {
	if ride == nil {
		return nil, ErrProposalNotFound
	}

	if !CanTransitionRide(ride.Status, target) {
		return nil, goerrors.New(
			fmt.Sprintf("cannot move ride %s to %q: its current status is %q", ride.ID, target, ride.Status),
			goerrors.CategoryValidation,
		).WithTextCode(textCodeInvalidRideTransition).
			WithCode(goerrors.CodeBadRequest)
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	proposal := Proposal{
		Handle:          uuid.New(),
		Kind:            ProposalKindRide,
		SessionID:       sessionID,
		Subject:         ride.ID.String(),
		From:            string(ride.Status),
		To:              string(target),
		ExpectedVersion: ride.Version,
		ExpiresAt:       b.now().Add(b.ttl),
	}

	b.mu.Lock()
	b.pending[proposal.Handle] = &pendingProposal{
		proposal: proposal,
		ride:     ride,
		reason:   options.metadata.Reason,
	}
	b.mu.Unlock()

	return &proposal, nil
}

// CommitProposal spends the handle and performs exactly one transition. A
// record changed since propose time surfaces as ErrStaleVersion and the
// handle stays spent either way, the caller must re-propose.
func (b *TransitionBroker) CommitProposal(ctx context.Context, actor ActorRef, sessionID string, handle uuid.UUID) (*CommitResult, error) {
	staged, err := b.take(sessionID, handle)
	if err != nil {
		return nil, err
	}

	opts := []TransitionOption{
		WithExpectedProfileVersion(staged.proposal.ExpectedVersion),
	}
	if staged.reason != "" {
		opts = append(opts, WithTransitionReason(staged.reason))
	}

	switch staged.proposal.Kind {
	case ProposalKindRide:
		ride, err := b.rides.Transition(ctx, actor, staged.ride, RideStatus(staged.proposal.To), opts...)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Kind: ProposalKindRide, Ride: ride}, nil
	default:
		profile, err := b.accounts.Transition(ctx, actor, staged.profile, AccountStatus(staged.proposal.To), opts...)
		if err != nil {
			return nil, err
		}
		return &CommitResult{Kind: ProposalKindAccount, Profile: profile}, nil
	}
}

// CancelProposal discards a staged transition. Nothing was persisted, so
// cancelling an unknown or expired handle only reports not found.
func (b *TransitionBroker) CancelProposal(sessionID string, handle uuid.UUID) error {
	_, err := b.take(sessionID, handle)
	return err
}

// ReleaseSession drops every pending proposal the session holds, called on
// sign-out so stale confirmations cannot outlive their session.
func (b *TransitionBroker) ReleaseSession(sessionID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	for handle, staged := range b.pending {
		if staged.proposal.SessionID == sessionID {
			delete(b.pending, handle)
		}
	}
}

// PendingCount reports live (non-expired) proposals, mostly for tests and
// metrics.
func (b *TransitionBroker) PendingCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	count := 0
	now := b.now()
	for _, staged := range b.pending {
		if now.Before(staged.proposal.ExpiresAt) {
			count++
		}
	}
	return count
}

// take removes the handle from the pending set, enforcing single use,
// expiry, and session ownership.
func (b *TransitionBroker) take(sessionID string, handle uuid.UUID) (*pendingProposal, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	staged, ok := b.pending[handle]
	if !ok {
		return nil, ErrProposalNotFound
	}

	if staged.proposal.SessionID != sessionID {
		return nil, ErrProposalSessionMismatch
	}

	delete(b.pending, handle)

	if !b.now().Before(staged.proposal.ExpiresAt) {
		return nil, ErrProposalNotFound
	}

	return staged, nil
}

// CanTransitionAccount reports whether from->to is an edge of the account
// lifecycle graph.
func CanTransitionAccount(from, to AccountStatus) bool {
	allowed, ok := accountTransitions()[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

// CanTransitionRide reports whether from->to is an edge of the ride graph.
func CanTransitionRide(from, to RideStatus) bool {
	allowed, ok := rideTransitions()[from]
	if !ok {
		return false
	}
	_, ok = allowed[to]
	return ok
}

func rejectAccountTransition(profile *Profile, from, target AccountStatus) error {
	label := profile.Email
	if label == "" {
		label = profile.ID.String()
	}

	return goerrors.New(
		fmt.Sprintf("cannot move account %s to %q: its current status is %q", label, target, from),
		goerrors.CategoryValidation,
	).WithTextCode(textCodeInvalidTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"account": label,
			"from":    from,
			"to":      target,
		})
}
