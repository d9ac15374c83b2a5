package accounts

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const textCodeInvalidRideTransition = "INVALID_RIDE_STATE_TRANSITION"

// ErrInvalidRideTransition mirrors ErrInvalidTransition for the ride graph.
var ErrInvalidRideTransition = goerrors.New("invalid ride status transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidRideTransition).
	WithCode(goerrors.CodeBadRequest)

// rideTransitions is the edge list for ride moderation. Completed and
// Cancelled are terminal.
func rideTransitions() map[RideStatus]map[RideStatus]struct{} {
	return map[RideStatus]map[RideStatus]struct{}{
		RideStatusOffered: {
			RideStatusBooked:    {},
			RideStatusCancelled: {},
		},
		RideStatusBooked: {
			RideStatusCompleted: {},
			RideStatusCancelled: {},
		},
	}
}

// RideStateMachine validates and applies ride status changes.
type RideStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, ride *Ride, target RideStatus, opts ...TransitionOption) (*Ride, error)
}

type rideStateMachineOptions struct {
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

// RideStateMachineOption customizes ride machine construction.
type RideStateMachineOption func(*rideStateMachineOptions)

func WithRideStateMachineClock(clock func() time.Time) RideStateMachineOption {
	return func(o *rideStateMachineOptions) {
		if clock != nil {
			o.now = clock
		}
	}
}

func WithRideStateMachineActivitySink(sink ActivitySink) RideStateMachineOption {
	return func(o *rideStateMachineOptions) {
		o.activitySink = normalizeActivitySink(sink)
	}
}

func WithRideStateMachineLogger(logger Logger) RideStateMachineOption {
	return func(o *rideStateMachineOptions) {
		if logger != nil {
			o.logger = logger
		}
	}
}

// NewRideStateMachine returns the default implementation backed by the provided store.
func NewRideStateMachine(rides RideStore, opts ...RideStateMachineOption) RideStateMachine {
	options := &rideStateMachineOptions{
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	return &rideStateMachine{
		rides:        rides,
		transitions:  rideTransitions(),
		now:          options.now,
		activitySink: options.activitySink,
		logger:       options.logger,
	}
}

type rideStateMachine struct {
	rides        RideStore
	transitions  map[RideStatus]map[RideStatus]struct{}
	now          func() time.Time
	activitySink ActivitySink
	logger       Logger
}

func (sm *rideStateMachine) Transition(ctx context.Context, actor ActorRef, ride *Ride, target RideStatus, opts ...TransitionOption) (*Ride, error) {
	if ride == nil {
		return nil, ErrInvalidRideTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "ride is nil",
		})
	}

	from := ride.Status
	if !target.IsValid() {
		return nil, ErrInvalidRideTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "target status is unknown",
		})
	}

	if allowed, ok := sm.transitions[from]; !ok || !contains(allowed, target) {
		return nil, sm.rejectTransition(ride, from, target)
	}

	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}

	statusOpts := []StatusUpdateOption{}
	if options.expectedVersion != nil {
		statusOpts = append(statusOpts, WithExpectedVersion(*options.expectedVersion))
	}

	updated, err := sm.rides.UpdateRideStatus(ctx, ride.ID, target, statusOpts...)
	if err != nil {
		return nil, err
	}

	if updated != nil {
		ride.Status = updated.Status
		ride.UpdatedAt = updated.UpdatedAt
		ride.Version = updated.Version
	} else {
		ride.Status = target
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventRideStatusChanged,
		Actor:      actor,
		RideID:     ride.ID.String(),
		FromStatus: string(from),
		ToStatus:   string(target),
		Metadata:   metadataMap(options.cloneMetadata()),
	})

	return ride, nil
}

func (sm *rideStateMachine) rejectTransition(ride *Ride, from, target RideStatus) error {
	return goerrors.New(
		fmt.Sprintf("cannot move ride %s to %q: its current status is %q", ride.ID, target, from),
		goerrors.CategoryValidation,
	).WithTextCode(textCodeInvalidRideTransition).
		WithCode(goerrors.CodeBadRequest).
		WithMetadata(map[string]any{
			"ride_id": ride.ID.String(),
			"from":    from,
			"to":      target,
		})
}

func (sm *rideStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}
	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("ride state machine activity sink error: %v", err)
	}
}

func contains(set map[RideStatus]struct{}, status RideStatus) bool {
	_, ok := set[status]
	return ok
}

func metadataMap(meta TransitionMetadata) map[string]any {
	if meta.Reason == "" && len(meta.Metadata) == 0 {
		return nil
	}

	result := map[string]any{}
	if meta.Reason != "" {
		result["reason"] = meta.Reason
	}
	for k, v := range meta.Metadata {
		result[k] = v
	}
	return result
}
