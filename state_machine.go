package accounts

import (
	"context"
	"fmt"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

const (
	textCodeInvalidTransition = "INVALID_ACCOUNT_STATE_TRANSITION"
)

// ErrInvalidTransition is returned when a requested status change is not an
// explicit edge of the lifecycle graph. The wrapped message always names the
// account's actual current status so the caller can show a real explanation
// instead of a generic error.
var ErrInvalidTransition = goerrors.New("invalid account state transition", goerrors.CategoryValidation).
	WithTextCode(textCodeInvalidTransition).
	WithCode(goerrors.CodeBadRequest)

// TransitionMetadata captures extra context for a transition.
type TransitionMetadata struct {
	Reason   string
	Metadata map[string]any
}

// TransitionContext is passed into hooks for additional processing.
type TransitionContext struct {
	Actor   ActorRef
	Profile *Profile
	From    AccountStatus
	To      AccountStatus
	Meta    TransitionMetadata
}

// TransitionHook is executed before or after a transition.
type TransitionHook func(ctx context.Context, tc TransitionContext) error

// TransitionHookPhase identifies whether a hook ran before or after persistence.
type TransitionHookPhase string

const (
	HookPhaseBefore TransitionHookPhase = "before_transition"
	HookPhaseAfter  TransitionHookPhase = "after_transition"
)

// TransitionOption customizes a single transition.
type TransitionOption func(*transitionOptions)

// AccountStateMachine defines lifecycle operations for account profiles.
type AccountStateMachine interface {
	Transition(ctx context.Context, actor ActorRef, profile *Profile, target AccountStatus, opts ...TransitionOption) (*Profile, error)
	CurrentStatus(profile *Profile) AccountStatus
}

// HookErrorHandler handles errors surfaced by transition hooks.
type HookErrorHandler func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error

// StateMachineOption customizes state machine construction.
type StateMachineOption func(*accountStateMachine)

// WithStateMachineClock injects a custom clock (useful for tests).
func WithStateMachineClock(clock func() time.Time) StateMachineOption {
	return func(sm *accountStateMachine) {
		if clock != nil {
			sm.now = clock
		}
	}
}

// WithStateMachineActivitySink sets the ActivitySink used to publish lifecycle events.
func WithStateMachineActivitySink(sink ActivitySink) StateMachineOption {
	return func(sm *accountStateMachine) {
		sm.activitySink = normalizeActivitySink(sink)
	}
}

// WithStateMachineHookErrorHandler overrides how hook failures are propagated.
func WithStateMachineHookErrorHandler(handler HookErrorHandler) StateMachineOption {
	return func(sm *accountStateMachine) {
		if handler != nil {
			sm.hookErrorHandler = handler
		}
	}
}

// WithStateMachineLogger overrides the logger used for sink failures.
func WithStateMachineLogger(logger Logger) StateMachineOption {
	return func(sm *accountStateMachine) {
		if logger != nil {
			sm.logger = logger
		}
	}
}

// WithTransitionReason sets the human-readable reason for the transition.
func WithTransitionReason(reason string) TransitionOption {
	return func(opts *transitionOptions) {
		opts.metadata.Reason = reason
	}
}

// WithTransitionMetadata merges metadata into the transition context.
func WithTransitionMetadata(metadata map[string]any) TransitionOption {
	return func(opts *transitionOptions) {
		if len(metadata) == 0 {
			return
		}
		if opts.metadata.Metadata == nil {
			opts.metadata.Metadata = make(map[string]any, len(metadata))
		}
		for k, v := range metadata {
			opts.metadata.Metadata[k] = v
		}
	}
}

// WithExpectedProfileVersion makes the persisted update conditional on the
// version the caller observed; a mismatch surfaces ErrStaleVersion instead of
// silently overwriting a concurrent change.
func WithExpectedProfileVersion(version int64) TransitionOption {
	return func(opts *transitionOptions) {
		opts.expectedVersion = &version
	}
}

// WithBeforeTransitionHook adds a hook executed before the status update.
func WithBeforeTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.beforeHooks = append(opts.beforeHooks, h)
		}
	}
}

// WithAfterTransitionHook adds a hook executed after the status update succeeds.
func WithAfterTransitionHook(h TransitionHook) TransitionOption {
	return func(opts *transitionOptions) {
		if h != nil {
			opts.afterHooks = append(opts.afterHooks, h)
		}
	}
}

// WithSuspensionTime overrides the timestamp recorded when entering the suspended state.
func WithSuspensionTime(t time.Time) TransitionOption {
	return func(opts *transitionOptions) {
		opts.suspensionTime = &t
	}
}

// accountTransitions is the authoritative edge list of the lifecycle graph.
// Anything not listed here is rejected; there are no automatic transitions.
func accountTransitions() map[AccountStatus]map[AccountStatus]struct{} {
	return map[AccountStatus]map[AccountStatus]struct{}{
		StatusAwaitingEmailVerification: {
			StatusAwaitingAdminApproval: {},
		},
		StatusAwaitingAdminApproval: {
			StatusAccessGranted: {},
			StatusRejected:      {},
		},
		StatusAccessGranted: {
			StatusSuspended: {},
		},
		StatusSuspended: {
			StatusAccessGranted: {},
		},
		// Rejection is not terminal: an administrator can reactivate.
		StatusRejected: {
			StatusAccessGranted: {},
		},
	}
}

// NewAccountStateMachine returns the default implementation backed by the provided store.
func NewAccountStateMachine(profiles ProfileStore, opts ...StateMachineOption) AccountStateMachine {
	sm := &accountStateMachine{
		profiles:     profiles,
		transitions:  accountTransitions(),
		now:          time.Now,
		activitySink: noopActivitySink{},
		logger:       defLogger{},
		hookErrorHandler: func(ctx context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
			return defaultHookErrorHandler(ctx, phase, err, tc)
		},
	}

	for _, opt := range opts {
		if opt != nil {
			opt(sm)
		}
	}

	return sm
}

type accountStateMachine struct {
	profiles         ProfileStore
	transitions      map[AccountStatus]map[AccountStatus]struct{}
	now              func() time.Time
	activitySink     ActivitySink
	logger           Logger
	hookErrorHandler HookErrorHandler
}

type transitionOptions struct {
	metadata        TransitionMetadata
	beforeHooks     []TransitionHook
	afterHooks      []TransitionHook
	suspensionTime  *time.Time
	expectedVersion *int64
}

func (o *transitionOptions) cloneMetadata() TransitionMetadata {
	var cloned map[string]any
	if len(o.metadata.Metadata) > 0 {
		cloned = make(map[string]any, len(o.metadata.Metadata))
		for k, v := range o.metadata.Metadata {
			cloned[k] = v
		}
	}

	return TransitionMetadata{
		Reason:   o.metadata.Reason,
		Metadata: cloned,
	}
}

func (sm *accountStateMachine) Transition(ctx context.Context, actor ActorRef, profile *Profile, target AccountStatus, opts ...TransitionOption) (*Profile, error) {
	if profile == nil {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "profile is nil",
		})
	}

	profile.EnsureStatus()
	from := profile.Status
	if !target.IsValid() {
		return nil, ErrInvalidTransition.WithMetadata(map[string]any{
			"target": target,
			"reason": "target status is unknown",
		})
	}

	if !sm.canTransition(from, target) {
		return nil, sm.rejectTransition(profile, from, target)
	}

	options := sm.buildTransitionOptions(opts...)

	ctxData := TransitionContext{
		Actor:   actor,
		Profile: profile,
		From:    from,
		To:      target,
		Meta:    options.cloneMetadata(),
	}

	if err := sm.runHooks(ctx, options.beforeHooks, ctxData, HookPhaseBefore); err != nil {
		return nil, err
	}

	statusOpts, chosenSuspension := sm.buildStatusOptions(profile, from, target, options)

	updated, err := sm.profiles.UpdateStatus(ctx, profile.ID, target, statusOpts...)
	if err != nil {
		return nil, err
	}

	sm.applyUpdates(profile, updated, target, from, chosenSuspension)

	if err := sm.runHooks(ctx, options.afterHooks, ctxData, HookPhaseAfter); err != nil {
		return nil, err
	}

	sm.recordActivity(ctx, ActivityEvent{
		EventType:  ActivityEventAccountStatusChanged,
		Actor:      actor,
		AccountID:  profile.ID.String(),
		FromStatus: string(from),
		ToStatus:   string(target),
		Metadata:   sm.transitionMetadata(ctxData.Meta),
	})

	return profile, nil
}

func (sm *accountStateMachine) CurrentStatus(profile *Profile) AccountStatus {
	if profile == nil {
		return ""
	}
	profile.EnsureStatus()
	return profile.Status
}

// rejectTransition builds the user-facing rejection. The contract here is
// that the message always names the account and its actual current status.
func (sm *accountStateMachine) rejectTransition(profile *Profile, from, target AccountStatus) error {
	return rejectAccountTransition(profile, from, target)
}

func (sm *accountStateMachine) runHooks(ctx context.Context, hooks []TransitionHook, data TransitionContext, phase TransitionHookPhase) error {
	for _, hook := range hooks {
		if hook == nil {
			continue
		}
		if err := hook(ctx, data); err != nil {
			if sm.hookErrorHandler == nil {
				return err
			}
			return sm.hookErrorHandler(ctx, phase, err, data)
		}
	}
	return nil
}

func (sm *accountStateMachine) canTransition(from, to AccountStatus) bool {
	if allowed, ok := sm.transitions[from]; ok {
		_, exists := allowed[to]
		return exists
	}
	return false
}

func (sm *accountStateMachine) buildTransitionOptions(opts ...TransitionOption) *transitionOptions {
	options := &transitionOptions{}
	for _, opt := range opts {
		if opt != nil {
			opt(options)
		}
	}
	return options
}

func (sm *accountStateMachine) buildStatusOptions(profile *Profile, from, to AccountStatus, opts *transitionOptions) ([]StatusUpdateOption, *time.Time) {
	statusOpts := []StatusUpdateOption{}
	var suspensionTime *time.Time

	if opts.expectedVersion != nil {
		statusOpts = append(statusOpts, WithExpectedVersion(*opts.expectedVersion))
	}

	if to == StatusSuspended {
		switch {
		case opts.suspensionTime != nil:
			suspensionTime = opts.suspensionTime
		case profile.SuspendedAt != nil:
			suspensionTime = profile.SuspendedAt
		default:
			now := sm.now()
			suspensionTime = &now
		}
		statusOpts = append(statusOpts, WithSuspendedAt(suspensionTime))
	} else if from == StatusSuspended && profile.SuspendedAt != nil {
		statusOpts = append(statusOpts, WithSuspendedAt(nil))
	}

	return statusOpts, suspensionTime
}

func defaultHookErrorHandler(_ context.Context, phase TransitionHookPhase, err error, tc TransitionContext) error {
	panic(fmt.Sprintf(
		"go-accounts: %s transition hook failed: %v\nAccountID: %s from=%s to=%s reason=%s\nProvide accounts.WithStateMachineHookErrorHandler to customize error handling in production.",
		phase,
		err,
		tc.Profile.ID,
		tc.From,
		tc.To,
		tc.Meta.Reason,
	))
}

func (sm *accountStateMachine) applyUpdates(profile, updated *Profile, target, from AccountStatus, suspensionTime *time.Time) {
	if updated != nil {
		if updated.Status != "" {
			profile.Status = updated.Status
		} else {
			profile.Status = target
		}
		profile.SuspendedAt = updated.SuspendedAt
		profile.UpdatedAt = updated.UpdatedAt
		profile.Version = updated.Version
		return
	}

	profile.Status = target
	if target == StatusSuspended {
		profile.SuspendedAt = suspensionTime
	} else if from == StatusSuspended {
		profile.SuspendedAt = nil
	}
}

func (sm *accountStateMachine) recordActivity(ctx context.Context, event ActivityEvent) {
	if event.Actor == (ActorRef{}) {
		event.Actor = ActorRef{Type: "system"}
	}

	if event.OccurredAt.IsZero() {
		event.OccurredAt = sm.now()
	}

	sink := normalizeActivitySink(sm.activitySink)
	if err := sink.Record(ctx, event); err != nil {
		sm.logger.Warn("state machine activity sink error: %v", err)
	}
}

func (sm *accountStateMachine) transitionMetadata(meta TransitionMetadata) map[string]any {
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
