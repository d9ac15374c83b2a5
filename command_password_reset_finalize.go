package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type FinalizePasswordResetMessage struct {
	Code            string `json:"code" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Reset password code"`
	Password        string `json:"password" doc:"New password"`
	ConfirmPassword string `json:"confirm_password" doc:"New password, repeated"`
}

func (e FinalizePasswordResetMessage) Type() string { return "account.password_reset.finalize" }

// FinalizePasswordResetHandler consumes a reset code and stores the new
// password. Because a successful reset proves inbox possession, an account
// still waiting for email verification also advances into the admin review
// queue; accounts in any later status keep whatever status an admin gave
// them.
type FinalizePasswordResetHandler struct {
	provider IdentityProvider
	repo     RepositoryManager
	machine  AccountStateMachine
	activity ActivitySink
	logger   Logger
}

func NewFinalizePasswordResetHandler(provider IdentityProvider, repo RepositoryManager, machine AccountStateMachine) *FinalizePasswordResetHandler {
	return &FinalizePasswordResetHandler{
		provider: provider,
		repo:     repo,
		machine:  machine,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit password reset events.
func (h *FinalizePasswordResetHandler) WithActivitySink(sink ActivitySink) *FinalizePasswordResetHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *FinalizePasswordResetHandler) WithLogger(logger Logger) *FinalizePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *FinalizePasswordResetHandler) Execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset finalization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *FinalizePasswordResetHandler) execute(ctx context.Context, event FinalizePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := ValidatePassword(event.Password); err != nil {
		return err
	}

	if err := ValidatePasswordConfirmation(event.Password, event.ConfirmPassword); err != nil {
		return err
	}

	code, err := uuid.Parse(event.Code)
	if err != nil {
		return ErrInvalidOrExpiredCode
	}

	passwordHash, err := HashPassword(event.Password)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid new password provided")
	}

	identity, err := h.provider.ConsumeResetPasswordCode(ctx, code, passwordHash)
	if err != nil {
		err = MapDeadline(err, "code consumption timed out during password reset")
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to finalize password reset")
	}

	h.advanceIfUnverified(ctx, identity)
	h.recordActivity(ctx, identity)

	return nil
}

// advanceIfUnverified moves a first-stage account into the review queue.
// Failures here are logged, not returned: the password was already reset
// and the owner can still advance by signing in.
func (h *FinalizePasswordResetHandler) advanceIfUnverified(ctx context.Context, identity *Identity) {
	profile, err := h.repo.Profiles().GetProfile(ctx, identity.ID)
	if err != nil {
		h.logger.Warn("could not load profile after password reset: %v", err)
		return
	}

	if profile.Status != StatusAwaitingEmailVerification {
		return
	}

	actor := ActorRef{ID: identity.ID.String(), Type: "user"}
	_, err = h.machine.Transition(ctx, actor, profile, StatusAwaitingAdminApproval,
		WithTransitionReason("password reset confirmed inbox"),
		WithExpectedProfileVersion(profile.Version),
	)
	if err != nil {
		h.logger.Warn("could not advance account after password reset: %v", err)
	}
}

func (h *FinalizePasswordResetHandler) recordActivity(ctx context.Context, identity *Identity) {
	event := ActivityEvent{
		EventType: ActivityEventPasswordResetSuccess,
		Actor: ActorRef{
			ID:   identity.ID.String(),
			Type: "user",
		},
		AccountID:  identity.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during password reset: %v", err)
	}
}
