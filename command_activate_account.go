package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type ActivateAccountMessage struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (e ActivateAccountMessage) Type() string { return "account.activate" }

// ActivateAccountHandler advances a verified account into the admin review
// queue. The advance happens on a fresh sign-in, never inside the code
// consumption itself: the credentials prove the owner is present and the
// verified flag proves the inbox was reached.
type ActivateAccountHandler struct {
	provider IdentityProvider
	repo     RepositoryManager
	machine  AccountStateMachine
	logger   Logger
}

func NewActivateAccountHandler(provider IdentityProvider, repo RepositoryManager, machine AccountStateMachine) *ActivateAccountHandler {
	return &ActivateAccountHandler{
		provider: provider,
		repo:     repo,
		machine:  machine,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *ActivateAccountHandler) WithLogger(logger Logger) *ActivateAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *ActivateAccountHandler) Execute(ctx context.Context, event ActivateAccountMessage) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account activation",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *ActivateAccountHandler) execute(ctx context.Context, event ActivateAccountMessage) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	identity, err := h.provider.VerifyIdentity(ctx, event.Email, event.Password)
	if err != nil {
		return nil, MapDeadline(err, "credential check timed out during activation")
	}

	profile, err := h.repo.Profiles().GetProfile(ctx, identity.ID)
	if err != nil {
		return nil, MapDeadline(err, "profile read timed out during activation")
	}

	// Only the very first stage advances here; every later status is an
	// admin decision and is left untouched.
	if profile.Status != StatusAwaitingEmailVerification {
		return profile, nil
	}

	if !identity.EmailVerified {
		return profile, nil
	}

	actor := ActorRef{ID: identity.ID.String(), Type: "user"}
	profile, err = h.machine.Transition(ctx, actor, profile, StatusAwaitingAdminApproval,
		WithTransitionReason("email verified"),
		WithExpectedProfileVersion(profile.Version),
	)
	if err != nil {
		return nil, MapDeadline(err, "status change timed out during activation")
	}

	return profile, nil
}
