package accounts

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/google/uuid"
)

type VerifyEmailMessage struct {
	Code string `json:"code" example:"350399bc-c095-4bdc-a59c-3352d44848e4" doc:"Email verification code"`
}

func (e VerifyEmailMessage) Type() string { return "account.verify_email" }

// VerifyEmailHandler consumes a verify-email code. It only proves inbox
// possession: the identity's verified flag flips, the profile status does
// not move until the owner signs in again.
type VerifyEmailHandler struct {
	provider IdentityProvider
	activity ActivitySink
	logger   Logger
}

func NewVerifyEmailHandler(provider IdentityProvider) *VerifyEmailHandler {
	return &VerifyEmailHandler{
		provider: provider,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit verification events.
func (h *VerifyEmailHandler) WithActivitySink(sink ActivitySink) *VerifyEmailHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *VerifyEmailHandler) WithLogger(logger Logger) *VerifyEmailHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *VerifyEmailHandler) Execute(ctx context.Context, event VerifyEmailMessage) (*Identity, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during email verification",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *VerifyEmailHandler) execute(ctx context.Context, event VerifyEmailMessage) (*Identity, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code, err := uuid.Parse(event.Code)
	if err != nil {
		return nil, ErrInvalidOrExpiredCode
	}

	identity, err := h.provider.ConsumeVerifyEmailCode(ctx, code)
	if err != nil {
		err = MapDeadline(err, "code consumption timed out during email verification")
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to verify email")
	}

	h.recordActivity(ctx, identity)

	return identity, nil
}

func (h *VerifyEmailHandler) recordActivity(ctx context.Context, identity *Identity) {
	event := ActivityEvent{
		EventType: ActivityEventEmailVerified,
		Actor: ActorRef{
			ID:   identity.ID.String(),
			Type: "user",
		},
		AccountID:  identity.ID.String(),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during email verification: %v", err)
	}
}
