package accounts

import (
	"context"
	"net/mail"
	"time"

	goerrors "github.com/goliatone/go-errors"
)

type InitializePasswordResetMessage struct {
	Email string `json:"email" example:"user@example.com" doc:"Account email"`
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset.init" }

// InitializePasswordResetHandler starts the forgot-password flow. It
// succeeds for unknown emails too, the response never discloses whether an
// account exists.
type InitializePasswordResetHandler struct {
	provider IdentityProvider
	logger   Logger
}

func NewInitializePasswordResetHandler(provider IdentityProvider) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		provider: provider,
		logger:   defLogger{},
	}
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *InitializePasswordResetHandler) Execute(ctx context.Context, event InitializePasswordResetMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during password reset initialization",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if _, err := mail.ParseAddress(event.Email); err != nil {
		return goerrors.New("a valid email address is required", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidEmail)
	}

	if err := h.provider.SendPasswordResetEmail(ctx, event.Email); err != nil {
		err = MapDeadline(err, "reset email dispatch timed out")
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	return nil
}
