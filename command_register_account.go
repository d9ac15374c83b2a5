package accounts

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	goerrors "github.com/goliatone/go-errors"
	"github.com/nyaruka/phonenumbers"
)

// DefaultMobileRegion is used to parse mobile numbers given without a
// country prefix.
var DefaultMobileRegion = "PH"

type RegisterAccountMessage struct {
	FirstName       string `json:"first_name"`
	LastName        string `json:"last_name"`
	Gender          string `json:"gender"`
	Mobile          string `json:"mobile"`
	City            string `json:"city"`
	FacebookLink    string `json:"facebook_link"`
	Role            string `json:"role"`
	Email           string `json:"email"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (e RegisterAccountMessage) Type() string { return "account.register" }

// Validate enforces the signup form rules before anything is written.
func (e RegisterAccountMessage) Validate() error {
	err := validation.ValidateStruct(&e,
		validation.Field(&e.FirstName, validation.Required),
		validation.Field(&e.LastName, validation.Required),
		validation.Field(&e.Email, validation.Required, is.Email),
		validation.Field(&e.Mobile, validation.Required),
		validation.Field(&e.Role, validation.Required, validation.By(validateRole)),
		validation.Field(&e.City, validation.By(validateCity)),
	)
	if err != nil {
		return goerrors.Wrap(err, goerrors.CategoryValidation, "invalid registration data").
			WithTextCode(TextCodeInvalidEmail)
	}

	if _, perr := phonenumbers.Parse(e.Mobile, DefaultMobileRegion); perr != nil {
		return goerrors.New("mobile number is not valid", goerrors.CategoryValidation).
			WithTextCode("INVALID_MOBILE")
	}

	if err := ValidatePassword(e.Password); err != nil {
		return err
	}

	return ValidatePasswordConfirmation(e.Password, e.ConfirmPassword)
}

func validateRole(value any) error {
	raw, _ := value.(string)
	if _, ok := ParseAccountRole(raw); !ok {
		return goerrors.New("role must be driver, passenger or hybrid", goerrors.CategoryValidation).
			WithTextCode(TextCodeInvalidRole)
	}
	return nil
}

func validateCity(value any) error {
	raw, _ := value.(string)
	if raw == "" {
		return nil
	}
	if !IsServiceableCity(raw) {
		return goerrors.New("city is outside the service area", goerrors.CategoryValidation).
			WithTextCode("INVALID_CITY")
	}
	return nil
}

// RegisterAccountHandler performs the two-write signup: identity first,
// profile second, compensating delete if the second write fails.
type RegisterAccountHandler struct {
	provider IdentityProvider
	repo     RepositoryManager
	activity ActivitySink
	logger   Logger
}

func NewRegisterAccountHandler(provider IdentityProvider, repo RepositoryManager) *RegisterAccountHandler {
	return &RegisterAccountHandler{
		provider: provider,
		repo:     repo,
		activity: noopActivitySink{},
		logger:   defLogger{},
	}
}

// WithActivitySink sets the sink used to emit registration events.
func (h *RegisterAccountHandler) WithActivitySink(sink ActivitySink) *RegisterAccountHandler {
	h.activity = normalizeActivitySink(sink)
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RegisterAccountHandler) WithLogger(logger Logger) *RegisterAccountHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

func (h *RegisterAccountHandler) Execute(ctx context.Context, event RegisterAccountMessage) (*Profile, error) {
	select {
	case <-ctx.Done():
		return nil, goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during account registration",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *RegisterAccountHandler) execute(ctx context.Context, event RegisterAccountMessage) (*Profile, error) {
	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if err := event.Validate(); err != nil {
		return nil, err
	}

	identity, err := h.provider.RegisterIdentity(ctx, event.Email, event.Password)
	if err != nil {
		err = MapDeadline(err, "identity write timed out during registration")
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return nil, richErr
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to register identity")
	}

	profile := &Profile{
		ID:           identity.ID,
		Email:        identity.Email,
		FirstName:    event.FirstName,
		LastName:     event.LastName,
		Gender:       event.Gender,
		Mobile:       event.Mobile,
		City:         event.City,
		FacebookLink: event.FacebookLink,
		Role:         AccountRole(event.Role),
		Status:       StatusAwaitingEmailVerification,
	}

	profile, err = h.repo.Profiles().CreateProfile(ctx, profile)
	if err != nil {
		// Orphaned credentials would let someone sign in to an account
		// that has no data, so undo the first write.
		if derr := h.provider.DeleteIdentity(ctx, identity.ID); derr != nil {
			h.logger.Error("failed to compensate identity after profile write failure: %v", derr)
		}
		if err = MapDeadline(err, "profile write timed out during registration"); IsTimeout(err) {
			return nil, err
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to create account profile")
	}

	if _, err := h.provider.SendVerificationEmail(ctx, identity); err != nil {
		h.logger.Error("failed to send verification email: %v", err)
	}

	h.recordActivity(ctx, profile)

	return profile, nil
}

func (h *RegisterAccountHandler) recordActivity(ctx context.Context, profile *Profile) {
	event := ActivityEvent{
		EventType: ActivityEventAccountRegistered,
		Actor: ActorRef{
			ID:   profile.ID.String(),
			Type: "user",
		},
		AccountID:  profile.ID.String(),
		ToStatus:   string(profile.Status),
		OccurredAt: time.Now(),
	}

	if err := normalizeActivitySink(h.activity).Record(ctx, event); err != nil {
		h.logger.Warn("activity sink error during registration: %v", err)
	}
}
