package accounts

import (
	"fmt"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
	"github.com/google/uuid"
)

type AccountsControllerRoutes struct {
	Login           string
	Logout          string
	Register        string
	Activate        string
	Dashboard       string
	VerifyEmail     string
	PasswordReset   string
	PasswordConfirm string
	InspectCode     string
	AdminUsers      string
	AdminRides      string
	AdminProposals  string
	ExportUsers     string
	ExportRides     string
}

// AccountsController is the fiber surface over the account lifecycle: public
// signup and session routes, the out-of-band code flows, and the admin
// moderation routes that drive the propose/commit broker.
type AccountsController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Provider IdentityProvider
	Machine  AccountStateMachine
	Broker   *TransitionBroker
	Exporter *CSVExporter
	Auther   *RouteAuthenticator
	Scopes   *ScopeRegistry
	Routes   *AccountsControllerRoutes
}

type AccountsControllerOption func(*AccountsController) *AccountsController

func NewAccountsController(opts ...AccountsControllerOption) *AccountsController {
	c := &AccountsController{
		Logger: defLogger{},
		Routes: &AccountsControllerRoutes{
			Login:           "/login",
			Logout:          "/logout",
			Register:        "/register",
			Activate:        "/activate",
			Dashboard:       "/login/dashboard",
			VerifyEmail:     "/verify-email",
			PasswordReset:   "/password-reset",
			PasswordConfirm: "/password-reset/confirm",
			InspectCode:     "/oob/:code",
			AdminUsers:      "/admin/users",
			AdminRides:      "/admin/rides",
			AdminProposals:  "/admin/proposals",
			ExportUsers:     "/admin/export/users.csv",
			ExportRides:     "/admin/export/rides.csv",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in accounts controller...")
	}

	if c.Provider == nil {
		panic("Missing IdentityProvider in accounts controller...")
	}

	if c.Auther == nil {
		panic("Missing RouteAuthenticator in accounts controller...")
	}

	return c
}

func (a *AccountsController) WithLogger(logger Logger) *AccountsController {
	if logger != nil {
		a.Logger = logger
	}
	return a
}

// RegisterAccountRoutes mounts the controller. The limiter guards the
// unauthenticated surface; admin routes go through the admin middleware.
func RegisterAccountRoutes(app fiber.Router, cfg Config, limiter *RateLimiter, opts ...AccountsControllerOption) *AccountsController {
	controller := NewAccountsController(opts...)

	protected := controller.Auther.ProtectedRoute(cfg, controller.Auther.MakeClientRouteAuthErrorHandler(false))
	admin := controller.Auther.AdminRoute(cfg, controller.Auther.MakeClientRouteAuthErrorHandler(false))
	optional := controller.Auther.ProtectedRoute(cfg, controller.Auther.MakeClientRouteAuthErrorHandler(true))
	active := controller.RequireActiveAccount()

	app.Post(controller.Routes.Register, limiter.SignupMiddleware(), controller.RegistrationCreate)
	app.Post(controller.Routes.Login, limiter.LoginMiddleware(), controller.LoginPost)
	app.Post(controller.Routes.Activate, limiter.LoginMiddleware(), controller.ActivatePost)
	app.Post(controller.Routes.Dashboard, protected, active, controller.DashboardChoice)
	app.Get(controller.Routes.Logout, optional, controller.LogOut)

	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmailPost)
	app.Post(controller.Routes.PasswordReset, controller.PasswordResetPost)
	app.Post(controller.Routes.PasswordConfirm, controller.PasswordResetConfirm)
	app.Get(controller.Routes.InspectCode, controller.InspectCode)

	app.Get(controller.Routes.AdminUsers, admin, active, controller.AdminUsersIndex)
	app.Get(controller.Routes.AdminRides, admin, active, controller.AdminRidesIndex)
	app.Post(controller.Routes.AdminProposals, admin, active, controller.AdminProposalCreate)
	app.Post(fmt.Sprintf("%s/:handle/commit", controller.Routes.AdminProposals), admin, active, controller.AdminProposalCommit)
	app.Delete(fmt.Sprintf("%s/:handle", controller.Routes.AdminProposals), admin, active, controller.AdminProposalCancel)

	app.Get(controller.Routes.ExportUsers, admin, active, controller.ExportUsers)
	app.Get(controller.Routes.ExportRides, admin, active, controller.ExportRides)

	return controller
}

// RequireActiveAccount re-reads the profile behind the token before every
// dashboard or moderation request. A token outlives a suspension or
// rejection, so the stored status, not the claim set, is authoritative.
func (a *AccountsController) RequireActiveAccount() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
		if !ok {
			return a.renderError(c, ErrUnableToFindSession)
		}

		id, err := uuid.Parse(claims.UserID())
		if err != nil {
			return a.renderError(c, ErrProfileNotFound)
		}

		profile, err := a.Repo.Profiles().GetProfile(c.UserContext(), id)
		if err != nil {
			return a.renderError(c, err)
		}

		if profile.Status != StatusAccessGranted {
			a.Logger.Info(
				"Rejecting request for inactive account",
				"profile_id", profile.ID,
				"status", profile.Status,
			)
			return a.renderError(c, ErrAccountNotActive)
		}

		return c.Next()
	}
}

// LoginRequest payload
type LoginRequest struct {
	Identifier string `form:"identifier" json:"identifier"`
	Password   string `form:"password" json:"password"`
	RememberMe bool   `form:"remember_me" json:"remember_me"`
}

// GetIdentifier returns the identifier
func (r LoginRequest) GetIdentifier() string {
	return r.Identifier
}

// GetPassword will return the password
func (r LoginRequest) GetPassword() string {
	return r.Password
}

// GetExtendedSession reports whether the long-lived cookie was requested
func (r LoginRequest) GetExtendedSession() bool {
	return r.RememberMe
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Identifier,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AccountsController) LoginPost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload: ", "error", err)
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	if a.Debug {
		fmt.Println("======= AUTH LOGIN ======")
		fmt.Println(print.MaybePrettyJSON(payload))
		fmt.Println("=========================")
	}

	result, err := a.Auther.Login(c, payload)
	if err != nil {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": UserMessage(err),
		})
	}

	return c.JSON(loginResponse(result))
}

// loginResponse shapes the login outcome: the token, the reachable
// dashboards, and the status guidance the UI shows verbatim.
func loginResponse(result *LoginResult) fiber.Map {
	body := fiber.Map{
		"token":        result.Token,
		"status":       result.Profile.Status,
		"dashboards":   result.Dashboards,
		"needs_choice": result.NeedsChoice,
	}
	if guidance := LoginGuidance(result.Profile.Status, result.EmailVerified); guidance != "" {
		body["guidance"] = guidance
	}
	return body
}

// LoginGuidance is the status-specific text shown after a sign-in that does
// not land on a dashboard. AccessGranted needs none. The first stage tells
// an unverified account to check its inbox; once the identity flag is set
// the same status means the activating sign-in has not happened yet.
func LoginGuidance(status AccountStatus, emailVerified bool) string {
	switch status {
	case StatusAccessGranted:
		return ""
	case StatusAwaitingEmailVerification:
		if !emailVerified {
			return "Email not verified. Please check your email for the verification link."
		}
		return "Your email has been verified. Please log in here to complete account activation."
	case StatusAwaitingAdminApproval:
		return "Your account is awaiting admin approval. Please wait patiently."
	default:
		return fmt.Sprintf("Your account status is %q. Please contact support.", string(status))
	}
}

// DashboardChoiceRequest resolves the hybrid-role ambiguity with an
// explicit selection.
type DashboardChoiceRequest struct {
	Dashboard string `form:"dashboard" json:"dashboard"`
}

func (r DashboardChoiceRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Dashboard, validation.Required),
	)
}

func (a *AccountsController) DashboardChoice(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"error": UserMessage(ErrUnableToFindSession),
		})
	}

	payload := new(DashboardChoiceRequest)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	chosen, err := ChooseDashboard(claims.Role(), claims.IsAdmin(), Dashboard(payload.Dashboard))
	if err != nil {
		return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
			"error": UserMessage(err),
		})
	}

	return c.JSON(fiber.Map{"dashboard": chosen})
}

func (a *AccountsController) LogOut(c *fiber.Ctx) error {
	if claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey()); ok {
		if a.Broker != nil {
			a.Broker.ReleaseSession(claims.UserID())
		}
		if a.Scopes != nil {
			a.Scopes.Release(claims.UserID())
		}
	}
	if scope, ok := ScopeFromContext(c.UserContext()); ok {
		scope.Close()
	}
	a.Auther.Logout(c)
	return c.Redirect("/", fiber.StatusTemporaryRedirect)
}

// RegistrationCreatePayload is the signup form payload
type RegistrationCreatePayload struct {
	FirstName       string `form:"first_name" json:"first_name"`
	LastName        string `form:"last_name" json:"last_name"`
	Gender          string `form:"gender" json:"gender"`
	Mobile          string `form:"mobile" json:"mobile"`
	City            string `form:"city" json:"city"`
	FacebookLink    string `form:"facebook_link" json:"facebook_link"`
	Role            string `form:"role" json:"role"`
	Email           string `form:"email" json:"email"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r RegistrationCreatePayload) toMessage() RegisterAccountMessage {
	return RegisterAccountMessage{
		FirstName:       r.FirstName,
		LastName:        r.LastName,
		Gender:          r.Gender,
		Mobile:          r.Mobile,
		City:            r.City,
		FacebookLink:    r.FacebookLink,
		Role:            r.Role,
		Email:           r.Email,
		Password:        r.Password,
		ConfirmPassword: r.ConfirmPassword,
	}
}

func (a *AccountsController) RegistrationCreate(c *fiber.Ctx) error {
	payload := new(RegistrationCreatePayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("register account parse payload: ", "error", err)
		return badRequest(c, "Error parsing body")
	}

	msg := payload.toMessage()
	if err := msg.Validate(); err != nil {
		a.Logger.Error("register account validate payload: ", "error", err)
		return validationFailed(c, err)
	}

	registerAccount := NewRegisterAccountHandler(a.Provider, a.Repo).WithLogger(a.Logger)
	profile, err := registerAccount.Execute(c.UserContext(), msg)
	if err != nil {
		a.Logger.Error("register account error: ", "error", err)
		return a.renderError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"profile": profile,
		"message": "Registration successful. Check your inbox for the verification link.",
	})
}

// ActivatePost is the post-verification sign-in that moves the account into
// the admin review queue.
func (a *AccountsController) ActivatePost(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	activate := NewActivateAccountHandler(a.Provider, a.Repo, a.Machine).WithLogger(a.Logger)
	profile, err := activate.Execute(c.UserContext(), ActivateAccountMessage{
		Email:    payload.Identifier,
		Password: payload.Password,
	})
	if err != nil {
		a.Logger.Error("activate account error: ", "error", err)
		return a.renderError(c, err)
	}

	// A first-stage status after a successful activate call means the
	// handler declined to advance because the email is still unverified.
	return c.JSON(fiber.Map{
		"status":   profile.Status,
		"guidance": LoginGuidance(profile.Status, profile.Status != StatusAwaitingEmailVerification),
	})
}

// VerifyEmailRequest carries the out-of-band code from the email link.
type VerifyEmailRequest struct {
	Code string `form:"code" json:"code"`
}

func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, is.UUID),
	)
}

func (a *AccountsController) VerifyEmailPost(c *fiber.Ctx) error {
	payload := new(VerifyEmailRequest)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	verify := NewVerifyEmailHandler(a.Provider).WithLogger(a.Logger)
	if _, err := verify.Execute(c.UserContext(), VerifyEmailMessage{Code: payload.Code}); err != nil {
		a.Logger.Error("verify email error: ", "error", err)
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Your email has been verified. Please log in here to complete account activation.",
	})
}

// PasswordResetRequestPayload holds values for password reset
type PasswordResetRequestPayload struct {
	Email string `form:"email" json:"email"`
}

// Validate will validate the payload
func (r PasswordResetRequestPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AccountsController) PasswordResetPost(c *fiber.Ctx) error {
	payload := new(PasswordResetRequestPayload)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("password reset parse payload: ", "error", err)
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	initReset := NewInitializePasswordResetHandler(a.Provider).WithLogger(a.Logger)
	if err := initReset.Execute(c.UserContext(), InitializePasswordResetMessage{Email: payload.Email}); err != nil {
		a.Logger.Error("password reset init error: ", "error", err)
		return a.renderError(c, err)
	}

	// Same response whether or not the email exists.
	return c.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"message": "If an account exists for that email, a reset link is on its way.",
	})
}

// PasswordResetConfirmPayload holds the code and the replacement password.
type PasswordResetConfirmPayload struct {
	Code            string `form:"code" json:"code"`
	Password        string `form:"password" json:"password"`
	ConfirmPassword string `form:"confirm_password" json:"confirm_password"`
}

func (r PasswordResetConfirmPayload) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Code, validation.Required, is.UUID),
		validation.Field(&r.Password, validation.Required),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

func (a *AccountsController) PasswordResetConfirm(c *fiber.Ctx) error {
	payload := new(PasswordResetConfirmPayload)

	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	finalize := NewFinalizePasswordResetHandler(a.Provider, a.Repo, a.Machine).WithLogger(a.Logger)
	err := finalize.Execute(c.UserContext(), FinalizePasswordResetMessage{
		Code:            payload.Code,
		Password:        payload.Password,
		ConfirmPassword: payload.ConfirmPassword,
	})
	if err != nil {
		a.Logger.Error("password reset finalize error: ", "error", err)
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Your password has been updated. You can sign in with it now.",
	})
}

// InspectCode recovers the email bound to a still-valid code so the UI can
// pre-fill the resend form. It never consumes the code.
func (a *AccountsController) InspectCode(c *fiber.Ctx) error {
	code, err := uuid.Parse(c.Params("code"))
	if err != nil {
		return a.renderError(c, ErrInvalidOrExpiredCode)
	}

	record, err := a.Provider.InspectActionCode(c.UserContext(), code)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{
		"kind":  record.Kind,
		"email": record.Email,
	})
}

// watchPollWindow bounds how long a watching dashboard request is held open
// before it re-queries regardless of activity.
const watchPollWindow = 25 * time.Second

// sessionWatch opens the session's live watch on the collection and installs
// the scope in the request context. The admin dashboards subscribe on every
// index request; a session holds at most one watch per collection, so the
// subscription simply replaces the previous one.
func (a *AccountsController) sessionWatch(c *fiber.Ctx, collection Collection) <-chan struct{} {
	if a.Scopes == nil {
		return nil
	}

	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return nil
	}

	scope := a.Scopes.ScopeFor(claims.UserID())
	c.SetUserContext(WithScopeContext(c.UserContext(), scope))
	return scope.Subscribe(collection)
}

// holdForChange parks a watch=true dashboard request until the collection
// changes, the poll window lapses, or the client goes away.
func holdForChange(c *fiber.Ctx, ch <-chan struct{}) {
	if ch == nil || !c.QueryBool("watch") {
		return
	}

	select {
	case <-ch:
	case <-time.After(watchPollWindow):
	case <-c.UserContext().Done():
	}
}

func (a *AccountsController) AdminUsersIndex(c *fiber.Ctx) error {
	holdForChange(c, a.sessionWatch(c, CollectionUsers))

	filter := ProfileFilter{}

	// "All" (and absence) means no status narrowing, per the dashboard UI.
	if raw := c.Query("status"); raw != "" && raw != "All" {
		status, ok := ParseAccountStatus(raw)
		if !ok {
			return badRequest(c, fmt.Sprintf("unknown account status %q", raw))
		}
		filter.Status = status
	}

	if raw := c.Query("role"); raw != "" {
		role, ok := ParseAccountRole(raw)
		if !ok {
			return badRequest(c, fmt.Sprintf("unknown account role %q", raw))
		}
		filter.Role = role
	}

	records, err := a.Repo.Profiles().ListProfiles(c.UserContext(), filter)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"users": records, "count": len(records)})
}

func (a *AccountsController) AdminRidesIndex(c *fiber.Ctx) error {
	holdForChange(c, a.sessionWatch(c, CollectionRides))

	filter := RideFilter{}

	if raw := c.Query("status"); raw != "" && raw != "All" {
		status, ok := ParseRideStatus(raw)
		if !ok {
			return badRequest(c, fmt.Sprintf("unknown ride status %q", raw))
		}
		filter.Status = status
	}

	if raw := c.Query("driver_id"); raw != "" {
		driverID, err := uuid.Parse(raw)
		if err != nil {
			return badRequest(c, "driver_id must be a UUID")
		}
		filter.DriverID = &driverID
	}

	records, err := a.Repo.Rides().ListRides(c.UserContext(), filter)
	if err != nil {
		return a.renderError(c, err)
	}

	return c.JSON(fiber.Map{"rides": records, "count": len(records)})
}

// ProposalCreateRequest stages one moderation transition.
type ProposalCreateRequest struct {
	Kind   string `form:"kind" json:"kind"`
	ID     string `form:"id" json:"id"`
	Target string `form:"target" json:"target"`
	Reason string `form:"reason" json:"reason"`
}

func (r ProposalCreateRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Kind, validation.Required, validation.In(string(ProposalKindAccount), string(ProposalKindRide))),
		validation.Field(&r.ID, validation.Required, is.UUID),
		validation.Field(&r.Target, validation.Required),
	)
}

func (a *AccountsController) AdminProposalCreate(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.renderError(c, ErrUnableToFindSession)
	}

	payload := new(ProposalCreateRequest)
	if err := c.BodyParser(payload); err != nil {
		return badRequest(c, "Error parsing body")
	}

	if err := payload.Validate(); err != nil {
		return validationFailed(c, err)
	}

	subjectID, err := uuid.Parse(payload.ID)
	if err != nil {
		return badRequest(c, "id must be a UUID")
	}

	var opts []TransitionOption
	if payload.Reason != "" {
		opts = append(opts, WithTransitionReason(payload.Reason))
	}

	var proposal *Proposal

	switch ProposalKind(payload.Kind) {
	case ProposalKindAccount:
		target, valid := ParseAccountStatus(payload.Target)
		if !valid {
			return badRequest(c, fmt.Sprintf("unknown account status %q", payload.Target))
		}

		profile, err := a.Repo.Profiles().GetProfile(c.UserContext(), subjectID)
		if err != nil {
			return a.renderError(c, err)
		}

		proposal, err = a.Broker.ProposeAccountTransition(claims.UserID(), profile, target, opts...)
		if err != nil {
			return a.renderError(c, err)
		}
	case ProposalKindRide:
		target, valid := ParseRideStatus(payload.Target)
		if !valid {
			return badRequest(c, fmt.Sprintf("unknown ride status %q", payload.Target))
		}

		ride, err := a.Repo.Rides().GetRide(c.UserContext(), subjectID)
		if err != nil {
			return a.renderError(c, err)
		}

		proposal, err = a.Broker.ProposeRideTransition(claims.UserID(), ride, target, opts...)
		if err != nil {
			return a.renderError(c, err)
		}
	}

	return c.Status(fiber.StatusCreated).JSON(proposal)
}

func (a *AccountsController) AdminProposalCommit(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.renderError(c, ErrUnableToFindSession)
	}

	handle, err := uuid.Parse(c.Params("handle"))
	if err != nil {
		return badRequest(c, "handle must be a UUID")
	}

	actor := ActorRef{ID: claims.UserID(), Type: "admin"}

	result, err := a.Broker.CommitProposal(c.UserContext(), actor, claims.UserID(), handle)
	if err != nil {
		return a.renderError(c, err)
	}

	body := fiber.Map{"kind": result.Kind}
	switch result.Kind {
	case ProposalKindAccount:
		body["profile"] = result.Profile
	case ProposalKindRide:
		body["ride"] = result.Ride
	}

	return c.JSON(body)
}

func (a *AccountsController) AdminProposalCancel(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.renderError(c, ErrUnableToFindSession)
	}

	handle, err := uuid.Parse(c.Params("handle"))
	if err != nil {
		return badRequest(c, "handle must be a UUID")
	}

	if err := a.Broker.CancelProposal(claims.UserID(), handle); err != nil {
		return a.renderError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (a *AccountsController) ExportUsers(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.renderError(c, ErrUnableToFindSession)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", UsersExportFilename))

	actor := ActorRef{ID: claims.UserID(), Type: "admin"}
	if err := a.Exporter.WriteUsers(c.UserContext(), c.Response().BodyWriter(), actor, ProfileFilter{}); err != nil {
		return a.renderError(c, err)
	}
	return nil
}

func (a *AccountsController) ExportRides(c *fiber.Ctx) error {
	claims, ok := GetFiberClaims(c, a.Auther.cfg.GetContextKey())
	if !ok {
		return a.renderError(c, ErrUnableToFindSession)
	}

	c.Set(fiber.HeaderContentType, "text/csv; charset=utf-8")
	c.Set(fiber.HeaderContentDisposition, fmt.Sprintf("attachment; filename=%q", RidesExportFilename))

	actor := ActorRef{ID: claims.UserID(), Type: "admin"}
	if err := a.Exporter.WriteRides(c.UserContext(), c.Response().BodyWriter(), actor, RideFilter{}); err != nil {
		return a.renderError(c, err)
	}
	return nil
}

// renderError maps the error taxonomy onto HTTP statuses, always with the
// user-facing message table text.
func (a *AccountsController) renderError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		switch richErr.Category {
		case goerrors.CategoryValidation:
			status = fiber.StatusUnprocessableEntity
		case goerrors.CategoryAuth:
			status = fiber.StatusUnauthorized
		case goerrors.CategoryAuthz:
			status = fiber.StatusForbidden
		case goerrors.CategoryConflict:
			status = fiber.StatusConflict
		case goerrors.CategoryNotFound:
			status = fiber.StatusNotFound
		case goerrors.CategoryOperation:
			status = fiber.StatusGatewayTimeout
		}
	}

	body := fiber.Map{"error": UserMessage(err)}
	if richErr != nil && richErr.TextCode != "" {
		body["code"] = richErr.TextCode
	}

	return c.Status(status).JSON(body)
}

func badRequest(c *fiber.Ctx, message string) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"error": message,
	})
}

func validationFailed(c *fiber.Ctx, err error) error {
	body := fiber.Map{"error": err.Error()}

	var richErr *goerrors.Error
	if goerrors.As(err, &richErr) {
		body["error"] = richErr.Message
		if richErr.TextCode != "" {
			body["code"] = richErr.TextCode
		}
	}

	return c.Status(fiber.StatusUnprocessableEntity).JSON(body)
}
