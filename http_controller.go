package identity

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/gofiber/fiber/v2"
	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-print"
)

// RegisterAuthRoutes mounts the identity endpoints on the app.
func RegisterAuthRoutes(app fiber.Router, opts ...AuthControllerOption) *AuthController {
	controller := NewAuthController(opts...)

	app.Post(controller.Routes.Signup, controller.Signup)
	app.Post(controller.Routes.Login, controller.Login)
	app.Post(controller.Routes.Logout, controller.Logout)
	app.Post(controller.Routes.VerifyEmail, controller.VerifyEmail)
	app.Post(controller.Routes.ResendVerification, controller.ResendVerification)
	app.Get(controller.Routes.CheckAuth, controller.CheckAuth)
	app.Post(controller.Routes.ForgotPassword, controller.ForgotPassword)
	app.Post(controller.Routes.ResetPassword+"/:token", controller.ResetPassword)

	return controller
}

type AuthControllerRoutes struct {
	Signup             string
	Login              string
	Logout             string
	VerifyEmail        string
	ResendVerification string
	CheckAuth          string
	ForgotPassword     string
	ResetPassword      string
}

type AuthController struct {
	Debug    bool
	Logger   Logger
	Repo     RepositoryManager
	Auther   Authenticator
	Tokens   TokenService
	Cookies  *CookieAuth
	Mailer   Mailer
	Routes   *AuthControllerRoutes
	CodeTTL  time.Duration
	TokenTTL time.Duration
}

type AuthControllerOption func(*AuthController) *AuthController

func NewAuthController(opts ...AuthControllerOption) *AuthController {
	c := &AuthController{
		Logger:   defLogger{},
		CodeTTL:  DefaultVerificationCodeTTL,
		TokenTTL: DefaultRecoveryTokenTTL,
		Routes: &AuthControllerRoutes{
			Signup:             "/auth/signup",
			Login:              "/auth/login",
			Logout:             "/auth/logout",
			VerifyEmail:        "/auth/verify-email",
			ResendVerification: "/auth/resend-verification",
			CheckAuth:          "/auth/check-auth",
			ForgotPassword:     "/auth/forgot-password",
			ResetPassword:      "/auth/reset-password",
		},
	}

	for _, opt := range opts {
		c = opt(c)
	}

	if c.Repo == nil {
		panic("Missing RepositoryManager in auth controller...")
	}

	if c.Auther == nil {
		panic("Missing Authenticator in auth controller...")
	}

	if c.Tokens == nil {
		panic("Missing TokenService in auth controller...")
	}

	if c.Cookies == nil {
		panic("Missing CookieAuth in auth controller...")
	}

	if c.Mailer == nil {
		c.Mailer = NewLogMailer(c.Logger)
	}

	return c
}

// WithRepository sets the repository manager.
func WithRepository(repo RepositoryManager) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Repo = repo
		return c
	}
}

// WithAuthenticator sets the credential authenticator.
func WithAuthenticator(auther Authenticator) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Auther = auther
		return c
	}
}

// WithTokenService sets the session issuer.
func WithTokenService(tokens TokenService) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Tokens = tokens
		return c
	}
}

// WithCookieAuth sets the cookie transport helper.
func WithCookieAuth(cookies *CookieAuth) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Cookies = cookies
		return c
	}
}

// WithControllerMailer sets the out-of-band delivery collaborator.
func WithControllerMailer(mailer Mailer) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Mailer = mailer
		return c
	}
}

// WithControllerLogger sets the controller logger.
func WithControllerLogger(logger Logger) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if logger != nil {
			c.Logger = logger
		}
		return c
	}
}

// WithConfig pulls the secret validity windows from the config. Unparseable
// or missing values keep the defaults.
func WithConfig(cfg Config) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		if cfg == nil {
			return c
		}
		if ttl, err := time.ParseDuration(cfg.GetVerificationCodeTTL()); err == nil && ttl > 0 {
			c.CodeTTL = ttl
		}
		if ttl, err := time.ParseDuration(cfg.GetRecoveryTokenTTL()); err == nil && ttl > 0 {
			c.TokenTTL = ttl
		}
		return c
	}
}

// WithDebug toggles pretty-printed payload dumps.
func WithDebug(debug bool) AuthControllerOption {
	return func(c *AuthController) *AuthController {
		c.Debug = debug
		return c
	}
}

// SignupRequest payload
type SignupRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r SignupRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 100),
		),
	)
}

func (a *AuthController) Signup(c *fiber.Ctx) error {
	payload := new(SignupRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("signup parse payload", "error", err)
		return respondValidation(c, err)
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	if a.Debug {
		a.Logger.Debug("signup payload: %s", print.MaybePrettyJSON(payload))
	}

	var resp *SignupResponse
	msg := SignupMessage{
		Email:    payload.Email,
		Password: payload.Password,
		OnResponse: func(r *SignupResponse) {
			resp = r
		},
	}

	signup := NewSignupHandler(a.Repo, a.Tokens).
		WithMailer(a.Mailer).
		WithLogger(a.Logger).
		WithCodeTTL(a.CodeTTL)

	if err := signup.Execute(c.Context(), msg); err != nil {
		a.Logger.Error("signup error", "error", err)
		return respondError(c, err)
	}

	a.Cookies.SetSession(c, resp.Token)

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"user": resp.Account,
	})
}

// LoginRequest payload
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Validate will run validation rules
func (r LoginRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
		validation.Field(
			&r.Password,
			validation.Required,
		),
	)
}

func (a *AuthController) Login(c *fiber.Ctx) error {
	payload := new(LoginRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("login parse payload", "error", err)
		return respondValidation(c, err)
	}

	if err := payload.Validate(); err != nil {
		// malformed input gets the same generic rejection as a bad
		// credential pair, nothing to enumerate here either
		return respondError(c, ErrInvalidCredentials)
	}

	view, token, err := a.Auther.Login(c.Context(), payload.Email, payload.Password)
	if err != nil {
		a.Logger.Info("login rejected", "error", err)
		return respondError(c, err)
	}

	a.Cookies.SetSession(c, token)

	return c.JSON(fiber.Map{
		"user": view,
	})
}

func (a *AuthController) Logout(c *fiber.Ctx) error {
	a.Cookies.ClearSession(c)
	return c.JSON(fiber.Map{})
}

// VerifyEmailRequest payload
type VerifyEmailRequest struct {
	Code string `json:"code"`
}

// Validate will run validation rules
func (r VerifyEmailRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Code,
			validation.Required,
			validation.Length(6, 6),
			is.Digit,
		),
	)
}

func (a *AuthController) VerifyEmail(c *fiber.Ctx) error {
	payload := new(VerifyEmailRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("verify email parse payload", "error", err)
		return respondValidation(c, err)
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	var resp *VerifyEmailResponse
	msg := VerifyEmailMessage{
		Code: payload.Code,
		OnResponse: func(r *VerifyEmailResponse) {
			resp = r
		},
	}

	verify := NewVerifyEmailHandler(a.Repo).WithLogger(a.Logger)

	if err := verify.Execute(c.Context(), msg); err != nil {
		a.Logger.Info("email verification rejected", "error", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"user": resp.Account,
	})
}

// ResendVerificationRequest payload
type ResendVerificationRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ResendVerificationRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) ResendVerification(c *fiber.Ctx) error {
	payload := new(ResendVerificationRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("resend verification parse payload", "error", err)
		return respondValidation(c, err)
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	msg := RequestVerificationMessage{
		Email: payload.Email,
	}

	resend := NewRequestVerificationHandler(a.Repo).
		WithMailer(a.Mailer).
		WithLogger(a.Logger).
		WithCodeTTL(a.CodeTTL)

	if err := resend.Execute(c.Context(), msg); err != nil {
		a.Logger.Info("resend verification rejected", "error", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Verification code sent",
	})
}

func (a *AuthController) CheckAuth(c *fiber.Ctx) error {
	view, err := a.Auther.CheckAuth(c.Context(), a.Cookies.SessionToken(c))
	if err != nil {
		if !IsAuthError(err) {
			a.Logger.Error("check-auth failed", "error", err)
		} else if a.Debug {
			// expected outcome for anonymous visitors, debug only
			a.Logger.Debug("check-auth rejected", "error", err)
		}
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"user": view,
	})
}

// ForgotPasswordRequest payload
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// Validate will run validation rules
func (r ForgotPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Email,
			validation.Required,
			is.Email,
		),
	)
}

func (a *AuthController) ForgotPassword(c *fiber.Ctx) error {
	payload := new(ForgotPasswordRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("forgot password parse payload", "error", err)
		return respondValidation(c, err)
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	var resp *InitializePasswordResetResponse
	msg := InitializePasswordResetMessage{
		Email: payload.Email,
		OnResponse: func(r *InitializePasswordResetResponse) {
			resp = r
		},
	}

	initReset := NewInitializePasswordResetHandler(a.Repo).
		WithMailer(a.Mailer).
		WithLogger(a.Logger).
		WithTokenTTL(a.TokenTTL)

	if err := initReset.Execute(c.Context(), msg); err != nil {
		a.Logger.Error("password reset initialization error", "error", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": resp.Message,
	})
}

// ResetPasswordRequest payload
type ResetPasswordRequest struct {
	Password string `json:"password"`
}

// Validate will run validation rules
func (r ResetPasswordRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(
			&r.Password,
			validation.Required,
			validation.Length(MinPasswordLength, 100),
		),
	)
}

func (a *AuthController) ResetPassword(c *fiber.Ctx) error {
	payload := new(ResetPasswordRequest)

	if err := c.BodyParser(payload); err != nil {
		a.Logger.Error("reset password parse payload", "error", err)
		return respondValidation(c, err)
	}

	if err := payload.Validate(); err != nil {
		return respondValidation(c, err)
	}

	msg := FinalizePasswordResetMessage{
		Token:    c.Params("token"),
		Password: payload.Password,
	}

	finalize := NewFinalizePasswordResetHandler(a.Repo).WithLogger(a.Logger)

	if err := finalize.Execute(c.Context(), msg); err != nil {
		a.Logger.Info("password reset rejected", "error", err)
		return respondError(c, err)
	}

	return c.JSON(fiber.Map{
		"message": "Password updated",
	})
}

// respondError maps a rich error onto the `{message}` failure payload with
// the status carried by the error code.
func respondError(c *fiber.Ctx, err error) error {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		richErr = goerrors.Wrap(err, goerrors.CategoryInternal, "An unexpected server error occurred").
			WithCode(goerrors.CodeInternal)
	}

	status := richErr.Code
	if status < fiber.StatusBadRequest {
		status = statusFromCategory(richErr.Category)
	}

	return c.Status(status).JSON(fiber.Map{
		"message": richErr.Message,
	})
}

func respondValidation(c *fiber.Ctx, err error) error {
	return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
		"message": err.Error(),
	})
}

func statusFromCategory(category goerrors.Category) int {
	switch category {
	case goerrors.CategoryAuth:
		return fiber.StatusUnauthorized
	case goerrors.CategoryAuthz:
		return fiber.StatusForbidden
	case goerrors.CategoryNotFound:
		return fiber.StatusNotFound
	case goerrors.CategoryConflict:
		return fiber.StatusConflict
	case goerrors.CategoryValidation, goerrors.CategoryBadInput:
		return fiber.StatusBadRequest
	default:
		return fiber.StatusInternalServerError
	}
}
