package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/uptrace/bun"
)

// MinPasswordLength is the minimum accepted password size.
const MinPasswordLength = 6

// DefaultVerificationCodeTTL bounds how long an issued code stays valid.
const DefaultVerificationCodeTTL = 15 * time.Minute

type SignupMessage struct {
	Email      string `json:"email"`
	Password   string `json:"password"`
	UseHashid  bool
	OnResponse func(resp *SignupResponse)
}

func (e SignupMessage) Type() string { return "account.signup" }

// SignupResponse carries the redacted view plus the freshly minted session
// credential: signup is auto-login.
type SignupResponse struct {
	Account *AccountView
	Token   string
}

type SignupHandler struct {
	repo    RepositoryManager
	tokens  TokenService
	mailer  Mailer
	logger  Logger
	codeTTL time.Duration
	now     func() time.Time
}

// NewSignupHandler creates a handler with sane defaults.
func NewSignupHandler(repo RepositoryManager, tokens TokenService) *SignupHandler {
	return &SignupHandler{
		repo:    repo,
		tokens:  tokens,
		mailer:  NewLogMailer(nil),
		logger:  defLogger{},
		codeTTL: DefaultVerificationCodeTTL,
		now:     time.Now,
	}
}

// WithMailer sets the out-of-band delivery collaborator.
func (h *SignupHandler) WithMailer(mailer Mailer) *SignupHandler {
	if mailer != nil {
		h.mailer = mailer
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *SignupHandler) WithLogger(logger Logger) *SignupHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithCodeTTL overrides the verification code validity window.
func (h *SignupHandler) WithCodeTTL(ttl time.Duration) *SignupHandler {
	if ttl > 0 {
		h.codeTTL = ttl
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *SignupHandler) WithClock(clock func() time.Time) *SignupHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *SignupHandler) Execute(ctx context.Context, event SignupMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(
			ctx.Err(),
			goerrors.CategoryOperation,
			"context cancelled during signup",
		)
	default:
		return h.execute(ctx, event)
	}
}

func (h *SignupHandler) execute(ctx context.Context, event SignupMessage) error {
	account := &Account{}
	resp := &SignupResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	if len(event.Password) < MinPasswordLength {
		return ErrPasswordPolicy
	}

	code, err := GenerateVerificationCode()
	if err != nil {
		return err
	}

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email); err == nil {
			return ErrEmailTaken
		} else if !repository.IsRecordNotFound(err) && !goerrors.IsNotFound(err) {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to check for existing account")
		}

		hash, err := HashPassword(event.Password)
		if err != nil {
			var richErr *goerrors.Error
			if goerrors.As(err, &richErr) {
				return richErr
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to hash password")
		}

		account.Email = event.Email
		account.PasswordHash = hash
		account.Role = RoleStandard
		if event.UseHashid {
			if id, err := hashid.NewUUID(NormalizeEmail(event.Email)); err == nil {
				account.ID = id
			}
		}

		if account, err = h.repo.Accounts().CreateTx(ctx, tx, account); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryConflict, "could not create account")
		}

		expiresAt := h.now().Add(h.codeTTL)
		if err := h.repo.Accounts().SetVerificationCodeTx(ctx, tx, account.ID, code, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification code")
		}

		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "signup transaction failed")
	}

	go func() {
		if err := h.mailer.SendVerificationCode(account.Email, code); err != nil {
			h.logger.Warn("verification code dispatch failed", "error", err)
		}
	}()

	// signup is auto-login: the account gets a session before it is verified
	token, err := h.tokens.Issue(account.View())
	if err != nil {
		return err
	}

	resp.Account = account.View()
	resp.Token = token

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
