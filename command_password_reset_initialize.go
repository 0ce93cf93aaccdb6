package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// DefaultRecoveryTokenTTL bounds how long a recovery token stays valid.
// Long-lived relative to verification codes.
const DefaultRecoveryTokenTTL = time.Hour

// PasswordResetRequestedMessage is the informational result returned to the
// caller whether or not the email exists.
const PasswordResetRequestedMessage = "If an account exists for that email, a recovery link has been sent"

type InitializePasswordResetMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *InitializePasswordResetResponse)
}

func (e InitializePasswordResetMessage) Type() string { return "account.password_reset" }

type InitializePasswordResetResponse struct {
	Message string
	Success bool
}

type InitializePasswordResetHandler struct {
	repo     RepositoryManager
	mailer   Mailer
	logger   Logger
	tokenTTL time.Duration
	now      func() time.Time
}

// NewInitializePasswordResetHandler creates a handler with sane defaults.
func NewInitializePasswordResetHandler(repo RepositoryManager) *InitializePasswordResetHandler {
	return &InitializePasswordResetHandler{
		repo:     repo,
		mailer:   NewLogMailer(nil),
		logger:   defLogger{},
		tokenTTL: DefaultRecoveryTokenTTL,
		now:      time.Now,
	}
}

// WithMailer sets the out-of-band delivery collaborator.
func (h *InitializePasswordResetHandler) WithMailer(mailer Mailer) *InitializePasswordResetHandler {
	if mailer != nil {
		h.mailer = mailer
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *InitializePasswordResetHandler) WithLogger(logger Logger) *InitializePasswordResetHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithTokenTTL overrides the recovery token validity window.
func (h *InitializePasswordResetHandler) WithTokenTTL(ttl time.Duration) *InitializePasswordResetHandler {
	if ttl > 0 {
		h.tokenTTL = ttl
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *InitializePasswordResetHandler) WithClock(clock func() time.Time) *InitializePasswordResetHandler {
	if clock != nil {
		h.now = clock
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

// execute always reports success to the caller when the email is simply
// unknown: a distinguishable response would be an account enumeration
// signal. Issuing a new token overwrites any outstanding one.
func (h *InitializePasswordResetHandler) execute(ctx context.Context, event InitializePasswordResetMessage) error {
	resp := &InitializePasswordResetResponse{
		Message: PasswordResetRequestedMessage,
	}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	var email, token string

	err := h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return nil
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for password reset")
		}

		token, err = GenerateRecoveryToken()
		if err != nil {
			return err
		}

		expiresAt := h.now().Add(h.tokenTTL)
		if err := h.repo.Accounts().SetRecoveryTokenTx(ctx, tx, account.ID, token, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue recovery token")
		}

		email = account.Email
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to initialize password reset")
	}

	if email != "" {
		go func() {
			if err := h.mailer.SendRecoveryToken(email, token); err != nil {
				h.logger.Warn("recovery token dispatch failed", "error", err)
			}
		}()
	}

	resp.Success = true
	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
