package identity

import (
	"context"
	"time"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type RequestVerificationMessage struct {
	Email      string `json:"email"`
	OnResponse func(resp *RequestVerificationResponse)
}

func (e RequestVerificationMessage) Type() string { return "account.verification_request" }

type RequestVerificationResponse struct {
	Account *AccountView
}

// RequestVerificationHandler reissues a verification code, for resend flows.
// The new code overwrites the outstanding one.
type RequestVerificationHandler struct {
	repo    RepositoryManager
	mailer  Mailer
	logger  Logger
	codeTTL time.Duration
	now     func() time.Time
}

// NewRequestVerificationHandler creates a handler with sane defaults.
func NewRequestVerificationHandler(repo RepositoryManager) *RequestVerificationHandler {
	return &RequestVerificationHandler{
		repo:    repo,
		mailer:  NewLogMailer(nil),
		logger:  defLogger{},
		codeTTL: DefaultVerificationCodeTTL,
		now:     time.Now,
	}
}

// WithMailer sets the out-of-band delivery collaborator.
func (h *RequestVerificationHandler) WithMailer(mailer Mailer) *RequestVerificationHandler {
	if mailer != nil {
		h.mailer = mailer
	}
	return h
}

// WithLogger overrides the logger used by the handler.
func (h *RequestVerificationHandler) WithLogger(logger Logger) *RequestVerificationHandler {
	if logger != nil {
		h.logger = logger
	}
	return h
}

// WithCodeTTL overrides the verification code validity window.
func (h *RequestVerificationHandler) WithCodeTTL(ttl time.Duration) *RequestVerificationHandler {
	if ttl > 0 {
		h.codeTTL = ttl
	}
	return h
}

// WithClock injects a custom clock (useful for tests).
func (h *RequestVerificationHandler) WithClock(clock func() time.Time) *RequestVerificationHandler {
	if clock != nil {
		h.now = clock
	}
	return h
}

func (h *RequestVerificationHandler) Execute(ctx context.Context, event RequestVerificationMessage) error {
	select {
	case <-ctx.Done():
		return goerrors.Wrap(ctx.Err(), goerrors.CategoryOperation, "context cancelled during verification request")
	default:
		return h.execute(ctx, event)
	}
}

func (h *RequestVerificationHandler) execute(ctx context.Context, event RequestVerificationMessage) error {
	resp := &RequestVerificationResponse{}

	ctx, cancel := context.WithTimeout(ctx, time.Second*10)
	defer cancel()

	code, err := GenerateVerificationCode()
	if err != nil {
		return err
	}

	var email string

	err = h.repo.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		account, err := h.repo.Accounts().GetByEmailTx(ctx, tx, event.Email)
		if err != nil {
			if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
				return ErrAccountNotFound
			}
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account for verification")
		}

		// already verified: nothing to reissue
		if account.Verified {
			resp.Account = account.View()
			return nil
		}

		expiresAt := h.now().Add(h.codeTTL)
		if err := h.repo.Accounts().SetVerificationCodeTx(ctx, tx, account.ID, code, expiresAt); err != nil {
			return goerrors.Wrap(err, goerrors.CategoryInternal, "failed to issue verification code")
		}

		email = account.Email
		resp.Account = account.View()
		return nil
	})

	if err != nil {
		var richErr *goerrors.Error
		if goerrors.As(err, &richErr) {
			return richErr
		}
		return goerrors.Wrap(err, goerrors.CategoryInternal, "verification request transaction failed")
	}

	if email != "" {
		go func() {
			if err := h.mailer.SendVerificationCode(email, code); err != nil {
				h.logger.Warn("verification code dispatch failed", "error", err)
			}
		}()
	}

	if event.OnResponse != nil {
		event.OnResponse(resp)
	}

	return nil
}
