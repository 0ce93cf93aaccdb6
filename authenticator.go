package identity

import (
	"context"

	goerrors "github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// Authenticator holds methods to prove an identity
type Authenticator interface {
	Login(ctx context.Context, email, password string) (*AccountView, string, error)
	CheckAuth(ctx context.Context, tokenString string) (*AccountView, error)
}

// Auther verifies credentials and exchanges them for session credentials.
type Auther struct {
	repo   RepositoryManager
	tokens TokenService
	logger Logger
}

var _ Authenticator = (*Auther)(nil)

// NewAuthenticator returns a new Auther
func NewAuthenticator(repo RepositoryManager, tokens TokenService) *Auther {
	return &Auther{
		repo:   repo,
		tokens: tokens,
		logger: defLogger{},
	}
}

func (s *Auther) WithLogger(logger Logger) *Auther {
	if logger != nil {
		s.logger = logger
	}
	return s
}

// Login verifies the email/password pair and mints a session credential.
// Unknown email and wrong password collapse onto the same error so the
// response cannot be used to enumerate accounts.
func (s *Auther) Login(ctx context.Context, email, password string) (*AccountView, string, error) {
	account, err := s.repo.Accounts().GetByEmail(ctx, email)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", goerrors.Wrap(err, goerrors.CategoryInternal, "failed to retrieve account during login")
	}

	if err := ComparePasswordAndHash(password, account.PasswordHash); err != nil {
		s.logger.Debug("login password mismatch", "account_id", account.ID.String())
		return nil, "", ErrInvalidCredentials
	}

	if err := s.repo.Accounts().TrackSuccessfulLogin(ctx, account); err != nil {
		s.logger.Error("failed to track successful login", "error", err)
	}

	token, err := s.tokens.Issue(account.View())
	if err != nil {
		return nil, "", err
	}

	return account.View(), token, nil
}

// CheckAuth validates a session credential and resolves the current account
// view. Every failure is an auth-category error: callers treat it as a
// normal "not logged in" outcome, not something to show the user.
func (s *Auther) CheckAuth(ctx context.Context, tokenString string) (*AccountView, error) {
	if tokenString == "" {
		return nil, ErrSessionNotFound
	}

	claims, err := s.tokens.Validate(tokenString)
	if err != nil {
		return nil, err
	}

	id, err := uuid.Parse(claims.AccountID())
	if err != nil {
		return nil, ErrSessionMalformed
	}

	account, err := s.repo.Accounts().GetByID(ctx, id)
	if err != nil {
		if repository.IsRecordNotFound(err) || goerrors.IsNotFound(err) {
			// account deleted after the credential was issued
			return nil, ErrSessionNotFound
		}
		return nil, goerrors.Wrap(err, goerrors.CategoryInternal, "failed to resolve session account")
	}

	return account.View(), nil
}
