package identity

import (
	goerrors "github.com/goliatone/go-errors"
)

// Text codes surfaced in error payloads so API consumers can branch
// without string matching messages.
const (
	TextCodeInvalidCreds       = "INVALID_CREDENTIALS"
	TextCodeEmailTaken         = "EMAIL_TAKEN"
	TextCodePasswordPolicy     = "PASSWORD_POLICY"
	TextCodeSessionNotFound    = "SESSION_NOT_FOUND"
	TextCodeSessionExpired     = "SESSION_EXPIRED"
	TextCodeSessionMalformed   = "SESSION_MALFORMED"
	TextCodeCodeNotFound       = "VERIFICATION_CODE_NOT_FOUND"
	TextCodeCodeExpired        = "VERIFICATION_CODE_EXPIRED"
	TextCodeRecoveryNotFound   = "RECOVERY_TOKEN_NOT_FOUND"
	TextCodeRecoveryExpired    = "RECOVERY_TOKEN_EXPIRED"
	TextCodeEmptyPassword      = "EMPTY_PASSWORD"
	TextCodeAccountNotFound    = "ACCOUNT_NOT_FOUND"
	TextCodeInsufficientRole   = "INSUFFICIENT_ROLE"
	TextCodeNotVerified        = "EMAIL_NOT_VERIFIED"
	TextCodeAccountUnavailable = "ACCOUNT_UNAVAILABLE"
)

// ErrInvalidCredentials covers both unknown email and password mismatch.
// The two cases are deliberately indistinguishable to prevent account
// enumeration.
var ErrInvalidCredentials = goerrors.New("invalid credentials", goerrors.CategoryAuth).
	WithTextCode(TextCodeInvalidCreds).
	WithCode(goerrors.CodeUnauthorized)

// ErrEmailTaken is returned when signup hits an existing account.
var ErrEmailTaken = goerrors.New("email is already registered", goerrors.CategoryConflict).
	WithTextCode(TextCodeEmailTaken).
	WithCode(goerrors.CodeConflict)

// ErrPasswordPolicy is returned when a password fails the minimum length policy.
var ErrPasswordPolicy = goerrors.New("password must be at least 6 characters", goerrors.CategoryValidation).
	WithTextCode(TextCodePasswordPolicy).
	WithCode(goerrors.CodeBadRequest)

// ErrNoEmptyString rejects empty passwords before they reach bcrypt.
var ErrNoEmptyString = goerrors.New("password must not be empty", goerrors.CategoryValidation).
	WithTextCode(TextCodeEmptyPassword).
	WithCode(goerrors.CodeBadRequest)

// ErrSessionNotFound is returned when a request carries no session cookie.
var ErrSessionNotFound = goerrors.New("no session credential", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionNotFound).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionExpired is returned when the credential's expiry has passed.
// Validity is signature + expiry only; there is no revocation list.
var ErrSessionExpired = goerrors.New("session credential expired", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionExpired).
	WithCode(goerrors.CodeUnauthorized)

// ErrSessionMalformed is returned when the credential fails to parse or verify.
var ErrSessionMalformed = goerrors.New("session credential invalid", goerrors.CategoryAuth).
	WithTextCode(TextCodeSessionMalformed).
	WithCode(goerrors.CodeUnauthorized)

// ErrCodeNotFound is returned when no account has the submitted verification
// code outstanding. A consumed code lands here too: the field is cleared
// atomically with the success transition.
var ErrCodeNotFound = goerrors.New("invalid verification code", goerrors.CategoryNotFound).
	WithTextCode(TextCodeCodeNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrCodeExpired is returned when the code matched but its window has passed.
var ErrCodeExpired = goerrors.New("verification code expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeCodeExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrRecoveryNotFound is returned when no account has the submitted recovery
// token outstanding, including already-consumed tokens.
var ErrRecoveryNotFound = goerrors.New("invalid or used recovery token", goerrors.CategoryNotFound).
	WithTextCode(TextCodeRecoveryNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrRecoveryExpired is returned when the recovery token's window has passed.
var ErrRecoveryExpired = goerrors.New("recovery token expired", goerrors.CategoryValidation).
	WithTextCode(TextCodeRecoveryExpired).
	WithCode(goerrors.CodeBadRequest)

// ErrAccountNotFound is an internal lookup miss; it never reaches login
// responses, which collapse onto ErrInvalidCredentials.
var ErrAccountNotFound = goerrors.New("account not found", goerrors.CategoryNotFound).
	WithTextCode(TextCodeAccountNotFound).
	WithCode(goerrors.CodeNotFound)

// ErrInsufficientRole is returned by the admin-gated middleware.
var ErrInsufficientRole = goerrors.New("insufficient role", goerrors.CategoryAuthz).
	WithTextCode(TextCodeInsufficientRole).
	WithCode(goerrors.CodeForbidden)

// ErrNotVerified is returned by the verified-only middleware when the
// account has a session but has not confirmed its email.
var ErrNotVerified = goerrors.New("email not verified", goerrors.CategoryAuthz).
	WithTextCode(TextCodeNotVerified).
	WithCode(goerrors.CodeForbidden)

// IsAuthError reports whether the error belongs to the auth category,
// i.e. the "treat as not logged in" outcomes.
func IsAuthError(err error) bool {
	var richErr *goerrors.Error
	if !goerrors.As(err, &richErr) {
		return false
	}
	return richErr.Category == goerrors.CategoryAuth
}
