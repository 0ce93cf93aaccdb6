package identity

import (
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
)

// SessionContextKey is where validated claims land in the request locals.
const SessionContextKey = "session_claims"

// RequireSession validates the cookie credential and stores the claims in
// the request locals. Requests without a valid credential get a 401.
func RequireSession(cookies *CookieAuth, tokens TokenService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		token := cookies.SessionToken(c)
		if token == "" {
			return respondError(c, ErrSessionNotFound)
		}

		claims, err := tokens.Validate(token)
		if err != nil {
			return respondError(c, err)
		}

		c.Locals(SessionContextKey, claims)
		return c.Next()
	}
}

// RequireAdmin gates a route on the admin role. Run it after RequireSession.
func RequireAdmin() fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return respondError(c, ErrSessionNotFound)
		}

		if !claims.IsAdmin() {
			return respondError(c, ErrInsufficientRole)
		}

		return c.Next()
	}
}

// RequireVerified gates a route on a confirmed email. Verification is not
// carried in the credential, so this resolves the account. Run it after
// RequireSession.
func RequireVerified(repo RepositoryManager) fiber.Handler {
	return func(c *fiber.Ctx) error {
		claims, ok := ClaimsFromContext(c)
		if !ok {
			return respondError(c, ErrSessionNotFound)
		}

		id, err := uuid.Parse(claims.AccountID())
		if err != nil {
			return respondError(c, ErrSessionMalformed)
		}

		account, err := repo.Accounts().GetByID(c.Context(), id)
		if err != nil {
			return respondError(c, ErrSessionNotFound)
		}

		if !account.Verified {
			return respondError(c, ErrNotVerified)
		}

		return c.Next()
	}
}

// ClaimsFromContext returns the claims stored by RequireSession.
func ClaimsFromContext(c *fiber.Ctx) (Claims, bool) {
	claims, ok := c.Locals(SessionContextKey).(Claims)
	return claims, ok
}
