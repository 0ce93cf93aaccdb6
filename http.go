package identity

import (
	"time"

	"github.com/gofiber/fiber/v2"
)

// CookieAuth moves session credentials in and out of the http-only cookie.
// Clearing the cookie is the whole of logout: a credential already copied
// elsewhere stays valid until it expires. Known, accepted limitation.
type CookieAuth struct {
	cfg      Config
	duration time.Duration
	Logger   Logger
}

// NewCookieAuth builds the cookie helper; the cookie lifetime follows the
// credential lifetime.
func NewCookieAuth(cfg Config) *CookieAuth {
	duration := 24 * time.Hour
	if cfg.GetTokenExpiration() > 0 {
		duration = time.Duration(cfg.GetTokenExpiration()) * time.Hour
	}

	return &CookieAuth{
		cfg:      cfg,
		duration: duration,
		Logger:   defLogger{},
	}
}

func (a CookieAuth) GetCookieDuration() time.Duration {
	return a.duration
}

// SetSession writes the session cookie: httpOnly, SameSite strict, secure
// outside local development.
func (a *CookieAuth) SetSession(c *fiber.Ctx, token string) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    token,
		Expires:  time.Now().Add(a.duration),
		MaxAge:   int(a.duration.Seconds()),
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// ClearSession expires the session cookie on the client.
func (a *CookieAuth) ClearSession(c *fiber.Ctx) {
	c.Cookie(&fiber.Cookie{
		Name:     a.cfg.GetCookieName(),
		Value:    "",
		Expires:  time.Now().Add(-time.Hour * (24 * 365)),
		MaxAge:   -1,
		HTTPOnly: true,
		Secure:   a.cfg.GetCookieSecure(),
		SameSite: fiber.CookieSameSiteStrictMode,
	})
}

// SessionToken reads the raw credential from the request cookie.
func (a *CookieAuth) SessionToken(c *fiber.Ctx) string {
	return c.Cookies(a.cfg.GetCookieName())
}
