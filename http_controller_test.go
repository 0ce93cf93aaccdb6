package identity_test

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	identity "github.com/goliatone/go-identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	secure bool
}

func (c testConfig) GetSigningKey() string          { return "test-signing-key" }
func (c testConfig) GetIssuer() string              { return "identity-test" }
func (c testConfig) GetTokenExpiration() int        { return 24 }
func (c testConfig) GetCookieName() string          { return "session" }
func (c testConfig) GetCookieSecure() bool          { return c.secure }
func (c testConfig) GetVerificationCodeTTL() string { return "15m" }
func (c testConfig) GetRecoveryTokenTTL() string    { return "1h" }

type testServer struct {
	app    *fiber.App
	repo   *memRepo
	tokens *identity.TokenServiceImpl
	mailer *recordingMailer
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	repo := newMemRepo()
	tokens := testTokenService()
	mailer := newRecordingMailer()
	cookies := identity.NewCookieAuth(testConfig{})

	app := fiber.New()
	identity.RegisterAuthRoutes(app,
		identity.WithRepository(repo),
		identity.WithAuthenticator(identity.NewAuthenticator(repo, tokens)),
		identity.WithTokenService(tokens),
		identity.WithCookieAuth(cookies),
		identity.WithControllerMailer(mailer),
	)

	return &testServer{app: app, repo: repo, tokens: tokens, mailer: mailer}
}

func (s *testServer) request(t *testing.T, method, path, body string, cookie *http.Cookie) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if cookie != nil {
		req.AddCookie(cookie)
	}

	res, err := s.app.Test(req, -1)
	require.NoError(t, err)
	return res
}

func decodeBody(t *testing.T, res *http.Response) map[string]any {
	t.Helper()

	defer res.Body.Close()
	var out map[string]any
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	return out
}

func sessionCookie(res *http.Response) *http.Cookie {
	for _, c := range res.Cookies() {
		if c.Name == "session" {
			return c
		}
	}
	return nil
}

func TestAuthController_Signup(t *testing.T) {
	t.Run("creates the account and sets the session cookie", func(t *testing.T) {
		srv := newTestServer(t)

		res := srv.request(t, fiber.MethodPost, "/auth/signup",
			`{"email":"user@example.com","password":"secret123"}`, nil)
		assert.Equal(t, fiber.StatusCreated, res.StatusCode)

		body := decodeBody(t, res)
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "user@example.com", user["email"])
		assert.Equal(t, false, user["verified"])
		assert.NotContains(t, user, "password_hash")

		cookie := sessionCookie(res)
		require.NotNil(t, cookie)
		assert.NotEmpty(t, cookie.Value)
		assert.True(t, cookie.HttpOnly)
		assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
		assert.False(t, cookie.Secure)

		_, err := srv.tokens.Validate(cookie.Value)
		assert.NoError(t, err)
	})

	t.Run("secure flag follows config", func(t *testing.T) {
		repo := newMemRepo()
		tokens := testTokenService()
		app := fiber.New()
		identity.RegisterAuthRoutes(app,
			identity.WithRepository(repo),
			identity.WithAuthenticator(identity.NewAuthenticator(repo, tokens)),
			identity.WithTokenService(tokens),
			identity.WithCookieAuth(identity.NewCookieAuth(testConfig{secure: true})),
		)

		req := httptest.NewRequest(fiber.MethodPost, "/auth/signup",
			strings.NewReader(`{"email":"user@example.com","password":"secret123"}`))
		req.Header.Set("Content-Type", "application/json")
		res, err := app.Test(req, -1)
		require.NoError(t, err)

		cookie := sessionCookie(res)
		require.NotNil(t, cookie)
		assert.True(t, cookie.Secure)
	})

	t.Run("signup cookie resolves the same unverified identity", func(t *testing.T) {
		srv := newTestServer(t)

		signupRes := srv.request(t, fiber.MethodPost, "/auth/signup",
			`{"email":"user@example.com","password":"secret123"}`, nil)
		signupUser := decodeBody(t, signupRes)["user"].(map[string]any)

		cookie := sessionCookie(signupRes)
		require.NotNil(t, cookie)

		checkRes := srv.request(t, fiber.MethodGet, "/auth/check-auth", "", cookie)
		assert.Equal(t, fiber.StatusOK, checkRes.StatusCode)

		checkUser := decodeBody(t, checkRes)["user"].(map[string]any)
		assert.Equal(t, signupUser["id"], checkUser["id"])
		assert.Equal(t, signupUser["email"], checkUser["email"])
		assert.Equal(t, false, checkUser["verified"])
	})

	t.Run("duplicate email is a conflict", func(t *testing.T) {
		srv := newTestServer(t)

		payload := `{"email":"user@example.com","password":"secret123"}`
		srv.request(t, fiber.MethodPost, "/auth/signup", payload, nil)

		res := srv.request(t, fiber.MethodPost, "/auth/signup", payload, nil)
		assert.Equal(t, fiber.StatusConflict, res.StatusCode)

		body := decodeBody(t, res)
		assert.NotEmpty(t, body["message"])
	})

	t.Run("invalid payloads are rejected", func(t *testing.T) {
		srv := newTestServer(t)

		for name, payload := range map[string]string{
			"bad email":      `{"email":"not-an-email","password":"secret123"}`,
			"short password": `{"email":"user@example.com","password":"short"}`,
			"missing fields": `{}`,
		} {
			t.Run(name, func(t *testing.T) {
				res := srv.request(t, fiber.MethodPost, "/auth/signup", payload, nil)
				assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
			})
		}
	})
}

func TestAuthController_Login(t *testing.T) {
	srv := newTestServer(t)
	srv.request(t, fiber.MethodPost, "/auth/signup",
		`{"email":"user@example.com","password":"secret123"}`, nil)

	t.Run("valid credentials set the session cookie", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"secret123"}`, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		user, ok := body["user"].(map[string]any)
		require.True(t, ok)
		assert.Equal(t, "user@example.com", user["email"])

		cookie := sessionCookie(res)
		require.NotNil(t, cookie)
		assert.NotEmpty(t, cookie.Value)
	})

	t.Run("bad credentials all look alike", func(t *testing.T) {
		wrongPassword := srv.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"wrong-password"}`, nil)
		unknownEmail := srv.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"nobody@example.com","password":"secret123"}`, nil)

		assert.Equal(t, fiber.StatusUnauthorized, wrongPassword.StatusCode)
		assert.Equal(t, fiber.StatusUnauthorized, unknownEmail.StatusCode)

		assert.Equal(t,
			decodeBody(t, wrongPassword)["message"],
			decodeBody(t, unknownEmail)["message"])
	})

	t.Run("no cookie on failure", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"wrong-password"}`, nil)
		assert.Nil(t, sessionCookie(res))
	})
}

func TestAuthController_Logout(t *testing.T) {
	srv := newTestServer(t)

	res := srv.request(t, fiber.MethodPost, "/auth/logout", "", nil)
	assert.Equal(t, fiber.StatusOK, res.StatusCode)

	cookie := sessionCookie(res)
	require.NotNil(t, cookie)
	assert.Empty(t, cookie.Value)
	assert.True(t, cookie.Expires.Before(time.Now()))
}

func TestAuthController_VerifyEmail(t *testing.T) {
	srv := newTestServer(t)
	signupRes := srv.request(t, fiber.MethodPost, "/auth/signup",
		`{"email":"user@example.com","password":"secret123"}`, nil)
	signupBody := decodeBody(t, signupRes)
	accountID := signupBody["user"].(map[string]any)["id"].(string)

	code := func() string {
		id := mustParseUUID(t, accountID)
		stored := srv.repo.accounts.get(id)
		require.NotNil(t, stored)
		require.NotNil(t, stored.VerificationCode)
		return *stored.VerificationCode
	}()

	t.Run("malformed code is rejected before lookup", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/verify-email", `{"code":"abc"}`, nil)
		assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	})

	t.Run("valid code flips verified", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/verify-email",
			`{"code":"`+code+`"}`, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		user := body["user"].(map[string]any)
		assert.Equal(t, true, user["verified"])
	})

	t.Run("second submission is a 404", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/verify-email",
			`{"code":"`+code+`"}`, nil)
		assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
	})
}

func TestAuthController_ResendVerification(t *testing.T) {
	srv := newTestServer(t)
	signupRes := srv.request(t, fiber.MethodPost, "/auth/signup",
		`{"email":"user@example.com","password":"secret123"}`, nil)
	accountID := decodeBody(t, signupRes)["user"].(map[string]any)["id"].(string)
	id := mustParseUUID(t, accountID)

	first := *srv.repo.accounts.get(id).VerificationCode

	t.Run("reissues and delivers a fresh code", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/resend-verification",
			`{"email":"user@example.com"}`, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		stored := srv.repo.accounts.get(id)
		require.NotNil(t, stored.VerificationCode)
		second := *stored.VerificationCode
		assert.NotEqual(t, first, second)

		assert.Eventually(t, func() bool {
			srv.mailer.mu.Lock()
			defer srv.mailer.mu.Unlock()
			return srv.mailer.codes["user@example.com"] == second
		}, eventuallyTimeout, eventuallyTick)

		// only the fresh code redeems
		stale := srv.request(t, fiber.MethodPost, "/auth/verify-email",
			`{"code":"`+first+`"}`, nil)
		assert.Equal(t, fiber.StatusNotFound, stale.StatusCode)

		verify := srv.request(t, fiber.MethodPost, "/auth/verify-email",
			`{"code":"`+second+`"}`, nil)
		assert.Equal(t, fiber.StatusOK, verify.StatusCode)
	})

	t.Run("unknown email", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/resend-verification",
			`{"email":"nobody@example.com"}`, nil)
		assert.Equal(t, fiber.StatusNotFound, res.StatusCode)
	})

	t.Run("invalid email", func(t *testing.T) {
		res := srv.request(t, fiber.MethodPost, "/auth/resend-verification",
			`{"email":"not-an-email"}`, nil)
		assert.Equal(t, fiber.StatusBadRequest, res.StatusCode)
	})
}

func TestAuthController_CheckAuth(t *testing.T) {
	srv := newTestServer(t)
	signupRes := srv.request(t, fiber.MethodPost, "/auth/signup",
		`{"email":"user@example.com","password":"secret123"}`, nil)
	cookie := sessionCookie(signupRes)
	require.NotNil(t, cookie)

	t.Run("valid cookie resolves the account", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/auth/check-auth", "", cookie)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)

		body := decodeBody(t, res)
		user := body["user"].(map[string]any)
		assert.Equal(t, "user@example.com", user["email"])
	})

	t.Run("no cookie is a 401", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/auth/check-auth", "", nil)
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	})

	t.Run("garbage cookie is a 401", func(t *testing.T) {
		res := srv.request(t, fiber.MethodGet, "/auth/check-auth", "",
			&http.Cookie{Name: "session", Value: "garbage"})
		assert.Equal(t, fiber.StatusUnauthorized, res.StatusCode)
	})
}

func TestAuthController_PasswordRecovery(t *testing.T) {
	srv := newTestServer(t)
	signupRes := srv.request(t, fiber.MethodPost, "/auth/signup",
		`{"email":"user@example.com","password":"secret123"}`, nil)
	accountID := decodeBody(t, signupRes)["user"].(map[string]any)["id"].(string)

	t.Run("forgot password does not leak account existence", func(t *testing.T) {
		known := srv.request(t, fiber.MethodPost, "/auth/forgot-password",
			`{"email":"user@example.com"}`, nil)
		unknown := srv.request(t, fiber.MethodPost, "/auth/forgot-password",
			`{"email":"nobody@example.com"}`, nil)

		assert.Equal(t, fiber.StatusOK, known.StatusCode)
		assert.Equal(t, fiber.StatusOK, unknown.StatusCode)
		assert.Equal(t,
			decodeBody(t, known)["message"],
			decodeBody(t, unknown)["message"])
	})

	t.Run("reset password round trip", func(t *testing.T) {
		srv.request(t, fiber.MethodPost, "/auth/forgot-password",
			`{"email":"user@example.com"}`, nil)

		stored := srv.repo.accounts.get(mustParseUUID(t, accountID))
		require.NotNil(t, stored.RecoveryToken)
		token := *stored.RecoveryToken

		res := srv.request(t, fiber.MethodPost, "/auth/reset-password/"+token,
			`{"password":"replacement-password"}`, nil)
		assert.Equal(t, fiber.StatusOK, res.StatusCode)
		// no auto-login on reset
		assert.Nil(t, sessionCookie(res))

		login := srv.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"replacement-password"}`, nil)
		assert.Equal(t, fiber.StatusOK, login.StatusCode)

		oldLogin := srv.request(t, fiber.MethodPost, "/auth/login",
			`{"email":"user@example.com","password":"secret123"}`, nil)
		assert.Equal(t, fiber.StatusUnauthorized, oldLogin.StatusCode)
	})

	t.Run("used token is a 404", func(t *testing.T) {
		srv.request(t, fiber.MethodPost, "/auth/forgot-password",
			`{"email":"user@example.com"}`, nil)

		stored := srv.repo.accounts.get(mustParseUUID(t, accountID))
		require.NotNil(t, stored.RecoveryToken)
		token := *stored.RecoveryToken

		first := srv.request(t, fiber.MethodPost, "/auth/reset-password/"+token,
			`{"password":"replacement-password"}`, nil)
		assert.Equal(t, fiber.StatusOK, first.StatusCode)

		second := srv.request(t, fiber.MethodPost, "/auth/reset-password/"+token,
			`{"password":"replacement-password"}`, nil)
		assert.Equal(t, fiber.StatusNotFound, second.StatusCode)
	})
}
