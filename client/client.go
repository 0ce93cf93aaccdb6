package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"
)

// ErrUnauthenticated is returned when the server rejects the session
// credential or none is present.
var ErrUnauthenticated = errors.New("not authenticated")

// Identity is the account projection the server returns on success.
type Identity struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	Verified bool   `json:"verified"`
	Role     string `json:"role"`
}

// IsAdmin reports whether the identity carries the admin role.
func (i *Identity) IsAdmin() bool {
	return i != nil && i.Role == "admin"
}

// API is the surface the auth store drives. Implemented by Client over
// HTTP; tests swap in fakes.
type API interface {
	SignUp(ctx context.Context, email, password string) (*Identity, error)
	Login(ctx context.Context, email, password string) (*Identity, error)
	Logout(ctx context.Context) error
	CheckAuth(ctx context.Context) (*Identity, error)
	VerifyEmail(ctx context.Context, code string) (*Identity, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, token, password string) (string, error)
}

// Client talks to the identity endpoints. The cookie jar holds the session
// credential between calls, mirroring how a browser would.
type Client struct {
	baseURL string
	http    *http.Client
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient swaps the underlying HTTP client. The jar is preserved if
// the replacement has none.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		if hc != nil {
			if hc.Jar == nil {
				hc.Jar = c.http.Jar
			}
			c.http = hc
		}
	}
}

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.http.Timeout = d
		}
	}
}

// New creates a Client for the given server base URL.
func New(baseURL string, opts ...Option) (*Client, error) {
	if _, err := url.Parse(baseURL); err != nil {
		return nil, fmt.Errorf("invalid base URL %q: %w", baseURL, err)
	}

	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("creating cookie jar: %w", err)
	}

	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http: &http.Client{
			Jar:     jar,
			Timeout: 15 * time.Second,
		},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c, nil
}

type userEnvelope struct {
	User *Identity `json:"user"`
}

type messageEnvelope struct {
	Message string `json:"message"`
}

func (c *Client) SignUp(ctx context.Context, email, password string) (*Identity, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/signup", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) Login(ctx context.Context, email, password string) (*Identity, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) Logout(ctx context.Context) error {
	return c.do(ctx, http.MethodPost, "/auth/logout", nil, nil)
}

func (c *Client) CheckAuth(ctx context.Context) (*Identity, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodGet, "/auth/check-auth", nil, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) VerifyEmail(ctx context.Context, code string) (*Identity, error) {
	var out userEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/verify-email", map[string]string{
		"code": code,
	}, &out)
	if err != nil {
		return nil, err
	}
	return out.User, nil
}

func (c *Client) ForgotPassword(ctx context.Context, email string) (string, error) {
	var out messageEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/forgot-password", map[string]string{
		"email": email,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

func (c *Client) ResetPassword(ctx context.Context, token, password string) (string, error) {
	var out messageEnvelope
	err := c.do(ctx, http.MethodPost, "/auth/reset-password/"+url.PathEscape(token), map[string]string{
		"password": password,
	}, &out)
	if err != nil {
		return "", err
	}
	return out.Message, nil
}

// do runs a JSON round trip. Failure bodies carry a `{message}` payload
// which becomes the returned error; 401s map onto ErrUnauthenticated so
// callers can branch without string matching.
func (c *Client) do(ctx context.Context, method, path string, body any, out any) error {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encoding request body: %w", err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")

	res, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer res.Body.Close()

	if res.StatusCode >= http.StatusBadRequest {
		var fail messageEnvelope
		if err := json.NewDecoder(res.Body).Decode(&fail); err != nil || fail.Message == "" {
			fail.Message = res.Status
		}
		if res.StatusCode == http.StatusUnauthorized {
			return fmt.Errorf("%w: %s", ErrUnauthenticated, fail.Message)
		}
		return errors.New(fail.Message)
	}

	if out == nil {
		io.Copy(io.Discard, res.Body)
		return nil
	}

	if err := json.NewDecoder(res.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response body: %w", err)
	}

	return nil
}
