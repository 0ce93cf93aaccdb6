package client

import (
	"context"
	"errors"
	"sync"
)

// ErrProfileNotFound is what a ProfileFetcher returns when the account has
// no profile yet. The store treats it as a normal state, not a failure.
var ErrProfileNotFound = errors.New("profile not found")

// Profile is optional account data living outside the identity subsystem.
type Profile struct {
	DisplayName string `json:"display_name"`
	AvatarURL   string `json:"avatar_url"`
}

// ProfileFetcher resolves the profile for an authenticated account.
type ProfileFetcher interface {
	FetchProfile(ctx context.Context, accountID string) (*Profile, error)
}

// Snapshot is a point-in-time copy of the auth state. Consumers render
// from snapshots; they never hold a reference into the store.
type Snapshot struct {
	Identity        *Identity
	Profile         *Profile
	IsAuthenticated bool
	IsCheckingAuth  bool
	IsLoading       bool
	LastError       error
	LastMessage     string
}

// Store is the client-side auth state container. Every operation drives
// the API, then folds the outcome into the state under one lock, so
// concurrent operations resolve last-write-wins.
type Store struct {
	api      API
	profiles ProfileFetcher

	mu    sync.Mutex
	state Snapshot
}

// NewStore creates a store over the given API.
func NewStore(api API) *Store {
	return &Store{
		api: api,
		state: Snapshot{
			IsCheckingAuth: true,
		},
	}
}

// WithProfileFetcher wires an optional profile source resolved on login.
func (s *Store) WithProfileFetcher(fetcher ProfileFetcher) *Store {
	s.profiles = fetcher
	return s
}

// State returns a copy of the current auth state.
func (s *Store) State() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

func (s *Store) begin() {
	s.mu.Lock()
	s.state.IsLoading = true
	s.state.LastError = nil
	s.state.LastMessage = ""
	s.mu.Unlock()
}

func (s *Store) settle(fn func(*Snapshot)) {
	s.mu.Lock()
	s.state.IsLoading = false
	// any resolved operation supersedes the bootstrap check
	s.state.IsCheckingAuth = false
	fn(&s.state)
	s.mu.Unlock()
}

// SignUp registers a new account. Success leaves the caller logged in.
func (s *Store) SignUp(ctx context.Context, email, password string) error {
	s.begin()

	identity, err := s.api.SignUp(ctx, email, password)

	s.settle(func(st *Snapshot) {
		if err != nil {
			st.LastError = err
			return
		}
		st.Identity = identity
		st.IsAuthenticated = identity != nil
	})

	return err
}

// Login authenticates with an email and password pair. With a profile
// fetcher wired, the profile is resolved next; a missing profile is fine,
// any other fetch failure surfaces while the session stays authenticated.
func (s *Store) Login(ctx context.Context, email, password string) error {
	s.begin()

	identity, err := s.api.Login(ctx, email, password)

	var profile *Profile
	var profileErr error
	if err == nil && identity != nil && s.profiles != nil {
		profile, profileErr = s.profiles.FetchProfile(ctx, identity.ID)
		if errors.Is(profileErr, ErrProfileNotFound) {
			profileErr = nil
		}
	}

	s.settle(func(st *Snapshot) {
		if err != nil {
			st.LastError = err
			return
		}
		st.Identity = identity
		st.IsAuthenticated = identity != nil
		st.Profile = profile
		if profileErr != nil {
			st.LastError = profileErr
		}
	})

	if err != nil {
		return err
	}
	return profileErr
}

// Logout drops the session. The local identity is cleared even when the
// server call fails: the caller asked to be signed out, so they are.
func (s *Store) Logout(ctx context.Context) error {
	s.begin()

	err := s.api.Logout(ctx)

	s.settle(func(st *Snapshot) {
		st.Identity = nil
		st.Profile = nil
		st.IsAuthenticated = false
		if err != nil {
			st.LastError = err
		}
	})

	return err
}

// CheckAuth restores the session from the cookie, typically on startup.
// An unauthenticated answer is a normal outcome here, not an error: the
// state ends anonymous with LastError clear.
func (s *Store) CheckAuth(ctx context.Context) error {
	s.mu.Lock()
	s.state.IsCheckingAuth = true
	s.state.LastError = nil
	s.mu.Unlock()

	identity, err := s.api.CheckAuth(ctx)

	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.IsCheckingAuth = false
	if err != nil || identity == nil {
		s.state.Identity = nil
		s.state.Profile = nil
		s.state.IsAuthenticated = false
		return nil
	}
	s.state.Identity = identity
	s.state.IsAuthenticated = true
	return nil
}

// VerifyEmail redeems a verification code and refreshes the identity.
func (s *Store) VerifyEmail(ctx context.Context, code string) error {
	s.begin()

	identity, err := s.api.VerifyEmail(ctx, code)

	s.settle(func(st *Snapshot) {
		if err != nil {
			st.LastError = err
			return
		}
		if identity != nil {
			st.Identity = identity
		}
	})

	return err
}

// ForgotPassword requests a recovery link. The server answers with the
// same message whether or not the account exists.
func (s *Store) ForgotPassword(ctx context.Context, email string) error {
	s.begin()

	message, err := s.api.ForgotPassword(ctx, email)

	s.settle(func(st *Snapshot) {
		if err != nil {
			st.LastError = err
			return
		}
		st.LastMessage = message
	})

	return err
}

// ResetPassword redeems a recovery token with a replacement password.
// Success does not log the caller in.
func (s *Store) ResetPassword(ctx context.Context, token, password string) error {
	s.begin()

	message, err := s.api.ResetPassword(ctx, token, password)

	s.settle(func(st *Snapshot) {
		if err != nil {
			st.LastError = err
			return
		}
		st.LastMessage = message
	})

	return err
}
