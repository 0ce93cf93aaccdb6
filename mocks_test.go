package identity_test

import (
	"context"
	"database/sql"
	"sync"
	"time"

	identity "github.com/goliatone/go-identity"
	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// memAccounts is an in-memory Accounts implementation with the same
// consume-once and overwrite semantics as the SQL-backed repository.
type memAccounts struct {
	mu      sync.Mutex
	records map[uuid.UUID]*identity.Account
}

func newMemAccounts() *memAccounts {
	return &memAccounts{
		records: make(map[uuid.UUID]*identity.Account),
	}
}

func notFound(meta map[string]any) error {
	return repository.NewRecordNotFound().WithMetadata(meta)
}

func cloneAccount(a *identity.Account) *identity.Account {
	if a == nil {
		return nil
	}
	cp := *a
	return &cp
}

func (m *memAccounts) Create(ctx context.Context, record *identity.Account, criteria ...repository.InsertCriteria) (*identity.Account, error) {
	return m.CreateTx(ctx, bun.Tx{}, record, criteria...)
}

func (m *memAccounts) CreateTx(ctx context.Context, tx bun.IDB, record *identity.Account, criteria ...repository.InsertCriteria) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	record.Email = identity.NormalizeEmail(record.Email)
	record.Role, _ = identity.ParseRole(record.Role)
	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
	now := time.Now()
	record.CreatedAt = &now
	record.UpdatedAt = &now

	m.records[record.ID] = cloneAccount(record)
	return record, nil
}

func (m *memAccounts) GetByID(ctx context.Context, id uuid.UUID) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rec, ok := m.records[id]; ok {
		return cloneAccount(rec), nil
	}
	return nil, notFound(map[string]any{"id": id.String()})
}

func (m *memAccounts) GetByEmail(ctx context.Context, email string) (*identity.Account, error) {
	return m.GetByEmailTx(ctx, bun.Tx{}, email)
}

func (m *memAccounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	email = identity.NormalizeEmail(email)
	for _, rec := range m.records {
		if rec.Email == email {
			return cloneAccount(rec), nil
		}
	}
	return nil, notFound(map[string]any{"email": email})
}

func (m *memAccounts) TrackSuccessfulLogin(ctx context.Context, account *identity.Account) error {
	return m.TrackSuccessfulLoginTx(ctx, bun.Tx{}, account)
}

func (m *memAccounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *identity.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[account.ID]
	if !ok {
		return notFound(map[string]any{"id": account.ID.String()})
	}
	now := time.Now()
	rec.LastLoginAt = &now
	account.LastLoginAt = &now
	return nil
}

func (m *memAccounts) SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return notFound(map[string]any{"id": id.String()})
	}
	rec.VerificationCode = &code
	rec.VerificationExpiresAt = &expiresAt
	return nil
}

func (m *memAccounts) GetByVerificationCodeTx(ctx context.Context, tx bun.IDB, code string) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.VerificationCode != nil && *rec.VerificationCode == code {
			return cloneAccount(rec), nil
		}
	}
	return nil, notFound(map[string]any{"secret": "verification_code"})
}

func (m *memAccounts) ConsumeVerificationCodeTx(ctx context.Context, tx bun.IDB, code string, now time.Time) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.VerificationCode == nil || *rec.VerificationCode != code {
			continue
		}
		if rec.VerificationExpiresAt == nil || !rec.VerificationExpiresAt.After(now) {
			continue
		}
		rec.Verified = true
		rec.VerificationCode = nil
		rec.VerificationExpiresAt = nil
		rec.UpdatedAt = &now
		return cloneAccount(rec), nil
	}
	return nil, notFound(map[string]any{"secret": "verification_code"})
}

func (m *memAccounts) SetRecoveryTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return notFound(map[string]any{"id": id.String()})
	}
	rec.RecoveryToken = &token
	rec.RecoveryExpiresAt = &expiresAt
	return nil
}

func (m *memAccounts) GetByRecoveryTokenTx(ctx context.Context, tx bun.IDB, token string) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.RecoveryToken != nil && *rec.RecoveryToken == token {
			return cloneAccount(rec), nil
		}
	}
	return nil, notFound(map[string]any{"secret": "recovery_token"})
}

func (m *memAccounts) ConsumeRecoveryTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*identity.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, rec := range m.records {
		if rec.RecoveryToken == nil || *rec.RecoveryToken != token {
			continue
		}
		if rec.RecoveryExpiresAt == nil || !rec.RecoveryExpiresAt.After(now) {
			continue
		}
		rec.PasswordHash = passwordHash
		rec.RecoveryToken = nil
		rec.RecoveryExpiresAt = nil
		rec.UpdatedAt = &now
		return cloneAccount(rec), nil
	}
	return nil, notFound(map[string]any{"secret": "recovery_token"})
}

// get returns the live record for assertions on stored state.
func (m *memAccounts) get(id uuid.UUID) *identity.Account {
	m.mu.Lock()
	defer m.mu.Unlock()
	return cloneAccount(m.records[id])
}

// memRepo satisfies RepositoryManager without a database; RunInTx hands the
// callback a zero tx, which the in-memory store ignores.
type memRepo struct {
	accounts *memAccounts
}

func newMemRepo() *memRepo {
	return &memRepo{accounts: newMemAccounts()}
}

func (r *memRepo) Validate() error { return nil }
func (r *memRepo) MustValidate()   {}

func (r *memRepo) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return f(ctx, bun.Tx{})
	}
}

func (r *memRepo) Accounts() identity.Accounts {
	return r.accounts
}

// recordingMailer captures dispatched secrets for assertions.
type recordingMailer struct {
	mu     sync.Mutex
	codes  map[string]string
	tokens map[string]string
}

func newRecordingMailer() *recordingMailer {
	return &recordingMailer{
		codes:  make(map[string]string),
		tokens: make(map[string]string),
	}
}

func (m *recordingMailer) SendVerificationCode(email, code string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.codes[email] = code
	return nil
}

func (m *recordingMailer) SendRecoveryToken(email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
	return nil
}

// mustSignup seeds an account through the real signup flow and returns the
// response so tests start from realistic state.
func mustSignup(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, repo *memRepo, tokens identity.TokenService, email, password string) *identity.SignupResponse {
	t.Helper()

	var resp *identity.SignupResponse
	handler := identity.NewSignupHandler(repo, tokens)
	err := handler.Execute(context.Background(), identity.SignupMessage{
		Email:    email,
		Password: password,
		OnResponse: func(r *identity.SignupResponse) {
			resp = r
		},
	})
	if err != nil {
		t.Fatalf("signup failed: %v", err)
	}
	return resp
}

const (
	eventuallyTimeout = 2 * time.Second
	eventuallyTick    = 10 * time.Millisecond
)

func mustParseUUID(t interface {
	Helper()
	Fatalf(format string, args ...any)
}, raw string) uuid.UUID {
	t.Helper()
	id, err := uuid.Parse(raw)
	if err != nil {
		t.Fatalf("invalid uuid %q: %v", raw, err)
	}
	return id
}

func testTokenService() *identity.TokenServiceImpl {
	return identity.NewTokenService([]byte("test-signing-key"), 24, "identity-test", nil)
}
