package identity

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Consume statements fold the match check and the field clear into a single
// UPDATE so two concurrent submissions can never both pass the check. An
// expired secret does not match and is left in place, which lets callers
// distinguish "expired" from "unknown or already used".
var ConsumeVerificationCodeSQL = `UPDATE "accounts" AS "acc"
SET
	"verified" = TRUE,
	"verification_code" = NULL,
	"verification_expires_at" = NULL,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."verification_code" = ?
AND "acc"."verification_expires_at" > ?
RETURNING *;`

var ConsumeRecoveryTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"password_hash" = ?,
	"recovery_token" = NULL,
	"recovery_expires_at" = NULL,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."recovery_token" = ?
AND "acc"."recovery_expires_at" > ?
RETURNING *;`

// Issuing a new secret overwrites whatever was outstanding: at most one
// verification code and one recovery token per account at any time.
var SetVerificationCodeSQL = `UPDATE "accounts" AS "acc"
SET
	"verification_code" = ?,
	"verification_expires_at" = ?,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
RETURNING *;`

var SetRecoveryTokenSQL = `UPDATE "accounts" AS "acc"
SET
	"recovery_token" = ?,
	"recovery_expires_at" = ?,
	"updated_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?
RETURNING *;`

var TrackLoginSQL = `UPDATE "accounts" AS "acc"
SET
	"last_login_at" = ?
WHERE
	"acc"."deleted_at" IS NULL
AND "acc"."id" = ?;`

// Accounts is the persistence surface the identity flows depend on. The
// concrete implementation sits on a generic bun repository; handlers and
// tests only see this interface.
type Accounts interface {
	Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error)
	CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error)

	GetByID(ctx context.Context, id uuid.UUID) (*Account, error)
	GetByEmail(ctx context.Context, email string) (*Account, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error)

	TrackSuccessfulLogin(ctx context.Context, account *Account) error
	TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error

	SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, expiresAt time.Time) error
	GetByVerificationCodeTx(ctx context.Context, tx bun.IDB, code string) (*Account, error)
	ConsumeVerificationCodeTx(ctx context.Context, tx bun.IDB, code string, now time.Time) (*Account, error)

	SetRecoveryTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error
	GetByRecoveryTokenTx(ctx context.Context, tx bun.IDB, token string) (*Account, error)
	ConsumeRecoveryTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*Account, error)
}

type accounts struct {
	repository.Repository[*Account]
	db *bun.DB
}

var _ Accounts = (*accounts)(nil)

// NewAccountsRepository builds the bun-backed Accounts repository.
func NewAccountsRepository(db *bun.DB) Accounts {
	repo := repository.NewRepository[*Account](db, repository.ModelHandlers[*Account]{
		NewRecord: func() *Account { return &Account{} },
		GetID: func(a *Account) uuid.UUID {
			if a == nil {
				return uuid.Nil
			}
			return a.ID
		},
		SetID: func(a *Account, id uuid.UUID) {
			if a != nil {
				a.ID = id
			}
		},
		GetIdentifier: func() string {
			return "email"
		},
	})

	return &accounts{
		Repository: repo,
		db:         db,
	}
}

func (a *accounts) Create(ctx context.Context, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	return a.CreateTx(ctx, a.db, record, criteria...)
}

func (a *accounts) CreateTx(ctx context.Context, tx bun.IDB, record *Account, criteria ...repository.InsertCriteria) (*Account, error) {
	prepareAccountDefaults(record)
	return a.Repository.CreateTx(ctx, tx, record, criteria...)
}

func (a *accounts) GetByID(ctx context.Context, id uuid.UUID) (*Account, error) {
	record := &Account{}
	err := a.db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"id": id.String()})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) GetByEmail(ctx context.Context, email string) (*Account, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *accounts) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.email = ?", NormalizeEmail(email)).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"email": NormalizeEmail(email)})
		}
		return nil, err
	}

	return record, nil
}

func (a *accounts) TrackSuccessfulLogin(ctx context.Context, account *Account) error {
	return a.TrackSuccessfulLoginTx(ctx, a.db, account)
}

func (a *accounts) TrackSuccessfulLoginTx(ctx context.Context, tx bun.IDB, account *Account) error {
	lastLoginAt := time.Now()
	_, err := tx.NewRaw(TrackLoginSQL, lastLoginAt, account.ID).Exec(ctx)
	if err == nil {
		account.LastLoginAt = &lastLoginAt
	}
	return err
}

func (a *accounts) SetVerificationCodeTx(ctx context.Context, tx bun.IDB, id uuid.UUID, code string, expiresAt time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, SetVerificationCodeSQL, code, expiresAt, time.Now(), id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *accounts) GetByVerificationCodeTx(ctx context.Context, tx bun.IDB, code string) (*Account, error) {
	return a.getBySecretTx(ctx, tx, "verification_code", code)
}

func (a *accounts) ConsumeVerificationCodeTx(ctx context.Context, tx bun.IDB, code string, now time.Time) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeVerificationCodeSQL, now, code, now)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"secret": "verification_code"})
	}

	return res[0], nil
}

func (a *accounts) SetRecoveryTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, token string, expiresAt time.Time) error {
	res, err := a.Repository.RawTx(ctx, tx, SetRecoveryTokenSQL, token, expiresAt, time.Now(), id.String())
	if err != nil {
		return err
	}

	if len(res) == 0 {
		return repository.NewRecordNotFound().
			WithMetadata(map[string]any{"id": id.String()})
	}

	return nil
}

func (a *accounts) GetByRecoveryTokenTx(ctx context.Context, tx bun.IDB, token string) (*Account, error) {
	return a.getBySecretTx(ctx, tx, "recovery_token", token)
}

func (a *accounts) ConsumeRecoveryTokenTx(ctx context.Context, tx bun.IDB, token, passwordHash string, now time.Time) (*Account, error) {
	res, err := a.Repository.RawTx(ctx, tx, ConsumeRecoveryTokenSQL, passwordHash, now, token, now)
	if err != nil {
		return nil, err
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{"secret": "recovery_token"})
	}

	return res[0], nil
}

func (a *accounts) getBySecretTx(ctx context.Context, tx bun.IDB, column, value string) (*Account, error) {
	record := &Account{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{"secret": column})
		}
		return nil, err
	}

	return record, nil
}

func prepareAccountDefaults(record *Account) {
	if record == nil {
		return
	}

	record.Email = NormalizeEmail(record.Email)

	// unknown or empty roles land on standard, never admin
	record.Role, _ = ParseRole(record.Role)

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}
}
