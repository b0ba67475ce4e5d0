package auth

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Users is the credential store consumed by Service. Reads are idempotent;
// the Save*/Store*/Complete* methods are the only mutators and each persists
// a single account's state change.
type Users interface {
	repository.Repository[*User]

	GetByUsername(ctx context.Context, username string) (*User, error)
	GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error)
	GetByUserID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error)

	// GetByActiveResetToken resolves a plaintext token to the account holding
	// its hash, but only while the expiry is strictly after now.
	GetByActiveResetToken(ctx context.Context, token string, now time.Time) (*User, error)
	GetByActiveResetTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*User, error)

	Register(ctx context.Context, user *User) (*User, error)
	RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error)

	UsernameTakenTx(ctx context.Context, tx bun.IDB, username string) (bool, error)
	EmailTakenTx(ctx context.Context, tx bun.IDB, email string, excluding uuid.UUID) (bool, error)

	SaveLoginFailureTx(ctx context.Context, tx bun.IDB, id uuid.UUID, attempts int, lockoutUntil *time.Time) error
	SaveLoginSuccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error
	StoreResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash string, expiresAt time.Time) error
	CompletePasswordResetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error
	SaveProfileTx(ctx context.Context, tx bun.IDB, user *User) error
	SetProfilePictureTx(ctx context.Context, tx bun.IDB, id uuid.UUID, path *string) error

	Remove(ctx context.Context, user *User) error
}

// NOTE: updating counters through the ORM will not reset nullable columns to
// NULL, so login/reset state changes go through raw statements.
var saveLoginSuccessSQL = `UPDATE "users" AS "usr"
SET
	"last_login_at" = ?,
	"login_attempts" = 0,
	"lockout_until" = NULL,
	"updated_at" = ?
WHERE
	("usr"."id" = ?)
	AND "usr"."deleted_at" IS NULL;`

var completePasswordResetSQL = `UPDATE "users" AS "usr"
SET
	"password_hash" = ?,
	"reset_token_hash" = NULL,
	"reset_token_expires_at" = NULL,
	"login_attempts" = 0,
	"lockout_until" = NULL,
	"updated_at" = ?
WHERE
	("usr"."id" = ?)
	AND "usr"."deleted_at" IS NULL;`

type users struct {
	repository.Repository[*User]
	db *bun.DB
}

var (
	_ Users                        = (*users)(nil)
	_ repository.Repository[*User] = (*users)(nil)
)

func NewUsersRepository(db *bun.DB) Users {
	repo := repository.NewRepository[*User](db, repository.ModelHandlers[*User]{
		NewRecord: func() *User { return &User{} },
		GetID: func(u *User) uuid.UUID {
			if u == nil {
				return uuid.Nil
			}
			return u.ID
		},
		SetID: func(u *User, id uuid.UUID) {
			if u != nil {
				u.ID = id
			}
		},
		GetIdentifier: func() string {
			return "username"
		},
	})

	return &users{
		Repository: repo,
		db:         db,
	}
}

func (a *users) GetByUsername(ctx context.Context, username string) (*User, error) {
	return a.GetByUsernameTx(ctx, a.db, username)
}

func (a *users) GetByUsernameTx(ctx context.Context, tx bun.IDB, username string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "username", username)
}

func (a *users) GetByEmail(ctx context.Context, email string) (*User, error) {
	return a.GetByEmailTx(ctx, a.db, email)
}

func (a *users) GetByEmailTx(ctx context.Context, tx bun.IDB, email string) (*User, error) {
	return a.getByColumnTx(ctx, tx, "email", email)
}

func (a *users) GetByUserID(ctx context.Context, id uuid.UUID) (*User, error) {
	return a.GetByUserIDTx(ctx, a.db, id)
}

func (a *users) GetByUserIDTx(ctx context.Context, tx bun.IDB, id uuid.UUID) (*User, error) {
	return a.getByColumnTx(ctx, tx, "id", id.String())
}

func (a *users) getByColumnTx(ctx context.Context, tx bun.IDB, column, value string) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias."+column+" = ?", value).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound().
				WithMetadata(map[string]any{column: value})
		}
		return nil, err
	}

	return record, nil
}

func (a *users) GetByActiveResetToken(ctx context.Context, token string, now time.Time) (*User, error) {
	return a.GetByActiveResetTokenTx(ctx, a.db, token, now)
}

func (a *users) GetByActiveResetTokenTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*User, error) {
	record := &User{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.reset_token_hash = ?", HashToken(token)).
		Where("?TableAlias.reset_token_expires_at > ?", now).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, repository.NewRecordNotFound()
		}
		return nil, err
	}

	return record, nil
}

func (a *users) Register(ctx context.Context, user *User) (*User, error) {
	return a.RegisterTx(ctx, a.db, user)
}

func (a *users) RegisterTx(ctx context.Context, tx bun.IDB, user *User) (*User, error) {
	prepareUserDefaults(user)
	return a.Repository.CreateTx(ctx, tx, user)
}

func (a *users) UsernameTakenTx(ctx context.Context, tx bun.IDB, username string) (bool, error) {
	return tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.username = ?", username).
		Exists(ctx)
}

func (a *users) EmailTakenTx(ctx context.Context, tx bun.IDB, email string, excluding uuid.UUID) (bool, error) {
	q := tx.NewSelect().
		Model((*User)(nil)).
		Where("?TableAlias.email = ?", email)

	if excluding != uuid.Nil {
		q = q.Where("?TableAlias.id != ?", excluding.String())
	}

	return q.Exists(ctx)
}

func (a *users) SaveLoginFailureTx(ctx context.Context, tx bun.IDB, id uuid.UUID, attempts int, lockoutUntil *time.Time) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("login_attempts = ?", attempts).
		Set("lockout_until = ?", lockoutUntil).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	return err
}

func (a *users) SaveLoginSuccessTx(ctx context.Context, tx bun.IDB, id uuid.UUID, at time.Time) error {
	_, err := tx.NewRaw(saveLoginSuccessSQL, at, at, id.String()).Exec(ctx)
	return err
}

func (a *users) StoreResetTokenTx(ctx context.Context, tx bun.IDB, id uuid.UUID, tokenHash string, expiresAt time.Time) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("reset_token_hash = ?", tokenHash).
		Set("reset_token_expires_at = ?", expiresAt).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	return err
}

func (a *users) CompletePasswordResetTx(ctx context.Context, tx bun.IDB, id uuid.UUID, passwordHash string) error {
	_, err := tx.NewRaw(completePasswordResetSQL, passwordHash, time.Now(), id.String()).Exec(ctx)
	return err
}

func (a *users) SaveProfileTx(ctx context.Context, tx bun.IDB, user *User) error {
	_, err := tx.NewUpdate().
		Model(user).
		Column("first_name", "last_name", "email").
		Set("updated_at = ?", time.Now()).
		WherePK().
		Exec(ctx)

	return err
}

func (a *users) SetProfilePictureTx(ctx context.Context, tx bun.IDB, id uuid.UUID, path *string) error {
	_, err := tx.NewUpdate().
		Model((*User)(nil)).
		Set("profile_picture = ?", path).
		Set("updated_at = ?", time.Now()).
		Where("?TableAlias.id = ?", id.String()).
		Where("?TableAlias.deleted_at IS NULL").
		Exec(ctx)

	return err
}

func (a *users) Remove(ctx context.Context, user *User) error {
	_, err := a.db.NewDelete().
		Model(user).
		WherePK().
		Exec(ctx)

	return err
}

func prepareUserDefaults(record *User) {
	if record == nil {
		return
	}

	if record.ID == uuid.Nil {
		record.ID = uuid.New()
	}

	if record.CreatedAt == nil {
		now := time.Now()
		record.CreatedAt = &now
	}
}
