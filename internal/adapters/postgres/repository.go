package repo

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/example/forum-auth/internal/domain"
)

const pgUniqueViolation = "23505"

type AccountRepository interface {
	// Create inserts the account in its own transaction. Unique violations come
	// back as *domain.ConflictError.
	Create(ctx context.Context, account *domain.Account) error
	FindByHandle(ctx context.Context, handle string) (*domain.Account, error)
	FindByProvider(ctx context.Context, providerID int64, typ domain.RegistrationType) (*domain.Account, error)
	FindByID(ctx context.Context, id string) (*domain.Account, error)
	MarkVerified(ctx context.Context, id string) error
	TouchLastLogin(ctx context.Context, id string, at time.Time) error
}

type accountRepo struct{ db *gorm.DB }

func NewAccountRepository(db *gorm.DB) AccountRepository { return &accountRepo{db: db} }

// Migrate creates or updates the account table and its unique indexes.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Account{})
}

func (r *accountRepo) Create(ctx context.Context, account *domain.Account) error {
	if account.ID == "" {
		account.ID = uuid.NewString()
	}
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(account).Error; err != nil {
			return translateWriteError(err)
		}
		return nil
	})
}

func (r *accountRepo) FindByHandle(ctx context.Context, handle string) (*domain.Account, error) {
	return r.first(ctx, "handle = ?", handle)
}

func (r *accountRepo) FindByProvider(ctx context.Context, providerID int64, typ domain.RegistrationType) (*domain.Account, error) {
	return r.first(ctx, "provider_id = ? AND registration_type = ?", providerID, typ)
}

func (r *accountRepo) FindByID(ctx context.Context, id string) (*domain.Account, error) {
	return r.first(ctx, "id = ?", id)
}

// MarkVerified only ever sets the flag; there is no path back to unverified.
func (r *accountRepo) MarkVerified(ctx context.Context, id string) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Update("is_verified", true)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepo) TouchLastLogin(ctx context.Context, id string, at time.Time) error {
	res := r.db.WithContext(ctx).
		Model(&domain.Account{}).
		Where("id = ?", id).
		Update("last_login_at", at)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}

func (r *accountRepo) first(ctx context.Context, query string, args ...interface{}) (*domain.Account, error) {
	var account domain.Account
	if err := r.db.WithContext(ctx).Where(query, args...).First(&account).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	return &account, nil
}

// translateWriteError maps driver unique violations onto domain.ConflictError,
// keeping the colliding column when the driver reports it.
func translateWriteError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
		return &domain.ConflictError{Field: strings.TrimPrefix(pgErr.ConstraintName, "ux_account_")}
	}
	const sqliteUnique = "UNIQUE constraint failed: "
	if msg := err.Error(); strings.Contains(msg, sqliteUnique) {
		column := msg[strings.Index(msg, sqliteUnique)+len(sqliteUnique):]
		if i := strings.IndexAny(column, " ,"); i >= 0 {
			column = column[:i]
		}
		if i := strings.LastIndex(column, "."); i >= 0 {
			column = column[i+1:]
		}
		return &domain.ConflictError{Field: column}
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return &domain.ConflictError{}
	}
	return err
}
