package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Repository owns every statement against the accounts table. Mutating
// counters is only safe after locking the row with a ForUpdate finder in
// the same transaction.
type Repository interface {
	InsertIfAbsent(ctx context.Context, db *gorm.DB, account *Account) (bool, error)
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByUserID(ctx context.Context, db *gorm.DB, userID int64) (*Account, error)
	FindByIDForUpdate(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Account, error)
	FindByUserIDForUpdate(ctx context.Context, db *gorm.DB, userID int64) (*Account, error)
	FindByReferralCode(ctx context.Context, db *gorm.DB, code string) (*Account, error)
	UpdateAttribution(ctx context.Context, db *gorm.DB, id snowflake.ID, attribution Attribution) error

	AddFreeCredits(ctx context.Context, db *gorm.DB, id snowflake.ID, delta int) error
	IncrementLifetimeConsumed(ctx context.Context, db *gorm.DB, id snowflake.ID) error
	SetReferralCode(ctx context.Context, db *gorm.DB, id snowflake.ID, code string) (bool, error)
	SetReferrer(ctx context.Context, db *gorm.DB, id, referrerID snowflake.ID) (bool, error)
	IncrementReferralCount(ctx context.Context, db *gorm.DB, id snowflake.ID) error
}
