package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"gorm.io/gorm"
)

// UnrewardedOrder is a paid order whose owed purchase reward has no
// reward row yet.
type UnrewardedOrder struct {
	OrderID    snowflake.ID
	BuyerID    snowflake.ID
	ReferrerID snowflake.ID
	Credits    int
}

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, order *Order) error
	FindByReference(ctx context.Context, db *gorm.DB, reference string) (*Order, error)
	// MarkPaid flips a pending order to paid and reports whether this call
	// did the transition.
	MarkPaid(ctx context.Context, db *gorm.DB, reference string, paidAt time.Time) (bool, error)
	ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, after *pagination.Cursor, limit int) ([]Order, error)
	// SetRewardDue stores the purchase reward owed for an order.
	SetRewardDue(ctx context.Context, db *gorm.DB, orderID, referrerID snowflake.ID, credits int) error
	ListUnrewarded(ctx context.Context, db *gorm.DB, rewardType string, limit int) ([]UnrewardedOrder, error)
}
