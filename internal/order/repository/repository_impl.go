package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/order/domain"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, order *domain.Order) error {
	return db.WithContext(ctx).Create(order).Error
}

func (r *repo) FindByReference(ctx context.Context, db *gorm.DB, reference string) (*domain.Order, error) {
	var order domain.Order
	err := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("external_reference = ?", reference).
		Limit(1).
		Find(&order).Error
	if err != nil {
		return nil, err
	}
	if order.ID == 0 {
		return nil, nil
	}
	return &order, nil
}

func (r *repo) MarkPaid(ctx context.Context, db *gorm.DB, reference string, paidAt time.Time) (bool, error) {
	res := db.WithContext(ctx).Exec(
		`UPDATE orders SET status = ?, paid_at = ? WHERE external_reference = ? AND status = ?`,
		domain.StatusPaid, paidAt, reference, domain.StatusPending,
	)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected == 1, nil
}

func (r *repo) ListByAccount(ctx context.Context, db *gorm.DB, accountID snowflake.ID, after *pagination.Cursor, limit int) ([]domain.Order, error) {
	stmt := db.WithContext(ctx).
		Model(&domain.Order{}).
		Where("account_id = ?", accountID)
	if after != nil {
		stmt = stmt.Where("(created_at < ? OR (created_at = ? AND id < ?))", after.CreatedAt, after.CreatedAt, after.ID)
	}

	var orders []domain.Order
	err := stmt.Order("created_at DESC").Order("id DESC").Limit(limit).Find(&orders).Error
	return orders, err
}

func (r *repo) SetRewardDue(ctx context.Context, db *gorm.DB, orderID, referrerID snowflake.ID, credits int) error {
	return db.WithContext(ctx).Exec(
		`UPDATE orders SET reward_referrer_id = ?, reward_credits = ? WHERE id = ?`,
		referrerID, credits, orderID,
	).Error
}

func (r *repo) ListUnrewarded(ctx context.Context, db *gorm.DB, rewardType string, limit int) ([]domain.UnrewardedOrder, error) {
	var rows []domain.UnrewardedOrder
	err := db.WithContext(ctx).Raw(
		`SELECT o.id AS order_id, o.account_id AS buyer_id, o.reward_referrer_id AS referrer_id, o.reward_credits AS credits
		 FROM orders o
		 WHERE o.status = ?
		   AND o.reward_credits > 0
		   AND o.reward_referrer_id IS NOT NULL
		   AND NOT EXISTS (
		     SELECT 1 FROM referral_rewards r
		     WHERE r.order_id = o.id AND r.reward_type = ?
		   )
		 ORDER BY o.paid_at, o.id
		 LIMIT ?`,
		domain.StatusPaid, rewardType, limit,
	).Scan(&rows).Error
	return rows, err
}
