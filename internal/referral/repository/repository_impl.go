package repository

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/referral/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) InsertReward(ctx context.Context, db *gorm.DB, reward *domain.ReferralReward) error {
	return db.WithContext(ctx).Create(reward).Error
}

func (r *repo) SumRewardsByType(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (map[domain.RewardType]int, error) {
	var rows []struct {
		RewardType domain.RewardType
		Total      int
	}
	err := db.WithContext(ctx).
		Model(&domain.ReferralReward{}).
		Select("reward_type, COALESCE(SUM(credits_granted), 0) AS total").
		Where("account_id = ?", accountID).
		Group("reward_type").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}

	totals := make(map[domain.RewardType]int, len(rows))
	for _, row := range rows {
		totals[row.RewardType] = row.Total
	}
	return totals, nil
}
