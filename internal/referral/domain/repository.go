package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertReward(ctx context.Context, db *gorm.DB, reward *ReferralReward) error
	SumRewardsByType(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (map[RewardType]int, error)
}
