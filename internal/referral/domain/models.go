package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

type RewardType string

const (
	RewardOnSignup   RewardType = "on_signup"
	RewardOnPurchase RewardType = "on_purchase"
)

// ReferralReward is the audit row for credits granted to a referrer. At most
// one row exists per (order, reward type).
type ReferralReward struct {
	ID                snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID         snowflake.ID  `gorm:"not null;index" json:"account_id"`
	ReferredAccountID snowflake.ID  `gorm:"not null;index" json:"referred_account_id"`
	OrderID           *snowflake.ID `gorm:"uniqueIndex:ux_referral_rewards_order_type,priority:1" json:"order_id,omitempty"`
	RewardType        RewardType    `gorm:"size:32;not null;uniqueIndex:ux_referral_rewards_order_type,priority:2" json:"reward_type"`
	CreditsGranted    int           `gorm:"not null" json:"credits_granted"`
	CreatedAt         time.Time     `gorm:"not null" json:"created_at"`
}

func (ReferralReward) TableName() string { return "referral_rewards" }

type Stats struct {
	ReferralCount int                `json:"referral_count"`
	TotalRewards  int                `json:"total_rewards"`
	RewardsByType map[RewardType]int `json:"rewards_by_type"`
	Code          string             `json:"referral_code"`
}
