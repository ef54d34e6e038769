package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending  Status = "pending"
	StatusPaid     Status = "paid"
	StatusRefunded Status = "refunded"
)

// Order is a purchase intent. Only pending to paid happens here; refunds are
// written by an external process.
type Order struct {
	ID                snowflake.ID    `gorm:"primaryKey" json:"id"`
	AccountID         snowflake.ID    `gorm:"not null;index" json:"account_id"`
	PackageID         snowflake.ID    `gorm:"not null;index" json:"package_id"`
	ExternalReference *string         `gorm:"size:255;uniqueIndex" json:"external_reference,omitempty"`
	Amount            decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"amount"`
	Status            Status          `gorm:"size:16;not null;index" json:"status"`
	CreatedAt         time.Time       `gorm:"not null" json:"created_at"`
	PaidAt            *time.Time      `json:"paid_at,omitempty"`

	// Purchase reward owed to the buyer's referrer, fixed when the order
	// turned paid. Nothing is owed while RewardCredits is zero.
	RewardReferrerID *snowflake.ID `json:"-"`
	RewardCredits    int           `gorm:"not null;default:0" json:"-"`
}

func (Order) TableName() string { return "orders" }

type SettleOutcome string

const (
	OutcomeProcessed      SettleOutcome = "processed"
	OutcomeAlreadySettled SettleOutcome = "already_settled"
)

type SettleResult struct {
	Outcome        SettleOutcome `json:"outcome"`
	Order          Order         `json:"order"`
	RewardCredited int           `json:"reward_credited"`
}
