package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// ConsumptionRecord is an append-only row per finished unit of work. Rows
// with IsFree=false are what the derived paid balance subtracts.
type ConsumptionRecord struct {
	ID              snowflake.ID  `gorm:"primaryKey" json:"id"`
	AccountID       snowflake.ID  `gorm:"not null;index:ix_consumption_account_free,priority:1" json:"account_id"`
	OrderID         *snowflake.ID `gorm:"index" json:"order_id,omitempty"`
	IsFree          bool          `gorm:"not null;index:ix_consumption_account_free,priority:2" json:"is_free"`
	OriginalFileID  string        `gorm:"size:255" json:"original_file_id,omitempty"`
	ProcessedFileID string        `gorm:"size:255" json:"processed_file_id,omitempty"`
	Prompt          string        `gorm:"type:text" json:"prompt,omitempty"`
	CreatedAt       time.Time     `gorm:"not null" json:"created_at"`
}

func (ConsumptionRecord) TableName() string { return "consumption_records" }

type Balance struct {
	Free  int `json:"free"`
	Paid  int `json:"paid"`
	Total int `json:"total"`
}

// Reservation is the outcome of Reserve. UsedFree tells the caller which
// pool to roll back or commit against.
type Reservation struct {
	Granted  bool `json:"granted"`
	UsedFree bool `json:"used_free"`
}

type CommitRequest struct {
	UserID          int64
	UsedFree        bool
	OrderID         *snowflake.ID
	OriginalFileID  string
	ProcessedFileID string
	Prompt          string
}

type CommitResult struct {
	Record   ConsumptionRecord `json:"record"`
	FirstUse bool              `json:"first_use"`
}

// Summary aggregates platform-wide counters for operators.
type Summary struct {
	TotalAccounts     int64           `json:"total_accounts"`
	TotalConsumptions int64           `json:"total_consumptions"`
	FreeConsumptions  int64           `json:"free_consumptions"`
	PaidOrders        int64           `json:"paid_orders"`
	PendingOrders     int64           `json:"pending_orders"`
	Revenue           decimal.Decimal `json:"revenue"`
}

// UTMStat is acquisition performance for one source/medium/campaign. Rates
// are percentages rounded to two places.
type UTMStat struct {
	Source         string          `json:"utm_source"`
	Medium         string          `json:"utm_medium"`
	Campaign       string          `json:"utm_campaign"`
	Users          int64           `json:"total_users"`
	PayingUsers    int64           `json:"paying_users"`
	ConversionRate float64         `json:"conversion_rate"`
	Revenue        decimal.Decimal `json:"revenue"`
	ARPU           decimal.Decimal `json:"arpu"`
}

// Funnel follows attributed accounts from signup to first use to first
// purchase.
type Funnel struct {
	Starts                 int64   `json:"starts"`
	FirstUses              int64   `json:"first_uses"`
	Purchases              int64   `json:"purchases"`
	StartToFirstUseRate    float64 `json:"start_to_first_use_rate"`
	FirstUseToPurchaseRate float64 `json:"first_use_to_purchase_rate"`
	OverallConversionRate  float64 `json:"overall_conversion_rate"`
}
