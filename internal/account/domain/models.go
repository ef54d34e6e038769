package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
)

// Account is the per-user credit holder. UserID is the identity assigned by
// the calling platform.
type Account struct {
	ID               snowflake.ID  `gorm:"primaryKey" json:"id"`
	UserID           int64         `gorm:"not null;uniqueIndex" json:"user_id"`
	Username         string        `gorm:"size:255" json:"username,omitempty"`
	FirstName        string        `gorm:"size:255" json:"first_name,omitempty"`
	FreeCredits      int           `gorm:"not null" json:"free_credits"`
	LifetimeConsumed int           `gorm:"not null" json:"lifetime_consumed"`
	ReferrerID       *snowflake.ID `gorm:"index" json:"referrer_id,omitempty"`
	ReferralCode     *string       `gorm:"size:16;uniqueIndex" json:"referral_code,omitempty"`
	ReferralCount    int           `gorm:"not null" json:"referral_count"`
	Attribution      Attribution   `gorm:"embedded;embeddedPrefix:utm_" json:"attribution"`
	CreatedAt        time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt        time.Time     `gorm:"not null" json:"updated_at"`
}

func (Account) TableName() string { return "accounts" }

// Attribution is the first-touch acquisition source of an account.
type Attribution struct {
	Source   string `gorm:"size:255;index" json:"source,omitempty"`
	Medium   string `gorm:"size:255" json:"medium,omitempty"`
	Campaign string `gorm:"size:255" json:"campaign,omitempty"`
	Content  string `gorm:"size:255" json:"content,omitempty"`
	Term     string `gorm:"size:255" json:"term,omitempty"`
}

func (a Attribution) IsZero() bool {
	return a == Attribution{}
}

// FillEmpty copies fields from next only where a has none yet.
func (a Attribution) FillEmpty(next Attribution) (Attribution, bool) {
	changed := false
	fill := func(dst *string, src string) {
		if *dst == "" && src != "" {
			*dst = src
			changed = true
		}
	}
	fill(&a.Source, next.Source)
	fill(&a.Medium, next.Medium)
	fill(&a.Campaign, next.Campaign)
	fill(&a.Content, next.Content)
	fill(&a.Term, next.Term)
	return a, changed
}
