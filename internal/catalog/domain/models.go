package domain

import (
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
)

// Package is a purchasable bundle of credits. Packages are never deleted;
// removing one from the catalog only deactivates it.
type Package struct {
	ID          snowflake.ID    `gorm:"primaryKey" json:"id"`
	Name        string          `gorm:"size:255;not null;uniqueIndex:ux_packages_name_credits" json:"name"`
	CreditCount int             `gorm:"not null;uniqueIndex:ux_packages_name_credits" json:"credit_count"`
	Price       decimal.Decimal `gorm:"type:decimal(10,2);not null" json:"price"`
	Active      bool            `gorm:"not null;index" json:"active"`
	CreatedAt   time.Time       `gorm:"not null" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"not null" json:"updated_at"`
}

func (Package) TableName() string { return "packages" }

// PackageSpec is the desired state of one package. Name and CreditCount
// identify it.
type PackageSpec struct {
	Name        string          `json:"name"`
	CreditCount int             `json:"credit_count"`
	Price       decimal.Decimal `json:"price"`
}

type SyncResult struct {
	Created     int `json:"created"`
	Updated     int `json:"updated"`
	Deactivated int `json:"deactivated"`
}
