package domain

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type Repository interface {
	Insert(ctx context.Context, db *gorm.DB, pkg *Package) error
	FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*Package, error)
	ListAll(ctx context.Context, db *gorm.DB) ([]Package, error)
	ListActive(ctx context.Context, db *gorm.DB) ([]Package, error)
	UpdatePriceAndActivate(ctx context.Context, db *gorm.DB, id snowflake.ID, price decimal.Decimal, now time.Time) error
	Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error
}
