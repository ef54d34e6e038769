package domain

import (
	"context"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

type Repository interface {
	InsertConsumption(ctx context.Context, db *gorm.DB, record *ConsumptionRecord) error
	SumPaidCredits(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	CountPaidConsumptions(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int64, error)
	Summary(ctx context.Context, db *gorm.DB) (Summary, error)
	// UTMStats and Funnel fill counts and revenue only; rates are derived
	// by the service.
	UTMStats(ctx context.Context, db *gorm.DB) ([]UTMStat, error)
	Funnel(ctx context.Context, db *gorm.DB) (Funnel, error)
}
