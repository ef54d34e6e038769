package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"gorm.io/gorm"
)

// Service is the balance reservation engine. Every mutating call locks the
// account row for the length of one short transaction.
type Service interface {
	GetBalance(ctx context.Context, userID int64) (Balance, error)
	Reserve(ctx context.Context, userID int64) (Reservation, error)
	Rollback(ctx context.Context, userID int64, usedFree bool) error
	Commit(ctx context.Context, req CommitRequest) (CommitResult, error)

	// CreditFree adds free credits inside the caller's transaction.
	CreditFree(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int) error

	Summary(ctx context.Context) (Summary, error)
	UTMStats(ctx context.Context) ([]UTMStat, error)
	Funnel(ctx context.Context) (Funnel, error)
}

var (
	ErrInvalidCredits = errors.New("invalid_credits")
)
