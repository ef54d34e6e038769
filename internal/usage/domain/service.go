package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
)

// FinalizeRequest closes a reservation once the unit of work is over.
type FinalizeRequest struct {
	UserID   int64
	UsedFree bool
	Success  bool

	OrderID         *snowflake.ID
	OriginalFileID  string
	ProcessedFileID string
	Prompt          string
}

type FinalizeResult struct {
	Committed bool                            `json:"committed"`
	FirstUse  bool                            `json:"first_use"`
	Record    *ledgerdomain.ConsumptionRecord `json:"record,omitempty"`
}

// Service is the entry point for callers running metered work: reserve a
// credit, do the work outside any lock, then finalize.
type Service interface {
	Reserve(ctx context.Context, userID int64) (ledgerdomain.Reservation, error)
	Finalize(ctx context.Context, req FinalizeRequest) (FinalizeResult, error)
}

var (
	ErrInvalidUserID = errors.New("invalid_user_id")
	ErrRateLimited   = errors.New("rate_limited")
)
