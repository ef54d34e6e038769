package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
)

type CreateOrderRequest struct {
	UserID            int64
	PackageID         snowflake.ID
	ExternalReference string
	// Amount defaults to the package price when zero.
	Amount decimal.Decimal
}

type ListOrdersRequest struct {
	UserID int64
	pagination.Pagination
}

type ListOrdersResponse struct {
	Orders   []Order             `json:"orders"`
	PageInfo pagination.PageInfo `json:"page_info"`
}

type Service interface {
	Create(ctx context.Context, req CreateOrderRequest) (Order, error)
	Settle(ctx context.Context, externalReference string) (SettleResult, error)
	ListByUser(ctx context.Context, req ListOrdersRequest) (ListOrdersResponse, error)
	// ReconcileRewards credits purchase rewards that a settlement could not
	// complete. It returns how many were credited.
	ReconcileRewards(ctx context.Context, limit int) (int, error)
}

var (
	ErrNotFound             = errors.New("not_found")
	ErrInvalidReference     = errors.New("invalid_reference")
	ErrInvalidAmount        = errors.New("invalid_amount")
	ErrDuplicateReference   = errors.New("duplicate_reference")
	ErrInvalidTransition    = errors.New("invalid_transition")
	ErrRewardDeferred       = errors.New("reward_deferred")
	ErrSettlementInProgress = errors.New("settlement_in_progress")
)
