package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	"gorm.io/gorm"
)

type CreditRewardRequest struct {
	BeneficiaryID     snowflake.ID
	ReferredAccountID snowflake.ID
	Type              RewardType
	Credits           int
	OrderID           *snowflake.ID
}

type InviteResult struct {
	Assigned       bool                  `json:"assigned"`
	Referrer       accountdomain.Account `json:"referrer"`
	RewardCredited int                   `json:"reward_credited"`
}

type Service interface {
	GenerateCode(ctx context.Context) (string, error)
	EnsureCode(ctx context.Context, userID int64) (string, error)
	FindByCode(ctx context.Context, code string) (accountdomain.Account, error)

	AssignReferrer(ctx context.Context, userID, referrerUserID int64) (bool, error)
	AcceptInvite(ctx context.Context, userID int64, code string) (InviteResult, error)

	CreditReward(ctx context.Context, req CreditRewardRequest) (ReferralReward, error)
	// CreditRewardTx is CreditReward inside the caller's transaction.
	CreditRewardTx(ctx context.Context, tx *gorm.DB, req CreditRewardRequest) (ReferralReward, error)

	Stats(ctx context.Context, userID int64) (Stats, error)
}

var (
	ErrInvalidCode     = errors.New("invalid_referral_code")
	ErrCodeExhausted   = errors.New("referral_code_exhausted")
	ErrInvalidReward   = errors.New("invalid_reward")
	ErrDuplicateReward = errors.New("duplicate_reward")
)
