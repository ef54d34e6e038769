package service

import (
	"context"
	"crypto/rand"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"github.com/smallbiznis/creditledger/internal/referral/domain"
	"github.com/smallbiznis/creditledger/pkg/db"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	codeAlphabet    = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	codeLength      = 6
	maxCodeAttempts = 10
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Accounts   accountdomain.Repository
	Ledger     ledgerdomain.Service
	Clock      clock.Clock
	Config     config.ReferralConfig
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	accounts   accountdomain.Repository
	ledger     ledgerdomain.Service
	clock      clock.Clock
	cfg        config.ReferralConfig
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("referral.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		accounts:   p.Accounts,
		ledger:     p.Ledger,
		clock:      clk,
		cfg:        p.Config,
		obsMetrics: p.ObsMetrics,
	}
}

func randomCode() (string, error) {
	buf := make([]byte, codeLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	for i, b := range buf {
		buf[i] = codeAlphabet[int(b)%len(codeAlphabet)]
	}
	return string(buf), nil
}

// GenerateCode returns a code no account holds yet. Uniqueness is only
// advisory here; the unique index decides when the code is stored.
func (s *Service) GenerateCode(ctx context.Context) (string, error) {
	for range maxCodeAttempts {
		code, err := randomCode()
		if err != nil {
			return "", err
		}
		owner, err := s.accounts.FindByReferralCode(ctx, s.db, code)
		if err != nil {
			return "", err
		}
		if owner == nil {
			return code, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

func (s *Service) EnsureCode(ctx context.Context, userID int64) (string, error) {
	account, err := s.accounts.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return "", err
	}
	if account == nil {
		return "", accountdomain.ErrNotFound
	}
	if account.ReferralCode != nil {
		return *account.ReferralCode, nil
	}

	// one bounded loop; the unique index on referral_code arbitrates collisions
	for range maxCodeAttempts {
		code, err := randomCode()
		if err != nil {
			return "", err
		}

		set, err := s.accounts.SetReferralCode(ctx, s.db, account.ID, code)
		if db.IsDuplicateKeyErr(err) {
			continue
		}
		if err != nil {
			return "", fmt.Errorf("set referral code: %w", err)
		}
		if set {
			return code, nil
		}

		// a concurrent request assigned one first
		current, err := s.accounts.FindByID(ctx, s.db, account.ID)
		if err != nil {
			return "", err
		}
		if current != nil && current.ReferralCode != nil {
			return *current.ReferralCode, nil
		}
	}
	return "", domain.ErrCodeExhausted
}

func (s *Service) FindByCode(ctx context.Context, code string) (accountdomain.Account, error) {
	code = normalizeCode(code)
	if code == "" {
		return accountdomain.Account{}, domain.ErrInvalidCode
	}
	account, err := s.accounts.FindByReferralCode(ctx, s.db, code)
	if err != nil {
		return accountdomain.Account{}, err
	}
	if account == nil {
		return accountdomain.Account{}, accountdomain.ErrNotFound
	}
	return *account, nil
}

func normalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (s *Service) AssignReferrer(ctx context.Context, userID, referrerUserID int64) (bool, error) {
	var assigned bool
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, referrer, err := s.lockPair(ctx, tx, userID, referrerUserID)
		if err != nil {
			return err
		}
		assigned, err = s.assign(ctx, tx, user, referrer)
		return err
	})
	return assigned, err
}

// AcceptInvite links userID to the owner of code and, when that link is new,
// pays the signup reward to the owner in the same transaction.
func (s *Service) AcceptInvite(ctx context.Context, userID int64, code string) (domain.InviteResult, error) {
	owner, err := s.FindByCode(ctx, code)
	if err != nil {
		return domain.InviteResult{}, err
	}

	var result domain.InviteResult
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		user, referrer, err := s.lockPair(ctx, tx, userID, owner.UserID)
		if err != nil {
			return err
		}
		assigned, err := s.assign(ctx, tx, user, referrer)
		if err != nil {
			return err
		}
		result = domain.InviteResult{Assigned: assigned, Referrer: *referrer}
		if !assigned || s.cfg.SignupReward <= 0 {
			return nil
		}

		reward, err := s.CreditRewardTx(ctx, tx, domain.CreditRewardRequest{
			BeneficiaryID:     referrer.ID,
			ReferredAccountID: user.ID,
			Type:              domain.RewardOnSignup,
			Credits:           s.cfg.SignupReward,
		})
		if err != nil {
			return err
		}
		result.RewardCredited = reward.CreditsGranted
		return nil
	})
	if err != nil {
		return domain.InviteResult{}, err
	}

	if result.RewardCredited > 0 {
		s.obsMetrics.RecordReferralReward(ctx, string(domain.RewardOnSignup), result.RewardCredited)
	}
	return result, nil
}

// lockPair locks both accounts in id order so two opposite assignments
// cannot deadlock.
func (s *Service) lockPair(ctx context.Context, tx *gorm.DB, userID, referrerUserID int64) (*accountdomain.Account, *accountdomain.Account, error) {
	first, second := userID, referrerUserID
	if second < first {
		first, second = second, first
	}

	locked := make(map[int64]*accountdomain.Account, 2)
	for _, id := range []int64{first, second} {
		if _, ok := locked[id]; ok {
			continue
		}
		account, err := s.accounts.FindByUserIDForUpdate(ctx, tx, id)
		if err != nil {
			return nil, nil, err
		}
		if account == nil {
			return nil, nil, accountdomain.ErrNotFound
		}
		locked[id] = account
	}
	return locked[userID], locked[referrerUserID], nil
}

func (s *Service) assign(ctx context.Context, tx *gorm.DB, user, referrer *accountdomain.Account) (bool, error) {
	if user.ID == referrer.ID || user.ReferrerID != nil {
		return false, nil
	}
	set, err := s.accounts.SetReferrer(ctx, tx, user.ID, referrer.ID)
	if err != nil || !set {
		return false, err
	}
	if err := s.accounts.IncrementReferralCount(ctx, tx, referrer.ID); err != nil {
		return false, err
	}

	logger.WithContext(ctx, s.log).Info("referrer assigned",
		zap.Int64("user_id", user.UserID),
		zap.Int64("referrer_user_id", referrer.UserID),
	)
	return true, nil
}

func (s *Service) CreditReward(ctx context.Context, req domain.CreditRewardRequest) (domain.ReferralReward, error) {
	var reward domain.ReferralReward
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		reward, err = s.CreditRewardTx(ctx, tx, req)
		return err
	})
	if err != nil {
		return domain.ReferralReward{}, err
	}
	s.obsMetrics.RecordReferralReward(ctx, string(reward.RewardType), reward.CreditsGranted)
	return reward, nil
}

func (s *Service) CreditRewardTx(ctx context.Context, tx *gorm.DB, req domain.CreditRewardRequest) (domain.ReferralReward, error) {
	if req.Credits <= 0 {
		return domain.ReferralReward{}, domain.ErrInvalidReward
	}
	switch req.Type {
	case domain.RewardOnSignup, domain.RewardOnPurchase:
	default:
		return domain.ReferralReward{}, domain.ErrInvalidReward
	}

	reward := domain.ReferralReward{
		ID:                s.genID.Generate(),
		AccountID:         req.BeneficiaryID,
		ReferredAccountID: req.ReferredAccountID,
		OrderID:           req.OrderID,
		RewardType:        req.Type,
		CreditsGranted:    req.Credits,
		CreatedAt:         s.clock.Now(),
	}

	// credit first so the beneficiary row is locked before the audit insert
	if err := s.ledger.CreditFree(ctx, tx, req.BeneficiaryID, req.Credits); err != nil {
		return domain.ReferralReward{}, err
	}
	if err := s.repo.InsertReward(ctx, tx, &reward); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.ReferralReward{}, domain.ErrDuplicateReward
		}
		return domain.ReferralReward{}, fmt.Errorf("insert referral reward: %w", err)
	}

	logger.WithContext(ctx, s.log).Info("referral reward credited",
		zap.String("account_id", req.BeneficiaryID.String()),
		zap.String("reward_type", string(req.Type)),
		zap.Int("credits", req.Credits),
	)
	return reward, nil
}

func (s *Service) Stats(ctx context.Context, userID int64) (domain.Stats, error) {
	account, err := s.accounts.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Stats{}, err
	}
	if account == nil {
		return domain.Stats{}, accountdomain.ErrNotFound
	}

	byType, err := s.repo.SumRewardsByType(ctx, s.db, account.ID)
	if err != nil {
		return domain.Stats{}, err
	}

	stats := domain.Stats{
		ReferralCount: account.ReferralCount,
		RewardsByType: byType,
	}
	for _, credits := range byType {
		stats.TotalRewards += credits
	}
	if account.ReferralCode != nil {
		stats.Code = *account.ReferralCode
	}
	return stats, nil
}
