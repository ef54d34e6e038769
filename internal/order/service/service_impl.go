package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	catalogdomain "github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"github.com/smallbiznis/creditledger/internal/order/domain"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	referraldomain "github.com/smallbiznis/creditledger/internal/referral/domain"
	"github.com/smallbiznis/creditledger/pkg/db"
	"github.com/smallbiznis/creditledger/pkg/db/pagination"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	maxReferenceLength = 255
	referencePrefix    = "ord_"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Accounts   accountdomain.Repository
	Packages   catalogdomain.Repository
	Referral   referraldomain.Service
	Clock      clock.Clock
	Config     config.ReferralConfig
	Locker     *ratelimit.SettlementLocker `optional:"true"`
	ObsMetrics *obsmetrics.Metrics         `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	accounts   accountdomain.Repository
	packages   catalogdomain.Repository
	referral   referraldomain.Service
	clock      clock.Clock
	cfg        config.ReferralConfig
	locker     *ratelimit.SettlementLocker
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("order.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		accounts:   p.Accounts,
		packages:   p.Packages,
		referral:   p.Referral,
		clock:      clk,
		cfg:        p.Config,
		locker:     p.Locker,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Create(ctx context.Context, req domain.CreateOrderRequest) (domain.Order, error) {
	if req.Amount.IsNegative() {
		return domain.Order{}, domain.ErrInvalidAmount
	}

	account, err := s.accounts.FindByUserID(ctx, s.db, req.UserID)
	if err != nil {
		return domain.Order{}, err
	}
	if account == nil {
		return domain.Order{}, accountdomain.ErrNotFound
	}

	pkg, err := s.packages.FindByID(ctx, s.db, req.PackageID)
	if err != nil {
		return domain.Order{}, err
	}
	if pkg == nil {
		return domain.Order{}, catalogdomain.ErrNotFound
	}
	if !pkg.Active {
		return domain.Order{}, catalogdomain.ErrInactive
	}

	id := s.genID.Generate()
	reference := strings.TrimSpace(req.ExternalReference)
	if reference == "" {
		reference = referencePrefix + id.String()
	}
	if len(reference) > maxReferenceLength {
		return domain.Order{}, domain.ErrInvalidReference
	}

	amount := req.Amount
	if amount.IsZero() {
		amount = pkg.Price
	}

	order := domain.Order{
		ID:                id,
		AccountID:         account.ID,
		PackageID:         pkg.ID,
		ExternalReference: &reference,
		Amount:            amount,
		Status:            domain.StatusPending,
		CreatedAt:         s.clock.Now(),
	}
	if err := s.repo.Insert(ctx, s.db, &order); err != nil {
		if db.IsDuplicateKeyErr(err) {
			return domain.Order{}, domain.ErrDuplicateReference
		}
		return domain.Order{}, fmt.Errorf("insert order: %w", err)
	}

	logger.WithContext(ctx, s.log).Info("order created",
		zap.String("order_id", order.ID.String()),
		zap.Int64("user_id", req.UserID),
		zap.String("package", pkg.Name),
		zap.String("amount", amount.StringFixed(2)),
	)
	return order, nil
}

// Settle applies a payment confirmation. Only the call that moves the order
// from pending to paid has side effects; replays report OutcomeAlreadySettled.
// The reward owed to the buyer's referrer is fixed in the same transaction
// as the status change and credited after it commits, so a reward failure
// leaves a paid order that ReconcileRewards picks up later.
func (s *Service) Settle(ctx context.Context, externalReference string) (domain.SettleResult, error) {
	log := logger.WithContext(ctx, s.log)
	reference := strings.TrimSpace(externalReference)
	if reference == "" {
		return domain.SettleResult{}, domain.ErrInvalidReference
	}

	release, acquired, err := s.locker.Acquire(ctx, reference)
	if err != nil {
		log.Warn("settlement lock unavailable", zap.String("reference", reference), zap.Error(err))
	} else if !acquired {
		s.obsMetrics.RecordSettlement(ctx, "in_progress")
		return domain.SettleResult{}, domain.ErrSettlementInProgress
	}
	defer release()

	var (
		order     *domain.Order
		processed bool
	)
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		processed, err = s.repo.MarkPaid(ctx, tx, reference, s.clock.Now())
		if err != nil {
			return fmt.Errorf("mark paid: %w", err)
		}
		order, err = s.repo.FindByReference(ctx, tx, reference)
		if err != nil {
			return err
		}
		if order == nil {
			return domain.ErrNotFound
		}
		if !processed {
			if order.Status != domain.StatusPaid {
				return domain.ErrInvalidTransition
			}
			return nil
		}
		return s.fixRewardDue(ctx, tx, order)
	})
	if err != nil {
		s.obsMetrics.RecordSettlement(ctx, settlementOutcome(err))
		return domain.SettleResult{}, err
	}

	if !processed {
		s.obsMetrics.RecordSettlement(ctx, string(domain.OutcomeAlreadySettled))
		log.Info("payment notification replayed", zap.String("reference", reference))
		return domain.SettleResult{Outcome: domain.OutcomeAlreadySettled, Order: *order}, nil
	}

	s.obsMetrics.RecordSettlement(ctx, string(domain.OutcomeProcessed))
	log.Info("order paid",
		zap.String("order_id", order.ID.String()),
		zap.String("reference", reference),
		zap.Int("reward_due", order.RewardCredits),
	)

	result := domain.SettleResult{Outcome: domain.OutcomeProcessed, Order: *order}
	if order.RewardReferrerID == nil || order.RewardCredits <= 0 {
		return result, nil
	}
	credited, err := s.creditPurchaseReward(ctx, domain.UnrewardedOrder{
		OrderID:    order.ID,
		BuyerID:    order.AccountID,
		ReferrerID: *order.RewardReferrerID,
		Credits:    order.RewardCredits,
	})
	if err != nil {
		log.Error("purchase reward deferred",
			zap.String("order_id", order.ID.String()),
			zap.Error(err),
		)
		return result, fmt.Errorf("%w: %w", domain.ErrRewardDeferred, err)
	}
	result.RewardCredited = credited
	return result, nil
}

func settlementOutcome(err error) string {
	switch {
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidTransition):
		return "invalid_transition"
	default:
		return "error"
	}
}

// fixRewardDue records on a freshly paid order what its buyer's referrer is
// owed at this moment. Later referrer or percent changes do not touch it.
func (s *Service) fixRewardDue(ctx context.Context, tx *gorm.DB, order *domain.Order) error {
	if s.cfg.PurchasePercent <= 0 {
		return nil
	}

	buyer, err := s.accounts.FindByID(ctx, tx, order.AccountID)
	if err != nil {
		return err
	}
	if buyer == nil || buyer.ReferrerID == nil {
		return nil
	}

	pkg, err := s.packages.FindByID(ctx, tx, order.PackageID)
	if err != nil {
		return err
	}
	if pkg == nil {
		return catalogdomain.ErrNotFound
	}

	credits := PurchaseReward(pkg.CreditCount, s.cfg.PurchasePercent)
	if credits <= 0 {
		return nil
	}
	if err := s.repo.SetRewardDue(ctx, tx, order.ID, *buyer.ReferrerID, credits); err != nil {
		return fmt.Errorf("set reward due: %w", err)
	}
	referrerID := *buyer.ReferrerID
	order.RewardReferrerID = &referrerID
	order.RewardCredits = credits
	return nil
}

func (s *Service) creditPurchaseReward(ctx context.Context, o domain.UnrewardedOrder) (int, error) {
	if o.Credits <= 0 {
		return 0, nil
	}

	orderID := o.OrderID
	reward, err := s.referral.CreditReward(ctx, referraldomain.CreditRewardRequest{
		BeneficiaryID:     o.ReferrerID,
		ReferredAccountID: o.BuyerID,
		Type:              referraldomain.RewardOnPurchase,
		Credits:           o.Credits,
		OrderID:           &orderID,
	})
	if errors.Is(err, referraldomain.ErrDuplicateReward) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return reward.CreditsGranted, nil
}

// PurchaseReward is floor(credits * percent / 100).
func PurchaseReward(credits, percent int) int {
	if credits <= 0 || percent <= 0 {
		return 0
	}
	return credits * percent / 100
}

// ReconcileRewards retries only rewards that a settlement fixed as owed.
func (s *Service) ReconcileRewards(ctx context.Context, limit int) (int, error) {
	if limit <= 0 {
		limit = 100
	}

	pending, err := s.repo.ListUnrewarded(ctx, s.db, string(referraldomain.RewardOnPurchase), limit)
	if err != nil {
		return 0, fmt.Errorf("list unrewarded orders: %w", err)
	}

	credited := 0
	var errs []error
	for _, o := range pending {
		n, err := s.creditPurchaseReward(ctx, o)
		if err != nil {
			errs = append(errs, fmt.Errorf("order %s: %w", o.OrderID, err))
			continue
		}
		if n > 0 {
			credited++
		}
	}

	if credited > 0 {
		s.obsMetrics.RecordRewardReconciled(ctx, credited)
		logger.WithContext(ctx, s.log).Info("purchase rewards reconciled", zap.Int("count", credited))
	}
	return credited, errors.Join(errs...)
}

func (s *Service) ListByUser(ctx context.Context, req domain.ListOrdersRequest) (domain.ListOrdersResponse, error) {
	account, err := s.accounts.FindByUserID(ctx, s.db, req.UserID)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}
	if account == nil {
		return domain.ListOrdersResponse{}, accountdomain.ErrNotFound
	}

	after, err := pagination.DecodeCursor(req.PageToken)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	limit := req.Limit()
	rows, err := s.repo.ListByAccount(ctx, s.db, account.ID, after, limit+1)
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}

	orders, info, err := pagination.Page(rows, limit, func(o domain.Order) pagination.Cursor {
		return pagination.Cursor{ID: int64(o.ID), CreatedAt: o.CreatedAt}
	})
	if err != nil {
		return domain.ListOrdersResponse{}, err
	}
	if orders == nil {
		orders = []domain.Order{}
	}
	return domain.ListOrdersResponse{Orders: orders, PageInfo: info}, nil
}
