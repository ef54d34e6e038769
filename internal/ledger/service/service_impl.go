package service

import (
	"context"
	"fmt"
	"math"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	accountdomain "github.com/smallbiznis/creditledger/internal/account/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const (
	outcomeFree   = "free"
	outcomePaid   = "paid"
	outcomeDenied = "denied"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Accounts   accountdomain.Repository
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
	accounts   accountdomain.Repository
	clock      clock.Clock
	obsMetrics *obsmetrics.Metrics
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:         p.DB,
		log:        p.Log.Named("ledger.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		accounts:   p.Accounts,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) GetBalance(ctx context.Context, userID int64) (domain.Balance, error) {
	account, err := s.accounts.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Balance{}, err
	}
	if account == nil {
		return domain.Balance{}, accountdomain.ErrNotFound
	}

	paid, err := s.paidRemaining(ctx, s.db, account.ID)
	if err != nil {
		return domain.Balance{}, err
	}

	free := max(account.FreeCredits, 0)
	return domain.Balance{Free: free, Paid: paid, Total: free + paid}, nil
}

// paidRemaining derives the paid pool from settled orders minus paid
// consumptions. It never goes below zero.
func (s *Service) paidRemaining(ctx context.Context, db *gorm.DB, accountID snowflake.ID) (int, error) {
	purchased, err := s.repo.SumPaidCredits(ctx, db, accountID)
	if err != nil {
		return 0, fmt.Errorf("sum paid credits: %w", err)
	}
	consumed, err := s.repo.CountPaidConsumptions(ctx, db, accountID)
	if err != nil {
		return 0, fmt.Errorf("count paid consumptions: %w", err)
	}
	return int(max(purchased-consumed, 0)), nil
}

// Reserve takes one credit for a unit of work that has not started yet.
// Free credits are decremented under the row lock; a paid grant writes
// nothing and is only settled by Commit.
func (s *Service) Reserve(ctx context.Context, userID int64) (domain.Reservation, error) {
	var res domain.Reservation
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return nil
		}

		if account.FreeCredits > 0 {
			if err := s.accounts.AddFreeCredits(ctx, tx, account.ID, -1); err != nil {
				return err
			}
			res = domain.Reservation{Granted: true, UsedFree: true}
			return nil
		}

		paid, err := s.paidRemaining(ctx, tx, account.ID)
		if err != nil {
			return err
		}
		if paid > 0 {
			res = domain.Reservation{Granted: true}
		}
		return nil
	})
	if err != nil {
		return domain.Reservation{}, err
	}

	switch {
	case !res.Granted:
		s.obsMetrics.RecordReservation(ctx, outcomeDenied)
	case res.UsedFree:
		s.obsMetrics.RecordReservation(ctx, outcomeFree)
	default:
		s.obsMetrics.RecordReservation(ctx, outcomePaid)
	}
	return res, nil
}

// Rollback returns a reserved free credit after the work failed. Paid
// reservations never wrote anything, so there is nothing to undo.
func (s *Service) Rollback(ctx context.Context, userID int64, usedFree bool) error {
	if !usedFree {
		s.obsMetrics.RecordRollback(ctx, outcomePaid)
		return nil
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByUserIDForUpdate(ctx, tx, userID)
		if err != nil {
			return err
		}
		if account == nil {
			return nil
		}
		return s.accounts.AddFreeCredits(ctx, tx, account.ID, 1)
	})
	if err != nil {
		return err
	}

	s.obsMetrics.RecordRollback(ctx, outcomeFree)
	return nil
}

// Commit records a finished unit of work. For paid work this is what
// actually draws down the derived paid balance.
func (s *Service) Commit(ctx context.Context, req domain.CommitRequest) (domain.CommitResult, error) {
	var result domain.CommitResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		account, err := s.accounts.FindByUserIDForUpdate(ctx, tx, req.UserID)
		if err != nil {
			return err
		}
		if account == nil {
			return accountdomain.ErrNotFound
		}

		if !req.UsedFree {
			paid, err := s.paidRemaining(ctx, tx, account.ID)
			if err != nil {
				return err
			}
			if paid <= 0 {
				// the work already happened, so it is recorded; the balance floor absorbs it
				logger.WithContext(ctx, s.log).Warn("paid commit without remaining paid credits",
					zap.Int64("user_id", req.UserID),
					zap.String("account_id", account.ID.String()),
				)
			}
		}

		record := domain.ConsumptionRecord{
			ID:              s.genID.Generate(),
			AccountID:       account.ID,
			OrderID:         req.OrderID,
			IsFree:          req.UsedFree,
			OriginalFileID:  req.OriginalFileID,
			ProcessedFileID: req.ProcessedFileID,
			Prompt:          req.Prompt,
			CreatedAt:       s.clock.Now(),
		}
		if err := s.repo.InsertConsumption(ctx, tx, &record); err != nil {
			return fmt.Errorf("insert consumption: %w", err)
		}
		if err := s.accounts.IncrementLifetimeConsumed(ctx, tx, account.ID); err != nil {
			return err
		}

		result = domain.CommitResult{
			Record:   record,
			FirstUse: account.LifetimeConsumed == 0,
		}
		return nil
	})
	if err != nil {
		return domain.CommitResult{}, err
	}

	source := outcomePaid
	if req.UsedFree {
		source = outcomeFree
	}
	s.obsMetrics.RecordConsumption(ctx, source)
	return result, nil
}

func (s *Service) CreditFree(ctx context.Context, tx *gorm.DB, accountID snowflake.ID, credits int) error {
	if credits <= 0 {
		return domain.ErrInvalidCredits
	}
	account, err := s.accounts.FindByIDForUpdate(ctx, tx, accountID)
	if err != nil {
		return err
	}
	if account == nil {
		return accountdomain.ErrNotFound
	}
	return s.accounts.AddFreeCredits(ctx, tx, account.ID, credits)
}

func (s *Service) Summary(ctx context.Context) (domain.Summary, error) {
	return s.repo.Summary(ctx, s.db)
}

func (s *Service) UTMStats(ctx context.Context) ([]domain.UTMStat, error) {
	stats, err := s.repo.UTMStats(ctx, s.db)
	if err != nil {
		return nil, err
	}
	for i := range stats {
		st := &stats[i]
		st.ConversionRate = percent(st.PayingUsers, st.Users)
		st.ARPU = decimal.Zero
		if st.Users > 0 {
			st.ARPU = st.Revenue.Div(decimal.NewFromInt(st.Users)).Round(2)
		}
	}
	return stats, nil
}

func (s *Service) Funnel(ctx context.Context) (domain.Funnel, error) {
	funnel, err := s.repo.Funnel(ctx, s.db)
	if err != nil {
		return domain.Funnel{}, err
	}
	funnel.StartToFirstUseRate = percent(funnel.FirstUses, funnel.Starts)
	funnel.FirstUseToPurchaseRate = percent(funnel.Purchases, funnel.FirstUses)
	funnel.OverallConversionRate = percent(funnel.Purchases, funnel.Starts)
	return funnel, nil
}

// percent is part/whole*100 rounded to two places, or 0 for an empty whole.
func percent(part, whole int64) float64 {
	if whole <= 0 {
		return 0
	}
	return math.Round(float64(part)*10000/float64(whole)) / 100
}
