package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/account/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB      *gorm.DB
	Log     *zap.Logger
	GenID   *snowflake.Node
	Repo    domain.Repository
	Clock   clock.Clock
	Credits config.CreditsConfig
}

type Service struct {
	db      *gorm.DB
	log     *zap.Logger
	genID   *snowflake.Node
	repo    domain.Repository
	clock   clock.Clock
	credits config.CreditsConfig
}

func New(p Params) domain.Service {
	clk := p.Clock
	if clk == nil {
		clk = clock.System()
	}
	return &Service{
		db:      p.DB,
		log:     p.Log.Named("account.service"),
		genID:   p.GenID,
		repo:    p.Repo,
		clock:   clk,
		credits: p.Credits,
	}
}

// GetOrCreate is safe to race: the insert is a no-op when another request
// created the account first, and both callers read the same row back.
func (s *Service) GetOrCreate(ctx context.Context, req domain.GetOrCreateRequest) (domain.GetOrCreateResponse, error) {
	if req.UserID <= 0 {
		return domain.GetOrCreateResponse{}, domain.ErrInvalidUserID
	}

	now := s.clock.Now()
	candidate := domain.Account{
		ID:          s.genID.Generate(),
		UserID:      req.UserID,
		Username:    strings.TrimSpace(req.Username),
		FirstName:   strings.TrimSpace(req.FirstName),
		FreeCredits: s.credits.FreeCredits,
		Attribution: req.Attribution,
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	created, err := s.repo.InsertIfAbsent(ctx, s.db, &candidate)
	if err != nil {
		return domain.GetOrCreateResponse{}, fmt.Errorf("insert account: %w", err)
	}

	account, err := s.repo.FindByUserID(ctx, s.db, req.UserID)
	if err != nil {
		return domain.GetOrCreateResponse{}, err
	}
	if account == nil {
		return domain.GetOrCreateResponse{}, domain.ErrNotFound
	}

	if created {
		logger.WithContext(ctx, s.log).Info("account created",
			zap.Int64("user_id", account.UserID),
			zap.Int("free_credits", account.FreeCredits),
			zap.String("utm_source", account.Attribution.Source),
		)
		return domain.GetOrCreateResponse{Account: *account, Created: true}, nil
	}

	if next, changed := account.Attribution.FillEmpty(req.Attribution); changed {
		if err := s.repo.UpdateAttribution(ctx, s.db, account.ID, next); err != nil {
			return domain.GetOrCreateResponse{}, err
		}
		account.Attribution = next
	}

	return domain.GetOrCreateResponse{Account: *account}, nil
}

func (s *Service) GetByUserID(ctx context.Context, userID int64) (domain.Account, error) {
	if userID <= 0 {
		return domain.Account{}, domain.ErrInvalidUserID
	}
	account, err := s.repo.FindByUserID(ctx, s.db, userID)
	if err != nil {
		return domain.Account{}, err
	}
	if account == nil {
		return domain.Account{}, domain.ErrNotFound
	}
	return *account, nil
}
