package service

import (
	"context"

	ledgerdomain "github.com/smallbiznis/creditledger/internal/ledger/domain"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"github.com/smallbiznis/creditledger/internal/ratelimit"
	usagedomain "github.com/smallbiznis/creditledger/internal/usage/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type ServiceParam struct {
	fx.In

	Log        *zap.Logger
	Ledger     ledgerdomain.Service
	Limiter    *ratelimit.ReservationLimiter `optional:"true"`
	ObsMetrics *obsmetrics.Metrics           `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	ledger     ledgerdomain.Service
	limiter    *ratelimit.ReservationLimiter
	obsMetrics *obsmetrics.Metrics
}

func NewService(p ServiceParam) usagedomain.Service {
	return &Service{
		log:        p.Log.Named("usage.service"),
		ledger:     p.Ledger,
		limiter:    p.Limiter,
		obsMetrics: p.ObsMetrics,
	}
}

func (s *Service) Reserve(ctx context.Context, userID int64) (ledgerdomain.Reservation, error) {
	if userID <= 0 {
		return ledgerdomain.Reservation{}, usagedomain.ErrInvalidUserID
	}

	res, err := s.limiter.Allow(ctx, userID)
	switch {
	case err != nil:
		// limiter outage must not block paying users
		logger.WithContext(ctx, s.log).Warn("reservation limiter unavailable", zap.Int64("user_id", userID), zap.Error(err))
	case !res.Allowed:
		s.obsMetrics.RecordRateLimitDenied(ctx, "reservation")
		return ledgerdomain.Reservation{}, usagedomain.ErrRateLimited
	}

	return s.ledger.Reserve(ctx, userID)
}

// Finalize commits the reservation when the work succeeded and returns the
// credit otherwise.
func (s *Service) Finalize(ctx context.Context, req usagedomain.FinalizeRequest) (usagedomain.FinalizeResult, error) {
	if req.UserID <= 0 {
		return usagedomain.FinalizeResult{}, usagedomain.ErrInvalidUserID
	}

	if !req.Success {
		if err := s.ledger.Rollback(ctx, req.UserID, req.UsedFree); err != nil {
			return usagedomain.FinalizeResult{}, err
		}
		return usagedomain.FinalizeResult{}, nil
	}

	committed, err := s.ledger.Commit(ctx, ledgerdomain.CommitRequest{
		UserID:          req.UserID,
		UsedFree:        req.UsedFree,
		OrderID:         req.OrderID,
		OriginalFileID:  req.OriginalFileID,
		ProcessedFileID: req.ProcessedFileID,
		Prompt:          req.Prompt,
	})
	if err != nil {
		return usagedomain.FinalizeResult{}, err
	}

	return usagedomain.FinalizeResult{
		Committed: true,
		FirstUse:  committed.FirstUse,
		Record:    &committed.Record,
	}, nil
}
