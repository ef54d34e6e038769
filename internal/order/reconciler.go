package order

import (
	"context"
	"time"

	"github.com/smallbiznis/creditledger/internal/config"
	"github.com/smallbiznis/creditledger/internal/order/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Reconciler periodically credits purchase rewards left behind by
// settlements whose reward step failed.
type Reconciler struct {
	svc      domain.Service
	log      *zap.Logger
	interval time.Duration
	batch    int
}

func NewReconciler(svc domain.Service, log *zap.Logger, cfg config.WorkerConfig) *Reconciler {
	return &Reconciler{
		svc:      svc,
		log:      log.Named("order.reconciler"),
		interval: cfg.RewardReconcileInterval,
		batch:    cfg.RewardReconcileBatch,
	}
}

func (r *Reconciler) RunOnce(ctx context.Context) {
	ctx, cancel := context.WithTimeout(ctx, r.interval)
	defer cancel()

	if _, err := r.svc.ReconcileRewards(ctx, r.batch); err != nil {
		r.log.Warn("reward reconcile failed", zap.Error(err))
	}
}

func (r *Reconciler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		r.RunOnce(ctx)

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

func registerReconciler(lc fx.Lifecycle, cfg config.Config, svc domain.Service, log *zap.Logger) {
	if cfg.Worker.RewardReconcileInterval <= 0 {
		return
	}
	reconciler := NewReconciler(svc, log, cfg.Worker)

	var (
		cancel context.CancelFunc
		done   chan struct{}
	)
	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			var ctx context.Context
			ctx, cancel = context.WithCancel(context.Background())
			done = make(chan struct{})
			go func() {
				defer close(done)
				reconciler.RunForever(ctx)
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			if cancel == nil {
				return nil
			}
			cancel()
			select {
			case <-done:
				return nil
			case <-stopCtx.Done():
				return stopCtx.Err()
			}
		},
	})
}
