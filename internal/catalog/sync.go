package catalog

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// SpecsFromConfig converts catalog.yml entries into sync specs.
func SpecsFromConfig(cfg config.CatalogConfig) ([]domain.PackageSpec, error) {
	specs := make([]domain.PackageSpec, 0, len(cfg.Packages))
	for i, pkg := range cfg.Packages {
		price, err := decimal.NewFromString(strings.TrimSpace(pkg.Price))
		if err != nil {
			return nil, fmt.Errorf("package %d price: %w", i, err)
		}
		specs = append(specs, domain.PackageSpec{
			Name:        pkg.Name,
			CreditCount: pkg.Credits,
			Price:       price,
		})
	}
	return specs, nil
}

// registerConfigSync applies the catalog file on startup and again after
// every hot reload.
func registerConfigSync(lc fx.Lifecycle, holder *config.CatalogHolder, svc domain.Service, log *zap.Logger) {
	log = log.Named("catalog.sync")

	apply := func(ctx context.Context, cfg config.CatalogConfig) error {
		specs, err := SpecsFromConfig(cfg)
		if err != nil {
			return err
		}
		_, err = svc.Sync(ctx, specs)
		return err
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			if err := apply(ctx, holder.Get()); err != nil {
				return fmt.Errorf("initial catalog sync: %w", err)
			}
			holder.OnChange(func(cfg config.CatalogConfig) {
				ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
				defer cancel()
				if err := apply(ctx, cfg); err != nil {
					log.Error("catalog reload sync failed", zap.Error(err))
				}
			})
			return nil
		},
	})
}
