package service

import (
	"context"
	"fmt"
	"strings"

	"github.com/bwmarrin/snowflake"
	"github.com/smallbiznis/creditledger/internal/catalog/domain"
	"github.com/smallbiznis/creditledger/internal/clock"
	"github.com/smallbiznis/creditledger/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/creditledger/internal/observability/metrics"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

type Params struct {
	fx.In

	DB         *gorm.DB
	Log        *zap.Logger
	GenID      *snowflake.Node
	Repo       domain.Repository
	Clock      clock.Clock
	ObsMetrics *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	db         *gorm.DB
	log        *zap.Logger
	genID      *snowflake.Node
	repo       domain.Repository
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
		log:        p.Log.Named("catalog.service"),
		genID:      p.GenID,
		repo:       p.Repo,
		clock:      clk,
		obsMetrics: p.ObsMetrics,
	}
}

type packageKey struct {
	name    string
	credits int
}

// Sync makes the stored catalog match specs in one transaction: matching
// packages get the new price and are reactivated, missing ones are created,
// and everything else is deactivated.
func (s *Service) Sync(ctx context.Context, specs []domain.PackageSpec) (domain.SyncResult, error) {
	desired := make(map[packageKey]domain.PackageSpec, len(specs))
	order := make([]packageKey, 0, len(specs))
	for _, spec := range specs {
		spec.Name = strings.TrimSpace(spec.Name)
		if spec.Name == "" || spec.CreditCount <= 0 || !spec.Price.IsPositive() {
			return domain.SyncResult{}, domain.ErrInvalidPackage
		}
		key := packageKey{name: spec.Name, credits: spec.CreditCount}
		if _, dup := desired[key]; dup {
			return domain.SyncResult{}, domain.ErrDuplicatePackage
		}
		desired[key] = spec
		order = append(order, key)
	}

	var result domain.SyncResult
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		existing, err := s.repo.ListAll(ctx, tx)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		seen := make(map[packageKey]bool, len(existing))
		for _, pkg := range existing {
			key := packageKey{name: pkg.Name, credits: pkg.CreditCount}
			spec, wanted := desired[key]
			seen[key] = true
			switch {
			case wanted:
				if pkg.Active && pkg.Price.Equal(spec.Price) {
					continue
				}
				if err := s.repo.UpdatePriceAndActivate(ctx, tx, pkg.ID, spec.Price, now); err != nil {
					return err
				}
				result.Updated++
			case pkg.Active:
				if err := s.repo.Deactivate(ctx, tx, pkg.ID, now); err != nil {
					return err
				}
				result.Deactivated++
			}
		}

		for _, key := range order {
			if seen[key] {
				continue
			}
			spec := desired[key]
			pkg := domain.Package{
				ID:          s.genID.Generate(),
				Name:        spec.Name,
				CreditCount: spec.CreditCount,
				Price:       spec.Price,
				Active:      true,
				CreatedAt:   now,
				UpdatedAt:   now,
			}
			if err := s.repo.Insert(ctx, tx, &pkg); err != nil {
				return fmt.Errorf("insert package %q: %w", spec.Name, err)
			}
			result.Created++
		}
		return nil
	})
	if err != nil {
		s.obsMetrics.RecordCatalogSync(ctx, "error")
		return domain.SyncResult{}, err
	}

	s.obsMetrics.RecordCatalogSync(ctx, "ok")
	logger.WithContext(ctx, s.log).Info("catalog synced",
		zap.Int("created", result.Created),
		zap.Int("updated", result.Updated),
		zap.Int("deactivated", result.Deactivated),
	)
	return result, nil
}

func (s *Service) ListActive(ctx context.Context) ([]domain.Package, error) {
	return s.repo.ListActive(ctx, s.db)
}

func (s *Service) GetByID(ctx context.Context, id snowflake.ID) (domain.Package, error) {
	pkg, err := s.repo.FindByID(ctx, s.db, id)
	if err != nil {
		return domain.Package{}, err
	}
	if pkg == nil {
		return domain.Package{}, domain.ErrNotFound
	}
	return *pkg, nil
}
