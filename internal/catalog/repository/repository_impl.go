package repository

import (
	"context"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/shopspring/decimal"
	"github.com/smallbiznis/creditledger/internal/catalog/domain"
	"gorm.io/gorm"
)

type repo struct{}

func Provide() domain.Repository {
	return &repo{}
}

func (r *repo) Insert(ctx context.Context, db *gorm.DB, pkg *domain.Package) error {
	return db.WithContext(ctx).Exec(
		`INSERT INTO packages (id, name, credit_count, price, active, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		pkg.ID,
		pkg.Name,
		pkg.CreditCount,
		pkg.Price,
		pkg.Active,
		pkg.CreatedAt,
		pkg.UpdatedAt,
	).Error
}

func (r *repo) FindByID(ctx context.Context, db *gorm.DB, id snowflake.ID) (*domain.Package, error) {
	var pkg domain.Package
	err := db.WithContext(ctx).Raw(
		`SELECT id, name, credit_count, price, active, created_at, updated_at
		 FROM packages WHERE id = ?`,
		id,
	).Scan(&pkg).Error
	if err != nil {
		return nil, err
	}
	if pkg.ID == 0 {
		return nil, nil
	}
	return &pkg, nil
}

func (r *repo) ListAll(ctx context.Context, db *gorm.DB) ([]domain.Package, error) {
	var pkgs []domain.Package
	err := db.WithContext(ctx).
		Model(&domain.Package{}).
		Order("credit_count asc, id asc").
		Find(&pkgs).Error
	return pkgs, err
}

func (r *repo) ListActive(ctx context.Context, db *gorm.DB) ([]domain.Package, error) {
	var pkgs []domain.Package
	err := db.WithContext(ctx).
		Model(&domain.Package{}).
		Where("active = ?", true).
		Order("credit_count asc, id asc").
		Find(&pkgs).Error
	return pkgs, err
}

func (r *repo) UpdatePriceAndActivate(ctx context.Context, db *gorm.DB, id snowflake.ID, price decimal.Decimal, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE packages SET price = ?, active = ?, updated_at = ? WHERE id = ?`,
		price, true, now, id,
	).Error
}

func (r *repo) Deactivate(ctx context.Context, db *gorm.DB, id snowflake.ID, now time.Time) error {
	return db.WithContext(ctx).Exec(
		`UPDATE packages SET active = ?, updated_at = ? WHERE id = ?`,
		false, now, id,
	).Error
}
