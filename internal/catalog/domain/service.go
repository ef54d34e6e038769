package domain

import (
	"context"
	"errors"

	"github.com/bwmarrin/snowflake"
)

type Service interface {
	Sync(ctx context.Context, specs []PackageSpec) (SyncResult, error)
	ListActive(ctx context.Context) ([]Package, error)
	GetByID(ctx context.Context, id snowflake.ID) (Package, error)
}

var (
	ErrInvalidPackage   = errors.New("invalid_package")
	ErrDuplicatePackage = errors.New("duplicate_package")
	ErrInactive         = errors.New("package_inactive")
	ErrNotFound         = errors.New("not_found")
)
