package catalog

import (
	"github.com/smallbiznis/creditledger/internal/catalog/repository"
	"github.com/smallbiznis/creditledger/internal/catalog/service"
	"go.uber.org/fx"
)

var Module = fx.Module("catalog.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
	fx.Invoke(registerConfigSync),
)
