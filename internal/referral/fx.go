package referral

import (
	"github.com/smallbiznis/creditledger/internal/referral/repository"
	"github.com/smallbiznis/creditledger/internal/referral/service"
	"go.uber.org/fx"
)

var Module = fx.Module("referral.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
