package config

import "go.uber.org/fx"

var Module = fx.Module("config",
	fx.Provide(Load),
	fx.Provide(NewCatalogHolder),
	fx.Provide(
		func(cfg Config) CreditsConfig { return cfg.Credits },
		func(cfg Config) ReferralConfig { return cfg.Referral },
	),
)
