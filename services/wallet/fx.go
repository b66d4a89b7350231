package wallet

import "go.uber.org/fx"

var Module = fx.Module("wallet.service",
	fx.Provide(NewService),
	fx.Invoke(registerMetrics),
)

var Handler = fx.Module("wallet.handler",
	fx.Invoke(RegisterRoutes),
)
