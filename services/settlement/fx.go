package settlement

import "go.uber.org/fx"

var Module = fx.Module("settlement.service",
	fx.Provide(NewService),
)

var Handler = fx.Module("settlement.handler",
	fx.Invoke(RegisterRoutes),
)
