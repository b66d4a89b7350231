package order

import "go.uber.org/fx"

var Module = fx.Module("order.service",
	fx.Provide(NewService),
	fx.Invoke(registerMetrics),
)

var Handler = fx.Module("order.handler",
	fx.Invoke(RegisterRoutes),
)
