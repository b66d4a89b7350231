package audit

import (
	"cashback-controlplane/pkg/repository"

	"go.uber.org/fx"
)

var Module = fx.Module("audit.service",
	fx.Provide(
		repository.ProvideStore[Entry],
		NewService,
		func(s *Service) Recorder { return s },
	),
)

var Handler = fx.Module("audit.handler",
	fx.Invoke(RegisterRoutes),
)
