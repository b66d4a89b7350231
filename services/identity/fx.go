package identity

import (
	"cashback-controlplane/pkg/middleware"
	"cashback-controlplane/pkg/repository"

	"go.uber.org/fx"
)

var Module = fx.Module("identity.service",
	fx.Provide(
		repository.ProvideStore[User],
		NewService,
		func(s *Service) middleware.PrincipalResolver { return s },
	),
)
