package proof

import (
	"cashback-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"go.uber.org/fx"
)

var Module = fx.Module("proof.service",
	fx.Provide(
		func(client *minio.Client, cfg *config.Config) ObjectStore {
			return NewMinioStore(client, cfg.Minio.BucketName)
		},
		NewService,
	),
)

var Handler = fx.Module("proof.handler",
	fx.Invoke(RegisterRoutes),
)
