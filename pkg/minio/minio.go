package minio

import (
	"context"

	"cashback-controlplane/pkg/config"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Client = fx.Module("minio.client",
	fx.Provide(registerClient),
	fx.Invoke(ensureBucket),
)

func registerClient(c *config.Config) (*minio.Client, error) {
	client, err := minio.New(c.Minio.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(c.Minio.AccessKey, c.Minio.SecretKey, ""),
		Secure: c.Minio.Secure,
	})
	if err != nil {
		zap.L().Error("failed to create MinIO client", zap.String("endpoint", c.Minio.Endpoint), zap.Error(err))
		return nil, err
	}
	return client, nil
}

// ensureBucket creates the proof bucket on start when it does not exist yet.
func ensureBucket(lc fx.Lifecycle, c *config.Config, client *minio.Client) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			exists, err := client.BucketExists(ctx, c.Minio.BucketName)
			if err != nil {
				zap.L().Warn("failed to check if bucket exists", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
				return nil
			}
			if !exists {
				if err := client.MakeBucket(ctx, c.Minio.BucketName, minio.MakeBucketOptions{}); err != nil {
					zap.L().Warn("failed to create bucket", zap.String("bucket", c.Minio.BucketName), zap.Error(err))
					return nil
				}
			}
			zap.L().Info("MinIO client initialized", zap.String("endpoint", c.Minio.Endpoint), zap.String("bucket", c.Minio.BucketName))
			return nil
		},
	})
}
