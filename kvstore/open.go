package kvstore

import (
	"context"
	"fmt"

	"github.com/kendall-kelly/patriotgo-chat-api/config"
	"go.uber.org/zap"
)

// Open builds the Store selected by cfg.StoreBackend. The caller owns the
// returned store and must Close it on shutdown.
func Open(ctx context.Context, cfg *config.Config, logger *zap.Logger) (Store, error) {
	switch cfg.StoreBackend {
	case config.StoreBackendGorm:
		db, err := config.OpenDatabase(cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		logger.Info("opened SQL store", zap.String("dialect", db.Dialector.Name()))
		return NewGormStore(db), nil

	case config.StoreBackendDynamoDB:
		store, err := NewDynamoStoreFromConfig(ctx, DynamoOptions{
			Region:          cfg.AWSRegion,
			Table:           cfg.DynamoDBTable,
			Endpoint:        cfg.DynamoDBEndpoint,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
		logger.Info("opened DynamoDB store",
			zap.String("table", cfg.DynamoDBTable),
			zap.String("region", cfg.AWSRegion),
			zap.Bool("local_endpoint", cfg.DynamoDBEndpoint != ""),
		)
		return store, nil

	case config.StoreBackendRedis:
		store, err := NewRedisStoreFromURL(ctx, cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("opened Redis store")
		return store, nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
