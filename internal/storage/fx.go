package storage

import (
	"context"
	"fmt"

	"github.com/soundcrate/soundcrate/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("storage",
	fx.Provide(New),
)

func New(cfg config.Config, log *zap.Logger) (BlobStore, error) {
	switch cfg.Storage.Backend {
	case "s3":
		store, err := NewS3Store(context.Background(), cfg.Storage)
		if err != nil {
			return nil, err
		}
		log.Named("storage").Info("using s3 blob store",
			zap.String("bucket", cfg.Storage.S3Bucket),
			zap.String("region", cfg.Storage.S3Region))
		return store, nil
	case "fs", "":
		store, err := NewFSStore(cfg.Storage.FSRoot)
		if err != nil {
			return nil, err
		}
		log.Named("storage").Info("using filesystem blob store",
			zap.String("root", cfg.Storage.FSRoot))
		return store, nil
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Storage.Backend)
	}
}
