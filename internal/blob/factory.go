package blob

import (
	"context"
	"fmt"
)

// Config selects and configures a blob.Store. Field tags follow the
// CAMPREG_BLOB_* environment layout parsed by internal/platform/config.
//
//	CAMPREG_BLOB_DRIVER: fs|s3|memory (default fs)
//	CAMPREG_BLOB_FS_ROOT: directory root when driver=fs (default ./blobdata)
//	CAMPREG_BLOB_S3_*: see infra/blob/s3.Config
type Config struct {
	Driver Driver   `env:"DRIVER" envDefault:"fs"`
	FSRoot string   `env:"FS_ROOT" envDefault:"./blobdata"`
	S3     S3Config `envPrefix:"S3_"`
}

// Open selects a blob.Store implementation from cfg.
func Open(ctx context.Context, cfg Config) (Store, error) {
	driver := cfg.Driver
	if driver == "" {
		driver = DriverFilesystem
	}
	switch driver {
	case DriverFilesystem:
		return NewFilesystem(cfg.FSRoot)
	case DriverS3:
		return NewS3(ctx, cfg.S3)
	case DriverMemory:
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("unknown blob driver %s", driver)
	}
}
