package content

import (
	"context"
	"fmt"

	"nifty-go/internal/config"
	"nifty-go/internal/registry"
)

// NewContentStoreFromConfig creates a ContentStore based on the content config type.
func NewContentStoreFromConfig(ctx context.Context, cfg config.ContentConfig, logger registry.Logger) (registry.ContentStore, error) {
	switch cfg.Type {
	case "memory":
		return NewMemoryStore(), nil
	case "filesystem":
		if cfg.Root == "" {
			return nil, fmt.Errorf("filesystem content store requires root to be set")
		}
		return NewFileSystemStore(cfg.Root)
	case "s3":
		return NewS3StoreFromConfig(ctx, cfg)
	case "pinata":
		return NewPinataStoreFromConfig(cfg, logger)
	default:
		return nil, fmt.Errorf("unknown content type: %s", cfg.Type)
	}
}
