package storage

import (
	"CloudVault/config"
	"fmt"
)

// New builds the backend named by cfg.Backend. The choice is made once at
// startup and the returned backend is shared by every caller.
func New(cfg config.StorageConfig) (Backend, error) {
	switch cfg.Backend {
	case config.BackendS3:
		client, err := NewMinioClient(cfg)
		if err != nil {
			return nil, err
		}
		return NewMinioBackend(client, cfg.BucketGroup), nil
	case config.BackendLocal, "":
		return NewLocalBackend(cfg.LocalRoot, cfg.BucketGroup, cfg.LocalPublicURL, cfg.LocalSecret)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}
