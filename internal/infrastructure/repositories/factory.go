package repositories

import (
	"fmt"

	"voicecast/internal/core/ports"
	"voicecast/internal/infrastructure/repositories/memory"
	redisrepo "voicecast/internal/infrastructure/repositories/redis"
	"voicecast/pkg/config"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// Factory builds the session registry for the configured backend.
type Factory struct {
	cfg    *config.Config
	logger *zap.SugaredLogger
	client *goredis.Client
}

func NewFactory(cfg *config.Config, logger *zap.SugaredLogger) (*Factory, error) {
	f := &Factory{cfg: cfg, logger: logger}

	if cfg.Redis.Enabled {
		client, err := redisrepo.NewClient(cfg.Redis.Address, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.PoolSize, logger)
		if err != nil {
			return nil, fmt.Errorf("failed to create redis client: %w", err)
		}
		f.client = client
	}

	return f, nil
}

func (f *Factory) CreateSessionRegistry() ports.SessionRegistry {
	if f.client != nil {
		return redisrepo.NewSessionRegistry(f.client, f.logger)
	}
	return memory.NewSessionRegistry()
}

func (f *Factory) Close() error {
	if f.client != nil {
		return f.client.Close()
	}
	return nil
}
