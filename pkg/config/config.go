package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Fanout struct {
		Address         string        `yaml:"address"`
		PingInterval    time.Duration `yaml:"ping_interval"`
		PongTimeout     time.Duration `yaml:"pong_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"fanout"`

	Client struct {
		ServerURL        string        `yaml:"server_url"`
		ReconnectBackoff time.Duration `yaml:"reconnect_backoff"`
		MaxReconnects    int           `yaml:"max_reconnects"`
	} `yaml:"client"`

	Audio struct {
		FrameQueueDepth int    `yaml:"frame_queue_depth"`
		NoiseLevel      string `yaml:"noise_level"`
	} `yaml:"audio"`

	Auth struct {
		JWTSecret      string        `yaml:"jwt_secret"`
		AccessTokenTTL time.Duration `yaml:"access_token_ttl"`
		DevTokenMint   bool          `yaml:"dev_token_mint"`
	} `yaml:"auth"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
	} `yaml:"redis"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		JaegerURL   string  `yaml:"jaeger_url"`
		ServiceName string  `yaml:"service_name"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	RateLimiting struct {
		Enabled         bool    `yaml:"enabled"`
		FramesPerSecond float64 `yaml:"frames_per_second"`
		Burst           int     `yaml:"burst"`
		HTTPPerSecond   float64 `yaml:"http_per_second"`
		HTTPBurst       int     `yaml:"http_burst"`
	} `yaml:"rate_limiting"`

	Logging struct {
		Level string `yaml:"level"`
	} `yaml:"logging"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	if c.Fanout.Address == "" {
		return fmt.Errorf("fanout.address must not be empty")
	}
	if c.Fanout.PingInterval <= 0 {
		return fmt.Errorf("fanout.ping_interval must be > 0")
	}
	if c.Fanout.PongTimeout <= 0 {
		return fmt.Errorf("fanout.pong_timeout must be > 0")
	}
	if c.Fanout.WriteTimeout <= 0 {
		return fmt.Errorf("fanout.write_timeout must be > 0")
	}
	if c.Fanout.ShutdownTimeout <= 0 {
		return fmt.Errorf("fanout.shutdown_timeout must be > 0")
	}

	if c.Client.ServerURL == "" {
		return fmt.Errorf("client.server_url must not be empty")
	}
	if c.Client.ReconnectBackoff <= 0 {
		return fmt.Errorf("client.reconnect_backoff must be > 0")
	}
	if c.Client.MaxReconnects < 0 {
		return fmt.Errorf("client.max_reconnects must be >= 0")
	}

	if c.Audio.FrameQueueDepth <= 0 {
		return fmt.Errorf("audio.frame_queue_depth must be > 0")
	}
	switch c.Audio.NoiseLevel {
	case "off", "low", "medium", "high":
	default:
		return fmt.Errorf("audio.noise_level must be one of off|low|medium|high")
	}

	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.AccessTokenTTL <= 0 {
		return fmt.Errorf("auth.access_token_ttl must be > 0")
	}

	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
	}

	if c.Tracing.Enabled {
		if c.Tracing.JaegerURL == "" {
			return fmt.Errorf("tracing.jaeger_url must not be empty when tracing.enabled=true")
		}
		if c.Tracing.SampleRate <= 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be in (0, 1]")
		}
	}

	if c.RateLimiting.Enabled {
		if c.RateLimiting.FramesPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.frames_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.Burst <= 0 {
			return fmt.Errorf("rate_limiting.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTPPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTPBurst <= 0 {
			return fmt.Errorf("rate_limiting.http_burst must be > 0 when rate limiting is enabled")
		}
	}

	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	return nil
}

// Load reads configuration from a YAML file, applies defaults and env
// overrides. A missing file falls back to defaults.
func Load(configPath string) (*Config, error) {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfg := DefaultConfig()
		cfg.applyEnvOverrides()
		return cfg, nil
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config yaml: %w", err)
	}

	cfg.applyEnvOverrides()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// DefaultConfig returns configuration with sane defaults.
func DefaultConfig() *Config {
	cfg := &Config{}

	cfg.Fanout.Address = ":8090"
	cfg.Fanout.PingInterval = 30 * time.Second
	cfg.Fanout.PongTimeout = 60 * time.Second
	cfg.Fanout.WriteTimeout = 10 * time.Second
	cfg.Fanout.ShutdownTimeout = 30 * time.Second

	cfg.Client.ServerURL = "ws://localhost:8090/ws"
	cfg.Client.ReconnectBackoff = 500 * time.Millisecond
	cfg.Client.MaxReconnects = 5

	cfg.Audio.FrameQueueDepth = 8
	cfg.Audio.NoiseLevel = "medium"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.AccessTokenTTL = 15 * time.Minute
	cfg.Auth.DevTokenMint = false

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.ServiceName = "voicecast-fanout"
	cfg.Tracing.SampleRate = 1.0

	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.FramesPerSecond = 16
	cfg.RateLimiting.Burst = 32
	cfg.RateLimiting.HTTPPerSecond = 50
	cfg.RateLimiting.HTTPBurst = 100

	cfg.Logging.Level = "info"

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("VOICECAST_FANOUT_ADDRESS"); addr != "" {
		c.Fanout.Address = addr
	}
	if url := os.Getenv("VOICECAST_SERVER_URL"); url != "" {
		c.Client.ServerURL = url
	}
	if level := os.Getenv("VOICECAST_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("VOICECAST_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if addr := os.Getenv("VOICECAST_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
}
