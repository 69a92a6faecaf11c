package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"edgestream/pkg/validation"

	"gopkg.in/yaml.v2"
)

type Config struct {
	Server struct {
		Address         string        `yaml:"address"`
		ReadTimeout     time.Duration `yaml:"read_timeout"`
		WriteTimeout    time.Duration `yaml:"write_timeout"`
		ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Monitoring struct {
		PrometheusEnabled bool `yaml:"prometheus_enabled"`
	} `yaml:"monitoring"`

	Tracing struct {
		Enabled     bool    `yaml:"enabled"`
		ServiceName string  `yaml:"service_name"`
		JaegerURL   string  `yaml:"jaeger_url"`
		Environment string  `yaml:"environment"`
		SampleRate  float64 `yaml:"sample_rate"`
	} `yaml:"tracing"`

	Logging struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"logging"`

	Redis struct {
		Enabled  bool   `yaml:"enabled"`
		Address  string `yaml:"address"`
		Password string `yaml:"password"`
		DB       int    `yaml:"db"`
		PoolSize int    `yaml:"pool_size"`
		// Pub/sub channel used to share session events between edge instances.
		EventChannel string `yaml:"event_channel"`
	} `yaml:"redis"`

	Auth struct {
		JWTSecret       string        `yaml:"jwt_secret"`
		SessionTokenTTL time.Duration `yaml:"session_token_ttl"`
		CDNSigningKey   string        `yaml:"cdn_signing_key"`
		// When set, segment requests must carry a valid session token.
		RequireSegmentToken bool `yaml:"require_segment_token"`
	} `yaml:"auth"`

	Sessions struct {
		TTL           time.Duration `yaml:"ttl"`
		SweepInterval time.Duration `yaml:"sweep_interval"`
		MaxSessions   int           `yaml:"max_sessions"`
	} `yaml:"sessions"`

	CDN struct {
		EdgeLocations []string `yaml:"edge_locations"`
		// random or consistent
		EdgeSelection    string        `yaml:"edge_selection"`
		VariantCacheTTL  time.Duration `yaml:"variant_cache_ttl"`
		SegmentCacheSecs int           `yaml:"segment_cache_seconds"`
	} `yaml:"cdn"`

	Analytics struct {
		MaxEventsPerRequest int           `yaml:"max_events_per_request"`
		MaxEventsPerSession int           `yaml:"max_events_per_session"`
		PublishBatchSize    int           `yaml:"publish_batch_size"`
		PublishInterval     time.Duration `yaml:"publish_interval"`
	} `yaml:"analytics"`

	Player struct {
		ServerURL          string        `yaml:"server_url"`
		UserAgent          string        `yaml:"user_agent"`
		ContentID          string        `yaml:"content_id"`
		EvaluationInterval time.Duration `yaml:"evaluation_interval"`
		BackendTimeout     time.Duration `yaml:"backend_timeout"`
	} `yaml:"player"`

	// Snapshots persist in-memory sessions and bandwidth estimates across restarts.
	Snapshots struct {
		Enabled  bool          `yaml:"enabled"`
		Interval time.Duration `yaml:"interval"`
		Retain   int           `yaml:"retain"`
		Storage  string        `yaml:"storage"` // file or s3
		Dir      string        `yaml:"dir"`

		S3 struct {
			Endpoint        string `yaml:"endpoint"`
			Region          string `yaml:"region"`
			Bucket          string `yaml:"bucket"`
			Prefix          string `yaml:"prefix"`
			AccessKeyID     string `yaml:"access_key_id"`
			SecretAccessKey string `yaml:"secret_access_key"`
			UsePathStyle    bool   `yaml:"use_path_style"`
		} `yaml:"s3"`
	} `yaml:"snapshots"`

	RateLimiting struct {
		Enabled bool `yaml:"enabled"`

		HTTP struct {
			RequestsPerSecond float64 `yaml:"requests_per_second"`
			Burst             int     `yaml:"burst"`
			MaxConcurrent     int     `yaml:"max_concurrent"` // global concurrent HTTP requests
		} `yaml:"http"`
	} `yaml:"rate_limiting"`
}

// Validate checks that configuration values are within acceptable ranges.
func (c *Config) Validate() error {
	// Server
	if c.Server.Address == "" {
		return fmt.Errorf("server.address must not be empty")
	}
	if c.Server.ReadTimeout <= 0 {
		return fmt.Errorf("server.read_timeout must be > 0")
	}
	if c.Server.WriteTimeout <= 0 {
		return fmt.Errorf("server.write_timeout must be > 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return fmt.Errorf("server.shutdown_timeout must be > 0")
	}

	// Tracing
	if c.Tracing.Enabled {
		if err := validation.ValidateURL(c.Tracing.JaegerURL); err != nil {
			return fmt.Errorf("tracing.jaeger_url: %w", err)
		}
		if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
			return fmt.Errorf("tracing.sample_rate must be within [0, 1]")
		}
	}

	// Logging
	if c.Logging.Level == "" {
		return fmt.Errorf("logging.level must not be empty")
	}

	// Redis
	if c.Redis.Enabled {
		if c.Redis.Address == "" {
			return fmt.Errorf("redis.address must not be empty when redis.enabled=true")
		}
		if c.Redis.PoolSize <= 0 {
			return fmt.Errorf("redis.pool_size must be > 0 when redis.enabled=true")
		}
		if c.Redis.EventChannel == "" {
			return fmt.Errorf("redis.event_channel must not be empty when redis.enabled=true")
		}
	}

	// Auth
	if c.Auth.JWTSecret == "" {
		return fmt.Errorf("auth.jwt_secret must not be empty")
	}
	if c.Auth.SessionTokenTTL <= 0 {
		return fmt.Errorf("auth.session_token_ttl must be > 0")
	}
	if c.Auth.CDNSigningKey == "" {
		return fmt.Errorf("auth.cdn_signing_key must not be empty")
	}

	// Sessions
	if c.Sessions.TTL <= 0 {
		return fmt.Errorf("sessions.ttl must be > 0")
	}
	if c.Sessions.SweepInterval <= 0 {
		return fmt.Errorf("sessions.sweep_interval must be > 0")
	}
	if c.Sessions.MaxSessions < 0 {
		return fmt.Errorf("sessions.max_sessions must be >= 0")
	}

	// CDN
	if len(c.CDN.EdgeLocations) == 0 {
		return fmt.Errorf("cdn.edge_locations must not be empty")
	}
	switch c.CDN.EdgeSelection {
	case "random", "consistent":
	default:
		return fmt.Errorf("cdn.edge_selection must be one of random, consistent (got %q)", c.CDN.EdgeSelection)
	}
	if c.CDN.VariantCacheTTL <= 0 {
		return fmt.Errorf("cdn.variant_cache_ttl must be > 0")
	}

	// Analytics
	if c.Analytics.MaxEventsPerRequest <= 0 {
		return fmt.Errorf("analytics.max_events_per_request must be > 0")
	}
	if c.Analytics.MaxEventsPerSession <= 0 {
		return fmt.Errorf("analytics.max_events_per_session must be > 0")
	}
	if c.Analytics.PublishBatchSize <= 0 {
		return fmt.Errorf("analytics.publish_batch_size must be > 0")
	}
	if c.Analytics.PublishInterval <= 0 {
		return fmt.Errorf("analytics.publish_interval must be > 0")
	}

	// Player
	if err := validation.ValidateURL(c.Player.ServerURL); err != nil {
		return fmt.Errorf("player.server_url: %w", err)
	}
	if c.Player.EvaluationInterval <= 0 {
		return fmt.Errorf("player.evaluation_interval must be > 0")
	}
	if c.Player.BackendTimeout <= 0 {
		return fmt.Errorf("player.backend_timeout must be > 0")
	}

	// Snapshots
	if c.Snapshots.Enabled {
		if c.Snapshots.Interval <= 0 {
			return fmt.Errorf("snapshots.interval must be > 0 when snapshots are enabled")
		}
		switch c.Snapshots.Storage {
		case "file":
			if c.Snapshots.Dir == "" {
				return fmt.Errorf("snapshots.dir must not be empty for file storage")
			}
		case "s3":
			if c.Snapshots.S3.Bucket == "" {
				return fmt.Errorf("snapshots.s3.bucket must not be empty for s3 storage")
			}
			if c.Snapshots.S3.Endpoint != "" {
				if err := validation.ValidateURL(c.Snapshots.S3.Endpoint); err != nil {
					return fmt.Errorf("snapshots.s3.endpoint: %w", err)
				}
			}
		default:
			return fmt.Errorf("snapshots.storage must be file or s3, got %q", c.Snapshots.Storage)
		}
	}

	// Rate limiting
	if c.RateLimiting.Enabled {
		if c.RateLimiting.HTTP.RequestsPerSecond <= 0 {
			return fmt.Errorf("rate_limiting.http.requests_per_second must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.Burst <= 0 {
			return fmt.Errorf("rate_limiting.http.burst must be > 0 when rate limiting is enabled")
		}
		if c.RateLimiting.HTTP.MaxConcurrent < 0 {
			return fmt.Errorf("rate_limiting.http.max_concurrent must be >= 0 when rate limiting is enabled")
		}
	}

	return nil
}

// Load reads configuration from YAML file, applies defaults and env overrides.
func Load(configPath string) (*Config, error) {
	// If file does not exist, fall back to defaults
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

	cfg.Server.Address = ":8080"
	cfg.Server.ReadTimeout = 15 * time.Second
	cfg.Server.WriteTimeout = 30 * time.Second
	cfg.Server.ShutdownTimeout = 20 * time.Second

	cfg.Monitoring.PrometheusEnabled = true

	cfg.Tracing.Enabled = false
	cfg.Tracing.ServiceName = "edgestream"
	cfg.Tracing.JaegerURL = "http://localhost:14268/api/traces"
	cfg.Tracing.Environment = "development"
	cfg.Tracing.SampleRate = 1.0

	cfg.Logging.Level = "info"
	cfg.Logging.Format = "json"

	cfg.Redis.Enabled = false
	cfg.Redis.Address = "localhost:6379"
	cfg.Redis.DB = 0
	cfg.Redis.PoolSize = 10
	cfg.Redis.EventChannel = "edgestream:events"

	cfg.Auth.JWTSecret = "change-me-in-production"
	cfg.Auth.SessionTokenTTL = 4 * time.Hour
	cfg.Auth.CDNSigningKey = "change-me-cdn-signing-key"

	cfg.Sessions.TTL = 30 * time.Minute
	cfg.Sessions.SweepInterval = time.Minute
	cfg.Sessions.MaxSessions = 100_000

	cfg.CDN.EdgeLocations = []string{
		"us-east-1", "us-west-2", "eu-west-1", "eu-central-1", "ap-southeast-1", "ap-northeast-1",
	}
	cfg.CDN.EdgeSelection = "random"
	cfg.CDN.VariantCacheTTL = 10 * time.Minute
	cfg.CDN.SegmentCacheSecs = 31536000

	cfg.Analytics.MaxEventsPerRequest = 500
	cfg.Analytics.MaxEventsPerSession = 1000
	cfg.Analytics.PublishBatchSize = 50
	cfg.Analytics.PublishInterval = 2 * time.Second

	cfg.Player.ServerURL = "http://localhost:8080"
	cfg.Player.UserAgent = "Mozilla/5.0 (X11; Linux x86_64) Chrome/120.0 Safari/537.36"
	cfg.Player.ContentID = "big-buck-bunny"
	cfg.Player.EvaluationInterval = 15 * time.Second
	cfg.Player.BackendTimeout = 3 * time.Second

	cfg.Snapshots.Enabled = false
	cfg.Snapshots.Interval = 5 * time.Minute
	cfg.Snapshots.Retain = 3
	cfg.Snapshots.Storage = "file"
	cfg.Snapshots.Dir = "data/snapshots"
	cfg.Snapshots.S3.Region = "us-east-1"
	cfg.Snapshots.S3.Prefix = "edgestream"

	// Rate limiting defaults (disabled by default)
	cfg.RateLimiting.Enabled = false
	cfg.RateLimiting.HTTP.RequestsPerSecond = 50
	cfg.RateLimiting.HTTP.Burst = 100
	cfg.RateLimiting.HTTP.MaxConcurrent = 0

	return cfg
}

func (c *Config) applyEnvOverrides() {
	if addr := os.Getenv("EDGESTREAM_SERVER_ADDRESS"); addr != "" {
		c.Server.Address = addr
	}
	if level := os.Getenv("EDGESTREAM_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
	}
	if secret := os.Getenv("EDGESTREAM_JWT_SECRET"); secret != "" {
		c.Auth.JWTSecret = secret
	}
	if key := os.Getenv("EDGESTREAM_CDN_SIGNING_KEY"); key != "" {
		c.Auth.CDNSigningKey = key
	}
	if addr := os.Getenv("EDGESTREAM_REDIS_ADDRESS"); addr != "" {
		c.Redis.Address = addr
		c.Redis.Enabled = true
	}
	if v := os.Getenv("EDGESTREAM_MAX_SESSIONS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Sessions.MaxSessions = n
		}
	}
	if id := os.Getenv("EDGESTREAM_S3_ACCESS_KEY_ID"); id != "" {
		c.Snapshots.S3.AccessKeyID = id
	}
	if secret := os.Getenv("EDGESTREAM_S3_SECRET_ACCESS_KEY"); secret != "" {
		c.Snapshots.S3.SecretAccessKey = secret
	}
	if url := os.Getenv("EDGESTREAM_PLAYER_SERVER_URL"); url != "" {
		c.Player.ServerURL = url
	}
}
