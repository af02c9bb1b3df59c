package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/wavedeck/studio/internal/model"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	WaveSpeed WaveSpeedConfig
	Polling   PollingConfig
	R2        R2Config
	Models    []model.ModelSpec
}

type ServerConfig struct {
	Port     string
	Env      string
	LogLevel string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	GeneratePerHour int
	EncodePerMin    int
}

type WaveSpeedConfig struct {
	APIKey         string
	BaseURL        string
	RequestTimeout time.Duration
}

type PollingConfig struct {
	// MaxConcurrentJobs caps in-flight pipelines per fan-out; 0 means unlimited.
	MaxConcurrentJobs int
	// Retention is how long finished operations stay queryable.
	Retention time.Duration
}

type R2Config struct {
	AccountID       string
	AccessKeyID     string
	SecretAccessKey string
	BucketName      string
	PublicURL       string
	// Endpoint overrides the account endpoint, for S3-compatible stores.
	Endpoint string
	// KeyPrefix is prepended to every object key.
	KeyPrefix string
	// SignedURLTTL bounds presigned links when PublicURL is empty.
	SignedURLTTL time.Duration
}

// modelEntry is the YAML shape of a catalog override.
type modelEntry struct {
	ID          string  `mapstructure:"id"`
	Name        string  `mapstructure:"name"`
	Path        string  `mapstructure:"path"`
	Kind        string  `mapstructure:"kind"`
	BodyStyle   string  `mapstructure:"body_style"`
	PerSecond   float64 `mapstructure:"per_second"`
	PerArtifact float64 `mapstructure:"per_artifact"`
	MaxAttempts int     `mapstructure:"max_attempts"`
	IntervalMs  int     `mapstructure:"interval_ms"`
	OutputMIME  string  `mapstructure:"output_mime"`
	MinImages   int     `mapstructure:"min_images"`
}

func Load() (*Config, error) {
	// Local development convenience; missing .env is fine
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("WAVESPEED_API_KEY")
	readSecret("R2_ACCOUNT_ID")
	readSecret("R2_ACCESS_KEY_ID")
	readSecret("R2_SECRET_ACCESS_KEY")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	// Environment variables
	v.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("server.log_level", "LOG_LEVEL")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATE_LIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.encode_per_min", "RATE_LIMIT_ENCODE_PER_MIN")
	_ = v.BindEnv("wavespeed.api_key", "WAVESPEED_API_KEY")
	_ = v.BindEnv("wavespeed.base_url", "WAVESPEED_BASE_URL")
	_ = v.BindEnv("wavespeed.request_timeout", "WAVESPEED_REQUEST_TIMEOUT")
	_ = v.BindEnv("polling.max_concurrent_jobs", "POLLING_MAX_CONCURRENT_JOBS")
	_ = v.BindEnv("polling.retention", "POLLING_RETENTION")
	_ = v.BindEnv("r2.account_id", "R2_ACCOUNT_ID")
	_ = v.BindEnv("r2.access_key_id", "R2_ACCESS_KEY_ID")
	_ = v.BindEnv("r2.secret_access_key", "R2_SECRET_ACCESS_KEY")
	_ = v.BindEnv("r2.bucket_name", "R2_BUCKET_NAME")
	_ = v.BindEnv("r2.public_url", "R2_PUBLIC_URL")
	_ = v.BindEnv("r2.endpoint", "R2_ENDPOINT")
	_ = v.BindEnv("r2.key_prefix", "R2_KEY_PREFIX")
	_ = v.BindEnv("r2.signed_url_ttl", "R2_SIGNED_URL_TTL")

	// Defaults
	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.log_level", "info")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("ratelimit.generate_per_hour", 60)
	v.SetDefault("ratelimit.encode_per_min", 120)

	// WaveSpeed defaults
	v.SetDefault("wavespeed.base_url", "https://api.wavespeed.ai")
	v.SetDefault("wavespeed.request_timeout", 60*time.Second)

	// Polling defaults
	v.SetDefault("polling.max_concurrent_jobs", 0)
	v.SetDefault("polling.retention", time.Hour)

	// R2 defaults
	v.SetDefault("r2.key_prefix", "artifacts")
	v.SetDefault("r2.signed_url_ttl", 24*time.Hour)

	// Try to read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Port:     v.GetString("server.port"),
			Env:      v.GetString("server.env"),
			LogLevel: v.GetString("server.log_level"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			EncodePerMin:    v.GetInt("ratelimit.encode_per_min"),
		},
		WaveSpeed: WaveSpeedConfig{
			APIKey:         v.GetString("wavespeed.api_key"),
			BaseURL:        strings.TrimRight(v.GetString("wavespeed.base_url"), "/"),
			RequestTimeout: v.GetDuration("wavespeed.request_timeout"),
		},
		Polling: PollingConfig{
			MaxConcurrentJobs: v.GetInt("polling.max_concurrent_jobs"),
			Retention:         v.GetDuration("polling.retention"),
		},
		R2: R2Config{
			AccountID:       v.GetString("r2.account_id"),
			AccessKeyID:     v.GetString("r2.access_key_id"),
			SecretAccessKey: v.GetString("r2.secret_access_key"),
			BucketName:      v.GetString("r2.bucket_name"),
			PublicURL:       v.GetString("r2.public_url"),
			Endpoint:        v.GetString("r2.endpoint"),
			KeyPrefix:       strings.Trim(v.GetString("r2.key_prefix"), "/"),
			SignedURLTTL:    v.GetDuration("r2.signed_url_ttl"),
		},
	}

	var entries []modelEntry
	if err := v.UnmarshalKey("models", &entries); err != nil {
		return nil, fmt.Errorf("failed to decode models: %w", err)
	}
	cfg.Models = mergeModels(model.DefaultModels(), entries)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var result *multierror.Error

	if c.Server.Port == "" {
		result = multierror.Append(result, errors.New("server.port is required"))
	}
	if c.WaveSpeed.BaseURL == "" {
		result = multierror.Append(result, errors.New("wavespeed.base_url is required"))
	}
	if c.WaveSpeed.RequestTimeout <= 0 {
		result = multierror.Append(result, errors.New("wavespeed.request_timeout must be positive"))
	}
	if c.Polling.MaxConcurrentJobs < 0 {
		result = multierror.Append(result, errors.New("polling.max_concurrent_jobs must not be negative"))
	}
	for _, m := range c.Models {
		if m.Path == "" {
			result = multierror.Append(result, fmt.Errorf("models[%s]: path is required", m.ID))
		}
		if m.Budget.MaxAttempts <= 0 {
			result = multierror.Append(result, fmt.Errorf("models[%s]: max_attempts must be positive", m.ID))
		}
		if m.Budget.Interval < 0 {
			result = multierror.Append(result, fmt.Errorf("models[%s]: interval must not be negative", m.ID))
		}
		if m.Kind != model.MediaKindImage && m.Kind != model.MediaKindVideo {
			result = multierror.Append(result, fmt.Errorf("models[%s]: unknown kind %q", m.ID, m.Kind))
		}
		if m.BodyStyle != model.BodyStyleImageEdit && m.BodyStyle != model.BodyStyleImageToVideo {
			result = multierror.Append(result, fmt.Errorf("models[%s]: unknown body_style %q", m.ID, m.BodyStyle))
		}
	}

	return result.ErrorOrNil()
}

// mergeModels overlays configured entries on the built-in catalog.
// Entries with an id matching a built-in only override the fields they set.
func mergeModels(defaults []model.ModelSpec, entries []modelEntry) []model.ModelSpec {
	byID := make(map[string]int, len(defaults))
	out := append([]model.ModelSpec(nil), defaults...)
	for i, m := range out {
		byID[m.ID] = i
	}

	for _, e := range entries {
		id := strings.TrimSpace(e.ID)
		if id == "" {
			continue
		}
		spec := model.ModelSpec{ID: id, OutputMIME: "image/png"}
		idx, exists := byID[id]
		if exists {
			spec = out[idx]
		}
		if e.Name != "" {
			spec.Name = e.Name
		}
		if e.Path != "" {
			spec.Path = strings.Trim(e.Path, "/")
		}
		if e.Kind != "" {
			spec.Kind = model.MediaKind(e.Kind)
		}
		if e.BodyStyle != "" {
			spec.BodyStyle = model.BodyStyle(e.BodyStyle)
		}
		if e.PerSecond > 0 || e.PerArtifact > 0 {
			spec.Pricing = model.Pricing{PerSecond: e.PerSecond, PerArtifact: e.PerArtifact}
		}
		if e.MaxAttempts > 0 {
			spec.Budget.MaxAttempts = e.MaxAttempts
		}
		if e.IntervalMs > 0 {
			spec.Budget.Interval = time.Duration(e.IntervalMs) * time.Millisecond
		}
		if e.OutputMIME != "" {
			spec.OutputMIME = e.OutputMIME
		}
		if e.MinImages > 0 {
			spec.MinImages = e.MinImages
		}

		if exists {
			out[idx] = spec
		} else {
			byID[id] = len(out)
			out = append(out, spec)
		}
	}
	return out
}
