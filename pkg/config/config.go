package config

import (
	"fmt"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/NeuralTrust/TrustShield/pkg/scorer"
)

// Config is the immutable engine configuration. It is resolved once at
// construction; the engine never mutates it afterwards.
type Config struct {
	// Sliding window used for per-address rate limiting.
	WindowDuration time.Duration `mapstructure:"window_duration"`
	// Maximum requests admitted per address within the window.
	MaxRequests int `mapstructure:"max_requests"`
	// How long an address stays blocked once a block is placed.
	BlockDuration time.Duration `mapstructure:"block_duration"`
	// Failed logins from one address before it is blocked.
	FailedLoginThreshold int `mapstructure:"failed_login_threshold"`
	// Idle time after which a failed-login counter is evicted.
	FailedLoginTTL time.Duration `mapstructure:"failed_login_ttl"`
	// Score at and above which a signal bundle is reported as an anomaly.
	AnomalyThreshold int `mapstructure:"anomaly_threshold"`
	// Score at and above which the reporting address is blocked outright.
	AutoBlockScore int `mapstructure:"auto_block_score"`
	// Bounded per-address suspicious activity ring size.
	ActivityLogCapacity int `mapstructure:"activity_log_capacity"`
	// Interval between janitor sweeps.
	JanitorInterval time.Duration `mapstructure:"janitor_interval"`

	Weights scorer.Weights `mapstructure:"weights"`

	EnableTenantValidation bool `mapstructure:"enable_tenant_validation"`
	EnableRateLimiting     bool `mapstructure:"enable_rate_limiting"`
	EnableAuditLog         bool `mapstructure:"enable_audit_log"`

	Redis RedisConfig `mapstructure:"redis"`
}

// RedisConfig configures the optional shared-state backend. When disabled the
// engine keeps all state in process memory.
type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

func Default() Config {
	return Config{
		WindowDuration:         time.Minute,
		MaxRequests:            100,
		BlockDuration:          15 * time.Minute,
		FailedLoginThreshold:   5,
		FailedLoginTTL:         time.Hour,
		AnomalyThreshold:       10,
		AutoBlockScore:         20,
		ActivityLogCapacity:    100,
		JanitorInterval:        5 * time.Minute,
		Weights:                scorer.DefaultWeights(),
		EnableTenantValidation: true,
		EnableRateLimiting:     true,
		EnableAuditLog:         true,
	}
}

// Load reads "shield.yaml" from configPath, layered over defaults. A .env
// file next to it is honored when present; environment variables prefixed
// with SHIELD_ override file values.
func Load(configPath string) (Config, error) {
	_ = godotenv.Load(fmt.Sprintf("%s/.env", configPath))

	v := viper.New()
	v.SetConfigName("shield")
	v.SetConfigType("yaml")
	v.AddConfigPath(configPath)
	v.SetEnvPrefix("SHIELD")
	v.AutomaticEnv()

	cfg := Default()
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return Config{}, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// FromMap decodes a settings map into a Config layered over defaults, the
// same keys Load reads from file. For host services that own their own config
// loading.
func FromMap(settings map[string]interface{}) (Config, error) {
	cfg := Default()
	decoder, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook: mapstructure.StringToTimeDurationHookFunc(),
		Result:     &cfg,
	})
	if err != nil {
		return Config{}, fmt.Errorf("failed to build config decoder: %w", err)
	}
	if err := decoder.Decode(settings); err != nil {
		return Config{}, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func (c Config) Validate() error {
	if c.WindowDuration <= 0 {
		return fmt.Errorf("window_duration must be positive")
	}
	if c.MaxRequests <= 0 {
		return fmt.Errorf("max_requests must be positive")
	}
	if c.BlockDuration <= 0 {
		return fmt.Errorf("block_duration must be positive")
	}
	if c.FailedLoginThreshold <= 0 {
		return fmt.Errorf("failed_login_threshold must be positive")
	}
	if c.FailedLoginTTL <= 0 {
		return fmt.Errorf("failed_login_ttl must be positive")
	}
	if c.AnomalyThreshold <= 0 {
		return fmt.Errorf("anomaly_threshold must be positive")
	}
	if c.AutoBlockScore < c.AnomalyThreshold {
		return fmt.Errorf("auto_block_score must not be below anomaly_threshold")
	}
	if c.ActivityLogCapacity <= 0 {
		return fmt.Errorf("activity_log_capacity must be positive")
	}
	if c.JanitorInterval <= 0 {
		return fmt.Errorf("janitor_interval must be positive")
	}
	return nil
}
