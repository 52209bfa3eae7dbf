// Package config loads and validates dfsingest's runtime configuration.
//
// Configuration sources, in order of precedence:
//  1. Environment variables (DFS_* prefix)
//  2. Configuration file (YAML), if present
//  3. Default values
//
// All durations and byte sizes may be given as plain numbers (bytes/seconds)
// or as Go duration/size strings ("30s", "5MiB") in the config file; env
// vars are parsed the same way through viper's native type coercion.
package config

import (
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/dfsingest/dfsingest/internal/bytesize"
)

// Config is the top-level configuration for the ingestion service.
type Config struct {
	Logging     LoggingConfig     `mapstructure:"logging" validate:"required"`
	Server      ServerConfig      `mapstructure:"server" validate:"required"`
	Storage     StorageConfig     `mapstructure:"storage" validate:"required"`
	Queue       QueueConfig       `mapstructure:"queue" validate:"required"`
	Database    DatabaseConfig    `mapstructure:"database" validate:"required"`
	Concurrency ConcurrencyConfig `mapstructure:"concurrency" validate:"required"`
	Autoscale   AutoscaleConfig   `mapstructure:"autoscale" validate:"required"`
	Auth        AuthConfig        `mapstructure:"auth" validate:"required"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance" validate:"required"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	Level  string `mapstructure:"level" validate:"required,oneof=DEBUG INFO WARN ERROR debug info warn error"`
	Format string `mapstructure:"format" validate:"required,oneof=text json"`
	Output string `mapstructure:"output" validate:"required"`
}

// ServerConfig controls the HTTP listener.
type ServerConfig struct {
	Port            int           `mapstructure:"port" validate:"required,gt=0,lte=65535"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"required,gt=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"required,gt=0"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout" validate:"required,gt=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"required,gt=0"`
	AppVersion      string        `mapstructure:"app_version" validate:"required"`
}

// StorageConfig selects and configures the object store adapter.
type StorageConfig struct {
	Backend        string `mapstructure:"backend" validate:"required,oneof=local s3 r2"`
	Root           string `mapstructure:"root"`
	Bucket         string `mapstructure:"bucket"`
	Region         string `mapstructure:"region"`
	Endpoint       string `mapstructure:"endpoint"`
	AccountID      string `mapstructure:"account_id"` // R2 account id, used to derive Endpoint if unset
	AccessKeyID    string `mapstructure:"access_key_id"`
	SecretKey      string `mapstructure:"secret_access_key"`
	ForcePathStyle bool   `mapstructure:"force_path_style"`
}

// QueueConfig selects and configures the durable task queue.
type QueueConfig struct {
	Backend           string        `mapstructure:"backend" validate:"required,oneof=memory redis sqs"`
	RedisURL          string        `mapstructure:"redis_url"`
	RedisQueueName    string        `mapstructure:"redis_queue_name"`
	SQSQueueURL       string        `mapstructure:"sqs_queue_url"`
	ConsumerCount     int           `mapstructure:"consumer_count" validate:"gte=0"`
	PollTimeout       time.Duration `mapstructure:"poll_timeout" validate:"gte=0"`
	TaskTimeout       time.Duration `mapstructure:"task_timeout" validate:"gt=0"`
	VisibilityTimeout time.Duration `mapstructure:"visibility_timeout" validate:"gte=0"`
}

// DatabaseConfig configures the metadata store's relational backend.
type DatabaseConfig struct {
	DSN             string        `mapstructure:"dsn" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" validate:"gte=0"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" validate:"gte=0"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" validate:"gte=0"`
}

// ConcurrencyConfig controls chunk size, retries, worker pool sizing, and admission limits.
type ConcurrencyConfig struct {
	ChunkSizeBytes                 int64 `mapstructure:"chunk_size_bytes" validate:"required,gt=0"`
	MaxRetries                     int   `mapstructure:"max_retries" validate:"gte=0"`
	WorkerCount                    int   `mapstructure:"worker_count" validate:"required,gt=0"`
	TaskQueueMaxSize               int   `mapstructure:"task_queue_maxsize" validate:"gte=0"`
	MaxGlobalInflightChunks        int   `mapstructure:"max_global_inflight_chunks" validate:"gte=0"`
	MaxInflightChunksPerUpload     int   `mapstructure:"max_inflight_chunks_per_upload" validate:"gte=0"`
	MaxFairInflightChunksPerUpload int   `mapstructure:"max_fair_inflight_chunks_per_upload" validate:"gte=0"`
}

// AutoscaleConfig controls the worker pool autoscaler.
type AutoscaleConfig struct {
	Enabled                    bool          `mapstructure:"enabled"`
	MinWorkers                 int           `mapstructure:"min_workers" validate:"gte=1"`
	MaxWorkers                 int           `mapstructure:"max_workers" validate:"gtefield=MinWorkers"`
	Cooldown                   time.Duration `mapstructure:"cooldown" validate:"required,gt=0"`
	ScaleUpQueueThreshold      int           `mapstructure:"scale_up_queue_threshold" validate:"gte=0"`
	ScaleUpUtilizationThresh   float64       `mapstructure:"scale_up_utilization_threshold" validate:"gte=0,lte=1"`
	ScaleDownUtilizationThresh float64       `mapstructure:"scale_down_utilization_threshold" validate:"gte=0,lte=1"`
}

// AuthConfig controls principal resolution.
type AuthConfig struct {
	Mode               string `mapstructure:"mode" validate:"required,oneof=api_key jwt hybrid"`
	APIKeyMappings     string `mapstructure:"api_key_mappings"` // "k1:u1,k2:u2"
	AdminUserIDs       string `mapstructure:"admin_user_ids"`   // comma-separated
	RateLimitPerMinute int    `mapstructure:"api_rate_limit_per_minute" validate:"gte=0"`
	JWTSecret          string `mapstructure:"jwt_secret"`
	JWTAlgorithm       string `mapstructure:"jwt_algorithm"`
	JWTAudience        string `mapstructure:"jwt_audience"`
	JWTIssuer          string `mapstructure:"jwt_issuer"`
}

// MaintenanceConfig controls the stale-upload/idempotency/orphan sweeper.
type MaintenanceConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	CleanupInterval time.Duration `mapstructure:"cleanup_interval" validate:"gt=0"`
	StaleUploadTTL  time.Duration `mapstructure:"stale_upload_ttl" validate:"gt=0"`
	IdempotencyTTL  time.Duration `mapstructure:"idempotency_ttl" validate:"gt=0"`
}

// Load reads configuration from the given file (if non-empty and present),
// layers environment variables on top, applies defaults for anything left
// unset, and validates the result.
func Load(configPath string) (*Config, error) {
	v := viper.New()
	setupViper(v, configPath)

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config file: %w", err)
			}
		}
	}

	cfg := &Config{}
	ApplyDefaults(cfg)

	if err := v.Unmarshal(cfg, viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		stringToByteSizeHookFunc(),
	))); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

func setupViper(v *viper.Viper, configPath string) {
	v.SetEnvPrefix("DFS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
	}
}

// stringToByteSizeHookFunc lets byte-size fields (chunk_size_bytes and any
// future int64 size field) be given as "5MiB"/"500Mi"/"1GB" in the config
// file or as a plain number of bytes, per the package doc's size-string
// promise.
func stringToByteSizeHookFunc() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if from.Kind() != reflect.String || to.Kind() != reflect.Int64 {
			return data, nil
		}
		s, ok := data.(string)
		if !ok {
			return data, nil
		}
		size, err := bytesize.ParseByteSize(s)
		if err != nil {
			return nil, fmt.Errorf("parse byte size %q: %w", s, err)
		}
		return size.Int64(), nil
	}
}

var validate = validator.New()

// Validate runs struct-tag validation over the configuration.
func Validate(cfg *Config) error {
	return validate.Struct(cfg)
}
