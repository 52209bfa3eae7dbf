package config

import "time"

// ApplyDefaults fills unset fields with sensible defaults.
//
// Zero values are replaced; values already set (e.g. from env or file) are
// preserved. Call this before Unmarshal so that env/file values win.
func ApplyDefaults(cfg *Config) {
	applyLoggingDefaults(&cfg.Logging)
	applyServerDefaults(&cfg.Server)
	applyStorageDefaults(&cfg.Storage)
	applyQueueDefaults(&cfg.Queue)
	applyDatabaseDefaults(&cfg.Database)
	applyConcurrencyDefaults(&cfg.Concurrency)
	applyAutoscaleDefaults(&cfg.Autoscale)
	applyAuthDefaults(&cfg.Auth)
	applyMaintenanceDefaults(&cfg.Maintenance)
}

func applyLoggingDefaults(cfg *LoggingConfig) {
	if cfg.Level == "" {
		cfg.Level = "INFO"
	}
	if cfg.Format == "" {
		cfg.Format = "text"
	}
	if cfg.Output == "" {
		cfg.Output = "stdout"
	}
}

func applyServerDefaults(cfg *ServerConfig) {
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		cfg.WriteTimeout = 60 * time.Second
	}
	if cfg.IdleTimeout == 0 {
		cfg.IdleTimeout = 120 * time.Second
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.AppVersion == "" {
		cfg.AppVersion = "dev"
	}
}

func applyStorageDefaults(cfg *StorageConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "local"
	}
	if cfg.Root == "" {
		cfg.Root = "./data/uploads"
	}
	if cfg.Backend == "r2" && cfg.Region == "" {
		cfg.Region = "auto"
	}
	if cfg.Backend == "r2" && cfg.Endpoint == "" && cfg.AccountID != "" {
		cfg.Endpoint = "https://" + cfg.AccountID + ".r2.cloudflarestorage.com"
	}
}

func applyQueueDefaults(cfg *QueueConfig) {
	if cfg.Backend == "" {
		cfg.Backend = "memory"
	}
	if cfg.RedisQueueName == "" {
		cfg.RedisQueueName = "dfsingest:chunks"
	}
	if cfg.ConsumerCount == 0 {
		cfg.ConsumerCount = 4
	}
	if cfg.PollTimeout == 0 {
		cfg.PollTimeout = 5 * time.Second
	}
	if cfg.TaskTimeout == 0 {
		cfg.TaskTimeout = 30 * time.Second
	}
	if cfg.VisibilityTimeout == 0 {
		cfg.VisibilityTimeout = cfg.TaskTimeout + 10*time.Second
	}
}

func applyDatabaseDefaults(cfg *DatabaseConfig) {
	if cfg.MaxOpenConns == 0 {
		cfg.MaxOpenConns = 25
	}
	if cfg.MaxIdleConns == 0 {
		cfg.MaxIdleConns = 10
	}
	if cfg.ConnMaxLifetime == 0 {
		cfg.ConnMaxLifetime = 30 * time.Minute
	}
}

func applyConcurrencyDefaults(cfg *ConcurrencyConfig) {
	if cfg.ChunkSizeBytes == 0 {
		cfg.ChunkSizeBytes = 5 * 1024 * 1024
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.WorkerCount == 0 {
		cfg.WorkerCount = 16
	}
	if cfg.TaskQueueMaxSize == 0 {
		cfg.TaskQueueMaxSize = 512
	}
	if cfg.MaxGlobalInflightChunks == 0 {
		cfg.MaxGlobalInflightChunks = 128
	}
	if cfg.MaxInflightChunksPerUpload == 0 {
		cfg.MaxInflightChunksPerUpload = 8
	}
	if cfg.MaxFairInflightChunksPerUpload == 0 {
		cfg.MaxFairInflightChunksPerUpload = cfg.WorkerCount / 2
	}
}

func applyAutoscaleDefaults(cfg *AutoscaleConfig) {
	if cfg.MinWorkers == 0 {
		cfg.MinWorkers = 4
	}
	if cfg.MaxWorkers == 0 {
		cfg.MaxWorkers = 64
	}
	if cfg.Cooldown == 0 {
		cfg.Cooldown = 15 * time.Second
	}
	if cfg.ScaleUpQueueThreshold == 0 {
		cfg.ScaleUpQueueThreshold = 8
	}
	if cfg.ScaleUpUtilizationThresh == 0 {
		cfg.ScaleUpUtilizationThresh = 0.8
	}
	if cfg.ScaleDownUtilizationThresh == 0 {
		cfg.ScaleDownUtilizationThresh = 0.2
	}
}

func applyAuthDefaults(cfg *AuthConfig) {
	if cfg.Mode == "" {
		cfg.Mode = "api_key"
	}
	if cfg.RateLimitPerMinute == 0 {
		cfg.RateLimitPerMinute = 600
	}
	if cfg.JWTAlgorithm == "" {
		cfg.JWTAlgorithm = "HS256"
	}
}

func applyMaintenanceDefaults(cfg *MaintenanceConfig) {
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = 5 * time.Minute
	}
	if cfg.StaleUploadTTL == 0 {
		cfg.StaleUploadTTL = 24 * time.Hour
	}
	if cfg.IdempotencyTTL == 0 {
		cfg.IdempotencyTTL = 72 * time.Hour
	}
}
