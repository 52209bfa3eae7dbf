package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/dfsingest/dfsingest/internal/logger"
	"github.com/dfsingest/dfsingest/pkg/api"
	"github.com/dfsingest/dfsingest/pkg/api/middleware"
	"github.com/dfsingest/dfsingest/pkg/autoscale"
	"github.com/dfsingest/dfsingest/pkg/config"
	"github.com/dfsingest/dfsingest/pkg/ingest"
	"github.com/dfsingest/dfsingest/pkg/maintenance"
	"github.com/dfsingest/dfsingest/pkg/metadata"
	"github.com/dfsingest/dfsingest/pkg/metadata/gormstore"
	"github.com/dfsingest/dfsingest/pkg/metadata/memstore"
	"github.com/dfsingest/dfsingest/pkg/metrics"
	"github.com/dfsingest/dfsingest/pkg/objectstore"
	"github.com/dfsingest/dfsingest/pkg/objectstore/local"
	"github.com/dfsingest/dfsingest/pkg/objectstore/s3"
	"github.com/dfsingest/dfsingest/pkg/queue"
	"github.com/dfsingest/dfsingest/pkg/queue/redisqueue"
	"github.com/dfsingest/dfsingest/pkg/queue/sqsqueue"
	"github.com/dfsingest/dfsingest/pkg/worker"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the ingestion API server",
	Long: `Run the dfsingestd API server: the upload init/chunk/complete/download
lifecycle, the chunk-persistence backend (in-process worker pool or durable
queue + consumers), the worker-pool autoscaler, and the maintenance sweep
loop, all wired from a single configuration load.`,
	RunE: runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(GetConfigFile())
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("initialize logger: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	repo, err := newMetadataRepository(cfg.Database)
	if err != nil {
		return fmt.Errorf("initialize metadata store: %w", err)
	}

	store, err := newObjectStore(ctx, cfg.Storage)
	if err != nil {
		return fmt.Errorf("initialize object store: %w", err)
	}

	reg := prometheus.NewRegistry()
	collector := metrics.New(reg)

	pool := worker.New(cfg.Concurrency.WorkerCount, cfg.Concurrency.TaskQueueMaxSize)
	admission := worker.NewAdmission(worker.AdmissionConfig{
		TaskQueueMaxSize:               cfg.Concurrency.TaskQueueMaxSize,
		MaxGlobalInflightChunks:        cfg.Concurrency.MaxGlobalInflightChunks,
		MaxInflightChunksPerUpload:     cfg.Concurrency.MaxInflightChunksPerUpload,
		MaxFairInflightChunksPerUpload: cfg.Concurrency.MaxFairInflightChunksPerUpload,
	}, pool)
	collector.RegisterAdmissionGauges(admission)

	ingestCfg := ingest.Config{
		DefaultChunkSizeBytes: cfg.Concurrency.ChunkSizeBytes,
		MaxRetries:            cfg.Concurrency.MaxRetries,
		MultipartMinChunkSize: 5 << 20,
		QueueTaskTimeout:      cfg.Queue.TaskTimeout,
	}

	var coordinator *ingest.Coordinator
	if cfg.Queue.Backend == "memory" {
		coordinator = ingest.New(ingestCfg, repo, store, admission, pool, collector)
	} else {
		q, err := newQueue(ctx, cfg.Queue)
		if err != nil {
			return fmt.Errorf("initialize queue backend: %w", err)
		}
		results := queue.NewResultStore()
		coordinator = ingest.NewQueued(ingestCfg, repo, store, admission, q, results, collector)

		consumerCount := cfg.Queue.ConsumerCount
		if consumerCount <= 0 {
			consumerCount = 1
		}
		for i := 0; i < consumerCount; i++ {
			consumer := ingest.NewQueueConsumer(q, store, results, cfg.Queue.PollTimeout)
			go consumer.Run(ctx)
		}
		logger.Info("queue consumers started", "backend", cfg.Queue.Backend, "count", consumerCount)
	}

	if cfg.Autoscale.Enabled {
		scaler := autoscale.New(autoscale.Config{
			Enabled:                    cfg.Autoscale.Enabled,
			MinWorkers:                 cfg.Autoscale.MinWorkers,
			MaxWorkers:                 cfg.Autoscale.MaxWorkers,
			Cooldown:                   cfg.Autoscale.Cooldown,
			ScaleUpQueueThreshold:      cfg.Autoscale.ScaleUpQueueThreshold,
			ScaleUpUtilizationThresh:   cfg.Autoscale.ScaleUpUtilizationThresh,
			ScaleDownUtilizationThresh: cfg.Autoscale.ScaleDownUtilizationThresh,
		}, admission, pool, slog.Default())
		go scaler.Run(ctx)
		logger.Info("autoscaler started", "min_workers", cfg.Autoscale.MinWorkers, "max_workers", cfg.Autoscale.MaxWorkers)
	}

	sweeper := maintenance.New(repo, store, maintenance.Config{
		StaleUploadTTL: cfg.Maintenance.StaleUploadTTL,
		IdempotencyTTL: cfg.Maintenance.IdempotencyTTL,
	})
	if cfg.Maintenance.Enabled {
		go sweeper.Start(ctx, cfg.Maintenance.CleanupInterval)
		logger.Info("maintenance sweeper started", "interval", cfg.Maintenance.CleanupInterval)
	}

	resolver := middleware.NewResolver(cfg.Auth)
	rateLimiter := middleware.NewRateLimiter(cfg.Auth.RateLimitPerMinute)

	router := api.NewRouter(api.RouterDeps{
		Coordinator:    coordinator,
		Resolver:       resolver,
		RateLimiter:    rateLimiter,
		Sweeper:        sweeper,
		Metrics:        collector,
		AppVersion:     cfg.Server.AppVersion,
		QueueBackend:   cfg.Queue.Backend,
		StorageBackend: cfg.Storage.Backend,
	})
	server := api.NewServer(cfg.Server, router)

	serverDone := make(chan error, 1)
	go func() { serverDone <- server.Start(ctx) }()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	logger.Info("dfsingestd running", "port", cfg.Server.Port, "queue_backend", cfg.Queue.Backend, "storage_backend", cfg.Storage.Backend)

	select {
	case <-sigCh:
		signal.Stop(sigCh)
		logger.Info("shutdown signal received")
		cancel()
		if err := <-serverDone; err != nil {
			logger.Error("server shutdown error", logger.Err(err))
			return err
		}
	case err := <-serverDone:
		signal.Stop(sigCh)
		if err != nil {
			logger.Error("server error", logger.Err(err))
			return err
		}
	}

	logger.Info("dfsingestd stopped")
	return nil
}

func newMetadataRepository(cfg config.DatabaseConfig) (metadata.Repository, error) {
	if cfg.DSN == "" || cfg.DSN == "memory" {
		return memstore.New(), nil
	}
	return gormstore.New(gormstore.Config{
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	})
}

func newObjectStore(ctx context.Context, cfg config.StorageConfig) (objectstore.Store, error) {
	switch cfg.Backend {
	case "local":
		return local.New(local.Config{BasePath: cfg.Root})
	case "s3":
		return s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.Bucket,
			Region:          cfg.Region,
			Endpoint:        cfg.Endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
			ForcePathStyle:  cfg.ForcePathStyle,
		})
	case "r2":
		endpoint := cfg.Endpoint
		if endpoint == "" && cfg.AccountID != "" {
			endpoint = fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)
		}
		return s3.NewFromConfig(ctx, s3.Config{
			Bucket:          cfg.Bucket,
			Region:          "auto",
			Endpoint:        endpoint,
			AccessKeyID:     cfg.AccessKeyID,
			SecretAccessKey: cfg.SecretKey,
			ForcePathStyle:  true,
		})
	default:
		return nil, fmt.Errorf("unsupported storage backend %q", cfg.Backend)
	}
}

func newQueue(ctx context.Context, cfg config.QueueConfig) (queue.Queue, error) {
	switch cfg.Backend {
	case "redis":
		return redisqueue.New(redisqueue.Config{URL: cfg.RedisURL, QueueName: cfg.RedisQueueName})
	case "sqs":
		return sqsqueue.NewFromConfig(ctx, sqsqueue.Config{
			QueueURL:          cfg.SQSQueueURL,
			VisibilityTimeout: cfg.VisibilityTimeout,
		})
	default:
		return nil, fmt.Errorf("unsupported queue backend %q", cfg.Backend)
	}
}
