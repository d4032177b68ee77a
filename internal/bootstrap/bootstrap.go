// Package bootstrap provides dependency initialization for the media operations API.
package bootstrap

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/maauso/mediaops-api/internal/config"
	"github.com/maauso/mediaops-api/internal/ffmpeg"
	"github.com/maauso/mediaops-api/internal/janitor"
	"github.com/maauso/mediaops-api/internal/job"
	"github.com/maauso/mediaops-api/internal/loudnorm"
	"github.com/maauso/mediaops-api/internal/media"
	"github.com/maauso/mediaops-api/internal/session"
	"github.com/maauso/mediaops-api/internal/storage"
)

// Dependencies holds all initialized dependencies for the HTTP server.
type Dependencies struct {
	JobService *job.Service
	Storage    storage.Storage
	Janitor    *janitor.Janitor

	closers []func() error
}

// Close releases connections opened by NewDependencies.
func (d *Dependencies) Close() error {
	var first error
	for _, c := range d.closers {
		if err := c(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// NewDependencies creates and initializes all dependencies for the application.
func NewDependencies(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Dependencies, error) {
	store, err := initStorage(cfg, logger)
	if err != nil {
		return nil, err
	}

	// Session files left behind by a previous process are never read again.
	removed, err := store.Sweep(ctx, cfg.SessionMaxAge())
	if err != nil {
		logger.Warn("failed to sweep stale sessions", slog.String("error", err.Error()))
	} else if removed > 0 {
		logger.Info("removed stale sessions", slog.Int("count", removed))
	}

	sessions := session.NewFactory(store.SessionDir(),
		session.WithPollInterval(cfg.SessionPollInterval()),
		session.WithMaxAttempts(cfg.SessionPollMaxAttempts),
	)

	tools := ffmpeg.Config{FFmpegPath: cfg.FFmpegPath, FFprobePath: cfg.FFprobePath}
	runner := ffmpeg.NewExecRunner(logger)

	processor := media.NewOrchestrator(tools, sessions,
		media.WithRunner(runner),
		media.WithLogger(logger),
	)
	normalizer := loudnorm.NewPipeline(tools, sessions,
		loudnorm.WithRunner(runner),
		loudnorm.WithLogger(logger),
	)

	deps := &Dependencies{Storage: store}

	repo, err := initRepository(ctx, cfg, logger, deps)
	if err != nil {
		return nil, err
	}

	svc := job.NewService(
		repo,
		processor,
		normalizer,
		sessions,
		store,
		logger,
		job.WithOperationTimeout(cfg.OperationTimeout()),
		job.WithMaxConcurrentJobs(cfg.MaxConcurrentJobs),
		job.WithUploads(cfg.S3Enabled()),
	)

	deps.JobService = svc

	deps.Janitor, err = janitor.New(janitor.Config{
		Schedule:      cfg.JanitorSchedule,
		SessionMaxAge: cfg.SessionMaxAge(),
		JobRetention:  cfg.JobRetention(),
	}, store, svc, logger)
	if err != nil {
		_ = deps.Close()
		return nil, err
	}

	return deps, nil
}

// initRepository picks the Redis job store when configured and the
// in-memory one otherwise.
func initRepository(ctx context.Context, cfg *config.Config, logger *slog.Logger, deps *Dependencies) (job.Repository, error) {
	if !cfg.RedisEnabled() {
		logger.Info("in-memory job store configured")
		return job.NewMemoryRepository(), nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	deps.closers = append(deps.closers, client.Close)

	logger.Info("redis job store configured",
		slog.String("addr", opts.Addr),
		slog.Int("db", opts.DB),
	)
	return job.NewRedisRepository(client,
		job.WithKeyPrefix(cfg.RedisKeyPrefix),
		job.WithRecordTTL(cfg.JobRetention()+24*time.Hour),
	), nil
}

// initStorage creates the appropriate storage backend based on configuration.
func initStorage(cfg *config.Config, logger *slog.Logger) (storage.Storage, error) {
	if cfg.S3Enabled() {
		s3Cfg := storage.S3Config{
			Bucket:          cfg.S3Bucket,
			Region:          cfg.S3Region,
			Endpoint:        cfg.S3Endpoint,
			KeyPrefix:       cfg.S3KeyPrefix,
			AccessKeyID:     cfg.AWSAccessKeyID,
			SecretAccessKey: cfg.AWSSecretAccessKey,
		}
		s3Store, err := storage.NewS3Storage(cfg.TempDir, s3Cfg)
		if err != nil {
			return nil, fmt.Errorf("create S3 storage: %w", err)
		}
		logger.Info("S3 storage configured",
			slog.String("bucket", cfg.S3Bucket),
			slog.String("region", cfg.S3Region),
			slog.String("endpoint", cfg.S3Endpoint),
		)
		return s3Store, nil
	}

	localStore, err := storage.NewLocalStorage(cfg.TempDir)
	if err != nil {
		return nil, fmt.Errorf("create local storage: %w", err)
	}
	logger.Info("local storage configured",
		slog.String("temp_dir", cfg.TempDir),
	)
	return localStore, nil
}
