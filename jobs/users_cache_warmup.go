package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/miq-labs/miq-be/internal/jobs"
	"github.com/miq-labs/miq-be/internal/shared"
	"github.com/miq-labs/miq-be/internal/users"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

const (
	warmupLockTTL         = 5 * time.Minute
	warmupPageTimeout     = 10 * time.Second
	warmupConcurrency     = 4
	defaultWarmupPages    = 3
	defaultWarmupPageSize = 100
)

// UserLister serves the cached user listings the warmup pre-populates.
type UserLister interface {
	List(ctx context.Context, params shared.ListParams) ([]users.User, shared.Pagination, error)
}

// UsersCacheWarmupJob loads the first listing pages so the cache is hot
// after an invalidation or deploy.
type UsersCacheWarmupJob struct {
	Users   UserLister
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewUsersCacheWarmupJob wires dependencies for the warmup handler.
func NewUsersCacheWarmupJob(lister UserLister, client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *UsersCacheWarmupJob {
	return &UsersCacheWarmupJob{Users: lister, Redis: client, Logger: logger, Metrics: metrics}
}

// Handle processes cache warmup tasks.
func (j *UsersCacheWarmupJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Users == nil {
		return errors.New("users cache warmup: handler not configured")
	}
	var payload UsersCacheWarmupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.Pages <= 0 {
		payload.Pages = defaultWarmupPages
	}
	if payload.PageSize <= 0 || payload.PageSize > 100 {
		payload.PageSize = defaultWarmupPageSize
	}

	logger := j.logger()

	if j.Redis != nil {
		key := shared.JobLockKey(TaskUsersCacheWarmup)
		held, err := shared.AcquireLock(ctx, j.Redis, key, warmupLockTTL)
		if err != nil {
			logger.Warn("acquire warmup lock", slog.Any("error", err))
		} else if !held {
			logger.Info("warmup already running, skipping")
			return nil
		} else {
			defer func() { _ = shared.ReleaseLock(ctx, j.Redis, key) }()
		}
	}

	tracker := j.metrics().Track(TaskUsersCacheWarmup)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	start := time.Now()
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(warmupConcurrency)
	for page := 0; page < payload.Pages; page++ {
		params := shared.ListParams{Offset: page * payload.PageSize, Limit: payload.PageSize}
		g.Go(func() error {
			pageCtx, cancel := context.WithTimeout(gctx, warmupPageTimeout)
			defer cancel()
			_, _, err := j.Users.List(pageCtx, params)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		resultErr = err
		logger.Error("warm users cache", slog.Any("error", err))
		return resultErr
	}

	logger.Info("completed users cache warmup",
		slog.Int("pages", payload.Pages),
		slog.Duration("duration", time.Since(start)))
	return resultErr
}

func (j *UsersCacheWarmupJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskUsersCacheWarmup))
	}
	return slog.Default().With(slog.String("job", TaskUsersCacheWarmup))
}

func (j *UsersCacheWarmupJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
