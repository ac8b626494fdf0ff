package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	jobmetrics "github.com/miq-labs/miq-be/internal/jobs"
	"github.com/miq-labs/miq-be/internal/shared"
)

const (
	retentionLockTTL     = 10 * time.Minute
	defaultRetentionDays = 90
)

// AuditPurger removes expired audit entries.
type AuditPurger interface {
	Purge(ctx context.Context, retention time.Duration) (int64, error)
}

// AuditRetentionJob prunes audit log entries past the retention horizon.
type AuditRetentionJob struct {
	Audit   AuditPurger
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewAuditRetentionJob wires dependencies for the retention handler.
func NewAuditRetentionJob(purger AuditPurger, client *redis.Client, logger *slog.Logger, metrics *jobmetrics.Metrics) *AuditRetentionJob {
	return &AuditRetentionJob{Audit: purger, Redis: client, Logger: logger, Metrics: metrics}
}

// Handle processes audit retention tasks.
func (j *AuditRetentionJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Audit == nil {
		return errors.New("audit retention: handler not configured")
	}
	var payload AuditRetentionPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if payload.RetentionDays <= 0 {
		payload.RetentionDays = defaultRetentionDays
	}

	logger := j.logger()

	if j.Redis != nil {
		key := shared.JobLockKey(TaskAuditRetention)
		held, err := shared.AcquireLock(ctx, j.Redis, key, retentionLockTTL)
		if err != nil {
			logger.Warn("acquire retention lock", slog.Any("error", err))
		} else if !held {
			logger.Info("retention already running, skipping")
			return nil
		} else {
			defer func() { _ = shared.ReleaseLock(ctx, j.Redis, key) }()
		}
	}

	tracker := j.metrics().Track(TaskAuditRetention)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	purged, err := j.Audit.Purge(ctx, time.Duration(payload.RetentionDays)*24*time.Hour)
	if err != nil {
		resultErr = err
		logger.Error("purge audit entries", slog.Any("error", err))
		return resultErr
	}
	j.metrics().AddPurgedEntries(purged)

	logger.Info("completed audit retention",
		slog.Int64("purged", purged),
		slog.Int("retention_days", payload.RetentionDays))
	return resultErr
}

func (j *AuditRetentionJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskAuditRetention))
	}
	return slog.Default().With(slog.String("job", TaskAuditRetention))
}

func (j *AuditRetentionJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}
