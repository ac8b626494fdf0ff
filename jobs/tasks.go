package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskUsersCacheWarmup pre-populates the cached user listings.
	TaskUsersCacheWarmup = "users:cache_warmup"
	// TaskAuditRetention prunes expired audit log entries.
	TaskAuditRetention = "audit:retention"
)

// UsersCacheWarmupPayload bounds how much of the listing gets warmed.
type UsersCacheWarmupPayload struct {
	Pages    int `json:"pages"`
	PageSize int `json:"page_size"`
}

// NewUsersCacheWarmupTask constructs an Asynq task for cache warmup.
func NewUsersCacheWarmupTask(payload UsersCacheWarmupPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskUsersCacheWarmup, body, asynq.Queue(QueueDefault)), nil
}

// AuditRetentionPayload carries the retention horizon in days.
type AuditRetentionPayload struct {
	RetentionDays int `json:"retention_days"`
}

// NewAuditRetentionTask constructs an Asynq task for audit retention.
func NewAuditRetentionTask(payload AuditRetentionPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskAuditRetention, body, asynq.Queue(QueueDefault)), nil
}
