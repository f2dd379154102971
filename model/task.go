package model

import "time"

// Task statuses. COMPLETED and FAILED are terminal; the queue never retries a
// failed task on its own, resubmission belongs to the retry scheduler.
const (
	TaskStatusPending    = "PENDING"
	TaskStatusProcessing = "PROCESSING"
	TaskStatusCompleted  = "COMPLETED"
	TaskStatusFailed     = "FAILED"
)

// Task types carried on the sync queue.
const (
	TaskTypeSalesSync = "sales.sync"
)

// SyncTask is a unit of deferred work created when a production-mode client
// requests a sync. Its lifecycle is owned exclusively by the queue worker.
type SyncTask struct {
	TaskID      string     `json:"task_id"`
	ClientID    string     `json:"client_id"`
	TaskType    string     `json:"task_type"`
	Status      string     `json:"status"`
	Attempts    int        `json:"attempts"`
	MaxAttempts int        `json:"max_attempts"`
	LastError   string     `json:"last_error,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

// RetryOperation identifies which failing operation a retry job re-attempts.
type RetryOperation string

const (
	RetryOperationSync  RetryOperation = "sync"
	RetryOperationAuth  RetryOperation = "auth"
	RetryOperationFetch RetryOperation = "fetch"
)

// RetryJob is a scheduled re-attempt of a failed operation. Jobs are created
// by any failure path, survive restarts, and self-delete on success or once
// attempts are exhausted.
type RetryJob struct {
	JobID       string         `json:"job_id"`
	ClientID    string         `json:"client_id"`
	Operation   RetryOperation `json:"operation"`
	Attempt     int            `json:"attempt"`
	MaxAttempts int            `json:"max_attempts"`
	NextRetryAt time.Time      `json:"next_retry_at"`
	BackoffMs   int64          `json:"backoff_ms"`
	LastError   string         `json:"last_error,omitempty"`
	CreatedAt   time.Time      `json:"created_at"`
}
