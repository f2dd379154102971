/*
Copyright 2024 Tupa Sync Authors.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package tupasync

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/internal/notification"
	"github.com/tupahq/tupasync/model"
)

const (
	retryJobKeyPrefix    = "retry:job"
	retryClientKeyPrefix = "retry:client"

	// Backoff schedule: the first attempt runs immediately, later attempts
	// triple the previous delay starting from baseBackoff, capped at maxBackoff.
	baseBackoff = 10 * time.Second
	maxBackoff  = 5 * time.Minute
)

// RetryExecutor re-runs the operation a retry job stands for. The worker
// process wires the orchestrator in as the executor.
type RetryExecutor interface {
	ExecuteRetry(ctx context.Context, job *model.RetryJob) error
}

// RetryScheduler owns scheduled re-attempts of failed operations. Jobs live
// in Redis with a retention TTL so they survive restarts and expire on their
// own, and the delay timers ride on the retry queue.
type RetryScheduler struct {
	client   redis.UniversalClient
	queue    *Queue
	logger   *IntegrationLogger
	executor RetryExecutor
}

func NewRetryScheduler(redisClient redis.UniversalClient, queue *Queue, logger *IntegrationLogger) *RetryScheduler {
	return &RetryScheduler{
		client: redisClient,
		queue:  queue,
		logger: logger,
	}
}

// SetExecutor wires the component that actually re-runs failed operations.
// Only the worker process sets one; the API process schedules jobs blind.
func (r *RetryScheduler) SetExecutor(executor RetryExecutor) {
	r.executor = executor
}

// Backoff returns the delay before the given attempt runs. Attempt 1 is
// immediate; attempt n waits baseBackoff * 3^(n-2), capped at maxBackoff.
func Backoff(attempt int) time.Duration {
	if attempt <= 1 {
		return 0
	}
	delay := baseBackoff
	for i := 2; i < attempt; i++ {
		delay *= 3
		if delay >= maxBackoff {
			return maxBackoff
		}
	}
	if delay > maxBackoff {
		return maxBackoff
	}
	return delay
}

// EnqueueRetry creates and schedules a retry job for a failed operation. When
// the client's circuit is open the request is a no-op: a warning entry is
// written and no job is created, since an open circuit only closes on success
// or a manual reset.
func (r *RetryScheduler) EnqueueRetry(ctx context.Context, clientID string, operation model.RetryOperation, cause error) (*model.RetryJob, error) {
	state, err := r.logger.CircuitState(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if state.IsPaused {
		warn := &model.LogEntry{
			ClientID:  clientID,
			Source:    model.LogSourceSystem,
			Operation: "retry_scheduler",
			Status:    model.LogStatusWarning,
			Message:   fmt.Sprintf("retry for %s suppressed, circuit is open: %s", operation, state.PauseReason),
		}
		if err := r.logger.Log(ctx, warn); err != nil {
			return nil, err
		}
		return nil, nil
	}

	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	job := &model.RetryJob{
		JobID:       model.GenerateUUIDWithSuffix("rjob"),
		ClientID:    clientID,
		Operation:   operation,
		Attempt:     1,
		MaxAttempts: cfg.Queue.MaxRetryAttempts,
		CreatedAt:   time.Now(),
	}
	if cause != nil {
		job.LastError = cause.Error()
	}

	delay := Backoff(job.Attempt)
	job.BackoffMs = delay.Milliseconds()
	job.NextRetryAt = time.Now().Add(delay)

	if err := r.saveJob(ctx, job); err != nil {
		return nil, err
	}
	if err := r.queue.EnqueueRetryJob(ctx, job, delay); err != nil {
		return nil, err
	}
	return job, nil
}

// ProcessRetryTask is the retry queue handler. It re-runs the job through the
// executor, reschedules with backoff on retryable failure, and drops the job
// on success, exhaustion, or a non-retryable error.
func (r *RetryScheduler) ProcessRetryTask(ctx context.Context, t *asynq.Task) error {
	var payload model.RetryJob
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return err
	}

	// Redis holds the authoritative copy. A missing key means the job was
	// cancelled or expired after this delivery was scheduled.
	job, err := r.GetJob(ctx, payload.JobID)
	if err != nil {
		return err
	}
	if job == nil {
		logrus.WithField("job_id", payload.JobID).Info("retry job no longer exists, skipping")
		return nil
	}

	state, err := r.logger.CircuitState(ctx, job.ClientID)
	if err != nil {
		return err
	}
	if state.IsPaused {
		warn := &model.LogEntry{
			ClientID:  job.ClientID,
			Source:    model.LogSourceSystem,
			Operation: "retry_scheduler",
			Status:    model.LogStatusWarning,
			Message:   fmt.Sprintf("retry job %s dropped, circuit is open", job.JobID),
		}
		if err := r.logger.Log(ctx, warn); err != nil {
			return err
		}
		return r.deleteJob(ctx, job)
	}

	if r.executor == nil {
		return fmt.Errorf("retry scheduler has no executor")
	}

	execErr := r.executor.ExecuteRetry(ctx, job)
	if execErr == nil {
		return r.deleteJob(ctx, job)
	}

	job.LastError = execErr.Error()

	if job.Attempt >= job.MaxAttempts {
		logrus.WithFields(logrus.Fields{
			"job_id":    job.JobID,
			"client_id": job.ClientID,
			"operation": job.Operation,
			"attempts":  job.Attempt,
		}).Error("retry attempts exhausted")
		exhausted := &model.LogEntry{
			ClientID:  job.ClientID,
			Source:    model.LogSourceSystem,
			Operation: "retry_scheduler",
			Status:    model.LogStatusError,
			Message:   fmt.Sprintf("retry attempts exhausted for %s after %d tries: %s", job.Operation, job.Attempt, job.LastError),
		}
		if err := r.logger.Log(ctx, exhausted); err != nil {
			return err
		}
		notification.NotifyError(job.ClientID, fmt.Errorf("retry attempts exhausted for %s: %s", job.Operation, job.LastError))
		return r.deleteJob(ctx, job)
	}

	job.Attempt++
	delay := Backoff(job.Attempt)
	job.BackoffMs = delay.Milliseconds()
	job.NextRetryAt = time.Now().Add(delay)

	if err := r.saveJob(ctx, job); err != nil {
		return err
	}
	return r.queue.EnqueueRetryJob(ctx, job, delay)
}

// GetJob retrieves a retry job by ID, nil when it no longer exists.
func (r *RetryScheduler) GetJob(ctx context.Context, jobID string) (*model.RetryJob, error) {
	data, err := r.client.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}

	var job model.RetryJob
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("failed to unmarshal retry job: %w", err)
	}
	return &job, nil
}

// ListClientJobs retrieves all live retry jobs for a client.
func (r *RetryScheduler) ListClientJobs(ctx context.Context, clientID string) ([]*model.RetryJob, error) {
	jobIDs, err := r.client.SMembers(ctx, clientKey(clientID)).Result()
	if err != nil {
		return nil, err
	}

	jobs := make([]*model.RetryJob, 0, len(jobIDs))
	for _, jobID := range jobIDs {
		job, err := r.GetJob(ctx, jobID)
		if err != nil {
			return nil, err
		}
		if job == nil {
			// Job expired but its set entry lingered, clean it up.
			_ = r.client.SRem(ctx, clientKey(clientID), jobID).Err()
			continue
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// CancelJob removes a retry job and its queued delivery.
func (r *RetryScheduler) CancelJob(ctx context.Context, jobID string) error {
	job, err := r.GetJob(ctx, jobID)
	if err != nil {
		return err
	}
	if job == nil {
		return nil
	}
	if err := r.queue.CancelQueuedRetry(job); err != nil {
		return err
	}
	return r.deleteJob(ctx, job)
}

// CancelAllJobsForClient removes every live retry job for a client. Used when
// a client is deactivated or its circuit is manually reset with a clean slate.
func (r *RetryScheduler) CancelAllJobsForClient(ctx context.Context, clientID string) error {
	jobs, err := r.ListClientJobs(ctx, clientID)
	if err != nil {
		return err
	}
	for _, job := range jobs {
		if err := r.queue.CancelQueuedRetry(job); err != nil {
			return err
		}
		if err := r.deleteJob(ctx, job); err != nil {
			return err
		}
	}
	return nil
}

// ReschedulePending walks the persisted jobs at worker boot and re-enqueues
// any whose queued delivery was lost. Overdue jobs run immediately.
func (r *RetryScheduler) ReschedulePending(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := r.client.Scan(ctx, cursor, jobKey("*"), 100).Result()
		if err != nil {
			return err
		}
		for _, key := range keys {
			data, err := r.client.Get(ctx, key).Bytes()
			if err != nil {
				if err == redis.Nil {
					continue
				}
				return err
			}
			var job model.RetryJob
			if err := json.Unmarshal(data, &job); err != nil {
				logrus.WithField("key", key).Warn("skipping undecodable retry job")
				continue
			}

			queued, err := r.queue.RetryTaskQueued(&job)
			if err != nil {
				return err
			}
			if queued {
				continue
			}

			delay := time.Until(job.NextRetryAt)
			if delay < 0 {
				delay = 0
			}
			if err := r.queue.EnqueueRetryJob(ctx, &job, delay); err != nil {
				return err
			}
			logrus.WithFields(logrus.Fields{
				"job_id":    job.JobID,
				"client_id": job.ClientID,
				"delay":     delay,
			}).Info("rescheduled retry job after restart")
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

func (r *RetryScheduler) saveJob(ctx context.Context, job *model.RetryJob) error {
	data, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal retry job: %w", err)
	}

	ttl := retentionTTL()
	pipe := r.client.Pipeline()
	pipe.Set(ctx, jobKey(job.JobID), data, ttl)
	pipe.SAdd(ctx, clientKey(job.ClientID), job.JobID)
	pipe.Expire(ctx, clientKey(job.ClientID), ttl)
	_, err = pipe.Exec(ctx)
	return err
}

func (r *RetryScheduler) deleteJob(ctx context.Context, job *model.RetryJob) error {
	pipe := r.client.Pipeline()
	pipe.Del(ctx, jobKey(job.JobID))
	pipe.SRem(ctx, clientKey(job.ClientID), job.JobID)
	_, err := pipe.Exec(ctx)
	return err
}

// retentionTTL is how long job records live in Redis. Expiry doubles as the
// retention sweep, nothing ever garbage-collects jobs by hand.
func retentionTTL() time.Duration {
	cfg, err := config.Fetch()
	if err != nil {
		return 24 * time.Hour
	}
	return time.Duration(cfg.Retry.RetentionHours) * time.Hour
}

func jobKey(jobID string) string {
	return fmt.Sprintf("%s:%s", retryJobKeyPrefix, jobID)
}

func clientKey(clientID string) string {
	return fmt.Sprintf("%s:%s", retryClientKeyPrefix, clientID)
}
