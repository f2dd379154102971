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
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"time"

	"github.com/hibiken/asynq"

	"github.com/tupahq/tupasync/config"
	redis_db "github.com/tupahq/tupasync/internal/redis-db"
	"github.com/tupahq/tupasync/model"
)

// Queue represents a queue for handling various tasks.
type Queue struct {
	Client    *asynq.Client
	Inspector *asynq.Inspector
}

// SyncTaskPayload is the wire shape of a queued sync task.
type SyncTaskPayload struct {
	TaskID   string `json:"task_id"`
	ClientID string `json:"client_id"`
	TaskType string `json:"task_type"`
}

// NewQueue initializes a new Queue instance with the provided configuration.
//
// Parameters:
// - conf *config.Configuration: The configuration for the queue.
//
// Returns:
// - *Queue: A pointer to the newly created Queue instance.
func NewQueue(conf *config.Configuration) *Queue {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		log.Fatalf("Error parsing Redis URL: %v", err)
	}

	queueOptions := asynq.RedisClientOpt{Addr: redisOption.Addr, Password: redisOption.Password, DB: redisOption.DB, TLSConfig: redisOption.TLSConfig}
	client := asynq.NewClient(queueOptions)
	inspector := asynq.NewInspector(queueOptions)
	return &Queue{
		Client:    client,
		Inspector: inspector,
	}
}

// Enqueue places a sync task on one of the per-client sync queues. Tasks for
// the same client always hash to the same queue, and each queue is consumed
// with concurrency 1, so a client's syncs never overlap.
//
// MaxRetry is 0 on purpose: a failed task stays FAILED, re-attempts belong to
// the retry scheduler, not the broker.
//
// Parameters:
// - ctx context.Context: The context for the operation.
// - task *model.SyncTask: The task to be enqueued.
//
// Returns:
// - error: An error if the task could not be enqueued.
func (q *Queue) Enqueue(ctx context.Context, task *model.SyncTask) error {
	payload, err := json.Marshal(SyncTaskPayload{
		TaskID:   task.TaskID,
		ClientID: task.ClientID,
		TaskType: task.TaskType,
	})
	if err != nil {
		return err
	}
	info, err := q.Client.EnqueueContext(ctx, q.geTask(task, payload), asynq.MaxRetry(0))
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued sync task: %+v", task.TaskID)

	return nil
}

// EnqueueRetryJob schedules a retry job on the shared retry queue, to be
// delivered after the job's backoff delay has elapsed.
func (q *Queue) EnqueueRetryJob(ctx context.Context, job *model.RetryJob, delay time.Duration) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}

	payload, err := json.Marshal(job)
	if err != nil {
		return err
	}
	// The asynq task ID carries the attempt so rescheduling the next attempt
	// never collides with the still-active delivery of the current one.
	taskOptions := []asynq.Option{
		asynq.TaskID(retryTaskID(job)),
		asynq.Queue(cfg.Queue.RetryQueue),
		asynq.MaxRetry(0),
		asynq.ProcessIn(delay),
	}
	task := asynq.NewTask(cfg.Queue.RetryQueue, payload, taskOptions...)
	info, err := q.Client.EnqueueContext(ctx, task)
	if err != nil {
		log.Println(err, info)
		return err
	}
	log.Printf(" [*] Successfully enqueued retry job: %s (attempt %d in %v)", job.JobID, job.Attempt, delay)
	return nil
}

// geTask generates a task for a sync request and assigns it to a specific queue based on the client ID.
// It ensures that tasks are evenly distributed across multiple queues by hashing the client ID.
// This approach avoids overlapping syncs for a client by ensuring that all tasks related to the same
// client are processed serially within the same queue.
//
// Parameters:
// - task *model.SyncTask: The sync task for which to generate the queue task.
// - payload []byte: The payload for the task, typically the serialized task data.
//
// Returns:
// - *asynq.Task: The generated task ready to be enqueued.
func (q *Queue) geTask(task *model.SyncTask, payload []byte) *asynq.Task {
	cnf, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config: %v", err)
		return q.geTaskWithDefaults(task, payload)
	}
	queueIndex := hashClientID(task.ClientID) % cnf.Queue.NumberOfQueues
	queueName := fmt.Sprintf("%s_%d", cnf.Queue.SyncQueue, queueIndex+1)

	taskOptions := []asynq.Option{asynq.TaskID(task.TaskID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// Fallback function for when config fetch fails
func (q *Queue) geTaskWithDefaults(task *model.SyncTask, payload []byte) *asynq.Task {
	queueIndex := hashClientID(task.ClientID) % 4
	queueName := fmt.Sprintf("pos:sync_%d", queueIndex+1) // Default prefix

	taskOptions := []asynq.Option{asynq.TaskID(task.TaskID), asynq.Queue(queueName)}
	return asynq.NewTask(queueName, payload, taskOptions...)
}

// hashClientID returns a consistent hash value for a string client ID.
//
// Parameters:
// - clientID string: The client ID to hash.
//
// Returns:
// - int: The hash value of the client ID.
func hashClientID(clientID string) int {
	hasher := fnv.New32a()
	_, _ = hasher.Write([]byte(clientID))
	return int(hasher.Sum32())
}

// GetSyncTaskFromQueue retrieves a queued sync task by its ID.
//
// Parameters:
// - taskID string: The ID of the task to retrieve.
//
// Returns:
// - *SyncTaskPayload: A pointer to the payload if found.
// - error: An error if the task could not be retrieved.
func (q *Queue) GetSyncTaskFromQueue(taskID string) (*SyncTaskPayload, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return nil, err
	}

	// Iterate over all specific sync queues
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.SyncQueue, i)
		task, err := q.Inspector.GetTaskInfo(queueName, taskID)
		if err == nil && task != nil {
			var payload SyncTaskPayload
			if err := json.Unmarshal(task.Payload, &payload); err != nil {
				return nil, err
			}
			return &payload, nil
		}
	}
	return nil, nil // Return nil if task is not found in any queue
}

// retryTaskID derives the asynq task ID for a retry job attempt.
func retryTaskID(job *model.RetryJob) string {
	return fmt.Sprintf("%s:%d", job.JobID, job.Attempt)
}

// CancelQueuedRetry removes a scheduled retry job attempt from the retry
// queue. An attempt already picked up by a worker cannot be cancelled.
func (q *Queue) CancelQueuedRetry(job *model.RetryJob) error {
	cfg, err := config.Fetch()
	if err != nil {
		return err
	}
	err = q.Inspector.DeleteTask(cfg.Queue.RetryQueue, retryTaskID(job))
	if err != nil && !errors.Is(err, asynq.ErrTaskNotFound) && !errors.Is(err, asynq.ErrQueueNotFound) {
		return err
	}
	return nil
}

// RetryTaskQueued reports whether a retry job attempt is still waiting on the
// retry queue.
func (q *Queue) RetryTaskQueued(job *model.RetryJob) (bool, error) {
	cfg, err := config.Fetch()
	if err != nil {
		return false, err
	}
	info, err := q.Inspector.GetTaskInfo(cfg.Queue.RetryQueue, retryTaskID(job))
	if err != nil {
		if errors.Is(err, asynq.ErrTaskNotFound) || errors.Is(err, asynq.ErrQueueNotFound) {
			return false, nil
		}
		return false, err
	}
	return info != nil, nil
}
