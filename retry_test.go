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
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/database/mocks"
	"github.com/tupahq/tupasync/model"
)

func TestBackoffSchedule(t *testing.T) {
	tests := []struct {
		attempt  int
		expected time.Duration
	}{
		{1, 0},
		{2, 10 * time.Second},
		{3, 30 * time.Second},
		{4, 90 * time.Second},
		{5, 270 * time.Second},
		{6, 5 * time.Minute},
		{10, 5 * time.Minute},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, Backoff(tt.attempt), "attempt %d", tt.attempt)
	}
}

func newTestScheduler(t *testing.T, mockDS *mocks.MockDataSource) (*RetryScheduler, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("an error '%s' occurred when starting miniredis", err)
	}
	t.Cleanup(mr.Close)

	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: mr.Addr()},
	})

	conf, err := config.Fetch()
	assert.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	queue := NewQueue(conf)
	logger := NewIntegrationLogger(mockDS)
	return NewRetryScheduler(client, queue, logger), mr
}

func TestEnqueueRetryCreatesDurableJob(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	scheduler, mr := newTestScheduler(t, mockDS)
	ctx := context.Background()

	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1"}, nil)

	job, err := scheduler.EnqueueRetry(ctx, "client_1", model.RetryOperationFetch, errors.New("vendor timeout"))
	assert.NoError(t, err)
	assert.NotNil(t, job)
	assert.Equal(t, 1, job.Attempt)
	assert.Equal(t, int64(0), job.BackoffMs)
	assert.Equal(t, "vendor timeout", job.LastError)

	// The job survives in redis, keyed by its ID and indexed per client.
	stored, err := scheduler.GetJob(ctx, job.JobID)
	assert.NoError(t, err)
	assert.NotNil(t, stored)
	assert.Equal(t, model.RetryOperationFetch, stored.Operation)

	jobs, err := scheduler.ListClientJobs(ctx, "client_1")
	assert.NoError(t, err)
	assert.Len(t, jobs, 1)

	// Retention expiry is set on the job key.
	ttl := mr.TTL(jobKey(job.JobID))
	assert.Greater(t, ttl, time.Duration(0))
}

func TestEnqueueRetrySuppressedWhenCircuitOpen(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	scheduler, _ := newTestScheduler(t, mockDS)
	ctx := context.Background()

	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{
		ClientID:            "client_1",
		ConsecutiveFailures: 3,
		IsPaused:            true,
		PauseReason:         "3 consecutive failures",
	}, nil)

	var warn model.LogEntry
	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Run(func(args mock.Arguments) {
		warn = *args.Get(1).(*model.LogEntry)
	}).Return(&model.LogEntry{}, nil)

	job, err := scheduler.EnqueueRetry(ctx, "client_1", model.RetryOperationSync, errors.New("still failing"))
	assert.NoError(t, err)
	assert.Nil(t, job)

	assert.Equal(t, model.LogStatusWarning, warn.Status)
	assert.Contains(t, warn.Message, "circuit is open")

	jobs, err := scheduler.ListClientJobs(ctx, "client_1")
	assert.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCancelJobRemovesPersistedState(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	scheduler, _ := newTestScheduler(t, mockDS)
	ctx := context.Background()

	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1"}, nil)

	job, err := scheduler.EnqueueRetry(ctx, "client_1", model.RetryOperationAuth, errors.New("bad token"))
	assert.NoError(t, err)
	assert.NotNil(t, job)

	err = scheduler.CancelJob(ctx, job.JobID)
	assert.NoError(t, err)

	stored, err := scheduler.GetJob(ctx, job.JobID)
	assert.NoError(t, err)
	assert.Nil(t, stored)

	jobs, err := scheduler.ListClientJobs(ctx, "client_1")
	assert.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCancelAllJobsForClient(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	scheduler, _ := newTestScheduler(t, mockDS)
	ctx := context.Background()

	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1"}, nil)

	for i := 0; i < 3; i++ {
		_, err := scheduler.EnqueueRetry(ctx, "client_1", model.RetryOperationSync, errors.New("boom"))
		assert.NoError(t, err)
	}

	jobs, err := scheduler.ListClientJobs(ctx, "client_1")
	assert.NoError(t, err)
	assert.Len(t, jobs, 3)

	err = scheduler.CancelAllJobsForClient(ctx, "client_1")
	assert.NoError(t, err)

	jobs, err = scheduler.ListClientJobs(ctx, "client_1")
	assert.NoError(t, err)
	assert.Empty(t, jobs)
}

func TestCancelJobMissingIsNoop(t *testing.T) {
	mockDS := new(mocks.MockDataSource)
	scheduler, _ := newTestScheduler(t, mockDS)

	err := scheduler.CancelJob(context.Background(), "rjob_does_not_exist")
	assert.NoError(t, err)
}
