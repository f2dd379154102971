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
	"github.com/redis/go-redis/v9"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/database"
	redis_db "github.com/tupahq/tupasync/internal/redis-db"

	// Importing the adapters package registers every supported vendor.
	_ "github.com/tupahq/tupasync/pos/adapters"
)

// Tupa is the engine entry point: the orchestrator, logger, queue, retry
// scheduler and ERP sync service all hang off one owned instance per process.
// Tests construct their own instance with isolated storage instead of
// reaching for ambient globals.
type Tupa struct {
	queue      *Queue
	logger     *IntegrationLogger
	retry      *RetryScheduler
	erp        *ErpSyncService
	redis      redis.UniversalClient
	datasource database.IDataSource
}

// NewTupa initializes a new instance of the engine with the provided
// datasource. It wires the redis client, the queue, the integration logger,
// the retry scheduler and the ERP sync service.
func NewTupa(db database.IDataSource) (*Tupa, error) {
	configuration, err := config.Fetch()
	if err != nil {
		return nil, err
	}
	redisClient, err := redis_db.NewRedisClient(configuration.Redis.Dns, configuration.Redis.SkipTLSVerify)
	if err != nil {
		return nil, err
	}

	newQueue := NewQueue(configuration)
	logger := NewIntegrationLogger(db)
	retry := NewRetryScheduler(redisClient.Client(), newQueue, logger)
	erp := NewErpSyncService(db, NewOdooClient(configuration))

	t := &Tupa{
		queue:      newQueue,
		logger:     logger,
		retry:      retry,
		erp:        erp,
		redis:      redisClient.Client(),
		datasource: db,
	}
	retry.SetExecutor(t)
	return t, nil
}

// Logger exposes the integration logger for read paths (status and log APIs).
func (t *Tupa) Logger() *IntegrationLogger {
	return t.logger
}

// Retry exposes the retry scheduler, used by the worker process to handle
// scheduled re-attempts.
func (t *Tupa) Retry() *RetryScheduler {
	return t.retry
}

// Queue exposes the task queue wrapper.
func (t *Tupa) Queue() *Queue {
	return t.queue
}
