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

package main

import (
	"context"
	"fmt"
	"log"

	"github.com/spf13/cobra"

	"github.com/tupahq/tupasync"
	"github.com/tupahq/tupasync/config"
	redis_db "github.com/tupahq/tupasync/internal/redis-db"

	"github.com/hibiken/asynq"
)

// initializeQueues builds the queue priority map for the worker server. Every
// per-client sync queue gets weight 1; webhooks and retries get a little more
// headroom since they are short-lived.
func initializeQueues() map[string]int {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return nil
	}

	queues := make(map[string]int)
	queues[cfg.Queue.WebhookQueue] = 3
	queues[cfg.Queue.RetryQueue] = 2

	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.SyncQueue, i)
		queues[queueName] = 1
	}
	return queues
}

// initializeWorkerServer builds the asynq server. Concurrency is 1 so tasks
// on the same sync queue never overlap, which keeps one client's syncs
// strictly serial.
func initializeWorkerServer(conf *config.Configuration, queues map[string]int) (*asynq.Server, error) {
	redisOption, err := redis_db.ParseRedisURL(conf.Redis.Dns, conf.Redis.SkipTLSVerify)
	if err != nil {
		return nil, fmt.Errorf("error parsing Redis URL: %v", err)
	}

	return asynq.NewServer(
		asynq.RedisClientOpt{
			Addr:      redisOption.Addr,
			Password:  redisOption.Password,
			DB:        redisOption.DB,
			TLSConfig: redisOption.TLSConfig,
		},
		asynq.Config{
			Concurrency: 1,
			Queues:      queues,
		},
	), nil
}

func initializeTaskHandlers(b *tupaInstance, mux *asynq.ServeMux) {
	cfg, err := config.Fetch()
	if err != nil {
		log.Printf("Error fetching config, using defaults: %v", err)
		return
	}

	// Register handlers for the per-client sync queues
	for i := 1; i <= cfg.Queue.NumberOfQueues; i++ {
		queueName := fmt.Sprintf("%s_%d", cfg.Queue.SyncQueue, i)
		mux.HandleFunc(queueName, b.tupa.ProcessSyncTask)
	}

	// Register handlers for other task types
	mux.HandleFunc(cfg.Queue.RetryQueue, b.tupa.Retry().ProcessRetryTask)
	mux.HandleFunc(cfg.Queue.WebhookQueue, tupasync.ProcessWebhook)
}

// workerCommands defines the "workers" command to start worker processes.
// The workers listen to the sync, retry and webhook queues.
func workerCommands(b *tupaInstance) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "start tupa sync workers",
		Run: func(cmd *cobra.Command, args []string) {
			ctx := context.Background()

			// Load configuration
			conf, err := config.Fetch()
			if err != nil {
				log.Fatal("Error fetching config:", err)
			}

			// Initialize queues
			queues := initializeQueues()

			// Initialize worker server
			srv, err := initializeWorkerServer(conf, queues)
			if err != nil {
				log.Fatal(err)
			}

			// Initialize task handlers
			mux := asynq.NewServeMux()
			initializeTaskHandlers(b, mux)

			// Re-enqueue retry jobs whose queued delivery was lost in a restart.
			if err := b.tupa.Retry().ReschedulePending(ctx); err != nil {
				log.Printf("Error rescheduling pending retry jobs: %v", err)
			}

			// Start worker server
			if err := srv.Run(mux); err != nil {
				log.Fatalf("could not run server: %v", err)
			}
		},
	}

	return cmd
}
