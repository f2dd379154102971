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

package database

import (
	"context"

	"github.com/tupahq/tupasync/model"
)

// IDataSource defines the interface for data source operations, grouping related functionalities.
type IDataSource interface {
	clientConfig   // Interface for per-tenant integration settings
	sale           // Interface for canonical sale storage
	syncTask       // Interface for sync task lifecycle
	integrationLog // Interface for the append-only audit log
	circuitState   // Interface for derived circuit-breaker state
}

// clientConfig defines methods for reading and writing tenant settings.
type clientConfig interface {
	CreateClientConfig(ctx context.Context, cfg model.ClientConfig) (model.ClientConfig, error) // Registers a new client
	GetClientConfig(ctx context.Context, clientID string) (*model.ClientConfig, error)          // Retrieves a client config by ID
	GetAllClientConfigs(ctx context.Context, limit, offset int) ([]model.ClientConfig, error)   // Retrieves all client configs
	UpdateClientConfig(ctx context.Context, cfg *model.ClientConfig) error                      // Updates a client config
}

// sale defines methods for canonical sale storage.
type sale interface {
	RecordSale(ctx context.Context, sale *model.Sale) (*model.Sale, error)                          // Upserts a canonical sale keyed by (client, pos transaction)
	GetSale(ctx context.Context, saleID string) (*model.Sale, error)                               // Retrieves a sale by ID
	GetSaleByPOSTransactionID(ctx context.Context, clientID, posTxnID string) (*model.Sale, error) // Retrieves a sale by its idempotency key
	GetClientSales(ctx context.Context, clientID string, limit, offset int) ([]model.Sale, error)  // Retrieves sales for a client
	GetUnsyncedSales(ctx context.Context, clientID string, limit int) ([]model.Sale, error)        // Retrieves sales not yet pushed to the ERP
	MarkSaleSynced(ctx context.Context, saleID string, erpID int64) error                          // Flags a sale as propagated with its ERP join key
}

// syncTask defines methods for the deferred-work lifecycle.
type syncTask interface {
	CreateSyncTask(ctx context.Context, task *model.SyncTask) (*model.SyncTask, error)                // Creates a pending task
	GetSyncTask(ctx context.Context, taskID string) (*model.SyncTask, error)                          // Retrieves a task by ID
	GetClientSyncTasks(ctx context.Context, clientID string, limit int) ([]model.SyncTask, error)     // Retrieves a client's tasks, newest first
	MarkSyncTaskProcessing(ctx context.Context, taskID string) error                                  // PENDING -> PROCESSING, increments attempts
	MarkSyncTaskCompleted(ctx context.Context, taskID string) error                                   // PROCESSING -> COMPLETED
	MarkSyncTaskFailed(ctx context.Context, taskID string, lastError string) error                    // PROCESSING -> FAILED (terminal)
}

// integrationLog defines methods for the bounded audit log.
type integrationLog interface {
	RecordLogEntry(ctx context.Context, entry *model.LogEntry) (*model.LogEntry, error)        // Appends an entry and prunes beyond the window
	GetClientLogs(ctx context.Context, clientID string, limit int) ([]model.LogEntry, error)   // Retrieves a client's entries, newest first
	GetLastLogEntry(ctx context.Context, clientID string, status string) (*model.LogEntry, error) // Retrieves a client's latest entry with the given status
}

// circuitState defines methods for the derived breaker state.
type circuitState interface {
	GetCircuitState(ctx context.Context, clientID string) (*model.CircuitState, error) // Retrieves breaker state, zero-valued when never written
	SaveCircuitState(ctx context.Context, state *model.CircuitState) error             // Upserts breaker state
}
