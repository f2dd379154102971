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

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

// CreateClient registers a new POS client. The sync frequency floor only
// applies to production clients; simulation clients sync on demand.
func (t *Tupa) CreateClient(ctx context.Context, cfg model.ClientConfig) (model.ClientConfig, error) {
	if !cfg.SimulationMode {
		if err := cfg.Validate(); err != nil {
			return model.ClientConfig{}, apierror.NewAPIError(apierror.ErrValidation, "invalid client configuration", err.Error())
		}
	}
	return t.datasource.CreateClientConfig(ctx, cfg)
}

// GetClient retrieves a client configuration by ID.
func (t *Tupa) GetClient(ctx context.Context, clientID string) (*model.ClientConfig, error) {
	return t.datasource.GetClientConfig(ctx, clientID)
}

// ListClients retrieves registered clients, newest first.
func (t *Tupa) ListClients(ctx context.Context, limit, offset int) ([]model.ClientConfig, error) {
	return t.datasource.GetAllClientConfigs(ctx, limit, offset)
}

// GetSyncTask retrieves a sync task by ID.
func (t *Tupa) GetSyncTask(ctx context.Context, taskID string) (*model.SyncTask, error) {
	return t.datasource.GetSyncTask(ctx, taskID)
}

// ClientTasks retrieves a client's sync tasks, newest first.
func (t *Tupa) ClientTasks(ctx context.Context, clientID string, limit int) ([]model.SyncTask, error) {
	return t.datasource.GetClientSyncTasks(ctx, clientID, limit)
}

// ClientSales retrieves the canonical sales stored for a client.
func (t *Tupa) ClientSales(ctx context.Context, clientID string, limit, offset int) ([]model.Sale, error) {
	return t.datasource.GetClientSales(ctx, clientID, limit, offset)
}
