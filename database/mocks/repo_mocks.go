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
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/tupahq/tupasync/model"
)

// MockDataSource is a mock implementation of the IDataSource interface
type MockDataSource struct {
	mock.Mock
}

// Client config methods

func (m *MockDataSource) CreateClientConfig(ctx context.Context, cfg model.ClientConfig) (model.ClientConfig, error) {
	args := m.Called(ctx, cfg)
	return args.Get(0).(model.ClientConfig), args.Error(1)
}

func (m *MockDataSource) GetClientConfig(ctx context.Context, clientID string) (*model.ClientConfig, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.ClientConfig), args.Error(1)
}

func (m *MockDataSource) GetAllClientConfigs(ctx context.Context, limit, offset int) ([]model.ClientConfig, error) {
	args := m.Called(ctx, limit, offset)
	return args.Get(0).([]model.ClientConfig), args.Error(1)
}

func (m *MockDataSource) UpdateClientConfig(ctx context.Context, cfg *model.ClientConfig) error {
	args := m.Called(ctx, cfg)
	return args.Error(0)
}

// Sale methods

func (m *MockDataSource) RecordSale(ctx context.Context, sale *model.Sale) (*model.Sale, error) {
	args := m.Called(ctx, sale)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Sale), args.Error(1)
}

func (m *MockDataSource) GetSale(ctx context.Context, saleID string) (*model.Sale, error) {
	args := m.Called(ctx, saleID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Sale), args.Error(1)
}

func (m *MockDataSource) GetSaleByPOSTransactionID(ctx context.Context, clientID, posTxnID string) (*model.Sale, error) {
	args := m.Called(ctx, clientID, posTxnID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.Sale), args.Error(1)
}

func (m *MockDataSource) GetClientSales(ctx context.Context, clientID string, limit, offset int) ([]model.Sale, error) {
	args := m.Called(ctx, clientID, limit, offset)
	return args.Get(0).([]model.Sale), args.Error(1)
}

func (m *MockDataSource) GetUnsyncedSales(ctx context.Context, clientID string, limit int) ([]model.Sale, error) {
	args := m.Called(ctx, clientID, limit)
	return args.Get(0).([]model.Sale), args.Error(1)
}

func (m *MockDataSource) MarkSaleSynced(ctx context.Context, saleID string, erpID int64) error {
	args := m.Called(ctx, saleID, erpID)
	return args.Error(0)
}

// Sync task methods

func (m *MockDataSource) CreateSyncTask(ctx context.Context, task *model.SyncTask) (*model.SyncTask, error) {
	args := m.Called(ctx, task)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncTask), args.Error(1)
}

func (m *MockDataSource) GetSyncTask(ctx context.Context, taskID string) (*model.SyncTask, error) {
	args := m.Called(ctx, taskID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.SyncTask), args.Error(1)
}

func (m *MockDataSource) GetClientSyncTasks(ctx context.Context, clientID string, limit int) ([]model.SyncTask, error) {
	args := m.Called(ctx, clientID, limit)
	return args.Get(0).([]model.SyncTask), args.Error(1)
}

func (m *MockDataSource) MarkSyncTaskProcessing(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockDataSource) MarkSyncTaskCompleted(ctx context.Context, taskID string) error {
	args := m.Called(ctx, taskID)
	return args.Error(0)
}

func (m *MockDataSource) MarkSyncTaskFailed(ctx context.Context, taskID string, lastError string) error {
	args := m.Called(ctx, taskID, lastError)
	return args.Error(0)
}

// Integration log methods

func (m *MockDataSource) RecordLogEntry(ctx context.Context, entry *model.LogEntry) (*model.LogEntry, error) {
	args := m.Called(ctx, entry)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LogEntry), args.Error(1)
}

func (m *MockDataSource) GetClientLogs(ctx context.Context, clientID string, limit int) ([]model.LogEntry, error) {
	args := m.Called(ctx, clientID, limit)
	return args.Get(0).([]model.LogEntry), args.Error(1)
}

func (m *MockDataSource) GetLastLogEntry(ctx context.Context, clientID string, status string) (*model.LogEntry, error) {
	args := m.Called(ctx, clientID, status)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.LogEntry), args.Error(1)
}

// Circuit state methods

func (m *MockDataSource) GetCircuitState(ctx context.Context, clientID string) (*model.CircuitState, error) {
	args := m.Called(ctx, clientID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.CircuitState), args.Error(1)
}

func (m *MockDataSource) SaveCircuitState(ctx context.Context, state *model.CircuitState) error {
	args := m.Called(ctx, state)
	return args.Error(0)
}
