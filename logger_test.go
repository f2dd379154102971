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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/database/mocks"
	"github.com/tupahq/tupasync/model"
)

func mockEmptyConfig() {
	config.MockConfig(&config.Configuration{
		Redis: config.RedisConfig{Dns: "localhost:6379"},
	})
}

func TestCircuitOpensAfterThreeConsecutiveFailures(t *testing.T) {
	mockEmptyConfig()
	mockDS := new(mocks.MockDataSource)
	logger := NewIntegrationLogger(mockDS)
	ctx := context.Background()

	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Return(&model.LogEntry{}, nil)

	// Breaker state as storage would return it before each failure.
	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1"}, nil).Once()
	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1", ConsecutiveFailures: 1}, nil).Once()
	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1", ConsecutiveFailures: 2}, nil).Once()

	var saved []model.CircuitState
	mockDS.On("SaveCircuitState", mock.Anything, mock.AnythingOfType("*model.CircuitState")).Run(func(args mock.Arguments) {
		saved = append(saved, *args.Get(1).(*model.CircuitState))
	}).Return(nil)

	for i := 0; i < 3; i++ {
		err := logger.Log(ctx, &model.LogEntry{
			ClientID:  "client_1",
			Source:    model.LogSourcePOSVendor,
			Operation: "fetch_sales",
			Status:    model.LogStatusError,
			Message:   "connection refused",
		})
		assert.NoError(t, err)
	}

	assert.Len(t, saved, 3)
	assert.False(t, saved[0].IsPaused)
	assert.False(t, saved[1].IsPaused)
	assert.True(t, saved[2].IsPaused)
	assert.Equal(t, 3, saved[2].ConsecutiveFailures)
	assert.Contains(t, saved[2].PauseReason, "3 consecutive failures")
}

func TestTwoFailuresDoNotOpenCircuit(t *testing.T) {
	mockEmptyConfig()
	mockDS := new(mocks.MockDataSource)
	logger := NewIntegrationLogger(mockDS)
	ctx := context.Background()

	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Return(&model.LogEntry{}, nil)
	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1", ConsecutiveFailures: 1}, nil)

	var saved model.CircuitState
	mockDS.On("SaveCircuitState", mock.Anything, mock.AnythingOfType("*model.CircuitState")).Run(func(args mock.Arguments) {
		saved = *args.Get(1).(*model.CircuitState)
	}).Return(nil)

	err := logger.Log(ctx, &model.LogEntry{
		ClientID: "client_1",
		Source:   model.LogSourcePOSVendor,
		Status:   model.LogStatusError,
		Message:  "timeout",
	})
	assert.NoError(t, err)
	assert.False(t, saved.IsPaused)
	assert.Equal(t, 2, saved.ConsecutiveFailures)
}

func TestSuccessClosesCircuit(t *testing.T) {
	mockEmptyConfig()
	mockDS := new(mocks.MockDataSource)
	logger := NewIntegrationLogger(mockDS)
	ctx := context.Background()

	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Return(&model.LogEntry{}, nil)
	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{
		ClientID:            "client_1",
		ConsecutiveFailures: 3,
		IsPaused:            true,
		PauseReason:         "3 consecutive failures",
	}, nil)

	var saved model.CircuitState
	mockDS.On("SaveCircuitState", mock.Anything, mock.AnythingOfType("*model.CircuitState")).Run(func(args mock.Arguments) {
		saved = *args.Get(1).(*model.CircuitState)
	}).Return(nil)

	err := logger.Log(ctx, &model.LogEntry{
		ClientID: "client_1",
		Source:   model.LogSourceSystem,
		Status:   model.LogStatusSuccess,
		Message:  "sync completed",
	})
	assert.NoError(t, err)
	assert.False(t, saved.IsPaused)
	assert.Equal(t, 0, saved.ConsecutiveFailures)
	assert.Empty(t, saved.PauseReason)
	assert.NotNil(t, saved.LastSuccessAt)
}

func TestWarningAndInfoDoNotMoveCircuit(t *testing.T) {
	mockEmptyConfig()
	mockDS := new(mocks.MockDataSource)
	logger := NewIntegrationLogger(mockDS)
	ctx := context.Background()

	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Return(&model.LogEntry{}, nil)

	err := logger.Log(ctx, &model.LogEntry{ClientID: "client_1", Source: model.LogSourceSystem, Status: model.LogStatusWarning, Message: "slow vendor"})
	assert.NoError(t, err)
	err = logger.Log(ctx, &model.LogEntry{ClientID: "client_1", Source: model.LogSourceSystem, Status: model.LogStatusInfo, Message: "manual run"})
	assert.NoError(t, err)

	mockDS.AssertNotCalled(t, "GetCircuitState", mock.Anything, mock.Anything)
	mockDS.AssertNotCalled(t, "SaveCircuitState", mock.Anything, mock.Anything)
}

func TestCircuitOpenWritesSecondaryWarningEntry(t *testing.T) {
	mockEmptyConfig()
	mockDS := new(mocks.MockDataSource)
	logger := NewIntegrationLogger(mockDS)
	ctx := context.Background()

	var entries []model.LogEntry
	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Run(func(args mock.Arguments) {
		entries = append(entries, *args.Get(1).(*model.LogEntry))
	}).Return(&model.LogEntry{}, nil)
	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{ClientID: "client_1", ConsecutiveFailures: 2}, nil)
	mockDS.On("SaveCircuitState", mock.Anything, mock.AnythingOfType("*model.CircuitState")).Return(nil)

	err := logger.Log(ctx, &model.LogEntry{
		ClientID: "client_1",
		Source:   model.LogSourcePOSVendor,
		Status:   model.LogStatusError,
		Message:  "third strike",
	})
	assert.NoError(t, err)

	assert.Len(t, entries, 2)
	assert.Equal(t, model.LogStatusError, entries[0].Status)
	assert.Equal(t, model.LogStatusWarning, entries[1].Status)
	assert.Equal(t, "circuit_breaker", entries[1].Operation)
	assert.Contains(t, entries[1].Message, "circuit opened")
}

func TestResetCircuitBreaker(t *testing.T) {
	mockEmptyConfig()
	mockDS := new(mocks.MockDataSource)
	logger := NewIntegrationLogger(mockDS)
	ctx := context.Background()

	mockDS.On("GetCircuitState", mock.Anything, "client_1").Return(&model.CircuitState{
		ClientID:            "client_1",
		ConsecutiveFailures: 5,
		IsPaused:            true,
		PauseReason:         "5 consecutive failures",
	}, nil)

	var saved model.CircuitState
	mockDS.On("SaveCircuitState", mock.Anything, mock.AnythingOfType("*model.CircuitState")).Run(func(args mock.Arguments) {
		saved = *args.Get(1).(*model.CircuitState)
	}).Return(nil)

	var reset model.LogEntry
	mockDS.On("RecordLogEntry", mock.Anything, mock.AnythingOfType("*model.LogEntry")).Run(func(args mock.Arguments) {
		reset = *args.Get(1).(*model.LogEntry)
	}).Return(&model.LogEntry{}, nil)

	err := logger.ResetCircuitBreaker(ctx, "client_1", "vendor maintenance window over")
	assert.NoError(t, err)

	assert.False(t, saved.IsPaused)
	assert.Equal(t, 0, saved.ConsecutiveFailures)
	assert.Equal(t, model.LogStatusInfo, reset.Status)
	assert.Contains(t, reset.Message, "vendor maintenance window over")
}
