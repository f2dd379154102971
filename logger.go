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
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tupahq/tupasync/database"
	"github.com/tupahq/tupasync/internal/notification"
	"github.com/tupahq/tupasync/model"
)

// CircuitFailureThreshold is the number of consecutive client-level failures
// that opens the circuit for that client.
const CircuitFailureThreshold = 3

// IntegrationLogger owns the append-only audit log and the per-client circuit
// state derived from it. Every logged event recomputes the circuit
// synchronously, so the persisted state is never behind the log.
type IntegrationLogger struct {
	datasource database.IDataSource
}

func NewIntegrationLogger(db database.IDataSource) *IntegrationLogger {
	return &IntegrationLogger{datasource: db}
}

// Log appends an entry to the bounded audit log and updates the client's
// circuit state as a side effect.
func (l *IntegrationLogger) Log(ctx context.Context, entry *model.LogEntry) error {
	if _, err := l.datasource.RecordLogEntry(ctx, entry); err != nil {
		return err
	}

	logrus.WithFields(logrus.Fields{
		"client_id": entry.ClientID,
		"source":    entry.Source,
		"operation": entry.Operation,
		"status":    entry.Status,
	}).Info(entry.Message)

	switch entry.Status {
	case model.LogStatusSuccess:
		return l.recordSuccess(ctx, entry.ClientID)
	case model.LogStatusError:
		return l.recordFailure(ctx, entry)
	default:
		// warning and info entries do not move the circuit.
		return nil
	}
}

func (l *IntegrationLogger) recordSuccess(ctx context.Context, clientID string) error {
	state, err := l.datasource.GetCircuitState(ctx, clientID)
	if err != nil {
		return err
	}

	now := time.Now()
	state.ConsecutiveFailures = 0
	state.IsPaused = false
	state.PauseReason = ""
	state.LastSuccessAt = &now
	return l.datasource.SaveCircuitState(ctx, state)
}

func (l *IntegrationLogger) recordFailure(ctx context.Context, entry *model.LogEntry) error {
	notification.NotifyError(entry.ClientID, fmt.Errorf("%s: %s", entry.Operation, entry.Message))

	state, err := l.datasource.GetCircuitState(ctx, entry.ClientID)
	if err != nil {
		return err
	}

	now := time.Now()
	state.ConsecutiveFailures++
	state.LastFailureAt = &now

	if state.ConsecutiveFailures >= CircuitFailureThreshold && !state.IsPaused {
		state.IsPaused = true
		state.PauseReason = fmt.Sprintf("%d consecutive failures, last: %s", state.ConsecutiveFailures, entry.Message)

		if err := l.datasource.SaveCircuitState(ctx, state); err != nil {
			return err
		}

		// Secondary warning entry so operators see the pause in the log
		// stream itself. Warnings do not re-enter the circuit computation.
		warn := &model.LogEntry{
			ClientID:  entry.ClientID,
			Source:    model.LogSourceSystem,
			Operation: "circuit_breaker",
			Status:    model.LogStatusWarning,
			Message:   fmt.Sprintf("circuit opened for client after %d consecutive failures", state.ConsecutiveFailures),
		}
		if _, err := l.datasource.RecordLogEntry(ctx, warn); err != nil {
			return err
		}

		notification.NotifyCircuitOpen(entry.ClientID, fmt.Errorf("sync paused: %s", state.PauseReason))
		if err := SendWebhook(NewWebhook{Event: EventCircuitOpened, Payload: state}); err != nil {
			logrus.WithError(err).Error("failed to queue circuit.opened webhook")
		}
		return nil
	}

	return l.datasource.SaveCircuitState(ctx, state)
}

// CircuitState returns the derived breaker state for a client.
func (l *IntegrationLogger) CircuitState(ctx context.Context, clientID string) (*model.CircuitState, error) {
	return l.datasource.GetCircuitState(ctx, clientID)
}

// ResetCircuitBreaker manually clears a client's breaker. An open circuit
// otherwise only closes on an explicit success event; there is no inactivity
// timeout.
func (l *IntegrationLogger) ResetCircuitBreaker(ctx context.Context, clientID, reason string) error {
	state, err := l.datasource.GetCircuitState(ctx, clientID)
	if err != nil {
		return err
	}

	state.ConsecutiveFailures = 0
	state.IsPaused = false
	state.PauseReason = ""
	if err := l.datasource.SaveCircuitState(ctx, state); err != nil {
		return err
	}

	reset := &model.LogEntry{
		ClientID:  clientID,
		Source:    model.LogSourceSystem,
		Operation: "circuit_breaker",
		Status:    model.LogStatusInfo,
		Message:   fmt.Sprintf("circuit manually reset: %s", reason),
	}
	_, err = l.datasource.RecordLogEntry(ctx, reset)
	return err
}

// GetLogs returns a client's audit entries, newest first.
func (l *IntegrationLogger) GetLogs(ctx context.Context, clientID string, limit int) ([]model.LogEntry, error) {
	return l.datasource.GetClientLogs(ctx, clientID, limit)
}

// LastError returns the latest error entry for a client, nil when the client
// has never failed inside the retained window.
func (l *IntegrationLogger) LastError(ctx context.Context, clientID string) (*model.LogEntry, error) {
	return l.datasource.GetLastLogEntry(ctx, clientID, model.LogStatusError)
}
