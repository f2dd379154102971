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
	"github.com/sirupsen/logrus"

	"github.com/tupahq/tupasync/config"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
	"github.com/tupahq/tupasync/pos"
)

// defaultFetchWindow bounds the first sync of a client that has never
// succeeded before.
const defaultFetchWindow = 24 * time.Hour

// SyncResult is what a sync request returns to the caller. Simulation runs
// complete inline and carry counts; production runs return the queued task.
type SyncResult struct {
	ClientID     string       `json:"client_id"`
	Simulation   bool         `json:"simulation"`
	TaskID       string       `json:"task_id,omitempty"`
	SalesFetched int          `json:"sales_fetched"`
	SalesStored  int          `json:"sales_stored"`
	Erp          *SyncSummary `json:"erp,omitempty"`
	DurationMs   int64        `json:"duration_ms"`
}

// IntegrationStatus is the operator view of one client's integration health.
type IntegrationStatus struct {
	ClientID       string              `json:"client_id"`
	Vendor         string              `json:"vendor"`
	SimulationMode bool                `json:"simulation_mode"`
	Circuit        *model.CircuitState `json:"circuit"`
	LastSuccess    *model.LogEntry     `json:"last_success,omitempty"`
	LastError      *model.LogEntry     `json:"last_error,omitempty"`
	PendingRetries int                 `json:"pending_retries"`
	RecentTasks    []model.SyncTask    `json:"recent_tasks,omitempty"`
}

// SyncClientPOS is the entry point for a sync request. Simulation-mode
// clients run the full pipeline inline against the vendor's embedded fixture
// and get counts back; production clients get a queued task ID immediately.
func (t *Tupa) SyncClientPOS(ctx context.Context, clientID string) (*SyncResult, error) {
	cfg, err := t.datasource.GetClientConfig(ctx, clientID)
	if err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusError, "sync_request", err.Error(), 0)
		return nil, err
	}

	if cfg.SimulationMode {
		return t.runSimulation(ctx, cfg)
	}

	conf, err := config.Fetch()
	if err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusError, "sync_request", err.Error(), 0)
		return nil, err
	}

	task := &model.SyncTask{
		TaskID:      model.GenerateUUIDWithSuffix("task"),
		ClientID:    cfg.ClientID,
		TaskType:    model.TaskTypeSalesSync,
		Status:      model.TaskStatusPending,
		MaxAttempts: conf.Queue.MaxSyncAttempts,
	}
	if _, err := t.datasource.CreateSyncTask(ctx, task); err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusError, "sync_request", err.Error(), 0)
		return nil, err
	}
	if err := t.queue.Enqueue(ctx, task); err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusError, "sync_request", err.Error(), 0)
		return nil, err
	}

	t.logSyncEvent(ctx, cfg.ClientID, model.LogSourceSystem, model.LogStatusInfo, "sync_request",
		fmt.Sprintf("sync task %s queued", task.TaskID), 0)
	return &SyncResult{
		ClientID: cfg.ClientID,
		TaskID:   task.TaskID,
	}, nil
}

// runSimulation executes the pipeline against the vendor's embedded fixture.
// The fixture is raw vendor wire data, so the mapping, validation, storage
// and ERP stages are exactly the ones production traffic goes through.
func (t *Tupa) runSimulation(ctx context.Context, cfg *model.ClientConfig) (*SyncResult, error) {
	started := time.Now()

	adapter, err := pos.GetAdapter(cfg.POSType, *cfg)
	if err != nil {
		t.logSyncEvent(ctx, cfg.ClientID, model.LogSourceSystem, model.LogStatusError, "simulation", err.Error(), 0)
		return nil, err
	}

	fixture, err := pos.LoadFixture(cfg.POSType)
	if err != nil {
		fixtureErr := apierror.NewAPIError(apierror.ErrBadRequest, fmt.Sprintf("vendor %q has no simulation data", cfg.POSType), err.Error())
		t.logSyncEvent(ctx, cfg.ClientID, model.LogSourceSystem, model.LogStatusError, "simulation", fixtureErr.Error(), 0)
		return nil, fixtureErr
	}

	sales, err := adapter.MapToTupa(fixture)
	if err != nil {
		t.logSyncEvent(ctx, cfg.ClientID, model.LogSourcePOSVendor, model.LogStatusError, "simulation", err.Error(), 0)
		return nil, err
	}

	result, err := t.storeAndPropagate(ctx, cfg.ClientID, sales)
	if err != nil {
		t.logSyncEvent(ctx, cfg.ClientID, sourceForError(err), model.LogStatusError, "simulation", err.Error(), time.Since(started).Milliseconds())
		return nil, err
	}

	result.Simulation = true
	result.DurationMs = time.Since(started).Milliseconds()
	t.logSyncEvent(ctx, cfg.ClientID, model.LogSourceSystem, model.LogStatusInfo, "simulation",
		fmt.Sprintf("simulation sync completed: %d sales, %d propagated", result.SalesFetched, result.Erp.SyncedCount),
		result.DurationMs)
	return result, nil
}

// performSync is the live pipeline shared by the queue worker and the retry
// executor: fetch from the vendor, store, propagate to the ERP, log.
func (t *Tupa) performSync(ctx context.Context, clientID string) (*SyncResult, error) {
	started := time.Now()

	cfg, err := t.datasource.GetClientConfig(ctx, clientID)
	if err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusError, "sync_sales", err.Error(), 0)
		return nil, err
	}

	adapter, err := pos.GetAdapter(cfg.POSType, *cfg)
	if err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusError, "sync_sales", err.Error(), 0)
		return nil, err
	}

	from := t.fetchWindowStart(ctx, clientID)
	sales, err := adapter.FetchSales(ctx, from, time.Now())
	if err != nil {
		t.logSyncEvent(ctx, clientID, model.LogSourcePOSVendor, model.LogStatusError, "fetch_sales", err.Error(), time.Since(started).Milliseconds())
		return nil, err
	}

	result, err := t.storeAndPropagate(ctx, clientID, sales)
	if err != nil {
		t.logSyncEvent(ctx, clientID, sourceForError(err), model.LogStatusError, "sync_sales", err.Error(), time.Since(started).Milliseconds())
		return nil, err
	}

	result.DurationMs = time.Since(started).Milliseconds()
	t.logSyncEvent(ctx, clientID, model.LogSourceSystem, model.LogStatusInfo, "sync_sales",
		fmt.Sprintf("sync completed: %d sales fetched, %d propagated", result.SalesFetched, result.Erp.SyncedCount),
		result.DurationMs)
	if err := SendWebhook(NewWebhook{Event: EventSyncCompleted, Payload: result}); err != nil {
		logrus.WithError(err).Error("failed to queue sync.completed webhook")
	}
	return result, nil
}

// storeAndPropagate persists normalized sales and pushes the unsynced backlog
// to the ERP. A partial ERP failure does not fail the run; per-sale errors
// ride back in the summary and are logged as warnings.
func (t *Tupa) storeAndPropagate(ctx context.Context, clientID string, sales []model.Sale) (*SyncResult, error) {
	stored := 0
	for i := range sales {
		if _, err := t.datasource.RecordSale(ctx, &sales[i]); err != nil {
			return nil, err
		}
		stored++
	}

	summary, err := t.erp.SyncSalesToERP(ctx, clientID)
	if err != nil {
		return nil, err
	}
	for _, saleID := range summary.Synced {
		t.logSyncEvent(ctx, clientID, model.LogSourceERP, model.LogStatusSuccess, "erp_propagation",
			fmt.Sprintf("sale %s propagated to erp", saleID), 0)
	}
	for _, syncErr := range summary.Errors {
		t.logSyncEvent(ctx, clientID, model.LogSourceERP, model.LogStatusWarning, "erp_propagation",
			fmt.Sprintf("sale %s not propagated: %s", syncErr.SaleID, syncErr.Message), 0)
	}

	return &SyncResult{
		ClientID:     clientID,
		SalesFetched: len(sales),
		SalesStored:  stored,
		Erp:          summary,
	}, nil
}

// ProcessSyncTask is the sync queue handler. Task state transitions are
// guarded in storage, so a redelivered task that already ran is a no-op.
func (t *Tupa) ProcessSyncTask(ctx context.Context, task *asynq.Task) error {
	var payload SyncTaskPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return err
	}

	if err := t.datasource.MarkSyncTaskProcessing(ctx, payload.TaskID); err != nil {
		return err
	}

	_, syncErr := t.performSync(ctx, payload.ClientID)
	if syncErr == nil {
		return t.datasource.MarkSyncTaskCompleted(ctx, payload.TaskID)
	}

	if err := t.datasource.MarkSyncTaskFailed(ctx, payload.TaskID, syncErr.Error()); err != nil {
		return err
	}

	if apierror.Retryable(syncErr) {
		if _, err := t.retry.EnqueueRetry(ctx, payload.ClientID, retryOperationFor(syncErr), syncErr); err != nil {
			return err
		}
	}

	// The failure is recorded; returning it would only make the broker
	// archive a task whose terminal state already lives in storage.
	logrus.WithFields(logrus.Fields{
		"task_id":   payload.TaskID,
		"client_id": payload.ClientID,
	}).WithError(syncErr).Error("sync task failed")
	if err := SendWebhook(NewWebhook{Event: EventSyncFailed, Payload: map[string]interface{}{
		"task_id":   payload.TaskID,
		"client_id": payload.ClientID,
		"error":     syncErr.Error(),
	}}); err != nil {
		logrus.WithError(err).Error("failed to queue sync.failed webhook")
	}
	return nil
}

// ExecuteRetry re-runs the operation a retry job stands for. Auth retries
// verify credentials before attempting the full pipeline again.
func (t *Tupa) ExecuteRetry(ctx context.Context, job *model.RetryJob) error {
	if job.Operation == model.RetryOperationAuth {
		cfg, err := t.datasource.GetClientConfig(ctx, job.ClientID)
		if err != nil {
			return err
		}
		adapter, err := pos.GetAdapter(cfg.POSType, *cfg)
		if err != nil {
			return err
		}
		if _, err := adapter.ValidateConnection(ctx); err != nil {
			return err
		}
	}

	_, err := t.performSync(ctx, job.ClientID)
	return err
}

// Status assembles the operator view of a client's integration.
func (t *Tupa) Status(ctx context.Context, clientID string) (*IntegrationStatus, error) {
	cfg, err := t.datasource.GetClientConfig(ctx, clientID)
	if err != nil {
		return nil, err
	}

	circuit, err := t.logger.CircuitState(ctx, clientID)
	if err != nil {
		return nil, err
	}

	lastSuccess, err := t.datasource.GetLastLogEntry(ctx, clientID, model.LogStatusSuccess)
	if err != nil {
		return nil, err
	}
	lastError, err := t.datasource.GetLastLogEntry(ctx, clientID, model.LogStatusError)
	if err != nil {
		return nil, err
	}

	retryJobs, err := t.retry.ListClientJobs(ctx, clientID)
	if err != nil {
		return nil, err
	}

	tasks, err := t.datasource.GetClientSyncTasks(ctx, clientID, 10)
	if err != nil {
		return nil, err
	}

	return &IntegrationStatus{
		ClientID:       cfg.ClientID,
		Vendor:         cfg.POSType,
		SimulationMode: cfg.SimulationMode,
		Circuit:        circuit,
		LastSuccess:    lastSuccess,
		LastError:      lastError,
		PendingRetries: len(retryJobs),
		RecentTasks:    tasks,
	}, nil
}

// fetchWindowStart picks the lower bound for a live fetch: the last
// successful sync when there is one, a bounded lookback otherwise.
func (t *Tupa) fetchWindowStart(ctx context.Context, clientID string) time.Time {
	entry, err := t.datasource.GetLastLogEntry(ctx, clientID, model.LogStatusSuccess)
	if err != nil || entry == nil {
		return time.Now().Add(-defaultFetchWindow)
	}
	return entry.CreatedAt
}

// logSyncEvent writes an audit entry, which also feeds the circuit breaker.
// Audit failures are logged but never mask the sync outcome.
func (t *Tupa) logSyncEvent(ctx context.Context, clientID, source, status, operation, message string, durationMs int64) {
	entry := &model.LogEntry{
		ClientID:   clientID,
		Source:     source,
		Operation:  operation,
		Status:     status,
		Message:    message,
		DurationMs: durationMs,
	}
	if err := t.logger.Log(ctx, entry); err != nil {
		logrus.WithFields(logrus.Fields{
			"client_id": clientID,
			"operation": operation,
		}).WithError(err).Error("failed to record integration log entry")
	}
}

// sourceForError attributes a pipeline error to the side that produced it.
func sourceForError(err error) string {
	switch apierror.Code(err) {
	case apierror.ErrVendorAuth, apierror.ErrVendorFetch, apierror.ErrValidation:
		return model.LogSourcePOSVendor
	case apierror.ErrErpAuth, apierror.ErrErpWrite:
		return model.LogSourceERP
	default:
		return model.LogSourceSystem
	}
}

// retryOperationFor classifies a retryable failure into the operation the
// retry job should re-attempt.
func retryOperationFor(err error) model.RetryOperation {
	switch apierror.Code(err) {
	case apierror.ErrVendorAuth, apierror.ErrErpAuth:
		return model.RetryOperationAuth
	case apierror.ErrVendorFetch:
		return model.RetryOperationFetch
	default:
		return model.RetryOperationSync
	}
}
