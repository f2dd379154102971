package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

// LogWindowSize bounds the retained audit entries per client. The window is
// enforced at insert time so the table never grows unbounded.
const LogWindowSize = 1000

func (d Datasource) RecordLogEntry(ctx context.Context, entry *model.LogEntry) (*model.LogEntry, error) {
	if entry.LogID == "" {
		entry.LogID = model.GenerateUUIDWithSuffix("log")
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now()
	}

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO integration_logs (log_id, client_id, source, operation, status, message, duration_ms, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, entry.LogID, entry.ClientID, entry.Source, entry.Operation, entry.Status, entry.Message, entry.DurationMs, entry.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to record log entry", err)
	}

	// Prune beyond the most-recent window for this client.
	_, err = d.Conn.ExecContext(ctx, `
		DELETE FROM integration_logs
		WHERE client_id = $1 AND id NOT IN (
			SELECT id FROM integration_logs
			WHERE client_id = $1
			ORDER BY id DESC
			LIMIT $2
		)
	`, entry.ClientID, LogWindowSize)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to prune log window", err)
	}

	return entry, nil
}

func (d Datasource) GetClientLogs(ctx context.Context, clientID string, limit int) ([]model.LogEntry, error) {
	if limit <= 0 || limit > LogWindowSize {
		limit = LogWindowSize
	}
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT log_id, client_id, source, operation, status, message, duration_ms, created_at
		FROM integration_logs
		WHERE client_id = $1
		ORDER BY id DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve logs", err)
	}
	defer rows.Close()

	entries := []model.LogEntry{}
	for rows.Next() {
		entry := model.LogEntry{}
		err = rows.Scan(&entry.LogID, &entry.ClientID, &entry.Source, &entry.Operation, &entry.Status, &entry.Message, &entry.DurationMs, &entry.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan log entry", err)
		}
		entries = append(entries, entry)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over logs", err)
	}
	return entries, nil
}

func (d Datasource) GetLastLogEntry(ctx context.Context, clientID string, status string) (*model.LogEntry, error) {
	entry := model.LogEntry{}
	row := d.Conn.QueryRowContext(ctx, `
		SELECT log_id, client_id, source, operation, status, message, duration_ms, created_at
		FROM integration_logs
		WHERE client_id = $1 AND status = $2
		ORDER BY id DESC
		LIMIT 1
	`, clientID, status)

	err := row.Scan(&entry.LogID, &entry.ClientID, &entry.Source, &entry.Operation, &entry.Status, &entry.Message, &entry.DurationMs, &entry.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve last log entry", err)
	}
	return &entry, nil
}

// GetCircuitState returns the breaker state for a client, a zero-valued state
// when the client has never logged anything.
func (d Datasource) GetCircuitState(ctx context.Context, clientID string) (*model.CircuitState, error) {
	state := model.CircuitState{ClientID: clientID}
	var pauseReason sql.NullString
	var lastFailureAt, lastSuccessAt sql.NullTime

	row := d.Conn.QueryRowContext(ctx, `
		SELECT client_id, consecutive_failures, is_paused, pause_reason, last_failure_at, last_success_at
		FROM circuit_states
		WHERE client_id = $1
	`, clientID)

	err := row.Scan(&state.ClientID, &state.ConsecutiveFailures, &state.IsPaused, &pauseReason, &lastFailureAt, &lastSuccessAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return &model.CircuitState{ClientID: clientID}, nil
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve circuit state", err)
	}

	state.PauseReason = pauseReason.String
	if lastFailureAt.Valid {
		state.LastFailureAt = &lastFailureAt.Time
	}
	if lastSuccessAt.Valid {
		state.LastSuccessAt = &lastSuccessAt.Time
	}
	return &state, nil
}

func (d Datasource) SaveCircuitState(ctx context.Context, state *model.CircuitState) error {
	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO circuit_states (client_id, consecutive_failures, is_paused, pause_reason, last_failure_at, last_success_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (client_id)
		DO UPDATE SET consecutive_failures = EXCLUDED.consecutive_failures, is_paused = EXCLUDED.is_paused, pause_reason = EXCLUDED.pause_reason, last_failure_at = EXCLUDED.last_failure_at, last_success_at = EXCLUDED.last_success_at
	`, state.ClientID, state.ConsecutiveFailures, state.IsPaused, state.PauseReason, state.LastFailureAt, state.LastSuccessAt)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to save circuit state", err)
	}
	return nil
}
