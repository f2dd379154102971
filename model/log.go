package model

import "time"

// Log entry sources.
const (
	LogSourcePOSVendor = "pos_vendor"
	LogSourceERP       = "erp"
	LogSourceSystem    = "system"
)

// Log entry statuses.
const (
	LogStatusSuccess = "success"
	LogStatusError   = "error"
	LogStatusWarning = "warning"
	LogStatusInfo    = "info"
)

// LogEntry is an immutable integration audit record. Entries are append-only
// and retained up to a bounded most-recent window per client.
type LogEntry struct {
	LogID      string    `json:"log_id"`
	ClientID   string    `json:"client_id"`
	Source     string    `json:"source"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	Message    string    `json:"message"`
	DurationMs int64     `json:"duration_ms,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
}

// CircuitState is the derived per-client breaker state. It is recomputed as a
// side effect of every logged event and never created directly by callers.
type CircuitState struct {
	ClientID            string     `json:"client_id"`
	ConsecutiveFailures int        `json:"consecutive_failures"`
	IsPaused            bool       `json:"is_paused"`
	PauseReason         string     `json:"pause_reason,omitempty"`
	LastFailureAt       *time.Time `json:"last_failure_at,omitempty"`
	LastSuccessAt       *time.Time `json:"last_success_at,omitempty"`
}
