package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

func (d Datasource) CreateSyncTask(ctx context.Context, task *model.SyncTask) (*model.SyncTask, error) {
	if task.TaskID == "" {
		task.TaskID = model.GenerateUUIDWithSuffix("task")
	}
	task.Status = model.TaskStatusPending
	task.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO sync_tasks (task_id, client_id, task_type, status, attempts, max_attempts, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`, task.TaskID, task.ClientID, task.TaskType, task.Status, task.Attempts, task.MaxAttempts, task.CreatedAt)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create sync task", err)
	}

	return task, nil
}

func (d Datasource) GetSyncTask(ctx context.Context, taskID string) (*model.SyncTask, error) {
	task := model.SyncTask{}
	var lastError sql.NullString
	var startedAt, completedAt sql.NullTime

	row := d.Conn.QueryRowContext(ctx, `
		SELECT task_id, client_id, task_type, status, attempts, max_attempts, last_error, created_at, started_at, completed_at
		FROM sync_tasks
		WHERE task_id = $1
	`, taskID)

	err := row.Scan(&task.TaskID, &task.ClientID, &task.TaskType, &task.Status, &task.Attempts, &task.MaxAttempts, &lastError, &task.CreatedAt, &startedAt, &completedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrBadRequest, "Sync task not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sync task", err)
	}

	task.LastError = lastError.String
	if startedAt.Valid {
		task.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		task.CompletedAt = &completedAt.Time
	}
	return &task, nil
}

func (d Datasource) GetClientSyncTasks(ctx context.Context, clientID string, limit int) ([]model.SyncTask, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT task_id, client_id, task_type, status, attempts, max_attempts, last_error, created_at, started_at, completed_at
		FROM sync_tasks
		WHERE client_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, clientID, limit)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve sync tasks", err)
	}
	defer rows.Close()

	tasks := []model.SyncTask{}
	for rows.Next() {
		task := model.SyncTask{}
		var lastError sql.NullString
		var startedAt, completedAt sql.NullTime
		err = rows.Scan(&task.TaskID, &task.ClientID, &task.TaskType, &task.Status, &task.Attempts, &task.MaxAttempts, &lastError, &task.CreatedAt, &startedAt, &completedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan sync task data", err)
		}
		task.LastError = lastError.String
		if startedAt.Valid {
			task.StartedAt = &startedAt.Time
		}
		if completedAt.Valid {
			task.CompletedAt = &completedAt.Time
		}
		tasks = append(tasks, task)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over sync tasks", err)
	}
	return tasks, nil
}

// MarkSyncTaskProcessing transitions a pending task to PROCESSING and counts
// the attempt. The transition is guarded so a completed task cannot regress.
func (d Datasource) MarkSyncTaskProcessing(ctx context.Context, taskID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = $2, attempts = attempts + 1, started_at = NOW()
		WHERE task_id = $1 AND status = $3
	`, taskID, model.TaskStatusProcessing, model.TaskStatusPending)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark sync task processing", err)
	}
	return requireTaskUpdated(result)
}

func (d Datasource) MarkSyncTaskCompleted(ctx context.Context, taskID string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = $2, completed_at = NOW()
		WHERE task_id = $1 AND status = $3
	`, taskID, model.TaskStatusCompleted, model.TaskStatusProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark sync task completed", err)
	}
	return requireTaskUpdated(result)
}

func (d Datasource) MarkSyncTaskFailed(ctx context.Context, taskID string, lastError string) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE sync_tasks
		SET status = $2, last_error = $3, completed_at = NOW()
		WHERE task_id = $1 AND status = $4
	`, taskID, model.TaskStatusFailed, lastError, model.TaskStatusProcessing)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to mark sync task failed", err)
	}
	return requireTaskUpdated(result)
}

func requireTaskUpdated(result sql.Result) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrBadRequest, "Sync task not in expected state", nil)
	}
	return nil
}
