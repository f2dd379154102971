package database

import (
	"context"
	"database/sql"
	"time"

	"github.com/lib/pq"
	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

func (d Datasource) CreateClientConfig(ctx context.Context, cfg model.ClientConfig) (model.ClientConfig, error) {
	if cfg.ClientID == "" {
		cfg.ClientID = model.GenerateUUIDWithSuffix("client")
	}
	cfg.CreatedAt = time.Now()

	_, err := d.Conn.ExecContext(ctx, `
		INSERT INTO client_configs (client_id, name, pos_type, simulation_mode, sync_frequency_minutes, api_key, api_secret, store_id, base_url, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`, cfg.ClientID, cfg.Name, cfg.POSType, cfg.SimulationMode, cfg.SyncFrequencyMinutes, cfg.APIKey, cfg.APISecret, cfg.StoreID, cfg.BaseURL, cfg.CreatedAt)

	if err != nil {
		pqErr, ok := err.(*pq.Error)
		if ok && pqErr.Code.Name() == "unique_violation" {
			return model.ClientConfig{}, apierror.NewAPIError(apierror.ErrBadRequest, "Client with this ID already exists", err)
		}
		return model.ClientConfig{}, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to create client config", err)
	}

	return cfg, nil
}

func (d Datasource) GetClientConfig(ctx context.Context, clientID string) (*model.ClientConfig, error) {
	cfg := model.ClientConfig{}

	row := d.Conn.QueryRowContext(ctx, `
		SELECT client_id, name, pos_type, simulation_mode, sync_frequency_minutes, api_key, api_secret, store_id, base_url, created_at
		FROM client_configs
		WHERE client_id = $1
	`, clientID)

	err := row.Scan(&cfg.ClientID, &cfg.Name, &cfg.POSType, &cfg.SimulationMode, &cfg.SyncFrequencyMinutes, &cfg.APIKey, &cfg.APISecret, &cfg.StoreID, &cfg.BaseURL, &cfg.CreatedAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, apierror.NewAPIError(apierror.ErrClientNotFound, "Client not found", err)
		}
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve client config", err)
	}

	return &cfg, nil
}

func (d Datasource) GetAllClientConfigs(ctx context.Context, limit, offset int) ([]model.ClientConfig, error) {
	rows, err := d.Conn.QueryContext(ctx, `
		SELECT client_id, name, pos_type, simulation_mode, sync_frequency_minutes, api_key, api_secret, store_id, base_url, created_at
		FROM client_configs
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`, limit, offset)
	if err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to retrieve client configs", err)
	}
	defer rows.Close()

	configs := []model.ClientConfig{}
	for rows.Next() {
		cfg := model.ClientConfig{}
		err = rows.Scan(&cfg.ClientID, &cfg.Name, &cfg.POSType, &cfg.SimulationMode, &cfg.SyncFrequencyMinutes, &cfg.APIKey, &cfg.APISecret, &cfg.StoreID, &cfg.BaseURL, &cfg.CreatedAt)
		if err != nil {
			return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Failed to scan client config data", err)
		}
		configs = append(configs, cfg)
	}

	if err = rows.Err(); err != nil {
		return nil, apierror.NewAPIError(apierror.ErrInternalServer, "Error occurred while iterating over client configs", err)
	}

	return configs, nil
}

func (d Datasource) UpdateClientConfig(ctx context.Context, cfg *model.ClientConfig) error {
	result, err := d.Conn.ExecContext(ctx, `
		UPDATE client_configs
		SET name = $2, pos_type = $3, simulation_mode = $4, sync_frequency_minutes = $5, api_key = $6, api_secret = $7, store_id = $8, base_url = $9
		WHERE client_id = $1
	`, cfg.ClientID, cfg.Name, cfg.POSType, cfg.SimulationMode, cfg.SyncFrequencyMinutes, cfg.APIKey, cfg.APISecret, cfg.StoreID, cfg.BaseURL)
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to update client config", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return apierror.NewAPIError(apierror.ErrInternalServer, "Failed to read update result", err)
	}
	if rows == 0 {
		return apierror.NewAPIError(apierror.ErrClientNotFound, "Client not found", nil)
	}
	return nil
}
