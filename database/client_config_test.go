package database

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"

	"github.com/tupahq/tupasync/internal/apierror"
	"github.com/tupahq/tupasync/model"
)

func TestCreateClientConfig_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	cfg := model.ClientConfig{
		Name:                 "Cafe Centro",
		POSType:              "fudo",
		SimulationMode:       false,
		SyncFrequencyMinutes: 15,
		APIKey:               "key",
		APISecret:            "secret",
	}

	mock.ExpectExec("INSERT INTO client_configs").
		WithArgs(sqlmock.AnyArg(), cfg.Name, cfg.POSType, cfg.SimulationMode, cfg.SyncFrequencyMinutes, cfg.APIKey, cfg.APISecret, cfg.StoreID, cfg.BaseURL, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	created, err := ds.CreateClientConfig(context.Background(), cfg)
	assert.NoError(t, err)
	assert.NotEmpty(t, created.ClientID)
	assert.Contains(t, created.ClientID, "client_")
}

func TestCreateClientConfig_DuplicateID(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("INSERT INTO client_configs").
		WillReturnError(&pq.Error{Code: "23505"})

	_, err = ds.CreateClientConfig(context.Background(), model.ClientConfig{ClientID: "client_abc", Name: "Cafe Centro", POSType: "fudo"})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrBadRequest, apierror.Code(err))
}

func TestGetClientConfig_Success(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	row := sqlmock.NewRows([]string{"client_id", "name", "pos_type", "simulation_mode", "sync_frequency_minutes", "api_key", "api_secret", "store_id", "base_url", "created_at"}).
		AddRow("client_abc", "Cafe Centro", "fudo", true, 15, "key", "secret", "", "", time.Now())

	mock.ExpectQuery("SELECT client_id, name, pos_type").
		WithArgs("client_abc").
		WillReturnRows(row)

	cfg, err := ds.GetClientConfig(context.Background(), "client_abc")
	assert.NoError(t, err)
	assert.Equal(t, "fudo", cfg.POSType)
	assert.True(t, cfg.SimulationMode)

	err = mock.ExpectationsWereMet()
	assert.NoError(t, err)
}

func TestGetClientConfig_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectQuery("SELECT client_id, name, pos_type").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"client_id"}))

	cfg, err := ds.GetClientConfig(context.Background(), "missing")
	assert.Error(t, err)
	assert.Nil(t, cfg)
	assert.Equal(t, apierror.ErrClientNotFound, apierror.Code(err))
}

func TestUpdateClientConfig_NotFound(t *testing.T) {
	db, mock, err := sqlmock.New()
	assert.NoError(t, err)
	defer db.Close()

	ds := Datasource{Conn: db}

	mock.ExpectExec("UPDATE client_configs").
		WillReturnResult(sqlmock.NewResult(0, 0))

	err = ds.UpdateClientConfig(context.Background(), &model.ClientConfig{ClientID: "missing", Name: "X", POSType: "fudo"})
	assert.Error(t, err)
	assert.Equal(t, apierror.ErrClientNotFound, apierror.Code(err))
}
