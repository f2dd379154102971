package database

import (
	"database/sql"
	"log"
	"sync"

	"github.com/tupahq/tupasync/cache"

	"github.com/tupahq/tupasync/config"
)

// Declare a package-level variable to hold the singleton instance.
// Ensure the instance is not accessible outside the package.
var instance *Datasource
var once sync.Once

type Datasource struct {
	Conn  *sql.DB
	Cache cache.Cache
}

func NewDataSource(configuration *config.Configuration) (IDataSource, error) {
	con, err := GetDBConnection(configuration)
	if err != nil {
		return nil, err
	}
	return con, nil
}

// GetDBConnection provides a global access point to the instance and initializes it if it's not already.
func GetDBConnection(configuration *config.Configuration) (*Datasource, error) {
	var err error
	once.Do(func() {
		con, errConn := ConnectDB(configuration.DataSource.Dns)
		if errConn != nil {
			err = errConn
			return
		}
		instance = &Datasource{Conn: con, Cache: nil}
	})
	if err != nil {
		return nil, err
	}
	return instance, nil
}

func ConnectDB(dns string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dns)
	if err != nil {
		return nil, err
	}
	err = db.Ping()
	if err != nil {
		log.Printf("database Connection error ❌: %v", err)
		return nil, err
	}
	err = createClientConfigTable(db)
	if err != nil {
		return nil, err
	}
	err = createSaleTable(db)
	if err != nil {
		return nil, err
	}
	err = createSyncTaskTable(db)
	if err != nil {
		return nil, err
	}
	err = createIntegrationLogTable(db)
	if err != nil {
		return nil, err
	}
	err = createCircuitStateTable(db)
	if err != nil {
		return nil, err
	}
	return db, nil
}

// createClientConfigTable creates a PostgreSQL table for per-tenant integration settings
func createClientConfigTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS client_configs (
			id SERIAL PRIMARY KEY,
			client_id TEXT NOT NULL UNIQUE,
			name TEXT NOT NULL,
			pos_type TEXT NOT NULL,
			simulation_mode BOOLEAN DEFAULT FALSE,
			sync_frequency_minutes INT DEFAULT 60,
			api_key TEXT,
			api_secret TEXT,
			store_id TEXT,
			base_url TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createSaleTable creates a PostgreSQL table for canonical sales with their sync flags
func createSaleTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS pos_sales (
			id SERIAL PRIMARY KEY,
			sale_id TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL REFERENCES client_configs(client_id),
			sale_timestamp TIMESTAMP NOT NULL,
			amount NUMERIC NOT NULL,
			items JSONB NOT NULL,
			customer JSONB,
			payment_method TEXT NOT NULL,
			pos_transaction_id TEXT NOT NULL,
			meta_data JSONB,
			processed BOOLEAN DEFAULT FALSE,
			erp_synced BOOLEAN DEFAULT FALSE,
			erp_id BIGINT DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			UNIQUE (client_id, pos_transaction_id)
		)
	`)
	return err
}

// createSyncTaskTable creates a PostgreSQL table for deferred sync work
func createSyncTaskTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sync_tasks (
			id SERIAL PRIMARY KEY,
			task_id TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			task_type TEXT NOT NULL,
			status TEXT NOT NULL,
			attempts INT DEFAULT 0,
			max_attempts INT DEFAULT 1,
			last_error TEXT,
			created_at TIMESTAMP NOT NULL DEFAULT NOW(),
			started_at TIMESTAMP,
			completed_at TIMESTAMP
		)
	`)
	return err
}

// createIntegrationLogTable creates a PostgreSQL table for the append-only audit log
func createIntegrationLogTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS integration_logs (
			id SERIAL PRIMARY KEY,
			log_id TEXT NOT NULL UNIQUE,
			client_id TEXT NOT NULL,
			source TEXT NOT NULL,
			operation TEXT NOT NULL,
			status TEXT NOT NULL,
			message TEXT,
			duration_ms BIGINT DEFAULT 0,
			created_at TIMESTAMP NOT NULL DEFAULT NOW()
		)
	`)
	return err
}

// createCircuitStateTable creates a PostgreSQL table for derived breaker state
func createCircuitStateTable(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS circuit_states (
			client_id TEXT PRIMARY KEY,
			consecutive_failures INT DEFAULT 0,
			is_paused BOOLEAN DEFAULT FALSE,
			pause_reason TEXT,
			last_failure_at TIMESTAMP,
			last_success_at TIMESTAMP
		)
	`)
	return err
}
