package model

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

// ClientConfig holds the per-tenant integration settings. It is owned by
// configuration storage; the engine only ever reads it.
type ClientConfig struct {
	ClientID             string    `json:"client_id"`
	Name                 string    `json:"name"`
	POSType              string    `json:"pos_type"`
	SimulationMode       bool      `json:"simulation_mode"`
	SyncFrequencyMinutes int       `json:"sync_frequency_minutes"`
	APIKey               string    `json:"api_key,omitempty"`
	APISecret            string    `json:"api_secret,omitempty"`
	StoreID              string    `json:"store_id,omitempty"`
	BaseURL              string    `json:"base_url,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
}

func (c *ClientConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.POSType, validation.Required),
		validation.Field(&c.SyncFrequencyMinutes, validation.Min(5), validation.Max(1440)),
	)
}
