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
package model

import (
	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/tupahq/tupasync/model"
	"github.com/tupahq/tupasync/pos"
)

// CreateClient is the request body for registering a POS client.
type CreateClient struct {
	Name                 string `json:"name"`
	POSType              string `json:"pos_type"`
	SimulationMode       bool   `json:"simulation_mode"`
	SyncFrequencyMinutes int    `json:"sync_frequency_minutes"`
	APIKey               string `json:"api_key"`
	APISecret            string `json:"api_secret"`
	StoreID              string `json:"store_id"`
	BaseURL              string `json:"base_url"`
}

func (c *CreateClient) ValidateCreateClient() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Name, validation.Required),
		validation.Field(&c.POSType, validation.Required, validation.By(knownVendor)),
		validation.Field(&c.SyncFrequencyMinutes, validation.Min(0)),
	)
}

func (c *CreateClient) ToClientConfig() model.ClientConfig {
	return model.ClientConfig{
		Name:                 c.Name,
		POSType:              c.POSType,
		SimulationMode:       c.SimulationMode,
		SyncFrequencyMinutes: c.SyncFrequencyMinutes,
		APIKey:               c.APIKey,
		APISecret:            c.APISecret,
		StoreID:              c.StoreID,
		BaseURL:              c.BaseURL,
	}
}

func knownVendor(value interface{}) error {
	vendor, _ := value.(string)
	_, err := pos.GetRegistration(vendor)
	return err
}

// ResetCircuit is the request body for a manual circuit breaker reset.
type ResetCircuit struct {
	Reason string `json:"reason"`
}

func (r *ResetCircuit) ValidateResetCircuit() error {
	return validation.ValidateStruct(r,
		validation.Field(&r.Reason, validation.Required),
	)
}
